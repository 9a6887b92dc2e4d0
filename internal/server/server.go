package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"rewardScope/internal/model"
	"rewardScope/internal/rewards"
)

// Server exposes the reward engine's read-only query API. The engine itself
// is single-threaded, so every handler takes the mutex.
type Server struct {
	*echo.Echo
	engine *rewards.Distributor
	logger *zap.Logger

	mu         sync.Mutex
	lastSeq    uint64
	lastAction uint64
	now        func() uint64
}

func New(engine *rewards.Distributor, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		Echo:   e,
		engine: engine,
		logger: logger,
		now:    func() uint64 { return uint64(time.Now().Unix()) },
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.GET("/status", s.GetStatus)
	s.GET("/pools", s.GetPools)
	s.GET("/pools/:pool/rewards", s.GetPoolRewards)
	s.GET("/pools/:pool/streams", s.GetPoolStreams)
	s.GET("/owners/:owner/pending", s.GetOwnerPending)
}

// SetProgress records the journal position the served engine reflects.
func (s *Server) SetProgress(lastSeq, lastAction uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeq = lastSeq
	s.lastAction = lastAction
}

func (s *Server) GetStatus(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.JSON(http.StatusOK, model.StatusResponse{
		Pools:      len(s.engine.Pools()),
		Positions:  s.engine.PositionCount(),
		LastSeq:    s.lastSeq,
		LastAction: s.lastAction,
	})
}

func (s *Server) GetPools(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.engine.Pools()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Hex())
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) GetPoolRewards(c echo.Context) error {
	id, err := model.ParsePoolID(c.Param("pool"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	resp, err := s.engine.PoolRewards(id)
	if err != nil {
		if errors.Is(err, rewards.ErrUnknownPool) {
			return echo.NewHTTPError(http.StatusNotFound, "pool not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) GetPoolStreams(c echo.Context) error {
	id, err := model.ParsePoolID(c.Param("pool"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	resp, err := s.engine.PoolStreams(s.now(), id)
	if err != nil {
		if errors.Is(err, rewards.ErrUnknownPool) {
			return echo.NewHTTPError(http.StatusNotFound, "pool not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) GetOwnerPending(c echo.Context) error {
	raw := c.Param("owner")
	if !common.IsHexAddress(raw) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid owner address")
	}
	owner := common.HexToAddress(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	pending, err := s.engine.PendingRewardsOwner(s.now(), owner)
	if err != nil {
		return err
	}

	resp := model.PendingResponse{
		Owner:   owner.Hex(),
		Pending: make(map[string]map[string]string, len(pending)),
	}
	for pool, tokens := range pending {
		perPool := make(map[string]string, len(tokens))
		for token, amount := range tokens {
			perPool[token.Hex()] = amount.String()
		}
		resp.Pending[pool.Hex()] = perPool
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) ShutdownWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(ctx)
}
