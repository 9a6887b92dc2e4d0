package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"rewardScope/internal/model"
	"rewardScope/internal/rewards"
	"rewardScope/internal/storage/postgres"
)

// payoutSink satisfies the engine's transferrer. Replayed claims settled
// externally already, so nothing moves here.
type payoutSink struct{}

func (payoutSink) Transfer(token, recipient common.Address, amount *big.Int) error {
	return nil
}

// NewEngine builds a reward engine wired for journal replay.
func NewEngine(authority, depositor common.Address, logger *zap.Logger) *rewards.Distributor {
	return rewards.NewDistributor(rewards.Config{
		Authority: authority,
		Depositor: depositor,
	}, payoutSink{}, logger)
}

// Config controls replay behavior.
type Config struct {
	BatchSize  int
	ReplayFrom uint64
	StateStore StateStore
}

// Replayer feeds journaled action records through the reward engine and
// snapshots the resulting state to Postgres.
type Replayer struct {
	cfg    Config
	engine *rewards.Distributor
	store  *postgres.Store
	logger *zap.Logger

	claims  []model.ClaimRow
	lastSeq uint64
	lastTs  uint64
}

// LastSeq returns the highest journal sequence applied so far.
func (r *Replayer) LastSeq() uint64 { return r.lastSeq }

// LastTimestamp returns the timestamp of the last applied action.
func (r *Replayer) LastTimestamp() uint64 { return r.lastTs }

func NewReplayer(cfg Config, engine *rewards.Distributor, store *postgres.Store, logger *zap.Logger) *Replayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replayer{
		cfg:    cfg,
		engine: engine,
		store:  store,
		logger: logger,
	}
}

// Run replays an action journal from the last checkpointed sequence.
func (r *Replayer) Run(ctx context.Context, inputPath string) error {
	if r.engine == nil {
		return fmt.Errorf("engine is nil")
	}
	if r.cfg.BatchSize <= 0 {
		r.cfg.BatchSize = 1000
	}

	startSeq, err := r.loadStartSeq(ctx)
	if err != nil {
		return err
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var total, applied, skipped, failed int
	sinceFlush := 0

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var record model.ActionRecord
		if err := json.Unmarshal(line, &record); err != nil {
			failed++
			r.logger.Warn("decode action record", zap.Error(err))
			continue
		}

		if record.Seq <= startSeq {
			skipped++
			continue
		}

		if err := r.apply(record); err != nil {
			failed++
			r.logger.Warn("apply action",
				zap.Error(err),
				zap.Uint64("seq", record.Seq),
				zap.String("kind", record.Kind),
				zap.String("pool", record.PoolID),
			)
			continue
		}
		applied++
		sinceFlush++
		r.lastSeq = record.Seq
		r.lastTs = record.Timestamp

		if sinceFlush >= r.cfg.BatchSize {
			if err := r.flush(ctx); err != nil {
				return err
			}
			sinceFlush = 0
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	if err := r.flush(ctx); err != nil {
		return err
	}

	r.logger.Info("replay complete",
		zap.Int("total", total),
		zap.Int("applied", applied),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
		zap.Uint64("last_seq", r.lastSeq),
	)

	return nil
}

func (r *Replayer) loadStartSeq(ctx context.Context) (uint64, error) {
	if r.cfg.ReplayFrom > 0 {
		return r.cfg.ReplayFrom - 1, nil
	}
	if r.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := r.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

// apply dispatches one journal record into the engine.
func (r *Replayer) apply(record model.ActionRecord) error {
	poolID, err := model.ParsePoolID(record.PoolID)
	if err != nil {
		return err
	}

	switch record.Kind {
	case model.ActionRegisterPool:
		return r.engine.RegisterPool(record.Timestamp, poolID,
			common.HexToAddress(record.RewardToken), record.TickSpacing, record.ActiveTick)

	case model.ActionSubscribe:
		liquidity, err := parseAmount(record.LiquidityDelta)
		if err != nil {
			return err
		}
		_, err = r.engine.NotifySubscribe(record.Timestamp, poolID,
			common.HexToAddress(record.Owner), parseSalt(record.Salt),
			record.TickLower, record.TickUpper, liquidity)
		return err

	case model.ActionModifyLiquidity:
		delta, err := parseAmount(record.LiquidityDelta)
		if err != nil {
			return err
		}
		return r.engine.NotifyModifyLiquidity(record.Timestamp, positionKey(record, poolID), delta)

	case model.ActionUnsubscribe:
		return r.engine.NotifyUnsubscribe(record.Timestamp, positionKey(record, poolID))

	case model.ActionBurn:
		return r.engine.NotifyBurn(record.Timestamp, positionKey(record, poolID))

	case model.ActionDepositRewards:
		amount, err := parseAmount(record.Amount)
		if err != nil {
			return err
		}
		return r.engine.AddRewards(record.Timestamp, common.HexToAddress(record.Caller), poolID, amount)

	case model.ActionWhitelistToken:
		return r.engine.WhitelistToken(common.HexToAddress(record.Caller), poolID,
			common.HexToAddress(record.Token))

	case model.ActionCreateIncentive:
		amount, err := parseAmount(record.Amount)
		if err != nil {
			return err
		}
		return r.engine.CreateIncentive(record.Timestamp, common.HexToAddress(record.Caller),
			poolID, common.HexToAddress(record.Token), amount)

	case model.ActionPoke:
		return r.engine.PokePool(record.Timestamp, poolID, record.ActiveTick)

	case model.ActionClaim:
		totals, err := r.engine.Claim(record.Timestamp, common.HexToAddress(record.Owner),
			positionKey(record, poolID), common.HexToAddress(record.Recipient))
		if err != nil {
			return err
		}
		r.recordClaims(record, totals)
		return nil

	case model.ActionClaimAll:
		totals, err := r.engine.ClaimAllForOwner(record.Timestamp,
			common.HexToAddress(record.Owner), nil, common.HexToAddress(record.Recipient))
		if err != nil {
			return err
		}
		r.recordClaims(record, totals)
		return nil

	default:
		return fmt.Errorf("unknown action kind: %s", record.Kind)
	}
}

func (r *Replayer) recordClaims(record model.ActionRecord, totals map[common.Address]*big.Int) {
	for token, amount := range totals {
		r.claims = append(r.claims, model.ClaimRow{
			PoolID:    record.PoolID,
			Owner:     record.Owner,
			Recipient: record.Recipient,
			Token:     token.Hex(),
			Amount:    amount.String(),
			Timestamp: record.Timestamp,
			Seq:       record.Seq,
		})
	}
}

// flush snapshots engine state and pending claim rows, then checkpoints.
func (r *Replayer) flush(ctx context.Context) error {
	if r.store != nil {
		at := time.Now().UTC()
		if err := r.store.UpsertPoolStates(ctx, r.engine.SnapshotPoolStates(at)); err != nil {
			return fmt.Errorf("upsert pool states: %w", err)
		}
		if err := r.store.UpsertPositions(ctx, r.engine.SnapshotPositions(at)); err != nil {
			return fmt.Errorf("upsert positions: %w", err)
		}
		if err := r.store.UpsertStreams(ctx, r.engine.SnapshotStreams(at)); err != nil {
			return fmt.Errorf("upsert streams: %w", err)
		}
		if err := r.store.InsertClaims(ctx, r.claims); err != nil {
			return fmt.Errorf("insert claims: %w", err)
		}
	}
	r.claims = r.claims[:0]

	if r.cfg.StateStore != nil && r.lastSeq > 0 {
		if err := r.cfg.StateStore.Save(ctx, r.lastSeq); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
	}
	return nil
}

func positionKey(record model.ActionRecord, poolID model.PoolID) model.PositionKey {
	return model.DerivePositionKey(common.HexToAddress(record.Owner), poolID,
		record.TickLower, record.TickUpper, parseSalt(record.Salt))
}

func parseSalt(s string) [32]byte {
	return common.HexToHash(s)
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", s)
	}
	return amount, nil
}
