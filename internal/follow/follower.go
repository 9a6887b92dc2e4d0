package follow

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"rewardScope/internal/chain"
	"rewardScope/internal/dex"
	"rewardScope/internal/model"
	"rewardScope/internal/rewards"
	"rewardScope/internal/storage"
)

// RunConfig holds runtime settings for the follower.
type RunConfig struct {
	FromBlock         uint64
	ToBlock           uint64
	Pools             []PoolBinding
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// Follower streams pool events from the chain, journals them as action
// records, and mirrors them into the reward engine.
type Follower struct {
	cfg        RunConfig
	chain      *chain.Client
	decoder    *dex.V3PoolDecoder
	journal    storage.Journal
	engine     *rewards.Distributor
	logger     *zap.Logger
	seen       map[string]struct{}
	checkpoint *CheckpointStore
	bindings   map[common.Address]PoolBinding
	seq        uint64
}

// NewFollower builds a Follower with its dependencies.
func NewFollower(cfg RunConfig, chainClient *chain.Client, journal storage.Journal, engine *rewards.Distributor, logger *zap.Logger) (*Follower, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	decoder, err := dex.NewV3PoolDecoder()
	if err != nil {
		return nil, err
	}

	bindings := make(map[common.Address]PoolBinding, len(cfg.Pools))
	for _, binding := range cfg.Pools {
		if !common.IsHexAddress(binding.Address) {
			return nil, fmt.Errorf("invalid pool address: %s", binding.Address)
		}
		bindings[common.HexToAddress(binding.Address)] = binding
	}

	return &Follower{
		cfg:        cfg,
		chain:      chainClient,
		decoder:    decoder,
		journal:    journal,
		engine:     engine,
		logger:     logger,
		seen:       make(map[string]struct{}),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
		bindings:   bindings,
	}, nil
}

// Run executes the follow loop over the configured block range.
func (f *Follower) Run(ctx context.Context) error {
	if f.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if f.journal == nil {
		return fmt.Errorf("journal is nil")
	}
	if f.engine == nil {
		return fmt.Errorf("engine is nil")
	}
	if f.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if len(f.bindings) == 0 {
		return fmt.Errorf("at least one pool binding is required")
	}

	from := f.cfg.FromBlock
	to := f.cfg.ToBlock
	if to == 0 {
		latest, err := f.chain.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	resumed := false
	if f.checkpoint != nil {
		cp, ok, err := f.checkpoint.Load()
		if err != nil {
			return err
		}
		if ok && cp.LastProcessedBlock >= from {
			from = cp.LastProcessedBlock + 1
			f.seq = cp.LastSeq
			resumed = true
			f.logger.Info("resume from checkpoint",
				zap.Uint64("last_processed", cp.LastProcessedBlock),
				zap.Uint64("last_seq", cp.LastSeq),
				zap.Uint64("from", from),
			)
		}
	}

	if from > to {
		f.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	if err := f.registerPools(ctx, from, !resumed); err != nil {
		return err
	}

	ranges, err := SplitRange(from, to, f.cfg.BatchSize)
	if err != nil {
		return err
	}

	addresses := make([]common.Address, 0, len(f.bindings))
	for addr := range f.bindings {
		addresses = append(addresses, addr)
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		f.logger.Info("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

		logs, err := f.filterLogsWithRetry(ctx, blockRange.From, blockRange.To, addresses)
		if err != nil {
			return fmt.Errorf("filter logs: %w", err)
		}

		ingestedAt := time.Now().UTC()
		records := make([]model.ActionRecord, 0, len(logs))
		for _, log := range logs {
			if log.Removed || f.isDuplicate(log) {
				continue
			}
			binding, ok := f.bindings[log.Address]
			if !ok {
				continue
			}

			ts, err := f.blockTimestampWithRetry(ctx, log.BlockNumber)
			if err != nil {
				return fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}

			record, ok := f.transformLog(binding, log, ts, ingestedAt)
			if !ok {
				continue
			}
			records = append(records, record)
		}

		if err := f.journal.AppendActions(records); err != nil {
			return fmt.Errorf("journal actions: %w", err)
		}

		if f.checkpoint != nil {
			if err := f.checkpoint.Save(blockRange.To, f.seq); err != nil {
				return err
			}
		}

		f.logger.Info("batch complete",
			zap.Int("actions", len(records)),
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
		)
	}

	return nil
}

// registerPools seeds the engine with every bound pool at the follow start
// timestamp. Records are journaled only on a fresh start; a resumed run
// already journaled them.
func (f *Follower) registerPools(ctx context.Context, fromBlock uint64, journal bool) error {
	ts, err := f.blockTimestampWithRetry(ctx, fromBlock)
	if err != nil {
		return fmt.Errorf("start block timestamp: %w", err)
	}

	ingestedAt := time.Now().UTC()
	records := make([]model.ActionRecord, 0, len(f.bindings))
	for _, binding := range f.bindings {
		if err := f.engine.RegisterPool(ts, binding.PoolID,
			common.HexToAddress(binding.RewardToken), binding.TickSpacing, 0); err != nil {
			return fmt.Errorf("register pool %s: %w", binding.PoolID.Hex(), err)
		}
		if journal {
			f.seq++
			records = append(records, registerRecord(f.seq, ts, binding, ingestedAt))
		}
	}

	if len(records) > 0 {
		if err := f.journal.AppendActions(records); err != nil {
			return fmt.Errorf("journal pool registrations: %w", err)
		}
	}
	return nil
}

// transformLog decodes one log, applies it to the engine, and renders the
// journal record. Engine rejections are logged and skipped; the journal keeps
// the record either way so a replay sees the same stream.
func (f *Follower) transformLog(binding PoolBinding, log types.Log, ts uint64, ingestedAt time.Time) (model.ActionRecord, bool) {
	if len(log.Topics) == 0 {
		return model.ActionRecord{}, false
	}
	name, ok := f.decoder.EventName(log.Topics[0])
	if !ok {
		return model.ActionRecord{}, false
	}

	switch name {
	case "Swap":
		swap, err := f.decoder.DecodeSwap(log)
		if err != nil {
			f.logger.Warn("decode swap", zap.Error(err), zap.Uint64("block", log.BlockNumber))
			return model.ActionRecord{}, false
		}
		f.seq++
		record := pokeRecord(f.seq, ts, binding, swap, log, ingestedAt)
		if err := f.engine.PokePool(ts, binding.PoolID, swap.Tick); err != nil {
			f.logger.Warn("apply poke", zap.Error(err), zap.String("pool", binding.PoolID.Hex()))
		}
		return record, true

	case "Mint":
		mint, err := f.decoder.DecodeMint(log)
		if err != nil {
			f.logger.Warn("decode mint", zap.Error(err), zap.Uint64("block", log.BlockNumber))
			return model.ActionRecord{}, false
		}
		f.seq++
		record := subscribeRecord(f.seq, ts, binding, mint, log, ingestedAt)
		liquidity, ok := new(big.Int).SetString(mint.Amount, 10)
		if !ok || liquidity.Sign() <= 0 {
			return record, true
		}
		if _, err := f.engine.NotifySubscribe(ts, binding.PoolID,
			common.HexToAddress(mint.Owner), [32]byte{},
			mint.TickLower, mint.TickUpper, liquidity); err != nil {
			f.logger.Warn("apply subscribe", zap.Error(err), zap.String("pool", binding.PoolID.Hex()))
		}
		return record, true

	case "Burn":
		burn, err := f.decoder.DecodeBurn(log)
		if err != nil {
			f.logger.Warn("decode burn", zap.Error(err), zap.Uint64("block", log.BlockNumber))
			return model.ActionRecord{}, false
		}
		f.seq++
		record := burnRecord(f.seq, ts, binding, burn, log, ingestedAt)
		delta, ok := new(big.Int).SetString(strings.TrimPrefix(record.LiquidityDelta, "-"), 10)
		if !ok || delta.Sign() == 0 {
			return record, true
		}
		key := model.DerivePositionKey(common.HexToAddress(burn.Owner), binding.PoolID,
			burn.TickLower, burn.TickUpper, [32]byte{})
		if err := f.engine.NotifyModifyLiquidity(ts, key, delta.Neg(delta)); err != nil {
			f.logger.Warn("apply burn", zap.Error(err), zap.String("pool", binding.PoolID.Hex()))
		}
		return record, true

	default:
		return model.ActionRecord{}, false
	}
}

func (f *Follower) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, f.cfg.MaxRetries, f.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = f.chain.FilterLogs(ctx, fromBlock, toBlock, addresses, f.decoder.Topics())
		if err != nil {
			f.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (f *Follower) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, f.cfg.MaxRetries, f.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = f.chain.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			f.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

func (f *Follower) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := f.seen[id]; ok {
		return true
	}
	f.seen[id] = struct{}{}
	return false
}
