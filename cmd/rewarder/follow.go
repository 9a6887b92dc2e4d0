package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rewardScope/internal/chain"
	"rewardScope/internal/config"
	"rewardScope/internal/follow"
	"rewardScope/internal/model"
	"rewardScope/internal/replay"
	"rewardScope/internal/storage"
)

func runFollow(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFollow(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}

	bindings, err := parsePoolBindings(cfg.Pools)
	if err != nil {
		return err
	}
	if len(bindings) == 0 {
		return fmt.Errorf("at least one pool binding is required")
	}

	authority, depositor, err := parseParties(cfg.Authority, cfg.Depositor)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	journal := storage.NewJsonlJournal(cfg.Journal)
	engine := replay.NewEngine(authority, depositor, logger)

	follower, err := follow.NewFollower(follow.RunConfig{
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		Pools:             bindings,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, chainClient, journal, engine, logger)
	if err != nil {
		return err
	}

	logger.Info("follow start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("chain_id", chainID.String()),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Int("pools", len(bindings)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("journal", cfg.Journal),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	return follower.Run(ctx)
}

// parsePoolBindings parses address=poolID:rewardToken:tickSpacing entries.
func parsePoolBindings(pools map[string]string) ([]follow.PoolBinding, error) {
	bindings := make([]follow.PoolBinding, 0, len(pools))
	for address, entry := range pools {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid pool binding %q: want poolID:rewardToken:tickSpacing", entry)
		}
		poolID, err := model.ParsePoolID(parts[0])
		if err != nil {
			return nil, err
		}
		if !common.IsHexAddress(parts[1]) {
			return nil, fmt.Errorf("invalid reward token address: %s", parts[1])
		}
		spacing, err := strconv.ParseInt(parts[2], 10, 32)
		if err != nil || spacing <= 0 {
			return nil, fmt.Errorf("invalid tick spacing: %s", parts[2])
		}
		bindings = append(bindings, follow.PoolBinding{
			Address:     address,
			PoolID:      poolID,
			RewardToken: common.HexToAddress(parts[1]).Hex(),
			TickSpacing: int32(spacing),
		})
	}
	return bindings, nil
}

func parseParties(authority, depositor string) (common.Address, common.Address, error) {
	if authority != "" && !common.IsHexAddress(authority) {
		return common.Address{}, common.Address{}, fmt.Errorf("invalid authority address: %s", authority)
	}
	if depositor != "" && !common.IsHexAddress(depositor) {
		return common.Address{}, common.Address{}, fmt.Errorf("invalid depositor address: %s", depositor)
	}
	return common.HexToAddress(authority), common.HexToAddress(depositor), nil
}
