package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rewardScope/internal/config"
	"rewardScope/internal/replay"
	"rewardScope/internal/storage/postgres"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	authority, depositor, err := parseParties(cfg.Authority, cfg.Depositor)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	var stateStore replay.StateStore
	if cfg.StateFile != "" {
		stateStore = &replay.FileStateStore{Path: cfg.StateFile}
	} else {
		stateStore = &replay.DBStateStore{Store: store, Name: "replayer"}
	}

	engine := replay.NewEngine(authority, depositor, logger)
	replayer := replay.NewReplayer(replay.Config{
		BatchSize:  cfg.BatchSize,
		ReplayFrom: cfg.ReplayFrom,
		StateStore: stateStore,
	}, engine, store, logger)

	logger.Info("replay start",
		zap.String("input", cfg.Input),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Uint64("replay_from", cfg.ReplayFrom),
	)

	return replayer.Run(ctx, cfg.Input)
}
