package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rewardScope/internal/config"
	"rewardScope/internal/replay"
	"rewardScope/internal/server"
	"rewardScope/internal/storage/postgres"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
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

	authority, depositor, err := parseParties(cfg.Authority, cfg.Depositor)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *postgres.Store
	if cfg.PGDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
	}

	var stateStore replay.StateStore
	if cfg.StateFile != "" {
		stateStore = &replay.FileStateStore{Path: cfg.StateFile}
	}

	engine := replay.NewEngine(authority, depositor, logger)
	replayer := replay.NewReplayer(replay.Config{
		StateStore: stateStore,
	}, engine, store, logger)

	logger.Info("loading journal", zap.String("input", cfg.Input))
	if err := replayer.Run(ctx, cfg.Input); err != nil {
		return fmt.Errorf("replay journal: %w", err)
	}

	s := server.New(engine, logger)
	s.SetProgress(replayer.LastSeq(), replayer.LastTimestamp())

	logger.Info("serve start",
		zap.String("listen", cfg.Listen),
		zap.Uint64("last_seq", replayer.LastSeq()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(cfg.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := s.ShutdownWithTimeout(10 * time.Second); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
