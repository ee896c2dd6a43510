package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"panofuse/internal/backend"
	"panofuse/internal/cli"
	"panofuse/internal/config"
	"panofuse/internal/cvbridge"
	"panofuse/internal/logging"
	"panofuse/internal/pipeline"
	"panofuse/internal/storage"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "panofuse:", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is the common case.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Paths.DatabasePath), 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	store, err := storage.New(cfg.Paths.DatabasePath)
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer store.Close()

	registry := backend.New(logger)
	cvbridge.Register(registry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipe := pipeline.New(ctx, cfg, logger, store, registry)
	defer pipe.Stop()

	return cli.NewRootCmd(cfg, logger, store, pipe, registry).ExecuteContext(ctx)
}
