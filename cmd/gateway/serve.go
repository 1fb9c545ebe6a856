// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/internal/log"
	"github.com/archestra-ai/gateway/internal/version"
	"github.com/archestra-ai/gateway/pkg/config"
	"github.com/archestra-ai/gateway/pkg/pricing"
	"github.com/archestra-ai/gateway/pkg/proxy"
	"github.com/archestra-ai/gateway/pkg/server"
	"github.com/archestra-ai/gateway/pkg/storage"
	"github.com/archestra-ai/gateway/pkg/storage/backend"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	Long: `Start the gateway HTTP server.

The server will:
- Open the interaction store (SQLite by default, Postgres via config)
- Proxy /v1/{provider}/... chat requests through the policy pipeline
- Pass every other provider path through transparently
- Hot-reload feature flags when the config file changes

Press Ctrl+C to gracefully shutdown.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	log.Info("starting gateway",
		zap.String("version", version.Get()),
		zap.String("addr", cfg.Server.Addr()),
		zap.String("config", cfg.File()),
		zap.String("storage", cfg.Storage.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := backend.New(ctx, backend.Config{Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN})
	if err != nil {
		return fmt.Errorf("opening storage backend: %w", err)
	}
	defer b.Close()
	if err := b.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating storage: %w", err)
	}
	store := storage.New(b)

	cleaner, err := storage.StartCleanup(store, cfg.Retention.Days, cfg.Retention.Schedule)
	if err != nil {
		return fmt.Errorf("starting retention cleanup: %w", err)
	}
	defer cleaner.Stop()

	watcher, err := config.Watch(cfg)
	if err != nil {
		return fmt.Errorf("watching config: %w", err)
	}
	defer watcher.Close()

	engine := pricing.New(store, store, nil, cfg.DefaultOrganization)
	handler := proxy.New(proxy.Deps{
		Agents:       &standaloneAgents{organization: cfg.DefaultOrganization},
		Interactions: store,
		Pricing:      engine,
		Features: func() proxy.Features {
			f := watcher.Features()
			return proxy.Features{
				ToonCompression: f.ToonCompression,
				DualLLM:         f.DualLLM,
				ImageConversion: f.ImageConversion,
			}
		},
		BaseURL: cfg.BaseURL,
	})

	srv := server.New(handler, cfg.Server.Addr(), log.Logger())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return <-errCh
}
