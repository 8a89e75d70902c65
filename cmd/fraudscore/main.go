// fraudscore - Transaction fraud scoring with a durable decision trail.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/fraudscore/internal/api"
	"github.com/opensource-finance/fraudscore/internal/audit"
	"github.com/opensource-finance/fraudscore/internal/bus"
	"github.com/opensource-finance/fraudscore/internal/cache"
	"github.com/opensource-finance/fraudscore/internal/config"
	"github.com/opensource-finance/fraudscore/internal/domain"
	"github.com/opensource-finance/fraudscore/internal/features"
	"github.com/opensource-finance/fraudscore/internal/model"
	"github.com/opensource-finance/fraudscore/internal/repository"
	"github.com/opensource-finance/fraudscore/internal/scoring"
	"github.com/opensource-finance/fraudscore/internal/stats"
	"github.com/opensource-finance/fraudscore/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Bootstrap logger until the configured one is available.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		fatal("failed to load configuration", err)
	}

	slog.SetDefault(config.NewLogger(cfg.Logging, os.Stdout))

	slog.Info("starting fraudscore",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"review_threshold", cfg.Scoring.ReviewThreshold,
		"block_threshold", cfg.Scoring.BlockThreshold,
		"audit_log", cfg.Audit.LogPath,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Startup artifacts. Any failure here is a ConfigurationError.
	schema, err := features.LoadSchema(cfg.Scoring.SchemaPath)
	if err != nil {
		fatal("failed to load feature schema", err)
	}
	slog.Info("feature schema loaded", "path", cfg.Scoring.SchemaPath, "features", schema.Len())

	scorer, err := model.Load(cfg.Scoring.ModelPath, schema)
	if err != nil {
		fatal("failed to load model", err)
	}
	slog.Info("model loaded", "path", cfg.Scoring.ModelPath, "kind", scorer.Kind())

	auditLog := audit.NewCSVLog(cfg.Audit.LogPath)

	// Repository (optional mirror)
	repo, err := repository.New(ctx, cfg.Repository)
	switch {
	case errors.Is(err, repository.ErrDisabled):
		repo = nil
		slog.Info("repository disabled")
	case err != nil:
		fatal("failed to initialize repository", err)
	default:
		defer repo.Close()
		slog.Info("repository initialized", "driver", cfg.Repository.Driver)
	}

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		fatal("failed to initialize cache", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		fatal("failed to initialize event bus", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	statsSvc := stats.NewService(cacheImpl, repo, cfg.Stats.Window)

	svc, err := scoring.New(scoring.Options{
		Schema: schema,
		Scorer: scorer,
		Policy: cfg.Scoring.Policy(),
		Log:    auditLog,
		Bus:    busImpl,
	})
	if err != nil {
		fatal("failed to initialize scoring service", err)
	}

	mirror := worker.NewWorker(busImpl, repo, statsSvc)
	if err := mirror.Start(); err != nil {
		fatal("failed to start mirror worker", err)
	}

	srv := api.NewServer(cfg.Server, api.Dependencies{
		Scoring:         svc,
		AuditPath:       auditLog.Path(),
		SummaryWindow:   cfg.Audit.SummaryWindow,
		SummaryCacheTTL: cfg.Audit.SummaryCacheTTL,
		Cache:           cacheImpl,
		Bus:             busImpl,
		Repository:      repo,
		Stats:           statsSvc,
		Worker:          mirror,
		Tracing:         cfg.Tracing.Enabled,
		Version:         Version,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	slog.Info("fraudscore is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	select {
	case <-ctx.Done():
		slog.Info("received shutdown signal")
	case err := <-serverErr:
		slog.Error("server failed", "error", err)
	}
	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop taking requests before the worker so late events are still mirrored.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if err := mirror.Stop(); err != nil {
		slog.Error("failed to stop mirror worker", "error", err)
	}

	slog.Info("fraudscore shutdown complete")
}

// fatal logs err and exits. Configuration errors are called out so that
// operators can tell a bad deployment from a runtime fault.
func fatal(msg string, err error) {
	var cfgErr *domain.ConfigurationError
	if errors.As(err, &cfgErr) {
		slog.Error(msg, "error", err, "field", cfgErr.Field, "kind", "configuration")
	} else {
		slog.Error(msg, "error", err)
	}
	os.Exit(1)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               FRAUDSCORE                  ║")
	fmt.Println("  ║      Transaction Fraud Scoring Engine     ║")
	fmt.Println("  ║    Every decision scored and recorded.    ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Policy:   review >= %g, block >= %g\n", cfg.Scoring.ReviewThreshold, cfg.Scoring.BlockThreshold)
	fmt.Printf("  Audit:    %s\n", cfg.Audit.LogPath)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /predict        - Score a transaction")
	fmt.Println("    GET  /health         - Liveness and thresholds")
	fmt.Println("    GET  /ready          - Dependency readiness")
	fmt.Println("    GET  /audit/summary  - Recent decision aggregates")
	fmt.Println("    GET  /stats          - Decision counts in the stats window")
	fmt.Println("    GET  /metrics        - Prometheus metrics")
	fmt.Println()
}
