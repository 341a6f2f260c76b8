// Package main is the entrypoint for the facility enrichment job.
//
// The enricher loads the reference GeoJSON datasets (counties, HUC12
// watersheds, disadvantaged-community scores, MS4 boundaries), finds
// facilities that have not been spatially enriched yet, and assigns each
// one its jurisdiction attributes by point-in-polygon lookup.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"stormwatch/internal/config"
	"stormwatch/internal/db"
	"stormwatch/internal/enrichment"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	limit := flag.Int("limit", 500, "maximum facilities to enrich in one run")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("enricher starting", "environment", cfg.Environment, "limit", *limit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	facilityRepo := db.NewFacilityRepo(pool, logger)

	httpClient := &http.Client{Timeout: cfg.Geodata.FetchTimeout}
	datasets := enrichment.NewDatasetClient(cfg.Geodata, httpClient, logger)
	enricher := enrichment.NewEnricher(facilityRepo, datasets, cfg.Scoring.MaxConcurrency, logger)

	result, err := enricher.Run(ctx, *limit)
	if err != nil {
		return fmt.Errorf("enrichment run: %w", err)
	}

	logger.Info("enricher finished",
		"processed", result.Processed,
		"enriched", result.Enriched,
		"skipped", result.Skipped,
		"errors", result.Errors,
	)
	return nil
}

func newLogger(level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}
