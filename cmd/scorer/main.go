// Package main is the entrypoint for the scoring job.
//
// The scorer walks the sample table in keyset batches, scores every sample
// against the applicable regulatory benchmarks, and folds the resulting
// exceedances into violation events. It is run on a schedule (cron or
// EventBridge rule) and is safe to re-run: aggregation is idempotent.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/jackc/pgx/v5/pgxpool"

	"stormwatch/internal/config"
	"stormwatch/internal/db"
	"stormwatch/internal/observability"
	"stormwatch/internal/scoring"
	"stormwatch/internal/violations"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("scorer starting",
		"environment", cfg.Environment,
		"batch_size", cfg.Scoring.BatchSize,
		"max_concurrency", cfg.Scoring.MaxConcurrency,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS SDK config: %w", err)
	}
	cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	facilityRepo := db.NewFacilityRepo(pool, logger)
	benchmarkRepo := db.NewBenchmarkRepo(pool, logger)
	sampleRepo := db.NewSampleRepo(pool, logger)
	violationRepo := db.NewViolationRepo(pool, logger)
	runRepo := db.NewRunRepo(pool, logger)

	cache := violations.NewRunCache(facilityRepo)
	aggregator := violations.NewAggregator(violationRepo, cache, logger)
	metrics := observability.NewRunMetrics(cwClient, cfg.AWS.MetricNamespace, cfg.Service, logger)

	pipeline := scoring.NewPipeline(scoring.Config{
		BatchSize:       cfg.Scoring.BatchSize,
		MaxConcurrency:  cfg.Scoring.MaxConcurrency,
		MaxErrors:       cfg.Scoring.MaxErrors,
		ContinueOnError: cfg.Scoring.ContinueOnError,
	}, sampleRepo, benchmarkRepo, cache, aggregator, runRepo, metrics, logger)

	stats, err := pipeline.Run(ctx)
	if err != nil {
		return fmt.Errorf("scoring run: %w", err)
	}

	logger.Info("scorer finished",
		"samples_processed", stats.SamplesProcessed,
		"violations_detected", stats.ViolationsDetected,
		"events_created", stats.EventsCreated,
		"events_updated", stats.EventsUpdated,
		"errors", stats.ErrorCount,
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
