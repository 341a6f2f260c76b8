// Package main is the entrypoint for the alert run.
//
// The alerter picks up subscriptions whose schedule is due, matches recent
// violation events against each subscription's gates, records every new
// (subscription, event) pair in the alert ledger, and hands the matched
// sets to the dispatch queue for the external notifier.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"stormwatch/internal/config"
	"stormwatch/internal/db"
	"stormwatch/internal/observability"
	"stormwatch/internal/queue"
	"stormwatch/internal/subscriptions"
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
	logger.Info("alerter starting", "environment", cfg.Environment)

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
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	subRepo := db.NewSubscriptionRepo(pool, logger)
	violationRepo := db.NewViolationRepo(pool, logger)
	alertRepo := db.NewAlertRepo(pool, logger)

	matcher := subscriptions.NewMatcher(logger)
	dispatcher := queue.NewDispatcher(sqsClient, cfg.AWS, logger)
	metrics := observability.NewRunMetrics(cwClient, cfg.AWS.MetricNamespace, cfg.Service, logger)

	runner := subscriptions.NewRunner(subscriptions.RunnerConfig{
		MaxViolationsPerMessage: cfg.Alerts.MaxViolationsPerMessage,
	}, subRepo, violationRepo, alertRepo, matcher, dispatcher, logger)

	result, err := runner.Run(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("alert run: %w", err)
	}

	metrics.PublishAlertsDispatched(ctx, result.AlertsRecorded)

	logger.Info("alerter finished",
		"run_id", result.RunID,
		"subscriptions_evaluated", result.SubscriptionsEvaluated,
		"subscriptions_with_match", result.SubscriptionsWithMatch,
		"alerts_recorded", result.AlertsRecorded,
		"messages_dispatched", result.MessagesDispatched,
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
