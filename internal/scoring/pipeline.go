// Package scoring orchestrates the sample scoring pipeline: load reference
// data, page through samples in fixed-size batches, score each sample
// against its applicable benchmarks, and fold detections into violation
// events.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"stormwatch/internal/benchmark"
	"stormwatch/internal/types"
	"stormwatch/internal/violations"
)

// SampleSource pages through samples in ID order. Implemented by
// db.SampleRepo.
type SampleSource interface {
	ListBatch(ctx context.Context, afterID string, limit int) ([]types.Sample, error)
}

// ReferenceSource loads the benchmark and pollutant reference tables.
// Implemented by db.BenchmarkRepo.
type ReferenceSource interface {
	ListBenchmarks(ctx context.Context) ([]types.Benchmark, error)
	ListPollutants(ctx context.Context) ([]types.Pollutant, error)
}

// RunRecorder persists run lifecycle records. Implemented by db.RunRepo.
type RunRecorder interface {
	Start(ctx context.Context, startedAt time.Time) (string, error)
	Finish(ctx context.Context, runID, status string, stats types.RunStats, completedAt time.Time) error
}

// MetricsPublisher emits run counters. Implemented by
// observability.RunMetrics.
type MetricsPublisher interface {
	PublishRunStats(ctx context.Context, stats types.RunStats)
}

// Config tunes one pipeline run.
type Config struct {
	// BatchSize is the number of samples fetched and scored per batch.
	BatchSize int
	// MaxConcurrency bounds concurrent sample scoring within a batch.
	MaxConcurrency int
	// MaxErrors aborts the run once this many sample-level errors have
	// accumulated. Zero means no limit.
	MaxErrors int
	// ContinueOnError keeps the run going past sample-level errors.
	ContinueOnError bool
}

// maxRecordedErrors bounds the error strings carried in RunStats; the
// total is always in ErrorCount.
const maxRecordedErrors = 20

// Pipeline wires the scoring run together. Batches are processed
// sequentially; samples within a batch are scored concurrently.
type Pipeline struct {
	cfg        Config
	samples    SampleSource
	reference  ReferenceSource
	cache      *violations.RunCache
	aggregator *violations.Aggregator
	runs       RunRecorder
	metrics    MetricsPublisher
	logger     *slog.Logger
}

// NewPipeline creates a Pipeline. runs and metrics may be nil, in which
// case run records and metrics are skipped.
func NewPipeline(cfg Config, samples SampleSource, reference ReferenceSource, cache *violations.RunCache, aggregator *violations.Aggregator, runs RunRecorder, metrics MetricsPublisher, logger *slog.Logger) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:        cfg,
		samples:    samples,
		reference:  reference,
		cache:      cache,
		aggregator: aggregator,
		runs:       runs,
		metrics:    metrics,
		logger:     logger,
	}
}

// Run executes one full scoring pass. The returned stats are valid even
// when err is non-nil, describing the work completed before the failure.
func (p *Pipeline) Run(ctx context.Context) (types.RunStats, error) {
	var stats types.RunStats
	startedAt := time.Now().UTC()

	matcher, err := p.loadMatcher(ctx)
	if err != nil {
		return stats, err
	}

	runID := ""
	if p.runs != nil {
		runID, err = p.runs.Start(ctx, startedAt)
		if err != nil {
			return stats, err
		}
	}

	runErr := p.score(ctx, matcher, &stats)

	status := "completed"
	if runErr != nil {
		status = "failed"
	}
	if p.runs != nil && runID != "" {
		if err := p.runs.Finish(ctx, runID, status, stats, time.Now().UTC()); err != nil {
			p.logger.Warn("failed to finish run record", "run_id", runID, "error", err.Error())
		}
	}
	if p.metrics != nil {
		p.metrics.PublishRunStats(ctx, stats)
	}

	p.logger.Info("scoring run finished",
		slog.String("run_id", runID),
		slog.String("status", status),
		slog.Int("samples", stats.SamplesProcessed),
		slog.Int("skipped", stats.SamplesSkipped),
		slog.Int("violations", stats.ViolationsDetected),
		slog.Int("events_created", stats.EventsCreated),
		slog.Int("errors", stats.ErrorCount),
	)
	return stats, runErr
}

// loadMatcher builds the run's benchmark matcher from the reference
// tables. Empty reference data is a fatal configuration error: scoring
// with no benchmarks would silently mark everything compliant.
func (p *Pipeline) loadMatcher(ctx context.Context) (*benchmark.Matcher, error) {
	pollutants, err := p.reference.ListPollutants(ctx)
	if err != nil {
		return nil, err
	}
	if len(pollutants) == 0 {
		return nil, types.NewAppError(types.ErrCodeConfigNoPollutants, "pollutant registry is empty", nil)
	}

	benchmarks, err := p.reference.ListBenchmarks(ctx)
	if err != nil {
		return nil, err
	}
	if len(benchmarks) == 0 {
		return nil, types.NewAppError(types.ErrCodeConfigNoBenchmarks, "no benchmarks loaded", nil)
	}

	return benchmark.NewMatcher(pollutants, benchmarks), nil
}

func (p *Pipeline) score(ctx context.Context, matcher *benchmark.Matcher, stats *types.RunStats) error {
	afterID := ""
	for {
		batch, err := p.samples.ListBatch(ctx, afterID, p.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		afterID = batch[len(batch)-1].ID

		detections, err := p.scoreBatch(ctx, matcher, batch, stats)
		if err != nil {
			return err
		}
		stats.ViolationsDetected += len(detections)

		res, err := p.aggregator.Apply(ctx, detections)
		stats.EventsCreated += res.EventsCreated
		stats.EventsUpdated += res.EventsUpdated
		stats.RecordsCreated += res.RecordsCreated
		if err != nil {
			return err
		}

		if p.cfg.MaxErrors > 0 && stats.ErrorCount >= p.cfg.MaxErrors {
			return types.NewAppError(types.ErrCodeInternalUnexpected,
				fmt.Sprintf("aborting run after %d sample errors", stats.ErrorCount), nil)
		}
	}
}

// scoreBatch scores one batch concurrently. Sample-level failures (all
// facility lookups; scoring itself cannot fail) are recorded and, under
// ContinueOnError, do not stop the batch.
func (p *Pipeline) scoreBatch(ctx context.Context, matcher *benchmark.Matcher, batch []types.Sample, stats *types.RunStats) ([]types.Detection, error) {
	var mu sync.Mutex
	var detections []types.Detection

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrency)

	for i := range batch {
		s := batch[i]
		g.Go(func() error {
			facility, err := p.cache.Facility(gctx, s.FacilitySourceID, s.FacilityName, s.SampledAt)
			if err != nil {
				mu.Lock()
				stats.ErrorCount++
				if len(stats.Errors) < maxRecordedErrors {
					stats.Errors = append(stats.Errors, fmt.Sprintf("sample %s: %v", s.ID, err))
				}
				mu.Unlock()
				if p.cfg.ContinueOnError {
					return nil
				}
				return err
			}

			dets, outcome := matcher.MatchAndScore(s, facility.ReceivingWater)

			mu.Lock()
			stats.SamplesProcessed++
			if outcome.Skip == benchmark.SkipNone {
				stats.SamplesWithBenchmark++
			} else {
				stats.SamplesSkipped++
			}
			detections = append(detections, dets...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return detections, err
	}
	return detections, nil
}
