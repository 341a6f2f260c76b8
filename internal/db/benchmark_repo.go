package db

import (
	"context"
	"log/slog"

	"stormwatch/internal/types"
)

// BenchmarkRepo reads the reference tables: regulatory benchmarks and the
// pollutant alias registry. Both are seeded out of band and treated as
// read-only by the pipeline.
type BenchmarkRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewBenchmarkRepo creates a BenchmarkRepo backed by the given database
// connection (pool or transaction).
func NewBenchmarkRepo(db DBTX, logger *slog.Logger) *BenchmarkRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &BenchmarkRepo{db: db, logger: logger}
}

// ListBenchmarks returns every benchmark.
func (r *BenchmarkRepo) ListBenchmarks(ctx context.Context) ([]types.Benchmark, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, pollutant_key, benchmark_type, water_type, value,
		    value_max, unit, source, hardness_dependent,
		    COALESCE(hardness_equation, '')
		 FROM benchmarks
		 ORDER BY pollutant_key, benchmark_type`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list benchmarks", err)
	}
	defer rows.Close()

	var out []types.Benchmark
	for rows.Next() {
		var b types.Benchmark
		if err := rows.Scan(
			&b.ID, &b.PollutantKey, &b.Type, &b.WaterType, &b.Value,
			&b.ValueMax, &b.Unit, &b.Source, &b.HardnessDependent,
			&b.HardnessEquation,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan benchmark row", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "benchmark row iteration failed", err)
	}
	return out, nil
}

// ListPollutants returns the pollutant registry with alias lists.
func (r *BenchmarkRepo) ListPollutants(ctx context.Context) ([]types.Pollutant, error) {
	rows, err := r.db.Query(ctx,
		`SELECT key, aliases, canonical_unit, COALESCE(notes, '')
		 FROM pollutants
		 ORDER BY key`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list pollutants", err)
	}
	defer rows.Close()

	var out []types.Pollutant
	for rows.Next() {
		var p types.Pollutant
		if err := rows.Scan(&p.Key, &p.Aliases, &p.CanonicalUnit, &p.Notes); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan pollutant row", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "pollutant row iteration failed", err)
	}
	return out, nil
}
