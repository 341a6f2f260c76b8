package db

import (
	"context"
	"log/slog"

	"stormwatch/internal/types"
)

// SampleRepo reads monitoring samples for scoring. Samples are written by
// the ingestion collaborator; the pipeline never mutates them.
type SampleRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewSampleRepo creates a SampleRepo backed by the given database
// connection (pool or transaction).
func NewSampleRepo(db DBTX, logger *slog.Logger) *SampleRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SampleRepo{db: db, logger: logger}
}

// ListBatch returns up to limit samples with IDs strictly greater than
// afterID, in ID order. Passing the last ID of the previous batch pages
// through the full table deterministically even while new samples arrive.
func (r *SampleRepo) ListBatch(ctx context.Context, afterID string, limit int) ([]types.Sample, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, facility_source_id, facility_name, parameter, result,
		    unit, qualifier, sampled_at
		 FROM samples
		 WHERE id > $1
		 ORDER BY id
		 LIMIT $2`,
		afterID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list samples", err)
	}
	defer rows.Close()

	var out []types.Sample
	for rows.Next() {
		var s types.Sample
		if err := rows.Scan(
			&s.ID, &s.FacilitySourceID, &s.FacilityName, &s.Parameter,
			&s.Result, &s.Unit, &s.Qualifier, &s.SampledAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan sample row", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "sample row iteration failed", err)
	}
	return out, nil
}
