package db

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"stormwatch/internal/types"
)

// RunRepo persists scoring run records for operational history.
type RunRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewRunRepo creates a RunRepo backed by the given database connection
// (pool or transaction).
func NewRunRepo(db DBTX, logger *slog.Logger) *RunRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunRepo{db: db, logger: logger}
}

// Start inserts a new running record and returns its ID.
func (r *RunRepo) Start(ctx context.Context, startedAt time.Time) (string, error) {
	id := "run_" + uuid.New().String()
	_, err := r.db.Exec(ctx,
		`INSERT INTO score_runs (id, started_at, status, stats)
		 VALUES ($1, $2, 'running', '{}')`,
		id, startedAt,
	)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to start run record", err)
	}
	return id, nil
}

// Finish stamps completion time, final status, and the stats JSONB.
func (r *RunRepo) Finish(ctx context.Context, runID, status string, stats types.RunStats, completedAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE score_runs
		 SET completed_at = $1, status = $2, stats = $3
		 WHERE id = $4`,
		completedAt, status, stats, runID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish run record", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "run record not found", nil)
	}
	return nil
}
