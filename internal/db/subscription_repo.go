package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"stormwatch/internal/types"
)

// SubscriptionRepo manages standing alert subscriptions. Params is stored
// as JSONB via the types.SubscriptionParams Scan/Value implementations.
type SubscriptionRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewSubscriptionRepo creates a SubscriptionRepo backed by the given
// database connection (pool or transaction).
func NewSubscriptionRepo(db DBTX, logger *slog.Logger) *SubscriptionRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionRepo{db: db, logger: logger}
}

const subscriptionColumns = `id, user_id, name, mode, params, min_ratio,
	repeat_offender_threshold, impaired_only, schedule, delivery, active,
	last_run_at, created_at`

func scanSubscription(row pgx.Row) (*types.Subscription, error) {
	var s types.Subscription
	err := row.Scan(
		&s.ID, &s.UserID, &s.Name, &s.Mode, &s.Params, &s.MinRatio,
		&s.RepeatOffenderThreshold, &s.ImpairedOnly, &s.Schedule,
		&s.Delivery, &s.Active, &s.LastRunAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Get returns one subscription by ID.
func (r *SubscriptionRepo) Get(ctx context.Context, id string) (*types.Subscription, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`,
		id,
	)
	s, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load subscription", err)
	}
	return s, nil
}

// ListDue returns active subscriptions whose schedule makes them due at
// now: daily ones not run in the last 24 hours, weekly in the last 7 days.
// Never-run subscriptions are always due.
func (r *SubscriptionRepo) ListDue(ctx context.Context, now time.Time) ([]types.Subscription, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE active
		   AND (last_run_at IS NULL
		        OR (schedule = 'DAILY' AND last_run_at <= $1 - INTERVAL '24 hours')
		        OR (schedule = 'WEEKLY' AND last_run_at <= $1 - INTERVAL '7 days'))
		 ORDER BY created_at`,
		now,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list due subscriptions", err)
	}
	defer rows.Close()

	var out []types.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan subscription row", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "subscription row iteration failed", err)
	}
	return out, nil
}

// UpdateLastRunAt advances a subscription's run cursor. Called after every
// completed run, including runs that matched nothing, so each window is
// evaluated exactly once.
func (r *SubscriptionRepo) UpdateLastRunAt(ctx context.Context, id string, runAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions SET last_run_at = $1 WHERE id = $2`,
		runAt, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update subscription run cursor", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
	}
	return nil
}
