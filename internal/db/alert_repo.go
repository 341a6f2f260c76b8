package db

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"stormwatch/internal/types"
)

// AlertRepo records delivery-eligible (subscription, violation) pairs.
// The table is the idempotence ledger for alert runs: a pair that already
// has a row is never dispatched again.
type AlertRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewAlertRepo creates an AlertRepo backed by the given database
// connection (pool or transaction).
func NewAlertRepo(db DBTX, logger *slog.Logger) *AlertRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertRepo{db: db, logger: logger}
}

// Exists reports whether the (subscription, violation) pair already has
// a ledger row.
func (r *AlertRepo) Exists(ctx context.Context, subscriptionID, violationEventID string) (bool, error) {
	var found bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		    SELECT 1 FROM alerts
		    WHERE subscription_id = $1 AND violation_event_id = $2)`,
		subscriptionID, violationEventID,
	).Scan(&found)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check alert ledger", err)
	}
	return found, nil
}

// Record inserts the alert row, returning false when the (subscription,
// violation) pair was already alerted.
func (r *AlertRepo) Record(ctx context.Context, subscriptionID, violationEventID, facilityID string, sentAt time.Time) (bool, error) {
	id := "al_" + uuid.New().String()
	tag, err := r.db.Exec(ctx,
		`INSERT INTO alerts (id, subscription_id, violation_event_id,
		    facility_id, sent_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (subscription_id, violation_event_id) DO NOTHING`,
		id, subscriptionID, violationEventID, facilityID, sentAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to record alert", err)
	}
	return tag.RowsAffected() > 0, nil
}
