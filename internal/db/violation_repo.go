package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"stormwatch/internal/types"
)

// ViolationRepo manages violation events and their contributing sample
// records.
//
// Key invariants:
//   - Events are unique per (facility_id, pollutant_key, reporting_year)
//     and grow monotonically: dates only widen, max_ratio and max_severity
//     only increase. Rescoring the same samples is a no-op.
//   - dismissed is a manual reviewer flag and is never written by upserts.
//   - Sample records are unique per (sample_id, benchmark_id); duplicates
//     are silently dropped so reruns cannot inflate counts.
type ViolationRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewViolationRepo creates a ViolationRepo backed by the given database
// connection (pool or transaction).
func NewViolationRepo(db DBTX, logger *slog.Logger) *ViolationRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &ViolationRepo{db: db, logger: logger}
}

// UpsertEvent folds one detection into the event for its (facility,
// pollutant, reporting year) slot, creating the event if absent. Returns
// the event ID and whether a new row was created.
//
// The severity CASE mirrors types.Severity.Rank so the stored maximum can
// never regress, and dismissed is deliberately absent from the SET list.
func (r *ViolationRepo) UpsertEvent(ctx context.Context, facilityID string, d types.Detection, impaired bool) (string, bool, error) {
	id := "ve_" + uuid.New().String()
	detected := d.DetectedAt.UTC()

	var eventID string
	var inserted bool
	err := r.db.QueryRow(ctx,
		`INSERT INTO violation_events (id, facility_id, pollutant_key,
		    reporting_year, first_date, last_date, count, max_ratio,
		    max_severity, impaired_water, dismissed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5, 0, $6, $7, $8, FALSE, NOW(), NOW())
		 ON CONFLICT (facility_id, pollutant_key, reporting_year) DO UPDATE
		 SET first_date = LEAST(violation_events.first_date, EXCLUDED.first_date),
		     last_date = GREATEST(violation_events.last_date, EXCLUDED.last_date),
		     max_ratio = GREATEST(violation_events.max_ratio, EXCLUDED.max_ratio),
		     max_severity = CASE
		         WHEN CASE EXCLUDED.max_severity
		                  WHEN 'CRITICAL' THEN 4 WHEN 'HIGH' THEN 3
		                  WHEN 'MODERATE' THEN 2 ELSE 1 END
		            > CASE violation_events.max_severity
		                  WHEN 'CRITICAL' THEN 4 WHEN 'HIGH' THEN 3
		                  WHEN 'MODERATE' THEN 2 ELSE 1 END
		         THEN EXCLUDED.max_severity
		         ELSE violation_events.max_severity END,
		     impaired_water = EXCLUDED.impaired_water,
		     updated_at = NOW()
		 RETURNING id, (xmax = 0)`,
		id, facilityID, d.PollutantKey, detected.Year(), detected,
		d.ExceedanceRatio, d.Severity, impaired,
	).Scan(&eventID, &inserted)
	if err != nil {
		return "", false, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert violation event", err)
	}
	return eventID, inserted, nil
}

// InsertSampleRecord writes one violation sample row. Returns false when
// the (sample_id, benchmark_id) pair already exists.
func (r *ViolationRepo) InsertSampleRecord(ctx context.Context, eventID, facilityID string, d types.Detection) (bool, error) {
	id := "vs_" + uuid.New().String()
	tag, err := r.db.Exec(ctx,
		`INSERT INTO violation_samples (id, violation_event_id, facility_id,
		    sample_id, benchmark_id, pollutant_key, detected_at,
		    measured_value, benchmark_value, unit, exceedance_ratio,
		    severity, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
		 ON CONFLICT (sample_id, benchmark_id) DO NOTHING`,
		id, eventID, facilityID, d.SampleID, d.BenchmarkID, d.PollutantKey,
		d.DetectedAt.UTC(), d.MeasuredValue, d.BenchmarkValue,
		d.NormalizedUnit, d.ExceedanceRatio, d.Severity, types.ReviewOpen,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to insert violation sample", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecountEvent recomputes an event's count from its violation sample rows.
// Deriving the count instead of incrementing it keeps reruns idempotent.
func (r *ViolationRepo) RecountEvent(ctx context.Context, eventID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE violation_events
		 SET count = (SELECT COUNT(*) FROM violation_samples
		              WHERE violation_event_id = $1),
		     updated_at = NOW()
		 WHERE id = $1`,
		eventID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to recount violation event", err)
	}
	return nil
}

// GetEvent loads a single event with its facility hydrated.
func (r *ViolationRepo) GetEvent(ctx context.Context, eventID string) (*types.ViolationEvent, error) {
	row := r.db.QueryRow(ctx, eventSelect+` WHERE e.id = $1`, eventID)
	e, err := scanEventWithFacility(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundViolation, "violation event not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load violation event", err)
	}
	return e, nil
}

// ListEventsSince returns non-dismissed events updated after the cutoff,
// facilities hydrated, most recently updated first. A zero cutoff returns
// all non-dismissed events.
func (r *ViolationRepo) ListEventsSince(ctx context.Context, since time.Time) ([]types.ViolationEvent, error) {
	rows, err := r.db.Query(ctx,
		eventSelect+`
		 WHERE NOT e.dismissed AND e.updated_at > $1
		 ORDER BY e.updated_at DESC`,
		since,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list violation events", err)
	}
	defer rows.Close()

	var out []types.ViolationEvent
	for rows.Next() {
		e, err := scanEventWithFacility(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan violation event row", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "violation event iteration failed", err)
	}
	return out, nil
}

// SetDismissed flips the reviewer dismissal flag, appending notes when
// provided. Dismissing an already dismissed event is a no-op.
func (r *ViolationRepo) SetDismissed(ctx context.Context, eventID string, dismissed bool, notes string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE violation_events
		 SET dismissed = $1,
		     notes = CASE WHEN $2 = '' THEN notes ELSE $2 END,
		     updated_at = NOW()
		 WHERE id = $3`,
		dismissed, notes, eventID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update dismissal", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundViolation, "violation event not found", nil)
	}
	return nil
}

// Stats aggregates non-dismissed events for the dashboard endpoint.
func (r *ViolationRepo) Stats(ctx context.Context) (*types.ViolationStats, error) {
	stats := &types.ViolationStats{
		BySeverity: make(map[types.Severity]int),
	}

	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE impaired_water)
		 FROM violation_events WHERE NOT dismissed`,
	).Scan(&stats.Total, &stats.ImpairedWater)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load violation totals", err)
	}

	stats.ByCounty, err = r.groupCounts(ctx,
		`SELECT COALESCE(f.county, 'Unknown'), COUNT(*)
		 FROM violation_events e
		 JOIN facilities f ON f.id = e.facility_id
		 WHERE NOT e.dismissed
		 GROUP BY 1 ORDER BY 2 DESC, 1`)
	if err != nil {
		return nil, err
	}

	stats.ByPollutant, err = r.groupCounts(ctx,
		`SELECT pollutant_key, COUNT(*)
		 FROM violation_events
		 WHERE NOT dismissed
		 GROUP BY 1 ORDER BY 2 DESC, 1`)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx,
		`SELECT max_severity, COUNT(*)
		 FROM violation_events
		 WHERE NOT dismissed
		 GROUP BY 1`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load severity counts", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sev types.Severity
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan severity count", err)
		}
		stats.BySeverity[sev] = n
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "severity count iteration failed", err)
	}

	return stats, nil
}

func (r *ViolationRepo) groupCounts(ctx context.Context, sql string) ([]types.GroupCount, error) {
	rows, err := r.db.Query(ctx, sql)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load grouped counts", err)
	}
	defer rows.Close()

	var out []types.GroupCount
	for rows.Next() {
		var gc types.GroupCount
		if err := rows.Scan(&gc.Label, &gc.Count); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan grouped count", err)
		}
		out = append(out, gc)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "grouped count iteration failed", err)
	}
	return out, nil
}

const eventSelect = `
	SELECT e.id, e.facility_id, e.pollutant_key, e.reporting_year,
	    e.first_date, e.last_date, e.count, e.max_ratio, e.max_severity,
	    e.impaired_water, e.dismissed, COALESCE(e.notes, ''),
	    e.created_at, e.updated_at,
	    f.id, f.source_id, f.name, f.latitude, f.longitude,
	    COALESCE(f.county, ''), COALESCE(f.watershed_huc12, ''),
	    COALESCE(f.ms4, ''), f.is_in_dac, f.receiving_water,
	    f.impaired_water, f.enriched_at, f.created_at, f.last_seen_at
	 FROM violation_events e
	 JOIN facilities f ON f.id = e.facility_id`

func scanEventWithFacility(row pgx.Row) (*types.ViolationEvent, error) {
	var e types.ViolationEvent
	var f types.Facility
	err := row.Scan(
		&e.ID, &e.FacilityID, &e.PollutantKey, &e.ReportingYear,
		&e.FirstDate, &e.LastDate, &e.Count, &e.MaxRatio, &e.MaxSeverity,
		&e.ImpairedWater, &e.Dismissed, &e.Notes, &e.CreatedAt, &e.UpdatedAt,
		&f.ID, &f.SourceID, &f.Name, &f.Location.Lat, &f.Location.Lon,
		&f.County, &f.WatershedHUC12, &f.MS4, &f.IsInDAC, &f.ReceivingWater,
		&f.ImpairedWater, &f.EnrichedAt, &f.CreatedAt, &f.LastSeenAt,
	)
	if err != nil {
		return nil, err
	}
	e.Facility = &f
	return &e, nil
}
