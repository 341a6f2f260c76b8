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

// FacilityRepo manages the facilities table. Facilities are created lazily
// the first time a sample references an unknown source ID and are filled in
// later by the spatial enrichment job.
type FacilityRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewFacilityRepo creates a FacilityRepo backed by the given database
// connection (pool or transaction).
func NewFacilityRepo(db DBTX, logger *slog.Logger) *FacilityRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &FacilityRepo{db: db, logger: logger}
}

const facilityColumns = `id, source_id, name, latitude, longitude, county,
	watershed_huc12, ms4, is_in_dac, receiving_water, impaired_water,
	enriched_at, created_at, last_seen_at`

func scanFacility(row pgx.Row) (*types.Facility, error) {
	var f types.Facility
	var county, huc12, ms4 *string
	err := row.Scan(
		&f.ID, &f.SourceID, &f.Name, &f.Location.Lat, &f.Location.Lon,
		&county, &huc12, &ms4, &f.IsInDAC, &f.ReceivingWater,
		&f.ImpairedWater, &f.EnrichedAt, &f.CreatedAt, &f.LastSeenAt,
	)
	if err != nil {
		return nil, err
	}
	if county != nil {
		f.County = *county
	}
	if huc12 != nil {
		f.WatershedHUC12 = *huc12
	}
	if ms4 != nil {
		f.MS4 = *ms4
	}
	return &f, nil
}

// GetBySourceID returns the facility for a monitoring-source identifier.
func (r *FacilityRepo) GetBySourceID(ctx context.Context, sourceID string) (*types.Facility, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+facilityColumns+` FROM facilities WHERE source_id = $1`,
		sourceID,
	)
	f, err := scanFacility(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundFacility, "facility not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load facility", err)
	}
	return f, nil
}

// UpsertBySourceID creates the facility if the source ID is new, otherwise
// refreshes name and last_seen_at. The returned row reflects the stored
// state either way, so lazily created placeholders keep their existing
// enrichment on rerun.
func (r *FacilityRepo) UpsertBySourceID(ctx context.Context, sourceID, name string, seenAt time.Time) (*types.Facility, error) {
	id := "fac_" + uuid.New().String()
	row := r.db.QueryRow(ctx,
		`INSERT INTO facilities (id, source_id, name, latitude, longitude,
		    receiving_water, created_at, last_seen_at)
		 VALUES ($1, $2, $3, 0, 0, $4, NOW(), $5)
		 ON CONFLICT (source_id) DO UPDATE
		 SET name = EXCLUDED.name,
		     last_seen_at = GREATEST(facilities.last_seen_at, EXCLUDED.last_seen_at)
		 RETURNING `+facilityColumns,
		id, sourceID, name, types.WaterFreshwater, seenAt,
	)
	f, err := scanFacility(row)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert facility", err)
	}
	return f, nil
}

// ListUnenriched returns facilities with no spatial enrichment yet, oldest
// first, capped at limit.
func (r *FacilityRepo) ListUnenriched(ctx context.Context, limit int) ([]types.Facility, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+facilityColumns+`
		 FROM facilities
		 WHERE enriched_at IS NULL
		 ORDER BY created_at
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list unenriched facilities", err)
	}
	defer rows.Close()

	var out []types.Facility
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan facility row", err)
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "facility row iteration failed", err)
	}
	return out, nil
}

// UpdateEnrichment writes the spatial lookup results and stamps
// enriched_at.
func (r *FacilityRepo) UpdateEnrichment(ctx context.Context, f *types.Facility) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE facilities
		 SET county = NULLIF($1, ''),
		     watershed_huc12 = NULLIF($2, ''),
		     ms4 = NULLIF($3, ''),
		     is_in_dac = $4,
		     receiving_water = $5,
		     impaired_water = $6,
		     enriched_at = NOW()
		 WHERE id = $7`,
		f.County, f.WatershedHUC12, f.MS4, f.IsInDAC, f.ReceivingWater,
		f.ImpairedWater, f.ID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update facility enrichment", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundFacility, "facility not found", nil)
	}
	return nil
}

// UpdateLocation sets facility coordinates, used when the monitoring source
// later supplies real coordinates for a lazily created placeholder.
func (r *FacilityRepo) UpdateLocation(ctx context.Context, facilityID string, loc types.Point) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE facilities SET latitude = $1, longitude = $2 WHERE id = $3`,
		loc.Lat, loc.Lon, facilityID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update facility location", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundFacility, "facility not found", nil)
	}
	return nil
}
