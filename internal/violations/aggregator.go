package violations

import (
	"context"
	"log/slog"

	"stormwatch/internal/types"
)

// EventStore is the violation persistence surface the aggregator needs.
// Implemented by db.ViolationRepo.
type EventStore interface {
	UpsertEvent(ctx context.Context, facilityID string, d types.Detection, impaired bool) (string, bool, error)
	InsertSampleRecord(ctx context.Context, eventID, facilityID string, d types.Detection) (bool, error)
	RecountEvent(ctx context.Context, eventID string) error
}

// ApplyResult summarizes one aggregation pass.
type ApplyResult struct {
	EventsCreated  int
	EventsUpdated  int
	RecordsCreated int
}

// Aggregator folds detections into violation events. All writes are
// idempotent: rerunning the same detections creates nothing new and leaves
// event counts unchanged.
type Aggregator struct {
	events EventStore
	cache  *RunCache
	logger *slog.Logger
}

// NewAggregator creates an Aggregator writing through the given store,
// resolving facilities through the run cache.
func NewAggregator(events EventStore, cache *RunCache, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{events: events, cache: cache, logger: logger}
}

// Apply persists a batch of detections. Each detection lands in the event
// for its (facility, pollutant, reporting year) slot; events touched by the
// batch get their counts recomputed once at the end, after all sample rows
// are in place.
func (a *Aggregator) Apply(ctx context.Context, detections []types.Detection) (ApplyResult, error) {
	var res ApplyResult
	touched := make(map[string]struct{})

	for _, d := range detections {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		facility, err := a.cache.Facility(ctx, d.FacilitySourceID, d.FacilityName, d.DetectedAt)
		if err != nil {
			return res, err
		}

		eventID, created, err := a.events.UpsertEvent(ctx, facility.ID, d, facility.ImpairedWater)
		if err != nil {
			return res, err
		}
		if created {
			res.EventsCreated++
		} else {
			res.EventsUpdated++
		}

		inserted, err := a.events.InsertSampleRecord(ctx, eventID, facility.ID, d)
		if err != nil {
			return res, err
		}
		if inserted {
			res.RecordsCreated++
		}

		touched[eventID] = struct{}{}
	}

	for eventID := range touched {
		if err := a.events.RecountEvent(ctx, eventID); err != nil {
			return res, err
		}
	}

	return res, nil
}
