// Package violations folds scored detections into persistent violation
// events and their contributing sample records.
package violations

import (
	"context"
	"sync"
	"time"

	"stormwatch/internal/types"
)

// FacilityStore is the facility persistence surface the aggregator needs.
// Implemented by db.FacilityRepo.
type FacilityStore interface {
	UpsertBySourceID(ctx context.Context, sourceID, name string, seenAt time.Time) (*types.Facility, error)
}

// RunCache memoizes facility lookups for the duration of one scoring run.
// Entries are append-only: a facility resolved once is reused for every
// later sample in the run, so large batches do not hammer the facilities
// table with repeated upserts.
type RunCache struct {
	store FacilityStore

	mu         sync.Mutex
	facilities map[string]*types.Facility
}

// NewRunCache creates an empty cache over the given store.
func NewRunCache(store FacilityStore) *RunCache {
	return &RunCache{
		store:      store,
		facilities: make(map[string]*types.Facility),
	}
}

// Facility resolves a facility by monitoring-source ID, creating it on
// first sight. Newly created facilities carry placeholder coordinates and
// default receiving water until the enrichment job fills them in.
func (c *RunCache) Facility(ctx context.Context, sourceID, name string, seenAt time.Time) (*types.Facility, error) {
	c.mu.Lock()
	if f, ok := c.facilities[sourceID]; ok {
		c.mu.Unlock()
		return f, nil
	}
	c.mu.Unlock()

	f, err := c.store.UpsertBySourceID(ctx, sourceID, name, seenAt)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	// Another goroutine may have won the race; keep the first entry.
	if existing, ok := c.facilities[sourceID]; ok {
		f = existing
	} else {
		c.facilities[sourceID] = f
	}
	c.mu.Unlock()
	return f, nil
}

// Len returns the number of cached facilities.
func (c *RunCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.facilities)
}
