package violations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"stormwatch/internal/types"
)

// fakeFacilityStore is an in-memory FacilityStore tracking upsert calls.
type fakeFacilityStore struct {
	mu      sync.Mutex
	byID    map[string]*types.Facility
	upserts int
}

func newFakeFacilityStore() *fakeFacilityStore {
	return &fakeFacilityStore{byID: make(map[string]*types.Facility)}
}

func (s *fakeFacilityStore) UpsertBySourceID(_ context.Context, sourceID, name string, seenAt time.Time) (*types.Facility, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if f, ok := s.byID[sourceID]; ok {
		return f, nil
	}
	f := &types.Facility{
		ID:             "fac_" + sourceID,
		SourceID:       sourceID,
		Name:           name,
		ReceivingWater: types.WaterFreshwater,
		LastSeenAt:     seenAt,
	}
	s.byID[sourceID] = f
	return f, nil
}

// fakeEventStore simulates the event/sample upsert semantics of the real
// repo: events unique per (facility, pollutant, year), sample rows unique
// per (sample, benchmark), counts derived from sample rows.
type fakeEventStore struct {
	mu      sync.Mutex
	events  map[string]string              // facility|pollutant|year -> event id
	samples map[string]string              // sample|benchmark -> event id
	counts  map[string]int                 // event id -> recomputed count
	fail    map[string]error               // method name -> forced error
	nextID  int
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{
		events:  make(map[string]string),
		samples: make(map[string]string),
		counts:  make(map[string]int),
		fail:    make(map[string]error),
	}
}

func (s *fakeEventStore) UpsertEvent(_ context.Context, facilityID string, d types.Detection, _ bool) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail["UpsertEvent"]; err != nil {
		return "", false, err
	}
	key := fmt.Sprintf("%s|%s|%d", facilityID, d.PollutantKey, d.DetectedAt.Year())
	if id, ok := s.events[key]; ok {
		return id, false, nil
	}
	s.nextID++
	id := fmt.Sprintf("ve_%d", s.nextID)
	s.events[key] = id
	return id, true, nil
}

func (s *fakeEventStore) InsertSampleRecord(_ context.Context, eventID, _ string, d types.Detection) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := d.SampleID + "|" + d.BenchmarkID
	if _, ok := s.samples[key]; ok {
		return false, nil
	}
	s.samples[key] = eventID
	return true, nil
}

func (s *fakeEventStore) RecountEvent(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range s.samples {
		if id == eventID {
			n++
		}
	}
	s.counts[eventID] = n
	return nil
}

func detection(sampleID, sourceID, pollutant string, at time.Time, ratio float64) types.Detection {
	return types.Detection{
		SampleID:         sampleID,
		FacilitySourceID: sourceID,
		FacilityName:     "Facility " + sourceID,
		PollutantKey:     pollutant,
		BenchmarkID:      "bm_" + pollutant,
		BenchmarkType:    types.BenchmarkAnnualNAL,
		MeasuredValue:    ratio,
		BenchmarkValue:   1,
		NormalizedUnit:   "mg/L",
		ExceedanceRatio:  ratio,
		Severity:         types.SeverityForRatio(ratio),
		DetectedAt:       at,
	}
}

func TestAggregatorGroupsByFacilityPollutantYear(t *testing.T) {
	facilities := newFakeFacilityStore()
	events := newFakeEventStore()
	agg := NewAggregator(events, NewRunCache(facilities), nil)

	march := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	april := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	res, err := agg.Apply(context.Background(), []types.Detection{
		detection("smp_1", "src-1", "copper", march, 1.5),
		detection("smp_2", "src-1", "copper", april, 3.65),
		detection("smp_3", "src-1", "zinc", march, 2.2),
		detection("smp_4", "src-2", "copper", march, 6.0),
	})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	if res.EventsCreated != 3 {
		t.Errorf("EventsCreated = %d, want 3", res.EventsCreated)
	}
	if res.EventsUpdated != 1 {
		t.Errorf("EventsUpdated = %d, want 1", res.EventsUpdated)
	}
	if res.RecordsCreated != 4 {
		t.Errorf("RecordsCreated = %d, want 4", res.RecordsCreated)
	}

	// The two copper detections at src-1 share one event with count 2.
	copperEvent := events.events["fac_src-1|copper|2025"]
	if copperEvent == "" {
		t.Fatal("missing copper event for src-1")
	}
	if got := events.counts[copperEvent]; got != 2 {
		t.Errorf("copper event count = %d, want 2", got)
	}
}

func TestAggregatorSplitsReportingYears(t *testing.T) {
	facilities := newFakeFacilityStore()
	events := newFakeEventStore()
	agg := NewAggregator(events, NewRunCache(facilities), nil)

	dec := time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC)
	jan := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	res, err := agg.Apply(context.Background(), []types.Detection{
		detection("smp_1", "src-1", "copper", dec, 2.0),
		detection("smp_2", "src-1", "copper", jan, 2.0),
	})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if res.EventsCreated != 2 {
		t.Errorf("detections in different years should create separate events, got %d", res.EventsCreated)
	}
}

func TestAggregatorRerunIsIdempotent(t *testing.T) {
	facilities := newFakeFacilityStore()
	events := newFakeEventStore()
	agg := NewAggregator(events, NewRunCache(facilities), nil)

	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	batch := []types.Detection{
		detection("smp_1", "src-1", "copper", at, 1.5),
		detection("smp_2", "src-1", "copper", at, 3.65),
	}

	if _, err := agg.Apply(context.Background(), batch); err != nil {
		t.Fatalf("first Apply error: %v", err)
	}

	// Fresh cache, same detections: nothing new is created.
	rerun := NewAggregator(events, NewRunCache(facilities), nil)
	res, err := rerun.Apply(context.Background(), batch)
	if err != nil {
		t.Fatalf("second Apply error: %v", err)
	}
	if res.EventsCreated != 0 {
		t.Errorf("rerun EventsCreated = %d, want 0", res.EventsCreated)
	}
	if res.RecordsCreated != 0 {
		t.Errorf("rerun RecordsCreated = %d, want 0", res.RecordsCreated)
	}

	eventID := events.events["fac_src-1|copper|2025"]
	if got := events.counts[eventID]; got != 2 {
		t.Errorf("count after rerun = %d, want 2", got)
	}
}

func TestAggregatorCachesFacilityLookups(t *testing.T) {
	facilities := newFakeFacilityStore()
	events := newFakeEventStore()
	agg := NewAggregator(events, NewRunCache(facilities), nil)

	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	var batch []types.Detection
	for i := 0; i < 10; i++ {
		batch = append(batch, detection(fmt.Sprintf("smp_%d", i), "src-1", "copper", at, 2.0))
	}

	if _, err := agg.Apply(context.Background(), batch); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if facilities.upserts != 1 {
		t.Errorf("facility upserts = %d, want 1", facilities.upserts)
	}
}

func TestAggregatorStopsOnStoreError(t *testing.T) {
	facilities := newFakeFacilityStore()
	events := newFakeEventStore()
	events.fail["UpsertEvent"] = errors.New("db down")
	agg := NewAggregator(events, NewRunCache(facilities), nil)

	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := agg.Apply(context.Background(), []types.Detection{
		detection("smp_1", "src-1", "copper", at, 2.0),
	})
	if err == nil {
		t.Fatal("expected store error to propagate")
	}
}

func TestAggregatorHonorsContextCancellation(t *testing.T) {
	facilities := newFakeFacilityStore()
	events := newFakeEventStore()
	agg := NewAggregator(events, NewRunCache(facilities), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := agg.Apply(ctx, []types.Detection{
		detection("smp_1", "src-1", "copper", at, 2.0),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
