package types

import (
	"time"
)

// Facility is a permitted industrial discharger. Coordinates and
// jurisdiction attributes are enriched once by the spatial lookup job and
// read by both benchmark water-type selection and subscription matching.
type Facility struct {
	ID       string `json:"id" db:"id"`
	SourceID string `json:"source_id" db:"source_id"` // permit / WDID from the monitoring source
	Name     string `json:"name" db:"name"`

	Location Point `json:"location" db:"-"`

	// Jurisdiction attributes (nullable until enriched).
	County         string    `json:"county,omitempty" db:"county"`
	WatershedHUC12 string    `json:"watershed_huc12,omitempty" db:"watershed_huc12"`
	MS4            string    `json:"ms4,omitempty" db:"ms4"`
	IsInDAC        bool      `json:"is_in_dac" db:"is_in_dac"`
	ReceivingWater WaterType `json:"receiving_water" db:"receiving_water"`
	ImpairedWater  bool      `json:"impaired_water" db:"impaired_water"`

	EnrichedAt *time.Time `json:"enriched_at,omitempty" db:"enriched_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	LastSeenAt time.Time  `json:"last_seen_at" db:"last_seen_at"`
}

// Sample is one laboratory measurement, owned by the ingestion collaborator
// and consumed read-only by the scorer. Result is nil for censored
// qualifiers (not detected, detected-not-quantified).
type Sample struct {
	ID               string    `json:"id" db:"id"`
	FacilitySourceID string    `json:"facility_source_id" db:"facility_source_id"`
	FacilityName     string    `json:"facility_name" db:"facility_name"`
	Parameter        string    `json:"parameter" db:"parameter"`
	Result           *float64  `json:"result" db:"result"`
	Unit             string    `json:"unit" db:"unit"`
	Qualifier        Qualifier `json:"qualifier" db:"qualifier"`
	SampledAt        time.Time `json:"sampled_at" db:"sampled_at"`
}

// Pollutant is a canonical pollutant key with the raw parameter names that
// map onto it across source datasets.
type Pollutant struct {
	Key           string   `json:"key" db:"key"`
	Aliases       []string `json:"aliases" db:"aliases"`
	CanonicalUnit string   `json:"canonical_unit" db:"canonical_unit"`
	Notes         string   `json:"notes,omitempty" db:"notes"`
}

// Benchmark is a single regulatory threshold or range for a pollutant.
// ValueMax is set only for range-based parameters (pH), where a measurement
// violates by falling outside [Value, ValueMax].
type Benchmark struct {
	ID           string        `json:"id" db:"id"`
	PollutantKey string        `json:"pollutant_key" db:"pollutant_key"`
	Type         BenchmarkType `json:"type" db:"benchmark_type"`
	WaterType    WaterType     `json:"water_type" db:"water_type"`
	Value        float64       `json:"value" db:"value"`
	ValueMax     *float64      `json:"value_max,omitempty" db:"value_max"`
	Unit         string        `json:"unit" db:"unit"`
	Source       string        `json:"source" db:"source"`

	// Hardness-dependent criteria (some metals) carry an equation that a
	// future scoring pass can evaluate against receiving-water hardness.
	HardnessDependent bool   `json:"hardness_dependent" db:"hardness_dependent"`
	HardnessEquation  string `json:"hardness_equation,omitempty" db:"hardness_equation"`
}

// IsRange reports whether the benchmark is range-based.
func (b *Benchmark) IsRange() bool {
	return b.ValueMax != nil
}

// Detection is the transient result of scoring one sample against one
// applicable benchmark. It is never persisted as-is; the aggregator folds
// detections into violation events and violation samples.
type Detection struct {
	SampleID         string
	FacilitySourceID string
	FacilityName     string
	PollutantKey     string
	BenchmarkID      string
	BenchmarkType    BenchmarkType

	// Both values normalized to NormalizedUnit for comparability.
	MeasuredValue  float64
	BenchmarkValue float64
	NormalizedUnit string

	ExceedanceRatio float64
	Severity        Severity
	DetectedAt      time.Time
}

// ViolationEvent is the aggregate enforcement unit: all exceedances of one
// pollutant at one facility within a reporting year. Dismissed is a manual
// reviewer override and is never written by re-aggregation.
type ViolationEvent struct {
	ID            string `json:"id" db:"id"`
	FacilityID    string `json:"facility_id" db:"facility_id"`
	PollutantKey  string `json:"pollutant_key" db:"pollutant_key"`
	ReportingYear int    `json:"reporting_year" db:"reporting_year"`

	FirstDate   time.Time `json:"first_date" db:"first_date"`
	LastDate    time.Time `json:"last_date" db:"last_date"`
	Count       int       `json:"count" db:"count"`
	MaxRatio    float64   `json:"max_ratio" db:"max_ratio"`
	MaxSeverity Severity  `json:"max_severity" db:"max_severity"`

	ImpairedWater bool   `json:"impaired_water" db:"impaired_water"`
	Dismissed     bool   `json:"dismissed" db:"dismissed"`
	Notes         string `json:"notes,omitempty" db:"notes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Hydrated for matching; not part of the events table.
	Facility *Facility `json:"facility,omitempty" db:"-"`
}

// ViolationSample links one sample to the event it contributed to. Unique
// per (SampleID, BenchmarkID): a sample appears once per benchmark it
// failed, and reruns must not duplicate it.
type ViolationSample struct {
	ID               string `json:"id" db:"id"`
	ViolationEventID string `json:"violation_event_id" db:"violation_event_id"`
	FacilityID       string `json:"facility_id" db:"facility_id"`
	SampleID         string `json:"sample_id" db:"sample_id"`
	BenchmarkID      string `json:"benchmark_id" db:"benchmark_id"`
	PollutantKey     string `json:"pollutant_key" db:"pollutant_key"`

	DetectedAt      time.Time `json:"detected_at" db:"detected_at"`
	MeasuredValue   float64   `json:"measured_value" db:"measured_value"`
	BenchmarkValue  float64   `json:"benchmark_value" db:"benchmark_value"`
	Unit            string    `json:"unit" db:"unit"`
	ExceedanceRatio float64   `json:"exceedance_ratio" db:"exceedance_ratio"`
	Severity        Severity  `json:"severity" db:"severity"`

	Status      ReviewStatus `json:"status" db:"status"`
	ReviewedAt  *time.Time   `json:"reviewed_at,omitempty" db:"reviewed_at"`
	ReviewedBy  string       `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewNotes string       `json:"review_notes,omitempty" db:"review_notes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Subscription is a standing alert rule. Params is a tagged union whose
// populated variant must agree with Mode.
type Subscription struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`
	Name   string `json:"name" db:"name"`

	Mode   SubscriptionMode   `json:"mode" db:"mode"`
	Params SubscriptionParams `json:"params" db:"params"`

	MinRatio                float64 `json:"min_ratio" db:"min_ratio"`
	RepeatOffenderThreshold int     `json:"repeat_offender_threshold" db:"repeat_offender_threshold"`
	ImpairedOnly            bool    `json:"impaired_only" db:"impaired_only"`

	Schedule  ScheduleFreq    `json:"schedule" db:"schedule"`
	Delivery  DeliveryChannel `json:"delivery" db:"delivery"`
	Active    bool            `json:"active" db:"active"`
	LastRunAt *time.Time      `json:"last_run_at,omitempty" db:"last_run_at"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// SubscriptionParams is the mode-dependent parameter union. Exactly one
// variant is set for a valid subscription; the matcher rejects mismatches
// with a diagnostic reason instead of panicking on absent fields.
type SubscriptionParams struct {
	Polygon      *PolygonParams      `json:"polygon,omitempty"`
	Buffer       *BufferParams       `json:"buffer,omitempty"`
	Jurisdiction *JurisdictionParams `json:"jurisdiction,omitempty"`
}

// PolygonParams holds a user-drawn GeoJSON polygon.
type PolygonParams struct {
	Geometry Geometry `json:"geometry"`
}

// BufferParams holds a center point and radius for distance matching.
type BufferParams struct {
	Center   Point   `json:"center"`
	RadiusKm float64 `json:"radius_km"`
}

// JurisdictionParams holds identifier sets; matching is the union across
// the three dimensions.
type JurisdictionParams struct {
	Counties   []string `json:"counties,omitempty"`
	Watersheds []string `json:"watersheds,omitempty"` // HUC12 codes
	MS4s       []string `json:"ms4s,omitempty"`
}

// Alert records one delivery-eligible (subscription, violation) pair.
// Written idempotently by the alert run; the external notifier consumes the
// dispatch queue, not this table.
type Alert struct {
	ID               string    `json:"id" db:"id"`
	SubscriptionID   string    `json:"subscription_id" db:"subscription_id"`
	ViolationEventID string    `json:"violation_event_id" db:"violation_event_id"`
	FacilityID       string    `json:"facility_id" db:"facility_id"`
	SentAt           time.Time `json:"sent_at" db:"sent_at"`
}

// MatchResult is the matcher's decision for one (subscription, violation)
// pair. Reason names the first failing gate, or confirms the match.
type MatchResult struct {
	Matched bool   `json:"matched"`
	Reason  string `json:"reason"`
}

// AlertDispatchMessage is the queue payload handed to the external
// notifier for one subscription's matched violations.
type AlertDispatchMessage struct {
	RunID          string          `json:"run_id"`
	SubscriptionID string          `json:"subscription_id"`
	Delivery       DeliveryChannel `json:"delivery"`
	UserID         string          `json:"user_id"`
	Violations     []AlertItem     `json:"violations"`
	QueuedAt       time.Time       `json:"queued_at"`
}

// AlertItem is the per-violation slice of a dispatch message.
type AlertItem struct {
	ViolationEventID string   `json:"violation_event_id"`
	FacilityName     string   `json:"facility_name"`
	PollutantKey     string   `json:"pollutant_key"`
	Count            int      `json:"count"`
	MaxRatio         float64  `json:"max_ratio"`
	MaxSeverity      Severity `json:"max_severity"`
}

// ScoreRun records one execution of the scoring pipeline.
type ScoreRun struct {
	ID          string     `json:"id" db:"id"`
	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	Status      string     `json:"status" db:"status"`
	Stats       RunStats   `json:"stats" db:"stats"`
}

// RunStats is the operational summary surfaced to the pipeline caller.
// Errors is bounded; ErrorCount is the true total.
type RunStats struct {
	SamplesProcessed     int `json:"samples_processed"`
	SamplesWithBenchmark int `json:"samples_with_benchmark"`
	SamplesSkipped       int `json:"samples_skipped"`
	ViolationsDetected   int `json:"violations_detected"`
	EventsCreated        int `json:"events_created"`
	EventsUpdated        int `json:"events_updated"`
	RecordsCreated       int `json:"records_created"`

	ErrorCount int      `json:"error_count"`
	Errors     []string `json:"errors,omitempty"`
}

// ViolationStats aggregates non-dismissed events for dashboards.
type ViolationStats struct {
	Total         int              `json:"total"`
	ImpairedWater int              `json:"impaired_water"`
	ByCounty      []GroupCount     `json:"by_county"`
	ByPollutant   []GroupCount     `json:"by_pollutant"`
	BySeverity    map[Severity]int `json:"by_severity"`
}

// GroupCount is a (label, count) pair sorted descending by count.
type GroupCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}
