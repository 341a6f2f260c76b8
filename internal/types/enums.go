package types

// Qualifier is the laboratory result qualifier attached to a sample.
// Only DETECTED and GREATER_THAN results carry a usable numeric value;
// the rest are censored results the scorer must skip.
type Qualifier string

const (
	QualifierDetected              Qualifier = "DETECTED"
	QualifierLessThan              Qualifier = "LESS_THAN"
	QualifierGreaterThan           Qualifier = "GREATER_THAN"
	QualifierNotDetected           Qualifier = "NOT_DETECTED"
	QualifierDetectedNotQuantified Qualifier = "DETECTED_NOT_QUANTIFIED"
)

// BenchmarkType identifies the regulatory source category of a benchmark.
type BenchmarkType string

const (
	// California Industrial General Permit Numeric Action Levels.
	BenchmarkAnnualNAL  BenchmarkType = "ANNUAL_NAL"
	BenchmarkInstantNAL BenchmarkType = "INSTANT_NAL"
	// EPA drinking water thresholds.
	BenchmarkMCL         BenchmarkType = "MCL"
	BenchmarkActionLevel BenchmarkType = "ACTION_LEVEL"
	// EPA aquatic life criteria (acute / chronic).
	BenchmarkAcuteCMC   BenchmarkType = "ACUTE_CMC"
	BenchmarkChronicCCC BenchmarkType = "CHRONIC_CCC"
)

// WaterType restricts a benchmark to a class of receiving water.
type WaterType string

const (
	WaterAll        WaterType = "ALL"
	WaterFreshwater WaterType = "FRESHWATER"
	WaterSaltwater  WaterType = "SALTWATER"
	WaterDrinking   WaterType = "DRINKING"
)

// AppliesTo reports whether a benchmark scoped to wt covers a facility
// discharging to receiving water of type facilityWater.
func (wt WaterType) AppliesTo(facilityWater WaterType) bool {
	return wt == WaterAll || wt == facilityWater
}

// Severity classifies how far a measurement sits above its benchmark.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityModerate Severity = "MODERATE"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// severityRank orders severities for monotonic max comparisons.
var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityModerate: 2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordering value of the severity. Unknown severities rank
// below LOW so corrupt rows can never displace a real maximum.
func (s Severity) Rank() int {
	return severityRank[s]
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// SeverityForRatio maps an exceedance ratio onto a severity tier. The same
// mapping is used for individual detections and event-level maxima.
func SeverityForRatio(ratio float64) Severity {
	switch {
	case ratio >= 10:
		return SeverityCritical
	case ratio >= 5:
		return SeverityHigh
	case ratio >= 2:
		return SeverityModerate
	default:
		return SeverityLow
	}
}

// ReviewStatus is the human review workflow state of a violation sample.
type ReviewStatus string

const (
	ReviewOpen        ReviewStatus = "OPEN"
	ReviewUnderReview ReviewStatus = "UNDER_REVIEW"
	ReviewResolved    ReviewStatus = "RESOLVED"
	ReviewDismissed   ReviewStatus = "DISMISSED"
)

// SubscriptionMode selects the spatial gate applied by the matcher.
type SubscriptionMode string

const (
	ModePolygon      SubscriptionMode = "POLYGON"
	ModeBuffer       SubscriptionMode = "BUFFER"
	ModeJurisdiction SubscriptionMode = "JURISDICTION"
)

// ScheduleFreq determines how often a subscription's alert run fires.
type ScheduleFreq string

const (
	ScheduleDaily  ScheduleFreq = "DAILY"
	ScheduleWeekly ScheduleFreq = "WEEKLY"
)

// DeliveryChannel identifies where matched alerts are delivered. Delivery
// mechanics live in the external notifier; the pipeline only routes.
type DeliveryChannel string

const (
	DeliveryEmail DeliveryChannel = "EMAIL"
	DeliverySlack DeliveryChannel = "SLACK"
	DeliveryBoth  DeliveryChannel = "BOTH"
)
