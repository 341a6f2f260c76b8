// Package benchmark resolves monitoring parameters against regulatory
// benchmarks and scores individual samples into exceedance detections.
package benchmark

import (
	"math"
	"strings"

	"stormwatch/internal/types"
)

// SkipReason explains why a sample produced no detections and was not
// counted as scored. SkipNone means the sample was evaluated normally.
type SkipReason string

const (
	SkipNone              SkipReason = ""
	SkipNoValue           SkipReason = "no_numeric_value"
	SkipInvalidValue      SkipReason = "invalid_value"
	SkipUnmappedParam     SkipReason = "unmapped_parameter"
	SkipNoBenchmark       SkipReason = "no_applicable_benchmark"
	SkipNonDetect         SkipReason = "non_detect"
	SkipUnconvertibleUnit SkipReason = "unconvertible_unit"
)

// Outcome summarizes the scoring of one sample.
type Outcome struct {
	// PollutantKey is set when the parameter resolved, even if no
	// benchmark ultimately applied.
	PollutantKey string
	Skip         SkipReason
}

// Matcher holds the pollutant alias table and benchmark index for a
// scoring run. It is built once per run and is safe for concurrent reads.
type Matcher struct {
	aliases map[string]string
	byKey   map[string][]types.Benchmark
}

// NewMatcher indexes pollutants by their normalized aliases and benchmarks
// by pollutant key. The canonical key itself always resolves.
func NewMatcher(pollutants []types.Pollutant, benchmarks []types.Benchmark) *Matcher {
	m := &Matcher{
		aliases: make(map[string]string, len(pollutants)*2),
		byKey:   make(map[string][]types.Benchmark, len(pollutants)),
	}
	for _, p := range pollutants {
		m.aliases[normalizeParameterName(p.Key)] = p.Key
		for _, a := range p.Aliases {
			m.aliases[normalizeParameterName(a)] = p.Key
		}
	}
	for _, b := range benchmarks {
		m.byKey[b.PollutantKey] = append(m.byKey[b.PollutantKey], b)
	}
	return m
}

// normalizeParameterName lowercases and strips everything that is not a
// letter or digit, so "Total Suspended Solids (TSS)" and
// "total-suspended-solids" resolve identically.
func normalizeParameterName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ResolveKey maps a raw parameter name to its canonical pollutant key.
func (m *Matcher) ResolveKey(raw string) (string, bool) {
	key, ok := m.aliases[normalizeParameterName(raw)]
	return key, ok
}

// MatchAndScore evaluates one sample against every applicable benchmark
// for the receiving water type and returns a detection per exceedance.
// Samples it cannot evaluate are skipped with a reason, never an error.
func (m *Matcher) MatchAndScore(s types.Sample, water types.WaterType) ([]types.Detection, Outcome) {
	if s.Qualifier == types.QualifierNotDetected || s.Qualifier == types.QualifierDetectedNotQuantified {
		return nil, Outcome{Skip: SkipNonDetect}
	}
	if s.Result == nil {
		return nil, Outcome{Skip: SkipNoValue}
	}
	value := *s.Result
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return nil, Outcome{Skip: SkipInvalidValue}
	}

	key, ok := m.ResolveKey(s.Parameter)
	if !ok {
		return nil, Outcome{Skip: SkipUnmappedParam}
	}
	out := Outcome{PollutantKey: key}

	forWater, evaluated := 0, 0
	var dets []types.Detection
	for _, b := range m.byKey[key] {
		if !b.WaterType.AppliesTo(water) {
			continue
		}
		forWater++
		det, ok := scoreAgainst(s, value, b)
		if !ok {
			continue
		}
		evaluated++
		if det != nil {
			dets = append(dets, *det)
		}
	}
	if evaluated == 0 {
		if forWater > 0 {
			out.Skip = SkipUnconvertibleUnit
		} else {
			out.Skip = SkipNoBenchmark
		}
		return nil, out
	}
	return dets, out
}

// scoreAgainst compares a single sample value to one benchmark. The bool
// return is false when the benchmark could not be evaluated at all, as
// opposed to evaluated with no exceedance.
func scoreAgainst(s types.Sample, value float64, b types.Benchmark) (*types.Detection, bool) {
	if b.IsRange() {
		return scoreRange(s, value, b)
	}
	return scoreThreshold(s, value, b)
}

func scoreThreshold(s types.Sample, value float64, b types.Benchmark) (*types.Detection, bool) {
	if b.Value <= 0 {
		return nil, false
	}
	measured, ok := ToMgL(value, s.Unit)
	if !ok {
		return nil, false
	}
	limit, ok := ToMgL(b.Value, b.Unit)
	if !ok || limit <= 0 {
		return nil, false
	}
	ratio := measured / limit
	if ratio <= 1 {
		return nil, true
	}
	return newDetection(s, b, measured, limit, "mg/L", ratio), true
}

// scoreRange handles interval benchmarks such as pH, where a violation is
// falling outside [Value, ValueMax]. The ratio is the distance outside the
// window divided by the window width, so an equally wide miss scores the
// same whether it is above or below.
func scoreRange(s types.Sample, value float64, b types.Benchmark) (*types.Detection, bool) {
	low, high := b.Value, *b.ValueMax
	width := high - low
	if width <= 0 {
		return nil, false
	}
	sameUnit := normalizeUnit(s.Unit) == normalizeUnit(b.Unit)
	if !sameUnit && !IsPHUnit(s.Unit) {
		return nil, false
	}
	var distance float64
	switch {
	case value < low:
		distance = low - value
	case value > high:
		distance = value - high
	default:
		return nil, true
	}
	ratio := distance / width
	return newDetection(s, b, value, low, b.Unit, ratio), true
}

func newDetection(s types.Sample, b types.Benchmark, measured, limit float64, unit string, ratio float64) *types.Detection {
	return &types.Detection{
		SampleID:         s.ID,
		FacilitySourceID: s.FacilitySourceID,
		FacilityName:     s.FacilityName,
		PollutantKey:     b.PollutantKey,
		BenchmarkID:      b.ID,
		BenchmarkType:    b.Type,
		MeasuredValue:    measured,
		BenchmarkValue:   limit,
		NormalizedUnit:   unit,
		ExceedanceRatio:  ratio,
		Severity:         types.SeverityForRatio(ratio),
		DetectedAt:       s.SampledAt.UTC(),
	}
}
