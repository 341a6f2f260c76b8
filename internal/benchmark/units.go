package benchmark

import (
	"strings"
)

// mgLFactors converts a concentration unit to mg/L, the pivot unit all
// threshold comparisons happen in. Units absent from this table are
// unconvertible and cause the benchmark to be skipped for that sample.
var mgLFactors = map[string]float64{
	"mg/l": 1,
	"ug/l": 0.001,
	"ng/l": 0.000001,
	"ppm":  1,
	"ppb":  0.001,
	"ppt":  0.000001,
	"%":    10000, // 1% = 10,000 mg/L
}

// normalizeUnit canonicalizes a raw unit string: trims, lowercases, and
// folds the micro sign so "µg/L", "ug/L" and "UG/L" all resolve to "ug/l".
func normalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	u = strings.ReplaceAll(u, "µ", "u")
	u = strings.ReplaceAll(u, "μ", "u") // Greek mu, seen in some exports
	return u
}

// ToMgL converts a value in the given unit to mg/L. The second return is
// false when the unit is not in the conversion table.
func ToMgL(value float64, unit string) (float64, bool) {
	factor, ok := mgLFactors[normalizeUnit(unit)]
	if !ok {
		return 0, false
	}
	return value * factor, true
}

// IsPHUnit reports whether a unit string denotes pH (dimensionless range
// parameter that bypasses concentration conversion).
func IsPHUnit(unit string) bool {
	switch normalizeUnit(unit) {
	case "ph", "ph units", "su", "dimensionless":
		return true
	}
	return false
}
