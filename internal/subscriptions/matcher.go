// Package subscriptions matches violation events against standing alert
// subscriptions and drives the scheduled alert run.
package subscriptions

import (
	"fmt"
	"log/slog"

	"stormwatch/internal/geo"
	"stormwatch/internal/types"
)

// Matcher decides whether a violation event matches a subscription. Gates
// are evaluated in a fixed order (spatial, min ratio, impaired water,
// repeat offender) and the result names the first gate that failed, so a
// preview caller can tell a user exactly why a facility is excluded.
type Matcher struct {
	logger *slog.Logger
}

// NewMatcher creates a Matcher.
func NewMatcher(logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{logger: logger}
}

// Matches evaluates one (subscription, event) pair. Matching is a pure
// computation; a malformed subscription yields a non-match with a
// diagnostic reason rather than an error.
func (m *Matcher) Matches(sub *types.Subscription, event *types.ViolationEvent) types.MatchResult {
	facility := event.Facility
	if facility == nil {
		return types.MatchResult{Reason: "event has no facility loaded"}
	}

	if res := m.spatialGate(sub, facility); !res.Matched {
		return res
	}

	if sub.MinRatio > 0 && event.MaxRatio < sub.MinRatio {
		return types.MatchResult{
			Reason: fmt.Sprintf("max ratio %.2f below subscription minimum %.2f", event.MaxRatio, sub.MinRatio),
		}
	}

	if sub.ImpairedOnly && !event.ImpairedWater {
		return types.MatchResult{Reason: "receiving water is not impaired"}
	}

	// A threshold of 0 or 1 leaves the gate inactive; every event has at
	// least one detection.
	if sub.RepeatOffenderThreshold > 1 && event.Count < sub.RepeatOffenderThreshold {
		return types.MatchResult{
			Reason: fmt.Sprintf("event has %d detections, below repeat offender threshold %d", event.Count, sub.RepeatOffenderThreshold),
		}
	}

	return types.MatchResult{Matched: true, Reason: "matched"}
}

// BatchMatch filters the subscription set through the single-pair matcher
// for every event. The result maps event ID to the subscriptions it
// matched; events with no matching subscription are absent.
func (m *Matcher) BatchMatch(events []types.ViolationEvent, subs []types.Subscription) map[string][]types.Subscription {
	matches := make(map[string][]types.Subscription)
	for i := range events {
		for j := range subs {
			if res := m.Matches(&subs[j], &events[i]); res.Matched {
				matches[events[i].ID] = append(matches[events[i].ID], subs[j])
			}
		}
	}
	return matches
}

// spatialGate applies the mode-specific location test.
func (m *Matcher) spatialGate(sub *types.Subscription, facility *types.Facility) types.MatchResult {
	switch sub.Mode {
	case types.ModePolygon:
		p := sub.Params.Polygon
		if p == nil {
			return types.MatchResult{Reason: "subscription has no polygon parameters"}
		}
		if !geo.PointInPolygon(facility.Location, &p.Geometry) {
			return types.MatchResult{Reason: "facility outside subscription polygon"}
		}
	case types.ModeBuffer:
		b := sub.Params.Buffer
		if b == nil {
			return types.MatchResult{Reason: "subscription has no buffer parameters"}
		}
		if !geo.WithinBufferKm(facility.Location, b.Center, b.RadiusKm) {
			return types.MatchResult{Reason: fmt.Sprintf("facility outside %.1f km buffer", b.RadiusKm)}
		}
	case types.ModeJurisdiction:
		j := sub.Params.Jurisdiction
		if j == nil {
			return types.MatchResult{Reason: "subscription has no jurisdiction parameters"}
		}
		if !inJurisdiction(j, facility) {
			return types.MatchResult{Reason: "facility outside subscription jurisdictions"}
		}
	default:
		return types.MatchResult{Reason: fmt.Sprintf("unknown subscription mode %q", sub.Mode)}
	}
	return types.MatchResult{Matched: true}
}

// inJurisdiction is the union across the three identifier dimensions: a
// facility matches if it is in any listed county, watershed, or MS4 area.
func inJurisdiction(j *types.JurisdictionParams, f *types.Facility) bool {
	for _, county := range j.Counties {
		if county != "" && county == f.County {
			return true
		}
	}
	for _, huc := range j.Watersheds {
		if huc != "" && huc == f.WatershedHUC12 {
			return true
		}
	}
	for _, ms4 := range j.MS4s {
		if ms4 != "" && ms4 == f.MS4 {
			return true
		}
	}
	return false
}
