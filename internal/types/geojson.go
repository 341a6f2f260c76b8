package types

import (
	"encoding/json"
	"fmt"
)

// Point is a WGS84 coordinate. Longitude first would match GeoJSON, but the
// rest of the system speaks lat/lon, so the struct is explicit instead of
// positional.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Geometry is a minimal GeoJSON geometry holding only the shapes the
// matcher and enrichment need: Polygon and MultiPolygon. Coordinates use
// GeoJSON ordering ([lon, lat]) as delivered by upstream datasets.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Ring is a closed linear ring of [lon, lat] positions.
type Ring [][2]float64

// PolygonRings decodes the geometry into a set of polygons, each a slice of
// rings (exterior first, then holes). MultiPolygon yields one entry per
// member polygon. Unsupported types and malformed coordinate arrays return
// an error; callers treat that as "not containing" rather than fatal.
func (g *Geometry) PolygonRings() ([][]Ring, error) {
	if g == nil {
		return nil, fmt.Errorf("geojson: nil geometry")
	}
	switch g.Type {
	case "Polygon":
		var rings []Ring
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return nil, fmt.Errorf("geojson: invalid Polygon coordinates: %w", err)
		}
		return [][]Ring{rings}, nil
	case "MultiPolygon":
		var polys [][]Ring
		if err := json.Unmarshal(g.Coordinates, &polys); err != nil {
			return nil, fmt.Errorf("geojson: invalid MultiPolygon coordinates: %w", err)
		}
		return polys, nil
	default:
		return nil, fmt.Errorf("geojson: unsupported geometry type %q", g.Type)
	}
}

// Feature is a GeoJSON feature with string-keyed properties, the shape the
// enrichment datasets (counties, HUC12, DAC, MS4) arrive in.
type Feature struct {
	Type       string         `json:"type"`
	Geometry   *Geometry      `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// FeatureCollection is a GeoJSON feature collection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// PropString returns a string property, tolerating absent keys and non-string
// values (upstream datasets are inconsistent about types).
func (f *Feature) PropString(keys ...string) string {
	for _, k := range keys {
		if v, ok := f.Properties[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// PropFloat returns a numeric property, accepting JSON numbers only.
func (f *Feature) PropFloat(keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := f.Properties[k]; ok {
			if n, ok := v.(float64); ok {
				return n, true
			}
		}
	}
	return 0, false
}
