// Package geo provides the two spatial primitives the platform needs:
// point-in-polygon containment and great-circle distance. Both are pure
// functions over WGS84 coordinates; no projection handling is required at
// the accuracies involved (facility points vs. county/watershed polygons
// and km-scale buffers).
package geo

import (
	"math"

	"stormwatch/internal/types"
)

const earthRadiusKm = 6371.0

// PointInPolygon reports whether p falls inside the GeoJSON (Multi)Polygon
// geometry using the even-odd ray casting rule. Holes are honored: a point
// inside an interior ring is outside the polygon.
//
// Malformed or unsupported geometry returns false rather than an error;
// reference datasets contain the occasional broken ring and a bad feature
// must never abort a batch.
func PointInPolygon(p types.Point, g *types.Geometry) bool {
	polys, err := g.PolygonRings()
	if err != nil {
		return false
	}
	for _, rings := range polys {
		if len(rings) == 0 {
			continue
		}
		if !inRing(p, rings[0]) {
			continue
		}
		inHole := false
		for _, hole := range rings[1:] {
			if inRing(p, hole) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}

// inRing is the classic ray casting test over one linear ring of
// [lon, lat] positions. Rings with fewer than 3 vertices cannot contain
// anything.
func inRing(p types.Point, ring types.Ring) bool {
	if len(ring) < 3 {
		return false
	}
	inside := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		x1, y1 := ring[i][0], ring[i][1]
		x2, y2 := ring[j][0], ring[j][1]
		if (y1 > p.Lat) != (y2 > p.Lat) &&
			p.Lon < (x2-x1)*(p.Lat-y1)/(y2-y1)+x1 {
			inside = !inside
		}
	}
	return inside
}

// HaversineKm returns the great-circle distance between two points in
// kilometers.
func HaversineKm(a, b types.Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// WithinBufferKm reports whether p lies within radiusKm of center. The
// boundary is inclusive.
func WithinBufferKm(p, center types.Point, radiusKm float64) bool {
	return HaversineKm(p, center) <= radiusKm
}
