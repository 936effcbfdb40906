// Package geo provides the pure geographic primitives the tracking core is
// built on: polygon containment, great-circle distance, and the speed to
// congestion-level mapping. Nothing here holds state or touches I/O.
package geo

import (
	"math"

	"github.com/okian/gridlock/internal/domain/model"
)

const (
	earthRadiusMeters = 6371008.8 // mean Earth radius

	maxCongestionLevel = 5.0
	// Congestion drops one level per 20 km/h of average speed.
	speedPerLevelKmh = 20.0
)

// PointInPolygon reports whether p lies inside the ring using the standard
// ray-casting test (even-odd rule, ray cast along +lng). Polygons with fewer
// than 3 points are never containing. The result is deterministic for
// identical inputs; points exactly on an edge or vertex are classified by
// the raw ray-casting outcome and are not guaranteed to land on either side,
// so callers must not rely on boundary points being "inside".
func PointInPolygon(p model.LatLng, polygon []model.LatLng) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	j := len(polygon) - 1
	for i := 0; i < len(polygon); i++ {
		pi, pj := polygon[i], polygon[j]
		if (pi.Lat > p.Lat) != (pj.Lat > p.Lat) {
			crossLng := (pj.Lng-pi.Lng)*(p.Lat-pi.Lat)/(pj.Lat-pi.Lat) + pi.Lng
			if p.Lng < crossLng {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// DistanceMeters returns the haversine great-circle distance between a and b.
func DistanceMeters(a, b model.LatLng) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng

	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// CongestionLevel maps an average speed in km/h to a congestion level in
// [0, 5]: level = clamp(5 - speed/20, 0, 5). Callers decide what to do when
// there are no samples; by product convention zero samples map to level 0.
func CongestionLevel(avgSpeedKmh float64) float64 {
	level := maxCongestionLevel - avgSpeedKmh/speedPerLevelKmh
	return math.Max(0, math.Min(maxCongestionLevel, level))
}
