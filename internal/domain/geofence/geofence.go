// Package geofence computes zone membership transitions for moving sessions.
package geofence

import (
	"sort"

	"github.com/okian/gridlock/internal/domain/geo"
	"github.com/okian/gridlock/internal/domain/model"
)

// Engine evaluates zone membership for a position against a zone list.
//
// The current implementation is a linear scan over all zones, which is fine
// for the tens-to-low-hundreds of zones we run with. The contract is
// position in, transitions out; a spatial index (grid, R-tree) can replace
// the scan behind the same method without touching callers.
type Engine struct{}

// New creates a geofence engine.
func New() *Engine {
	return &Engine{}
}

// Transitions compares a session's current membership set against the zones
// containing loc and returns the zones entered, the zones exited, and the
// resulting membership set (sorted, stable across calls).
//
// Zones that disappeared from the zone list are treated as exited only if a
// matching zone record is present; unknown membership IDs are silently
// dropped from the next set so stale zones cannot linger forever.
func (e *Engine) Transitions(loc model.LatLng, current []string, zones []model.Zone) (entered, exited []model.Zone, next []string) {
	in := make(map[string]bool, len(current))
	for _, id := range current {
		in[id] = true
	}

	next = make([]string, 0, len(current))
	for _, zone := range zones {
		contains := geo.PointInPolygon(loc, zone.Polygon)
		switch {
		case contains && !in[zone.ID]:
			entered = append(entered, zone)
			next = append(next, zone.ID)
		case !contains && in[zone.ID]:
			exited = append(exited, zone)
		case contains:
			next = append(next, zone.ID)
		}
		delete(in, zone.ID)
	}

	sort.Strings(next)
	return entered, exited, next
}
