// Package model contains domain models passed between layers.
package model

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// Incident description limit.
const MaxDescriptionLength = 500

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64
	Lng float64
}

// Finite reports whether both coordinates are finite numbers.
func (p LatLng) Finite() bool {
	return !math.IsNaN(p.Lat) && !math.IsInf(p.Lat, 0) &&
		!math.IsNaN(p.Lng) && !math.IsInf(p.Lng, 0)
}

// InRange reports whether the coordinates are within valid lat/lng bounds.
func (p LatLng) InRange() bool {
	return p.Finite() &&
		p.Lat >= -90 && p.Lat <= 90 &&
		p.Lng >= -180 && p.Lng <= 180
}

// Session is the server-side record of one connected client.
// The registry owns Session lifetime exclusively; everything outside the
// registry only ever sees value copies.
type Session struct {
	ConnectionID string
	DisplayName  string
	Location     *LatLng // nil until the first location update
	SpeedKmh     float64
	ZoneIDs      []string // derived zone membership, never client-supplied
	LastActivity time.Time
}

// InZone reports whether the session's derived membership contains zoneID.
func (s Session) InZone(zoneID string) bool {
	for _, id := range s.ZoneIDs {
		if id == zoneID {
			return true
		}
	}
	return false
}

// Zone is a named polygonal region with a derived congestion level.
type Zone struct {
	ID              string
	Name            string
	Polygon         []LatLng // ordered ring, at least 3 points
	CongestionLevel float64  // 0 (free) .. 5 (severe)
}

// Valid reports whether the zone satisfies its structural invariants.
func (z Zone) Valid() bool {
	return strings.TrimSpace(z.Name) != "" &&
		len(z.Polygon) >= 3 &&
		z.CongestionLevel >= 0 && z.CongestionLevel <= 5
}

// TrafficSample is one timestamped speed+location observation. Append-only.
type TrafficSample struct {
	Location  LatLng
	SpeedKmh  float64
	Timestamp time.Time
	SourceID  string
}

// IncidentType enumerates the closed set of reportable incident kinds.
type IncidentType string

const (
	IncidentAccident   IncidentType = "accident"
	IncidentCongestion IncidentType = "congestion"
	IncidentRoadwork   IncidentType = "roadwork"
	IncidentHazard     IncidentType = "hazard"
	IncidentOther      IncidentType = "other"
)

// Valid reports whether t is a member of the closed incident type set.
func (t IncidentType) Valid() bool {
	switch t {
	case IncidentAccident, IncidentCongestion, IncidentRoadwork, IncidentHazard, IncidentOther:
		return true
	}
	return false
}

// Incident is a reported road event.
type Incident struct {
	ID          string
	Type        IncidentType
	Location    LatLng
	Severity    int // 1..5
	Description string
	Timestamp   time.Time
	Resolved    bool
}

// Validate checks the incident's invariants. The description is trimmed
// before checking; callers should persist the trimmed value.
func (i Incident) Validate() error {
	if !i.Type.Valid() {
		return ErrInvalidIncidentType
	}
	if !i.Location.InRange() {
		return ErrInvalidCoordinates
	}
	if i.Severity < 1 || i.Severity > 5 {
		return ErrInvalidSeverity
	}
	desc := strings.TrimSpace(i.Description)
	if desc == "" || utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return ErrInvalidDescription
	}
	return nil
}
