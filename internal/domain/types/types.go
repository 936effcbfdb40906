// Package types contains the wire shapes shared by the WebSocket gateway
// and the HTTP read API.
package types

import (
	"time"

	"github.com/okian/gridlock/internal/domain/model"
)

// Point is the JSON form of a coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// SessionView is the client-facing projection of a session, used by the
// `users` broadcast.
type SessionView struct {
	ConnectionID string    `json:"connection_id"`
	DisplayName  string    `json:"display_name"`
	Location     *Point    `json:"location"`
	SpeedKmh     float64   `json:"speed"`
	Zones        []string  `json:"zones"`
	LastActivity time.Time `json:"last_activity"`
}

// ZoneView is the JSON form of a zone.
type ZoneView struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Polygon         []Point `json:"polygon"`
	CongestionLevel float64 `json:"congestion_level"`
}

// IncidentView is the JSON form of an incident, also used as the
// `incidentAlert` payload.
type IncidentView struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Location    Point     `json:"location"`
	Severity    int       `json:"severity"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	Resolved    bool      `json:"resolved"`
}

// SampleView is the JSON form of a traffic sample (heatmap feed).
type SampleView struct {
	Location  Point     `json:"location"`
	SpeedKmh  float64   `json:"speed"`
	Timestamp time.Time `json:"timestamp"`
	SourceID  string    `json:"source_id"`
}

// FromSession converts a session copy into its wire view.
func FromSession(s model.Session) SessionView {
	v := SessionView{
		ConnectionID: s.ConnectionID,
		DisplayName:  s.DisplayName,
		SpeedKmh:     s.SpeedKmh,
		Zones:        s.ZoneIDs,
		LastActivity: s.LastActivity,
	}
	if v.Zones == nil {
		v.Zones = []string{}
	}
	if s.Location != nil {
		v.Location = &Point{Lat: s.Location.Lat, Lng: s.Location.Lng}
	}
	return v
}

// FromSessions converts a snapshot into wire views.
func FromSessions(sessions []model.Session) []SessionView {
	views := make([]SessionView, len(sessions))
	for i, s := range sessions {
		views[i] = FromSession(s)
	}
	return views
}

// FromZone converts a zone into its wire view.
func FromZone(z model.Zone) ZoneView {
	v := ZoneView{
		ID:              z.ID,
		Name:            z.Name,
		Polygon:         make([]Point, len(z.Polygon)),
		CongestionLevel: z.CongestionLevel,
	}
	for i, p := range z.Polygon {
		v.Polygon[i] = Point{Lat: p.Lat, Lng: p.Lng}
	}
	return v
}

// FromIncident converts an incident into its wire view.
func FromIncident(i model.Incident) IncidentView {
	return IncidentView{
		ID:          i.ID,
		Type:        string(i.Type),
		Location:    Point{Lat: i.Location.Lat, Lng: i.Location.Lng},
		Severity:    i.Severity,
		Description: i.Description,
		Timestamp:   i.Timestamp,
		Resolved:    i.Resolved,
	}
}

// FromSample converts a traffic sample into its wire view.
func FromSample(s model.TrafficSample) SampleView {
	return SampleView{
		Location:  Point{Lat: s.Location.Lat, Lng: s.Location.Lng},
		SpeedKmh:  s.SpeedKmh,
		Timestamp: s.Timestamp,
		SourceID:  s.SourceID,
	}
}
