// Package repository defines the storage collaborator interface and its
// PostgreSQL and in-memory implementations.
package repository

import (
	"context"
	"time"

	"github.com/okian/gridlock/internal/domain/model"
)

// Store provides durable access to zones, traffic samples and incidents.
//
// Implementations must keep the polygon containment semantics of
// SamplesInPolygonSince identical to geo.PointInPolygon; both shipped
// implementations filter candidates through that exact function, so the
// in-process geofence and the stored-sample queries can never disagree.
type Store interface {
	// InsertSample appends one traffic sample. Samples are never mutated.
	InsertSample(ctx context.Context, sample model.TrafficSample) error

	// SamplesInPolygonSince returns samples inside polygon observed at or
	// after since.
	SamplesInPolygonSince(ctx context.Context, polygon []model.LatLng, since time.Time) ([]model.TrafficSample, error)

	// SamplesSince returns all samples observed at or after since
	// (heatmap feed).
	SamplesSince(ctx context.Context, since time.Time) ([]model.TrafficSample, error)

	// ListZones returns every zone definition.
	ListZones(ctx context.Context) ([]model.Zone, error)

	// CreateZone persists a new zone. Returns ErrDuplicateZone when the
	// name is taken and ErrInvalidZone when invariants are violated.
	CreateZone(ctx context.Context, zone model.Zone) (model.Zone, error)

	// UpdateZoneCongestion persists a recomputed congestion level.
	UpdateZoneCongestion(ctx context.Context, zoneID string, level float64) error

	// InsertIncident persists a new incident and returns it with its
	// assigned identity.
	InsertIncident(ctx context.Context, incident model.Incident) (model.Incident, error)

	// UnresolvedIncidentsSince returns unresolved incidents reported at or
	// after since.
	UnresolvedIncidentsSince(ctx context.Context, since time.Time) ([]model.Incident, error)

	// Ping verifies connectivity to the backing store.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close()
}
