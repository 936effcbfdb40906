package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/gridlock/internal/domain/geo"
	"github.com/okian/gridlock/internal/domain/model"
)

// MemoryStore implements Store entirely in memory. It backs tests and the
// degraded no-database mode; data does not survive a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	zones     []model.Zone
	samples   []model.TrafficSample
	incidents []model.Incident
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// InsertSample appends one traffic sample.
func (s *MemoryStore) InsertSample(_ context.Context, sample model.TrafficSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, sample)
	return nil
}

// SamplesInPolygonSince returns samples inside polygon observed at or after since.
func (s *MemoryStore) SamplesInPolygonSince(_ context.Context, polygon []model.LatLng, since time.Time) ([]model.TrafficSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []model.TrafficSample
	for _, sample := range s.samples {
		if sample.Timestamp.Before(since) {
			continue
		}
		if geo.PointInPolygon(sample.Location, polygon) {
			results = append(results, sample)
		}
	}
	return results, nil
}

// SamplesSince returns all samples observed at or after since.
func (s *MemoryStore) SamplesSince(_ context.Context, since time.Time) ([]model.TrafficSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []model.TrafficSample
	for _, sample := range s.samples {
		if !sample.Timestamp.Before(since) {
			results = append(results, sample)
		}
	}
	return results, nil
}

// ListZones returns every zone definition.
func (s *MemoryStore) ListZones(_ context.Context) ([]model.Zone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Zone, len(s.zones))
	for i, z := range s.zones {
		out[i] = copyZone(z)
	}
	return out, nil
}

// CreateZone persists a new zone.
func (s *MemoryStore) CreateZone(_ context.Context, zone model.Zone) (model.Zone, error) {
	if !zone.Valid() {
		return model.Zone{}, ErrInvalidZone
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.zones {
		if existing.Name == zone.Name {
			return model.Zone{}, ErrDuplicateZone
		}
	}

	if zone.ID == "" {
		zone.ID = uuid.New().String()
	}
	s.zones = append(s.zones, copyZone(zone))
	return zone, nil
}

// UpdateZoneCongestion persists a recomputed congestion level.
func (s *MemoryStore) UpdateZoneCongestion(_ context.Context, zoneID string, level float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.zones {
		if s.zones[i].ID == zoneID {
			s.zones[i].CongestionLevel = level
			return nil
		}
	}
	return ErrZoneNotFound
}

// InsertIncident persists a new incident.
func (s *MemoryStore) InsertIncident(_ context.Context, incident model.Incident) (model.Incident, error) {
	if incident.ID == "" {
		incident.ID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.incidents = append(s.incidents, incident)
	return incident, nil
}

// UnresolvedIncidentsSince returns unresolved incidents reported at or after since.
func (s *MemoryStore) UnresolvedIncidentsSince(_ context.Context, since time.Time) ([]model.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []model.Incident
	for _, incident := range s.incidents {
		if !incident.Resolved && !incident.Timestamp.Before(since) {
			results = append(results, incident)
		}
	}
	return results, nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() {}

func copyZone(z model.Zone) model.Zone {
	out := z
	out.Polygon = append([]model.LatLng(nil), z.Polygon...)
	return out
}
