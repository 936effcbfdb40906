package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/gridlock/internal/domain/geo"
	"github.com/okian/gridlock/internal/domain/model"
)

const uniqueViolationCode = "23505"

// PostgresStore implements Store on top of a pgx connection pool.
//
// Polygons are stored as JSONB arrays of [lng, lat] pairs. Sample queries
// prefilter with a bounding box in SQL and apply geo.PointInPolygon on the
// candidates, so containment semantics match the in-process geofence by
// construction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the tables and indexes the store depends on.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS zones (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			polygon JSONB NOT NULL,
			congestion_level DOUBLE PRECISION NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS traffic_samples (
			id BIGSERIAL PRIMARY KEY,
			lat DOUBLE PRECISION NOT NULL,
			lng DOUBLE PRECISION NOT NULL,
			speed DOUBLE PRECISION NOT NULL CHECK (speed >= 0),
			ts TIMESTAMPTZ NOT NULL,
			source_id TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS traffic_samples_ts_idx ON traffic_samples (ts)`,
		`CREATE INDEX IF NOT EXISTS traffic_samples_pos_idx ON traffic_samples (lat, lng)`,
		`CREATE TABLE IF NOT EXISTS incidents (
			id UUID PRIMARY KEY,
			type TEXT NOT NULL,
			lat DOUBLE PRECISION NOT NULL,
			lng DOUBLE PRECISION NOT NULL,
			severity INT NOT NULL CHECK (severity BETWEEN 1 AND 5),
			description TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			resolved BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS incidents_ts_idx ON incidents (ts)`,
		`CREATE INDEX IF NOT EXISTS incidents_resolved_idx ON incidents (resolved)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}
	return nil
}

// InsertSample appends one traffic sample.
func (s *PostgresStore) InsertSample(ctx context.Context, sample model.TrafficSample) error {
	query := `
		INSERT INTO traffic_samples (lat, lng, speed, ts, source_id)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		sample.Location.Lat, sample.Location.Lng, sample.SpeedKmh, sample.Timestamp, sample.SourceID,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert traffic sample: %w", err)
	}

	return nil
}

// SamplesInPolygonSince returns samples inside polygon observed at or after since.
func (s *PostgresStore) SamplesInPolygonSince(ctx context.Context, polygon []model.LatLng, since time.Time) ([]model.TrafficSample, error) {
	if len(polygon) < 3 {
		return nil, nil
	}

	minLat, maxLat := polygon[0].Lat, polygon[0].Lat
	minLng, maxLng := polygon[0].Lng, polygon[0].Lng
	for _, p := range polygon[1:] {
		if p.Lat < minLat {
			minLat = p.Lat
		}
		if p.Lat > maxLat {
			maxLat = p.Lat
		}
		if p.Lng < minLng {
			minLng = p.Lng
		}
		if p.Lng > maxLng {
			maxLng = p.Lng
		}
	}

	query := `
		SELECT lat, lng, speed, ts, source_id
		FROM traffic_samples
		WHERE ts >= $1
		  AND lat BETWEEN $2 AND $3
		  AND lng BETWEEN $4 AND $5
	`

	rows, err := s.pool.Query(ctx, query, since, minLat, maxLat, minLng, maxLng)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query traffic samples: %w", err)
	}
	defer rows.Close()

	var results []model.TrafficSample
	for rows.Next() {
		var sample model.TrafficSample
		if err := rows.Scan(&sample.Location.Lat, &sample.Location.Lng, &sample.SpeedKmh, &sample.Timestamp, &sample.SourceID); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan traffic sample row: %w", err)
		}
		if geo.PointInPolygon(sample.Location, polygon) {
			results = append(results, sample)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: traffic sample rows: %w", err)
	}

	return results, nil
}

// SamplesSince returns all samples observed at or after since.
func (s *PostgresStore) SamplesSince(ctx context.Context, since time.Time) ([]model.TrafficSample, error) {
	query := `
		SELECT lat, lng, speed, ts, source_id
		FROM traffic_samples
		WHERE ts >= $1
		ORDER BY ts DESC
	`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query traffic samples: %w", err)
	}
	defer rows.Close()

	var results []model.TrafficSample
	for rows.Next() {
		var sample model.TrafficSample
		if err := rows.Scan(&sample.Location.Lat, &sample.Location.Lng, &sample.SpeedKmh, &sample.Timestamp, &sample.SourceID); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan traffic sample row: %w", err)
		}
		results = append(results, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: traffic sample rows: %w", err)
	}

	return results, nil
}

// ListZones returns every zone definition.
func (s *PostgresStore) ListZones(ctx context.Context) ([]model.Zone, error) {
	query := `SELECT id, name, polygon, congestion_level FROM zones ORDER BY name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query zones: %w", err)
	}
	defer rows.Close()

	var results []model.Zone
	for rows.Next() {
		var zone model.Zone
		var rawPolygon []byte
		if err := rows.Scan(&zone.ID, &zone.Name, &rawPolygon, &zone.CongestionLevel); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan zone row: %w", err)
		}
		polygon, err := decodePolygon(rawPolygon)
		if err != nil {
			return nil, fmt.Errorf("postgres: zone %s: %w", zone.ID, err)
		}
		zone.Polygon = polygon
		results = append(results, zone)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: zone rows: %w", err)
	}

	return results, nil
}

// CreateZone persists a new zone.
func (s *PostgresStore) CreateZone(ctx context.Context, zone model.Zone) (model.Zone, error) {
	if !zone.Valid() {
		return model.Zone{}, ErrInvalidZone
	}
	if zone.ID == "" {
		zone.ID = uuid.New().String()
	}

	raw, err := encodePolygon(zone.Polygon)
	if err != nil {
		return model.Zone{}, fmt.Errorf("postgres: encode polygon: %w", err)
	}

	query := `INSERT INTO zones (id, name, polygon, congestion_level) VALUES ($1, $2, $3, $4)`
	if _, err := s.pool.Exec(ctx, query, zone.ID, zone.Name, raw, zone.CongestionLevel); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return model.Zone{}, ErrDuplicateZone
		}
		return model.Zone{}, fmt.Errorf("postgres: failed to insert zone: %w", err)
	}

	return zone, nil
}

// UpdateZoneCongestion persists a recomputed congestion level.
func (s *PostgresStore) UpdateZoneCongestion(ctx context.Context, zoneID string, level float64) error {
	query := `UPDATE zones SET congestion_level = $2 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, zoneID, level)
	if err != nil {
		return fmt.Errorf("postgres: failed to update zone congestion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrZoneNotFound
	}

	return nil
}

// InsertIncident persists a new incident.
func (s *PostgresStore) InsertIncident(ctx context.Context, incident model.Incident) (model.Incident, error) {
	if incident.ID == "" {
		incident.ID = uuid.New().String()
	}

	query := `
		INSERT INTO incidents (id, type, lat, lng, severity, description, ts, resolved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		incident.ID, string(incident.Type), incident.Location.Lat, incident.Location.Lng,
		incident.Severity, incident.Description, incident.Timestamp, incident.Resolved,
	)
	if err != nil {
		return model.Incident{}, fmt.Errorf("postgres: failed to insert incident: %w", err)
	}

	return incident, nil
}

// UnresolvedIncidentsSince returns unresolved incidents reported at or after since.
func (s *PostgresStore) UnresolvedIncidentsSince(ctx context.Context, since time.Time) ([]model.Incident, error) {
	query := `
		SELECT id, type, lat, lng, severity, description, ts, resolved
		FROM incidents
		WHERE resolved = FALSE AND ts >= $1
		ORDER BY ts DESC
	`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query incidents: %w", err)
	}
	defer rows.Close()

	var results []model.Incident
	for rows.Next() {
		var incident model.Incident
		var kind string
		if err := rows.Scan(&incident.ID, &kind, &incident.Location.Lat, &incident.Location.Lng,
			&incident.Severity, &incident.Description, &incident.Timestamp, &incident.Resolved); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan incident row: %w", err)
		}
		incident.Type = model.IncidentType(kind)
		results = append(results, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: incident rows: %w", err)
	}

	return results, nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// encodePolygon serializes a ring as a JSONB array of [lng, lat] pairs.
func encodePolygon(polygon []model.LatLng) ([]byte, error) {
	pairs := make([][2]float64, len(polygon))
	for i, p := range polygon {
		pairs[i] = [2]float64{p.Lng, p.Lat}
	}
	return json.Marshal(pairs)
}

// decodePolygon parses a JSONB array of [lng, lat] pairs.
func decodePolygon(raw []byte) ([]model.LatLng, error) {
	var pairs [][2]float64
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, fmt.Errorf("decode polygon: %w", err)
	}
	polygon := make([]model.LatLng, len(pairs))
	for i, pair := range pairs {
		polygon[i] = model.LatLng{Lng: pair[0], Lat: pair[1]}
	}
	return polygon, nil
}
