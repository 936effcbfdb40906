// Package app provides the core tracking service that implements the
// dependencies required by the WebSocket gateway, the HTTP read API and the
// background jobs.
package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/coder/quartz"

	samplequeue "github.com/okian/gridlock/internal/adapters/mq/queue"
	writerpool "github.com/okian/gridlock/internal/adapters/mq/worker"
	repository "github.com/okian/gridlock/internal/adapters/repository"
	"github.com/okian/gridlock/internal/adapters/ws"
	"github.com/okian/gridlock/internal/domain/geo"
	"github.com/okian/gridlock/internal/domain/geofence"
	"github.com/okian/gridlock/internal/domain/model"
	"github.com/okian/gridlock/internal/domain/registry"
	"github.com/okian/gridlock/internal/domain/types"
	"github.com/okian/gridlock/pkg/logger"
	"github.com/okian/gridlock/pkg/metrics"
)

// Window constants for the stateless read API.
const (
	incidentListWindow = 24 * time.Hour
	heatmapWindow      = time.Hour
)

// Sender fans events out to connected clients. Implemented by the ws hub.
type Sender interface {
	Unicast(connectionID, event string, data interface{})
	Broadcast(event string, data interface{})
}

// Service owns the session registry, the geofence engine and the sample
// write pipeline, and orchestrates every client-visible operation.
type Service struct {
	mu sync.Mutex

	// Core components
	registry *registry.Registry
	engine   *geofence.Engine
	store    repository.Store
	sender   Sender
	queue    samplequeue.Queue
	writers  *writerpool.Pool

	// Configuration
	sessionTTL        time.Duration
	incidentRadius    float64
	sampleWindow      time.Duration
	sampleQueueSize   int
	sampleWriterCount int

	// Zone cache, refreshed on start and every congestion run, so a
	// cached copy is never staler than one maintenance cycle.
	zoneMu    sync.RWMutex
	zoneCache []model.Zone
	zoneFresh bool

	clock   quartz.Clock
	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the storage collaborator.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithSender sets the outbound event sender.
func WithSender(sender Sender) Option {
	return func(s *Service) {
		if sender != nil {
			s.sender = sender
		}
	}
}

// WithClock sets the clock used for timestamps, eviction and windows.
func WithClock(clock quartz.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithSessionTTL sets the inactivity window for janitor eviction.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithIncidentRadius sets the incident alert radius in meters.
func WithIncidentRadius(meters float64) Option {
	return func(s *Service) {
		if meters > 0 {
			s.incidentRadius = meters
		}
	}
}

// WithSampleWindow sets the trailing window used per congestion recompute.
func WithSampleWindow(window time.Duration) Option {
	return func(s *Service) {
		if window > 0 {
			s.sampleWindow = window
		}
	}
}

// WithSampleQueueSize bounds the async sample write queue.
func WithSampleQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.sampleQueueSize = size
		}
	}
}

// WithSampleWriterCount sets the number of sample writer workers.
func WithSampleWriterCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.sampleWriterCount = count
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		engine:            geofence.New(),
		sessionTTL:        30 * time.Minute,
		incidentRadius:    5000,
		sampleWindow:      5 * time.Minute,
		sampleQueueSize:   10_000,
		sampleWriterCount: 4,
		clock:             quartz.NewReal(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registry = registry.New(registry.WithClock(s.clock))

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.logger.Warn(ctx, "no store configured, using in-memory store")
	}

	s.queue = samplequeue.NewInMemoryQueue(
		samplequeue.WithCapacity(s.sampleQueueSize),
	)
	s.writers = writerpool.NewPool(s.sampleWriterCount, s.queue, s.store)
	s.writers.Start(ctx)

	// Warm the zone cache. A failure is not fatal: the cache refreshes on
	// the next location update or congestion run.
	if zones, err := s.store.ListZones(ctx); err != nil {
		s.logger.Warn(ctx, "initial zone load failed", logger.Error(err))
	} else {
		s.setZoneCache(zones)
	}

	s.started = true
	s.logger.Info(ctx, "tracking service started",
		logger.Duration("session_ttl", s.sessionTTL),
		logger.Float64("incident_radius_m", s.incidentRadius),
		logger.Int("sample_writers", s.sampleWriterCount),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping tracking service...")

	if s.writers != nil {
		s.writers.Stop()
	}

	s.started = false
	s.logger.Info(context.Background(), "tracking service stopped")
}

// Login registers a display name for the connection and broadcasts the
// updated user list to everyone.
func (s *Service) Login(ctx context.Context, connectionID, displayName string) error {
	if _, err := s.registry.UpsertOnLogin(connectionID, displayName); err != nil {
		return err
	}

	s.logger.Debug(ctx, "login",
		logger.String("connection_id", connectionID),
		logger.String("display_name", strings.TrimSpace(displayName)),
	)
	s.broadcastUsers()
	return nil
}

// UpdateLocation records a position report, persists a traffic sample,
// runs geofencing for the session and broadcasts the updated user list.
func (s *Service) UpdateLocation(ctx context.Context, connectionID string, loc model.LatLng, speedKmh float64) error {
	sess, err := s.registry.UpdateLocation(connectionID, loc, speedKmh)
	if err != nil {
		return err
	}

	// Sample writes go through the async queue so the event loop never
	// waits on storage; a full queue drops the sample.
	sample := model.TrafficSample{
		Location:  loc,
		SpeedKmh:  sess.SpeedKmh,
		Timestamp: s.clock.Now(),
		SourceID:  connectionID,
	}
	if !s.queue.Enqueue(ctx, sample) {
		s.logger.Warn(ctx, "sample queue full, dropping traffic sample",
			logger.String("connection_id", connectionID))
	}

	zones, err := s.zones(ctx)
	if err != nil {
		// Geofencing is skipped this round but the location update itself
		// succeeded; sibling work is never aborted by a storage failure.
		metrics.RecordStorageError("list_zones")
		s.logger.Error(ctx, "zone load failed, skipping geofence pass", logger.Error(err))
		s.broadcastUsers()
		return nil
	}

	entered, exited, next := s.engine.Transitions(loc, sess.ZoneIDs, zones)
	if len(entered) > 0 || len(exited) > 0 {
		if _, err := s.registry.ReplaceZones(connectionID, next); err != nil {
			// The connection vanished mid-update; drop the late result.
			s.broadcastUsers()
			return nil
		}
		for _, zone := range entered {
			metrics.RecordZoneEnter()
			s.sender.Unicast(connectionID, ws.EventZoneEnter, types.ZoneEnterEvent{
				ZoneName:        zone.Name,
				CongestionLevel: zone.CongestionLevel,
			})
		}
		for _, zone := range exited {
			metrics.RecordZoneExit()
			s.sender.Unicast(connectionID, ws.EventZoneExit, types.ZoneExitEvent{ZoneName: zone.Name})
		}
	}

	s.broadcastUsers()
	return nil
}

// ReportIncident validates and persists an incident, then alerts every
// session strictly within the configured radius.
func (s *Service) ReportIncident(ctx context.Context, connectionID, kind string, loc model.LatLng, severity int, description string) error {
	incident := model.Incident{
		Type:        model.IncidentType(kind),
		Location:    loc,
		Severity:    severity,
		Description: strings.TrimSpace(description),
		Timestamp:   s.clock.Now(),
		Resolved:    false,
	}
	if err := incident.Validate(); err != nil {
		return err
	}

	s.registry.Touch(connectionID)

	stored, err := s.store.InsertIncident(ctx, incident)
	if err != nil {
		metrics.RecordStorageError("insert_incident")
		return err
	}
	metrics.RecordIncidentReported()

	view := types.FromIncident(stored)
	for _, sess := range s.registry.Snapshot() {
		if sess.Location == nil {
			continue
		}
		if geo.DistanceMeters(*sess.Location, stored.Location) < s.incidentRadius {
			metrics.RecordIncidentAlert()
			s.sender.Unicast(sess.ConnectionID, ws.EventIncidentAlert, view)
		}
	}

	return nil
}

// Disconnect removes the session and broadcasts the updated user list.
func (s *Service) Disconnect(ctx context.Context, connectionID string) {
	if s.registry.Remove(connectionID) {
		s.logger.Debug(ctx, "session removed", logger.String("connection_id", connectionID))
		s.broadcastUsers()
	}
}

// ValidationMessage maps incident validation errors to client notices.
func (s *Service) ValidationMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, model.ErrInvalidIncidentType):
		return "Invalid incident type", true
	case errors.Is(err, model.ErrInvalidCoordinates):
		return "Invalid coordinates", true
	case errors.Is(err, model.ErrInvalidSeverity):
		return "Severity must be between 1 and 5", true
	case errors.Is(err, model.ErrInvalidDescription):
		return "Description must be non-empty and at most 500 characters", true
	}
	return "", false
}

// EvictIdle removes sessions inactive beyond the TTL and, when anything was
// evicted, broadcasts the fresh user list to the remaining connections.
// Run periodically by the janitor.
func (s *Service) EvictIdle(ctx context.Context) error {
	removed := s.registry.EvictInactiveSince(s.sessionTTL)
	if len(removed) == 0 {
		return nil
	}

	metrics.RecordSessionsEvicted(len(removed))
	for _, sess := range removed {
		s.logger.Info(ctx, "evicted inactive session",
			logger.String("connection_id", sess.ConnectionID),
			logger.String("display_name", sess.DisplayName),
		)
	}
	s.broadcastUsers()
	return nil
}

// RecomputeCongestion refreshes every zone's congestion level from recent
// samples and notifies that zone's subscribers. One zone's storage failure
// never aborts the others; the failed zone keeps its prior level.
func (s *Service) RecomputeCongestion(ctx context.Context) error {
	start := s.clock.Now()
	defer func() {
		metrics.RecordCongestionRunDuration(float64(s.clock.Since(start).Milliseconds()))
	}()

	zones, err := s.store.ListZones(ctx)
	if err != nil {
		metrics.RecordStorageError("list_zones")
		return err
	}

	since := s.clock.Now().Add(-s.sampleWindow)
	snapshot := s.registry.Snapshot()

	for i := range zones {
		samples, err := s.store.SamplesInPolygonSince(ctx, zones[i].Polygon, since)
		if err != nil {
			metrics.RecordStorageError("query_samples")
			s.logger.Error(ctx, "congestion recompute failed for zone",
				logger.String("zone", zones[i].Name),
				logger.Error(err),
			)
			continue
		}

		// Zero samples map to level 0. This deliberately conflates "no
		// data" with free-flowing traffic; see DESIGN.md before changing.
		level := 0.0
		if len(samples) > 0 {
			var total float64
			for _, sample := range samples {
				total += sample.SpeedKmh
			}
			level = geo.CongestionLevel(total / float64(len(samples)))
		}

		if err := s.store.UpdateZoneCongestion(ctx, zones[i].ID, level); err != nil {
			metrics.RecordStorageError("update_zone")
			s.logger.Error(ctx, "congestion persist failed for zone",
				logger.String("zone", zones[i].Name),
				logger.Error(err),
			)
			continue
		}
		zones[i].CongestionLevel = level
		metrics.RecordZoneRecomputed()

		update := types.CongestionUpdateEvent{ZoneID: zones[i].ID, CongestionLevel: level}
		for _, sess := range snapshot {
			if sess.InZone(zones[i].ID) {
				s.sender.Unicast(sess.ConnectionID, ws.EventCongestionUpdate, update)
			}
		}
	}

	s.setZoneCache(zones)
	return nil
}

// UnresolvedIncidents returns unresolved incidents from the last 24 hours.
func (s *Service) UnresolvedIncidents(ctx context.Context) ([]types.IncidentView, error) {
	incidents, err := s.store.UnresolvedIncidentsSince(ctx, s.clock.Now().Add(-incidentListWindow))
	if err != nil {
		metrics.RecordStorageError("query_incidents")
		return nil, err
	}

	views := make([]types.IncidentView, len(incidents))
	for i, incident := range incidents {
		views[i] = types.FromIncident(incident)
	}
	return views, nil
}

// Zones returns every zone definition.
func (s *Service) Zones(ctx context.Context) ([]types.ZoneView, error) {
	zones, err := s.store.ListZones(ctx)
	if err != nil {
		metrics.RecordStorageError("list_zones")
		return nil, err
	}

	views := make([]types.ZoneView, len(zones))
	for i, zone := range zones {
		views[i] = types.FromZone(zone)
	}
	return views, nil
}

// CreateZone validates and persists a new zone definition. The zone cache
// is invalidated so the next geofence pass sees it.
func (s *Service) CreateZone(ctx context.Context, name string, polygon []model.LatLng) (types.ZoneView, error) {
	zone := model.Zone{Name: strings.TrimSpace(name), Polygon: polygon}
	if !zone.Valid() {
		return types.ZoneView{}, repository.ErrInvalidZone
	}

	stored, err := s.store.CreateZone(ctx, zone)
	if err != nil {
		if !errors.Is(err, repository.ErrDuplicateZone) && !errors.Is(err, repository.ErrInvalidZone) {
			metrics.RecordStorageError("create_zone")
		}
		return types.ZoneView{}, err
	}

	s.zoneMu.Lock()
	s.zoneFresh = false
	s.zoneMu.Unlock()

	s.logger.Info(ctx, "zone created",
		logger.String("zone_id", stored.ID),
		logger.String("name", stored.Name),
	)
	return types.FromZone(stored), nil
}

// Heatmap returns traffic samples from the last hour.
func (s *Service) Heatmap(ctx context.Context) ([]types.SampleView, error) {
	samples, err := s.store.SamplesSince(ctx, s.clock.Now().Add(-heatmapWindow))
	if err != nil {
		metrics.RecordStorageError("query_samples")
		return nil, err
	}

	views := make([]types.SampleView, len(samples))
	for i, sample := range samples {
		views[i] = types.FromSample(sample)
	}
	return views, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	stats := map[string]interface{}{
		"started":  started,
		"sessions": s.registry.Len(),
	}

	s.zoneMu.RLock()
	stats["zones"] = len(s.zoneCache)
	s.zoneMu.RUnlock()

	if started && s.queue != nil {
		stats["sampleQueueLength"] = s.queue.Len(context.Background())
	}

	return stats
}

// broadcastUsers sends the current session snapshot to every connection.
// The snapshot is taken after the triggering mutation, so recipients never
// observe pre-mutation state delivered post-acknowledgment.
func (s *Service) broadcastUsers() {
	s.sender.Broadcast(ws.EventUsers, types.FromSessions(s.registry.Snapshot()))
}

// zones returns the cached zone list, falling back to storage when the
// cache has never been filled.
func (s *Service) zones(ctx context.Context) ([]model.Zone, error) {
	s.zoneMu.RLock()
	if s.zoneFresh {
		out := make([]model.Zone, len(s.zoneCache))
		copy(out, s.zoneCache)
		s.zoneMu.RUnlock()
		return out, nil
	}
	s.zoneMu.RUnlock()

	zones, err := s.store.ListZones(ctx)
	if err != nil {
		return nil, err
	}
	s.setZoneCache(zones)
	return zones, nil
}

func (s *Service) setZoneCache(zones []model.Zone) {
	s.zoneMu.Lock()
	s.zoneCache = zones
	s.zoneFresh = true
	s.zoneMu.Unlock()
}
