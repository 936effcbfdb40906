// Package registry holds the authoritative in-memory table of connected
// clients. It is the only place session state is mutated; every other
// component reads and writes through its operations and only ever receives
// value copies, never live references.
package registry

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/okian/gridlock/internal/domain/model"
)

// Registry is a lock-guarded session table. All operations are safe for
// concurrent use; a Snapshot never observes a torn mid-update entry.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session

	clock quartz.Clock
}

// Option applies a configuration option to the Registry.
type Option func(*Registry)

// WithClock sets the clock used for lastActivity stamps and eviction.
// Tests inject a mock clock here.
func WithClock(clock quartz.Clock) Option {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*model.Session),
		clock:    quartz.NewReal(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// UpsertOnLogin creates or replaces the session for connectionID. The display
// name is trimmed and must be non-empty; location starts out unknown.
func (r *Registry) UpsertOnLogin(connectionID, displayName string) (model.Session, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return model.Session{}, ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s := &model.Session{
		ConnectionID: connectionID,
		DisplayName:  name,
		LastActivity: r.clock.Now(),
	}
	r.sessions[connectionID] = s
	return copySession(s), nil
}

// UpdateLocation records a new position and speed for an existing session.
// Negative speeds are clamped to zero; non-finite coordinates are rejected.
func (r *Registry) UpdateLocation(connectionID string, loc model.LatLng, speedKmh float64) (model.Session, error) {
	if !loc.Finite() {
		return model.Session{}, ErrInvalidInput
	}
	if speedKmh < 0 {
		speedKmh = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connectionID]
	if !ok {
		return model.Session{}, ErrUnknownSession
	}

	s.Location = &model.LatLng{Lat: loc.Lat, Lng: loc.Lng}
	s.SpeedKmh = speedKmh
	s.LastActivity = r.clock.Now()
	return copySession(s), nil
}

// ReplaceZones swaps the session's derived zone membership set.
func (r *Registry) ReplaceZones(connectionID string, zoneIDs []string) (model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connectionID]
	if !ok {
		return model.Session{}, ErrUnknownSession
	}

	s.ZoneIDs = append([]string(nil), zoneIDs...)
	return copySession(s), nil
}

// Touch updates the session's lastActivity stamp without changing anything
// else. Unknown sessions are a no-op.
func (r *Registry) Touch(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[connectionID]; ok {
		s.LastActivity = r.clock.Now()
	}
}

// Get returns a copy of the session, if present.
func (r *Registry) Get(connectionID string) (model.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[connectionID]
	if !ok {
		return model.Session{}, false
	}
	return copySession(s), true
}

// Remove deletes the session. Idempotent; reports whether a session existed.
func (r *Registry) Remove(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.sessions[connectionID]
	delete(r.sessions, connectionID)
	return ok
}

// Snapshot returns a consistent point-in-time copy of every session, sorted
// by connection ID for stable output. Callers get value copies only.
func (r *Registry) Snapshot() []model.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, copySession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectionID < out[j].ConnectionID })
	return out
}

// Len returns the number of connected sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// EvictInactiveSince removes every session whose lastActivity is older than
// now-threshold and returns copies of the removed sessions.
func (r *Registry) EvictInactiveSince(threshold time.Duration) []model.Session {
	cutoff := r.clock.Now().Add(-threshold)

	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []model.Session
	for id, s := range r.sessions {
		if s.LastActivity.Before(cutoff) {
			removed = append(removed, copySession(s))
			delete(r.sessions, id)
		}
	}
	return removed
}

// copySession deep-copies a session so no internal pointer escapes the lock.
func copySession(s *model.Session) model.Session {
	out := *s
	if s.Location != nil {
		loc := *s.Location
		out.Location = &loc
	}
	out.ZoneIDs = append([]string(nil), s.ZoneIDs...)
	return out
}
