// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

import "runtime"

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DatabaseURL is the PostgreSQL connection string. When empty or the
	// database is unreachable the service falls back to the in-memory store.
	DatabaseURL string `koanf:"database_url"`

	// AllowedOrigin restricts WebSocket upgrades and CORS on the read API.
	// "*" accepts any origin.
	AllowedOrigin string `koanf:"allowed_origin"`

	// SessionTTLSeconds is the inactivity window after which the janitor
	// evicts a session.
	SessionTTLSeconds int `koanf:"session_ttl_seconds"`

	// JanitorIntervalSeconds sets how often the janitor runs.
	JanitorIntervalSeconds int `koanf:"janitor_interval_seconds"`

	// CongestionIntervalSeconds sets how often zone congestion is recomputed.
	CongestionIntervalSeconds int `koanf:"congestion_interval_seconds"`

	// SampleWindowSeconds bounds the traffic sample window used per recompute.
	SampleWindowSeconds int `koanf:"sample_window_seconds"`

	// IncidentRadiusMeters is the alert fan-out radius (exclusive bound).
	IncidentRadiusMeters float64 `koanf:"incident_radius_meters"`

	// RateLimitPerMinute caps inbound events per connection over a sliding
	// 60-second window.
	RateLimitPerMinute int `koanf:"rate_limit_per_minute"`

	// SendBufferSize bounds each connection's outbound event queue.
	SendBufferSize int `koanf:"send_buffer_size"`

	// SampleQueueSize bounds the async traffic sample write queue.
	SampleQueueSize int `koanf:"sample_queue_size"`

	// SampleWriterCount sets the number of sample writer workers.
	SampleWriterCount int `koanf:"sample_writer_count"`
}

// New creates a Config populated with defaults. The periodic intervals and
// the incident radius mirror the product defaults and are overridable for
// tests and small deployments.
func New() *Config {
	return &Config{
		LogLevel:                  "info",
		Addr:                      ":4000",
		DatabaseURL:               "",
		AllowedOrigin:             "*",
		SessionTTLSeconds:         30 * 60,
		JanitorIntervalSeconds:    60,
		CongestionIntervalSeconds: 5 * 60,
		SampleWindowSeconds:       5 * 60,
		IncidentRadiusMeters:      5000,
		RateLimitPerMinute:        100,
		SendBufferSize:            64,
		SampleQueueSize:           10_000,
		SampleWriterCount:         runtime.NumCPU(),
	}
}
