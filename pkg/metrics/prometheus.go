// Package metrics provides Prometheus metrics for the gridlock tracking service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the gridlock service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Gateway metrics - connection lifecycle and inbound traffic
	connectionsActive  prometheus.Gauge
	eventsInbound      *prometheus.CounterVec
	eventsRejected     *prometheus.CounterVec
	rateLimitedEvents  prometheus.Counter
	outboundDropped    prometheus.Counter
	broadcastsSent     *prometheus.CounterVec
	unicastsSent       *prometheus.CounterVec

	// Geofence metrics
	zoneTransitions *prometheus.CounterVec

	// Incident metrics
	incidentsReported prometheus.Counter
	incidentAlerts    prometheus.Counter

	// Background job metrics
	congestionRunDuration prometheus.Histogram
	congestionRunSkipped  prometheus.Counter
	zonesRecomputed       prometheus.Counter
	sessionsEvicted       prometheus.Counter

	// Storage metrics
	storageErrors    *prometheus.CounterVec
	samplesWritten   prometheus.Counter
	sampleQueueSize  prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "gridlock",
		subsystem:        "tracker",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.connectionsActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "connections_active",
		Help:      "Number of currently connected clients",
	})

	m.eventsInbound = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_inbound_total",
		Help:      "Total inbound client events by event name",
	}, []string{"event"})

	m.eventsRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_rejected_total",
		Help:      "Total rejected inbound events by reason",
	}, []string{"reason"})

	m.rateLimitedEvents = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_rate_limited_total",
		Help:      "Total inbound events rejected by the per-connection rate limiter",
	})

	m.outboundDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "outbound_dropped_total",
		Help:      "Total outbound events dropped because a client send queue was full",
	})

	m.broadcastsSent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "broadcasts_total",
		Help:      "Total broadcast events by event name",
	}, []string{"event"})

	m.unicastsSent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "unicasts_total",
		Help:      "Total unicast events by event name",
	}, []string{"event"})

	m.zoneTransitions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "zone_transitions_total",
		Help:      "Total zone membership transitions by direction (enter/exit)",
	}, []string{"direction"})

	m.incidentsReported = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "incidents_reported_total",
		Help:      "Total incidents accepted and persisted",
	})

	m.incidentAlerts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "incident_alerts_total",
		Help:      "Total incident alerts delivered to nearby clients",
	})

	m.congestionRunDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "congestion_run_duration_milliseconds",
		Help:      "Histogram of congestion recompute run duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.congestionRunSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "congestion_runs_skipped_total",
		Help:      "Total congestion recompute ticks skipped because a run was in flight",
	})

	m.zonesRecomputed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "zones_recomputed_total",
		Help:      "Total per-zone congestion recomputations completed",
	})

	m.sessionsEvicted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sessions_evicted_total",
		Help:      "Total sessions removed by the inactivity janitor",
	})

	m.storageErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "storage_errors_total",
		Help:      "Total storage collaborator errors by operation",
	}, []string{"operation"})

	m.samplesWritten = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "traffic_samples_written_total",
		Help:      "Total traffic samples persisted",
	})

	m.sampleQueueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sample_queue_size",
		Help:      "Current number of traffic samples waiting to be persisted",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by endpoint, method and status code",
	}, []string{"endpoint", "method", "status"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "Histogram of HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status"})
}

// Gateway metrics functions.

// UpdateActiveConnections sets the number of currently connected clients.
func UpdateActiveConnections(count int) {
	globalManager.connectionsActive.Set(float64(count))
}

// RecordInboundEvent increments the inbound event counter for an event name.
func RecordInboundEvent(event string) {
	globalManager.eventsInbound.WithLabelValues(event).Inc()
}

// RecordRejectedEvent increments the rejected event counter for a reason.
func RecordRejectedEvent(reason string) {
	globalManager.eventsRejected.WithLabelValues(reason).Inc()
}

// RecordRateLimited increments the rate limiter rejection counter.
func RecordRateLimited() {
	globalManager.rateLimitedEvents.Inc()
}

// RecordOutboundDropped increments the dropped outbound event counter.
func RecordOutboundDropped() {
	globalManager.outboundDropped.Inc()
}

// RecordBroadcast increments the broadcast counter for an event name.
func RecordBroadcast(event string) {
	globalManager.broadcastsSent.WithLabelValues(event).Inc()
}

// RecordUnicast increments the unicast counter for an event name.
func RecordUnicast(event string) {
	globalManager.unicastsSent.WithLabelValues(event).Inc()
}

// Geofence metrics functions.

// RecordZoneEnter increments the zone enter transition counter.
func RecordZoneEnter() {
	globalManager.zoneTransitions.WithLabelValues("enter").Inc()
}

// RecordZoneExit increments the zone exit transition counter.
func RecordZoneExit() {
	globalManager.zoneTransitions.WithLabelValues("exit").Inc()
}

// Incident metrics functions.

// RecordIncidentReported increments the accepted incident counter.
func RecordIncidentReported() {
	globalManager.incidentsReported.Inc()
}

// RecordIncidentAlert increments the delivered incident alert counter.
func RecordIncidentAlert() {
	globalManager.incidentAlerts.Inc()
}

// Background job metrics functions.

// RecordCongestionRunDuration records the duration of a congestion recompute run.
func RecordCongestionRunDuration(durationMs float64) {
	globalManager.congestionRunDuration.Observe(durationMs)
}

// RecordCongestionRunSkipped increments the skipped tick counter.
func RecordCongestionRunSkipped() {
	globalManager.congestionRunSkipped.Inc()
}

// RecordZoneRecomputed increments the per-zone recompute counter.
func RecordZoneRecomputed() {
	globalManager.zonesRecomputed.Inc()
}

// RecordSessionsEvicted adds to the evicted session counter.
func RecordSessionsEvicted(count int) {
	globalManager.sessionsEvicted.Add(float64(count))
}

// Storage metrics functions.

// RecordStorageError increments the storage error counter for an operation.
func RecordStorageError(operation string) {
	globalManager.storageErrors.WithLabelValues(operation).Inc()
}

// RecordSampleWritten increments the persisted sample counter.
func RecordSampleWritten() {
	globalManager.samplesWritten.Inc()
}

// UpdateSampleQueueSize sets the current sample queue depth.
func UpdateSampleQueueSize(size int) {
	globalManager.sampleQueueSize.Set(float64(size))
}

// HTTP metrics functions.

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, status string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, status string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, status).Observe(durationMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
