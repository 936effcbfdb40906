// Package api declares the HTTP read surface and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/gridlock/internal/domain/model"
	"github.com/okian/gridlock/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the core service.
type Dependencies interface {
	// UnresolvedIncidents returns open incidents from the last 24 hours.
	UnresolvedIncidents(ctx context.Context) ([]types.IncidentView, error)

	// Zones returns every zone definition with its congestion level.
	Zones(ctx context.Context) ([]types.ZoneView, error)

	// CreateZone validates and persists a new zone definition.
	CreateZone(ctx context.Context, name string, polygon []model.LatLng) (types.ZoneView, error)

	// Heatmap returns traffic samples from the last hour.
	Heatmap(ctx context.Context) ([]types.SampleView, error)
}

// Server wires HTTP routes for the read API.
type Server struct {
	healthHandler    *HealthHandler
	metricsHandler   *MetricsHandler
	statsHandler     *StatsHandler
	incidentsHandler *IncidentsHandler
	zonesHandler     *ZonesHandler
	heatmapHandler   *HeatmapHandler

	allowedOrigin string
}

// ServerOption applies a configuration option to the Server.
type ServerOption func(*Server)

// WithAllowedOrigin sets the CORS allow-origin value for every route.
func WithAllowedOrigin(origin string) ServerOption {
	return func(s *Server) {
		if origin != "" {
			s.allowedOrigin = origin
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	s := &Server{
		healthHandler:    NewHealthHandler(),
		metricsHandler:   NewMetricsHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		incidentsHandler: NewIncidentsHandler(deps),
		zonesHandler:     NewZonesHandler(deps),
		heatmapHandler:   NewHeatmapHandler(deps),
		allowedOrigin:    "*",
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.metricsHandler.HandleMetrics)
	mux.HandleFunc("/stats", s.cors(MetricsMiddleware(s.statsHandler.HandleStats, "stats")))
	mux.HandleFunc("/api/incidents", s.cors(MetricsMiddleware(s.incidentsHandler.HandleGetIncidents, "incidents")))
	mux.HandleFunc("/api/zones", s.cors(MetricsMiddleware(s.zonesHandler.HandleZones, "zones")))
	mux.HandleFunc("/api/heatmap", s.cors(MetricsMiddleware(s.heatmapHandler.HandleGetHeatmap, "heatmap")))
}

// cors stamps the configured allow-origin header and answers preflights.
func (s *Server) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
