// Package api declares the HTTP read surface and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/gridlock/internal/adapters/repository"
	"github.com/okian/gridlock/internal/domain/model"
	"github.com/okian/gridlock/internal/domain/types"
)

// ZonesHandler handles zone read and seed requests.
type ZonesHandler struct {
	deps Dependencies
}

// NewZonesHandler creates a new zones handler.
func NewZonesHandler(deps Dependencies) *ZonesHandler {
	return &ZonesHandler{deps: deps}
}

// zoneRequest mirrors the body of POST /api/zones.
type zoneRequest struct {
	Name    string        `json:"name"`
	Polygon []types.Point `json:"polygon"`
}

// HandleZones routes GET (list) and POST (create) for /api/zones.
func (h *ZonesHandler) HandleZones(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r)
	case http.MethodPost:
		h.handleCreate(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *ZonesHandler) handleList(w http.ResponseWriter, r *http.Request) {
	zones, err := h.deps.Zones(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", ErrStorage)
		return
	}
	writeJSON(w, http.StatusOK, zones)
}

func (h *ZonesHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req zoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	polygon := make([]model.LatLng, len(req.Polygon))
	for i, p := range req.Polygon {
		polygon[i] = model.LatLng{Lat: p.Lat, Lng: p.Lng}
	}

	zone, err := h.deps.CreateZone(r.Context(), req.Name, polygon)
	switch {
	case errors.Is(err, repository.ErrInvalidZone):
		writeError(w, http.StatusBadRequest, "invalid_zone", err)
		return
	case errors.Is(err, repository.ErrDuplicateZone):
		writeError(w, http.StatusConflict, "duplicate_zone", err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "storage_error", ErrStorage)
		return
	}

	writeJSON(w, http.StatusCreated, zone)
}
