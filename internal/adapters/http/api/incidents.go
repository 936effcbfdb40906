// Package api declares the HTTP read surface and route registration helpers.
package api

import (
	"net/http"
)

// IncidentsHandler handles incident read requests.
type IncidentsHandler struct {
	deps Dependencies
}

// NewIncidentsHandler creates a new incidents handler.
func NewIncidentsHandler(deps Dependencies) *IncidentsHandler {
	return &IncidentsHandler{deps: deps}
}

// HandleGetIncidents handles GET /api/incidents requests. It returns unresolved
// incidents reported in the last 24 hours, newest first.
func (h *IncidentsHandler) HandleGetIncidents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	incidents, err := h.deps.UnresolvedIncidents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", ErrStorage)
		return
	}

	writeJSON(w, http.StatusOK, incidents)
}
