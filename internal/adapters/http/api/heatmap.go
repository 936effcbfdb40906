// Package api declares the HTTP read surface and route registration helpers.
package api

import (
	"net/http"
)

// HeatmapHandler handles traffic heatmap read requests.
type HeatmapHandler struct {
	deps Dependencies
}

// NewHeatmapHandler creates a new heatmap handler.
func NewHeatmapHandler(deps Dependencies) *HeatmapHandler {
	return &HeatmapHandler{deps: deps}
}

// HandleGetHeatmap handles GET /api/heatmap requests. It returns raw traffic
// samples from the last hour for client-side density rendering.
func (h *HeatmapHandler) HandleGetHeatmap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	samples, err := h.deps.Heatmap(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", ErrStorage)
		return
	}

	writeJSON(w, http.StatusOK, samples)
}
