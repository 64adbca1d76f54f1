package server

import (
	"context"
	"net/http"
	"time"

	"lyrebird/internal/audio"
)

// HealthStatus represents operational status for the /health endpoint.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Database  string                 `json:"database"`
	Cache     string                 `json:"cache"`
	Audio     bool                   `json:"audioAvailable"`
	Player    string                 `json:"player"`
	Tracks    int                    `json:"playlistLength"`
	Renderers int                    `json:"renderers"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// handleHealthCheck returns basic liveness + dependency checks.
func (ps *PlayerServer) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	health := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Database:  "disabled",
		Cache:     "disabled",
		Audio:     audio.Available,
		Player:    string(ps.transport.Status()),
		Tracks:    ps.transport.Playlist().Len(),
		Renderers: ps.renderers.Count(),
		Details:   make(map[string]interface{}),
	}

	if ps.ledger != nil {
		health.Database = "ok"
		if err := ps.ledger.Ping(); err != nil {
			health.Status = "unhealthy"
			health.Database = "error"
			health.Details["database_error"] = err.Error()
		}
	}

	if ps.cache != nil {
		health.Cache = "ok"
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := ps.cache.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Cache = "error"
			health.Details["cache_error"] = err.Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if health.Status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	ps.respondJSON(w, health)
}
