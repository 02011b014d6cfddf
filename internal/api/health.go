package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports readiness of the local dependencies.
type HealthHandler struct {
	db       Pinger
	sessions interface{ Len() int }
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(db Pinger, sessions interface{ Len() int }) *HealthHandler {
	return &HealthHandler{db: db, sessions: sessions}
}

// RegisterHealth registers the readiness route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}

// Health pings the database and reports the number of hosted sessions.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": err.Error()})
		return
	}
	JSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": h.sessions.Len()})
}
