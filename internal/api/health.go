package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Pinger verifies backing-store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports readiness, including store connectivity when a
// Pinger is configured.
type HealthHandler struct {
	store Pinger
}

// NewHealthHandler creates a health handler. store may be nil for
// memory-only deployments.
func NewHealthHandler(store Pinger) *HealthHandler {
	return &HealthHandler{store: store}
}

// RegisterHealth registers the readiness route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
}

func (h *HealthHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}

	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			status["status"] = "degraded"
			status["store"] = "unreachable"
			JSON(w, http.StatusServiceUnavailable, status)
			return
		}
		status["store"] = "ok"
	}

	JSON(w, http.StatusOK, status)
}
