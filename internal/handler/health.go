package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/fingle-ai/chat-platform/internal/broadcast"
)

// Pinger is a connection that can be probed for readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	redis       Pinger
	postgres    Pinger
	broadcaster broadcast.Broadcaster
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(redis, postgres Pinger, b broadcast.Broadcaster) *HealthHandler {
	return &HealthHandler{
		redis:       redis,
		postgres:    postgres,
		broadcaster: b,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.redis.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "redis not reachable",
		})
		return
	}

	if err := h.postgres.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "postgres not reachable",
		})
		return
	}

	if h.broadcaster != nil && !h.broadcaster.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "broadcaster not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
