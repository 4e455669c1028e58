package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fingle-ai/chat-platform/internal/cache"
	"github.com/fingle-ai/chat-platform/internal/middleware"
	"github.com/fingle-ai/chat-platform/pkg/logger"
)

// CacheHandler exposes cache administration endpoints.
type CacheHandler struct {
	engine      *cache.Engine
	coordinator *cache.Coordinator
	logger      *logger.Logger
}

// NewCacheHandler creates a new cache admin handler.
func NewCacheHandler(engine *cache.Engine, coordinator *cache.Coordinator, log *logger.Logger) *CacheHandler {
	return &CacheHandler{
		engine:      engine,
		coordinator: coordinator,
		logger:      log,
	}
}

// Stats handles GET /api/v1/admin/cache/stats
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to read cache stats")
		writeError(w, http.StatusServiceUnavailable, "cache unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Flush handles POST /api/v1/admin/cache/flush
//
// Runs a flush synchronously and returns the run result. The run is detached
// from the request context: a client disconnect must not cancel a drain with
// its insert still pending. Errors are carried in the result's errors field,
// not as an HTTP failure.
func (h *CacheHandler) Flush(w http.ResponseWriter, r *http.Request) {
	result := h.coordinator.Run(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, result)
}

// ClearConversation handles DELETE /api/v1/admin/cache/conversations/:id
func (h *CacheHandler) ClearConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.ClearConversationCache(r.Context(), conversationID); err != nil {
		h.logger.Error("failed to clear conversation cache")
		writeError(w, http.StatusServiceUnavailable, "cache unavailable")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
