package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fingle-ai/chat-platform/internal/middleware"
	"github.com/fingle-ai/chat-platform/internal/model"
	"github.com/fingle-ai/chat-platform/internal/service"
	"github.com/fingle-ai/chat-platform/internal/store"
	"github.com/fingle-ai/chat-platform/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	chatService         *service.ChatService
	conversationService *service.ConversationService
	logger              *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(
	chatSvc *service.ChatService,
	convSvc *service.ConversationService,
	log *logger.Logger,
) *MessageHandler {
	return &MessageHandler{
		chatService:         chatSvc,
		conversationService: convSvc,
		logger:              log,
	}
}

// requireConversation validates the path id and checks the conversation
// exists, writing the error response itself on failure.
func (h *MessageHandler) requireConversation(w http.ResponseWriter, r *http.Request) (string, bool) {
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}

	if _, err := h.conversationService.Get(r.Context(), conversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
		} else {
			writeError(w, http.StatusInternalServerError, "failed to load conversation")
		}
		return "", false
	}

	return conversationID, true
}

// List handles GET /api/v1/conversations/:id/messages
//
// Returns the merged cache+database history, oldest first.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := h.requireConversation(w, r)
	if !ok {
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	resp, err := h.chatService.History(r.Context(), conversationID, limit)
	if err != nil {
		h.logger.Error("failed to get message history")
		writeError(w, http.StatusInternalServerError, "failed to get messages")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Send handles POST /api/v1/conversations/:id/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := h.requireConversation(w, r)
	if !ok {
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateAudioMetadata(req.Audio); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Stream {
		// Streamed turns go through the SSE endpoint.
		w.Header().Set("X-Stream-URL", "/api/v1/conversations/"+conversationID+"/stream")
		w.WriteHeader(http.StatusAccepted)
		return
	}

	resp, err := h.chatService.Send(r.Context(), conversationID, &req)
	if err != nil {
		if resp != nil && resp.UserMessage != nil {
			// The user message was buffered; report the partial turn.
			h.logger.Warn("chat turn completed partially")
			writeJSON(w, http.StatusCreated, resp)
			return
		}
		h.logger.Error("failed to send message")
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}
