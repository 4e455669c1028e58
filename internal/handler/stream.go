package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fingle-ai/chat-platform/internal/broadcast"
	"github.com/fingle-ai/chat-platform/internal/middleware"
	"github.com/fingle-ai/chat-platform/internal/model"
	"github.com/fingle-ai/chat-platform/internal/service"
	"github.com/fingle-ai/chat-platform/pkg/logger"
	"github.com/fingle-ai/chat-platform/pkg/metrics"
)

// StreamHandler handles SSE streaming endpoints.
type StreamHandler struct {
	chatService         *service.ChatService
	conversationService *service.ConversationService
	messageHandler      *MessageHandler
	broadcaster         broadcast.Broadcaster
	logger              *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(
	chatSvc *service.ChatService,
	convSvc *service.ConversationService,
	b broadcast.Broadcaster,
	log *logger.Logger,
) *StreamHandler {
	return &StreamHandler{
		chatService:         chatSvc,
		conversationService: convSvc,
		messageHandler:      NewMessageHandler(chatSvc, convSvc, log),
		broadcaster:         b,
		logger:              log,
	}
}

// TokenEvent represents a streamed completion token.
type TokenEvent struct {
	Token string `json:"token"`
	Index int    `json:"index"`
}

// ReplayCompleteEvent marks the end of the history replay.
type ReplayCompleteEvent struct {
	MessageCount int `json:"message_count"`
}

// HeartbeatEvent keeps idle SSE connections alive.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEvent reports a stream-side failure.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func sseSetup(w http.ResponseWriter) (http.Flusher, bool) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	return flusher, ok
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}

// Stream handles GET /api/v1/conversations/:id/stream
//
// Replays the merged history, then delivers live broadcast messages until the
// client disconnects.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conversationID, ok := h.messageHandler.requireConversation(w, r)
	if !ok {
		return
	}

	flusher, ok := sseSetup(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.SSEConnectionsActive.Inc()
	defer metrics.SSEConnectionsActive.Dec()

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"conversation_id": conversationID,
	})

	// Subscribe before replay so nothing published mid-replay is lost.
	sub, err := h.broadcaster.Subscribe(ctx, conversationID)
	if err != nil {
		h.logger.Error("failed to subscribe to conversation channel")
		sendSSEEvent(w, flusher, "error", &ErrorEvent{
			Code:    "subscribe_error",
			Message: "failed to subscribe for live updates",
		})
		return
	}
	defer sub.Close()

	history, err := h.chatService.History(ctx, conversationID, 100)
	if err != nil {
		sendSSEEvent(w, flusher, "error", &ErrorEvent{
			Code:    "replay_error",
			Message: "failed to replay messages",
		})
	} else {
		for i := range history.Messages {
			sendSSEEvent(w, flusher, "message", &history.Messages[i])
		}
		sendSSEEvent(w, flusher, "replay_complete", &ReplayCompleteEvent{
			MessageCount: len(history.Messages),
		})
	}

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case payload, open := <-sub.Messages():
			if !open {
				return
			}
			var msg model.CachedMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				continue
			}
			sendSSEEvent(w, flusher, "message", &msg)

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &HeartbeatEvent{Timestamp: time.Now()})
		}
	}
}

// StreamWithMessage handles POST /api/v1/conversations/:id/stream
//
// Runs a chat turn, streaming completion tokens as they arrive. The assistant
// message is cached once the stream finishes.
func (h *StreamHandler) StreamWithMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conversationID, ok := h.messageHandler.requireConversation(w, r)
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

	flusher, ok := sseSetup(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.SSEConnectionsActive.Inc()
	defer metrics.SSEConnectionsActive.Dec()

	resp, err := h.chatService.SendStream(ctx, conversationID, &req, func(token string, index int) error {
		sendSSEEvent(w, flusher, "token", &TokenEvent{Token: token, Index: index})
		return ctx.Err()
	})
	if err != nil {
		h.logger.Error("streamed chat turn failed")
		sendSSEEvent(w, flusher, "error", &ErrorEvent{
			Code:    "completion_error",
			Message: "completion failed",
		})
		if resp == nil {
			return
		}
	}

	if resp.UserMessage != nil {
		sendSSEEvent(w, flusher, "message", resp.UserMessage)
	}
	if resp.AssistantMessage != nil {
		sendSSEEvent(w, flusher, "message", resp.AssistantMessage)
	}
	sendSSEEvent(w, flusher, "done", map[string]string{
		"conversation_id": conversationID,
	})
}
