package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fingle-ai/chat-platform/internal/cache"
	"github.com/fingle-ai/chat-platform/internal/llm"
	"github.com/fingle-ai/chat-platform/internal/model"
	"github.com/fingle-ai/chat-platform/pkg/logger"
	"github.com/fingle-ai/chat-platform/pkg/metrics"
)

// historyContextLimit caps how much merged history is fed to the LLM.
const historyContextLimit = 50

// ChatService runs chat turns: it buffers messages through the cache engine
// and generates assistant replies. Durable rows are never written here; the
// flush coordinator owns persistence.
type ChatService struct {
	engine    *cache.Engine
	llmClient llm.Client
	log       *logger.Logger
}

// NewChatService creates a new chat service. llmClient may be nil, in which
// case turns record the user message only.
func NewChatService(engine *cache.Engine, llmClient llm.Client, log *logger.Logger) *ChatService {
	return &ChatService{
		engine:    engine,
		llmClient: llmClient,
		log:       log,
	}
}

// cacheAndPublish buffers one message and broadcasts it.
func (s *ChatService) cacheAndPublish(ctx context.Context, conversationID string, role model.Role, content string, ts time.Time, audio *model.AudioMetadata) (*model.CachedMessage, error) {
	id, err := s.engine.CacheMessage(ctx, conversationID, role, content, ts, audio)
	if err != nil {
		return nil, err
	}

	msg := &model.CachedMessage{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      model.EpochSeconds(ts),
		ID:             id,
		Audio:          audio,
	}
	s.engine.PublishMessage(ctx, msg)
	return msg, nil
}

// Send runs a full chat turn: cache the user message, complete, cache the
// assistant message. The caller has already verified the conversation exists.
func (s *ChatService) Send(ctx context.Context, conversationID string, req *model.SendMessageRequest) (*model.SendMessageResponse, error) {
	userMsg, err := s.cacheAndPublish(ctx, conversationID, model.RoleUser, req.Content, time.Now(), req.Audio)
	if err != nil {
		return nil, fmt.Errorf("cache user message: %w", err)
	}

	if s.llmClient == nil {
		return &model.SendMessageResponse{UserMessage: userMsg}, nil
	}

	resp, err := s.llmClient.Complete(ctx, &llm.CompletionRequest{
		Model:    req.Model,
		Messages: s.contextMessages(ctx, conversationID),
	})
	if err != nil {
		// The user message is already buffered; surface the completion
		// failure alongside it.
		return &model.SendMessageResponse{UserMessage: userMsg}, fmt.Errorf("completion failed: %w", err)
	}

	assistantMsg, err := s.cacheAndPublish(ctx, conversationID, model.RoleAssistant, resp.Content, time.Now(), nil)
	if err != nil {
		return &model.SendMessageResponse{UserMessage: userMsg}, fmt.Errorf("cache assistant message: %w", err)
	}

	return &model.SendMessageResponse{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
	}, nil
}

// SendStream runs a chat turn with a streamed completion, invoking onToken per
// token. The assistant message is cached once the stream completes.
func (s *ChatService) SendStream(ctx context.Context, conversationID string, req *model.SendMessageRequest, onToken llm.StreamCallback) (*model.SendMessageResponse, error) {
	userMsg, err := s.cacheAndPublish(ctx, conversationID, model.RoleUser, req.Content, time.Now(), req.Audio)
	if err != nil {
		return nil, fmt.Errorf("cache user message: %w", err)
	}

	if s.llmClient == nil {
		return &model.SendMessageResponse{UserMessage: userMsg}, nil
	}

	start := time.Now()
	resp, err := s.llmClient.CompleteStream(ctx, &llm.CompletionRequest{
		Model:    req.Model,
		Messages: s.contextMessages(ctx, conversationID),
	}, onToken)
	if err != nil {
		metrics.RecordLLMStream(req.Model, "error", time.Since(start).Seconds(), 0, 0)
		return &model.SendMessageResponse{UserMessage: userMsg}, fmt.Errorf("completion stream failed: %w", err)
	}
	metrics.RecordLLMStream(resp.Model, "success", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)

	assistantMsg, err := s.cacheAndPublish(ctx, conversationID, model.RoleAssistant, resp.Content, time.Now(), nil)
	if err != nil {
		return &model.SendMessageResponse{UserMessage: userMsg}, fmt.Errorf("cache assistant message: %w", err)
	}

	return &model.SendMessageResponse{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
	}, nil
}

// History returns the merged cache+database history for a conversation.
func (s *ChatService) History(ctx context.Context, conversationID string, limit int) (*model.ListMessagesResponse, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	msgs, err := s.engine.GetMessageHistory(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []model.CachedMessage{}
	}
	return &model.ListMessagesResponse{Messages: msgs}, nil
}

// contextMessages builds the LLM context from merged history. Best effort: on
// read failure the turn proceeds with whatever was retrieved.
func (s *ChatService) contextMessages(ctx context.Context, conversationID string) []llm.ChatMessage {
	history, err := s.engine.GetMessageHistory(ctx, conversationID, historyContextLimit)
	if err != nil {
		s.log.Warn("history fetch for completion context failed")
	}

	msgs := make([]llm.ChatMessage, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, llm.ChatMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return msgs
}
