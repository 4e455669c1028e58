// Package service provides business logic for the chat platform.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fingle-ai/chat-platform/internal/cache"
	"github.com/fingle-ai/chat-platform/internal/model"
	"github.com/fingle-ai/chat-platform/internal/store"
	"github.com/fingle-ai/chat-platform/pkg/logger"
)

// ConversationService handles conversation lifecycle operations.
type ConversationService struct {
	store  store.DataStore
	engine *cache.Engine
	log    *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(st store.DataStore, engine *cache.Engine, log *logger.Logger) *ConversationService {
	return &ConversationService{
		store:  st,
		engine: engine,
		log:    log,
	}
}

// Create creates a new conversation.
func (s *ConversationService) Create(ctx context.Context, userID string, req *model.CreateConversationRequest) (*model.Conversation, error) {
	conv, err := s.store.CreateConversation(ctx, userID, req.Title)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	s.log.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("user_id", userID),
	)
	return conv, nil
}

// Get retrieves a conversation by ID.
func (s *ConversationService) Get(ctx context.Context, id string) (*model.Conversation, error) {
	return s.store.GetConversation(ctx, id)
}

// List retrieves a page of conversations for a user.
func (s *ConversationService) List(ctx context.Context, userID string, limit, offset int) (*model.ListConversationsResponse, error) {
	convs, total, err := s.store.ListConversations(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	return &model.ListConversationsResponse{
		Conversations: convs,
		Total:         total,
		HasMore:       offset+len(convs) < total,
	}, nil
}

// Delete removes a conversation and clears its message cache. Cached messages
// for the conversation are discarded, not flushed; the flush coordinator drops
// any still on the pending queue once the durable record is gone.
func (s *ConversationService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteConversation(ctx, id); err != nil {
		return err
	}

	if err := s.engine.ClearConversationCache(ctx, id); err != nil {
		s.log.Warn("failed to clear conversation cache",
			zap.String("conversation_id", id),
			zap.Error(err),
		)
	}

	s.log.Info("conversation deleted", zap.String("conversation_id", id))
	return nil
}
