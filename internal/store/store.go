// Package store provides the ephemeral (Redis) and durable (Postgres) storage
// layers for the chat platform.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fingle-ai/chat-platform/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// DataStore defines the interface for durable storage of conversations and
// messages. PostgresStore implements it; tests substitute fakes.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Conversation operations
	CreateConversation(ctx context.Context, userID, title string) (*model.Conversation, error)
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	ListConversations(ctx context.Context, userID string, limit, offset int) ([]model.Conversation, int, error)
	DeleteConversation(ctx context.Context, id string) error
	ConversationExists(ctx context.Context, id string) (bool, error)

	// Message operations
	BulkInsertMessages(ctx context.Context, rows []model.MessageRow) error
	QueryMessagesBefore(ctx context.Context, conversationID string, before time.Time, limit int) ([]model.MessageRow, error)
}
