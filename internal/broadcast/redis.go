package broadcast

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fingle-ai/chat-platform/internal/store"
)

// channel returns the pub/sub channel for a conversation. Matches the channel
// names pre-existing subscribers listen on.
func channel(conversationID string) string {
	return "conversation:" + conversationID
}

// RedisBroadcaster fans out over Redis pub/sub, the default driver.
type RedisBroadcaster struct {
	store *store.RedisStore
}

// NewRedis creates a Redis-backed broadcaster over an existing store.
func NewRedis(s *store.RedisStore) *RedisBroadcaster {
	return &RedisBroadcaster{store: s}
}

// Publish broadcasts a payload on the conversation's channel.
func (b *RedisBroadcaster) Publish(ctx context.Context, conversationID string, payload []byte) error {
	return b.store.Publish(ctx, channel(conversationID), payload)
}

// Subscribe opens a live subscription for a conversation.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, conversationID string) (Subscription, error) {
	ps := b.store.Subscribe(ctx, channel(conversationID))
	// Force the SUBSCRIBE round-trip so failures surface here.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, err
	}

	sub := &redisSubscription{ps: ps, ch: make(chan []byte, 64)}
	go sub.pump()
	return sub, nil
}

// Healthy reports whether the underlying Redis connection responds.
func (b *RedisBroadcaster) Healthy() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return b.store.Ping(ctx) == nil
}

// Close is a no-op; the underlying store owns the connection.
func (b *RedisBroadcaster) Close() {}

type redisSubscription struct {
	ps *redis.PubSub
	ch chan []byte
}

func (s *redisSubscription) pump() {
	defer close(s.ch)
	for msg := range s.ps.Channel() {
		// Delivery is fire-and-forget; a reader that stops consuming must
		// not pin this goroutine, so drop on a full buffer.
		select {
		case s.ch <- []byte(msg.Payload):
		default:
		}
	}
}

func (s *redisSubscription) Messages() <-chan []byte {
	return s.ch
}

func (s *redisSubscription) Close() error {
	return s.ps.Close()
}
