package broadcast

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/fingle-ai/chat-platform/internal/store"
)

func newTestBroadcaster(t *testing.T) *RedisBroadcaster {
	t.Helper()
	mr := miniredis.RunT(t)
	rs := store.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { rs.Close() })
	return NewRedis(rs)
}

func TestRedisPublishSubscribe(t *testing.T) {
	ctx := context.Background()
	b := newTestBroadcaster(t)

	sub, err := b.Subscribe(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if err := b.Publish(ctx, "conv-1", []byte("hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case payload := <-sub.Messages():
		if string(payload) != "hello" {
			t.Fatalf("expected hello, got %q", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestStalledSubscriberDropsAndUnwinds(t *testing.T) {
	ctx := context.Background()
	b := newTestBroadcaster(t)

	sub, err := b.Subscribe(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// Publish far past the subscription buffer without ever reading.
	const published = 200
	for i := 0; i < published; i++ {
		if err := b.Publish(ctx, "conv-1", []byte(fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	// Let the pump work through the backlog against a full buffer.
	time.Sleep(200 * time.Millisecond)

	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// The range terminates only if the pump goroutine unwound and closed
	// the channel; overflow beyond the buffer is dropped, not queued.
	received := 0
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-sub.Messages():
			if !open {
				if received == 0 {
					t.Fatal("expected at least some delivery before the drop")
				}
				if received >= published {
					t.Fatalf("expected overflow to be dropped, got all %d", received)
				}
				return
			}
			received++
		case <-deadline:
			t.Fatal("subscription channel never closed; pump goroutine leaked")
		}
	}
}
