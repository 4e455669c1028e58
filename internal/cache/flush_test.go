package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fingle-ai/chat-platform/internal/model"
	"github.com/fingle-ai/chat-platform/pkg/logger"
)

func newTestCoordinator(t *testing.T, durable *fakeDurable, batchSize int64) (*Coordinator, *Engine) {
	t.Helper()
	engine, rs, _ := newTestEngine(t, durable, nil, Options{BatchSize: batchSize})
	return NewCoordinator(rs, durable, batchSize, logger.NewNop()), engine
}

func TestRunFlushesPendingMessages(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable("conv-1", "conv-2")
	coordinator, engine := newTestCoordinator(t, durable, 10)

	for i := 0; i < 3; i++ {
		if _, err := engine.CacheMessage(ctx, "conv-1", model.RoleUser, fmt.Sprintf("a%d", i), time.Now(), nil); err != nil {
			t.Fatalf("CacheMessage: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := engine.CacheMessage(ctx, "conv-2", model.RoleAssistant, fmt.Sprintf("b%d", i), time.Now(), nil); err != nil {
			t.Fatalf("CacheMessage: %v", err)
		}
	}

	result := coordinator.Run(ctx)
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if result.FlushedCount != 5 {
		t.Fatalf("expected 5 flushed, got %d", result.FlushedCount)
	}
	if durable.rowCount() != 5 {
		t.Fatalf("expected 5 durable rows, got %d", durable.rowCount())
	}

	stats, err := engine.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.PendingMessages != 0 {
		t.Fatalf("pending queue not drained: %d left", stats.PendingMessages)
	}
}

func TestRunDrainsInMultipleBatches(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable("conv-1")
	coordinator, engine := newTestCoordinator(t, durable, 2)

	for i := 0; i < 7; i++ {
		if _, err := engine.CacheMessage(ctx, "conv-1", model.RoleUser, fmt.Sprintf("m%d", i), time.Now(), nil); err != nil {
			t.Fatalf("CacheMessage: %v", err)
		}
	}

	result := coordinator.Run(ctx)
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if result.FlushedCount != 7 {
		t.Fatalf("expected 7 flushed across batches, got %d", result.FlushedCount)
	}
}

func TestRunDropsDeletedConversationsSilently(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable() // no conversations exist
	coordinator, engine := newTestCoordinator(t, durable, 10)

	if _, err := engine.CacheMessage(ctx, "conv-gone", model.RoleUser, "orphaned", time.Now(), nil); err != nil {
		t.Fatalf("CacheMessage: %v", err)
	}

	result := coordinator.Run(ctx)
	if len(result.Errors) != 0 {
		t.Fatalf("dropping a deleted conversation must not record errors: %v", result.Errors)
	}
	if result.FlushedCount != 0 {
		t.Fatalf("expected nothing flushed, got %d", result.FlushedCount)
	}
	if durable.rowCount() != 0 {
		t.Fatalf("expected no durable rows, got %d", durable.rowCount())
	}
}

func TestRunIsolatesGroupFailures(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable("conv-ok", "conv-bad")
	durable.insertErr["conv-bad"] = errors.New("constraint violation")
	coordinator, engine := newTestCoordinator(t, durable, 10)

	if _, err := engine.CacheMessage(ctx, "conv-ok", model.RoleUser, "fine", time.Now(), nil); err != nil {
		t.Fatalf("CacheMessage: %v", err)
	}
	if _, err := engine.CacheMessage(ctx, "conv-bad", model.RoleUser, "doomed", time.Now(), nil); err != nil {
		t.Fatalf("CacheMessage: %v", err)
	}

	result := coordinator.Run(ctx)
	if result.FlushedCount != 1 {
		t.Fatalf("expected the healthy group flushed, got %d", result.FlushedCount)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected one recorded error, got %v", result.Errors)
	}
	if durable.rowCount() != 1 || durable.rows[0].ConversationID != "conv-ok" {
		t.Fatalf("wrong rows persisted: %+v", durable.rows)
	}
}

func TestRunSkipsCorruptPendingEntries(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable("conv-1")
	engine, rs, mr := newTestEngine(t, durable, nil, Options{})
	coordinator := NewCoordinator(rs, durable, 10, logger.NewNop())

	if _, err := engine.CacheMessage(ctx, "conv-1", model.RoleUser, "good", time.Now(), nil); err != nil {
		t.Fatalf("CacheMessage: %v", err)
	}
	if _, err := mr.Lpush(pendingQueueKey, "%%garbage%%"); err != nil {
		t.Fatalf("lpush: %v", err)
	}

	result := coordinator.Run(ctx)
	if len(result.Errors) != 0 {
		t.Fatalf("corrupt entries must be skipped, not errored: %v", result.Errors)
	}
	if result.FlushedCount != 1 {
		t.Fatalf("expected 1 flushed, got %d", result.FlushedCount)
	}
}

func TestRunFallbackSweepFlushesConversationLists(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable("conv-1")
	engine, rs, mr := newTestEngine(t, durable, nil, Options{})
	coordinator := NewCoordinator(rs, durable, 10, logger.NewNop())

	// Populate the conversation list, then simulate a lost pending queue.
	if _, err := engine.CacheMessage(ctx, "conv-1", model.RoleUser, "stranded", time.Now(), nil); err != nil {
		t.Fatalf("CacheMessage: %v", err)
	}
	mr.Del(pendingQueueKey)

	result := coordinator.Run(ctx)
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if result.FlushedCount != 1 {
		t.Fatalf("expected sweep to flush 1 message, got %d", result.FlushedCount)
	}
	if mr.Exists("conversation:conv-1:messages") {
		t.Fatal("sweep must delete the conversation key after persisting it")
	}
}

func TestRunFallbackSweepSkipsDeletedConversations(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable()
	engine, rs, mr := newTestEngine(t, durable, nil, Options{})
	coordinator := NewCoordinator(rs, durable, 10, logger.NewNop())

	if _, err := engine.CacheMessage(ctx, "conv-gone", model.RoleUser, "orphaned", time.Now(), nil); err != nil {
		t.Fatalf("CacheMessage: %v", err)
	}
	mr.Del(pendingQueueKey)

	result := coordinator.Run(ctx)
	if len(result.Errors) != 0 || result.FlushedCount != 0 {
		t.Fatalf("expected silent skip, got flushed=%d errors=%v", result.FlushedCount, result.Errors)
	}
	if !mr.Exists("conversation:conv-gone:messages") {
		t.Fatal("sweep must leave unflushed keys to expire by TTL")
	}
}

func TestConcurrentFlushRunsPartitionTheQueue(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable("conv-1", "conv-2")
	engine, rs, mr := newTestEngine(t, durable, nil, Options{})
	coordinator := NewCoordinator(rs, durable, 5, logger.NewNop())

	const writers = 4
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			conv := "conv-1"
			if w%2 == 1 {
				conv = "conv-2"
			}
			for i := 0; i < perWriter; i++ {
				content := fmt.Sprintf("w%d-m%d", w, i)
				if _, err := engine.CacheMessage(ctx, conv, model.RoleUser, content, time.Now(), nil); err != nil {
					t.Errorf("CacheMessage: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	// Clear the conversation lists so a run that happens to drain nothing
	// has no sweep material; the sweep path is allowed to duplicate and is
	// covered separately.
	mr.Del("conversation:conv-1:messages")
	mr.Del("conversation:conv-2:messages")

	var runs sync.WaitGroup
	for r := 0; r < 4; r++ {
		runs.Add(1)
		go func() {
			defer runs.Done()
			coordinator.Run(ctx)
		}()
	}
	runs.Wait()

	seen := make(map[string]bool)
	durable.mu.Lock()
	for _, r := range durable.rows {
		if seen[r.Content] {
			durable.mu.Unlock()
			t.Fatalf("duplicate message persisted: %q", r.Content)
		}
		seen[r.Content] = true
	}
	total := len(durable.rows)
	durable.mu.Unlock()

	if total != writers*perWriter {
		t.Fatalf("expected %d persisted messages, got %d", writers*perWriter, total)
	}
}
