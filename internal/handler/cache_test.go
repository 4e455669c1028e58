package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/fingle-ai/chat-platform/internal/cache"
	"github.com/fingle-ai/chat-platform/internal/model"
	"github.com/fingle-ai/chat-platform/internal/store"
	"github.com/fingle-ai/chat-platform/pkg/logger"
)

// memDurable is a minimal in-memory durable store for handler tests.
type memDurable struct {
	mu   sync.Mutex
	rows []model.MessageRow
}

func (d *memDurable) ConversationExists(context.Context, string) (bool, error) {
	return true, nil
}

func (d *memDurable) BulkInsertMessages(_ context.Context, rows []model.MessageRow) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rows = append(d.rows, rows...)
	return nil
}

func (d *memDurable) QueryMessagesBefore(context.Context, string, time.Time, int) ([]model.MessageRow, error) {
	return nil, nil
}

func (d *memDurable) rowCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rows)
}

func TestFlushSurvivesClientDisconnect(t *testing.T) {
	mr := miniredis.RunT(t)
	rs := store.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { rs.Close() })

	durable := &memDurable{}
	engine := cache.NewEngine(rs, durable, nil, nil, cache.Options{}, logger.NewNop())
	coordinator := cache.NewCoordinator(rs, durable, 10, logger.NewNop())
	h := NewCacheHandler(engine, coordinator, logger.NewNop())

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := engine.CacheMessage(ctx, "conv-1", model.RoleUser, fmt.Sprintf("m%d", i), time.Now(), nil); err != nil {
			t.Fatalf("CacheMessage: %v", err)
		}
	}

	// The client has already disconnected; the run must still complete.
	reqCtx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/cache/flush", nil).WithContext(reqCtx)
	rec := httptest.NewRecorder()

	h.Flush(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var result model.FlushResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if result.FlushedCount != 5 {
		t.Fatalf("expected 5 flushed, got %d", result.FlushedCount)
	}
	if durable.rowCount() != 5 {
		t.Fatalf("expected 5 durable rows, got %d", durable.rowCount())
	}

	n, err := rs.ListLen(ctx, "pending_messages")
	if err != nil {
		t.Fatalf("ListLen: %v", err)
	}
	if n != 0 {
		t.Fatalf("pending queue not drained: %d left", n)
	}
}
