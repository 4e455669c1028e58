// Package cache implements the write-behind message cache: an engine that
// buffers chat messages in Redis and a coordinator that flushes them to
// Postgres in batches.
package cache

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fingle-ai/chat-platform/internal/model"
	"github.com/fingle-ai/chat-platform/pkg/logger"
	"github.com/fingle-ai/chat-platform/pkg/metrics"
)

// Ephemeral is the fast TTL-capable list store the engine buffers into.
// *store.RedisStore satisfies it.
type Ephemeral interface {
	Prepend(ctx context.Context, key string, value []byte) error
	SetExpiry(ctx context.Context, key string, ttl time.Duration) error
	RangeRead(ctx context.Context, key string, start, stop int64) ([]string, error)
	DrainTail(ctx context.Context, key string, n int64) ([]string, error)
	DeleteKey(ctx context.Context, key string) error
	ListLen(ctx context.Context, key string) (int64, error)
	ScanKeysByPattern(ctx context.Context, pattern string) ([]string, error)
	MemoryStats(ctx context.Context) (int64, string, error)
}

// Durable is the slice of the durable store the cache subsystem consumes.
// store.DataStore satisfies it.
type Durable interface {
	ConversationExists(ctx context.Context, id string) (bool, error)
	BulkInsertMessages(ctx context.Context, rows []model.MessageRow) error
	QueryMessagesBefore(ctx context.Context, conversationID string, before time.Time, limit int) ([]model.MessageRow, error)
}

// Publisher broadcasts message payloads to UI subscribers. Fire-and-forget.
type Publisher interface {
	Publish(ctx context.Context, conversationID string, payload []byte) error
}

// FlushTrigger requests an immediate flush run. Implementations must coalesce:
// firing it redundantly from concurrent writers must not pile up runs.
type FlushTrigger interface {
	TriggerFlush()
}

// Options configures the engine.
type Options struct {
	// TTL is the expiry refreshed on each per-conversation list write.
	TTL time.Duration
	// BatchSize is the pending-queue length that triggers an immediate flush.
	BatchSize int64
}

// Engine is the message cache engine. It owns the ephemeral representation of
// a message from cache-write until a flush run picks it up.
type Engine struct {
	eph       Ephemeral
	durable   Durable
	publisher Publisher
	trigger   FlushTrigger
	opts      Options
	log       *logger.Logger
}

// NewEngine creates a message cache engine. The publisher and trigger may be
// nil; publishing and threshold flushing are then disabled.
func NewEngine(eph Ephemeral, durable Durable, publisher Publisher, trigger FlushTrigger, opts Options, log *logger.Logger) *Engine {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	return &Engine{
		eph:       eph,
		durable:   durable,
		publisher: publisher,
		trigger:   trigger,
		opts:      opts,
		log:       log,
	}
}

// CacheMessage buffers a message in the ephemeral store and returns its
// generated id. It never blocks on durable persistence. Content is a
// pass-through; emptiness and role checks are the caller's responsibility.
func (e *Engine) CacheMessage(ctx context.Context, conversationID string, role model.Role, content string, ts time.Time, audio *model.AudioMetadata) (string, error) {
	msg := &model.CachedMessage{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      model.EpochSeconds(ts),
		ID:             uuid.Must(uuid.NewV7()).String(),
		Audio:          audio,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}

	key := conversationKey(conversationID)
	if err := e.eph.Prepend(ctx, key, data); err != nil {
		return "", storeErr("prepend conversation list", err)
	}
	if err := e.eph.SetExpiry(ctx, key, e.opts.TTL); err != nil {
		return "", storeErr("refresh conversation ttl", err)
	}
	if err := e.eph.Prepend(ctx, pendingQueueKey, data); err != nil {
		return "", storeErr("prepend pending queue", err)
	}

	pending, err := e.eph.ListLen(ctx, pendingQueueKey)
	if err != nil {
		return "", storeErr("read pending queue length", err)
	}
	metrics.PendingQueueDepth.Set(float64(pending))
	metrics.MessagesCachedTotal.WithLabelValues(string(role)).Inc()

	if pending >= e.opts.BatchSize && e.trigger != nil {
		e.trigger.TriggerFlush()
	}

	return msg.ID, nil
}

// GetCachedMessages reads up to limit most-recent cached messages for a
// conversation and returns them oldest first. Entries that fail to deserialize
// are skipped and counted; a single corrupt entry must not abort the read.
func (e *Engine) GetCachedMessages(ctx context.Context, conversationID string, limit int) ([]model.CachedMessage, error) {
	if limit <= 0 {
		return nil, nil
	}

	raw, err := e.eph.RangeRead(ctx, conversationKey(conversationID), 0, int64(limit)-1)
	if err != nil {
		return nil, storeErr("read conversation list", err)
	}

	// Stored newest-first; decode then reverse to oldest-first.
	msgs := make([]model.CachedMessage, 0, len(raw))
	for _, entry := range raw {
		var msg model.CachedMessage
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			metrics.CorruptEntriesTotal.Inc()
			e.log.Warn("skipping corrupt cache entry",
				zap.String("conversation_id", conversationID),
				zap.Error(err),
			)
			continue
		}
		msgs = append(msgs, msg)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// GetMessageHistory returns the merged cache+database view of a conversation,
// oldest first, truncated to the most recent limit entries.
//
// The cutoff is the oldest cached timestamp (or one TTL ago when the cache is
// empty): durable rows at or after the cutoff are still present in the cache,
// since the primary flush path leaves conversation lists to expire by TTL
// instead of clearing them. Fetching only rows strictly before the cutoff is
// what keeps the merge from double-counting. Do not "simplify" this.
func (e *Engine) GetMessageHistory(ctx context.Context, conversationID string, limit int) ([]model.CachedMessage, error) {
	cached, err := e.GetCachedMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-e.opts.TTL)
	if len(cached) > 0 {
		cutoff = cached[0].Time()
	}

	merged := cached
	if dbLimit := limit - len(cached); dbLimit > 0 {
		rows, err := e.durable.QueryMessagesBefore(ctx, conversationID, cutoff, dbLimit)
		if err != nil {
			// History reads are best-effort: serve the cached portion
			// rather than failing the whole read.
			e.log.Warn("durable history fetch failed, serving cache only",
				zap.String("conversation_id", conversationID),
				zap.Error(err),
			)
		}
		for i := range rows {
			merged = append(merged, rowToCached(&rows[i]))
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	if len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}
	return merged, nil
}

func rowToCached(r *model.MessageRow) model.CachedMessage {
	msg := model.CachedMessage{
		ConversationID: r.ConversationID,
		Role:           r.Role,
		Content:        r.Content,
		Timestamp:      model.EpochSeconds(r.CreatedAt),
		ID:             strconv.FormatInt(r.ID, 10),
	}
	if r.HasUserAudio {
		audio := &model.AudioMetadata{HasAudio: true}
		if r.AudioFormat != nil {
			audio.Format = *r.AudioFormat
		}
		msg.Audio = audio
	}
	return msg
}

// PublishMessage broadcasts a message to the conversation's channel. No
// delivery guarantee; failures are logged and never surfaced to the hot path.
func (e *Engine) PublishMessage(ctx context.Context, msg *model.CachedMessage) {
	if e.publisher == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := e.publisher.Publish(ctx, msg.ConversationID, data); err != nil {
		e.log.Warn("message broadcast failed",
			zap.String("conversation_id", msg.ConversationID),
			zap.Error(err),
		)
	}
}

// ClearConversationCache deletes a conversation's cached list. Called on
// conversation deletion, never by the primary flush path.
func (e *Engine) ClearConversationCache(ctx context.Context, conversationID string) error {
	if err := e.eph.DeleteKey(ctx, conversationKey(conversationID)); err != nil {
		return storeErr("delete conversation list", err)
	}
	return nil
}

// Stats returns a diagnostic snapshot of the ephemeral store.
func (e *Engine) Stats(ctx context.Context) (*model.CacheStats, error) {
	pending, err := e.eph.ListLen(ctx, pendingQueueKey)
	if err != nil {
		return nil, storeErr("read pending queue length", err)
	}

	used, raw, err := e.eph.MemoryStats(ctx)
	if err != nil {
		// Some deployments (and the test server) don't expose INFO.
		e.log.Debug("memory stats unavailable", zap.Error(err))
	}

	return &model.CacheStats{
		UsedMemoryBytes: used,
		PendingMessages: pending,
		StoreInfo:       raw,
	}, nil
}
