package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/fingle-ai/chat-platform/internal/model"
	"github.com/fingle-ai/chat-platform/pkg/logger"
	"github.com/fingle-ai/chat-platform/pkg/metrics"
)

// Coordinator drains the pending queue and persists messages in bulk. A run
// holds no state beyond the queue contents, so overlapping runs are safe: each
// drain atomically removes what it reads, and concurrent runs simply partition
// the work.
type Coordinator struct {
	eph       Ephemeral
	durable   Durable
	batchSize int64
	log       *logger.Logger
}

// NewCoordinator creates a batch flush coordinator.
func NewCoordinator(eph Ephemeral, durable Durable, batchSize int64, log *logger.Logger) *Coordinator {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Coordinator{
		eph:       eph,
		durable:   durable,
		batchSize: batchSize,
		log:       log,
	}
}

// Run executes one flush. It drains the pending queue in batches, grouping
// each batch by conversation and bulk-inserting one transaction per group; a
// group's failure is recorded and never aborts its siblings. If the primary
// path flushes nothing, a fallback sweep walks the per-conversation lists.
//
// The result is returned, never raised: callers must inspect Errors.
func (c *Coordinator) Run(ctx context.Context) *model.FlushResult {
	start := time.Now()
	result := &model.FlushResult{Errors: []string{}}

	c.log.Info("starting message flush")

	drainFailed := false
	for {
		batch, err := c.eph.DrainTail(ctx, pendingQueueKey, c.batchSize)
		if err != nil {
			// Connectivity failure during the drain primitive is the one
			// fatal condition for a run.
			result.Errors = append(result.Errors, fmt.Sprintf("drain pending queue: %v", err))
			drainFailed = true
			break
		}
		if len(batch) == 0 {
			break
		}
		c.flushBatch(ctx, batch, result)
	}

	if result.FlushedCount == 0 && !drainFailed {
		c.log.Info("no pending messages, sweeping conversation caches")
		c.fallbackSweep(ctx, result)
	}

	result.Duration = math.Round(time.Since(start).Seconds()*100) / 100
	metrics.RecordFlush(result.FlushedCount, len(result.Errors), result.Duration)

	c.log.Info("message flush completed",
		zap.Int("flushed_count", result.FlushedCount),
		zap.Float64("duration", result.Duration),
	)
	if len(result.Errors) > 0 {
		c.log.Error("message flush recorded errors", zap.Strings("errors", result.Errors))
	}

	return result
}

// flushBatch parses a drained batch, groups it by conversation and persists
// each group in its own transaction.
func (c *Coordinator) flushBatch(ctx context.Context, batch []string, result *model.FlushResult) {
	groups := make(map[string][]model.CachedMessage)
	for _, entry := range batch {
		var msg model.CachedMessage
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			metrics.CorruptEntriesTotal.Inc()
			c.log.Warn("skipping corrupt pending entry", zap.Error(err))
			continue
		}
		groups[msg.ConversationID] = append(groups[msg.ConversationID], msg)
	}

	for conversationID, msgs := range groups {
		exists, err := c.durable.ConversationExists(ctx, conversationID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("conversation %s: existence check: %v", conversationID, err))
			continue
		}
		if !exists {
			// Deleted between cache-write and flush: drop silently.
			c.log.Debug("dropping messages for deleted conversation",
				zap.String("conversation_id", conversationID),
				zap.Int("count", len(msgs)),
			)
			continue
		}

		rows := make([]model.MessageRow, len(msgs))
		for i := range msgs {
			rows[i] = msgs[i].Row()
		}

		if err := c.durable.BulkInsertMessages(ctx, rows); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("conversation %s: %v", conversationID, err))
			continue
		}
		result.FlushedCount += len(rows)
	}
}

// fallbackSweep scans every per-conversation list and flushes each wholesale.
// Entered only when the primary path found nothing. The sweep deletes each key
// after a successful insert; if a primary-path run races it on the same
// conversation, duplicate rows are possible since the durable side has no
// idempotency key. Known gap, accepted.
func (c *Coordinator) fallbackSweep(ctx context.Context, result *model.FlushResult) {
	keys, err := c.eph.ScanKeysByPattern(ctx, conversationKeyPattern)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("scan conversation keys: %v", err))
		return
	}

	for _, key := range keys {
		conversationID := conversationIDFromKey(key)
		if conversationID == "" {
			continue
		}

		exists, err := c.durable.ConversationExists(ctx, conversationID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("conversation %s: existence check: %v", conversationID, err))
			continue
		}
		if !exists {
			continue
		}

		entries, err := c.eph.RangeRead(ctx, key, 0, -1)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("conversation %s: read cache: %v", conversationID, err))
			continue
		}
		if len(entries) == 0 {
			continue
		}

		rows := make([]model.MessageRow, 0, len(entries))
		for _, entry := range entries {
			var msg model.CachedMessage
			if err := json.Unmarshal([]byte(entry), &msg); err != nil {
				metrics.CorruptEntriesTotal.Inc()
				c.log.Warn("skipping corrupt cache entry in sweep",
					zap.String("conversation_id", conversationID),
					zap.Error(err),
				)
				continue
			}
			rows = append(rows, msg.Row())
		}
		if len(rows) == 0 {
			continue
		}

		if err := c.durable.BulkInsertMessages(ctx, rows); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("conversation %s: %v", conversationID, err))
			continue
		}

		result.FlushedCount += len(rows)

		if err := c.eph.DeleteKey(ctx, key); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("conversation %s: delete cache key: %v", conversationID, err))
		}
	}
}
