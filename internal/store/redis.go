package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a thin adapter over a TTL-capable list store. Key naming is
// owned by the callers; this layer only exposes the primitives.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client. Used by tests.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Prepend pushes a value onto the head of a list.
func (s *RedisStore) Prepend(ctx context.Context, key string, value []byte) error {
	return s.client.LPush(ctx, key, value).Err()
}

// SetExpiry resets the TTL on a key.
func (s *RedisStore) SetExpiry(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

// RangeRead reads list entries between start and stop (inclusive, negative
// indexes count from the tail), in list order: head first.
func (s *RedisStore) RangeRead(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.client.LRange(ctx, key, start, stop).Result()
}

// DrainTail atomically reads up to n entries from the tail of a list and
// removes them. The read and the trim execute inside a single MULTI/EXEC
// transaction, so concurrent producers prepending to the head and concurrent
// drains each see a consistent partition of the list. This is the primitive
// the flush path's no-loss/no-duplication guarantee rests on.
func (s *RedisStore) DrainTail(ctx context.Context, key string, n int64) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	var rangeCmd *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		rangeCmd = pipe.LRange(ctx, key, -n, -1)
		pipe.LTrim(ctx, key, 0, -n-1)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return rangeCmd.Val(), nil
}

// DeleteKey removes a key outright.
func (s *RedisStore) DeleteKey(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// ListLen returns the length of a list. Missing keys report zero.
func (s *RedisStore) ListLen(ctx context.Context, key string) (int64, error) {
	return s.client.LLen(ctx, key).Result()
}

// ScanKeysByPattern enumerates all keys matching a glob pattern using SCAN.
func (s *RedisStore) ScanKeysByPattern(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// Publish broadcasts a payload on a channel. Fire-and-forget: Redis pub/sub
// has no delivery guarantee and slow subscribers never block the publisher.
func (s *RedisStore) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.client.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a subscription on a channel for live message delivery.
func (s *RedisStore) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return s.client.Subscribe(ctx, channel)
}

// MemoryStats reads the server's memory section. Returns the used_memory byte
// count and the raw INFO payload.
func (s *RedisStore) MemoryStats(ctx context.Context) (int64, string, error) {
	info, err := s.client.Info(ctx, "memory").Result()
	if err != nil {
		return 0, "", fmt.Errorf("redis info: %w", err)
	}
	return parseUsedMemory(info), info, nil
}

func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\r\n") {
		if v, ok := strings.CutPrefix(line, "used_memory:"); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err == nil {
				return n
			}
		}
	}
	return 0
}
