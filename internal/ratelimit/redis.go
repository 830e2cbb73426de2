package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix  = "generate:ratelimit:"
	maxUpdateAttempts = 8
)

// RedisStore keeps rate records in Redis hashes so several instances share one window per client.
// Each key expires at its window reset, so no sweeping is needed.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client. An empty prefix uses the default.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Update performs an optimistic WATCH/MULTI read-modify-write and retries on conflict.
func (s *RedisStore) Update(ctx context.Context, id string, fn func(rec *RateRecord) *RateRecord) error {
	key := s.prefix + id

	txf := func(tx *redis.Tx) error {
		current, err := readRecord(ctx, tx, key)
		if err != nil {
			return err
		}
		next := fn(current)
		if next == nil {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"count", next.Count,
				"reset_at", next.WindowResetAt.UnixMilli(),
			)
			pipe.PExpireAt(ctx, key, next.WindowResetAt)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("rate limit update for %q: %w", id, err)
	}
	return ErrStoreContention
}

func readRecord(ctx context.Context, tx *redis.Tx, key string) (*RateRecord, error) {
	fields, err := tx.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	count, err := strconv.Atoi(fields["count"])
	if err != nil {
		return nil, fmt.Errorf("corrupt count in %s: %w", key, err)
	}
	resetMs, err := strconv.ParseInt(fields["reset_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt reset_at in %s: %w", key, err)
	}
	return &RateRecord{Count: count, WindowResetAt: time.UnixMilli(resetMs)}, nil
}
