package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultDedupeTTL is how long a seen message ID is remembered.
const DefaultDedupeTTL = 24 * time.Hour

// RedisDeduper remembers (bot, message) pairs in Redis with SETNX.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper. ttl <= 0 uses DefaultDedupeTTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

// FirstSeen records the pair and reports whether it was new.
func (d *RedisDeduper) FirstSeen(ctx context.Context, botID uuid.UUID, messageID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupeKey(botID, messageID), 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record webhook message: %w", err)
	}
	return ok, nil
}

// Forget removes the pair so the next FirstSeen reports it as new.
func (d *RedisDeduper) Forget(ctx context.Context, botID uuid.UUID, messageID string) error {
	if err := d.client.Del(ctx, dedupeKey(botID, messageID)).Err(); err != nil {
		return fmt.Errorf("failed to forget webhook message: %w", err)
	}
	return nil
}

func dedupeKey(botID uuid.UUID, messageID string) string {
	return fmt.Sprintf("botdesk:webhook:%s:%s", botID, messageID)
}

var _ Deduper = (*RedisDeduper)(nil)
