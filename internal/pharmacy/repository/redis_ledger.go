package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	appliedKeyPrefix  = "pharmacy:applied:"
	defaultAppliedTTL = 72 * time.Hour
)

// RedisLedger is an idempotency ledger kept in Redis with a TTL per request
type RedisLedger struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLedger creates a ledger; a non-positive ttl falls back to 72h
func NewRedisLedger(client *redis.Client, ttl time.Duration) *RedisLedger {
	if ttl <= 0 {
		ttl = defaultAppliedTTL
	}
	return &RedisLedger{client: client, ttl: ttl}
}

func (l *RedisLedger) HasApplied(ctx context.Context, requestID string) (bool, error) {
	n, err := l.client.Exists(ctx, appliedKeyPrefix+requestID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *RedisLedger) RecordApplied(ctx context.Context, requestID string) (bool, error) {
	ok, err := l.client.SetNX(ctx, appliedKeyPrefix+requestID, time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (l *RedisLedger) Forget(ctx context.Context, requestID string) error {
	return l.client.Del(ctx, appliedKeyPrefix+requestID).Err()
}
