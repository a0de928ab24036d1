package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const idempotencyPrefix = "wdr:idempotency:"

// IdempotencyCache holds recorded submission outcomes so retries are
// answered without touching PostgreSQL. A miss is not authoritative: the
// idempotency_logs table is.
type IdempotencyCache struct {
	client goredis.Cmdable
}

func NewIdempotencyCache(client goredis.Cmdable) *IdempotencyCache {
	return &IdempotencyCache{client: client}
}

// Get returns nil, nil on a miss.
func (c *IdempotencyCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, idempotencyPrefix+key).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("redis idempotency get: %w", err)
	}
	return val, nil
}

// Set records value for ttl unless key already holds an outcome; the first
// recorded outcome wins.
func (c *IdempotencyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.client.SetArgs(ctx, idempotencyPrefix+key, value, goredis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("redis idempotency set: %w", err)
	}
	return nil
}
