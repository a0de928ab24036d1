package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// SubmissionLock implements ports.SubmissionLock using Redis SET NX.
type SubmissionLock struct {
	client *goredis.Client
	prefix string
}

// NewSubmissionLock creates a Redis-backed submission lock.
func NewSubmissionLock(client *goredis.Client) *SubmissionLock {
	return &SubmissionLock{
		client: client,
		prefix: "wdr:claim:",
	}
}

// Acquire claims quotationID for ttl. Returns true if the claim is new,
// false if another submission already holds it.
func (l *SubmissionLock) Acquire(ctx context.Context, quotationID string, ttl time.Duration) (bool, error) {
	result, err := l.client.SetArgs(ctx, l.prefix+quotationID, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis submission claim: %w", err)
	}
	return result == "OK", nil
}
