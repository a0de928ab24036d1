package redis

import (
	"context"
	"fmt"
	"time"

	"secure-withdrawal-gateway/internal/core/ports"

	goredis "github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "wdr:ratelimit:"

// RateLimitStore implements ports.RateLimiter with one counter per key and
// fixed window.
type RateLimitStore struct {
	client goredis.Cmdable
	now    func() time.Time
}

func NewRateLimitStore(client goredis.Cmdable) *RateLimitStore {
	return &RateLimitStore{client: client, now: time.Now}
}

// Allow counts one request against key. INCR and EXPIRE run in one MULTI,
// so a counter never outlives its window.
func (s *RateLimitStore) Allow(ctx context.Context, key string, limit int64, window time.Duration) (ports.RateLimitDecision, error) {
	seconds := max(int64(window/time.Second), 1)
	windowID := s.now().Unix() / seconds
	counterKey := fmt.Sprintf("%s%s:%d", rateLimitPrefix, key, windowID)

	var incr *goredis.IntCmd
	if _, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, counterKey)
		pipe.Expire(ctx, counterKey, time.Duration(seconds+1)*time.Second)
		return nil
	}); err != nil {
		return ports.RateLimitDecision{}, fmt.Errorf("redis rate limit incr: %w", err)
	}

	count := incr.Val()
	return ports.RateLimitDecision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   time.Unix((windowID+1)*seconds, 0),
	}, nil
}
