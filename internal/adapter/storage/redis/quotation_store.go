package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"secure-withdrawal-gateway/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// QuotationStore implements ports.QuotationStore. Quotations are stored as
// JSON and expire with their ExpiresAt.
type QuotationStore struct {
	client *goredis.Client
	prefix string
	now    func() time.Time
}

// NewQuotationStore creates a Redis-backed quotation store.
func NewQuotationStore(client *goredis.Client) *QuotationStore {
	return &QuotationStore{
		client: client,
		prefix: "wdr:quotation:",
		now:    time.Now,
	}
}

// Save stores q until it expires.
func (s *QuotationStore) Save(ctx context.Context, q *domain.Quotation) error {
	ttl := q.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("quotation %s already expired", q.ID)
	}

	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal quotation: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+q.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis quotation save: %w", err)
	}
	return nil
}

// Get returns the quotation, or nil when it is unknown or expired.
func (s *QuotationStore) Get(ctx context.Context, id string) (*domain.Quotation, error) {
	data, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis quotation get: %w", err)
	}

	var q domain.Quotation
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("unmarshal quotation: %w", err)
	}
	if q.IsExpired(s.now()) {
		return nil, nil
	}
	return &q, nil
}
