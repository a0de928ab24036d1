package postgres

import (
	"context"
	"errors"
	"fmt"

	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// IdempotencyRepo is the durable record of executed submissions and
// fundings. The cache in front of it may lose entries; this table may not.
type IdempotencyRepo struct {
	pool Pool
}

func NewIdempotencyRepo(pool Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

// Create records the outcome inside the transaction that produced it. A key
// recorded by a concurrent transaction yields ports.ErrIdempotencyKeyExists.
func (r *IdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO idempotency_logs (key, resource_id, response_json, created_at)
		VALUES ($1, $2, $3, $4)`,
		log.Key, log.ResourceID, log.ResponseJSON, log.CreatedAt)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ports.ErrIdempotencyKeyExists, log.Key)
	}
	return fmt.Errorf("record idempotency key %s: %w", log.Key, err)
}

// Get returns nil, nil for an unknown key.
func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyLog, error) {
	var log domain.IdempotencyLog
	err := r.pool.QueryRow(ctx,
		`SELECT key, resource_id, response_json, created_at
		FROM idempotency_logs WHERE key = $1`, key).
		Scan(&log.Key, &log.ResourceID, &log.ResponseJSON, &log.CreatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("get idempotency log: %w", err)
	}
	return &log, nil
}
