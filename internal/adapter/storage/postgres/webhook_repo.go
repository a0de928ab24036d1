package postgres

import (
	"context"
	"fmt"

	"secure-withdrawal-gateway/internal/core/domain"
)

// WebhookRepo implements ports.WebhookRepository. Each delivery attempt is
// one row.
type WebhookRepo struct {
	pool Pool
}

// NewWebhookRepo creates a PostgreSQL-backed webhook delivery log.
func NewWebhookRepo(pool Pool) *WebhookRepo {
	return &WebhookRepo{pool: pool}
}

// Create records a delivery attempt.
func (r *WebhookRepo) Create(ctx context.Context, log *domain.WebhookDeliveryLog) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO webhook_delivery_logs
		 (id, withdrawal_id, account_id, webhook_url, payload, http_status, attempt, status, last_error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		log.ID, log.WithdrawalID, log.AccountID, log.WebhookURL,
		log.Payload, log.HTTPStatus, log.Attempt, string(log.Status),
		log.LastError, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook delivery log: %w", err)
	}
	return nil
}
