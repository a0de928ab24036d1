package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookStatus represents the delivery state of a webhook.
type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "PENDING"
	WebhookStatusDelivered WebhookStatus = "DELIVERED"
	WebhookStatusFailed    WebhookStatus = "FAILED"
)

// WebhookDeliveryLog records one webhook delivery attempt.
type WebhookDeliveryLog struct {
	ID           uuid.UUID     `json:"id"`
	WithdrawalID uuid.UUID     `json:"withdrawal_id"`
	AccountID    uuid.UUID     `json:"account_id"`
	WebhookURL   string        `json:"webhook_url"`
	Payload      string        `json:"payload"` // JSON string
	HTTPStatus   *int          `json:"http_status"`
	Attempt      int           `json:"attempt"`
	Status       WebhookStatus `json:"status"`
	LastError    *string       `json:"last_error"`
	CreatedAt    time.Time     `json:"created_at"`
}
