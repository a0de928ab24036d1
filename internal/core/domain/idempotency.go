package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyLog records a submission result to prevent double execution.
type IdempotencyLog struct {
	Key          string    `json:"key"`         // Format: "account_id:quotation_id"
	ResourceID   uuid.UUID `json:"resource_id"` // withdrawal or funding id
	ResponseJSON []byte    `json:"response_json"`
	CreatedAt    time.Time `json:"created_at"`
}

// BuildSubmissionKey constructs the idempotency key of a quotation submission.
func BuildSubmissionKey(accountID uuid.UUID, quotationID string) string {
	return accountID.String() + ":" + quotationID
}

// BuildFundingKey constructs the idempotency key of a funding request.
func BuildFundingKey(accountID uuid.UUID, reference string) string {
	return accountID.String() + ":fund:" + reference
}
