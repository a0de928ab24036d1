package domain

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Quotation is a priced, time-bounded offer. It is never mutated after
// creation; editing the amount discards it.
type Quotation struct {
	ID            string        `json:"id"`
	AccountID     uuid.UUID     `json:"account_id"`
	Amount        *big.Int      `json:"amount"` // principal in base units
	Fee           *big.Int      `json:"fee"`    // base units
	Challenge     string        `json:"challenge"`
	OperationType OperationType `json:"operation_type"`
	ExpiresAt     time.Time     `json:"expires_at"`
}

// Total returns amount + fee.
func (q *Quotation) Total() *big.Int {
	total := new(big.Int)
	if q.Amount != nil {
		total.Add(total, q.Amount)
	}
	if q.Fee != nil {
		total.Add(total, q.Fee)
	}
	return total
}

// FeeOrZero returns the fee, or zero for a nil quotation.
func (q *Quotation) FeeOrZero() *big.Int {
	if q == nil || q.Fee == nil {
		return new(big.Int)
	}
	return q.Fee
}

// IsExpired reports whether the quotation can no longer be submitted at now.
func (q *Quotation) IsExpired(now time.Time) bool {
	return !now.Before(q.ExpiresAt)
}
