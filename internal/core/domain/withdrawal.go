package domain

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// WithdrawalStatus represents the outcome of a submission.
type WithdrawalStatus string

const (
	WithdrawalStatusSubmitted WithdrawalStatus = "SUBMITTED"
	WithdrawalStatusRejected  WithdrawalStatus = "REJECTED"
)

// Withdrawal is an immutable ledger entry for an executed quotation.
type Withdrawal struct {
	ID            uuid.UUID        `json:"id"`
	QuotationID   string           `json:"quotation_id"`
	AccountID     uuid.UUID        `json:"account_id"`
	WalletID      uuid.UUID        `json:"wallet_id"`
	AmountWei     *big.Int         `json:"amount_wei"`
	FeeWei        *big.Int         `json:"fee_wei"`
	OperationType OperationType    `json:"operation_type"`
	Strategy      SigningStrategy  `json:"strategy"`
	ArtifactEnc   string           `json:"-"` // sealed signed artifact
	Status        WithdrawalStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Total returns amount + fee debited from the wallet.
func (w *Withdrawal) Total() *big.Int {
	total := new(big.Int)
	if w.AmountWei != nil {
		total.Add(total, w.AmountWei)
	}
	if w.FeeWei != nil {
		total.Add(total, w.FeeWei)
	}
	return total
}

// IsAccepted returns true if the withdrawal was executed.
func (w *Withdrawal) IsAccepted() bool {
	return w.Status == WithdrawalStatusSubmitted
}
