package domain

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Wallet is an account's ledger wallet for one currency. The balance is
// stored sealed; services open it with the EncryptionService.
type Wallet struct {
	ID               uuid.UUID `json:"id"`
	AccountID        uuid.UUID `json:"account_id"`
	Currency         string    `json:"currency"`
	EncryptedBalance string    `json:"-"` // AES-256-GCM sealed decimal wei string
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// WalletBalance is the latest known balance of a wallet.
type WalletBalance struct {
	BalanceWei        *big.Int `json:"balance_wei"`
	LastUpdatedMillis int64    `json:"last_updated_millis"`
}

// BalanceEvent is one item of a balance feed. A non-nil Err is terminal:
// the feed closes right after delivering it.
type BalanceEvent struct {
	Balance WalletBalance
	Err     error
}
