package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccountStatus represents the state of a user account.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
)

// UserAccount is the owner of a wallet and of withdrawal sessions.
type UserAccount struct {
	ID            uuid.UUID     `json:"id"`
	Username      string        `json:"username"`
	DisplayName   string        `json:"display_name"`
	Email         string        `json:"email"`
	WalletAddress string        `json:"wallet_address"` // EVM address used by the chain balance feed
	Status        AccountStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
}

// IsActive returns true if the account may start withdrawals.
func (a *UserAccount) IsActive() bool {
	return a.Status == AccountStatusActive
}
