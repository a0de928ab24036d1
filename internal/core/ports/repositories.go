package ports

import (
	"context"
	"errors"
	"math/big"
	"time"

	"secure-withdrawal-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AccountRepository defines persistence operations for user accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.UserAccount) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.UserAccount, error)
	GetByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
}

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	Create(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
	GetByAccountID(ctx context.Context, accountID uuid.UUID, currency string) (*domain.Wallet, error)
	GetByAccountIDForUpdate(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, currency string) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, encryptedBalance string) error
}

// WithdrawalRepository defines persistence operations for executed and
// rejected withdrawals.
type WithdrawalRepository interface {
	Create(ctx context.Context, tx pgx.Tx, withdrawal *domain.Withdrawal) error
	GetByQuotationID(ctx context.Context, quotationID string) (*domain.Withdrawal, error)
	// Reporting queries
	List(ctx context.Context, params WithdrawalListParams) ([]domain.Withdrawal, int64, error)
	GetStats(ctx context.Context, accountID uuid.UUID, since *time.Time) (*WithdrawalStats, error)
}

// WithdrawalListParams holds filter + pagination for listing withdrawals.
type WithdrawalListParams struct {
	AccountID uuid.UUID
	Status    *domain.WithdrawalStatus
	Page      int
	PageSize  int
}

// WithdrawalStats holds aggregated withdrawal figures of one account.
type WithdrawalStats struct {
	Total       int64
	Submitted   int64
	Rejected    int64
	TotalAmount *big.Int // Sum of submitted principals
	TotalFees   *big.Int // Sum of submitted fees
}

// ErrIdempotencyKeyExists is returned by IdempotencyRepository.Create when
// the key is already recorded.
var ErrIdempotencyKeyExists = errors.New("idempotency key already recorded")

// IdempotencyRepository defines persistence for idempotency logs (DB backup).
type IdempotencyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error
	Get(ctx context.Context, key string) (*domain.IdempotencyLog, error)
}

// AuditRepository persists audit log entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

// WebhookRepository persists webhook delivery attempts.
type WebhookRepository interface {
	Create(ctx context.Context, log *domain.WebhookDeliveryLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
