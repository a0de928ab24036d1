package postgres

import (
	"context"
	"errors"
	"fmt"

	"secure-withdrawal-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const walletColumns = `id, account_id, currency, encrypted_balance, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Create inserts a new wallet within a database transaction.
func (r *WalletRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	query := `INSERT INTO wallets (` + walletColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := tx.Exec(ctx, query,
		w.ID, w.AccountID, w.Currency, w.EncryptedBalance, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByAccountID fetches a wallet by account ID and currency (non-locking read).
func (r *WalletRepo) GetByAccountID(ctx context.Context, accountID uuid.UUID, currency string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE account_id = $1 AND currency = $2`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, accountID, currency))
	if err != nil {
		return nil, fmt.Errorf("get wallet by account id: %w", err)
	}
	return w, nil
}

// GetByAccountIDForUpdate fetches a wallet by account ID and currency with
// pessimistic locking. This MUST be called within a transaction.
func (r *WalletRepo) GetByAccountIDForUpdate(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, currency string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE account_id = $1 AND currency = $2 FOR UPDATE`

	w, err := scanWallet(tx.QueryRow(ctx, query, accountID, currency))
	if err != nil {
		return nil, fmt.Errorf("get wallet for update by account: %w", err)
	}
	return w, nil
}

// UpdateBalance updates a wallet's encrypted balance within a transaction.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, encryptedBalance string) error {
	query := `UPDATE wallets SET encrypted_balance = $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, encryptedBalance, walletID)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", walletID)
	}
	return nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(&w.ID, &w.AccountID, &w.Currency, &w.EncryptedBalance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}
