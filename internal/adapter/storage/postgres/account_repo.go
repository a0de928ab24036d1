package postgres

import (
	"context"
	"errors"
	"fmt"

	"secure-withdrawal-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const accountColumns = `id, username, display_name, email, wallet_address, status, created_at`

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct {
	pool Pool
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(pool Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

// Create inserts a new account.
func (r *AccountRepo) Create(ctx context.Context, a *domain.UserAccount) error {
	query := `INSERT INTO accounts (` + accountColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.Username, a.DisplayName, a.Email,
		a.WalletAddress, a.Status, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByID fetches an account by its UUID. Returns nil if it does not exist.
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.UserAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	a, err := scanAccount(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get account by id: %w", err)
	}
	return a, nil
}

// GetByUsername fetches an account by username. Returns nil if it does not exist.
func (r *AccountRepo) GetByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	a, err := scanAccount(r.pool.QueryRow(ctx, query, username))
	if err != nil {
		return nil, fmt.Errorf("get account by username: %w", err)
	}
	return a, nil
}

func scanAccount(row pgx.Row) (*domain.UserAccount, error) {
	a := &domain.UserAccount{}
	err := row.Scan(
		&a.ID, &a.Username, &a.DisplayName, &a.Email,
		&a.WalletAddress, &a.Status, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}
