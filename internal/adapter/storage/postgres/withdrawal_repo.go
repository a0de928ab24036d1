package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Amounts are NUMERIC(78,0) columns exchanged as decimal text.
const withdrawalSelect = `SELECT id, quotation_id, account_id, wallet_id, amount_wei::text, fee_wei::text,
		operation_type, strategy, artifact_enc, status, created_at
		FROM withdrawals`

// WithdrawalRepo implements ports.WithdrawalRepository.
type WithdrawalRepo struct {
	pool Pool
}

// NewWithdrawalRepo creates a new WithdrawalRepo.
func NewWithdrawalRepo(pool Pool) *WithdrawalRepo {
	return &WithdrawalRepo{pool: pool}
}

// Create inserts a withdrawal within a database transaction.
func (r *WithdrawalRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Withdrawal) error {
	query := `INSERT INTO withdrawals (id, quotation_id, account_id, wallet_id, amount_wei, fee_wei,
		operation_type, strategy, artifact_enc, status, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		w.ID, w.QuotationID, w.AccountID, w.WalletID,
		numericText(w.AmountWei), numericText(w.FeeWei),
		w.OperationType, w.Strategy, w.ArtifactEnc, w.Status, w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

// GetByQuotationID fetches the withdrawal recorded for a quotation.
// Returns nil if the quotation was never submitted.
func (r *WithdrawalRepo) GetByQuotationID(ctx context.Context, quotationID string) (*domain.Withdrawal, error) {
	w, err := scanWithdrawal(r.pool.QueryRow(ctx, withdrawalSelect+` WHERE quotation_id = $1`, quotationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get withdrawal by quotation: %w", err)
	}
	return w, nil
}

// List fetches an account's withdrawals with filtering and pagination.
func (r *WithdrawalRepo) List(ctx context.Context, params ports.WithdrawalListParams) ([]domain.Withdrawal, int64, error) {
	conditions := []string{"account_id = $1"}
	args := []any{params.AccountID}
	argIdx := 2

	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM withdrawals "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count withdrawals: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`%s %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		withdrawalSelect, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list withdrawals: %w", err)
	}
	defer rows.Close()

	var items []domain.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan withdrawal row: %w", err)
		}
		items = append(items, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate withdrawal rows: %w", err)
	}
	return items, total, nil
}

// GetStats aggregates an account's withdrawals created at or after since
// (all of them when since is nil).
func (r *WithdrawalRepo) GetStats(ctx context.Context, accountID uuid.UUID, since *time.Time) (*ports.WithdrawalStats, error) {
	condition := "account_id = $1"
	args := []any{accountID}
	if since != nil {
		condition += " AND created_at >= $2"
		args = append(args, *since)
	}

	query := fmt.Sprintf(`SELECT
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE status = 'SUBMITTED') AS submitted,
		COUNT(*) FILTER (WHERE status = 'REJECTED') AS rejected,
		COALESCE(SUM(amount_wei) FILTER (WHERE status = 'SUBMITTED'), 0)::text AS total_amount,
		COALESCE(SUM(fee_wei) FILTER (WHERE status = 'SUBMITTED'), 0)::text AS total_fees
		FROM withdrawals WHERE %s`, condition)

	stats := &ports.WithdrawalStats{}
	var amount, fees string
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&stats.Total, &stats.Submitted, &stats.Rejected, &amount, &fees,
	)
	if err != nil {
		return nil, fmt.Errorf("get withdrawal stats: %w", err)
	}
	if stats.TotalAmount, err = parseNumeric(amount); err != nil {
		return nil, err
	}
	if stats.TotalFees, err = parseNumeric(fees); err != nil {
		return nil, err
	}
	return stats, nil
}

func scanWithdrawal(row pgx.Row) (*domain.Withdrawal, error) {
	w := &domain.Withdrawal{}
	var amount, fee string
	err := row.Scan(
		&w.ID, &w.QuotationID, &w.AccountID, &w.WalletID, &amount, &fee,
		&w.OperationType, &w.Strategy, &w.ArtifactEnc, &w.Status, &w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if w.AmountWei, err = parseNumeric(amount); err != nil {
		return nil, err
	}
	if w.FeeWei, err = parseNumeric(fee); err != nil {
		return nil, err
	}
	return w, nil
}

func numericText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", s)
	}
	return v, nil
}
