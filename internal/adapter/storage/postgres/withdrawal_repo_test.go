package postgres

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withdrawalColumnNames() []string {
	return []string{"id", "quotation_id", "account_id", "wallet_id", "amount_wei", "fee_wei",
		"operation_type", "strategy", "artifact_enc", "status", "created_at"}
}

func newTestWithdrawal(accountID uuid.UUID) *domain.Withdrawal {
	amount, _ := new(big.Int).SetString("1500000000000000000", 10)
	return &domain.Withdrawal{
		ID:            uuid.New(),
		QuotationID:   uuid.NewString(),
		AccountID:     accountID,
		WalletID:      uuid.New(),
		AmountWei:     amount,
		FeeWei:        big.NewInt(3_000_000_000_000_000),
		OperationType: domain.OperationWithdrawal,
		Strategy:      domain.StrategyOTP,
		ArtifactEnc:   "sealed",
		Status:        domain.WithdrawalStatusSubmitted,
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
}

func addWithdrawalRow(rows *pgxmock.Rows, w *domain.Withdrawal) *pgxmock.Rows {
	return rows.AddRow(
		w.ID, w.QuotationID, w.AccountID, w.WalletID, w.AmountWei.String(), w.FeeWei.String(),
		w.OperationType, w.Strategy, w.ArtifactEnc, w.Status, w.CreatedAt,
	)
}

func TestWithdrawalRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWithdrawalRepo(mock)
	w := newTestWithdrawal(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO withdrawals").
		WithArgs(w.ID, w.QuotationID, w.AccountID, w.WalletID,
			"1500000000000000000", "3000000000000000",
			w.OperationType, w.Strategy, w.ArtifactEnc, w.Status, w.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Create(context.Background(), tx, w))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalRepo_GetByQuotationID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWithdrawalRepo(mock)
	w := newTestWithdrawal(uuid.New())

	mock.ExpectQuery("SELECT .+ FROM withdrawals WHERE quotation_id").
		WithArgs(w.QuotationID).
		WillReturnRows(addWithdrawalRow(pgxmock.NewRows(withdrawalColumnNames()), w))

	result, err := repo.GetByQuotationID(context.Background(), w.QuotationID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, w.ID, result.ID)
	assert.Equal(t, 0, w.AmountWei.Cmp(result.AmountWei))
	assert.Equal(t, 0, w.FeeWei.Cmp(result.FeeWei))
	assert.Equal(t, domain.StrategyOTP, result.Strategy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalRepo_GetByQuotationID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWithdrawalRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM withdrawals WHERE quotation_id").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(withdrawalColumnNames()))

	result, err := repo.GetByQuotationID(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestWithdrawalRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWithdrawalRepo(mock)
	accountID := uuid.New()
	w1 := newTestWithdrawal(accountID)
	w2 := newTestWithdrawal(accountID)
	status := domain.WithdrawalStatusSubmitted

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(accountID, status).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(12)))

	rows := pgxmock.NewRows(withdrawalColumnNames())
	addWithdrawalRow(rows, w1)
	addWithdrawalRow(rows, w2)
	mock.ExpectQuery("SELECT .+ FROM withdrawals WHERE .+ ORDER BY created_at DESC LIMIT").
		WithArgs(accountID, status, 10, 10).
		WillReturnRows(rows)

	items, total, err := repo.List(context.Background(), ports.WithdrawalListParams{
		AccountID: accountID,
		Status:    &status,
		Page:      2,
		PageSize:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)
	require.Len(t, items, 2)
	assert.Equal(t, w1.ID, items[0].ID)
	assert.Equal(t, w2.ID, items[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalRepo_List_CountError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWithdrawalRepo(mock)
	accountID := uuid.New()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(accountID).
		WillReturnError(errors.New("timeout"))

	_, _, err = repo.List(context.Background(), ports.WithdrawalListParams{AccountID: accountID, Page: 1, PageSize: 20})
	assert.ErrorContains(t, err, "count withdrawals")
}

func TestWithdrawalRepo_GetStats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWithdrawalRepo(mock)
	accountID := uuid.New()
	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .+ FROM withdrawals WHERE account_id = .+ AND created_at >=").
		WithArgs(accountID, since).
		WillReturnRows(pgxmock.NewRows([]string{"total", "submitted", "rejected", "total_amount", "total_fees"}).
			AddRow(int64(3), int64(2), int64(1), "3000000000000000000", "6000000000000000"))

	stats, err := repo.GetStats(context.Background(), accountID, &since)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.Submitted)
	assert.Equal(t, int64(1), stats.Rejected)
	assert.Equal(t, "3000000000000000000", stats.TotalAmount.String())
	assert.Equal(t, "6000000000000000", stats.TotalFees.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalRepo_GetStats_AllTime(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWithdrawalRepo(mock)
	accountID := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM withdrawals WHERE account_id").
		WithArgs(accountID).
		WillReturnRows(pgxmock.NewRows([]string{"total", "submitted", "rejected", "total_amount", "total_fees"}).
			AddRow(int64(0), int64(0), int64(0), "0", "0"))

	stats, err := repo.GetStats(context.Background(), accountID, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalAmount.Sign())
	assert.NoError(t, mock.ExpectationsWereMet())
}
