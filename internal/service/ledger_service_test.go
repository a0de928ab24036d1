package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports"
	"secure-withdrawal-gateway/internal/core/ports/mocks"
	"secure-withdrawal-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type ledgerTestDeps struct {
	svc         *LedgerServiceImpl
	wallets     *mocks.MockWalletRepository
	withdrawals *mocks.MockWithdrawalRepository
	idempRepo   *mocks.MockIdempotencyRepository
	idempCache  *mocks.MockIdempotencyCache
	quotations  *mocks.MockQuotationStore
	locks       *mocks.MockSubmissionLock
	verifier    *mocks.MockSignatureVerifier
	encSvc      *mocks.MockEncryptionService
	transactor  *mocks.MockDBTransactor
	features    *mocks.MockFeatureRepository
	notifier    *mocks.MockBalanceNotifier
	audit       *mocks.MockAuditService
	webhooks    *mocks.MockWebhookService
	now         time.Time
	ctrl        *gomock.Controller
}

func setupLedgerService(t *testing.T) *ledgerTestDeps {
	ctrl := gomock.NewController(t)
	d := &ledgerTestDeps{
		wallets:     mocks.NewMockWalletRepository(ctrl),
		withdrawals: mocks.NewMockWithdrawalRepository(ctrl),
		idempRepo:   mocks.NewMockIdempotencyRepository(ctrl),
		idempCache:  mocks.NewMockIdempotencyCache(ctrl),
		quotations:  mocks.NewMockQuotationStore(ctrl),
		locks:       mocks.NewMockSubmissionLock(ctrl),
		verifier:    mocks.NewMockSignatureVerifier(ctrl),
		encSvc:      mocks.NewMockEncryptionService(ctrl),
		transactor:  mocks.NewMockDBTransactor(ctrl),
		features:    mocks.NewMockFeatureRepository(ctrl),
		notifier:    mocks.NewMockBalanceNotifier(ctrl),
		audit:       mocks.NewMockAuditService(ctrl),
		webhooks:    mocks.NewMockWebhookService(ctrl),
		now:         time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		ctrl:        ctrl,
	}
	d.svc = NewLedgerService(LedgerConfig{
		Currency:         "ETH",
		MaxAmount:        weiOf("10"),
		QuotationTTL:     60 * time.Second,
		FeeUnit:          weiOf("0.001"),
		FeeMinMultiplier: 1,
		FeeMaxMultiplier: 9,
	}, LedgerDeps{
		Wallets:     d.wallets,
		Withdrawals: d.withdrawals,
		IdempRepo:   d.idempRepo,
		IdempCache:  d.idempCache,
		Quotations:  d.quotations,
		Locks:       d.locks,
		Verifier:    d.verifier,
		Encryption:  d.encSvc,
		Transactor:  d.transactor,
		Features:    d.features,
		Notifier:    d.notifier,
		Audit:       d.audit,
		Webhooks:    d.webhooks,
		Int64N:      func(int64) int64 { return 2 },
		Now:         func() time.Time { return d.now },
	}, zerolog.Nop())
	return d
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

func assertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, expectedCode, appErr.Code)
}

func (d *ledgerTestDeps) quotation(accountID uuid.UUID, amount, fee string) *domain.Quotation {
	return &domain.Quotation{
		ID:            "q-1",
		AccountID:     accountID,
		Amount:        weiOf(amount),
		Fee:           weiOf(fee),
		Challenge:     "q-1:abcd",
		OperationType: domain.OperationWithdrawal,
		ExpiresAt:     d.now.Add(30 * time.Second),
	}
}

// ==================== GetQuotation Tests ====================

func TestLedgerService_GetQuotation_Success(t *testing.T) {
	d := setupLedgerService(t)
	ctx := context.Background()
	accountID := uuid.New()

	d.features.EXPECT().IsEnabled(ctx, domain.FeatureWithdrawal).Return(true, nil)
	d.quotations.EXPECT().Save(ctx, gomock.Any()).Return(nil)
	d.audit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, entry *domain.AuditLog) {
		assert.Equal(t, domain.AuditActionQuotationIssued, entry.Action)
	})

	q, err := d.svc.GetQuotation(ctx, accountID, weiOf("1.5"), domain.OperationWithdrawal)

	require.NoError(t, err)
	assert.Equal(t, accountID, q.AccountID)
	assert.Equal(t, 0, q.Amount.Cmp(weiOf("1.5")))
	// multiplier = min(1) + draw(2)
	assert.Equal(t, 0, q.Fee.Cmp(weiOf("0.003")))
	assert.True(t, strings.HasPrefix(q.Challenge, q.ID+":"))
	assert.Len(t, strings.TrimPrefix(q.Challenge, q.ID+":"), 32)
	assert.Equal(t, d.now.Add(60*time.Second), q.ExpiresAt)
	assert.Equal(t, domain.OperationWithdrawal, q.OperationType)
}

func TestLedgerService_GetQuotation_FeeStaysInRange(t *testing.T) {
	d := setupLedgerService(t)
	var spans []int64
	d.svc.deps.Int64N = func(n int64) int64 {
		spans = append(spans, n)
		return n - 1
	}
	d.features.EXPECT().IsEnabled(gomock.Any(), gomock.Any()).Return(true, nil)
	d.quotations.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)
	d.audit.EXPECT().Log(gomock.Any(), gomock.Any())

	q, err := d.svc.GetQuotation(context.Background(), uuid.New(), weiOf("1"), domain.OperationWithdrawal)

	require.NoError(t, err)
	assert.Equal(t, []int64{9}, spans)
	assert.Equal(t, 0, q.Fee.Cmp(weiOf("0.009")))
}

func TestLedgerService_GetQuotation_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		amount  *big.Int
		op      domain.OperationType
		setup   func(d *ledgerTestDeps)
		errCode string
	}{
		{name: "zero amount", amount: big.NewInt(0), op: domain.OperationWithdrawal, errCode: "WDR_001"},
		{name: "nil amount", amount: nil, op: domain.OperationWithdrawal, errCode: "WDR_001"},
		{name: "negative amount", amount: big.NewInt(-1), op: domain.OperationWithdrawal, errCode: "WDR_001"},
		{name: "above limit", amount: weiOf("10.000000000000000001"), op: domain.OperationWithdrawal, errCode: "WDR_002"},
		{name: "unsupported operation", amount: weiOf("1"), op: domain.OperationType("BRIDGE"), errCode: "WDR_010"},
		{
			name:   "disabled operation",
			amount: weiOf("1"),
			op:     domain.OperationSwap,
			setup: func(d *ledgerTestDeps) {
				d.features.EXPECT().IsEnabled(gomock.Any(), domain.FeatureSwap).Return(false, nil)
			},
			errCode: "WDR_007",
		},
		{
			name:   "store unavailable",
			amount: weiOf("1"),
			op:     domain.OperationWithdrawal,
			setup: func(d *ledgerTestDeps) {
				d.features.EXPECT().IsEnabled(gomock.Any(), gomock.Any()).Return(true, nil)
				d.quotations.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))
			},
			errCode: "SYS_002",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupLedgerService(t)
			if tt.setup != nil {
				tt.setup(d)
			}

			q, err := d.svc.GetQuotation(context.Background(), uuid.New(), tt.amount, tt.op)

			assert.Nil(t, q)
			assertAppError(t, err, tt.errCode)
		})
	}
}

func TestLedgerService_GetQuotation_AtLimitIsAllowed(t *testing.T) {
	d := setupLedgerService(t)
	d.features.EXPECT().IsEnabled(gomock.Any(), gomock.Any()).Return(true, nil)
	d.quotations.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)
	d.audit.EXPECT().Log(gomock.Any(), gomock.Any())

	_, err := d.svc.GetQuotation(context.Background(), uuid.New(), weiOf("10"), domain.OperationWithdrawal)
	assert.NoError(t, err)
}

// ==================== Submit Tests ====================

func TestLedgerService_Submit_Success(t *testing.T) {
	d := setupLedgerService(t)
	ctx := context.Background()
	accountID := uuid.New()
	walletID := uuid.New()
	tx := &mockTx{}
	q := d.quotation(accountID, "1.5", "0.003")
	idempKey := domain.BuildSubmissionKey(accountID, q.ID)

	d.idempCache.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	d.quotations.EXPECT().Get(ctx, q.ID).Return(q, nil)
	d.locks.EXPECT().Acquire(ctx, q.ID, 30*time.Second+claimMargin).Return(true, nil)
	d.verifier.EXPECT().Verify(q.Challenge, domain.StrategyPasskey, domain.SignedArtifact("0xsig")).Return(true)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.wallets.EXPECT().GetByAccountIDForUpdate(ctx, tx, accountID, "ETH").Return(&domain.Wallet{
		ID:               walletID,
		AccountID:        accountID,
		Currency:         "ETH",
		EncryptedBalance: "enc_5",
	}, nil)
	d.encSvc.EXPECT().Decrypt("enc_5").Return(weiOf("5").String(), nil)
	// 5 - 1.5 - 0.003
	d.encSvc.EXPECT().Encrypt(weiOf("3.497").String()).Return("enc_3.497", nil)
	d.wallets.EXPECT().UpdateBalance(ctx, tx, walletID, "enc_3.497").Return(nil)
	d.encSvc.EXPECT().Encrypt("0xsig").Return("enc_sig", nil)
	d.withdrawals.EXPECT().Create(ctx, tx, gomock.Any()).Do(func(_ context.Context, _ pgx.Tx, w *domain.Withdrawal) {
		assert.Equal(t, domain.WithdrawalStatusSubmitted, w.Status)
		assert.Equal(t, walletID, w.WalletID)
		assert.Equal(t, "enc_sig", w.ArtifactEnc)
		assert.Equal(t, 0, w.Total().Cmp(weiOf("1.503")))
	}).Return(nil)
	d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, idempKey, gomock.Any(), idempotencyTTL).Return(nil)
	d.webhooks.EXPECT().EnqueueWithdrawal(ctx, gomock.Any()).Return(nil)
	d.notifier.EXPECT().Publish(ctx, accountID).Return(nil)
	d.audit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, entry *domain.AuditLog) {
		assert.Equal(t, domain.AuditActionWithdrawalSubmitted, entry.Action)
	})

	accepted, err := d.svc.Submit(ctx, accountID, q.ID, "0xsig", domain.StrategyPasskey)

	require.NoError(t, err)
	assert.True(t, accepted)
}

// expectRecordedRejection sets up a submission that reaches the ledger and
// is recorded as REJECTED without touching the balance.
func (d *ledgerTestDeps) expectRecordedRejection(t *testing.T, accountID uuid.UUID, q *domain.Quotation, balance string, validSig bool) {
	tx := &mockTx{}
	d.idempCache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)
	d.idempRepo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)
	d.quotations.EXPECT().Get(gomock.Any(), q.ID).Return(q, nil)
	d.locks.EXPECT().Acquire(gomock.Any(), q.ID, gomock.Any()).Return(true, nil)
	d.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(validSig)
	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.wallets.EXPECT().GetByAccountIDForUpdate(gomock.Any(), tx, accountID, "ETH").Return(&domain.Wallet{
		ID:               uuid.New(),
		AccountID:        accountID,
		EncryptedBalance: "enc_balance",
	}, nil)
	d.encSvc.EXPECT().Decrypt("enc_balance").Return(weiOf(balance).String(), nil)
	d.encSvc.EXPECT().Encrypt("0xsig").Return("enc_sig", nil)
	d.withdrawals.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Do(func(_ context.Context, _ pgx.Tx, w *domain.Withdrawal) {
		assert.Equal(t, domain.WithdrawalStatusRejected, w.Status)
	}).Return(nil)
	d.idempRepo.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), idempotencyTTL).Return(nil)
	d.audit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, entry *domain.AuditLog) {
		assert.Equal(t, domain.AuditActionWithdrawalRejected, entry.Action)
	})
}

func TestLedgerService_Submit_InsufficientBalance(t *testing.T) {
	d := setupLedgerService(t)
	accountID := uuid.New()
	// 1.5 covers the amount but not amount + fee.
	q := d.quotation(accountID, "1.5", "0.003")
	d.expectRecordedRejection(t, accountID, q, "1.5", true)

	accepted, err := d.svc.Submit(context.Background(), accountID, q.ID, "0xsig", domain.StrategyOTP)

	require.NoError(t, err)
	assert.False(t, accepted)
}

func TestLedgerService_Submit_InvalidSignature(t *testing.T) {
	d := setupLedgerService(t)
	accountID := uuid.New()
	q := d.quotation(accountID, "1", "0.001")
	d.expectRecordedRejection(t, accountID, q, "5", false)

	accepted, err := d.svc.Submit(context.Background(), accountID, q.ID, "0xsig", domain.StrategyBiometric)

	require.NoError(t, err)
	assert.False(t, accepted)
}

func TestLedgerService_Submit_CreatesWalletOnFirstUse(t *testing.T) {
	d := setupLedgerService(t)
	accountID := uuid.New()
	tx := &mockTx{}
	q := d.quotation(accountID, "1", "0.001")

	d.idempCache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)
	d.idempRepo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)
	d.quotations.EXPECT().Get(gomock.Any(), q.ID).Return(q, nil)
	d.locks.EXPECT().Acquire(gomock.Any(), q.ID, gomock.Any()).Return(true, nil)
	d.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(true)
	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.wallets.EXPECT().GetByAccountIDForUpdate(gomock.Any(), tx, accountID, "ETH").Return(nil, nil)
	d.encSvc.EXPECT().Encrypt("0").Return("enc_0", nil)
	d.wallets.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Do(func(_ context.Context, _ pgx.Tx, w *domain.Wallet) {
		assert.Equal(t, accountID, w.AccountID)
		assert.Equal(t, "enc_0", w.EncryptedBalance)
	}).Return(nil)
	d.encSvc.EXPECT().Encrypt("0xsig").Return("enc_sig", nil)
	d.withdrawals.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Return(nil)
	d.idempRepo.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	d.audit.EXPECT().Log(gomock.Any(), gomock.Any())

	accepted, err := d.svc.Submit(context.Background(), accountID, q.ID, "0xsig", domain.StrategyPasskey)

	require.NoError(t, err)
	assert.False(t, accepted)
}

func TestLedgerService_Submit_ReplaysRecordedOutcome(t *testing.T) {
	accountID := uuid.New()
	submitted, _ := json.Marshal(&domain.Withdrawal{ID: uuid.New(), Status: domain.WithdrawalStatusSubmitted})
	rejected, _ := json.Marshal(&domain.Withdrawal{ID: uuid.New(), Status: domain.WithdrawalStatusRejected})

	t.Run("redis hit", func(t *testing.T) {
		d := setupLedgerService(t)
		d.idempCache.EXPECT().Get(gomock.Any(), domain.BuildSubmissionKey(accountID, "q-1")).Return(submitted, nil)

		accepted, err := d.svc.Submit(context.Background(), accountID, "q-1", "0xsig", domain.StrategyPasskey)
		require.NoError(t, err)
		assert.True(t, accepted)
	})

	t.Run("redis error falls through to db", func(t *testing.T) {
		d := setupLedgerService(t)
		d.idempCache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errors.New("redis down"))
		d.idempRepo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(&domain.IdempotencyLog{ResponseJSON: rejected}, nil)

		accepted, err := d.svc.Submit(context.Background(), accountID, "q-1", "0xsig", domain.StrategyPasskey)
		require.NoError(t, err)
		assert.False(t, accepted)
	})
}

func TestLedgerService_Submit_RejectsUnusableQuotation(t *testing.T) {
	accountID := uuid.New()
	tests := []struct {
		name      string
		quotation func(d *ledgerTestDeps) *domain.Quotation
	}{
		{name: "unknown", quotation: func(*ledgerTestDeps) *domain.Quotation { return nil }},
		{name: "foreign", quotation: func(d *ledgerTestDeps) *domain.Quotation { return d.quotation(uuid.New(), "1", "0.001") }},
		{name: "expired", quotation: func(d *ledgerTestDeps) *domain.Quotation {
			q := d.quotation(accountID, "1", "0.001")
			q.ExpiresAt = d.now
			return q
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupLedgerService(t)
			d.idempCache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)
			d.idempRepo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)
			d.quotations.EXPECT().Get(gomock.Any(), "q-1").Return(tt.quotation(d), nil)

			accepted, err := d.svc.Submit(context.Background(), accountID, "q-1", "0xsig", domain.StrategyPasskey)

			require.NoError(t, err)
			assert.False(t, accepted)
		})
	}
}

func TestLedgerService_Submit_DuplicateClaim(t *testing.T) {
	d := setupLedgerService(t)
	accountID := uuid.New()
	q := d.quotation(accountID, "1", "0.001")
	d.idempCache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)
	d.idempRepo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)
	d.quotations.EXPECT().Get(gomock.Any(), q.ID).Return(q, nil)
	d.locks.EXPECT().Acquire(gomock.Any(), q.ID, gomock.Any()).Return(false, nil)

	accepted, err := d.svc.Submit(context.Background(), accountID, q.ID, "0xsig", domain.StrategyPasskey)

	assert.False(t, accepted)
	assertAppError(t, err, "WDR_009")
}

func TestLedgerService_Submit_InfrastructureErrors(t *testing.T) {
	accountID := uuid.New()

	t.Run("db idempotency check", func(t *testing.T) {
		d := setupLedgerService(t)
		d.idempCache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)
		d.idempRepo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errors.New("conn reset"))

		_, err := d.svc.Submit(context.Background(), accountID, "q-1", "0xsig", domain.StrategyPasskey)
		assertAppError(t, err, "SYS_001")
	})

	t.Run("claim", func(t *testing.T) {
		d := setupLedgerService(t)
		q := d.quotation(accountID, "1", "0.001")
		d.idempCache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)
		d.idempRepo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)
		d.quotations.EXPECT().Get(gomock.Any(), q.ID).Return(q, nil)
		d.locks.EXPECT().Acquire(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, errors.New("redis down"))

		_, err := d.svc.Submit(context.Background(), accountID, q.ID, "0xsig", domain.StrategyPasskey)
		assertAppError(t, err, "SYS_002")
	})

	t.Run("begin", func(t *testing.T) {
		d := setupLedgerService(t)
		q := d.quotation(accountID, "1", "0.001")
		d.idempCache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)
		d.idempRepo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)
		d.quotations.EXPECT().Get(gomock.Any(), q.ID).Return(q, nil)
		d.locks.EXPECT().Acquire(gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
		d.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(true)
		d.transactor.EXPECT().Begin(gomock.Any()).Return(nil, errors.New("pool closed"))

		_, err := d.svc.Submit(context.Background(), accountID, q.ID, "0xsig", domain.StrategyPasskey)
		assertAppError(t, err, "SYS_001")
	})
}

// ==================== Fund / Balance Tests ====================

func TestLedgerService_Fund_Success(t *testing.T) {
	d := setupLedgerService(t)
	ctx := context.Background()
	accountID := uuid.New()
	walletID := uuid.New()
	tx := &mockTx{}
	key := domain.BuildFundingKey(accountID, "initial")

	d.idempRepo.EXPECT().Get(ctx, key).Return(nil, nil).Times(2)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.wallets.EXPECT().GetByAccountIDForUpdate(ctx, tx, accountID, "ETH").Return(&domain.Wallet{
		ID:               walletID,
		EncryptedBalance: "enc_1",
	}, nil)
	d.encSvc.EXPECT().Decrypt("enc_1").Return(weiOf("1").String(), nil)
	d.encSvc.EXPECT().Encrypt(weiOf("21.31").String()).Return("enc_21.31", nil)
	d.wallets.EXPECT().UpdateBalance(ctx, tx, walletID, "enc_21.31").Return(nil)
	d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).Do(func(_ context.Context, _ pgx.Tx, l *domain.IdempotencyLog) {
		assert.Equal(t, key, l.Key)
		assert.Equal(t, walletID, l.ResourceID)
	}).Return(nil)
	d.notifier.EXPECT().Publish(ctx, accountID).Return(errors.New("redis down"))
	d.audit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, entry *domain.AuditLog) {
		assert.Equal(t, domain.AuditActionWalletFunded, entry.Action)
	})

	balance, err := d.svc.Fund(ctx, accountID, weiOf("20.31"), "initial")

	require.NoError(t, err)
	assert.Equal(t, 0, balance.BalanceWei.Cmp(weiOf("21.31")))
	assert.Equal(t, d.now.UnixMilli(), balance.LastUpdatedMillis)
}

func TestLedgerService_Fund_IsIdempotentPerReference(t *testing.T) {
	d := setupLedgerService(t)
	accountID := uuid.New()
	updated := d.now.Add(-time.Hour)

	d.idempRepo.EXPECT().Get(gomock.Any(), domain.BuildFundingKey(accountID, "initial")).Return(&domain.IdempotencyLog{}, nil)
	d.wallets.EXPECT().GetByAccountID(gomock.Any(), accountID, "ETH").Return(&domain.Wallet{
		EncryptedBalance: "enc",
		UpdatedAt:        updated,
	}, nil)
	d.encSvc.EXPECT().Decrypt("enc").Return(weiOf("20.31").String(), nil)

	balance, err := d.svc.Fund(context.Background(), accountID, weiOf("20.31"), "initial")

	require.NoError(t, err)
	assert.Equal(t, 0, balance.BalanceWei.Cmp(weiOf("20.31")))
	assert.Equal(t, updated.UnixMilli(), balance.LastUpdatedMillis)
}

func TestLedgerService_Fund_AppliedWhileWaitingForLock(t *testing.T) {
	d := setupLedgerService(t)
	ctx := context.Background()
	accountID := uuid.New()
	tx := &mockTx{}
	key := domain.BuildFundingKey(accountID, "deposit-7")

	gomock.InOrder(
		d.idempRepo.EXPECT().Get(ctx, key).Return(nil, nil),
		d.transactor.EXPECT().Begin(ctx).Return(tx, nil),
		d.wallets.EXPECT().GetByAccountIDForUpdate(ctx, tx, accountID, "ETH").Return(&domain.Wallet{
			ID:               uuid.New(),
			EncryptedBalance: "enc_locked",
		}, nil),
		d.encSvc.EXPECT().Decrypt("enc_locked").Return(weiOf("2").String(), nil),
		d.idempRepo.EXPECT().Get(ctx, key).Return(&domain.IdempotencyLog{Key: key}, nil),
		d.wallets.EXPECT().GetByAccountID(ctx, accountID, "ETH").Return(&domain.Wallet{
			EncryptedBalance: "enc_after",
			UpdatedAt:        d.now,
		}, nil),
		d.encSvc.EXPECT().Decrypt("enc_after").Return(weiOf("2").String(), nil),
	)

	balance, err := d.svc.Fund(ctx, accountID, weiOf("1"), "deposit-7")

	require.NoError(t, err)
	assert.Equal(t, 0, balance.BalanceWei.Cmp(weiOf("2")), "no second credit")
}

func TestLedgerService_Fund_KeyRecordedConcurrently(t *testing.T) {
	d := setupLedgerService(t)
	ctx := context.Background()
	accountID := uuid.New()
	walletID := uuid.New()
	tx := &mockTx{}

	d.idempRepo.EXPECT().Get(ctx, gomock.Any()).Return(nil, nil).Times(2)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.wallets.EXPECT().GetByAccountIDForUpdate(ctx, tx, accountID, "ETH").Return(&domain.Wallet{
		ID:               walletID,
		EncryptedBalance: "enc_1",
	}, nil)
	d.encSvc.EXPECT().Decrypt("enc_1").Return(weiOf("1").String(), nil)
	d.encSvc.EXPECT().Encrypt(weiOf("2").String()).Return("enc_2", nil)
	d.wallets.EXPECT().UpdateBalance(ctx, tx, walletID, "enc_2").Return(nil)
	d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).
		Return(fmt.Errorf("%w: k", ports.ErrIdempotencyKeyExists))
	d.wallets.EXPECT().GetByAccountID(ctx, accountID, "ETH").Return(&domain.Wallet{
		EncryptedBalance: "enc_1",
		UpdatedAt:        d.now,
	}, nil)
	d.encSvc.EXPECT().Decrypt("enc_1").Return(weiOf("1").String(), nil)

	balance, err := d.svc.Fund(ctx, accountID, weiOf("1"), "deposit-8")

	require.NoError(t, err)
	assert.Equal(t, 0, balance.BalanceWei.Cmp(weiOf("1")), "the rolled back credit is not reported")
}

func TestLedgerService_Fund_InvalidAmount(t *testing.T) {
	d := setupLedgerService(t)

	_, err := d.svc.Fund(context.Background(), uuid.New(), big.NewInt(0), "x")
	assertAppError(t, err, "WDR_001")
}

func TestLedgerService_Balance(t *testing.T) {
	t.Run("no wallet yet", func(t *testing.T) {
		d := setupLedgerService(t)
		d.wallets.EXPECT().GetByAccountID(gomock.Any(), gomock.Any(), "ETH").Return(nil, nil)

		balance, err := d.svc.Balance(context.Background(), uuid.New())
		require.NoError(t, err)
		assert.Equal(t, 0, balance.BalanceWei.Sign())
	})

	t.Run("corrupt balance", func(t *testing.T) {
		d := setupLedgerService(t)
		d.wallets.EXPECT().GetByAccountID(gomock.Any(), gomock.Any(), gomock.Any()).Return(&domain.Wallet{EncryptedBalance: "enc"}, nil)
		d.encSvc.EXPECT().Decrypt("enc").Return("not-a-number", nil)

		_, err := d.svc.Balance(context.Background(), uuid.New())
		assertAppError(t, err, "SYS_001")
	})

	t.Run("decrypt failure", func(t *testing.T) {
		d := setupLedgerService(t)
		d.wallets.EXPECT().GetByAccountID(gomock.Any(), gomock.Any(), gomock.Any()).Return(&domain.Wallet{EncryptedBalance: "enc"}, nil)
		d.encSvc.EXPECT().Decrypt("enc").Return("", errors.New("bad tag"))

		_, err := d.svc.Balance(context.Background(), uuid.New())
		assertAppError(t, err, "SYS_003")
	})
}
