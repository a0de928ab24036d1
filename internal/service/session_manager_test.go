package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports/mocks"
	"secure-withdrawal-gateway/pkg/apperror"
	"secure-withdrawal-gateway/pkg/localize"
	"secure-withdrawal-gateway/pkg/units"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type sessionManagerDeps struct {
	accounts  *mocks.MockAccountRepository
	features  *mocks.MockFeatureRepository
	quotes    *mocks.MockQuotationService
	submitter *mocks.MockSubmissionService
	signer    *mocks.MockSignatureProvider
	audit     *mocks.MockAuditService
	feed      *fakeFeed
}

func setupSessionManager(t *testing.T, idleTTL time.Duration) (*SessionManagerImpl, *sessionManagerDeps) {
	ctrl := gomock.NewController(t)
	d := &sessionManagerDeps{
		accounts:  mocks.NewMockAccountRepository(ctrl),
		features:  mocks.NewMockFeatureRepository(ctrl),
		quotes:    mocks.NewMockQuotationService(ctrl),
		submitter: mocks.NewMockSubmissionService(ctrl),
		signer:    mocks.NewMockSignatureProvider(ctrl),
		audit:     mocks.NewMockAuditService(ctrl),
		feed:      &fakeFeed{events: make(chan domain.BalanceEvent)},
	}
	d.audit.EXPECT().Log(gomock.Any(), gomock.Any()).AnyTimes()

	registry := localize.NewRegistry("en_US")
	m := NewSessionManager(SessionManagerConfig{
		Currency:      "ETH",
		MaxWithdrawal: weiOf("10"),
		IdleTTL:       idleTTL,
		SubmitTimeout: time.Second,
	}, SessionManagerDeps{
		Accounts:   d.accounts,
		Features:   d.features,
		Quotations: d.quotes,
		Submitter:  d.submitter,
		Signer:     d.signer,
		Feed:       d.feed,
		Locales:    registry,
		Money:      localize.NewMoneyFormatter(units.Ether(), registry),
		Clock:      localize.NewDateTimeFormatter(registry, nil),
		Converter:  units.Ether(),
		Audit:      d.audit,
	}, newTestLogger())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m, d
}

func activeAccount() *domain.UserAccount {
	return &domain.UserAccount{ID: uuid.New(), Username: "alice", Status: domain.AccountStatusActive}
}

func TestSessionManager_Open(t *testing.T) {
	m, d := setupSessionManager(t, time.Minute)
	account := activeAccount()
	d.features.EXPECT().IsEnabled(gomock.Any(), domain.FeatureWithdrawal).Return(true, nil)
	d.accounts.EXPECT().GetByID(gomock.Any(), account.ID).Return(account, nil)

	session, err := m.Open(context.Background(), account.ID, "de-de")

	require.NoError(t, err)
	assert.Equal(t, account.ID, session.AccountID())
	assert.Equal(t, "de_DE", session.View().Locale)
	assert.Equal(t, "ETH", session.View().Currency)
	assert.Equal(t, 1, m.Count())

	got, err := m.Get(account.ID, session.ID())
	require.NoError(t, err)
	assert.Same(t, session, got)
}

func TestSessionManager_Open_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(d *sessionManagerDeps, account *domain.UserAccount)
		errCode string
	}{
		{
			name: "feature disabled",
			setup: func(d *sessionManagerDeps, _ *domain.UserAccount) {
				d.features.EXPECT().IsEnabled(gomock.Any(), domain.FeatureWithdrawal).Return(false, nil)
			},
			errCode: "WDR_007",
		},
		{
			name: "feature lookup fails",
			setup: func(d *sessionManagerDeps, _ *domain.UserAccount) {
				d.features.EXPECT().IsEnabled(gomock.Any(), gomock.Any()).Return(false, errors.New("boom"))
			},
			errCode: "SYS_001",
		},
		{
			name: "unknown account",
			setup: func(d *sessionManagerDeps, account *domain.UserAccount) {
				d.features.EXPECT().IsEnabled(gomock.Any(), gomock.Any()).Return(true, nil)
				d.accounts.EXPECT().GetByID(gomock.Any(), account.ID).Return(nil, nil)
			},
			errCode: "WDR_008",
		},
		{
			name: "suspended account",
			setup: func(d *sessionManagerDeps, account *domain.UserAccount) {
				account.Status = domain.AccountStatusSuspended
				d.features.EXPECT().IsEnabled(gomock.Any(), gomock.Any()).Return(true, nil)
				d.accounts.EXPECT().GetByID(gomock.Any(), account.ID).Return(account, nil)
			},
			errCode: "AUTH_002",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, d := setupSessionManager(t, time.Minute)
			account := activeAccount()
			tt.setup(d, account)

			session, err := m.Open(context.Background(), account.ID, "en_US")

			assert.Nil(t, session)
			assert.True(t, apperror.HasCode(err, tt.errCode), "got %v", err)
			assert.Equal(t, 0, m.Count())
		})
	}
}

func openSession(t *testing.T, m *SessionManagerImpl, d *sessionManagerDeps) *WithdrawalSessionImpl {
	t.Helper()
	account := activeAccount()
	d.features.EXPECT().IsEnabled(gomock.Any(), gomock.Any()).Return(true, nil)
	d.accounts.EXPECT().GetByID(gomock.Any(), account.ID).Return(account, nil)
	session, err := m.Open(context.Background(), account.ID, "en_US")
	require.NoError(t, err)
	return session.(*WithdrawalSessionImpl)
}

func TestSessionManager_GetChecksOwner(t *testing.T) {
	m, d := setupSessionManager(t, time.Minute)
	session := openSession(t, m, d)

	_, err := m.Get(uuid.New(), session.ID())
	assert.True(t, apperror.HasCode(err, "WDR_008"))

	_, err = m.Get(session.AccountID(), "missing")
	assert.True(t, apperror.HasCode(err, "WDR_008"))
}

func TestSessionManager_Close(t *testing.T) {
	m, d := setupSessionManager(t, time.Minute)
	session := openSession(t, m, d)

	assert.True(t, apperror.HasCode(m.Close(uuid.New(), session.ID()), "WDR_008"))
	require.NoError(t, m.Close(session.AccountID(), session.ID()))

	select {
	case <-session.Done():
	default:
		t.Fatal("session must be closed")
	}
	_, err := m.Get(session.AccountID(), session.ID())
	assert.True(t, apperror.HasCode(err, "WDR_008"))
}

func TestSessionManager_IdleSessionsAreClosed(t *testing.T) {
	m, d := setupSessionManager(t, 30*time.Millisecond)
	session := openSession(t, m, d)

	require.Eventually(t, func() bool {
		select {
		case <-session.Done():
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, m.Count())
}

func TestSessionManager_Shutdown(t *testing.T) {
	m, d := setupSessionManager(t, time.Minute)
	first := openSession(t, m, d)
	second := openSession(t, m, d)

	require.NoError(t, m.Shutdown(context.Background()))

	for _, s := range []*WithdrawalSessionImpl{first, second} {
		select {
		case <-s.Done():
		default:
			t.Fatal("session must be closed")
		}
	}

	_, err := m.Open(context.Background(), uuid.New(), "en_US")
	assert.True(t, apperror.HasCode(err, "SYS_005"))
}

func TestSessionManager_ShutdownWaitsForSubmission(t *testing.T) {
	m, d := setupSessionManager(t, time.Minute)
	session := openSession(t, m, d)

	release := make(chan struct{})
	d.signer.EXPECT().Sign(gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.SignedArtifact("0xsig"), nil)
	d.submitter.EXPECT().Submit(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, uuid.UUID, string, domain.SignedArtifact, domain.SigningStrategy) (bool, error) {
			<-release
			return true, nil
		})

	orch := session.deps.Signing
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := orch.Execute(ctx, testQuotation(), domain.StrategyPasskey, domain.OperationWithdrawal)
	// Sign ran before the cancelled ctx was observed, so the submission is in flight.
	require.ErrorIs(t, err, context.Canceled)

	short, stop := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer stop()
	assert.ErrorIs(t, m.Shutdown(short), context.DeadlineExceeded)

	close(release)
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestSessionManager_ShutdownRejectsNewSigningRuns(t *testing.T) {
	m, d := setupSessionManager(t, time.Minute)
	session := openSession(t, m, d)
	orch := session.deps.Signing

	require.NoError(t, m.Shutdown(context.Background()))

	_, err := orch.Execute(context.Background(), testQuotation(), domain.StrategyPasskey, domain.OperationWithdrawal)
	assert.True(t, apperror.HasCode(err, "SYS_005"))
	assert.Equal(t, domain.SigningIdle, orch.State().Status)
}
