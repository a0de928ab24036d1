package service

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports"
	"secure-withdrawal-gateway/pkg/apperror"
	"secure-withdrawal-gateway/pkg/localize"
	"secure-withdrawal-gateway/pkg/metrics"
	"secure-withdrawal-gateway/pkg/units"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

const defaultSessionIdleTTL = 15 * time.Minute

// SessionManagerConfig is the policy applied to every opened session.
type SessionManagerConfig struct {
	Currency      string
	MaxWithdrawal *big.Int
	IdleTTL       time.Duration
	SubmitTimeout time.Duration
	TickInterval  time.Duration
}

// SessionManagerDeps are the collaborators shared by all sessions.
type SessionManagerDeps struct {
	Accounts   ports.AccountRepository
	Features   ports.FeatureRepository
	Quotations ports.QuotationService
	Submitter  ports.SubmissionService
	Signer     ports.SignatureProvider
	Feed       ports.BalanceFeed
	Locales    *localize.Registry
	Money      ports.MoneyFormatter
	Clock      ports.DateTimeFormatter
	Converter  units.Converter
	Audit      ports.AuditService
}

// SessionManagerImpl implements ports.SessionManager. Sessions live in an
// expiring cache; a session untouched for IdleTTL is evicted and closed.
type SessionManagerImpl struct {
	cfg      SessionManagerConfig
	deps     SessionManagerDeps
	sessions *cache.Cache
	runs     Submissions
	shutdown atomic.Bool
	log      zerolog.Logger
}

// NewSessionManager creates a SessionManagerImpl.
func NewSessionManager(cfg SessionManagerConfig, deps SessionManagerDeps, log zerolog.Logger) *SessionManagerImpl {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultSessionIdleTTL
	}
	cleanup := cfg.IdleTTL / 2
	if cleanup > time.Minute {
		cleanup = time.Minute
	}

	m := &SessionManagerImpl{
		cfg:      cfg,
		deps:     deps,
		sessions: cache.New(cfg.IdleTTL, cleanup),
		log:      log,
	}
	m.sessions.OnEvicted(m.onEvicted)
	return m
}

// Open starts a withdrawal session for accountID.
func (m *SessionManagerImpl) Open(ctx context.Context, accountID uuid.UUID, locale string) (ports.WithdrawalSession, error) {
	if m.shutdown.Load() {
		return nil, apperror.ErrShuttingDown()
	}

	enabled, err := m.deps.Features.IsEnabled(ctx, domain.FeatureWithdrawal)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check feature: %w", err))
	}
	if !enabled {
		return nil, apperror.ErrFeatureDisabled(domain.FeatureWithdrawal)
	}

	account, err := m.deps.Accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get account: %w", err))
	}
	if account == nil {
		return nil, apperror.ErrNotFound("Account")
	}
	if !account.IsActive() {
		return nil, apperror.ErrAccountSuspended()
	}

	orchestrator := NewSigningOrchestrator(
		accountID,
		m.deps.Signer,
		m.deps.Submitter,
		m.cfg.SubmitTimeout,
		&m.runs,
		m.log.With().Str("component", "signing").Logger(),
	)

	session := NewWithdrawalSession(accountID, SessionConfig{
		Currency:      m.cfg.Currency,
		Locale:        m.deps.Locales.Resolve(locale),
		MaxWithdrawal: m.cfg.MaxWithdrawal,
		Operation:     domain.OperationWithdrawal,
		TickInterval:  m.cfg.TickInterval,
	}, SessionDeps{
		Quotations: m.deps.Quotations,
		Signing:    orchestrator,
		Feed:       m.deps.Feed,
		Money:      m.deps.Money,
		Clock:      m.deps.Clock,
		Converter:  m.deps.Converter,
		Audit:      m.deps.Audit,
	}, m.log)

	m.sessions.SetDefault(session.ID(), session)
	metrics.OpenSessions.Inc()

	if m.deps.Audit != nil {
		m.deps.Audit.Log(ctx, &domain.AuditLog{
			ID:           uuid.New(),
			AccountID:    &accountID,
			Action:       domain.AuditActionSessionOpened,
			ResourceType: "session",
			ResourceID:   session.ID(),
			CreatedAt:    time.Now().UTC(),
		})
	}

	m.log.Info().
		Str("session_id", session.ID()).
		Str("account_id", accountID.String()).
		Str("locale", session.cfg.Locale).
		Msg("withdrawal session opened")

	return session, nil
}

// Get returns an open session owned by accountID and refreshes its idle
// deadline.
func (m *SessionManagerImpl) Get(accountID uuid.UUID, sessionID string) (ports.WithdrawalSession, error) {
	item, ok := m.sessions.Get(sessionID)
	if !ok {
		return nil, apperror.ErrNotFound("Session")
	}
	session := item.(*WithdrawalSessionImpl)
	if session.AccountID() != accountID {
		return nil, apperror.ErrNotFound("Session")
	}
	// Replace fails when the entry expired in between.
	if err := m.sessions.Replace(sessionID, session, cache.DefaultExpiration); err != nil {
		return nil, apperror.ErrNotFound("Session")
	}
	return session, nil
}

// Close closes and forgets a session.
func (m *SessionManagerImpl) Close(accountID uuid.UUID, sessionID string) error {
	if _, err := m.Get(accountID, sessionID); err != nil {
		return err
	}
	m.sessions.Delete(sessionID)
	return nil
}

// Shutdown closes every session, then waits for signing runs already
// started to finish or for ctx to end. Sessions handed out earlier can no
// longer start a run.
func (m *SessionManagerImpl) Shutdown(ctx context.Context) error {
	m.shutdown.Store(true)
	m.runs.Close()
	m.sessions.DeleteExpired()
	for id := range m.sessions.Items() {
		m.sessions.Delete(id)
	}
	if err := m.runs.Wait(ctx); err != nil {
		m.log.Warn().Err(err).Msg("submissions still running at shutdown")
		return err
	}
	m.log.Info().Msg("session manager stopped")
	return nil
}

// Count returns the number of open sessions.
func (m *SessionManagerImpl) Count() int {
	return m.sessions.ItemCount()
}

func (m *SessionManagerImpl) onEvicted(id string, item any) {
	session, ok := item.(*WithdrawalSessionImpl)
	if !ok {
		return
	}
	session.Close()
	metrics.OpenSessions.Dec()
	m.log.Debug().Str("session_id", id).Msg("withdrawal session released")
}
