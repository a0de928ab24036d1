package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports"
	"secure-withdrawal-gateway/pkg/apperror"
	"secure-withdrawal-gateway/pkg/localize"
	"secure-withdrawal-gateway/pkg/observable"
	"secure-withdrawal-gateway/pkg/units"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	msgBalanceUnavailable = "Your balance could not be loaded. Please leave this screen and try again."
	msgQuotationExpired   = "The quotation has expired. Please request a new one."
)

var errFeedClosed = errors.New("balance feed closed")

// SessionConfig is the per-session policy.
type SessionConfig struct {
	Currency      string
	Locale        string
	MaxWithdrawal *big.Int
	Operation     domain.OperationType
	// TickInterval refreshes the quotation countdown; 0 disables it.
	TickInterval time.Duration
}

// SessionDeps are the collaborators of a withdrawal session.
type SessionDeps struct {
	Quotations ports.QuotationService
	Signing    ports.SigningOrchestrator
	Feed       ports.BalanceFeed
	Money      ports.MoneyFormatter
	Clock      ports.DateTimeFormatter
	Converter  units.Converter
	Audit      ports.AuditService
	Now        func() time.Time
}

// sessionInputs are the independent sources the view is derived from.
type sessionInputs struct {
	balance    *domain.WalletBalance
	balanceErr error
	amountText string
	quotation  *domain.Quotation
	screen     domain.ScreenContent
	signing    domain.SigningState
	// generation changes on every amount edit or dismiss; quotation
	// responses from an older generation are dropped.
	generation uint64
}

// WithdrawalSessionImpl composes balance, amount input, quotation and
// signing state into one WithdrawalView. Every input change recomputes the
// whole view under the session lock, so observers never see a partial update.
type WithdrawalSessionImpl struct {
	id        string
	accountID uuid.UUID
	cfg       SessionConfig
	deps      SessionDeps
	log       zerolog.Logger

	mu     sync.Mutex
	in     sessionInputs
	closed bool
	view   *observable.Cell[domain.WithdrawalView]

	stopSigning func()
	stopFeed    context.CancelFunc
	feedDone    chan struct{}
	tickDone    chan struct{}
	done        chan struct{}
}

// NewWithdrawalSession creates a session and starts consuming the balance
// feed. Close must be called to release it.
func NewWithdrawalSession(accountID uuid.UUID, cfg SessionConfig, deps SessionDeps, log zerolog.Logger) *WithdrawalSessionImpl {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.MaxWithdrawal == nil {
		cfg.MaxWithdrawal = new(big.Int)
	}
	if cfg.Operation == "" {
		cfg.Operation = domain.OperationWithdrawal
	}

	s := &WithdrawalSessionImpl{
		id:        uuid.NewString(),
		accountID: accountID,
		cfg:       cfg,
		deps:      deps,
		in: sessionInputs{
			screen:  domain.IdleScreen(),
			signing: deps.Signing.State(),
		},
		feedDone: make(chan struct{}),
		tickDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.log = log.With().Str("session_id", s.id).Str("account_id", accountID.String()).Logger()
	s.view = observable.NewCell(s.compose())

	s.stopSigning = deps.Signing.Subscribe(s.onSigning)

	feedCtx, stop := context.WithCancel(context.Background())
	s.stopFeed = stop
	go s.consumeFeed(feedCtx, deps.Feed.Subscribe(feedCtx, accountID))

	if cfg.TickInterval > 0 {
		go s.tick(feedCtx, cfg.TickInterval)
	} else {
		close(s.tickDone)
	}
	return s
}

// ID returns the session id.
func (s *WithdrawalSessionImpl) ID() string { return s.id }

// AccountID returns the owning account.
func (s *WithdrawalSessionImpl) AccountID() uuid.UUID { return s.accountID }

// View returns the latest derived view.
func (s *WithdrawalSessionImpl) View() domain.WithdrawalView { return s.view.Get() }

// Subscribe delivers the current view and then every recomputation. The
// callback must not call session commands.
func (s *WithdrawalSessionImpl) Subscribe(fn func(domain.WithdrawalView)) func() {
	return s.view.Subscribe(fn)
}

// Done is closed by Close.
func (s *WithdrawalSessionImpl) Done() <-chan struct{} { return s.done }

// SetAmount replaces the amount text. Any held quotation is discarded and
// the screen returns to Idle.
func (s *WithdrawalSessionImpl) SetAmount(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.in.amountText = text
	s.in.quotation = nil
	s.in.generation++
	s.in.screen = domain.IdleScreen()
	s.apply()
}

// RequestQuotation prices the current amount. It does nothing while the
// CTA is disabled. A failed request shows a dismissible error.
func (s *WithdrawalSessionImpl) RequestQuotation(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return apperror.ErrNotFound("Session")
	}
	current := s.compose()
	if !current.IsCtaEnabled {
		s.mu.Unlock()
		return nil
	}
	gen := s.in.generation
	amount := new(big.Int).Set(current.AmountWei)
	s.in.screen = domain.FetchingQuotationScreen()
	s.apply()
	s.mu.Unlock()

	q, err := s.deps.Quotations.GetQuotation(ctx, s.accountID, amount, s.cfg.Operation)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.in.generation || s.in.screen.Step != domain.ScreenFetchingQuotation {
		s.log.Debug().Msg("dropping stale quotation response")
		return nil
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("quotation request failed")
		s.in.screen = domain.ShowErrorScreen(userMessage(err), false)
		s.apply()
		return nil
	}
	s.in.quotation = q
	s.in.screen = domain.ShowQuotationScreen()
	s.apply()
	return nil
}

// ConfirmQuotation moves from the quotation to the strategy dialog.
func (s *WithdrawalSessionImpl) ConfirmQuotation() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperror.ErrNotFound("Session")
	}
	if s.in.quotation == nil {
		return apperror.ErrNoQuotation()
	}
	if s.in.screen.Step != domain.ScreenShowQuotation {
		return apperror.ErrInvalidStep(string(s.in.screen.Step))
	}
	if s.in.quotation.IsExpired(s.deps.Now()) {
		s.expireQuotation()
		return nil
	}
	s.in.screen = domain.ShowSignDialogScreen()
	s.apply()
	return nil
}

// SelectStrategy signs and submits the held quotation with strategy.
// Signing states are mirrored onto the screen as they are emitted.
func (s *WithdrawalSessionImpl) SelectStrategy(ctx context.Context, strategy domain.SigningStrategy) (domain.SigningState, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.deps.Signing.State(), apperror.ErrNotFound("Session")
	}
	if s.in.quotation == nil {
		s.mu.Unlock()
		return s.deps.Signing.State(), apperror.ErrNoQuotation()
	}
	if s.in.screen.Step != domain.ScreenShowSignDialog {
		step := s.in.screen.Step
		s.mu.Unlock()
		return s.deps.Signing.State(), apperror.ErrInvalidStep(string(step))
	}
	q := s.in.quotation
	if q.IsExpired(s.deps.Now()) {
		s.expireQuotation()
		s.mu.Unlock()
		return s.deps.Signing.State(), nil
	}
	s.mu.Unlock()

	return s.deps.Signing.Execute(ctx, q, strategy, s.cfg.Operation)
}

// Dismiss resets the signing state, clears the quotation and the amount
// and returns to Idle. A submission already running is not interrupted.
func (s *WithdrawalSessionImpl) Dismiss() {
	s.deps.Signing.Reset()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.in.amountText = ""
	s.in.quotation = nil
	s.in.generation++
	s.in.screen = domain.IdleScreen()
	s.apply()

	if s.deps.Audit != nil {
		accountID := s.accountID
		s.deps.Audit.Log(context.Background(), &domain.AuditLog{
			ID:           uuid.New(),
			AccountID:    &accountID,
			Action:       domain.AuditActionSessionDismissed,
			ResourceType: "session",
			ResourceID:   s.id,
			CreatedAt:    s.deps.Now().UTC(),
		})
	}
}

// Close stops the balance feed and detaches from the orchestrator.
func (s *WithdrawalSessionImpl) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.stopSigning()
	s.stopFeed()
	<-s.feedDone
	<-s.tickDone
	close(s.done)
	s.log.Debug().Msg("session closed")
}

func (s *WithdrawalSessionImpl) onSigning(state domain.SigningState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.in.signing = state
	if screen, ok := domain.ScreenForSigning(state); ok {
		s.in.screen = screen
	}
	s.apply()
}

func (s *WithdrawalSessionImpl) consumeFeed(ctx context.Context, events <-chan domain.BalanceEvent) {
	defer close(s.feedDone)
	for ev := range events {
		s.mu.Lock()
		if ev.Err != nil {
			s.log.Error().Err(ev.Err).Msg("balance feed failed")
			s.in.balanceErr = ev.Err
		} else {
			b := ev.Balance
			s.in.balance = &b
		}
		s.apply()
		s.mu.Unlock()
	}

	if ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.in.balanceErr == nil {
		s.log.Error().Msg("balance feed closed unexpectedly")
		s.in.balanceErr = errFeedClosed
		s.apply()
	}
}

func (s *WithdrawalSessionImpl) tick(ctx context.Context, every time.Duration) {
	defer close(s.tickDone)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.in.quotation != nil {
				s.apply()
			}
			s.mu.Unlock()
		}
	}
}

// expireQuotation drops an expired quotation. Caller holds mu.
func (s *WithdrawalSessionImpl) expireQuotation() {
	s.in.quotation = nil
	s.in.screen = domain.ShowErrorScreen(msgQuotationExpired, false)
	s.apply()
}

// apply publishes a fresh view. Caller holds mu.
func (s *WithdrawalSessionImpl) apply() {
	if s.closed {
		return
	}
	s.view.Set(s.compose())
}

// compose derives the view from the current inputs. Caller holds mu (or
// is the constructor).
func (s *WithdrawalSessionImpl) compose() domain.WithdrawalView {
	return composeView(s.in, viewEnv{
		sessionID: s.id,
		locale:    s.cfg.Locale,
		currency:  s.cfg.Currency,
		max:       s.cfg.MaxWithdrawal,
		conv:      s.deps.Converter,
		money:     s.deps.Money,
		clock:     s.deps.Clock,
		now:       s.deps.Now(),
	})
}

type viewEnv struct {
	sessionID string
	locale    string
	currency  string
	max       *big.Int
	conv      units.Converter
	money     ports.MoneyFormatter
	clock     ports.DateTimeFormatter
	now       time.Time
}

// composeView is the pure derivation of a WithdrawalView.
func composeView(in sessionInputs, env viewEnv) domain.WithdrawalView {
	amount := env.conv.ToBaseUnits(in.amountText)

	balance := new(big.Int)
	if in.balance != nil && in.balance.BalanceWei != nil {
		balance.Set(in.balance.BalanceWei)
	}

	remaining := new(big.Int).Sub(balance, amount)
	remaining.Sub(remaining, in.quotation.FeeOrZero())

	positive := amount.Sign() > 0
	sufficient := remaining.Sign() >= 0
	exceeds := amount.Cmp(env.max) > 0

	v := domain.WithdrawalView{
		SessionID:             env.sessionID,
		Locale:                env.locale,
		Currency:              env.currency,
		AmountInput:           in.amountText,
		AmountWei:             amount,
		BalanceWei:            balance,
		RemainingWei:          remaining,
		IsCtaEnabled:          positive && sufficient && !exceeds && in.balanceErr == nil,
		IsInsufficientBalance: positive && !sufficient,
		AmountExceedsLimit:    exceeds,
		Signing:               in.signing,
		Screen:                in.screen,
	}

	v.AvailableBalanceFormatted = env.money.Format(balance, env.currency, localize.Standard, env.locale)
	v.RemainingBalanceFormatted = env.money.Format(remaining, env.currency, localize.Standard, env.locale)
	v.MaxLimitFormatted = env.money.Format(env.max, env.currency, localize.Standard, env.locale)
	if in.balance != nil {
		v.BalanceUpdatedFormatted = env.clock.FormatMillis(in.balance.LastUpdatedMillis, env.locale)
	}

	if q := in.quotation; q != nil {
		remainingTime := domain.CalculateTimeRemaining(q.ExpiresAt, env.now)
		v.Quotation = q
		v.QuotationAmountFormatted = env.money.Format(q.Amount, env.currency, localize.Detail, env.locale)
		v.QuotationFeeFormatted = env.money.Format(q.Fee, env.currency, localize.Detail, env.locale)
		v.AmountToTransferFormatted = env.money.Format(q.Total(), env.currency, localize.Detail, env.locale)
		v.QuotationTimeRemaining = &remainingTime
		v.QuotationExpiresIn = remainingTime.String()
	}

	if in.balanceErr != nil {
		v.Screen = domain.ShowErrorScreen(msgBalanceUnavailable, true)
	}
	return v
}
