package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	mrand "math/rand/v2"
	"time"

	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports"
	"secure-withdrawal-gateway/pkg/apperror"
	"secure-withdrawal-gateway/pkg/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const (
	idempotencyTTL      = 24 * time.Hour
	defaultQuotationTTL = 60 * time.Second
	// claimMargin keeps a submission claim alive past the quotation expiry.
	claimMargin = time.Minute
)

// LedgerConfig is the pricing and limit policy of the ledger.
type LedgerConfig struct {
	Currency         string
	MaxAmount        *big.Int
	QuotationTTL     time.Duration
	FeeUnit          *big.Int
	FeeMinMultiplier int64
	FeeMaxMultiplier int64
}

// LedgerDeps are the collaborators of LedgerServiceImpl. Audit, Webhooks and
// Notifier are optional.
type LedgerDeps struct {
	Wallets     ports.WalletRepository
	Withdrawals ports.WithdrawalRepository
	IdempRepo   ports.IdempotencyRepository
	IdempCache  ports.IdempotencyCache
	Quotations  ports.QuotationStore
	Locks       ports.SubmissionLock
	Verifier    ports.SignatureVerifier
	Encryption  ports.EncryptionService
	Transactor  ports.DBTransactor
	Features    ports.FeatureRepository
	Notifier    ports.BalanceNotifier
	Audit       ports.AuditService
	Webhooks    ports.WebhookService
	// Int64N returns a uniform value in [0, n). Defaults to math/rand/v2.
	Int64N func(n int64) int64
	Now    func() time.Time
}

// LedgerServiceImpl implements ports.LedgerService on top of the sealed
// wallet ledger.
type LedgerServiceImpl struct {
	cfg  LedgerConfig
	deps LedgerDeps
	log  zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(cfg LedgerConfig, deps LedgerDeps, log zerolog.Logger) *LedgerServiceImpl {
	if cfg.QuotationTTL <= 0 {
		cfg.QuotationTTL = defaultQuotationTTL
	}
	if cfg.FeeUnit == nil {
		cfg.FeeUnit = new(big.Int)
	}
	if cfg.FeeMaxMultiplier < cfg.FeeMinMultiplier {
		cfg.FeeMaxMultiplier = cfg.FeeMinMultiplier
	}
	if deps.Int64N == nil {
		deps.Int64N = mrand.Int64N
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &LedgerServiceImpl{cfg: cfg, deps: deps, log: log}
}

// operationFeatures maps each operation to the feature that gates it.
var operationFeatures = map[domain.OperationType]string{
	domain.OperationWithdrawal: domain.FeatureWithdrawal,
	domain.OperationTransfer:   domain.FeatureTransfer,
	domain.OperationSwap:       domain.FeatureSwap,
}

// GetQuotation prices amount for op and stores the quotation until it expires.
func (s *LedgerServiceImpl) GetQuotation(ctx context.Context, accountID uuid.UUID, amount *big.Int, op domain.OperationType) (*domain.Quotation, error) {
	if amount == nil || amount.Sign() <= 0 {
		metrics.QuotationsTotal.WithLabelValues("rejected").Inc()
		return nil, apperror.ErrInvalidAmount()
	}
	if s.cfg.MaxAmount != nil && amount.Cmp(s.cfg.MaxAmount) > 0 {
		metrics.QuotationsTotal.WithLabelValues("rejected").Inc()
		return nil, apperror.ErrWithdrawalLimitExceeded()
	}

	feature, ok := operationFeatures[op]
	if !ok {
		metrics.QuotationsTotal.WithLabelValues("rejected").Inc()
		return nil, apperror.ErrUnsupportedOperation(string(op))
	}
	enabled, err := s.deps.Features.IsEnabled(ctx, feature)
	if err != nil {
		metrics.QuotationsTotal.WithLabelValues("error").Inc()
		return nil, apperror.InternalError(fmt.Errorf("check feature: %w", err))
	}
	if !enabled {
		metrics.QuotationsTotal.WithLabelValues("rejected").Inc()
		return nil, apperror.ErrFeatureDisabled(feature)
	}

	nonce, err := randomHex(16)
	if err != nil {
		metrics.QuotationsTotal.WithLabelValues("error").Inc()
		return nil, apperror.InternalError(fmt.Errorf("challenge nonce: %w", err))
	}

	id := uuid.NewString()
	q := &domain.Quotation{
		ID:            id,
		AccountID:     accountID,
		Amount:        new(big.Int).Set(amount),
		Fee:           s.fee(),
		Challenge:     id + ":" + nonce,
		OperationType: op,
		ExpiresAt:     s.deps.Now().Add(s.cfg.QuotationTTL).UTC(),
	}

	if err := s.deps.Quotations.Save(ctx, q); err != nil {
		metrics.QuotationsTotal.WithLabelValues("error").Inc()
		return nil, apperror.ErrCacheError(fmt.Errorf("save quotation: %w", err))
	}

	metrics.QuotationsTotal.WithLabelValues("issued").Inc()
	s.audit(accountID, domain.AuditActionQuotationIssued, "quotation", id, map[string]string{
		"amount_wei": q.Amount.String(),
		"fee_wei":    q.Fee.String(),
		"operation":  string(op),
	})

	s.log.Info().
		Str("quotation_id", id).
		Str("account_id", accountID.String()).
		Str("amount_wei", q.Amount.String()).
		Str("fee_wei", q.Fee.String()).
		Msg("quotation issued")

	return q, nil
}

// fee draws a multiplier in [min, max] and scales the fee unit by it.
func (s *LedgerServiceImpl) fee() *big.Int {
	span := s.cfg.FeeMaxMultiplier - s.cfg.FeeMinMultiplier + 1
	multiplier := s.cfg.FeeMinMultiplier + s.deps.Int64N(span)
	return new(big.Int).Mul(s.cfg.FeeUnit, big.NewInt(multiplier))
}

// Submit executes a signed quotation at most once. A second submission of
// the same quotation returns the first outcome.
func (s *LedgerServiceImpl) Submit(
	ctx context.Context,
	accountID uuid.UUID,
	quotationID string,
	artifact domain.SignedArtifact,
	strategy domain.SigningStrategy,
) (bool, error) {
	idempKey := domain.BuildSubmissionKey(accountID, quotationID)
	log := s.log.With().Str("quotation_id", quotationID).Str("account_id", accountID.String()).Logger()

	// Layer 1: Redis idempotency check
	cached, err := s.deps.IdempCache.Get(ctx, idempKey)
	if err != nil {
		log.Warn().Err(err).Str("key", idempKey).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		return s.replay(cached)
	}

	// Layer 2: DB idempotency check
	idempLog, err := s.deps.IdempRepo.Get(ctx, idempKey)
	if err != nil {
		return s.failed(apperror.ErrDatabaseError(fmt.Errorf("db idempotency check: %w", err)))
	}
	if idempLog != nil {
		return s.replay(idempLog.ResponseJSON)
	}

	q, err := s.deps.Quotations.Get(ctx, quotationID)
	if err != nil {
		return s.failed(apperror.ErrCacheError(fmt.Errorf("load quotation: %w", err)))
	}
	now := s.deps.Now()
	switch {
	case q == nil:
		log.Warn().Msg("submission of unknown quotation rejected")
		return s.rejected()
	case q.AccountID != accountID:
		log.Warn().Msg("submission of foreign quotation rejected")
		return s.rejected()
	case q.IsExpired(now):
		log.Warn().Msg("submission of expired quotation rejected")
		return s.rejected()
	}

	claimed, err := s.deps.Locks.Acquire(ctx, quotationID, q.ExpiresAt.Sub(now)+claimMargin)
	if err != nil {
		return s.failed(apperror.ErrCacheError(fmt.Errorf("claim quotation: %w", err)))
	}
	if !claimed {
		metrics.SubmissionsTotal.WithLabelValues("duplicate").Inc()
		return false, apperror.ErrDuplicateSubmission()
	}

	validSignature := s.deps.Verifier.Verify(q.Challenge, strategy, artifact)
	if !validSignature {
		log.Warn().Str("strategy", string(strategy)).Msg("signed artifact does not match the challenge")
	}

	withdrawal, respJSON, err := s.execute(ctx, q, artifact, strategy, validSignature, idempKey)
	if err != nil {
		return s.failed(err)
	}

	// Post-process: cache in Redis (best-effort)
	if err := s.deps.IdempCache.Set(ctx, idempKey, respJSON, idempotencyTTL); err != nil {
		log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache idempotency in redis")
	}

	accepted := withdrawal.IsAccepted()
	action := domain.AuditActionWithdrawalRejected
	if accepted {
		action = domain.AuditActionWithdrawalSubmitted
		metrics.SubmissionsTotal.WithLabelValues("accepted").Inc()
		s.afterAccepted(ctx, withdrawal, log)
	} else {
		metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
	}
	s.audit(accountID, action, "withdrawal", withdrawal.ID.String(), map[string]string{
		"quotation_id": quotationID,
		"strategy":     string(strategy),
		"total_wei":    withdrawal.Total().String(),
	})

	log.Info().
		Str("withdrawal_id", withdrawal.ID.String()).
		Str("status", string(withdrawal.Status)).
		Msg("submission processed")

	return accepted, nil
}

// execute records the submission inside one database transaction with the
// wallet row locked. The debit only happens when the signature is valid and
// the balance covers amount + fee.
func (s *LedgerServiceImpl) execute(
	ctx context.Context,
	q *domain.Quotation,
	artifact domain.SignedArtifact,
	strategy domain.SigningStrategy,
	validSignature bool,
	idempKey string,
) (*domain.Withdrawal, []byte, error) {
	dbTx, err := s.deps.Transactor.Begin(ctx)
	if err != nil {
		return nil, nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, balance, err := s.lockWallet(ctx, dbTx, q.AccountID)
	if err != nil {
		return nil, nil, err
	}

	total := q.Total()
	status := domain.WithdrawalStatusRejected
	if validSignature && balance.Cmp(total) >= 0 {
		status = domain.WithdrawalStatusSubmitted
		if err := s.storeBalance(ctx, dbTx, wallet.ID, new(big.Int).Sub(balance, total)); err != nil {
			return nil, nil, err
		}
	}

	artifactEnc, err := s.deps.Encryption.Encrypt(string(artifact))
	if err != nil {
		return nil, nil, apperror.ErrEncryptionFailure(fmt.Errorf("seal artifact: %w", err))
	}

	now := s.deps.Now().UTC()
	withdrawal := &domain.Withdrawal{
		ID:            uuid.New(),
		QuotationID:   q.ID,
		AccountID:     q.AccountID,
		WalletID:      wallet.ID,
		AmountWei:     new(big.Int).Set(q.Amount),
		FeeWei:        new(big.Int).Set(q.FeeOrZero()),
		OperationType: q.OperationType,
		Strategy:      strategy,
		ArtifactEnc:   artifactEnc,
		Status:        status,
		CreatedAt:     now,
	}
	if err := s.deps.Withdrawals.Create(ctx, dbTx, withdrawal); err != nil {
		return nil, nil, apperror.ErrDatabaseError(fmt.Errorf("create withdrawal: %w", err))
	}

	respJSON, err := json.Marshal(withdrawal)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
	}
	if err := s.deps.IdempRepo.Create(ctx, dbTx, &domain.IdempotencyLog{
		Key:          idempKey,
		ResourceID:   withdrawal.ID,
		ResponseJSON: respJSON,
		CreatedAt:    now,
	}); err != nil {
		if errors.Is(err, ports.ErrIdempotencyKeyExists) {
			return nil, nil, apperror.ErrDuplicateSubmission()
		}
		return nil, nil, apperror.ErrDatabaseError(fmt.Errorf("save idempotency log: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}
	return withdrawal, respJSON, nil
}

func (s *LedgerServiceImpl) afterAccepted(ctx context.Context, w *domain.Withdrawal, log zerolog.Logger) {
	if s.deps.Webhooks != nil {
		if err := s.deps.Webhooks.EnqueueWithdrawal(ctx, w); err != nil {
			log.Warn().Err(err).Msg("failed to enqueue withdrawal webhook")
		}
	}
	s.notify(ctx, w.AccountID, log)
}

// Fund credits amount to the account's wallet, creating it on first use.
// Requests are idempotent per reference.
func (s *LedgerServiceImpl) Fund(ctx context.Context, accountID uuid.UUID, amount *big.Int, reference string) (domain.WalletBalance, error) {
	if amount == nil || amount.Sign() <= 0 {
		return domain.WalletBalance{}, apperror.ErrInvalidAmount()
	}
	idempKey := domain.BuildFundingKey(accountID, reference)

	idempLog, err := s.deps.IdempRepo.Get(ctx, idempKey)
	if err != nil {
		return domain.WalletBalance{}, apperror.ErrDatabaseError(fmt.Errorf("db idempotency check: %w", err))
	}
	if idempLog != nil {
		s.log.Info().Str("key", idempKey).Msg("funding already applied")
		return s.Balance(ctx, accountID)
	}

	dbTx, err := s.deps.Transactor.Begin(ctx)
	if err != nil {
		return domain.WalletBalance{}, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, balance, err := s.lockWallet(ctx, dbTx, accountID)
	if err != nil {
		return domain.WalletBalance{}, err
	}

	// A request with the same reference may have committed while this one
	// waited for the wallet lock.
	idempLog, err = s.deps.IdempRepo.Get(ctx, idempKey)
	if err != nil {
		return domain.WalletBalance{}, apperror.ErrDatabaseError(fmt.Errorf("db idempotency recheck: %w", err))
	}
	if idempLog != nil {
		_ = dbTx.Rollback(ctx)
		s.log.Info().Str("key", idempKey).Msg("funding applied concurrently")
		return s.Balance(ctx, accountID)
	}

	newBalance := new(big.Int).Add(balance, amount)
	if err := s.storeBalance(ctx, dbTx, wallet.ID, newBalance); err != nil {
		return domain.WalletBalance{}, err
	}

	now := s.deps.Now().UTC()
	if err := s.deps.IdempRepo.Create(ctx, dbTx, &domain.IdempotencyLog{
		Key:          idempKey,
		ResourceID:   wallet.ID,
		ResponseJSON: []byte(`{"amount_wei":"` + amount.String() + `"}`),
		CreatedAt:    now,
	}); err != nil {
		if errors.Is(err, ports.ErrIdempotencyKeyExists) {
			_ = dbTx.Rollback(ctx)
			return s.Balance(ctx, accountID)
		}
		return domain.WalletBalance{}, apperror.ErrDatabaseError(fmt.Errorf("save idempotency log: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return domain.WalletBalance{}, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	log := s.log.With().Str("account_id", accountID.String()).Logger()
	s.notify(ctx, accountID, log)
	s.audit(accountID, domain.AuditActionWalletFunded, "wallet", wallet.ID.String(), map[string]string{
		"amount_wei": amount.String(),
		"reference":  reference,
	})
	log.Info().Str("amount_wei", amount.String()).Str("reference", reference).Msg("wallet funded")

	return domain.WalletBalance{BalanceWei: newBalance, LastUpdatedMillis: now.UnixMilli()}, nil
}

// Balance returns the account's current balance; an account without a
// wallet has a zero balance.
func (s *LedgerServiceImpl) Balance(ctx context.Context, accountID uuid.UUID) (domain.WalletBalance, error) {
	wallet, err := s.deps.Wallets.GetByAccountID(ctx, accountID, s.cfg.Currency)
	if err != nil {
		return domain.WalletBalance{}, apperror.ErrDatabaseError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return domain.WalletBalance{BalanceWei: new(big.Int), LastUpdatedMillis: s.deps.Now().UnixMilli()}, nil
	}
	balance, err := s.openBalance(wallet)
	if err != nil {
		return domain.WalletBalance{}, err
	}
	return domain.WalletBalance{BalanceWei: balance, LastUpdatedMillis: wallet.UpdatedAt.UnixMilli()}, nil
}

// lockWallet locks the wallet row, creating the wallet with a zero balance
// when the account has none yet.
func (s *LedgerServiceImpl) lockWallet(ctx context.Context, dbTx pgx.Tx, accountID uuid.UUID) (*domain.Wallet, *big.Int, error) {
	wallet, err := s.deps.Wallets.GetByAccountIDForUpdate(ctx, dbTx, accountID, s.cfg.Currency)
	if err != nil {
		return nil, nil, apperror.ErrDatabaseError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet != nil {
		balance, err := s.openBalance(wallet)
		if err != nil {
			return nil, nil, err
		}
		return wallet, balance, nil
	}

	sealed, err := s.deps.Encryption.Encrypt("0")
	if err != nil {
		return nil, nil, apperror.ErrEncryptionFailure(fmt.Errorf("seal balance: %w", err))
	}
	now := s.deps.Now().UTC()
	wallet = &domain.Wallet{
		ID:               uuid.New(),
		AccountID:        accountID,
		Currency:         s.cfg.Currency,
		EncryptedBalance: sealed,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.deps.Wallets.Create(ctx, dbTx, wallet); err != nil {
		return nil, nil, apperror.ErrDatabaseError(fmt.Errorf("create wallet: %w", err))
	}
	return wallet, new(big.Int), nil
}

func (s *LedgerServiceImpl) openBalance(wallet *domain.Wallet) (*big.Int, error) {
	plain, err := s.deps.Encryption.Decrypt(wallet.EncryptedBalance)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(fmt.Errorf("decrypt balance: %w", err))
	}
	balance, ok := new(big.Int).SetString(plain, 10)
	if !ok {
		return nil, apperror.InternalError(fmt.Errorf("parse balance %q", plain))
	}
	return balance, nil
}

func (s *LedgerServiceImpl) storeBalance(ctx context.Context, dbTx pgx.Tx, walletID uuid.UUID, balance *big.Int) error {
	sealed, err := s.deps.Encryption.Encrypt(balance.String())
	if err != nil {
		return apperror.ErrEncryptionFailure(fmt.Errorf("encrypt new balance: %w", err))
	}
	if err := s.deps.Wallets.UpdateBalance(ctx, dbTx, walletID, sealed); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("update balance: %w", err))
	}
	return nil
}

func (s *LedgerServiceImpl) notify(ctx context.Context, accountID uuid.UUID, log zerolog.Logger) {
	if s.deps.Notifier == nil {
		return
	}
	if err := s.deps.Notifier.Publish(ctx, accountID); err != nil {
		log.Warn().Err(err).Msg("failed to publish balance change")
	}
}

func (s *LedgerServiceImpl) audit(accountID uuid.UUID, action domain.AuditAction, resourceType, resourceID string, details map[string]string) {
	if s.deps.Audit == nil {
		return
	}
	detailJSON, _ := json.Marshal(details)
	s.deps.Audit.Log(context.Background(), &domain.AuditLog{
		ID:           uuid.New(),
		AccountID:    &accountID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      string(detailJSON),
		CreatedAt:    s.deps.Now().UTC(),
	})
}

// replay returns the outcome recorded for an earlier submission.
func (s *LedgerServiceImpl) replay(data []byte) (bool, error) {
	w := &domain.Withdrawal{}
	if err := json.Unmarshal(data, w); err != nil {
		return s.failed(apperror.InternalError(fmt.Errorf("unmarshal cached withdrawal: %w", err)))
	}
	metrics.SubmissionsTotal.WithLabelValues("replayed").Inc()
	return w.IsAccepted(), nil
}

func (s *LedgerServiceImpl) rejected() (bool, error) {
	metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
	return false, nil
}

func (s *LedgerServiceImpl) failed(err error) (bool, error) {
	metrics.SubmissionsTotal.WithLabelValues("error").Inc()
	return false, err
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
