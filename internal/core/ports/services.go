package ports

import (
	"context"
	"math/big"
	"time"

	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/pkg/localize"

	"github.com/google/uuid"
)

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService produces and checks timestamped HMAC-SHA256 signature
// headers of the form "t=<unix>,v1=<hex>".
type SignatureService interface {
	Sign(secret string, timestamp int64, payload []byte) string
	Verify(secret string, header string, payload []byte, now time.Time, tolerance time.Duration) bool
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(accountID uuid.UUID) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	AccountID uuid.UUID
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RateLimitDecision is the outcome of counting one request in its window.
type RateLimitDecision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (RateLimitDecision, error)
}

// QuotationStore keeps issued quotations until they expire.
type QuotationStore interface {
	Save(ctx context.Context, q *domain.Quotation) error
	// Get returns nil when the quotation is unknown or has expired.
	Get(ctx context.Context, id string) (*domain.Quotation, error)
}

// SubmissionLock claims a quotation for submission.
type SubmissionLock interface {
	// Acquire atomically claims quotationID. Returns true if this caller
	// holds the claim, false if it was already taken.
	Acquire(ctx context.Context, quotationID string, ttl time.Duration) (bool, error)
}

// BalanceNotifier fans out "balance changed" signals between instances.
type BalanceNotifier interface {
	Publish(ctx context.Context, accountID uuid.UUID) error
	// Subscribe delivers a signal per change until ctx is done, then
	// closes the channel.
	Subscribe(ctx context.Context, accountID uuid.UUID) (<-chan struct{}, error)
}

// --- Withdrawal collaborators ---

// QuotationService prices a withdrawal.
type QuotationService interface {
	GetQuotation(ctx context.Context, accountID uuid.UUID, amount *big.Int, op domain.OperationType) (*domain.Quotation, error)
}

// SubmissionService executes a signed quotation. It reports false when the
// quotation was rejected and an error when the outcome is unknown.
type SubmissionService interface {
	Submit(ctx context.Context, accountID uuid.UUID, quotationID string, artifact domain.SignedArtifact, strategy domain.SigningStrategy) (bool, error)
}

// SignatureProvider turns a challenge into a signed artifact.
type SignatureProvider interface {
	Sign(ctx context.Context, challenge string, strategy domain.SigningStrategy) (domain.SignedArtifact, error)
}

// SignatureVerifier checks an artifact produced by a SignatureProvider.
type SignatureVerifier interface {
	Verify(challenge string, strategy domain.SigningStrategy, artifact domain.SignedArtifact) bool
}

// BalanceFeed streams the balance of an account. The channel closes when
// ctx is done or right after an event carrying an error.
type BalanceFeed interface {
	Subscribe(ctx context.Context, accountID uuid.UUID) <-chan domain.BalanceEvent
}

// LedgerService prices, executes and funds withdrawals against the wallet ledger.
type LedgerService interface {
	QuotationService
	SubmissionService
	Fund(ctx context.Context, accountID uuid.UUID, amount *big.Int, reference string) (domain.WalletBalance, error)
	Balance(ctx context.Context, accountID uuid.UUID) (domain.WalletBalance, error)
}

// FeatureRepository supplies the named capabilities and whether they are on.
type FeatureRepository interface {
	List(ctx context.Context) ([]domain.Feature, error)
	IsEnabled(ctx context.Context, name string) (bool, error)
}

// MoneyFormatter renders base-unit amounts for a locale.
type MoneyFormatter interface {
	Format(amount *big.Int, currencyCode string, p localize.Precision, locale string) string
}

// DateTimeFormatter renders timestamps for a locale.
type DateTimeFormatter interface {
	FormatMillis(ms int64, locale string) string
}

// --- Sessions ---

// SigningOrchestrator owns the signing lifecycle of one session.
type SigningOrchestrator interface {
	State() domain.SigningState
	Subscribe(fn func(domain.SigningState)) (cancel func())
	Execute(ctx context.Context, q *domain.Quotation, strategy domain.SigningStrategy, op domain.OperationType) (domain.SigningState, error)
	Reset() bool
	Wait(ctx context.Context) error
}

// WithdrawalSession is one user's withdrawal flow: inputs, commands and
// the view derived from them.
type WithdrawalSession interface {
	ID() string
	AccountID() uuid.UUID
	View() domain.WithdrawalView
	Subscribe(fn func(domain.WithdrawalView)) (cancel func())
	SetAmount(text string)
	RequestQuotation(ctx context.Context) error
	ConfirmQuotation() error
	SelectStrategy(ctx context.Context, strategy domain.SigningStrategy) (domain.SigningState, error)
	Dismiss()
	Close()
	// Done is closed once the session has been closed.
	Done() <-chan struct{}
}

// SessionManager keeps the open sessions of every account.
type SessionManager interface {
	Open(ctx context.Context, accountID uuid.UUID, locale string) (WithdrawalSession, error)
	Get(accountID uuid.UUID, sessionID string) (WithdrawalSession, error)
	Close(accountID uuid.UUID, sessionID string) error
	Shutdown(ctx context.Context) error
}

// --- Service Ports (Business Logic) ---

// AccountService manages user accounts.
type AccountService interface {
	Register(ctx context.Context, req RegisterRequest) (*domain.UserAccount, error)
	GetProfile(ctx context.Context, accountID uuid.UUID) (*AccountProfile, error)
}

// RegisterRequest holds input for account registration.
type RegisterRequest struct {
	Username      string
	DisplayName   string
	Email         string
	WalletAddress string
}

// AccountProfile is an account plus its current wallet balance.
type AccountProfile struct {
	Account *domain.UserAccount
	Balance domain.WalletBalance
}

// HistoryService defines withdrawal reporting business logic.
type HistoryService interface {
	ListWithdrawals(ctx context.Context, params WithdrawalListParams) ([]domain.Withdrawal, int64, error)
	GetStats(ctx context.Context, accountID uuid.UUID, period string) (*WithdrawalStats, error)
}

// AuditService records audit entries.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// WebhookService defines async webhook delivery.
type WebhookService interface {
	EnqueueWithdrawal(ctx context.Context, withdrawal *domain.Withdrawal) error
}
