package integration

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Account Repo ---

type inMemoryAccountRepo struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*domain.UserAccount
}

func newInMemoryAccountRepo() *inMemoryAccountRepo {
	return &inMemoryAccountRepo{accounts: make(map[uuid.UUID]*domain.UserAccount)}
}

func (r *inMemoryAccountRepo) Create(ctx context.Context, a *domain.UserAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Username == a.Username {
			return fmt.Errorf("username already exists")
		}
	}
	cp := *a
	r.accounts[a.ID] = &cp
	return nil
}

func (r *inMemoryAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.UserAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *inMemoryAccountRepo) GetByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

// suspend flips an account to SUSPENDED.
func (r *inMemoryAccountRepo) suspend(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		a.Status = domain.AccountStatusSuspended
	}
}

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.Wallet
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[uuid.UUID]*domain.Wallet)}
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.wallets {
		if existing.AccountID == w.AccountID && existing.Currency == w.Currency {
			return fmt.Errorf("wallet already exists")
		}
	}
	cp := *w
	r.wallets[w.ID] = &cp
	return nil
}

func (r *inMemoryWalletRepo) GetByAccountID(ctx context.Context, accountID uuid.UUID, currency string) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.wallets {
		if w.AccountID == accountID && w.Currency == currency {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

// GetByAccountIDForUpdate relies on the transactor's lock for isolation.
func (r *inMemoryWalletRepo) GetByAccountIDForUpdate(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, currency string) (*domain.Wallet, error) {
	return r.GetByAccountID(ctx, accountID, currency)
}

func (r *inMemoryWalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, encryptedBalance string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return fmt.Errorf("wallet not found")
	}
	w.EncryptedBalance = encryptedBalance
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// --- In-Memory Withdrawal Repo ---

type inMemoryWithdrawalRepo struct {
	mu          sync.RWMutex
	withdrawals map[uuid.UUID]*domain.Withdrawal
}

func newInMemoryWithdrawalRepo() *inMemoryWithdrawalRepo {
	return &inMemoryWithdrawalRepo{withdrawals: make(map[uuid.UUID]*domain.Withdrawal)}
}

func (r *inMemoryWithdrawalRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Withdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.withdrawals {
		if existing.QuotationID == w.QuotationID {
			return fmt.Errorf("duplicate quotation_id")
		}
	}
	cp := *w
	r.withdrawals[w.ID] = &cp
	return nil
}

func (r *inMemoryWithdrawalRepo) GetByQuotationID(ctx context.Context, quotationID string) (*domain.Withdrawal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.withdrawals {
		if w.QuotationID == quotationID {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryWithdrawalRepo) List(ctx context.Context, params ports.WithdrawalListParams) ([]domain.Withdrawal, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Withdrawal
	for _, w := range r.withdrawals {
		if w.AccountID != params.AccountID {
			continue
		}
		if params.Status != nil && w.Status != *params.Status {
			continue
		}
		result = append(result, *w)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	total := int64(len(result))

	// Simple pagination
	start := (params.Page - 1) * params.PageSize
	if start >= len(result) {
		return []domain.Withdrawal{}, total, nil
	}
	end := start + params.PageSize
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], total, nil
}

func (r *inMemoryWithdrawalRepo) GetStats(ctx context.Context, accountID uuid.UUID, since *time.Time) (*ports.WithdrawalStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := &ports.WithdrawalStats{TotalAmount: new(big.Int), TotalFees: new(big.Int)}
	for _, w := range r.withdrawals {
		if w.AccountID != accountID {
			continue
		}
		if since != nil && w.CreatedAt.Before(*since) {
			continue
		}
		stats.Total++
		switch w.Status {
		case domain.WithdrawalStatusSubmitted:
			stats.Submitted++
			stats.TotalAmount.Add(stats.TotalAmount, w.AmountWei)
			stats.TotalFees.Add(stats.TotalFees, w.FeeWei)
		case domain.WithdrawalStatusRejected:
			stats.Rejected++
		}
	}
	return stats, nil
}

func (r *inMemoryWithdrawalRepo) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.withdrawals)
}

// --- In-Memory Idempotency Repo ---

type inMemoryIdempotencyRepo struct {
	mu   sync.RWMutex
	logs map[string]*domain.IdempotencyLog
}

func newInMemoryIdempotencyRepo() *inMemoryIdempotencyRepo {
	return &inMemoryIdempotencyRepo{logs: make(map[string]*domain.IdempotencyLog)}
}

// Create fails on a duplicate key like the primary key constraint does.
func (r *inMemoryIdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.logs[log.Key]; ok {
		return fmt.Errorf("%w: %s", ports.ErrIdempotencyKeyExists, log.Key)
	}
	r.logs[log.Key] = log
	return nil
}

func (r *inMemoryIdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.logs[key]
	if !ok {
		return nil, nil
	}
	return l, nil
}

// --- In-Memory Audit Repo ---

type inMemoryAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditLog
}

func (r *inMemoryAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *inMemoryAuditRepo) actions() []domain.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditAction, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

// --- In-Memory Transactor ---

// inMemoryTransactor serialises transactions with one mutex, standing in
// for the row lock taken by SELECT ... FOR UPDATE.
type inMemoryTransactor struct {
	mu sync.Mutex
}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	return &lockedTx{release: t.mu.Unlock}, nil
}

// lockedTx is a pgx.Tx that only releases the transactor lock.
type lockedTx struct {
	once    sync.Once
	release func()
}

func (t *lockedTx) end() { t.once.Do(t.release) }

func (t *lockedTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *lockedTx) Commit(ctx context.Context) error          { t.end(); return nil }
func (t *lockedTx) Rollback(ctx context.Context) error        { t.end(); return nil }
func (t *lockedTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *lockedTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *lockedTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *lockedTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *lockedTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *lockedTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *lockedTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *lockedTx) Conn() *pgx.Conn { return nil }
