// Package chain reads account balances from an EVM JSON-RPC node.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports"
	"secure-withdrawal-gateway/pkg/apperror"
	"secure-withdrawal-gateway/pkg/metrics"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// BalanceReader is the subset of ethclient.Client the feed needs.
type BalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Config tunes polling of the node.
type Config struct {
	PollInterval time.Duration
	RateLimit    float64 // calls per second shared by all subscriptions
	Burst        int
	CallTimeout  time.Duration
}

// BalanceFeed implements ports.BalanceFeed by polling eth_getBalance for
// the wallet address of the account.
type BalanceFeed struct {
	client   BalanceReader
	accounts ports.AccountRepository
	limiter  *rate.Limiter
	cfg      Config
	now      func() time.Time
	log      zerolog.Logger
}

// Dial connects to rpcURL.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", rpcURL, err)
	}
	return client, nil
}

// NewBalanceFeed creates a BalanceFeed.
func NewBalanceFeed(client BalanceReader, accounts ports.AccountRepository, cfg Config, log zerolog.Logger) *BalanceFeed {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	return &BalanceFeed{
		client:   client,
		accounts: accounts,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		cfg:      cfg,
		now:      time.Now,
		log:      log.With().Str("source", "evm").Logger(),
	}
}

// Subscribe polls the node until ctx is done or a read fails.
func (f *BalanceFeed) Subscribe(ctx context.Context, accountID uuid.UUID) <-chan domain.BalanceEvent {
	out := make(chan domain.BalanceEvent, 1)
	go f.run(ctx, accountID, out)
	return out
}

func (f *BalanceFeed) run(ctx context.Context, accountID uuid.UUID, out chan<- domain.BalanceEvent) {
	defer close(out)
	log := f.log.With().Str("account_id", accountID.String()).Logger()

	fail := func(err error) {
		if ctx.Err() != nil {
			return
		}
		log.Error().Err(err).Msg("chain balance read failed")
		metrics.BalanceFeedFailuresTotal.WithLabelValues("evm").Inc()
		select {
		case out <- domain.BalanceEvent{Err: apperror.ErrBalanceUnavailable(err)}:
		case <-ctx.Done():
		}
	}

	address, err := f.address(ctx, accountID)
	if err != nil {
		fail(err)
		return
	}

	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	var last *big.Int
	for {
		balance, err := f.read(ctx, address)
		if err != nil {
			fail(err)
			return
		}
		if last == nil || last.Cmp(balance) != 0 {
			last = balance
			ev := domain.BalanceEvent{Balance: domain.WalletBalance{
				BalanceWei:        new(big.Int).Set(balance),
				LastUpdatedMillis: f.now().UnixMilli(),
			}}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (f *BalanceFeed) address(ctx context.Context, accountID uuid.UUID) (common.Address, error) {
	account, err := f.accounts.GetByID(ctx, accountID)
	if err != nil {
		return common.Address{}, fmt.Errorf("get account: %w", err)
	}
	if account == nil {
		return common.Address{}, errors.New("account not found")
	}
	if !common.IsHexAddress(account.WalletAddress) {
		return common.Address{}, fmt.Errorf("account has no valid wallet address: %q", account.WalletAddress)
	}
	return common.HexToAddress(account.WalletAddress), nil
}

func (f *BalanceFeed) read(ctx context.Context, address common.Address) (*big.Int, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
	defer cancel()

	balance, err := f.client.BalanceAt(callCtx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("eth_getBalance %s: %w", address.Hex(), err)
	}
	return balance, nil
}
