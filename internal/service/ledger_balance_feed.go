package service

import (
	"context"
	"time"

	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports"
	"secure-withdrawal-gateway/pkg/apperror"
	"secure-withdrawal-gateway/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultBalancePollInterval = 5 * time.Second

// LedgerBalanceFeed implements ports.BalanceFeed over the wallet ledger.
// It re-reads the balance on every change notification and on a poll tick.
type LedgerBalanceFeed struct {
	ledger   ports.LedgerService
	notifier ports.BalanceNotifier
	interval time.Duration
	log      zerolog.Logger
}

// NewLedgerBalanceFeed creates a LedgerBalanceFeed. notifier may be nil, in
// which case the feed only polls.
func NewLedgerBalanceFeed(ledger ports.LedgerService, notifier ports.BalanceNotifier, interval time.Duration, log zerolog.Logger) *LedgerBalanceFeed {
	if interval <= 0 {
		interval = defaultBalancePollInterval
	}
	return &LedgerBalanceFeed{ledger: ledger, notifier: notifier, interval: interval, log: log}
}

// Subscribe emits the current balance right away and then every change.
func (f *LedgerBalanceFeed) Subscribe(ctx context.Context, accountID uuid.UUID) <-chan domain.BalanceEvent {
	out := make(chan domain.BalanceEvent, 1)
	go f.run(ctx, accountID, out)
	return out
}

func (f *LedgerBalanceFeed) run(ctx context.Context, accountID uuid.UUID, out chan<- domain.BalanceEvent) {
	defer close(out)
	log := f.log.With().Str("account_id", accountID.String()).Str("source", "ledger").Logger()

	var signals <-chan struct{}
	if f.notifier != nil {
		ch, err := f.notifier.Subscribe(ctx, accountID)
		if err != nil {
			log.Warn().Err(err).Msg("balance notifications unavailable, polling only")
		} else {
			signals = ch
		}
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	var last *domain.WalletBalance
	refresh := func() bool {
		balance, err := f.ledger.Balance(ctx, accountID)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			log.Error().Err(err).Msg("balance read failed")
			metrics.BalanceFeedFailuresTotal.WithLabelValues("ledger").Inc()
			send(ctx, out, domain.BalanceEvent{Err: apperror.ErrBalanceUnavailable(err)})
			return false
		}
		if sameBalance(last, balance) {
			return true
		}
		last = &balance
		return send(ctx, out, domain.BalanceEvent{Balance: balance})
	}

	if !refresh() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-signals:
			if !ok {
				signals = nil
				continue
			}
			if !refresh() {
				return
			}
		case <-ticker.C:
			if !refresh() {
				return
			}
		}
	}
}

func send(ctx context.Context, out chan<- domain.BalanceEvent, ev domain.BalanceEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func sameBalance(last *domain.WalletBalance, next domain.WalletBalance) bool {
	if last == nil || last.BalanceWei == nil || next.BalanceWei == nil {
		return false
	}
	return last.BalanceWei.Cmp(next.BalanceWei) == 0 && last.LastUpdatedMillis == next.LastUpdatedMillis
}
