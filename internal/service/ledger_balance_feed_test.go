package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func nextEvent(t *testing.T, events <-chan domain.BalanceEvent) domain.BalanceEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "feed closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no balance event")
		return domain.BalanceEvent{}
	}
}

func assertClosed(t *testing.T, events <-chan domain.BalanceEvent) {
	t.Helper()
	select {
	case _, ok := <-events:
		assert.False(t, ok, "feed must be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("feed not closed")
	}
}

func TestLedgerBalanceFeed_EmitsOnNotification(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedgerService(ctrl)
	notifier := mocks.NewMockBalanceNotifier(ctrl)
	accountID := uuid.New()
	signals := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifier.EXPECT().Subscribe(gomock.Any(), accountID).Return((<-chan struct{})(signals), nil)
	gomock.InOrder(
		ledger.EXPECT().Balance(gomock.Any(), accountID).Return(domain.WalletBalance{BalanceWei: weiOf("5"), LastUpdatedMillis: 1}, nil),
		ledger.EXPECT().Balance(gomock.Any(), accountID).Return(domain.WalletBalance{BalanceWei: weiOf("3.5"), LastUpdatedMillis: 2}, nil),
	)

	feed := NewLedgerBalanceFeed(ledger, notifier, time.Hour, newTestLogger())
	events := feed.Subscribe(ctx, accountID)

	first := nextEvent(t, events)
	require.NoError(t, first.Err)
	assert.Equal(t, 0, first.Balance.BalanceWei.Cmp(weiOf("5")))

	signals <- struct{}{}
	second := nextEvent(t, events)
	assert.Equal(t, 0, second.Balance.BalanceWei.Cmp(weiOf("3.5")))
	assert.Equal(t, int64(2), second.Balance.LastUpdatedMillis)

	cancel()
	assertClosed(t, events)
}

func TestLedgerBalanceFeed_PollsAndSuppressesDuplicates(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedgerService(ctrl)
	accountID := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	same := domain.WalletBalance{BalanceWei: weiOf("1"), LastUpdatedMillis: 10}
	gomock.InOrder(
		ledger.EXPECT().Balance(gomock.Any(), accountID).Return(same, nil).Times(3),
		ledger.EXPECT().Balance(gomock.Any(), accountID).Return(domain.WalletBalance{BalanceWei: weiOf("2"), LastUpdatedMillis: 11}, nil),
		ledger.EXPECT().Balance(gomock.Any(), accountID).Return(domain.WalletBalance{BalanceWei: weiOf("2"), LastUpdatedMillis: 11}, nil).AnyTimes(),
	)

	events := NewLedgerBalanceFeed(ledger, nil, 5*time.Millisecond, newTestLogger()).Subscribe(ctx, accountID)

	assert.Equal(t, 0, nextEvent(t, events).Balance.BalanceWei.Cmp(weiOf("1")))
	assert.Equal(t, 0, nextEvent(t, events).Balance.BalanceWei.Cmp(weiOf("2")))
}

func TestLedgerBalanceFeed_ReadFailureIsTerminal(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedgerService(ctrl)
	notifier := mocks.NewMockBalanceNotifier(ctrl)
	accountID := uuid.New()

	notifier.EXPECT().Subscribe(gomock.Any(), accountID).Return(nil, errors.New("redis down"))
	ledger.EXPECT().Balance(gomock.Any(), accountID).Return(domain.WalletBalance{}, errors.New("db down"))

	events := NewLedgerBalanceFeed(ledger, notifier, time.Hour, newTestLogger()).Subscribe(context.Background(), accountID)

	ev := nextEvent(t, events)
	assertAppError(t, ev.Err, "SYS_004")
	assertClosed(t, events)
}
