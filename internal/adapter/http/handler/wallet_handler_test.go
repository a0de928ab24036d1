package handler

import (
	"errors"
	"net/http"
	"testing"

	"secure-withdrawal-gateway/internal/adapter/http/dto"
	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports/mocks"
	"secure-withdrawal-gateway/pkg/apperror"
	"secure-withdrawal-gateway/pkg/units"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestFund_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(ledger, units.Ether(), testPresenter(ctrl))

	c, w := newContext(http.MethodPost, "/api/v1/wallet/fund", dto.FundRequest{Amount: "1.5"})
	accountID := authenticate(c)

	ledger.EXPECT().Fund(gomock.Any(), accountID, wei("1500000000000000000"), "manual").
		Return(domain.WalletBalance{BalanceWei: wei("21810000000000000000"), LastUpdatedMillis: 7}, nil)

	h.Fund(c)

	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.BalanceResponse
	decode(t, w, &resp)
	assert.Equal(t, "21810000000000000000", resp.BalanceWei)
	assert.Equal(t, "ETH", resp.Currency)
	assert.Equal(t, "21810000000000000000 ETH@en_US", resp.BalanceFormatted)
}

func TestFund_KeepsReference(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(ledger, units.Ether(), testPresenter(ctrl))

	c, w := newContext(http.MethodPost, "/api/v1/wallet/fund", dto.FundRequest{Amount: "2", Reference: "faucet-7"})
	accountID := authenticate(c)
	ledger.EXPECT().Fund(gomock.Any(), accountID, wei("2000000000000000000"), "faucet-7").
		Return(domain.WalletBalance{BalanceWei: wei("2000000000000000000")}, nil)

	h.Fund(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFund_RejectsAmounts(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{name: "negative", body: dto.FundRequest{Amount: "-1"}},
		{name: "zero", body: dto.FundRequest{Amount: "0"}},
		{name: "below one wei", body: dto.FundRequest{Amount: "0.0000000000000000001"}},
		{name: "not json", body: "{"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			h := NewWalletHandler(mocks.NewMockLedgerService(ctrl), units.Ether(), testPresenter(ctrl))

			c, w := newContext(http.MethodPost, "/api/v1/wallet/fund", tc.body)
			authenticate(c)
			h.Fund(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "WDR_001", decode(t, w, nil).ErrorCode)
		})
	}
}

func TestGetBalance_PropagatesServiceError(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(ledger, units.Ether(), testPresenter(ctrl))

	c, w := newContext(http.MethodGet, "/api/v1/wallet", nil)
	accountID := authenticate(c)
	ledger.EXPECT().Balance(gomock.Any(), accountID).
		Return(domain.WalletBalance{}, apperror.ErrDatabaseError(errors.New("down")))

	h.GetBalance(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "SYS_001", decode(t, w, nil).ErrorCode)
}
