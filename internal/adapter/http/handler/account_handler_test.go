package handler

import (
	"net/http"
	"testing"
	"time"

	"secure-withdrawal-gateway/internal/adapter/http/dto"
	"secure-withdrawal-gateway/internal/adapter/http/middleware"
	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports"
	"secure-withdrawal-gateway/internal/core/ports/mocks"
	"secure-withdrawal-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testAddress = "0x52908400098527886E0F7030069857D2E4169EE7"

func TestRegister_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	accounts := mocks.NewMockAccountService(ctrl)
	tokens := mocks.NewMockTokenService(ctrl)
	h := NewAccountHandler(accounts, tokens, testPresenter(ctrl))

	accountID := uuid.New()
	expiry := time.Unix(1_900_000_000, 0)
	accounts.EXPECT().Register(gomock.Any(), ports.RegisterRequest{
		Username:      "alice",
		DisplayName:   "Alice &amp; Co",
		WalletAddress: testAddress,
	}).Return(&domain.UserAccount{ID: accountID, Username: "alice", WalletAddress: testAddress}, nil)
	tokens.EXPECT().Generate(accountID).Return("jwt-token", expiry, nil)

	c, w := newContext(http.MethodPost, "/api/v1/accounts", dto.RegisterRequest{
		Username:      "alice",
		DisplayName:   "Alice & Co",
		WalletAddress: testAddress,
	})
	h.Register(c)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp dto.RegisterResponse
	decode(t, w, &resp)
	assert.Equal(t, accountID.String(), resp.AccountID)
	assert.Equal(t, "jwt-token", resp.Token)
	assert.Equal(t, expiry.Unix(), resp.Expiry)

	// The audit middleware reads the new account from the context.
	id, ok := middleware.AccountID(c)
	assert.True(t, ok)
	assert.Equal(t, accountID, id)
}

func TestRegister_ValidationError(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewAccountHandler(mocks.NewMockAccountService(ctrl), mocks.NewMockTokenService(ctrl), testPresenter(ctrl))

	c, w := newContext(http.MethodPost, "/api/v1/accounts", dto.RegisterRequest{
		Username:      "alice",
		WalletAddress: "0x1234",
	})
	h.Register(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "WDR_001", decode(t, w, nil).ErrorCode)
}

func TestRegister_ServiceError(t *testing.T) {
	ctrl := gomock.NewController(t)
	accounts := mocks.NewMockAccountService(ctrl)
	h := NewAccountHandler(accounts, mocks.NewMockTokenService(ctrl), testPresenter(ctrl))

	accounts.EXPECT().Register(gomock.Any(), gomock.Any()).Return(nil, apperror.Validation("username already taken"))

	c, w := newContext(http.MethodPost, "/api/v1/accounts", dto.RegisterRequest{
		Username:      "alice",
		WalletAddress: testAddress,
	})
	h.Register(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "username already taken", decode(t, w, nil).Message)
}

func TestGetProfile_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	accounts := mocks.NewMockAccountService(ctrl)
	h := NewAccountHandler(accounts, mocks.NewMockTokenService(ctrl), testPresenter(ctrl))

	c, w := newContext(http.MethodGet, "/api/v1/account?locale=de-DE", nil)
	accountID := authenticate(c)

	accounts.EXPECT().GetProfile(gomock.Any(), accountID).Return(&ports.AccountProfile{
		Account: &domain.UserAccount{
			ID:            accountID,
			Username:      "alice",
			DisplayName:   "Alice",
			WalletAddress: testAddress,
			Status:        domain.AccountStatusActive,
			CreatedAt:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		Balance: domain.WalletBalance{BalanceWei: wei("20310000000000000000"), LastUpdatedMillis: 42},
	}, nil)

	h.GetProfile(c)

	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.AccountResponse
	decode(t, w, &resp)
	assert.Equal(t, "alice", resp.Username)
	assert.Equal(t, "ACTIVE", resp.Status)
	assert.Equal(t, "2024-01-02T03:04:05Z", resp.CreatedAt)
	assert.Equal(t, "20310000000000000000", resp.Balance.BalanceWei)
	assert.Equal(t, "20310000000000000000 ETH@de_DE", resp.Balance.BalanceFormatted)
	assert.Equal(t, "t42@de_DE", resp.Balance.UpdatedAt)
}

func TestGetProfile_Unauthenticated(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewAccountHandler(mocks.NewMockAccountService(ctrl), mocks.NewMockTokenService(ctrl), testPresenter(ctrl))

	c, w := newContext(http.MethodGet, "/api/v1/account", nil)
	h.GetProfile(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetProfile_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	accounts := mocks.NewMockAccountService(ctrl)
	h := NewAccountHandler(accounts, mocks.NewMockTokenService(ctrl), testPresenter(ctrl))

	c, w := newContext(http.MethodGet, "/api/v1/account", nil)
	accountID := authenticate(c)
	accounts.EXPECT().GetProfile(gomock.Any(), accountID).Return(nil, apperror.ErrNotFound("Account"))

	h.GetProfile(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "WDR_008", decode(t, w, nil).ErrorCode)
}

func TestPresenter_LocaleFallbacks(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := testPresenter(ctrl)

	c, _ := newContext(http.MethodGet, "/x", nil)
	c.Request.Header.Set("Accept-Language", "sv-SE,sv;q=0.9,en;q=0.8")
	assert.Equal(t, "sv_SE", p.Locale(c))

	c, _ = newContext(http.MethodGet, "/x?locale=xx_YY", nil)
	assert.Equal(t, "en_US", p.Locale(c))
}
