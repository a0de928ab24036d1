package handler

import (
	"time"

	"secure-withdrawal-gateway/internal/adapter/http/dto"
	"secure-withdrawal-gateway/internal/adapter/http/middleware"
	"secure-withdrawal-gateway/internal/core/ports"
	"secure-withdrawal-gateway/pkg/apperror"
	"secure-withdrawal-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// AccountHandler handles registration and profile endpoints.
type AccountHandler struct {
	accountSvc ports.AccountService
	tokenSvc   ports.TokenService
	present    Presenter
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountSvc ports.AccountService, tokenSvc ports.TokenService, present Presenter) *AccountHandler {
	return &AccountHandler{accountSvc: accountSvc, tokenSvc: tokenSvc, present: present}
}

// Register handles POST /api/v1/accounts.
func (h *AccountHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	account, err := h.accountSvc.Register(c.Request.Context(), ports.RegisterRequest{
		Username:      req.Username,
		DisplayName:   req.DisplayName,
		Email:         req.Email,
		WalletAddress: req.WalletAddress,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	token, expiry, err := h.tokenSvc.Generate(account.ID)
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}

	// Lets the audit middleware attribute the registration.
	c.Set(middleware.CtxAccountID, account.ID)

	response.Created(c, dto.RegisterResponse{
		AccountID:     account.ID.String(),
		Username:      account.Username,
		WalletAddress: account.WalletAddress,
		Token:         token,
		Expiry:        expiry.Unix(),
	})
}

// GetProfile handles GET /api/v1/account.
func (h *AccountHandler) GetProfile(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	profile, err := h.accountSvc.GetProfile(c.Request.Context(), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}

	a := profile.Account
	response.OK(c, dto.AccountResponse{
		ID:            a.ID.String(),
		Username:      a.Username,
		DisplayName:   a.DisplayName,
		Email:         a.Email,
		WalletAddress: a.WalletAddress,
		Status:        string(a.Status),
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
		Balance:       h.present.balance(profile.Balance, h.present.Locale(c)),
	})
}
