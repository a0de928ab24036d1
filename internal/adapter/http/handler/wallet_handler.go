package handler

import (
	"secure-withdrawal-gateway/internal/adapter/http/dto"
	"secure-withdrawal-gateway/internal/adapter/http/middleware"
	"secure-withdrawal-gateway/internal/core/ports"
	"secure-withdrawal-gateway/pkg/apperror"
	"secure-withdrawal-gateway/pkg/response"
	"secure-withdrawal-gateway/pkg/units"

	"github.com/gin-gonic/gin"
)

const defaultFundReference = "manual"

// WalletHandler handles wallet balance and funding endpoints.
type WalletHandler struct {
	ledger  ports.LedgerService
	conv    units.Converter
	present Presenter
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledger ports.LedgerService, conv units.Converter, present Presenter) *WalletHandler {
	return &WalletHandler{ledger: ledger, conv: conv, present: present}
}

// GetBalance handles GET /api/v1/wallet.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	balance, err := h.ledger.Balance(c.Request.Context(), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, h.present.balance(balance, h.present.Locale(c)))
}

// Fund handles POST /api/v1/wallet/fund.
func (h *WalletHandler) Fund(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.FundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	// Digits below one base unit are truncated and may leave nothing.
	amount := h.conv.ToBaseUnits(req.Amount)
	if amount.Sign() <= 0 {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}
	reference := req.Reference
	if reference == "" {
		reference = defaultFundReference
	}

	balance, err := h.ledger.Fund(c.Request.Context(), accountID, amount, reference)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, h.present.balance(balance, h.present.Locale(c)))
}
