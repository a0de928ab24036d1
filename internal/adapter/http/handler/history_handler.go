package handler

import (
	"math"
	"strconv"
	"strings"

	"secure-withdrawal-gateway/internal/adapter/http/dto"
	"secure-withdrawal-gateway/internal/adapter/http/middleware"
	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports"
	"secure-withdrawal-gateway/pkg/apperror"
	"secure-withdrawal-gateway/pkg/localize"
	"secure-withdrawal-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// HistoryHandler handles withdrawal history and statistics endpoints.
type HistoryHandler struct {
	historySvc ports.HistoryService
	present    Presenter
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(historySvc ports.HistoryService, present Presenter) *HistoryHandler {
	return &HistoryHandler{historySvc: historySvc, present: present}
}

// GetStats handles GET /api/v1/withdrawals/stats.
func (h *HistoryHandler) GetStats(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	period := c.DefaultQuery("period", "all")
	stats, err := h.historySvc.GetStats(c.Request.Context(), accountID, period)
	if err != nil {
		response.Error(c, err)
		return
	}

	locale := h.present.Locale(c)
	response.OK(c, dto.WithdrawalStatsResponse{
		Period:               period,
		Total:                stats.Total,
		Submitted:            stats.Submitted,
		Rejected:             stats.Rejected,
		TotalAmountWei:       dto.Wei(stats.TotalAmount),
		TotalFeesWei:         dto.Wei(stats.TotalFees),
		TotalAmountFormatted: h.present.amount(stats.TotalAmount, localize.Standard, locale),
		TotalFeesFormatted:   h.present.amount(stats.TotalFees, localize.Detail, locale),
	})
}

// ListWithdrawals handles GET /api/v1/withdrawals.
func (h *HistoryHandler) ListWithdrawals(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	params := ports.WithdrawalListParams{
		AccountID: accountID,
		Page:      page,
		PageSize:  pageSize,
	}
	if s := c.Query("status"); s != "" {
		status := domain.WithdrawalStatus(strings.ToUpper(s))
		params.Status = &status
	}

	withdrawals, total, err := h.historySvc.ListWithdrawals(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	locale := h.present.Locale(c)
	items := make([]dto.WithdrawalResponse, 0, len(withdrawals))
	for i := range withdrawals {
		items = append(items, h.present.withdrawal(&withdrawals[i], locale))
	}

	response.OK(c, dto.WithdrawalListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	})
}
