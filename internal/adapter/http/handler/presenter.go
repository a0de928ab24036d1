package handler

import (
	"math/big"
	"strings"
	"time"

	"secure-withdrawal-gateway/internal/adapter/http/dto"
	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports"
	"secure-withdrawal-gateway/pkg/localize"

	"github.com/gin-gonic/gin"
)

// Presenter renders amounts and timestamps for the caller's locale.
type Presenter struct {
	Money    ports.MoneyFormatter
	Clock    ports.DateTimeFormatter
	Locales  *localize.Registry
	Currency string
}

// Locale picks the ?locale= query, then the first Accept-Language tag, and
// resolves it against the supported locales.
func (p Presenter) Locale(c *gin.Context) string {
	tag := c.Query("locale")
	if tag == "" {
		tag = firstLanguage(c.GetHeader("Accept-Language"))
	}
	return p.Locales.Resolve(tag)
}

func (p Presenter) amount(v *big.Int, precision localize.Precision, locale string) string {
	if v == nil {
		v = new(big.Int)
	}
	return p.Money.Format(v, p.Currency, precision, locale)
}

func (p Presenter) balance(b domain.WalletBalance, locale string) dto.BalanceResponse {
	resp := dto.BalanceResponse{
		BalanceWei:       dto.Wei(b.BalanceWei),
		BalanceFormatted: p.amount(b.BalanceWei, localize.Standard, locale),
		Currency:         p.Currency,
	}
	if b.LastUpdatedMillis > 0 {
		resp.UpdatedAt = p.Clock.FormatMillis(b.LastUpdatedMillis, locale)
	}
	return resp
}

func (p Presenter) withdrawal(w *domain.Withdrawal, locale string) dto.WithdrawalResponse {
	return dto.WithdrawalResponse{
		ID:              w.ID.String(),
		QuotationID:     w.QuotationID,
		AmountWei:       dto.Wei(w.AmountWei),
		FeeWei:          dto.Wei(w.FeeWei),
		TotalWei:        w.Total().String(),
		AmountFormatted: p.amount(w.AmountWei, localize.Standard, locale),
		FeeFormatted:    p.amount(w.FeeWei, localize.Detail, locale),
		OperationType:   string(w.OperationType),
		Strategy:        string(w.Strategy),
		Status:          string(w.Status),
		CreatedAt:       w.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// firstLanguage returns the first tag of an Accept-Language header.
func firstLanguage(header string) string {
	tag, _, _ := strings.Cut(header, ",")
	tag, _, _ = strings.Cut(tag, ";")
	return strings.TrimSpace(tag)
}
