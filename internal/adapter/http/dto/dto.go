package dto

import (
	"math/big"
	"time"

	"secure-withdrawal-gateway/internal/core/domain"
)

// RegisterRequest is the request body for account registration.
type RegisterRequest struct {
	Username      string `json:"username" binding:"required,min=3,max=50,safe_id"`
	DisplayName   string `json:"display_name" binding:"max=100"`
	Email         string `json:"email" binding:"omitempty,email,max=254" sanitize:"trim"`
	WalletAddress string `json:"wallet_address" binding:"required,eth_addr" sanitize:"trim"`
}

// RegisterResponse is the response body for successful registration.
type RegisterResponse struct {
	AccountID     string `json:"account_id"`
	Username      string `json:"username"`
	WalletAddress string `json:"wallet_address"`
	Token         string `json:"token"`
	Expiry        int64  `json:"expiry"` // Unix timestamp
}

// FundRequest is the request body for crediting the caller's wallet.
// Amount is decimal text in whole currency units ("1.5").
type FundRequest struct {
	Amount    string `json:"amount" binding:"required,wdr_amount"`
	Reference string `json:"reference" binding:"omitempty,max=100,safe_id"`
}

// BalanceResponse is a wallet balance in base units plus its rendering.
type BalanceResponse struct {
	BalanceWei       string `json:"balance_wei"`
	BalanceFormatted string `json:"balance_formatted"`
	Currency         string `json:"currency"`
	UpdatedAt        string `json:"updated_at,omitempty"`
}

// AccountResponse is the response body for the profile endpoint.
type AccountResponse struct {
	ID            string          `json:"id"`
	Username      string          `json:"username"`
	DisplayName   string          `json:"display_name"`
	Email         string          `json:"email,omitempty"`
	WalletAddress string          `json:"wallet_address"`
	Status        string          `json:"status"`
	CreatedAt     string          `json:"created_at"`
	Balance       BalanceResponse `json:"balance"`
}

// OpenSessionRequest is the request body for opening a withdrawal session.
// An empty or unsupported locale falls back to the default one.
type OpenSessionRequest struct {
	Locale string `json:"locale" binding:"max=35"`
}

// SetAmountRequest carries the raw amount text as typed by the user.
// Malformed text is accepted and treated as zero.
type SetAmountRequest struct {
	Amount string `json:"amount" binding:"max=64" sanitize:"-"`
}

// SignRequest selects the signing strategy for the confirmed quotation.
type SignRequest struct {
	Strategy string `json:"strategy" binding:"required,signing_strategy"`
}

// QuotationResponse is the active quotation of a session.
type QuotationResponse struct {
	ID            string `json:"id"`
	AmountWei     string `json:"amount_wei"`
	FeeWei        string `json:"fee_wei"`
	Challenge     string `json:"challenge"`
	OperationType string `json:"operation_type"`
	ExpiresAt     string `json:"expires_at"`
}

// SessionViewResponse is the derived state of a withdrawal session.
type SessionViewResponse struct {
	SessionID string `json:"session_id"`
	Locale    string `json:"locale"`
	Currency  string `json:"currency"`

	AmountInput  string `json:"amount_input"`
	AmountWei    string `json:"amount_wei"`
	BalanceWei   string `json:"balance_wei,omitempty"`
	RemainingWei string `json:"remaining_wei,omitempty"`

	IsCtaEnabled          bool `json:"is_cta_enabled"`
	IsInsufficientBalance bool `json:"is_insufficient_balance"`
	AmountExceedsLimit    bool `json:"amount_exceeds_limit"`

	AvailableBalanceFormatted string `json:"available_balance_formatted"`
	BalanceUpdatedFormatted   string `json:"balance_updated_formatted"`
	RemainingBalanceFormatted string `json:"remaining_balance_formatted"`
	MaxLimitFormatted         string `json:"max_limit_formatted"`
	QuotationAmountFormatted  string `json:"quotation_amount_formatted"`
	QuotationFeeFormatted     string `json:"quotation_fee_formatted"`
	AmountToTransferFormatted string `json:"amount_to_transfer_formatted"`

	Quotation              *QuotationResponse    `json:"quotation,omitempty"`
	QuotationTimeRemaining *domain.TimeRemaining `json:"quotation_time_remaining,omitempty"`
	QuotationExpiresIn     string                `json:"quotation_expires_in,omitempty"`

	Signing domain.SigningState  `json:"signing"`
	Screen  domain.ScreenContent `json:"screen"`
}

// NewSessionView converts a session view to its wire form.
func NewSessionView(v domain.WithdrawalView) SessionViewResponse {
	resp := SessionViewResponse{
		SessionID:                 v.SessionID,
		Locale:                    v.Locale,
		Currency:                  v.Currency,
		AmountInput:               v.AmountInput,
		AmountWei:                 Wei(v.AmountWei),
		BalanceWei:                optionalWei(v.BalanceWei),
		RemainingWei:              optionalWei(v.RemainingWei),
		IsCtaEnabled:              v.IsCtaEnabled,
		IsInsufficientBalance:     v.IsInsufficientBalance,
		AmountExceedsLimit:        v.AmountExceedsLimit,
		AvailableBalanceFormatted: v.AvailableBalanceFormatted,
		BalanceUpdatedFormatted:   v.BalanceUpdatedFormatted,
		RemainingBalanceFormatted: v.RemainingBalanceFormatted,
		MaxLimitFormatted:         v.MaxLimitFormatted,
		QuotationAmountFormatted:  v.QuotationAmountFormatted,
		QuotationFeeFormatted:     v.QuotationFeeFormatted,
		AmountToTransferFormatted: v.AmountToTransferFormatted,
		QuotationTimeRemaining:    v.QuotationTimeRemaining,
		QuotationExpiresIn:        v.QuotationExpiresIn,
		Signing:                   v.Signing,
		Screen:                    v.Screen,
	}
	if q := v.Quotation; q != nil {
		resp.Quotation = &QuotationResponse{
			ID:            q.ID,
			AmountWei:     Wei(q.Amount),
			FeeWei:        Wei(q.Fee),
			Challenge:     q.Challenge,
			OperationType: string(q.OperationType),
			ExpiresAt:     q.ExpiresAt.UTC().Format(time.RFC3339),
		}
	}
	return resp
}

// SignResponse is the terminal signing state plus the resulting view.
type SignResponse struct {
	Signing domain.SigningState `json:"signing"`
	View    SessionViewResponse `json:"view"`
}

// WithdrawalResponse is one entry of the withdrawal history.
type WithdrawalResponse struct {
	ID              string `json:"id"`
	QuotationID     string `json:"quotation_id"`
	AmountWei       string `json:"amount_wei"`
	FeeWei          string `json:"fee_wei"`
	TotalWei        string `json:"total_wei"`
	AmountFormatted string `json:"amount_formatted"`
	FeeFormatted    string `json:"fee_formatted"`
	OperationType   string `json:"operation_type"`
	Strategy        string `json:"strategy"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
}

// WithdrawalListResponse wraps a paginated withdrawal list.
type WithdrawalListResponse struct {
	Items      []WithdrawalResponse `json:"items"`
	Total      int64                `json:"total"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
	TotalPages int                  `json:"total_pages"`
}

// WithdrawalStatsResponse is the response for withdrawal statistics.
type WithdrawalStatsResponse struct {
	Period               string `json:"period"`
	Total                int64  `json:"total"`
	Submitted            int64  `json:"submitted"`
	Rejected             int64  `json:"rejected"`
	TotalAmountWei       string `json:"total_amount_wei"`
	TotalFeesWei         string `json:"total_fees_wei"`
	TotalAmountFormatted string `json:"total_amount_formatted"`
	TotalFeesFormatted   string `json:"total_fees_formatted"`
}

// Wei renders a base-unit amount as a decimal integer string; nil is "0".
func Wei(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func optionalWei(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
