package domain

import "math/big"

// WithdrawalView is the derived, read-only state of a withdrawal session.
// It is recomputed from its inputs on every change and never patched.
type WithdrawalView struct {
	SessionID string
	Locale    string
	Currency  string

	AmountInput  string
	AmountWei    *big.Int
	BalanceWei   *big.Int
	RemainingWei *big.Int

	IsCtaEnabled          bool
	IsInsufficientBalance bool
	AmountExceedsLimit    bool

	AvailableBalanceFormatted string
	BalanceUpdatedFormatted   string
	RemainingBalanceFormatted string
	MaxLimitFormatted         string
	QuotationAmountFormatted  string
	QuotationFeeFormatted     string
	AmountToTransferFormatted string

	Quotation              *Quotation
	QuotationTimeRemaining *TimeRemaining
	QuotationExpiresIn     string

	Signing SigningState
	Screen  ScreenContent
}
