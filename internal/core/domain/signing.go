package domain

import "strings"

// OperationType is the kind of value movement a quotation prices.
type OperationType string

const (
	OperationWithdrawal OperationType = "WITHDRAWAL"
	OperationTransfer   OperationType = "TRANSFER"
	OperationSwap       OperationType = "SWAP"
)

// SigningStrategy is how the user authorises a signature.
type SigningStrategy string

const (
	StrategyPasskey   SigningStrategy = "PASSKEY"
	StrategyOTP       SigningStrategy = "OTP"
	StrategyBiometric SigningStrategy = "BIOMETRIC"
)

// ParseSigningStrategy maps a case-insensitive name to a strategy.
func ParseSigningStrategy(s string) (SigningStrategy, bool) {
	switch st := SigningStrategy(strings.ToUpper(strings.TrimSpace(s))); st {
	case StrategyPasskey, StrategyOTP, StrategyBiometric:
		return st, true
	}
	return "", false
}

// SignedArtifact is the opaque result of signing a challenge.
type SignedArtifact string

// SigningStatus tags the variant of a SigningState.
type SigningStatus string

const (
	SigningIdle       SigningStatus = "IDLE"
	SigningInProgress SigningStatus = "IN_PROGRESS"
	SigningSuccess    SigningStatus = "SUCCESS"
	SigningError      SigningStatus = "ERROR"
)

// SigningState is the lifecycle state of a signing orchestrator.
// Message is set only for SUCCESS and ERROR.
type SigningState struct {
	Status  SigningStatus `json:"status"`
	Message string        `json:"message,omitempty"`
}

// IdleState returns the initial state.
func IdleState() SigningState { return SigningState{Status: SigningIdle} }

// InProgressState returns the state held while signing or submitting.
func InProgressState() SigningState { return SigningState{Status: SigningInProgress} }

// SuccessState returns a terminal success state.
func SuccessState(msg string) SigningState {
	return SigningState{Status: SigningSuccess, Message: msg}
}

// ErrorState returns a terminal failure state.
func ErrorState(msg string) SigningState {
	return SigningState{Status: SigningError, Message: msg}
}

// IsTerminal reports whether the state is SUCCESS or ERROR.
func (s SigningState) IsTerminal() bool {
	return s.Status == SigningSuccess || s.Status == SigningError
}
