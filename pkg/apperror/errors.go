package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// HasCode reports whether err is (or wraps) an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// ---- Signature (SEC) ----

func ErrInvalidArtifact() *AppError {
	return New("SEC_001", "Signed artifact does not match the challenge", http.StatusUnauthorized)
}

func ErrSignerUnavailable(err error) *AppError {
	return Wrap("SEC_002", "Signing key unavailable", http.StatusServiceUnavailable, err)
}

// ---- Withdrawal Business Logic (WDR) ----

func ErrInvalidAmount() *AppError {
	return New("WDR_001", "Invalid amount", http.StatusBadRequest)
}

func ErrWithdrawalLimitExceeded() *AppError {
	return New("WDR_002", "Withdrawal limit exceeded", http.StatusUnprocessableEntity)
}

func ErrQuotationNotFound() *AppError {
	return New("WDR_003", "Quotation not found", http.StatusNotFound)
}

func ErrQuotationExpired() *AppError {
	return New("WDR_004", "Quotation has expired", http.StatusGone)
}

func ErrSigningInProgress() *AppError {
	return New("WDR_005", "A signing operation is already in progress", http.StatusConflict)
}

func ErrNoQuotation() *AppError {
	return New("WDR_006", "No quotation is held by this session", http.StatusConflict)
}

func ErrFeatureDisabled(name string) *AppError {
	return New("WDR_007", fmt.Sprintf("Feature %q is disabled", name), http.StatusForbidden)
}

func ErrNotFound(entity string) *AppError {
	return New("WDR_008", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrDuplicateSubmission() *AppError {
	return New("WDR_009", "Quotation is already being submitted", http.StatusConflict)
}

func ErrUnsupportedOperation(op string) *AppError {
	return New("WDR_010", fmt.Sprintf("Operation %s is not supported", op), http.StatusBadRequest)
}

func ErrInvalidStep(step string) *AppError {
	return New("WDR_011", fmt.Sprintf("Command not allowed while %s", step), http.StatusConflict)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrAccountSuspended() *AppError {
	return New("AUTH_002", "Account is suspended", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrCacheError(err error) *AppError {
	return Wrap("SYS_002", "Cache unavailable", http.StatusServiceUnavailable, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap("SYS_003", "Encryption service failure", http.StatusInternalServerError, err)
}

func ErrBalanceUnavailable(err error) *AppError {
	return Wrap("SYS_004", "Balance feed unavailable", http.StatusServiceUnavailable, err)
}

func ErrShuttingDown() *AppError {
	return New("SYS_005", "Service is shutting down", http.StatusServiceUnavailable)
}

func ErrPayloadTooLarge(limit int64) *AppError {
	return New("SYS_006", fmt.Sprintf("Request body exceeds %d bytes", limit), http.StatusRequestEntityTooLarge)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a WDR_001-style validation error.
func Validation(message string) *AppError {
	return New("WDR_001", message, http.StatusBadRequest)
}
