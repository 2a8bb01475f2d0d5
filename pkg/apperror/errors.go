package apperror

import (
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

// ---- Funding & Intent Lifecycle ----

func ErrInvalidAmount() *AppError {
	return New("INVALID_AMOUNT", "Amount must be greater than zero", http.StatusBadRequest)
}

func ErrFundingPlanSumMismatch(amountDue, planned int64) *AppError {
	return New("FUNDING_PLAN_SUM_MISMATCH",
		fmt.Sprintf("Funding plan total %d does not equal amount due %d", planned, amountDue),
		http.StatusBadRequest)
}

func ErrInvalidFundingSource(sourceType string) *AppError {
	return New("INVALID_FUNDING_SOURCE",
		fmt.Sprintf("Unrecognized funding source type %q", sourceType),
		http.StatusBadRequest)
}

func ErrInsufficientFunds() *AppError {
	return New("INSUFFICIENT_FUNDS", "Insufficient balance in wallet", http.StatusPaymentRequired)
}

func ErrIntentTerminal(status string) *AppError {
	return New("INTENT_TERMINAL",
		fmt.Sprintf("Payment intent is already %s and cannot be modified", status),
		http.StatusConflict)
}

func ErrNotFound(entity string) *AppError {
	return New("NOT_FOUND", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Provider Dispatch ----

func ErrCircuitOpen(upstream string) *AppError {
	return New("CIRCUIT_OPEN",
		fmt.Sprintf("Circuit breaker for %s is open, call rejected", upstream),
		http.StatusServiceUnavailable)
}

func ErrProviderUnavailable(err error) *AppError {
	return Wrap("PROVIDER_UNAVAILABLE", "Payment provider did not respond", http.StatusBadGateway, err)
}

func ErrProviderDeclined(reason string) *AppError {
	return New("PROVIDER_DECLINED", fmt.Sprintf("Payment provider declined: %s", reason), http.StatusUnprocessableEntity)
}

// ---- Ledger Integrity ----

func ErrLedgerDoublePost(ref string) *AppError {
	return New("LEDGER_DOUBLE_POST",
		fmt.Sprintf("Ledger entry with reference %q already posted", ref),
		http.StatusConflict)
}

// ---- Authentication & Authorization ----

func ErrUnauthorized() *AppError {
	return New("UNAUTHORIZED", "Missing or invalid credentials", http.StatusUnauthorized)
}

func ErrForbidden(action string) *AppError {
	return New("FORBIDDEN", fmt.Sprintf("Not permitted to perform %s", action), http.StatusForbidden)
}

func ErrInvalidToken() *AppError {
	return New("INVALID_TOKEN", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrRateLimitExceeded() *AppError {
	return New("RATE_LIMITED", "Too many requests", http.StatusTooManyRequests)
}

// ---- System & Infrastructure ----

func ErrEncryptionFailure(err error) *AppError {
	return Wrap("ENCRYPTION_FAILURE", "Encryption service failure", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a generic server error.
func InternalError(err error) *AppError {
	return Wrap("INTERNAL_ERROR", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New("VALIDATION_ERROR", message, http.StatusBadRequest)
}
