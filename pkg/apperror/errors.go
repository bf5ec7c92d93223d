package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses. Expected
// business failures (declines, rate limits, fraud blocks) are AppError
// values; anything else is a plain error and surfaces as SYS_001.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	RetryAfter int    `json:"-"` // seconds; set on rate-limit errors
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

// ---- Payment Business Logic (PAY) ----

func ErrInvalidAmount() *AppError {
	return New("PAY_001", "Invalid amount", http.StatusBadRequest)
}

func ErrUnsupportedCurrency(gateway string, currency string) *AppError {
	return New("PAY_002", fmt.Sprintf("Currency %s is not supported by gateway %s", currency, gateway), http.StatusBadRequest)
}

func ErrDuplicateReference() *AppError {
	return New("PAY_003", "External reference already used with a different payload", http.StatusConflict)
}

func ErrNotFound(entity string) *AppError {
	return New("PAY_004", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrRefundExceedsBalance() *AppError {
	return New("PAY_005", "Refund amount exceeds remaining refundable balance", http.StatusBadRequest)
}

func ErrTransactionNotRefundable() *AppError {
	return New("PAY_006", "Transaction is not in a refundable state", http.StatusConflict)
}

func ErrRefundWindowExpired() *AppError {
	return New("PAY_007", "Refund window for this transaction has expired", http.StatusBadRequest)
}

func ErrUnknownGateway(name string) *AppError {
	return New("PAY_008", fmt.Sprintf("Unknown payment gateway: %s", name), http.StatusBadRequest)
}

func ErrNotAwaitingConfirmation() *AppError {
	return New("PAY_009", "Transaction is not awaiting manual confirmation", http.StatusConflict)
}

// Validation returns a generic request validation error.
func Validation(message string) *AppError {
	return New("PAY_010", message, http.StatusBadRequest)
}

// ---- Gateway (GW) ----

// ErrGatewayRejected marks a definitive provider decline. Retrying the
// same request will produce the same answer.
func ErrGatewayRejected(reason string) *AppError {
	e := New("GW_001", "Payment was declined by the provider", http.StatusPaymentRequired)
	if reason != "" {
		e.Err = fmt.Errorf("gateway decline: %s", reason)
	}
	return e
}

// ErrGatewayUnavailable marks a transient provider failure. Retrying
// with the same external reference is safe.
func ErrGatewayUnavailable(err error) *AppError {
	return Wrap("GW_002", "Payment provider is temporarily unavailable", http.StatusBadGateway, err)
}

// ---- Security (SEC) ----

func ErrInvalidSignature() *AppError {
	return New("SEC_001", "Invalid signature", http.StatusUnauthorized)
}

// ---- Fraud (FRD) ----

func ErrFraudBlocked() *AppError {
	return New("FRD_001", "Transaction blocked", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded(retryAfter int) *AppError {
	e := New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
	e.RetryAfter = retryAfter
	return e
}

// ---- Sessions (SES) ----

func ErrSessionExpired() *AppError {
	return New("SES_001", "Payment session has expired", http.StatusGone)
}

func ErrSessionNotFound() *AppError {
	return New("SES_002", "Payment session not found", http.StatusNotFound)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
