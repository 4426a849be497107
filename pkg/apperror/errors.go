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

// ---- Validation (VAL) ----

// Validation returns a generic 400 validation error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

// ErrTotalMismatch signals that the declared total does not match the priced cart.
func ErrTotalMismatch(declared, computed int64) *AppError {
	return New("VAL_002",
		fmt.Sprintf("Declared total %d does not match computed total %d", declared, computed),
		http.StatusBadRequest)
}

// ErrServiceFeeMismatch signals that the declared service fee does not match the tier policy.
func ErrServiceFeeMismatch(declared, computed int64) *AppError {
	return New("VAL_002",
		fmt.Sprintf("Declared service fee %d does not match computed fee %d", declared, computed),
		http.StatusBadRequest)
}

// ErrMissingShippingAddress signals carrier shipping without a destination.
func ErrMissingShippingAddress() *AppError {
	return New("VAL_003", "Shipping address is required for carrier delivery", http.StatusBadRequest)
}

func ErrEmptyCart() *AppError {
	return New("VAL_004", "Cart contains no items", http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New("VAL_005", "Invalid amount", http.StatusBadRequest)
}

// ---- Payment (PAY) ----

// ErrInsufficientFunds carries the shortfall detail so clients can offer a top-up flow.
func ErrInsufficientFunds(required, available int64) *AppError {
	return New("PAY_001",
		fmt.Sprintf("Insufficient wallet balance: required %d, available %d, shortfall %d",
			required, available, required-available),
		http.StatusPaymentRequired)
}

func ErrNotFound(entity string) *AppError {
	return New("PAY_002", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrGatewayUnavailable(err error) *AppError {
	return Wrap("PAY_003", "Payment gateway is unavailable", http.StatusBadGateway, err)
}

func ErrAmountMismatch(expected, got int64) *AppError {
	return New("PAY_004",
		fmt.Sprintf("Gateway settled amount %d does not match expected %d", got, expected),
		http.StatusConflict)
}

// ---- Security (SEC) ----

func ErrInvalidGatewaySignature() *AppError {
	return New("SEC_001", "Invalid webhook signature", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New("SEC_002", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Escrow (ESC) ----

func ErrEscrowAlreadyReleased() *AppError {
	return New("ESC_001", "Escrow has already been released for this order", http.StatusConflict)
}

func ErrInvalidQualityRating() *AppError {
	return New("ESC_002", "Quality rating must be between 1 and 5", http.StatusBadRequest)
}

func ErrNotOrderBuyer() *AppError {
	return New("ESC_003", "Only the order's buyer can confirm quality", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}
