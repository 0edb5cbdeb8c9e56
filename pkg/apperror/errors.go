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

// CodeOf returns the code of the first AppError in err's chain, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// ---- Storage (STORE) ----

const CodeStoreFailure = "STORE_001"

func ErrStoreFailure(err error) *AppError {
	return Wrap(CodeStoreFailure, "Notification store unavailable", http.StatusServiceUnavailable, err)
}

// ---- Delivery (SEND) ----

const (
	CodeInvalidRecipient = "SEND_001"
	CodeSenderUnverified = "SEND_002"
	CodeSenderDomain     = "SEND_003"
	CodeTransport        = "SEND_004"
	CodeNoSenderChannel  = "SEND_005"
)

func ErrInvalidRecipient(recipient string) *AppError {
	return New(CodeInvalidRecipient, fmt.Sprintf("invalid recipient %q", recipient), http.StatusUnprocessableEntity)
}

func ErrSenderUnverified() *AppError {
	return New(CodeSenderUnverified, "sender identity is not verified", http.StatusUnprocessableEntity)
}

func ErrSenderDomainMismatch(domain, verified string) *AppError {
	return New(CodeSenderDomain,
		fmt.Sprintf("sender domain %q does not match verified domain %q", domain, verified),
		http.StatusUnprocessableEntity)
}

func ErrTransport(err error) *AppError {
	return Wrap(CodeTransport, "provider transport failure", http.StatusBadGateway, err)
}

func ErrNoSenderForChannel(channel string) *AppError {
	return New(CodeNoSenderChannel, fmt.Sprintf("no sender registered for channel %q", channel), http.StatusUnprocessableEntity)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Validation (VAL) ----

// Validation returns a VAL_001 validation error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

// ---- Lookup (NF) ----

func ErrNotFound(entity string) *AppError {
	return New("NF_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
