package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy shared by the quota, training and artifact domains.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrValidation    = errors.New("validation failed")
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrModelNotReady = errors.New("model not ready")
	ErrProvider      = errors.New("provider error")
	ErrConflict      = errors.New("concurrent update conflict")
	ErrInternal      = errors.New("internal error")
)

// AppError represents an application error with HTTP status and error code.
// The API layer decides what to do with StatusCode; this core only sets it.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	StatusCode int            `json:"-"`
	Err        error          `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error.
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return e.Code == t.Code
	}
	return errors.Is(e.Err, target)
}

// NotFound creates a not found error.
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
		Err:        ErrNotFound,
	}
}

// QuotaExceeded creates a quota exceeded error carrying the remaining allowance.
func QuotaExceeded(remaining int) *AppError {
	return &AppError{
		Code:       "QUOTA_EXCEEDED",
		Message:    "generation quota exceeded for the current period",
		Details:    map[string]any{"remaining": remaining},
		StatusCode: http.StatusPaymentRequired,
		Err:        ErrQuotaExceeded,
	}
}

// ModelNotReady creates an error for generations against an unfinished training.
func ModelNotReady(status string) *AppError {
	return &AppError{
		Code:       "MODEL_NOT_READY",
		Message:    fmt.Sprintf("model is not ready (training status %s)", status),
		Details:    map[string]any{"status": status},
		StatusCode: http.StatusConflict,
		Err:        ErrModelNotReady,
	}
}

// Provider creates an upstream training/inference failure. Callers may retry.
func Provider(message string, cause error) *AppError {
	err := ErrProvider
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrProvider, cause)
	}
	return &AppError{
		Code:       "PROVIDER_ERROR",
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Err:        err,
	}
}

// Conflict creates a lost-race error. Safe to ignore or retry idempotently.
func Conflict(message string) *AppError {
	return &AppError{
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
		Err:        ErrConflict,
	}
}

// Internal creates an internal error.
func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// GetStatusCode returns the appropriate HTTP status code for an error.
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrQuotaExceeded):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrModelNotReady), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsQuotaExceeded checks if the error is a quota exceeded error.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// IsModelNotReady checks if the error is a model not ready error.
func IsModelNotReady(err error) bool {
	return errors.Is(err, ErrModelNotReady)
}

// IsProvider checks if the error is a provider error.
func IsProvider(err error) bool {
	return errors.Is(err, ErrProvider)
}

// IsConflict checks if the error is a conflict error.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
