package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns message", func(t *testing.T) {
		err := &AppError{
			Code:    "TEST_ERROR",
			Message: "test error message",
		}
		assert.Equal(t, "test error message", err.Error())
	})

	t.Run("Error includes wrapped error", func(t *testing.T) {
		wrapped := errors.New("wrapped error")
		err := &AppError{
			Code:    "TEST_ERROR",
			Message: "test error message",
			Err:     wrapped,
		}
		assert.Contains(t, err.Error(), "test error message")
		assert.Contains(t, err.Error(), "wrapped error")
	})

	t.Run("Unwrap returns wrapped error", func(t *testing.T) {
		wrapped := errors.New("wrapped error")
		err := &AppError{Code: "TEST_ERROR", Message: "test", Err: wrapped}
		assert.Equal(t, wrapped, err.Unwrap())
	})

	t.Run("Is matches by code", func(t *testing.T) {
		err := Conflict("terminal guard")
		assert.True(t, errors.Is(err, &AppError{Code: "CONFLICT"}))
		assert.False(t, errors.Is(err, &AppError{Code: "NOT_FOUND"}))
	})
}

func TestTaxonomy(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		status   int
		code     string
	}{
		{"quota", QuotaExceeded(0), ErrQuotaExceeded, http.StatusPaymentRequired, "QUOTA_EXCEEDED"},
		{"model not ready", ModelNotReady("processing"), ErrModelNotReady, http.StatusConflict, "MODEL_NOT_READY"},
		{"provider", Provider("enqueue training", errors.New("boom")), ErrProvider, http.StatusBadGateway, "PROVIDER_ERROR"},
		{"conflict", Conflict("terminal guard"), ErrConflict, http.StatusConflict, "CONFLICT"},
		{"not found", NotFound("training"), ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.sentinel))
			assert.Equal(t, tt.status, GetStatusCode(tt.err))

			var appErr *AppError
			assert.True(t, errors.As(tt.err, &appErr))
			assert.Equal(t, tt.code, appErr.Code)
		})
	}
}

func TestQuotaExceeded(t *testing.T) {
	err := QuotaExceeded(0)
	assert.Equal(t, 0, err.Details["remaining"])
	assert.True(t, IsQuotaExceeded(fmt.Errorf("generate: %w", err)))
}

func TestProvider(t *testing.T) {
	t.Run("keeps cause in chain", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := Provider("run inference", cause)
		assert.True(t, errors.Is(err, cause))
		assert.True(t, IsProvider(err))
		assert.Contains(t, err.Error(), "connection reset")
	})

	t.Run("nil cause", func(t *testing.T) {
		err := Provider("run inference", nil)
		assert.True(t, IsProvider(err))
	})
}

func TestGetStatusCode_Sentinels(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrValidation, http.StatusUnprocessableEntity},
		{ErrQuotaExceeded, http.StatusPaymentRequired},
		{ErrModelNotReady, http.StatusConflict},
		{ErrConflict, http.StatusConflict},
		{fmt.Errorf("wrap: %w", ErrProvider), http.StatusBadGateway},
		{errors.New("unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.expected, GetStatusCode(tt.err))
		})
	}
}

func TestHelpers(t *testing.T) {
	assert.True(t, IsValidation(fmt.Errorf("%w: prompt is required", ErrValidation)))
	assert.True(t, IsModelNotReady(ModelNotReady("pending")))
	assert.True(t, IsConflict(fmt.Errorf("update: %w", ErrConflict)))
	assert.False(t, IsConflict(NotFound("training")))
}
