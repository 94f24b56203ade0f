package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := NotFoundf("scan %s not found", "scan-1")

	assert.True(t, Is(err, ErrNotFound))
	assert.False(t, Is(err, ErrValidation))
	assert.Equal(t, "scan scan-1 not found", err.Error())
}

func TestError_IsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("load: %w", Validation("bad name"))

	assert.True(t, Is(wrapped, ErrValidation))
}

func TestError_WithCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(cause, CodeInternal, "save scan")

	assert.Equal(t, "save scan: disk full", err.Error())
	assert.Equal(t, cause, Unwrap(err))
	assert.True(t, Is(err, ErrInternal))
}

func TestCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeNotFound, http.StatusNotFound},
		{CodeValidation, http.StatusBadRequest},
		{CodeConflict, http.StatusConflict},
		{CodeUnprocessable, http.StatusUnprocessableEntity},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeInternal, http.StatusInternalServerError},
		{Code("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestError_WithDetailsKeepsCode(t *testing.T) {
	err := ValidationWithDetails("validation failed", map[string]string{"name": "too long"})
	withMore := err.WithDetails(map[string]string{"name": "is required"})

	assert.Equal(t, CodeValidation, withMore.Code)
	assert.Equal(t, map[string]string{"name": "is required"}, withMore.Details)
}

func TestError_GetStatusMatchesCode(t *testing.T) {
	var se interface{ GetStatus() int } = Unprocessable("no pages")
	assert.Equal(t, http.StatusUnprocessableEntity, se.GetStatus())
}
