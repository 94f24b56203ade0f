package validation_test

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/scanixapp/scanix-server/internal/errors"
	"github.com/scanixapp/scanix-server/internal/validation"
)

type renameRequest struct {
	Name string `json:"name" validate:"max=200"`
}

type moveRequest struct {
	PageID    string `json:"page_id" validate:"required"`
	Direction int    `json:"direction" validate:"oneof=-1 1"`
}

type exportRequest struct {
	Format string `json:"format" validate:"required,oneof=pdf zip"`
}

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	var domErr *domainerrors.Error
	require.True(t, errors.As(err, &domErr), "want *errors.Error, got %T", err)
	assert.Equal(t, http.StatusBadRequest, domErr.HTTPStatus())
	details, ok := domErr.Details.(map[string]string)
	require.True(t, ok)
	return details
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	assert.NoError(t, v.Validate(renameRequest{Name: ""}), "empty names are allowed")
	assert.NoError(t, v.Validate(moveRequest{PageID: "page-abc", Direction: -1}))
	assert.NoError(t, v.Validate(exportRequest{Format: "zip"}))
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		req       any
		wantField string
		wantMsg   string
	}{
		{"name too long", renameRequest{Name: strings.Repeat("x", 201)}, "name", "must not exceed 200 characters"},
		{"missing page", moveRequest{Direction: 1}, "page_id", "is required"},
		{"two steps", moveRequest{PageID: "page-abc", Direction: 2}, "direction", "must be one of: -1 1"},
		{"unknown format", exportRequest{Format: "tiff"}, "format", "must be one of: pdf zip"},
		{"missing format", exportRequest{}, "format", "is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, domainerrors.ErrValidation)
			assert.Equal(t, tt.wantMsg, fieldErrors(t, err)[tt.wantField])
		})
	}
}

func TestValidator_JSONFieldNames(t *testing.T) {
	v := validation.New()

	details := fieldErrors(t, v.Validate(moveRequest{Direction: 0}))
	assert.Contains(t, details, "page_id")
	assert.Contains(t, details, "direction")
	assert.NotContains(t, details, "PageID")
}

func TestValidator_Var(t *testing.T) {
	v := validation.New()

	assert.NoError(t, v.Var("limit", 5, "gte=0,lte=100"))

	details := fieldErrors(t, v.Var("limit", 500, "gte=0,lte=100"))
	assert.Equal(t, "must be less than or equal to 100", details["limit"])
}
