package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrors_MessagesAndCategories(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category error
		want     string
	}{
		{
			name:     "not found with id",
			err:      NewNotFoundError("toggle", "new-checkout"),
			category: ErrNotFound,
			want:     `toggle "new-checkout" not found`,
		},
		{
			name:     "not found without id",
			err:      NewNotFoundError("toggle", ""),
			category: ErrNotFound,
			want:     "toggle not found",
		},
		{
			name:     "invalid argument",
			err:      NewInvalidArgumentError("builder", "already built"),
			category: ErrInvalidArgument,
			want:     "invalid argument builder: already built",
		},
		{
			name:     "duplicate key",
			err:      NewDuplicateKeyError("properties", "env"),
			category: ErrInvalidArgument,
			want:     `invalid argument properties: key "env" already exists`,
		},
		{
			name:     "validation with field",
			err:      NewValidationError("name", "is required"),
			category: ErrValidation,
			want:     "validation failed for name: is required",
		},
		{
			name:     "validation without field",
			err:      NewValidationError("", "bad payload"),
			category: ErrValidation,
			want:     "validation failed: bad payload",
		},
		{
			name:     "forbidden with reason",
			err:      NewForbiddenError("fetch toggles", "token lacks client scope"),
			category: ErrForbidden,
			want:     `operation "fetch toggles" forbidden: token lacks client scope`,
		},
		{
			name:     "forbidden without reason",
			err:      NewForbiddenError("fetch toggles", ""),
			category: ErrForbidden,
			want:     `operation "fetch toggles" forbidden`,
		},
		{
			name:     "unavailable with reason",
			err:      NewUnavailableError("toggle-server", "toggles not loaded"),
			category: ErrUnavailable,
			want:     "toggle-server unavailable: toggles not loaded",
		},
		{
			name:     "unavailable without reason",
			err:      NewUnavailableError("toggle-file", ""),
			category: ErrUnavailable,
			want:     "toggle-file unavailable",
		},
	}

	categories := []error{ErrNotFound, ErrInvalidArgument, ErrValidation, ErrForbidden, ErrUnavailable}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())

			for _, c := range categories {
				assert.Equal(t, c == tt.category, errors.Is(tt.err, c), "errors.Is(%v)", c)
			}
		})
	}
}

func TestErrors_SurviveWrapping(t *testing.T) {
	err := fmt.Errorf("refreshing: %w", NewUnavailableError("toggle-server", "circuit open"))

	assert.True(t, IsUnavailable(err))
	assert.False(t, IsNotFound(err))

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "toggle-server", unavailable.Service)
}

func TestErrors_Predicates(t *testing.T) {
	tests := []struct {
		name string
		is   func(error) bool
		err  error
	}{
		{name: "IsNotFound", is: IsNotFound, err: NewNotFoundError("toggle", "x")},
		{name: "IsInvalidArgument", is: IsInvalidArgument, err: NewDuplicateKeyError("properties", "k")},
		{name: "IsValidation", is: IsValidation, err: NewValidationError("f", "m")},
		{name: "IsForbidden", is: IsForbidden, err: NewForbiddenError("op", "")},
		{name: "IsUnavailable", is: IsUnavailable, err: NewUnavailableError("svc", "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.is(tt.err))
			assert.False(t, tt.is(nil))
			assert.False(t, tt.is(errors.New("plain")))
		})
	}
}

func TestInvalidArgumentError_Fields(t *testing.T) {
	var invalid *InvalidArgumentError
	require.ErrorAs(t, NewDuplicateKeyError("properties", "region"), &invalid)

	assert.Equal(t, "properties", invalid.Argument)
	assert.Equal(t, "region", invalid.Key)
}
