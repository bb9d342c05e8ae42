package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "generic error",
			err:      errors.New("some error"),
			expected: false,
		},
		{
			name:     "ErrNotFound",
			err:      ErrNotFound,
			expected: true,
		},
		{
			name:     "ErrConversationNotFound",
			err:      ErrConversationNotFound,
			expected: true,
		},
		{
			name:     "ErrItemNotFound",
			err:      ErrItemNotFound,
			expected: true,
		},
		{
			name:     "ErrUserNotFound",
			err:      ErrUserNotFound,
			expected: true,
		},
		{
			name:     "wrapped ErrConversationNotFound",
			err:      fmt.Errorf("lookup failed: %w", ErrConversationNotFound),
			expected: true,
		},
		{
			name:     "duplicate error is not a not-found error",
			err:      ErrEmailExists,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsNotFoundError(tt.err))
		})
	}
}

func TestIsDuplicateError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "ErrDuplicate",
			err:      ErrDuplicate,
			expected: true,
		},
		{
			name:     "ErrEmailExists",
			err:      ErrEmailExists,
			expected: true,
		},
		{
			name:     "ErrActiveConversationExists",
			err:      ErrActiveConversationExists,
			expected: true,
		},
		{
			name:     "wrapped ErrActiveConversationExists",
			err:      fmt.Errorf("create failed: %w", ErrActiveConversationExists),
			expected: true,
		},
		{
			name:     "not-found error is not a duplicate error",
			err:      ErrConversationNotFound,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsDuplicateError(tt.err))
		})
	}
}
