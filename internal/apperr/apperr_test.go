package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := Database("failed to append message", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "DATABASE_ERROR")
	assert.Contains(t, err.Error(), "connection refused")

	var appErr *Error
	assert.ErrorAs(t, fmt.Errorf("outer: %w", err), &appErr)
	assert.Equal(t, CategoryDatabase, appErr.Category)
	assert.Equal(t, SeverityHigh, appErr.Severity)
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name        string
		err         *Error
		category    Category
		severity    Severity
		recoverable bool
	}{
		{"validation", Validation("bad input", nil), CategoryValidation, SeverityLow, false},
		{"conversation", Conversation("bad transition", nil), CategoryConversation, SeverityMedium, true},
		{"database", Database("create failed", nil), CategoryDatabase, SeverityHigh, true},
		{"external api", ExternalAPI("gateway timeout", nil), CategoryExternalAPI, SeverityMedium, true},
		{"task processing", TaskProcessing("broker unreachable", nil), CategoryTaskProcessing, SeverityMedium, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.severity, tt.err.Severity)
			assert.Equal(t, tt.recoverable, tt.err.Recoverable)
		})
	}
}

func TestWithDetail(t *testing.T) {
	err := Conversation("not found", nil).
		WithDetail("conversation_id", "abc").
		WithDetail("customer_id", "cust-1")

	assert.Equal(t, "abc", err.Details["conversation_id"])
	assert.Equal(t, "cust-1", err.Details["customer_id"])
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, CategoryExternalAPI, CategoryOf(ExternalAPI("timeout", nil)))
	assert.Equal(t, CategorySystem, CategoryOf(errors.New("plain")))
	assert.True(t, IsCategory(Validation("x", nil), CategoryValidation))
	assert.False(t, IsCategory(Validation("x", nil), CategoryDatabase))
}
