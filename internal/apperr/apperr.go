// Package apperr defines the application-wide error taxonomy: categorized,
// severity-graded errors that travel from the core to the API boundary as a
// structured envelope. The boundary decides the transport-specific response;
// the core only classifies.
package apperr

import (
	"errors"
	"fmt"
)

// Category classifies an error by the subsystem that produced it.
type Category string

// Possible error categories.
const (
	CategoryValidation     Category = "validation"
	CategoryConversation   Category = "conversation"
	CategoryDatabase       Category = "database"
	CategoryExternalAPI    Category = "external_api"
	CategoryTaskProcessing Category = "task_processing"
	CategorySystem         Category = "system"
)

// Severity grades how serious an error is for alerting purposes.
type Severity string

// Possible severities.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Error is the structured error envelope propagated to the boundary.
// ExternalAPI errors are the exception: they are swallowed at the gateway
// call site and replaced with a fallback value, never surfaced raw.
type Error struct {
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	Category    Category       `json:"category"`
	Severity    Severity       `json:"severity"`
	Recoverable bool           `json:"recoverable"`
	Details     map[string]any `json:"details,omitempty"`
	Err         error          `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail attaches a key/value pair to the error's details, allocating
// the map on first use. Returns the error for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Validation creates a low-severity validation error. Not retried.
func Validation(message string, err error) *Error {
	return &Error{
		Code:        "VALIDATION_ERROR",
		Message:     message,
		Category:    CategoryValidation,
		Severity:    SeverityLow,
		Recoverable: false,
		Err:         err,
	}
}

// Conversation creates a medium-severity conversation error, used for
// state-machine invariant violations.
func Conversation(message string, err error) *Error {
	return &Error{
		Code:        "CONVERSATION_ERROR",
		Message:     message,
		Category:    CategoryConversation,
		Severity:    SeverityMedium,
		Recoverable: true,
		Err:         err,
	}
}

// Database creates a high-severity store error. Retry-with-backoff happens
// at the collaborator boundary, not inside the core.
func Database(message string, err error) *Error {
	return &Error{
		Code:        "DATABASE_ERROR",
		Message:     message,
		Category:    CategoryDatabase,
		Severity:    SeverityHigh,
		Recoverable: true,
		Err:         err,
	}
}

// ExternalAPI creates a medium-severity gateway error. Always recoverable
// via a deterministic fallback at the call boundary.
func ExternalAPI(message string, err error) *Error {
	return &Error{
		Code:        "EXTERNAL_API_ERROR",
		Message:     message,
		Category:    CategoryExternalAPI,
		Severity:    SeverityMedium,
		Recoverable: true,
		Err:         err,
	}
}

// TaskProcessing creates a task-layer error, surfaced through task status
// as failed rather than re-raised to the synchronous caller.
func TaskProcessing(message string, err error) *Error {
	return &Error{
		Code:        "TASK_PROCESSING_ERROR",
		Message:     message,
		Category:    CategoryTaskProcessing,
		Severity:    SeverityMedium,
		Recoverable: true,
		Err:         err,
	}
}

// CategoryOf returns the category of err if it carries one, or
// CategorySystem otherwise.
func CategoryOf(err error) Category {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Category
	}
	return CategorySystem
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, category Category) bool {
	return CategoryOf(err) == category
}
