package gateway

import "errors"

// Common errors returned by gateway implementations.
var (
	// ErrGenerationFailed is returned when text generation fails for any
	// general reason.
	ErrGenerationFailed = errors.New("failed to generate text")

	// ErrInvalidResponse is returned when the model response cannot be
	// parsed or is malformed.
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the model blocks the content due
	// to safety filters.
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors that might
	// resolve on retry, including timeouts.
	ErrTransientFailure = errors.New("transient error during text generation")

	// ErrInvalidConfig is returned when the gateway configuration is invalid.
	ErrInvalidConfig = errors.New("invalid gateway configuration")
)
