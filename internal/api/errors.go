package api

import (
	"errors"
	"net/http"

	"github.com/manipulatorai/engage-api/internal/api/shared"
	"github.com/manipulatorai/engage-api/internal/apperr"
	"github.com/manipulatorai/engage-api/internal/queue"
	"github.com/manipulatorai/engage-api/internal/service/auth"
	"github.com/manipulatorai/engage-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status
// codes based on the error type. This prevents leaking internal error
// types or messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized

	// Not found errors
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, queue.ErrTaskNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, store.ErrDuplicate),
		errors.Is(err, queue.ErrTaskFinished):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, store.ErrInvalidEntity),
		apperr.IsCategory(err, apperr.CategoryValidation):
		return http.StatusBadRequest

	// Conversation state violations
	case apperr.IsCategory(err, apperr.CategoryConversation):
		return http.StatusUnprocessableEntity

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal
// details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return "Invalid token"

	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Invalid credentials"

	// Not found errors
	case errors.Is(err, store.ErrConversationNotFound):
		return "Conversation not found"

	case errors.Is(err, store.ErrItemNotFound):
		return "Item not found"

	case errors.Is(err, store.ErrUserNotFound):
		return "User not found"

	case errors.Is(err, queue.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"

	// Conflict errors
	case errors.Is(err, store.ErrEmailExists):
		return "Email already exists"

	case errors.Is(err, store.ErrActiveConversationExists):
		return "An active conversation already exists for this customer"

	case errors.Is(err, queue.ErrTaskFinished):
		return "Task already finished"

	case errors.Is(err, store.ErrDuplicate):
		return "Resource already exists"

	// Bad request errors
	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"

	case apperr.IsCategory(err, apperr.CategoryValidation):
		// Validation messages are written for clients; safe to surface.
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return appErr.Message
		}
		return "Validation error"

	case apperr.IsCategory(err, apperr.CategoryConversation):
		return "Conversation is not in a state that allows this operation"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes an error response for err, mapping it to a status
// code and safe message. An explicit userMessage overrides the derived
// one.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, userMessage string) {
	status := MapErrorToStatusCode(err)
	message := userMessage
	if message == "" {
		message = GetSafeErrorMessage(err)
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}
