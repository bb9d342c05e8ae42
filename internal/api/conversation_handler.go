package api

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/manipulatorai/engage-api/internal/api/shared"
	"github.com/manipulatorai/engage-api/internal/domain"
	"github.com/manipulatorai/engage-api/internal/tasks"
)

// OrchestrationService is the conversation orchestration surface the API
// layer depends on.
type OrchestrationService interface {
	ProcessInteraction(ctx context.Context, interaction domain.Interaction) (tasks.ConversationResult, error)
	ProcessDirectMessage(ctx context.Context, conversationID uuid.UUID, text string) (tasks.ConversationResult, error)
	DispatchInteraction(ctx context.Context, interaction domain.Interaction) (uuid.UUID, error)
	DispatchDirectMessage(ctx context.Context, conversationID uuid.UUID, text string) (uuid.UUID, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
}

// ConversationHandler handles interaction and conversation API requests.
type ConversationHandler struct {
	orchestrator OrchestrationService
	metrics      tasks.MetricsSource
	validator    *validator.Validate
}

// NewConversationHandler creates a ConversationHandler with the given
// dependencies.
func NewConversationHandler(
	orchestrator OrchestrationService,
	metrics tasks.MetricsSource,
) *ConversationHandler {
	return &ConversationHandler{
		orchestrator: orchestrator,
		metrics:      metrics,
		validator:    validator.New(),
	}
}

// HandleInteraction handles POST /interactions. Synchronous requests get
// the agent's reply inline; async requests get a task handle back.
func (h *ConversationHandler) HandleInteraction(w http.ResponseWriter, r *http.Request) {
	var req InteractionRequest

	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	interaction := req.toInteraction()

	if req.Async {
		taskID, err := h.orchestrator.DispatchInteraction(r.Context(), interaction)
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
		shared.RespondWithJSON(w, r, http.StatusAccepted, TaskAcceptedResponse{TaskID: taskID})
		return
	}

	result, err := h.orchestrator.ProcessInteraction(r.Context(), interaction)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ConversationReplyResponse{
		ConversationID: result.ConversationID,
		Reply:          result.Reply,
		Status:         result.Status,
	})
}

// PostMessage handles POST /conversations/{id}/messages.
func (h *ConversationHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	conversationID, err := getPathUUID(r, "id")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var req MessageRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	if req.Async {
		taskID, err := h.orchestrator.DispatchDirectMessage(r.Context(), conversationID, req.Message)
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
		shared.RespondWithJSON(w, r, http.StatusAccepted, TaskAcceptedResponse{TaskID: taskID})
		return
	}

	result, err := h.orchestrator.ProcessDirectMessage(r.Context(), conversationID, req.Message)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ConversationReplyResponse{
		ConversationID: result.ConversationID,
		Reply:          result.Reply,
		Status:         result.Status,
	})
}

// GetConversation handles GET /conversations/{id}.
func (h *ConversationHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID, err := getPathUUID(r, "id")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.orchestrator.GetConversation(r.Context(), conversationID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, conv)
}

// GetMetrics handles GET /conversations/metrics?business_id=...
func (h *ConversationHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	businessID := r.URL.Query().Get("business_id")
	if businessID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "business_id query parameter is required")
		return
	}

	metrics, err := h.metrics.GetMetrics(r.Context(), businessID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, metrics)
}
