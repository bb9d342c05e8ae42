package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/manipulatorai/engage-api/internal/domain"
	"github.com/manipulatorai/engage-api/internal/queue"
)

// Common request/response structures

// RegisterRequest defines the payload for the user registration endpoint.
type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=12,max=72"`
}

// LoginRequest defines the payload for the user login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// AuthResponse defines the successful response for authentication endpoints.
type AuthResponse struct {
	// UserID is the unique identifier for the authenticated user
	UserID uuid.UUID `json:"user_id"`

	// Token is the JWT used for API authorization
	Token string `json:"token"`
}

// InteractionRequest defines the payload for the interactions endpoint.
type InteractionRequest struct {
	CustomerID string   `json:"customer_id" validate:"required"`
	BusinessID string   `json:"business_id" validate:"required"`
	Platform   string   `json:"platform"    validate:"required"`
	Type       string   `json:"type"        validate:"required"`
	ItemRefs   []string `json:"item_refs,omitempty"`
	Message    string   `json:"message,omitempty"`

	// Async routes the interaction through the task queue instead of
	// processing it inline.
	Async bool `json:"async,omitempty"`
}

// toInteraction converts the request into a domain interaction.
func (r *InteractionRequest) toInteraction() domain.Interaction {
	return domain.Interaction{
		CustomerID: r.CustomerID,
		BusinessID: r.BusinessID,
		Platform:   domain.Platform(r.Platform),
		Type:       domain.InteractionType(r.Type),
		ItemRefs:   r.ItemRefs,
		Message:    r.Message,
		OccurredAt: time.Now().UTC(),
	}
}

// MessageRequest defines the payload for posting a customer message to an
// existing conversation.
type MessageRequest struct {
	Message string `json:"message" validate:"required"`
	Async   bool   `json:"async,omitempty"`
}

// ConversationReplyResponse is the synchronous answer to an interaction or
// message.
type ConversationReplyResponse struct {
	ConversationID uuid.UUID                 `json:"conversation_id"`
	Reply          string                    `json:"reply"`
	Status         domain.ConversationStatus `json:"status"`
}

// TaskAcceptedResponse acknowledges asynchronous dispatch with the task
// handle for polling.
type TaskAcceptedResponse struct {
	TaskID uuid.UUID `json:"task_id"`
}

// TaskStatusResponse mirrors the queue's task status snapshot.
type TaskStatusResponse struct {
	ID         uuid.UUID   `json:"id"`
	Kind       string      `json:"kind"`
	Lane       queue.Lane  `json:"lane"`
	State      queue.State `json:"state"`
	Attempts   int         `json:"attempts"`
	Result     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// MatchRequest defines the payload for the item matching endpoint.
type MatchRequest struct {
	Keywords  []string `json:"keywords"  validate:"required,min=1"`
	Threshold float64  `json:"threshold" validate:"gte=0,lte=1"`
	Limit     int      `json:"limit"     validate:"gte=0"`
}

// MatchedItemResponse is one scored item in a match response.
type MatchedItemResponse struct {
	Item  domain.Item `json:"item"`
	Score float64     `json:"score"`
}
