package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/manipulatorai/engage-api/internal/domain"
)

// ConversationStore defines the interface for conversation persistence.
type ConversationStore interface {
	// Create saves a new conversation, including any initial messages.
	// Returns ErrActiveConversationExists if the customer already has an
	// active conversation with the business.
	// Returns validation errors from the domain Conversation if data is invalid.
	Create(ctx context.Context, conversation *domain.Conversation) error

	// GetByID retrieves a conversation by its unique ID, with its full
	// message history in chronological order.
	// Returns ErrConversationNotFound if the conversation does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)

	// FindActiveByCustomer retrieves the customer's active conversation with
	// the business, if one exists.
	// Returns ErrConversationNotFound if there is no active conversation.
	FindActiveByCustomer(
		ctx context.Context,
		customerID, businessID string,
	) (*domain.Conversation, error)

	// FindLatestByCustomer retrieves the customer's most recently updated
	// conversation with the business, regardless of status. Used to decide
	// between reopening a concluded conversation and starting a new one.
	// Returns ErrConversationNotFound if the customer has no conversations.
	FindLatestByCustomer(
		ctx context.Context,
		customerID, businessID string,
	) (*domain.Conversation, error)

	// AppendMessage appends a message to the conversation's history and
	// bumps the conversation's updated_at timestamp.
	// Returns ErrConversationNotFound if the conversation does not exist.
	AppendMessage(ctx context.Context, id uuid.UUID, message domain.Message) error

	// UpdateStatus sets the conversation's status. Callers are expected to
	// have validated the transition via domain.Conversation.UpdateStatus;
	// the store persists whatever status it is given.
	// Returns ErrConversationNotFound if the conversation does not exist.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ConversationStatus) error

	// CountByStatus returns the number of conversations per status for the
	// given business, used by the metrics endpoint.
	CountByStatus(ctx context.Context, businessID string) (map[domain.ConversationStatus]int, error)

	// WithTx returns a new ConversationStore instance that uses the provided
	// transaction. The transaction should be created and managed by the
	// caller (typically a service) via store.RunInTransaction.
	WithTx(tx *sql.Tx) ConversationStore
}
