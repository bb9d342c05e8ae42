package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/manipulatorai/engage-api/internal/domain"
	"github.com/manipulatorai/engage-api/internal/store"
)

// PostgresConversationStore implements the store.ConversationStore interface
// using a PostgreSQL database as the storage backend.
type PostgresConversationStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresConversationStore creates a new PostgreSQL implementation of the
// ConversationStore interface. It accepts a database connection or transaction
// that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresConversationStore(db store.DBTX, logger *slog.Logger) *PostgresConversationStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresConversationStore{
		db:     db,
		logger: logger.With(slog.String("component", "conversation_store")),
	}
}

// Ensure PostgresConversationStore implements store.ConversationStore interface
var _ store.ConversationStore = (*PostgresConversationStore)(nil)

// Create implements store.ConversationStore.Create. The conversation row
// and its initial messages commit atomically.
func (s *PostgresConversationStore) Create(ctx context.Context, conversation *domain.Conversation) error {
	if err := conversation.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	if db, ok := s.db.(*sql.DB); ok {
		return store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			txStore := s.WithTx(tx).(*PostgresConversationStore)
			return txStore.create(ctx, conversation)
		})
	}
	return s.create(ctx, conversation)
}

func (s *PostgresConversationStore) create(ctx context.Context, conversation *domain.Conversation) error {
	itemRefs, err := json.Marshal(conversation.ItemRefs)
	if err != nil {
		return fmt.Errorf("failed to marshal item refs: %w", err)
	}

	query := `
		INSERT INTO conversations (id, customer_id, business_id, branch, status, item_refs, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = s.db.ExecContext(ctx, query,
		conversation.ID,
		conversation.CustomerID,
		conversation.BusinessID,
		conversation.Branch,
		conversation.Status,
		itemRefs,
		conversation.CreatedAt.UTC(),
		conversation.UpdatedAt.UTC(),
	)
	if err != nil {
		return MapError(err)
	}

	for _, msg := range conversation.Messages {
		if err := s.insertMessage(ctx, conversation.ID, msg); err != nil {
			return err
		}
	}

	s.logger.DebugContext(ctx, "conversation created",
		slog.String("conversation_id", conversation.ID.String()),
		slog.String("branch", string(conversation.Branch)))
	return nil
}

// GetByID implements store.ConversationStore.GetByID
func (s *PostgresConversationStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	query := `
		SELECT id, customer_id, business_id, branch, status, item_refs, created_at, updated_at
		FROM conversations
		WHERE id = $1`
	return s.scanConversation(ctx, s.db.QueryRowContext(ctx, query, id))
}

// FindActiveByCustomer implements store.ConversationStore.FindActiveByCustomer
func (s *PostgresConversationStore) FindActiveByCustomer(
	ctx context.Context,
	customerID, businessID string,
) (*domain.Conversation, error) {
	query := `
		SELECT id, customer_id, business_id, branch, status, item_refs, created_at, updated_at
		FROM conversations
		WHERE customer_id = $1 AND business_id = $2 AND status = $3`
	row := s.db.QueryRowContext(ctx, query, customerID, businessID, domain.ConversationStatusActive)
	return s.scanConversation(ctx, row)
}

// FindLatestByCustomer implements store.ConversationStore.FindLatestByCustomer
func (s *PostgresConversationStore) FindLatestByCustomer(
	ctx context.Context,
	customerID, businessID string,
) (*domain.Conversation, error) {
	query := `
		SELECT id, customer_id, business_id, branch, status, item_refs, created_at, updated_at
		FROM conversations
		WHERE customer_id = $1 AND business_id = $2
		ORDER BY updated_at DESC
		LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, customerID, businessID)
	return s.scanConversation(ctx, row)
}

// AppendMessage implements store.ConversationStore.AppendMessage
func (s *PostgresConversationStore) AppendMessage(
	ctx context.Context,
	id uuid.UUID,
	message domain.Message,
) error {
	if err := message.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id)
	if err != nil {
		return MapError(err)
	}
	if err := CheckRowsAffected(result, store.ErrConversationNotFound); err != nil {
		return err
	}

	return s.insertMessage(ctx, id, message)
}

// UpdateStatus implements store.ConversationStore.UpdateStatus
func (s *PostgresConversationStore) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.ConversationStatus,
) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrConversationNotFound)
}

// CountByStatus implements store.ConversationStore.CountByStatus
func (s *PostgresConversationStore) CountByStatus(
	ctx context.Context,
	businessID string,
) (map[domain.ConversationStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM conversations WHERE business_id = $1 GROUP BY status`,
		businessID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[domain.ConversationStatus]int)
	for rows.Next() {
		var status domain.ConversationStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, MapError(err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return counts, nil
}

// WithTx implements store.ConversationStore.WithTx
func (s *PostgresConversationStore) WithTx(tx *sql.Tx) store.ConversationStore {
	return &PostgresConversationStore{
		db:     tx,
		logger: s.logger,
	}
}

func (s *PostgresConversationStore) insertMessage(
	ctx context.Context,
	conversationID uuid.UUID,
	msg domain.Message,
) error {
	query := `
		INSERT INTO messages (conversation_id, ts, sender, content, intent, sentiment)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.ExecContext(ctx, query,
		conversationID,
		msg.Timestamp.UTC(),
		msg.Sender,
		msg.Content,
		nullString(msg.Intent),
		nullString(msg.Sentiment),
	)
	if err != nil {
		return MapError(err)
	}
	return nil
}

// scanConversation reads one conversation row and loads its message history.
func (s *PostgresConversationStore) scanConversation(
	ctx context.Context,
	row *sql.Row,
) (*domain.Conversation, error) {
	var conv domain.Conversation
	var itemRefs []byte

	err := row.Scan(
		&conv.ID,
		&conv.CustomerID,
		&conv.BusinessID,
		&conv.Branch,
		&conv.Status,
		&itemRefs,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return nil, store.ErrConversationNotFound
		}
		return nil, MapError(err)
	}

	if len(itemRefs) > 0 {
		if err := json.Unmarshal(itemRefs, &conv.ItemRefs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal item refs: %w", err)
		}
	}

	messages, err := s.loadMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	conv.Messages = messages

	return &conv, nil
}

func (s *PostgresConversationStore) loadMessages(
	ctx context.Context,
	conversationID uuid.UUID,
) ([]domain.Message, error) {
	query := `
		SELECT ts, sender, content, intent, sentiment
		FROM messages
		WHERE conversation_id = $1
		ORDER BY ts ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var intent, sentiment sql.NullString
		if err := rows.Scan(&msg.Timestamp, &msg.Sender, &msg.Content, &intent, &sentiment); err != nil {
			return nil, MapError(err)
		}
		msg.Intent = intent.String
		msg.Sentiment = sentiment.String
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return messages, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
