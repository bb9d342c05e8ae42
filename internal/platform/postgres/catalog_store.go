package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/manipulatorai/engage-api/internal/domain"
	"github.com/manipulatorai/engage-api/internal/store"
)

// PostgresCatalogStore implements the store.CatalogStore interface
// using a PostgreSQL database as the storage backend. Item tags and
// attributes are stored as JSONB.
type PostgresCatalogStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCatalogStore creates a new PostgreSQL implementation of the
// CatalogStore interface. If logger is nil, a default logger will be used.
func NewPostgresCatalogStore(db store.DBTX, logger *slog.Logger) *PostgresCatalogStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresCatalogStore{
		db:     db,
		logger: logger.With(slog.String("component", "catalog_store")),
	}
}

// Ensure PostgresCatalogStore implements store.CatalogStore interface
var _ store.CatalogStore = (*PostgresCatalogStore)(nil)

const itemColumns = "id, description, tags, attributes, created_at, updated_at"

// Create implements store.CatalogStore.Create
func (s *PostgresCatalogStore) Create(ctx context.Context, item *domain.Item) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	tags, err := json.Marshal(item.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	attrs, err := json.Marshal(item.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}

	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	query := `
		INSERT INTO items (id, description, tags, attributes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = s.db.ExecContext(ctx, query,
		item.ID, item.Description, tags, attrs, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return MapError(err)
	}
	return nil
}

// GetByID implements store.CatalogStore.GetByID
func (s *PostgresCatalogStore) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	query := fmt.Sprintf("SELECT %s FROM items WHERE id = $1", itemColumns)
	item, err := scanItem(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return nil, store.ErrItemNotFound
		}
		return nil, MapError(err)
	}
	return item, nil
}

// GetByIDs implements store.CatalogStore.GetByIDs
func (s *PostgresCatalogStore) GetByIDs(ctx context.Context, ids []string) ([]domain.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf("SELECT %s FROM items WHERE id IN (%s)",
		itemColumns, strings.Join(placeholders, ", "))
	items, err := s.queryItems(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	// Preserve the order of the input IDs.
	byID := make(map[string]domain.Item, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	ordered := make([]domain.Item, 0, len(items))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			ordered = append(ordered, item)
		}
	}
	return ordered, nil
}

// List implements store.CatalogStore.List
func (s *PostgresCatalogStore) List(ctx context.Context) ([]domain.Item, error) {
	query := fmt.Sprintf("SELECT %s FROM items ORDER BY id", itemColumns)
	return s.queryItems(ctx, query)
}

// ListExcluding implements store.CatalogStore.ListExcluding
func (s *PostgresCatalogStore) ListExcluding(ctx context.Context, excludeIDs []string) ([]domain.Item, error) {
	if len(excludeIDs) == 0 {
		return s.List(ctx)
	}

	placeholders := make([]string, len(excludeIDs))
	args := make([]any, len(excludeIDs))
	for i, id := range excludeIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf("SELECT %s FROM items WHERE id NOT IN (%s) ORDER BY id",
		itemColumns, strings.Join(placeholders, ", "))
	return s.queryItems(ctx, query, args...)
}

// WithTx implements store.CatalogStore.WithTx
func (s *PostgresCatalogStore) WithTx(tx *sql.Tx) store.CatalogStore {
	return &PostgresCatalogStore{
		db:     tx,
		logger: s.logger,
	}
}

func (s *PostgresCatalogStore) queryItems(ctx context.Context, query string, args ...any) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var items []domain.Item
	for rows.Next() {
		item, err := scanItemRows(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return items, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for item scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row *sql.Row) (*domain.Item, error) {
	return scanItemFrom(row)
}

func scanItemRows(rows *sql.Rows) (*domain.Item, error) {
	return scanItemFrom(rows)
}

func scanItemFrom(scanner rowScanner) (*domain.Item, error) {
	var item domain.Item
	var tags, attrs []byte

	err := scanner.Scan(
		&item.ID,
		&item.Description,
		&tags,
		&attrs,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &item.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &item.Attributes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
		}
	}
	return &item, nil
}
