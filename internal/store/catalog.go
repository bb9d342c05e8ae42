package store

import (
	"context"
	"database/sql"

	"github.com/manipulatorai/engage-api/internal/domain"
)

// CatalogStore defines the interface for catalog item persistence.
type CatalogStore interface {
	// Create saves a new catalog item.
	// Returns ErrDuplicate if an item with the same ID already exists.
	// Returns validation errors from the domain Item if data is invalid.
	Create(ctx context.Context, item *domain.Item) error

	// GetByID retrieves a catalog item by its ID.
	// Returns ErrItemNotFound if the item does not exist.
	GetByID(ctx context.Context, id string) (*domain.Item, error)

	// GetByIDs retrieves the items with the given IDs. Missing IDs are
	// silently skipped; the result preserves the order of the input IDs.
	GetByIDs(ctx context.Context, ids []string) ([]domain.Item, error)

	// List retrieves all catalog items, ordered by ID for determinism.
	List(ctx context.Context) ([]domain.Item, error)

	// ListExcluding retrieves all catalog items except those with the given
	// IDs, used to source cross-recommendation candidates.
	ListExcluding(ctx context.Context, excludeIDs []string) ([]domain.Item, error)

	// WithTx returns a new CatalogStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) CatalogStore
}
