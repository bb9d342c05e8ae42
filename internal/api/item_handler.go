package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/manipulatorai/engage-api/internal/api/shared"
	"github.com/manipulatorai/engage-api/internal/matcher"
	"github.com/manipulatorai/engage-api/internal/store"
)

// Default matching parameters used when the request leaves them unset.
const (
	defaultMatchThreshold = 0.3
	defaultMatchLimit     = 3
)

// ItemHandler exposes the catalog and keyword matching.
type ItemHandler struct {
	catalog   store.CatalogStore
	validator *validator.Validate
}

// NewItemHandler creates an ItemHandler.
func NewItemHandler(catalog store.CatalogStore) *ItemHandler {
	return &ItemHandler{
		catalog:   catalog,
		validator: validator.New(),
	}
}

// ListItems handles GET /items.
func (h *ItemHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.List(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, items)
}

// GetItem handles GET /items/{id}.
func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")
	if itemID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Item ID is required")
		return
	}

	item, err := h.catalog.GetByID(r.Context(), itemID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, item)
}

// MatchItems handles POST /items/match, ranking the catalog against the
// given keywords.
func (h *ItemHandler) MatchItems(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	threshold := req.Threshold
	if threshold == 0 {
		threshold = defaultMatchThreshold
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultMatchLimit
	}

	items, err := h.catalog.List(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	scored := matcher.Top(req.Keywords, items, threshold, limit)
	responses := make([]MatchedItemResponse, 0, len(scored))
	for _, s := range scored {
		responses = append(responses, MatchedItemResponse{Item: s.Item, Score: s.Score})
	}
	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}
