package domain

import (
	"errors"
	"time"
)

// Common validation errors for Item.
var (
	ErrEmptyItemID          = errors.New("item ID cannot be empty")
	ErrEmptyItemDescription = errors.New("item description cannot be empty")
)

// ItemAttributes holds the structured attributes of a catalog item.
type ItemAttributes struct {
	Price    string `json:"price,omitempty"`
	Category string `json:"category,omitempty"`
	Brand    string `json:"brand,omitempty"`
	Color    string `json:"color,omitempty"`
}

// Item is a catalog entry. The core treats items as read-only: they are
// owned by the catalog collaborator and only snapshots pass through the
// matcher and composer.
type Item struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Tags        []string       `json:"tags"`
	Attributes  ItemAttributes `json:"attributes"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Validate checks if the Item has valid data.
func (i *Item) Validate() error {
	if i.ID == "" {
		return ErrEmptyItemID
	}
	if i.Description == "" {
		return ErrEmptyItemDescription
	}
	return nil
}
