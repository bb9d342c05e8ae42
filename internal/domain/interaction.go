package domain

import (
	"errors"
	"time"
)

// Platform identifies where a customer interaction originated.
type Platform string

// Supported interaction platforms.
const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformWhatsApp  Platform = "whatsapp"
	PlatformGoogle    Platform = "google"
)

// IsValidPlatform reports whether p is a recognized platform.
func IsValidPlatform(p Platform) bool {
	switch p {
	case PlatformFacebook, PlatformInstagram, PlatformWhatsApp, PlatformGoogle:
		return true
	}
	return false
}

// InteractionType classifies what the customer did.
type InteractionType string

// Possible interaction types.
const (
	InteractionLike    InteractionType = "like"
	InteractionComment InteractionType = "comment"
	InteractionClick   InteractionType = "click"
	InteractionShare   InteractionType = "share"
	InteractionMessage InteractionType = "message"
)

// IsValidInteractionType reports whether t is a recognized interaction type.
func IsValidInteractionType(t InteractionType) bool {
	switch t {
	case InteractionLike, InteractionComment, InteractionClick, InteractionShare, InteractionMessage:
		return true
	}
	return false
}

// Common validation errors for Interaction.
var (
	ErrInvalidPlatform        = errors.New("invalid interaction platform")
	ErrInvalidInteractionType = errors.New("invalid interaction type")
)

// Interaction is a normalized customer touchpoint: an ad engagement or a
// direct message, already stripped of platform-specific envelope.
type Interaction struct {
	CustomerID string          `json:"customer_id"`
	BusinessID string          `json:"business_id"`
	Platform   Platform        `json:"platform"`
	Type       InteractionType `json:"type"`

	// ItemRefs are the catalog items the interaction touched, when the
	// platform reports them.
	ItemRefs []string `json:"item_refs,omitempty"`

	// Message is the customer's text for message-type interactions.
	Message string `json:"message,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Validate checks if the Interaction has valid data.
func (i *Interaction) Validate() error {
	if i.CustomerID == "" {
		return ErrEmptyCustomerID
	}
	if i.BusinessID == "" {
		return ErrEmptyBusinessID
	}
	if !IsValidPlatform(i.Platform) {
		return ErrInvalidPlatform
	}
	if !IsValidInteractionType(i.Type) {
		return ErrInvalidInteractionType
	}
	if i.Type == InteractionMessage && i.Message == "" {
		return ErrEmptyMessageContent
	}
	return nil
}

// Branch selects the conversational strategy for the interaction: anchored
// to known items when the platform reported any, discovery-driven
// otherwise.
func (i *Interaction) Branch() ConversationBranch {
	if len(i.ItemRefs) > 0 {
		return BranchManipulator
	}
	return BranchConvincer
}
