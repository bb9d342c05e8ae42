package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ConversationBranch identifies which conversational strategy a
// conversation follows.
type ConversationBranch string

// Possible conversation branches.
const (
	// BranchManipulator is the product-anchored strategy, started from an
	// ad interaction with a known item.
	BranchManipulator ConversationBranch = "manipulator"

	// BranchConvincer is the discovery-anchored strategy, started from a
	// free-text inquiry; items are matched after the fact.
	BranchConvincer ConversationBranch = "convincer"
)

// ConversationStatus represents the lifecycle state of a conversation.
type ConversationStatus string

// Possible conversation status values.
const (
	ConversationStatusActive       ConversationStatus = "active"
	ConversationStatusQualified    ConversationStatus = "qualified"
	ConversationStatusUninterested ConversationStatus = "uninterested"
)

// MessageSender identifies who authored a message.
type MessageSender string

// Possible message senders.
const (
	SenderAgent    MessageSender = "agent"
	SenderCustomer MessageSender = "customer"
)

// Common validation errors for Conversation.
var (
	ErrEmptyConversationID       = errors.New("conversation ID cannot be empty")
	ErrEmptyCustomerID           = errors.New("customer ID cannot be empty")
	ErrEmptyBusinessID           = errors.New("business ID cannot be empty")
	ErrInvalidBranch             = errors.New("invalid conversation branch")
	ErrInvalidConversationStatus = errors.New("invalid conversation status")
	ErrInvalidStatusTransition   = errors.New("invalid conversation status transition")
	ErrInvalidSender             = errors.New("invalid message sender")
	ErrEmptyMessageContent       = errors.New("message content cannot be empty")
)

// Message is a single entry in a conversation's history. Messages are
// immutable once appended; ordering is append-only and chronological.
type Message struct {
	Timestamp time.Time     `json:"timestamp"`
	Sender    MessageSender `json:"sender"`
	Content   string        `json:"content"`
	Intent    string        `json:"intent,omitempty"`
	Sentiment string        `json:"sentiment,omitempty"`
}

// Validate checks if the Message has valid data.
func (m *Message) Validate() error {
	if m.Sender != SenderAgent && m.Sender != SenderCustomer {
		return ErrInvalidSender
	}
	if m.Content == "" {
		return ErrEmptyMessageContent
	}
	return nil
}

// NewMessage creates a message from the given sender with the current
// timestamp.
func NewMessage(sender MessageSender, content string) Message {
	return Message{
		Timestamp: time.Now().UTC(),
		Sender:    sender,
		Content:   content,
	}
}

// Conversation tracks a single customer dialogue: its strategy branch,
// lifecycle status, ordered message history, and the catalog items it has
// referenced. At most one conversation per (customer, business) pair may be
// active at a time; the store enforces this invariant.
type Conversation struct {
	ID         uuid.UUID          `json:"id"`
	CustomerID string             `json:"customer_id"`
	BusinessID string             `json:"business_id"`
	Branch     ConversationBranch `json:"branch"`
	Status     ConversationStatus `json:"status"`
	Messages   []Message          `json:"messages"`
	ItemRefs   []string           `json:"item_refs,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// NewConversation creates a new active Conversation for the given customer
// and business. Returns an error if validation fails.
func NewConversation(
	customerID, businessID string,
	branch ConversationBranch,
) (*Conversation, error) {
	now := time.Now().UTC()
	c := &Conversation{
		ID:         uuid.New(),
		CustomerID: customerID,
		BusinessID: businessID,
		Branch:     branch,
		Status:     ConversationStatusActive,
		Messages:   nil,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Validate checks if the Conversation has valid data.
func (c *Conversation) Validate() error {
	if c.ID == uuid.Nil {
		return ErrEmptyConversationID
	}
	if c.CustomerID == "" {
		return ErrEmptyCustomerID
	}
	if c.BusinessID == "" {
		return ErrEmptyBusinessID
	}
	if !IsValidBranch(c.Branch) {
		return ErrInvalidBranch
	}
	if !IsValidConversationStatus(c.Status) {
		return ErrInvalidConversationStatus
	}
	return nil
}

// IsTerminal reports whether the status belongs to the terminal set from
// which a conversation is normally not advanced further.
func (s ConversationStatus) IsTerminal() bool {
	return s == ConversationStatusQualified || s == ConversationStatusUninterested
}

// CanTransitionTo reports whether moving from the current status to the
// target status is legal. Transitions are one-directional into the terminal
// set; the only way out of a terminal status is an explicit reopen back to
// active.
func (s ConversationStatus) CanTransitionTo(target ConversationStatus) bool {
	if !IsValidConversationStatus(target) {
		return false
	}
	if s.IsTerminal() {
		return target == ConversationStatusActive
	}
	return true
}

// UpdateStatus moves the conversation to the given status, enforcing the
// transition rules, and refreshes the UpdatedAt timestamp.
func (c *Conversation) UpdateStatus(status ConversationStatus) error {
	if !c.Status.CanTransitionTo(status) {
		return ErrInvalidStatusTransition
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// Reopen moves a terminal conversation back to active so a new inbound
// interaction from the same customer can continue it. It is a no-op for
// conversations that are already active.
func (c *Conversation) Reopen() error {
	if c.Status == ConversationStatusActive {
		return nil
	}
	return c.UpdateStatus(ConversationStatusActive)
}

// CustomerMessageCount returns the number of customer-authored messages in
// the history. The status ceiling rule counts customer messages only.
func (c *Conversation) CustomerMessageCount() int {
	count := 0
	for i := range c.Messages {
		if c.Messages[i].Sender == SenderCustomer {
			count++
		}
	}
	return count
}

// IsValidBranch checks if the given branch is a valid ConversationBranch.
func IsValidBranch(branch ConversationBranch) bool {
	switch branch {
	case BranchManipulator, BranchConvincer:
		return true
	default:
		return false
	}
}

// IsValidConversationStatus checks if the given status is a valid
// ConversationStatus.
func IsValidConversationStatus(status ConversationStatus) bool {
	switch status {
	case ConversationStatusActive, ConversationStatusQualified, ConversationStatusUninterested:
		return true
	default:
		return false
	}
}
