package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/manipulatorai/engage-api/internal/domain"
	"github.com/manipulatorai/engage-api/internal/engine"
	"github.com/manipulatorai/engage-api/internal/queue"
)

// Task kinds served by the built-in handlers.
const (
	KindConversation = "conversation.process"
	KindWebhook      = "webhook.process"
	KindAnalytics    = "analytics.aggregate"
)

// ConversationResult is the retained result of a conversation task.
type ConversationResult struct {
	ConversationID uuid.UUID                 `json:"conversation_id"`
	Reply          string                    `json:"reply"`
	Status         domain.ConversationStatus `json:"status"`
}

// Orchestrator is the conversation surface the task handlers drive.
type Orchestrator interface {
	// ProcessInteraction routes a normalized interaction into a new or
	// existing conversation.
	ProcessInteraction(ctx context.Context, interaction domain.Interaction) (ConversationResult, error)

	// ProcessDirectMessage appends a customer message to an existing
	// conversation and generates the reply.
	ProcessDirectMessage(ctx context.Context, conversationID uuid.UUID, text string) (ConversationResult, error)
}

// MetricsSource provides conversation metrics for the analytics handler.
type MetricsSource interface {
	GetMetrics(ctx context.Context, businessID string) (*engine.Metrics, error)
}

// maxMemoEntries bounds the idempotency memo. Redeliveries arrive within
// seconds of the original, so the memo resets rather than evicts.
const maxMemoEntries = 1024

// resultMemo remembers completed results by idempotency key so redelivered
// tasks return the original outcome instead of running twice.
type resultMemo struct {
	mu      sync.Mutex
	results map[string][]byte
}

func newResultMemo() *resultMemo {
	return &resultMemo{results: make(map[string][]byte)}
}

func (m *resultMemo) get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result, ok := m.results[key]
	return result, ok
}

func (m *resultMemo) put(key string, result []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.results) >= maxMemoEntries {
		m.results = make(map[string][]byte)
	}
	m.results[key] = result
}

// ConversationPayload is the payload of a conversation.process task.
type ConversationPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Message        string    `json:"message"`
}

// ConversationHandler processes direct customer messages asynchronously.
type ConversationHandler struct {
	orchestrator Orchestrator
	memo         *resultMemo
}

// NewConversationHandler creates the conversation.process handler.
func NewConversationHandler(orchestrator Orchestrator) *ConversationHandler {
	return &ConversationHandler{orchestrator: orchestrator, memo: newResultMemo()}
}

// Kind implements queue.Handler.
func (h *ConversationHandler) Kind() string { return KindConversation }

// Handle implements queue.Handler.
func (h *ConversationHandler) Handle(ctx context.Context, task *queue.Task) ([]byte, error) {
	if result, ok := h.memo.get(task.IdempotencyKey); ok {
		return result, nil
	}

	var payload ConversationPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid conversation payload: %w", err)
	}
	if payload.ConversationID == uuid.Nil {
		return nil, fmt.Errorf("invalid conversation payload: %w", domain.ErrEmptyConversationID)
	}
	if payload.Message == "" {
		return nil, fmt.Errorf("invalid conversation payload: %w", domain.ErrEmptyMessageContent)
	}

	outcome, err := h.orchestrator.ProcessDirectMessage(ctx, payload.ConversationID, payload.Message)
	if err != nil {
		return nil, err
	}

	result, err := json.Marshal(outcome)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task result: %w", err)
	}
	h.memo.put(task.IdempotencyKey, result)
	return result, nil
}

// WebhookHandler processes normalized platform interactions.
type WebhookHandler struct {
	orchestrator Orchestrator
	memo         *resultMemo
}

// NewWebhookHandler creates the webhook.process handler.
func NewWebhookHandler(orchestrator Orchestrator) *WebhookHandler {
	return &WebhookHandler{orchestrator: orchestrator, memo: newResultMemo()}
}

// Kind implements queue.Handler.
func (h *WebhookHandler) Kind() string { return KindWebhook }

// Handle implements queue.Handler.
func (h *WebhookHandler) Handle(ctx context.Context, task *queue.Task) ([]byte, error) {
	if result, ok := h.memo.get(task.IdempotencyKey); ok {
		return result, nil
	}

	var interaction domain.Interaction
	if err := json.Unmarshal(task.Payload, &interaction); err != nil {
		return nil, fmt.Errorf("invalid interaction payload: %w", err)
	}
	if err := interaction.Validate(); err != nil {
		return nil, fmt.Errorf("invalid interaction payload: %w", err)
	}

	outcome, err := h.orchestrator.ProcessInteraction(ctx, interaction)
	if err != nil {
		return nil, err
	}

	result, err := json.Marshal(outcome)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task result: %w", err)
	}
	h.memo.put(task.IdempotencyKey, result)
	return result, nil
}

// AnalyticsPayload is the payload of an analytics.aggregate task.
type AnalyticsPayload struct {
	BusinessID string `json:"business_id"`
}

// AnalyticsHandler aggregates conversation metrics for a business. It is
// naturally idempotent, so it carries no memo.
type AnalyticsHandler struct {
	metrics MetricsSource
}

// NewAnalyticsHandler creates the analytics.aggregate handler.
func NewAnalyticsHandler(metrics MetricsSource) *AnalyticsHandler {
	return &AnalyticsHandler{metrics: metrics}
}

// Kind implements queue.Handler.
func (h *AnalyticsHandler) Kind() string { return KindAnalytics }

// Handle implements queue.Handler.
func (h *AnalyticsHandler) Handle(ctx context.Context, task *queue.Task) ([]byte, error) {
	var payload AnalyticsPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid analytics payload: %w", err)
	}
	if payload.BusinessID == "" {
		return nil, fmt.Errorf("invalid analytics payload: %w", domain.ErrEmptyBusinessID)
	}

	metrics, err := h.metrics.GetMetrics(ctx, payload.BusinessID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(metrics)
}

// Ensure the built-in handlers implement queue.Handler.
var (
	_ queue.Handler = (*ConversationHandler)(nil)
	_ queue.Handler = (*WebhookHandler)(nil)
	_ queue.Handler = (*AnalyticsHandler)(nil)
)
