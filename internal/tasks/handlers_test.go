package tasks

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manipulatorai/engage-api/internal/domain"
	"github.com/manipulatorai/engage-api/internal/engine"
	"github.com/manipulatorai/engage-api/internal/queue"
)

type fakeOrchestrator struct {
	mu               sync.Mutex
	directCalls      int
	interactionCalls int
	result           ConversationResult
	err              error
}

func (f *fakeOrchestrator) ProcessInteraction(
	_ context.Context,
	_ domain.Interaction,
) (ConversationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interactionCalls++
	return f.result, f.err
}

func (f *fakeOrchestrator) ProcessDirectMessage(
	_ context.Context,
	_ uuid.UUID,
	_ string,
) (ConversationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.directCalls++
	return f.result, f.err
}

type fakeMetricsSource struct {
	metrics *engine.Metrics
	err     error
}

func (f *fakeMetricsSource) GetMetrics(context.Context, string) (*engine.Metrics, error) {
	return f.metrics, f.err
}

func conversationTask(t *testing.T, payload ConversationPayload, key string) *queue.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &queue.Task{
		ID:             uuid.New(),
		Kind:           KindConversation,
		Payload:        data,
		Priority:       queue.PriorityHigh,
		IdempotencyKey: key,
		EnqueuedAt:     time.Now().UTC(),
	}
}

func TestConversationHandler(t *testing.T) {
	convID := uuid.New()
	orch := &fakeOrchestrator{result: ConversationResult{
		ConversationID: convID,
		Reply:          "Glad to help!",
		Status:         domain.ConversationStatusActive,
	}}
	h := NewConversationHandler(orch)

	task := conversationTask(t, ConversationPayload{
		ConversationID: convID,
		Message:        "tell me more",
	}, "key-1")

	result, err := h.Handle(context.Background(), task)
	require.NoError(t, err)

	var outcome ConversationResult
	require.NoError(t, json.Unmarshal(result, &outcome))
	assert.Equal(t, convID, outcome.ConversationID)
	assert.Equal(t, "Glad to help!", outcome.Reply)
	assert.Equal(t, 1, orch.directCalls)
}

func TestConversationHandlerDeduplicatesRedelivery(t *testing.T) {
	orch := &fakeOrchestrator{result: ConversationResult{
		ConversationID: uuid.New(),
		Reply:          "done",
		Status:         domain.ConversationStatusActive,
	}}
	h := NewConversationHandler(orch)

	payload := ConversationPayload{ConversationID: uuid.New(), Message: "hi"}
	first, err := h.Handle(context.Background(), conversationTask(t, payload, "dup-key"))
	require.NoError(t, err)

	// The same logical task redelivered after a crash between completion
	// and ack must not be processed twice.
	second, err := h.Handle(context.Background(), conversationTask(t, payload, "dup-key"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, orch.directCalls)
}

func TestConversationHandlerRejectsBadPayload(t *testing.T) {
	h := NewConversationHandler(&fakeOrchestrator{})

	_, err := h.Handle(context.Background(), &queue.Task{
		ID:             uuid.New(),
		Kind:           KindConversation,
		Payload:        json.RawMessage(`not json`),
		IdempotencyKey: "k1",
	})
	assert.Error(t, err)

	_, err = h.Handle(context.Background(),
		conversationTask(t, ConversationPayload{Message: "hi"}, "k2"))
	assert.ErrorIs(t, err, domain.ErrEmptyConversationID)

	_, err = h.Handle(context.Background(),
		conversationTask(t, ConversationPayload{ConversationID: uuid.New()}, "k3"))
	assert.ErrorIs(t, err, domain.ErrEmptyMessageContent)
}

func TestWebhookHandler(t *testing.T) {
	orch := &fakeOrchestrator{result: ConversationResult{
		ConversationID: uuid.New(),
		Reply:          "Welcome!",
		Status:         domain.ConversationStatusActive,
	}}
	h := NewWebhookHandler(orch)

	interaction := domain.Interaction{
		CustomerID: "cust-1",
		BusinessID: "biz-1",
		Platform:   domain.PlatformFacebook,
		Type:       domain.InteractionClick,
		ItemRefs:   []string{"laptop-1"},
		OccurredAt: time.Now().UTC(),
	}
	data, err := json.Marshal(interaction)
	require.NoError(t, err)

	result, err := h.Handle(context.Background(), &queue.Task{
		ID:             uuid.New(),
		Kind:           KindWebhook,
		Payload:        data,
		IdempotencyKey: "wh-1",
	})
	require.NoError(t, err)

	var outcome ConversationResult
	require.NoError(t, json.Unmarshal(result, &outcome))
	assert.Equal(t, "Welcome!", outcome.Reply)
	assert.Equal(t, 1, orch.interactionCalls)
}

func TestWebhookHandlerRejectsInvalidInteraction(t *testing.T) {
	orch := &fakeOrchestrator{}
	h := NewWebhookHandler(orch)

	interaction := domain.Interaction{
		CustomerID: "cust-1",
		BusinessID: "biz-1",
		Platform:   "myspace",
		Type:       domain.InteractionClick,
	}
	data, err := json.Marshal(interaction)
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), &queue.Task{
		ID:             uuid.New(),
		Kind:           KindWebhook,
		Payload:        data,
		IdempotencyKey: "wh-2",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPlatform)
	assert.Equal(t, 0, orch.interactionCalls)
}

func TestAnalyticsHandler(t *testing.T) {
	source := &fakeMetricsSource{metrics: &engine.Metrics{
		Total:             4,
		Qualified:         2,
		QualificationRate: 0.5,
	}}
	h := NewAnalyticsHandler(source)

	data, err := json.Marshal(AnalyticsPayload{BusinessID: "biz-1"})
	require.NoError(t, err)

	result, err := h.Handle(context.Background(), &queue.Task{
		ID:      uuid.New(),
		Kind:    KindAnalytics,
		Payload: data,
	})
	require.NoError(t, err)

	var metrics engine.Metrics
	require.NoError(t, json.Unmarshal(result, &metrics))
	assert.Equal(t, 4, metrics.Total)
	assert.InDelta(t, 0.5, metrics.QualificationRate, 1e-9)
}

func TestAnalyticsHandlerRequiresBusinessID(t *testing.T) {
	h := NewAnalyticsHandler(&fakeMetricsSource{})

	data, err := json.Marshal(AnalyticsPayload{})
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), &queue.Task{
		ID:      uuid.New(),
		Kind:    KindAnalytics,
		Payload: data,
	})
	assert.ErrorIs(t, err, domain.ErrEmptyBusinessID)
}
