package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manipulatorai/engage-api/internal/domain"
	"github.com/manipulatorai/engage-api/internal/engine"
	"github.com/manipulatorai/engage-api/internal/store"
	"github.com/manipulatorai/engage-api/internal/tasks"
)

// fakeOrchestrator scripts the orchestration surface.
type fakeOrchestrator struct {
	result       tasks.ConversationResult
	err          error
	dispatchedID uuid.UUID
	dispatchErr  error
	conversation *domain.Conversation
	convErr      error

	lastInteraction domain.Interaction
	lastMessage     string
}

func (f *fakeOrchestrator) ProcessInteraction(
	_ context.Context,
	interaction domain.Interaction,
) (tasks.ConversationResult, error) {
	f.lastInteraction = interaction
	return f.result, f.err
}

func (f *fakeOrchestrator) ProcessDirectMessage(
	_ context.Context,
	conversationID uuid.UUID,
	text string,
) (tasks.ConversationResult, error) {
	f.lastMessage = text
	return f.result, f.err
}

func (f *fakeOrchestrator) DispatchInteraction(
	_ context.Context,
	interaction domain.Interaction,
) (uuid.UUID, error) {
	f.lastInteraction = interaction
	return f.dispatchedID, f.dispatchErr
}

func (f *fakeOrchestrator) DispatchDirectMessage(
	_ context.Context,
	_ uuid.UUID,
	text string,
) (uuid.UUID, error) {
	f.lastMessage = text
	return f.dispatchedID, f.dispatchErr
}

func (f *fakeOrchestrator) GetConversation(
	_ context.Context,
	_ uuid.UUID,
) (*domain.Conversation, error) {
	return f.conversation, f.convErr
}

type fakeMetrics struct {
	metrics *engine.Metrics
	err     error
}

func (f *fakeMetrics) GetMetrics(context.Context, string) (*engine.Metrics, error) {
	return f.metrics, f.err
}

func conversationRouter(orch *fakeOrchestrator, metrics *fakeMetrics) http.Handler {
	h := NewConversationHandler(orch, metrics)
	r := chi.NewRouter()
	r.Post("/interactions", h.HandleInteraction)
	r.Post("/conversations/{id}/messages", h.PostMessage)
	r.Get("/conversations/metrics", h.GetMetrics)
	r.Get("/conversations/{id}", h.GetConversation)
	return r
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func validInteractionBody() map[string]any {
	return map[string]any{
		"customer_id": "fb_123",
		"business_id": "fb_page_9",
		"platform":    "facebook",
		"type":        "comment",
		"message":     "how much is the blue one?",
	}
}

func TestHandleInteractionSync(t *testing.T) {
	convID := uuid.New()
	orch := &fakeOrchestrator{result: tasks.ConversationResult{
		ConversationID: convID,
		Reply:          "It's $49.",
		Status:         domain.ConversationStatusActive,
	}}

	w := postJSON(t, conversationRouter(orch, &fakeMetrics{}), "/interactions", validInteractionBody())

	require.Equal(t, http.StatusOK, w.Code)
	var resp ConversationReplyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, convID, resp.ConversationID)
	assert.Equal(t, "It's $49.", resp.Reply)
	assert.Equal(t, "fb_123", orch.lastInteraction.CustomerID)
	assert.Equal(t, domain.PlatformFacebook, orch.lastInteraction.Platform)
}

func TestHandleInteractionAsync(t *testing.T) {
	taskID := uuid.New()
	orch := &fakeOrchestrator{dispatchedID: taskID}

	body := validInteractionBody()
	body["async"] = true
	w := postJSON(t, conversationRouter(orch, &fakeMetrics{}), "/interactions", body)

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp TaskAcceptedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, taskID, resp.TaskID)
}

func TestHandleInteractionRejectsMissingFields(t *testing.T) {
	orch := &fakeOrchestrator{}
	w := postJSON(t, conversationRouter(orch, &fakeMetrics{}), "/interactions",
		map[string]any{"customer_id": "fb_123"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostMessageSync(t *testing.T) {
	convID := uuid.New()
	orch := &fakeOrchestrator{result: tasks.ConversationResult{
		ConversationID: convID,
		Reply:          "Sure, let me check.",
		Status:         domain.ConversationStatusActive,
	}}

	w := postJSON(t, conversationRouter(orch, &fakeMetrics{}),
		"/conversations/"+convID.String()+"/messages",
		map[string]any{"message": "is it in stock?"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "is it in stock?", orch.lastMessage)
}

func TestPostMessageConversationNotFound(t *testing.T) {
	orch := &fakeOrchestrator{err: store.ErrConversationNotFound}

	w := postJSON(t, conversationRouter(orch, &fakeMetrics{}),
		"/conversations/"+uuid.NewString()+"/messages",
		map[string]any{"message": "hello?"})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPostMessageRejectsBadUUID(t *testing.T) {
	w := postJSON(t, conversationRouter(&fakeOrchestrator{}, &fakeMetrics{}),
		"/conversations/not-a-uuid/messages",
		map[string]any{"message": "hello?"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetConversation(t *testing.T) {
	conv, err := domain.NewConversation("cust-1", "biz-1", domain.BranchConvincer)
	require.NoError(t, err)
	orch := &fakeOrchestrator{conversation: conv}

	req := httptest.NewRequest(http.MethodGet, "/conversations/"+conv.ID.String(), nil)
	w := httptest.NewRecorder()
	conversationRouter(orch, &fakeMetrics{}).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got domain.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, conv.ID, got.ID)
	assert.Equal(t, domain.BranchConvincer, got.Branch)
}

func TestGetMetrics(t *testing.T) {
	metrics := &fakeMetrics{metrics: &engine.Metrics{
		Total:             4,
		Active:            1,
		Qualified:         2,
		Uninterested:      1,
		QualificationRate: 0.5,
	}}

	req := httptest.NewRequest(http.MethodGet, "/conversations/metrics?business_id=biz-1", nil)
	w := httptest.NewRecorder()
	conversationRouter(&fakeOrchestrator{}, metrics).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got engine.Metrics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 4, got.Total)
	assert.InDelta(t, 0.5, got.QualificationRate, 1e-9)
}

func TestGetMetricsRequiresBusinessID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/conversations/metrics", nil)
	w := httptest.NewRecorder()
	conversationRouter(&fakeOrchestrator{}, &fakeMetrics{}).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
