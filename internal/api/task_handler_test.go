package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manipulatorai/engage-api/internal/queue"
	"github.com/manipulatorai/engage-api/internal/tasks"
)

type taskFixture struct {
	backend    queue.Backend
	dispatcher *tasks.Dispatcher
	router     http.Handler
}

func newTaskFixture() *taskFixture {
	backend := queue.NewMemoryBackend()
	dispatcher := tasks.NewDispatcher(backend)
	monitor := tasks.NewMonitor(backend, dispatcher, 24*time.Hour, time.Minute)

	h := NewTaskHandler(monitor)
	r := chi.NewRouter()
	r.Get("/tasks", h.ListTasks)
	r.Get("/tasks/{id}", h.GetTask)
	r.Delete("/tasks/{id}", h.CancelTask)

	return &taskFixture{backend: backend, dispatcher: dispatcher, router: r}
}

func (f *taskFixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestGetTaskPending(t *testing.T) {
	f := newTaskFixture()
	taskID, err := f.dispatcher.Dispatch(context.Background(),
		tasks.KindAnalytics, tasks.AnalyticsPayload{BusinessID: "biz-1"}, queue.PriorityLow)
	require.NoError(t, err)

	w := f.get(t, "/tasks/"+taskID.String())

	require.Equal(t, http.StatusOK, w.Code)
	var resp TaskStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, taskID, resp.ID)
	assert.Equal(t, tasks.KindAnalytics, resp.Kind)
	assert.Equal(t, queue.LaneAnalytics, resp.Lane)
	assert.Equal(t, queue.StatePending, resp.State)
}

func TestGetTaskIncludesResult(t *testing.T) {
	f := newTaskFixture()
	ctx := context.Background()

	taskID, err := f.dispatcher.Dispatch(ctx,
		tasks.KindAnalytics, tasks.AnalyticsPayload{BusinessID: "biz-1"}, queue.PriorityLow)
	require.NoError(t, err)

	reserved, err := f.backend.Reserve(ctx)
	require.NoError(t, err)
	require.NoError(t, f.backend.Ack(ctx, reserved, []byte(`{"total_conversations": 7}`)))

	w := f.get(t, "/tasks/"+taskID.String())

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		State  queue.State    `json:"state"`
		Result map[string]int `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, queue.StateSucceeded, resp.State)
	assert.Equal(t, 7, resp.Result["total_conversations"])
}

func TestGetTaskNotFound(t *testing.T) {
	f := newTaskFixture()
	w := f.get(t, "/tasks/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetTaskBadUUID(t *testing.T) {
	f := newTaskFixture()
	w := f.get(t, "/tasks/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListTasksSkipsFinished(t *testing.T) {
	f := newTaskFixture()
	ctx := context.Background()

	pendingID, err := f.dispatcher.Dispatch(ctx,
		tasks.KindAnalytics, tasks.AnalyticsPayload{BusinessID: "biz-1"}, queue.PriorityLow)
	require.NoError(t, err)

	_, err = f.dispatcher.Dispatch(ctx,
		tasks.KindAnalytics, tasks.AnalyticsPayload{BusinessID: "biz-2"}, queue.PriorityHigh)
	require.NoError(t, err)

	// Finish the high-priority one; only the pending task should remain.
	reserved, err := f.backend.Reserve(ctx)
	require.NoError(t, err)
	require.NoError(t, f.backend.Ack(ctx, reserved, nil))

	w := f.get(t, "/tasks")

	require.Equal(t, http.StatusOK, w.Code)
	var resp []TaskStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, pendingID, resp[0].ID)
}

func TestCancelTask(t *testing.T) {
	f := newTaskFixture()
	taskID, err := f.dispatcher.Dispatch(context.Background(),
		tasks.KindAnalytics, tasks.AnalyticsPayload{BusinessID: "biz-1"}, queue.PriorityLow)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/tasks/"+taskID.String(), nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)

	status, err := f.backend.GetStatus(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, queue.StateCancelled, status.State)
}

func TestCancelUnknownTaskConflicts(t *testing.T) {
	f := newTaskFixture()

	req := httptest.NewRequest(http.MethodDelete, "/tasks/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}
