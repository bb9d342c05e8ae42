package api

import (
	"encoding/json"
	"net/http"

	"github.com/manipulatorai/engage-api/internal/api/shared"
	"github.com/manipulatorai/engage-api/internal/queue"
	"github.com/manipulatorai/engage-api/internal/tasks"
)

// TaskHandler exposes task status, listing, and cancellation.
type TaskHandler struct {
	monitor *tasks.Monitor
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(monitor *tasks.Monitor) *TaskHandler {
	return &TaskHandler{monitor: monitor}
}

// ListTasks handles GET /tasks, returning every tracked non-terminal task.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.monitor.ListActive(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	responses := make([]TaskStatusResponse, 0, len(statuses))
	for i := range statuses {
		responses = append(responses, toTaskStatusResponse(&statuses[i]))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

// GetTask handles GET /tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := getPathUUID(r, "id")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	status, err := h.monitor.GetStatus(r.Context(), taskID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, toTaskStatusResponse(status))
}

// CancelTask handles DELETE /tasks/{id}. Cancellation is best-effort: a
// task already picked up by a worker runs to completion, and its result is
// discarded.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := getPathUUID(r, "id")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if !h.monitor.Cancel(r.Context(), taskID) {
		shared.RespondWithError(w, r, http.StatusConflict,
			"Task is unknown or already finished")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func toTaskStatusResponse(status *queue.Status) TaskStatusResponse {
	resp := TaskStatusResponse{
		ID:         status.ID,
		Kind:       status.Kind,
		Lane:       status.Lane,
		State:      status.State,
		Attempts:   status.Attempts,
		Error:      status.Error,
		EnqueuedAt: status.EnqueuedAt,
		StartedAt:  status.StartedAt,
		FinishedAt: status.FinishedAt,
	}
	if len(status.Result) > 0 {
		resp.Result = json.RawMessage(status.Result)
	}
	return resp
}
