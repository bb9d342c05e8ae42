package tasks

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/manipulatorai/engage-api/internal/apperr"
	"github.com/manipulatorai/engage-api/internal/platform/logger"
	"github.com/manipulatorai/engage-api/internal/queue"
)

// trackingEntry is the dispatcher's record of an in-flight task. It exists
// only so ListActive can enumerate tasks; status always comes from the
// backend.
type trackingEntry struct {
	Kind      string
	Priority  queue.Priority
	CreatedAt time.Time
}

// Dispatcher routes tasks into the queue backend's priority lanes.
type Dispatcher struct {
	backend queue.Backend

	mu       sync.Mutex
	tracking map[uuid.UUID]trackingEntry
}

// NewDispatcher creates a Dispatcher over the given backend.
func NewDispatcher(backend queue.Backend) *Dispatcher {
	return &Dispatcher{
		backend:  backend,
		tracking: make(map[uuid.UUID]trackingEntry),
	}
}

// Dispatch marshals the payload, assigns the task an ID and idempotency
// key, and enqueues it on the lane for its priority. Returns the task ID
// as the handle for later status queries.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	kind string,
	payload any,
	priority queue.Priority,
) (uuid.UUID, error) {
	if kind == "" {
		return uuid.Nil, apperr.Validation("task kind cannot be empty", nil)
	}
	if !queue.IsValidPriority(priority) {
		return uuid.Nil, apperr.Validation("invalid task priority", nil)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, apperr.Validation("failed to marshal task payload", err)
	}

	task := &queue.Task{
		ID:             uuid.New(),
		Kind:           kind,
		Payload:        data,
		Priority:       priority,
		IdempotencyKey: uuid.NewString(),
		EnqueuedAt:     time.Now().UTC(),
	}

	if err := d.backend.Enqueue(ctx, task); err != nil {
		return uuid.Nil, apperr.TaskProcessing("failed to enqueue task", err)
	}

	d.mu.Lock()
	d.tracking[task.ID] = trackingEntry{
		Kind:      kind,
		Priority:  priority,
		CreatedAt: task.EnqueuedAt,
	}
	d.mu.Unlock()

	logger.FromContext(ctx).Info("task dispatched",
		slog.String("task_id", task.ID.String()),
		slog.String("kind", kind),
		slog.String("priority", string(priority)),
		slog.String("lane", string(queue.LaneFor(priority))))

	return task.ID, nil
}

// trackedIDs returns a snapshot of the tracked task IDs.
func (d *Dispatcher) trackedIDs() []uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(d.tracking))
	for id := range d.tracking {
		ids = append(ids, id)
	}
	return ids
}

// forget drops a task from the tracking map.
func (d *Dispatcher) forget(id uuid.UUID) {
	d.mu.Lock()
	delete(d.tracking, id)
	d.mu.Unlock()
}

// expiredIDs returns the tracked task IDs created before the cutoff.
func (d *Dispatcher) expiredIDs(cutoff time.Time) []uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ids []uuid.UUID
	for id, entry := range d.tracking {
		if entry.CreatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}
