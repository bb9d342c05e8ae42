package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBackend is an in-process Backend implementation with the same
// semantics as the Redis backend. It backs tests and single-node
// deployments that run without Redis.
type MemoryBackend struct {
	mu         sync.Mutex
	lanes      map[Lane][]*Task
	processing map[uuid.UUID]*Task
	statuses   map[uuid.UUID]*Status
}

// NewMemoryBackend creates an empty in-memory queue backend.
func NewMemoryBackend() *MemoryBackend {
	lanes := make(map[Lane][]*Task, len(Lanes()))
	for _, lane := range Lanes() {
		lanes[lane] = nil
	}
	return &MemoryBackend{
		lanes:      lanes,
		processing: make(map[uuid.UUID]*Task),
		statuses:   make(map[uuid.UUID]*Status),
	}
}

// Enqueue implements Backend.
func (b *MemoryBackend) Enqueue(_ context.Context, task *Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}

	lane := LaneFor(task.Priority)
	b.lanes[lane] = append(b.lanes[lane], task)
	b.statuses[task.ID] = &Status{
		ID:         task.ID,
		Kind:       task.Kind,
		Lane:       lane,
		State:      StatePending,
		EnqueuedAt: task.EnqueuedAt,
	}
	return nil
}

// Reserve implements Backend. Lanes are drained in priority order; within a
// lane, tasks come out in enqueue order.
func (b *MemoryBackend) Reserve(_ context.Context) (*Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, lane := range Lanes() {
		for len(b.lanes[lane]) > 0 {
			task := b.lanes[lane][0]
			b.lanes[lane] = b.lanes[lane][1:]

			st := b.statuses[task.ID]
			if st.State == StateCancelled {
				continue
			}

			now := time.Now().UTC()
			st.State = StateProcessing
			st.Attempts++
			st.StartedAt = &now
			b.processing[task.ID] = task
			return task, nil
		}
	}
	return nil, ErrNoTask
}

// Ack implements Backend.
func (b *MemoryBackend) Ack(_ context.Context, task *Task, result []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.statuses[task.ID]
	if !ok {
		return ErrTaskNotFound
	}
	delete(b.processing, task.ID)

	// A task revoked mid-flight stays cancelled; the late ack is ignored.
	if st.State == StateCancelled {
		return nil
	}
	if st.State.IsTerminal() {
		return ErrTaskFinished
	}

	now := time.Now().UTC()
	st.State = StateSucceeded
	st.Result = result
	st.FinishedAt = &now
	return nil
}

// Fail implements Backend.
func (b *MemoryBackend) Fail(_ context.Context, task *Task, taskErr error, requeue bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.statuses[task.ID]
	if !ok {
		return ErrTaskNotFound
	}
	delete(b.processing, task.ID)

	if st.State == StateCancelled {
		return nil
	}
	if st.State.IsTerminal() {
		return ErrTaskFinished
	}

	if taskErr != nil {
		st.Error = taskErr.Error()
	}

	if requeue {
		st.State = StatePending
		st.StartedAt = nil
		lane := LaneFor(task.Priority)
		b.lanes[lane] = append(b.lanes[lane], task)
		return nil
	}

	now := time.Now().UTC()
	st.State = StateFailed
	st.FinishedAt = &now
	return nil
}

// Cancel implements Backend.
func (b *MemoryBackend) Cancel(_ context.Context, id uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.statuses[id]
	if !ok {
		return ErrTaskNotFound
	}
	if st.State.IsTerminal() {
		return ErrTaskFinished
	}

	now := time.Now().UTC()
	st.State = StateCancelled
	st.FinishedAt = &now
	return nil
}

// GetStatus implements Backend.
func (b *MemoryBackend) GetStatus(_ context.Context, id uuid.UUID) (*Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.statuses[id]
	if !ok {
		return nil, ErrTaskNotFound
	}

	snapshot := *st
	return &snapshot, nil
}
