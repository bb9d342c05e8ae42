package tasks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manipulatorai/engage-api/internal/config"
	"github.com/manipulatorai/engage-api/internal/queue"
)

func poolConfig() config.TaskConfig {
	return config.TaskConfig{
		WorkerCount:  1,
		PollInterval: 5 * time.Millisecond,
		HardTimeout:  time.Second,
		SoftTimeout:  500 * time.Millisecond,
		TrackingTTL:  24 * time.Hour,
		GCInterval:   time.Minute,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedHandler records the tasks it handles and delegates to fn.
type scriptedHandler struct {
	kind string
	fn   func(ctx context.Context, task *queue.Task) ([]byte, error)

	mu      sync.Mutex
	handled []uuid.UUID
}

func (h *scriptedHandler) Kind() string { return h.kind }

func (h *scriptedHandler) Handle(ctx context.Context, task *queue.Task) ([]byte, error) {
	h.mu.Lock()
	h.handled = append(h.handled, task.ID)
	h.mu.Unlock()
	if h.fn != nil {
		return h.fn(ctx, task)
	}
	return []byte(`"ok"`), nil
}

func (h *scriptedHandler) handledIDs() []uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uuid.UUID(nil), h.handled...)
}

func enqueue(t *testing.T, backend queue.Backend, kind string, priority queue.Priority) uuid.UUID {
	t.Helper()
	task := &queue.Task{
		ID:             uuid.New(),
		Kind:           kind,
		Payload:        []byte(`{}`),
		Priority:       priority,
		IdempotencyKey: uuid.NewString(),
		EnqueuedAt:     time.Now().UTC(),
	}
	require.NoError(t, backend.Enqueue(context.Background(), task))
	return task.ID
}

func waitForState(t *testing.T, backend queue.Backend, id uuid.UUID, state queue.State) *queue.Status {
	t.Helper()
	var status *queue.Status
	require.Eventually(t, func() bool {
		s, err := backend.GetStatus(context.Background(), id)
		if err != nil {
			return false
		}
		status = s
		return s.State == state
	}, 2*time.Second, 5*time.Millisecond)
	return status
}

func TestPoolProcessesTask(t *testing.T) {
	backend := queue.NewMemoryBackend()
	handler := &scriptedHandler{kind: "test.work"}

	pool := NewPool(backend, poolConfig(), discardLogger())
	pool.Register(handler)

	id := enqueue(t, backend, "test.work", queue.PriorityHigh)

	pool.Start()
	defer pool.Stop()

	status := waitForState(t, backend, id, queue.StateSucceeded)
	assert.Equal(t, []byte(`"ok"`), []byte(status.Result))
	assert.Equal(t, 1, status.Attempts)
}

func TestPoolDrainsHighPriorityFirst(t *testing.T) {
	backend := queue.NewMemoryBackend()
	handler := &scriptedHandler{kind: "test.work"}

	pool := NewPool(backend, poolConfig(), discardLogger())
	pool.Register(handler)

	// Enqueue in reverse priority order before any worker runs; a single
	// worker must still drain the conversations lane first.
	low := enqueue(t, backend, "test.work", queue.PriorityLow)
	medium := enqueue(t, backend, "test.work", queue.PriorityMedium)
	high := enqueue(t, backend, "test.work", queue.PriorityHigh)

	pool.Start()
	defer pool.Stop()

	waitForState(t, backend, low, queue.StateSucceeded)
	waitForState(t, backend, medium, queue.StateSucceeded)
	waitForState(t, backend, high, queue.StateSucceeded)

	assert.Equal(t, []uuid.UUID{high, medium, low}, handler.handledIDs())
}

func TestPoolRetriesUntilAttemptsExhausted(t *testing.T) {
	backend := queue.NewMemoryBackend()
	handler := &scriptedHandler{
		kind: "test.flaky",
		fn: func(context.Context, *queue.Task) ([]byte, error) {
			return nil, errors.New("boom")
		},
	}

	pool := NewPool(backend, poolConfig(), discardLogger())
	pool.Register(handler)

	id := enqueue(t, backend, "test.flaky", queue.PriorityHigh)

	pool.Start()
	defer pool.Stop()

	status := waitForState(t, backend, id, queue.StateFailed)
	assert.Equal(t, maxTaskAttempts, status.Attempts)
	assert.Contains(t, status.Error, "boom")
}

func TestPoolFailsUnhandledKind(t *testing.T) {
	backend := queue.NewMemoryBackend()

	pool := NewPool(backend, poolConfig(), discardLogger())
	pool.Register(&scriptedHandler{kind: "test.known"})

	id := enqueue(t, backend, "test.unknown", queue.PriorityHigh)

	pool.Start()
	defer pool.Stop()

	status := waitForState(t, backend, id, queue.StateFailed)
	assert.Contains(t, status.Error, "no handler registered")
	// An unhandled kind is a wiring bug, not a transient fault.
	assert.Equal(t, 1, status.Attempts)
}

func TestPoolExposesSoftDeadline(t *testing.T) {
	backend := queue.NewMemoryBackend()

	var (
		mu       sync.Mutex
		deadline time.Time
		carried  bool
	)
	handler := &scriptedHandler{
		kind: "test.deadline",
		fn: func(ctx context.Context, _ *queue.Task) ([]byte, error) {
			mu.Lock()
			deadline, carried = SoftDeadline(ctx)
			mu.Unlock()
			return nil, nil
		},
	}

	cfg := poolConfig()
	pool := NewPool(backend, cfg, discardLogger())
	pool.Register(handler)

	id := enqueue(t, backend, "test.deadline", queue.PriorityHigh)

	pool.Start()
	defer pool.Stop()

	waitForState(t, backend, id, queue.StateSucceeded)

	mu.Lock()
	defer mu.Unlock()
	require.True(t, carried)
	assert.WithinDuration(t, time.Now().Add(cfg.SoftTimeout), deadline, time.Second)
}

func TestPoolRegisterPanicsOnDuplicateKind(t *testing.T) {
	pool := NewPool(queue.NewMemoryBackend(), poolConfig(), discardLogger())
	pool.Register(&scriptedHandler{kind: "test.work"})

	assert.Panics(t, func() {
		pool.Register(&scriptedHandler{kind: "test.work"})
	})
}

func TestPoolStopWaitsForWorkers(t *testing.T) {
	backend := queue.NewMemoryBackend()

	release := make(chan struct{})
	handler := &scriptedHandler{
		kind: "test.slow",
		fn: func(context.Context, *queue.Task) ([]byte, error) {
			<-release
			return nil, nil
		},
	}

	pool := NewPool(backend, poolConfig(), discardLogger())
	pool.Register(handler)

	id := enqueue(t, backend, "test.slow", queue.PriorityHigh)

	pool.Start()

	// Wait for the worker to pick the task up, then stop the pool while
	// the task is still running.
	waitForState(t, backend, id, queue.StateProcessing)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		pool.Stop()
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a task was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-stopped

	status := waitForState(t, backend, id, queue.StateSucceeded)
	assert.Equal(t, queue.StateSucceeded, status.State)
}
