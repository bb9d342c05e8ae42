package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/manipulatorai/engage-api/internal/apperr"
	"github.com/manipulatorai/engage-api/internal/platform/logger"
	"github.com/manipulatorai/engage-api/internal/queue"
)

// Monitor answers task status queries and cancellations, and garbage
// collects the dispatcher's tracking entries once they age out.
type Monitor struct {
	backend    queue.Backend
	dispatcher *Dispatcher

	trackingTTL time.Duration
	gcInterval  time.Duration
}

// NewMonitor creates a Monitor. Tracking entries older than trackingTTL
// are swept every gcInterval once Run is started.
func NewMonitor(
	backend queue.Backend,
	dispatcher *Dispatcher,
	trackingTTL, gcInterval time.Duration,
) *Monitor {
	return &Monitor{
		backend:     backend,
		dispatcher:  dispatcher,
		trackingTTL: trackingTTL,
		gcInterval:  gcInterval,
	}
}

// GetStatus returns the backend's status snapshot for the task. Unknown
// and expired tasks yield queue.ErrTaskNotFound.
func (m *Monitor) GetStatus(ctx context.Context, id uuid.UUID) (*queue.Status, error) {
	status, err := m.backend.GetStatus(ctx, id)
	if err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			return nil, err
		}
		return nil, apperr.TaskProcessing("failed to get task status", err)
	}
	return status, nil
}

// Cancel revokes a task best-effort. Returns true if the cancellation was
// recorded, false when the task is unknown or already finished.
func (m *Monitor) Cancel(ctx context.Context, id uuid.UUID) bool {
	err := m.backend.Cancel(ctx, id)
	if err != nil {
		logger.FromContext(ctx).Debug("task cancellation had no effect",
			slog.String("task_id", id.String()),
			slog.String("reason", err.Error()))
		return false
	}
	return true
}

// ListActive returns the status of every tracked task that has not reached
// a terminal state, oldest first. Tasks the backend no longer knows about
// are dropped from tracking as a side effect.
func (m *Monitor) ListActive(ctx context.Context) ([]queue.Status, error) {
	var active []queue.Status
	for _, id := range m.dispatcher.trackedIDs() {
		status, err := m.backend.GetStatus(ctx, id)
		if err != nil {
			if errors.Is(err, queue.ErrTaskNotFound) {
				m.dispatcher.forget(id)
				continue
			}
			return nil, apperr.TaskProcessing("failed to get task status", err)
		}
		if status.State.IsTerminal() {
			continue
		}
		active = append(active, *status)
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].EnqueuedAt.Before(active[j].EnqueuedAt)
	})
	return active, nil
}

// sweepTracking drops expired tracking entries whose task the backend
// reports terminal or no longer knows about. Entries for tasks still
// pending or processing survive past the TTL so ListActive keeps
// reporting them.
func (m *Monitor) sweepTracking(ctx context.Context, cutoff time.Time) int {
	pruned := 0
	for _, id := range m.dispatcher.expiredIDs(cutoff) {
		status, err := m.backend.GetStatus(ctx, id)
		if err != nil {
			if errors.Is(err, queue.ErrTaskNotFound) {
				m.dispatcher.forget(id)
				pruned++
			}
			continue
		}
		if status.State.IsTerminal() {
			m.dispatcher.forget(id)
			pruned++
		}
	}
	return pruned
}

// Run sweeps finished tracking entries until the context is cancelled. The
// backend expires its own task state independently; this only bounds the
// dispatcher's tracking map.
func (m *Monitor) Run(ctx context.Context) {
	log := logger.FromContext(ctx)

	ticker := time.NewTicker(m.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pruned := m.sweepTracking(ctx, time.Now().Add(-m.trackingTTL)); pruned > 0 {
				log.Debug("pruned expired task tracking entries",
					slog.Int("count", pruned))
			}
		}
	}
}
