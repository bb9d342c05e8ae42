// Package redisqueue implements the task queue backend on Redis lists.
// Each lane is a list; Reserve moves a task ID from its lane to the lane's
// processing list in one step, so a consumer crash never loses work. Task
// state lives in a per-task hash that expires an hour after the task
// reaches a terminal state.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/manipulatorai/engage-api/internal/queue"
)

// DefaultResultRetention is how long a finished task's status stays
// readable before its hash expires.
const DefaultResultRetention = time.Hour

// Hash field names on the per-task status hash.
const (
	fieldData       = "data"
	fieldKind       = "kind"
	fieldLane       = "lane"
	fieldState      = "state"
	fieldAttempts   = "attempts"
	fieldResult     = "result"
	fieldError      = "error"
	fieldEnqueuedAt = "enqueued_at"
	fieldStartedAt  = "started_at"
	fieldFinishedAt = "finished_at"
)

// Backend implements queue.Backend on a Redis client.
type Backend struct {
	rdb       *redis.Client
	prefix    string
	retention time.Duration
}

// Option configures a Backend.
type Option func(*Backend)

// WithKeyPrefix overrides the default "engage" key prefix, letting several
// deployments share one Redis instance.
func WithKeyPrefix(prefix string) Option {
	return func(b *Backend) { b.prefix = prefix }
}

// WithResultRetention overrides how long finished task statuses are kept.
func WithResultRetention(d time.Duration) Option {
	return func(b *Backend) { b.retention = d }
}

// NewBackend creates a Backend on the given Redis client.
func NewBackend(rdb *redis.Client, opts ...Option) *Backend {
	b := &Backend{
		rdb:       rdb,
		prefix:    "engage",
		retention: DefaultResultRetention,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) laneKey(lane queue.Lane) string {
	return fmt.Sprintf("%s:lane:%s", b.prefix, lane)
}

func (b *Backend) processingKey(lane queue.Lane) string {
	return fmt.Sprintf("%s:lane:%s:processing", b.prefix, lane)
}

func (b *Backend) taskKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:task:%s", b.prefix, id)
}

// Enqueue implements queue.Backend.
func (b *Backend) Enqueue(ctx context.Context, task *queue.Task) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	lane := queue.LaneFor(task.Priority)
	pipe := b.rdb.TxPipeline()
	pipe.HSet(ctx, b.taskKey(task.ID), map[string]any{
		fieldData:       string(data),
		fieldKind:       task.Kind,
		fieldLane:       string(lane),
		fieldState:      string(queue.StatePending),
		fieldAttempts:   0,
		fieldEnqueuedAt: task.EnqueuedAt.Format(time.RFC3339Nano),
	})
	pipe.LPush(ctx, b.laneKey(lane), task.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue task %s: %w", task.ID, err)
	}
	return nil
}

// Reserve implements queue.Backend. Lanes are polled highest priority
// first; the task ID is moved to the lane's processing list atomically via
// RPOPLPUSH so it survives a crash between reserve and ack.
func (b *Backend) Reserve(ctx context.Context) (*queue.Task, error) {
	for _, lane := range queue.Lanes() {
		for {
			id, err := b.rdb.RPopLPush(ctx, b.laneKey(lane), b.processingKey(lane)).Result()
			if errors.Is(err, redis.Nil) {
				break // lane empty, try the next one
			}
			if err != nil {
				return nil, fmt.Errorf("failed to reserve from lane %s: %w", lane, err)
			}

			task, reserved, err := b.claim(ctx, lane, id)
			if err != nil {
				return nil, err
			}
			if !reserved {
				continue // cancelled or expired while pending, discard
			}
			return task, nil
		}
	}
	return nil, queue.ErrNoTask
}

// claim transitions a popped task to processing, or discards it if it was
// cancelled while pending or its status hash has expired.
func (b *Backend) claim(ctx context.Context, lane queue.Lane, id string) (*queue.Task, bool, error) {
	taskID, err := uuid.Parse(id)
	if err != nil {
		// Garbage in the lane list; drop it.
		b.rdb.LRem(ctx, b.processingKey(lane), 1, id)
		return nil, false, nil
	}

	key := b.taskKey(taskID)
	fields, err := b.rdb.HMGet(ctx, key, fieldState, fieldData).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read task %s: %w", taskID, err)
	}

	state, _ := fields[0].(string)
	data, _ := fields[1].(string)
	if state == "" || state == string(queue.StateCancelled) || data == "" {
		b.rdb.LRem(ctx, b.processingKey(lane), 1, id)
		return nil, false, nil
	}

	var task queue.Task
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		b.rdb.LRem(ctx, b.processingKey(lane), 1, id)
		return nil, false, fmt.Errorf("failed to unmarshal task %s: %w", taskID, err)
	}

	pipe := b.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		fieldState, string(queue.StateProcessing),
		fieldStartedAt, time.Now().UTC().Format(time.RFC3339Nano),
	)
	pipe.HIncrBy(ctx, key, fieldAttempts, 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to mark task %s processing: %w", taskID, err)
	}
	return &task, true, nil
}

// Ack implements queue.Backend.
func (b *Backend) Ack(ctx context.Context, task *queue.Task, result []byte) error {
	return b.finish(ctx, task, queue.StateSucceeded, result, nil)
}

// Fail implements queue.Backend.
func (b *Backend) Fail(ctx context.Context, task *queue.Task, taskErr error, requeue bool) error {
	if requeue {
		return b.requeue(ctx, task, taskErr)
	}
	return b.finish(ctx, task, queue.StateFailed, nil, taskErr)
}

func (b *Backend) finish(
	ctx context.Context,
	task *queue.Task,
	state queue.State,
	result []byte,
	taskErr error,
) error {
	key := b.taskKey(task.ID)
	lane := queue.LaneFor(task.Priority)

	current, err := b.rdb.HGet(ctx, key, fieldState).Result()
	if errors.Is(err, redis.Nil) {
		b.rdb.LRem(ctx, b.processingKey(lane), 1, task.ID.String())
		return queue.ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read task %s state: %w", task.ID, err)
	}

	// A task revoked mid-flight stays cancelled; the late ack is ignored.
	if current == string(queue.StateCancelled) {
		b.rdb.LRem(ctx, b.processingKey(lane), 1, task.ID.String())
		return nil
	}
	if queue.State(current).IsTerminal() {
		b.rdb.LRem(ctx, b.processingKey(lane), 1, task.ID.String())
		return queue.ErrTaskFinished
	}

	values := map[string]any{
		fieldState:      string(state),
		fieldFinishedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if result != nil {
		values[fieldResult] = string(result)
	}
	if taskErr != nil {
		values[fieldError] = taskErr.Error()
	}

	pipe := b.rdb.TxPipeline()
	pipe.HSet(ctx, key, values)
	pipe.LRem(ctx, b.processingKey(lane), 1, task.ID.String())
	pipe.Expire(ctx, key, b.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to finish task %s: %w", task.ID, err)
	}
	return nil
}

func (b *Backend) requeue(ctx context.Context, task *queue.Task, taskErr error) error {
	key := b.taskKey(task.ID)
	lane := queue.LaneFor(task.Priority)

	current, err := b.rdb.HGet(ctx, key, fieldState).Result()
	if errors.Is(err, redis.Nil) {
		b.rdb.LRem(ctx, b.processingKey(lane), 1, task.ID.String())
		return queue.ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read task %s state: %w", task.ID, err)
	}
	if current == string(queue.StateCancelled) {
		b.rdb.LRem(ctx, b.processingKey(lane), 1, task.ID.String())
		return nil
	}
	if queue.State(current).IsTerminal() {
		b.rdb.LRem(ctx, b.processingKey(lane), 1, task.ID.String())
		return queue.ErrTaskFinished
	}

	values := map[string]any{fieldState: string(queue.StatePending)}
	if taskErr != nil {
		values[fieldError] = taskErr.Error()
	}

	pipe := b.rdb.TxPipeline()
	pipe.HSet(ctx, key, values)
	pipe.HDel(ctx, key, fieldStartedAt)
	pipe.LRem(ctx, b.processingKey(lane), 1, task.ID.String())
	pipe.LPush(ctx, b.laneKey(lane), task.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to requeue task %s: %w", task.ID, err)
	}
	return nil
}

// Cancel implements queue.Backend. Pending tasks stay in their lane list
// and are discarded at reserve time.
func (b *Backend) Cancel(ctx context.Context, id uuid.UUID) error {
	key := b.taskKey(id)

	current, err := b.rdb.HGet(ctx, key, fieldState).Result()
	if errors.Is(err, redis.Nil) {
		return queue.ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read task %s state: %w", id, err)
	}
	if queue.State(current).IsTerminal() {
		return queue.ErrTaskFinished
	}

	pipe := b.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		fieldState, string(queue.StateCancelled),
		fieldFinishedAt, time.Now().UTC().Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, key, b.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cancel task %s: %w", id, err)
	}
	return nil
}

// GetStatus implements queue.Backend.
func (b *Backend) GetStatus(ctx context.Context, id uuid.UUID) (*queue.Status, error) {
	fields, err := b.rdb.HGetAll(ctx, b.taskKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read task %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, queue.ErrTaskNotFound
	}

	st := &queue.Status{
		ID:    id,
		Kind:  fields[fieldKind],
		Lane:  queue.Lane(fields[fieldLane]),
		State: queue.State(fields[fieldState]),
		Error: fields[fieldError],
	}
	if v := fields[fieldAttempts]; v != "" {
		st.Attempts, _ = strconv.Atoi(v)
	}
	if v := fields[fieldResult]; v != "" {
		st.Result = json.RawMessage(v)
	}
	if v := fields[fieldEnqueuedAt]; v != "" {
		st.EnqueuedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	if v := fields[fieldStartedAt]; v != "" {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.StartedAt = &ts
		}
	}
	if v := fields[fieldFinishedAt]; v != "" {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.FinishedAt = &ts
		}
	}
	return st, nil
}
