// Package queue defines the priority task queue abstraction. Tasks are
// routed to one of three lanes by priority; consumers drain lanes in
// priority order so high-priority work is always reserved first. Concrete
// backends live in internal/platform/redisqueue and in memory.go.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Priority determines which lane a task is routed to.
type Priority string

// Possible task priorities.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Lane is a named queue that tasks of one priority flow through.
type Lane string

// The three lanes, one per priority.
const (
	LaneConversations Lane = "conversations"
	LaneWebhooks      Lane = "webhooks"
	LaneAnalytics     Lane = "analytics"
)

// LaneFor maps a priority to its lane. Unknown priorities fall back to the
// low-priority lane rather than failing, so a bad producer cannot wedge
// dispatch.
func LaneFor(p Priority) Lane {
	switch p {
	case PriorityHigh:
		return LaneConversations
	case PriorityMedium:
		return LaneWebhooks
	default:
		return LaneAnalytics
	}
}

// Lanes returns all lanes in drain order, highest priority first.
func Lanes() []Lane {
	return []Lane{LaneConversations, LaneWebhooks, LaneAnalytics}
}

// IsValidPriority reports whether p is a recognized priority value.
func IsValidPriority(p Priority) bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// State represents the current lifecycle state of a task.
type State string

// Possible task states.
const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// IsTerminal reports whether the state is final.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Task is a unit of background work flowing through a lane.
type Task struct {
	// ID is the task's unique identifier, assigned at enqueue time.
	ID uuid.UUID `json:"id"`

	// Kind identifies which handler processes the task.
	Kind string `json:"kind"`

	// Payload is the handler-specific task data.
	Payload json.RawMessage `json:"payload"`

	// Priority determines the lane the task is routed to.
	Priority Priority `json:"priority"`

	// IdempotencyKey lets handlers detect redeliveries of the same logical
	// operation after a crash between completion and acknowledgment.
	IdempotencyKey string `json:"idempotency_key"`

	// EnqueuedAt is when the task entered its lane.
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Status is a point-in-time snapshot of a task's lifecycle.
type Status struct {
	ID         uuid.UUID       `json:"id"`
	Kind       string          `json:"kind"`
	Lane       Lane            `json:"lane"`
	State      State           `json:"state"`
	Attempts   int             `json:"attempts"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// Common errors returned by queue backends.
var (
	// ErrNoTask is returned by Reserve when every lane is empty.
	ErrNoTask = errors.New("no task available")

	// ErrTaskNotFound is returned when the requested task is unknown to the
	// backend, including tasks whose retained status has expired.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskFinished is returned when an operation targets a task that has
	// already reached a terminal state.
	ErrTaskFinished = errors.New("task already finished")
)

// Backend is the storage side of the task queue. Implementations must keep
// reserved tasks on a per-lane processing list until they are acknowledged,
// so work survives a consumer crash mid-task.
type Backend interface {
	// Enqueue routes the task to the lane for its priority and records a
	// pending status for it.
	Enqueue(ctx context.Context, task *Task) error

	// Reserve pops the oldest task from the highest-priority non-empty
	// lane, moves it to that lane's processing list, and marks it
	// processing. Returns ErrNoTask when every lane is empty. Tasks
	// cancelled while pending are discarded, never returned.
	Reserve(ctx context.Context) (*Task, error)

	// Ack marks a reserved task succeeded with the given result and
	// removes it from its processing list. Acking a task that was
	// cancelled mid-flight leaves it cancelled.
	Ack(ctx context.Context, task *Task, result []byte) error

	// Fail marks a reserved task failed with the given error, or requeues
	// it as pending for another attempt when requeue is true.
	Fail(ctx context.Context, task *Task, taskErr error, requeue bool) error

	// Cancel revokes a task. Pending tasks are discarded at reserve time;
	// tasks already processing are marked cancelled and their eventual
	// Ack/Fail is ignored. Returns ErrTaskFinished if the task already
	// reached a terminal state, ErrTaskNotFound if it is unknown.
	Cancel(ctx context.Context, id uuid.UUID) error

	// GetStatus returns the current status snapshot for the task.
	// Returns ErrTaskNotFound if the task is unknown or its retained
	// status has expired.
	GetStatus(ctx context.Context, id uuid.UUID) (*Status, error)
}

// Handler processes tasks of one kind. The result, if non-nil, is retained
// on the task's status for callers polling task state.
type Handler interface {
	// Kind returns the task kind this handler serves.
	Kind() string

	// Handle executes the task. The context carries the hard deadline;
	// implementations must return promptly once it is cancelled.
	Handle(ctx context.Context, task *Task) ([]byte, error)
}
