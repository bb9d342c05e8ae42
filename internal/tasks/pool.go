package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/manipulatorai/engage-api/internal/config"
	"github.com/manipulatorai/engage-api/internal/queue"
)

// maxTaskAttempts bounds how many times a failing task is retried before
// it is marked failed for good.
const maxTaskAttempts = 3

// softDeadlineKey carries the soft deadline through the task context.
type softDeadlineKey struct{}

// SoftDeadline returns the task's soft deadline, if the context carries
// one. Handlers can use it to wind down long work before the hard limit
// cancels them.
func SoftDeadline(ctx context.Context) (time.Time, bool) {
	deadline, ok := ctx.Value(softDeadlineKey{}).(time.Time)
	return deadline, ok
}

// Pool manages the worker goroutines that drain the queue lanes. Workers
// reserve in priority order, run the handler registered for the task's
// kind under the hard timeout, and acknowledge the outcome.
type Pool struct {
	backend  queue.Backend
	handlers map[string]queue.Handler
	config   config.TaskConfig
	logger   *slog.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool creates a worker pool. Handlers must be registered before Start.
func NewPool(backend queue.Backend, cfg config.TaskConfig, logger *slog.Logger) *Pool {
	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			slog.Int("specified_count", cfg.WorkerCount),
			slog.Int("default_count", 1))
	}
	cfg.WorkerCount = workerCount

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		backend:  backend,
		handlers: make(map[string]queue.Handler),
		config:   cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register adds a handler for its task kind. Registering two handlers for
// the same kind is a wiring bug and panics at startup.
func (p *Pool) Register(handler queue.Handler) {
	kind := handler.Kind()
	if _, exists := p.handlers[kind]; exists {
		panic(fmt.Sprintf("duplicate task handler for kind %q", kind))
	}
	p.handlers[kind] = handler
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("task worker pool started",
		slog.Int("worker_count", p.config.WorkerCount))
}

// Stop signals the workers to finish their current task and waits for
// them to exit.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("task worker pool stopped")
}

// worker reserves and runs tasks until the pool is stopped. An empty
// queue backs the worker off for the poll interval.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	log := p.logger.With(slog.Int("worker_id", id))
	log.Debug("starting worker")

	for {
		select {
		case <-p.ctx.Done():
			log.Debug("stopping worker")
			return
		default:
		}

		task, err := p.backend.Reserve(p.ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrNoTask) && !errors.Is(err, context.Canceled) {
				log.Error("failed to reserve task", slog.String("error", err.Error()))
			}
			select {
			case <-p.ctx.Done():
				log.Debug("stopping worker")
				return
			case <-time.After(p.config.PollInterval):
			}
			continue
		}

		p.runTask(task, log)
	}
}

// runTask executes one reserved task under the hard timeout and reports
// the outcome to the backend. The task context is detached from pool
// shutdown so an in-flight task finishes before Stop returns.
func (p *Pool) runTask(task *queue.Task, log *slog.Logger) {
	log = log.With(
		slog.String("task_id", task.ID.String()),
		slog.String("kind", task.Kind))

	handler, ok := p.handlers[task.Kind]
	if !ok {
		log.Error("no handler registered for task kind")
		if err := p.backend.Fail(p.detachedCtx(), task,
			fmt.Errorf("no handler registered for kind %q", task.Kind), false); err != nil {
			log.Error("failed to mark task failed", slog.String("error", err.Error()))
		}
		return
	}

	ctx, cancel := context.WithTimeout(p.detachedCtx(), p.config.HardTimeout)
	defer cancel()

	softDeadline := time.Now().Add(p.config.SoftTimeout)
	ctx = context.WithValue(ctx, softDeadlineKey{}, softDeadline)

	softTimer := time.AfterFunc(p.config.SoftTimeout, func() {
		log.Warn("task passed its soft time limit",
			slog.Duration("soft_timeout", p.config.SoftTimeout),
			slog.Duration("hard_timeout", p.config.HardTimeout))
	})
	defer softTimer.Stop()

	log.Info("processing task", slog.String("lane", string(queue.LaneFor(task.Priority))))
	started := time.Now()

	result, err := handler.Handle(ctx, task)
	if err != nil {
		log.Error("task execution failed",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(started)))
		p.failTask(task, err, log)
		return
	}

	if err := p.backend.Ack(p.detachedCtx(), task, result); err != nil {
		// A task cancelled mid-flight rejects its late ack; that is the
		// expected outcome, not a fault.
		if errors.Is(err, queue.ErrTaskFinished) {
			log.Info("task was cancelled mid-flight, discarding result")
			return
		}
		log.Error("failed to acknowledge task", slog.String("error", err.Error()))
		return
	}

	log.Info("task completed", slog.Duration("elapsed", time.Since(started)))
}

// failTask records a failure, requeueing the task while it has attempts
// left.
func (p *Pool) failTask(task *queue.Task, taskErr error, log *slog.Logger) {
	ctx := p.detachedCtx()

	requeue := false
	if status, err := p.backend.GetStatus(ctx, task.ID); err == nil {
		requeue = status.Attempts < maxTaskAttempts
	}

	if err := p.backend.Fail(ctx, task, taskErr, requeue); err != nil {
		if errors.Is(err, queue.ErrTaskFinished) {
			return
		}
		log.Error("failed to record task failure", slog.String("error", err.Error()))
		return
	}
	if requeue {
		log.Info("task requeued for retry")
	}
}

// detachedCtx bounds backend bookkeeping calls without tying them to the
// pool's shutdown context, so a stopping pool can still finish reporting.
func (p *Pool) detachedCtx() context.Context {
	return context.Background()
}
