package jobs

import (
	"context"
	"errors"
	"sync"

	"shotpack/internal/infra"
)

// ErrQueueFull is returned when the runner's backlog is at capacity.
var ErrQueueFull = errors.New("jobs: run queue full")

// Task is one unit of background work.
type Task func(ctx context.Context)

// Runner executes fire-and-forget tasks on a bounded worker pool. Tasks
// receive the runner's base context, which is cancelled on shutdown.
type Runner struct {
	tasks   chan Task
	workers int
	logger  infra.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewRunner sizes the pool and its backlog.
func NewRunner(workers, queueSize int, logger infra.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Runner{
		tasks:   make(chan Task, queueSize),
		workers: workers,
		logger:  logger,
	}
}

// Start launches the worker goroutines. Idempotent.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go func(worker int) {
			defer r.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task, ok := <-r.tasks:
					if !ok {
						return
					}
					task(ctx)
				}
			}
		}(i)
	}
}

// Enqueue submits a task without blocking. Returns ErrQueueFull when the
// backlog is saturated so callers can surface backpressure.
func (r *Runner) Enqueue(task Task) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return errors.New("jobs: runner stopped")
	}

	select {
	case r.tasks <- task:
		return nil
	default:
		r.logger.Warn().Int("capacity", cap(r.tasks)).Msg("run queue saturated")
		return ErrQueueFull
	}
}

// Stop closes intake and waits for in-flight tasks to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.tasks)
	r.mu.Unlock()

	r.wg.Wait()
}
