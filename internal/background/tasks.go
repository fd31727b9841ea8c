package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type task struct {
	name string
	fn   func(context.Context)
}

// Runner executes fire-and-forget work on a fixed pool of workers fed by a
// bounded queue. Submit never blocks a request path: when the queue is full
// the work is dropped and the caller is told so. On Stop the queue drains
// before the workers exit.
type Runner struct {
	queue       chan task
	wg          sync.WaitGroup
	mu          sync.RWMutex
	stopped     bool
	taskTimeout time.Duration
	logger      *slog.Logger
}

// NewRunner creates a runner with the given worker count and queue depth.
// Non-positive arguments fall back to 4 workers, a queue of 256, and a
// 30-second per-task timeout.
func NewRunner(workers, queueSize int, taskTimeout time.Duration, logger *slog.Logger) *Runner {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if taskTimeout <= 0 {
		taskTimeout = 30 * time.Second
	}

	r := &Runner{
		queue:       make(chan task, queueSize),
		taskTimeout: taskTimeout,
		logger:      logger,
	}
	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.work()
	}
	return r
}

// Submit queues fn for execution. Returns false when the runner is stopped
// or the queue is full; callers must treat the work as best-effort.
func (r *Runner) Submit(name string, fn func(context.Context)) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.stopped {
		return false
	}

	select {
	case r.queue <- task{name: name, fn: fn}:
		return true
	default:
		r.logger.Warn("task queue full, dropping work", slog.String("task", name))
		return false
	}
}

// Stop rejects further submissions, lets the queued work finish, and waits
// for the workers to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		close(r.queue)
	}
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Runner) work() {
	defer r.wg.Done()
	for t := range r.queue {
		r.run(t)
	}
}

func (r *Runner) run(t task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("background task panicked",
				slog.String("task", t.name),
				slog.Any("panic", rec))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.taskTimeout)
	defer cancel()

	t.fn(ctx)
}
