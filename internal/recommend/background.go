package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Background runs best-effort tasks off the request path. Callers never wait
// on a task and task failures are only logged. Drain lets tests and shutdown
// wait for the tasks still in flight.
type Background struct {
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	pending atomic.Int64
	mu      sync.Mutex // guards closed and wg.Add against Close
	closed  bool
	timeout time.Duration
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewBackground creates a runner executing at most workers tasks at once,
// each bounded by timeout.
func NewBackground(workers int, timeout time.Duration, logger *slog.Logger) *Background {
	if workers <= 0 {
		workers = 4
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Background{
		sem:     semaphore.NewWeighted(int64(workers)),
		timeout: timeout,
		logger:  logger.With(slog.String("component", "background")),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Go schedules fn and returns immediately. fn receives a context detached
// from any request, bounded by the runner's task timeout.
func (b *Background) Go(name string, fn func(ctx context.Context) error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Warn("background: runner closed, task dropped", slog.String("task", name))
		return
	}
	b.wg.Add(1)
	b.pending.Add(1)
	b.mu.Unlock()
	go func() {
		defer b.wg.Done()
		defer b.pending.Add(-1)

		if err := b.sem.Acquire(b.ctx, 1); err != nil {
			b.logger.Warn("background: task not started", slog.String("task", name), slog.String("error", err.Error()))
			return
		}
		defer b.sem.Release(1)

		if err := b.run(name, fn); err != nil {
			b.logger.Warn("background: task failed", slog.String("task", name), slog.String("error", err.Error()))
		}
	}()
}

func (b *Background) run(name string, fn func(ctx context.Context) error) (err error) {
	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", name, r)
		}
	}()
	return fn(ctx)
}

// Pending returns the number of scheduled tasks that have not finished.
func (b *Background) Pending() int64 { return b.pending.Load() }

// Drain blocks until every scheduled task has finished or ctx is done. Tasks
// scheduled concurrently with Drain may or may not be waited for; Close
// stops new tasks first.
func (b *Background) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background: drain: %w", ctx.Err())
	}
}

// Close stops accepting tasks, drains the pending ones within ctx and then
// cancels whatever is still running.
func (b *Background) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	err := b.Drain(ctx)
	b.cancel()
	return err
}
