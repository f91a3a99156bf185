// Package workers runs engine tasks in the background.
package workers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrPoolClosed is returned by Submit after Shutdown.
var ErrPoolClosed = errors.New("worker pool is shut down")

// DefaultSize is the number of tasks run at once when no size is given.
const DefaultSize = 4

// Task is a unit of background work. It receives the pool's context, not
// the submitter's, so it outlives the request that scheduled it. Every
// submitted task runs exactly once; a task still waiting for a slot when
// Shutdown cancels the pool runs with the cancelled context.
type Task func(ctx context.Context)

// Pool runs submitted tasks with bounded concurrency.
type Pool struct {
	size   int
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	sem    chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPool creates a pool running at most size tasks at once.
func NewPool(size int, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		size:   size,
		logger: logger.With("component", "worker_pool"),
		ctx:    ctx,
		cancel: cancel,
		sem:    make(chan struct{}, size),
	}
}

// Size returns the concurrency limit.
func (p *Pool) Size() int {
	return p.size
}

// Submit schedules task and returns immediately. The task waits for a free
// slot in its own goroutine.
func (p *Pool) Submit(name string, task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		// Acquire semaphore
		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
		case <-p.ctx.Done():
			// Still run it so it can report the cancellation
			p.logger.Debug("task cancelled while queued", "task", name)
		}

		p.logger.Debug("task started", "task", name)
		task(p.ctx)
		p.logger.Debug("task finished", "task", name)
	}()
	return nil
}

// Wait blocks until every submitted task has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Shutdown stops accepting tasks and waits for running ones. When ctx ends
// first, the pool context is cancelled so tasks can abort, and ctx's error
// is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
