// Package results carries progress of asynchronous per-service start and
// stop tasks back to the caller.
package results

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrQueueDrained is returned by Next once the final result was consumed.
var ErrQueueDrained = errors.New("result queue drained")

// =============================================================================
// Result Values
// =============================================================================

// StartStopResultStep is one progress step of a start or stop task.
type StartStopResultStep struct {
	Current int
	Total   int
	Text    string
}

func (s StartStopResultStep) String() string {
	if s.Total > 0 {
		return fmt.Sprintf("[%d/%d] %s", s.Current, s.Total, s.Text)
	}
	return s.Text
}

// ResultError ends a queue unsuccessfully.
type ResultError struct {
	Message string
	Details string
	Cause   error
}

func (e *ResultError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ResultError) Unwrap() error {
	return e.Cause
}

// NewResultError creates a ResultError.
func NewResultError(message string, cause error, details string) *ResultError {
	return &ResultError{Message: message, Cause: cause, Details: details}
}

// Result is one item of a queue. The last item has Finished set and
// carries either the final step or an error.
type Result struct {
	Step     *StartStopResultStep
	Err      *ResultError
	Finished bool
}

// =============================================================================
// ResultQueue
// =============================================================================

// ResultQueue is an unbounded ordered queue of results for one service.
// It is ended exactly once; anything pushed afterwards is dropped.
type ResultQueue struct {
	mu      sync.Mutex
	items   []Result
	read    int
	ended   bool
	changed chan struct{}
}

// NewResultQueue creates an empty queue.
func NewResultQueue() *ResultQueue {
	return &ResultQueue{changed: make(chan struct{})}
}

// Put adds a progress step.
func (q *ResultQueue) Put(step StartStopResultStep) {
	q.push(Result{Step: &step})
}

// End ends the queue successfully with a final step.
func (q *ResultQueue) End(step StartStopResultStep) {
	q.push(Result{Step: &step, Finished: true})
}

// EndWithError ends the queue with an error.
func (q *ResultQueue) EndWithError(err *ResultError) {
	q.push(Result{Err: err, Finished: true})
}

// Ended reports whether the final result was pushed.
func (q *ResultQueue) Ended() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ended
}

func (q *ResultQueue) push(r Result) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ended {
		return
	}
	q.items = append(q.items, r)
	q.ended = r.Finished
	close(q.changed)
	q.changed = make(chan struct{})
}

// Next blocks until a result is available. It returns ErrQueueDrained after
// the final result was consumed, or the context error.
func (q *ResultQueue) Next(ctx context.Context) (Result, error) {
	for {
		q.mu.Lock()
		if q.read < len(q.items) {
			r := q.items[q.read]
			q.read++
			q.mu.Unlock()
			return r, nil
		}
		if q.ended {
			q.mu.Unlock()
			return Result{}, ErrQueueDrained
		}
		changed := q.changed
		q.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
}

// Results returns a channel yielding the remaining results. It is closed
// after the final result or when ctx ends.
func (q *ResultQueue) Results(ctx context.Context) <-chan Result {
	out := make(chan Result)
	go func() {
		defer close(out)
		for {
			r, err := q.Next(ctx)
			if err != nil {
				return
			}
			select {
			case out <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// =============================================================================
// MultiResultQueue
// =============================================================================

// NamedResult is a result tagged with its service.
type NamedResult struct {
	Service string
	Result
}

// MultiResultQueue groups the queues of one start or stop request.
type MultiResultQueue struct {
	queues map[string]*ResultQueue
}

// NewMultiResultQueue creates a queue group.
func NewMultiResultQueue(queues map[string]*ResultQueue) *MultiResultQueue {
	if queues == nil {
		queues = make(map[string]*ResultQueue)
	}
	return &MultiResultQueue{queues: queues}
}

// Queue returns the queue of a service.
func (m *MultiResultQueue) Queue(service string) (*ResultQueue, bool) {
	q, ok := m.queues[service]
	return q, ok
}

// Services returns the service names in sorted order.
func (m *MultiResultQueue) Services() []string {
	names := make([]string, 0, len(m.queues))
	for name := range m.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stream merges all queues into one channel, closed once every queue has
// ended or ctx is done.
func (m *MultiResultQueue) Stream(ctx context.Context) <-chan NamedResult {
	out := make(chan NamedResult)
	var wg sync.WaitGroup
	for name, q := range m.queues {
		wg.Add(1)
		go func(name string, q *ResultQueue) {
			defer wg.Done()
			for r := range q.Results(ctx) {
				select {
				case out <- NamedResult{Service: name, Result: r}:
				case <-ctx.Done():
					return
				}
			}
		}(name, q)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// Wait drains every queue and returns the outcome per service: nil when
// it ended successfully, its error otherwise.
func (m *MultiResultQueue) Wait(ctx context.Context) (map[string]error, error) {
	outcome := make(map[string]error, len(m.queues))
	for r := range m.Stream(ctx) {
		if !r.Finished {
			continue
		}
		if r.Err != nil {
			outcome[r.Service] = r.Err
		} else {
			outcome[r.Service] = nil
		}
	}
	if err := ctx.Err(); err != nil {
		return outcome, err
	}
	return outcome, nil
}
