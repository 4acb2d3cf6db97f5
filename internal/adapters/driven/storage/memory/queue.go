package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
	"github.com/custodia-labs/derivex/internal/core/ports/driving"
	"github.com/custodia-labs/derivex/internal/logger"
	"github.com/custodia-labs/derivex/internal/metrics"
)

// Ensure Queue implements the interface.
var _ driven.TaskQueue = (*Queue)(nil)

type queued struct {
	task domain.Task
	due  time.Time
}

// Queue is an in-process task queue. Tasks are lost when the process exits,
// which makes it suitable for ephemeral runs and tests.
type Queue struct {
	handler  driving.TaskHandler
	settings *domain.SettingsProvider
	now      func() time.Time

	mu       sync.Mutex
	pending  []queued
	inflight int
	handles  map[string]*handle
	closed   bool
	wake     chan struct{}
	idle     *sync.Cond
}

// NewQueue creates a queue delivering tasks to handler.
func NewQueue(handler driving.TaskHandler, settings *domain.SettingsProvider) *Queue {
	q := &Queue{
		handler:  handler,
		settings: settings,
		now:      time.Now,
		handles:  make(map[string]*handle),
		wake:     make(chan struct{}, 1),
	}
	q.idle = sync.NewCond(&q.mu)
	return q
}

// Submit enqueues a task for immediate delivery.
func (q *Queue) Submit(_ context.Context, task domain.Task) (driven.TaskHandle, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, domain.ErrQueueClosed
	}
	h, ok := q.handles[task.ID]
	if !ok {
		h = newHandle(task.ID)
		q.handles[task.ID] = h
	}
	q.push(queued{task: task, due: q.now()})
	return h, nil
}

// RunNow executes a task synchronously.
func (q *Queue) RunNow(ctx context.Context, task domain.Task) (domain.TaskReport, error) {
	return q.handler.RunNow(ctx, task)
}

// Retry re-enqueues task for delivery after delay.
func (q *Queue) Retry(_ context.Context, task domain.Task, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return domain.ErrQueueClosed
	}
	q.push(queued{task: task, due: q.now().Add(delay)})
	return nil
}

// push appends an item and wakes the consumer. Callers hold the lock.
func (q *Queue) push(item queued) {
	q.pending = append(q.pending, item)
	metrics.SetQueueDepth(len(q.pending))
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Consume delivers due tasks to a pool of Settings.Concurrency workers
// until ctx is cancelled, then waits for in-flight deliveries.
func (q *Queue) Consume(ctx context.Context) error {
	p := pool.New().WithContext(ctx).WithMaxGoroutines(q.settings.Load().Concurrency)
	defer func() { _ = p.Wait() }()

	for {
		item, wait, ok := q.next()
		if ok {
			p.Go(func(ctx context.Context) error {
				q.deliver(ctx, item)
				return nil
			})
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-q.wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// next pops the earliest due task. When none is due it returns how long to wait.
func (q *Queue) next() (queued, time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	wait := time.Hour
	for i, item := range q.pending {
		if !item.due.After(now) {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			q.inflight++
			metrics.SetQueueDepth(len(q.pending))
			return item, 0, true
		}
		wait = min(wait, item.due.Sub(now))
	}
	return queued{}, wait, false
}

func (q *Queue) deliver(ctx context.Context, item queued) {
	report, err := q.handler.Handle(ctx, item.task)

	q.mu.Lock()
	defer func() {
		q.inflight--
		q.idle.Broadcast()
		q.mu.Unlock()
	}()

	switch {
	case err != nil:
		// Interrupted deliveries go back to the queue.
		q.pending = append(q.pending, item)
	case report.Status == domain.TaskRetrying:
		q.push(queued{task: item.task.NextAttempt(), due: q.now().Add(report.RetryAfter)})
	default:
		if h, ok := q.handles[item.task.ID]; ok {
			h.complete(report)
			delete(q.handles, item.task.ID)
		}
	}
	logger.Debug("task %s attempt %d: %s", item.task.ID, item.task.Attempt, report.Status)
}

// Pending returns the number of tasks waiting for delivery.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain blocks until no task is pending or in flight. Consume must be
// running in another goroutine for Drain to return.
func (q *Queue) Drain(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.idle.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) > 0 || q.inflight > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.idle.Wait()
	}
	return nil
}

// Close stops accepting new tasks.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// handle tracks one submitted task until it reaches a terminal status.
type handle struct {
	id     string
	done   chan struct{}
	report domain.TaskReport
}

func newHandle(id string) *handle {
	return &handle{id: id, done: make(chan struct{})}
}

func (h *handle) complete(report domain.TaskReport) {
	h.report = report
	close(h.done)
}

// ID returns the task id.
func (h *handle) ID() string {
	return h.id
}

// Wait blocks until the task succeeds or fails terminally.
func (h *handle) Wait(ctx context.Context) (domain.TaskReport, error) {
	select {
	case <-ctx.Done():
		return domain.TaskReport{}, ctx.Err()
	case <-h.done:
		return h.report, nil
	}
}
