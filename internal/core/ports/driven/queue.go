package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/derivex/internal/core/domain"
)

// TaskHandle tracks a submitted task.
type TaskHandle interface {
	// ID returns the task id.
	ID() string

	// Wait blocks until the task reaches a terminal status or ctx ends.
	Wait(ctx context.Context) (domain.TaskReport, error)
}

// TaskQueue is the Queue Gateway. It delivers each task at least once.
type TaskQueue interface {
	// Submit enqueues a task for asynchronous execution.
	Submit(ctx context.Context, task domain.Task) (TaskHandle, error)

	// RunNow executes a task synchronously in the caller's goroutine.
	RunNow(ctx context.Context, task domain.Task) (domain.TaskReport, error)

	// Retry re-enqueues task so that it is delivered after delay.
	Retry(ctx context.Context, task domain.Task, delay time.Duration) error

	// Consume runs the worker pool until ctx is cancelled.
	Consume(ctx context.Context) error
}

// FailureSink receives tasks that exhausted their retry budget.
type FailureSink interface {
	TaskExhausted(ctx context.Context, task domain.Task, report domain.TaskReport) error
}

// DeadLetterStore persists exhausted tasks so they can be inspected and requeued.
type DeadLetterStore interface {
	FailureSink

	// ListDeadLetters returns dead letters, most recent first.
	ListDeadLetters(ctx context.Context, limit int) ([]domain.DeadLetter, error)

	// GetDeadLetter returns a dead letter by task id.
	// Returns domain.ErrNotFound if absent.
	GetDeadLetter(ctx context.Context, taskID string) (*domain.DeadLetter, error)

	// DeleteDeadLetter removes a dead letter.
	DeleteDeadLetter(ctx context.Context, taskID string) error
}
