package driving

import (
	"context"

	"github.com/custodia-labs/derivex/internal/core/domain"
)

// BatchProcessor runs a task's transformer chain over its batch.
type BatchProcessor interface {
	// Process fetches, transforms and writes one batch. Per-document failures
	// are reported in the outcome; the error is reserved for task-fatal problems.
	Process(ctx context.Context, task domain.Task) (domain.BatchOutcome, error)
}

// TaskHandler executes delivered tasks and decides their fate.
type TaskHandler interface {
	// Handle executes one delivery and reports whether it succeeded, should
	// be retried or failed terminally. Queue adapters act on the report.
	Handle(ctx context.Context, task domain.Task) (domain.TaskReport, error)

	// RunNow executes a task synchronously, retrying inline until it
	// succeeds or exhausts its budget.
	RunNow(ctx context.Context, task domain.Task) (domain.TaskReport, error)
}
