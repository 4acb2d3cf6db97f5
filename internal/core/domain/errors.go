package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidQuery indicates a selector that cannot be parsed.
	ErrInvalidQuery = errors.New("invalid query")

	// Pipeline Errors.

	// ErrUnknownTransformer indicates a transformer name with no registered builder.
	ErrUnknownTransformer = errors.New("unknown transformer")

	// ErrVersionConflict indicates a write lost an optimistic concurrency race
	// after exhausting its retry-on-conflict budget.
	ErrVersionConflict = errors.New("version conflict")

	// ErrRetriesExhausted indicates a task still failed after its last allowed attempt.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// Queue Errors.

	// ErrQueueClosed indicates the task queue no longer accepts work.
	ErrQueueClosed = errors.New("task queue closed")

	// Scheduler Errors.

	// ErrInvalidSchedule indicates a cron expression that cannot be evaluated.
	ErrInvalidSchedule = errors.New("invalid schedule")
)
