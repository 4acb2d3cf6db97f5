package domain

import "time"

// Schedule is a recurring derivation pass run by the worker.
type Schedule struct {
	// ID is the unique identifier for the schedule.
	ID string

	// Name is a human-readable name for the schedule.
	Name string

	// Cron is a five-field cron expression evaluated in UTC.
	Cron string

	// Namespace is the store namespace to select from.
	Namespace string

	// Query selects the documents to re-derive.
	Query string

	// Transformers are registry names, in chain order.
	Transformers []string

	// Tag labels the pass that produced an update.
	Tag string

	// Reindex requests full-document replace instead of partial update.
	Reindex bool

	// Limit caps the number of documents per run. Zero means no limit.
	Limit int

	// LastRun is when the schedule last fired.
	LastRun time.Time

	// NextRun is when the schedule should fire next.
	NextRun time.Time

	// LastError contains the last error message, if any.
	LastError string

	// Enabled indicates whether the schedule is active.
	Enabled bool
}

// ScheduleRun represents the outcome of one firing of a schedule.
type ScheduleRun struct {
	// ScheduleID identifies which schedule fired.
	ScheduleID string

	// StartedAt is when dispatch started.
	StartedAt time.Time

	// EndedAt is when dispatch completed.
	EndedAt time.Time

	// Success indicates whether dispatch completed without error.
	Success bool

	// Error contains the error message if Success is false.
	Error string

	// TasksDispatched is the number of tasks submitted.
	TasksDispatched int
}

// DeadLetter records a task that failed after its last allowed attempt.
type DeadLetter struct {
	Task      Task
	FailedIDs []string
	Errors    []ErrorRecord
	Attempts  int
	FailedAt  time.Time
}
