package driven

import (
	"context"

	"github.com/custodia-labs/derivex/internal/core/domain"
)

// ScheduleStore persists cron schedules and their run history.
type ScheduleStore interface {
	// GetSchedule retrieves a schedule by ID.
	// Returns nil and no error if the schedule does not exist.
	GetSchedule(ctx context.Context, id string) (*domain.Schedule, error)

	// ListSchedules returns all schedules ordered by name.
	ListSchedules(ctx context.Context) ([]domain.Schedule, error)

	// SaveSchedule persists a schedule's state.
	// Creates or updates the schedule based on ID.
	SaveSchedule(ctx context.Context, s *domain.Schedule) error

	// DeleteSchedule removes a schedule and its history.
	DeleteSchedule(ctx context.Context, id string) error

	// RecordRun logs a schedule execution.
	RecordRun(ctx context.Context, run *domain.ScheduleRun) error

	// GetRunHistory returns recent runs for a schedule.
	// Runs are ordered by start time descending (most recent first).
	GetRunHistory(ctx context.Context, scheduleID string, limit int) ([]domain.ScheduleRun, error)

	// PruneHistory removes old runs beyond the retention limit.
	// Keeps the most recent 'keep' runs per schedule.
	PruneHistory(ctx context.Context, keep int) error
}
