package driving

import (
	"context"

	"github.com/custodia-labs/derivex/internal/core/domain"
)

// Scheduler fires cron schedules as dispatches.
type Scheduler interface {
	// Start begins running scheduled dispatches.
	// Blocks until context is cancelled or an error occurs.
	Start(ctx context.Context) error

	// Stop gracefully stops all running dispatches.
	Stop() error
}

// ScheduleService manages cron schedules.
type ScheduleService interface {
	// Add validates and stores a schedule, computing its next run.
	Add(ctx context.Context, s domain.Schedule) (*domain.Schedule, error)

	// List returns all schedules.
	List(ctx context.Context) ([]domain.Schedule, error)

	// Remove deletes a schedule.
	Remove(ctx context.Context, id string) error

	// History returns recent runs of a schedule.
	History(ctx context.Context, id string, limit int) ([]domain.ScheduleRun, error)
}
