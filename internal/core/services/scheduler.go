package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
	"github.com/custodia-labs/derivex/internal/core/ports/driving"
	"github.com/custodia-labs/derivex/internal/logger"
)

// Ensure Scheduler implements the interfaces.
var (
	_ driving.Scheduler       = (*Scheduler)(nil)
	_ driving.ScheduleService = (*Scheduler)(nil)
)

// historyRetention is the number of runs kept per schedule.
const historyRetention = 100

// Scheduler fires cron schedules as dispatches.
type Scheduler struct {
	store      driven.ScheduleStore
	dispatcher driving.Dispatcher
	interval   time.Duration
	now        func() time.Time

	mu      sync.Mutex
	running bool
	active  map[string]bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler that checks for due schedules every interval.
func NewScheduler(store driven.ScheduleStore, dispatcher driving.Dispatcher, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		store:      store,
		dispatcher: dispatcher,
		interval:   interval,
		now:        time.Now,
		active:     make(map[string]bool),
	}
}

// Start begins the scheduler loop. This method blocks until Stop is called
// or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	err := s.run(ctx, stopCh)
	s.wg.Wait()
	return err
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	// Wait for running dispatches to complete
	s.wg.Wait()

	return nil
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}) error {
	// Check for due schedules immediately on startup
	s.checkAndRunDue(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDue(ctx)
		}
	}
}

// checkAndRunDue finds and fires schedules that are due.
func (s *Scheduler) checkAndRunDue(ctx context.Context) {
	schedules, err := s.store.ListSchedules(ctx)
	if err != nil {
		logger.Warn("scheduler: failed to list schedules: %v", err)
		return
	}

	now := s.now()
	for i := range schedules {
		if isDue(schedules[i], now) {
			s.runSchedule(ctx, schedules[i])
		}
	}
}

func isDue(sched domain.Schedule, now time.Time) bool {
	return sched.Enabled && (sched.NextRun.IsZero() || !sched.NextRun.After(now))
}

// runSchedule dispatches one schedule in the background. A schedule whose
// previous dispatch is still running is skipped.
func (s *Scheduler) runSchedule(ctx context.Context, sched domain.Schedule) {
	s.mu.Lock()
	if s.active[sched.ID] {
		s.mu.Unlock()
		return
	}
	s.active[sched.ID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.active, sched.ID)
			s.mu.Unlock()
		}()

		// A run that finished since the listing may have moved NextRun.
		current, err := s.store.GetSchedule(ctx, sched.ID)
		if err != nil || current == nil || !isDue(*current, s.now()) {
			return
		}
		sched := *current

		run := &domain.ScheduleRun{ScheduleID: sched.ID, StartedAt: s.now()}

		tasks, err := s.dispatch(ctx, sched)
		run.EndedAt = s.now()
		run.TasksDispatched = tasks
		if err != nil {
			run.Error = err.Error()
			sched.LastError = err.Error()
			logger.Warn("scheduler: schedule %s failed: %v", sched.Name, err)
		} else {
			run.Success = true
			sched.LastError = ""
			logger.Info("scheduler: schedule %s dispatched %d tasks", sched.Name, tasks)
		}

		sched.LastRun = run.StartedAt
		if next, nextErr := gronx.NextTickAfter(sched.Cron, run.EndedAt, false); nextErr == nil {
			sched.NextRun = next
		} else {
			sched.Enabled = false
			sched.LastError = fmt.Sprintf("%v: %v", domain.ErrInvalidSchedule, nextErr)
		}

		if saveErr := s.store.SaveSchedule(ctx, &sched); saveErr != nil {
			logger.Warn("scheduler: failed to save schedule %s: %v", sched.ID, saveErr)
		}

		// Record run for history
		if recordErr := s.store.RecordRun(ctx, run); recordErr != nil {
			logger.Warn("scheduler: failed to record run for %s: %v", sched.ID, recordErr)
		}

		if pruneErr := s.store.PruneHistory(ctx, historyRetention); pruneErr != nil {
			logger.Warn("scheduler: failed to prune history: %v", pruneErr)
		}
	}()
}

func (s *Scheduler) dispatch(ctx context.Context, sched domain.Schedule) (int, error) {
	q, err := domain.ParseQuery(sched.Query)
	if err != nil {
		return 0, err
	}
	report, err := s.dispatcher.Dispatch(ctx, driving.DispatchRequest{
		Namespace:    sched.Namespace,
		Query:        q,
		Transformers: sched.Transformers,
		Tag:          sched.Tag,
		Limit:        sched.Limit,
		Reindex:      sched.Reindex,
	})
	if report == nil {
		return 0, err
	}
	return report.Batches, err
}

// Add validates and stores a schedule, computing its next run.
func (s *Scheduler) Add(ctx context.Context, sched domain.Schedule) (*domain.Schedule, error) {
	if sched.Name == "" {
		return nil, fmt.Errorf("%w: schedule name is required", domain.ErrInvalidInput)
	}
	if !gronx.IsValid(sched.Cron) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidSchedule, sched.Cron)
	}
	if _, err := domain.ParseQuery(sched.Query); err != nil {
		return nil, err
	}
	if sched.ID == "" {
		sched.ID = uuid.NewString()
	}

	next, err := gronx.NextTickAfter(sched.Cron, s.now(), false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSchedule, err)
	}
	sched.NextRun = next
	sched.Enabled = true

	if err := s.store.SaveSchedule(ctx, &sched); err != nil {
		return nil, fmt.Errorf("save schedule: %w", err)
	}
	return &sched, nil
}

// List returns all schedules.
func (s *Scheduler) List(ctx context.Context) ([]domain.Schedule, error) {
	return s.store.ListSchedules(ctx)
}

// Remove deletes a schedule.
func (s *Scheduler) Remove(ctx context.Context, id string) error {
	existing, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return domain.ErrNotFound
	}
	return s.store.DeleteSchedule(ctx, id)
}

// History returns recent runs of a schedule.
func (s *Scheduler) History(ctx context.Context, id string, limit int) ([]domain.ScheduleRun, error) {
	return s.store.GetRunHistory(ctx, id, limit)
}
