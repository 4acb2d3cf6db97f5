package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
)

// Ensure ScheduleStore implements the interface.
var _ driven.ScheduleStore = (*ScheduleStore)(nil)

// ScheduleStore is an in-memory implementation of driven.ScheduleStore.
type ScheduleStore struct {
	mu        sync.RWMutex
	schedules map[string]domain.Schedule
	runs      map[string][]domain.ScheduleRun
}

// NewScheduleStore creates a new in-memory schedule store.
func NewScheduleStore() *ScheduleStore {
	return &ScheduleStore{
		schedules: make(map[string]domain.Schedule),
		runs:      make(map[string][]domain.ScheduleRun),
	}
}

// GetSchedule retrieves a schedule by ID. Returns nil if it does not exist.
func (s *ScheduleStore) GetSchedule(_ context.Context, id string) (*domain.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.schedules[id]
	if !ok {
		return nil, nil
	}
	return &sched, nil
}

// ListSchedules returns all schedules ordered by name.
func (s *ScheduleStore) ListSchedules(_ context.Context) ([]domain.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		out = append(out, sched)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SaveSchedule creates or updates a schedule.
func (s *ScheduleStore) SaveSchedule(_ context.Context, sched *domain.Schedule) error {
	if sched == nil || sched.ID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sched.ID] = *sched
	return nil
}

// DeleteSchedule removes a schedule and its history.
func (s *ScheduleStore) DeleteSchedule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.schedules, id)
	delete(s.runs, id)
	return nil
}

// RecordRun logs a schedule execution.
func (s *ScheduleStore) RecordRun(_ context.Context, run *domain.ScheduleRun) error {
	if run == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ScheduleID] = append(s.runs[run.ScheduleID], *run)
	return nil
}

// GetRunHistory returns recent runs, most recent first.
func (s *ScheduleStore) GetRunHistory(_ context.Context, scheduleID string, limit int) ([]domain.ScheduleRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := s.runs[scheduleID]
	out := make([]domain.ScheduleRun, 0, len(runs))
	for i := len(runs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, runs[i])
	}
	return out, nil
}

// PruneHistory keeps the most recent keep runs per schedule.
func (s *ScheduleStore) PruneHistory(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, runs := range s.runs {
		if len(runs) > keep {
			s.runs[id] = append([]domain.ScheduleRun(nil), runs[len(runs)-keep:]...)
		}
	}
	return nil
}
