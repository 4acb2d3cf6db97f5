package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
)

// Ensure DeadLetterStore implements the interface.
var _ driven.DeadLetterStore = (*DeadLetterStore)(nil)

// DeadLetterStore keeps exhausted tasks in memory.
type DeadLetterStore struct {
	mu      sync.RWMutex
	letters map[string]domain.DeadLetter
	now     func() time.Time
}

// NewDeadLetterStore creates a new in-memory dead letter store.
func NewDeadLetterStore() *DeadLetterStore {
	return &DeadLetterStore{letters: make(map[string]domain.DeadLetter), now: time.Now}
}

// TaskExhausted records an exhausted task.
func (s *DeadLetterStore) TaskExhausted(_ context.Context, task domain.Task, report domain.TaskReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters[task.ID] = domain.DeadLetter{
		Task:      task,
		FailedIDs: report.Outcome.FailedIDs(),
		Errors:    report.Outcome.Errors,
		Attempts:  task.Attempt + 1,
		FailedAt:  s.now().UTC(),
	}
	return nil
}

// ListDeadLetters returns dead letters, most recent first.
func (s *DeadLetterStore) ListDeadLetters(_ context.Context, limit int) ([]domain.DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DeadLetter, 0, len(s.letters))
	for _, l := range s.letters {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FailedAt.After(out[j].FailedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetDeadLetter returns a dead letter by task id.
func (s *DeadLetterStore) GetDeadLetter(_ context.Context, taskID string) (*domain.DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.letters[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &l, nil
}

// DeleteDeadLetter removes a dead letter.
func (s *DeadLetterStore) DeleteDeadLetter(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.letters[taskID]; !ok {
		return domain.ErrNotFound
	}
	delete(s.letters, taskID)
	return nil
}
