package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
	"github.com/custodia-labs/derivex/internal/core/ports/driving"
)

// Ensure FailureService implements the interface.
var _ driving.FailureService = (*FailureService)(nil)

// FailureService inspects and requeues dead letters.
type FailureService struct {
	letters driven.DeadLetterStore
	queue   driven.TaskQueue
}

// NewFailureService creates a failure service.
func NewFailureService(letters driven.DeadLetterStore, queue driven.TaskQueue) *FailureService {
	return &FailureService{letters: letters, queue: queue}
}

// List returns dead letters, most recent first.
func (s *FailureService) List(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
	return s.letters.ListDeadLetters(ctx, limit)
}

// Requeue submits a fresh task over the ids that were still failing.
// When the failure was task-fatal every id of the original batch is requeued.
func (s *FailureService) Requeue(ctx context.Context, taskID string) (string, error) {
	letter, err := s.letters.GetDeadLetter(ctx, taskID)
	if err != nil {
		return "", err
	}

	ids := letter.FailedIDs
	if len(ids) == 0 {
		ids = letter.Task.Batch.IDs()
	}
	batch, err := domain.NewBatch(ids)
	if err != nil {
		return "", err
	}

	task := letter.Task
	task.ID = uuid.NewString()
	task.Batch = batch
	task.Attempt = 0
	task.CreatedAt = time.Now().UTC()

	if _, err := s.queue.Submit(ctx, task); err != nil {
		return "", fmt.Errorf("submit task: %w", err)
	}
	if err := s.letters.DeleteDeadLetter(ctx, taskID); err != nil {
		return task.ID, fmt.Errorf("delete dead letter: %w", err)
	}
	return task.ID, nil
}
