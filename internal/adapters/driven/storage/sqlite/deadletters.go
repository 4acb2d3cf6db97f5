package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
)

// deadLetterStore implements driven.DeadLetterStore.
type deadLetterStore struct {
	store *Store
}

var _ driven.DeadLetterStore = (*deadLetterStore)(nil)

// TaskExhausted records an exhausted task, replacing any earlier letter for it.
func (s *deadLetterStore) TaskExhausted(ctx context.Context, task domain.Task, report domain.TaskReport) error {
	taskJSON, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshalling task: %w", err)
	}
	failedIDs, err := json.Marshal(report.Outcome.FailedIDs())
	if err != nil {
		return fmt.Errorf("marshalling failed ids: %w", err)
	}
	errs := report.Outcome.Errors
	if errs == nil {
		errs = []domain.ErrorRecord{}
	}
	errorsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("marshalling errors: %w", err)
	}

	err = busyRetry(func() error {
		_, err := s.store.stbl.Insert("dead_letters").
			Columns("task_id", "task", "failed_ids", "errors", "attempts", "failed_at").
			Values(task.ID, string(taskJSON), string(failedIDs), string(errorsJSON), task.Attempt+1, formatTime(s.store.now())).
			Suffix("ON CONFLICT(task_id) DO UPDATE SET task = excluded.task, failed_ids = excluded.failed_ids, errors = excluded.errors, attempts = excluded.attempts, failed_at = excluded.failed_at").
			ExecContext(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("saving dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns dead letters, most recent first.
func (s *deadLetterStore) ListDeadLetters(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
	b := s.selectLetters().OrderBy("failed_at DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	rows, err := b.QueryContext(ctx)
	if err != nil {
		return nil, handleSQLError(err)
	}
	defer rows.Close()

	var letters []domain.DeadLetter //nolint:prealloc // size unknown from query
	for rows.Next() {
		letter, err := scanDeadLetter(rows)
		if err != nil {
			return nil, err
		}
		letters = append(letters, *letter)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dead letters: %w", err)
	}
	return letters, nil
}

// GetDeadLetter returns a dead letter by task id.
func (s *deadLetterStore) GetDeadLetter(ctx context.Context, taskID string) (*domain.DeadLetter, error) {
	row := s.selectLetters().Where(sq.Eq{"task_id": taskID}).QueryRowContext(ctx)
	letter, err := scanDeadLetter(row)
	if err != nil {
		return nil, err
	}
	return letter, nil
}

// DeleteDeadLetter removes a dead letter.
func (s *deadLetterStore) DeleteDeadLetter(ctx context.Context, taskID string) error {
	var affected int64
	err := busyRetry(func() error {
		res, err := s.store.stbl.Delete("dead_letters").Where(sq.Eq{"task_id": taskID}).ExecContext(ctx)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting dead letter: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *deadLetterStore) selectLetters() sq.SelectBuilder {
	return s.store.stbl.Select("task", "failed_ids", "errors", "attempts", "failed_at").From("dead_letters")
}

func scanDeadLetter(row rowScanner) (*domain.DeadLetter, error) {
	var letter domain.DeadLetter
	var taskJSON, failedIDs, errorsJSON, failedAt string
	if err := row.Scan(&taskJSON, &failedIDs, &errorsJSON, &letter.Attempts, &failedAt); err != nil {
		return nil, handleSQLError(err)
	}
	if err := json.Unmarshal([]byte(taskJSON), &letter.Task); err != nil {
		return nil, fmt.Errorf("decoding task: %w", err)
	}
	if err := json.Unmarshal([]byte(failedIDs), &letter.FailedIDs); err != nil {
		return nil, fmt.Errorf("decoding failed ids: %w", err)
	}
	if err := json.Unmarshal([]byte(errorsJSON), &letter.Errors); err != nil {
		return nil, fmt.Errorf("decoding errors: %w", err)
	}
	letter.FailedAt = parseTime(failedAt)
	return &letter, nil
}
