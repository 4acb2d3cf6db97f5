package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
)

// scheduleStore implements driven.ScheduleStore.
type scheduleStore struct {
	store *Store
}

var _ driven.ScheduleStore = (*scheduleStore)(nil)

const scheduleColumns = `id, name, cron, namespace, query, transformers, tag, reindex, doc_limit,
	last_run, next_run, last_error, enabled`

// GetSchedule retrieves a schedule by ID.
// Returns nil and no error if the schedule does not exist.
func (s *scheduleStore) GetSchedule(ctx context.Context, id string) (*domain.Schedule, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)

	sched, err := scanSchedule(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil // Per interface: return nil and no error if not found
	}
	if err != nil {
		return nil, err
	}
	return sched, nil
}

// ListSchedules returns all schedules ordered by name.
func (s *scheduleStore) ListSchedules(ctx context.Context) ([]domain.Schedule, error) {
	rows, err := s.store.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying schedules: %w", err)
	}
	defer rows.Close()

	var schedules []domain.Schedule //nolint:prealloc // size unknown from query
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *sched)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schedules: %w", err)
	}

	return schedules, nil
}

// SaveSchedule persists a schedule's state.
// Creates or updates the schedule based on ID.
func (s *scheduleStore) SaveSchedule(ctx context.Context, sched *domain.Schedule) error {
	if sched == nil || sched.ID == "" {
		return domain.ErrInvalidInput
	}

	transformers, err := json.Marshal(sched.Transformers)
	if err != nil {
		return fmt.Errorf("marshalling transformers: %w", err)
	}

	err = busyRetry(func() error {
		_, err := s.store.db.ExecContext(ctx, `
			INSERT INTO schedules (`+scheduleColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				cron = excluded.cron,
				namespace = excluded.namespace,
				query = excluded.query,
				transformers = excluded.transformers,
				tag = excluded.tag,
				reindex = excluded.reindex,
				doc_limit = excluded.doc_limit,
				last_run = excluded.last_run,
				next_run = excluded.next_run,
				last_error = excluded.last_error,
				enabled = excluded.enabled
		`, sched.ID, sched.Name, sched.Cron, sched.Namespace, sched.Query, string(transformers),
			sched.Tag, boolToInt(sched.Reindex), sched.Limit,
			formatNullableTime(sched.LastRun), formatNullableTime(sched.NextRun),
			nullString(sched.LastError), boolToInt(sched.Enabled))
		return err
	})
	if err != nil {
		return fmt.Errorf("saving schedule: %w", err)
	}
	return nil
}

// DeleteSchedule removes a schedule. Its history is removed by cascade.
func (s *scheduleStore) DeleteSchedule(ctx context.Context, id string) error {
	err := busyRetry(func() error {
		_, err := s.store.db.ExecContext(ctx, "DELETE FROM schedules WHERE id = ?", id)
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting schedule: %w", err)
	}
	return nil
}

// RecordRun logs a schedule execution.
func (s *scheduleStore) RecordRun(ctx context.Context, run *domain.ScheduleRun) error {
	if run == nil {
		return domain.ErrInvalidInput
	}

	err := busyRetry(func() error {
		_, err := s.store.db.ExecContext(ctx, `
			INSERT INTO schedule_runs (schedule_id, started_at, ended_at, success, error, tasks_dispatched)
			VALUES (?, ?, ?, ?, ?, ?)
		`, run.ScheduleID,
			formatTime(run.StartedAt),
			formatTime(run.EndedAt),
			boolToInt(run.Success),
			nullString(run.Error),
			run.TasksDispatched)
		return err
	})
	if err != nil {
		return fmt.Errorf("recording schedule run: %w", err)
	}
	return nil
}

// GetRunHistory returns recent runs for a schedule.
// Runs are ordered by start time descending (most recent first).
func (s *scheduleStore) GetRunHistory(ctx context.Context, scheduleID string, limit int) ([]domain.ScheduleRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT schedule_id, started_at, ended_at, success, error, tasks_dispatched
		FROM schedule_runs
		WHERE schedule_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, scheduleID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying run history: %w", err)
	}
	defer rows.Close()

	var runs []domain.ScheduleRun //nolint:prealloc // size unknown from query
	for rows.Next() {
		run, err := scanScheduleRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run history: %w", err)
	}

	return runs, nil
}

// PruneHistory removes old runs beyond the retention limit.
// Keeps the most recent 'keep' runs per schedule.
func (s *scheduleStore) PruneHistory(ctx context.Context, keep int) error {
	err := busyRetry(func() error {
		_, err := s.store.db.ExecContext(ctx, `
			DELETE FROM schedule_runs
			WHERE id NOT IN (
				SELECT id FROM (
					SELECT id, ROW_NUMBER() OVER (PARTITION BY schedule_id ORDER BY started_at DESC, id DESC) as rn
					FROM schedule_runs
				) WHERE rn <= ?
			)
		`, keep)
		return err
	})
	if err != nil {
		return fmt.Errorf("pruning run history: %w", err)
	}
	return nil
}

// ==================== Helper Functions ====================

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSchedule scans a single schedule row.
func scanSchedule(row rowScanner) (*domain.Schedule, error) {
	var sched domain.Schedule
	var transformers string
	var reindex, enabled int
	var lastRun, nextRun, lastError sql.NullString

	if err := row.Scan(&sched.ID, &sched.Name, &sched.Cron, &sched.Namespace, &sched.Query,
		&transformers, &sched.Tag, &reindex, &sched.Limit,
		&lastRun, &nextRun, &lastError, &enabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning schedule: %w", err)
	}

	if err := json.Unmarshal([]byte(transformers), &sched.Transformers); err != nil {
		return nil, fmt.Errorf("decoding transformers of %s: %w", sched.ID, err)
	}
	sched.Reindex = reindex == 1
	sched.LastRun = parseNullableTime(lastRun)
	sched.NextRun = parseNullableTime(nextRun)
	if lastError.Valid {
		sched.LastError = lastError.String
	}
	sched.Enabled = enabled == 1

	return &sched, nil
}

// scanScheduleRun scans a run from *sql.Rows.
func scanScheduleRun(rows *sql.Rows) (*domain.ScheduleRun, error) {
	var run domain.ScheduleRun
	var startedAt, endedAt string
	var success int
	var errMsg sql.NullString

	if err := rows.Scan(&run.ScheduleID, &startedAt, &endedAt,
		&success, &errMsg, &run.TasksDispatched); err != nil {
		return nil, fmt.Errorf("scanning schedule run: %w", err)
	}

	run.StartedAt = parseTime(startedAt)
	run.EndedAt = parseTime(endedAt)
	run.Success = success == 1
	if errMsg.Valid {
		run.Error = errMsg.String
	}

	return &run, nil
}
