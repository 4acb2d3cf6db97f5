package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/sourcegraph/conc/pool"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
	"github.com/custodia-labs/derivex/internal/core/ports/driving"
	"github.com/custodia-labs/derivex/internal/logger"
	"github.com/custodia-labs/derivex/internal/metrics"
)

// DefaultLease is how long a claimed task may run before another worker
// assumes its owner died and delivers it again.
const DefaultLease = 15 * time.Minute

// Ensure Queue implements the interface.
var _ driven.TaskQueue = (*Queue)(nil)

// Queue is a durable task queue stored in the tasks table. Several worker
// processes may consume the same database; each task is delivered at least once.
type Queue struct {
	store    *Store
	handler  driving.TaskHandler
	settings *domain.SettingsProvider
	lease    time.Duration

	inflight atomic.Int64
	wake     chan struct{}
}

func newQueue(store *Store, handler driving.TaskHandler, settings *domain.SettingsProvider) *Queue {
	return &Queue{
		store:    store,
		handler:  handler,
		settings: settings,
		lease:    DefaultLease,
		wake:     make(chan struct{}, 1),
	}
}

// Submit persists a task for delivery as soon as a worker is free.
func (q *Queue) Submit(ctx context.Context, task domain.Task) (driven.TaskHandle, error) {
	if err := q.enqueue(ctx, task, q.store.now()); err != nil {
		return nil, err
	}
	return &taskHandle{queue: q, id: task.ID}, nil
}

// RunNow executes a task synchronously without persisting it.
func (q *Queue) RunNow(ctx context.Context, task domain.Task) (domain.TaskReport, error) {
	return q.handler.RunNow(ctx, task)
}

// Retry persists task for delivery after delay.
func (q *Queue) Retry(ctx context.Context, task domain.Task, delay time.Duration) error {
	return q.enqueue(ctx, task, q.store.now().Add(delay))
}

func (q *Queue) enqueue(ctx context.Context, task domain.Task, availableAt time.Time) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encoding task %s: %w", task.ID, err)
	}
	now := formatTime(q.store.now())

	err = busyRetry(func() error {
		_, err := q.store.stbl.Insert("tasks").
			Columns("id", "payload", "status", "attempt", "available_at", "updated_at").
			Values(task.ID, string(payload), string(domain.TaskPending), task.Attempt, formatTime(availableAt), now).
			Suffix(`ON CONFLICT(id) DO UPDATE SET
				payload = excluded.payload,
				status = excluded.status,
				attempt = excluded.attempt,
				available_at = excluded.available_at,
				claimed_at = NULL,
				report = NULL,
				updated_at = excluded.updated_at`).
			ExecContext(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("enqueueing task %s: %w", task.ID, err)
	}
	q.signal()
	return nil
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Consume claims due tasks and delivers them to a pool of
// Settings.Concurrency workers until ctx is cancelled.
func (q *Queue) Consume(ctx context.Context) error {
	settings := q.settings.Load()
	concurrency := int64(settings.Concurrency)
	poll := settings.PollInterval
	if poll <= 0 {
		poll = time.Second
	}

	p := pool.New().WithContext(ctx).WithMaxGoroutines(settings.Concurrency)
	defer func() { _ = p.Wait() }()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if err := q.reclaim(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("queue: reclaiming stale tasks: %v", err)
		}

		if free := concurrency - q.inflight.Load(); free > 0 {
			tasks, err := q.claim(ctx, int(free))
			switch {
			case ctx.Err() != nil:
				return nil
			case err != nil:
				logger.Warn("queue: claiming tasks: %v", err)
			}
			for _, task := range tasks {
				q.inflight.Add(1)
				p.Go(func(ctx context.Context) error {
					defer func() {
						q.inflight.Add(-1)
						q.signal()
					}()
					q.deliver(ctx, task)
					return nil
				})
			}
			q.reportDepth(ctx)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-q.wake:
		case <-ticker.C:
		}
	}
}

// claim marks up to n due tasks as running and returns them. Tasks whose
// payload no longer decodes are marked failed so they are not reclaimed.
func (q *Queue) claim(ctx context.Context, n int) ([]domain.Task, error) {
	now := formatTime(q.store.now())
	var tasks []domain.Task
	var broken []domain.TaskReport

	err := busyRetry(func() error {
		tasks, broken = tasks[:0], broken[:0]
		rows, err := q.store.db.QueryContext(ctx, `
			UPDATE tasks SET status = ?, claimed_at = ?, updated_at = ?
			WHERE id IN (
				SELECT id FROM tasks
				WHERE status = ? AND available_at <= ?
				ORDER BY available_at
				LIMIT ?
			)
			RETURNING id, payload, attempt
		`, string(domain.TaskRunning), now, now, string(domain.TaskPending), now, n)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var id, payload string
			var attempt int
			if err := rows.Scan(&id, &payload, &attempt); err != nil {
				return err
			}
			var task domain.Task
			if err := json.Unmarshal([]byte(payload), &task); err != nil {
				broken = append(broken, domain.TaskReport{
					TaskID:  id,
					Attempt: attempt,
					Status:  domain.TaskFailed,
					Error:   fmt.Sprintf("undecodable task payload: %v", err),
				})
				continue
			}
			task.Attempt = attempt
			tasks = append(tasks, task)
		}
		return rows.Err()
	})

	for _, report := range broken {
		logger.Warn("queue: failing task %s: %s", report.TaskID, report.Error)
		if err := q.finish(context.WithoutCancel(ctx), report.TaskID, report); err != nil {
			logger.Error("queue: failing task %s: %v", report.TaskID, err)
		}
	}
	return tasks, err
}

// reclaim returns tasks whose lease expired to the pending state.
func (q *Queue) reclaim(ctx context.Context) error {
	cutoff := formatTime(q.store.now().Add(-q.lease))
	return busyRetry(func() error {
		_, err := q.store.stbl.Update("tasks").
			Set("status", string(domain.TaskPending)).
			Set("claimed_at", nil).
			Where(sq.Eq{"status": string(domain.TaskRunning)}).
			Where(sq.Lt{"claimed_at": cutoff}).
			ExecContext(ctx)
		return err
	})
}

func (q *Queue) deliver(ctx context.Context, task domain.Task) {
	report, err := q.handler.Handle(ctx, task)

	// Bookkeeping must survive shutdown so the task is not left claimed.
	bg := context.WithoutCancel(ctx)
	switch {
	case err != nil:
		if err := q.enqueue(bg, task, q.store.now()); err != nil {
			logger.Error("queue: releasing task %s: %v", task.ID, err)
		}
	case report.Status == domain.TaskRetrying:
		if err := q.Retry(bg, task.NextAttempt(), report.RetryAfter); err != nil {
			logger.Error("queue: scheduling retry of task %s: %v", task.ID, err)
		}
	default:
		if err := q.finish(bg, task.ID, report); err != nil {
			logger.Error("queue: completing task %s: %v", task.ID, err)
		}
	}
	logger.Debug("task %s attempt %d: %s", task.ID, task.Attempt, report.Status)
}

func (q *Queue) finish(ctx context.Context, id string, report domain.TaskReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return busyRetry(func() error {
		_, err := q.store.stbl.Update("tasks").
			Set("status", string(report.Status)).
			Set("report", string(data)).
			Set("claimed_at", nil).
			Set("updated_at", formatTime(q.store.now())).
			Where(sq.Eq{"id": id}).
			ExecContext(ctx)
		return err
	})
}

func (q *Queue) reportDepth(ctx context.Context) {
	stats, err := q.Stats(ctx)
	if err != nil {
		return
	}
	metrics.SetQueueDepth(stats[domain.TaskPending])
}

// Stats counts tasks by status.
func (q *Queue) Stats(ctx context.Context) (map[domain.TaskStatus]int, error) {
	rows, err := q.store.stbl.Select("status", "COUNT(*)").From("tasks").GroupBy("status").QueryContext(ctx)
	if err != nil {
		return nil, handleSQLError(err)
	}
	defer rows.Close()

	stats := make(map[domain.TaskStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning task stats: %w", err)
		}
		stats[domain.TaskStatus(status)] = n
	}
	return stats, rows.Err()
}

// Purge deletes finished tasks last updated before cutoff.
func (q *Queue) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := busyRetry(func() error {
		res, err := q.store.stbl.Delete("tasks").
			Where(sq.Eq{"status": []string{string(domain.TaskSucceeded), string(domain.TaskFailed)}}).
			Where(sq.Lt{"updated_at": formatTime(cutoff)}).
			ExecContext(ctx)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// report returns the status of a task and, once terminal, its final report.
func (q *Queue) report(ctx context.Context, id string) (domain.TaskStatus, *domain.TaskReport, error) {
	var status string
	var raw sql.NullString
	err := q.store.stbl.Select("status", "report").From("tasks").Where(sq.Eq{"id": id}).
		QueryRowContext(ctx).Scan(&status, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return "", nil, handleSQLError(err)
	}
	if !raw.Valid {
		return domain.TaskStatus(status), nil, nil
	}
	var report domain.TaskReport
	if err := json.Unmarshal([]byte(raw.String), &report); err != nil {
		return "", nil, fmt.Errorf("decoding report of %s: %w", id, err)
	}
	return domain.TaskStatus(status), &report, nil
}

// taskHandle polls the tasks table for a terminal status.
type taskHandle struct {
	queue *Queue
	id    string
}

// ID returns the task id.
func (h *taskHandle) ID() string {
	return h.id
}

// Wait blocks until the task succeeds or fails terminally.
func (h *taskHandle) Wait(ctx context.Context) (domain.TaskReport, error) {
	interval := h.queue.settings.Load().PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, report, err := h.queue.report(ctx, h.id)
		if err != nil {
			return domain.TaskReport{}, err
		}
		if status.IsTerminal() && report != nil {
			return *report, nil
		}
		select {
		case <-ctx.Done():
			return domain.TaskReport{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
