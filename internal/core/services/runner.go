package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
	"github.com/custodia-labs/derivex/internal/core/ports/driving"
	"github.com/custodia-labs/derivex/internal/logger"
	"github.com/custodia-labs/derivex/internal/metrics"
)

// Ensure TaskRunner implements the interface.
var _ driving.TaskHandler = (*TaskRunner)(nil)

// TaskRunner executes task deliveries and applies the retry policy.
// It never re-enqueues by itself: queue adapters act on the returned report.
type TaskRunner struct {
	processor driving.BatchProcessor
	policy    *RetryPolicy
	sink      driven.FailureSink
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewTaskRunner creates a runner. sink may be nil, in which case exhausted
// tasks are only logged.
func NewTaskRunner(processor driving.BatchProcessor, policy *RetryPolicy, sink driven.FailureSink) *TaskRunner {
	return &TaskRunner{
		processor: processor,
		policy:    policy,
		sink:      sink,
		sleep:     sleepContext,
	}
}

// Handle executes one delivery. An error is returned only when ctx ended
// before the delivery finished; the task must then be delivered again.
func (r *TaskRunner) Handle(ctx context.Context, task domain.Task) (domain.TaskReport, error) {
	start := time.Now()
	log := logger.With("task", task.ID, "attempt", task.Attempt)

	report := domain.TaskReport{TaskID: task.ID, Attempt: task.Attempt, Status: domain.TaskRunning}

	outcome, err := r.processor.Process(ctx, task)
	report.Outcome = outcome
	if ctx.Err() != nil {
		report.Status = domain.TaskPending
		return report, ctx.Err()
	}

	decision := r.policy.Decide(task, outcome, err)
	switch decision.Action {
	case ActionComplete:
		report.Status = domain.TaskSucceeded
	case ActionRetry:
		report.Status = domain.TaskRetrying
		report.RetryAfter = decision.Delay
		log.Warn("%d of %d documents failed, retrying in %s", len(outcome.FailedIDs()), task.Batch.Len(), decision.Delay)
	case ActionExhaust:
		report.Status = domain.TaskFailed
		if err != nil {
			report.Error = err.Error()
		}
		r.exhaust(ctx, log, task, report)
	case ActionFail:
		report.Status = domain.TaskFailed
		report.Error = err.Error()
		log.Error("dry run failed: %v", err)
	}

	metrics.ObserveOutcome(outcome)
	metrics.ObserveTask(report.Status, time.Since(start))
	return report, nil
}

// RunNow executes task in the caller's goroutine, sleeping between retries.
func (r *TaskRunner) RunNow(ctx context.Context, task domain.Task) (domain.TaskReport, error) {
	for {
		report, err := r.Handle(ctx, task)
		if err != nil || report.Status != domain.TaskRetrying {
			return report, err
		}
		if err := r.sleep(ctx, report.RetryAfter); err != nil {
			return report, err
		}
		task = task.NextAttempt()
	}
}

func (r *TaskRunner) exhaust(ctx context.Context, log *logger.Logger, task domain.Task, report domain.TaskReport) {
	var err error
	if report.Error != "" {
		err = fmt.Errorf("%w: task %s: %s", domain.ErrRetriesExhausted, task.ID, report.Error)
	} else {
		err = fmt.Errorf("%w: task %s after %d attempts, failing ids: %s",
			domain.ErrRetriesExhausted, task.ID, task.Attempt+1, strings.Join(report.Outcome.FailedIDs(), ", "))
	}
	log.Error("%v", err)

	if r.sink == nil {
		return
	}
	if sinkErr := r.sink.TaskExhausted(ctx, task, report); sinkErr != nil {
		log.Error("record exhausted task: %v", sinkErr)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
