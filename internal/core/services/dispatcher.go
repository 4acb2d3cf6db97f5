package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
	"github.com/custodia-labs/derivex/internal/core/ports/driving"
	"github.com/custodia-labs/derivex/internal/logger"
	"github.com/custodia-labs/derivex/internal/metrics"
)

// Ensure Dispatcher implements the interface.
var _ driving.Dispatcher = (*Dispatcher)(nil)

// Dispatcher turns a selection into one task per batch.
type Dispatcher struct {
	cursor   *BatchCursor
	queue    driven.TaskQueue
	chains   driven.ChainBuilder
	settings *domain.SettingsProvider
	newID    func() string
	now      func() time.Time
}

// NewDispatcher creates a dispatcher submitting to queue.
func NewDispatcher(store driven.DocumentStore, queue driven.TaskQueue, chains driven.ChainBuilder, settings *domain.SettingsProvider) *Dispatcher {
	return &Dispatcher{
		cursor:   NewBatchCursor(store),
		queue:    queue,
		chains:   chains,
		settings: settings,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Dispatch scans the selection and hands each batch to the queue.
func (d *Dispatcher) Dispatch(ctx context.Context, req driving.DispatchRequest) (*driving.DispatchReport, error) {
	if err := d.chains.Validate(req.Transformers); err != nil {
		return nil, err
	}

	s := d.settings.Load()
	namespace := req.Namespace
	if namespace == "" {
		namespace = s.DefaultNamespace
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = s.PageSize
	}
	mode := s.DefaultMode()
	if req.Reindex {
		mode = domain.ModeReindex
	}

	var limiter *rate.Limiter
	if s.DispatchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.DispatchRate), 1)
	}

	logger.Section("Dispatch")
	logger.Info("namespace=%s query=%q transformers=%v limit=%d page=%d", namespace, req.Query.String(), req.Transformers, req.Limit, pageSize)

	report := &driving.DispatchReport{}

	batches := d.cursor.Batches(ctx, namespace, req.Query, CursorOptions{PageSize: pageSize, Limit: req.Limit, IDsOnly: true})
	for batch, err := range batches {
		if err != nil {
			return report, fmt.Errorf("dispatch batches: %w", err)
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return report, err
			}
		}

		task := domain.Task{
			ID:            d.newID(),
			Namespace:     namespace,
			Batch:         batch,
			Transformers:  req.Transformers,
			Params:        req.Params,
			Tag:           req.Tag,
			Mode:          mode,
			DryRun:        req.DryRun,
			SkipTimestamp: req.SkipTimestamp,
			CreatedAt:     d.now().UTC(),
		}
		report.Batches++
		report.Documents += batch.Len()
		report.TaskIDs = append(report.TaskIDs, task.ID)
		metrics.BatchDispatched()

		if req.Now {
			tr, err := d.queue.RunNow(ctx, task)
			if err != nil {
				return report, fmt.Errorf("run task %s: %w", task.ID, err)
			}
			addTaskReport(report, tr)
			continue
		}

		h, err := d.queue.Submit(ctx, task)
		if err != nil {
			return report, fmt.Errorf("submit task %s: %w", task.ID, err)
		}
		logger.Debug("submitted task %s with %d documents", task.ID, batch.Len())

		// A dry run waits for each result before submitting the next batch,
		// so at most one preview is in flight.
		if req.DryRun {
			tr, err := h.Wait(ctx)
			if err != nil {
				return report, fmt.Errorf("wait task %s: %w", h.ID(), err)
			}
			addTaskReport(report, tr)
		}
	}

	logger.Info("dispatched %d documents in %d batches", report.Documents, report.Batches)
	return report, nil
}

func addTaskReport(report *driving.DispatchReport, tr domain.TaskReport) {
	report.Reports = append(report.Reports, tr)
	report.Succeeded += len(tr.Outcome.Succeeded)
	report.Failed += len(tr.Outcome.FailedIDs())
}
