package services

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
	"github.com/custodia-labs/derivex/internal/core/ports/driving"
	"github.com/custodia-labs/derivex/internal/logger"
)

// Ensure BatchProcessor implements the interface.
var _ driving.BatchProcessor = (*BatchProcessor)(nil)

// BatchProcessor fetches a batch, runs the chain over each document and
// writes back the changes. Failures are isolated per document.
type BatchProcessor struct {
	store    driven.DocumentStore
	chains   driven.ChainBuilder
	settings *domain.SettingsProvider
	now      func() time.Time
}

// NewBatchProcessor creates a processor.
func NewBatchProcessor(store driven.DocumentStore, chains driven.ChainBuilder, settings *domain.SettingsProvider) *BatchProcessor {
	return &BatchProcessor{
		store:    store,
		chains:   chains,
		settings: settings,
		now:      time.Now,
	}
}

// Process runs one delivery of task.
//
// The returned error is reserved for task-fatal problems (an unknown
// transformer, an invalid task, cancellation). Everything else is recorded
// per document in the outcome.
func (p *BatchProcessor) Process(ctx context.Context, task domain.Task) (domain.BatchOutcome, error) {
	var outcome domain.BatchOutcome

	if task.Mode != "" && !task.Mode.IsValid() {
		return outcome, fmt.Errorf("%w: write mode %q", domain.ErrInvalidInput, task.Mode)
	}
	chain, err := p.chains.BuildChain(task.Transformers, task.Params)
	if err != nil {
		return outcome, fmt.Errorf("build chain: %w", err)
	}
	if task.Batch.IsEmpty() {
		return outcome, nil
	}

	settings := p.settings.Load()
	now := p.now().UTC()
	tc := driven.TransformContext{
		Namespace:    task.Namespace,
		Tag:          task.Tag,
		Invocation:   ulid.Make().String(),
		Transformers: chain.Names(),
		Params:       task.Params,
		Now:          now,
	}
	log := logger.With("task", task.ID, "attempt", task.Attempt)

	ids := task.Batch.IDs()
	log.Debug("fetching %d documents from %s", len(ids), task.Namespace)

	docs, failures, err := p.store.FetchByIDs(ctx, task.Namespace, ids)
	if err != nil {
		if ctx.Err() != nil {
			return outcome, ctx.Err()
		}
		log.Warn("fetch batch: %v", err)
		for _, id := range ids {
			outcome.RecordError(id, domain.ErrorKindFetch, err)
		}
		return outcome, nil
	}

	unreadable := make(map[string]struct{}, len(failures))
	for _, f := range failures {
		outcome.RecordError(f.ID, domain.ErrorKindFetch, f.Err)
		unreadable[f.ID] = struct{}{}
	}
	byID := make(map[string]domain.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	var ops []driven.WriteOp
	for _, id := range ids {
		if _, bad := unreadable[id]; bad {
			continue
		}
		doc, ok := byID[id]
		if !ok {
			outcome.Missing = append(outcome.Missing, id)
			continue
		}

		res, err := chain.Run(ctx, doc, tc, task.UpdatesOnly())
		if err != nil {
			if ctx.Err() != nil {
				return outcome, ctx.Err()
			}
			log.Debug("document %s: %v", id, err)
			outcome.RecordError(id, domain.ErrorKindTransform, err)
			continue
		}
		if task.DryRun {
			if preview, ok := dryRunResult(doc, res); ok {
				outcome.Results = append(outcome.Results, preview)
			}
			if res.Updates.IsEmpty() {
				outcome.Unchanged = append(outcome.Unchanged, id)
			}
			continue
		}
		if res.Updates.IsEmpty() {
			outcome.Unchanged = append(outcome.Unchanged, id)
			continue
		}

		ops = append(ops, stage(doc, res, task, settings, now))
	}

	if len(ops) > 0 {
		p.write(ctx, task.Namespace, ops, settings.BulkSize, &outcome)
	}

	log.Info("batch done: %d written, %d unchanged, %d missing, %d failed",
		len(outcome.Succeeded), len(outcome.Unchanged), len(outcome.Missing), len(outcome.FailedIDs()))
	return outcome, nil
}

// dryRunResult is what a dry run reports for one document. In full mode every
// document is reported with its merged fields; in update mode only documents
// with changes are, carrying just the changed fields. Timestamps are never
// stamped since nothing is written.
func dryRunResult(doc domain.Document, res driven.ChainResult) (domain.Document, bool) {
	if res.Document != nil {
		return domain.Document{
			ID:      doc.ID,
			Fields:  domain.UpdateSet(res.Document.Fields).Without(domain.IDField),
			Version: doc.Version,
		}, true
	}
	if res.Updates.IsEmpty() {
		return domain.Document{}, false
	}
	return domain.Document{ID: doc.ID, Fields: res.Updates.Without(domain.IDField), Version: doc.Version}, true
}

// stage builds the write for one changed document. The id never appears in the body.
func stage(doc domain.Document, res driven.ChainResult, task domain.Task, settings domain.Settings, now time.Time) driven.WriteOp {
	op := driven.WriteOp{
		ID:              doc.ID,
		Op:              driven.OpUpdate,
		Body:            res.Updates.Without(domain.IDField),
		RetryOnConflict: settings.RetryOnConflict,
	}
	if res.Document != nil {
		op.Op = driven.OpReplace
		op.Body = domain.UpdateSet(res.Document.Fields).Without(domain.IDField)
	}
	if !task.SkipTimestamp && settings.TimestampField != "" {
		op.Body[settings.TimestampField] = now.Format(time.RFC3339Nano)
	}
	return op
}

// write submits ops in chunks of bulkSize and folds the item results into outcome.
func (p *BatchProcessor) write(ctx context.Context, namespace string, ops []driven.WriteOp, bulkSize int, outcome *domain.BatchOutcome) {
	if bulkSize <= 0 {
		bulkSize = len(ops)
	}
	for start := 0; start < len(ops); start += bulkSize {
		chunk := ops[start:min(start+bulkSize, len(ops))]

		res, err := p.store.BulkWrite(ctx, namespace, chunk)
		if err != nil {
			for _, op := range chunk {
				outcome.RecordError(op.ID, domain.ErrorKindWrite, fmt.Errorf("bulk write: %w", err))
			}
			continue
		}

		failed := make(map[string]struct{}, len(res.Failures))
		for _, f := range res.Failures {
			outcome.RecordError(f.ID, domain.ErrorKindWrite, f.Err)
			failed[f.ID] = struct{}{}
		}
		for _, op := range chunk {
			if _, ok := failed[op.ID]; !ok {
				outcome.Succeeded = append(outcome.Succeeded, op.ID)
			}
		}
	}
}
