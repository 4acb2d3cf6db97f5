package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/derivex/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
	"github.com/custodia-labs/derivex/internal/transformers"
)

// --- Shared fixtures ---

func newSettings(mutate func(*domain.Settings)) *domain.SettingsProvider {
	s := domain.DefaultSettings()
	if mutate != nil {
		mutate(&s)
	}
	return domain.NewSettingsProvider(s)
}

// seedStore indexes n documents with ids doc-0000.. and alternating texts.
func seedStore(t *testing.T, n int) *memory.DocumentStore {
	t.Helper()
	store := memory.NewDocumentStore()
	docs := make([]domain.Document, n)
	for i := range docs {
		text := "quarterly report"
		if i%2 == 1 {
			text = "click to verify your account"
		}
		docs[i] = domain.Document{ID: docID(i), Fields: map[string]any{"text": text}}
	}
	require.NoError(t, store.Index(context.Background(), "docs", docs))
	return store
}

func docID(i int) string {
	return fmt.Sprintf("doc-%04d", i)
}

func batchOf(t *testing.T, ids ...string) domain.Batch {
	t.Helper()
	b, err := domain.NewBatch(ids)
	require.NoError(t, err)
	return b
}

// testRegistry returns the default transformers plus "explode", which fails
// for ids listed in the "explode_ids" param.
func testRegistry() *transformers.Registry {
	r := transformers.DefaultRegistry()
	r.Register("explode", func(params map[string]any) (driven.Transformer, error) {
		ids, _ := params["explode_ids"].([]string)
		set := make(map[string]bool, len(ids))
		for _, id := range ids {
			set[id] = true
		}
		return explode{ids: set}, nil
	})
	return r
}

type explode struct {
	ids map[string]bool
}

func (e explode) Name() string { return "explode" }

func (e explode) Transform(_ context.Context, updates domain.UpdateSet, original domain.Document, _ driven.TransformContext) (domain.UpdateSet, error) {
	if e.ids[original.ID] {
		return nil, errors.New("boom")
	}
	return updates, nil
}

// --- Mock implementations ---

// scanErrStore fails scans after yielding failAfter documents.
type scanErrStore struct {
	*memory.DocumentStore
	failAfter int
	err       error
}

func (s *scanErrStore) Scan(ctx context.Context, namespace string, q domain.Query, opts driven.ScanOptions) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		n := 0
		for doc, err := range s.DocumentStore.Scan(ctx, namespace, q, opts) {
			if err != nil {
				yield(doc, err)
				return
			}
			if n == s.failAfter {
				yield(domain.Document{}, s.err)
				return
			}
			n++
			if !yield(doc, nil) {
				return
			}
		}
	}
}

// countingStore records bulk request sizes and can fail whole requests.
type countingStore struct {
	*memory.DocumentStore
	mu        sync.Mutex
	bulkSizes []int
	bulkErr   error
	fetchErr  error
}

func (s *countingStore) BulkWrite(ctx context.Context, namespace string, ops []driven.WriteOp) (driven.BulkResult, error) {
	s.mu.Lock()
	s.bulkSizes = append(s.bulkSizes, len(ops))
	s.mu.Unlock()
	if s.bulkErr != nil {
		return driven.BulkResult{}, s.bulkErr
	}
	return s.DocumentStore.BulkWrite(ctx, namespace, ops)
}

func (s *countingStore) FetchByIDs(ctx context.Context, namespace string, ids []string) ([]domain.Document, []driven.ItemFailure, error) {
	if s.fetchErr != nil {
		return nil, nil, s.fetchErr
	}
	return s.DocumentStore.FetchByIDs(ctx, namespace, ids)
}

// mockProcessor returns scripted outcomes per attempt.
type mockProcessor struct {
	mu       sync.Mutex
	outcomes map[int]domain.BatchOutcome
	fatal    error
	calls    int
}

func (m *mockProcessor) Process(ctx context.Context, task domain.Task) (domain.BatchOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := ctx.Err(); err != nil {
		return domain.BatchOutcome{}, err
	}
	return m.outcomes[task.Attempt], m.fatal
}

func failing(ids ...string) domain.BatchOutcome {
	var o domain.BatchOutcome
	for _, id := range ids {
		o.RecordError(id, domain.ErrorKindWrite, domain.ErrVersionConflict)
	}
	return o
}

// mockSink records exhausted tasks.
type mockSink struct {
	mu    sync.Mutex
	tasks []domain.Task
}

func (m *mockSink) TaskExhausted(_ context.Context, task domain.Task, _ domain.TaskReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, task)
	return nil
}

// mockQueue records submissions and answers RunNow and Wait with a report.
type mockQueue struct {
	mu        sync.Mutex
	submitted []domain.Task
	ranNow    []domain.Task
	submitErr error
	report    func(domain.Task) domain.TaskReport
	events    []string
}

func (m *mockQueue) Submit(_ context.Context, task domain.Task) (driven.TaskHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	m.submitted = append(m.submitted, task)
	m.events = append(m.events, "submit "+task.ID)
	return mockHandle{task: task, report: m.reportFor(task), queue: m}, nil
}

func (m *mockQueue) RunNow(_ context.Context, task domain.Task) (domain.TaskReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ranNow = append(m.ranNow, task)
	return m.reportFor(task), nil
}

func (m *mockQueue) Retry(context.Context, domain.Task, time.Duration) error { return nil }

func (m *mockQueue) Consume(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (m *mockQueue) reportFor(task domain.Task) domain.TaskReport {
	if m.report != nil {
		return m.report(task)
	}
	return domain.TaskReport{TaskID: task.ID, Status: domain.TaskSucceeded, Outcome: domain.BatchOutcome{Succeeded: task.Batch.IDs()}}
}

type mockHandle struct {
	task   domain.Task
	report domain.TaskReport
	queue  *mockQueue
}

func (h mockHandle) ID() string { return h.task.ID }

func (h mockHandle) Wait(context.Context) (domain.TaskReport, error) {
	h.queue.mu.Lock()
	defer h.queue.mu.Unlock()
	h.queue.events = append(h.queue.events, "wait "+h.task.ID)
	return h.report, nil
}
