package services

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/derivex/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/logger"
	"github.com/custodia-labs/derivex/internal/transformers"
)

func newTestRunner(proc *mockProcessor, sink *mockSink, maxRetries int) *TaskRunner {
	policy := NewRetryPolicy(newSettings(func(s *domain.Settings) {
		s.MaxRetries = maxRetries
		s.RetryDelay = 30 * time.Second
	}))
	return NewTaskRunner(proc, policy, sink)
}

func TestTaskRunner_Handle_Success(t *testing.T) {
	proc := &mockProcessor{outcomes: map[int]domain.BatchOutcome{0: {Succeeded: []string{"a"}}}}
	r := newTestRunner(proc, &mockSink{}, 3)

	report, err := r.Handle(context.Background(), domain.Task{ID: "t1", Batch: batchOf(t, "a")})

	require.NoError(t, err)
	assert.Equal(t, domain.TaskSucceeded, report.Status)
	assert.Equal(t, []string{"a"}, report.Outcome.Succeeded)
}

func TestTaskRunner_Handle_Retrying(t *testing.T) {
	proc := &mockProcessor{outcomes: map[int]domain.BatchOutcome{1: failing("b")}}
	r := newTestRunner(proc, &mockSink{}, 3)

	report, err := r.Handle(context.Background(), domain.Task{ID: "t1", Batch: batchOf(t, "a", "b"), Attempt: 1})

	require.NoError(t, err)
	assert.Equal(t, domain.TaskRetrying, report.Status)
	assert.Equal(t, 60*time.Second, report.RetryAfter)
}

func TestTaskRunner_Handle_ExhaustsToSink(t *testing.T) {
	defer logger.SetOutput(os.Stderr)
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	proc := &mockProcessor{outcomes: map[int]domain.BatchOutcome{3: failing("b", "c")}}
	sink := &mockSink{}
	r := newTestRunner(proc, sink, 3)

	report, err := r.Handle(context.Background(), domain.Task{ID: "t1", Batch: batchOf(t, "a", "b", "c"), Attempt: 3})

	require.NoError(t, err)
	assert.Equal(t, domain.TaskFailed, report.Status)
	require.Len(t, sink.tasks, 1)
	assert.Equal(t, "t1", sink.tasks[0].ID)

	out := buf.String()
	assert.Contains(t, out, "[ERROR]")
	assert.Contains(t, out, domain.ErrRetriesExhausted.Error())
	assert.Contains(t, out, "failing ids: b, c")
}

func TestTaskRunner_Handle_FatalExhaustsWithError(t *testing.T) {
	defer logger.SetOutput(os.Stderr)
	logger.SetOutput(&bytes.Buffer{})

	proc := &mockProcessor{fatal: domain.ErrUnknownTransformer}
	sink := &mockSink{}
	r := newTestRunner(proc, sink, 3)

	report, err := r.Handle(context.Background(), domain.Task{ID: "t1", Batch: batchOf(t, "a")})

	require.NoError(t, err)
	assert.Equal(t, domain.TaskFailed, report.Status)
	assert.Equal(t, domain.ErrUnknownTransformer.Error(), report.Error)
	assert.Len(t, sink.tasks, 1)
	assert.Equal(t, 1, proc.calls)
}

func TestTaskRunner_Handle_FatalDryRunSkipsSink(t *testing.T) {
	defer logger.SetOutput(os.Stderr)
	logger.SetOutput(&bytes.Buffer{})

	proc := &mockProcessor{fatal: domain.ErrUnknownTransformer}
	sink := &mockSink{}
	r := newTestRunner(proc, sink, 3)

	report, err := r.Handle(context.Background(), domain.Task{ID: "t1", Batch: batchOf(t, "a"), DryRun: true})

	require.NoError(t, err)
	assert.Equal(t, domain.TaskFailed, report.Status)
	assert.Equal(t, domain.ErrUnknownTransformer.Error(), report.Error)
	assert.Empty(t, sink.tasks)
}

func TestTaskRunner_Handle_Cancelled(t *testing.T) {
	r := newTestRunner(&mockProcessor{}, &mockSink{}, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := r.Handle(ctx, domain.Task{ID: "t1", Batch: batchOf(t, "a")})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.TaskPending, report.Status)
}

func TestTaskRunner_RunNow_RetriesWithBackoff(t *testing.T) {
	proc := &mockProcessor{outcomes: map[int]domain.BatchOutcome{
		0: failing("a"),
		1: failing("a"),
		2: {Succeeded: []string{"a"}},
	}}
	r := newTestRunner(proc, &mockSink{}, 3)
	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	report, err := r.RunNow(context.Background(), domain.Task{ID: "t1", Batch: batchOf(t, "a")})

	require.NoError(t, err)
	assert.Equal(t, domain.TaskSucceeded, report.Status)
	assert.Equal(t, 2, report.Attempt)
	assert.Equal(t, []time.Duration{30 * time.Second, 60 * time.Second}, slept)
}

func TestTaskRunner_RunNow_SleepInterrupted(t *testing.T) {
	proc := &mockProcessor{outcomes: map[int]domain.BatchOutcome{0: failing("a")}}
	r := newTestRunner(proc, &mockSink{}, 3)
	r.sleep = func(context.Context, time.Duration) error { return context.Canceled }

	report, err := r.RunNow(context.Background(), domain.Task{ID: "t1", Batch: batchOf(t, "a")})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.TaskRetrying, report.Status)
}

// TestPipeline_RetriesThenDeadLetters runs the processor, runner and memory
// queue together against a store with contended documents.
func TestPipeline_RetriesThenDeadLetters(t *testing.T) {
	defer logger.SetOutput(os.Stderr)
	logger.SetOutput(&bytes.Buffer{})

	settings := newSettings(func(s *domain.Settings) {
		s.MaxRetries = 3
		s.RetryDelay = time.Millisecond
		s.MaxRetryDelay = 5 * time.Millisecond
		s.RetryOnConflict = 0
		s.Concurrency = 2
	})
	store := seedStore(t, 4)
	store.SimulateConflicts(docID(1), 2)
	store.SimulateConflicts(docID(3), 100)

	letters := memory.NewDeadLetterStore()
	runner := NewTaskRunner(NewBatchProcessor(store, transformers.DefaultRegistry(), settings), NewRetryPolicy(settings), letters)
	queue := memory.NewQueue(runner, settings)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- queue.Consume(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	handle, err := queue.Submit(ctx, domain.Task{
		ID:           "t1",
		Namespace:    "docs",
		Batch:        batchOf(t, allIDs(4)...),
		Transformers: []string{transformers.ClassifyName},
		Mode:         domain.ModeUpdate,
	})
	require.NoError(t, err)

	waitCtx, stop := context.WithTimeout(ctx, 5*time.Second)
	defer stop()
	report, err := handle.Wait(waitCtx)
	require.NoError(t, err)

	assert.Equal(t, domain.TaskFailed, report.Status)
	assert.Equal(t, 3, report.Attempt)
	assert.Equal(t, []string{docID(3)}, report.Outcome.FailedIDs())

	recovered, err := store.Get(ctx, "docs", docID(1))
	require.NoError(t, err)
	assert.Equal(t, "phishing", recovered.Fields["category"])

	letter, err := letters.GetDeadLetter(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{docID(3)}, letter.FailedIDs)
	assert.Equal(t, 4, letter.Attempts)
}

func TestTaskRunner_NilSink(t *testing.T) {
	defer logger.SetOutput(os.Stderr)
	logger.SetOutput(&bytes.Buffer{})

	r := NewTaskRunner(&mockProcessor{fatal: errors.New("x")}, NewRetryPolicy(newSettings(nil)), nil)

	report, err := r.Handle(context.Background(), domain.Task{ID: "t1", Batch: batchOf(t, "a")})

	require.NoError(t, err)
	assert.Equal(t, domain.TaskFailed, report.Status)
}
