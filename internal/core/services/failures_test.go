package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/derivex/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/derivex/internal/core/domain"
)

func TestFailureService_RequeueFailedIDs(t *testing.T) {
	letters := memory.NewDeadLetterStore()
	queue := &mockQueue{}
	svc := NewFailureService(letters, queue)
	ctx := context.Background()

	task := domain.Task{ID: "t1", Namespace: "docs", Batch: batchOf(t, "a", "b", "c"), Transformers: []string{"classify"}, Attempt: 3}
	require.NoError(t, letters.TaskExhausted(ctx, task, domain.TaskReport{TaskID: "t1", Outcome: failing("b", "c")}))

	list, err := svc.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)

	newID, err := svc.Requeue(ctx, "t1")

	require.NoError(t, err)
	assert.NotEqual(t, "t1", newID)
	require.Len(t, queue.submitted, 1)
	requeued := queue.submitted[0]
	assert.Equal(t, newID, requeued.ID)
	assert.Equal(t, []string{"b", "c"}, requeued.Batch.IDs())
	assert.Equal(t, 0, requeued.Attempt)
	assert.Equal(t, []string{"classify"}, requeued.Transformers)

	_, err = letters.GetDeadLetter(ctx, "t1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFailureService_RequeueFatalUsesWholeBatch(t *testing.T) {
	letters := memory.NewDeadLetterStore()
	queue := &mockQueue{}
	svc := NewFailureService(letters, queue)
	ctx := context.Background()

	task := domain.Task{ID: "t1", Batch: batchOf(t, "a", "b")}
	require.NoError(t, letters.TaskExhausted(ctx, task, domain.TaskReport{TaskID: "t1", Error: "unknown transformer"}))

	_, err := svc.Requeue(ctx, "t1")

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, queue.submitted[0].Batch.IDs())
}

func TestFailureService_RequeueUnknown(t *testing.T) {
	svc := NewFailureService(memory.NewDeadLetterStore(), &mockQueue{})

	_, err := svc.Requeue(context.Background(), "nope")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFailureService_SubmitErrorKeepsLetter(t *testing.T) {
	letters := memory.NewDeadLetterStore()
	svc := NewFailureService(letters, &mockQueue{submitErr: domain.ErrQueueClosed})
	ctx := context.Background()
	require.NoError(t, letters.TaskExhausted(ctx, domain.Task{ID: "t1", Batch: batchOf(t, "a")}, domain.TaskReport{Outcome: failing("a")}))

	_, err := svc.Requeue(ctx, "t1")

	assert.ErrorIs(t, err, domain.ErrQueueClosed)
	_, err = letters.GetDeadLetter(ctx, "t1")
	assert.NoError(t, err)
}
