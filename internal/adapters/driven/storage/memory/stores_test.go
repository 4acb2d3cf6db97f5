package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/derivex/internal/core/domain"
)

func TestScheduleStore_CRUDAndHistory(t *testing.T) {
	store := NewScheduleStore()
	ctx := context.Background()

	got, err := store.GetSchedule(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.SaveSchedule(ctx, &domain.Schedule{ID: "2", Name: "b"}))
	require.NoError(t, store.SaveSchedule(ctx, &domain.Schedule{ID: "1", Name: "a"}))
	assert.ErrorIs(t, store.SaveSchedule(ctx, &domain.Schedule{}), domain.ErrInvalidInput)

	list, err := store.ListSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordRun(ctx, &domain.ScheduleRun{ScheduleID: "1", StartedAt: base.Add(time.Duration(i) * time.Hour)}))
	}
	require.NoError(t, store.PruneHistory(ctx, 3))

	runs, err := store.GetRunHistory(ctx, "1", 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, base.Add(4*time.Hour), runs[0].StartedAt)

	require.NoError(t, store.DeleteSchedule(ctx, "1"))
	runs, _ = store.GetRunHistory(ctx, "1", 10)
	assert.Empty(t, runs)
}

func TestDeadLetterStore(t *testing.T) {
	store := NewDeadLetterStore()
	ctx := context.Background()
	b, _ := domain.NewBatch([]string{"a", "b"})
	task := domain.Task{ID: "t1", Batch: b, Attempt: 3}

	var outcome domain.BatchOutcome
	outcome.RecordError("b", domain.ErrorKindWrite, errors.New("conflict"))
	require.NoError(t, store.TaskExhausted(ctx, task, domain.TaskReport{TaskID: "t1", Outcome: outcome}))

	letters, err := store.ListDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, []string{"b"}, letters[0].FailedIDs)
	assert.Equal(t, 4, letters[0].Attempts)

	got, err := store.GetDeadLetter(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.Task.ID)

	require.NoError(t, store.DeleteDeadLetter(ctx, "t1"))
	_, err = store.GetDeadLetter(ctx, "t1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, store.DeleteDeadLetter(ctx, "t1"), domain.ErrNotFound)
}
