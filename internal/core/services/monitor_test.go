package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
	"github.com/custodia-labs/derivex/internal/core/ports/driving"
)

func TestMonitor_Sample(t *testing.T) {
	store := seedStore(t, 10)
	m := NewMonitor(store)
	start := fixedNow
	m.now = func() time.Time { return start }
	q, err := domain.ParseQuery("-category:*")
	require.NoError(t, err)

	first, err := m.Sample(context.Background(), "docs", q, nil, start)
	require.NoError(t, err)
	assert.Equal(t, 10, first.Matching)
	assert.Equal(t, 10, first.Total)
	assert.Zero(t, first.Rate)

	ops := []driven.WriteOp{
		{ID: docID(0), Op: driven.OpUpdate, Body: map[string]any{"category": "spam"}},
		{ID: docID(1), Op: driven.OpUpdate, Body: map[string]any{"category": "spam"}},
		{ID: docID(2), Op: driven.OpUpdate, Body: map[string]any{"category": "spam"}},
		{ID: docID(3), Op: driven.OpUpdate, Body: map[string]any{"category": "spam"}},
	}
	_, err = store.BulkWrite(context.Background(), "docs", ops)
	require.NoError(t, err)

	m.now = func() time.Time { return start.Add(2 * time.Second) }
	second, err := m.Sample(context.Background(), "docs", q, &first, start)

	require.NoError(t, err)
	assert.Equal(t, 6, second.Matching)
	assert.Equal(t, 4, second.Delta)
	assert.Equal(t, 4, second.Processed)
	assert.InDelta(t, 2.0, second.Rate, 0.001)
	assert.Equal(t, 3*time.Second, second.ETA)
}

func TestMonitor_Watch(t *testing.T) {
	m := NewMonitor(seedStore(t, 3))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	progress, errs := m.Watch(ctx, "docs", domain.MatchAll(), 10*time.Millisecond)

	var got []driving.Progress
	for p := range progress {
		got = append(got, p)
		if len(got) == 2 {
			cancel()
		}
	}
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}

	require.GreaterOrEqual(t, len(got), 2)
	assert.Equal(t, 3, got[0].Matching)
	assert.Zero(t, got[1].Delta)
}
