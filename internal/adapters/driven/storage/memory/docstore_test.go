package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
)

func seed(t *testing.T, store *DocumentStore, namespace string, docs ...domain.Document) {
	t.Helper()
	require.NoError(t, store.Index(context.Background(), namespace, docs))
}

func numbered(n int) []domain.Document {
	docs := make([]domain.Document, n)
	for i := range docs {
		docs[i] = domain.Document{ID: fmt.Sprintf("doc-%04d", i), Fields: map[string]any{"n": float64(i)}}
	}
	return docs
}

func collect(t *testing.T, store *DocumentStore, namespace string, q domain.Query, opts driven.ScanOptions) []domain.Document {
	t.Helper()
	var out []domain.Document
	for doc, err := range store.Scan(context.Background(), namespace, q, opts) {
		require.NoError(t, err)
		out = append(out, doc)
	}
	return out
}

func TestDocumentStore_Scan_PagesInIDOrder(t *testing.T) {
	store := NewDocumentStore()
	seed(t, store, "docs", numbered(25)...)

	docs := collect(t, store, "docs", domain.MatchAll(), driven.ScanOptions{PageSize: 10})

	require.Len(t, docs, 25)
	for i, d := range docs {
		assert.Equal(t, fmt.Sprintf("doc-%04d", i), d.ID)
	}
}

func TestDocumentStore_Scan_IDsOnly(t *testing.T) {
	store := NewDocumentStore()
	seed(t, store, "docs", numbered(3)...)

	docs := collect(t, store, "docs", domain.MatchAll(), driven.ScanOptions{PageSize: 2, IDsOnly: true})

	require.Len(t, docs, 3)
	assert.Nil(t, docs[0].Fields)
	assert.Equal(t, int64(1), docs[0].Version)
}

func TestDocumentStore_Scan_EarlyStop(t *testing.T) {
	store := NewDocumentStore()
	seed(t, store, "docs", numbered(10)...)

	n := 0
	for range store.Scan(context.Background(), "docs", domain.MatchAll(), driven.ScanOptions{PageSize: 3}) {
		n++
		if n == 4 {
			break
		}
	}
	assert.Equal(t, 4, n)
}

func TestDocumentStore_Scan_Cancelled(t *testing.T) {
	store := NewDocumentStore()
	seed(t, store, "docs", numbered(3)...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var gotErr error
	for _, err := range store.Scan(ctx, "docs", domain.MatchAll(), driven.ScanOptions{}) {
		gotErr = err
	}
	assert.ErrorIs(t, gotErr, context.Canceled)
}

func TestDocumentStore_QueryMatching(t *testing.T) {
	store := NewDocumentStore()
	seed(t, store, "docs",
		domain.Document{ID: "a", Fields: map[string]any{"status": "new", "host": "10.0.0.1", "meta": map[string]any{"lang": "en"}}},
		domain.Document{ID: "b", Fields: map[string]any{"status": "done", "category": "spam", "tags": []any{"x", "y"}}},
		domain.Document{ID: "c", Fields: map[string]any{"status": "new", "category": nil, "count": 3.0}},
	)

	tests := []struct {
		query string
		want  int
	}{
		{"*", 3},
		{"status:new", 2},
		{"-category:*", 2},
		{"category:*", 1},
		{"host:10.0.*", 1},
		{"meta.lang:en", 1},
		{"tags:y", 1},
		{"count:3", 1},
		{"_id:a,c", 2},
		{"status:new -category:*", 2},
		{"status:new host:*", 1},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, err := domain.ParseQuery(tt.query)
			require.NoError(t, err)
			n, err := store.Count(context.Background(), "docs", q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestDocumentStore_FetchByIDs(t *testing.T) {
	store := NewDocumentStore()
	seed(t, store, "docs", numbered(3)...)
	store.FailFetch("doc-0001", errors.New("shard unavailable"))

	docs, failures, err := store.FetchByIDs(context.Background(), "docs", []string{"doc-0002", "doc-0001", "gone", "doc-0000"})

	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "doc-0002", docs[0].ID)
	assert.Equal(t, "doc-0000", docs[1].ID)
	require.Len(t, failures, 1)
	assert.Equal(t, "doc-0001", failures[0].ID)
}

func TestDocumentStore_BulkWrite_PartialUpdate(t *testing.T) {
	store := NewDocumentStore()
	seed(t, store, "docs", domain.Document{ID: "a", Fields: map[string]any{"text": "x", "keep": true}})

	res, err := store.BulkWrite(context.Background(), "docs", []driven.WriteOp{
		{ID: "a", Op: driven.OpUpdate, Body: map[string]any{"text": "y", domain.IDField: "z"}},
		{ID: "missing", Op: driven.OpUpdate, Body: map[string]any{"text": "y"}},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	require.Len(t, res.Failures, 1)
	assert.ErrorIs(t, res.Failures[0].Err, domain.ErrNotFound)

	doc, err := store.Get(context.Background(), "docs", "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"text": "y", "keep": true}, doc.Fields)
	assert.Equal(t, int64(2), doc.Version)
}

func TestDocumentStore_BulkWrite_Replace(t *testing.T) {
	store := NewDocumentStore()
	seed(t, store, "docs", domain.Document{ID: "a", Fields: map[string]any{"old": 1.0}})

	_, err := store.BulkWrite(context.Background(), "docs", []driven.WriteOp{
		{ID: "a", Op: driven.OpReplace, Body: map[string]any{"new": 2.0}},
	})
	require.NoError(t, err)

	doc, err := store.Get(context.Background(), "docs", "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"new": 2.0}, doc.Fields)
}

func TestDocumentStore_BulkWrite_ConflictBudget(t *testing.T) {
	store := NewDocumentStore()
	seed(t, store, "docs", numbered(2)...)
	store.SimulateConflicts("doc-0000", 2)
	store.SimulateConflicts("doc-0001", 5)

	res, err := store.BulkWrite(context.Background(), "docs", []driven.WriteOp{
		{ID: "doc-0000", Op: driven.OpUpdate, Body: map[string]any{"x": 1}, RetryOnConflict: 3},
		{ID: "doc-0001", Op: driven.OpUpdate, Body: map[string]any{"x": 1}, RetryOnConflict: 3},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "doc-0001", res.Failures[0].ID)
	assert.ErrorIs(t, res.Failures[0].Err, domain.ErrVersionConflict)
}

func TestDocumentStore_NamespacesAndDrop(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	seed(t, store, "b", numbered(1)...)
	seed(t, store, "a", numbered(1)...)

	names, err := store.Namespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	require.NoError(t, store.DropNamespace(ctx, "a"))
	names, _ = store.Namespaces(ctx)
	assert.Equal(t, []string{"b"}, names)

	_, err = store.Get(ctx, "a", "doc-0000")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_ReadsAreIsolated(t *testing.T) {
	store := NewDocumentStore()
	seed(t, store, "docs", domain.Document{ID: "a", Fields: map[string]any{"nested": map[string]any{"v": 1.0}}})

	doc, err := store.Get(context.Background(), "docs", "a")
	require.NoError(t, err)
	doc.Fields["nested"].(map[string]any)["v"] = 2.0

	again, _ := store.Get(context.Background(), "docs", "a")
	assert.Equal(t, 1.0, again.Fields["nested"].(map[string]any)["v"])
}
