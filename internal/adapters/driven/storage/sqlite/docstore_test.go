package sqlite

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
)

func numbered(n int) []domain.Document {
	docs := make([]domain.Document, n)
	for i := range docs {
		docs[i] = domain.Document{ID: fmt.Sprintf("doc-%04d", i), Fields: map[string]any{"n": float64(i)}}
	}
	return docs
}

func TestDocumentStore_IndexAndGet(t *testing.T) {
	docs := setupTestStore(t).DocumentStore()
	ctx := context.Background()

	require.NoError(t, docs.Index(ctx, "docs", []domain.Document{
		{ID: "a", Fields: map[string]any{"text": "hello", "_id": "ignored", "nested": map[string]any{"k": "v"}}},
	}))

	doc, err := docs.Get(ctx, "docs", "a")
	require.NoError(t, err)
	assert.Equal(t, "a", doc.ID)
	assert.Equal(t, int64(1), doc.Version)
	assert.Equal(t, map[string]any{"text": "hello", "nested": map[string]any{"k": "v"}}, doc.Fields)
	assert.False(t, doc.UpdatedAt.IsZero())

	// Re-indexing bumps the version.
	require.NoError(t, docs.Index(ctx, "docs", []domain.Document{{ID: "a", Fields: map[string]any{"text": "bye"}}}))
	doc, err = docs.Get(ctx, "docs", "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.Version)

	_, err = docs.Get(ctx, "docs", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_ScanPages(t *testing.T) {
	docs := setupTestStore(t).DocumentStore()
	ctx := context.Background()
	require.NoError(t, docs.Index(ctx, "docs", numbered(25)))

	var ids []string
	for doc, err := range docs.Scan(ctx, "docs", domain.MatchAll(), driven.ScanOptions{PageSize: 10, IDsOnly: true}) {
		require.NoError(t, err)
		assert.Nil(t, doc.Fields)
		ids = append(ids, doc.ID)
	}

	require.Len(t, ids, 25)
	for i, id := range ids {
		assert.Equal(t, fmt.Sprintf("doc-%04d", i), id)
	}
}

func TestDocumentStore_QueryMatching(t *testing.T) {
	docs := setupTestStore(t).DocumentStore()
	ctx := context.Background()
	require.NoError(t, docs.Index(ctx, "docs", []domain.Document{
		{ID: "a", Fields: map[string]any{"status": "new", "host": "10.0.0.1", "meta": map[string]any{"lang": "en"}, "flag": true}},
		{ID: "b", Fields: map[string]any{"status": "done", "category": "spam", "tags": []any{"x", "y"}}},
		{ID: "c", Fields: map[string]any{"status": "new", "category": nil, "count": 3.0, "score": 1.5}},
	}))
	require.NoError(t, docs.Index(ctx, "other", []domain.Document{{ID: "z", Fields: map[string]any{"status": "new"}}}))

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
		{"meta:en", 0},
		{"tags:y", 1},
		{"tags:x*", 1},
		{"count:3", 1},
		{"score:1.5", 1},
		{"flag:true", 1},
		{"_id:a,c", 2},
		{"status:new -category:*", 2},
		{"status:new host:*", 1},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, err := domain.ParseQuery(tt.query)
			require.NoError(t, err)
			n, err := docs.Count(ctx, "docs", q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestDocumentStore_FetchByIDs_PreservesOrder(t *testing.T) {
	docs := setupTestStore(t).DocumentStore()
	ctx := context.Background()
	require.NoError(t, docs.Index(ctx, "docs", numbered(3)))

	got, failures, err := docs.FetchByIDs(ctx, "docs", []string{"doc-0002", "gone", "doc-0000"})

	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, got, 2)
	assert.Equal(t, "doc-0002", got[0].ID)
	assert.Equal(t, "doc-0000", got[1].ID)
	assert.Equal(t, 2.0, got[0].Fields["n"])
}

func TestDocumentStore_BulkWrite(t *testing.T) {
	docs := setupTestStore(t).DocumentStore()
	ctx := context.Background()
	require.NoError(t, docs.Index(ctx, "docs", []domain.Document{
		{ID: "a", Fields: map[string]any{"text": "x", "keep": true}},
		{ID: "b", Fields: map[string]any{"old": 1.0}},
	}))

	res, err := docs.BulkWrite(ctx, "docs", []driven.WriteOp{
		{ID: "a", Op: driven.OpUpdate, Body: map[string]any{"text": "y"}, RetryOnConflict: 3},
		{ID: "b", Op: driven.OpReplace, Body: map[string]any{"new": 2.0}},
		{ID: "missing", Op: driven.OpUpdate, Body: map[string]any{"text": "y"}},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "missing", res.Failures[0].ID)
	assert.ErrorIs(t, res.Failures[0].Err, domain.ErrNotFound)

	a, err := docs.Get(ctx, "docs", "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"text": "y", "keep": true}, a.Fields)
	assert.Equal(t, int64(2), a.Version)

	b, err := docs.Get(ctx, "docs", "b")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"new": 2.0}, b.Fields)
}

func TestDocumentStore_NamespacesAndDrop(t *testing.T) {
	docs := setupTestStore(t).DocumentStore()
	ctx := context.Background()
	require.NoError(t, docs.Index(ctx, "b", numbered(1)))
	require.NoError(t, docs.Index(ctx, "a", numbered(2)))

	names, err := docs.Namespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	require.NoError(t, docs.DropNamespace(ctx, "a"))
	names, err = docs.Namespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names)

	n, err := docs.Count(ctx, "a", domain.MatchAll())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDocumentStore_IndexRejectsEmptyID(t *testing.T) {
	docs := setupTestStore(t).DocumentStore()

	err := docs.Index(context.Background(), "docs", []domain.Document{{ID: ""}})

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
