package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/transformers"
)

func TestEnqueueCmd_RequiresQuery(t *testing.T) {
	setupTestServices(t)

	_, err := run(t, "enqueue")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "a query is required")
}

func TestEnqueueCmd_NegatedQueryFromFlag(t *testing.T) {
	env := setupTestServices(t)
	env.seed(t, 6)

	out, err := run(t, "enqueue", "-T", "classify", "-q", "-category:*", "--now")

	require.NoError(t, err)
	assert.Contains(t, out, "Processed 6 documents")

	n, err := env.store.Count(context.Background(), "docs", mustQuery(t, "-category:*"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEnqueueCmd_NegatedQueryAfterDoubleDash(t *testing.T) {
	env := setupTestServices(t)
	env.seed(t, 5)

	out, err := run(t, "enqueue", "-T", "classify", "--", "-category:*")

	require.NoError(t, err)
	assert.Contains(t, out, "Queued 5 documents in 2 tasks")
}

func TestEnqueueCmd_QueryGivenTwice(t *testing.T) {
	env := setupTestServices(t)
	env.seed(t, 2)

	_, err := run(t, "enqueue", "-T", "classify", "-q", "*", "*")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, env.queue.Pending())
}

func TestEnqueueCmd_QueuesOneTaskPerBatch(t *testing.T) {
	env := setupTestServices(t)
	env.seed(t, 10)

	out, err := run(t, "enqueue", "-T", "classify", "-t", "nightly", "*")

	require.NoError(t, err)
	assert.Contains(t, out, "Queued 10 documents in 3 tasks")
	assert.Equal(t, 3, env.queue.Pending())
}

func TestEnqueueCmd_NowProcessesInline(t *testing.T) {
	env := setupTestServices(t)
	env.seed(t, 10)

	out, err := run(t, "enqueue", "-T", "classify", "-t", "nightly", "--now", "-l", "6", "*")

	require.NoError(t, err)
	assert.Contains(t, out, "Processed 6 documents in 2 tasks")
	assert.Contains(t, out, "Succeeded: 6")
	assert.Zero(t, env.queue.Pending())

	doc, err := env.store.Get(context.Background(), "docs", "doc-01")
	require.NoError(t, err)
	assert.Equal(t, "phishing", doc.Fields["category"])
	assert.Equal(t, "nightly", doc.Fields["classified_by"])

	n, err := env.store.Count(context.Background(), "docs", mustQuery(t, "-category:*"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestEnqueueCmd_EphemeralPrintsWithoutWriting(t *testing.T) {
	env := setupTestServices(t)
	env.seed(t, 4)

	out, err := run(t, "enqueue", "-T", "classify", "-e", "-n", "_id:doc-01")

	require.NoError(t, err)
	assert.Contains(t, out, `"category": "phishing"`)
	assert.Contains(t, out, `"_id": "doc-01"`)

	doc, err := env.store.Get(context.Background(), "docs", "doc-01")
	require.NoError(t, err)
	assert.NotContains(t, doc.Fields, "category")
}

func TestEnqueueCmd_ParamsReachTransformers(t *testing.T) {
	env := setupTestServices(t)
	env.seed(t, 2)

	_, err := run(t, "enqueue", "-T", "wordcount", "-n",
		"--param", "wordcount_target=words", "*")

	require.NoError(t, err)
	doc, err := env.store.Get(context.Background(), "docs", "doc-00")
	require.NoError(t, err)
	assert.EqualValues(t, 2, doc.Fields["words"])
}

func TestEnqueueCmd_WarnsWithoutTransformer(t *testing.T) {
	env := setupTestServices(t)
	env.seed(t, 1)

	out, err := run(t, "enqueue", "-n", "*")

	require.NoError(t, err)
	assert.Contains(t, out, "nothing will be written")

	doc, err := env.store.Get(context.Background(), "docs", "doc-00")
	require.NoError(t, err)
	assert.NotContains(t, doc.Fields, transformers.DerivationField)
}

func TestEnqueueCmd_TagOnlyPassStampsDocuments(t *testing.T) {
	env := setupTestServices(t)
	env.seed(t, 3)

	out, err := run(t, "enqueue", "-t", "audit", "-n", "*")

	require.NoError(t, err)
	assert.Contains(t, out, "only the tag will be written")
	assert.Contains(t, out, "Succeeded: 3")

	doc, err := env.store.Get(context.Background(), "docs", "doc-02")
	require.NoError(t, err)
	stamp, ok := doc.Fields[transformers.DerivationField].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "audit", stamp["tag"])
}

func TestEnqueueCmd_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"unknown transformer", []string{"enqueue", "-T", "nope", "*"}, domain.ErrUnknownTransformer},
		{"bad query", []string{"enqueue", "-T", "classify", "status"}, domain.ErrInvalidQuery},
		{"bad param", []string{"enqueue", "-T", "classify", "--param", "novalue", "*"}, domain.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestServices(t)
			env.seed(t, 2)

			_, err := run(t, tt.args...)

			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, env.queue.Pending())
		})
	}
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{
		"field=text",
		"count=3",
		"flag=true",
		`rules={"spam":["buy now"]}`,
		"list=a,b",
		"empty=",
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"field": "text",
		"count": float64(3),
		"flag":  true,
		"rules": map[string]any{"spam": []any{"buy now"}},
		"list":  "a,b",
		"empty": "",
	}, params)

	none, err := parseParams(nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func mustQuery(t *testing.T, s string) domain.Query {
	t.Helper()
	q, err := domain.ParseQuery(s)
	require.NoError(t, err)
	return q
}
