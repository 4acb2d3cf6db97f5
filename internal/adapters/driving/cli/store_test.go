package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/derivex/internal/core/domain"
)

func TestStoreCmd_HasSubcommands(t *testing.T) {
	names := make([]string, 0, len(storeCmd.Commands()))
	for _, cmd := range storeCmd.Commands() {
		names = append(names, cmd.Name())
	}

	assert.ElementsMatch(t, []string{"load", "count", "get", "drop", "clone", "namespaces"}, names)
}

func TestStoreLoadCmd_FromFile(t *testing.T) {
	env := setupTestServices(t)
	path := filepath.Join(t.TempDir(), "docs.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"id": "a", "text": "hello"}`+"\n"+
			`{"id": "b", "text": "world"}`+"\n"), 0600))

	out, err := run(t, "store", "load", "-i", "mail", path)

	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 2 documents into mail")
	n, err := env.store.Count(context.Background(), "mail", domain.MatchAll())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStoreLoadCmd_FromStdinWithIDField(t *testing.T) {
	env := setupTestServices(t)
	rootCmd.SetIn(strings.NewReader(`{"key": "k1", "v": 1}` + "\n"))
	defer rootCmd.SetIn(nil)

	_, err := run(t, "store", "load", "--id-field", "key", "-")

	require.NoError(t, err)
	doc, err := env.store.Get(context.Background(), "docs", "k1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, doc.Fields["v"])
}

func TestStoreLoadCmd_MissingFile(t *testing.T) {
	setupTestServices(t)

	_, err := run(t, "store", "load", filepath.Join(t.TempDir(), "nope.jsonl"))

	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStoreCountCmd(t *testing.T) {
	env := setupTestServices(t)
	env.seed(t, 1200)

	out, err := run(t, "store", "count")
	require.NoError(t, err)
	assert.Equal(t, "1,200\n", out)

	out, err = run(t, "store", "count", "text:quarterly*")
	require.NoError(t, err)
	assert.Equal(t, "600\n", out)

	out, err = run(t, "store", "count", "-q", "-text:quarterly*")
	require.NoError(t, err)
	assert.Equal(t, "600\n", out)
}

func TestStoreGetCmd(t *testing.T) {
	env := setupTestServices(t)
	env.seed(t, 2)

	out, err := run(t, "store", "get", "doc-01")
	require.NoError(t, err)
	assert.Contains(t, out, `"text": "please verify your account"`)
	assert.Contains(t, out, "version 1")

	_, err = run(t, "store", "get", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStoreDropCmd_RequiresConfirmation(t *testing.T) {
	env := setupTestServices(t)
	env.seed(t, 2)

	_, err := run(t, "store", "drop")
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	out, err := run(t, "store", "drop", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Dropped namespace docs")

	namespaces, err := env.store.Namespaces(context.Background())
	require.NoError(t, err)
	assert.Empty(t, namespaces)
}

func TestStoreCloneCmd(t *testing.T) {
	env := setupTestServices(t)
	env.seed(t, 5)

	out, err := run(t, "store", "clone", "docs", "backup")

	require.NoError(t, err)
	assert.Contains(t, out, "Cloning 5 documents from docs to backup")
	assert.Contains(t, out, "5/5 (100%)")
	assert.Contains(t, out, "Cloned 5 documents")
	n, err := env.store.Count(context.Background(), "backup", domain.MatchAll())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestStoreCloneCmd_NonEmptyTargetNeedsConfirmation(t *testing.T) {
	env := setupTestServices(t)
	env.seed(t, 3)
	require.NoError(t, env.store.Index(context.Background(), "backup",
		[]domain.Document{{ID: "old", Fields: map[string]any{"text": "kept"}}}))

	_, err := run(t, "store", "clone", "docs", "backup")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "already holds 1 documents")

	_, err = run(t, "store", "clone", "docs", "backup", "--yes")
	require.NoError(t, err)
	n, err := env.store.Count(context.Background(), "backup", domain.MatchAll())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestStoreCloneCmd_OntoItself(t *testing.T) {
	setupTestServices(t)

	_, err := run(t, "store", "clone", "docs", "docs")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStoreNamespacesCmd(t *testing.T) {
	env := setupTestServices(t)

	out, err := run(t, "store", "namespaces")
	require.NoError(t, err)
	assert.Contains(t, out, "No namespaces found.")

	env.seed(t, 1)
	out, err = run(t, "store", "namespaces")
	require.NoError(t, err)
	assert.Equal(t, "docs\n", out)
}
