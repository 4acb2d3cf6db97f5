package driving

import (
	"context"
	"io"

	"github.com/custodia-labs/derivex/internal/core/domain"
)

// DocumentService manages documents within namespaces.
type DocumentService interface {
	// Load indexes newline-delimited JSON records from r. The record field
	// named idField becomes the document id. Returns the number indexed.
	Load(ctx context.Context, namespace string, r io.Reader, idField string) (int, error)

	// Count returns the number of documents matching q.
	Count(ctx context.Context, namespace string, q domain.Query) (int, error)

	// Get retrieves a document by ID.
	Get(ctx context.Context, namespace, id string) (*domain.Document, error)

	// Drop removes a namespace and all of its documents.
	Drop(ctx context.Context, namespace string) error

	// Clone copies every document of from into to, replacing documents with
	// the same id. progress, when set, receives the running copied count
	// after each chunk. Returns the number copied.
	Clone(ctx context.Context, from, to string, progress func(copied int)) (int, error)

	// Namespaces lists namespaces holding documents.
	Namespaces(ctx context.Context) ([]string, error)
}

// FailureService inspects and requeues exhausted tasks.
type FailureService interface {
	// List returns dead letters, most recent first.
	List(ctx context.Context, limit int) ([]domain.DeadLetter, error)

	// Requeue resubmits a dead letter as a fresh task limited to its failed
	// ids and removes it. Returns the new task id.
	Requeue(ctx context.Context, taskID string) (string, error)
}
