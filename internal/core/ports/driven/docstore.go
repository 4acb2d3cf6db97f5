package driven

import (
	"context"
	"iter"

	"github.com/custodia-labs/derivex/internal/core/domain"
)

// WriteOpKind selects how a staged write is applied.
type WriteOpKind string

// Write operation kinds.
const (
	// OpUpdate merges Body into the stored fields (partial update).
	OpUpdate WriteOpKind = "update"

	// OpReplace replaces all stored fields with Body.
	OpReplace WriteOpKind = "replace"
)

// WriteOp is one staged write inside a bulk request.
type WriteOp struct {
	ID   string
	Op   WriteOpKind
	Body map[string]any

	// RetryOnConflict is how many times the store re-applies the op when the
	// document changed between read and write.
	RetryOnConflict int
}

// ItemFailure reports why a single document could not be read or written.
type ItemFailure struct {
	ID  string
	Err error
}

// BulkResult is the per-item outcome of a bulk write.
type BulkResult struct {
	Succeeded int
	Failures  []ItemFailure
}

// ScanOptions tunes a store scan.
type ScanOptions struct {
	// PageSize is how many documents the store reads per round trip.
	PageSize int

	// IDsOnly skips loading document fields.
	IDsOnly bool
}

// DocumentStore is the Store Gateway: a query-addressable document store
// partitioned into namespaces.
type DocumentStore interface {
	// Scan returns every document matching q in id order. Pages are fetched
	// lazily as the sequence is consumed. The sequence is finite and single pass.
	Scan(ctx context.Context, namespace string, q domain.Query, opts ScanOptions) iter.Seq2[domain.Document, error]

	// FetchByIDs loads the current version of each id. Ids that do not exist
	// are omitted from the result without being reported as failures.
	FetchByIDs(ctx context.Context, namespace string, ids []string) ([]domain.Document, []ItemFailure, error)

	// BulkWrite applies ops independently. A failing item never prevents the
	// others from being applied. The returned error is reserved for failures
	// of the request as a whole.
	BulkWrite(ctx context.Context, namespace string, ops []WriteOp) (BulkResult, error)

	// Count returns the number of documents matching q.
	Count(ctx context.Context, namespace string, q domain.Query) (int, error)

	// Index creates or replaces documents.
	Index(ctx context.Context, namespace string, docs []domain.Document) error

	// Get retrieves a single document. Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, namespace, id string) (*domain.Document, error)

	// DropNamespace removes every document in a namespace.
	DropNamespace(ctx context.Context, namespace string) error

	// Namespaces lists the namespaces holding at least one document.
	Namespaces(ctx context.Context) ([]string, error)
}
