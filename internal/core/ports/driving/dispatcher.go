package driving

import (
	"context"

	"github.com/custodia-labs/derivex/internal/core/domain"
)

// DispatchRequest describes one derivation pass over a selection of documents.
type DispatchRequest struct {
	// Namespace is the store namespace to select from.
	Namespace string

	// Query selects the documents.
	Query domain.Query

	// Transformers are registry names, in chain order.
	Transformers []string

	// Params are passed to transformer builders.
	Params map[string]any

	// Tag labels the pass.
	Tag string

	// Limit caps the number of documents. Zero means no limit.
	Limit int

	// PageSize overrides the configured batch size when positive.
	PageSize int

	// Reindex requests full-document replace instead of partial update.
	Reindex bool

	// DryRun computes results without writing.
	DryRun bool

	// Now runs every task synchronously instead of submitting it.
	Now bool

	// SkipTimestamp suppresses the last-updated stamp.
	SkipTimestamp bool
}

// DispatchReport summarises a dispatch.
type DispatchReport struct {
	// Batches is the number of tasks created.
	Batches int

	// Documents is the number of document ids dispatched.
	Documents int

	// TaskIDs lists the created tasks in dispatch order.
	TaskIDs []string

	// Reports holds per-task reports when tasks ran synchronously or were awaited.
	Reports []domain.TaskReport

	// Succeeded and Failed sum the per-document outcomes of awaited tasks.
	Succeeded int
	Failed    int
}

// Dispatcher splits a selection into batches and hands one task per batch to the queue.
type Dispatcher interface {
	// Dispatch runs the pass. On a cursor error the partial report is
	// returned with the error; tasks already submitted are not recalled.
	Dispatch(ctx context.Context, req DispatchRequest) (*DispatchReport, error)
}
