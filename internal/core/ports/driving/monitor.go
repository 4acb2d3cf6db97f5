package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/derivex/internal/core/domain"
)

// Progress is one sample taken by the monitor.
type Progress struct {
	// At is when the sample was taken.
	At time.Time

	// Matching is the number of documents still matching the query.
	Matching int

	// Total is the number of documents in the namespace.
	Total int

	// Delta is how many documents stopped matching since the previous sample.
	Delta int

	// Processed is how many documents stopped matching since the first sample.
	Processed int

	// Rate is documents per second over the whole run.
	Rate float64

	// ETA estimates when Matching reaches zero. Zero when unknown.
	ETA time.Duration
}

// Monitor samples how many documents still match a query over time.
type Monitor interface {
	// Sample takes one measurement relative to prev (nil for the first).
	Sample(ctx context.Context, namespace string, q domain.Query, prev *Progress, start time.Time) (Progress, error)

	// Watch samples every interval and sends each sample on the returned
	// channel until ctx is cancelled.
	Watch(ctx context.Context, namespace string, q domain.Query, interval time.Duration) (<-chan Progress, <-chan error)
}
