package services

import (
	"context"
	"fmt"
	"iter"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
)

// CursorOptions tunes how a selection is split into batches.
type CursorOptions struct {
	// PageSize is the maximum number of ids per batch.
	PageSize int

	// Limit caps the total number of ids. Zero means no limit.
	Limit int

	// IDsOnly asks the store not to load document fields.
	IDsOnly bool
}

// BatchCursor pages through a store selection and groups ids into batches.
type BatchCursor struct {
	store driven.DocumentStore
}

// NewBatchCursor creates a cursor over store.
func NewBatchCursor(store driven.DocumentStore) *BatchCursor {
	return &BatchCursor{store: store}
}

// Batches returns the selection as a sequence of batches in scan order.
//
// The sequence ends when the scan is exhausted or the limit is reached; the
// last batch is truncated to the limit. A scan error or cancellation is
// yielded once and ends the sequence. Batches already yielded stay valid.
func (c *BatchCursor) Batches(ctx context.Context, namespace string, q domain.Query, opts CursorOptions) iter.Seq2[domain.Batch, error] {
	return func(yield func(domain.Batch, error) bool) {
		size := opts.PageSize
		if size <= 0 {
			yield(domain.Batch{}, fmt.Errorf("%w: page size must be positive", domain.ErrInvalidInput))
			return
		}
		if opts.Limit > 0 && opts.Limit < size {
			size = opts.Limit
		}

		ids := make([]string, 0, size)
		seen := make(map[string]struct{}, size)
		emitted := 0

		flush := func() bool {
			if len(ids) == 0 {
				return true
			}
			if err := ctx.Err(); err != nil {
				yield(domain.Batch{}, err)
				return false
			}
			batch, err := domain.NewBatch(ids)
			if err != nil {
				yield(domain.Batch{}, err)
				return false
			}
			emitted += len(ids)
			ids = make([]string, 0, size)
			clear(seen)
			return yield(batch, nil)
		}

		scan := c.store.Scan(ctx, namespace, q, driven.ScanOptions{PageSize: size, IDsOnly: opts.IDsOnly})
		for doc, err := range scan {
			if err != nil {
				yield(domain.Batch{}, fmt.Errorf("scan %s: %w", namespace, err))
				return
			}
			if opts.Limit > 0 && emitted+len(ids) >= opts.Limit {
				break
			}
			if _, dup := seen[doc.ID]; dup {
				continue
			}
			seen[doc.ID] = struct{}{}
			ids = append(ids, doc.ID)

			if len(ids) == size {
				if !flush() {
					return
				}
				if opts.Limit > 0 && emitted >= opts.Limit {
					return
				}
			}
		}
		flush()
	}
}
