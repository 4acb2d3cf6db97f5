package domain

import "fmt"

// Batch is an ordered, bounded sequence of document ids.
// It is immutable once built.
type Batch struct {
	ids []string
}

// NewBatch builds a batch from ids in scan order.
// Empty and duplicate ids are rejected.
func NewBatch(ids []string) (Batch, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			return Batch{}, fmt.Errorf("%w: empty document id", ErrInvalidInput)
		}
		if _, dup := seen[id]; dup {
			return Batch{}, fmt.Errorf("%w: duplicate document id %q", ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return Batch{ids: out}, nil
}

// IDs returns a copy of the batch ids.
func (b Batch) IDs() []string {
	return append([]string(nil), b.ids...)
}

// Len returns the number of ids in the batch.
func (b Batch) Len() int {
	return len(b.ids)
}

// IsEmpty reports whether the batch has no ids.
func (b Batch) IsEmpty() bool {
	return len(b.ids) == 0
}
