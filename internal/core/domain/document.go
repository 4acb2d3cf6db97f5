package domain

import (
	"maps"
	"time"
)

// IDField is the internal identifier field. It is exposed to transformers as
// part of the original document but is never written back as a field.
const IDField = "_id"

// DefaultTimestampField is stamped on every written document unless suppressed.
const DefaultTimestampField = "last_updated"

// Document is a stored document as seen by the pipeline.
// The pipeline only holds a copy for the lifetime of one batch.
type Document struct {
	// ID is unique within a namespace.
	ID string

	// Fields is the JSON-like payload. Values are whatever encoding/json
	// produces: string, float64, bool, nil, []any and map[string]any.
	Fields map[string]any

	// Version increases on every write and backs optimistic concurrency.
	Version int64

	// UpdatedAt is when the document was last written.
	UpdatedAt time.Time
}

// Get returns a top-level field value.
func (d Document) Get(field string) (any, bool) {
	if field == IDField {
		return d.ID, d.ID != ""
	}
	v, ok := d.Fields[field]
	return v, ok
}

// Source returns the fields with the identifier included under IDField.
// The returned map is a shallow copy.
func (d Document) Source() map[string]any {
	src := make(map[string]any, len(d.Fields)+1)
	maps.Copy(src, d.Fields)
	src[IDField] = d.ID
	return src
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	d.Fields = deepCopyMap(d.Fields)
	return d
}

// UpdateSet maps field names to new values for one document.
// An empty UpdateSet means "no change".
type UpdateSet map[string]any

// IsEmpty reports whether the set carries no changes.
func (u UpdateSet) IsEmpty() bool {
	return len(u) == 0
}

// Clone returns a deep copy of the set.
func (u UpdateSet) Clone() UpdateSet {
	if u == nil {
		return UpdateSet{}
	}
	return UpdateSet(deepCopyMap(u))
}

// Merge copies every field of other into u, overwriting existing values.
func (u UpdateSet) Merge(other UpdateSet) {
	for k, v := range other {
		u[k] = v
	}
}

// Without returns a copy of the set with the named fields removed.
func (u UpdateSet) Without(fields ...string) UpdateSet {
	out := make(UpdateSet, len(u))
	maps.Copy(out, u)
	for _, f := range fields {
		delete(out, f)
	}
	return out
}

// Apply returns the fields of doc merged with the updates.
// The identifier field is never copied into the result.
func (u UpdateSet) Apply(doc Document) map[string]any {
	merged := deepCopyMap(doc.Fields)
	if merged == nil {
		merged = make(map[string]any, len(u))
	}
	for k, v := range u {
		if k == IDField {
			continue
		}
		merged[k] = v
	}
	return merged
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case UpdateSet:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = deepCopyValue(t[i])
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
