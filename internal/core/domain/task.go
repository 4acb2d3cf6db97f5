package domain

import (
	"encoding/json"
	"time"
)

// WriteMode selects how changed documents are written back.
type WriteMode string

// Available write modes.
const (
	// ModeUpdate writes only the changed fields (partial update).
	ModeUpdate WriteMode = "update"

	// ModeReindex replaces the whole document with the merged result.
	ModeReindex WriteMode = "reindex"
)

// IsValid returns true if the mode is recognised.
func (m WriteMode) IsValid() bool {
	return m == ModeUpdate || m == ModeReindex
}

// Task is one unit of work: a batch plus the chain to run over it.
// A retried task is the same value with Attempt incremented.
type Task struct {
	// ID identifies the task across deliveries.
	ID string

	// Namespace is the store namespace (index) the batch belongs to.
	Namespace string

	// Batch holds the document ids to process.
	Batch Batch

	// Transformers are registry names, in chain order.
	Transformers []string

	// Params are passed to transformer builders and the transform context.
	Params map[string]any

	// Tag labels the pass that produced an update.
	Tag string

	// Mode selects partial update or full reindex.
	Mode WriteMode

	// DryRun computes results without writing.
	DryRun bool

	// SkipTimestamp suppresses the last-updated stamp.
	SkipTimestamp bool

	// Attempt counts deliveries, starting at 0.
	Attempt int

	// CreatedAt is when the task was dispatched.
	CreatedAt time.Time
}

// NextAttempt returns the same task for its next delivery.
func (t Task) NextAttempt() Task {
	t.Attempt++
	return t
}

// UpdatesOnly reports whether the chain should return only the UpdateSet.
func (t Task) UpdatesOnly() bool {
	return t.Mode != ModeReindex
}

// taskJSON is the wire form of a Task. Batch ids are unexported on Batch.
type taskJSON struct {
	ID            string         `json:"id"`
	Namespace     string         `json:"namespace"`
	IDs           []string       `json:"ids"`
	Transformers  []string       `json:"transformers"`
	Params        map[string]any `json:"params,omitempty"`
	Tag           string         `json:"tag,omitempty"`
	Mode          WriteMode      `json:"mode"`
	DryRun        bool           `json:"dry_run,omitempty"`
	SkipTimestamp bool           `json:"skip_timestamp,omitempty"`
	Attempt       int            `json:"attempt"`
	CreatedAt     time.Time      `json:"created_at"`
}

// MarshalJSON encodes the task for queue persistence.
func (t Task) MarshalJSON() ([]byte, error) {
	return json.Marshal(taskJSON{
		ID:            t.ID,
		Namespace:     t.Namespace,
		IDs:           t.Batch.ids,
		Transformers:  t.Transformers,
		Params:        t.Params,
		Tag:           t.Tag,
		Mode:          t.Mode,
		DryRun:        t.DryRun,
		SkipTimestamp: t.SkipTimestamp,
		Attempt:       t.Attempt,
		CreatedAt:     t.CreatedAt,
	})
}

// UnmarshalJSON decodes a persisted task, re-validating its batch.
func (t *Task) UnmarshalJSON(data []byte) error {
	var raw taskJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	batch, err := NewBatch(raw.IDs)
	if err != nil {
		return err
	}
	*t = Task{
		ID:            raw.ID,
		Namespace:     raw.Namespace,
		Batch:         batch,
		Transformers:  raw.Transformers,
		Params:        raw.Params,
		Tag:           raw.Tag,
		Mode:          raw.Mode,
		DryRun:        raw.DryRun,
		SkipTimestamp: raw.SkipTimestamp,
		Attempt:       raw.Attempt,
		CreatedAt:     raw.CreatedAt,
	}
	return nil
}
