package domain

import (
	"fmt"
	"time"
)

// ErrorKind classifies a per-document failure.
type ErrorKind string

// Per-document failure kinds.
const (
	ErrorKindTransform ErrorKind = "transform"
	ErrorKindFetch     ErrorKind = "fetch"
	ErrorKindWrite     ErrorKind = "write"
)

// ErrorRecord is one document's failure within a batch.
// It never aborts the rest of the batch.
type ErrorRecord struct {
	DocumentID string    `json:"document_id"`
	Kind       ErrorKind `json:"kind"`
	Reason     string    `json:"reason"`
}

func (r ErrorRecord) String() string {
	return fmt.Sprintf("%s (%s): %s", r.DocumentID, r.Kind, r.Reason)
}

// BatchOutcome reports what happened to each document of one task delivery.
type BatchOutcome struct {
	// Succeeded holds ids whose staged write was accepted.
	Succeeded []string `json:"succeeded,omitempty"`

	// Unchanged holds ids whose chain produced no updates.
	Unchanged []string `json:"unchanged,omitempty"`

	// Missing holds ids that no longer exist in the store.
	Missing []string `json:"missing,omitempty"`

	// Errors holds per-document failures of every kind.
	Errors []ErrorRecord `json:"errors,omitempty"`

	// Results holds computed documents in dry-run mode. In update mode each
	// result carries only the UpdateSet as its fields.
	Results []Document `json:"results,omitempty"`
}

// Failed reports whether any document failed.
func (o BatchOutcome) Failed() bool {
	return len(o.Errors) > 0
}

// FailedIDs returns the distinct failing ids in the order they were recorded.
func (o BatchOutcome) FailedIDs() []string {
	seen := make(map[string]struct{}, len(o.Errors))
	ids := make([]string, 0, len(o.Errors))
	for _, e := range o.Errors {
		if _, ok := seen[e.DocumentID]; ok {
			continue
		}
		seen[e.DocumentID] = struct{}{}
		ids = append(ids, e.DocumentID)
	}
	return ids
}

// RecordError appends a failure for one document.
func (o *BatchOutcome) RecordError(id string, kind ErrorKind, err error) {
	o.Errors = append(o.Errors, ErrorRecord{DocumentID: id, Kind: kind, Reason: err.Error()})
}

// TaskStatus is the state a delivery left its task in.
type TaskStatus string

// Task statuses.
const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskRetrying  TaskStatus = "retrying"
	TaskFailed    TaskStatus = "failed"
)

// IsTerminal reports whether no further delivery will happen.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// TaskReport is the result of one delivery of a task.
type TaskReport struct {
	TaskID     string        `json:"task_id"`
	Attempt    int           `json:"attempt"`
	Status     TaskStatus    `json:"status"`
	Outcome    BatchOutcome  `json:"outcome"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`

	// Error carries a task-fatal error message, if any.
	Error string `json:"error,omitempty"`
}
