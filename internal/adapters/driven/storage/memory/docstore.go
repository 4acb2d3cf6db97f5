package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interface.
var _ driven.DocumentStore = (*DocumentStore)(nil)

// entry is a stored document. Fields are kept encoded so that every read
// hands out an independent copy.
type entry struct {
	fields    []byte
	version   int64
	updatedAt time.Time
}

// DocumentStore is an in-memory implementation of driven.DocumentStore.
type DocumentStore struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]*entry
	now        func() time.Time

	// Fault injection for tests.
	fetchErrs map[string]error
	conflicts map[string]int
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		namespaces: make(map[string]map[string]*entry),
		now:        time.Now,
		fetchErrs:  make(map[string]error),
		conflicts:  make(map[string]int),
	}
}

// FailFetch makes FetchByIDs report err for id.
func (s *DocumentStore) FailFetch(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErrs[id] = err
}

// SimulateConflicts makes the next n write attempts on id lose a race
// against a concurrent writer.
func (s *DocumentStore) SimulateConflicts(id string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts[id] = n
}

// Scan returns matching documents in id order, one page at a time.
func (s *DocumentStore) Scan(ctx context.Context, namespace string, q domain.Query, opts driven.ScanOptions) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		pageSize := opts.PageSize
		if pageSize <= 0 {
			pageSize = 1000
		}

		after := ""
		for {
			if err := ctx.Err(); err != nil {
				yield(domain.Document{}, err)
				return
			}

			page, err := s.page(namespace, q, after, pageSize, opts.IDsOnly)
			if err != nil {
				yield(domain.Document{}, err)
				return
			}
			for _, doc := range page {
				if !yield(doc, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			after = page[len(page)-1].ID
		}
	}
}

// page returns up to size matching documents with ids greater than after.
func (s *DocumentStore) page(namespace string, q domain.Query, after string, size int, idsOnly bool) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.namespaces[namespace]
	ids := slices.Sorted(maps.Keys(docs))
	start, _ := slices.BinarySearch(ids, after)
	if after != "" && start < len(ids) && ids[start] == after {
		start++
	}

	page := make([]domain.Document, 0, size)
	for _, id := range ids[start:] {
		e := docs[id]
		if !matches(q, id, e.fields) {
			continue
		}
		if idsOnly {
			page = append(page, domain.Document{ID: id, Version: e.version, UpdatedAt: e.updatedAt})
		} else {
			doc, err := e.decode(id)
			if err != nil {
				return nil, err
			}
			page = append(page, doc)
		}
		if len(page) == size {
			break
		}
	}
	return page, nil
}

// FetchByIDs loads the current version of each id, in the order given.
func (s *DocumentStore) FetchByIDs(_ context.Context, namespace string, ids []string) ([]domain.Document, []driven.ItemFailure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.namespaces[namespace]
	out := make([]domain.Document, 0, len(ids))
	var failures []driven.ItemFailure
	for _, id := range ids {
		if err, ok := s.fetchErrs[id]; ok {
			failures = append(failures, driven.ItemFailure{ID: id, Err: err})
			continue
		}
		e, ok := docs[id]
		if !ok {
			continue
		}
		doc, err := e.decode(id)
		if err != nil {
			failures = append(failures, driven.ItemFailure{ID: id, Err: err})
			continue
		}
		out = append(out, doc)
	}
	return out, failures, nil
}

// BulkWrite applies each op independently.
func (s *DocumentStore) BulkWrite(ctx context.Context, namespace string, ops []driven.WriteOp) (driven.BulkResult, error) {
	if err := ctx.Err(); err != nil {
		return driven.BulkResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var res driven.BulkResult
	for _, op := range ops {
		if err := s.apply(namespace, op); err != nil {
			res.Failures = append(res.Failures, driven.ItemFailure{ID: op.ID, Err: err})
			continue
		}
		res.Succeeded++
	}
	return res, nil
}

// apply writes one op, retrying up to op.RetryOnConflict times when the
// stored version moved between read and write. Callers hold the lock.
func (s *DocumentStore) apply(namespace string, op driven.WriteOp) error {
	for attempt := 0; attempt <= op.RetryOnConflict; attempt++ {
		e, ok := s.namespaces[namespace][op.ID]
		if !ok {
			return fmt.Errorf("document %s: %w", op.ID, domain.ErrNotFound)
		}
		readVersion := e.version

		if s.conflicts[op.ID] > 0 {
			s.conflicts[op.ID]--
			e.version++
		}
		if e.version != readVersion {
			continue
		}

		var fields map[string]any
		switch op.Op {
		case driven.OpReplace:
			fields = op.Body
		case driven.OpUpdate:
			if err := json.Unmarshal(e.fields, &fields); err != nil {
				return fmt.Errorf("decode %s: %w", op.ID, err)
			}
			if fields == nil {
				fields = make(map[string]any, len(op.Body))
			}
			for k, v := range op.Body {
				fields[k] = v
			}
		default:
			return fmt.Errorf("%w: write op %q", domain.ErrInvalidInput, op.Op)
		}

		data, err := encodeFields(fields)
		if err != nil {
			return err
		}
		e.fields = data
		e.version++
		e.updatedAt = s.now().UTC()
		return nil
	}
	return fmt.Errorf("document %s after %d retries: %w", op.ID, op.RetryOnConflict, domain.ErrVersionConflict)
}

// Count returns the number of documents matching q.
func (s *DocumentStore) Count(_ context.Context, namespace string, q domain.Query) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for id, e := range s.namespaces[namespace] {
		if matches(q, id, e.fields) {
			n++
		}
	}
	return n, nil
}

// Index creates or replaces documents.
func (s *DocumentStore) Index(_ context.Context, namespace string, docs []domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		ns = make(map[string]*entry)
		s.namespaces[namespace] = ns
	}
	for _, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("%w: empty document id", domain.ErrInvalidInput)
		}
		data, err := encodeFields(doc.Fields)
		if err != nil {
			return err
		}
		version := int64(1)
		if prev, ok := ns[doc.ID]; ok {
			version = prev.version + 1
		}
		ns[doc.ID] = &entry{fields: data, version: version, updatedAt: s.now().UTC()}
	}
	return nil
}

// Get retrieves a single document.
func (s *DocumentStore) Get(_ context.Context, namespace, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.namespaces[namespace][id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	doc, err := e.decode(id)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// DropNamespace removes every document in a namespace.
func (s *DocumentStore) DropNamespace(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces, namespace)
	return nil
}

// Namespaces lists the namespaces holding at least one document.
func (s *DocumentStore) Namespaces(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.namespaces))
	for name, docs := range s.namespaces {
		if len(docs) > 0 {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func (e *entry) decode(id string) (domain.Document, error) {
	var fields map[string]any
	if err := json.Unmarshal(e.fields, &fields); err != nil {
		return domain.Document{}, fmt.Errorf("decode %s: %w", id, err)
	}
	return domain.Document{ID: id, Fields: fields, Version: e.version, UpdatedAt: e.updatedAt}, nil
}

func encodeFields(fields map[string]any) ([]byte, error) {
	clean := make(map[string]any, len(fields))
	for k, v := range fields {
		if k != domain.IDField {
			clean[k] = v
		}
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	return data, nil
}

// matches evaluates q against one stored document.
func matches(q domain.Query, id string, fields []byte) bool {
	for _, c := range q.Clauses {
		if !matchClause(c, id, fields) {
			return false
		}
	}
	return true
}

func matchClause(c domain.Clause, id string, fields []byte) bool {
	if c.Op == domain.OpIDs {
		return slices.Contains(c.Values, id)
	}

	var values []string
	if c.Field == domain.IDField {
		values = []string{id}
	} else {
		r := gjson.GetBytes(fields, c.Field)
		present := r.Exists() && r.Type != gjson.Null
		switch c.Op {
		case domain.OpExists:
			return present
		case domain.OpMissing:
			return !present
		}
		if !present {
			return false
		}
		if r.IsArray() {
			for _, item := range r.Array() {
				values = append(values, item.String())
			}
		} else {
			values = []string{r.String()}
		}
	}

	for _, v := range values {
		switch c.Op {
		case domain.OpEquals:
			if v == c.Value {
				return true
			}
		case domain.OpPrefix:
			if strings.HasPrefix(v, c.Value) {
				return true
			}
		case domain.OpExists:
			return true
		}
	}
	return false
}
