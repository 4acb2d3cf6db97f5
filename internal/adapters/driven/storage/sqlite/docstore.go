package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"

	sq "github.com/Masterminds/squirrel"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
)

// fetchChunk bounds the number of ids bound into one IN clause.
const fetchChunk = 500

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

// textValue renders a json_each value the way it reads as text in JSON.
const textValue = "CASE j.type WHEN 'true' THEN 'true' WHEN 'false' THEN 'false' ELSE CAST(j.value AS TEXT) END"

// Scan returns matching documents in id order, one keyset page at a time.
func (s *documentStore) Scan(ctx context.Context, namespace string, q domain.Query, opts driven.ScanOptions) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		pageSize := opts.PageSize
		if pageSize <= 0 {
			pageSize = 1000
		}

		after := ""
		for {
			page, err := s.page(ctx, namespace, q, after, pageSize, opts.IDsOnly)
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

func (s *documentStore) page(ctx context.Context, namespace string, q domain.Query, after string, size int, idsOnly bool) ([]domain.Document, error) {
	b := s.selectDocs(namespace, q, idsOnly).OrderBy("id").Limit(uint64(size))
	if after != "" {
		b = b.Where(sq.Gt{"id": after})
	}

	rows, err := b.QueryContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, handleSQLError(err)
	}
	defer rows.Close()

	page := make([]domain.Document, 0, size)
	for rows.Next() {
		doc, err := scanDocument(rows, !idsOnly)
		if err != nil {
			return nil, err
		}
		page = append(page, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return page, nil
}

func (s *documentStore) selectDocs(namespace string, q domain.Query, idsOnly bool) sq.SelectBuilder {
	cols := []string{"id", "version", "updated_at"}
	if !idsOnly {
		cols = append(cols, "fields")
	}
	b := s.store.stbl.Select(cols...).From("documents").Where(sq.Eq{"namespace": namespace})
	for _, c := range q.Clauses {
		b = b.Where(clauseSQL(c))
	}
	return b
}

// clauseSQL compiles one selector clause.
func clauseSQL(c domain.Clause) sq.Sqlizer {
	if c.Op == domain.OpIDs {
		return sq.Eq{"id": c.Values}
	}
	if c.Field == domain.IDField {
		switch c.Op {
		case domain.OpEquals:
			return sq.Eq{"id": c.Value}
		case domain.OpPrefix:
			return sq.Expr("substr(id, 1, ?) = ?", utf8.RuneCountInString(c.Value), c.Value)
		case domain.OpExists:
			return sq.Expr("1 = 1")
		default:
			return sq.Expr("1 = 0")
		}
	}

	path := jsonPath(c.Field)
	switch c.Op {
	case domain.OpExists:
		return sq.Expr("coalesce(json_type(fields, ?), 'null') != 'null'", path)
	case domain.OpMissing:
		return sq.Expr("coalesce(json_type(fields, ?), 'null') = 'null'", path)
	case domain.OpPrefix:
		return sq.Expr(
			"json_type(fields, ?) != 'object' AND EXISTS (SELECT 1 FROM json_each(documents.fields, ?) AS j WHERE substr("+textValue+", 1, ?) = ?)",
			path, path, utf8.RuneCountInString(c.Value), c.Value)
	default:
		return sq.Expr(
			"json_type(fields, ?) != 'object' AND EXISTS (SELECT 1 FROM json_each(documents.fields, ?) AS j WHERE "+textValue+" = ?)",
			path, path, c.Value)
	}
}

// jsonPath converts a dotted field path into a JSON1 path.
func jsonPath(field string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, part := range strings.Split(field, ".") {
		b.WriteString(`."`)
		b.WriteString(part)
		b.WriteString(`"`)
	}
	return b.String()
}

// FetchByIDs loads the current version of each id, in the order given.
func (s *documentStore) FetchByIDs(ctx context.Context, namespace string, ids []string) ([]domain.Document, []driven.ItemFailure, error) {
	found := make(map[string]domain.Document, len(ids))
	var failures []driven.ItemFailure

	for start := 0; start < len(ids); start += fetchChunk {
		chunk := ids[start:min(start+fetchChunk, len(ids))]
		rows, err := s.store.stbl.
			Select("id", "version", "updated_at", "fields").
			From("documents").
			Where(sq.Eq{"namespace": namespace, "id": chunk}).
			QueryContext(ctx)
		if err != nil {
			return nil, nil, handleSQLError(err)
		}

		for rows.Next() {
			var id string
			doc, err := scanDocumentID(rows, &id)
			if err != nil {
				failures = append(failures, driven.ItemFailure{ID: id, Err: err})
				continue
			}
			found[doc.ID] = doc
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("iterating documents: %w", err)
		}
	}

	docs := make([]domain.Document, 0, len(found))
	for _, id := range ids {
		if doc, ok := found[id]; ok {
			docs = append(docs, doc)
		}
	}
	return docs, failures, nil
}

// BulkWrite applies each op independently with an optimistic version check.
func (s *documentStore) BulkWrite(ctx context.Context, namespace string, ops []driven.WriteOp) (driven.BulkResult, error) {
	if err := ctx.Err(); err != nil {
		return driven.BulkResult{}, err
	}

	var res driven.BulkResult
	for _, op := range ops {
		if err := s.apply(ctx, namespace, op); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failures = append(res.Failures, driven.ItemFailure{ID: op.ID, Err: err})
			continue
		}
		res.Succeeded++
	}
	return res, nil
}

// apply writes one op, re-reading and retrying up to op.RetryOnConflict
// times when another writer bumped the version in between.
func (s *documentStore) apply(ctx context.Context, namespace string, op driven.WriteOp) error {
	for attempt := 0; attempt <= op.RetryOnConflict; attempt++ {
		var raw string
		var version int64
		err := s.store.stbl.
			Select("fields", "version").
			From("documents").
			Where(sq.Eq{"namespace": namespace, "id": op.ID}).
			QueryRowContext(ctx).
			Scan(&raw, &version)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("document %s: %w", op.ID, domain.ErrNotFound)
		}
		if err != nil {
			return handleSQLError(err)
		}

		var fields map[string]any
		switch op.Op {
		case driven.OpReplace:
			fields = op.Body
		case driven.OpUpdate:
			if err := json.Unmarshal([]byte(raw), &fields); err != nil {
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

		var affected int64
		err = busyRetry(func() error {
			result, err := s.store.stbl.Update("documents").
				Set("fields", data).
				Set("version", version+1).
				Set("updated_at", formatTime(s.store.now())).
				Where(sq.Eq{"namespace": namespace, "id": op.ID, "version": version}).
				ExecContext(ctx)
			if err != nil {
				return err
			}
			affected, err = result.RowsAffected()
			return err
		})
		if err != nil {
			return handleSQLError(err)
		}
		if affected == 1 {
			return nil
		}
	}
	return fmt.Errorf("document %s after %d retries: %w", op.ID, op.RetryOnConflict, domain.ErrVersionConflict)
}

// Count returns the number of documents matching q.
func (s *documentStore) Count(ctx context.Context, namespace string, q domain.Query) (int, error) {
	b := s.store.stbl.Select("COUNT(*)").From("documents").Where(sq.Eq{"namespace": namespace})
	for _, c := range q.Clauses {
		b = b.Where(clauseSQL(c))
	}
	var n int
	if err := b.QueryRowContext(ctx).Scan(&n); err != nil {
		return 0, handleSQLError(err)
	}
	return n, nil
}

// Index creates or replaces documents in a single transaction.
func (s *documentStore) Index(ctx context.Context, namespace string, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}
	return busyRetry(func() error {
		tx, err := s.store.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		now := formatTime(s.store.now())
		for _, doc := range docs {
			if doc.ID == "" {
				return fmt.Errorf("%w: empty document id", domain.ErrInvalidInput)
			}
			data, err := encodeFields(doc.Fields)
			if err != nil {
				return err
			}
			_, err = sq.Insert("documents").
				Columns("namespace", "id", "fields", "version", "updated_at").
				Values(namespace, doc.ID, data, 1, now).
				Suffix("ON CONFLICT(namespace, id) DO UPDATE SET fields = excluded.fields, version = documents.version + 1, updated_at = excluded.updated_at").
				RunWith(tx).
				ExecContext(ctx)
			if err != nil {
				return fmt.Errorf("indexing %s: %w", doc.ID, err)
			}
		}
		return tx.Commit()
	})
}

// Get retrieves a single document.
func (s *documentStore) Get(ctx context.Context, namespace, id string) (*domain.Document, error) {
	rows, err := s.selectDocs(namespace, domain.IDsQuery(id), false).QueryContext(ctx)
	if err != nil {
		return nil, handleSQLError(err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, handleSQLError(err)
		}
		return nil, domain.ErrNotFound
	}
	doc, err := scanDocument(rows, true)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// DropNamespace removes every document in a namespace.
func (s *documentStore) DropNamespace(ctx context.Context, namespace string) error {
	return busyRetry(func() error {
		_, err := s.store.stbl.Delete("documents").Where(sq.Eq{"namespace": namespace}).ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("dropping namespace %s: %w", namespace, err)
		}
		return nil
	})
}

// Namespaces lists the namespaces holding at least one document.
func (s *documentStore) Namespaces(ctx context.Context) ([]string, error) {
	rows, err := s.store.stbl.Select("DISTINCT namespace").From("documents").OrderBy("namespace").QueryContext(ctx)
	if err != nil {
		return nil, handleSQLError(err)
	}
	defer rows.Close()

	var names []string //nolint:prealloc // size unknown from query
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning namespace: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating namespaces: %w", err)
	}
	return names, nil
}

// ==================== Helper Functions ====================

// scanDocument scans id, version, updated_at and optionally fields.
func scanDocument(rows *sql.Rows, withFields bool) (domain.Document, error) {
	var doc domain.Document
	var updatedAt string
	if !withFields {
		if err := rows.Scan(&doc.ID, &doc.Version, &updatedAt); err != nil {
			return domain.Document{}, fmt.Errorf("scanning document: %w", err)
		}
		doc.UpdatedAt = parseTime(updatedAt)
		return doc, nil
	}
	var id string
	return scanDocumentID(rows, &id)
}

// scanDocumentID scans a full row, reporting the id even when decoding fails.
func scanDocumentID(rows *sql.Rows, id *string) (domain.Document, error) {
	var version int64
	var updatedAt, raw string
	if err := rows.Scan(id, &version, &updatedAt, &raw); err != nil {
		return domain.Document{}, fmt.Errorf("scanning document: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return domain.Document{}, fmt.Errorf("decode %s: %w", *id, err)
	}
	return domain.Document{ID: *id, Fields: fields, Version: version, UpdatedAt: parseTime(updatedAt)}, nil
}

// encodeFields marshals fields without the identifier.
func encodeFields(fields map[string]any) (string, error) {
	clean := make(map[string]any, len(fields))
	for k, v := range fields {
		if k != domain.IDField {
			clean[k] = v
		}
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(data), nil
}
