package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
	"github.com/custodia-labs/derivex/internal/core/ports/driving"
	"github.com/custodia-labs/derivex/internal/logger"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService manages documents within namespaces.
type DocumentService struct {
	docStore driven.DocumentStore
	settings *domain.SettingsProvider
}

// NewDocumentService creates a new document service.
func NewDocumentService(docStore driven.DocumentStore, settings *domain.SettingsProvider) *DocumentService {
	return &DocumentService{docStore: docStore, settings: settings}
}

// Load indexes a stream of JSON records in chunks of the configured bulk size.
func (s *DocumentService) Load(ctx context.Context, namespace string, r io.Reader, idField string) (int, error) {
	settings := s.settings.Load()
	if idField == "" {
		idField = settings.LoadIDField
	}
	chunkSize := settings.BulkSize

	dec := json.NewDecoder(r)
	dec.UseNumber()

	loaded := 0
	chunk := make([]domain.Document, 0, chunkSize)
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if err := s.docStore.Index(ctx, namespace, chunk); err != nil {
			return fmt.Errorf("index documents: %w", err)
		}
		loaded += len(chunk)
		logger.Debug("indexed %d documents into %s", loaded, namespace)
		chunk = make([]domain.Document, 0, chunkSize)
		return nil
	}

	for record := 1; ; record++ {
		var fields map[string]any
		if err := dec.Decode(&fields); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return loaded, fmt.Errorf("decode record %d: %w", record, err)
		}

		id, err := recordID(fields, idField)
		if err != nil {
			return loaded, fmt.Errorf("record %d: %w", record, err)
		}
		delete(fields, domain.IDField)
		chunk = append(chunk, domain.Document{ID: id, Fields: normalizeNumbers(fields).(map[string]any)})

		if len(chunk) == chunkSize {
			if err := flush(); err != nil {
				return loaded, err
			}
		}
	}
	if err := flush(); err != nil {
		return loaded, err
	}
	return loaded, nil
}

// recordID reads the document id from a decoded record.
func recordID(fields map[string]any, idField string) (string, error) {
	switch v := fields[idField].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case json.Number:
		return v.String(), nil
	}
	return "", fmt.Errorf("%w: missing string or numeric %q field", domain.ErrInvalidInput, idField)
}

// normalizeNumbers turns json.Number values into float64, matching what
// stores return when fields are decoded without UseNumber.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeNumbers(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = normalizeNumbers(item)
		}
		return t
	case json.Number:
		f, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return t.String()
		}
		return f
	default:
		return v
	}
}

// Count returns the number of documents matching q.
func (s *DocumentService) Count(ctx context.Context, namespace string, q domain.Query) (int, error) {
	return s.docStore.Count(ctx, namespace, q)
}

// Get retrieves a document by ID.
func (s *DocumentService) Get(ctx context.Context, namespace, id string) (*domain.Document, error) {
	return s.docStore.Get(ctx, namespace, id)
}

// Drop removes a namespace and all of its documents.
func (s *DocumentService) Drop(ctx context.Context, namespace string) error {
	if namespace == "" {
		return fmt.Errorf("%w: namespace is required", domain.ErrInvalidInput)
	}
	return s.docStore.DropNamespace(ctx, namespace)
}

// Clone scans from in id order and indexes the documents into to in chunks
// of the configured bulk size.
func (s *DocumentService) Clone(ctx context.Context, from, to string, progress func(copied int)) (int, error) {
	if from == "" || to == "" {
		return 0, fmt.Errorf("%w: source and target namespaces are required", domain.ErrInvalidInput)
	}
	if from == to {
		return 0, fmt.Errorf("%w: cannot clone %s onto itself", domain.ErrInvalidInput, from)
	}

	settings := s.settings.Load()
	chunkSize := max(settings.BulkSize, 1)

	copied := 0
	chunk := make([]domain.Document, 0, chunkSize)
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if err := s.docStore.Index(ctx, to, chunk); err != nil {
			return fmt.Errorf("index into %s: %w", to, err)
		}
		copied += len(chunk)
		logger.Debug("cloned %d documents from %s to %s", copied, from, to)
		if progress != nil {
			progress(copied)
		}
		chunk = make([]domain.Document, 0, chunkSize)
		return nil
	}

	docs := s.docStore.Scan(ctx, from, domain.MatchAll(), driven.ScanOptions{PageSize: settings.PageSize})
	for doc, err := range docs {
		if err != nil {
			return copied, fmt.Errorf("scan %s: %w", from, err)
		}
		chunk = append(chunk, domain.Document{ID: doc.ID, Fields: doc.Fields})
		if len(chunk) == chunkSize {
			if err := flush(); err != nil {
				return copied, err
			}
		}
	}
	if err := flush(); err != nil {
		return copied, err
	}
	return copied, nil
}

// Namespaces lists namespaces holding documents.
func (s *DocumentService) Namespaces(ctx context.Context) ([]string, error) {
	return s.docStore.Namespaces(ctx)
}
