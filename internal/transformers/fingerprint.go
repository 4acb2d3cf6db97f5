package transformers

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
)

// FingerprintName is the registry name of the fingerprint transformer.
const FingerprintName = "fingerprint"

// Fingerprint hashes the raw JSON of selected fields with xxhash, giving a
// stable content key for deduplication.
type Fingerprint struct {
	fields []string
	target string
}

// NewFingerprint creates a fingerprint transformer over fields.
func NewFingerprint(fields []string, target string) *Fingerprint {
	if len(fields) == 0 {
		fields = []string{"text"}
	}
	if target == "" {
		target = "fingerprint"
	}
	return &Fingerprint{fields: fields, target: target}
}

// Name returns the transformer name.
func (f *Fingerprint) Name() string {
	return FingerprintName
}

// Transform writes the hex digest. Documents with none of the fields are left alone.
func (f *Fingerprint) Transform(_ context.Context, updates domain.UpdateSet, original domain.Document, _ driven.TransformContext) (domain.UpdateSet, error) {
	d := xxhash.New()
	found := false
	for _, path := range f.fields {
		r := field(original, path)
		if !r.Exists() {
			continue
		}
		found = true
		_, _ = d.WriteString(path)
		_, _ = d.WriteString("=")
		_, _ = d.WriteString(r.Raw)
		_, _ = d.WriteString("\x00")
	}
	if !found {
		return updates, nil
	}
	updates[f.target] = fmt.Sprintf("%016x", d.Sum64())
	return updates, nil
}
