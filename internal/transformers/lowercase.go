package transformers

import (
	"context"
	"strings"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
)

// LowercaseName is the registry name of the lowercase transformer.
const LowercaseName = "lowercase"

// Lowercase normalises top-level string fields to lower case in place.
type Lowercase struct {
	fields []string
}

// NewLowercase creates a lowercase transformer over fields.
func NewLowercase(fields []string) *Lowercase {
	if len(fields) == 0 {
		fields = []string{"title"}
	}
	return &Lowercase{fields: fields}
}

// Name returns the transformer name.
func (l *Lowercase) Name() string {
	return LowercaseName
}

// Transform lowercases each configured field that holds a string.
// Values already staged by earlier transformers take precedence over the original.
func (l *Lowercase) Transform(_ context.Context, updates domain.UpdateSet, original domain.Document, _ driven.TransformContext) (domain.UpdateSet, error) {
	for _, f := range l.fields {
		v, ok := updates[f]
		if !ok {
			v, ok = original.Fields[f]
		}
		if !ok {
			continue
		}
		s, isString := v.(string)
		if !isString {
			continue
		}
		updates[f] = strings.ToLower(s)
	}
	return updates, nil
}
