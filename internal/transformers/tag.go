package transformers

import (
	"context"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
)

// TagName is the registry name of the tag transformer.
const TagName = "tag"

// DerivationField holds the provenance stamp written by the tag transformer.
const DerivationField = "derivation"

// Tag records which pass produced an update: the tag, the chain and the
// invocation id. It annotates, so it never causes a write on its own.
type Tag struct{}

var _ driven.Annotator = (*Tag)(nil)

// NewTag creates a tag transformer.
func NewTag() *Tag {
	return &Tag{}
}

// Name returns the transformer name.
func (t *Tag) Name() string {
	return TagName
}

// Annotates marks the tag as provenance only.
func (t *Tag) Annotates() bool {
	return true
}

// Transform stamps the derivation map onto the updates.
func (t *Tag) Transform(_ context.Context, updates domain.UpdateSet, _ domain.Document, tc driven.TransformContext) (domain.UpdateSet, error) {
	stamp := map[string]any{
		"transformers": append([]string(nil), tc.Transformers...),
	}
	if tc.Tag != "" {
		stamp["tag"] = tc.Tag
	}
	if tc.Invocation != "" {
		stamp["invocation"] = tc.Invocation
	}
	updates[DerivationField] = stamp
	return updates, nil
}

// tagOf returns the pass tag stamped by an earlier tag transformer, if any.
func tagOf(updates domain.UpdateSet) (string, bool) {
	stamp, ok := updates[DerivationField].(map[string]any)
	if !ok {
		return "", false
	}
	tag, ok := stamp["tag"].(string)
	return tag, ok && tag != ""
}
