// Package transformers provides the derivation chain and built-in transformers.
package transformers

import (
	"context"
	"fmt"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
)

// Chain runs transformers in order over a document.
// Each transformer receives the immutable original plus a copy of the
// updates accumulated so far; its result is merged into the accumulator.
type Chain struct {
	transformers []driven.Transformer
}

var _ driven.TransformChain = (*Chain)(nil)

// NewChain creates a chain from the given transformers. The tag transformer
// is prepended unless it is already present, in which case its explicit
// position is kept.
func NewChain(ts ...driven.Transformer) *Chain {
	for _, t := range ts {
		if t.Name() == TagName {
			return &Chain{transformers: ts}
		}
	}
	return &Chain{transformers: append([]driven.Transformer{NewTag()}, ts...)}
}

// Names returns the transformer names in execution order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.transformers))
	for i, t := range c.transformers {
		names[i] = t.Name()
	}
	return names
}

// Len returns the number of transformers in the chain.
func (c *Chain) Len() int {
	return len(c.transformers)
}

// Run executes the chain over doc.
//
// Fields whose derived value equals the stored value are dropped. Output of
// annotating transformers only survives when some other transformer changed
// a field, so re-running a chain over its own output writes nothing. A chain
// made only of annotators with a pass tag is a tagging pass and always
// writes its stamp.
func (c *Chain) Run(ctx context.Context, doc domain.Document, tc driven.TransformContext, updatesOnly bool) (driven.ChainResult, error) {
	original := doc.Clone()
	updates := domain.UpdateSet{}
	contributed := tc.Tag != "" && c.annotatesOnly()

	for _, t := range c.transformers {
		if err := ctx.Err(); err != nil {
			return driven.ChainResult{}, err
		}

		received := updates.Clone()
		out, err := apply(ctx, t, received.Clone(), original.Clone(), tc)
		if err != nil {
			return driven.ChainResult{}, fmt.Errorf("transformer %s: %w", t.Name(), err)
		}

		if !isAnnotator(t) && differs(out, received, original) {
			contributed = true
		}
		updates.Merge(out)
	}

	if !contributed {
		updates = domain.UpdateSet{}
	}
	updates = pruneUnchanged(updates.Without(domain.IDField), original)

	result := driven.ChainResult{Updates: updates}
	if !updatesOnly {
		merged := original
		merged.Fields = updates.Apply(original)
		result.Document = &merged
	}
	return result, nil
}

// apply runs one transformer, turning a panic into an error.
func apply(ctx context.Context, t driven.Transformer, updates domain.UpdateSet, original domain.Document, tc driven.TransformContext) (out domain.UpdateSet, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Transform(ctx, updates, original, tc)
}

// annotatesOnly reports whether no transformer in the chain derives fields.
func (c *Chain) annotatesOnly() bool {
	for _, t := range c.transformers {
		if !isAnnotator(t) {
			return false
		}
	}
	return true
}

func isAnnotator(t driven.Transformer) bool {
	a, ok := t.(driven.Annotator)
	return ok && a.Annotates()
}

// differs reports whether a transformer set a value that it did not receive
// and that is not already stored on original.
func differs(out, received domain.UpdateSet, original domain.Document) bool {
	for k, v := range out {
		if k == domain.IDField {
			continue
		}
		if prev, ok := received[k]; ok && sameValue(v, prev) {
			continue
		}
		stored, ok := original.Fields[k]
		if !ok || !sameValue(v, stored) {
			return true
		}
	}
	return false
}

func pruneUnchanged(updates domain.UpdateSet, original domain.Document) domain.UpdateSet {
	for k, v := range updates {
		if stored, ok := original.Fields[k]; ok && sameValue(v, stored) {
			delete(updates, k)
		}
	}
	return updates
}
