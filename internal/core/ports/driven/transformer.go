package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/derivex/internal/core/domain"
)

// TransformContext carries the pass-level values every transformer can read.
type TransformContext struct {
	// Namespace is the namespace of the document being transformed.
	Namespace string

	// Tag labels the derivation pass.
	Tag string

	// Invocation identifies one task delivery.
	Invocation string

	// Transformers lists the chain in order.
	Transformers []string

	// Params are the task parameters.
	Params map[string]any

	// Now is the wall-clock time the delivery started.
	Now time.Time
}

// Transformer derives new field values from a document.
// Transformers are chained; each one sees the original document and the
// cumulative updates of the transformers before it.
type Transformer interface {
	// Name returns the registry name of the transformer.
	Name() string

	// Transform returns the updates to carry forward. It must not modify
	// original, and may return updates unchanged.
	Transform(ctx context.Context, updates domain.UpdateSet, original domain.Document, tc TransformContext) (domain.UpdateSet, error)
}

// Annotator marks a transformer whose output only describes the pass itself.
// Its contribution is dropped when no other transformer changed anything.
type Annotator interface {
	Transformer
	Annotates() bool
}

// ChainResult is the output of running a chain over one document.
type ChainResult struct {
	// Updates holds the changed fields. Empty means nothing to write.
	Updates domain.UpdateSet

	// Document is the original merged with Updates. Only set when the chain
	// was run with updatesOnly false.
	Document *domain.Document
}

// TransformChain runs transformers in order over a document.
type TransformChain interface {
	// Names returns the transformer names in execution order.
	Names() []string

	// Run executes the chain. An error means the document failed; other
	// documents are unaffected.
	Run(ctx context.Context, doc domain.Document, tc TransformContext, updatesOnly bool) (ChainResult, error)
}

// ChainBuilder resolves transformer names into a chain.
type ChainBuilder interface {
	// BuildChain returns domain.ErrUnknownTransformer for unregistered names.
	BuildChain(names []string, params map[string]any) (TransformChain, error)

	// Validate checks that every name is registered.
	Validate(names []string) error
}
