package transformers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
)

// BuilderFunc creates a Transformer from generic params.
// Params are the task parameters, parsed from the command line or a schedule.
type BuilderFunc func(params map[string]any) (driven.Transformer, error)

// Registry maps transformer names to their builders.
// It is filled once at startup and only read afterwards.
type Registry struct {
	builders map[string]BuilderFunc
}

var _ driven.ChainBuilder = (*Registry)(nil)

// NewRegistry creates a new transformer registry.
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[string]BuilderFunc),
	}
}

// Register adds a transformer builder to the registry.
// Name should be unique and match the transformer's Name() return value.
func (r *Registry) Register(name string, builder BuilderFunc) {
	r.builders[name] = builder
}

// Build creates a transformer by name with the given params.
// Returns domain.ErrUnknownTransformer if the name is not registered.
func (r *Registry) Build(name string, params map[string]any) (driven.Transformer, error) {
	builder, ok := r.builders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTransformer, name)
	}
	return builder(params)
}

// BuildChain resolves names in order and wraps them in a Chain.
func (r *Registry) BuildChain(names []string, params map[string]any) (driven.TransformChain, error) {
	if err := r.Validate(names); err != nil {
		return nil, err
	}
	ts := make([]driven.Transformer, 0, len(names))
	for _, name := range names {
		t, err := r.Build(name, params)
		if err != nil {
			return nil, fmt.Errorf("build transformer %s: %w", name, err)
		}
		ts = append(ts, t)
	}
	return NewChain(ts...), nil
}

// Validate checks that every name is registered.
func (r *Registry) Validate(names []string) error {
	var unknown []string
	for _, name := range names {
		if !r.Has(name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrUnknownTransformer, strings.Join(unknown, ", "))
	}
	return nil
}

// Has returns true if a transformer with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.builders[name]
	return ok
}

// Names returns all registered transformer names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
