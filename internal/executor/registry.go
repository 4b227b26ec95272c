package executor

import (
	"context"
	"sort"
	"sync"

	"github.com/vk/flowbatch/internal/flow"
	"github.com/vk/flowbatch/internal/flowerr"
)

// Options carries backend-independent construction parameters.
type Options struct {
	// WorkingDir is the directory relative paths in the flow resolve against.
	WorkingDir string
}

// Factory constructs an executor for the given flow.
type Factory func(ctx context.Context, f *flow.Flow, opts Options) (Executor, error)

// Module registers one or more executor factories into a registry. Backends
// expose a Module so the application can wire them in explicitly instead of
// relying on package-level side effects.
type Module interface {
	Register(r *Registry)
}

// Registry maps an execution backend kind to its factory.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register installs a factory for a backend kind. Registering the same kind
// again replaces the previous factory, which lets callers override built-in
// backends.
func (r *Registry) Register(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// New creates an executor for the flow's declared backend kind.
func (r *Registry) New(ctx context.Context, f *flow.Flow, opts Options) (Executor, error) {
	r.mu.RLock()
	factory, ok := r.factories[f.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, flowerr.New(flowerr.TargetExecutor,
			"no executor registered for backend kind '%s' (registered: %v)", f.Kind, r.Kinds())
	}
	ex, err := factory(ctx, f, opts)
	if err != nil {
		return nil, flowerr.Wrap(flowerr.TargetExecutor, err, "failed to create '%s' executor", f.Kind)
	}
	return ex, nil
}

// Kinds returns the registered backend kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
