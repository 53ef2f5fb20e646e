package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/mwantia/robinhood/data"
)

// Factory constructs backend instances for one URI scheme. Compiled-in
// and dynamically-loaded backends satisfy the same interface.
type Factory interface {
	// Scheme returns the URI scheme this factory serves.
	Scheme() string

	// New binds a backend instance to the storage target named by uri.
	// It either fully succeeds or fails; it never returns a partially
	// constructed backend.
	New(ctx context.Context, uri *RawURI) (Backend, error)
}

// Loader resolves factories for schemes that are not compiled in. The
// loader is a separate, swappable component; see PluginLoader for the
// default artifact-naming convention.
type Loader interface {
	Load(scheme string) (Factory, error)
}

// Registry maps URI schemes to backend factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	loader    Loader
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLoader sets the loader consulted for schemes with no registered
// factory.
func WithLoader(loader Loader) RegistryOption {
	return func(r *Registry) {
		r.loader = loader
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a compiled-in factory. Registering the same scheme
// twice is an error.
func (r *Registry) Register(factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	scheme := factory.Scheme()
	if _, ok := r.factories[scheme]; ok {
		return fmt.Errorf("%w: backend scheme %q", data.ErrExist, scheme)
	}
	r.factories[scheme] = factory
	return nil
}

// Lookup resolves a scheme to a factory: registered factories first,
// then the loader. A factory resolved through the loader is cached.
func (r *Registry) Lookup(scheme string) (Factory, error) {
	r.mu.RLock()
	factory, ok := r.factories[scheme]
	r.mu.RUnlock()
	if ok {
		return factory, nil
	}

	if r.loader == nil {
		return nil, fmt.Errorf("%w: no backend for scheme %q", data.ErrNotFound, scheme)
	}

	factory, err := r.loader.Load(scheme)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.factories[scheme]; ok {
		return cached, nil
	}
	r.factories[scheme] = factory
	return factory, nil
}

// Open parses a connection string, resolves its scheme and constructs
// a backend bound to the target it names.
func (r *Registry) Open(ctx context.Context, raw string) (Backend, error) {
	uri, err := ParseRawURI(raw)
	if err != nil {
		return nil, err
	}

	factory, err := r.Lookup(uri.Scheme)
	if err != nil {
		return nil, err
	}
	return factory.New(ctx, uri)
}
