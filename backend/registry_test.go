package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/mwantia/robinhood/data"
	"github.com/mwantia/robinhood/iters"
)

type fakeBackend struct {
	name string
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Capabilities() *Capabilities {
	return &Capabilities{Capabilities: []Capability{CapabilityScan}}
}

func (f *fakeBackend) Root(ctx context.Context, mask data.FieldMask, statMask data.StatMask) (*data.Record, error) {
	return nil, data.ErrNotExist
}

func (f *fakeBackend) Scan(ctx context.Context, filter *data.Filter, mask data.FieldMask, statMask data.StatMask) (iters.Iterator[*data.Record], error) {
	return iters.FromSlice[*data.Record](nil), nil
}

func (f *fakeBackend) Update(ctx context.Context, events []*data.Fsevent) (int, error) {
	return 0, data.ErrUnsupported
}

func (f *fakeBackend) Close(ctx context.Context) error { return nil }

type fakeFactory struct {
	scheme string
	made   int
}

func (f *fakeFactory) Scheme() string { return f.scheme }

func (f *fakeFactory) New(ctx context.Context, uri *RawURI) (Backend, error) {
	f.made++
	return &fakeBackend{name: f.scheme}, nil
}

type fakeLoader struct {
	factories map[string]Factory
	loads     int
}

func (l *fakeLoader) Load(scheme string) (Factory, error) {
	l.loads++
	factory, ok := l.factories[scheme]
	if !ok {
		return nil, data.ErrNotFound
	}
	return factory, nil
}

func TestRegistry_RegisterAndOpen(t *testing.T) {
	ctx := t.Context()
	registry := NewRegistry()

	factory := &fakeFactory{scheme: "fake"}
	if err := registry.Register(factory); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	b, err := registry.Open(ctx, "fake://host/path")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if b.Name() != "fake" {
		t.Errorf("Expected backend %q, got %q", "fake", b.Name())
	}
}

func TestRegistry_DuplicateScheme(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(&fakeFactory{scheme: "dup"}); err != nil {
		t.Fatalf("First Register failed: %v", err)
	}
	if err := registry.Register(&fakeFactory{scheme: "dup"}); !errors.Is(err, data.ErrExist) {
		t.Errorf("Expected ErrExist, got %v", err)
	}
}

func TestRegistry_UnknownScheme(t *testing.T) {
	registry := NewRegistry()
	if _, err := registry.Open(t.Context(), "nope://x"); !errors.Is(err, data.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

// TestRegistry_LoaderFallback checks that unknown schemes fall through
// to the loader and that loaded factories are cached.
func TestRegistry_LoaderFallback(t *testing.T) {
	ctx := t.Context()
	loader := &fakeLoader{factories: map[string]Factory{
		"dyn": &fakeFactory{scheme: "dyn"},
	}}
	registry := NewRegistry(WithLoader(loader))

	if _, err := registry.Open(ctx, "dyn://x"); err != nil {
		t.Fatalf("Open via loader failed: %v", err)
	}
	if _, err := registry.Open(ctx, "dyn://y"); err != nil {
		t.Fatalf("Second open failed: %v", err)
	}
	if loader.loads != 1 {
		t.Errorf("Loaded factory should be cached, loader ran %d times", loader.loads)
	}

	if _, err := registry.Open(ctx, "missing://x"); !errors.Is(err, data.ErrNotFound) {
		t.Errorf("Expected ErrNotFound from loader, got %v", err)
	}
}
