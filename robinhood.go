// Package robinhood is a backend-independent filesystem metadata
// index: backends store a mirror of a filesystem's metadata, queries
// run against the mirror through a filter AST, and changes propagate
// into it as streams of fsevents.
package robinhood

import (
	"context"
	"errors"
	"fmt"

	"github.com/mwantia/robinhood/backend"
	"github.com/mwantia/robinhood/backend/consul"
	"github.com/mwantia/robinhood/backend/memory"
	"github.com/mwantia/robinhood/backend/postgres"
	"github.com/mwantia/robinhood/backend/s3"
	"github.com/mwantia/robinhood/backend/sqlite"
	"github.com/mwantia/robinhood/data"
	"github.com/mwantia/robinhood/iters"
)

const Version = "0.1.0"

// NewRegistry creates a registry with every compiled-in backend
// registered. Unknown schemes fall through to the loader, if one is
// configured.
func NewRegistry(opts ...backend.RegistryOption) *backend.Registry {
	registry := backend.NewRegistry(opts...)

	// Registration of distinct compiled-in schemes cannot fail.
	registry.Register(memory.Factory{})
	registry.Register(sqlite.Factory{})
	registry.Register(postgres.Factory{})
	registry.Register(consul.Factory{})
	registry.Register(s3.Factory{})

	return registry
}

// Open parses a connection string and constructs a backend bound to
// the storage target it names.
func Open(ctx context.Context, uri string, opts ...Option) (backend.Backend, error) {
	options := newDefaultOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	var registryOpts []backend.RegistryOption
	if options.Loader != nil {
		registryOpts = append(registryOpts, backend.WithLoader(options.Loader))
	}

	return NewRegistry(registryOpts...).Open(ctx, uri)
}

// ApplyStream drains a change stream into a backend, batch by batch,
// preserving event order. It returns the number of events applied and
// the first failure; a failed batch counts only the events its backend
// reported applied. The stream is closed on return.
func ApplyStream(ctx context.Context, b backend.Backend, events iters.Iterator[*data.Fsevent], opts ...Option) (int, error) {
	options := newDefaultOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return 0, err
		}
	}

	chunks, err := iters.Chunkify(events, options.BatchSize)
	if err != nil {
		return 0, err
	}
	defer chunks.Close()

	applied := 0
	for {
		chunk, err := chunks.Next()
		if err != nil {
			if errors.Is(err, iters.Done) {
				return applied, nil
			}
			return applied, fmt.Errorf("reading change stream: %w", err)
		}

		batch, err := iters.Collect[*data.Fsevent](chunk)
		if err != nil {
			return applied, fmt.Errorf("reading change stream: %w", err)
		}

		n, err := b.Update(ctx, batch)
		applied += n
		if err != nil {
			return applied, err
		}
	}
}
