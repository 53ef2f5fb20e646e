// Package memory provides an in-memory backend, mostly useful for
// tests and as the reference for the update semantics every other
// backend must reproduce.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/mwantia/robinhood/backend"
	"github.com/mwantia/robinhood/data"
	"github.com/tidwall/btree"
)

type linkKey struct {
	parent data.ID
	name   string
}

// slotKey encodes a (parent, name) namespace slot into a single
// ordered key. The parent id is length-prefixed because ids are opaque
// and may contain any byte.
func slotKey(parent data.ID, name string) string {
	return strconv.Itoa(len(parent)) + ":" + string(parent) + name
}

func parseSlotKey(slot string) (linkKey, bool) {
	sep := strings.IndexByte(slot, ':')
	if sep < 0 {
		return linkKey{}, false
	}
	n, err := strconv.Atoi(slot[:sep])
	if err != nil || len(slot) < sep+1+n {
		return linkKey{}, false
	}
	return linkKey{
		parent: data.ID(slot[sep+1 : sep+1+n]),
		name:   slot[sep+1+n:],
	}, true
}

type entry struct {
	id       data.ID
	typ      data.FileType
	symlink  string
	stat     *data.Stat
	statMask data.StatMask
	xattrs   map[string]data.Value

	// links are this entry's namespace slots; nsXattrs belong to one
	// slot, not to the entry.
	links map[linkKey]map[string]data.Value
}

// Backend keeps the whole index in process memory: an id-keyed entry
// map plus a B-tree over namespace slots for ordered scans.
type Backend struct {
	mu      sync.RWMutex
	entries map[data.ID]*entry
	slots   *btree.Map[string, data.ID]
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{
		entries: make(map[data.ID]*entry),
		slots:   btree.NewMap[string, data.ID](0),
	}
}

// Name returns the identifier name defined for this backend.
func (*Backend) Name() string {
	return "memory"
}

// Capabilities returns the capabilities supported by this backend.
func (*Backend) Capabilities() *backend.Capabilities {
	return &backend.Capabilities{
		Capabilities: []backend.Capability{
			backend.CapabilityScan,
			backend.CapabilityUpdate,
		},
	}
}

// Close releases the backend instance.
func (b *Backend) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.slots.Clear()
	for id := range b.entries {
		delete(b.entries, id)
	}
	return nil
}

// Root returns the backend's root record.
func (b *Backend) Root(ctx context.Context, mask data.FieldMask, statMask data.StatMask) (*data.Record, error) {
	return backend.FilterOne(ctx, b, backend.RootFilter(), mask, statMask)
}

// Factory constructs memory backends for "memory:" URIs. Every
// instance is a fresh, private store; the URI path is ignored.
type Factory struct{}

func (Factory) Scheme() string {
	return "memory"
}

func (Factory) New(ctx context.Context, uri *backend.RawURI) (backend.Backend, error) {
	if uri.Scheme != "memory" {
		return nil, fmt.Errorf("%w: unexpected scheme %q", data.ErrInvalid, uri.Scheme)
	}
	return New(), nil
}
