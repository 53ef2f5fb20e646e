// Package sqlite provides a backend persisting the index in a SQLite
// database, using the pure Go driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mwantia/robinhood/backend"
	"github.com/mwantia/robinhood/data"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Backend stores entries and namespace links in two tables. Entry ids
// are opaque byte strings and kept as BLOBs.
type Backend struct {
	db *sql.DB
}

// New creates a SQLite-backed backend. The path can be ":memory:" for
// an in-memory database or a file path.
func New(path string) (*Backend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// A single connection keeps ":memory:" databases coherent and
	// matches the synchronous, pull-based execution model.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}

	b := &Backend{db: db}
	if err := b.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rbh_entries (
		id BLOB PRIMARY KEY,
		type INTEGER NOT NULL DEFAULT 0,
		symlink TEXT NOT NULL DEFAULT '',
		stat TEXT,
		stat_mask INTEGER NOT NULL DEFAULT 0,
		xattrs TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS rbh_links (
		parent_id BLOB NOT NULL,
		name TEXT NOT NULL,
		id BLOB NOT NULL,
		ns_xattrs TEXT NOT NULL DEFAULT '{}',
		PRIMARY KEY (parent_id, name)
	);
	CREATE INDEX IF NOT EXISTS idx_rbh_links_id ON rbh_links(id);
	`

	_, err := b.db.Exec(schema)
	return err
}

// Name returns the identifier name defined for this backend.
func (*Backend) Name() string {
	return "sqlite"
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

// Root returns the backend's root record.
func (b *Backend) Root(ctx context.Context, mask data.FieldMask, statMask data.StatMask) (*data.Record, error) {
	return backend.FilterOne(ctx, b, backend.RootFilter(), mask, statMask)
}

// Close releases the backend instance.
func (b *Backend) Close(ctx context.Context) error {
	return b.db.Close()
}

// wrap classifies a storage failure. SQLite reports write contention
// as SQLITE_BUSY/SQLITE_LOCKED; those are retryable, everything else
// is fatal for the operation.
func (b *Backend) wrap(op string, err error) error {
	msg := err.Error()
	retryable := strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
	return &backend.Error{
		Backend:   b.Name(),
		Op:        op,
		Retryable: retryable,
		Err:       err,
	}
}

// Factory constructs sqlite backends for "sqlite:" URIs; the URI path
// names the database file.
type Factory struct{}

func (Factory) Scheme() string {
	return "sqlite"
}

func (Factory) New(ctx context.Context, uri *backend.RawURI) (backend.Backend, error) {
	if uri.Path == "" {
		return nil, fmt.Errorf("%w: sqlite URI needs a database path", data.ErrInvalid)
	}
	return New(uri.Path)
}
