// Package backend defines the contract every storage backend must
// honor, and how a connection string resolves to a backend instance.
//
// A backend is an opaque handle bound to one storage target. It is
// created and destroyed explicitly, never implicitly shared or cloned,
// and is not safe for concurrent use without external synchronization.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/mwantia/robinhood/data"
	"github.com/mwantia/robinhood/iters"
)

// Backend is the capability set every storage backend exposes.
type Backend interface {
	// Name returns the identifier name defined for this backend.
	Name() string

	// Capabilities returns the capabilities supported by this backend.
	Capabilities() *Capabilities

	// Root returns the backend's root record: the single entry whose
	// parent is the well-known empty identifier.
	Root(ctx context.Context, mask data.FieldMask, statMask data.StatMask) (*data.Record, error)

	// Scan returns a lazy iterator over the records matching filter,
	// each projected to the requested masks. The filter is validated
	// before any storage operation is issued; an invalid filter fails
	// with an error wrapping data.ErrInvalid.
	Scan(ctx context.Context, filter *data.Filter, mask data.FieldMask, statMask data.StatMask) (iters.Iterator[*data.Record], error)

	// Update applies a batch of fsevents in order as one bulk
	// operation, best-effort atomic for that batch only, and returns
	// the number of fsevents applied. An empty batch is an invalid
	// argument. Failed batches may be resubmitted wholesale when the
	// failure is retryable (see IsRetryable).
	Update(ctx context.Context, events []*data.Fsevent) (int, error)

	// Close releases the backend instance.
	Close(ctx context.Context) error
}

// RootFilter returns the filter every backend uses to look up its root
// entry: parent id equals the well-known empty identifier.
func RootFilter() *data.Filter {
	f, err := data.CompareBinary(data.OpEqual, data.FieldParentID, []byte(data.EmptyID))
	if err != nil {
		// The (EQUAL, binary) pairing is always legal.
		panic(err)
	}
	return f
}

// FilterOne runs a scan and returns its first record, or
// data.ErrNotExist when nothing matches. The scan iterator is always
// closed before returning.
func FilterOne(ctx context.Context, b Backend, filter *data.Filter, mask data.FieldMask, statMask data.StatMask) (*data.Record, error) {
	it, err := b.Scan(ctx, filter, mask, statMask)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	record, err := it.Next()
	if err != nil {
		if errors.Is(err, iters.Done) {
			return nil, data.ErrNotExist
		}
		return nil, err
	}
	return record, nil
}

// ValidateBatch checks the common Update preconditions shared by every
// backend: a non-empty batch of structurally valid fsevents.
func ValidateBatch(events []*data.Fsevent) error {
	if len(events) == 0 {
		return fmt.Errorf("%w: empty fsevent batch", data.ErrInvalid)
	}
	for i, event := range events {
		if err := event.Validate(); err != nil {
			return fmt.Errorf("fsevent %d: %w", i, err)
		}
	}
	return nil
}
