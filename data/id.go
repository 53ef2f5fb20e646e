package data

import "github.com/google/uuid"

// ID uniquely identifies one filesystem entry across every backend.
// It is an opaque, binary-safe string; backends must not interpret it.
type ID string

// EmptyID is the well-known identifier used as the parent of a backend's
// root entry. Looking up "parent id equals EmptyID" yields the root.
const EmptyID ID = ""

// NewID mints a fresh entry identifier. Producers (scanners, watchers)
// that cannot derive a stable identifier from the filesystem itself may
// use this instead.
func NewID() ID {
	return ID(uuid.Must(uuid.NewV7()).String())
}

// IsEmpty reports whether id is the well-known empty identifier.
func (id ID) IsEmpty() bool {
	return id == EmptyID
}
