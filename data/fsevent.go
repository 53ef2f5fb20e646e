package data

import "fmt"

// An fsevent is one incremental change to apply to a backend's stored
// view of the filesystem. Fsevents are produced by scanners and
// watchers and consumed by a backend's Update operation. A sequence of
// fsevents is strictly ordered: replaying a LINK after an UNLINK for
// the same entry models a rename and must never be reordered.

// FseventType tags an fsevent.
type FseventType int

const (
	FseventUpsert FseventType = iota
	FseventLink
	FseventUnlink
	FseventDelete
	FseventXattr
)

func (t FseventType) String() string {
	switch t {
	case FseventUpsert:
		return "upsert"
	case FseventLink:
		return "link"
	case FseventUnlink:
		return "unlink"
	case FseventDelete:
		return "delete"
	case FseventXattr:
		return "xattr"
	}
	return fmt.Sprintf("fsevent(%d)", int(t))
}

// Fsevent is one tagged change record.
//
// Xattrs holds attribute deltas; a key mapped to nil unsets that
// attribute. For LINK and UNLINK, ParentID and Name identify the
// namespace slot. For XATTR, a zero ParentID with an empty Name
// targets the entry's inode xattrs (every hard link); a set
// ParentID/Name pair targets the namespace xattrs of that one link.
type Fsevent struct {
	Type FseventType `json:"type"`
	ID   ID          `json:"id"`

	Xattrs map[string]*Value `json:"xattrs,omitempty"`

	ParentID ID     `json:"parent_id,omitempty"`
	Name     string `json:"name,omitempty"`

	// Upsert only
	Stat     *Stat    `json:"stat,omitempty"`
	StatMask StatMask `json:"stat_mask,omitempty"`
	Symlink  string   `json:"symlink,omitempty"`
}

func cloneDeltas(xattrs map[string]*Value) map[string]*Value {
	if xattrs == nil {
		return nil
	}
	cp := make(map[string]*Value, len(xattrs))
	for k, v := range xattrs {
		if v == nil {
			cp[k] = nil
			continue
		}
		clone := v.Clone()
		cp[k] = &clone
	}
	return cp
}

// NewUpsert builds an fsevent that merges stat attributes, inode
// xattr deltas, and an optional symlink target into an entry, creating
// it if absent.
func NewUpsert(id ID, xattrs map[string]*Value, stat *Stat, statMask StatMask, symlink string) *Fsevent {
	return &Fsevent{
		Type:     FseventUpsert,
		ID:       id,
		Xattrs:   cloneDeltas(xattrs),
		Stat:     stat.Clone(),
		StatMask: statMask,
		Symlink:  symlink,
	}
}

// NewLink builds an fsevent that attaches entry id under
// (parentID, name), creating the entry if absent.
func NewLink(id ID, xattrs map[string]*Value, parentID ID, name string) *Fsevent {
	return &Fsevent{
		Type:     FseventLink,
		ID:       id,
		Xattrs:   cloneDeltas(xattrs),
		ParentID: parentID,
		Name:     name,
	}
}

// NewUnlink builds an fsevent that detaches (parentID, name) from
// entry id without deleting the entry.
func NewUnlink(id ID, parentID ID, name string) *Fsevent {
	return &Fsevent{
		Type:     FseventUnlink,
		ID:       id,
		ParentID: parentID,
		Name:     name,
	}
}

// NewDelete builds an fsevent that removes entry id and every link
// pointing at it.
func NewDelete(id ID) *Fsevent {
	return &Fsevent{Type: FseventDelete, ID: id}
}

// NewXattr builds an fsevent that merges inode xattr deltas into
// entry id, creating it if absent.
func NewXattr(id ID, xattrs map[string]*Value) *Fsevent {
	return &Fsevent{
		Type:   FseventXattr,
		ID:     id,
		Xattrs: cloneDeltas(xattrs),
	}
}

// NewNamespaceXattr builds an fsevent that merges namespace xattr
// deltas into the (parentID, name) link of entry id.
func NewNamespaceXattr(id ID, xattrs map[string]*Value, parentID ID, name string) *Fsevent {
	return &Fsevent{
		Type:     FseventXattr,
		ID:       id,
		Xattrs:   cloneDeltas(xattrs),
		ParentID: parentID,
		Name:     name,
	}
}

// Validate checks the structural requirements of one fsevent.
func (e *Fsevent) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil fsevent", ErrInvalid)
	}
	if e.ID == EmptyID {
		return fmt.Errorf("%w: fsevent without an entry id", ErrInvalid)
	}

	switch e.Type {
	case FseventUpsert, FseventDelete:
		return nil
	case FseventLink, FseventUnlink:
		// The root entry is linked under (EmptyID, ""); any other slot
		// is a (parent, name) pair chosen by the producer.
		return nil
	case FseventXattr:
		if (e.ParentID == EmptyID) != (e.Name == "") {
			return fmt.Errorf("%w: xattr fsevent must set both parent id and name, or neither",
				ErrInvalid)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown fsevent type %d", ErrInvalid, int(e.Type))
}
