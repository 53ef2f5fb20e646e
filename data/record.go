package data

// A record is one filesystem object's indexed metadata: identity,
// parent link, attributes. It is what a backend scan yields and what
// fsevents incrementally rebuild.

// FieldMask controls which fields of a record are populated. Backends
// may return more fields than requested when the extra information
// comes at no cost; callers must check the mask before trusting a
// field.
type FieldMask uint32

const (
	FieldMaskID FieldMask = 1 << iota
	FieldMaskParentID
	FieldMaskName
	FieldMaskType
	FieldMaskSymlink
	FieldMaskStat
	FieldMaskInodeXattrs
	FieldMaskNamespaceXattrs

	FieldMaskAll = FieldMask(1<<8) - 1
)

// StatMask controls which fields of a Stat are populated. It is
// ignored unless FieldMaskStat is set in the field mask.
type StatMask uint32

const (
	StatMaskSize StatMask = 1 << iota
	StatMaskMode
	StatMaskUID
	StatMaskGID
	StatMaskAtime
	StatMaskMtime
	StatMaskCtime

	StatMaskAll = StatMask(1<<7) - 1
)

// FileType classifies a filesystem entry.
type FileType int

const (
	TypeUnknown FileType = iota
	TypeFile
	TypeDirectory
	TypeSymlink
)

func (t FileType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDirectory:
		return "directory"
	case TypeSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// Stat holds the statx-like attributes of an entry. Times are seconds
// since the epoch.
type Stat struct {
	Size  uint64 `json:"size"`
	Mode  uint32 `json:"mode"`
	UID   uint32 `json:"uid"`
	GID   uint32 `json:"gid"`
	Atime int64  `json:"atime"`
	Mtime int64  `json:"mtime"`
	Ctime int64  `json:"ctime"`
}

// Clone copies s. Clone of nil is nil.
func (s *Stat) Clone() *Stat {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

// Merge copies the fields selected by mask from src into s.
func (s *Stat) Merge(src *Stat, mask StatMask) {
	if src == nil {
		return
	}
	if mask&StatMaskSize != 0 {
		s.Size = src.Size
	}
	if mask&StatMaskMode != 0 {
		s.Mode = src.Mode
	}
	if mask&StatMaskUID != 0 {
		s.UID = src.UID
	}
	if mask&StatMaskGID != 0 {
		s.GID = src.GID
	}
	if mask&StatMaskAtime != 0 {
		s.Atime = src.Atime
	}
	if mask&StatMaskMtime != 0 {
		s.Mtime = src.Mtime
	}
	if mask&StatMaskCtime != 0 {
		s.Ctime = src.Ctime
	}
}

// Record is one indexed filesystem entry. An entry with several hard
// links appears once per (parent, name) pair in scan results.
type Record struct {
	Mask     FieldMask
	StatMask StatMask

	ID       ID
	ParentID ID
	Name     string
	Type     FileType
	Symlink  string
	Stat     *Stat

	// Xattrs are the entry's inode attributes; NamespaceXattrs belong
	// to one (parent, name) link of the entry.
	Xattrs          map[string]Value
	NamespaceXattrs map[string]Value
}

func cloneXattrs(xattrs map[string]Value) map[string]Value {
	if xattrs == nil {
		return nil
	}
	cp := make(map[string]Value, len(xattrs))
	for k, v := range xattrs {
		cp[k] = v.Clone()
	}
	return cp
}

// Clone deep-copies r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	return &Record{
		Mask:            r.Mask,
		StatMask:        r.StatMask,
		ID:              r.ID,
		ParentID:        r.ParentID,
		Name:            r.Name,
		Type:            r.Type,
		Symlink:         r.Symlink,
		Stat:            r.Stat.Clone(),
		Xattrs:          cloneXattrs(r.Xattrs),
		NamespaceXattrs: cloneXattrs(r.NamespaceXattrs),
	}
}

// Project returns a copy of r restricted to the requested masks.
func (r *Record) Project(mask FieldMask, statMask StatMask) *Record {
	out := &Record{Mask: r.Mask & mask}

	if out.Mask&FieldMaskID != 0 {
		out.ID = r.ID
	}
	if out.Mask&FieldMaskParentID != 0 {
		out.ParentID = r.ParentID
	}
	if out.Mask&FieldMaskName != 0 {
		out.Name = r.Name
	}
	if out.Mask&FieldMaskType != 0 {
		out.Type = r.Type
	}
	if out.Mask&FieldMaskSymlink != 0 {
		out.Symlink = r.Symlink
	}
	if out.Mask&FieldMaskStat != 0 && r.Stat != nil {
		out.Stat = &Stat{}
		out.StatMask = r.StatMask & statMask
		out.Stat.Merge(r.Stat, out.StatMask)
	} else {
		out.Mask &^= FieldMaskStat
	}
	if out.Mask&FieldMaskInodeXattrs != 0 {
		out.Xattrs = cloneXattrs(r.Xattrs)
	}
	if out.Mask&FieldMaskNamespaceXattrs != 0 {
		out.NamespaceXattrs = cloneXattrs(r.NamespaceXattrs)
	}
	return out
}
