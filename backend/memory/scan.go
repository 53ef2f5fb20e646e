package memory

import (
	"context"

	"github.com/mwantia/robinhood/data"
	"github.com/mwantia/robinhood/iters"
)

func (e *entry) record(key linkKey, nsXattrs map[string]data.Value) *data.Record {
	r := &data.Record{
		Mask:            data.FieldMaskID | data.FieldMaskParentID | data.FieldMaskName | data.FieldMaskType,
		ID:              e.id,
		ParentID:        key.parent,
		Name:            key.name,
		Type:            e.typ,
		Xattrs:          e.xattrs,
		NamespaceXattrs: nsXattrs,
	}
	if e.symlink != "" {
		r.Mask |= data.FieldMaskSymlink
		r.Symlink = e.symlink
	}
	if e.stat != nil {
		r.Mask |= data.FieldMaskStat
		r.Stat = e.stat
		r.StatMask = e.statMask
	}
	r.Mask |= data.FieldMaskInodeXattrs | data.FieldMaskNamespaceXattrs
	return r
}

// Scan returns an iterator over the records matching filter. One
// record is produced per (parent, name) link, in slot order. The
// matching set is snapshotted under the read lock, so a scan is not
// disturbed by later updates.
func (b *Backend) Scan(ctx context.Context, filter *data.Filter, mask data.FieldMask, statMask data.StatMask) (iters.Iterator[*data.Record], error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []*data.Record
	var scanErr error

	b.slots.Scan(func(slot string, id data.ID) bool {
		e, ok := b.entries[id]
		if !ok {
			return true
		}
		key, ok := parseSlotKey(slot)
		if !ok {
			return true
		}
		candidate := e.record(key, e.links[key])
		match, err := filter.Matches(candidate)
		if err != nil {
			scanErr = err
			return false
		}
		if match {
			matched = append(matched, candidate.Project(mask, statMask))
		}
		return true
	})
	if scanErr != nil {
		return nil, scanErr
	}

	return iters.FromSlice(matched), nil
}
