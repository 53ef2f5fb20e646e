package memory

import (
	"context"

	"github.com/mwantia/robinhood/backend"
	"github.com/mwantia/robinhood/data"
)

// Update applies a batch of fsevents in order. The batch is validated
// up front and applied under one lock, so it is atomic with respect to
// concurrent scans; in-memory mutations cannot fail halfway through.
func (b *Backend) Update(ctx context.Context, events []*data.Fsevent) (int, error) {
	if err := backend.ValidateBatch(events); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, event := range events {
		switch event.Type {
		case data.FseventDelete:
			b.applyDelete(event)
		case data.FseventLink:
			b.applyLink(event)
		case data.FseventUnlink:
			b.applyUnlink(event)
		case data.FseventUpsert:
			b.applyUpsert(event)
		case data.FseventXattr:
			b.applyXattr(event)
		}
	}
	return len(events), nil
}

func (b *Backend) ensureEntry(id data.ID) *entry {
	e, ok := b.entries[id]
	if !ok {
		e = &entry{
			id:     id,
			xattrs: make(map[string]data.Value),
			links:  make(map[linkKey]map[string]data.Value),
		}
		b.entries[id] = e
	}
	return e
}

func applyDeltas(dst map[string]data.Value, deltas map[string]*data.Value) {
	for key, value := range deltas {
		if value == nil {
			delete(dst, key)
			continue
		}
		dst[key] = value.Clone()
	}
}

func (b *Backend) applyDelete(event *data.Fsevent) {
	e, ok := b.entries[event.ID]
	if !ok {
		return
	}
	for key := range e.links {
		b.slots.Delete(slotKey(key.parent, key.name))
	}
	delete(b.entries, event.ID)
}

// attach binds (parent, name) to the entry, unlinking any prior
// occupant of the slot first. This is what makes a LINK replayed after
// an UNLINK for the same entry behave as a rename.
func (b *Backend) attach(e *entry, parent data.ID, name string) map[string]data.Value {
	key := linkKey{parent: parent, name: name}

	if occupant, ok := b.slots.Get(slotKey(parent, name)); ok && occupant != e.id {
		if prior, ok := b.entries[occupant]; ok {
			delete(prior.links, key)
		}
	}

	b.slots.Set(slotKey(parent, name), e.id)
	if e.links[key] == nil {
		e.links[key] = make(map[string]data.Value)
	}
	return e.links[key]
}

func (b *Backend) applyLink(event *data.Fsevent) {
	e := b.ensureEntry(event.ID)
	nsXattrs := b.attach(e, event.ParentID, event.Name)
	applyDeltas(nsXattrs, event.Xattrs)
}

func (b *Backend) applyUnlink(event *data.Fsevent) {
	e, ok := b.entries[event.ID]
	if !ok {
		return
	}

	key := linkKey{parent: event.ParentID, name: event.Name}
	if _, ok := e.links[key]; !ok {
		return
	}
	delete(e.links, key)
	if occupant, ok := b.slots.Get(slotKey(event.ParentID, event.Name)); ok && occupant == e.id {
		b.slots.Delete(slotKey(event.ParentID, event.Name))
	}
}

func typeFromMode(mode uint32) data.FileType {
	switch mode & 0o170000 {
	case 0o040000:
		return data.TypeDirectory
	case 0o120000:
		return data.TypeSymlink
	case 0o100000:
		return data.TypeFile
	}
	return data.TypeUnknown
}

func (b *Backend) applyUpsert(event *data.Fsevent) {
	e := b.ensureEntry(event.ID)

	if event.Stat != nil {
		if e.stat == nil {
			e.stat = &data.Stat{}
		}
		e.stat.Merge(event.Stat, event.StatMask)
		e.statMask |= event.StatMask
		if event.StatMask&data.StatMaskMode != 0 {
			if t := typeFromMode(event.Stat.Mode); t != data.TypeUnknown {
				e.typ = t
			}
		}
	}
	if event.Symlink != "" {
		e.symlink = event.Symlink
		e.typ = data.TypeSymlink
	}
	applyDeltas(e.xattrs, event.Xattrs)
}

func (b *Backend) applyXattr(event *data.Fsevent) {
	e := b.ensureEntry(event.ID)

	if event.Name == "" && event.ParentID == data.EmptyID {
		// Inode xattrs: visible through every hard link.
		applyDeltas(e.xattrs, event.Xattrs)
		return
	}

	// Namespace xattrs: scoped to one (parent, name) slot, created on
	// demand like the record itself.
	nsXattrs := b.attach(e, event.ParentID, event.Name)
	applyDeltas(nsXattrs, event.Xattrs)
}
