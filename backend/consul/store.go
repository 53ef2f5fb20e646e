package consul

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/hashicorp/consul/api"
	"github.com/mwantia/robinhood/backend"
	"github.com/mwantia/robinhood/data"
	"github.com/mwantia/robinhood/iters"
)

// entryDoc is the JSON document stored under entries/<hex id>.
type entryDoc struct {
	Type     data.FileType         `json:"type"`
	Symlink  string                `json:"symlink,omitempty"`
	Stat     *data.Stat            `json:"stat,omitempty"`
	StatMask data.StatMask         `json:"stat_mask,omitempty"`
	Xattrs   map[string]data.Value `json:"xattrs,omitempty"`
}

// linkDoc is the JSON document stored under links/<hex parent>/<hex name>.
type linkDoc struct {
	ID       string                `json:"id"` // hex encoded entry id
	NsXattrs map[string]data.Value `json:"ns_xattrs,omitempty"`
}

func (b *Backend) entryKey(id data.ID) string {
	return b.buildKey("entries", hex.EncodeToString([]byte(id)))
}

func (b *Backend) linkKey(parent data.ID, name string) string {
	return b.buildKey("links",
		hex.EncodeToString([]byte(parent)),
		hex.EncodeToString([]byte(name)))
}

func (b *Backend) getEntry(id data.ID, opts *api.QueryOptions) (*entryDoc, error) {
	pair, _, err := b.kv.Get(b.entryKey(id), opts)
	if err != nil || pair == nil {
		return nil, err
	}
	doc := &entryDoc{}
	if err := json.Unmarshal(pair.Value, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (b *Backend) putEntry(id data.ID, doc *entryDoc, opts *api.WriteOptions) error {
	value, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = b.kv.Put(&api.KVPair{Key: b.entryKey(id), Value: value}, opts)
	return err
}

func (b *Backend) ensureEntry(id data.ID) (*entryDoc, error) {
	doc, err := b.getEntry(id, nil)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		doc = &entryDoc{Xattrs: make(map[string]data.Value)}
	}
	if doc.Xattrs == nil {
		doc.Xattrs = make(map[string]data.Value)
	}
	return doc, nil
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

// attach binds the (parent, name) slot to the event's entry and merges
// namespace xattr deltas. A slot held by another entry is overwritten,
// stealing the name like a rename would.
func (b *Backend) attach(event *data.Fsevent) error {
	key := b.linkKey(event.ParentID, event.Name)
	eventID := hex.EncodeToString([]byte(event.ID))

	doc := &linkDoc{ID: eventID, NsXattrs: make(map[string]data.Value)}
	pair, _, err := b.kv.Get(key, nil)
	if err != nil {
		return err
	}
	if pair != nil {
		existing := &linkDoc{}
		if err := json.Unmarshal(pair.Value, existing); err != nil {
			return err
		}
		if existing.ID == eventID && existing.NsXattrs != nil {
			doc.NsXattrs = existing.NsXattrs
		}
	}

	applyDeltas(doc.NsXattrs, event.Xattrs)
	value, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = b.kv.Put(&api.KVPair{Key: key, Value: value}, nil)
	return err
}

func (b *Backend) applyDelete(event *data.Fsevent) error {
	eventID := hex.EncodeToString([]byte(event.ID))

	// Link keys are scattered across parents, so the whole links prefix
	// has to be walked to find this entry's slots.
	pairs, _, err := b.kv.List(b.buildKey("links"), nil)
	if err != nil {
		return err
	}
	for _, pair := range pairs {
		doc := &linkDoc{}
		if err := json.Unmarshal(pair.Value, doc); err != nil {
			continue
		}
		if doc.ID != eventID {
			continue
		}
		if _, err := b.kv.Delete(pair.Key, nil); err != nil {
			return err
		}
	}

	_, err = b.kv.Delete(b.entryKey(event.ID), nil)
	return err
}

func (b *Backend) applyUnlink(event *data.Fsevent) error {
	key := b.linkKey(event.ParentID, event.Name)
	pair, _, err := b.kv.Get(key, nil)
	if err != nil || pair == nil {
		return err
	}
	doc := &linkDoc{}
	if err := json.Unmarshal(pair.Value, doc); err != nil {
		return err
	}
	if doc.ID != hex.EncodeToString([]byte(event.ID)) {
		// Slot was taken over by another entry; leave it alone.
		return nil
	}
	_, err = b.kv.Delete(key, nil)
	return err
}

func (b *Backend) applyEvent(event *data.Fsevent) error {
	switch event.Type {
	case data.FseventDelete:
		return b.applyDelete(event)

	case data.FseventLink:
		doc, err := b.ensureEntry(event.ID)
		if err != nil {
			return err
		}
		if err := b.putEntry(event.ID, doc, nil); err != nil {
			return err
		}
		return b.attach(event)

	case data.FseventUnlink:
		return b.applyUnlink(event)

	case data.FseventUpsert:
		doc, err := b.ensureEntry(event.ID)
		if err != nil {
			return err
		}
		if event.Stat != nil {
			if doc.Stat == nil {
				doc.Stat = &data.Stat{}
			}
			doc.Stat.Merge(event.Stat, event.StatMask)
			doc.StatMask |= event.StatMask
			if event.StatMask&data.StatMaskMode != 0 {
				if t := typeFromMode(event.Stat.Mode); t != data.TypeUnknown {
					doc.Type = t
				}
			}
		}
		if event.Symlink != "" {
			doc.Symlink = event.Symlink
			doc.Type = data.TypeSymlink
		}
		applyDeltas(doc.Xattrs, event.Xattrs)
		return b.putEntry(event.ID, doc, nil)

	case data.FseventXattr:
		doc, err := b.ensureEntry(event.ID)
		if err != nil {
			return err
		}
		if event.Name == "" && event.ParentID == data.EmptyID {
			applyDeltas(doc.Xattrs, event.Xattrs)
			return b.putEntry(event.ID, doc, nil)
		}
		if err := b.putEntry(event.ID, doc, nil); err != nil {
			return err
		}
		return b.attach(event)
	}
	return nil
}

// Update applies a batch of fsevents in order. Consul KV offers no
// multi-key transactions over reads and writes of this shape, so the
// batch is applied best effort: a failure mid-batch leaves the events
// before it committed and is reported with its retryability class.
func (b *Backend) Update(ctx context.Context, events []*data.Fsevent) (int, error) {
	if err := backend.ValidateBatch(events); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i, event := range events {
		if err := b.applyEvent(event); err != nil {
			return i, b.wrap("update", err)
		}
	}
	return len(events), nil
}

// decodeSlot splits a links key back into its (parent, name) parts.
func (b *Backend) decodeSlot(key string) (data.ID, string, bool) {
	prefix := b.buildKey("links") + "/"
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return data.EmptyID, "", false
	}
	parentHex, nameHex, ok := strings.Cut(rest, "/")
	if !ok {
		return data.EmptyID, "", false
	}
	parent, err := hex.DecodeString(parentHex)
	if err != nil {
		return data.EmptyID, "", false
	}
	name, err := hex.DecodeString(nameHex)
	if err != nil {
		return data.EmptyID, "", false
	}
	return data.ID(parent), string(name), true
}

// Scan returns an iterator over the records matching filter, one per
// (parent, name) link. Both prefixes are listed up front and joined in
// memory, so a scan costs two round trips regardless of tree size.
func (b *Backend) Scan(ctx context.Context, filter *data.Filter, mask data.FieldMask, statMask data.StatMask) (iters.Iterator[*data.Record], error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	entryPairs, _, err := b.kv.List(b.buildKey("entries"), nil)
	if err != nil {
		return nil, b.wrap("scan", err)
	}
	entries := make(map[string]*entryDoc, len(entryPairs))
	entryPrefix := b.buildKey("entries") + "/"
	for _, pair := range entryPairs {
		idHex, ok := strings.CutPrefix(pair.Key, entryPrefix)
		if !ok {
			continue
		}
		doc := &entryDoc{}
		if err := json.Unmarshal(pair.Value, doc); err != nil {
			return nil, b.wrap("scan", err)
		}
		entries[idHex] = doc
	}

	linkPairs, _, err := b.kv.List(b.buildKey("links"), nil)
	if err != nil {
		return nil, b.wrap("scan", err)
	}
	sort.Slice(linkPairs, func(i, j int) bool {
		return linkPairs[i].Key < linkPairs[j].Key
	})

	var matched []*data.Record
	for _, pair := range linkPairs {
		parent, name, ok := b.decodeSlot(pair.Key)
		if !ok {
			continue
		}
		link := &linkDoc{}
		if err := json.Unmarshal(pair.Value, link); err != nil {
			return nil, b.wrap("scan", err)
		}
		doc, ok := entries[link.ID]
		if !ok {
			continue
		}
		id, err := hex.DecodeString(link.ID)
		if err != nil {
			continue
		}

		record := &data.Record{
			Mask: data.FieldMaskID | data.FieldMaskParentID | data.FieldMaskName |
				data.FieldMaskType | data.FieldMaskInodeXattrs | data.FieldMaskNamespaceXattrs,
			ID:              data.ID(id),
			ParentID:        parent,
			Name:            name,
			Type:            doc.Type,
			Xattrs:          doc.Xattrs,
			NamespaceXattrs: link.NsXattrs,
		}
		if record.Xattrs == nil {
			record.Xattrs = make(map[string]data.Value)
		}
		if record.NamespaceXattrs == nil {
			record.NamespaceXattrs = make(map[string]data.Value)
		}
		if doc.Symlink != "" {
			record.Mask |= data.FieldMaskSymlink
			record.Symlink = doc.Symlink
		}
		if doc.Stat != nil {
			record.Mask |= data.FieldMaskStat
			record.Stat = doc.Stat
			record.StatMask = doc.StatMask
		}

		match, err := filter.Matches(record)
		if err != nil {
			return nil, err
		}
		if match {
			matched = append(matched, record.Project(mask, statMask))
		}
	}

	return iters.FromSlice(matched), nil
}
