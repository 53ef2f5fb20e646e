package s3

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/mwantia/robinhood/backend"
	"github.com/mwantia/robinhood/data"
	"github.com/mwantia/robinhood/iters"
)

// entryDoc is the JSON object stored under entries/<hex id>.
type entryDoc struct {
	Type     data.FileType         `json:"type"`
	Symlink  string                `json:"symlink,omitempty"`
	Stat     *data.Stat            `json:"stat,omitempty"`
	StatMask data.StatMask         `json:"stat_mask,omitempty"`
	Xattrs   map[string]data.Value `json:"xattrs,omitempty"`
}

// linkDoc is the JSON object stored under links/<hex parent>/<hex name>.
type linkDoc struct {
	ID       string                `json:"id"` // hex encoded entry id
	NsXattrs map[string]data.Value `json:"ns_xattrs,omitempty"`
}

func (b *Backend) entryKey(id data.ID) string {
	return b.prefix + "entries/" + hex.EncodeToString([]byte(id))
}

func (b *Backend) linkKey(parent data.ID, name string) string {
	return b.prefix + "links/" +
		hex.EncodeToString([]byte(parent)) + "/" +
		hex.EncodeToString([]byte(name))
}

func (b *Backend) getObject(ctx context.Context, key string, out any) (bool, error) {
	object, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return false, err
	}
	defer object.Close()

	raw, err := io.ReadAll(object)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (b *Backend) putObject(ctx context.Context, key string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = b.client.PutObject(ctx, b.bucket, key,
		bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
			ContentType: "application/json",
		})
	return err
}

func (b *Backend) ensureEntry(ctx context.Context, id data.ID) (*entryDoc, error) {
	doc := &entryDoc{}
	ok, err := b.getObject(ctx, b.entryKey(id), doc)
	if err != nil {
		return nil, err
	}
	if !ok || doc.Xattrs == nil {
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
func (b *Backend) attach(ctx context.Context, event *data.Fsevent) error {
	key := b.linkKey(event.ParentID, event.Name)
	eventID := hex.EncodeToString([]byte(event.ID))

	existing := &linkDoc{}
	ok, err := b.getObject(ctx, key, existing)
	if err != nil {
		return err
	}

	doc := &linkDoc{ID: eventID, NsXattrs: make(map[string]data.Value)}
	if ok && existing.ID == eventID && existing.NsXattrs != nil {
		doc.NsXattrs = existing.NsXattrs
	}

	applyDeltas(doc.NsXattrs, event.Xattrs)
	return b.putObject(ctx, key, doc)
}

func (b *Backend) applyDelete(ctx context.Context, event *data.Fsevent) error {
	eventID := hex.EncodeToString([]byte(event.ID))

	// Link keys are scattered across parents, so the whole links prefix
	// has to be walked to find this entry's slots.
	for info := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    b.prefix + "links/",
		Recursive: true,
	}) {
		if info.Err != nil {
			return info.Err
		}
		doc := &linkDoc{}
		ok, err := b.getObject(ctx, info.Key, doc)
		if err != nil {
			return err
		}
		if !ok || doc.ID != eventID {
			continue
		}
		if err := b.client.RemoveObject(ctx, b.bucket, info.Key, minio.RemoveObjectOptions{}); err != nil {
			return err
		}
	}

	return b.client.RemoveObject(ctx, b.bucket, b.entryKey(event.ID), minio.RemoveObjectOptions{})
}

func (b *Backend) applyUnlink(ctx context.Context, event *data.Fsevent) error {
	key := b.linkKey(event.ParentID, event.Name)

	doc := &linkDoc{}
	ok, err := b.getObject(ctx, key, doc)
	if err != nil || !ok {
		return err
	}
	if doc.ID != hex.EncodeToString([]byte(event.ID)) {
		// Slot was taken over by another entry; leave it alone.
		return nil
	}
	return b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{})
}

func (b *Backend) applyEvent(ctx context.Context, event *data.Fsevent) error {
	switch event.Type {
	case data.FseventDelete:
		return b.applyDelete(ctx, event)

	case data.FseventLink:
		doc, err := b.ensureEntry(ctx, event.ID)
		if err != nil {
			return err
		}
		if err := b.putObject(ctx, b.entryKey(event.ID), doc); err != nil {
			return err
		}
		return b.attach(ctx, event)

	case data.FseventUnlink:
		return b.applyUnlink(ctx, event)

	case data.FseventUpsert:
		doc, err := b.ensureEntry(ctx, event.ID)
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
		return b.putObject(ctx, b.entryKey(event.ID), doc)

	case data.FseventXattr:
		doc, err := b.ensureEntry(ctx, event.ID)
		if err != nil {
			return err
		}
		if event.Name == "" && event.ParentID == data.EmptyID {
			applyDeltas(doc.Xattrs, event.Xattrs)
			return b.putObject(ctx, b.entryKey(event.ID), doc)
		}
		if err := b.putObject(ctx, b.entryKey(event.ID), doc); err != nil {
			return err
		}
		return b.attach(ctx, event)
	}
	return nil
}

// Update applies a batch of fsevents in order. Object stores offer no
// cross-object transactions, so the batch is applied best effort: a
// failure mid-batch leaves the events before it committed and is
// reported with its retryability class.
func (b *Backend) Update(ctx context.Context, events []*data.Fsevent) (int, error) {
	if err := backend.ValidateBatch(events); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i, event := range events {
		if err := b.applyEvent(ctx, event); err != nil {
			return i, b.wrap("update", err)
		}
	}
	return len(events), nil
}

// decodeSlot splits a links key back into its (parent, name) parts.
func (b *Backend) decodeSlot(key string) (data.ID, string, bool) {
	rest, ok := strings.CutPrefix(key, b.prefix+"links/")
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
// (parent, name) link. Entries are listed and fetched into memory
// first, then joined against the link listing.
func (b *Backend) Scan(ctx context.Context, filter *data.Filter, mask data.FieldMask, statMask data.StatMask) (iters.Iterator[*data.Record], error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	entries := make(map[string]*entryDoc)
	entryPrefix := b.prefix + "entries/"
	for info := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    entryPrefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, b.wrap("scan", info.Err)
		}
		idHex, ok := strings.CutPrefix(info.Key, entryPrefix)
		if !ok {
			continue
		}
		doc := &entryDoc{}
		if ok, err := b.getObject(ctx, info.Key, doc); err != nil {
			return nil, b.wrap("scan", err)
		} else if ok {
			entries[idHex] = doc
		}
	}

	var linkKeys []string
	for info := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    b.prefix + "links/",
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, b.wrap("scan", info.Err)
		}
		linkKeys = append(linkKeys, info.Key)
	}
	sort.Strings(linkKeys)

	var matched []*data.Record
	for _, key := range linkKeys {
		parent, name, ok := b.decodeSlot(key)
		if !ok {
			continue
		}
		link := &linkDoc{}
		if ok, err := b.getObject(ctx, key, link); err != nil {
			return nil, b.wrap("scan", err)
		} else if !ok {
			continue
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
