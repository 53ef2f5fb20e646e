package sqlite

import (
	"errors"
	"testing"

	"github.com/mwantia/robinhood/backend"
	"github.com/mwantia/robinhood/data"
	"github.com/mwantia/robinhood/iters"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()

	b, err := New(":memory:")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { b.Close(t.Context()) })
	return b
}

func seedTree(t *testing.T, b *Backend) (root, dir, file data.ID) {
	t.Helper()

	root, dir, file = data.NewID(), data.NewID(), data.NewID()
	events := []*data.Fsevent{
		data.NewLink(root, nil, data.EmptyID, ""),
		data.NewUpsert(root, nil, &data.Stat{Mode: 0o040755}, data.StatMaskMode, ""),
		data.NewLink(dir, nil, root, "src"),
		data.NewUpsert(dir, nil, &data.Stat{Mode: 0o040755}, data.StatMaskMode, ""),
		data.NewLink(file, nil, dir, "main.c"),
		data.NewUpsert(file, nil, &data.Stat{
			Mode: 0o100644, Size: 2048, Mtime: 1700000000,
		}, data.StatMaskMode|data.StatMaskSize|data.StatMaskMtime, ""),
	}

	n, err := b.Update(t.Context(), events)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if n != len(events) {
		t.Fatalf("Expected %d events applied, got %d", len(events), n)
	}
	return root, dir, file
}

func scanAll(t *testing.T, b *Backend, filter *data.Filter) []*data.Record {
	t.Helper()

	it, err := b.Scan(t.Context(), filter, data.FieldMaskAll, data.StatMaskAll)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	records, err := iters.Collect[*data.Record](it)
	if err != nil {
		t.Fatalf("Scan drain failed: %v", err)
	}
	return records
}

func TestSQLite_RootLookup(t *testing.T) {
	b := newTestBackend(t)
	root, _, _ := seedTree(t, b)

	got, err := b.Root(t.Context(), data.FieldMaskAll, data.StatMaskAll)
	if err != nil {
		t.Fatalf("Root failed: %v", err)
	}
	if got.ID != root {
		t.Errorf("Expected root id %q, got %q", root, got.ID)
	}
	if got.Type != data.TypeDirectory {
		t.Errorf("Expected directory root, got %s", got.Type)
	}
}

func TestSQLite_ScanFilter(t *testing.T) {
	b := newTestBackend(t)
	_, _, file := seedTree(t, b)

	filter, err := data.CompareRegex(data.FieldName, "\\.c$", 0)
	if err != nil {
		t.Fatalf("CompareRegex failed: %v", err)
	}
	records := scanAll(t, b, filter)
	if len(records) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(records))
	}
	if records[0].ID != file || records[0].Name != "main.c" {
		t.Errorf("Wrong record: %q %q", records[0].ID, records[0].Name)
	}
	if records[0].Stat == nil || records[0].Stat.Size != 2048 {
		t.Errorf("Stat did not survive the round trip")
	}
}

func TestSQLite_PersistenceAcrossReopen(t *testing.T) {
	path := t.TempDir() + "/index.db"

	b, err := New(path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	root, _, _ := seedTree(t, b)
	if err := b.Close(t.Context()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer reopened.Close(t.Context())

	got, err := reopened.Root(t.Context(), data.FieldMaskAll, 0)
	if err != nil {
		t.Fatalf("Root after reopen failed: %v", err)
	}
	if got.ID != root {
		t.Errorf("Root id lost across reopen")
	}
}

func TestSQLite_Rename(t *testing.T) {
	b := newTestBackend(t)
	_, dir, file := seedTree(t, b)

	if _, err := b.Update(t.Context(), []*data.Fsevent{
		data.NewUnlink(file, dir, "main.c"),
		data.NewLink(file, nil, dir, "renamed.c"),
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	filter, err := data.CompareBinary(data.OpEqual, data.FieldID, []byte(file))
	if err != nil {
		t.Fatalf("CompareBinary failed: %v", err)
	}
	records := scanAll(t, b, filter)
	if len(records) != 1 || records[0].Name != "renamed.c" {
		t.Fatalf("Expected a single renamed.c record, got %v", len(records))
	}
	if records[0].Stat == nil || records[0].Stat.Size != 2048 {
		t.Errorf("Rename must not lose inode attributes")
	}
}

func TestSQLite_SlotSteal(t *testing.T) {
	b := newTestBackend(t)
	_, dir, _ := seedTree(t, b)

	usurper := data.NewID()
	if _, err := b.Update(t.Context(), []*data.Fsevent{
		data.NewLink(usurper, nil, dir, "main.c"),
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	name, err := data.CompareString(data.OpEqual, data.FieldName, "main.c")
	if err != nil {
		t.Fatalf("CompareString failed: %v", err)
	}
	records := scanAll(t, b, name)
	if len(records) != 1 {
		t.Fatalf("Expected 1 occupant, got %d", len(records))
	}
	if records[0].ID != usurper {
		t.Errorf("Slot should belong to the new entry")
	}
}

func TestSQLite_DeleteRemovesAllLinks(t *testing.T) {
	b := newTestBackend(t)
	_, dir, file := seedTree(t, b)

	if _, err := b.Update(t.Context(), []*data.Fsevent{
		data.NewLink(file, nil, dir, "alias.c"),
		data.NewDelete(file),
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	filter, err := data.CompareBinary(data.OpEqual, data.FieldID, []byte(file))
	if err != nil {
		t.Fatalf("CompareBinary failed: %v", err)
	}
	if got := scanAll(t, b, filter); len(got) != 0 {
		t.Errorf("Deleted entry should be gone, got %d records", len(got))
	}
}

func TestSQLite_XattrScopes(t *testing.T) {
	b := newTestBackend(t)
	_, dir, file := seedTree(t, b)

	class := data.NewStringValue("hot")
	tag := data.NewStringValue("keep")
	if _, err := b.Update(t.Context(), []*data.Fsevent{
		data.NewXattr(file, map[string]*data.Value{"user.class": &class}),
		data.NewNamespaceXattr(file, map[string]*data.Value{"ns.tag": &tag}, dir, "main.c"),
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	filter, err := data.CompareBinary(data.OpEqual, data.FieldID, []byte(file))
	if err != nil {
		t.Fatalf("CompareBinary failed: %v", err)
	}
	records := scanAll(t, b, filter)
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if got := records[0].Xattrs["user.class"].String(); got != "hot" {
		t.Errorf("Inode xattr lost in storage: %q", got)
	}
	if got := records[0].NamespaceXattrs["ns.tag"].String(); got != "keep" {
		t.Errorf("Namespace xattr lost in storage: %q", got)
	}
}

func TestSQLite_UpdateRejectsBadBatches(t *testing.T) {
	b := newTestBackend(t)

	if _, err := b.Update(t.Context(), nil); !errors.Is(err, data.ErrInvalid) {
		t.Errorf("Empty batch: expected ErrInvalid, got %v", err)
	}

	bad := []*data.Fsevent{data.NewDelete(data.NewID()), {Type: data.FseventDelete}}
	if _, err := b.Update(t.Context(), bad); !errors.Is(err, data.ErrInvalid) {
		t.Errorf("Invalid event: expected ErrInvalid, got %v", err)
	}
	if _, err := b.Root(t.Context(), data.FieldMaskAll, 0); !errors.Is(err, data.ErrNotExist) {
		t.Errorf("Failed batch must not mutate the store")
	}
}

func TestSQLite_FactoryNeedsPath(t *testing.T) {
	uri, err := backend.ParseRawURI("sqlite:")
	if err != nil {
		t.Fatalf("ParseRawURI failed: %v", err)
	}
	if _, err := (Factory{}).New(t.Context(), uri); !errors.Is(err, data.ErrInvalid) {
		t.Errorf("Expected ErrInvalid for missing path, got %v", err)
	}
}
