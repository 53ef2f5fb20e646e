package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/mwantia/robinhood/backend"
	"github.com/mwantia/robinhood/data"
	"github.com/mwantia/robinhood/iters"
)

func encodeXattrs(xattrs map[string]data.Value) (string, error) {
	if len(xattrs) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(xattrs)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeXattrs(raw string) (map[string]data.Value, error) {
	xattrs := make(map[string]data.Value)
	if raw == "" {
		return xattrs, nil
	}
	if err := json.Unmarshal([]byte(raw), &xattrs); err != nil {
		return nil, err
	}
	return xattrs, nil
}

type entryRow struct {
	typ      data.FileType
	symlink  string
	stat     *data.Stat
	statMask data.StatMask
	xattrs   map[string]data.Value
}

func (b *Backend) readEntry(ctx context.Context, tx *sql.Tx, id data.ID) (*entryRow, error) {
	var typ int
	var symlink, xattrs string
	var stat sql.NullString
	var statMask uint32

	err := tx.QueryRowContext(ctx,
		`SELECT type, symlink, stat, stat_mask, xattrs FROM rbh_entries WHERE id = ?`,
		[]byte(id)).Scan(&typ, &symlink, &stat, &statMask, &xattrs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	row := &entryRow{
		typ:      data.FileType(typ),
		symlink:  symlink,
		statMask: data.StatMask(statMask),
	}
	if row.xattrs, err = decodeXattrs(xattrs); err != nil {
		return nil, err
	}
	if stat.Valid {
		row.stat = &data.Stat{}
		if err := json.Unmarshal([]byte(stat.String), row.stat); err != nil {
			return nil, err
		}
	}
	return row, nil
}

func (b *Backend) writeEntry(ctx context.Context, tx *sql.Tx, id data.ID, row *entryRow) error {
	xattrs, err := encodeXattrs(row.xattrs)
	if err != nil {
		return err
	}

	var stat sql.NullString
	if row.stat != nil {
		raw, err := json.Marshal(row.stat)
		if err != nil {
			return err
		}
		stat = sql.NullString{String: string(raw), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rbh_entries (id, type, symlink, stat, stat_mask, xattrs)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			symlink = excluded.symlink,
			stat = excluded.stat,
			stat_mask = excluded.stat_mask,
			xattrs = excluded.xattrs
	`, []byte(id), int(row.typ), row.symlink, stat, uint32(row.statMask), xattrs)
	return err
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

// ensureEntry reads an entry row, creating an empty one if absent.
func (b *Backend) ensureEntry(ctx context.Context, tx *sql.Tx, id data.ID) (*entryRow, error) {
	row, err := b.readEntry(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		row = &entryRow{xattrs: make(map[string]data.Value)}
	}
	return row, nil
}

func (b *Backend) applyEvent(ctx context.Context, tx *sql.Tx, event *data.Fsevent) error {
	switch event.Type {
	case data.FseventDelete:
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM rbh_links WHERE id = ?`, []byte(event.ID)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM rbh_entries WHERE id = ?`, []byte(event.ID))
		return err

	case data.FseventLink:
		row, err := b.ensureEntry(ctx, tx, event.ID)
		if err != nil {
			return err
		}
		if err := b.writeEntry(ctx, tx, event.ID, row); err != nil {
			return err
		}
		return b.attach(ctx, tx, event)

	case data.FseventUnlink:
		_, err := tx.ExecContext(ctx,
			`DELETE FROM rbh_links WHERE parent_id = ? AND name = ? AND id = ?`,
			[]byte(event.ParentID), event.Name, []byte(event.ID))
		return err

	case data.FseventUpsert:
		row, err := b.ensureEntry(ctx, tx, event.ID)
		if err != nil {
			return err
		}
		if event.Stat != nil {
			if row.stat == nil {
				row.stat = &data.Stat{}
			}
			row.stat.Merge(event.Stat, event.StatMask)
			row.statMask |= event.StatMask
			if event.StatMask&data.StatMaskMode != 0 {
				if t := typeFromMode(event.Stat.Mode); t != data.TypeUnknown {
					row.typ = t
				}
			}
		}
		if event.Symlink != "" {
			row.symlink = event.Symlink
			row.typ = data.TypeSymlink
		}
		applyDeltas(row.xattrs, event.Xattrs)
		return b.writeEntry(ctx, tx, event.ID, row)

	case data.FseventXattr:
		if event.Name == "" && event.ParentID == data.EmptyID {
			row, err := b.ensureEntry(ctx, tx, event.ID)
			if err != nil {
				return err
			}
			applyDeltas(row.xattrs, event.Xattrs)
			return b.writeEntry(ctx, tx, event.ID, row)
		}
		row, err := b.ensureEntry(ctx, tx, event.ID)
		if err != nil {
			return err
		}
		if err := b.writeEntry(ctx, tx, event.ID, row); err != nil {
			return err
		}
		return b.attach(ctx, tx, event)
	}
	return nil
}

// attach binds the (parent, name) slot to the event's entry, stealing
// it from any prior occupant, and merges namespace xattr deltas.
func (b *Backend) attach(ctx context.Context, tx *sql.Tx, event *data.Fsevent) error {
	var existing string
	nsXattrs := make(map[string]data.Value)

	err := tx.QueryRowContext(ctx,
		`SELECT ns_xattrs FROM rbh_links WHERE parent_id = ? AND name = ? AND id = ?`,
		[]byte(event.ParentID), event.Name, []byte(event.ID)).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Slot is free or held by another entry; the upsert below
		// takes it over either way.
	case err != nil:
		return err
	default:
		if nsXattrs, err = decodeXattrs(existing); err != nil {
			return err
		}
	}

	applyDeltas(nsXattrs, event.Xattrs)
	encoded, err := encodeXattrs(nsXattrs)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rbh_links (parent_id, name, id, ns_xattrs)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(parent_id, name) DO UPDATE SET
			id = excluded.id,
			ns_xattrs = excluded.ns_xattrs
	`, []byte(event.ParentID), event.Name, []byte(event.ID), encoded)
	return err
}

// Update applies a batch of fsevents in one transaction: the batch
// either commits as a whole or leaves the database untouched.
func (b *Backend) Update(ctx context.Context, events []*data.Fsevent) (int, error) {
	if err := backend.ValidateBatch(events); err != nil {
		return 0, err
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, b.wrap("update", err)
	}

	for _, event := range events {
		if err := b.applyEvent(ctx, tx, event); err != nil {
			tx.Rollback()
			return 0, b.wrap("update", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, b.wrap("update", err)
	}
	return len(events), nil
}

// Scan returns an iterator over the records matching filter, one per
// (parent, name) link in slot order. Rows are decoded and evaluated
// against the filter in memory; the result set is buffered so the
// database connection is released before iteration starts.
func (b *Backend) Scan(ctx context.Context, filter *data.Filter, mask data.FieldMask, statMask data.StatMask) (iters.Iterator[*data.Record], error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT l.parent_id, l.name, l.ns_xattrs,
		       e.id, e.type, e.symlink, e.stat, e.stat_mask, e.xattrs
		FROM rbh_links l
		JOIN rbh_entries e ON e.id = l.id
		ORDER BY l.parent_id, l.name
	`)
	if err != nil {
		return nil, b.wrap("scan", err)
	}
	defer rows.Close()

	var matched []*data.Record
	for rows.Next() {
		var parentID, id []byte
		var name, nsXattrs, symlink, xattrs string
		var typ int
		var stat sql.NullString
		var statMaskRaw uint32

		if err := rows.Scan(&parentID, &name, &nsXattrs,
			&id, &typ, &symlink, &stat, &statMaskRaw, &xattrs); err != nil {
			return nil, b.wrap("scan", err)
		}

		record := &data.Record{
			Mask: data.FieldMaskID | data.FieldMaskParentID | data.FieldMaskName |
				data.FieldMaskType | data.FieldMaskInodeXattrs | data.FieldMaskNamespaceXattrs,
			ID:       data.ID(id),
			ParentID: data.ID(parentID),
			Name:     name,
			Type:     data.FileType(typ),
		}
		if symlink != "" {
			record.Mask |= data.FieldMaskSymlink
			record.Symlink = symlink
		}
		if record.Xattrs, err = decodeXattrs(xattrs); err != nil {
			return nil, b.wrap("scan", err)
		}
		if record.NamespaceXattrs, err = decodeXattrs(nsXattrs); err != nil {
			return nil, b.wrap("scan", err)
		}
		if stat.Valid {
			record.Stat = &data.Stat{}
			if err := json.Unmarshal([]byte(stat.String), record.Stat); err != nil {
				return nil, b.wrap("scan", err)
			}
			record.Mask |= data.FieldMaskStat
			record.StatMask = data.StatMask(statMaskRaw)
		}

		match, err := filter.Matches(record)
		if err != nil {
			return nil, err
		}
		if match {
			matched = append(matched, record.Project(mask, statMask))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, b.wrap("scan", err)
	}

	return iters.FromSlice(matched), nil
}
