package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/mwantia/robinhood/backend"
	"github.com/mwantia/robinhood/data"
	"github.com/mwantia/robinhood/iters"
)

func encodeXattrs(xattrs map[string]data.Value) ([]byte, error) {
	if len(xattrs) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(xattrs)
}

func decodeXattrs(raw []byte) (map[string]data.Value, error) {
	xattrs := make(map[string]data.Value)
	if len(raw) == 0 {
		return xattrs, nil
	}
	if err := json.Unmarshal(raw, &xattrs); err != nil {
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

func readEntry(ctx context.Context, tx pgx.Tx, id data.ID) (*entryRow, error) {
	var typ int
	var symlink string
	var stat, xattrs []byte
	var statMask int64

	err := tx.QueryRow(ctx,
		`SELECT type, symlink, stat, stat_mask, xattrs FROM rbh_entries WHERE id = $1`,
		[]byte(id)).Scan(&typ, &symlink, &stat, &statMask, &xattrs)
	if errors.Is(err, pgx.ErrNoRows) {
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
	if len(stat) > 0 {
		row.stat = &data.Stat{}
		if err := json.Unmarshal(stat, row.stat); err != nil {
			return nil, err
		}
	}
	return row, nil
}

func writeEntry(ctx context.Context, tx pgx.Tx, id data.ID, row *entryRow) error {
	xattrs, err := encodeXattrs(row.xattrs)
	if err != nil {
		return err
	}

	var stat []byte
	if row.stat != nil {
		if stat, err = json.Marshal(row.stat); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO rbh_entries (id, type, symlink, stat, stat_mask, xattrs)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			symlink = EXCLUDED.symlink,
			stat = EXCLUDED.stat,
			stat_mask = EXCLUDED.stat_mask,
			xattrs = EXCLUDED.xattrs
	`, []byte(id), int(row.typ), row.symlink, stat, int64(row.statMask), xattrs)
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

func ensureEntry(ctx context.Context, tx pgx.Tx, id data.ID) (*entryRow, error) {
	row, err := readEntry(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		row = &entryRow{xattrs: make(map[string]data.Value)}
	}
	return row, nil
}

// attach binds the (parent, name) slot to the event's entry, stealing
// it from any prior occupant, and merges namespace xattr deltas.
func attach(ctx context.Context, tx pgx.Tx, event *data.Fsevent) error {
	var existing []byte
	nsXattrs := make(map[string]data.Value)

	err := tx.QueryRow(ctx,
		`SELECT ns_xattrs FROM rbh_links WHERE parent_id = $1 AND name = $2 AND id = $3`,
		[]byte(event.ParentID), event.Name, []byte(event.ID)).Scan(&existing)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
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

	_, err = tx.Exec(ctx, `
		INSERT INTO rbh_links (parent_id, name, id, ns_xattrs)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (parent_id, name) DO UPDATE SET
			id = EXCLUDED.id,
			ns_xattrs = EXCLUDED.ns_xattrs
	`, []byte(event.ParentID), event.Name, []byte(event.ID), encoded)
	return err
}

func applyEvent(ctx context.Context, tx pgx.Tx, event *data.Fsevent) error {
	switch event.Type {
	case data.FseventDelete:
		if _, err := tx.Exec(ctx,
			`DELETE FROM rbh_links WHERE id = $1`, []byte(event.ID)); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`DELETE FROM rbh_entries WHERE id = $1`, []byte(event.ID))
		return err

	case data.FseventLink:
		row, err := ensureEntry(ctx, tx, event.ID)
		if err != nil {
			return err
		}
		if err := writeEntry(ctx, tx, event.ID, row); err != nil {
			return err
		}
		return attach(ctx, tx, event)

	case data.FseventUnlink:
		_, err := tx.Exec(ctx,
			`DELETE FROM rbh_links WHERE parent_id = $1 AND name = $2 AND id = $3`,
			[]byte(event.ParentID), event.Name, []byte(event.ID))
		return err

	case data.FseventUpsert:
		row, err := ensureEntry(ctx, tx, event.ID)
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
		return writeEntry(ctx, tx, event.ID, row)

	case data.FseventXattr:
		row, err := ensureEntry(ctx, tx, event.ID)
		if err != nil {
			return err
		}
		if event.Name == "" && event.ParentID == data.EmptyID {
			applyDeltas(row.xattrs, event.Xattrs)
			return writeEntry(ctx, tx, event.ID, row)
		}
		if err := writeEntry(ctx, tx, event.ID, row); err != nil {
			return err
		}
		return attach(ctx, tx, event)
	}
	return nil
}

// Update applies a batch of fsevents in one transaction: the batch
// either commits as a whole or leaves the database untouched.
func (b *Backend) Update(ctx context.Context, events []*data.Fsevent) (int, error) {
	if err := backend.ValidateBatch(events); err != nil {
		return 0, err
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return 0, b.wrap("update", err)
	}

	for _, event := range events {
		if err := applyEvent(ctx, tx, event); err != nil {
			tx.Rollback(ctx)
			return 0, b.wrap("update", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, b.wrap("update", err)
	}
	return len(events), nil
}

// Scan returns an iterator over the records matching filter, one per
// (parent, name) link in slot order. Rows are decoded and evaluated
// against the filter in memory; the result set is buffered so the
// connection goes back to the pool before iteration starts.
func (b *Backend) Scan(ctx context.Context, filter *data.Filter, mask data.FieldMask, statMask data.StatMask) (iters.Iterator[*data.Record], error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	rows, err := b.pool.Query(ctx, `
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
		var parentID, id, nsXattrs, stat, xattrs []byte
		var name, symlink string
		var typ int
		var statMaskRaw int64

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
		if len(stat) > 0 {
			record.Stat = &data.Stat{}
			if err := json.Unmarshal(stat, record.Stat); err != nil {
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
