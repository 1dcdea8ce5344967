package storage

import (
	"strings"

	"github.com/embedb/embedb/internal/dberr"
	"github.com/embedb/embedb/internal/page"
)

// CreateTable registers a new table, persisting its schema record in
// the catalog region of the b-tree (spec §4.4).
func (s *Storage) CreateTable(name string, columns []Column, primaryKey string, tid uint32) error {
	if err := s.requireActive(); err != nil {
		return err
	}
	name = strings.ToUpper(name)
	if _, exists := s.catalog.Get(name); exists {
		return s.abortOnError(dberr.New(dberr.CodeDuplicateTable, "table %q already exists", name))
	}

	var t *Table
	err := s.withWriteLock(func() error {
		id, err := s.pgr.NextTableID()
		if err != nil {
			return err
		}
		t = &Table{ID: id, Name: name, Columns: columns, PrimaryKey: primaryKey, CatalogTid: tid}
		obj := page.New(catalogKey(name), encodeTable(t), tid)
		return s.writeBtree().Add(obj)
	})
	if err != nil {
		return s.abortOnError(err)
	}
	s.catalog.Put(t)
	s.logger.Debug("table created", "name", name, "id", t.ID)
	return nil
}

// DropTable removes name's schema record. Data rows are not purged — an
// acknowledged limitation carried from spec §4.4 and Open Question (a).
func (s *Storage) DropTable(name string, tid uint32) error {
	if err := s.requireActive(); err != nil {
		return err
	}
	name = strings.ToUpper(name)
	t, exists := s.catalog.Get(name)
	if !exists {
		return s.abortOnError(dberr.New(dberr.CodeUndefinedTable, "table %q does not exist", name))
	}
	err := s.withWriteLock(func() error {
		_, err := s.writeBtree().Expire(catalogKey(name), t.CatalogTid, tid)
		return err
	})
	if err != nil {
		return s.abortOnError(err)
	}
	s.catalog.Remove(name)
	s.logger.Debug("table dropped", "name", name)
	return nil
}

// lookupTable is the UndefinedTable-checking accessor shared by the row
// operations below.
func (s *Storage) lookupTable(name string) (*Table, error) {
	name = strings.ToUpper(name)
	t, exists := s.catalog.Get(name)
	if !exists {
		return nil, dberr.New(dberr.CodeUndefinedTable, "table %q does not exist", name)
	}
	return t, nil
}

// WriteRow evaluates the primary key (auto-assigning an integer row id
// from the table's counter if unspecified), builds the full b-tree key,
// and inserts the row (spec §4.4).
func (s *Storage) WriteRow(tableName string, values map[string]Value, tid uint32) (Row, error) {
	if err := s.requireActive(); err != nil {
		return Row{}, err
	}
	t, err := s.lookupTable(tableName)
	if err != nil {
		return Row{}, s.abortOnError(err)
	}

	if err := s.checkNotNull(t, values); err != nil {
		return Row{}, s.abortOnError(err)
	}

	var rowID uint64
	err = s.withWriteLock(func() error {
		rowID = s.assignRowID(t, values)
		obj := page.New(rowKey(t.ID, rowID), encodeRow(values), tid)
		if err := s.writeBtree().Add(obj); err != nil {
			return err
		}
		return s.persistTableMeta(t, tid)
	})
	if err != nil {
		return Row{}, s.abortOnError(err)
	}

	return Row{RowID: rowID, Values: values, Tid: tid}, nil
}

// assignRowID returns the row's integer identifier: the declared
// primary key's value if present, or the table's next auto-assigned id.
// Must be called with the write lock held, since it mutates t.NextRowID.
func (s *Storage) assignRowID(t *Table, values map[string]Value) uint64 {
	if t.PrimaryKey != "" {
		if v, ok := values[t.PrimaryKey]; ok && !v.IsNull {
			id := uint64(v.Num)
			if id >= t.NextRowID {
				t.NextRowID = id + 1
			}
			return id
		}
	}
	id := t.NextRowID
	t.NextRowID++
	return id
}

// persistTableMeta rewrites the table's catalog record, picking up the
// row-counter mutation assignRowID may have made. Must be called with
// the write lock held.
func (s *Storage) persistTableMeta(t *Table, tid uint32) error {
	newObj := page.New(catalogKey(t.Name), encodeTable(t), tid)
	if err := s.writeBtree().Update(newObj, tid); err != nil {
		return err
	}
	t.CatalogTid = tid
	return nil
}

// checkNotNull enforces every NOT NULL column's constraint (spec §7
// taxonomy 2, SQLSTATE 23502).
func (s *Storage) checkNotNull(t *Table, values map[string]Value) error {
	for _, c := range t.Columns {
		if c.Nullable {
			continue
		}
		v, ok := values[c.Name]
		if !ok || v.IsNull {
			return dberr.New(dberr.CodeNotNullViolation, "column %q may not be NULL", c.Name)
		}
	}
	return nil
}

// DeleteRow expires the row's current version under the deleter's tid
// (spec §4.4: `btree.expire(row_key, row.tid, current_tid)`).
func (s *Storage) DeleteRow(tableName string, row Row, tid uint32) error {
	if err := s.requireActive(); err != nil {
		return err
	}
	t, err := s.lookupTable(tableName)
	if err != nil {
		return s.abortOnError(err)
	}
	var modified bool
	err = s.withWriteLock(func() error {
		var err error
		modified, err = s.writeBtree().Expire(rowKey(t.ID, row.RowID), row.Tid, tid)
		return err
	})
	if err != nil {
		return s.abortOnError(err)
	}
	if !modified {
		return s.abortOnError(dberr.New(dberr.CodeSyntaxOrArgument, "row %d of %q has no live version under tid %d", row.RowID, t.Name, row.Tid))
	}
	return nil
}

// UpdateRow applies the two-version replace policy for row's key (spec
// §4.4: `btree.update`).
func (s *Storage) UpdateRow(tableName string, oldRow Row, newValues map[string]Value, tid uint32) (Row, error) {
	if err := s.requireActive(); err != nil {
		return Row{}, err
	}
	t, err := s.lookupTable(tableName)
	if err != nil {
		return Row{}, s.abortOnError(err)
	}
	if err := s.checkNotNull(t, newValues); err != nil {
		return Row{}, s.abortOnError(err)
	}
	err = s.withWriteLock(func() error {
		obj := page.New(rowKey(t.ID, oldRow.RowID), encodeRow(newValues), tid)
		return s.writeBtree().Update(obj, tid)
	})
	if err != nil {
		return Row{}, s.abortOnError(err)
	}
	return Row{RowID: oldRow.RowID, Values: newValues, Tid: tid}, nil
}

// ScanTable returns every row of tableName visible to snapshot, in
// ascending row-id order.
func (s *Storage) ScanTable(tableName string, snapshot uint32) ([]Row, error) {
	t, err := s.lookupTable(tableName)
	if err != nil {
		return nil, err
	}
	var out []Row
	err = s.withReadLock(func() error {
		it := s.btree().NewRangeIterator(tableRowPrefix(t.ID), tableRowPrefixEnd(t.ID))
		for {
			obj, ok := it.Next()
			if !ok {
				break
			}
			row := Row{Tid: obj.Tid, Xid: obj.Xid}
			if !row.Visible(snapshot) {
				continue
			}
			values, err := decodeRow(obj.Value)
			if err != nil {
				return err
			}
			row.Values = values
			row.RowID = rowIDFromKey(obj.Key)
			out = append(out, row)
		}
		return it.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListTables returns every table currently registered in the catalog.
func (s *Storage) ListTables() []*Table { return s.catalog.List() }

func rowIDFromKey(key []byte) uint64 {
	if len(key) != 1+4+8 {
		return 0
	}
	var id uint64
	for _, b := range key[5:13] {
		id = id<<8 | uint64(b)
	}
	return id
}
