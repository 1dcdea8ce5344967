// Package storage maps logical tables onto the single shared key space of
// the b-tree, assigns transaction identifiers, enforces the transaction
// state machine, tracks dirty pages for commit/rollback, and serializes
// writers against the backing file.
package storage

// Type is a declared SQL scalar type.
type Type int

const (
	TypeNull Type = iota
	TypeBoolean
	TypeSmallInt
	TypeInteger
	TypeBigInt
	TypeReal
	TypeDouble
	TypeFloat
	TypeCharacter
	TypeVarchar
)

// Value is a tagged scalar. Numeric payloads are carried as float64,
// strings as a byte sequence, booleans as 0/1 — per spec §3, every Value
// carries its declared type alongside the payload, and NULL is
// representable in any type via IsNull.
type Value struct {
	Type   Type
	IsNull bool
	Num    float64
	Str    []byte
}

// NullValue returns a NULL of the given declared type.
func NullValue(t Type) Value { return Value{Type: t, IsNull: true} }

// NumValue returns a live numeric Value.
func NumValue(t Type, n float64) Value { return Value{Type: t, Num: n} }

// StrValue returns a live character Value.
func StrValue(t Type, s []byte) Value { return Value{Type: t, Str: s} }

// Column is one entry of a Table's schema.
type Column struct {
	Name     string
	Type     Type
	Nullable bool
}

// Table is the schema descriptor persisted in the catalog (spec §3).
type Table struct {
	ID      uint32
	Name    string // case-insensitive, folded to uppercase
	Columns []Column
	// PrimaryKey is the declared single-column integer primary key's
	// column name, or "" if none declared (spec §1 Non-goals: no
	// multi-column or non-integer primary keys).
	PrimaryKey string
	// NextRowID is the per-table monotonically increasing counter that
	// produces auto-assigned row identifiers (spec §3).
	NextRowID uint64
	// CatalogTid is the tid currently stamped on this table's catalog
	// b-tree record. It changes every time the record is rewritten (a
	// CreateTable, or a NextRowID bump via persistTableMeta), so
	// DropTable's Expire call must use this value, not t.ID, to match
	// the live catalog object.
	CatalogTid uint32
}

// ColumnIndex returns the position of name within t.Columns, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Row is a mapping from column name to Value plus the MVCC stamps and
// opaque row identifier under which it is stored (spec §3). RowID is
// assigned at insert time from the table's monotonic counter.
type Row struct {
	RowID  uint64
	Values map[string]Value
	Tid    uint32
	Xid    uint32
}

// Live reports whether the row's underlying version has not been
// expired.
func (r Row) Live() bool { return r.Xid == 0 }

// Visible reports whether r is visible to a reader holding snapshot,
// per spec §4.4's visibility rule.
func (r Row) Visible(snapshot uint32) bool {
	if r.Tid > snapshot {
		return false
	}
	return r.Xid == 0 || r.Xid > snapshot
}
