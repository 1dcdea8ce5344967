package storage

import "encoding/binary"

// Key-prefix scheme (spec §4.4): each table reserves a 1-byte
// discriminator plus 4-byte table id; row keys append the big-endian row
// id. Catalog keys use a distinct discriminator byte followed by the table
// name (no table id), so that catalog records and row records never
// collide.
const (
	discriminatorRow     byte = 0x01
	discriminatorCatalog byte = 0x00

	// SchemaTableID is the reserved table id that no user table is
	// given; catalog keys do not embed it. User tables are allocated
	// starting at 1 (spec §12
	// of SPEC_FULL, Reserved schema prefix allocation).
	SchemaTableID uint32 = 0
)

// rowKey builds the b-tree key for row rowID of table tableID.
func rowKey(tableID uint32, rowID uint64) []byte {
	key := make([]byte, 1+4+8)
	key[0] = discriminatorRow
	binary.BigEndian.PutUint32(key[1:5], tableID)
	binary.BigEndian.PutUint64(key[5:13], rowID)
	return key
}

// tableRowPrefix returns the shared prefix of every row key in tableID,
// used as the lower bound of a full-table range scan.
func tableRowPrefix(tableID uint32) []byte {
	key := make([]byte, 1+4)
	key[0] = discriminatorRow
	binary.BigEndian.PutUint32(key[1:5], tableID)
	return key
}

// tableRowPrefixEnd returns the exclusive upper bound of tableID's row
// keys: the same prefix with the table id incremented, relying on row
// keys for table id+1 sorting strictly after any row key for tableID.
func tableRowPrefixEnd(tableID uint32) []byte {
	return tableRowPrefix(tableID + 1)
}

// catalogKey builds the b-tree key for the schema record of table name.
func catalogKey(name string) []byte {
	key := make([]byte, 1+len(name))
	key[0] = discriminatorCatalog
	copy(key[1:], name)
	return key
}

// catalogPrefix is the lower bound of a full-catalog scan.
var catalogPrefix = []byte{discriminatorCatalog}

// catalogPrefixEnd is the exclusive upper bound of a full-catalog scan:
// any row key sorts after it since discriminatorRow > discriminatorCatalog.
var catalogPrefixEnd = []byte{discriminatorRow}
