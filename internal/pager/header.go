package pager

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// magic is the recognition signature at byte 0 of a database file. A file
// is only openable by an engine that recognizes both the signature and
// the page size recorded alongside it.
var magic = [8]byte{'E', 'M', 'B', 'E', 'D', 'B', '0', '1'}

// HeaderSize is the fixed size, in bytes, of the file header: 8 bytes
// magic, 2 bytes page size, 4 bytes root page number, 4 bytes next
// transaction id, 4 bytes next table id.
const HeaderSize = 8 + 2 + 4 + 4 + 4

// Header is the persisted metadata that precedes the first page.
type Header struct {
	PageSize    uint16
	RootPage    uint32
	NextTxID    uint32
	NextTableID uint32
}

// DefaultHeader returns the header for a brand-new database: an empty
// root leaf at page 0, the first transaction id of 1 (0 is reserved to
// mean "no transaction"/"not yet visible"), and table ids starting at 1
// (0 is reserved for the schema catalog, see storage.Catalog).
func DefaultHeader(pageSize uint16) Header {
	return Header{
		PageSize:    pageSize,
		RootPage:    0,
		NextTxID:    1,
		NextTableID: 1,
	}
}

func (h Header) encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:8], magic[:])
	binary.BigEndian.PutUint16(buf[8:10], h.PageSize)
	binary.BigEndian.PutUint32(buf[10:14], h.RootPage)
	binary.BigEndian.PutUint32(buf[14:18], h.NextTxID)
	binary.BigEndian.PutUint32(buf[18:22], h.NextTableID)
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, errors.Errorf("pager: header buffer too short: %d bytes", len(buf))
	}
	for i := range magic {
		if buf[i] != magic[i] {
			return Header{}, errors.New("pager: file signature not recognized")
		}
	}
	return Header{
		PageSize:    binary.BigEndian.Uint16(buf[8:10]),
		RootPage:    binary.BigEndian.Uint32(buf[10:14]),
		NextTxID:    binary.BigEndian.Uint32(buf[14:18]),
		NextTableID: binary.BigEndian.Uint32(buf[18:22]),
	}, nil
}
