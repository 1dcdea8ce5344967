package storage

import (
	"encoding/binary"
	"math"

	"github.com/embedb/embedb/internal/dberr"
	"github.com/pkg/errors"
)

// encodeTable serializes t's schema for storage as a catalog PageObject
// value: [4-byte id][8-byte next row id][2-byte name len][name]
// [2-byte pk len][pk]
// [2-byte column count] then per column
// [2-byte name len][name][1 byte type][1 byte nullable].
func encodeTable(t *Table) []byte {
	buf := make([]byte, 0, 64)
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], t.ID)
	buf = append(buf, tmp[:]...)
	var rowID [8]byte
	binary.BigEndian.PutUint64(rowID[:], t.NextRowID)
	buf = append(buf, rowID[:]...)
	buf = appendString(buf, t.Name)
	buf = appendString(buf, t.PrimaryKey)

	var cnt [2]byte
	binary.BigEndian.PutUint16(cnt[:], uint16(len(t.Columns)))
	buf = append(buf, cnt[:]...)
	for _, c := range t.Columns {
		buf = appendString(buf, c.Name)
		buf = append(buf, byte(c.Type))
		if c.Nullable {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	return buf
}

func decodeTable(buf []byte) (*Table, error) {
	if len(buf) < 4 {
		return nil, errors.New("storage: truncated table record")
	}
	id := binary.BigEndian.Uint32(buf[0:4])
	if len(buf) < 12 {
		return nil, errors.New("storage: truncated table record (row counter)")
	}
	nextRowID := binary.BigEndian.Uint64(buf[4:12])
	off := 12

	name, off, err := readString(buf, off)
	if err != nil {
		return nil, err
	}
	pk, off, err := readString(buf, off)
	if err != nil {
		return nil, err
	}
	if off+2 > len(buf) {
		return nil, errors.New("storage: truncated table record (column count)")
	}
	colCount := int(binary.BigEndian.Uint16(buf[off : off+2]))
	off += 2

	cols := make([]Column, colCount)
	for i := 0; i < colCount; i++ {
		cname, noff, err := readString(buf, off)
		if err != nil {
			return nil, err
		}
		off = noff
		if off+2 > len(buf) {
			return nil, errors.New("storage: truncated column record")
		}
		cols[i] = Column{Name: cname, Type: Type(buf[off]), Nullable: buf[off+1] != 0}
		off += 2
	}

	return &Table{ID: id, Name: name, Columns: cols, PrimaryKey: pk, NextRowID: nextRowID}, nil
}

// encodeRow serializes values for storage as a row PageObject value:
// [2-byte column count] then per entry
// [2-byte name len][name][1 byte type][1 byte is-null][payload].
// Numeric payloads are 8-byte big-endian IEEE-754 doubles; string
// payloads are [4-byte length][bytes].
func encodeRow(values map[string]Value) []byte {
	buf := make([]byte, 2, 64)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(values)))
	for name, v := range values {
		buf = appendString(buf, name)
		buf = append(buf, byte(v.Type))
		if v.IsNull {
			buf = append(buf, 1)
			continue
		}
		buf = append(buf, 0)
		if isNumericType(v.Type) {
			var tmp [8]byte
			binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v.Num))
			buf = append(buf, tmp[:]...)
		} else {
			var lenBuf [4]byte
			binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v.Str)))
			buf = append(buf, lenBuf[:]...)
			buf = append(buf, v.Str...)
		}
	}
	return buf
}

func decodeRow(buf []byte) (map[string]Value, error) {
	if len(buf) < 2 {
		return nil, errors.New("storage: truncated row record")
	}
	count := int(binary.BigEndian.Uint16(buf[0:2]))
	off := 2
	values := make(map[string]Value, count)
	for i := 0; i < count; i++ {
		name, noff, err := readString(buf, off)
		if err != nil {
			return nil, err
		}
		off = noff
		if off+2 > len(buf) {
			return nil, errors.New("storage: truncated row value header")
		}
		typ := Type(buf[off])
		isNull := buf[off+1] != 0
		off += 2
		if isNull {
			values[name] = NullValue(typ)
			continue
		}
		if isNumericType(typ) {
			if off+8 > len(buf) {
				return nil, errors.New("storage: truncated numeric row value")
			}
			bits := binary.BigEndian.Uint64(buf[off : off+8])
			values[name] = NumValue(typ, math.Float64frombits(bits))
			off += 8
		} else {
			if off+4 > len(buf) {
				return nil, errors.New("storage: truncated string row value length")
			}
			n := int(binary.BigEndian.Uint32(buf[off : off+4]))
			off += 4
			if off+n > len(buf) {
				return nil, errors.New("storage: truncated string row value")
			}
			s := make([]byte, n)
			copy(s, buf[off:off+n])
			values[name] = StrValue(typ, s)
			off += n
		}
	}
	return values, nil
}

func isNumericType(t Type) bool {
	switch t {
	case TypeBoolean, TypeSmallInt, TypeInteger, TypeBigInt, TypeReal, TypeDouble, TypeFloat:
		return true
	default:
		return false
	}
}

func appendString(buf []byte, s string) []byte {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, s...)
	return buf
}

func readString(buf []byte, off int) (string, int, error) {
	if off+2 > len(buf) {
		return "", 0, dberr.New(dberr.CodeSyntaxOrArgument, "storage: truncated string field")
	}
	n := int(binary.BigEndian.Uint16(buf[off : off+2]))
	off += 2
	if off+n > len(buf) {
		return "", 0, dberr.New(dberr.CodeSyntaxOrArgument, "storage: truncated string field body")
	}
	return string(buf[off : off+n]), off + n, nil
}
