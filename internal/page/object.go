package page

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// headerSize is the fixed portion of a serialized PageObject: 4 bytes total
// length, 4 bytes tid, 4 bytes xid, 2 bytes key length.
const headerSize = 4 + 4 + 4 + 2

// maxKeyLen is the largest key length representable in the 2-byte key
// length field.
const maxKeyLen = 0xFFFF

// Object is the unit stored in a leaf page: a key/value pair stamped with
// the MVCC identifiers of the transaction that created and (if expired)
// deleted it.
type Object struct {
	Key   []byte
	Value []byte
	Tid   uint32 // creator transaction id
	Xid   uint32 // expirer transaction id; 0 means live
}

// Live reports whether the object has not been expired.
func (o Object) Live() bool { return o.Xid == 0 }

// Len returns the number of bytes Serialize would produce for o.
func (o Object) Len() int {
	return headerSize + len(o.Key) + len(o.Value)
}

// Serialize encodes o as
// [4 bytes total length][4 bytes tid][4 bytes xid][2 bytes key length][key][value],
// all integers big-endian, per the on-disk PageObject layout.
func (o Object) Serialize() ([]byte, error) {
	if len(o.Key) > maxKeyLen {
		return nil, errors.Errorf("page: key length %d exceeds %d byte limit", len(o.Key), maxKeyLen)
	}
	n := o.Len()
	buf := make([]byte, n)
	binary.BigEndian.PutUint32(buf[0:4], uint32(n))
	binary.BigEndian.PutUint32(buf[4:8], o.Tid)
	binary.BigEndian.PutUint32(buf[8:12], o.Xid)
	binary.BigEndian.PutUint16(buf[12:14], uint16(len(o.Key)))
	copy(buf[14:14+len(o.Key)], o.Key)
	copy(buf[14+len(o.Key):], o.Value)
	return buf, nil
}

// Parse decodes the PageObject at the start of buf, returning the object
// and the number of bytes it occupied (equal to its serialized Len()).
func Parse(buf []byte) (Object, int, error) {
	if len(buf) < headerSize {
		return Object{}, 0, errors.Errorf("page: buffer too short for object header: %d bytes", len(buf))
	}
	total := int(binary.BigEndian.Uint32(buf[0:4]))
	if total < headerSize || total > len(buf) {
		return Object{}, 0, errors.Errorf("page: corrupt object length %d (buffer has %d)", total, len(buf))
	}
	tid := binary.BigEndian.Uint32(buf[4:8])
	xid := binary.BigEndian.Uint32(buf[8:12])
	keyLen := int(binary.BigEndian.Uint16(buf[12:14]))
	if headerSize+keyLen > total {
		return Object{}, 0, errors.Errorf("page: corrupt key length %d exceeds object length %d", keyLen, total)
	}
	key := make([]byte, keyLen)
	copy(key, buf[14:14+keyLen])
	valLen := total - headerSize - keyLen
	val := make([]byte, valLen)
	copy(val, buf[14+keyLen:total])
	return Object{Key: key, Value: val, Tid: tid, Xid: xid}, total, nil
}

// New builds a live PageObject for key/value created by tid.
func New(key, value []byte, tid uint32) Object {
	return Object{Key: key, Value: value, Tid: tid, Xid: 0}
}
