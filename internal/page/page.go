// Package page implements the byte-layout and record-manipulation layer
// of the storage engine: fixed-size pages holding sorted, MVCC-stamped
// PageObject records.
package page

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/embedb/embedb/internal/dberr"
	"github.com/pkg/errors"
)

// Kind distinguishes a data-bearing leaf page from a pointer-bearing
// non-leaf page.
type Kind uint8

const (
	Leaf    Kind = 0
	NonLeaf Kind = 1
)

// headerBytes is the on-disk page header: 1 byte kind, 2 bytes used.
const headerBytes = 3

// DefaultSize is the default fixed page size in bytes. It may only be
// overridden for ":memory:" databases (spec §3).
const DefaultSize = 4096

// Page is a fixed-size unit of file I/O containing a header followed by
// PageObjects in ascending key order.
type Page struct {
	kind    Kind
	size    int
	objects []Object
}

// NewLeaf returns an empty leaf page of the given fixed size.
func NewLeaf(size int) *Page { return &Page{kind: Leaf, size: size} }

// NewNonLeaf returns an empty non-leaf page of the given fixed size.
func NewNonLeaf(size int) *Page { return &Page{kind: NonLeaf, size: size} }

// Clone returns a page with the same contents as p, safe to mutate
// independently. Used by pagers whose backing store would otherwise
// hand out the same *Page on every FetchPage (spec §9, Ownership of
// pages: callers may assume a fetched page is theirs alone).
func (p *Page) Clone() *Page {
	objs := make([]Object, len(p.objects))
	copy(objs, p.objects)
	return &Page{kind: p.kind, size: p.size, objects: objs}
}

// Rebuild replaces a page's contents wholesale with objs, which the
// caller guarantees are already sorted by key and obey the two-version
// rule. Used by the b-tree when distributing objects across a split.
func Rebuild(kind Kind, size int, objs []Object) *Page {
	return &Page{kind: kind, size: size, objects: objs}
}

func (p *Page) Kind() Kind  { return p.kind }
func (p *Page) Size() int   { return p.size }
func (p *Page) IsLeaf() bool { return p.kind == Leaf }
func (p *Page) Empty() bool  { return len(p.objects) == 0 }

// Used returns the header size plus the sum of all contained object
// lengths — the invariant spec §3 requires to hold at all times.
func (p *Page) Used() int {
	used := headerBytes
	for _, o := range p.objects {
		used += o.Len()
	}
	return used
}

// Fits reports whether o could be added without exceeding the page size.
func (p *Page) Fits(o Object) bool {
	return p.Used()+o.Len() <= p.size
}

func keyAt(objs []Object, i int) []byte { return objs[i].Key }

// findRange returns the half-open index range [lo, hi) of objects whose
// key equals key, within a page sorted by key ascending.
func (p *Page) findRange(key []byte) (int, int) {
	lo := sort.Search(len(p.objects), func(i int) bool {
		return bytes.Compare(p.objects[i].Key, key) >= 0
	})
	hi := lo
	for hi < len(p.objects) && bytes.Equal(p.objects[hi].Key, key) {
		hi++
	}
	return lo, hi
}

// Add inserts obj in sorted position by key, after any existing version
// of the same key. It panics if obj does not
// fit — callers (the b-tree) must check Fits first, since overflow is a
// caller precondition violation, not a runtime condition. It fails with a
// dberr serialization_failure if two versions of the key already exist.
func (p *Page) Add(obj Object) error {
	if !p.Fits(obj) {
		panic("page: Add called on an object that does not fit")
	}
	lo, hi := p.findRange(obj.Key)
	if hi-lo >= 2 {
		return dberr.New(dberr.CodeSerializationFailure,
			"key already has two versions in this page")
	}
	p.objects = append(p.objects, Object{})
	copy(p.objects[hi+1:], p.objects[hi:len(p.objects)-1])
	p.objects[hi] = obj
	return nil
}

// Delete removes every object with matching key and tid. It reports
// whether anything was removed.
func (p *Page) Delete(key []byte, tid uint32) bool {
	lo, hi := p.findRange(key)
	removed := false
	out := p.objects[:lo]
	for i := lo; i < hi; i++ {
		if p.objects[i].Tid == tid {
			removed = true
			continue
		}
		out = append(out, p.objects[i])
	}
	out = append(out, p.objects[hi:]...)
	p.objects = out
	return removed
}

// Expire sets xid on every object with matching key and tid. It reports
// whether anything was modified.
func (p *Page) Expire(key []byte, tid, xid uint32) bool {
	lo, hi := p.findRange(key)
	modified := false
	for i := lo; i < hi; i++ {
		if p.objects[i].Tid == tid {
			p.objects[i].Xid = xid
			modified = true
		}
	}
	return modified
}

// Replace performs delete(key, tid) then add(new(key, tid, 0, value)).
// Used for non-leaf pointer updates (key + child page number).
func (p *Page) Replace(key []byte, tid uint32, value []byte) error {
	p.Delete(key, tid)
	return p.Add(New(key, value, tid))
}

// Update applies the two-version policy (spec §4.2) for a single key:
// with zero existing versions it inserts obj; with one, it expires the
// existing version under tid and inserts obj; with two, it deletes the
// one created by tid (collapsing an in-flight duplicate) and inserts
// obj, or fails with a serialization conflict if neither matches tid.
func (p *Page) Update(obj Object, tid uint32) error {
	lo, hi := p.findRange(obj.Key)
	switch hi - lo {
	case 0:
		return p.Add(obj)
	case 1:
		p.objects[lo].Xid = tid
		return p.Add(obj)
	case 2:
		if p.objects[lo].Tid == tid || p.objects[lo+1].Tid == tid {
			p.Delete(obj.Key, tid)
			return p.Add(obj)
		}
		return dberr.New(dberr.CodeSerializationFailure,
			"key already has two versions in this page")
	default:
		return errors.Errorf("page: impossible version count %d for key", hi-lo)
	}
}

// Objects returns the page's objects in stored (sorted) order. The
// returned slice must not be mutated by the caller.
func (p *Page) Objects() []Object { return p.objects }

// Keys returns the page's keys in stored order.
func (p *Page) Keys() [][]byte {
	keys := make([][]byte, len(p.objects))
	for i, o := range p.objects {
		keys[i] = o.Key
	}
	return keys
}

// Head returns the first object in the page, i.e. the one under the
// smallest key.
func (p *Page) Head() (Object, bool) {
	if len(p.objects) == 0 {
		return Object{}, false
	}
	return p.objects[0], true
}

// HeadKey returns the smallest key in the page.
func (p *Page) HeadKey() ([]byte, bool) {
	o, ok := p.Head()
	if !ok {
		return nil, false
	}
	return o.Key, true
}

// ChildPageNumber decodes the 4-byte big-endian child page number stored
// as a non-leaf object's value.
func ChildPageNumber(o Object) (uint32, error) {
	if len(o.Value) != 4 {
		return 0, errors.Errorf("page: non-leaf value is %d bytes, want 4", len(o.Value))
	}
	return binary.BigEndian.Uint32(o.Value), nil
}

// ChildValue encodes a child page number as a non-leaf object's value.
func ChildValue(pageNo uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, pageNo)
	return buf
}

// Serialize renders the page into a fixed-size buffer of p.size bytes:
// header (kind, used) followed by concatenated serialized objects.
func (p *Page) Serialize() ([]byte, error) {
	buf := make([]byte, p.size)
	buf[0] = byte(p.kind)
	off := headerBytes
	for _, o := range p.objects {
		enc, err := o.Serialize()
		if err != nil {
			return nil, err
		}
		if off+len(enc) > p.size {
			return nil, errors.Errorf("page: serialized content %d exceeds page size %d", off+len(enc), p.size)
		}
		copy(buf[off:], enc)
		off += len(enc)
	}
	binary.BigEndian.PutUint16(buf[1:3], uint16(off))
	return buf, nil
}

// Deserialize parses a fixed-size page buffer produced by Serialize.
func Deserialize(buf []byte) (*Page, error) {
	if len(buf) < headerBytes {
		return nil, errors.Errorf("page: buffer shorter than header: %d bytes", len(buf))
	}
	kind := Kind(buf[0])
	if kind != Leaf && kind != NonLeaf {
		return nil, errors.Errorf("page: unknown page kind %d", buf[0])
	}
	used := int(binary.BigEndian.Uint16(buf[1:3]))
	if used < headerBytes || used > len(buf) {
		return nil, errors.Errorf("page: corrupt used field %d (buffer has %d bytes)", used, len(buf))
	}
	p := &Page{kind: kind, size: len(buf)}
	off := headerBytes
	for off < used {
		obj, n, err := Parse(buf[off:used])
		if err != nil {
			return nil, errors.Wrap(err, "page: deserialize object")
		}
		p.objects = append(p.objects, obj)
		off += n
	}
	return p, nil
}
