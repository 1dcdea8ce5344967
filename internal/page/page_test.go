package page

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestObjectSerializeParseRoundTrip(t *testing.T) {
	obj := New([]byte("key-1"), []byte("value-1"), 7)
	obj.Xid = 9

	enc, err := obj.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, n, err := Parse(enc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n != len(enc) {
		t.Fatalf("Parse consumed %d bytes, want %d", n, len(enc))
	}
	if diff := cmp.Diff(obj, got); diff != "" {
		t.Fatalf("round trip mismatch:\n%s", diff)
	}
}

func TestObjectSerializeRejectsOversizedKey(t *testing.T) {
	obj := Object{Key: make([]byte, maxKeyLen+1), Value: []byte("v")}
	if _, err := obj.Serialize(); err == nil {
		t.Fatal("expected error for oversized key")
	}
}

func TestPageAddSortedOrder(t *testing.T) {
	p := NewLeaf(DefaultSize)
	for _, k := range []string{"c", "a", "b"} {
		if err := p.Add(New([]byte(k), []byte("v"), 1)); err != nil {
			t.Fatalf("Add(%s): %v", k, err)
		}
	}
	var got []string
	for _, k := range p.Keys() {
		got = append(got, string(k))
	}
	want := []string{"a", "b", "c"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("keys not sorted:\n%s", diff)
	}
}

func TestPageAddRejectsThirdVersion(t *testing.T) {
	p := NewLeaf(DefaultSize)
	if err := p.Add(New([]byte("k"), []byte("v1"), 1)); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := p.Add(New([]byte("k"), []byte("v2"), 2)); err != nil {
		t.Fatalf("second Add: %v", err)
	}
	if err := p.Add(New([]byte("k"), []byte("v3"), 3)); err == nil {
		t.Fatal("expected serialization failure adding a third version")
	}
}

func TestPageUpdateTwoVersionPolicy(t *testing.T) {
	p := NewLeaf(DefaultSize)
	if err := p.Add(New([]byte("k"), []byte("v1"), 1)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// One existing live version: Update expires it under tid 2 and adds
	// the new version.
	if err := p.Update(New([]byte("k"), []byte("v2"), 2), 2); err != nil {
		t.Fatalf("Update (1 -> 2 versions): %v", err)
	}
	objs := p.Objects()
	if len(objs) != 2 {
		t.Fatalf("got %d objects, want 2", len(objs))
	}
	if objs[0].Xid != 2 {
		t.Fatalf("old version not expired: %+v", objs[0])
	}
	if objs[1].Tid != 2 || objs[1].Xid != 0 {
		t.Fatalf("new version wrong: %+v", objs[1])
	}

	// Two versions, one created by the same tid updating again: collapses
	// back to a single new version.
	if err := p.Update(New([]byte("k"), []byte("v3"), 2), 2); err != nil {
		t.Fatalf("Update (collapse): %v", err)
	}
	objs = p.Objects()
	if len(objs) != 2 {
		t.Fatalf("got %d objects after collapse, want 2", len(objs))
	}
}

func TestPageUpdateConflict(t *testing.T) {
	p := NewLeaf(DefaultSize)
	if err := p.Add(New([]byte("k"), []byte("v1"), 1)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := p.Update(New([]byte("k"), []byte("v2"), 2), 2); err != nil {
		t.Fatalf("Update: %v", err)
	}
	// Now two versions exist (tid 1 expired by 2, tid 2 live). A third tid
	// attempting to update must fail with a serialization conflict.
	if err := p.Update(New([]byte("k"), []byte("v3"), 3), 3); err == nil {
		t.Fatal("expected serialization conflict for a third writer")
	}
}

func TestPageDeleteAndExpire(t *testing.T) {
	p := NewLeaf(DefaultSize)
	if err := p.Add(New([]byte("k"), []byte("v"), 1)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !p.Expire([]byte("k"), 1, 5) {
		t.Fatal("Expire reported no change")
	}
	objs := p.Objects()
	if len(objs) != 1 || objs[0].Xid != 5 {
		t.Fatalf("expire did not stamp xid: %+v", objs)
	}
	if !p.Delete([]byte("k"), 1) {
		t.Fatal("Delete reported no change")
	}
	if !p.Empty() {
		t.Fatal("page should be empty after deleting its only object")
	}
}

func TestPageSerializeDeserializeRoundTrip(t *testing.T) {
	p := NewLeaf(DefaultSize)
	for _, k := range []string{"a", "b", "c"} {
		if err := p.Add(New([]byte(k), []byte("value-"+k), 3)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	buf, err := p.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if len(buf) != DefaultSize {
		t.Fatalf("serialized page is %d bytes, want %d", len(buf), DefaultSize)
	}
	got, err := Deserialize(buf)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if diff := cmp.Diff(p.Objects(), got.Objects()); diff != "" {
		t.Fatalf("round trip mismatch:\n%s", diff)
	}
}

func TestPageCloneIsIndependent(t *testing.T) {
	p := NewLeaf(DefaultSize)
	if err := p.Add(New([]byte("k"), []byte("v"), 1)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	clone := p.Clone()
	if err := clone.Add(New([]byte("k2"), []byte("v2"), 1)); err != nil {
		t.Fatalf("Add to clone: %v", err)
	}
	if len(p.Objects()) != 1 {
		t.Fatalf("mutating clone affected original: %d objects", len(p.Objects()))
	}
}

func TestChildPointerRoundTrip(t *testing.T) {
	val := ChildValue(42)
	got, err := ChildPageNumber(New([]byte("k"), val, 0))
	if err != nil {
		t.Fatalf("ChildPageNumber: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}
