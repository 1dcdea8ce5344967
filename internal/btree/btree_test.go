package btree

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/embedb/embedb/internal/page"
	"github.com/embedb/embedb/internal/pager"
)

func newTestTree(pageSize int) (*Btree, pager.Pager) {
	pgr := pager.NewMemoryPager(pageSize, nil)
	return New(pgr, nil), pgr
}

func TestAddAndLookup(t *testing.T) {
	tr, _ := newTestTree(page.DefaultSize)
	if err := tr.Add(page.New([]byte("a"), []byte("1"), 1)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := tr.Add(page.New([]byte("b"), []byte("2"), 1)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, err := tr.Lookup([]byte("a"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(got) != 1 || string(got[0].Value) != "1" {
		t.Fatalf("Lookup(a) = %+v, want value 1", got)
	}
}

func TestLookupMissingKey(t *testing.T) {
	tr, _ := newTestTree(page.DefaultSize)
	if err := tr.Add(page.New([]byte("a"), []byte("1"), 1)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, err := tr.Lookup([]byte("zzz"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Lookup(missing) = %+v, want empty", got)
	}
}

func TestAddRejectsThirdLiveVersion(t *testing.T) {
	tr, _ := newTestTree(page.DefaultSize)
	if err := tr.Add(page.New([]byte("a"), []byte("1"), 1)); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := tr.Add(page.New([]byte("a"), []byte("2"), 2)); err != nil {
		t.Fatalf("second Add: %v", err)
	}
	if err := tr.Add(page.New([]byte("a"), []byte("3"), 3)); err == nil {
		t.Fatal("expected serialization failure on a third live version")
	}
}

// TestManyInsertsForceSplits inserts enough keys, using a small page
// size, to force several levels of leaf and non-leaf splits, then
// verifies every key is still reachable and the tree stays ordered.
func TestManyInsertsForceSplits(t *testing.T) {
	const pageSize = 256 // small enough that a handful of rows overflow a page
	tr, pgr := newTestTree(pageSize)

	const n = 300
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		val := []byte(fmt.Sprintf("value-%04d", i))
		if err := tr.Add(page.New(key, val, 1)); err != nil {
			t.Fatalf("Add(%s): %v", key, err)
		}
	}

	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		got, err := tr.Lookup(key)
		if err != nil {
			t.Fatalf("Lookup(%s): %v", key, err)
		}
		if len(got) != 1 {
			t.Fatalf("Lookup(%s) returned %d objects, want 1", key, len(got))
		}
		want := fmt.Sprintf("value-%04d", i)
		if string(got[0].Value) != want {
			t.Fatalf("Lookup(%s) = %q, want %q", key, got[0].Value, want)
		}
	}

	if pgr.TotalPages() <= 1 {
		t.Fatalf("expected the tree to have split across multiple pages, got %d", pgr.TotalPages())
	}

	it := tr.NewRangeIterator(nil, nil)
	count := 0
	var prev []byte
	for {
		obj, ok := it.Next()
		if !ok {
			break
		}
		if prev != nil && string(prev) >= string(obj.Key) {
			t.Fatalf("range iterator not ascending: %q then %q", prev, obj.Key)
		}
		prev = obj.Key
		count++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("range iterator error: %v", err)
	}
	if count != n {
		t.Fatalf("range iterator produced %d objects, want %d", count, n)
	}
}

func TestUpdateTwoVersionPolicy(t *testing.T) {
	tr, _ := newTestTree(page.DefaultSize)
	if err := tr.Add(page.New([]byte("k"), []byte("v1"), 1)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := tr.Update(page.New([]byte("k"), []byte("v2"), 2), 2); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := tr.Lookup([]byte("k"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Lookup after update = %d objects, want 2", len(got))
	}
}

func TestExpireAndRemove(t *testing.T) {
	tr, _ := newTestTree(page.DefaultSize)
	if err := tr.Add(page.New([]byte("k"), []byte("v"), 1)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	modified, err := tr.Expire([]byte("k"), 1, 5)
	if err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if !modified {
		t.Fatal("Expire reported no change")
	}
	got, err := tr.Lookup([]byte("k"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got[0].Xid != 5 {
		t.Fatalf("object not expired: %+v", got[0])
	}

	removed, err := tr.Remove([]byte("k"), 1)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Fatal("Remove reported no change")
	}
	got, err = tr.Lookup([]byte("k"))
	if err != nil {
		t.Fatalf("Lookup after remove: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("object still present after Remove: %+v", got)
	}
}

// TestRemoveReclaimsPages drives enough inserts to create multiple
// leaves, then removes every key and checks the tree shrinks back down
// and every formerly-present key is gone.
func TestRemoveReclaimsPages(t *testing.T) {
	const pageSize = 256
	tr, pgr := newTestTree(pageSize)

	var keys [][]byte
	for i := 0; i < 200; i++ {
		k := []byte(fmt.Sprintf("key-%04d", i))
		keys = append(keys, k)
		if err := tr.Add(page.New(k, []byte("v"), 1)); err != nil {
			t.Fatalf("Add(%s): %v", k, err)
		}
	}
	if pgr.TotalPages() <= 1 {
		t.Fatal("expected multiple pages after inserts")
	}

	rand.New(rand.NewSource(1)).Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	for _, k := range keys {
		removed, err := tr.Remove(k, 1)
		if err != nil {
			t.Fatalf("Remove(%s): %v", k, err)
		}
		if !removed {
			t.Fatalf("Remove(%s) reported no change", k)
		}
	}

	for _, k := range keys {
		got, err := tr.Lookup(k)
		if err != nil {
			t.Fatalf("Lookup(%s) after removal: %v", k, err)
		}
		if len(got) != 0 {
			t.Fatalf("key %s still present after removing all keys", k)
		}
	}
	if pgr.TotalPages() != 1 {
		t.Fatalf("TotalPages after removing every key = %d, want 1 (the empty root leaf)", pgr.TotalPages())
	}
}

func TestRangeIteratorRespectsBounds(t *testing.T) {
	tr, _ := newTestTree(page.DefaultSize)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		if err := tr.Add(page.New([]byte(k), []byte("v"), 1)); err != nil {
			t.Fatalf("Add(%s): %v", k, err)
		}
	}
	it := tr.NewRangeIterator([]byte("b"), []byte("d"))
	var got []string
	for {
		obj, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, string(obj.Key))
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterator error: %v", err)
	}
	want := []string{"b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
