package btree

import (
	"bytes"

	"github.com/embedb/embedb/internal/page"
	"github.com/pkg/errors"
)

// RangeIterator produces page.Objects with keys in [start, end) in
// ascending order, re-descending from the root whenever the current leaf
// is exhausted — pages carry no sibling pointers, so each re-descent
// uses the last emitted key to find the next leaf (spec §4.1, range
// scans).
type RangeIterator struct {
	t     *Btree
	start []byte
	end   []byte

	leaf    *page.Page
	leafNo  uint32
	idx     int
	lastKey []byte
	started bool
	done    bool
	err     error
}

// NewRangeIterator returns an iterator over [start, end). A nil end
// means unbounded above.
func (t *Btree) NewRangeIterator(start, end []byte) *RangeIterator {
	return &RangeIterator{t: t, start: start, end: end}
}

// Err returns any error encountered during iteration.
func (it *RangeIterator) Err() error { return it.err }

func (it *RangeIterator) loadLeafFrom(key []byte) bool {
	pth, pages, err := it.t.descend(key)
	if err != nil {
		it.err = errors.Wrap(err, "btree: range iterator descend")
		return false
	}
	it.leaf = pages[len(pages)-1]
	it.leafNo = pth[len(pth)-1]
	it.idx = 0
	for it.idx < len(it.leaf.Objects()) && bytes.Compare(it.leaf.Objects()[it.idx].Key, key) < 0 {
		it.idx++
	}
	return true
}

// Next advances the iterator and reports whether a value is available.
func (it *RangeIterator) Next() (page.Object, bool) {
	if it.done || it.err != nil {
		return page.Object{}, false
	}

	if !it.started {
		it.started = true
		if !it.loadLeafFrom(it.start) {
			return page.Object{}, false
		}
	}

	for {
		if it.idx >= len(it.leaf.Objects()) {
			from := it.lastKey
			if from == nil {
				from = it.start
			}
			// There is no next-sibling pointer to follow directly:
			// re-descend along from's path and take the smallest non-leaf
			// entry key above from, which heads the next leaf's subtree.
			prevLeafNo := it.leafNo
			_, pages, err := it.t.descend(from)
			if err != nil {
				it.err = errors.Wrap(err, "btree: range iterator descend")
				return page.Object{}, false
			}
			var nextKey []byte
			for _, p := range pages[:len(pages)-1] {
				for _, o := range p.Objects() {
					if bytes.Compare(o.Key, from) > 0 && (nextKey == nil || bytes.Compare(o.Key, nextKey) < 0) {
						nextKey = o.Key
					}
				}
			}
			if nextKey == nil {
				// No subtree starts above from: this was the last leaf.
				it.done = true
				return page.Object{}, false
			}
			if !it.loadLeafFrom(nextKey) {
				return page.Object{}, false
			}
			if len(it.leaf.Objects()) == 0 || it.leafNo == prevLeafNo {
				// The next leaf is empty, or re-descending from nextKey
				// landed back on the same leaf: no forward progress was
				// made, so the scan is over.
				it.done = true
				return page.Object{}, false
			}
			continue
		}

		obj := it.leaf.Objects()[it.idx]
		it.idx++
		if it.end != nil && bytes.Compare(obj.Key, it.end) >= 0 {
			it.done = true
			return page.Object{}, false
		}
		it.lastKey = obj.Key
		return obj, true
	}
}
