// Package btree orders pages into a search/range-scan tree over a
// pager.Pager, handling split on overflow and merge/collapse on
// underflow, and exposing point lookup, range iteration, insert, expire,
// and delete to the storage coordinator.
package btree

import (
	"bytes"
	"log/slog"

	"github.com/embedb/embedb/internal/dberr"
	"github.com/embedb/embedb/internal/page"
	"github.com/embedb/embedb/internal/pager"
	"github.com/pkg/errors"
)

// Btree is a B-tree index over a Pager. It holds no state of its own
// beyond the pager it wraps — all durable state (root page number, page
// contents) lives in the pager, so a Btree value is cheap to construct
// per-operation if desired.
type Btree struct {
	pgr    pager.Pager
	logger *slog.Logger
}

// New returns a Btree backed by pgr, logging splits, merges, collapses,
// and serialization conflicts to logger (SPEC_FULL §10.1). A nil logger
// discards everything.
func New(pgr pager.Pager, logger *slog.Logger) *Btree {
	return &Btree{pgr: pgr, logger: orDefaultLogger(logger)}
}

func (t *Btree) pageSize() int { return t.pgr.PageSize() }

// path is the chain of page numbers from the root (path[0]) down to and
// including a leaf (path[len(path)-1]), built during a single descend.
// It is never persisted; spec §9 forbids caching parent links across
// operations, only within one.
type path []uint32

// descend walks from the root to the leaf that would contain key,
// choosing at each non-leaf the rightmost child whose head key is <= key
// (or the leftmost child if all heads are greater), per spec §4.3.
func (t *Btree) descend(key []byte) (path, []*page.Page, error) {
	var pth path
	var pages []*page.Page

	pageNo := t.pgr.RootPage()
	for {
		p, err := t.pgr.FetchPage(pageNo)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "btree: fetch page %d", pageNo)
		}
		pth = append(pth, pageNo)
		pages = append(pages, p)

		if p.IsLeaf() {
			return pth, pages, nil
		}

		objs := p.Objects()
		chosen := 0
		for i, o := range objs {
			if bytes.Compare(o.Key, key) <= 0 {
				chosen = i
			} else {
				break
			}
		}
		child, err := page.ChildPageNumber(objs[chosen])
		if err != nil {
			return nil, nil, errors.Wrap(err, "btree: decode child pointer")
		}
		pageNo = child
	}
}

// Lookup returns every version stored under key (at most two: a frozen
// version and an in-flight one), per spec §3 invariants. Expired versions
// are included; visibility filtering is left to the caller.
func (t *Btree) Lookup(key []byte) ([]page.Object, error) {
	_, pages, err := t.descend(key)
	if err != nil {
		return nil, err
	}
	leaf := pages[len(pages)-1]
	var out []page.Object
	for _, o := range leaf.Objects() {
		if bytes.Equal(o.Key, key) {
			out = append(out, o)
		}
	}
	return out, nil
}

// Add inserts obj with insert-if-absent MVCC versioning (spec §4.2's
// two-version policy, enforced by page.Page.Add/Update).
func (t *Btree) Add(obj page.Object) error {
	pth, pages, err := t.descend(obj.Key)
	if err != nil {
		return err
	}
	leafNo := pth[len(pth)-1]
	leaf := pages[len(pages)-1]
	oldHead, hadHead := leaf.HeadKey()

	if leaf.Fits(obj) {
		if err := leaf.Add(obj); err != nil {
			t.warnIfConflict(err, obj.Key, leafNo)
			return err
		}
		if err := t.pgr.StorePage(leafNo, leaf); err != nil {
			return errors.Wrap(err, "btree: store leaf after insert")
		}
		newHead, _ := leaf.HeadKey()
		if hadHead && !bytes.Equal(oldHead, newHead) {
			return t.propagateHeadKey(pth[:len(pth)-1], leafNo, oldHead, newHead)
		}
		return nil
	}

	return t.splitAndInsert(pth, leaf, obj)
}

// splitAndInsert handles leaf overflow: it merges obj into the leaf's
// existing objects, splits the result across the old leaf page and a
// newly appended sibling, and propagates the new sibling's head key into
// the parent (splitting ancestors in turn if they overflow).
func (t *Btree) splitAndInsert(pth path, leaf *page.Page, obj page.Object) error {
	leafNo := pth[len(pth)-1]
	oldHead, _ := leaf.HeadKey()

	merged, err := mergeInsert(leaf.Objects(), obj)
	if err != nil {
		t.warnIfConflict(err, obj.Key, leafNo)
		return err
	}
	leftObjs, rightObjs := splitHalf(merged, leaf.Size())
	if len(leftObjs) == 0 || len(rightObjs) == 0 {
		return errors.New("btree: split produced an empty half; object too large for page size")
	}

	leftPage := page.Rebuild(leaf.Kind(), leaf.Size(), leftObjs)
	rightPage := page.Rebuild(leaf.Kind(), leaf.Size(), rightObjs)

	if err := t.pgr.StorePage(leafNo, leftPage); err != nil {
		return errors.Wrap(err, "btree: store left half of split")
	}
	rightNo, err := t.pgr.AppendPage(rightPage)
	if err != nil {
		return errors.Wrap(err, "btree: append right half of split")
	}
	t.logger.Debug("leaf split", "old_page", leafNo, "new_page", rightNo, "left_count", len(leftObjs), "right_count", len(rightObjs))

	newLeftHead := leftObjs[0].Key
	sepKey := rightObjs[0].Key

	// Propagate a changed head first, while the ancestors still hold the
	// leaf's entry where the path says, so that a parent split or a new
	// root below sees the current head key.
	if !bytes.Equal(oldHead, newLeftHead) {
		if err := t.propagateHeadKey(pth[:len(pth)-1], leafNo, oldHead, newLeftHead); err != nil {
			return err
		}
	}
	return t.insertPointer(pth[:len(pth)-1], leafNo, newLeftHead, sepKey, rightNo)
}

// insertPointer adds a (sepKey -> siblingNo) pointer entry into the
// non-leaf page at the end of ancestors, which already holds an entry
// for childNo keyed at childHead. If ancestors is empty, childNo was the
// root and a new non-leaf root is created holding both entries. If the
// target non-leaf page itself overflows, it is split and the process
// repeats one level up.
func (t *Btree) insertPointer(ancestors path, childNo uint32, childHead, sepKey []byte, siblingNo uint32) error {
	if len(ancestors) == 0 {
		root := page.NewNonLeaf(t.pageSize())
		if err := root.Add(page.New(childHead, page.ChildValue(childNo), 0)); err != nil {
			return errors.Wrap(err, "btree: build new root")
		}
		if err := root.Add(page.New(sepKey, page.ChildValue(siblingNo), 0)); err != nil {
			return errors.Wrap(err, "btree: build new root")
		}
		rootNo, err := t.pgr.AppendPage(root)
		if err != nil {
			return errors.Wrap(err, "btree: append new root")
		}
		t.logger.Debug("root created", "root_page", rootNo, "left_child", childNo, "right_child", siblingNo)
		return t.pgr.SetRootPage(rootNo)
	}

	parentNo := ancestors[len(ancestors)-1]
	parent, err := t.pgr.FetchPage(parentNo)
	if err != nil {
		return errors.Wrapf(err, "btree: fetch parent page %d", parentNo)
	}

	entry := page.New(sepKey, page.ChildValue(siblingNo), 0)
	if parent.Fits(entry) {
		if err := parent.Add(entry); err != nil {
			return err
		}
		return t.pgr.StorePage(parentNo, parent)
	}

	// Parent overflow: split it the same way as a leaf, then recurse
	// one level up with the new sibling non-leaf page.
	merged, err := mergeInsert(parent.Objects(), entry)
	if err != nil {
		return err
	}
	leftObjs, rightObjs := splitHalf(merged, parent.Size())
	if len(leftObjs) == 0 || len(rightObjs) == 0 {
		return errors.New("btree: internal split produced an empty half")
	}
	leftPage := page.Rebuild(page.NonLeaf, parent.Size(), leftObjs)
	rightPage := page.Rebuild(page.NonLeaf, parent.Size(), rightObjs)

	oldParentHead, _ := parent.HeadKey()
	newParentHead := leftObjs[0].Key
	parentSep := rightObjs[0].Key

	if err := t.pgr.StorePage(parentNo, leftPage); err != nil {
		return err
	}
	rightParentNo, err := t.pgr.AppendPage(rightPage)
	if err != nil {
		return err
	}
	t.logger.Debug("non-leaf split", "old_page", parentNo, "new_page", rightParentNo, "left_count", len(leftObjs), "right_count", len(rightObjs))

	if err := t.insertPointer(ancestors[:len(ancestors)-1], parentNo, newParentHead, parentSep, rightParentNo); err != nil {
		return err
	}
	if !bytes.Equal(oldParentHead, newParentHead) {
		return t.propagateHeadKey(ancestors[:len(ancestors)-1], parentNo, oldParentHead, newParentHead)
	}
	return nil
}

// propagateHeadKey updates the ancestor non-leaf entries that reference
// childNo under oldHead, walking up ancestors until a level is reached
// where the child being updated is not that ancestor's own head entry
// (spec §4.3, Head-key propagation).
func (t *Btree) propagateHeadKey(ancestors path, childNo uint32, oldHead, newHead []byte) error {
	for i := len(ancestors) - 1; i >= 0; i-- {
		parentNo := ancestors[i]
		parent, err := t.pgr.FetchPage(parentNo)
		if err != nil {
			return errors.Wrapf(err, "btree: fetch ancestor %d", parentNo)
		}
		parentOldHead, _ := parent.HeadKey()
		wasHead := bytes.Equal(parentOldHead, oldHead)

		parent.Delete(oldHead, 0)
		if err := parent.Add(page.New(newHead, page.ChildValue(childNo), 0)); err != nil {
			return err
		}
		if err := t.pgr.StorePage(parentNo, parent); err != nil {
			return err
		}
		if !wasHead {
			return nil
		}
		childNo = parentNo
		oldHead = parentOldHead
	}
	return nil
}

// Expire marks the version of key created by creatorTid as deleted by
// deleterTid. No structural change results.
func (t *Btree) Expire(key []byte, creatorTid, deleterTid uint32) (bool, error) {
	pth, pages, err := t.descend(key)
	if err != nil {
		return false, err
	}
	leafNo := pth[len(pth)-1]
	leaf := pages[len(pages)-1]
	if !leaf.Expire(key, creatorTid, deleterTid) {
		return false, nil
	}
	if err := t.pgr.StorePage(leafNo, leaf); err != nil {
		return false, errors.Wrap(err, "btree: store leaf after expire")
	}
	return true, nil
}

// Update applies the two-version replace policy at key's leaf for a
// single key, atomically.
func (t *Btree) Update(obj page.Object, tid uint32) error {
	pth, pages, err := t.descend(obj.Key)
	if err != nil {
		return err
	}
	leafNo := pth[len(pth)-1]
	leaf := pages[len(pages)-1]
	oldHead, hadHead := leaf.HeadKey()

	if leaf.Fits(obj) {
		if err := leaf.Update(obj, tid); err != nil {
			t.warnIfConflict(err, obj.Key, leafNo)
			return err
		}
		if err := t.pgr.StorePage(leafNo, leaf); err != nil {
			return errors.Wrap(err, "btree: store leaf after update")
		}
		newHead, _ := leaf.HeadKey()
		if hadHead && !bytes.Equal(oldHead, newHead) {
			return t.propagateHeadKey(pth[:len(pth)-1], leafNo, oldHead, newHead)
		}
		return nil
	}
	return dberr.New(dberr.CodeSyntaxOrArgument, "btree: update does not fit after growth; value too large")
}

// warnIfConflict logs err at Warn if it is a serialization conflict, the
// case §7 expects a caller to retry the transaction for (SPEC_FULL
// §10.1).
func (t *Btree) warnIfConflict(err error, key []byte, pageNo uint32) {
	if dberr.CodeOf(err) == dberr.CodeSerializationFailure {
		t.logger.Warn("serialization conflict", "key", key, "page", pageNo)
	}
}

// Remove physically removes objects with matching key and tid, per spec
// §4.3. It collapses empty leaves and single-child non-leaf chains as
// described there.
func (t *Btree) Remove(key []byte, tid uint32) (bool, error) {
	pth, pages, err := t.descend(key)
	if err != nil {
		return false, err
	}
	leafNo := pth[len(pth)-1]
	leaf := pages[len(pages)-1]
	oldHead, _ := leaf.HeadKey()

	if !leaf.Delete(key, tid) {
		return false, nil
	}

	if leaf.Empty() && len(pth) > 1 {
		if err := t.unlinkEmptyPage(pth, leafNo, oldHead); err != nil {
			return true, err
		}
		return true, nil
	}

	if err := t.pgr.StorePage(leafNo, leaf); err != nil {
		return true, errors.Wrap(err, "btree: store leaf after delete")
	}
	newHead, _ := leaf.HeadKey()
	if !bytes.Equal(oldHead, newHead) {
		if err := t.propagateHeadKey(pth[:len(pth)-1], leafNo, oldHead, newHead); err != nil {
			return true, err
		}
	}
	return true, nil
}

// unlinkEmptyPage removes the now-empty page at pageNo (keyed oldHead in
// its parent) from the tree, collapsing ancestors that underflow to a
// single child, and reclaiming the freed page number.
func (t *Btree) unlinkEmptyPage(pth path, pageNo uint32, oldHead []byte) error {
	ancestors := pth[:len(pth)-1]
	if len(ancestors) == 0 {
		// The empty page is the root; leave a single empty leaf in
		// place rather than deleting page 0 (spec §3: no empty page
		// exists above page zero).
		return nil
	}

	cur := pageNo
	curOldHead := oldHead
	for i := len(ancestors) - 1; i >= 0; i-- {
		parentNo := ancestors[i]
		parent, err := t.pgr.FetchPage(parentNo)
		if err != nil {
			return errors.Wrapf(err, "btree: fetch parent %d", parentNo)
		}
		parentOldHead, _ := parent.HeadKey()
		parent.Delete(curOldHead, 0)
		if err := t.pgr.StorePage(parentNo, parent); err != nil {
			return err
		}
		lastNo := t.pgr.TotalPages() - 1
		if err := t.freePage(cur); err != nil {
			return err
		}
		// freePage moved the last page into cur's slot; follow it.
		for j := range ancestors {
			if ancestors[j] == lastNo {
				ancestors[j] = cur
			}
		}
		parentNo = ancestors[i]

		if parent.Empty() {
			// Parent itself collapsed to nothing; keep unwinding.
			t.logger.Debug("page collapsed", "page", parentNo)
			cur = parentNo
			curOldHead = parentOldHead
			continue
		}
		if newParentHead, _ := parent.HeadKey(); !bytes.Equal(parentOldHead, newParentHead) {
			if err := t.propagateHeadKey(ancestors[:i], parentNo, parentOldHead, newParentHead); err != nil {
				return err
			}
		}

		if i == 0 && t.pgr.RootPage() == parentNo {
			// Root demotion: a non-leaf root with a single remaining
			// child becomes that child.
			if len(parent.Objects()) == 1 {
				onlyChild, err := page.ChildPageNumber(parent.Objects()[0])
				if err != nil {
					return err
				}
				if err := t.pgr.SetRootPage(onlyChild); err != nil {
					return err
				}
				t.logger.Debug("root demoted", "old_root", parentNo, "new_root", onlyChild)
				return t.freePage(parentNo)
			}
			return nil
		}

		if len(parent.Objects()) == 1 {
			// Parent underflowed to a single entry: collapse it by
			// replacing the grandparent's pointer with the surviving
			// child, then free the parent page.
			surviving, err := page.ChildPageNumber(parent.Objects()[0])
			if err != nil {
				return err
			}
			parentHead, _ := parent.HeadKey()
			if i == 0 {
				return errors.New("btree: single-child non-root parent with no grandparent")
			}
			grandNo := ancestors[i-1]
			grand, err := t.pgr.FetchPage(grandNo)
			if err != nil {
				return err
			}
			if err := grand.Replace(parentHead, 0, page.ChildValue(surviving)); err != nil {
				return err
			}
			if err := t.pgr.StorePage(grandNo, grand); err != nil {
				return err
			}
			if err := t.freePage(parentNo); err != nil {
				return err
			}
			t.logger.Debug("parent collapsed into grandparent", "parent", parentNo, "grandparent", grandNo, "surviving_child", surviving)
		}
		return nil
	}
	return nil
}

// freePage reclaims pageNo by swapping it with the current last page and
// truncating, patching whichever pointer referenced the moved page (spec
// §4.3, Remove). With no persisted parent pointers, the patch is found by
// scanning the tree, acceptable at this engine's scale (spec §9).
func (t *Btree) freePage(pageNo uint32) error {
	lastNo := t.pgr.TotalPages() - 1
	if pageNo == lastNo {
		return t.pgr.TruncateLastPage()
	}
	moved, err := t.pgr.FetchPage(lastNo)
	if err != nil {
		return errors.Wrapf(err, "btree: fetch last page %d for reclaim", lastNo)
	}
	if err := t.pgr.StorePage(pageNo, moved); err != nil {
		return errors.Wrap(err, "btree: store moved page during reclaim")
	}
	if err := t.patchPointer(lastNo, pageNo); err != nil {
		return err
	}
	return t.pgr.TruncateLastPage()
}

// patchPointer rewrites any non-leaf entry pointing at oldNo to point at
// newNo instead, and updates the root pointer if it referenced oldNo.
func (t *Btree) patchPointer(oldNo, newNo uint32) error {
	if t.pgr.RootPage() == oldNo {
		return t.pgr.SetRootPage(newNo)
	}
	return t.walkNonLeaves(t.pgr.RootPage(), func(no uint32, p *page.Page) error {
		changed := false
		objs := p.Objects()
		for i, o := range objs {
			child, err := page.ChildPageNumber(o)
			if err != nil {
				return err
			}
			if child == oldNo {
				objs[i].Value = page.ChildValue(newNo)
				changed = true
			}
		}
		if changed {
			return t.pgr.StorePage(no, p)
		}
		return nil
	})
}

// walkNonLeaves visits every non-leaf page reachable from pageNo,
// invoking fn on each.
func (t *Btree) walkNonLeaves(pageNo uint32, fn func(uint32, *page.Page) error) error {
	p, err := t.pgr.FetchPage(pageNo)
	if err != nil {
		return errors.Wrapf(err, "btree: fetch page %d", pageNo)
	}
	if p.IsLeaf() {
		return nil
	}
	if err := fn(pageNo, p); err != nil {
		return err
	}
	for _, o := range p.Objects() {
		child, err := page.ChildPageNumber(o)
		if err != nil {
			return err
		}
		if err := t.walkNonLeaves(child, fn); err != nil {
			return err
		}
	}
	return nil
}
