package btree

import (
	"bytes"
	"sort"

	"github.com/embedb/embedb/internal/dberr"
	"github.com/embedb/embedb/internal/page"
)

// mergeInsert returns a new slice holding existing's objects plus obj,
// in sorted key order, failing if obj's key already has two versions.
func mergeInsert(existing []page.Object, obj page.Object) ([]page.Object, error) {
	lo := sort.Search(len(existing), func(i int) bool {
		return bytes.Compare(existing[i].Key, obj.Key) >= 0
	})
	hi := lo
	for hi < len(existing) && bytes.Equal(existing[hi].Key, obj.Key) {
		hi++
	}
	if hi-lo >= 2 {
		return nil, dberr.New(dberr.CodeSerializationFailure,
			"key already has two versions in this page")
	}
	merged := make([]page.Object, 0, len(existing)+1)
	merged = append(merged, existing[:lo]...)
	merged = append(merged, obj)
	merged = append(merged, existing[lo:]...)
	return merged, nil
}

// splitHalf divides objs, assumed sorted by key, into a left and right
// run by running byte count (header size plus each object's serialized
// length) against half of pageSize, so that each half is roughly
// half-full. Ties — an object landing exactly on the midpoint — favor
// keeping the lower key on the left, per spec §4.3.
//
// Because the two-version rule never splits a key's versions across
// pages, the boundary is adjusted to the next key change if it would
// otherwise fall inside a repeated key run.
func splitHalf(objs []page.Object, pageSize int) (left, right []page.Object) {
	half := pageSize / 2
	running := headerBytesApprox
	boundary := len(objs)
	for i, o := range objs {
		running += o.Len()
		if running > half {
			boundary = i + 1
			break
		}
	}
	if boundary == 0 {
		boundary = 1
	}
	if boundary >= len(objs) {
		boundary = len(objs) - 1
	}
	boundary = avoidKeySplit(objs, boundary)
	return objs[:boundary], objs[boundary:]
}

// avoidKeySplit nudges boundary so the split never falls between two
// objects sharing a key, preserving the two-version rule that a key's
// versions are always co-located in one leaf. It first tries extending
// the run forward past the duplicate; if that run reaches the end of
// objs (the duplicate pair is the last two objects), it shrinks the
// left side instead rather than splitting the pair.
func avoidKeySplit(objs []page.Object, boundary int) int {
	for b := boundary; b < len(objs); b++ {
		if b == 0 || !bytes.Equal(objs[b-1].Key, objs[b].Key) {
			return b
		}
	}
	for b := boundary; b > 0; b-- {
		if !bytes.Equal(objs[b-1].Key, objs[b].Key) {
			return b
		}
	}
	return boundary
}

// headerBytesApprox mirrors page's 3-byte header; kept local to avoid
// exporting page's unexported constant.
const headerBytesApprox = 3
