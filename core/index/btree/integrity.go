package btree

import (
	"fmt"

	"github.com/sushant-115/kagedb/core/storage/page"
)

// TreeStats summarizes the tree's shape for tests and tooling.
type TreeStats struct {
	Height        int
	LeafSizes     []int
	InternalSizes []int
	KeyCount      int
}

// CheckIntegrity walks the whole tree and verifies its structural
// invariants: occupancy bounds, strictly ascending keys, separator
// intervals, parent pointers, and the leaf chain. It holds the root
// latch in read mode but takes no page latches, and is meant for
// quiescent trees in tests and tooling.
func (t *BPlusTree[K, V]) CheckIntegrity() error {
	_, err := t.inspect()
	return err
}

// Stats returns shape information, validating invariants on the way.
func (t *BPlusTree[K, V]) Stats() (TreeStats, error) {
	return t.inspect()
}

func (t *BPlusTree[K, V]) inspect() (TreeStats, error) {
	t.rootLatch.RLock()
	defer t.rootLatch.RUnlock()
	var stats TreeStats
	if t.isEmpty() {
		return stats, nil
	}
	var leaves []page.PageID
	if err := t.checkSubtree(t.rootPageID, page.InvalidPageID, nil, nil, 1, &stats, &leaves); err != nil {
		return stats, err
	}
	// The leaf chain must thread the leaves exactly in discovery order.
	for i, id := range leaves {
		leafPage, err := t.bpm.FetchPage(id)
		if err != nil {
			return stats, err
		}
		next := t.asLeaf(leafPage).nextPageID()
		t.bpm.UnpinPage(id, false)
		want := page.InvalidPageID
		if i+1 < len(leaves) {
			want = leaves[i+1]
		}
		if next != want {
			return stats, fmt.Errorf("%w: leaf %d links to %d, want %d", ErrTreeCorrupted, id, next, want)
		}
	}
	return stats, nil
}

// checkSubtree validates the node and recurses into children. lower and
// upper bound the keys permitted in this subtree: lower inclusive, upper
// exclusive, nil for unbounded.
func (t *BPlusTree[K, V]) checkSubtree(id, parent page.PageID, lower, upper *K, depth int, stats *TreeStats, leaves *[]page.PageID) error {
	p, err := t.bpm.FetchPage(id)
	if err != nil {
		return err
	}
	defer t.bpm.UnpinPage(id, false)
	n := asNode(p)

	if n.pageID() != id {
		return fmt.Errorf("%w: page %d header claims id %d", ErrTreeCorrupted, id, n.pageID())
	}
	if n.parent() != parent {
		return fmt.Errorf("%w: page %d parent is %d, want %d", ErrTreeCorrupted, id, n.parent(), parent)
	}
	isRoot := parent == page.InvalidPageID
	if !isRoot && (n.size() < n.minSize() || n.size() > n.maxSize()) {
		return fmt.Errorf("%w: page %d size %d outside [%d, %d]",
			ErrTreeCorrupted, id, n.size(), n.minSize(), n.maxSize())
	}

	inBounds := func(k K) bool {
		if lower != nil && t.cmp(k, *lower) < 0 {
			return false
		}
		if upper != nil && t.cmp(k, *upper) >= 0 {
			return false
		}
		return true
	}

	if n.isLeaf() {
		leaf := t.asLeaf(p)
		for i := 0; i < leaf.size(); i++ {
			k := leaf.keyAt(i)
			if i > 0 && t.cmp(leaf.keyAt(i-1), k) >= 0 {
				return fmt.Errorf("%w: leaf %d keys not strictly ascending at slot %d", ErrTreeCorrupted, id, i)
			}
			if !inBounds(k) {
				return fmt.Errorf("%w: leaf %d key at slot %d escapes separator interval", ErrTreeCorrupted, id, i)
			}
		}
		if depth > stats.Height {
			stats.Height = depth
		}
		stats.LeafSizes = append(stats.LeafSizes, leaf.size())
		stats.KeyCount += leaf.size()
		*leaves = append(*leaves, id)
		return nil
	}

	inner := t.asInternal(p)
	stats.InternalSizes = append(stats.InternalSizes, inner.size())
	for i := 1; i < inner.size(); i++ {
		k := inner.keyAt(i)
		if i > 1 && t.cmp(inner.keyAt(i-1), k) >= 0 {
			return fmt.Errorf("%w: internal %d separators not strictly ascending at slot %d", ErrTreeCorrupted, id, i)
		}
		if !inBounds(k) {
			return fmt.Errorf("%w: internal %d separator at slot %d escapes interval", ErrTreeCorrupted, id, i)
		}
	}
	for i := 0; i < inner.size(); i++ {
		childLower, childUpper := lower, upper
		if i > 0 {
			k := inner.keyAt(i)
			childLower = &k
		}
		if i < inner.size()-1 {
			k := inner.keyAt(i + 1)
			childUpper = &k
		}
		if err := t.checkSubtree(inner.valueAt(i), id, childLower, childUpper, depth+1, stats, leaves); err != nil {
			return err
		}
	}
	return nil
}
