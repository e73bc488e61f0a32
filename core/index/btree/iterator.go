package btree

import (
	"fmt"

	"github.com/sushant-115/kagedb/core/storage/page"
)

// Iterator walks leaf entries in key order. It holds at most one
// read-latched, pinned leaf at a time; Close releases it. The iterator
// is positioned on a slot; IsEnd reports when it has run off the last
// leaf.
type Iterator[K, V any] struct {
	tree *BPlusTree[K, V]
	page *page.Page
	idx  int
}

// Begin positions an iterator on the first entry of the leftmost leaf.
// On an empty tree the iterator starts at the end.
func (t *BPlusTree[K, V]) Begin() (*Iterator[K, V], error) {
	t.rootLatch.RLock()
	if t.isEmpty() {
		t.rootLatch.RUnlock()
		return &Iterator[K, V]{tree: t}, nil
	}
	nextPageID := t.rootPageID
	var prePage *page.Page
	for {
		p, err := t.bpm.FetchPage(nextPageID)
		if err != nil {
			if prePage == nil {
				t.rootLatch.RUnlock()
			} else {
				prePage.RUnlock()
				t.bpm.UnpinPage(prePage.GetPageID(), false)
			}
			return nil, err
		}
		p.RLock()
		if prePage == nil {
			t.rootLatch.RUnlock()
		} else {
			prePage.RUnlock()
			t.bpm.UnpinPage(prePage.GetPageID(), false)
		}
		if asNode(p).isLeaf() {
			return &Iterator[K, V]{tree: t, page: p}, nil
		}
		nextPageID = t.asInternal(p).valueAt(0)
		prePage = p
	}
}

// BeginAt positions an iterator on the entry for key. It fails with
// ErrKeyNotFound if the key is absent.
func (t *BPlusTree[K, V]) BeginAt(key K) (*Iterator[K, V], error) {
	t.rootLatch.RLock()
	if t.isEmpty() {
		t.rootLatch.RUnlock()
		return nil, ErrKeyNotFound
	}
	p, err := t.getLeafPage(key, opSearch, true, nil)
	if err != nil {
		return nil, err
	}
	leaf := t.asLeaf(p)
	for i := 0; i < leaf.size(); i++ {
		if t.cmp(leaf.keyAt(i), key) == 0 {
			return &Iterator[K, V]{tree: t, page: p, idx: i}, nil
		}
	}
	p.RUnlock()
	t.bpm.UnpinPage(p.GetPageID(), false)
	return nil, fmt.Errorf("%w: no slot for iterator start", ErrKeyNotFound)
}

// IsEnd reports whether the iterator has passed the last entry.
func (it *Iterator[K, V]) IsEnd() bool {
	if it.page == nil {
		return true
	}
	leaf := it.tree.asLeaf(it.page)
	return leaf.nextPageID() == page.InvalidPageID && it.idx == leaf.size()
}

// Key returns the key at the current slot. Calling it at the end is a
// programmer error.
func (it *Iterator[K, V]) Key() K {
	return it.tree.asLeaf(it.page).keyAt(it.idx)
}

// Value returns the value at the current slot.
func (it *Iterator[K, V]) Value() V {
	return it.tree.asLeaf(it.page).valueAt(it.idx)
}

// Next advances one slot, hopping to the next leaf through the chain
// when the current one is exhausted. The next leaf is latched before the
// current one is released.
func (it *Iterator[K, V]) Next() error {
	if it.IsEnd() {
		return nil
	}
	leaf := it.tree.asLeaf(it.page)
	switch {
	case it.idx < leaf.size()-1:
		it.idx++
	case leaf.nextPageID() != page.InvalidPageID:
		nextPage, err := it.tree.bpm.FetchPage(leaf.nextPageID())
		if err != nil {
			return err
		}
		nextPage.RLock()
		it.page.RUnlock()
		it.tree.bpm.UnpinPage(it.page.GetPageID(), false)
		it.page = nextPage
		it.idx = 0
	default:
		it.idx++
	}
	return nil
}

// Close releases the iterator's leaf latch and pin. It is safe to call
// more than once.
func (it *Iterator[K, V]) Close() {
	if it.page == nil {
		return
	}
	it.page.RUnlock()
	it.tree.bpm.UnpinPage(it.page.GetPageID(), false)
	it.page = nil
}
