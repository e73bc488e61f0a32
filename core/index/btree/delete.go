package btree

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sushant-115/kagedb/core/storage/page"
	"github.com/sushant-115/kagedb/core/transaction"
)

// Remove deletes key from the tree. Removing an absent key is a no-op.
// Pages emptied by merges are deallocated once all latches are released.
func (t *BPlusTree[K, V]) Remove(key K, txn *transaction.Transaction) error {
	t.rootLatch.RLock()
	if t.isEmpty() {
		t.rootLatch.RUnlock()
		return nil
	}
	p, err := t.getLeafPage(key, opDelete, true, txn)
	if err != nil {
		return err
	}
	if err := t.deleteEntry(p, key, txn); err != nil {
		return err
	}
	for _, id := range txn.DrainDeletedPageSet() {
		t.bpm.DeletePage(id)
	}
	return nil
}

// deleteEntry removes key from the node and restores occupancy
// invariants, merging with or borrowing from a sibling when the node
// underflows and recursing into the parent when a merge removes a
// separator. The node is write-latched via the transaction's page-set.
func (t *BPlusTree[K, V]) deleteEntry(nPage *page.Page, key K, txn *transaction.Transaction) error {
	n := asNode(nPage)
	var removed bool
	if n.isLeaf() {
		removed = t.asLeaf(nPage).remove(key, t.cmp)
	} else {
		removed = t.asInternal(nPage).remove(key, t.cmp)
	}
	if !removed {
		t.releaseWLatches(txn)
		return nil
	}

	if n.isRoot() && n.isLeaf() && n.size() == 0 {
		// Last entry gone: the tree is empty again.
		txn.AddIntoDeletedPageSet(n.pageID())
		t.rootPageID = page.InvalidPageID
		if err := t.updateRootPageID(); err != nil {
			t.log.Error("persisting root page id failed", zap.Error(err))
		}
		t.releaseWLatches(txn)
		return nil
	}
	if n.isRoot() && (n.size() > 1 || n.isLeaf()) {
		t.releaseWLatches(txn)
		return nil
	}
	if n.isRoot() && n.size() == 1 {
		// An internal root with a single child collapses: the child
		// becomes the new root.
		oldRoot := t.asInternal(nPage)
		t.rootPageID = oldRoot.valueAt(0)
		newRootPage, err := t.bpm.FetchPage(t.rootPageID)
		if err != nil {
			t.releaseWLatches(txn)
			return err
		}
		asNode(newRootPage).setParent(page.InvalidPageID)
		t.bpm.UnpinPage(t.rootPageID, true)
		txn.AddIntoDeletedPageSet(oldRoot.pageID())
		if err := t.updateRootPageID(); err != nil {
			t.log.Error("persisting root page id failed", zap.Error(err))
		}
		t.log.Debug("root collapsed", zap.Int32("new_root", int32(t.rootPageID)))
		t.releaseWLatches(txn)
		return nil
	}
	if n.size() >= n.minSize() {
		t.releaseWLatches(txn)
		return nil
	}

	return t.fixUnderflow(nPage, txn)
}

// fixUnderflow merges the node with a sibling or borrows an entry from
// one. The pessimistic descent guarantees the parent is write-latched in
// the transaction's page-set.
func (t *BPlusTree[K, V]) fixUnderflow(nPage *page.Page, txn *transaction.Transaction) error {
	n := asNode(nPage)
	leftID, rightID, err := t.peerIDs(n)
	if err != nil {
		t.releaseWLatches(txn)
		return err
	}

	var leftPage, rightPage *page.Page
	if leftID != page.InvalidPageID {
		if leftPage, err = t.bpm.FetchPage(leftID); err != nil {
			t.releaseWLatches(txn)
			return err
		}
		leftPage.Lock()
	}
	if rightID != page.InvalidPageID {
		if rightPage, err = t.bpm.FetchPage(rightID); err != nil {
			if leftPage != nil {
				leftPage.Unlock()
				t.bpm.UnpinPage(leftID, false)
			}
			t.releaseWLatches(txn)
			return err
		}
		rightPage.Lock()
	}
	parentPage, err := t.bpm.FetchPage(n.parent())
	if err != nil {
		if leftPage != nil {
			leftPage.Unlock()
			t.bpm.UnpinPage(leftID, false)
		}
		if rightPage != nil {
			rightPage.Unlock()
			t.bpm.UnpinPage(rightID, false)
		}
		t.releaseWLatches(txn)
		return err
	}

	// Decide merge vs redistribute, preferring the left sibling. The
	// sibling that loses the toss is unlatched immediately.
	release := func(p *page.Page, id page.PageID) {
		if p != nil {
			p.Unlock()
			t.bpm.UnpinPage(id, false)
		}
	}
	canMergeWith := func(sib nodePage) bool {
		if n.isLeaf() {
			return sib.size()+n.size() < n.maxSize()
		}
		return sib.size()+n.size() <= n.maxSize()
	}
	canBorrowFrom := func(sib nodePage) bool {
		return sib.size() > n.minSize()
	}

	var sibPage *page.Page
	var isLeft, merge bool
	switch {
	case leftPage != nil && canMergeWith(asNode(leftPage)):
		sibPage, isLeft, merge = leftPage, true, true
		release(rightPage, rightID)
	case rightPage != nil && canMergeWith(asNode(rightPage)):
		sibPage, isLeft, merge = rightPage, false, true
		release(leftPage, leftID)
	case leftPage != nil && canBorrowFrom(asNode(leftPage)):
		sibPage, isLeft, merge = leftPage, true, false
		release(rightPage, rightID)
	case rightPage != nil && canBorrowFrom(asNode(rightPage)):
		sibPage, isLeft, merge = rightPage, false, false
		release(leftPage, leftID)
	default:
		release(leftPage, leftID)
		release(rightPage, rightID)
		t.bpm.UnpinPage(parentPage.GetPageID(), false)
		t.releaseWLatches(txn)
		return fmt.Errorf("%w: page %d has no usable sibling", ErrTreeCorrupted, n.pageID())
	}

	left, right := nPage, sibPage
	if isLeft {
		left, right = sibPage, nPage
	}
	if merge {
		err = t.mergeNodes(left, right, parentPage, txn)
	} else {
		err = t.redistribute(left, right, parentPage, isLeft, txn)
		t.releaseWLatches(txn)
	}
	sibPage.Unlock()
	t.bpm.UnpinPage(sibPage.GetPageID(), true)
	t.bpm.UnpinPage(parentPage.GetPageID(), true)
	return err
}

// peerIDs returns the page ids of the node's immediate siblings under
// its parent.
func (t *BPlusTree[K, V]) peerIDs(n nodePage) (left, right page.PageID, err error) {
	parentPage, err := t.bpm.FetchPage(n.parent())
	if err != nil {
		return page.InvalidPageID, page.InvalidPageID, err
	}
	parent := t.asInternal(parentPage)
	idx := parent.findValueIndex(n.pageID())
	if idx == -1 {
		t.bpm.UnpinPage(parent.pageID(), false)
		return page.InvalidPageID, page.InvalidPageID,
			fmt.Errorf("%w: page %d missing from parent %d", ErrTreeCorrupted, n.pageID(), parent.pageID())
	}
	left, right = page.InvalidPageID, page.InvalidPageID
	if idx > 0 {
		left = parent.valueAt(idx - 1)
	}
	if idx < parent.size()-1 {
		right = parent.valueAt(idx + 1)
	}
	t.bpm.UnpinPage(parent.pageID(), false)
	return left, right, nil
}

// mergeNodes folds right into left and removes their separator from the
// parent, recursing to fix any cascading underflow. The right page is
// queued for deallocation.
func (t *BPlusTree[K, V]) mergeNodes(leftPage, rightPage, parentPage *page.Page, txn *transaction.Transaction) error {
	parent := t.asInternal(parentPage)
	idx := parent.findValueIndex(asNode(rightPage).pageID())
	if idx == -1 {
		t.releaseWLatches(txn)
		return fmt.Errorf("%w: merge target %d missing from parent %d",
			ErrTreeCorrupted, asNode(rightPage).pageID(), parent.pageID())
	}
	sepKey := parent.keyAt(idx)

	if asNode(leftPage).isLeaf() {
		left, right := t.asLeaf(leftPage), t.asLeaf(rightPage)
		right.moveAll(left)
		left.setNextPageID(right.nextPageID())
	} else {
		left, right := t.asInternal(leftPage), t.asInternal(rightPage)
		// The separator comes down to caption right's first child; then
		// right's remaining slots follow.
		firstMoved := left.size()
		left.setKeyAt(left.size(), sepKey)
		left.setValueAt(left.size(), right.valueAt(0))
		left.incSize(1)
		right.moveAll(left)
		if err := t.reparentChildren(left, firstMoved, left.size()); err != nil {
			t.releaseWLatches(txn)
			return err
		}
	}
	t.log.Debug("merged nodes",
		zap.Int32("left", int32(asNode(leftPage).pageID())),
		zap.Int32("right", int32(asNode(rightPage).pageID())))
	txn.AddIntoDeletedPageSet(asNode(rightPage).pageID())
	return t.deleteEntry(parentPage, sepKey, txn)
}

// reparentChildren points the children in slots [from, to) of node at
// node itself. Used after slots migrate between internal nodes.
func (t *BPlusTree[K, V]) reparentChildren(n internalNode[K], from, to int) error {
	for i := from; i < to; i++ {
		childPage, err := t.bpm.FetchPage(n.valueAt(i))
		if err != nil {
			return err
		}
		asNode(childPage).setParent(n.pageID())
		t.bpm.UnpinPage(childPage.GetPageID(), true)
	}
	return nil
}

// redistribute borrows one entry across the (left, right) pair and
// refreshes the separator in the parent. isLeft means the underflowing
// node is right and borrows from left; otherwise it is left and borrows
// from right.
func (t *BPlusTree[K, V]) redistribute(leftPage, rightPage, parentPage *page.Page, isLeft bool, _ *transaction.Transaction) error {
	parent := t.asInternal(parentPage)
	idx := parent.findValueIndex(asNode(rightPage).pageID())
	if idx == -1 {
		return fmt.Errorf("%w: redistribute target %d missing from parent %d",
			ErrTreeCorrupted, asNode(rightPage).pageID(), parent.pageID())
	}
	sepKey := parent.keyAt(idx)

	if isLeft {
		if asNode(leftPage).isLeaf() {
			left, right := t.asLeaf(leftPage), t.asLeaf(rightPage)
			k, v := left.keyAt(left.size()-1), left.valueAt(left.size()-1)
			left.decSize(1)
			right.insert(k, v, t.cmp)
			parent.setKeyAt(idx, k)
		} else {
			left, right := t.asInternal(leftPage), t.asInternal(rightPage)
			k, child := left.keyAt(left.size()-1), left.valueAt(left.size()-1)
			left.decSize(1)
			right.shiftRight()
			right.setKeyAt(1, sepKey)
			right.setValueAt(0, child)
			parent.setKeyAt(idx, k)
			if err := t.reparentChildren(right, 0, 1); err != nil {
				return err
			}
		}
	} else {
		if asNode(leftPage).isLeaf() {
			left, right := t.asLeaf(leftPage), t.asLeaf(rightPage)
			k, v := right.keyAt(0), right.valueAt(0)
			right.shiftLeft()
			left.setKeyValue(left.size(), k, v)
			left.incSize(1)
			parent.setKeyAt(idx, right.keyAt(0))
		} else {
			left, right := t.asInternal(leftPage), t.asInternal(rightPage)
			k, child := right.keyAt(1), right.valueAt(0)
			right.shiftLeft()
			left.setKeyAt(left.size(), sepKey)
			left.setValueAt(left.size(), child)
			left.incSize(1)
			parent.setKeyAt(idx, k)
			if err := t.reparentChildren(left, left.size()-1, left.size()); err != nil {
				return err
			}
		}
	}
	return nil
}
