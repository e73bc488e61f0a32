// Package btree implements a concurrent B+tree index on top of the
// buffer pool. Tree traversal uses latch crabbing: a child page is
// latched before its parent's latch is released, and structure-modifying
// operations escalate to a pessimistic descent that write-latches the
// chain of unsafe ancestors.
package btree

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sushant-115/kagedb/core/buffer"
	"github.com/sushant-115/kagedb/core/storage/page"
	"github.com/sushant-115/kagedb/core/transaction"
)

var (
	ErrKeyNotFound   = errors.New("btree: key not found")
	ErrInvalidSize   = errors.New("btree: leaf and internal max size must be at least 3")
	ErrEntryTooLarge = errors.New("btree: node capacity does not fit in a page")
	// ErrTreeCorrupted reports a broken structural invariant. Callers
	// should treat it as fatal.
	ErrTreeCorrupted = errors.New("btree: structural invariant violated")
)

// operation classifies a descent for the latching protocol.
type operation int

const (
	opSearch operation = iota
	opInsert
	opDelete
)

// BPlusTree is a unique-key index mapping fixed-width keys to
// fixed-width values. All page access goes through the buffer pool; the
// root page id is persisted in the header page under the index name.
type BPlusTree[K, V any] struct {
	name string
	bpm  *buffer.BufferPoolManager
	cmp  Comparator[K]
	keyc Codec[K]
	valc Codec[V]

	leafMaxSize     int
	internalMaxSize int

	// rootLatch gates reads and writes of rootPageID itself. It is held
	// in write mode, recorded as a nil sentinel in the transaction's
	// page-set, whenever a structure modification may move the root.
	rootLatch  sync.RWMutex
	rootPageID page.PageID

	// headerRecorded tracks whether the header page already holds a
	// record for this index name.
	headerRecorded bool

	log *zap.Logger
}

// New opens the index called name over the buffer pool. If the header
// page already records a root for this name the tree resumes there;
// otherwise the tree starts empty and writes its record on first insert.
func New[K, V any](
	name string,
	bpm *buffer.BufferPoolManager,
	cmp Comparator[K],
	keyc Codec[K],
	valc Codec[V],
	leafMaxSize, internalMaxSize int,
	log *zap.Logger,
) (*BPlusTree[K, V], error) {
	if leafMaxSize < 3 || internalMaxSize < 3 {
		return nil, fmt.Errorf("%w: leaf=%d internal=%d", ErrInvalidSize, leafMaxSize, internalMaxSize)
	}
	// A leaf holds at most leafMaxSize entries; an internal node briefly
	// holds internalMaxSize+1 slots between insert and split.
	if leafHeaderSize+leafMaxSize*(keyc.Size()+valc.Size()) > page.Size {
		return nil, fmt.Errorf("%w: leaf capacity %d", ErrEntryTooLarge, leafMaxSize)
	}
	if nodeHeaderSize+(internalMaxSize+1)*(keyc.Size()+childCodec.Size()) > page.Size {
		return nil, fmt.Errorf("%w: internal capacity %d", ErrEntryTooLarge, internalMaxSize)
	}
	if log == nil {
		log = zap.NewNop()
	}
	t := &BPlusTree[K, V]{
		name:            name,
		bpm:             bpm,
		cmp:             cmp,
		keyc:            keyc,
		valc:            valc,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		rootPageID:      page.InvalidPageID,
		log:             log,
	}
	hp, err := bpm.FetchPage(page.HeaderPageID)
	if err != nil {
		return nil, fmt.Errorf("fetching header page: %w", err)
	}
	hp.RLock()
	if root, ok := page.AsHeaderPage(hp).GetRecord(name); ok {
		t.rootPageID = root
		t.headerRecorded = true
	}
	hp.RUnlock()
	bpm.UnpinPage(page.HeaderPageID, false)
	return t, nil
}

func (t *BPlusTree[K, V]) asLeaf(p *page.Page) leafNode[K, V] {
	return leafNode[K, V]{nodePage: asNode(p), keyc: t.keyc, valc: t.valc}
}

func (t *BPlusTree[K, V]) asInternal(p *page.Page) internalNode[K] {
	return internalNode[K]{nodePage: asNode(p), keyc: t.keyc}
}

// GetRootPageID returns the current root page id.
func (t *BPlusTree[K, V]) GetRootPageID() page.PageID {
	t.rootLatch.RLock()
	defer t.rootLatch.RUnlock()
	return t.rootPageID
}

// isEmpty must be called with rootLatch held in either mode.
func (t *BPlusTree[K, V]) isEmpty() bool { return t.rootPageID == page.InvalidPageID }

// updateRootPageID persists the root pointer into the header page.
// Callers hold rootLatch in write mode.
func (t *BPlusTree[K, V]) updateRootPageID() error {
	hp, err := t.bpm.FetchPage(page.HeaderPageID)
	if err != nil {
		return fmt.Errorf("fetching header page: %w", err)
	}
	hp.Lock()
	header := page.AsHeaderPage(hp)
	if t.headerRecorded {
		header.UpdateRecord(t.name, t.rootPageID)
	} else {
		err = header.InsertRecord(t.name, t.rootPageID)
		if err == nil {
			t.headerRecorded = true
		}
	}
	hp.Unlock()
	t.bpm.UnpinPage(page.HeaderPageID, true)
	return err
}

// isSafe reports whether op applied at this node cannot propagate to its
// parent.
func (t *BPlusTree[K, V]) isSafe(n nodePage, op operation) bool {
	switch op {
	case opSearch:
		return true
	case opInsert:
		if n.isLeaf() {
			return n.size() < n.maxSize()-1
		}
		return n.size() < n.maxSize()
	case opDelete:
		if n.isRoot() {
			if n.isLeaf() {
				return n.size() > 1
			}
			return n.size() > 2
		}
		return n.size() > n.minSize()
	}
	return false
}

// releaseWLatches drains the transaction's page-set front to back,
// releasing the root latch for the nil sentinel and write-unlatching and
// unpinning (dirty) every page.
func (t *BPlusTree[K, V]) releaseWLatches(txn *transaction.Transaction) {
	if txn == nil {
		return
	}
	for _, p := range txn.DrainPageSet() {
		if p == nil {
			t.rootLatch.Unlock()
		} else {
			p.Unlock()
			t.bpm.UnpinPage(p.GetPageID(), true)
		}
	}
}

// getLeafPage descends to the leaf that owns key, latched for op.
//
// The caller holds rootLatch in read mode; the descent releases it once
// the first page is latched. On the optimistic pass (first == true)
// internal nodes are read-latched with crabbing and the leaf takes a
// write latch for INSERT/DELETE; if the leaf turns out unsafe the pass
// is abandoned and redone pessimistically under a write-locked root
// latch, write-latching each node and retaining the chain of unsafe
// ancestors in the transaction's page-set.
func (t *BPlusTree[K, V]) getLeafPage(key K, op operation, first bool, txn *transaction.Transaction) (*page.Page, error) {
	if txn == nil && op != opSearch {
		panic("btree: nil transaction for a mutating descent")
	}
	nextPageID := t.rootPageID
	var prePage *page.Page
	for {
		p, err := t.bpm.FetchPage(nextPageID)
		if err != nil {
			t.abandonDescent(first, prePage, txn)
			return nil, err
		}
		node := asNode(p)
		if first {
			if node.isLeaf() && op != opSearch {
				p.Lock()
				txn.AddIntoPageSet(p)
			} else {
				p.RLock()
			}
			if prePage == nil {
				t.rootLatch.RUnlock()
			} else {
				prePage.RUnlock()
				t.bpm.UnpinPage(prePage.GetPageID(), false)
			}
		} else {
			p.Lock()
			if t.isSafe(node, op) {
				t.releaseWLatches(txn)
			}
			txn.AddIntoPageSet(p)
		}
		if node.isLeaf() {
			if first && !t.isSafe(node, op) {
				// Optimistic pass lost the bet: restart pessimistically
				// with the root latch held in write mode, recorded as the
				// sentinel.
				t.releaseWLatches(txn)
				t.rootLatch.Lock()
				txn.AddIntoPageSet(nil)
				return t.getLeafPage(key, op, false, txn)
			}
			return p, nil
		}
		nextPageID = t.asInternal(p).lookup(key, t.cmp)
		prePage = p
	}
}

// abandonDescent unwinds latches after a failed fetch mid-descent.
func (t *BPlusTree[K, V]) abandonDescent(first bool, prePage *page.Page, txn *transaction.Transaction) {
	if first {
		if prePage == nil {
			t.rootLatch.RUnlock()
		} else {
			prePage.RUnlock()
			t.bpm.UnpinPage(prePage.GetPageID(), false)
		}
		// A mutating optimistic descent may already have the leaf in the
		// page-set; drain whatever accumulated.
		if txn != nil && len(txn.PageSet()) > 0 {
			t.releaseWLatches(txn)
		}
	} else {
		t.releaseWLatches(txn)
	}
}

// GetValue looks key up and returns every matching value (at most one,
// keys being unique).
func (t *BPlusTree[K, V]) GetValue(key K) ([]V, bool, error) {
	t.rootLatch.RLock()
	if t.isEmpty() {
		t.rootLatch.RUnlock()
		return nil, false, nil
	}
	p, err := t.getLeafPage(key, opSearch, true, nil)
	if err != nil {
		return nil, false, err
	}
	leaf := t.asLeaf(p)
	var result []V
	found := false
	for i := 0; i < leaf.size(); i++ {
		if t.cmp(leaf.keyAt(i), key) == 0 {
			result = append(result, leaf.valueAt(i))
			found = true
			break
		}
	}
	p.RUnlock()
	t.bpm.UnpinPage(p.GetPageID(), false)
	return result, found, nil
}

// Insert adds (key, value). It returns false without modifying the tree
// when the key already exists.
func (t *BPlusTree[K, V]) Insert(key K, value V, txn *transaction.Transaction) (bool, error) {
	t.rootLatch.RLock()
	if t.isEmpty() {
		t.rootLatch.RUnlock()
		t.rootLatch.Lock()
		if t.isEmpty() {
			ok, err := t.startNewTree(key, value)
			t.rootLatch.Unlock()
			return ok, err
		}
		t.rootLatch.Unlock()
		t.rootLatch.RLock()
	}
	p, err := t.getLeafPage(key, opInsert, true, txn)
	if err != nil {
		return false, err
	}
	leaf := t.asLeaf(p)
	for i := 0; i < leaf.size(); i++ {
		if t.cmp(leaf.keyAt(i), key) == 0 {
			t.releaseWLatches(txn)
			return false, nil
		}
	}
	leaf.insert(key, value, t.cmp)
	if leaf.size() < leaf.maxSize() {
		t.releaseWLatches(txn)
		return true, nil
	}

	// The leaf is full: split it and lift the new right sibling's first
	// key into the parent.
	newPage, err := t.bpm.NewPage()
	if err != nil {
		t.releaseWLatches(txn)
		return false, err
	}
	newLeaf := t.asLeaf(newPage)
	newLeaf.init(newPage.GetPageID(), leaf.parent(), t.leafMaxSize)
	newLeaf.setNextPageID(leaf.nextPageID())
	leaf.setNextPageID(newLeaf.pageID())
	leaf.moveHalf(newLeaf, leaf.maxSize()/2)
	t.log.Debug("leaf split",
		zap.Int32("left", int32(leaf.pageID())), zap.Int32("right", int32(newLeaf.pageID())))
	if err := t.insertInParent(p, newLeaf.keyAt(0), newPage, txn); err != nil {
		return false, err
	}
	return true, nil
}

// startNewTree creates the first leaf as root. rootLatch is held in
// write mode.
func (t *BPlusTree[K, V]) startNewTree(key K, value V) (bool, error) {
	p, err := t.bpm.NewPage()
	if err != nil {
		return false, err
	}
	t.rootPageID = p.GetPageID()
	leaf := t.asLeaf(p)
	leaf.init(t.rootPageID, page.InvalidPageID, t.leafMaxSize)
	leaf.setKeyValue(0, key, value)
	leaf.setSize(1)
	if err := t.updateRootPageID(); err != nil {
		t.bpm.UnpinPage(t.rootPageID, true)
		return false, err
	}
	t.bpm.UnpinPage(t.rootPageID, true)
	t.log.Debug("started new tree", zap.Int32("root", int32(t.rootPageID)))
	return true, nil
}

// insertInParent lifts sepKey between oldPage and newPage one level up,
// splitting the parent as needed. oldPage is write-latched via the
// transaction's page-set; newPage is pinned but unlatched (not yet
// reachable by other operations).
func (t *BPlusTree[K, V]) insertInParent(oldPage *page.Page, sepKey K, newPage *page.Page, txn *transaction.Transaction) error {
	old := asNode(oldPage)
	newNode := asNode(newPage)

	if old.isRoot() {
		rootPage, err := t.bpm.NewPage()
		if err != nil {
			t.bpm.UnpinPage(newPage.GetPageID(), true)
			t.releaseWLatches(txn)
			return err
		}
		newRoot := t.asInternal(rootPage)
		newRoot.init(rootPage.GetPageID(), page.InvalidPageID, t.internalMaxSize)
		newRoot.setValueAt(0, old.pageID())
		newRoot.setKeyAt(1, sepKey)
		newRoot.setValueAt(1, newNode.pageID())
		newRoot.setSize(2)
		t.rootPageID = rootPage.GetPageID()
		if err := t.updateRootPageID(); err != nil {
			t.log.Error("persisting root page id failed", zap.Error(err))
		}
		old.setParent(newRoot.pageID())
		newNode.setParent(newRoot.pageID())
		t.bpm.UnpinPage(newRoot.pageID(), true)
		t.bpm.UnpinPage(newNode.pageID(), true)
		t.releaseWLatches(txn)
		return nil
	}

	parentPage, err := t.bpm.FetchPage(old.parent())
	if err != nil {
		t.bpm.UnpinPage(newPage.GetPageID(), true)
		t.releaseWLatches(txn)
		return err
	}
	parent := t.asInternal(parentPage)
	parent.insert(sepKey, newNode.pageID(), t.cmp)
	newNode.setParent(parent.pageID())
	if parent.size() <= parent.maxSize() {
		t.bpm.UnpinPage(parent.pageID(), true)
		t.bpm.UnpinPage(newNode.pageID(), true)
		t.releaseWLatches(txn)
		return nil
	}

	// Parent overflowed: split it, handing the upper slots to a new
	// sibling and re-pointing the moved children at it.
	splitPage, err := t.bpm.NewPage()
	if err != nil {
		t.bpm.UnpinPage(parent.pageID(), true)
		t.bpm.UnpinPage(newNode.pageID(), true)
		t.releaseWLatches(txn)
		return err
	}
	split := t.asInternal(splitPage)
	split.init(splitPage.GetPageID(), parent.parent(), t.internalMaxSize)
	splitSize := t.internalMaxSize/2 + 1
	start := parent.size() - splitSize
	j := 0
	for i := start; i < parent.size(); i++ {
		split.setKeyAt(j, parent.keyAt(i))
		split.setValueAt(j, parent.valueAt(i))
		split.incSize(1)
		childPage, err := t.bpm.FetchPage(parent.valueAt(i))
		if err != nil {
			t.bpm.UnpinPage(split.pageID(), true)
			t.bpm.UnpinPage(parent.pageID(), true)
			t.bpm.UnpinPage(newNode.pageID(), true)
			t.releaseWLatches(txn)
			return err
		}
		asNode(childPage).setParent(split.pageID())
		t.bpm.UnpinPage(childPage.GetPageID(), true)
		j++
	}
	parent.setSize(t.internalMaxSize - splitSize + 1)
	t.log.Debug("internal split",
		zap.Int32("left", int32(parent.pageID())), zap.Int32("right", int32(split.pageID())))
	t.bpm.UnpinPage(parent.pageID(), true)
	t.bpm.UnpinPage(newNode.pageID(), true)
	return t.insertInParent(parentPage, split.keyAt(0), splitPage, txn)
}
