// Package transaction provides the handle the storage core threads
// through index operations. The core consumes only the page-set and
// deleted-page-set; lifecycle state is kept for the upper layers.
package transaction

import (
	"github.com/google/uuid"

	"github.com/sushant-115/kagedb/core/storage/page"
)

// State represents the in-memory state of a transaction.
type State int

const (
	StateRunning   State = iota // operations are being applied
	StateCommitted              // transaction has committed
	StateAborted                // transaction has been rolled back
)

// Transaction carries the two-phase latching bookkeeping for one index
// operation: a FIFO of write-latched pages and the set of pages queued
// for deallocation at operation end.
//
// A nil entry in the page-set is the sentinel recording that the tree's
// root latch is held in write mode; it is released in FIFO position like
// any page.
type Transaction struct {
	id    uuid.UUID
	state State

	pageSet        []*page.Page
	deletedPageSet map[page.PageID]struct{}
}

// New creates a running transaction with a fresh id.
func New() *Transaction {
	return &Transaction{
		id:             uuid.New(),
		state:          StateRunning,
		deletedPageSet: make(map[page.PageID]struct{}),
	}
}

func (t *Transaction) ID() uuid.UUID { return t.id }

func (t *Transaction) State() State     { return t.state }
func (t *Transaction) SetState(s State) { t.state = s }

// AddIntoPageSet appends a write-latched page (or the nil root-latch
// sentinel) to the FIFO.
func (t *Transaction) AddIntoPageSet(p *page.Page) {
	t.pageSet = append(t.pageSet, p)
}

// PageSet exposes the FIFO in acquisition order.
func (t *Transaction) PageSet() []*page.Page { return t.pageSet }

// DrainPageSet returns the FIFO in acquisition order and empties it.
func (t *Transaction) DrainPageSet() []*page.Page {
	ps := t.pageSet
	t.pageSet = nil
	return ps
}

// AddIntoDeletedPageSet queues a page id for deallocation once the
// operation's latches are gone.
func (t *Transaction) AddIntoDeletedPageSet(id page.PageID) {
	t.deletedPageSet[id] = struct{}{}
}

// DrainDeletedPageSet returns the queued ids and clears the set.
func (t *Transaction) DrainDeletedPageSet() []page.PageID {
	ids := make([]page.PageID, 0, len(t.deletedPageSet))
	for id := range t.deletedPageSet {
		ids = append(ids, id)
	}
	t.deletedPageSet = make(map[page.PageID]struct{})
	return ids
}
