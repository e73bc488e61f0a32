package transaction

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sushant-115/kagedb/core/storage/page"
)

func TestPageSetIsFIFO(t *testing.T) {
	txn := New()
	a, b := page.New(), page.New()
	a.SetPageID(1)
	b.SetPageID(2)

	txn.AddIntoPageSet(nil) // root latch sentinel
	txn.AddIntoPageSet(a)
	txn.AddIntoPageSet(b)

	drained := txn.DrainPageSet()
	require.Len(t, drained, 3)
	require.Nil(t, drained[0])
	require.Same(t, a, drained[1])
	require.Same(t, b, drained[2])
	require.Empty(t, txn.PageSet())
}

func TestDeletedPageSetDeduplicates(t *testing.T) {
	txn := New()
	txn.AddIntoDeletedPageSet(7)
	txn.AddIntoDeletedPageSet(7)
	txn.AddIntoDeletedPageSet(9)

	ids := txn.DrainDeletedPageSet()
	require.ElementsMatch(t, []page.PageID{7, 9}, ids)
	require.Empty(t, txn.DrainDeletedPageSet())
}

func TestLifecycle(t *testing.T) {
	txn := New()
	require.Equal(t, StateRunning, txn.State())
	require.NotEqual(t, New().ID(), txn.ID())

	txn.SetState(StateCommitted)
	require.Equal(t, StateCommitted, txn.State())
}
