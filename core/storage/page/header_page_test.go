package page

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderPageRecords(t *testing.T) {
	h := AsHeaderPage(New())

	require.NoError(t, h.InsertRecord("orders_pk", 3))
	require.NoError(t, h.InsertRecord("users_pk", 9))

	root, ok := h.GetRecord("orders_pk")
	require.True(t, ok)
	require.Equal(t, PageID(3), root)

	require.True(t, h.UpdateRecord("orders_pk", 17))
	root, ok = h.GetRecord("orders_pk")
	require.True(t, ok)
	require.Equal(t, PageID(17), root)

	_, ok = h.GetRecord("missing")
	require.False(t, ok)
	require.False(t, h.UpdateRecord("missing", 1))
}

func TestHeaderPageDuplicateInsert(t *testing.T) {
	h := AsHeaderPage(New())
	require.NoError(t, h.InsertRecord("idx", 1))
	require.Error(t, h.InsertRecord("idx", 2))

	root, ok := h.GetRecord("idx")
	require.True(t, ok)
	require.Equal(t, PageID(1), root)
}

func TestHeaderPageDelete(t *testing.T) {
	h := AsHeaderPage(New())
	require.NoError(t, h.InsertRecord("a", 1))
	require.NoError(t, h.InsertRecord("b", 2))
	require.NoError(t, h.InsertRecord("c", 3))

	require.True(t, h.DeleteRecord("b"))
	require.False(t, h.DeleteRecord("b"))

	_, ok := h.GetRecord("b")
	require.False(t, ok)
	// Later records survive compaction.
	root, ok := h.GetRecord("c")
	require.True(t, ok)
	require.Equal(t, PageID(3), root)
}

func TestHeaderPageNameTooLong(t *testing.T) {
	h := AsHeaderPage(New())
	require.ErrorIs(t, h.InsertRecord(strings.Repeat("x", 40), 1), ErrNameTooLong)
}

func TestHeaderPageFillsUp(t *testing.T) {
	h := AsHeaderPage(New())
	for i := 0; i < maxHeaderRecords; i++ {
		require.NoError(t, h.InsertRecord(fmt.Sprintf("idx_%d", i), PageID(i)))
	}
	require.ErrorIs(t, h.InsertRecord("one_more", 1), ErrHeaderFull)

	// Every record is still addressable.
	for i := 0; i < maxHeaderRecords; i++ {
		root, ok := h.GetRecord(fmt.Sprintf("idx_%d", i))
		require.True(t, ok)
		require.Equal(t, PageID(i), root)
	}
}

func TestPageResetClearsState(t *testing.T) {
	p := New()
	p.SetPageID(5)
	p.Pin()
	p.SetDirty(true)
	p.GetData()[0] = 0xAB

	p.Reset()
	require.Equal(t, InvalidPageID, p.GetPageID())
	require.Equal(t, uint32(0), p.GetPinCount())
	require.False(t, p.IsDirty())
	require.Equal(t, byte(0), p.GetData()[0])
}
