package buffer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sushant-115/kagedb/core/storage/disk"
	"github.com/sushant-115/kagedb/core/storage/page"
)

func setupPool(t *testing.T, poolSize, replacerK int) *BufferPoolManager {
	t.Helper()
	dm, err := disk.NewFileManager(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })
	return New(poolSize, replacerK, dm, zap.NewNop(), nil)
}

func TestNewPageAllocatesSequentialIDs(t *testing.T) {
	bpm := setupPool(t, 3, 2)

	// Page 0 is the reserved header page, so allocation starts at 1.
	for want := page.PageID(1); want <= 3; want++ {
		p, err := bpm.NewPage()
		require.NoError(t, err)
		require.Equal(t, want, p.GetPageID())
	}
	// Every frame is pinned now.
	_, err := bpm.NewPage()
	require.ErrorIs(t, err, ErrNoFreeFrame)
}

func TestEvictionWritesBackDirtyVictim(t *testing.T) {
	bpm := setupPool(t, 3, 2)

	p1, err := bpm.NewPage()
	require.NoError(t, err)
	require.Equal(t, page.PageID(1), p1.GetPageID())
	copy(p1.GetData(), "Hello")
	for i := 0; i < 2; i++ {
		_, err = bpm.NewPage()
		require.NoError(t, err)
	}

	require.True(t, bpm.UnpinPage(1, true))

	// The next allocation claims page 1's frame, flushing it to disk.
	p4, err := bpm.NewPage()
	require.NoError(t, err)
	require.Equal(t, page.PageID(4), p4.GetPageID())
	require.True(t, bpm.UnpinPage(4, false))

	// Fetching page 1 misses and re-reads the written-back bytes.
	p1, err = bpm.FetchPage(1)
	require.NoError(t, err)
	require.Equal(t, []byte("Hello"), p1.GetData()[:5])
}

func TestFetchHitSharesFrame(t *testing.T) {
	bpm := setupPool(t, 3, 2)

	p, err := bpm.NewPage()
	require.NoError(t, err)
	pid := p.GetPageID()

	again, err := bpm.FetchPage(pid)
	require.NoError(t, err)
	require.Same(t, p, again)
	require.Equal(t, uint32(2), p.GetPinCount())

	require.True(t, bpm.UnpinPage(pid, false))
	require.True(t, bpm.UnpinPage(pid, false))
	require.False(t, bpm.UnpinPage(pid, false), "pin count already zero")
}

func TestUnpinUnknownPage(t *testing.T) {
	bpm := setupPool(t, 3, 2)
	require.False(t, bpm.UnpinPage(42, false))
}

func TestDirtyFlagSticksThroughUnpin(t *testing.T) {
	bpm := setupPool(t, 3, 2)

	p, err := bpm.NewPage()
	require.NoError(t, err)
	pid := p.GetPageID()

	_, err = bpm.FetchPage(pid)
	require.NoError(t, err)
	require.True(t, bpm.UnpinPage(pid, true))
	// A later clean unpin must not clear the dirty flag.
	require.True(t, bpm.UnpinPage(pid, false))
	require.True(t, p.IsDirty())
}

func TestFlushPage(t *testing.T) {
	bpm := setupPool(t, 3, 2)

	p, err := bpm.NewPage()
	require.NoError(t, err)
	require.True(t, bpm.FlushPage(p.GetPageID()))
	require.False(t, bpm.FlushPage(99), "non-resident page")
	require.False(t, bpm.FlushPage(page.InvalidPageID))
	bpm.FlushAllPages()
}

func TestDeletePage(t *testing.T) {
	bpm := setupPool(t, 3, 2)

	p, err := bpm.NewPage()
	require.NoError(t, err)
	pid := p.GetPageID()

	require.False(t, bpm.DeletePage(pid), "pinned page cannot be deleted")
	require.True(t, bpm.UnpinPage(pid, false))

	free := bpm.FreeFrames()
	require.True(t, bpm.DeletePage(pid))
	require.Equal(t, free+1, bpm.FreeFrames())

	// Deleting a non-resident page succeeds trivially.
	require.True(t, bpm.DeletePage(pid))
}

func TestUnpinnedFramesAreReclaimable(t *testing.T) {
	bpm := setupPool(t, 3, 2)

	ids := make([]page.PageID, 0, 3)
	for i := 0; i < 3; i++ {
		p, err := bpm.NewPage()
		require.NoError(t, err)
		ids = append(ids, p.GetPageID())
	}
	for _, pid := range ids {
		require.True(t, bpm.UnpinPage(pid, true))
	}
	// With everything unpinned the pool can cycle through many more
	// pages than it has frames.
	for i := 0; i < 10; i++ {
		p, err := bpm.NewPage()
		require.NoError(t, err)
		require.True(t, bpm.UnpinPage(p.GetPageID(), false))
	}
	// Old pages are still intact on disk and fetchable.
	for _, pid := range ids {
		p, err := bpm.FetchPage(pid)
		require.NoError(t, err)
		require.Equal(t, pid, p.GetPageID())
		require.True(t, bpm.UnpinPage(pid, false))
	}
}
