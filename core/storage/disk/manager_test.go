package disk

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sushant-115/kagedb/core/storage/page"
)

func setupManager(t *testing.T) *FileManager {
	t.Helper()
	dm, err := NewFileManager(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })
	return dm
}

func TestWriteReadRoundTrip(t *testing.T) {
	dm := setupManager(t)

	data := make([]byte, page.Size)
	copy(data, "page payload")
	pid := dm.AllocatePage()
	require.NoError(t, dm.WritePage(pid, data))

	got := make([]byte, page.Size)
	require.NoError(t, dm.ReadPage(pid, got))
	require.True(t, bytes.Equal(data, got))
}

func TestReadPastEOFZeroFills(t *testing.T) {
	dm := setupManager(t)

	buf := make([]byte, page.Size)
	for i := range buf {
		buf[i] = 0xFF
	}
	require.NoError(t, dm.ReadPage(7, buf))
	require.Equal(t, make([]byte, page.Size), buf)
}

func TestAllocatePageIsMonotonic(t *testing.T) {
	dm := setupManager(t)
	require.Equal(t, page.PageID(1), dm.AllocatePage())
	require.Equal(t, page.PageID(2), dm.AllocatePage())
	require.Equal(t, page.PageID(3), dm.AllocatePage())
}

func TestAllocationResumesAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := NewFileManager(path, zap.NewNop())
	require.NoError(t, err)

	data := make([]byte, page.Size)
	var last page.PageID
	for i := 0; i < 3; i++ {
		last = dm.AllocatePage()
		require.NoError(t, dm.WritePage(last, data))
	}
	require.NoError(t, dm.Close())

	dm, err = NewFileManager(path, zap.NewNop())
	require.NoError(t, err)
	defer dm.Close()
	require.Equal(t, last+1, dm.AllocatePage())
}

func TestBadArguments(t *testing.T) {
	dm := setupManager(t)
	require.Error(t, dm.ReadPage(-1, make([]byte, page.Size)))
	require.Error(t, dm.ReadPage(1, make([]byte, 10)))
	require.Error(t, dm.WritePage(1, make([]byte, 10)))
}

func TestClosedManagerRejectsIO(t *testing.T) {
	dm := setupManager(t)
	require.NoError(t, dm.Close())
	require.ErrorIs(t, dm.ReadPage(1, make([]byte, page.Size)), ErrClosed)
	require.ErrorIs(t, dm.WritePage(1, make([]byte, page.Size)), ErrClosed)
	require.ErrorIs(t, dm.Sync(), ErrClosed)
	require.NoError(t, dm.Close(), "double close is a no-op")
}
