package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLRUKHistoryEvictsFIFO(t *testing.T) {
	r := NewLRUKReplacer(7, 2)
	r.RecordAccess(1)
	r.RecordAccess(2)
	r.RecordAccess(3)
	r.SetEvictable(1, true)
	r.SetEvictable(2, true)
	r.SetEvictable(3, true)
	require.Equal(t, 3, r.Size())

	// All three have infinite K-distance; eviction follows first access.
	fid, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, FrameID(1), fid)
	fid, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, FrameID(2), fid)
	fid, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, FrameID(3), fid)
	_, ok = r.Evict()
	require.False(t, ok)
	require.Equal(t, 0, r.Size())
}

func TestLRUKInfiniteDistanceGoesFirst(t *testing.T) {
	r := NewLRUKReplacer(7, 2)
	r.RecordAccess(1)
	r.RecordAccess(1) // frame 1 reaches k accesses, finite distance
	r.RecordAccess(2)
	r.RecordAccess(3)
	r.SetEvictable(1, true)
	r.SetEvictable(2, true)
	r.SetEvictable(3, true)

	// Frames 2 and 3 still have infinite distance and leave first, in
	// first-access order; frame 1 goes last.
	fid, _ := r.Evict()
	require.Equal(t, FrameID(2), fid)
	fid, _ = r.Evict()
	require.Equal(t, FrameID(3), fid)
	fid, _ = r.Evict()
	require.Equal(t, FrameID(1), fid)
}

func TestLRUKCacheEvictsLeastRecentlyAccessed(t *testing.T) {
	r := NewLRUKReplacer(7, 2)
	// Access pattern: 1, 2, 1, 2, 1. Both frames have >= k accesses;
	// frame 2's latest access is older than frame 1's.
	r.RecordAccess(1)
	r.RecordAccess(2)
	r.RecordAccess(1)
	r.RecordAccess(2)
	r.RecordAccess(1)
	r.SetEvictable(1, true)
	r.SetEvictable(2, true)

	fid, _ := r.Evict()
	require.Equal(t, FrameID(2), fid)
	fid, _ = r.Evict()
	require.Equal(t, FrameID(1), fid)
}

func TestLRUKEvictSkipsNonEvictable(t *testing.T) {
	r := NewLRUKReplacer(7, 2)
	r.RecordAccess(1)
	r.RecordAccess(2)
	r.SetEvictable(1, false)
	r.SetEvictable(2, true)
	require.Equal(t, 1, r.Size())

	fid, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, FrameID(2), fid)
	_, ok = r.Evict()
	require.False(t, ok)

	// Frame 1 is still tracked; flipping it evictable surfaces it.
	r.SetEvictable(1, true)
	require.Equal(t, 1, r.Size())
	fid, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, FrameID(1), fid)
}

func TestLRUKSetEvictableAdjustsSize(t *testing.T) {
	r := NewLRUKReplacer(7, 2)
	r.RecordAccess(1)
	require.Equal(t, 0, r.Size())
	r.SetEvictable(1, true)
	require.Equal(t, 1, r.Size())
	r.SetEvictable(1, true) // idempotent
	require.Equal(t, 1, r.Size())
	r.SetEvictable(1, false)
	require.Equal(t, 0, r.Size())
	// Unknown frames are ignored.
	r.SetEvictable(5, true)
	require.Equal(t, 0, r.Size())
}

func TestLRUKRemove(t *testing.T) {
	r := NewLRUKReplacer(7, 2)
	r.RecordAccess(1)
	r.RecordAccess(2)
	r.RecordAccess(2)
	r.SetEvictable(1, true)
	r.SetEvictable(2, true)
	require.Equal(t, 2, r.Size())

	r.Remove(1) // history resident
	r.Remove(2) // cache resident
	require.Equal(t, 0, r.Size())
	_, ok := r.Evict()
	require.False(t, ok)

	// Removing an untracked frame is a no-op.
	r.Remove(3)
}

func TestLRUKInvalidFrameIDPanics(t *testing.T) {
	r := NewLRUKReplacer(7, 2)
	require.Panics(t, func() { r.RecordAccess(100) })
	require.Panics(t, func() { r.SetEvictable(100, true) })
	require.Panics(t, func() { r.Remove(100) })
}
