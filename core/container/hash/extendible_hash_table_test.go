package hash

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirectoryGrowth(t *testing.T) {
	table := New[int, string](2, Identity[int]())

	for i, v := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"} {
		table.Insert(i+1, v)
	}

	require.Equal(t, 2, table.GetLocalDepth(0))
	require.Equal(t, 3, table.GetLocalDepth(1))
	require.Equal(t, 2, table.GetLocalDepth(2))
	require.Equal(t, 2, table.GetLocalDepth(3))

	v, ok := table.Find(9)
	require.True(t, ok)
	require.Equal(t, "i", v)
	v, ok = table.Find(8)
	require.True(t, ok)
	require.Equal(t, "h", v)
	v, ok = table.Find(2)
	require.True(t, ok)
	require.Equal(t, "b", v)
	_, ok = table.Find(10)
	require.False(t, ok)

	require.True(t, table.Remove(8))
	require.True(t, table.Remove(4))
	require.True(t, table.Remove(1))
	require.False(t, table.Remove(20))
}

func TestMultipleSplitsOnOneInsert(t *testing.T) {
	table := New[int, string](2, Identity[int]())

	table.Insert(15, "a")
	table.Insert(14, "b")
	table.Insert(23, "c")
	table.Insert(11, "d")
	table.Insert(9, "e")

	require.Equal(t, 4, table.GetNumBuckets())
	require.Equal(t, 1, table.GetLocalDepth(0))
	require.Equal(t, 2, table.GetLocalDepth(1))
	require.Equal(t, 3, table.GetLocalDepth(3))
	require.Equal(t, 3, table.GetLocalDepth(7))
}

func TestInsertOverwritesExistingKey(t *testing.T) {
	table := New[int, string](2, Identity[int]())
	table.Insert(7, "old")
	table.Insert(7, "new")

	v, ok := table.Find(7)
	require.True(t, ok)
	require.Equal(t, "new", v)
	require.Equal(t, 1, table.GetNumBuckets())
}

func TestRemoveThenFind(t *testing.T) {
	table := New[int, int](4, Identity[int]())
	for i := 0; i < 32; i++ {
		table.Insert(i, i*10)
	}
	for i := 0; i < 32; i += 2 {
		require.True(t, table.Remove(i))
	}
	for i := 0; i < 32; i++ {
		v, ok := table.Find(i)
		if i%2 == 0 {
			require.False(t, ok, "key %d should be gone", i)
		} else {
			require.True(t, ok, "key %d should remain", i)
			require.Equal(t, i*10, v)
		}
	}
}

// Directory growth stays proportional to the key population: with N keys
// and bucket capacity B the bucket count is bounded by 2N/B plus a
// constant.
func TestBucketCountBound(t *testing.T) {
	const n, bucketSize = 512, 4
	table := New[int64, int64](bucketSize, XXHashInt64[int64]())
	for i := int64(0); i < n; i++ {
		table.Insert(i, i)
	}
	for i := int64(0); i < n; i++ {
		v, ok := table.Find(i)
		require.True(t, ok, "key %d not retrievable", i)
		require.Equal(t, i, v)
	}
	require.LessOrEqual(t, table.GetNumBuckets(), 2*n/bucketSize+4)
}

func TestStringKeysWithXXHash(t *testing.T) {
	table := New[string, int](4, XXHashString[string]())
	for i := 0; i < 100; i++ {
		table.Insert(fmt.Sprintf("key-%03d", i), i)
	}
	for i := 0; i < 100; i++ {
		v, ok := table.Find(fmt.Sprintf("key-%03d", i))
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

func TestConcurrentInsertFind(t *testing.T) {
	const numRuns = 20
	const numThreads = 5

	for run := 0; run < numRuns; run++ {
		table := New[int, int](2, Identity[int]())
		var wg sync.WaitGroup
		for tid := 0; tid < numThreads; tid++ {
			wg.Add(1)
			go func(tid int) {
				defer wg.Done()
				table.Insert(tid, tid)
				v, ok := table.Find(tid)
				require.True(t, ok)
				require.Equal(t, tid, v)
			}(tid)
		}
		wg.Wait()

		for i := 0; i < numThreads; i++ {
			v, ok := table.Find(i)
			require.True(t, ok)
			require.Equal(t, i, v)
		}
	}
}
