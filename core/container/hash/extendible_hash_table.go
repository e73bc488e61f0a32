// Package hash implements an extendible hash table with a growable
// directory and bounded buckets. The buffer pool uses it as its
// page-id → frame-id map; it also works as a general associative
// container.
package hash

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Func maps a key to the hash value whose low bits index the directory.
type Func[K comparable] func(K) uint64

// XXHashString hashes string keys with xxhash.
func XXHashString[K ~string]() Func[K] {
	return func(k K) uint64 { return xxhash.Sum64String(string(k)) }
}

// XXHashInt64 hashes 64-bit integer keys with xxhash over their
// little-endian encoding.
func XXHashInt64[K ~int64 | ~uint64]() Func[K] {
	return func(k K) uint64 {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(k))
		return xxhash.Sum64(buf[:])
	}
}

// Identity uses the key itself as its hash. Page ids are dense and
// monotonically allocated, so their low bits already spread uniformly
// over the directory; the buffer pool's page table relies on this.
func Identity[K ~int | ~int32 | ~int64]() Func[K] {
	return func(k K) uint64 { return uint64(k) }
}

type entry[K comparable, V any] struct {
	key K
	val V
}

// bucket holds up to size entries sharing a hash prefix of depth bits.
type bucket[K comparable, V any] struct {
	size  int
	depth int
	items []entry[K, V]
}

func newBucket[K comparable, V any](size, depth int) *bucket[K, V] {
	return &bucket[K, V]{size: size, depth: depth, items: make([]entry[K, V], 0, size)}
}

func (b *bucket[K, V]) isFull() bool { return len(b.items) >= b.size }

func (b *bucket[K, V]) find(key K) (V, bool) {
	for i := range b.items {
		if b.items[i].key == key {
			return b.items[i].val, true
		}
	}
	var zero V
	return zero, false
}

func (b *bucket[K, V]) remove(key K) bool {
	for i := range b.items {
		if b.items[i].key == key {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true
		}
	}
	return false
}

// insert overwrites an existing key or appends if there is room.
func (b *bucket[K, V]) insert(key K, val V) bool {
	for i := range b.items {
		if b.items[i].key == key {
			b.items[i].val = val
			return true
		}
	}
	if b.isFull() {
		return false
	}
	b.items = append(b.items, entry[K, V]{key: key, val: val})
	return true
}

// ExtendibleHashTable is safe for concurrent use; every operation is
// serialized under one mutex. Insertion never fails: a full bucket is
// split, doubling the directory when its local depth has caught up with
// the global depth. Sizing buckets too small for the key population makes
// the directory grow without bound.
type ExtendibleHashTable[K comparable, V any] struct {
	mu          sync.Mutex
	globalDepth int
	bucketSize  int
	numBuckets  int
	dir         []*bucket[K, V]
	hash        Func[K]
}

// New creates a table whose buckets hold bucketSize entries.
func New[K comparable, V any](bucketSize int, hash Func[K]) *ExtendibleHashTable[K, V] {
	t := &ExtendibleHashTable[K, V]{
		bucketSize: bucketSize,
		numBuckets: 1,
		hash:       hash,
	}
	t.dir = append(t.dir, newBucket[K, V](bucketSize, 0))
	return t
}

// indexOf extracts the low globalDepth bits of the key's hash.
func (t *ExtendibleHashTable[K, V]) indexOf(key K) int {
	mask := uint64(1)<<t.globalDepth - 1
	return int(t.hash(key) & mask)
}

func (t *ExtendibleHashTable[K, V]) GetGlobalDepth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.globalDepth
}

// GetLocalDepth reports the depth of the bucket behind a directory slot.
func (t *ExtendibleHashTable[K, V]) GetLocalDepth(dirIndex int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dir[dirIndex].depth
}

func (t *ExtendibleHashTable[K, V]) GetNumBuckets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.numBuckets
}

func (t *ExtendibleHashTable[K, V]) Find(key K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dir[t.indexOf(key)].find(key)
}

func (t *ExtendibleHashTable[K, V]) Remove(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dir[t.indexOf(key)].remove(key)
}

// Insert adds key → val, overwriting any existing mapping.
func (t *ExtendibleHashTable[K, V]) Insert(key K, val V) {
	t.mu.Lock()
	defer t.mu.Unlock()

	index := t.indexOf(key)
	if _, ok := t.dir[index].find(key); ok {
		t.dir[index].insert(key, val)
		return
	}
	for t.dir[index].isFull() {
		target := t.dir[index]
		localDepth := target.depth
		if localDepth == t.globalDepth {
			// Double the directory; each new high-half slot aliases the
			// bucket of the matching low-half slot.
			t.globalDepth++
			oldSize := len(t.dir)
			t.dir = append(t.dir, make([]*bucket[K, V], oldSize)...)
			for i := 0; i < oldSize; i++ {
				t.dir[i+oldSize] = t.dir[i]
			}
		}
		// Split the overflowing bucket on bit 1<<localDepth of the hash.
		localMask := uint64(1) << localDepth
		bucket0 := newBucket[K, V](t.bucketSize, localDepth+1)
		bucket1 := newBucket[K, V](t.bucketSize, localDepth+1)
		for _, it := range target.items {
			if t.hash(it.key)&localMask == 0 {
				bucket0.insert(it.key, it.val)
			} else {
				bucket1.insert(it.key, it.val)
			}
		}
		t.numBuckets++
		for i := range t.dir {
			if t.dir[i] == target {
				if uint64(i)&localMask == 0 {
					t.dir[i] = bucket0
				} else {
					t.dir[i] = bucket1
				}
			}
		}
		index = t.indexOf(key)
	}
	t.dir[index].insert(key, val)
}
