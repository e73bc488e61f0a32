package buffer

import (
	"container/list"
	"fmt"
	"sync"
)

// FrameID addresses one slot of the buffer pool's frame array.
type FrameID int32

type lruKEntry struct {
	inCount   uint64
	evictable bool
	elem      *list.Element
}

// LRUKReplacer picks eviction victims with a two-list LRU-K policy. Frames
// with fewer than k recorded accesses have infinite K-distance and live in
// the history list; they are evicted first, FIFO by first access. All
// others live in the cache list, which is reordered on every access and
// evicted least-recently-accessed first; its order follows each frame's
// latest access, not its K-th most recent one.
type LRUKReplacer struct {
	mu           sync.Mutex
	k            uint64
	replacerSize int
	currSize     int
	entries      map[FrameID]*lruKEntry
	historyList  *list.List // front = most recently first-accessed
	cacheList    *list.List // front = most recently accessed
}

// NewLRUKReplacer tracks at most numFrames frames with the given k.
func NewLRUKReplacer(numFrames int, k int) *LRUKReplacer {
	return &LRUKReplacer{
		k:            uint64(k),
		replacerSize: numFrames,
		entries:      make(map[FrameID]*lruKEntry),
		historyList:  list.New(),
		cacheList:    list.New(),
	}
}

func (r *LRUKReplacer) checkFrame(fid FrameID) {
	if int(fid) > r.replacerSize {
		panic(fmt.Sprintf("lru-k replacer: frame id %d out of range (size %d)", fid, r.replacerSize))
	}
}

// Evict removes and returns a victim: the evictable history-list frame
// with the oldest first access, or failing that the evictable cache-list
// frame with the oldest latest access. It reports false when nothing is
// evictable.
func (r *LRUKReplacer) Evict() (FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for e := r.historyList.Back(); e != nil; e = e.Prev() {
		fid := e.Value.(FrameID)
		if r.entries[fid].evictable {
			r.historyList.Remove(e)
			delete(r.entries, fid)
			r.currSize--
			return fid, true
		}
	}
	for e := r.cacheList.Back(); e != nil; e = e.Prev() {
		fid := e.Value.(FrameID)
		if r.entries[fid].evictable {
			r.cacheList.Remove(e)
			delete(r.entries, fid)
			r.currSize--
			return fid, true
		}
	}
	return 0, false
}

// RecordAccess notes one access to the frame. The frame graduates from
// the history list to the cache list on its k-th access and moves to the
// cache front on every access after that.
func (r *LRUKReplacer) RecordAccess(fid FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkFrame(fid)
	ent := r.entries[fid]
	if ent == nil {
		ent = &lruKEntry{}
		r.entries[fid] = ent
	}
	ent.inCount++
	switch {
	case ent.inCount == r.k:
		if ent.elem != nil {
			r.historyList.Remove(ent.elem)
		}
		ent.elem = r.cacheList.PushFront(fid)
	case ent.inCount == 1:
		ent.elem = r.historyList.PushFront(fid)
	case ent.inCount > r.k:
		r.cacheList.MoveToFront(ent.elem)
	}
}

// SetEvictable flips the frame's eviction eligibility, adjusting the
// replacer's size accordingly. Unknown frames are ignored.
func (r *LRUKReplacer) SetEvictable(fid FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkFrame(fid)
	ent, ok := r.entries[fid]
	if !ok {
		return
	}
	if ent.evictable && !evictable {
		r.currSize--
	}
	if !ent.evictable && evictable {
		r.currSize++
	}
	ent.evictable = evictable
}

// Remove drops the frame's access history outright, regardless of the
// evictable flag. The caller must guarantee the frame's pin count is zero.
func (r *LRUKReplacer) Remove(fid FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkFrame(fid)
	ent, ok := r.entries[fid]
	if !ok {
		return
	}
	if ent.inCount < r.k {
		r.historyList.Remove(ent.elem)
	} else {
		r.cacheList.Remove(ent.elem)
	}
	delete(r.entries, fid)
	if ent.evictable {
		r.currSize--
	}
}

// Size returns the number of evictable frames currently tracked.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currSize
}
