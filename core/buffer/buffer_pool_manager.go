// Package buffer contains the buffer pool manager and its LRU-K
// replacement policy. The pool brokers all page I/O: callers pin pages
// through it and every other component borrows frames it owns.
package buffer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/sushant-115/kagedb/core/container/hash"
	"github.com/sushant-115/kagedb/core/storage/disk"
	"github.com/sushant-115/kagedb/core/storage/page"
)

var (
	// ErrNoFreeFrame is returned when every frame is pinned and nothing
	// can be evicted. Callers may retry after releasing pins.
	ErrNoFreeFrame = errors.New("buffer: no free frame available, all pages pinned")
)

// pageTableBucketSize bounds entries per extendible-hash bucket in the
// page table.
const pageTableBucketSize = 4

type poolMetrics struct {
	fetchHits   metric.Int64Counter
	fetchMisses metric.Int64Counter
	evictions   metric.Int64Counter
	writeBacks  metric.Int64Counter
	flushes     metric.Int64Counter
}

func newPoolMetrics(meter metric.Meter) *poolMetrics {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}
	m := &poolMetrics{}
	m.fetchHits, _ = meter.Int64Counter("kagedb.bufferpool.fetch_hits")
	m.fetchMisses, _ = meter.Int64Counter("kagedb.bufferpool.fetch_misses")
	m.evictions, _ = meter.Int64Counter("kagedb.bufferpool.evictions")
	m.writeBacks, _ = meter.Int64Counter("kagedb.bufferpool.dirty_write_backs")
	m.flushes, _ = meter.Int64Counter("kagedb.bufferpool.flushes")
	return m
}

// BufferPoolManager owns the frame array, the free list, the page table,
// the replacer, and the disk manager handle. One mutex serializes all
// directory manipulation; per-page latches stay with the pages.
type BufferPoolManager struct {
	mu       sync.Mutex
	poolSize int
	frames   []*page.Page
	// pageTable maps resident page ids to frame ids. A frame is either in
	// the free list or mapped here, never both.
	pageTable *hash.ExtendibleHashTable[page.PageID, FrameID]
	replacer  *LRUKReplacer
	freeList  []FrameID
	disk      disk.Manager
	log       *zap.Logger
	metrics   *poolMetrics
}

// New builds a pool of poolSize frames over the disk manager, evicting
// with an LRU-K policy of the given k. A nil meter disables metrics.
func New(poolSize, replacerK int, dm disk.Manager, log *zap.Logger, meter metric.Meter) *BufferPoolManager {
	if log == nil {
		log = zap.NewNop()
	}
	bpm := &BufferPoolManager{
		poolSize:  poolSize,
		frames:    make([]*page.Page, poolSize),
		pageTable: hash.New[page.PageID, FrameID](pageTableBucketSize, hash.Identity[page.PageID]()),
		replacer:  NewLRUKReplacer(poolSize, replacerK),
		freeList:  make([]FrameID, 0, poolSize),
		disk:      dm,
		log:       log,
		metrics:   newPoolMetrics(meter),
	}
	for i := 0; i < poolSize; i++ {
		bpm.frames[i] = page.New()
		bpm.freeList = append(bpm.freeList, FrameID(i))
	}
	return bpm
}

// PoolSize returns the number of frames.
func (bpm *BufferPoolManager) PoolSize() int { return bpm.poolSize }

// FreeFrames reports how many frames sit in the free list.
func (bpm *BufferPoolManager) FreeFrames() int {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	return len(bpm.freeList)
}

// acquireFrame hands out a frame id, preferring the free list and falling
// back to eviction. A dirty victim is written back before its frame is
// recycled. Caller holds bpm.mu.
func (bpm *BufferPoolManager) acquireFrame() (FrameID, error) {
	if len(bpm.freeList) > 0 {
		fid := bpm.freeList[0]
		bpm.freeList = bpm.freeList[1:]
		return fid, nil
	}
	fid, ok := bpm.replacer.Evict()
	if !ok {
		return 0, ErrNoFreeFrame
	}
	victim := bpm.frames[fid]
	evictedID := victim.GetPageID()
	if victim.IsDirty() {
		if err := bpm.disk.WritePage(evictedID, victim.GetData()); err != nil {
			return 0, fmt.Errorf("writing back evicted page %d: %w", evictedID, err)
		}
		victim.SetDirty(false)
		bpm.metrics.writeBacks.Add(context.Background(), 1)
	}
	victim.Reset()
	bpm.pageTable.Remove(evictedID)
	bpm.metrics.evictions.Add(context.Background(), 1)
	bpm.log.Debug("evicted page", zap.Int32("page_id", int32(evictedID)), zap.Int32("frame_id", int32(fid)))
	return fid, nil
}

// NewPage allocates a fresh page, installs it pinned into a frame, and
// returns it. The frame's buffer is zeroed.
func (bpm *BufferPoolManager) NewPage() (*page.Page, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if len(bpm.freeList) == 0 && bpm.replacer.Size() == 0 {
		return nil, ErrNoFreeFrame
	}
	pid := bpm.disk.AllocatePage()
	fid, err := bpm.acquireFrame()
	if err != nil {
		bpm.disk.DeallocatePage(pid)
		return nil, err
	}
	frame := bpm.frames[fid]
	bpm.pageTable.Insert(pid, fid)
	frame.SetPageID(pid)
	frame.Pin()
	bpm.replacer.RecordAccess(fid)
	bpm.replacer.SetEvictable(fid, false)
	bpm.log.Debug("new page", zap.Int32("page_id", int32(pid)), zap.Int32("frame_id", int32(fid)))
	return frame, nil
}

// FetchPage pins and returns the page, reading it from disk on a miss.
func (bpm *BufferPoolManager) FetchPage(pid page.PageID) (*page.Page, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if fid, ok := bpm.pageTable.Find(pid); ok {
		frame := bpm.frames[fid]
		frame.Pin()
		bpm.replacer.RecordAccess(fid)
		bpm.replacer.SetEvictable(fid, false)
		bpm.metrics.fetchHits.Add(context.Background(), 1)
		return frame, nil
	}
	if len(bpm.freeList) == 0 && bpm.replacer.Size() == 0 {
		return nil, ErrNoFreeFrame
	}
	fid, err := bpm.acquireFrame()
	if err != nil {
		return nil, err
	}
	frame := bpm.frames[fid]
	if err := bpm.disk.ReadPage(pid, frame.GetData()); err != nil {
		// The frame stayed unmapped; hand it back rather than leak it.
		bpm.freeList = append(bpm.freeList, fid)
		return nil, fmt.Errorf("reading page %d: %w", pid, err)
	}
	bpm.pageTable.Insert(pid, fid)
	frame.SetPageID(pid)
	frame.Pin()
	bpm.replacer.RecordAccess(fid)
	bpm.replacer.SetEvictable(fid, false)
	bpm.metrics.fetchMisses.Add(context.Background(), 1)
	return frame, nil
}

// UnpinPage drops one pin. A true isDirty sticks: the flag is never
// cleared through unpin. Returns false for non-resident or unpinned pages.
func (bpm *BufferPoolManager) UnpinPage(pid page.PageID, isDirty bool) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	fid, ok := bpm.pageTable.Find(pid)
	if !ok {
		bpm.log.Warn("unpin of non-resident page", zap.Int32("page_id", int32(pid)))
		return false
	}
	frame := bpm.frames[fid]
	if frame.GetPinCount() == 0 {
		bpm.log.Warn("unpin of unpinned page", zap.Int32("page_id", int32(pid)))
		return false
	}
	if isDirty {
		frame.SetDirty(true)
	}
	frame.Unpin()
	if frame.GetPinCount() == 0 {
		bpm.replacer.SetEvictable(fid, true)
	}
	return true
}

// FlushPage writes the page's buffer through to disk regardless of the
// dirty flag. The flag is left as is: flushing is advisory and eviction
// remains responsible for the authoritative write-back.
func (bpm *BufferPoolManager) FlushPage(pid page.PageID) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	return bpm.flushPageLocked(pid)
}

func (bpm *BufferPoolManager) flushPageLocked(pid page.PageID) bool {
	if pid == page.InvalidPageID {
		return false
	}
	fid, ok := bpm.pageTable.Find(pid)
	if !ok {
		return false
	}
	if err := bpm.disk.WritePage(pid, bpm.frames[fid].GetData()); err != nil {
		bpm.log.Error("flush failed", zap.Int32("page_id", int32(pid)), zap.Error(err))
		return false
	}
	bpm.metrics.flushes.Add(context.Background(), 1)
	return true
}

// FlushAllPages flushes every resident page.
func (bpm *BufferPoolManager) FlushAllPages() {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	for _, frame := range bpm.frames {
		bpm.flushPageLocked(frame.GetPageID())
	}
}

// DeletePage evicts a page from the pool and returns its id to the disk
// manager. Deleting a non-resident page is a no-op success; deleting a
// pinned page fails.
func (bpm *BufferPoolManager) DeletePage(pid page.PageID) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	fid, ok := bpm.pageTable.Find(pid)
	if !ok {
		return true
	}
	frame := bpm.frames[fid]
	if frame.GetPinCount() > 0 {
		bpm.log.Warn("delete of pinned page", zap.Int32("page_id", int32(pid)),
			zap.Uint32("pin_count", frame.GetPinCount()))
		return false
	}
	bpm.pageTable.Remove(pid)
	bpm.replacer.Remove(fid)
	frame.Reset()
	bpm.freeList = append(bpm.freeList, fid)
	bpm.disk.DeallocatePage(pid)
	bpm.log.Debug("deleted page", zap.Int32("page_id", int32(pid)))
	return true
}
