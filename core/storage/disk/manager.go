// Package disk provides the page-granular file I/O layer underneath the
// buffer pool.
package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/sushant-115/kagedb/core/storage/page"
)

var (
	ErrIO         = errors.New("disk: i/o error")
	ErrClosed     = errors.New("disk: manager is closed")
	ErrBadPageID  = errors.New("disk: invalid page id")
	ErrShortWrite = errors.New("disk: short page write")
)

// Manager is the contract the buffer pool consumes. Page ids handed out by
// AllocatePage are dense and monotonically increasing; page 0 is reserved
// for the header page and never returned.
type Manager interface {
	// ReadPage fills buf with the contents of the page. Reads past the
	// current end of the file yield a zero-filled buffer.
	ReadPage(id page.PageID, buf []byte) error
	// WritePage persists the page's bytes at its fixed file offset.
	WritePage(id page.PageID, data []byte) error
	// AllocatePage reserves the next page id.
	AllocatePage() page.PageID
	// DeallocatePage returns a page id to the manager. The file-backed
	// implementation does not reclaim space; the call records intent only.
	DeallocatePage(id page.PageID)
	// Sync flushes buffered writes to stable storage.
	Sync() error
	Close() error
}

// FileManager stores pages in a single file at offset id * page.Size.
type FileManager struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	// nextPageID starts at 1: page 0 is the reserved header page, which
	// exists implicitly from the moment the file is created.
	nextPageID page.PageID
	log        *zap.Logger
}

var _ Manager = (*FileManager)(nil)

// NewFileManager opens or creates the database file. On an existing file
// page allocation resumes after the highest page the file contains.
func NewFileManager(filePath string, log *zap.Logger) (*FileManager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	file, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrIO, filePath, err)
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: stat %s: %v", ErrIO, filePath, err)
	}
	next := page.PageID(fi.Size() / page.Size)
	if fi.Size()%page.Size != 0 {
		next++
	}
	if next < 1 {
		next = 1
	}
	return &FileManager{
		filePath:   filePath,
		file:       file,
		nextPageID: next,
		log:        log,
	}, nil
}

func (m *FileManager) ReadPage(id page.PageID, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return ErrClosed
	}
	if id < 0 {
		return fmt.Errorf("%w: %d", ErrBadPageID, id)
	}
	if len(buf) != page.Size {
		return fmt.Errorf("%w: buffer is %d bytes, want %d", ErrBadPageID, len(buf), page.Size)
	}
	offset := int64(id) * page.Size
	n, err := m.file.ReadAt(buf, offset)
	if err != nil {
		if errors.Is(err, io.EOF) {
			// The page was allocated but never written. Hand back zeroes,
			// the way a freshly formatted page would look.
			for i := n; i < len(buf); i++ {
				buf[i] = 0
			}
			m.log.Debug("read past end of file, zero-filling",
				zap.Int32("page_id", int32(id)))
			return nil
		}
		return fmt.Errorf("%w: reading page %d: %v", ErrIO, id, err)
	}
	return nil
}

func (m *FileManager) WritePage(id page.PageID, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return ErrClosed
	}
	if id < 0 {
		return fmt.Errorf("%w: %d", ErrBadPageID, id)
	}
	if len(data) != page.Size {
		return fmt.Errorf("%w: buffer is %d bytes, want %d", ErrBadPageID, len(data), page.Size)
	}
	offset := int64(id) * page.Size
	n, err := m.file.WriteAt(data, offset)
	if err != nil {
		return fmt.Errorf("%w: writing page %d: %v", ErrIO, id, err)
	}
	if n != page.Size {
		return fmt.Errorf("%w: page %d, wrote %d bytes", ErrShortWrite, id, n)
	}
	return nil
}

func (m *FileManager) AllocatePage() page.PageID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextPageID
	m.nextPageID++
	return id
}

func (m *FileManager) DeallocatePage(id page.PageID) {
	// Space reclamation needs an on-disk free list, which this manager
	// does not keep. Deallocated pages are simply left behind.
	m.log.Debug("deallocate page", zap.Int32("page_id", int32(id)))
}

func (m *FileManager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return ErrClosed
	}
	if err := m.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", ErrIO, err)
	}
	return nil
}

func (m *FileManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	if err := m.file.Sync(); err != nil {
		m.log.Warn("sync on close failed", zap.Error(err))
	}
	err := m.file.Close()
	m.file = nil
	if err != nil {
		return fmt.Errorf("%w: close: %v", ErrIO, err)
	}
	return nil
}
