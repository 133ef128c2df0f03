package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/dsnet/golib/memfile"
	"github.com/relcore/coredb/page"
	"github.com/relcore/coredb/storage/errs"
)

// MemDiskManager is a DiskManager backed by an in-memory file, for tests
// and short-lived engines that never need to survive a process restart.
type MemDiskManager struct {
	mu      sync.Mutex
	file    *memfile.File
	nextID  int32
	freeIDs []page.PageID
}

// NewMemDiskManager returns an empty in-memory disk manager. Page 0 is
// reserved for the header page.
func NewMemDiskManager() *MemDiskManager {
	return &MemDiskManager{
		file:   memfile.New(nil),
		nextID: 1,
	}
}

func (m *MemDiskManager) ReadPage(id page.PageID, dst *[page.PageSize]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	off := int64(id) * page.PageSize
	n, err := m.file.ReadAt(dst[:], off)
	if err != nil && n == 0 {
		// Page never written: a fresh page reads as all zeroes.
		for i := range dst {
			dst[i] = 0
		}
		return nil
	}
	if err != nil {
		return errs.Wrap(errs.ErrDisk, err, "mem disk: read page %d", id)
	}
	return nil
}

func (m *MemDiskManager) WritePage(id page.PageID, src *[page.PageSize]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	off := int64(id) * page.PageSize
	if _, err := m.file.WriteAt(src[:], off); err != nil {
		return errs.Wrap(errs.ErrDisk, err, "mem disk: write page %d", id)
	}
	return nil
}

func (m *MemDiskManager) AllocatePage() page.PageID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.freeIDs); n > 0 {
		id := m.freeIDs[n-1]
		m.freeIDs = m.freeIDs[:n-1]
		return id
	}
	id := page.PageID(atomic.AddInt32(&m.nextID, 1) - 1)
	return id
}

func (m *MemDiskManager) DeallocatePage(id page.PageID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.freeIDs = append(m.freeIDs, id)
}

func (m *MemDiskManager) Shutdown() {}
