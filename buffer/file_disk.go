package buffer

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/ncw/directio"
	"github.com/relcore/coredb/page"
	"github.com/relcore/coredb/storage/errs"
)

// FileDiskManager is a DiskManager backed by a single data file opened
// with O_DIRECT, bypassing the OS page cache the way the teacher's
// buffer manager does: the buffer pool above is the only cache this
// process keeps of a page's contents.
type FileDiskManager struct {
	mu      sync.Mutex
	f       *os.File
	nextID  int32
	freeIDs []page.PageID
}

// NewFileDiskManager opens (creating if absent) path as an aligned,
// unbuffered data file. page.PageSize must be a multiple of
// directio.BlockSize for aligned reads/writes to succeed.
func NewFileDiskManager(path string) (*FileDiskManager, error) {
	f, err := directio.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errs.Wrap(errs.ErrDisk, err, "file disk: open %q", path)
	}
	fi, err := f.Stat()
	if err != nil {
		return nil, errs.Wrap(errs.ErrDisk, err, "file disk: stat %q", path)
	}
	nextID := int32(fi.Size() / page.PageSize)
	if nextID < 1 {
		nextID = 1 // page 0 reserved for the header page
	}
	return &FileDiskManager{f: f, nextID: nextID}, nil
}

func (d *FileDiskManager) ReadPage(id page.PageID, dst *[page.PageSize]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	block := directio.AlignedBlock(page.PageSize)
	off := int64(id) * page.PageSize
	n, err := d.f.ReadAt(block, off)
	if err != nil && n == 0 {
		for i := range dst {
			dst[i] = 0
		}
		return nil
	}
	if err != nil {
		return errs.Wrap(errs.ErrDisk, err, "file disk: read page %d", id)
	}
	copy(dst[:], block)
	return nil
}

func (d *FileDiskManager) WritePage(id page.PageID, src *[page.PageSize]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	block := directio.AlignedBlock(page.PageSize)
	copy(block, src[:])
	off := int64(id) * page.PageSize
	if _, err := d.f.WriteAt(block, off); err != nil {
		return errs.Wrap(errs.ErrDisk, err, "file disk: write page %d", id)
	}
	return nil
}

func (d *FileDiskManager) AllocatePage() page.PageID {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n := len(d.freeIDs); n > 0 {
		id := d.freeIDs[n-1]
		d.freeIDs = d.freeIDs[:n-1]
		return id
	}
	return page.PageID(atomic.AddInt32(&d.nextID, 1) - 1)
}

func (d *FileDiskManager) DeallocatePage(id page.PageID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.freeIDs = append(d.freeIDs, id)
}

func (d *FileDiskManager) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.f.Close()
}
