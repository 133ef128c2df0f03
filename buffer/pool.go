package buffer

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/relcore/coredb/page"
	"github.com/relcore/coredb/replacer"
	"github.com/relcore/coredb/storage/errs"
)

// BufferPoolManager is the single in-memory cache of disk pages every
// other component (the B+ tree, the header page directory) goes through;
// nothing above this layer touches a DiskManager directly.
type BufferPoolManager struct {
	mu sync.Mutex

	instanceID uuid.UUID
	disk       DiskManager
	replacer   *replacer.LRUReplacer

	frames    []page.Page
	pageTable map[page.PageID]replacer.FrameID
	freeList  []replacer.FrameID
}

// NewBufferPoolManager allocates poolSize frames backed by disk.
func NewBufferPoolManager(poolSize int, disk DiskManager) *BufferPoolManager {
	bpm := &BufferPoolManager{
		instanceID: uuid.New(),
		disk:       disk,
		replacer:   replacer.NewLRUReplacer(poolSize),
		frames:     make([]page.Page, poolSize),
		pageTable:  make(map[page.PageID]replacer.FrameID, poolSize),
		freeList:   make([]replacer.FrameID, poolSize),
	}
	for i := range bpm.frames {
		bpm.frames[i] = *page.NewPage()
		bpm.freeList[i] = replacer.FrameID(i)
	}
	return bpm
}

func (b *BufferPoolManager) InstanceID() uuid.UUID { return b.instanceID }

// findVictim picks a frame to reuse: the free list first, the replacer's
// LRU victim otherwise. Returns false if both are empty, meaning every
// frame is pinned.
func (b *BufferPoolManager) findVictim() (replacer.FrameID, bool) {
	if n := len(b.freeList); n > 0 {
		id := b.freeList[n-1]
		b.freeList = b.freeList[:n-1]
		return id, true
	}
	return b.replacer.Victim()
}

// evict writes a dirty victim frame back to disk and removes its old
// identity from the page table before the frame is reused.
func (b *BufferPoolManager) evict(frameID replacer.FrameID) error {
	old := &b.frames[frameID]
	if old.ID() != page.InvalidPageID {
		if old.IsDirty() {
			if err := b.disk.WritePage(old.ID(), old.Data()); err != nil {
				return err
			}
		}
		delete(b.pageTable, old.ID())
	}
	return nil
}

// FetchPage pins and returns the page for id, reading it from disk on a
// cache miss. The caller must Unpin it exactly once when done.
func (b *BufferPoolManager) FetchPage(id page.PageID) (*page.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frameID, ok := b.pageTable[id]; ok {
		p := &b.frames[frameID]
		if p.PinCount() == 0 {
			b.replacer.Pin(frameID)
		}
		p.IncPinCount()
		return p, nil
	}

	frameID, ok := b.findVictim()
	if !ok {
		return nil, errs.New(errs.ErrOutOfMemory, "buffer pool %s: no free frame to fetch page %d", b.instanceID, id)
	}
	if err := b.evict(frameID); err != nil {
		return nil, err
	}

	p := &b.frames[frameID]
	p.Reset()
	p.SetID(id)
	if err := b.disk.ReadPage(id, p.Data()); err != nil {
		return nil, err
	}
	b.pageTable[id] = frameID
	b.replacer.Pin(frameID)
	p.IncPinCount()
	return p, nil
}

// UnpinPage decrements id's pin count, ORing in dirty. Once the count
// reaches zero the frame becomes an eviction candidate.
func (b *BufferPoolManager) UnpinPage(id page.PageID, dirty bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable[id]
	if !ok {
		return errs.New(errs.ErrNotFound, "buffer pool %s: unpin unknown page %d", b.instanceID, id)
	}
	p := &b.frames[frameID]
	p.SetDirty(dirty)
	if p.PinCount() == 0 {
		return errs.New(errs.ErrInvariant, "buffer pool %s: page %d unpinned while already at zero", b.instanceID, id)
	}
	p.DecPinCount()
	if p.PinCount() == 0 {
		b.replacer.Unpin(frameID)
	}
	return nil
}

// NewPage allocates a fresh page on disk, pins it in a frame, and returns
// it zeroed.
func (b *BufferPoolManager) NewPage() (*page.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.findVictim()
	if !ok {
		return nil, errs.New(errs.ErrOutOfMemory, "buffer pool %s: no free frame for new page", b.instanceID)
	}
	if err := b.evict(frameID); err != nil {
		return nil, err
	}

	id := b.disk.AllocatePage()
	p := &b.frames[frameID]
	p.Reset()
	p.SetID(id)
	b.pageTable[id] = frameID
	b.replacer.Pin(frameID)
	p.IncPinCount()
	return p, nil
}

// DeletePage frees id's disk allocation and its frame, if resident.
// Returns errs.ErrConflict if the page is still pinned.
func (b *BufferPoolManager) DeletePage(id page.PageID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable[id]
	if !ok {
		b.disk.DeallocatePage(id)
		return nil
	}
	p := &b.frames[frameID]
	if p.PinCount() > 0 {
		return errs.New(errs.ErrConflict, "buffer pool %s: page %d still pinned, cannot delete", b.instanceID, id)
	}
	b.replacer.Pin(frameID) // remove from eviction candidacy before reuse
	delete(b.pageTable, id)
	p.Reset()
	b.freeList = append(b.freeList, frameID)
	b.disk.DeallocatePage(id)
	return nil
}

// FlushPage writes id's current contents to disk unconditionally and
// clears its dirty flag.
func (b *BufferPoolManager) FlushPage(id page.PageID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	frameID, ok := b.pageTable[id]
	if !ok {
		return errs.New(errs.ErrNotFound, "buffer pool %s: flush unknown page %d", b.instanceID, id)
	}
	p := &b.frames[frameID]
	if err := b.disk.WritePage(p.ID(), p.Data()); err != nil {
		return err
	}
	p.ClearDirty()
	return nil
}

// FlushAllPages flushes every resident dirty page, then reports the count,
// matching the teacher's one-line shutdown summary.
func (b *BufferPoolManager) FlushAllPages() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	flushed := 0
	for id, frameID := range b.pageTable {
		p := &b.frames[frameID]
		if !p.IsDirty() {
			continue
		}
		if err := b.disk.WritePage(id, p.Data()); err != nil {
			return err
		}
		p.ClearDirty()
		flushed++
	}
	fmt.Printf("buffer pool %s: %d dirty pages flushed\n", b.instanceID, flushed)
	return nil
}
