// Package buffer implements the disk-backed, fixed-size buffer pool that
// sits between the B+ tree and whichever DiskManager backend is wired in.
package buffer

import "github.com/relcore/coredb/page"

// DiskManager is the storage backend a BufferPoolManager reads pages from
// and writes pages to. Two implementations are provided: MemDiskManager
// for tests and throwaway engines, FileDiskManager for a durable,
// O_DIRECT-backed data file.
type DiskManager interface {
	ReadPage(id page.PageID, dst *[page.PageSize]byte) error
	WritePage(id page.PageID, src *[page.PageSize]byte) error
	AllocatePage() page.PageID
	DeallocatePage(id page.PageID)
	Shutdown()
}
