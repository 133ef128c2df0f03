// Package coredb wires the buffer pool, lock manager, and B+ tree index
// layer into a single embeddable storage engine.
package coredb

import (
	"fmt"
	"sync"

	"github.com/relcore/coredb/buffer"
	"github.com/relcore/coredb/config"
	"github.com/relcore/coredb/index"
	"github.com/relcore/coredb/lock"
	"github.com/relcore/coredb/page"
	"github.com/relcore/coredb/txn"
)

// Engine owns one buffer pool, one lock manager and its deadlock
// detector, one transaction registry, and every named B+ tree index
// opened against them.
type Engine struct {
	mu sync.Mutex

	cfg      *config.EngineConfig
	bpm      *buffer.BufferPoolManager
	disk     buffer.DiskManager
	locks    *lock.Manager
	detector *lock.DeadlockDetector
	txns     *txn.Manager
	indices  map[string]*index.BPlusTree
}

// Open starts an engine from cfg: an in-memory disk manager when
// cfg.InMemory is set, otherwise a durable O_DIRECT-backed file at
// cfg.DataFilePath.
func Open(cfg *config.EngineConfig) (*Engine, error) {
	var disk buffer.DiskManager
	if cfg.InMemory {
		disk = buffer.NewMemDiskManager()
	} else {
		fd, err := buffer.NewFileDiskManager(cfg.DataFilePath)
		if err != nil {
			return nil, err
		}
		disk = fd
	}

	bpm := buffer.NewBufferPoolManager(cfg.PoolSize, disk)
	if err := initHeaderPage(bpm); err != nil {
		return nil, err
	}

	txns := txn.NewManager()
	locks := lock.NewManager()
	cronSpec := fmt.Sprintf("@every %s", cfg.DeadlockDetectorPeriod)
	detector, err := lock.NewDeadlockDetector(locks, txns, cronSpec)
	if err != nil {
		return nil, err
	}
	detector.Start()

	return &Engine{
		cfg:      cfg,
		bpm:      bpm,
		disk:     disk,
		locks:    locks,
		detector: detector,
		txns:     txns,
		indices:  make(map[string]*index.BPlusTree),
	}, nil
}

// initHeaderPage formats page 0 as the index-name -> root-page-id
// directory, but only the first time it's touched: a zero record count
// is indistinguishable from a freshly zeroed page, which is exactly the
// state a brand-new data file reads as. Reopening an existing file
// leaves its directory untouched.
func initHeaderPage(bpm *buffer.BufferPoolManager) error {
	hp, err := bpm.FetchPage(page.HeaderPageID)
	if err != nil {
		return err
	}
	h := page.WrapHeader(hp)
	if h.RecordCount() == 0 {
		h.Init()
		hp.SetDirty(true)
	}
	return bpm.UnpinPage(hp.ID(), true)
}

// Index returns the named B+ tree, opening it against this engine's
// buffer pool on first use.
func (e *Engine) Index(name string) *index.BPlusTree {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.indices[name]; ok {
		return t
	}
	t := index.NewBPlusTree(name, e.bpm, e.cfg.LeafMaxSize, e.cfg.InternalMaxSize)
	e.indices[name] = t
	return t
}

// Begin starts a new transaction at the engine's default isolation level.
func (e *Engine) Begin() *txn.Transaction {
	return e.txns.Begin(e.cfg.DefaultIsolation)
}

// BeginAt starts a new transaction at the given isolation level.
func (e *Engine) BeginAt(level txn.IsolationLevel) *txn.Transaction {
	return e.txns.Begin(level)
}

// Commit releases every lock t holds and marks it committed.
func (e *Engine) Commit(t *txn.Transaction) {
	e.locks.UnlockAll(t)
	e.txns.Commit(t)
}

// Abort releases every lock t holds and marks it aborted.
func (e *Engine) Abort(t *txn.Transaction) {
	e.locks.UnlockAll(t)
	e.txns.Abort(t)
}

// Locks exposes the engine's lock manager for callers that need explicit
// shared/exclusive acquisition around an index operation (e.g. a caller
// coordinating reads and writes to the same RID across several trees).
func (e *Engine) Locks() *lock.Manager { return e.locks }

// Close flushes every dirty page, stops the deadlock detector, and
// releases the disk backend.
func (e *Engine) Close() error {
	e.detector.Stop()
	if err := e.bpm.FlushAllPages(); err != nil {
		return err
	}
	e.disk.Shutdown()
	return nil
}
