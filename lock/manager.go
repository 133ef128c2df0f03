// Package lock implements wound-wait two-phase locking over arbitrary
// resource keys (this module locks by RID).
package lock

import (
	"fmt"
	"sync"

	"github.com/relcore/coredb/page"
	"github.com/relcore/coredb/storage/errs"
	"github.com/relcore/coredb/txn"
)

// request is one transaction's granted or pending interest in a resource.
type request struct {
	txnID   txn.ID
	txn     *txn.Transaction
	mode    txn.LockMode
	granted bool
}

// queue is the wait/grant list for a single resource key.
type queue struct {
	cond     *sync.Cond
	requests []*request
}

func newQueue(mu *sync.Mutex) *queue {
	return &queue{cond: sync.NewCond(mu)}
}

func (q *queue) granted() []*request {
	out := make([]*request, 0, len(q.requests))
	for _, r := range q.requests {
		if r.granted {
			out = append(out, r)
		}
	}
	return out
}

func (q *queue) remove(id txn.ID) {
	kept := q.requests[:0]
	for _, r := range q.requests {
		if r.txnID != id {
			kept = append(kept, r)
		}
	}
	q.requests = kept
}

// Manager grants and releases locks on RIDs under wound-wait, preventing
// deadlock by never letting an older transaction wait on a younger one:
// an older requester wounds younger conflicting holders, a younger shared
// requester waits behind an older exclusive holder, and a younger
// exclusive or upgrade requester is aborted.
type Manager struct {
	mu      sync.Mutex
	queues  map[string]*queue
}

func NewManager() *Manager {
	return &Manager{queues: make(map[string]*queue)}
}

func keyOf(rid page.RID) string {
	return fmt.Sprintf("%d:%d", rid.PageID, rid.Slot)
}

func (m *Manager) queueFor(key string) *queue {
	q, ok := m.queues[key]
	if !ok {
		q = newQueue(&m.mu)
		m.queues[key] = q
	}
	return q
}

// WaitForGraph returns, for the detector's use, a snapshot of every
// resource's granted holders and blocked waiters.
func (m *Manager) WaitForGraph() map[string]([2][]txn.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][2][]txn.ID, len(m.queues))
	for key, q := range m.queues {
		var holders, waiters []txn.ID
		for _, r := range q.requests {
			if r.granted {
				holders = append(holders, r.txnID)
			} else {
				waiters = append(waiters, r.txnID)
			}
		}
		out[key] = [2][]txn.ID{holders, waiters}
	}
	return out
}

// precheck enforces isolation-level lock acquisition rules shared by
// every lock call: READ_UNCOMMITTED never takes shared locks, and no
// transaction may acquire a new lock once it has entered SHRINKING.
func precheck(t *txn.Transaction, mode txn.LockMode) error {
	if t.State() == txn.Aborted || t.State() == txn.Committed {
		return errs.New(errs.ErrConflict, "txn %d: cannot acquire lock, transaction already ended", t.ID())
	}
	if mode == txn.Shared && t.IsolationLevel() == txn.ReadUncommitted {
		return errs.New(errs.ErrConflict, "txn %d: READ_UNCOMMITTED never takes shared locks", t.ID())
	}
	if t.State() == txn.Shrinking {
		t.SetState(txn.Aborted)
		return errs.New(errs.ErrConflict, "txn %d: lock requested after entering shrinking phase", t.ID())
	}
	return nil
}

// LockShared grants txn a shared lock on rid, waiting behind any granted
// exclusive holder. Standard wound-wait: an older requester wounds
// younger exclusive holders out of its way; a younger requester waits.
func (m *Manager) LockShared(t *txn.Transaction, rid page.RID) error {
	if err := precheck(t, txn.Shared); err != nil {
		return err
	}
	key := keyOf(rid)
	if t.IsHeld(key, txn.Shared) || t.IsHeld(key, txn.Exclusive) {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queueFor(key)
	req := &request{txnID: t.ID(), txn: t, mode: txn.Shared}
	q.requests = append(q.requests, req)

	for {
		blocked := false
		for _, g := range q.granted() {
			if g.mode != txn.Exclusive || g.txnID == t.ID() {
				continue
			}
			if t.ID() < g.txnID {
				// requester is older: wound the younger holder
				g.txn.SetState(txn.Aborted)
				q.remove(g.txnID)
				q.cond.Broadcast()
			} else {
				blocked = true
			}
		}
		if !blocked {
			break
		}
		q.cond.Wait()
		if t.State() == txn.Aborted {
			q.remove(t.ID())
			return errs.New(errs.ErrConflict, "txn %d: wounded while waiting for shared lock", t.ID())
		}
	}

	req.granted = true
	t.RecordLock(key, txn.Shared)
	return nil
}

// LockExclusive grants txn an exclusive lock on rid. Deliberately
// stricter than textbook wound-wait: rather than queue behind an older
// holder, the requester is aborted outright whenever any currently
// granted holder is older than it. Only when the requester is older than
// every granted holder does it proceed, wounding the rest.
func (m *Manager) LockExclusive(t *txn.Transaction, rid page.RID) error {
	if err := precheck(t, txn.Exclusive); err != nil {
		return err
	}
	key := keyOf(rid)
	if t.IsHeld(key, txn.Exclusive) {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queueFor(key)

	for _, g := range q.granted() {
		if g.txnID == t.ID() {
			continue
		}
		if g.txnID < t.ID() {
			t.SetState(txn.Aborted)
			return errs.New(errs.ErrConflict, "txn %d: aborted, older holder %d already granted", t.ID(), g.txnID)
		}
	}
	for _, g := range q.granted() {
		if g.txnID == t.ID() {
			continue
		}
		g.txn.SetState(txn.Aborted)
		q.remove(g.txnID)
	}
	q.cond.Broadcast()

	q.requests = append(q.requests, &request{txnID: t.ID(), txn: t, mode: txn.Exclusive, granted: true})
	t.RecordLock(key, txn.Exclusive)
	return nil
}

// LockUpgrade promotes txn's existing shared lock on rid to exclusive,
// under the same stricter older-holder-aborts-requester policy as
// LockExclusive.
func (m *Manager) LockUpgrade(t *txn.Transaction, rid page.RID) error {
	if err := precheck(t, txn.Exclusive); err != nil {
		return err
	}
	key := keyOf(rid)

	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queueFor(key)

	for _, g := range q.granted() {
		if g.txnID == t.ID() {
			continue
		}
		if g.txnID < t.ID() {
			t.SetState(txn.Aborted)
			return errs.New(errs.ErrConflict, "txn %d: upgrade aborted, older holder %d already granted", t.ID(), g.txnID)
		}
	}
	for _, g := range q.granted() {
		if g.txnID == t.ID() {
			continue
		}
		g.txn.SetState(txn.Aborted)
		q.remove(g.txnID)
	}
	q.cond.Broadcast()

	q.remove(t.ID())
	q.requests = append(q.requests, &request{txnID: t.ID(), txn: t, mode: txn.Exclusive, granted: true})
	t.RecordLock(key, txn.Exclusive)
	return nil
}

// Unlock releases txn's lock on rid and transitions it into SHRINKING
// under REPEATABLE_READ (the first unlock ends the growing phase); under
// READ_COMMITTED/READ_UNCOMMITTED locks may be released at any time
// without affecting phase.
func (m *Manager) Unlock(t *txn.Transaction, rid page.RID) error {
	key := keyOf(rid)

	m.mu.Lock()
	q, ok := m.queues[key]
	if !ok {
		m.mu.Unlock()
		return errs.New(errs.ErrNotFound, "txn %d: unlock on untracked resource", t.ID())
	}
	q.remove(t.ID())
	q.cond.Broadcast()
	if len(q.requests) == 0 {
		delete(m.queues, key)
	}
	m.mu.Unlock()

	t.ForgetLock(key)
	if t.IsolationLevel() == txn.RepeatableRead && t.State() == txn.Growing {
		t.SetState(txn.Shrinking)
	}
	return nil
}

// UnlockAll releases every lock txn holds, e.g. on commit or abort.
func (m *Manager) UnlockAll(t *txn.Transaction) {
	for _, key := range t.HeldLocks() {
		var rid page.RID
		fmt.Sscanf(key, "%d:%d", &rid.PageID, &rid.Slot)
		_ = m.Unlock(t, rid)
	}
}
