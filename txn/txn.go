// Package txn defines the transaction handle the lock manager and B+ tree
// operate on, and the registry that hands out transaction ids.
package txn

import "sync"

// IsolationLevel controls which locks GetValue/InsertEntry skip, per the
// lock manager's pre-acquisition checks.
type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
)

// State tracks a transaction's position in the two-phase locking
// protocol: growing while it may still acquire locks, shrinking once it
// has released its first one (under RepeatableRead only), and terminal
// once committed or aborted.
type State int

const (
	Growing State = iota
	Shrinking
	Committed
	Aborted
)

// LockMode is the granted or requested mode for a single lock request.
type LockMode int

const (
	Shared LockMode = iota
	Exclusive
)

// ID identifies a transaction for the lifetime of the process.
type ID int64

// Transaction is the handle every lock acquisition, B+ tree operation,
// and commit/abort call is keyed on.
type Transaction struct {
	mu sync.Mutex

	id        ID
	isolation IsolationLevel
	state     State

	sharedLocks    map[string]struct{}
	exclusiveLocks map[string]struct{}
}

func newTransaction(id ID, isolation IsolationLevel) *Transaction {
	return &Transaction{
		id:             id,
		isolation:      isolation,
		state:          Growing,
		sharedLocks:    make(map[string]struct{}),
		exclusiveLocks: make(map[string]struct{}),
	}
}

func (t *Transaction) ID() ID                       { return t.id }
func (t *Transaction) IsolationLevel() IsolationLevel { return t.isolation }

func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) SetState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

// RecordLock notes that key is held in mode, for IsHeld lookups and for
// Manager.Unlock's bookkeeping at commit/abort.
func (t *Transaction) RecordLock(key string, mode LockMode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch mode {
	case Shared:
		t.sharedLocks[key] = struct{}{}
	case Exclusive:
		t.exclusiveLocks[key] = struct{}{}
	}
}

// IsHeld reports whether this transaction already holds key in mode,
// letting the lock manager short-circuit a redundant re-acquisition.
func (t *Transaction) IsHeld(key string, mode LockMode) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch mode {
	case Shared:
		_, ok := t.sharedLocks[key]
		return ok
	case Exclusive:
		_, ok := t.exclusiveLocks[key]
		return ok
	}
	return false
}

func (t *Transaction) ForgetLock(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sharedLocks, key)
	delete(t.exclusiveLocks, key)
}

// HeldLocks returns a snapshot of every key this transaction currently
// holds a lock on, shared or exclusive, for Unlock-all-on-commit/abort.
func (t *Transaction) HeldLocks() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.sharedLocks)+len(t.exclusiveLocks))
	for k := range t.sharedLocks {
		keys = append(keys, k)
	}
	for k := range t.exclusiveLocks {
		keys = append(keys, k)
	}
	return keys
}

// Manager hands out fresh transactions and looks existing ones up by id,
// resolving the "how does a lock manager find the transaction that owns a
// queued request" question with an explicit registry handle rather than a
// process-global lookup table.
type Manager struct {
	mu      sync.Mutex
	nextID  ID
	active  map[ID]*Transaction
}

func NewManager() *Manager {
	return &Manager{active: make(map[ID]*Transaction)}
}

// Begin starts a new transaction at the given isolation level.
func (m *Manager) Begin(isolation IsolationLevel) *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t := newTransaction(m.nextID, isolation)
	m.active[t.id] = t
	return t
}

// Lookup returns the transaction registered under id, if still active.
func (m *Manager) Lookup(id ID) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.active[id]
	return t, ok
}

// Commit marks txn committed and drops it from the active registry.
func (m *Manager) Commit(t *Transaction) {
	t.SetState(Committed)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, t.id)
}

// Abort marks txn aborted and drops it from the active registry.
func (m *Manager) Abort(t *Transaction) {
	t.SetState(Aborted)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, t.id)
}
