package index

import "github.com/relcore/coredb/page"

// Iterator walks a tree's leaves left to right in key order. It holds a
// shared latch and a pin on exactly one leaf at a time; Next releases the
// previous leaf before fetching the next one rather than holding every
// visited leaf pinned for the iterator's lifetime.
type Iterator struct {
	t    *BPlusTree
	cur  *page.Page
	leaf *page.LeafPage
	idx  int32
	done bool
}

// Iterator returns a cursor positioned at the tree's smallest key.
func (t *BPlusTree) Iterator() (*Iterator, error) {
	rootID, err := t.getRootID()
	if err != nil {
		return nil, err
	}
	if rootID == page.InvalidPageID {
		return &Iterator{t: t, done: true}, nil
	}
	cur, err := t.bpm.FetchPage(rootID)
	if err != nil {
		return nil, err
	}
	cur.Latch.RLock()
	for nodeTypeOf(cur) == page.InternalNodeType {
		internal := page.WrapInternal(cur)
		childID := internal.ValueAt(0)
		child, err := t.bpm.FetchPage(childID)
		if err != nil {
			t.releaseRead(cur)
			return nil, err
		}
		child.Latch.RLock()
		t.releaseRead(cur)
		cur = child
	}
	return &Iterator{t: t, cur: cur, leaf: page.WrapLeaf(cur), idx: 0}, nil
}

// IteratorFrom returns a cursor positioned at the first key >= from.
func (t *BPlusTree) IteratorFrom(from int64) (*Iterator, error) {
	rootID, err := t.getRootID()
	if err != nil {
		return nil, err
	}
	if rootID == page.InvalidPageID {
		return &Iterator{t: t, done: true}, nil
	}
	cur, err := t.bpm.FetchPage(rootID)
	if err != nil {
		return nil, err
	}
	cur.Latch.RLock()
	for nodeTypeOf(cur) == page.InternalNodeType {
		internal := page.WrapInternal(cur)
		childID := internal.Lookup(from)
		child, err := t.bpm.FetchPage(childID)
		if err != nil {
			t.releaseRead(cur)
			return nil, err
		}
		child.Latch.RLock()
		t.releaseRead(cur)
		cur = child
	}
	leaf := page.WrapLeaf(cur)
	it := &Iterator{t: t, cur: cur, leaf: leaf, idx: leaf.KeyIndex(from)}
	it.skipToValid()
	return it, nil
}

// skipToValid advances across empty/exhausted leaves until a valid entry
// is positioned under idx, or the iterator is exhausted.
func (it *Iterator) skipToValid() {
	for !it.done && it.idx >= it.leaf.Size() {
		next := it.leaf.NextPageID()
		it.t.releaseRead(it.cur)
		if next == page.InvalidPageID {
			it.cur, it.leaf, it.done = nil, nil, true
			return
		}
		np, err := it.t.bpm.FetchPage(next)
		if err != nil {
			it.cur, it.leaf, it.done = nil, nil, true
			return
		}
		np.Latch.RLock()
		it.cur = np
		it.leaf = page.WrapLeaf(np)
		it.idx = 0
	}
}

// Valid reports whether the cursor is positioned at an entry.
func (it *Iterator) Valid() bool { return !it.done }

// Key and RID return the entry under the cursor; only valid when Valid().
func (it *Iterator) Key() int64    { return it.leaf.KeyAt(it.idx) }
func (it *Iterator) RID() page.RID { return it.leaf.RIDAt(it.idx) }

// Next advances the cursor, unpinning the previous leaf as soon as the
// walk follows its next-page pointer off the end.
func (it *Iterator) Next() {
	if it.done {
		return
	}
	it.idx++
	it.skipToValid()
}

// Close releases the iterator's currently held latch/pin, if any. Callers
// that run an iterator to exhaustion need not call this; it only matters
// for an iterator abandoned early.
func (it *Iterator) Close() {
	if !it.done && it.cur != nil {
		it.t.releaseRead(it.cur)
		it.cur, it.leaf, it.done = nil, nil, true
	}
}
