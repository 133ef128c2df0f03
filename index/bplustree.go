// Package index implements a disk-backed B+ tree keyed on int64, using
// latch crabbing over a buffer.BufferPoolManager for concurrent access.
package index

import (
	"sync"

	"github.com/relcore/coredb/buffer"
	"github.com/relcore/coredb/page"
	"github.com/relcore/coredb/storage/errs"
)

// BPlusTree is one named index within an engine; its root page id lives
// in the shared header page (page 0) keyed by name, so several trees can
// share one buffer pool and disk file.
type BPlusTree struct {
	mu sync.Mutex // guards first-insert root creation only

	name            string
	bpm             *buffer.BufferPoolManager
	leafMaxSize     int32
	internalMaxSize int32
}

// NewBPlusTree returns a handle for the named tree, creating its header
// page directory entry lazily on first insert.
func NewBPlusTree(name string, bpm *buffer.BufferPoolManager, leafMaxSize, internalMaxSize int32) *BPlusTree {
	return &BPlusTree{name: name, bpm: bpm, leafMaxSize: leafMaxSize, internalMaxSize: internalMaxSize}
}

func nodeTypeOf(p *page.Page) page.NodeType {
	var h page.Header
	_ = h.UnmarshalBinary(p.Data()[:])
	return h.PageType
}

func minSize(maxSize int32) int32 { return (maxSize + 1) / 2 }

func (t *BPlusTree) getRootID() (page.PageID, error) {
	hp, err := t.bpm.FetchPage(page.HeaderPageID)
	if err != nil {
		return page.InvalidPageID, err
	}
	defer t.bpm.UnpinPage(page.HeaderPageID, false)
	h := page.WrapHeader(hp)
	id, ok := h.GetRootID(t.name)
	if !ok {
		return page.InvalidPageID, nil
	}
	return id, nil
}

func (t *BPlusTree) setRootID(id page.PageID, firstTime bool) error {
	hp, err := t.bpm.FetchPage(page.HeaderPageID)
	if err != nil {
		return err
	}
	defer t.bpm.UnpinPage(page.HeaderPageID, true)
	h := page.WrapHeader(hp)
	if firstTime {
		return h.InsertRootID(t.name, id)
	}
	return h.UpdateRootID(t.name, id)
}

// IsEmpty reports whether the tree has no root yet.
func (t *BPlusTree) IsEmpty() (bool, error) {
	id, err := t.getRootID()
	if err != nil {
		return false, err
	}
	return id == page.InvalidPageID, nil
}

func (t *BPlusTree) setParent(childID, parentID page.PageID) error {
	p, err := t.bpm.FetchPage(childID)
	if err != nil {
		return err
	}
	switch nodeTypeOf(p) {
	case page.LeafNodeType:
		page.WrapLeaf(p).SetParentPageID(parentID)
	case page.InternalNodeType:
		page.WrapInternal(p).SetParentPageID(parentID)
	default:
		return errs.New(errs.ErrInvariant, "index %s: page %d has unknown node type", t.name, childID)
	}
	return t.bpm.UnpinPage(childID, true)
}

func (t *BPlusTree) releaseRead(p *page.Page) {
	p.Latch.RUnlock()
	_ = t.bpm.UnpinPage(p.ID(), false)
}

func (t *BPlusTree) releaseWrite(p *page.Page, dirty bool) {
	p.Latch.Unlock()
	_ = t.bpm.UnpinPage(p.ID(), dirty)
}

// fetchRootLocked fetches and latches the tree's current root, re-reading
// the root id from the header if a concurrent root split swapped in a new
// root between the read and the latch: the page named by the stale id is
// still latchable (it survives as the new root's child), so a descender
// that didn't re-check would silently search only half the keyspace.
// Returns (nil, nil) if the tree is empty.
func (t *BPlusTree) fetchRootLocked(write bool) (*page.Page, error) {
	for {
		rootID, err := t.getRootID()
		if err != nil {
			return nil, err
		}
		if rootID == page.InvalidPageID {
			return nil, nil
		}

		cur, err := t.bpm.FetchPage(rootID)
		if err != nil {
			return nil, err
		}
		if write {
			cur.Latch.Lock()
		} else {
			cur.Latch.RLock()
		}

		stillRoot := nodeParentPageID(cur) == page.InvalidPageID
		if stillRoot {
			return cur, nil
		}
		if write {
			t.releaseWrite(cur, false)
		} else {
			t.releaseRead(cur)
		}
	}
}

func nodeParentPageID(p *page.Page) page.PageID {
	switch nodeTypeOf(p) {
	case page.LeafNodeType:
		return page.WrapLeaf(p).ParentPageID()
	case page.InternalNodeType:
		return page.WrapInternal(p).ParentPageID()
	}
	return page.InvalidPageID
}

// GetValue performs a read-only point lookup, releasing each ancestor's
// shared latch the moment its child is latched: a reader never holds more
// than two page latches at once.
func (t *BPlusTree) GetValue(key int64) (page.RID, bool, error) {
	cur, err := t.fetchRootLocked(false)
	if err != nil {
		return page.RID{}, false, err
	}
	if cur == nil {
		return page.RID{}, false, nil
	}

	for nodeTypeOf(cur) == page.InternalNodeType {
		internal := page.WrapInternal(cur)
		childID := internal.Lookup(key)
		child, err := t.bpm.FetchPage(childID)
		if err != nil {
			t.releaseRead(cur)
			return page.RID{}, false, err
		}
		child.Latch.RLock()
		t.releaseRead(cur)
		cur = child
	}

	leaf := page.WrapLeaf(cur)
	rid, ok := leaf.Lookup(key)
	t.releaseRead(cur)
	return rid, ok, nil
}

// isSafeForInsert reports whether p can absorb one more entry without its
// size exceeding max_size, matching spec's split trigger of size > max_size
// rather than a node's size ever being capped below max_size.
func isSafeForInsert(p *page.Page) bool {
	switch nodeTypeOf(p) {
	case page.LeafNodeType:
		l := page.WrapLeaf(p)
		return l.Size() < l.MaxSize()
	case page.InternalNodeType:
		n := page.WrapInternal(p)
		return n.Size() < n.MaxSize()
	}
	return false
}

// isSafeForDelete reports whether p can lose an entry without dropping
// below its minimum occupancy. The root is exempt from the minimum (it
// collapses by its own rule instead), but this is only ever called on a
// node one level below an already-visited ancestor, never on the root
// itself.
func isSafeForDelete(p *page.Page) bool {
	switch nodeTypeOf(p) {
	case page.LeafNodeType:
		l := page.WrapLeaf(p)
		return l.Size() > minSize(l.MaxSize())
	case page.InternalNodeType:
		n := page.WrapInternal(p)
		return n.Size() > minSize(n.MaxSize())
	}
	return false
}

// descend walks from root to the target leaf under write latches. When a
// child proves safe, every held ancestor above that child's parent is
// released: a split or merge can only ever propagate up to the first safe
// node. The safe child's parent stays held, so the returned ancestors are
// empty only when the leaf is the root.
func (t *BPlusTree) descend(key int64, safe func(*page.Page) bool) (*page.Page, []*page.Page, error) {
	cur, err := t.fetchRootLocked(true)
	if err != nil {
		return nil, nil, err
	}
	if cur == nil {
		return nil, nil, errs.New(errs.ErrInvariant, "index %s: root vanished during descent", t.name)
	}

	var ancestors []*page.Page
	for nodeTypeOf(cur) == page.InternalNodeType {
		internal := page.WrapInternal(cur)
		childID := internal.Lookup(key)
		child, err := t.bpm.FetchPage(childID)
		if err != nil {
			for _, a := range ancestors {
				t.releaseWrite(a, false)
			}
			t.releaseWrite(cur, false)
			return nil, nil, err
		}
		child.Latch.Lock()
		if safe(child) {
			for _, a := range ancestors {
				t.releaseWrite(a, false)
			}
			ancestors = ancestors[:0]
		}
		ancestors = append(ancestors, cur)
		cur = child
	}
	return cur, ancestors, nil
}

// Insert adds (key, rid). Returns false without error if key already
// exists: keys are unique.
func (t *BPlusTree) Insert(key int64, rid page.RID) (bool, error) {
	t.mu.Lock()
	rootID, err := t.getRootID()
	if err != nil {
		t.mu.Unlock()
		return false, err
	}
	if rootID == page.InvalidPageID {
		defer t.mu.Unlock()
		leafPage, err := t.bpm.NewPage()
		if err != nil {
			return false, err
		}
		leaf := page.WrapLeaf(leafPage)
		leaf.Init(leafPage.ID(), page.InvalidPageID, t.leafMaxSize)
		leaf.Insert(key, rid)
		leafPage.SetDirty(true)
		if err := t.setRootID(leafPage.ID(), true); err != nil {
			t.bpm.UnpinPage(leafPage.ID(), true)
			return false, err
		}
		return true, t.bpm.UnpinPage(leafPage.ID(), true)
	}
	t.mu.Unlock()

	leaf, ancestors, err := t.descend(key, isSafeForInsert)
	if err != nil {
		return false, err
	}
	lp := page.WrapLeaf(leaf)
	if !lp.Insert(key, rid) {
		t.releaseWrite(leaf, false)
		for _, a := range ancestors {
			t.releaseWrite(a, false)
		}
		return false, nil
	}
	leaf.SetDirty(true)

	if lp.Size() <= lp.MaxSize() {
		t.releaseWrite(leaf, true)
		for _, a := range ancestors {
			t.releaseWrite(a, false)
		}
		return true, nil
	}
	return true, t.splitLeaf(leaf, lp, ancestors)
}

func (t *BPlusTree) splitLeaf(leaf *page.Page, lp *page.LeafPage, ancestors []*page.Page) error {
	newLeafPage, err := t.bpm.NewPage()
	if err != nil {
		return err
	}
	newLeaf := page.WrapLeaf(newLeafPage)
	newLeaf.Init(newLeafPage.ID(), leaf.ID(), t.leafMaxSize)
	lp.MoveHalfTo(newLeaf)
	separator := newLeaf.KeyAt(0)
	newLeafPage.SetDirty(true)

	if len(ancestors) == 0 {
		newRootPage, err := t.bpm.NewPage()
		if err != nil {
			return err
		}
		newRoot := page.WrapInternal(newRootPage)
		newRoot.InitRoot(newRootPage.ID(), leaf.ID(), separator, newLeafPage.ID(), t.internalMaxSize)
		lp.SetParentPageID(newRootPage.ID())
		newLeaf.SetParentPageID(newRootPage.ID())
		newRootPage.SetDirty(true)
		if err := t.setRootID(newRootPage.ID(), false); err != nil {
			return err
		}
		t.releaseWrite(leaf, true)
		_ = t.bpm.UnpinPage(newLeafPage.ID(), true)
		return t.bpm.UnpinPage(newRootPage.ID(), true)
	}

	parent := ancestors[len(ancestors)-1]
	parentIP := page.WrapInternal(parent)
	newLeaf.SetParentPageID(parent.ID())
	parentIP.InsertAfter(leaf.ID(), separator, newLeafPage.ID())
	parent.SetDirty(true)
	t.releaseWrite(leaf, true)
	_ = t.bpm.UnpinPage(newLeafPage.ID(), true)
	return t.propagateInternalSplit(ancestors)
}

// propagateInternalSplit is called with ancestors[len-1] holding a node
// that just gained a new child; it splits that node further up the chain
// as long as each level overflows, and releases every ancestor it visits.
func (t *BPlusTree) propagateInternalSplit(ancestors []*page.Page) error {
	cur := ancestors[len(ancestors)-1]
	rest := ancestors[:len(ancestors)-1]
	ip := page.WrapInternal(cur)

	if ip.Size() <= ip.MaxSize() {
		t.releaseWrite(cur, true)
		for _, a := range rest {
			t.releaseWrite(a, false)
		}
		return nil
	}

	mid := ip.Size() / 2
	separatorKey := ip.KeyAt(mid)

	newInternalPage, err := t.bpm.NewPage()
	if err != nil {
		return err
	}
	newInternal := page.WrapInternal(newInternalPage)
	newInternal.Init(newInternalPage.ID(), page.InvalidPageID, t.internalMaxSize)
	ip.MoveHalfTo(newInternal)
	newInternalPage.SetDirty(true)

	for i := int32(0); i < newInternal.Size(); i++ {
		if err := t.setParent(newInternal.ValueAt(i), newInternalPage.ID()); err != nil {
			return err
		}
	}

	if len(rest) == 0 {
		newRootPage, err := t.bpm.NewPage()
		if err != nil {
			return err
		}
		newRoot := page.WrapInternal(newRootPage)
		newRoot.InitRoot(newRootPage.ID(), cur.ID(), separatorKey, newInternalPage.ID(), t.internalMaxSize)
		ip.SetParentPageID(newRootPage.ID())
		newInternal.SetParentPageID(newRootPage.ID())
		newRootPage.SetDirty(true)
		if err := t.setRootID(newRootPage.ID(), false); err != nil {
			return err
		}
		t.releaseWrite(cur, true)
		_ = t.bpm.UnpinPage(newInternalPage.ID(), true)
		return t.bpm.UnpinPage(newRootPage.ID(), true)
	}

	parent := rest[len(rest)-1]
	parentIP := page.WrapInternal(parent)
	newInternal.SetParentPageID(parent.ID())
	parentIP.InsertAfter(cur.ID(), separatorKey, newInternalPage.ID())
	parent.SetDirty(true)
	t.releaseWrite(cur, true)
	_ = t.bpm.UnpinPage(newInternalPage.ID(), true)
	return t.propagateInternalSplit(rest)
}

// Remove deletes key's entry. Returns false without error if key was not
// present.
func (t *BPlusTree) Remove(key int64) (bool, error) {
	rootID, err := t.getRootID()
	if err != nil {
		return false, err
	}
	if rootID == page.InvalidPageID {
		return false, nil
	}

	leaf, ancestors, err := t.descend(key, isSafeForDelete)
	if err != nil {
		return false, err
	}
	lp := page.WrapLeaf(leaf)
	if !lp.RemoveByKey(key) {
		t.releaseWrite(leaf, false)
		for _, a := range ancestors {
			t.releaseWrite(a, false)
		}
		return false, nil
	}
	leaf.SetDirty(true)

	if len(ancestors) == 0 {
		if lp.Size() == 0 {
			id := leaf.ID()
			t.releaseWrite(leaf, true)
			_ = t.setRootID(page.InvalidPageID, false)
			return true, t.bpm.DeletePage(id)
		}
		t.releaseWrite(leaf, true)
		return true, nil
	}

	if lp.Size() >= minSize(lp.MaxSize()) {
		t.releaseWrite(leaf, true)
		for _, a := range ancestors {
			t.releaseWrite(a, false)
		}
		return true, nil
	}

	return true, t.fixLeafUnderflow(leaf, lp, ancestors)
}

func (t *BPlusTree) fixLeafUnderflow(leaf *page.Page, lp *page.LeafPage, ancestors []*page.Page) error {
	parent := ancestors[len(ancestors)-1]
	parentIP := page.WrapInternal(parent)
	idx := parentIP.IndexOf(leaf.ID())

	if idx > 0 {
		leftID := parentIP.ValueAt(idx - 1)
		leftPage, err := t.bpm.FetchPage(leftID)
		if err != nil {
			return err
		}
		leftPage.Latch.Lock()
		leftLeaf := page.WrapLeaf(leftPage)
		if leftLeaf.Size() > minSize(leftLeaf.MaxSize()) {
			leftLeaf.MoveLastToFrontOf(lp)
			parentIP.SetKeyAt(idx, lp.KeyAt(0))
			parent.SetDirty(true)
			leftPage.SetDirty(true)
			t.releaseWrite(leftPage, true)
			t.releaseWrite(leaf, true)
			for _, a := range ancestors {
				t.releaseWrite(a, false)
			}
			return nil
		}
		t.releaseWrite(leftPage, false)
	}

	if int(idx) < int(parentIP.Size())-1 {
		rightID := parentIP.ValueAt(idx + 1)
		rightPage, err := t.bpm.FetchPage(rightID)
		if err != nil {
			return err
		}
		rightPage.Latch.Lock()
		rightLeaf := page.WrapLeaf(rightPage)
		if rightLeaf.Size() > minSize(rightLeaf.MaxSize()) {
			rightLeaf.MoveFirstToEndOf(lp)
			parentIP.SetKeyAt(idx+1, rightLeaf.KeyAt(0))
			parent.SetDirty(true)
			rightPage.SetDirty(true)
			t.releaseWrite(rightPage, true)
			t.releaseWrite(leaf, true)
			for _, a := range ancestors {
				t.releaseWrite(a, false)
			}
			return nil
		}

		// coalesce leaf into its right sibling's vacancy: merge right into leaf.
		lp.MergeFrom(rightLeaf)
		leaf.SetDirty(true)
		t.releaseWrite(rightPage, true)
		rightIDCopy := rightPage.ID()
		t.releaseWrite(leaf, true)
		parentIP.RemoveAt(idx + 1)
		parent.SetDirty(true)
		if err := t.bpm.DeletePage(rightIDCopy); err != nil {
			return err
		}
		return t.fixInternalUnderflow(ancestors)
	}

	// leaf is the rightmost child: coalesce into its left sibling instead.
	leftID := parentIP.ValueAt(idx - 1)
	leftPage, err := t.bpm.FetchPage(leftID)
	if err != nil {
		return err
	}
	leftPage.Latch.Lock()
	leftLeaf := page.WrapLeaf(leftPage)
	leftLeaf.MergeFrom(lp)
	leftPage.SetDirty(true)
	leafID := leaf.ID()
	t.releaseWrite(leaf, true)
	t.releaseWrite(leftPage, true)
	parentIP.RemoveAt(idx)
	parent.SetDirty(true)
	if err := t.bpm.DeletePage(leafID); err != nil {
		return err
	}
	return t.fixInternalUnderflow(ancestors)
}

// fixInternalUnderflow is called with ancestors[len-1] holding a node that
// just lost a child; it rebalances (redistribute or coalesce) as needed,
// recursing up, and collapses the root if it is left with a single child.
func (t *BPlusTree) fixInternalUnderflow(ancestors []*page.Page) error {
	cur := ancestors[len(ancestors)-1]
	rest := ancestors[:len(ancestors)-1]
	ip := page.WrapInternal(cur)

	if len(rest) == 0 {
		if ip.Size() == 1 {
			onlyChild := ip.ValueAt(0)
			if err := t.setParent(onlyChild, page.InvalidPageID); err != nil {
				return err
			}
			rootID := cur.ID()
			t.releaseWrite(cur, true)
			if err := t.setRootID(onlyChild, false); err != nil {
				return err
			}
			return t.bpm.DeletePage(rootID)
		}
		t.releaseWrite(cur, true)
		return nil
	}

	if ip.Size() >= minSize(ip.MaxSize()) {
		t.releaseWrite(cur, true)
		for _, a := range rest {
			t.releaseWrite(a, false)
		}
		return nil
	}

	parent := rest[len(rest)-1]
	parentIP := page.WrapInternal(parent)
	idx := parentIP.IndexOf(cur.ID())

	if idx > 0 {
		leftID := parentIP.ValueAt(idx - 1)
		leftPage, err := t.bpm.FetchPage(leftID)
		if err != nil {
			return err
		}
		leftPage.Latch.Lock()
		leftIP := page.WrapInternal(leftPage)
		if leftIP.Size() > minSize(leftIP.MaxSize()) {
			parentSep := parentIP.KeyAt(idx)
			promoted := leftIP.MoveLastToFrontOf(ip, parentSep)
			if err := t.setParent(ip.ValueAt(0), cur.ID()); err != nil {
				return err
			}
			parentIP.SetKeyAt(idx, promoted)
			parent.SetDirty(true)
			leftPage.SetDirty(true)
			cur.SetDirty(true)
			t.releaseWrite(leftPage, true)
			t.releaseWrite(cur, true)
			for _, a := range rest {
				t.releaseWrite(a, false)
			}
			return nil
		}
		t.releaseWrite(leftPage, false)
	}

	if int(idx) < int(parentIP.Size())-1 {
		rightID := parentIP.ValueAt(idx + 1)
		rightPage, err := t.bpm.FetchPage(rightID)
		if err != nil {
			return err
		}
		rightPage.Latch.Lock()
		rightIP := page.WrapInternal(rightPage)
		if rightIP.Size() > minSize(rightIP.MaxSize()) {
			parentSep := parentIP.KeyAt(idx + 1)
			promoted := rightIP.MoveFirstToEndOf(ip, parentSep)
			if err := t.setParent(ip.ValueAt(ip.Size()-1), cur.ID()); err != nil {
				return err
			}
			parentIP.SetKeyAt(idx+1, promoted)
			parent.SetDirty(true)
			rightPage.SetDirty(true)
			cur.SetDirty(true)
			t.releaseWrite(rightPage, true)
			t.releaseWrite(cur, true)
			for _, a := range rest {
				t.releaseWrite(a, false)
			}
			return nil
		}

		separatorKey := parentIP.KeyAt(idx + 1)
		for i := int32(0); i < rightIP.Size(); i++ {
			if err := t.setParent(rightIP.ValueAt(i), cur.ID()); err != nil {
				return err
			}
		}
		ip.MergeFrom(rightIP, separatorKey)
		cur.SetDirty(true)
		t.releaseWrite(rightPage, true)
		rightIDCopy := rightPage.ID()
		t.releaseWrite(cur, true)
		parentIP.RemoveAt(idx + 1)
		parent.SetDirty(true)
		if err := t.bpm.DeletePage(rightIDCopy); err != nil {
			return err
		}
		return t.fixInternalUnderflow(rest)
	}

	leftID := parentIP.ValueAt(idx - 1)
	leftPage, err := t.bpm.FetchPage(leftID)
	if err != nil {
		return err
	}
	leftPage.Latch.Lock()
	leftIP := page.WrapInternal(leftPage)
	separatorKey := parentIP.KeyAt(idx)
	for i := int32(0); i < ip.Size(); i++ {
		if err := t.setParent(ip.ValueAt(i), leftID); err != nil {
			return err
		}
	}
	leftIP.MergeFrom(ip, separatorKey)
	leftPage.SetDirty(true)
	curID := cur.ID()
	t.releaseWrite(cur, true)
	t.releaseWrite(leftPage, true)
	parentIP.RemoveAt(idx)
	parent.SetDirty(true)
	if err := t.bpm.DeletePage(curID); err != nil {
		return err
	}
	return t.fixInternalUnderflow(rest)
}
