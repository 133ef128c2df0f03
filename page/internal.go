package page

const (
	internalEntrySize = 12 // int64 key + int32 child page id
	internalArrayOff  = HeaderSize
)

// InternalPage overlays a *Page as an array of (key, child) pairs. Slot 0's
// key is a dummy: it holds no real separator, only the leftmost child
// pointer, matching the classic B+ tree convention where an internal node
// with n children carries n-1 real separator keys.
type InternalPage struct {
	p *Page
}

func WrapInternal(p *Page) *InternalPage { return &InternalPage{p: p} }

func (n *InternalPage) header() Header {
	var h Header
	_ = h.UnmarshalBinary(n.p.Data()[:])
	return h
}

func (n *InternalPage) putHeader(h Header) {
	b, _ := h.MarshalBinary()
	copy(n.p.Data()[:HeaderSize], b)
}

func (n *InternalPage) Init(pageID, parentID PageID, maxSize int32) {
	n.putHeader(Header{
		PageType:     InternalNodeType,
		Size:         0,
		MaxSize:      maxSize,
		ParentPageID: parentID,
		PageID:       pageID,
	})
}

func (n *InternalPage) PageID() PageID       { return n.header().PageID }
func (n *InternalPage) ParentPageID() PageID { return n.header().ParentPageID }
func (n *InternalPage) SetParentPageID(id PageID) {
	h := n.header()
	h.ParentPageID = id
	n.putHeader(h)
}

func (n *InternalPage) Size() int32    { return n.header().Size }
func (n *InternalPage) MaxSize() int32 { return n.header().MaxSize }
func (n *InternalPage) setSize(v int32) {
	h := n.header()
	h.Size = v
	n.putHeader(h)
}

func (n *InternalPage) slotOffset(i int32) int {
	return internalArrayOff + int(i)*internalEntrySize
}

func (n *InternalPage) KeyAt(i int32) int64 {
	off := n.slotOffset(i)
	return getInt64(n.p.Data()[off : off+8])
}

func (n *InternalPage) setKeyAt(i int32, key int64) {
	off := n.slotOffset(i)
	putInt64(n.p.Data()[off:off+8], key)
}

// SetKeyAt overwrites the separator key at slot i, used to rewrite a
// parent's separator after a child borrows an entry from a sibling.
func (n *InternalPage) SetKeyAt(i int32, key int64) { n.setKeyAt(i, key) }

func (n *InternalPage) ValueAt(i int32) PageID {
	off := n.slotOffset(i) + 8
	return GetPageID(n.p.Data()[off : off+4])
}

func (n *InternalPage) setValueAt(i int32, v PageID) {
	off := n.slotOffset(i) + 8
	PutPageID(n.p.Data()[off:off+4], v)
}

func (n *InternalPage) setAt(i int32, key int64, v PageID) {
	n.setKeyAt(i, key)
	n.setValueAt(i, v)
}

// InitRoot formats n as a brand-new root with two children split by key:
// entries with key < midKey descend through left, the rest through right.
func (n *InternalPage) InitRoot(pageID PageID, left PageID, midKey int64, right PageID, maxSize int32) {
	n.Init(pageID, InvalidPageID, maxSize)
	n.setAt(0, 0, left)
	n.setAt(1, midKey, right)
	n.setSize(2)
}

// Lookup returns the child page id to descend into for key: the value at
// the last slot whose key is <= target, or slot 0 if target is smaller
// than every real separator.
func (n *InternalPage) Lookup(key int64) PageID {
	size := n.Size()
	lo, hi := int32(1), size
	for lo < hi {
		mid := (lo + hi) / 2
		if n.KeyAt(mid) <= key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return n.ValueAt(lo - 1)
}

// IndexOf returns the slot holding childID, or -1 if absent.
func (n *InternalPage) IndexOf(childID PageID) int32 {
	for i := int32(0); i < n.Size(); i++ {
		if n.ValueAt(i) == childID {
			return i
		}
	}
	return -1
}

// InsertAfter inserts (key, newChild) immediately after the slot holding
// oldChild, shifting later entries right. Used when a child splits: the
// new right sibling is registered next to the old left child.
func (n *InternalPage) InsertAfter(oldChild PageID, key int64, newChild PageID) {
	idx := n.IndexOf(oldChild)
	size := n.Size()
	for i := size; i > idx+1; i-- {
		n.setAt(i, n.KeyAt(i-1), n.ValueAt(i-1))
	}
	n.setAt(idx+1, key, newChild)
	n.setSize(size + 1)
}

// RemoveAt deletes the entry at index i, shifting later entries left.
func (n *InternalPage) RemoveAt(i int32) {
	size := n.Size()
	for j := i; j < size-1; j++ {
		n.setAt(j, n.KeyAt(j+1), n.ValueAt(j+1))
	}
	n.setSize(size - 1)
}

// MoveHalfTo splits n's upper half into dst, which must already be
// Init'd empty. dst's slot 0 key is reset to the dummy 0, matching the
// child-pointer-only convention for a node's first slot.
func (n *InternalPage) MoveHalfTo(dst *InternalPage) {
	size := n.Size()
	mid := size / 2
	for i := mid; i < size; i++ {
		dst.setAt(i-mid, n.KeyAt(i), n.ValueAt(i))
	}
	dst.setKeyAt(0, 0)
	dst.setSize(size - mid)
	n.setSize(mid)
}

// MergeFrom appends src's entries (src is n's right sibling, coalescing
// away) after n's own, using separatorKey as the real key for src's first
// child (src's slot 0 key was a dummy).
func (n *InternalPage) MergeFrom(src *InternalPage, separatorKey int64) {
	base := n.Size()
	n.setAt(base, separatorKey, src.ValueAt(0))
	for i := int32(1); i < src.Size(); i++ {
		n.setAt(base+i, src.KeyAt(i), src.ValueAt(i))
	}
	n.setSize(base + src.Size())
}

// MoveFirstToEndOf transfers n's first child onto the end of dst (n's left
// sibling), using parentSeparator as dst's new last real key. n's old slot-1
// key was the real separator routing to the child that becomes n's new
// leftmost (dummy-keyed) child; that key no longer belongs to n and must
// replace the parent's separator between dst and n, so it is returned for
// the caller to write back.
func (n *InternalPage) MoveFirstToEndOf(dst *InternalPage, parentSeparator int64) int64 {
	firstChild := n.ValueAt(0)
	dst.setAt(dst.Size(), parentSeparator, firstChild)
	dst.setSize(dst.Size() + 1)
	promoted := n.KeyAt(1)
	size := n.Size()
	for i := int32(0); i < size-1; i++ {
		n.setAt(i, n.KeyAt(i+1), n.ValueAt(i+1))
	}
	n.setKeyAt(0, 0)
	n.setSize(size - 1)
	return promoted
}

// MoveLastToFrontOf transfers n's last child onto the front of dst (n's
// right sibling), using parentSeparator as dst's new slot-0 real
// separator (shifted into slot 1) and leaving dst's slot 0 a dummy
// pointing at the borrowed child. n's old last key was the real separator
// routing to the borrowed child; since that child is now dst's dummy-keyed
// leftmost, the key is promoted to the parent instead and returned for the
// caller to write back.
func (n *InternalPage) MoveLastToFrontOf(dst *InternalPage, parentSeparator int64) int64 {
	last := n.Size() - 1
	promoted := n.KeyAt(last)
	lastChild := n.ValueAt(last)
	size := dst.Size()
	for i := size; i > 0; i-- {
		dst.setAt(i, dst.KeyAt(i-1), dst.ValueAt(i-1))
	}
	dst.setAt(1, parentSeparator, dst.ValueAt(1))
	dst.setAt(0, 0, lastChild)
	dst.setSize(size + 1)
	n.setSize(last)
	return promoted
}
