package page

const (
	leafEntrySize  = 16 // int64 key + RID{int32 page id, uint32 slot}
	nextPageIDOff  = HeaderSize
	leafArrayOff   = HeaderSize + 4
)

// LeafPage overlays a *Page's byte buffer as a sorted array of (key, RID)
// entries plus a next-leaf sibling pointer, letting a range scan walk
// leaves left to right without revisiting the parent.
type LeafPage struct {
	p *Page
}

// WrapLeaf overlays an already-fetched page as a leaf node.
func WrapLeaf(p *Page) *LeafPage { return &LeafPage{p: p} }

func (l *LeafPage) header() Header {
	var h Header
	_ = h.UnmarshalBinary(l.p.Data()[:])
	return h
}

func (l *LeafPage) putHeader(h Header) {
	b, _ := h.MarshalBinary()
	copy(l.p.Data()[:HeaderSize], b)
}

// Init formats an empty leaf page for pageID under parentID with room for
// up to maxSize entries.
func (l *LeafPage) Init(pageID, parentID PageID, maxSize int32) {
	l.putHeader(Header{
		PageType:     LeafNodeType,
		Size:         0,
		MaxSize:      maxSize,
		ParentPageID: parentID,
		PageID:       pageID,
	})
	l.SetNextPageID(InvalidPageID)
}

func (l *LeafPage) PageID() PageID       { return l.header().PageID }
func (l *LeafPage) ParentPageID() PageID { return l.header().ParentPageID }
func (l *LeafPage) SetParentPageID(id PageID) {
	h := l.header()
	h.ParentPageID = id
	l.putHeader(h)
}

func (l *LeafPage) Size() int32    { return l.header().Size }
func (l *LeafPage) MaxSize() int32 { return l.header().MaxSize }
func (l *LeafPage) setSize(n int32) {
	h := l.header()
	h.Size = n
	l.putHeader(h)
}

func (l *LeafPage) NextPageID() PageID {
	return GetPageID(l.p.Data()[nextPageIDOff : nextPageIDOff+4])
}

func (l *LeafPage) SetNextPageID(id PageID) {
	PutPageID(l.p.Data()[nextPageIDOff:nextPageIDOff+4], id)
}

func (l *LeafPage) slotOffset(i int32) int {
	return leafArrayOff + int(i)*leafEntrySize
}

func (l *LeafPage) KeyAt(i int32) int64 {
	off := l.slotOffset(i)
	return getInt64(l.p.Data()[off : off+8])
}

func (l *LeafPage) RIDAt(i int32) RID {
	off := l.slotOffset(i) + 8
	return RID{
		PageID: PageID(getUint32(l.p.Data()[off : off+4])),
		Slot:   getUint32(l.p.Data()[off+4 : off+8]),
	}
}

func (l *LeafPage) setAt(i int32, key int64, rid RID) {
	off := l.slotOffset(i)
	putInt64(l.p.Data()[off:off+8], key)
	putUint32(l.p.Data()[off+8:off+12], uint32(rid.PageID))
	putUint32(l.p.Data()[off+12:off+16], rid.Slot)
}

// KeyIndex returns the index of the first entry whose key is >= target,
// or Size() if every entry is smaller (binary search over the sorted array).
func (l *LeafPage) KeyIndex(target int64) int32 {
	size := l.Size()
	lo, hi := int32(0), size
	for lo < hi {
		mid := (lo + hi) / 2
		if l.KeyAt(mid) < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Lookup returns the RID stored for key, if present.
func (l *LeafPage) Lookup(key int64) (RID, bool) {
	idx := l.KeyIndex(key)
	if idx < l.Size() && l.KeyAt(idx) == key {
		return l.RIDAt(idx), true
	}
	return RID{}, false
}

// Insert places (key, rid) in sorted position. Returns false without
// modifying the page if key is already present: leaf keys are unique.
func (l *LeafPage) Insert(key int64, rid RID) bool {
	idx := l.KeyIndex(key)
	size := l.Size()
	if idx < size && l.KeyAt(idx) == key {
		return false
	}
	for i := size; i > idx; i-- {
		k := l.KeyAt(i - 1)
		r := l.RIDAt(i - 1)
		l.setAt(i, k, r)
	}
	l.setAt(idx, key, rid)
	l.setSize(size + 1)
	return true
}

// RemoveByKey deletes key's entry, shifting later entries left. Returns
// false if key was not present.
func (l *LeafPage) RemoveByKey(key int64) bool {
	idx := l.KeyIndex(key)
	size := l.Size()
	if idx >= size || l.KeyAt(idx) != key {
		return false
	}
	for i := idx; i < size-1; i++ {
		k := l.KeyAt(i + 1)
		r := l.RIDAt(i + 1)
		l.setAt(i, k, r)
	}
	l.setSize(size - 1)
	return true
}

// MoveHalfTo splits l's upper half of entries into dst, which must already
// be Init'd as an empty leaf. dst becomes l's right sibling: caller links
// NextPageID and reparents as needed.
func (l *LeafPage) MoveHalfTo(dst *LeafPage) {
	size := l.Size()
	mid := size / 2
	for i := mid; i < size; i++ {
		dst.setAt(i-mid, l.KeyAt(i), l.RIDAt(i))
	}
	dst.setSize(size - mid)
	l.setSize(mid)
	dst.SetNextPageID(l.NextPageID())
	l.SetNextPageID(dst.PageID())
}

// MergeFrom appends all of src's entries after l's own (used when src is
// l's right sibling being coalesced away).
func (l *LeafPage) MergeFrom(src *LeafPage) {
	base := l.Size()
	for i := int32(0); i < src.Size(); i++ {
		l.setAt(base+i, src.KeyAt(i), src.RIDAt(i))
	}
	l.setSize(base + src.Size())
	l.SetNextPageID(src.NextPageID())
}

// MoveFirstToEndOf transfers l's first entry onto the end of dst (dst is
// l's left sibling borrowing during redistribution).
func (l *LeafPage) MoveFirstToEndOf(dst *LeafPage) {
	k, r := l.KeyAt(0), l.RIDAt(0)
	dst.setAt(dst.Size(), k, r)
	dst.setSize(dst.Size() + 1)
	l.RemoveByKey(k)
}

// MoveLastToFrontOf transfers l's last entry onto the front of dst (dst is
// l's right sibling borrowing during redistribution).
func (l *LeafPage) MoveLastToFrontOf(dst *LeafPage) {
	last := l.Size() - 1
	k, r := l.KeyAt(last), l.RIDAt(last)
	for i := dst.Size(); i > 0; i-- {
		dst.setAt(i, dst.KeyAt(i-1), dst.RIDAt(i-1))
	}
	dst.setAt(0, k, r)
	dst.setSize(dst.Size() + 1)
	l.setSize(last)
}
