package page

import "testing"

func newLeaf(id, parent PageID, maxSize int32) *LeafPage {
	p := NewPage()
	p.SetID(id)
	l := WrapLeaf(p)
	l.Init(id, parent, maxSize)
	return l
}

func TestLeafPageInsertAndLookup(t *testing.T) {
	tests := []struct {
		name string
		keys []int64
	}{
		{name: "ascending", keys: []int64{1, 2, 3, 4}},
		{name: "descending", keys: []int64{4, 3, 2, 1}},
		{name: "shuffled", keys: []int64{3, 1, 4, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLeaf(1, InvalidPageID, 8)
			for _, k := range tt.keys {
				if !l.Insert(k, RID{PageID: PageID(k), Slot: 0}) {
					t.Fatalf("Insert(%d) = false, want true", k)
				}
			}
			if l.Size() != int32(len(tt.keys)) {
				t.Fatalf("Size() = %d, want %d", l.Size(), len(tt.keys))
			}
			for i := int32(1); i < l.Size(); i++ {
				if l.KeyAt(i-1) >= l.KeyAt(i) {
					t.Fatalf("entries not sorted at index %d: %d >= %d", i, l.KeyAt(i-1), l.KeyAt(i))
				}
			}
			for _, k := range tt.keys {
				rid, ok := l.Lookup(k)
				if !ok || rid.PageID != PageID(k) {
					t.Fatalf("Lookup(%d) = (%v, %v), want (%v, true)", k, rid, ok, PageID(k))
				}
			}
		})
	}
}

func TestLeafPageInsertDuplicateRejected(t *testing.T) {
	l := newLeaf(1, InvalidPageID, 8)
	if !l.Insert(5, RID{PageID: 1, Slot: 0}) {
		t.Fatal("first insert should succeed")
	}
	if l.Insert(5, RID{PageID: 2, Slot: 0}) {
		t.Fatal("duplicate insert should be rejected")
	}
	if l.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", l.Size())
	}
}

func TestLeafPageRemoveByKey(t *testing.T) {
	l := newLeaf(1, InvalidPageID, 8)
	for _, k := range []int64{1, 2, 3} {
		l.Insert(k, RID{PageID: PageID(k), Slot: 0})
	}
	if !l.RemoveByKey(2) {
		t.Fatal("RemoveByKey(2) = false, want true")
	}
	if _, ok := l.Lookup(2); ok {
		t.Fatal("key 2 should be gone after removal")
	}
	if l.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", l.Size())
	}
	if l.RemoveByKey(99) {
		t.Fatal("RemoveByKey on absent key should return false")
	}
}

func TestLeafPageMoveHalfTo(t *testing.T) {
	l := newLeaf(1, InvalidPageID, 8)
	for _, k := range []int64{1, 2, 3, 4} {
		l.Insert(k, RID{PageID: PageID(k), Slot: 0})
	}
	dst := newLeaf(2, InvalidPageID, 8)
	l.MoveHalfTo(dst)

	if l.Size() != 2 || dst.Size() != 2 {
		t.Fatalf("after split sizes = (%d, %d), want (2, 2)", l.Size(), dst.Size())
	}
	if l.KeyAt(1) >= dst.KeyAt(0) {
		t.Fatalf("split not ordered: left max %d >= right min %d", l.KeyAt(1), dst.KeyAt(0))
	}
	if l.NextPageID() != dst.PageID() {
		t.Fatalf("NextPageID() = %d, want %d", l.NextPageID(), dst.PageID())
	}
}

func TestLeafPageRedistribution(t *testing.T) {
	left := newLeaf(1, InvalidPageID, 8)
	for _, k := range []int64{1, 2, 3} {
		left.Insert(k, RID{PageID: PageID(k), Slot: 0})
	}
	right := newLeaf(2, InvalidPageID, 8)
	right.Insert(4, RID{PageID: 4, Slot: 0})

	left.MoveLastToFrontOf(right)
	if left.Size() != 2 || right.Size() != 2 {
		t.Fatalf("after borrow sizes = (%d, %d), want (2, 2)", left.Size(), right.Size())
	}
	if right.KeyAt(0) != 3 {
		t.Fatalf("right.KeyAt(0) = %d, want 3", right.KeyAt(0))
	}
}
