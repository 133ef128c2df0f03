package page

import "testing"

func newInternal(id, parent PageID, maxSize int32) *InternalPage {
	p := NewPage()
	p.SetID(id)
	n := WrapInternal(p)
	n.Init(id, parent, maxSize)
	return n
}

func TestInternalPageInitRootAndLookup(t *testing.T) {
	tests := []struct {
		name string
		key  int64
		want PageID
	}{
		{name: "below midpoint goes left", key: 5, want: 10},
		{name: "at midpoint goes right", key: 20, want: 11},
		{name: "above midpoint goes right", key: 99, want: 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newInternal(1, InvalidPageID, 8)
			n.InitRoot(1, 10, 20, 11, 8)
			if got := n.Lookup(tt.key); got != tt.want {
				t.Fatalf("Lookup(%d) = %d, want %d", tt.key, got, tt.want)
			}
		})
	}
}

func TestInternalPageInsertAfter(t *testing.T) {
	n := newInternal(1, InvalidPageID, 8)
	n.InitRoot(1, 10, 20, 11, 8)
	n.InsertAfter(11, 30, 12)

	if n.Size() != 3 {
		t.Fatalf("Size() = %d, want 3", n.Size())
	}
	if n.ValueAt(2) != 12 || n.KeyAt(2) != 30 {
		t.Fatalf("new entry = (%d, %d), want (30, 12)", n.KeyAt(2), n.ValueAt(2))
	}
	if n.Lookup(25) != 11 {
		t.Fatalf("Lookup(25) = %d, want 11", n.Lookup(25))
	}
	if n.Lookup(35) != 12 {
		t.Fatalf("Lookup(35) = %d, want 12", n.Lookup(35))
	}
}

func TestInternalPageMoveHalfTo(t *testing.T) {
	n := newInternal(1, InvalidPageID, 8)
	n.InitRoot(1, 10, 20, 11, 8)
	n.InsertAfter(11, 30, 12)
	n.InsertAfter(12, 40, 13)

	dst := newInternal(2, InvalidPageID, 8)
	n.MoveHalfTo(dst)

	if n.Size()+dst.Size() != 4 {
		t.Fatalf("total size after split = %d, want 4", n.Size()+dst.Size())
	}
	if dst.ValueAt(0) == InvalidPageID {
		t.Fatal("dst's leftmost child pointer should be set")
	}
}

func TestInternalPageMoveLastToFrontOfPromotesSeparator(t *testing.T) {
	left := newInternal(1, InvalidPageID, 8)
	left.InitRoot(1, 100, 20, 101, 8)
	left.InsertAfter(101, 30, 102)

	right := newInternal(2, InvalidPageID, 8)
	right.InitRoot(2, 200, 50, 201, 8)

	promoted := left.MoveLastToFrontOf(right, 40)
	if promoted != 30 {
		t.Fatalf("promoted key = %d, want 30 (left's removed separator)", promoted)
	}
	if left.Size() != 2 {
		t.Fatalf("left.Size() = %d, want 2", left.Size())
	}
	if right.Size() != 3 {
		t.Fatalf("right.Size() = %d, want 3", right.Size())
	}
	if right.ValueAt(0) != 102 {
		t.Fatalf("right.ValueAt(0) = %d, want 102 (borrowed child)", right.ValueAt(0))
	}
	if right.KeyAt(1) != 40 || right.ValueAt(1) != 200 {
		t.Fatalf("right slot 1 = (%d, %d), want (40, 200)", right.KeyAt(1), right.ValueAt(1))
	}
	if right.KeyAt(2) != 50 || right.ValueAt(2) != 201 {
		t.Fatalf("right slot 2 = (%d, %d), want (50, 201)", right.KeyAt(2), right.ValueAt(2))
	}
}

func TestInternalPageMoveFirstToEndOfPromotesSeparator(t *testing.T) {
	left := newInternal(1, InvalidPageID, 8)
	left.InitRoot(1, 100, 20, 101, 8)

	right := newInternal(2, InvalidPageID, 8)
	right.InitRoot(2, 200, 40, 201, 8)
	right.InsertAfter(201, 50, 202)

	promoted := right.MoveFirstToEndOf(left, 30)
	if promoted != 40 {
		t.Fatalf("promoted key = %d, want 40 (right's removed separator)", promoted)
	}
	if right.Size() != 2 {
		t.Fatalf("right.Size() = %d, want 2", right.Size())
	}
	if left.Size() != 3 {
		t.Fatalf("left.Size() = %d, want 3", left.Size())
	}
	if left.KeyAt(2) != 30 || left.ValueAt(2) != 200 {
		t.Fatalf("left slot 2 = (%d, %d), want (30, 200)", left.KeyAt(2), left.ValueAt(2))
	}
	if right.ValueAt(0) != 201 {
		t.Fatalf("right.ValueAt(0) = %d, want 201 (shifted leftmost child)", right.ValueAt(0))
	}
	if right.KeyAt(1) != 50 || right.ValueAt(1) != 202 {
		t.Fatalf("right slot 1 = (%d, %d), want (50, 202)", right.KeyAt(1), right.ValueAt(1))
	}
}

func TestInternalPageIndexOf(t *testing.T) {
	n := newInternal(1, InvalidPageID, 8)
	n.InitRoot(1, 10, 20, 11, 8)
	if got := n.IndexOf(11); got != 1 {
		t.Fatalf("IndexOf(11) = %d, want 1", got)
	}
	if got := n.IndexOf(99); got != -1 {
		t.Fatalf("IndexOf(99) = %d, want -1", got)
	}
}
