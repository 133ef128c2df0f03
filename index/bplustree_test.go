package index

import (
	"testing"

	"github.com/relcore/coredb/buffer"
	"github.com/relcore/coredb/page"
)

func newTestTree(t *testing.T, leafMax, internalMax int32) (*BPlusTree, *buffer.BufferPoolManager) {
	t.Helper()
	bpm := buffer.NewBufferPoolManager(64, buffer.NewMemDiskManager())
	hp, err := bpm.FetchPage(page.HeaderPageID)
	if err != nil {
		t.Fatalf("FetchPage(header) error = %v", err)
	}
	page.WrapHeader(hp).Init()
	if err := bpm.UnpinPage(page.HeaderPageID, true); err != nil {
		t.Fatalf("UnpinPage(header) error = %v", err)
	}
	return NewBPlusTree("test", bpm, leafMax, internalMax), bpm
}

func TestBPlusTreeInsertAndGetValue(t *testing.T) {
	tests := []struct {
		name string
		n    int
	}{
		{name: "small", n: 20},
		{name: "forces multiple splits", n: 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, _ := newTestTree(t, 4, 4)
			for i := 0; i < tt.n; i++ {
				k := int64(i)
				ok, err := tree.Insert(k, page.RID{PageID: page.PageID(k), Slot: 0})
				if err != nil {
					t.Fatalf("Insert(%d) error = %v", k, err)
				}
				if !ok {
					t.Fatalf("Insert(%d) = false, want true", k)
				}
			}
			for i := 0; i < tt.n; i++ {
				k := int64(i)
				rid, ok, err := tree.GetValue(k)
				if err != nil {
					t.Fatalf("GetValue(%d) error = %v", k, err)
				}
				if !ok {
					t.Fatalf("GetValue(%d) = not found", k)
				}
				if rid.PageID != page.PageID(k) {
					t.Fatalf("GetValue(%d) RID = %v, want pageid %d", k, rid, k)
				}
			}
			if _, ok, _ := tree.GetValue(int64(tt.n) + 1000); ok {
				t.Fatal("GetValue on an absent key should return false")
			}
		})
	}
}

func TestBPlusTreeIteratorOrder(t *testing.T) {
	tree, _ := newTestTree(t, 4, 4)
	const n = 300
	for i := n - 1; i >= 0; i-- {
		k := int64(i)
		if _, err := insertChecked(tree, k); err != nil {
			t.Fatalf("Insert(%d) error = %v", k, err)
		}
	}

	it, err := tree.Iterator()
	if err != nil {
		t.Fatalf("Iterator() error = %v", err)
	}
	count := 0
	var prev int64 = -1
	for it.Valid() {
		k := it.Key()
		if k <= prev {
			t.Fatalf("iterator out of order: %d after %d", k, prev)
		}
		prev = k
		count++
		it.Next()
	}
	if count != n {
		t.Fatalf("iterated %d entries, want %d", count, n)
	}
}

func TestBPlusTreeIteratorFrom(t *testing.T) {
	tree, _ := newTestTree(t, 4, 4)
	for i := 0; i < 100; i += 2 {
		if _, err := insertChecked(tree, int64(i)); err != nil {
			t.Fatalf("Insert(%d) error = %v", i, err)
		}
	}
	it, err := tree.IteratorFrom(51)
	if err != nil {
		t.Fatalf("IteratorFrom() error = %v", err)
	}
	if !it.Valid() {
		t.Fatal("expected at least one entry >= 51")
	}
	if it.Key() != 52 {
		t.Fatalf("first key = %d, want 52", it.Key())
	}
}

func TestBPlusTreeRemove(t *testing.T) {
	tree, _ := newTestTree(t, 4, 4)
	const n = 200
	for i := 0; i < n; i++ {
		if _, err := insertChecked(tree, int64(i)); err != nil {
			t.Fatalf("Insert(%d) error = %v", i, err)
		}
	}
	for i := 0; i < n; i += 2 {
		ok, err := tree.Remove(int64(i))
		if err != nil {
			t.Fatalf("Remove(%d) error = %v", i, err)
		}
		if !ok {
			t.Fatalf("Remove(%d) = false, want true", i)
		}
	}
	for i := 0; i < n; i++ {
		_, found, err := tree.GetValue(int64(i))
		if err != nil {
			t.Fatalf("GetValue(%d) error = %v", i, err)
		}
		want := i%2 != 0
		if found != want {
			t.Fatalf("GetValue(%d) found = %v, want %v", i, found, want)
		}
	}
}

func TestBPlusTreeRemoveToEmpty(t *testing.T) {
	tree, _ := newTestTree(t, 4, 4)
	for i := 0; i < 10; i++ {
		if _, err := insertChecked(tree, int64(i)); err != nil {
			t.Fatalf("Insert(%d) error = %v", i, err)
		}
	}
	for i := 0; i < 10; i++ {
		if _, err := tree.Remove(int64(i)); err != nil {
			t.Fatalf("Remove(%d) error = %v", i, err)
		}
	}
	empty, err := tree.IsEmpty()
	if err != nil {
		t.Fatalf("IsEmpty() error = %v", err)
	}
	if !empty {
		t.Fatal("IsEmpty() = false after removing every key, want true")
	}
}

func insertChecked(tree *BPlusTree, k int64) (bool, error) {
	return tree.Insert(k, page.RID{PageID: page.PageID(k), Slot: 0})
}
