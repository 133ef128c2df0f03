package buffer

import (
	"testing"

	"github.com/relcore/coredb/page"
)

func newTestPool(poolSize int) *BufferPoolManager {
	return NewBufferPoolManager(poolSize, NewMemDiskManager())
}

func TestBufferPoolManagerNewPageEvictsWhenFull(t *testing.T) {
	tests := []struct {
		name     string
		poolSize int
		newPages int
	}{
		{name: "pool of three holds three pages without eviction", poolSize: 3, newPages: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpm := newTestPool(tt.poolSize)
			ids := make([]page.PageID, 0, tt.newPages)
			for i := 0; i < tt.newPages; i++ {
				p, err := bpm.NewPage()
				if err != nil {
					t.Fatalf("NewPage() error = %v", err)
				}
				ids = append(ids, p.ID())
			}
			for _, id := range ids {
				if err := bpm.UnpinPage(id, false); err != nil {
					t.Fatalf("UnpinPage(%d) error = %v", id, err)
				}
			}

			// A fourth page, with the pool already at capacity but every
			// frame unpinned, must evict one via the replacer rather than
			// error out.
			p4, err := bpm.NewPage()
			if err != nil {
				t.Fatalf("NewPage() fourth page error = %v", err)
			}
			if err := bpm.UnpinPage(p4.ID(), false); err != nil {
				t.Fatalf("UnpinPage(%d) error = %v", p4.ID(), err)
			}
		})
	}
}

func TestBufferPoolManagerOutOfFrames(t *testing.T) {
	bpm := newTestPool(2)
	p1, err := bpm.NewPage()
	if err != nil {
		t.Fatalf("NewPage() error = %v", err)
	}
	p2, err := bpm.NewPage()
	if err != nil {
		t.Fatalf("NewPage() error = %v", err)
	}
	_ = p1
	_ = p2
	// Both frames remain pinned: a third request must fail, not evict.
	if _, err := bpm.NewPage(); err == nil {
		t.Fatal("NewPage() with every frame pinned should return an error")
	}
}

func TestBufferPoolManagerFetchRoundTrip(t *testing.T) {
	bpm := newTestPool(4)
	p, err := bpm.NewPage()
	if err != nil {
		t.Fatalf("NewPage() error = %v", err)
	}
	id := p.ID()
	copy(p.Data()[:5], []byte("hello"))
	p.SetDirty(true)
	if err := bpm.UnpinPage(id, true); err != nil {
		t.Fatalf("UnpinPage() error = %v", err)
	}

	fetched, err := bpm.FetchPage(id)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if string(fetched.Data()[:5]) != "hello" {
		t.Fatalf("FetchPage() data = %q, want %q", fetched.Data()[:5], "hello")
	}
	if err := bpm.UnpinPage(id, false); err != nil {
		t.Fatalf("UnpinPage() error = %v", err)
	}
}

func TestBufferPoolManagerDeletePageRejectsPinned(t *testing.T) {
	bpm := newTestPool(4)
	p, err := bpm.NewPage()
	if err != nil {
		t.Fatalf("NewPage() error = %v", err)
	}
	if err := bpm.DeletePage(p.ID()); err == nil {
		t.Fatal("DeletePage() on a pinned page should error")
	}
	if err := bpm.UnpinPage(p.ID(), false); err != nil {
		t.Fatalf("UnpinPage() error = %v", err)
	}
	if err := bpm.DeletePage(p.ID()); err != nil {
		t.Fatalf("DeletePage() error = %v", err)
	}
}
