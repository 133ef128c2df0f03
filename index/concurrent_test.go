package index

import (
	"sync"
	"testing"

	"github.com/relcore/coredb/page"
)

func TestBPlusTreeConcurrentDisjointInserts(t *testing.T) {
	tree, _ := newTestTree(t, 4, 4)

	const perWorker = 500
	var wg sync.WaitGroup
	errCh := make(chan error, 2*perWorker)

	worker := func(base int64) {
		defer wg.Done()
		for i := int64(0); i < perWorker; i++ {
			k := base + i*2 // interleaved, disjoint: evens vs odds
			if _, err := tree.Insert(k, page.RID{PageID: page.PageID(k), Slot: 0}); err != nil {
				errCh <- err
			}
		}
	}

	wg.Add(2)
	go worker(0)
	go worker(1)
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent Insert error: %v", err)
	}

	for i := int64(0); i < perWorker*2; i++ {
		rid, ok, err := tree.GetValue(i)
		if err != nil {
			t.Fatalf("GetValue(%d) error = %v", i, err)
		}
		if !ok {
			t.Fatalf("GetValue(%d) not found after concurrent insert", i)
		}
		if rid.PageID != page.PageID(i) {
			t.Fatalf("GetValue(%d) RID = %v", i, rid)
		}
	}
}
