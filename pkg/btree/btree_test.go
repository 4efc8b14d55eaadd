package btree

import (
	"fmt"
	"sync"
	"testing"

	"github.com/bobboyms/docengine/pkg/types"
)

func TestInsertAndGet(t *testing.T) {
	tree := NewTree(3)
	for i := 0; i < 50; i++ {
		if err := tree.Insert(types.IntKey(i), fmt.Sprintf("doc-%d", i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	for i := 0; i < 50; i++ {
		p, ok := tree.Get(types.IntKey(i))
		if !ok {
			t.Fatalf("Get(%d): not found", i)
		}
		if !p.Has(fmt.Sprintf("doc-%d", i)) {
			t.Fatalf("Get(%d): posting missing expected doc id", i)
		}
	}

	if _, ok := tree.Get(types.IntKey(999)); ok {
		t.Fatalf("Get(999): expected not found")
	}
}

func TestNonUniqueKeySharesPosting(t *testing.T) {
	tree := NewTree(3)
	key := types.VarcharKey("shared")

	if err := tree.Insert(key, "doc-a"); err != nil {
		t.Fatalf("insert doc-a: %v", err)
	}
	if err := tree.Insert(key, "doc-b"); err != nil {
		t.Fatalf("insert doc-b: %v", err)
	}

	p, ok := tree.Get(key)
	if !ok || p.Len() != 2 {
		t.Fatalf("expected posting of 2, got %v (ok=%v)", p, ok)
	}
}

func TestUniqueTreeRejectsDuplicateKey(t *testing.T) {
	tree := NewUniqueTree(3)
	key := types.VarcharKey("sku-1")

	if err := tree.Insert(key, "doc-a"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := tree.Insert(key, "doc-b"); err == nil {
		t.Fatalf("expected constraint error on duplicate unique key")
	}
}

func TestDeleteRemovesDocFromPostingAndKeyWhenEmpty(t *testing.T) {
	tree := NewTree(3)
	key := types.IntKey(7)
	tree.Insert(key, "doc-a")
	tree.Insert(key, "doc-b")

	if err := tree.Delete(key, "doc-a"); err != nil {
		t.Fatalf("delete doc-a: %v", err)
	}
	p, ok := tree.Get(key)
	if !ok || p.Len() != 1 || !p.Has("doc-b") {
		t.Fatalf("expected posting with only doc-b, got %v", p)
	}

	if err := tree.Delete(key, "doc-b"); err != nil {
		t.Fatalf("delete doc-b: %v", err)
	}
	if _, ok := tree.Get(key); ok {
		t.Fatalf("expected key to be gone once its posting emptied")
	}
}

func TestDeleteAcrossSplitsKeepsTreeConsistent(t *testing.T) {
	tree := NewTree(3)
	const n = 200
	for i := 0; i < n; i++ {
		tree.Insert(types.IntKey(i), fmt.Sprintf("doc-%d", i))
	}
	for i := 0; i < n; i += 2 {
		if err := tree.Delete(types.IntKey(i), fmt.Sprintf("doc-%d", i)); err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		_, ok := tree.Get(types.IntKey(i))
		wantOK := i%2 != 0
		if ok != wantOK {
			t.Fatalf("key %d: Get ok=%v, want %v", i, ok, wantOK)
		}
	}
}

func TestConcurrentInsertsAreSafe(t *testing.T) {
	tree := NewTree(4)
	var wg sync.WaitGroup
	const workers = 8
	const perWorker = 100

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := types.IntKey(w*perWorker + i)
				if err := tree.Insert(key, fmt.Sprintf("doc-%d-%d", w, i)); err != nil {
					t.Errorf("concurrent insert failed: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		for i := 0; i < perWorker; i++ {
			key := types.IntKey(w*perWorker + i)
			if _, ok := tree.Get(key); !ok {
				t.Fatalf("missing key after concurrent insert: %v", key)
			}
		}
	}
}

func TestFindLeafLowerBoundScansInOrder(t *testing.T) {
	tree := NewTree(3)
	for i := 0; i < 30; i++ {
		tree.Insert(types.IntKey(i), fmt.Sprintf("doc-%d", i))
	}

	leaf, idx := tree.FindLeafLowerBound(nil)
	count := 0
	prev := -1
	for leaf != nil {
		for ; idx < leaf.N; idx++ {
			k := int(leaf.Keys[idx].(types.IntKey))
			if k <= prev {
				leaf.RUnlock()
				t.Fatalf("scan out of order: %d after %d", k, prev)
			}
			prev = k
			count++
		}
		next := leaf.Next
		leaf.RUnlock()
		leaf = next
		idx = 0
	}
	if count != 30 {
		t.Fatalf("scanned %d keys, want 30", count)
	}
}
