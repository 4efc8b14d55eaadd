// Package btree implements a concurrent B+Tree keyed by types.Comparable,
// with latch crabbing for lock-free-feeling traversal under concurrent
// readers and writers. Leaf values are Postings (document id sets) so one
// key can back a non-unique or compound index entry shared by several
// documents.
package btree

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bobboyms/docengine/internal/engineerr"
	"github.com/bobboyms/docengine/pkg/types"
)

// BPlusTree is one index's storage: either a non-unique tree (the default)
// where a key may carry many document ids, or a unique tree where a
// second insert under an existing key fails with a constraint error.
type BPlusTree struct {
	T         int
	Root      *Node
	UniqueKey bool
	mu        sync.RWMutex // guards the Root pointer across structural root splits
}

// NewTree creates a tree that allows multiple documents per key.
func NewTree(t int) *BPlusTree {
	return &BPlusTree{T: t, Root: NewNode(t, true), UniqueKey: false}
}

// NewUniqueTree creates a tree enforcing at most one document per key.
func NewUniqueTree(t int) *BPlusTree {
	return &BPlusTree{T: t, Root: NewNode(t, true), UniqueKey: true}
}

// Insert adds docID to the posting set for key, preventively splitting
// full nodes on the way down so the eventual leaf write never needs to
// re-ascend. Fails with a ConstraintViolatedError if the tree is unique
// and key is already associated with a different document.
func (b *BPlusTree) Insert(key types.Comparable, docID string) error {
	return b.upsertTopLevel(key, func(p Posting, exists bool) error {
		if exists && b.UniqueKey && !p.Has(docID) && p.Len() > 0 {
			return &engineerr.ConstraintViolatedError{
				Kind: engineerr.ConstraintUnique,
				Key:  fmt.Sprintf("%v", key),
			}
		}
		p.Add(docID)
		return nil
	})
}

// Get returns a copy of the posting set for key, or (nil, false) if the
// key is absent.
func (b *BPlusTree) Get(key types.Comparable) (Posting, bool) {
	if b == nil {
		return nil, false
	}
	b.mu.RLock()
	curr := b.Root
	if curr == nil {
		b.mu.RUnlock()
		return nil, false
	}
	curr.RLock()
	b.mu.RUnlock()

	for !curr.Leaf {
		i := 0
		for i < curr.N && key.Compare(curr.Keys[i]) >= 0 {
			i++
		}
		child := curr.Children[i]
		child.RLock()
		curr.RUnlock()
		curr = child
	}
	defer curr.RUnlock()

	for j := 0; j < curr.N; j++ {
		if key.Compare(curr.Keys[j]) == 0 {
			return NewPosting(curr.Postings[j].IDs()...), true
		}
	}
	return nil, false
}

// Delete removes docID from key's posting. If the posting becomes empty
// the key is removed from the tree entirely via the standard B-tree
// delete path (borrow/merge to keep every non-root node at least
// half-full).
func (b *BPlusTree) Delete(key types.Comparable, docID string) error {
	b.mu.Lock()
	root := b.Root
	root.Lock()

	leaf, idx := root.findLeafLowerBoundLocked(key)
	if leaf == nil || idx >= leaf.N || key.Compare(leaf.Keys[idx]) != 0 {
		root.Unlock()
		b.mu.Unlock()
		return nil // nothing to delete
	}
	leaf.Postings[idx].Remove(docID)
	empty := leaf.Postings[idx].Len() == 0
	root.Unlock()

	if !empty {
		b.mu.Unlock()
		return nil
	}

	// The posting emptied out: remove the key outright using the full
	// delete machinery, which needs to descend from the root again
	// (the preventive-fill delete path re-evaluates fullness per level).
	root = b.Root
	root.Remove(key)
	if !root.Leaf && root.N == 0 {
		b.Root = root.Children[0]
	}
	b.mu.Unlock()
	return nil
}

func (n *Node) findLeafLowerBoundLocked(key types.Comparable) (*Node, int) {
	curr := n
	for !curr.Leaf {
		i := sort.Search(curr.N, func(i int) bool {
			return curr.Keys[i].Compare(key) >= 0
		})
		curr = curr.Children[i]
	}
	idx := sort.Search(curr.N, func(i int) bool {
		return curr.Keys[i].Compare(key) >= 0
	})
	return curr, idx
}

func (b *BPlusTree) upsertTopLevel(key types.Comparable, fn func(p Posting, exists bool) error) error {
	b.mu.Lock()
	root := b.Root
	root.Lock()

	if root.IsFull() {
		newRoot := NewNode(b.T, false)
		newRoot.Children = append(newRoot.Children, root)
		newRoot.SplitChild(0)
		b.Root = newRoot
		b.mu.Unlock()

		newRoot.Lock()
		root.Unlock()

		return b.upsertTopDown(newRoot, key, fn)
	}

	b.mu.Unlock()
	return b.upsertTopDown(root, key, fn)
}

// upsertTopDown descends the tree splitting full children preventively,
// latch-crabbing (parent released once the child is locked) the whole
// way, then applies fn at the leaf.
func (b *BPlusTree) upsertTopDown(curr *Node, key types.Comparable, fn func(p Posting, exists bool) error) error {
	defer func() {
		if curr != nil {
			curr.Unlock()
		}
	}()

	for !curr.Leaf {
		i := 0
		for i < curr.N && key.Compare(curr.Keys[i]) >= 0 {
			i++
		}

		child := curr.Children[i]
		child.Lock()

		if child.IsFull() {
			curr.SplitChild(i)
			if key.Compare(curr.Keys[i]) >= 0 {
				child.Unlock()
				child = curr.Children[i+1]
				child.Lock()
			}
		}

		curr.Unlock()
		curr = child
	}

	return curr.UpsertNonFull(key, fn)
}

// Search reports whether key exists and returns its holding leaf node
// (read-locked for the duration of the call).
func (b *BPlusTree) Search(key types.Comparable) (*Node, bool) {
	b.mu.RLock()
	curr := b.Root
	curr.RLock()
	b.mu.RUnlock()

	for !curr.Leaf {
		i := 0
		for i < curr.N && key.Compare(curr.Keys[i]) >= 0 {
			i++
		}
		child := curr.Children[i]
		child.RLock()
		curr.RUnlock()
		curr = child
	}
	defer curr.RUnlock()

	for j := 0; j < curr.N; j++ {
		if key.Compare(curr.Keys[j]) == 0 {
			return curr, true
		}
	}
	return nil, false
}

// FindLeafLowerBound returns the leaf node (RLock held — caller must
// RUnlock) and index of the first key >= the given key. A nil key finds
// the leftmost leaf, for full-index scans.
func (b *BPlusTree) FindLeafLowerBound(key types.Comparable) (*Node, int) {
	b.mu.RLock()
	curr := b.Root
	curr.RLock()
	b.mu.RUnlock()

	for !curr.Leaf {
		var i int
		if key == nil {
			i = 0
		} else {
			i = sort.Search(curr.N, func(i int) bool {
				return curr.Keys[i].Compare(key) >= 0
			})
		}
		child := curr.Children[i]
		child.RLock()
		curr.RUnlock()
		curr = child
	}

	var idx int
	if key == nil {
		idx = 0
	} else {
		idx = sort.Search(curr.N, func(i int) bool {
			return curr.Keys[i].Compare(key) >= 0
		})
	}
	return curr, idx
}

// RangeScan walks every key in [lo, hi] in ascending order (a nil bound
// is open-ended on that side), invoking fn with each key's posting set.
// fn returning false stops the scan early. Traversal follows the leaf
// chain's Next pointers, RLocking one leaf ahead before releasing the
// current one so a concurrent writer can never observe a scan holding
// more than two leaf latches at once.
func (b *BPlusTree) RangeScan(lo, hi types.Comparable, fn func(key types.Comparable, p Posting) bool) {
	leaf, idx := b.FindLeafLowerBound(lo)

	for leaf != nil {
		for ; idx < leaf.N; idx++ {
			key := leaf.Keys[idx]
			if hi != nil && key.Compare(hi) > 0 {
				leaf.RUnlock()
				return
			}
			if !fn(key, leaf.Postings[idx]) {
				leaf.RUnlock()
				return
			}
		}
		next := leaf.Next
		if next != nil {
			next.RLock()
		}
		leaf.RUnlock()
		leaf = next
		idx = 0
	}
}
