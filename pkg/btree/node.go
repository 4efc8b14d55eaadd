package btree

import (
	"sort"
	"sync"

	"github.com/bobboyms/docengine/pkg/types"
)

// Node is a B+Tree node. Leaves carry a Posting (a set of document ids)
// per key rather than a single offset, since document indexes need to
// support non-unique and sparse fields, where many documents share a key
// value.
type Node struct {
	T        int
	Keys     []types.Comparable
	Postings []Posting // leaves only
	Children []*Node   // internal nodes only
	Leaf     bool
	N        int
	Next     *Node // leaf linked-list, for range scans
	mu       sync.RWMutex
}

func NewNode(t int, leaf bool) *Node {
	return &Node{
		T:        t,
		Leaf:     leaf,
		Keys:     make([]types.Comparable, 0, 2*t-1),
		Postings: make([]Posting, 0, 2*t-1),
		Children: make([]*Node, 0, 2*t),
	}
}

func (n *Node) Lock() {
	if n != nil {
		n.mu.Lock()
	}
}

func (n *Node) Unlock() {
	if n != nil {
		n.mu.Unlock()
	}
}

func (n *Node) RLock() {
	if n != nil {
		n.mu.RLock()
	}
}

func (n *Node) RUnlock() {
	if n != nil {
		n.mu.RUnlock()
	}
}

// IsSafeForInsert reports whether the node can accept a key without
// needing a split first.
func (n *Node) IsSafeForInsert() bool { return n.N < 2*n.T-1 }

// IsSafeForDelete reports whether the node can lose a key without
// needing a borrow/merge afterward.
func (n *Node) IsSafeForDelete() bool { return n.N > n.T-1 }

func (n *Node) IsFull() bool { return n.N == 2*n.T-1 }

func (n *Node) findLeafLowerBound(key types.Comparable) (*Node, int) {
	i := sort.Search(n.N, func(i int) bool {
		return n.Keys[i].Compare(key) >= 0
	})
	if n.Leaf {
		return n, i
	}
	return n.Children[i].findLeafLowerBound(key)
}

// UpsertNonFull finds (or creates) the posting for key within this leaf
// and runs fn against it. Callers (BPlusTree.upsertTopDown) guarantee
// this is only invoked on a leaf that cannot be full, via preventive
// splitting on the way down.
func (n *Node) UpsertNonFull(key types.Comparable, fn func(p Posting, exists bool) error) error {
	idx := sort.Search(n.N, func(j int) bool {
		return n.Keys[j].Compare(key) >= 0
	})

	if idx < n.N && n.Keys[idx].Compare(key) == 0 {
		if err := fn(n.Postings[idx], true); err != nil {
			return err
		}
		return nil
	}

	p := Posting{}
	if err := fn(p, false); err != nil {
		return err
	}

	n.Keys = append(n.Keys, nil)
	n.Postings = append(n.Postings, nil)
	copy(n.Keys[idx+1:], n.Keys[idx:])
	copy(n.Postings[idx+1:], n.Postings[idx:])

	n.Keys[idx] = key
	n.Postings[idx] = p
	n.N++
	return nil
}

func (n *Node) SplitChild(i int) {
	t := n.T
	y := n.Children[i]
	z := NewNode(t, y.Leaf)

	if y.Leaf {
		mid := t - 1
		z.N = y.N - mid
		z.Keys = append(z.Keys, y.Keys[mid:]...)
		z.Postings = append(z.Postings, y.Postings[mid:]...)

		y.Keys = y.Keys[:mid]
		y.Postings = y.Postings[:mid]
		y.N = mid

		z.Next = y.Next
		y.Next = z
	} else {
		mid := t - 1
		z.N = t - 1
		z.Keys = append(z.Keys, y.Keys[mid+1:]...)
		z.Children = append(z.Children, y.Children[mid+1:]...)

		upKey := y.Keys[mid]

		y.Keys = y.Keys[:mid]
		y.Children = y.Children[:mid+1]
		y.N = mid

		n.Keys = append(n.Keys, nil)
		copy(n.Keys[i+1:], n.Keys[i:])
		n.Keys[i] = upKey

		n.Children = append(n.Children, nil)
		copy(n.Children[i+2:], n.Children[i+1:])
		n.Children[i+1] = z
		n.N++
		return
	}

	n.Keys = append(n.Keys, nil)
	copy(n.Keys[i+1:], n.Keys[i:])
	n.Keys[i] = z.Keys[0]

	n.Children = append(n.Children, nil)
	copy(n.Children[i+2:], n.Children[i+1:])
	n.Children[i+1] = z
	n.N++
}

// remove deletes key's entry outright (used once its posting has been
// emptied by BPlusTree.Delete). Assumes preventive fill has already
// guaranteed every node on the path has at least T keys, except the
// root.
func (n *Node) remove(key types.Comparable) bool {
	idx := sort.Search(n.N, func(i int) bool {
		return n.Keys[i].Compare(key) >= 0
	})

	if n.Leaf {
		if idx < n.N && n.Keys[idx].Compare(key) == 0 {
			n.Keys = append(n.Keys[:idx], n.Keys[idx+1:]...)
			n.Postings = append(n.Postings[:idx], n.Postings[idx+1:]...)
			n.N--
			return true
		}
		return false
	}

	childIdx := idx
	if idx < n.N && n.Keys[idx].Compare(key) == 0 {
		childIdx = idx + 1
	}

	child := n.Children[childIdx]
	if child.N < n.T {
		n.fill(childIdx)
	}

	return n.removeRecursive(key)
}

func (n *Node) removeRecursive(key types.Comparable) bool {
	idx := sort.Search(n.N, func(i int) bool {
		return n.Keys[i].Compare(key) >= 0
	})

	childIdx := idx
	if idx < n.N && n.Keys[idx].Compare(key) == 0 {
		childIdx = idx + 1
	}
	if childIdx > n.N {
		childIdx = n.N
	}

	ok := n.Children[childIdx].remove(key)
	if ok {
		n.fixSeparators()
	}
	return ok
}

func (n *Node) fixSeparators() {
	if n.Leaf {
		return
	}
	for i := 0; i < n.N; i++ {
		curr := n.Children[i+1]
		for !curr.Leaf {
			curr = curr.Children[0]
		}
		if curr.N > 0 {
			n.Keys[i] = curr.Keys[0]
		}
	}
}

func (n *Node) fill(i int) {
	if i != 0 && n.Children[i-1].N >= n.T {
		n.borrowFromPrev(i)
	} else if i != n.N && n.Children[i+1].N >= n.T {
		n.borrowFromNext(i)
	} else if i != n.N {
		n.merge(i)
	} else {
		n.merge(i - 1)
	}
}

func (n *Node) borrowFromPrev(i int) {
	child := n.Children[i]
	sibling := n.Children[i-1]

	if child.Leaf {
		child.Keys = append([]types.Comparable{nil}, child.Keys...)
		child.Postings = append([]Posting{nil}, child.Postings...)
		child.Keys[0] = sibling.Keys[sibling.N-1]
		child.Postings[0] = sibling.Postings[sibling.N-1]
		child.N++

		sibling.Keys = sibling.Keys[:sibling.N-1]
		sibling.Postings = sibling.Postings[:sibling.N-1]
		sibling.N--

		n.Keys[i-1] = child.Keys[0]
	} else {
		child.Keys = append([]types.Comparable{nil}, child.Keys...)
		child.Children = append([]*Node{nil}, child.Children...)
		child.Keys[0] = n.Keys[i-1]
		child.Children[0] = sibling.Children[sibling.N]
		child.N++

		n.Keys[i-1] = sibling.Keys[sibling.N-1]
		sibling.Keys = sibling.Keys[:sibling.N-1]
		sibling.Children = sibling.Children[:sibling.N]
		sibling.N--
	}
}

func (n *Node) borrowFromNext(i int) {
	child := n.Children[i]
	sibling := n.Children[i+1]

	if child.Leaf {
		child.Keys = append(child.Keys, sibling.Keys[0])
		child.Postings = append(child.Postings, sibling.Postings[0])
		child.N++

		sibling.Keys = append([]types.Comparable{}, sibling.Keys[1:]...)
		sibling.Postings = append([]Posting{}, sibling.Postings[1:]...)
		sibling.N--

		n.Keys[i] = sibling.Keys[0]
	} else {
		child.Keys = append(child.Keys, n.Keys[i])
		child.Children = append(child.Children, sibling.Children[0])
		child.N++

		n.Keys[i] = sibling.Keys[0]
		sibling.Keys = append([]types.Comparable{}, sibling.Keys[1:]...)
		sibling.Children = append([]*Node{}, sibling.Children[1:]...)
		sibling.N--
	}
}

func (n *Node) merge(i int) {
	child := n.Children[i]
	sibling := n.Children[i+1]

	if child.Leaf {
		child.Keys = append(child.Keys, sibling.Keys...)
		child.Postings = append(child.Postings, sibling.Postings...)
		child.Next = sibling.Next
		child.N = len(child.Keys)
	} else {
		child.Keys = append(child.Keys, n.Keys[i])
		child.Keys = append(child.Keys, sibling.Keys...)
		child.Children = append(child.Children, sibling.Children...)
		child.N = len(child.Keys)
	}

	n.Keys = append(n.Keys[:i], n.Keys[i+1:]...)
	n.Children = append(n.Children[:i+1], n.Children[i+2:]...)
	n.N--
}

// Remove is the exported entry point used by tests and by BPlusTree.Delete
// once a key's posting has become empty.
func (n *Node) Remove(key types.Comparable) bool {
	return n.remove(key)
}

func (n *Node) FindLeafLowerBound(key types.Comparable) (*Node, int) {
	return n.findLeafLowerBound(key)
}
