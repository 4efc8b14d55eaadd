package btree

import (
	"github.com/bobboyms/docengine/pkg/document"
	"github.com/bobboyms/docengine/pkg/types"
)

// Extractor projects an index key from a document. Returning a Null
// Comparable (types.NullKey{}) signals "this document has no value for
// this index" to sparse wrappers.
type Extractor func(doc *document.Document) types.Comparable

// Index is the common contract the query engine and atomic-update
// engine program against: a sorted key → posting-set mapping plus the
// bookkeeping a store needs when a document is inserted, updated, or
// deleted. Grounded on pkg/storage/table.go's Index struct
// (Name/Primary/Type/Tree), generalized so the tree, the sparse filter,
// and the compound-key projection compose as wrappers instead of being
// baked into one fixed struct shape.
type Index interface {
	Name() string
	Kind() string // "B-Tree", "Unique B-Tree", "Sparse B-Tree" or "Unique Sparse B-Tree"; compound indexes report the same kinds, without "Compound"
	Unique() bool
	OnInsert(doc *document.Document) error
	OnUpdate(oldDoc, newDoc *document.Document) error
	OnDelete(doc *document.Document) error
	Get(key types.Comparable) (Posting, bool)
	Range(lo, hi types.Comparable) []string
}

// Base is a plain (non-sparse) single-field or compound index backed
// directly by a BPlusTree. Sparse wraps a Base to add the null-skip
// behavior; Base itself always indexes every document, even ones whose
// extractor yields NullKey. A store could instead choose to omit nulls
// even for a non-sparse index; this implementation always indexes them,
// the simpler of the two reasonable choices.
type Base struct {
	name      string
	tree      *BPlusTree
	extractor Extractor
}

// NewBase builds a plain index. unique selects a UniqueTree.
func NewBase(name string, t int, unique bool, extractor Extractor) *Base {
	var tree *BPlusTree
	if unique {
		tree = NewUniqueTree(t)
	} else {
		tree = NewTree(t)
	}
	return &Base{name: name, tree: tree, extractor: extractor}
}

func (b *Base) Name() string { return b.name }

func (b *Base) Kind() string {
	if b.tree.UniqueKey {
		return "Unique B-Tree"
	}
	return "B-Tree"
}

func (b *Base) Unique() bool { return b.tree.UniqueKey }

func (b *Base) OnInsert(doc *document.Document) error {
	key := b.extractor(doc)
	return b.tree.Insert(key, doc.ID)
}

func (b *Base) OnUpdate(oldDoc, newDoc *document.Document) error {
	oldKey := b.extractor(oldDoc)
	newKey := b.extractor(newDoc)
	if oldKey.Compare(newKey) == 0 {
		return nil
	}
	if err := b.tree.Insert(newKey, newDoc.ID); err != nil {
		return err
	}
	return b.tree.Delete(oldKey, oldDoc.ID)
}

func (b *Base) OnDelete(doc *document.Document) error {
	key := b.extractor(doc)
	return b.tree.Delete(key, doc.ID)
}

func (b *Base) Get(key types.Comparable) (Posting, bool) {
	return b.tree.Get(key)
}

func (b *Base) Range(lo, hi types.Comparable) []string {
	var ids []string
	b.tree.RangeScan(lo, hi, func(_ types.Comparable, p Posting) bool {
		ids = append(ids, p.IDs()...)
		return true
	})
	return ids
}

// Sparse wraps an Index so documents whose extractor yields NullKey are
// never indexed at all — distinct from Base's "always index, even
// null" default: if the extractor yields null, the document is simply
// absent from the tree.
type Sparse struct {
	inner *Base
}

func NewSparse(name string, t int, unique bool, extractor Extractor) *Sparse {
	return &Sparse{inner: NewBase(name, t, unique, extractor)}
}

func (s *Sparse) Name() string { return s.inner.name }

func (s *Sparse) Kind() string {
	if s.inner.Unique() {
		return "Unique Sparse B-Tree"
	}
	return "Sparse B-Tree"
}

func (s *Sparse) Unique() bool { return s.inner.Unique() }

func isNull(key types.Comparable) bool {
	_, ok := key.(types.NullKey)
	return ok
}

func (s *Sparse) OnInsert(doc *document.Document) error {
	key := s.inner.extractor(doc)
	if isNull(key) {
		return nil
	}
	return s.inner.tree.Insert(key, doc.ID)
}

func (s *Sparse) OnUpdate(oldDoc, newDoc *document.Document) error {
	oldKey := s.inner.extractor(oldDoc)
	newKey := s.inner.extractor(newDoc)
	if !isNull(oldKey) {
		if err := s.inner.tree.Delete(oldKey, oldDoc.ID); err != nil {
			return err
		}
	}
	if !isNull(newKey) {
		return s.inner.tree.Insert(newKey, newDoc.ID)
	}
	return nil
}

func (s *Sparse) OnDelete(doc *document.Document) error {
	key := s.inner.extractor(doc)
	if isNull(key) {
		return nil
	}
	return s.inner.tree.Delete(key, doc.ID)
}

func (s *Sparse) Get(key types.Comparable) (Posting, bool) { return s.inner.Get(key) }
func (s *Sparse) Range(lo, hi types.Comparable) []string    { return s.inner.Range(lo, hi) }

// NewCompound builds an index whose key is an N-tuple of the given
// paths' projected values, compared lexicographically with null-first
// ordering — the extractor itself does the tuple assembly so Base and
// Sparse need no compound-specific code.
func NewCompound(name string, t int, unique bool, paths []string) *Base {
	extractor := func(doc *document.Document) types.Comparable {
		key, _ := types.FromPaths(doc.Data, paths)
		return key
	}
	base := NewBase(name, t, unique, extractor)
	return base
}

// NewSparseCompound is NewCompound wrapped in sparse null-skip
// semantics: a document with every compound component absent produces
// an all-null CompoundKey, treated as "no value" for sparseness.
func NewSparseCompound(name string, t int, unique bool, paths []string) *Sparse {
	extractor := func(doc *document.Document) types.Comparable {
		key, anyPresent := types.FromPaths(doc.Data, paths)
		if !anyPresent {
			return types.NullKey{}
		}
		return key
	}
	return &Sparse{inner: NewBase(name, t, unique, extractor)}
}
