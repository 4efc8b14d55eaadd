// Package engine wires the store, write-ahead log, lock manager,
// transaction coordinator, index registry, cache, garbage collector,
// and optional encryption service into the single entry point a
// transport layer (pkg/wire, a cmd/ binary) programs against.
package engine

import (
	"sort"
	"sync"

	"github.com/bobboyms/docengine/internal/engineerr"
	"github.com/bobboyms/docengine/pkg/btree"
	"github.com/bobboyms/docengine/pkg/document"
	"github.com/bobboyms/docengine/pkg/types"
)

// IndexDescriptor names one index as CreateIndex's caller-facing request:
// a single-field index when len(Fields) == 1, compound otherwise.
type IndexDescriptor struct {
	Name   string
	Fields []string
	Unique bool
	Sparse bool
}

// indexSet tracks every registered index per collection and implements
// query.IndexSource. Generalized from pkg/storage/table.go's
// Table.Indices map[string]*Index (one fixed Index struct per table) into
// two parallel maps over the already-built pkg/btree.Index interface: one
// keyed by leading field (what the query executor probes), one keyed by
// name (what CreateIndex/DropIndex address).
type indexSet struct {
	mu      sync.RWMutex
	byField map[string]map[string]btree.Index // collection -> leading field -> index
	byName  map[string]map[string]btree.Index // collection -> name -> index
}

func newIndexSet() *indexSet {
	return &indexSet{
		byField: make(map[string]map[string]btree.Index),
		byName:  make(map[string]map[string]btree.Index),
	}
}

// IndexFor implements query.IndexSource.
func (s *indexSet) IndexFor(collection, field string) (btree.Index, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byField[collection][field]
	return idx, ok
}

func (s *indexSet) register(collection, leadingField string, idx btree.Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byName[collection] == nil {
		s.byName[collection] = make(map[string]btree.Index)
		s.byField[collection] = make(map[string]btree.Index)
	}
	if _, exists := s.byName[collection][idx.Name()]; exists {
		return &engineerr.AlreadyExistsError{Kind: engineerr.AlreadyExistsIndex, ID: idx.Name()}
	}
	s.byName[collection][idx.Name()] = idx
	// The leading field wins the probe slot only if nothing is
	// registered there yet, so the first index on a field stays the
	// one the executor's leading-condition match picks.
	if _, taken := s.byField[collection][leadingField]; !taken {
		s.byField[collection][leadingField] = idx
	}
	return nil
}

func (s *indexSet) drop(collection, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byName[collection][name]
	if !ok {
		return &engineerr.NotFoundError{Kind: engineerr.NotFoundIndex, ID: name}
	}
	delete(s.byName[collection], name)
	for field, candidate := range s.byField[collection] {
		if candidate.Name() == name {
			delete(s.byField[collection], field)
		}
	}
	_ = idx
	return nil
}

func (s *indexSet) list(collection string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.byName[collection]))
	for name := range s.byName[collection] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *indexSet) dropCollection(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byName, collection)
	delete(s.byField, collection)
}

func (s *indexSet) forCollection(collection string) []btree.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]btree.Index, 0, len(s.byName[collection]))
	for _, idx := range s.byName[collection] {
		out = append(out, idx)
	}
	return out
}

func (s *indexSet) onInsert(collection string, doc *document.Document) error {
	for _, idx := range s.forCollection(collection) {
		if err := idx.OnInsert(doc); err != nil {
			return err
		}
	}
	return nil
}

func (s *indexSet) onUpdate(collection string, oldDoc, newDoc *document.Document) error {
	for _, idx := range s.forCollection(collection) {
		if err := idx.OnUpdate(oldDoc, newDoc); err != nil {
			return err
		}
	}
	return nil
}

func (s *indexSet) onDelete(collection string, doc *document.Document) error {
	for _, idx := range s.forCollection(collection) {
		if err := idx.OnDelete(doc); err != nil {
			return err
		}
	}
	return nil
}

// buildIndex constructs the concrete btree.Index for a descriptor. t is
// the B+tree order shared by every index (pkg/storage/table.go took this
// as a NewTable parameter too).
func buildIndex(desc IndexDescriptor, t int) btree.Index {
	if len(desc.Fields) == 1 {
		field := desc.Fields[0]
		extractor := func(doc *document.Document) types.Comparable {
			key, _ := types.FromPath(doc.Data, field)
			return key
		}
		if desc.Sparse {
			return btree.NewSparse(desc.Name, t, desc.Unique, extractor)
		}
		return btree.NewBase(desc.Name, t, desc.Unique, extractor)
	}
	if desc.Sparse {
		return btree.NewSparseCompound(desc.Name, t, desc.Unique, desc.Fields)
	}
	return btree.NewCompound(desc.Name, t, desc.Unique, desc.Fields)
}
