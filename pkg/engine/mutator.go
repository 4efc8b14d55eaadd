package engine

import (
	"github.com/bobboyms/docengine/internal/cache"
	"github.com/bobboyms/docengine/pkg/document"
	"github.com/bobboyms/docengine/pkg/store"
)

// storeMutator implements txn.Mutator, layering index maintenance and
// cache invalidation on top of the store's own Apply. The transaction
// coordinator calls Apply as each write is recorded (before commit) and
// again with before/after swapped when undoing it, always holding the
// document's exclusive lock, so index updates here need no locking of
// their own.
type storeMutator struct {
	store   *store.Store
	indexes *indexSet
	cache   *cache.Cache[*document.Document]
}

func (m *storeMutator) Apply(collection, docID string, before, after *document.Document) error {
	if err := m.store.Apply(collection, docID, before, after); err != nil {
		return err
	}

	var err error
	switch {
	case before == nil && after != nil:
		err = m.indexes.onInsert(collection, after)
	case before != nil && after != nil:
		err = m.indexes.onUpdate(collection, before, after)
	case after == nil && before != nil:
		err = m.indexes.onDelete(collection, before)
	}
	if err != nil {
		return err
	}

	if m.cache == nil {
		return nil
	}
	key := cache.Key{Collection: collection, DocID: docID}
	if after == nil {
		m.cache.Invalidate(key)
	} else {
		m.cache.Set(key, after)
	}
	return nil
}

// atomicStore adapts *store.Store plus index maintenance and cache
// invalidation to atomicupdate.Store, so field-level mutations (which
// bypass the transaction coordinator entirely, running instead under
// the atomic-update engine's own per-document latch) still keep indexes
// and the cache consistent with what's on disk.
type atomicStore struct {
	store   *store.Store
	indexes *indexSet
	cache   *cache.Cache[*document.Document]
}

func (a *atomicStore) Get(collection, docID string) (*document.Document, error) {
	return a.store.Get(collection, docID)
}

func (a *atomicStore) Update(collection, docID string, replacement *document.Document) error {
	before, err := a.store.Get(collection, docID)
	if err != nil {
		return err
	}
	if err := a.store.Update(collection, docID, replacement); err != nil {
		return err
	}
	if err := a.indexes.onUpdate(collection, before, replacement); err != nil {
		return err
	}
	if a.cache != nil {
		a.cache.Set(cache.Key{Collection: collection, DocID: docID}, replacement)
	}
	return nil
}
