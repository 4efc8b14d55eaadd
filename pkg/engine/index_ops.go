package engine

import "github.com/bobboyms/docengine/internal/engineerr"

// CreateIndex registers a new index on collection and backfills it
// from every document already present. A compound index is created
// when len(desc.Fields) > 1.
func (e *Engine) CreateIndex(collection string, desc IndexDescriptor) error {
	if len(desc.Fields) == 0 {
		return &engineerr.ArgumentInvalidError{Argument: "fields", Reason: "an index needs at least one field"}
	}
	if _, err := e.store.Count(collection); err != nil {
		return err
	}
	idx := buildIndex(desc, indexOrder)

	docs, err := e.store.GetAll(collection)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := idx.OnInsert(doc); err != nil {
			return err
		}
	}

	leading := desc.Fields[0]
	return e.indexes.register(collection, leading, idx)
}

// DropIndex removes a named index from collection.
func (e *Engine) DropIndex(collection, name string) error {
	return e.indexes.drop(collection, name)
}

// ListIndexes names every index registered on collection, sorted.
func (e *Engine) ListIndexes(collection string) []string {
	return e.indexes.list(collection)
}
