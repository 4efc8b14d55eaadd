// Package store implements the document store: a collection → (id →
// document) map protected by a per-collection read/write latch, with
// optional hybrid persistence to one JSON file per document under
// <data_root>/<collection>/<doc_id>.json. Grounded on pkg/storage/table.go's
// per-table map-of-rows layout, metadata map guarded separately from row
// data, and pkg/storage/engine.go's package-level metaMu distinct from
// each table's own lock.
package store

import (
	"os"
	"sync"

	"github.com/bobboyms/docengine/internal/engineerr"
	"github.com/bobboyms/docengine/pkg/document"
)

// collection is one named bucket of documents, latched independently of
// every other collection so operations on "carts" never contend with
// operations on "users".
type collection struct {
	mu   sync.RWMutex
	docs map[string]*document.Document
}

func newCollection() *collection {
	return &collection{docs: make(map[string]*document.Document)}
}

// Store is the in-memory document store, optionally hybrid-persisted
// through a fileWriter. metaMu guards the collections map itself (its
// membership), distinct from each collection's own latch over its rows,
// the same two-tier split as a package-level metaMu plus per-table state.
type Store struct {
	metaMu      sync.RWMutex
	collections map[string]*collection

	writer *fileWriter // nil for a pure in-memory store
}

// New builds a memory-only Store.
func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

// NewHybrid builds a Store that also persists one JSON file per
// document under dataRoot, via a background writer queue.
func NewHybrid(dataRoot string, queueSize int) (*Store, error) {
	w, err := newFileWriter(dataRoot, queueSize)
	if err != nil {
		return nil, err
	}
	return &Store{collections: make(map[string]*collection), writer: w}, nil
}

// CreateCollection registers an empty collection. A second call for the
// same name is a no-op success rather than an error, the safer default
// for callers that don't track whether they've already created it.
func (s *Store) CreateCollection(name string) error {
	if name == "" {
		return &engineerr.InvalidNameError{Name: name, Reason: "collection name must not be empty"}
	}
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	if _, ok := s.collections[name]; ok {
		return nil
	}
	s.collections[name] = newCollection()
	if s.writer != nil {
		return s.writer.ensureDir(name)
	}
	return nil
}

// DropCollection removes a collection and, for hybrid stores, its
// on-disk directory.
func (s *Store) DropCollection(name string) error {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	if _, ok := s.collections[name]; !ok {
		return &engineerr.NotFoundError{Kind: engineerr.NotFoundCollection, ID: name}
	}
	delete(s.collections, name)
	if s.writer != nil {
		return s.writer.removeDir(name)
	}
	return nil
}

// GetCollections lists every registered collection name.
func (s *Store) GetCollections() []string {
	s.metaMu.RLock()
	defer s.metaMu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	return names
}

func (s *Store) lookup(name string) (*collection, error) {
	s.metaMu.RLock()
	defer s.metaMu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, &engineerr.NotFoundError{Kind: engineerr.NotFoundCollection, ID: name}
	}
	return c, nil
}

// Insert adds doc to collection. Fails AlreadyExists if doc.ID is
// already present — the same id in a different collection is
// permitted, since collections are independent namespaces.
func (s *Store) Insert(collectionName string, doc *document.Document) error {
	c, err := s.lookup(collectionName)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if _, exists := c.docs[doc.ID]; exists {
		c.mu.Unlock()
		return &engineerr.AlreadyExistsError{Kind: engineerr.AlreadyExistsDocument, ID: doc.ID}
	}
	c.docs[doc.ID] = doc.Clone()
	c.mu.Unlock()

	if s.writer != nil {
		s.writer.enqueue(collectionName, doc.ID, doc.Clone())
	}
	return nil
}

// Update replaces the document at docID with replacement, preserving
// the caller's responsibility to have bumped Version/UpdatedAt
// (pkg/atomicupdate does this before calling Update; transactional
// writes reach the store through Apply instead).
func (s *Store) Update(collectionName, docID string, replacement *document.Document) error {
	c, err := s.lookup(collectionName)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if _, exists := c.docs[docID]; !exists {
		c.mu.Unlock()
		return &engineerr.NotFoundError{Kind: engineerr.NotFoundDocument, ID: docID}
	}
	c.docs[docID] = replacement.Clone()
	c.mu.Unlock()

	if s.writer != nil {
		s.writer.enqueue(collectionName, docID, replacement.Clone())
	}
	return nil
}

// Get returns a defensive clone of the document, or NotFound.
func (s *Store) Get(collectionName, docID string) (*document.Document, error) {
	c, err := s.lookup(collectionName)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	doc, ok := c.docs[docID]
	c.mu.RUnlock()
	if !ok {
		return nil, &engineerr.NotFoundError{Kind: engineerr.NotFoundDocument, ID: docID}
	}
	return doc.Clone(), nil
}

// Delete removes the document, returning the pre-delete image so the
// caller (the tombstone GC, the transaction coordinator) can schedule
// file removal / undo.
func (s *Store) Delete(collectionName, docID string) (*document.Document, error) {
	c, err := s.lookup(collectionName)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	doc, ok := c.docs[docID]
	if !ok {
		c.mu.Unlock()
		return nil, &engineerr.NotFoundError{Kind: engineerr.NotFoundDocument, ID: docID}
	}
	delete(c.docs, docID)
	c.mu.Unlock()

	if s.writer != nil {
		s.writer.enqueueDelete(collectionName, docID)
	}
	return doc, nil
}

// Exists reports whether docID is present without cloning it.
func (s *Store) Exists(collectionName, docID string) (bool, error) {
	c, err := s.lookup(collectionName)
	if err != nil {
		return false, err
	}
	c.mu.RLock()
	_, ok := c.docs[docID]
	c.mu.RUnlock()
	return ok, nil
}

// Count returns the number of documents currently in the collection.
func (s *Store) Count(collectionName string) (int, error) {
	c, err := s.lookup(collectionName)
	if err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs), nil
}

// GetAll returns a clone of every document in the collection. Callers
// needing filtering/sorting/pagination go through pkg/query instead,
// which calls GetAll (or, with an index, a narrower id set via Get) as
// its scan fallback.
func (s *Store) GetAll(collectionName string) ([]*document.Document, error) {
	c, err := s.lookup(collectionName)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*document.Document, 0, len(c.docs))
	for _, doc := range c.docs {
		out = append(out, doc.Clone())
	}
	return out, nil
}

// ClearCollection removes every document from collectionName without
// dropping its registration.
func (s *Store) ClearCollection(collectionName string) error {
	c, err := s.lookup(collectionName)
	if err != nil {
		return err
	}
	c.mu.Lock()
	ids := make([]string, 0, len(c.docs))
	for id := range c.docs {
		ids = append(ids, id)
	}
	c.docs = make(map[string]*document.Document)
	c.mu.Unlock()

	if s.writer != nil {
		for _, id := range ids {
			s.writer.enqueueDelete(collectionName, id)
		}
	}
	return nil
}

// RemoveFile synchronously removes the on-disk file backing
// (collectionName, docID), idempotently: a file that is already gone
// reports NotFoundError rather than an error, so a retrying caller
// (the tombstone GC's Remover, covering the case where the background
// writer's async delete silently failed or never ran before a restart)
// can treat NotFoundError as success. A no-op error for a memory-only
// store, since there is no file to remove.
func (s *Store) RemoveFile(collectionName, docID string) error {
	if s.writer == nil {
		return nil
	}
	path := s.writer.pathFor(collectionName, docID)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return &engineerr.NotFoundError{Kind: engineerr.NotFoundDocument, ID: docID}
		}
		return &engineerr.IOError{Op: "remove document file", Err: err}
	}
	return nil
}

// Flush blocks until every queued file write has been applied. No-op
// for a memory-only store.
func (s *Store) Flush() error {
	if s.writer == nil {
		return nil
	}
	return s.writer.flush()
}

// Close drains and stops the background writer, if any.
func (s *Store) Close() error {
	if s.writer == nil {
		return nil
	}
	return s.writer.close()
}

// Apply implements txn.Mutator: before==nil means insert, after==nil
// means delete, both non-nil means update/replace. It bypasses the
// Insert/Update/Delete existence checks above because the transaction
// coordinator has already validated preconditions and holds the
// document's exclusive lock for the duration of the call.
func (s *Store) Apply(collectionName, docID string, before, after *document.Document) error {
	c, err := s.lookup(collectionName)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if after == nil {
		delete(c.docs, docID)
	} else {
		c.docs[docID] = after.Clone()
	}
	c.mu.Unlock()

	if s.writer == nil {
		return nil
	}
	if after == nil {
		s.writer.enqueueDelete(collectionName, docID)
	} else {
		s.writer.enqueue(collectionName, docID, after.Clone())
	}
	return nil
}
