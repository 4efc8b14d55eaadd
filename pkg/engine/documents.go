package engine

import (
	"context"
	"time"

	"github.com/bobboyms/docengine/internal/audit"
	"github.com/bobboyms/docengine/internal/cache"
	"github.com/bobboyms/docengine/pkg/document"
	"github.com/bobboyms/docengine/pkg/txn"
	"github.com/bobboyms/docengine/pkg/wal"
)

// Insert creates a new document in collection from data, running under
// an implicit single-statement transaction so the write is WAL-logged
// and index/cache maintenance happen through the same path a multi-
// statement transaction uses.
func (e *Engine) Insert(ctx context.Context, collection string, data document.Object) (*document.Document, error) {
	started := time.Now()
	doc := document.New(data)

	err := e.withImplicitTxn(ctx, func(t *txn.Txn) error {
		return e.txns.RecordWrite(t, collection, doc.ID, nil, doc, wal.EntryInsert)
	})
	e.observeOp(collection, "insert", outcome(err), started)
	if err != nil {
		return nil, err
	}
	e.record(audit.EventDocumentInserted, "", collection, doc.ID, nil)
	return doc, nil
}

// Get returns a document by id, consulting the hot-document cache
// before falling back to the store.
func (e *Engine) Get(collection, docID string) (*document.Document, error) {
	if e.docCache != nil {
		if doc, ok := e.docCache.Get(cache.Key{Collection: collection, DocID: docID}); ok {
			e.observeCache(true)
			return doc, nil
		}
		e.observeCache(false)
	}
	doc, err := e.store.Get(collection, docID)
	if err != nil {
		return nil, err
	}
	if e.docCache != nil {
		e.docCache.Set(cache.Key{Collection: collection, DocID: docID}, doc)
	}
	return doc, nil
}

// Update replaces a document's data wholesale, bumping its version and
// UpdatedAt the way document.ReplaceData does, under an implicit
// transaction.
func (e *Engine) Update(ctx context.Context, collection, docID string, data document.Object) (*document.Document, error) {
	started := time.Now()
	before, err := e.store.Get(collection, docID)
	if err != nil {
		e.observeOp(collection, "update", "error", started)
		return nil, err
	}
	after := before.Clone()
	after.ReplaceData(data)

	err = e.withImplicitTxn(ctx, func(t *txn.Txn) error {
		return e.txns.RecordWrite(t, collection, docID, before, after, wal.EntryUpdate)
	})
	e.observeOp(collection, "update", outcome(err), started)
	if err != nil {
		return nil, err
	}
	e.record(audit.EventDocumentUpdated, "", collection, docID, nil)
	return after, nil
}

// Delete removes a document under an implicit transaction. On commit,
// the deleted document is handed to the garbage collector as a
// tombstone so its backing storage is reclaimed once the retention
// window elapses.
func (e *Engine) Delete(ctx context.Context, collection, docID string) error {
	started := time.Now()
	err := e.withImplicitTxn(ctx, func(t *txn.Txn) error {
		return e.DeleteIn(t, collection, docID)
	})
	e.observeOp(collection, "delete", outcome(err), started)
	if err != nil {
		return err
	}
	e.record(audit.EventDocumentDeleted, "", collection, docID, nil)
	return nil
}

// withImplicitTxn wraps a single write in a begin/commit pair so every
// mutation, transactional or not, is WAL-logged and undo-capable the
// same way.
func (e *Engine) withImplicitTxn(ctx context.Context, fn func(t *txn.Txn) error) error {
	t, err := e.txns.Begin(ctx, txn.Options{Isolation: txn.ReadCommitted})
	if err != nil {
		return err
	}
	if err := fn(t); err != nil {
		e.pending.take(t.ID)
		_ = e.txns.Abort(t, err.Error())
		return err
	}
	return e.Commit(t)
}

func (e *Engine) observeCache(hit bool) {
	if e.metrics != nil {
		e.metrics.ObserveCacheAccess("documents", hit)
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
