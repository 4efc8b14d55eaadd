package engine

import (
	"context"
	"sync"
	"time"

	"github.com/bobboyms/docengine/pkg/document"
	"github.com/bobboyms/docengine/pkg/txn"
	"github.com/bobboyms/docengine/pkg/wal"
)

type pendingTombstone struct {
	collection, docID string
}

// pendingDeletes buffers DeleteIn calls per transaction id until
// Commit, so an aborted or rolled-back transaction leaves the garbage
// collector nothing to reclaim for documents it never actually removed.
type pendingDeletes struct {
	mu      sync.Mutex
	byTxnID map[string][]pendingTombstone
}

func newPendingDeletes() *pendingDeletes {
	return &pendingDeletes{byTxnID: make(map[string][]pendingTombstone)}
}

func (p *pendingDeletes) add(txnID, collection, docID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byTxnID[txnID] = append(p.byTxnID[txnID], pendingTombstone{collection: collection, docID: docID})
}

func (p *pendingDeletes) take(txnID string) []pendingTombstone {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.byTxnID[txnID]
	delete(p.byTxnID, txnID)
	return out
}

// Begin starts a new multi-statement transaction. Callers drive it with
// InsertIn/GetIn/UpdateIn/DeleteIn and finish with Commit or Rollback.
func (e *Engine) Begin(ctx context.Context, opts txn.Options) (*txn.Txn, error) {
	return e.txns.Begin(ctx, opts)
}

// Commit finalizes t, making its writes durable and visible, and hands
// off any documents t deleted to the garbage collector's tombstone set.
func (e *Engine) Commit(t *txn.Txn) error {
	if err := e.txns.Commit(t); err != nil {
		e.pending.take(t.ID) // commit failed; these deletes never took effect
		return err
	}
	now := time.Now()
	for _, tomb := range e.pending.take(t.ID) {
		e.collector.Record(tomb.collection, tomb.docID, now)
	}
	return nil
}

// Rollback undoes every write t has made and releases its locks,
// discarding any deletes it had buffered for the garbage collector.
func (e *Engine) Rollback(ctx context.Context, t *txn.Txn) error {
	e.pending.take(t.ID)
	return e.txns.Rollback(ctx, t)
}

// Savepoint marks a point in t's write history RollbackTo can return to
// without aborting the whole transaction.
func (e *Engine) Savepoint(t *txn.Txn, name string) error {
	return e.txns.Savepoint(t, name)
}

// RollbackTo undoes every write made since the named savepoint.
func (e *Engine) RollbackTo(t *txn.Txn, name string) error {
	return e.txns.RollbackTo(t, name)
}

// GetIn reads a document within t. At RepeatableRead and above the read
// is recorded in t's read set, and at Serializable a Shared lock on the
// document is held until t ends; the read set itself is not checked for
// conflicting writes.
func (e *Engine) GetIn(t *txn.Txn, collection, docID string) (*document.Document, error) {
	if err := e.txns.RecordRead(t, collection, docID); err != nil {
		return nil, err
	}
	return e.store.Get(collection, docID)
}

// InsertIn creates a document within t.
func (e *Engine) InsertIn(t *txn.Txn, collection string, data document.Object) (*document.Document, error) {
	doc := document.New(data)
	if err := e.txns.RecordWrite(t, collection, doc.ID, nil, doc, wal.EntryInsert); err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateIn replaces a document's data within t.
func (e *Engine) UpdateIn(t *txn.Txn, collection, docID string, data document.Object) (*document.Document, error) {
	before, err := e.store.Get(collection, docID)
	if err != nil {
		return nil, err
	}
	after := before.Clone()
	after.ReplaceData(data)
	if err := e.txns.RecordWrite(t, collection, docID, before, after, wal.EntryUpdate); err != nil {
		return nil, err
	}
	return after, nil
}

// DeleteIn removes a document within t. The tombstone is only handed
// to the garbage collector once t commits, since an aborted delete
// must leave nothing for the collector to reclaim.
func (e *Engine) DeleteIn(t *txn.Txn, collection, docID string) error {
	before, err := e.store.Get(collection, docID)
	if err != nil {
		return err
	}
	if err := e.txns.RecordWrite(t, collection, docID, before, nil, wal.EntryDelete); err != nil {
		return err
	}
	e.pending.add(t.ID, collection, docID)
	return nil
}

// ActiveTransactions lists the ids of every transaction currently open.
func (e *Engine) ActiveTransactions() []string {
	return e.txns.ActiveTxnIDs()
}
