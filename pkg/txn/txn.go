// Package txn implements the transaction coordinator: isolation-level
// aware read/write tracking, a write-ahead-logged commit/rollback
// protocol built on pkg/wal, and exclusive-latch acquisition through
// pkg/lockmgr. Mirrors pkg/storage/transaction_write.go's
// write-set-then-commit shape but replaces snapshot-isolation MVCC with
// pessimistic locking per document, matching the contract the store and
// atomic-update engine both call into.
package txn

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bobboyms/docengine/internal/engineerr"
	"github.com/bobboyms/docengine/internal/events"
	"github.com/bobboyms/docengine/pkg/document"
	"github.com/bobboyms/docengine/pkg/lockmgr"
	"github.com/bobboyms/docengine/pkg/wal"
	"github.com/rs/zerolog"
)

// Isolation is one of the four isolation levels the coordinator honors.
type Isolation uint8

const (
	ReadUncommitted Isolation = iota
	ReadCommitted
	RepeatableRead
	Serializable
)

func (i Isolation) String() string {
	switch i {
	case ReadUncommitted:
		return "ReadUncommitted"
	case ReadCommitted:
		return "ReadCommitted"
	case RepeatableRead:
		return "RepeatableRead"
	case Serializable:
		return "Serializable"
	}
	return "Unknown"
}

// trackReads reports whether this level records a read-set at all.
func (i Isolation) trackReads() bool { return i >= RepeatableRead }

// holdsReadLocks reports whether read locks are held until commit.
func (i Isolation) holdsReadLocks() bool { return i == Serializable }

// State is the transaction's position in its lifecycle.
type State uint8

const (
	Active State = iota
	Preparing
	Committed
	RolledBack
	Aborted
)

func (s State) String() string {
	switch s {
	case Active:
		return "Active"
	case Preparing:
		return "Preparing"
	case Committed:
		return "Committed"
	case RolledBack:
		return "RolledBack"
	case Aborted:
		return "Aborted"
	}
	return "Unknown"
}

// Mutator applies a transaction's logical mutation to the backing
// store. before == nil means the write is an insert; after == nil
// means it is a delete. Implemented by pkg/store.
type Mutator interface {
	Apply(collection, docID string, before, after *document.Document) error
}

// Options configures a new transaction.
type Options struct {
	Isolation Isolation
	Timeout   time.Duration // 0 means no deadline beyond ctx's own
}

type writeEntry struct {
	collection string
	docID      string
	before     *document.Document
	after      *document.Document
	opType     wal.EntryType
}

// Txn is a single in-flight transaction. Exported fields are read-only
// snapshots for callers (e.g. health queries); all mutation goes
// through the coordinator.
type Txn struct {
	ID        string
	Isolation Isolation
	StartedAt time.Time

	mu         sync.Mutex
	state      State
	writeSet   []writeEntry
	savepoints map[string]int
	readSet    map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

func (t *Txn) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Context returns the transaction's context; callers that wrap store
// calls pass this through so the auto-rollback watcher can observe
// cancellation.
func (t *Txn) Context() context.Context { return t.ctx }

// Coordinator wires the lock manager, WAL, and document mutator into
// the begin/commit/rollback/savepoint protocol.
type Coordinator struct {
	locks   *lockmgr.Manager
	log     *wal.Log
	mutator Mutator
	sinks   []events.TransactionSink
	logger  zerolog.Logger

	seq uint64 // atomic monotonically increasing id source

	mu     sync.Mutex
	active map[string]*Txn
}

// New builds a Coordinator.
func New(locks *lockmgr.Manager, log *wal.Log, mutator Mutator, logger zerolog.Logger, sinks ...events.TransactionSink) *Coordinator {
	return &Coordinator{
		locks:   locks,
		log:     log,
		mutator: mutator,
		sinks:   sinks,
		logger:  logger,
		active:  make(map[string]*Txn),
	}
}

// nextID mints an id that sorts lexicographically in start order, so
// lockmgr's "most recently started" victim rule (string comparison)
// agrees with actual start order.
func (c *Coordinator) nextID() string {
	n := atomic.AddUint64(&c.seq, 1)
	return fmt.Sprintf("txn-%020d", n)
}

// Begin starts a new transaction bound to parent. If parent carries a
// deadline, the transaction inherits it; Options.Timeout imposes an
// additional one if set.
func (c *Coordinator) Begin(parent context.Context, opts Options) (*Txn, error) {
	ctx := parent
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, opts.Timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}

	t := &Txn{
		ID:         c.nextID(),
		Isolation:  opts.Isolation,
		StartedAt:  time.Now().UTC(),
		state:      Active,
		savepoints: make(map[string]int),
		readSet:    make(map[string]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}

	if _, err := c.log.Append(wal.EntryBegin, t.ID, nil); err != nil {
		cancel()
		return nil, &engineerr.IOError{Op: "wal append begin", Err: err}
	}

	c.mu.Lock()
	c.active[t.ID] = t
	c.mu.Unlock()

	go c.watchAutoRollback(t)

	return t, nil
}

func (c *Coordinator) watchAutoRollback(t *Txn) {
	<-t.ctx.Done()
	if t.State() != Active {
		return
	}
	c.logger.Debug().Str("txn", t.ID).Msg("context dropped while active, auto-rolling back")
	_ = c.Rollback(context.Background(), t)
}

// RecordRead tracks a document read for isolation levels that need it,
// acquiring a Shared lock held until commit at Serializable.
func (c *Coordinator) RecordRead(t *Txn, collection, docID string) error {
	if !t.Isolation.trackReads() {
		return nil
	}
	resource := resourceKey(collection, docID)

	if t.Isolation.holdsReadLocks() {
		res, err := c.locks.Acquire(t.ctx, t.ID, resource, lockmgr.Shared)
		if err != nil {
			return err
		}
		switch res {
		case lockmgr.TimedOut:
			return lockmgr.TimeoutError(resource)
		case lockmgr.DeadlockVictim:
			_ = c.doAbort(t, "deadlock")
			return lockmgr.DeniedError(resource)
		}
	}

	t.mu.Lock()
	t.readSet[resource] = struct{}{}
	t.mu.Unlock()
	return nil
}

// RecordWrite executes the per-write protocol: acquire Exclusive,
// append the WAL record, apply the mutation, record the write-set
// entry for undo. opType selects Insert/Update/Delete.
func (c *Coordinator) RecordWrite(t *Txn, collection, docID string, before, after *document.Document, opType wal.EntryType) error {
	if t.State() != Active {
		return &engineerr.TransactionError{TxnID: t.ID, State: t.State().String(), Msg: "write after transaction left Active"}
	}

	resource := resourceKey(collection, docID)
	res, err := c.locks.Acquire(t.ctx, t.ID, resource, lockmgr.Exclusive)
	if err != nil {
		return err
	}
	switch res {
	case lockmgr.TimedOut:
		return lockmgr.TimeoutError(resource)
	case lockmgr.DeadlockVictim:
		_ = c.doAbort(t, "deadlock")
		return lockmgr.DeniedError(resource)
	}

	payload, err := wal.EncodeOpPayload(opPayloadFor(collection, docID, before, after))
	if err != nil {
		return &engineerr.IOError{Op: "encode op payload", Err: err}
	}
	if _, err := c.log.Append(opType, t.ID, payload); err != nil {
		return &engineerr.IOError{Op: "wal append write", Err: err}
	}

	if err := c.mutator.Apply(collection, docID, before, after); err != nil {
		return err
	}

	t.mu.Lock()
	t.writeSet = append(t.writeSet, writeEntry{
		collection: collection,
		docID:      docID,
		before:     before,
		after:      after,
		opType:     opType,
	})
	t.mu.Unlock()
	return nil
}

func opPayloadFor(collection, docID string, before, after *document.Document) wal.OpPayload {
	p := wal.OpPayload{Collection: collection, DocID: docID}
	if before != nil {
		if raw, err := document.MarshalDocumentBSON(before); err == nil {
			p.Before = raw
		}
	}
	if after != nil {
		if raw, err := document.MarshalDocumentBSON(after); err == nil {
			p.After = raw
		}
	}
	return p
}

// Savepoint records a named marker at the current write-set index.
func (c *Coordinator) Savepoint(t *Txn, name string) error {
	if t.State() != Active {
		return &engineerr.TransactionError{TxnID: t.ID, State: t.State().String(), Msg: "savepoint on non-active transaction"}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.savepoints[name] = len(t.writeSet)
	return nil
}

// RollbackTo undoes every write-set entry added since name was marked
// and discards savepoints created after it, without ending the
// transaction.
func (c *Coordinator) RollbackTo(t *Txn, name string) error {
	t.mu.Lock()
	mark, ok := t.savepoints[name]
	if !ok {
		t.mu.Unlock()
		return &engineerr.NotFoundError{Kind: engineerr.NotFoundTransaction, ID: name}
	}
	toUndo := append([]writeEntry(nil), t.writeSet[mark:]...)
	t.writeSet = t.writeSet[:mark]
	for sp, idx := range t.savepoints {
		if idx > mark {
			delete(t.savepoints, sp)
		}
	}
	t.mu.Unlock()

	return c.undo(t, toUndo)
}

func (c *Coordinator) undo(t *Txn, entries []writeEntry) error {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if err := c.mutator.Apply(e.collection, e.docID, e.after, e.before); err != nil {
			return err
		}
	}
	return nil
}

// Commit transitions Active→Preparing, appends and fsyncs Commit,
// transitions Committed, releases every lock, and notifies sinks. Any
// failure along the way triggers a rollback instead.
func (c *Coordinator) Commit(t *Txn) error {
	t.mu.Lock()
	if t.state != Active {
		state := t.state
		t.mu.Unlock()
		return &engineerr.TransactionError{TxnID: t.ID, State: state.String(), Msg: "commit on non-active transaction"}
	}
	t.state = Preparing
	t.mu.Unlock()

	if _, err := c.log.Append(wal.EntryCommit, t.ID, nil); err != nil {
		_ = c.Rollback(context.Background(), t)
		return &engineerr.IOError{Op: "wal append commit", Err: err}
	}
	if err := c.log.Sync(); err != nil {
		_ = c.Rollback(context.Background(), t)
		return &engineerr.IOError{Op: "wal sync commit", Err: err}
	}

	t.mu.Lock()
	t.state = Committed
	t.mu.Unlock()

	t.cancel()
	c.locks.ReleaseAll(t.ID)
	c.removeActive(t.ID)

	for _, s := range c.sinks {
		s.OnTransactionCommitted(t.ID)
	}
	return nil
}

// Rollback applies before-images in reverse, appends Rollback, releases
// locks, and transitions RolledBack. Safe to call on a transaction
// already left Active only via Abort's internal path; external callers
// should only roll back Active transactions.
func (c *Coordinator) Rollback(ctx context.Context, t *Txn) error {
	return c.finishWithUndo(t, wal.EntryRollback, RolledBack, "")
}

// Abort marks the transaction Aborted with reason, undoing its
// write-set the same way Rollback does. Used for coordinator-detected
// failures such as a deadlock victim or an expired timeout.
func (c *Coordinator) Abort(t *Txn, reason string) error {
	return c.doAbort(t, reason)
}

func (c *Coordinator) doAbort(t *Txn, reason string) error {
	return c.finishWithUndo(t, wal.EntryRollback, Aborted, reason)
}

func (c *Coordinator) finishWithUndo(t *Txn, entryType wal.EntryType, final State, reason string) error {
	t.mu.Lock()
	if t.state != Active && t.state != Preparing {
		state := t.state
		t.mu.Unlock()
		if state == final {
			return nil
		}
		return &engineerr.TransactionError{TxnID: t.ID, State: state.String(), Msg: "rollback on finished transaction"}
	}
	entries := append([]writeEntry(nil), t.writeSet...)
	t.mu.Unlock()

	if err := c.undo(t, entries); err != nil {
		c.logger.Error().Err(err).Str("txn", t.ID).Msg("undo failed during rollback")
	}

	if _, err := c.log.Append(entryType, t.ID, nil); err != nil {
		c.logger.Error().Err(err).Str("txn", t.ID).Msg("wal append rollback record failed")
	}

	t.mu.Lock()
	t.state = final
	t.mu.Unlock()

	t.cancel()
	c.locks.ReleaseAll(t.ID)
	c.removeActive(t.ID)

	for _, s := range c.sinks {
		s.OnTransactionRolledBack(t.ID, reason)
	}
	return nil
}

func (c *Coordinator) removeActive(id string) {
	c.mu.Lock()
	delete(c.active, id)
	c.mu.Unlock()
}

// ActiveTxnIDs returns the ids of every transaction currently Active or
// Preparing, used by pkg/wal's checkpoint writer.
func (c *Coordinator) ActiveTxnIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	return ids
}

func resourceKey(collection, docID string) string {
	return collection + ":" + docID
}
