package txn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bobboyms/docengine/pkg/document"
	"github.com/bobboyms/docengine/pkg/lockmgr"
	"github.com/bobboyms/docengine/pkg/wal"
	"github.com/rs/zerolog"
)

type fakeStore struct {
	mu   sync.Mutex
	docs map[string]*document.Document // collection:docID -> doc
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]*document.Document)}
}

func (f *fakeStore) Apply(collection, docID string, before, after *document.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := collection + ":" + docID
	if after == nil {
		delete(f.docs, key)
		return nil
	}
	f.docs[key] = after
	return nil
}

func (f *fakeStore) get(collection, docID string) *document.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[collection+":"+docID]
}

func newTestCoordinator(t *testing.T) (*Coordinator, *wal.Log, *lockmgr.Manager, *fakeStore) {
	t.Helper()
	dir := t.TempDir()
	log, _, err := wal.Open(dir, wal.Options{Dir: dir, ForceSync: true, MaxFileSize: 1 << 20, BufferSize: 4096}, zerolog.Nop())
	if err != nil {
		t.Fatalf("wal.Open: %v", err)
	}
	locks := lockmgr.New(0, zerolog.Nop())
	store := newFakeStore()
	coord := New(locks, log, store, zerolog.Nop())
	t.Cleanup(func() {
		locks.Stop()
		log.Close()
	})
	return coord, log, locks, store
}

func TestCommitAppliesWritesAndReleasesLocks(t *testing.T) {
	coord, _, locks, store := newTestCoordinator(t)

	txn, err := coord.Begin(context.Background(), Options{Isolation: ReadCommitted})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	doc := document.New(document.Object{document.Field{Key: "name", Value: document.NewString("cart")}})
	if err := coord.RecordWrite(txn, "carts", doc.ID, nil, doc, wal.EntryInsert); err != nil {
		t.Fatalf("RecordWrite: %v", err)
	}

	if err := coord.Commit(txn); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if got := store.get("carts", doc.ID); got == nil {
		t.Fatalf("expected document to be applied")
	}
	if txn.State() != Committed {
		t.Fatalf("expected Committed, got %v", txn.State())
	}

	res, _ := locks.Acquire(context.Background(), "other", "carts:"+doc.ID, lockmgr.Exclusive)
	if res != lockmgr.Granted {
		t.Fatalf("expected lock released after commit, got %v", res)
	}
}

func TestRollbackUndoesWrites(t *testing.T) {
	coord, _, _, store := newTestCoordinator(t)

	txn, err := coord.Begin(context.Background(), Options{Isolation: ReadCommitted})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	doc := document.New(document.Object{document.Field{Key: "name", Value: document.NewString("cart")}})
	if err := coord.RecordWrite(txn, "carts", doc.ID, nil, doc, wal.EntryInsert); err != nil {
		t.Fatalf("RecordWrite: %v", err)
	}

	if err := coord.Rollback(context.Background(), txn); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if got := store.get("carts", doc.ID); got != nil {
		t.Fatalf("expected write undone after rollback")
	}
	if txn.State() != RolledBack {
		t.Fatalf("expected RolledBack, got %v", txn.State())
	}
}

func TestSavepointRollbackToUndoesOnlyLaterWrites(t *testing.T) {
	coord, _, _, store := newTestCoordinator(t)

	txn, err := coord.Begin(context.Background(), Options{Isolation: ReadCommitted})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	d1 := document.New(document.Object{document.Field{Key: "n", Value: document.NewInt64(1)}})
	if err := coord.RecordWrite(txn, "c", d1.ID, nil, d1, wal.EntryInsert); err != nil {
		t.Fatalf("write 1: %v", err)
	}

	if err := coord.Savepoint(txn, "sp1"); err != nil {
		t.Fatalf("Savepoint: %v", err)
	}

	d2 := document.New(document.Object{document.Field{Key: "n", Value: document.NewInt64(2)}})
	if err := coord.RecordWrite(txn, "c", d2.ID, nil, d2, wal.EntryInsert); err != nil {
		t.Fatalf("write 2: %v", err)
	}

	if err := coord.RollbackTo(txn, "sp1"); err != nil {
		t.Fatalf("RollbackTo: %v", err)
	}

	if got := store.get("c", d1.ID); got == nil {
		t.Fatalf("expected write before savepoint to survive")
	}
	if got := store.get("c", d2.ID); got != nil {
		t.Fatalf("expected write after savepoint to be undone")
	}

	if err := coord.Commit(txn); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestAutoRollbackOnContextCancel(t *testing.T) {
	coord, _, _, store := newTestCoordinator(t)

	ctx, cancel := context.WithCancel(context.Background())
	txn, err := coord.Begin(ctx, Options{Isolation: ReadCommitted})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	doc := document.New(document.Object{document.Field{Key: "n", Value: document.NewInt64(1)}})
	if err := coord.RecordWrite(txn, "c", doc.ID, nil, doc, wal.EntryInsert); err != nil {
		t.Fatalf("RecordWrite: %v", err)
	}

	cancel()
	time.Sleep(50 * time.Millisecond)

	if txn.State() != RolledBack {
		t.Fatalf("expected auto-rollback to RolledBack, got %v", txn.State())
	}
	if got := store.get("c", doc.ID); got != nil {
		t.Fatalf("expected write undone by auto-rollback")
	}
}

func TestExclusiveWriteBlocksConcurrentTransaction(t *testing.T) {
	coord, _, _, _ := newTestCoordinator(t)

	txn1, _ := coord.Begin(context.Background(), Options{Isolation: ReadCommitted})
	doc := document.New(document.Object{document.Field{Key: "n", Value: document.NewInt64(1)}})
	if err := coord.RecordWrite(txn1, "c", doc.ID, nil, doc, wal.EntryInsert); err != nil {
		t.Fatalf("RecordWrite txn1: %v", err)
	}

	txn2, _ := coord.Begin(context.Background(), Options{Isolation: ReadCommitted, Timeout: 30 * time.Millisecond})
	err := coord.RecordWrite(txn2, "c", doc.ID, doc, doc, wal.EntryUpdate)
	if err == nil {
		t.Fatalf("expected txn2's write to time out while txn1 holds the exclusive lock")
	}

	coord.Rollback(context.Background(), txn1)
}
