package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bobboyms/docengine/internal/cache"
	"github.com/bobboyms/docengine/internal/config"
	"github.com/bobboyms/docengine/pkg/atomicupdate"
	"github.com/bobboyms/docengine/pkg/document"
	"github.com/bobboyms/docengine/pkg/txn"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		DataPath: dir + "/data",
		WAL: config.WALConfig{
			Dir:         dir + "/wal",
			ForceSync:   false,
			MaxFileSize: 1 << 20,
			BufferSize:  4096,
		},
		GC: config.GCConfig{
			Enabled:    true,
			Retention:  0,
			MaxPerRun:  1000,
			Interval:   0,
			Background: false,
		},
		Locks: config.LocksConfig{
			DeadlockDetection: true,
			DetectionInterval: 20 * time.Millisecond,
			WaitTimeout:       time.Second,
		},
		Cache: config.CacheConfig{MaxItems: 100, TTL: 0},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(testConfig(t), zerolog.Nop(), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := e.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return e
}

func TestInsertGetUpdateDeleteRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.CreateCollection("people"); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}

	doc, err := e.Insert(ctx, "people", document.Object{
		document.Field{Key: "name", Value: document.NewString("ada")},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := e.Get("people", doc.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != doc.ID {
		t.Fatalf("expected id %q, got %q", doc.ID, got.ID)
	}

	updated, err := e.Update(ctx, "people", doc.ID, document.Object{
		document.Field{Key: "name", Value: document.NewString("ada2")},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != doc.Version+1 {
		t.Fatalf("expected version %d, got %d", doc.Version+1, updated.Version)
	}

	if err := e.Delete(ctx, "people", doc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := e.Get("people", doc.ID); err == nil {
		t.Fatalf("expected NotFound after delete")
	}
}

func TestGetUsesCacheAndDeleteInvalidatesIt(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.CreateCollection("people")

	doc, err := e.Insert(ctx, "people", document.Object{})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if _, err := e.Get("people", doc.ID); err != nil {
		t.Fatalf("first Get: %v", err)
	}
	if _, ok := e.docCache.Get(cache.Key{Collection: "people", DocID: doc.ID}); !ok {
		t.Fatalf("expected document to be cached after Get")
	}

	if err := e.Delete(ctx, "people", doc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := e.docCache.Get(cache.Key{Collection: "people", DocID: doc.ID}); ok {
		t.Fatalf("expected cache entry to be invalidated after delete")
	}
}

func TestTransactionRollbackUndoesWrites(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.CreateCollection("carts")

	tx, err := e.Begin(ctx, txn.Options{Isolation: txn.ReadCommitted})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	doc, err := e.InsertIn(tx, "carts", document.Object{})
	if err != nil {
		t.Fatalf("InsertIn: %v", err)
	}
	if err := e.Rollback(ctx, tx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if _, err := e.Get("carts", doc.ID); err == nil {
		t.Fatalf("expected rolled-back insert to be invisible")
	}
}

func TestTransactionCommitAppliesWrites(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.CreateCollection("carts")

	tx, err := e.Begin(ctx, txn.Options{Isolation: txn.ReadCommitted})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	doc, err := e.InsertIn(tx, "carts", document.Object{})
	if err != nil {
		t.Fatalf("InsertIn: %v", err)
	}
	if err := e.Commit(tx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := e.Get("carts", doc.ID); err != nil {
		t.Fatalf("expected committed insert to be visible: %v", err)
	}
}

func TestDeleteInRollbackLeavesNoTombstone(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.CreateCollection("carts")

	doc, err := e.Insert(ctx, "carts", document.Object{})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	tx, err := e.Begin(ctx, txn.Options{Isolation: txn.ReadCommitted})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := e.DeleteIn(tx, "carts", doc.ID); err != nil {
		t.Fatalf("DeleteIn: %v", err)
	}
	if err := e.Rollback(ctx, tx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if _, err := e.Get("carts", doc.ID); err != nil {
		t.Fatalf("expected document restored after rollback: %v", err)
	}
	stats := e.GCStats()
	if stats.TotalRemoved != 0 {
		t.Fatalf("expected no tombstones processed after a rolled-back delete")
	}
}

func TestAtomicUpdateIncrementsAField(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.CreateCollection("counters")

	doc, err := e.Insert(ctx, "counters", document.Object{
		document.Field{Key: "hits", Value: document.NewInt64(0)},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	updated, err := e.AtomicUpdate(ctx, "counters", doc.ID, atomicupdate.Increment("hits", document.NewInt64(5)))
	if err != nil {
		t.Fatalf("AtomicUpdate: %v", err)
	}
	val, ok := document.GetPath(updated.Data, "hits")
	if !ok {
		t.Fatalf("expected hits field to be present")
	}
	n, _ := val.Int64()
	if n != 5 {
		t.Fatalf("expected hits=5, got %d", n)
	}
}

func TestCreateIndexBackfillsAndQueryUsesIt(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.CreateCollection("people")

	for i, name := range []string{"ada", "grace", "linus"} {
		if _, err := e.Insert(ctx, "people", document.Object{
			document.Field{Key: "name", Value: document.NewString(name)},
			document.Field{Key: "age", Value: document.NewInt64(int64(20 + i))},
		}); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}

	if err := e.CreateIndex("people", IndexDescriptor{Name: "by_age", Fields: []string{"age"}}); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	names := e.ListIndexes("people")
	if len(names) != 1 || names[0] != "by_age" {
		t.Fatalf("expected [by_age], got %v", names)
	}

	result, err := e.Query([]byte(`{"collection":"people","filter":{"age":{"$gte":21}}}`))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Documents) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(result.Documents))
	}
	if result.Plan.IndexUsed != "by_age" {
		t.Fatalf("expected the query to use by_age, got %q", result.Plan.IndexUsed)
	}
}

func TestDropIndexRemovesIt(t *testing.T) {
	e := newTestEngine(t)
	e.CreateCollection("people")
	if err := e.CreateIndex("people", IndexDescriptor{Name: "by_name", Fields: []string{"name"}}); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if err := e.DropIndex("people", "by_name"); err != nil {
		t.Fatalf("DropIndex: %v", err)
	}
	if got := e.ListIndexes("people"); len(got) != 0 {
		t.Fatalf("expected no indexes after drop, got %v", got)
	}
}

func TestDeleteThenRunGCRemovesBackingFile(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.CreateCollection("carts")

	doc, err := e.Insert(ctx, "carts", document.Object{})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := e.Delete(ctx, "carts", doc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := e.RunGC(ctx); err != nil {
		t.Fatalf("RunGC: %v", err)
	}
	stats := e.GCStats()
	if stats.TotalRemoved != 1 {
		t.Fatalf("expected 1 tombstone removed, got %d", stats.TotalRemoved)
	}
}

func TestAtomicUpdateMultipleAppliesAllOrNothing(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.CreateCollection("counters")

	doc, err := e.Insert(ctx, "counters", document.Object{
		document.Field{Key: "hits", Value: document.NewInt64(0)},
		document.Field{Key: "tags", Value: document.NewArray()},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	updated, err := e.AtomicUpdateMultiple(ctx, "counters", doc.ID, []atomicupdate.Op{
		atomicupdate.Increment("hits", document.NewInt64(2)),
		atomicupdate.Push("tags", document.NewString("new")),
	})
	if err != nil {
		t.Fatalf("AtomicUpdateMultiple: %v", err)
	}
	hits, _ := document.GetPath(updated.Data, "hits")
	n, _ := hits.Int64()
	if n != 2 {
		t.Fatalf("expected hits=2, got %d", n)
	}
	tags, ok := document.GetPath(updated.Data, "tags")
	if !ok {
		t.Fatalf("expected tags field to be present")
	}
	arr, _ := tags.Array()
	if len(arr) != 1 {
		t.Fatalf("expected one tag pushed, got %d", len(arr))
	}
}

func TestEncryptFieldThenDecryptFieldRoundTrips(t *testing.T) {
	cfg := testConfig(t)
	cfg.Encryption.Key = "correct horse battery staple"
	e, err := New(cfg, zerolog.Nop(), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })

	ctx := context.Background()
	e.CreateCollection("people")
	doc, err := e.Insert(ctx, "people", document.Object{
		document.Field{Key: "ssn", Value: document.NewString("123-45-6789")},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := e.EncryptField("people", doc.ID, doc, "ssn"); err != nil {
		t.Fatalf("EncryptField: %v", err)
	}
	sealed, ok := document.GetPath(doc.Data, "ssn")
	if !ok {
		t.Fatalf("expected ssn field to survive encryption")
	}
	if b, ok := sealed.Bytes(); !ok || b == nil {
		t.Fatalf("expected ssn to become an opaque byte blob")
	}

	if err := e.DecryptField("people", doc.ID, doc, "ssn"); err != nil {
		t.Fatalf("DecryptField: %v", err)
	}
	opened, ok := document.GetPath(doc.Data, "ssn")
	if !ok {
		t.Fatalf("expected ssn field to survive decryption")
	}
	s := opened.String()
	if s != "123-45-6789" {
		t.Fatalf("expected decrypted ssn %q, got %q", "123-45-6789", s)
	}
}

func TestEncryptFieldWithNoKeyConfiguredFails(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.CreateCollection("people")
	doc, err := e.Insert(ctx, "people", document.Object{
		document.Field{Key: "ssn", Value: document.NewString("123-45-6789")},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := e.EncryptField("people", doc.ID, doc, "ssn"); err == nil {
		t.Fatalf("expected EncryptField to fail without a configured key")
	}
}

func TestCountAndExistsReflectFilter(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.CreateCollection("people")

	for i, name := range []string{"ada", "grace", "linus"} {
		if _, err := e.Insert(ctx, "people", document.Object{
			document.Field{Key: "name", Value: document.NewString(name)},
			document.Field{Key: "age", Value: document.NewInt64(int64(20 + i))},
		}); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}

	n, err := e.Count([]byte(`{"collection":"people","filter":{"age":{"$gte":21}}}`))
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected count 2, got %d", n)
	}

	ok, err := e.Exists([]byte(`{"collection":"people","filter":{"name":{"$eq":"ada"}}}`))
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Fatalf("expected ada to exist")
	}

	ok, err = e.Exists([]byte(`{"collection":"people","filter":{"name":{"$eq":"nobody"}}}`))
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Fatalf("expected no match for nobody")
	}
}

func TestSavepointRollbackToUndoesOnlyLaterWrites(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.CreateCollection("carts")

	tx, err := e.Begin(ctx, txn.Options{Isolation: txn.ReadCommitted})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	first, err := e.InsertIn(tx, "carts", document.Object{
		document.Field{Key: "item", Value: document.NewString("first")},
	})
	if err != nil {
		t.Fatalf("InsertIn first: %v", err)
	}
	if err := e.Savepoint(tx, "before_second"); err != nil {
		t.Fatalf("Savepoint: %v", err)
	}
	second, err := e.InsertIn(tx, "carts", document.Object{
		document.Field{Key: "item", Value: document.NewString("second")},
	})
	if err != nil {
		t.Fatalf("InsertIn second: %v", err)
	}
	if err := e.RollbackTo(tx, "before_second"); err != nil {
		t.Fatalf("RollbackTo: %v", err)
	}
	if err := e.Commit(tx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := e.Get("carts", first.ID); err != nil {
		t.Fatalf("expected first insert to survive: %v", err)
	}
	if _, err := e.Get("carts", second.ID); err == nil {
		t.Fatalf("expected second insert to be undone by RollbackTo")
	}
}

func TestDropCollectionClearsItsIndexes(t *testing.T) {
	e := newTestEngine(t)
	e.CreateCollection("people")
	if err := e.CreateIndex("people", IndexDescriptor{Name: "by_name", Fields: []string{"name"}}); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if err := e.DropCollection("people"); err != nil {
		t.Fatalf("DropCollection: %v", err)
	}
	if got := e.ListIndexes("people"); len(got) != 0 {
		t.Fatalf("expected no indexes after DropCollection, got %v", got)
	}
}
