package atomicupdate

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bobboyms/docengine/pkg/document"
	"github.com/bobboyms/docengine/pkg/lockmgr"
	"github.com/bobboyms/docengine/pkg/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	s := store.New()
	if err := s.CreateCollection("people"); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	locks := lockmgr.New(50*time.Millisecond, zerolog.Nop())
	t.Cleanup(locks.Stop)
	return New(s, locks), s
}

func insertDoc(t *testing.T, s *store.Store, data document.Object) *document.Document {
	t.Helper()
	d := document.New(data)
	if err := s.Insert("people", d); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return d
}

func TestIncrementCreatesMissingCounterAndAccumulates(t *testing.T) {
	eng, s := newTestEngine(t)
	d := insertDoc(t, s, document.Object{})

	if _, err := eng.Apply(context.Background(), "people", d.ID, Increment("score", document.NewInt64(5))); err != nil {
		t.Fatalf("increment: %v", err)
	}
	updated, err := eng.Apply(context.Background(), "people", d.ID, Increment("score", document.NewInt64(3)))
	if err != nil {
		t.Fatalf("increment: %v", err)
	}

	v, _ := document.GetPath(updated.Data, "score")
	got, _ := v.Int64()
	if got != 8 {
		t.Fatalf("expected score 8, got %d", got)
	}
	if updated.Version != 3 {
		t.Fatalf("expected version bumped to 3 (1 on insert + 2 increments), got %d", updated.Version)
	}
}

func TestIncrementFailsOnNonNumericExisting(t *testing.T) {
	eng, s := newTestEngine(t)
	d := insertDoc(t, s, document.Object{
		document.Field{Key: "name", Value: document.NewString("ana")},
	})

	if _, err := eng.Apply(context.Background(), "people", d.ID, Increment("name", document.NewInt64(1))); err == nil {
		t.Fatalf("expected an error incrementing a non-numeric field")
	}
}

func TestPushAppendsAndCreatesMissingArray(t *testing.T) {
	eng, s := newTestEngine(t)
	d := insertDoc(t, s, document.Object{})

	updated, err := eng.Apply(context.Background(), "people", d.ID, Push("tags", document.NewString("vip")))
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	v, _ := document.GetPath(updated.Data, "tags")
	arr, _ := v.Array()
	if len(arr) != 1 || arr[0].String() != "vip" {
		t.Fatalf("expected tags == [vip], got %+v", arr)
	}
}

func TestPullRemovesAllEqualOccurrences(t *testing.T) {
	eng, s := newTestEngine(t)
	d := insertDoc(t, s, document.Object{
		document.Field{Key: "tags", Value: document.NewArray(
			document.NewString("a"), document.NewString("b"), document.NewString("a"),
		)},
	})

	updated, err := eng.Apply(context.Background(), "people", d.ID, Pull("tags", document.NewString("a")))
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	v, _ := document.GetPath(updated.Data, "tags")
	arr, _ := v.Array()
	if len(arr) != 1 || arr[0].String() != "b" {
		t.Fatalf("expected tags == [b], got %+v", arr)
	}
}

func TestPullOnMissingPathIsNoop(t *testing.T) {
	eng, s := newTestEngine(t)
	d := insertDoc(t, s, document.Object{})

	if _, err := eng.Apply(context.Background(), "people", d.ID, Pull("tags", document.NewString("a"))); err != nil {
		t.Fatalf("pull on missing path should be a no-op, got: %v", err)
	}
}

func TestSetReplacesNonObjectIntermediate(t *testing.T) {
	eng, s := newTestEngine(t)
	d := insertDoc(t, s, document.Object{
		document.Field{Key: "address", Value: document.NewString("flat")},
	})

	updated, err := eng.Apply(context.Background(), "people", d.ID, Set("address.city", document.NewString("Lagos")))
	if err != nil {
		t.Fatalf("set should replace a non-object intermediate, got: %v", err)
	}
	v, _ := document.GetPath(updated.Data, "address.city")
	if v.String() != "Lagos" {
		t.Fatalf("expected address.city == Lagos, got %q", v.String())
	}
}

func TestIncrementFailsOnNonObjectIntermediate(t *testing.T) {
	eng, s := newTestEngine(t)
	d := insertDoc(t, s, document.Object{
		document.Field{Key: "address", Value: document.NewString("flat")},
	})

	if _, err := eng.Apply(context.Background(), "people", d.ID, Increment("address.zip", document.NewInt64(1))); err == nil {
		t.Fatalf("expected increment through a non-object intermediate to fail")
	}
}

func TestUnsetOnAbsentPathIsNoop(t *testing.T) {
	eng, s := newTestEngine(t)
	d := insertDoc(t, s, document.Object{})

	if _, err := eng.Apply(context.Background(), "people", d.ID, Unset("missing")); err != nil {
		t.Fatalf("unset on absent path should succeed, got: %v", err)
	}
}

func TestMultipleRollsBackEntirelyOnFailure(t *testing.T) {
	eng, s := newTestEngine(t)
	d := insertDoc(t, s, document.Object{
		document.Field{Key: "score", Value: document.NewInt64(10)},
	})

	ops := []Op{
		Increment("score", document.NewInt64(5)),
		Set("label", document.NewString("x")),
		Increment("label", document.NewInt64(1)), // label now holds a string: this step must fail
	}

	if _, err := eng.Multiple(context.Background(), "people", d.ID, ops); err == nil {
		t.Fatalf("expected the sequence to fail on the final increment")
	}

	doc, err := s.Get("people", d.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, present := document.GetPath(doc.Data, "label"); present {
		t.Fatalf("document must be untouched after a failed multi-op sequence")
	}
	v, _ := document.GetPath(doc.Data, "score")
	got, _ := v.Int64()
	if got != 10 {
		t.Fatalf("expected score unchanged at 10, got %d", got)
	}
}

func TestConcurrentIncrementsAccumulateCorrectly(t *testing.T) {
	eng, s := newTestEngine(t)
	d := insertDoc(t, s, document.Object{
		document.Field{Key: "count", Value: document.NewInt64(0)},
	})

	const n = 20
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := eng.Apply(context.Background(), "people", d.ID, Increment("count", document.NewInt64(1)))
			errCh <- err
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-errCh; err != nil {
			t.Fatalf("concurrent increment: %v", err)
		}
	}

	doc, err := s.Get("people", d.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	v, _ := document.GetPath(doc.Data, "count")
	got, _ := v.Int64()
	if got != n {
		t.Fatalf("expected count == %d after %d concurrent increments, got %d", n, n, got)
	}
}
