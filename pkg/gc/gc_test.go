package gc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bobboyms/docengine/internal/engineerr"
)

type fakeRemover struct {
	mu      sync.Mutex
	removed []string
	missing map[string]bool // ids that should report NotFound instead of succeeding
	failing map[string]bool // ids that should report a hard error
}

func newFakeRemover() *fakeRemover {
	return &fakeRemover{missing: map[string]bool{}, failing: map[string]bool{}}
}

func (f *fakeRemover) Remove(collection, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[docID] {
		return &engineerr.IOError{Op: "remove", Err: context.DeadlineExceeded}
	}
	if f.missing[docID] {
		return &engineerr.NotFoundError{Kind: engineerr.NotFoundDocument, ID: docID}
	}
	f.removed = append(f.removed, docID)
	return nil
}

func TestDisabledCollectorRecordsNothingAndNeverDeletes(t *testing.T) {
	remover := newFakeRemover()
	c := New(Options{Enabled: false, Retention: 0}, remover, zerolog.Nop())

	c.Record("people", "doc-1", time.Now().Add(-time.Hour))
	if c.PendingCount("people") != 0 {
		t.Fatalf("a disabled collector must not record tombstones")
	}

	run, err := c.RunOnce(context.Background(), "people", time.Now())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if run.Removed != 0 || len(remover.removed) != 0 {
		t.Fatalf("a disabled collector must never remove anything")
	}
}

func TestRunOnceSkipsTombstonesYoungerThanRetention(t *testing.T) {
	remover := newFakeRemover()
	c := New(Options{Enabled: true, Retention: time.Hour}, remover, zerolog.Nop())

	now := time.Now()
	c.Record("people", "old", now.Add(-2*time.Hour))
	c.Record("people", "new", now.Add(-time.Minute))

	run, err := c.RunOnce(context.Background(), "people", now)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if run.Removed != 1 || run.Remaining != 1 {
		t.Fatalf("expected 1 removed and 1 remaining, got removed=%d remaining=%d", run.Removed, run.Remaining)
	}
	if len(remover.removed) != 1 || remover.removed[0] != "old" {
		t.Fatalf("expected only the aged tombstone removed, got %v", remover.removed)
	}
	if c.PendingCount("people") != 1 {
		t.Fatalf("expected the young tombstone to remain pending")
	}
}

func TestRunOnceRespectsMaxPerRun(t *testing.T) {
	remover := newFakeRemover()
	c := New(Options{Enabled: true, Retention: 0, MaxPerRun: 2}, remover, zerolog.Nop())

	now := time.Now()
	for i := 0; i < 5; i++ {
		c.Record("people", string(rune('a'+i)), now.Add(-time.Minute))
	}

	run, err := c.RunOnce(context.Background(), "people", now)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if run.Removed != 2 {
		t.Fatalf("expected MaxPerRun=2 to cap removals, got %d", run.Removed)
	}
	if run.Remaining != 3 {
		t.Fatalf("expected 3 tombstones left for a future run, got %d", run.Remaining)
	}
}

func TestRunOnceIgnoresMissingFiles(t *testing.T) {
	remover := newFakeRemover()
	remover.missing["gone"] = true
	c := New(Options{Enabled: true, Retention: 0}, remover, zerolog.Nop())

	c.Record("people", "gone", time.Now().Add(-time.Minute))

	run, err := c.RunOnce(context.Background(), "people", time.Now())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if run.Errors != 0 || run.Removed != 1 {
		t.Fatalf("a missing backing file must count as removed, not an error: %+v", run)
	}
}

func TestRunOncePreservesPartialProgressOnCancellation(t *testing.T) {
	remover := newFakeRemover()
	c := New(Options{Enabled: true, Retention: 0}, remover, zerolog.Nop())

	now := time.Now()
	for i := 0; i < 3; i++ {
		c.Record("people", string(rune('a'+i)), now.Add(-time.Minute))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already cancelled before the sweep starts

	run, err := c.RunOnce(ctx, "people", now)
	if err == nil {
		t.Fatalf("expected RunOnce to report the cancellation")
	}
	if run.Removed != 0 || run.Remaining != 3 {
		t.Fatalf("a pre-cancelled sweep should remove nothing and preserve every tombstone, got %+v", run)
	}
	if c.PendingCount("people") != 3 {
		t.Fatalf("tombstones must survive a cancelled sweep")
	}
}

func TestRunOnceRetriesOnHardRemoveError(t *testing.T) {
	remover := newFakeRemover()
	remover.failing["bad"] = true
	c := New(Options{Enabled: true, Retention: 0}, remover, zerolog.Nop())

	c.Record("people", "bad", time.Now().Add(-time.Minute))

	run, err := c.RunOnce(context.Background(), "people", time.Now())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if run.Errors != 1 || run.Removed != 0 {
		t.Fatalf("expected the failing removal to count as an error, got %+v", run)
	}
	if c.PendingCount("people") != 1 {
		t.Fatalf("a failed removal must remain tombstoned for a future retry")
	}
}

func TestRunAllSweepsEveryCollection(t *testing.T) {
	remover := newFakeRemover()
	c := New(Options{Enabled: true, Retention: 0}, remover, zerolog.Nop())

	now := time.Now()
	c.Record("people", "p1", now.Add(-time.Minute))
	c.Record("carts", "c1", now.Add(-time.Minute))

	runs, err := c.RunAll(context.Background(), now)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected a run per collection, got %d", len(runs))
	}
	total := 0
	for _, r := range runs {
		total += r.Removed
	}
	if total != 2 {
		t.Fatalf("expected both tombstones removed across collections, got %d", total)
	}
}

func TestStartAndStopBackgroundLoop(t *testing.T) {
	remover := newFakeRemover()
	c := New(Options{Enabled: true, Retention: 0, Interval: 5 * time.Millisecond}, remover, zerolog.Nop())
	c.Record("people", "p1", time.Now().Add(-time.Minute))

	c.Start(time.Now)
	time.Sleep(40 * time.Millisecond)
	c.Stop()

	if c.Stats().TotalRemoved == 0 {
		t.Fatalf("expected the background loop to have swept at least once")
	}
}
