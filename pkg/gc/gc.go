// Package gc implements tombstone-based garbage collection: an
// in-memory record of deleted document ids, periodically or on-demand
// swept in bounded batches to physically remove backing storage once a
// retention window has elapsed. Grounded on the Vacuum pass in
// pkg/storage/engine.go (minimum-visible-LSN scan, compact-and-copy
// over the live set), adapted from a heap-compaction sweep into a
// tombstone-set-plus-file-removal sweep since the document store here
// has no heap file to compact.
package gc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bobboyms/docengine/internal/engineerr"
	"github.com/bobboyms/docengine/internal/events"
)

// Tombstone records one deleted document awaiting physical removal.
type Tombstone struct {
	Collection string
	DocID      string
	DeletedAt  time.Time
}

// Remover physically removes the backing storage for one tombstoned
// document (a hybrid store's JSON file, for instance). A *engineerr.NotFoundError
// return is treated as an already-removed success, not a failure.
type Remover interface {
	Remove(collection, docID string) error
}

// Stats accumulates counters across every run since the Collector was
// created.
type Stats struct {
	TotalScanned int
	TotalRemoved int
	TotalErrors  int
	LastRunAt    time.Time
}

// CollectionRun summarizes one sweep of a single collection's
// tombstones.
type CollectionRun struct {
	Collection string
	Scanned    int
	Removed    int
	Errors     int
	Remaining  int // tombstones left (too young, or cut short by maxPerRun/cancellation)
}

// Options configures a Collector.
type Options struct {
	// Enabled gates every Record and Run call. A disabled collector
	// records nothing and never deletes, per contract.
	Enabled bool
	// Retention is how long a tombstone must age before it is eligible
	// for physical removal.
	Retention time.Duration
	// MaxPerRun bounds how many tombstones a single collection's sweep
	// removes before yielding, regardless of how many are eligible.
	MaxPerRun int
	// Interval drives the background sweep loop started by Start. Zero
	// disables the background loop; RunAll can still be called directly.
	Interval time.Duration
}

// Collector tracks tombstones and sweeps them for physical removal.
type Collector struct {
	mu         sync.Mutex
	tombstones map[string][]Tombstone // collection -> pending tombstones, oldest first

	opts    Options
	remover Remover
	sinks   []events.GCSink
	logger  zerolog.Logger

	stopCh chan struct{}
	doneCh chan struct{}

	stats Stats
}

func New(opts Options, remover Remover, logger zerolog.Logger, sinks ...events.GCSink) *Collector {
	return &Collector{
		tombstones: make(map[string][]Tombstone),
		opts:       opts,
		remover:    remover,
		logger:     logger,
		sinks:      sinks,
	}
}

// Record marks a document as deleted, eligible for removal once
// Retention elapses. A no-op on a disabled collector.
func (c *Collector) Record(collection, docID string, deletedAt time.Time) {
	if !c.opts.Enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tombstones[collection] = append(c.tombstones[collection], Tombstone{
		Collection: collection,
		DocID:      docID,
		DeletedAt:  deletedAt,
	})
}

// PendingCount reports how many tombstones (of any age) are currently
// outstanding for a collection, for introspection.
func (c *Collector) PendingCount(collection string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tombstones[collection])
}

// Stats returns a snapshot of cumulative counters.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// RunOnce sweeps one collection's tombstones, removing every one older
// than Retention, up to MaxPerRun removals, stopping early (with
// ctx.Err() returned alongside the partial CollectionRun) if ctx is
// cancelled mid-sweep. A disabled collector always returns a zero run
// without touching anything.
func (c *Collector) RunOnce(ctx context.Context, collection string, now time.Time) (CollectionRun, error) {
	if !c.opts.Enabled {
		return CollectionRun{Collection: collection}, nil
	}

	c.mu.Lock()
	pending := c.tombstones[collection]
	c.mu.Unlock()

	run := CollectionRun{Collection: collection}
	kept := make([]Tombstone, 0, len(pending))
	removedThisRun := 0

	var ctxErr error
	for _, ts := range pending {
		if ctxErr == nil {
			select {
			case <-ctx.Done():
				ctxErr = ctx.Err()
			default:
			}
		}
		if ctxErr != nil || (c.opts.MaxPerRun > 0 && removedThisRun >= c.opts.MaxPerRun) {
			kept = append(kept, ts)
			continue
		}

		age := now.Sub(ts.DeletedAt)
		if age < c.opts.Retention {
			kept = append(kept, ts)
			continue
		}

		run.Scanned++
		if err := c.remover.Remove(ts.Collection, ts.DocID); err != nil && !isNotFound(err) {
			run.Errors++
			kept = append(kept, ts) // leave it tombstoned, retry next run
			continue
		}
		run.Removed++
		removedThisRun++
	}

	run.Remaining = len(kept)

	c.mu.Lock()
	c.tombstones[collection] = kept
	c.stats.TotalScanned += run.Scanned
	c.stats.TotalRemoved += run.Removed
	c.stats.TotalErrors += run.Errors
	c.stats.LastRunAt = now
	c.mu.Unlock()

	for _, s := range c.sinks {
		s.OnGCRun(collection, run.Removed, run.Scanned)
	}
	c.logger.Debug().
		Str("collection", collection).
		Int("scanned", run.Scanned).
		Int("removed", run.Removed).
		Int("errors", run.Errors).
		Int("remaining", run.Remaining).
		Msg("gc: collection swept")

	return run, ctxErr
}

// RunAll sweeps every collection with outstanding tombstones. It keeps
// going across collections even if one run returns an error (e.g. a
// cancelled context), returning every partial CollectionRun collected
// so far alongside the first error encountered.
func (c *Collector) RunAll(ctx context.Context, now time.Time) ([]CollectionRun, error) {
	c.mu.Lock()
	collections := make([]string, 0, len(c.tombstones))
	for name := range c.tombstones {
		collections = append(collections, name)
	}
	c.mu.Unlock()

	var runs []CollectionRun
	var firstErr error
	for _, name := range collections {
		run, err := c.RunOnce(ctx, name, now)
		runs = append(runs, run)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return runs, firstErr
}

// Start launches the background sweep loop at opts.Interval. A no-op if
// Interval is zero or the collector is disabled. nowFn supplies the
// current time for each tick (injected so callers needing determinism
// in tests can override it; production callers pass time.Now).
func (c *Collector) Start(nowFn func() time.Time) {
	if !c.opts.Enabled || c.opts.Interval <= 0 {
		return
	}
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go c.loop(nowFn)
}

func (c *Collector) loop(nowFn func() time.Time) {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if _, err := c.RunAll(context.Background(), nowFn()); err != nil {
				c.logger.Warn().Err(err).Msg("gc: sweep cut short")
			}
		}
	}
}

// Stop halts the background loop started by Start, waiting for the
// in-flight sweep (if any) to finish. A no-op if Start was never
// called.
func (c *Collector) Stop() {
	if c.stopCh == nil {
		return
	}
	close(c.stopCh)
	<-c.doneCh
}

func isNotFound(err error) bool {
	var notFound *engineerr.NotFoundError
	return errors.As(err, &notFound)
}
