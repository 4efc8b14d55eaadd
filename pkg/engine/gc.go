package engine

import (
	"context"
	"time"

	"github.com/bobboyms/docengine/pkg/gc"
)

// RunGC sweeps every collection's tombstones once, outside the
// background loop — useful for an operator-triggered compaction or a
// test that doesn't want to wait for cfg.GC.Interval to elapse.
func (e *Engine) RunGC(ctx context.Context) ([]gc.CollectionRun, error) {
	return e.collector.RunAll(ctx, time.Now())
}

// GCStats reports cumulative tombstone sweep counters since startup.
func (e *Engine) GCStats() gc.Stats {
	return e.collector.Stats()
}
