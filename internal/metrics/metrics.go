// Package metrics exposes the engine's Prometheus instrumentation.
// Grounded on bun-kms/internal/metrics/metrics.go and
// cuemby-warren/pkg/metrics/metrics.go's counter/gauge/histogram
// vectors, wrapped in a Recorder struct built with an explicit
// prometheus.Registerer rather than package-level globals, matching
// the rest of this module's explicit-dependency-over-global-registry
// style.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds every metric the engine publishes.
type Recorder struct {
	DocumentOpsTotal   *prometheus.CounterVec
	DocumentOpDuration *prometheus.HistogramVec

	QueryExecutionsTotal *prometheus.CounterVec
	QueryDuration        *prometheus.HistogramVec

	TransactionsTotal *prometheus.CounterVec

	LockWaitDuration *prometheus.HistogramVec
	LockTimeoutTotal prometheus.Counter
	DeadlocksTotal   prometheus.Counter

	GCRemovedTotal  prometheus.Counter
	GCScannedTotal  prometheus.Counter
	GCErrorsTotal   prometheus.Counter
	TombstonesGauge prometheus.Gauge

	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	WALAppendsTotal prometheus.Counter
	WALFlushLatency prometheus.Histogram

	ActiveConnections prometheus.Gauge
}

// NewRecorder builds a Recorder and registers every metric with reg.
// Passing prometheus.NewRegistry() isolates metrics per-engine instance
// (useful in tests); production callers typically pass
// prometheus.DefaultRegisterer.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		DocumentOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docengine_document_ops_total",
			Help: "Total number of document operations by collection, op, and outcome.",
		}, []string{"collection", "op", "outcome"}),
		DocumentOpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docengine_document_op_duration_seconds",
			Help:    "Latency of document operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"collection", "op"}),

		QueryExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docengine_query_executions_total",
			Help: "Total number of query executions by collection and strategy.",
		}, []string{"collection", "strategy"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docengine_query_duration_seconds",
			Help:    "Latency of query execution.",
			Buckets: prometheus.DefBuckets,
		}, []string{"collection", "strategy"}),

		TransactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docengine_transactions_total",
			Help: "Total number of transactions by outcome (committed, rolled_back).",
		}, []string{"outcome"}),

		LockWaitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docengine_lock_wait_seconds",
			Help:    "Time spent waiting to acquire a lock.",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),
		LockTimeoutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docengine_lock_timeouts_total",
			Help: "Total number of lock acquisitions that timed out.",
		}),
		DeadlocksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docengine_deadlocks_total",
			Help: "Total number of deadlocks detected.",
		}),

		GCRemovedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docengine_gc_removed_total",
			Help: "Total number of tombstones physically removed.",
		}),
		GCScannedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docengine_gc_scanned_total",
			Help: "Total number of tombstones scanned by GC sweeps.",
		}),
		GCErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docengine_gc_errors_total",
			Help: "Total number of GC removal errors.",
		}),
		TombstonesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docengine_tombstones_pending",
			Help: "Current number of tombstones awaiting removal.",
		}),

		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docengine_cache_hits_total",
			Help: "Total number of cache hits by cache name.",
		}, []string{"cache"}),
		CacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docengine_cache_misses_total",
			Help: "Total number of cache misses by cache name.",
		}, []string{"cache"}),

		WALAppendsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docengine_wal_appends_total",
			Help: "Total number of WAL records appended.",
		}),
		WALFlushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docengine_wal_flush_duration_seconds",
			Help:    "Latency of WAL fsync flushes.",
			Buckets: prometheus.DefBuckets,
		}),

		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docengine_active_connections",
			Help: "Current number of open wire-protocol connections.",
		}),
	}

	reg.MustRegister(
		r.DocumentOpsTotal, r.DocumentOpDuration,
		r.QueryExecutionsTotal, r.QueryDuration,
		r.TransactionsTotal,
		r.LockWaitDuration, r.LockTimeoutTotal, r.DeadlocksTotal,
		r.GCRemovedTotal, r.GCScannedTotal, r.GCErrorsTotal, r.TombstonesGauge,
		r.CacheHitsTotal, r.CacheMissesTotal,
		r.WALAppendsTotal, r.WALFlushLatency,
		r.ActiveConnections,
	)
	return r
}

// ObserveDocumentOp records one document operation's outcome and
// duration.
func (r *Recorder) ObserveDocumentOp(collection, op, outcome string, d time.Duration) {
	r.DocumentOpsTotal.WithLabelValues(collection, op, outcome).Inc()
	r.DocumentOpDuration.WithLabelValues(collection, op).Observe(d.Seconds())
}

// ObserveQuery records one query execution's chosen strategy and
// duration.
func (r *Recorder) ObserveQuery(collection, strategy string, d time.Duration) {
	r.QueryExecutionsTotal.WithLabelValues(collection, strategy).Inc()
	r.QueryDuration.WithLabelValues(collection, strategy).Observe(d.Seconds())
}

// ObserveTransaction records a transaction's terminal outcome.
func (r *Recorder) ObserveTransaction(outcome string) {
	r.TransactionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveLockWait records how long a lock acquisition waited.
func (r *Recorder) ObserveLockWait(mode string, d time.Duration) {
	r.LockWaitDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveGCRun folds one CollectionRun-shaped result into the GC
// counters and the pending-tombstone gauge.
func (r *Recorder) ObserveGCRun(removed, scanned, errs, pending int) {
	r.GCRemovedTotal.Add(float64(removed))
	r.GCScannedTotal.Add(float64(scanned))
	r.GCErrorsTotal.Add(float64(errs))
	r.TombstonesGauge.Set(float64(pending))
}

// ObserveCacheAccess records a cache hit or miss for the named cache.
func (r *Recorder) ObserveCacheAccess(cache string, hit bool) {
	if hit {
		r.CacheHitsTotal.WithLabelValues(cache).Inc()
		return
	}
	r.CacheMissesTotal.WithLabelValues(cache).Inc()
}
