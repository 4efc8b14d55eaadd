package engine

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/bobboyms/docengine/internal/audit"
	"github.com/bobboyms/docengine/internal/cache"
	"github.com/bobboyms/docengine/internal/config"
	"github.com/bobboyms/docengine/internal/events"
	"github.com/bobboyms/docengine/internal/metrics"
	"github.com/bobboyms/docengine/pkg/atomicupdate"
	"github.com/bobboyms/docengine/pkg/crypto"
	"github.com/bobboyms/docengine/pkg/document"
	"github.com/bobboyms/docengine/pkg/gc"
	"github.com/bobboyms/docengine/pkg/lockmgr"
	"github.com/bobboyms/docengine/pkg/store"
	"github.com/bobboyms/docengine/pkg/txn"
	"github.com/bobboyms/docengine/pkg/wal"
)

// indexOrder is the B+tree order every registered index shares. Not part
// of config.Config: it's an internal tuning knob, not an operational
// concern a deployment needs to vary.
const indexOrder = 64

// removerAdapter satisfies gc.Remover over *store.Store's RemoveFile,
// whose name differs from the interface method (RemoveFile mirrors the
// store's own Insert/Update/Delete naming; Remove is what gc.Remover
// specifies).
type removerAdapter struct{ store *store.Store }

func (r removerAdapter) Remove(collection, docID string) error {
	return r.store.RemoveFile(collection, docID)
}

// Options bundles the collaborators Engine accepts rather than builds
// itself: hook sinks, an audit sink, and a metrics recorder. All are
// optional; a zero-value Options yields a fully functional engine with
// no observability wired in beyond logging.
type Options struct {
	Sinks   events.Sinks
	Audit   audit.Sink
	Metrics *metrics.Recorder
}

// Engine is the single entry point a transport layer (pkg/wire framing,
// a cmd/ binary) programs against. It wires the document store, write-
// ahead log, lock manager, transaction coordinator, index registry,
// atomic-update engine, hot-document cache, tombstone garbage collector,
// and an optional at-rest encryption service into one cohesive API.
// Grounded on pkg/storage/engine.go's role as the table manager plus
// transaction/checkpoint orchestrator, generalized from that engine's
// single fixed heap-and-index table model to this module's pluggable
// document store and index registry.
type Engine struct {
	cfg config.Config

	store   *store.Store
	log     *wal.Log
	locks   *lockmgr.Manager
	txns    *txn.Coordinator
	atomic  *atomicupdate.Engine
	collector *gc.Collector
	indexes *indexSet
	docCache *cache.Cache[*document.Document]
	crypto  *crypto.Service
	metrics *metrics.Recorder
	audit   audit.Sink
	logger  zerolog.Logger
	pending *pendingDeletes

	// Recovery is the WAL replay outcome observed at startup: which
	// transactions were committed, rolled back, or left in-doubt by a
	// prior crash. Exposed read-only so an operator can log or alert on
	// it after New returns.
	Recovery *wal.RecoveryResult
}

// New builds an Engine from cfg, opening (and replaying) the write-
// ahead log, starting the lock manager's deadlock detector, and, when
// cfg.GC.Background is set, starting the tombstone sweep loop.
func New(cfg config.Config, logger zerolog.Logger, opts Options) (*Engine, error) {
	st, err := newStore(cfg)
	if err != nil {
		return nil, err
	}

	sinks := events.NewMultiSink(opts.Sinks)

	walOpts := wal.Options{
		Dir:         cfg.WAL.Dir,
		ForceSync:   cfg.WAL.ForceSync,
		MaxFileSize: cfg.WAL.MaxFileSize,
		BufferSize:  cfg.WAL.BufferSize,
	}
	log, recovery, err := wal.Open(walOpts.Dir, walOpts, logger)
	if err != nil {
		return nil, err
	}

	locks := lockmgr.New(cfg.Locks.DetectionInterval, logger, sinks)

	indexes := newIndexSet()

	var docCache *cache.Cache[*document.Document]
	if cfg.Cache.MaxItems > 0 {
		docCache = cache.New[*document.Document]("documents", cfg.Cache.MaxItems, cfg.Cache.TTL, sinks)
	}

	mutator := &storeMutator{store: st, indexes: indexes, cache: docCache}
	coordinator := txn.New(locks, log, mutator, logger, sinks)

	atomic := atomicupdate.New(&atomicStore{store: st, indexes: indexes, cache: docCache}, locks)

	collector := gc.New(gc.Options{
		Enabled:   cfg.GC.Enabled,
		Retention: cfg.GC.Retention,
		MaxPerRun: cfg.GC.MaxPerRun,
		Interval:  cfg.GC.Interval,
	}, removerAdapter{store: st}, logger, sinks)
	if cfg.GC.Enabled && cfg.GC.Background && cfg.GC.Interval > 0 {
		collector.Start(time.Now)
	}

	var cryptoSvc *crypto.Service
	if cfg.Encryption.Key != "" {
		derived, err := crypto.DeriveKey(cfg.Encryption.Key, crypto.MinIterations, nil)
		if err != nil {
			return nil, err
		}
		if cfg.Encryption.KeyID != "" {
			derived.Key.KeyID = cfg.Encryption.KeyID
		}
		cryptoSvc = crypto.NewService(derived.Key)
	}

	auditSink := opts.Audit
	if auditSink == nil {
		auditSink = audit.NopSink{}
	}

	return &Engine{
		cfg:       cfg,
		store:     st,
		log:       log,
		locks:     locks,
		txns:      coordinator,
		atomic:    atomic,
		collector: collector,
		indexes:   indexes,
		docCache:  docCache,
		crypto:    cryptoSvc,
		metrics:   opts.Metrics,
		audit:     auditSink,
		logger:    logger,
		pending:   newPendingDeletes(),
		Recovery:  recovery,
	}, nil
}

func newStore(cfg config.Config) (*store.Store, error) {
	if cfg.DataPath == "" {
		return store.New(), nil
	}
	queueSize := cfg.WAL.BufferSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	return store.NewHybrid(cfg.DataPath, queueSize)
}

// Close stops the background GC loop and the lock manager's detector,
// flushes any queued file writes, and closes the write-ahead log.
func (e *Engine) Close() error {
	e.collector.Stop()
	e.locks.Stop()
	if err := e.store.Flush(); err != nil {
		e.logger.Warn().Err(err).Msg("flush on close")
	}
	if err := e.store.Close(); err != nil {
		e.logger.Warn().Err(err).Msg("store close")
	}
	return e.log.Close()
}

// CreateCollection registers a new collection.
func (e *Engine) CreateCollection(name string) error {
	if err := e.store.CreateCollection(name); err != nil {
		return err
	}
	e.record(audit.EventCollectionCreated, "", name, "", nil)
	return nil
}

// DropCollection removes a collection, its documents, and every index
// registered on it.
func (e *Engine) DropCollection(name string) error {
	if err := e.store.DropCollection(name); err != nil {
		return err
	}
	e.indexes.dropCollection(name)
	e.record(audit.EventCollectionDropped, "", name, "", nil)
	return nil
}

// Collections lists every registered collection name.
func (e *Engine) Collections() []string {
	return e.store.GetCollections()
}

func (e *Engine) record(typ audit.EventType, actor, collection, docID string, details map[string]any) {
	e.audit.Record(audit.AuditEvent{
		Timestamp:  time.Now(),
		Type:       typ,
		Actor:      actor,
		Collection: collection,
		DocID:      docID,
		Details:    details,
	})
}

func (e *Engine) observeOp(collection, op, outcome string, started time.Time) {
	if e.metrics != nil {
		e.metrics.ObserveDocumentOp(collection, op, outcome, time.Since(started))
	}
}
