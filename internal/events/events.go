// Package events declares the hook-sink interfaces every subsystem
// notifies on state changes a client or operator might want to observe:
// lock traffic, deadlocks, transaction outcomes, cache evictions, WAL
// checkpoints, and garbage-collection runs. Subsystems accept a slice of
// sinks through their constructor (the same explicit-dependency
// discipline as the logger) rather than reaching for a package-level
// registry; a nil or empty slice means nobody is listening.
package events

// LockSink observes lock-manager traffic.
type LockSink interface {
	OnLockAcquired(txnID, resource, mode string)
	OnLockReleased(txnID, resource, mode string)
	OnDeadlockDetected(victim string, cycle []string)
}

// TransactionSink observes transaction coordinator outcomes.
type TransactionSink interface {
	OnTransactionCommitted(txnID string)
	OnTransactionRolledBack(txnID, reason string)
}

// CacheSink observes cache evictions.
type CacheSink interface {
	OnItemEvicted(key string, reason string)
}

// CheckpointSink observes WAL checkpoint creation.
type CheckpointSink interface {
	OnCheckpointCreated(lsn uint64)
}

// GCSink observes tombstone garbage-collection sweeps.
type GCSink interface {
	OnGCRun(collection string, removed int, scanned int)
}

// Sinks bundles every hook interface a caller may want to implement
// partially; embedding lets a type satisfy only the ones it needs by
// pairing with a NopSink for the rest (see NewMultiSink).
type Sinks struct {
	LockSink
	TransactionSink
	CacheSink
	CheckpointSink
	GCSink
}

// NopSink implements every hook interface as a no-op, so callers that
// only care about e.g. TransactionSink can embed NopSink and override
// just that method.
type NopSink struct{}

func (NopSink) OnLockAcquired(string, string, string)  {}
func (NopSink) OnLockReleased(string, string, string)  {}
func (NopSink) OnDeadlockDetected(string, []string)    {}
func (NopSink) OnTransactionCommitted(string)          {}
func (NopSink) OnTransactionRolledBack(string, string) {}
func (NopSink) OnItemEvicted(string, string)           {}
func (NopSink) OnCheckpointCreated(uint64)              {}
func (NopSink) OnGCRun(string, int, int)                {}

// NewMultiSink builds a Sinks value with NopSink filling every field
// left unset, so a caller that only implements (say) TransactionSink
// can pass it without every other embedded interface being a nil
// method set a subsystem would panic calling.
func NewMultiSink(s Sinks) Sinks {
	if s.LockSink == nil {
		s.LockSink = NopSink{}
	}
	if s.TransactionSink == nil {
		s.TransactionSink = NopSink{}
	}
	if s.CacheSink == nil {
		s.CacheSink = NopSink{}
	}
	if s.CheckpointSink == nil {
		s.CheckpointSink = NopSink{}
	}
	if s.GCSink == nil {
		s.GCSink = NopSink{}
	}
	return s
}
