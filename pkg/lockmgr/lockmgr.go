// Package lockmgr implements pessimistic resource locking with FIFO
// waiters and background deadlock detection — the concurrency substrate
// the transaction coordinator and the atomic update engine both sit on
// top of. Latch crabbing inside pkg/btree protects node-internal
// structure; this package protects logical resources named by the
// caller (typically "collection:doc_id" strings).
package lockmgr

import (
	"context"
	"sync"
	"time"

	"github.com/bobboyms/docengine/internal/engineerr"
	"github.com/bobboyms/docengine/internal/events"
	"github.com/rs/zerolog"
)

// Mode is the lock mode requested or held.
type Mode uint8

const (
	Shared Mode = iota
	Exclusive
)

func (m Mode) String() string {
	if m == Exclusive {
		return "Exclusive"
	}
	return "Shared"
}

// Result is the outcome of Acquire.
type Result uint8

const (
	Granted Result = iota
	TimedOut
	DeadlockVictim
)

type waiter struct {
	txnID  string
	mode   Mode
	wakeCh chan Result
}

type resourceState struct {
	holders map[string]Mode // txnID -> mode currently held
	waiters []*waiter       // FIFO order
}

// Manager grants/queues/releases/upgrades locks on opaque resource ids
// and runs a background deadlock detector over the waits-for graph.
type Manager struct {
	mu        sync.Mutex
	resources map[string]*resourceState

	detectionInterval time.Duration
	sinks             []events.LockSink
	logger            zerolog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Manager. If detectionInterval is 0, the background
// deadlock detector never runs and callers rely solely on acquire
// timeouts to break cycles.
func New(detectionInterval time.Duration, logger zerolog.Logger, sinks ...events.LockSink) *Manager {
	m := &Manager{
		resources:         make(map[string]*resourceState),
		detectionInterval: detectionInterval,
		sinks:             sinks,
		logger:            logger,
	}
	if detectionInterval > 0 {
		m.stopCh = make(chan struct{})
		m.doneCh = make(chan struct{})
		go m.detectLoop()
	}
	return m
}

// Stop terminates the background deadlock detector, if running.
func (m *Manager) Stop() {
	if m.stopCh == nil {
		return
	}
	close(m.stopCh)
	<-m.doneCh
}

func (m *Manager) stateFor(resource string) *resourceState {
	rs, ok := m.resources[resource]
	if !ok {
		rs = &resourceState{holders: make(map[string]Mode)}
		m.resources[resource] = rs
	}
	return rs
}

func compatible(requested Mode, holders map[string]Mode, requestingTxn string) bool {
	for txn, mode := range holders {
		if txn == requestingTxn {
			continue
		}
		if requested == Exclusive || mode == Exclusive {
			return false
		}
	}
	return true
}

// Acquire grants, queues, or denies a lock. Reentrant: a transaction
// already holding the same or a stronger mode on resource is granted
// immediately without a second holder entry. A transaction holding
// Shared that requests Exclusive is treated as an upgrade. ctx
// cancellation or deadline elapsing returns TimedOut and removes the
// caller from the wait queue. DeadlockVictim is returned when the
// background detector aborts this transaction while it waits.
func (m *Manager) Acquire(ctx context.Context, txnID, resource string, mode Mode) (Result, error) {
	m.mu.Lock()

	rs := m.stateFor(resource)

	if held, ok := rs.holders[txnID]; ok {
		if held == Exclusive || held == mode {
			m.mu.Unlock()
			return Granted, nil
		}
		m.mu.Unlock()
		return m.upgrade(ctx, txnID, resource)
	}

	if len(rs.waiters) == 0 && compatible(mode, rs.holders, txnID) {
		rs.holders[txnID] = mode
		m.mu.Unlock()
		m.notifyAcquired(txnID, resource, mode)
		return Granted, nil
	}

	w := &waiter{txnID: txnID, mode: mode, wakeCh: make(chan Result, 1)}
	rs.waiters = append(rs.waiters, w)
	m.mu.Unlock()

	return m.wait(ctx, txnID, resource, mode, w)
}

// upgrade promotes txnID's existing Shared hold on resource to
// Exclusive. If it is not the sole holder, it re-enqueues as an
// Exclusive waiter at the back of the current queue — queued behind
// waiters that arrived earlier, ahead of any that arrive later. Two
// transactions racing to upgrade the same resource each hold Shared
// and each wait on the other's release, which the deadlock detector
// resolves via victim selection.
func (m *Manager) upgrade(ctx context.Context, txnID, resource string) (Result, error) {
	m.mu.Lock()
	rs := m.stateFor(resource)

	if _, held := rs.holders[txnID]; held && len(rs.holders) == 1 && len(rs.waiters) == 0 {
		rs.holders[txnID] = Exclusive
		m.mu.Unlock()
		m.notifyAcquired(txnID, resource, Exclusive)
		return Granted, nil
	}

	w := &waiter{txnID: txnID, mode: Exclusive, wakeCh: make(chan Result, 1)}
	rs.waiters = append(rs.waiters, w)
	m.mu.Unlock()

	return m.wait(ctx, txnID, resource, Exclusive, w)
}

func (m *Manager) wait(ctx context.Context, txnID, resource string, mode Mode, w *waiter) (Result, error) {
	select {
	case res := <-w.wakeCh:
		if res == Granted {
			m.notifyAcquired(txnID, resource, mode)
		}
		return res, nil
	case <-ctx.Done():
		m.removeWaiter(resource, w)
		return TimedOut, nil
	}
}

// AcquireTimeout is a convenience wrapper over Acquire using a plain
// duration instead of a context.
func (m *Manager) AcquireTimeout(txnID, resource string, mode Mode, timeout time.Duration) (Result, error) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return m.Acquire(ctx, txnID, resource, mode)
}

func (m *Manager) removeWaiter(resource string, target *waiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.resources[resource]
	if !ok {
		return
	}
	for i, w := range rs.waiters {
		if w == target {
			rs.waiters = append(rs.waiters[:i], rs.waiters[i+1:]...)
			return
		}
	}
}

// Release drops every lock txnID holds on resource and wakes the next
// compatible set of waiters: either all leading Shared waiters, or the
// single leading Exclusive waiter.
func (m *Manager) Release(txnID, resource string) {
	m.mu.Lock()
	rs, ok := m.resources[resource]
	if !ok {
		m.mu.Unlock()
		return
	}
	held, wasHolding := rs.holders[txnID]
	delete(rs.holders, txnID)

	var toWake []*waiter
	for len(rs.waiters) > 0 {
		head := rs.waiters[0]
		if head.mode == Exclusive {
			if !compatible(Exclusive, rs.holders, head.txnID) {
				break
			}
			rs.waiters = rs.waiters[1:]
			rs.holders[head.txnID] = Exclusive
			toWake = append(toWake, head)
			break
		}
		if !compatible(Shared, rs.holders, head.txnID) {
			break
		}
		rs.waiters = rs.waiters[1:]
		rs.holders[head.txnID] = Shared
		toWake = append(toWake, head)
	}
	if len(rs.holders) == 0 && len(rs.waiters) == 0 {
		delete(m.resources, resource)
	}
	m.mu.Unlock()

	if wasHolding {
		m.notifyReleased(txnID, resource, held)
	}
	for _, w := range toWake {
		w.wakeCh <- Granted
	}
}

// ReleaseAll drops every resource txnID holds or waits on, used by
// commit, rollback, and deadlock-victim abort.
func (m *Manager) ReleaseAll(txnID string) {
	m.mu.Lock()
	var resources []string
	for resource, rs := range m.resources {
		if _, held := rs.holders[txnID]; held {
			resources = append(resources, resource)
			continue
		}
		for _, w := range rs.waiters {
			if w.txnID == txnID {
				resources = append(resources, resource)
				break
			}
		}
	}
	m.mu.Unlock()

	for _, resource := range resources {
		m.Release(txnID, resource)
	}
}

func (m *Manager) notifyAcquired(txnID, resource string, mode Mode) {
	for _, s := range m.sinks {
		s.OnLockAcquired(txnID, resource, mode.String())
	}
}

func (m *Manager) notifyReleased(txnID, resource string, mode Mode) {
	for _, s := range m.sinks {
		s.OnLockReleased(txnID, resource, mode.String())
	}
}

// DeniedError builds the typed error Acquire callers surface when a
// deadlock victimizes their transaction.
func DeniedError(resource string) error {
	return &engineerr.LockError{Resource: resource, Reason: engineerr.LockDeadlock}
}

// TimeoutError builds the typed error for a timed-out acquire.
func TimeoutError(resource string) error {
	return &engineerr.LockError{Resource: resource, Reason: engineerr.LockTimeout}
}
