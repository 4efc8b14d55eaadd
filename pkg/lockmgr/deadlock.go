package lockmgr

import "time"

// detectLoop periodically builds the waits-for graph and aborts one
// victim per cycle found. Runs until Stop is called.
func (m *Manager) detectLoop() {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.detectionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.detectOnce()
		}
	}
}

// waitsFor maps a blocked transaction to the set of transactions it is
// waiting behind on some resource (holders ahead of it, plus any
// earlier-queued waiters of an incompatible mode).
func (m *Manager) waitsFor() map[string]map[string]struct{} {
	graph := make(map[string]map[string]struct{})

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rs := range m.resources {
		if len(rs.waiters) == 0 {
			continue
		}
		for i, w := range rs.waiters {
			blockedOn := make(map[string]struct{})
			for holder := range rs.holders {
				if holder != w.txnID {
					blockedOn[holder] = struct{}{}
				}
			}
			for j := 0; j < i; j++ {
				earlier := rs.waiters[j]
				if earlier.txnID == w.txnID {
					continue
				}
				if w.mode == Exclusive || earlier.mode == Exclusive {
					blockedOn[earlier.txnID] = struct{}{}
				}
			}
			if len(blockedOn) == 0 {
				continue
			}
			if graph[w.txnID] == nil {
				graph[w.txnID] = make(map[string]struct{})
			}
			for b := range blockedOn {
				graph[w.txnID][b] = struct{}{}
			}
		}
	}
	return graph
}

// detectOnce builds the waits-for graph, finds cycles via Tarjan SCC,
// and aborts the most recently started transaction in each cycle found
// (tracked by txn id ordering — callers pass monotonically increasing
// ids, so lexicographically-largest approximates most-recent; pkg/txn
// mints ids from a monotonic counter, so this holds in practice).
func (m *Manager) detectOnce() {
	graph := m.waitsFor()
	if len(graph) == 0 {
		return
	}

	for _, cycle := range tarjanSCC(graph) {
		if len(cycle) < 2 {
			continue
		}
		victim := mostRecent(cycle)
		m.abortVictim(victim)
		m.logger.Warn().Str("victim", victim).Strs("cycle", cycle).Msg("deadlock detected, aborting victim")
		for _, s := range m.sinks {
			s.OnDeadlockDetected(victim, cycle)
		}
	}
}

func mostRecent(cycle []string) string {
	victim := cycle[0]
	for _, c := range cycle[1:] {
		if c > victim {
			victim = c
		}
	}
	return victim
}

// abortVictim wakes every waiter belonging to txnID with DeadlockVictim
// and removes it from its queues, without touching locks it already
// holds — the transaction coordinator is responsible for releasing
// those as part of processing the abort.
func (m *Manager) abortVictim(txnID string) {
	m.mu.Lock()
	var toWake []*waiter
	for _, rs := range m.resources {
		kept := rs.waiters[:0]
		for _, w := range rs.waiters {
			if w.txnID == txnID {
				toWake = append(toWake, w)
				continue
			}
			kept = append(kept, w)
		}
		rs.waiters = kept
	}
	m.mu.Unlock()

	for _, w := range toWake {
		w.wakeCh <- DeadlockVictim
	}
}

// tarjanSCC returns every strongly connected component of graph,
// single-node ones included; each component of size >= 2 is a cycle (or
// part of a larger knot) worth resolving.
func tarjanSCC(graph map[string]map[string]struct{}) [][]string {
	index := 0
	indices := map[string]int{}
	lowlink := map[string]int{}
	onStack := map[string]bool{}
	var stack []string
	var result [][]string

	var strongconnect func(v string)
	strongconnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for w := range graph[v] {
			if _, seen := indices[w]; !seen {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var component []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			result = append(result, component)
		}
	}

	for v := range graph {
		if _, seen := indices[v]; !seen {
			strongconnect(v)
		}
	}
	return result
}
