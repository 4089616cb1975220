// Package readiness implements Monitor: a per-node state machine plus a
// once-per-epoch quorum callback, covering connection-readiness states
// {Connecting,Reporting,Ready,Stale,Dead}.
package readiness

import "sync"

// State is a connection's position in the readiness state machine.
type State int

const (
	// Connecting is the state of a freshly accepted connection that has
	// not yet sent a RESOURCE_REPORT.
	Connecting State = iota
	// Reporting is reserved for a node mid-handshake; the current wire
	// protocol has no partial-report state, so nodes move directly from
	// Connecting to Ready, but the state is kept for forward
	// compatibility with a multi-frame handshake.
	Reporting
	// Ready is a node whose reported RAM is greater than zero.
	Ready
	// Stale is a node that missed one heartbeat deadline but has not yet
	// been reaped.
	Stale
	// Dead is a node that has been erased from the registry.
	Dead
)

// String renders the state for log lines.
func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Reporting:
		return "reporting"
	case Ready:
		return "ready"
	case Stale:
		return "stale"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// Monitor tracks each node's readiness state and fires a single onQuorum
// callback per epoch, the first time the Ready count reaches expected.
type Monitor struct {
	mu       sync.Mutex
	states   map[string]State
	expected int
	fired    bool

	onQuorum func(readyIDs []string)
}

// NewMonitor creates a Monitor that expects `expected` ready nodes before
// firing its quorum callback.
func NewMonitor(expected int) *Monitor {
	return &Monitor{
		states:   make(map[string]State),
		expected: expected,
	}
}

// SetOnQuorum registers the callback invoked exactly once per epoch, the
// first time the Ready count reaches the expected count. Must be called
// before any transition that could reach quorum to take effect for that
// epoch.
func (m *Monitor) SetOnQuorum(fn func(readyIDs []string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onQuorum = fn
}

// MarkConnecting registers id in the Connecting state, the starting point
// for every newly accepted connection.
func (m *Monitor) MarkConnecting(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[id] = Connecting
}

// MarkReady transitions id to Ready, called when a RESOURCE_REPORT with
// RAMBytes > 0 arrives. If this transition brings the Ready count to the
// expected total and the quorum callback has not yet fired this epoch, it
// fires asynchronously on a separate goroutine to avoid blocking the
// caller's dispatch loop.
func (m *Monitor) MarkReady(id string) {
	m.mu.Lock()
	m.states[id] = Ready
	readyCount := m.countReadyUnsafe()
	var fire func([]string)
	var ids []string
	if !m.fired && m.expected > 0 && readyCount >= m.expected {
		m.fired = true
		fire = m.onQuorum
		ids = m.readyIDsUnsafe()
	}
	m.mu.Unlock()

	if fire != nil {
		go fire(ids)
	}
}

// MarkStale transitions id to Stale, called when a heartbeat deadline is
// missed but the node has not yet been reaped.
func (m *Monitor) MarkStale(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[id]; ok {
		m.states[id] = Stale
	}
}

// MarkDead transitions id to Dead, called when a node is erased from the
// registry. Does not reset a quorum that already fired — no
// re-partitioning occurs after the epoch's quorum has been met.
func (m *Monitor) MarkDead(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[id] = Dead
}

// Forget removes id entirely, used once a dead connection's bookkeeping is
// no longer needed.
func (m *Monitor) Forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, id)
}

// State returns the current state of id, or Dead if id is unknown.
func (m *Monitor) State(id string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[id]; ok {
		return s
	}
	return Dead
}

// ReadyCount returns the current number of nodes in the Ready state.
func (m *Monitor) ReadyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countReadyUnsafe()
}

// QuorumFired reports whether the quorum callback has already fired for
// this epoch.
func (m *Monitor) QuorumFired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fired
}

func (m *Monitor) countReadyUnsafe() int {
	n := 0
	for _, s := range m.states {
		if s == Ready {
			n++
		}
	}
	return n
}

func (m *Monitor) readyIDsUnsafe() []string {
	ids := make([]string, 0, len(m.states))
	for id, s := range m.states {
		if s == Ready {
			ids = append(ids, id)
		}
	}
	return ids
}
