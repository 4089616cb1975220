package readiness

import (
	"sort"
	"sync"
	"testing"
	"time"
)

func TestMarkReadyFiresQuorumOnce(t *testing.T) {
	m := NewMonitor(2)
	var calls int
	var mu sync.Mutex
	done := make(chan struct{}, 1)
	m.SetOnQuorum(func(ids []string) {
		mu.Lock()
		calls++
		mu.Unlock()
		done <- struct{}{}
	})

	m.MarkConnecting("a")
	m.MarkConnecting("b")
	m.MarkReady("a")
	m.MarkReady("b")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("quorum callback never fired")
	}

	// A further Ready transition (e.g. a duplicate report) must not
	// refire the callback.
	m.MarkReady("a")
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("onQuorum fired %d times, want 1", calls)
	}
}

func TestMarkReadyQuorumIncludesAllReadyIDs(t *testing.T) {
	m := NewMonitor(3)
	var got []string
	done := make(chan struct{}, 1)
	m.SetOnQuorum(func(ids []string) {
		got = ids
		done <- struct{}{}
	})

	m.MarkConnecting("a")
	m.MarkConnecting("b")
	m.MarkConnecting("c")
	m.MarkReady("a")
	m.MarkReady("b")
	m.MarkReady("c")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("quorum callback never fired")
	}

	sort.Strings(got)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ids = %v, want %v", got, want)
		}
	}
}

func TestMarkDeadBeforeQuorumWaitsForReplacement(t *testing.T) {
	m := NewMonitor(2)
	fired := false
	m.SetOnQuorum(func(ids []string) { fired = true })

	m.MarkConnecting("a")
	m.MarkConnecting("b")
	m.MarkReady("a")
	m.MarkDead("b")
	time.Sleep(20 * time.Millisecond)

	if fired {
		t.Fatal("quorum should not fire with only one ready node")
	}
	if m.ReadyCount() != 1 {
		t.Fatalf("ReadyCount() = %d, want 1", m.ReadyCount())
	}
}

func TestStateTransitionsAndUnknownDefaultsDead(t *testing.T) {
	m := NewMonitor(1)
	m.MarkConnecting("a")
	if got := m.State("a"); got != Connecting {
		t.Fatalf("State(a) = %v, want Connecting", got)
	}
	m.MarkStale("a")
	if got := m.State("a"); got != Stale {
		t.Fatalf("State(a) = %v, want Stale", got)
	}
	m.MarkDead("a")
	if got := m.State("a"); got != Dead {
		t.Fatalf("State(a) = %v, want Dead", got)
	}
	if got := m.State("never-seen"); got != Dead {
		t.Fatalf("State(never-seen) = %v, want Dead", got)
	}
}

func TestQuorumFired(t *testing.T) {
	m := NewMonitor(1)
	done := make(chan struct{}, 1)
	m.SetOnQuorum(func(ids []string) { done <- struct{}{} })
	if m.QuorumFired() {
		t.Fatal("QuorumFired() should start false")
	}
	m.MarkConnecting("a")
	m.MarkReady("a")
	<-done
	if !m.QuorumFired() {
		t.Fatal("QuorumFired() should be true after quorum callback runs")
	}
}
