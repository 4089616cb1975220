// Package registry implements ConnectionRegistry: a mutex-protected mapping
// from worker identity to NodeInfo with a capacity cap, exposing
// insert/erase/markDead/update/get/snapshot/size operations. Purely
// in-memory: nothing here is persisted across restarts.
package registry

import (
	"fmt"
	"sync"
	"time"
)

// NodeInfo is the per-worker record held by ConnectionRegistry.
type NodeInfo struct {
	Addr      string
	RAMBytes  uint64
	Threads   uint32
	LastSeen  time.Time
	Alive     bool
}

// ConnectionRegistry is a mutex-protected map from worker identity to
// NodeInfo, capped at MaxNodes entries.
type ConnectionRegistry struct {
	mu       sync.Mutex
	entries  map[string]NodeInfo
	maxNodes int
}

// NewConnectionRegistry builds an empty registry capped at maxNodes
// entries. maxNodes <= 0 is treated as unlimited.
func NewConnectionRegistry(maxNodes int) *ConnectionRegistry {
	return &ConnectionRegistry{
		entries:  make(map[string]NodeInfo),
		maxNodes: maxNodes,
	}
}

// Insert adds a new entry under id. Returns false without mutating the
// registry if it is already at capacity.
func (r *ConnectionRegistry) Insert(id string, info NodeInfo) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.maxNodes > 0 && len(r.entries) >= r.maxNodes {
		return false
	}
	r.entries[id] = info
	return true
}

// Erase removes id unconditionally.
func (r *ConnectionRegistry) Erase(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// MarkDead flips Alive to false for id, if present.
func (r *ConnectionRegistry) MarkDead(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.entries[id]; ok {
		info.Alive = false
		r.entries[id] = info
	}
}

// Update applies mutator to the entry under id while holding the lock.
// Returns false if id is not present.
func (r *ConnectionRegistry) Update(id string, mutator func(*NodeInfo)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.entries[id]
	if !ok {
		return false
	}
	mutator(&info)
	r.entries[id] = info
	return true
}

// Get returns a copy of the entry under id, if present.
func (r *ConnectionRegistry) Get(id string) (NodeInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.entries[id]
	return info, ok
}

// Snapshot returns an independent copy of the full registry, safe to
// iterate without holding the lock.
func (r *ConnectionRegistry) Snapshot() map[string]NodeInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]NodeInfo, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}

// Size returns the current number of entries.
func (r *ConnectionRegistry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// ReadyCount returns the number of entries with RAMBytes > 0, reported by
// Coordinator.Stats.
func (r *ConnectionRegistry) ReadyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, info := range r.entries {
		if info.RAMBytes > 0 {
			n++
		}
	}
	return n
}

// String renders a short human-readable summary, used for coordinator log
// lines and the status table a human operator might tail.
func (info NodeInfo) String() string {
	return fmt.Sprintf("%s ram=%dMB threads=%d alive=%v last_seen=%s",
		info.Addr, info.RAMBytes/1048576, info.Threads, info.Alive, info.LastSeen.Format(time.RFC3339))
}
