// Package partition implements the capacity-weighted layer partitioner:
// usable RAM per node, layer capacity per node, proportional weights,
// remainder-adjusted rounding, and forward-chain address construction.
package partition

import (
	"fmt"
	"log/slog"
)

// DefaultSafetyMemPerThreadMB is the reserved headroom per hardware thread,
// subtracted from reported RAM before computing usable capacity.
const DefaultSafetyMemPerThreadMB = 128

// NodeCompute describes one worker's reported capacity, in partitioner
// input order (tie-breaks between equal-capacity nodes are resolved by this
// order).
type NodeCompute struct {
	Addr    string
	RAMMb   int64
	Threads int
}

// NodeAssignment is the partitioner's output for one worker: which
// contiguous layer range it owns, how large its activation buffer is, and
// who it forwards to.
type NodeAssignment struct {
	NodeIndex  int    `msgpack:"node_index"`
	LayerBegin int    `msgpack:"layer_begin"`
	LayerEnd   int    `msgpack:"layer_end"`
	ArrayBytes int64  `msgpack:"array_bytes"`
	NextAddr   string `msgpack:"next_addr"`
	IsFirst    bool   `msgpack:"is_first"`
	IsLast     bool   `msgpack:"is_last"`
}

// Partition computes one NodeAssignment per node in nodes, in input order.
// It never drops layers: if aggregate capacity falls short of totalLayers,
// it logs a warning and proceeds with proportional weights anyway.
// Deterministic: identical inputs produce identical outputs.
func Partition(logger *slog.Logger, nodes []NodeCompute, totalLayers int, bytesPerLayer int64, safetyMemPerThreadMB int64) ([]NodeAssignment, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("partition: no nodes")
	}
	if totalLayers <= 0 {
		return nil, fmt.Errorf("partition: totalLayers must be positive, got %d", totalLayers)
	}
	if safetyMemPerThreadMB < 0 {
		safetyMemPerThreadMB = DefaultSafetyMemPerThreadMB
	}

	capacities := make([]int64, len(nodes))
	var totalCapacity int64
	for i, n := range nodes {
		usable := n.RAMMb - safetyMemPerThreadMB*int64(n.Threads)
		if usable < 0 {
			usable = 0
		}
		capacities[i] = (usable * 1048576) / bytesPerLayer
		totalCapacity += capacities[i]
	}

	if logger == nil {
		logger = slog.Default()
	}
	if totalCapacity < int64(totalLayers) {
		logger.Warn("partitioner capacity shortfall, proceeding with proportional assignment",
			"total_capacity", totalCapacity, "total_layers", totalLayers)
	}

	counts := proportionalCounts(capacities, totalLayers, totalCapacity)

	assignments := make([]NodeAssignment, len(nodes))
	layerBegin := 0
	for i := range nodes {
		count := counts[i]
		layerEnd := layerBegin + count

		nextAddr := ""
		if i < len(nodes)-1 {
			nextAddr = nodes[i+1].Addr
		}

		assignments[i] = NodeAssignment{
			NodeIndex:  i,
			LayerBegin: layerBegin,
			LayerEnd:   layerEnd,
			ArrayBytes: int64(count) * bytesPerLayer,
			NextAddr:   nextAddr,
			IsFirst:    i == 0,
			IsLast:     i == len(nodes)-1,
		}
		layerBegin = layerEnd
	}
	return assignments, nil
}

// proportionalCounts turns capacities into integer layer counts summing
// exactly to totalLayers, rounding each node's proportional share and
// resolving the rounding remainder against the largest-weight node.
func proportionalCounts(capacities []int64, totalLayers int, totalCapacity int64) []int {
	counts := make([]int, len(capacities))
	if totalCapacity <= 0 {
		// No usable capacity anywhere: split evenly, remainder to node 0
		// (an arbitrary but deterministic tie-break, consistent with "order
		// in the input array decides").
		base := totalLayers / len(capacities)
		rem := totalLayers % len(capacities)
		for i := range counts {
			counts[i] = base
		}
		for i := 0; i < rem; i++ {
			counts[i]++
		}
		return counts
	}

	sum := 0
	largestIdx := 0
	for i, c := range capacities {
		weight := float64(c) / float64(totalCapacity)
		counts[i] = roundHalfAwayFromZero(weight * float64(totalLayers))
		sum += counts[i]
		if c > capacities[largestIdx] {
			largestIdx = i
		}
	}

	diff := totalLayers - sum
	counts[largestIdx] += diff
	if counts[largestIdx] < 0 {
		counts[largestIdx] = 0
	}
	return counts
}

func roundHalfAwayFromZero(v float64) int {
	if v >= 0 {
		return int(v + 0.5)
	}
	return -int(-v + 0.5)
}
