package partition

import "testing"

func TestTwoWorkerCapacityPartition(t *testing.T) {
	nodes := []NodeCompute{
		{Addr: "A", RAMMb: 4096, Threads: 4},
		{Addr: "B", RAMMb: 2048, Threads: 2},
	}
	out, err := Partition(nil, nodes, 6, 1048576, 128)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if out[0].LayerBegin != 0 || out[0].LayerEnd != 4 {
		t.Fatalf("node 0 range = [%d,%d), want [0,4)", out[0].LayerBegin, out[0].LayerEnd)
	}
	if out[1].LayerBegin != 4 || out[1].LayerEnd != 6 {
		t.Fatalf("node 1 range = [%d,%d), want [4,6)", out[1].LayerBegin, out[1].LayerEnd)
	}
	if out[0].NextAddr != "B" || out[1].NextAddr != "" {
		t.Fatalf("next_addr = %q,%q want B,\"\"", out[0].NextAddr, out[1].NextAddr)
	}
	if !out[0].IsFirst || out[0].IsLast {
		t.Fatalf("node 0 flags wrong: first=%v last=%v", out[0].IsFirst, out[0].IsLast)
	}
	if out[1].IsFirst || !out[1].IsLast {
		t.Fatalf("node 1 flags wrong: first=%v last=%v", out[1].IsFirst, out[1].IsLast)
	}
}

func TestCapacityShortfallSplitsEvenlyWithWarning(t *testing.T) {
	nodes := []NodeCompute{
		{Addr: "A", RAMMb: 64, Threads: 1},
		{Addr: "B", RAMMb: 64, Threads: 1},
	}
	out, err := Partition(nil, nodes, 10, 32*1048576, 128)
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	for _, a := range out {
		total += a.LayerEnd - a.LayerBegin
	}
	if total != 10 {
		t.Fatalf("sum of layer counts = %d, want 10", total)
	}
	if (out[0].LayerEnd - out[0].LayerBegin) != 5 || (out[1].LayerEnd - out[1].LayerBegin) != 5 {
		t.Fatalf("expected even 5/5 split, got %d/%d", out[0].LayerEnd-out[0].LayerBegin, out[1].LayerEnd-out[1].LayerBegin)
	}
}

func TestSumEqualsTotalLayersAcrossManyNodes(t *testing.T) {
	nodes := []NodeCompute{
		{Addr: "A", RAMMb: 1000, Threads: 2},
		{Addr: "B", RAMMb: 3000, Threads: 1},
		{Addr: "C", RAMMb: 500, Threads: 4},
		{Addr: "D", RAMMb: 7777, Threads: 3},
	}
	out, err := Partition(nil, nodes, 37, 2*1048576, 64)
	if err != nil {
		t.Fatal(err)
	}
	sum := 0
	for i, a := range out {
		if a.LayerBegin < 0 || a.LayerEnd < a.LayerBegin {
			t.Fatalf("invalid range at node %d: [%d,%d)", i, a.LayerBegin, a.LayerEnd)
		}
		sum += a.LayerEnd - a.LayerBegin
	}
	if sum != 37 {
		t.Fatalf("sum = %d, want 37", sum)
	}
	// contiguity and non-overlap
	for i := 1; i < len(out); i++ {
		if out[i].LayerBegin != out[i-1].LayerEnd {
			t.Fatalf("ranges not contiguous between node %d and %d", i-1, i)
		}
	}
}

func TestDeterministicOutput(t *testing.T) {
	nodes := []NodeCompute{
		{Addr: "A", RAMMb: 4096, Threads: 4},
		{Addr: "B", RAMMb: 2048, Threads: 2},
		{Addr: "C", RAMMb: 1024, Threads: 1},
	}
	out1, err := Partition(nil, nodes, 17, 1048576, 128)
	if err != nil {
		t.Fatal(err)
	}
	out2, err := Partition(nil, nodes, 17, 1048576, 128)
	if err != nil {
		t.Fatal(err)
	}
	for i := range out1 {
		if out1[i] != out2[i] {
			t.Fatalf("non-deterministic output at node %d: %+v vs %+v", i, out1[i], out2[i])
		}
	}
}

func TestArrayBytesMatchesLayerCount(t *testing.T) {
	nodes := []NodeCompute{
		{Addr: "A", RAMMb: 4096, Threads: 4},
		{Addr: "B", RAMMb: 2048, Threads: 2},
	}
	out, err := Partition(nil, nodes, 6, 1048576, 128)
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range out {
		want := int64(a.LayerEnd-a.LayerBegin) * 1048576
		if a.ArrayBytes != want {
			t.Fatalf("ArrayBytes = %d, want %d", a.ArrayBytes, want)
		}
	}
}

func TestPartitionRejectsEmptyNodes(t *testing.T) {
	if _, err := Partition(nil, nil, 10, 1048576, 128); err == nil {
		t.Fatal("expected error for empty node list")
	}
}

func TestPartitionRejectsNonPositiveTotalLayers(t *testing.T) {
	nodes := []NodeCompute{{Addr: "A", RAMMb: 1024, Threads: 1}}
	if _, err := Partition(nil, nodes, 0, 1048576, 128); err == nil {
		t.Fatal("expected error for totalLayers <= 0")
	}
}
