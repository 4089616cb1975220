package concurrency

import (
	"sync"
	"testing"
)

func TestParallelRangeCoversDisjointUnion(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Shutdown()

	const n = 100_003
	hits := make([]int32, n)
	var mu sync.Mutex

	err := ParallelRange(pool, 0, n, func(lo, hi int) error {
		// Detect overlap: if any index in [lo,hi) was already marked, two
		// tasks observed the same index concurrently or sequentially.
		mu.Lock()
		for i := lo; i < hi; i++ {
			hits[i]++
		}
		mu.Unlock()
		return nil
	}, -1, 8192)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, h := range hits {
		if h != 1 {
			t.Fatalf("index %d visited %d times, want exactly 1", i, h)
		}
	}
}

func TestParallelRangeNilPoolRunsInline(t *testing.T) {
	var called bool
	err := ParallelRange(nil, 10, 20, func(lo, hi int) error {
		called = true
		if lo != 10 || hi != 20 {
			t.Fatalf("got (%d,%d), want (10,20)", lo, hi)
		}
		return nil
	}, -1, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("fn was not called")
	}
}

func TestParallelRangeEmptyRangeNoop(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Shutdown()

	called := false
	err := ParallelRange(pool, 5, 5, func(int, int) error {
		called = true
		return nil
	}, -1, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatal("fn should not be called on an empty range")
	}
}

func TestParallelRangePropagatesFirstError(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Shutdown()

	sentinel := errTestSentinel{}
	err := ParallelRange(pool, 0, 64, func(lo, hi int) error {
		return sentinel
	}, 8, 1)
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}

type errTestSentinel struct{}

func (errTestSentinel) Error() string { return "sentinel" }

func TestParallelRangeRespectsMinGrain(t *testing.T) {
	pool := NewWorkerPool(16)
	defer pool.Shutdown()

	var calls int32
	var mu sync.Mutex
	err := ParallelRange(pool, 0, 100, func(lo, hi int) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}, -1, 50) // N/minGrain = 2, so at most 2 tasks regardless of pool.Size()*4
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls > 2 {
		t.Fatalf("calls = %d, want at most 2 given minGrain=50 over N=100", calls)
	}
}
