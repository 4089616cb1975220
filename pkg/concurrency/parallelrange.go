package concurrency

// ParallelRange splits [begin, end) into grain-respecting chunks and
// dispatches one task per chunk to pool, waiting for all of them before
// returning. fn is invoked on a set of disjoint sub-ranges whose union is
// exactly [begin, end); no two concurrent invocations observe overlapping
// indices.
//
// desiredTasks <= 0 picks pool.Size()*4 tasks. The task count is always
// clamped to [1, max(1, N/minGrain)] so tiny ranges don't oversplit. If pool
// is nil or N <= 0, fn runs once on the caller (or not at all when N <= 0).
func ParallelRange(pool *WorkerPool, begin, end int, fn func(int, int) error, desiredTasks int, minGrain int) error {
	n := end - begin
	if n <= 0 {
		return nil
	}
	if pool == nil {
		return fn(begin, end)
	}
	if minGrain < 1 {
		minGrain = 1
	}

	t := desiredTasks
	if t <= 0 {
		t = pool.Size() * 4
	}
	maxTasks := n / minGrain
	if maxTasks < 1 {
		maxTasks = 1
	}
	t = clamp(t, 1, maxTasks)

	chunk := (n + t - 1) / t // ceil(n/t)

	futures := make([]*Future, 0, t)
	for lo := begin; lo < end; lo += chunk {
		hi := lo + chunk
		if hi > end {
			hi = end
		}
		lo, hi := lo, hi // capture
		futures = append(futures, pool.Submit(func() (any, error) {
			return nil, fn(lo, hi)
		}))
	}

	var firstErr error
	for _, f := range futures {
		if _, err := f.Wait(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
