// Package kernels implements the pool-aware data-parallel primitives that
// the layer family composes into forward/backward passes: element-wise
// maps, bias broadcast, row reduction, dispatched across ParallelRange.
package kernels

import (
	"math"

	"github.com/tensorfabric/fabric/pkg/concurrency"
)

// UnaryMap applies f to every element of src, writing into dst. Aliasing
// dst == src is permitted.
func UnaryMap(pool *concurrency.WorkerPool, dst, src []float32, f func(float32) float32) error {
	n := len(src)
	return concurrency.ParallelRange(pool, 0, n, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			dst[i] = f(src[i])
		}
		return nil
	}, -1, 8192)
}

// BinaryMap applies f pointwise over a and b, writing into dst. Aliasing
// dst with a or b is permitted.
func BinaryMap(pool *concurrency.WorkerPool, dst, a, b []float32, f func(float32, float32) float32) error {
	n := len(a)
	return concurrency.ParallelRange(pool, 0, n, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			dst[i] = f(a[i], b[i])
		}
		return nil
	}, -1, 8192)
}

// AddBiasBroadcast computes Y[i,j] += b[j] in place, parallel over rows.
// y has rows*cols elements in row-major order; b has cols elements.
func AddBiasBroadcast(pool *concurrency.WorkerPool, y []float32, rows, cols int, b []float32) error {
	return concurrency.ParallelRange(pool, 0, rows, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			base := i * cols
			for j := 0; j < cols; j++ {
				y[base+j] += b[j]
			}
		}
		return nil
	}, -1, 8192/maxInt(cols, 1))
}

// ReduceSumRows computes out[j] = sum_i X[i,j] and accumulates additively
// into out (out is not zeroed first — the caller decides whether it starts
// at zero or is a running accumulator). X has rows*cols elements row-major.
func ReduceSumRows(pool *concurrency.WorkerPool, x []float32, rows, cols int, out []float32) error {
	tasks := maxInt(1, pool.Size()*4)
	if tasks > rows {
		tasks = maxInt(1, rows)
	}
	partials := make([][]float32, tasks)
	for i := range partials {
		partials[i] = make([]float32, cols)
	}

	err := concurrency.ParallelRange(pool, 0, tasks, func(lo, hi int) error {
		for task := lo; task < hi; task++ {
			rowLo := rows * task / tasks
			rowHi := rows * (task + 1) / tasks
			acc := partials[task]
			for i := rowLo; i < rowHi; i++ {
				base := i * cols
				for j := 0; j < cols; j++ {
					acc[j] += x[base+j]
				}
			}
		}
		return nil
	}, tasks, 1)
	if err != nil {
		return err
	}

	for _, acc := range partials {
		for j, v := range acc {
			out[j] += v
		}
	}
	return nil
}

// MatmulRows computes C[i,j] = sum_k A[i,k]*B[k,j] honoring explicit strides
// for both operands, so a transposed view multiplies correctly. Parallelized
// over output rows via ParallelRange. When a native accelerated kernel
// library has been loaded via EnableNativeKernels and both operands are
// contiguous row-major (the common case), it is used instead; any panic
// from the native call is recovered and the call falls back to the pure-Go
// path below. That pure-Go path itself builds a contiguous, row-major
// transpose of B once up front so every row/column inner product becomes a
// contiguous-against-contiguous call to DotChunk, which is what actually
// carries the cpuid-gated unrolled loop from accel.go into this hot path.
func MatmulRows(pool *concurrency.WorkerPool, a []float32, aStr0, aStr1 int, b []float32, bStr0, bStr1 int, c []float32, cStr0, cStr1 int, m, k, n int) error {
	if NativeKernelsAvailable() && aStr0 == k && aStr1 == 1 && bStr0 == n && bStr1 == 1 && cStr0 == n && cStr1 == 1 {
		if tryNativeMatmul(a, b, c, m, k, n) {
			return nil
		}
	}

	bt := make([]float32, n*k)
	for kk := 0; kk < k; kk++ {
		for j := 0; j < n; j++ {
			bt[j*k+kk] = b[kk*bStr0+j*bStr1]
		}
	}

	return concurrency.ParallelRange(pool, 0, m, func(lo, hi int) error {
		aRow := make([]float32, k)
		for i := lo; i < hi; i++ {
			for kk := 0; kk < k; kk++ {
				aRow[kk] = a[i*aStr0+kk*aStr1]
			}
			for j := 0; j < n; j++ {
				c[i*cStr0+j*cStr1] = DotChunk(aRow, bt[j*k:j*k+k], k)
			}
		}
		return nil
	}, -1, 8192)
}

// Logistic is the numerically stable sigmoid: 1/(1+exp(-a)) for a>=0,
// exp(a)/(1+exp(a)) for a<0, avoiding overflow of exp for large |a|.
func Logistic(a float32) float32 {
	if a >= 0 {
		return 1 / (1 + float32(math.Exp(float64(-a))))
	}
	e := float32(math.Exp(float64(a)))
	return e / (1 + e)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
