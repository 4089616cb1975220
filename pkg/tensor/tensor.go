// Package tensor implements the N-dimensional strided float32 buffer that
// underlies the parallel runtime: the layers operate on values of this
// type, and its Dot drives the kernels package. Ownership is exclusive — a Tensor owns its
// backing storage; Clone duplicates it, plain Go assignment of the struct
// aliases it (the same footgun as a raw slice, documented rather than
// hidden behind a copy-on-write scheme the source never had either).
package tensor

import (
	"fmt"

	"github.com/tensorfabric/fabric/pkg/concurrency"
	"github.com/tensorfabric/fabric/pkg/kernels"
)

// MaxRank is the largest supported tensor rank.
const MaxRank = 8

// Tensor is a rank-N float32 array with row-major strides.
type Tensor struct {
	shape   []int
	strides []int
	data    []float32
}

// New allocates a zero-initialized tensor of the given shape. Every
// dimension must be >= 1 and rank must be in [1, MaxRank].
func New(shape ...int) (*Tensor, error) {
	if len(shape) < 1 || len(shape) > MaxRank {
		return nil, fmt.Errorf("%w: rank %d out of [1,%d]", ErrInvalidShape, len(shape), MaxRank)
	}
	n := 1
	for _, s := range shape {
		if s < 1 {
			return nil, fmt.Errorf("%w: dimension %d", ErrInvalidShape, s)
		}
		n *= s
	}
	return &Tensor{
		shape:   append([]int(nil), shape...),
		strides: rowMajorStrides(shape),
		data:    make([]float32, n),
	}, nil
}

// FromData builds a row-major tensor of the given shape from a contiguous
// buffer. The buffer's length must equal product(shape); buf is copied, so
// the tensor does not alias it.
func FromData(buf []float32, shape ...int) (*Tensor, error) {
	t, err := New(shape...)
	if err != nil {
		return nil, err
	}
	if len(buf) != len(t.data) {
		return nil, fmt.Errorf("%w: buffer length %d != %d", ErrInvalidShape, len(buf), len(t.data))
	}
	copy(t.data, buf)
	return t, nil
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.shape) }

// Shape returns a copy of the tensor's shape.
func (t *Tensor) Shape() []int { return append([]int(nil), t.shape...) }

// Strides returns a copy of the tensor's strides (in elements).
func (t *Tensor) Strides() []int { return append([]int(nil), t.strides...) }

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int { return t.shape[i] }

// Length returns product(shape), the number of elements.
func (t *Tensor) Length() int { return len(t.data) }

// Data exposes the backing buffer directly for kernel entrypoints. Callers
// that want an isolated copy must use Clone first.
func (t *Tensor) Data() []float32 { return t.data }

// Clone duplicates storage into a new, independently owned tensor.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.data))
	copy(data, t.data)
	return &Tensor{
		shape:   append([]int(nil), t.shape...),
		strides: append([]int(nil), t.strides...),
		data:    data,
	}
}

// linearIndex computes sum(coord[i]*strides[i]) with a range check.
func (t *Tensor) linearIndex(coord []int) (int, error) {
	if len(coord) != len(t.shape) {
		return 0, fmt.Errorf("%w: coordinate rank %d != tensor rank %d", ErrCoordOutOfRange, len(coord), len(t.shape))
	}
	idx := 0
	for i, c := range coord {
		if c < 0 || c >= t.shape[i] {
			return 0, fmt.Errorf("%w: axis %d coordinate %d outside [0,%d)", ErrCoordOutOfRange, i, c, t.shape[i])
		}
		idx += c * t.strides[i]
	}
	return idx, nil
}

// At reads the element at coord.
func (t *Tensor) At(coord ...int) (float32, error) {
	idx, err := t.linearIndex(coord)
	if err != nil {
		return 0, err
	}
	return t.data[idx], nil
}

// Set writes the element at coord.
func (t *Tensor) Set(v float32, coord ...int) error {
	idx, err := t.linearIndex(coord)
	if err != nil {
		return err
	}
	t.data[idx] = v
	return nil
}

func (t *Tensor) sameShape(o *Tensor) bool {
	if len(t.shape) != len(o.shape) {
		return false
	}
	for i := range t.shape {
		if t.shape[i] != o.shape[i] {
			return false
		}
	}
	return true
}

// Add returns an element-wise sum; both tensors must share a shape.
func (t *Tensor) Add(o *Tensor) (*Tensor, error) {
	return elementwise(t, o, func(a, b float32) float32 { return a + b })
}

// Sub returns an element-wise difference; both tensors must share a shape.
func (t *Tensor) Sub(o *Tensor) (*Tensor, error) {
	return elementwise(t, o, func(a, b float32) float32 { return a - b })
}

// Mul returns an element-wise product; both tensors must share a shape.
func (t *Tensor) Mul(o *Tensor) (*Tensor, error) {
	return elementwise(t, o, func(a, b float32) float32 { return a * b })
}

func elementwise(a, b *Tensor, f func(float32, float32) float32) (*Tensor, error) {
	if !a.sameShape(b) {
		return nil, fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, a.shape, b.shape)
	}
	out := a.Clone()
	for i := range out.data {
		out.data[i] = f(a.data[i], b.data[i])
	}
	return out, nil
}

// Transpose returns a new rank-2 tensor of shape [cols, rows] with row-major
// strides, copying data into the transposed layout (not a zero-copy view).
func (t *Tensor) Transpose() (*Tensor, error) {
	if t.Rank() != 2 {
		return nil, fmt.Errorf("%w: transpose requires rank 2, got %d", ErrRankUnsupported, t.Rank())
	}
	rows, cols := t.shape[0], t.shape[1]
	out, err := New(cols, rows)
	if err != nil {
		return nil, err
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v, _ := t.At(i, j)
			_ = out.Set(v, j, i)
		}
	}
	return out, nil
}

// Dot dispatches to the rank-1 inner product or the rank-2 matmul depending
// on operand ranks, parallelizing through pool when non-nil. A nil pool
// runs the computation serially on the caller.
func Dot(pool *concurrency.WorkerPool, a, b *Tensor) (*Tensor, error) {
	switch {
	case a.Rank() == 1 && b.Rank() == 1:
		return dot1D(pool, a, b)
	case a.Rank() == 2 && b.Rank() == 2:
		return dot2D(pool, a, b)
	default:
		return nil, fmt.Errorf("%w: ranks %d and %d", ErrRankUnsupported, a.Rank(), b.Rank())
	}
}

func dot1D(pool *concurrency.WorkerPool, a, b *Tensor) (*Tensor, error) {
	if a.Length() != b.Length() {
		return nil, fmt.Errorf("%w: lengths %d vs %d", ErrDimensionMismatch, a.Length(), b.Length())
	}
	n := a.Length()
	tCount := maxInt(1, pool.Size()*4)
	partials := make([]float32, tCount)

	err := concurrency.ParallelRange(pool, 0, tCount, func(lo, hi int) error {
		for task := lo; task < hi; task++ {
			begin := int(int64(n) * int64(task) / int64(tCount))
			end := int(int64(n) * int64(task+1) / int64(tCount))
			partials[task] = kernels.DotChunk(a.data[begin:end], b.data[begin:end], end-begin)
		}
		return nil
	}, tCount, 1)
	if err != nil {
		return nil, err
	}

	var total float32
	for _, p := range partials {
		total += p
	}
	out, _ := New(1)
	out.data[0] = total
	return out, nil
}

func dot2D(pool *concurrency.WorkerPool, a, b *Tensor) (*Tensor, error) {
	if a.shape[1] != b.shape[0] {
		return nil, fmt.Errorf("%w: A.shape[1]=%d != B.shape[0]=%d", ErrDimensionMismatch, a.shape[1], b.shape[0])
	}
	m, k, n := a.shape[0], a.shape[1], b.shape[1]
	out, err := New(m, n)
	if err != nil {
		return nil, err
	}

	if err := kernels.MatmulRows(pool,
		a.data, a.strides[0], a.strides[1],
		b.data, b.strides[0], b.strides[1],
		out.data, out.strides[0], out.strides[1],
		m, k, n); err != nil {
		return nil, err
	}
	return out, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
