package layer

import (
	"github.com/tensorfabric/fabric/pkg/concurrency"
	"github.com/tensorfabric/fabric/pkg/tensor"
)

// Sequential holds an ordered, exclusively owned slice of layers. Forward
// threads the input through layers in insertion order; Backward iterates in
// reverse, passing along the gradient each layer produces.
type Sequential struct {
	pool   *concurrency.WorkerPool
	layers []Layer
}

// NewSequential builds an empty Sequential bound to pool (may be nil for
// serial execution).
func NewSequential(pool *concurrency.WorkerPool) *Sequential {
	return &Sequential{pool: pool}
}

// Add appends layer, propagating the sequence's pool onto it.
func (s *Sequential) Add(l Layer) {
	l.SetPool(s.pool)
	s.layers = append(s.layers, l)
}

// SetPool propagates a new pool to the sequence and every layer it holds.
func (s *Sequential) SetPool(pool *concurrency.WorkerPool) {
	s.pool = pool
	for _, l := range s.layers {
		l.SetPool(pool)
	}
}

// Len returns the number of layers.
func (s *Sequential) Len() int { return len(s.layers) }

// Forward threads x through every layer in order. An empty sequence returns
// x unchanged.
func (s *Sequential) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	cur := x
	for _, l := range s.layers {
		var err error
		cur, err = l.Forward(cur)
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// Backward propagates grad through every layer in reverse order, applying
// parameter updates at rate lr. An empty sequence is a no-op that returns
// grad unchanged.
func (s *Sequential) Backward(grad *tensor.Tensor, lr float32) (*tensor.Tensor, error) {
	cur := grad
	for i := len(s.layers) - 1; i >= 0; i-- {
		var err error
		cur, err = s.layers[i].Backward(cur, lr)
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}
