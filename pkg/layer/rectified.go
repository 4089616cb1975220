package layer

import (
	"github.com/tensorfabric/fabric/pkg/concurrency"
	"github.com/tensorfabric/fabric/pkg/kernels"
	"github.com/tensorfabric/fabric/pkg/tensor"
)

// Rectified is the rectified-linear activation: y = max(0, x). It caches
// its input for the backward pass.
type Rectified struct {
	pool  *concurrency.WorkerPool
	input *tensor.Tensor
}

// NewRectified constructs an unattached Rectified layer.
func NewRectified() *Rectified { return &Rectified{} }

func (r *Rectified) SetPool(pool *concurrency.WorkerPool) { r.pool = pool }

func (r *Rectified) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	r.input = x
	out := x.Clone()
	err := kernels.UnaryMap(r.pool, out.Data(), x.Data(), func(v float32) float32 {
		if v > 0 {
			return v
		}
		return 0
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Rectified) Backward(grad *tensor.Tensor, lr float32) (*tensor.Tensor, error) {
	out := grad.Clone()
	err := kernels.BinaryMap(r.pool, out.Data(), r.input.Data(), grad.Data(), func(x, dy float32) float32 {
		if x > 0 {
			return dy
		}
		return 0
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LeakyRectified is the leaky rectified-linear activation with slope alpha
// (default 0.01): y = x>0 ? x : alpha*x.
type LeakyRectified struct {
	pool  *concurrency.WorkerPool
	input *tensor.Tensor
	Alpha float32
}

// DefaultLeakySlope is the slope used when alpha <= 0 is passed to
// NewLeakyRectified.
const DefaultLeakySlope = 0.01

// NewLeakyRectified constructs a LeakyRectified layer with the given slope;
// a non-positive slope falls back to DefaultLeakySlope.
func NewLeakyRectified(alpha float32) *LeakyRectified {
	if alpha <= 0 {
		alpha = DefaultLeakySlope
	}
	return &LeakyRectified{Alpha: alpha}
}

func (l *LeakyRectified) SetPool(pool *concurrency.WorkerPool) { l.pool = pool }

func (l *LeakyRectified) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	l.input = x
	out := x.Clone()
	alpha := l.Alpha
	err := kernels.UnaryMap(l.pool, out.Data(), x.Data(), func(v float32) float32 {
		if v > 0 {
			return v
		}
		return alpha * v
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *LeakyRectified) Backward(grad *tensor.Tensor, lr float32) (*tensor.Tensor, error) {
	out := grad.Clone()
	alpha := l.Alpha
	err := kernels.BinaryMap(l.pool, out.Data(), l.input.Data(), grad.Data(), func(x, dy float32) float32 {
		if x > 0 {
			return dy
		}
		return alpha * dy
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Logistic is the sigmoid activation. It caches its output for the backward
// pass since dx = dy * s * (1-s) only needs s.
type Logistic struct {
	pool   *concurrency.WorkerPool
	output *tensor.Tensor
}

// NewLogistic constructs an unattached Logistic layer.
func NewLogistic() *Logistic { return &Logistic{} }

func (g *Logistic) SetPool(pool *concurrency.WorkerPool) { g.pool = pool }

func (g *Logistic) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out := x.Clone()
	if err := kernels.UnaryMap(g.pool, out.Data(), x.Data(), kernels.Logistic); err != nil {
		return nil, err
	}
	g.output = out
	return out, nil
}

func (g *Logistic) Backward(grad *tensor.Tensor, lr float32) (*tensor.Tensor, error) {
	out := grad.Clone()
	err := kernels.BinaryMap(g.pool, out.Data(), g.output.Data(), grad.Data(), func(s, dy float32) float32 {
		return dy * s * (1 - s)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
