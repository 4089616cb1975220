package layer

import (
	"math/rand/v2"

	"github.com/tensorfabric/fabric/pkg/concurrency"
	"github.com/tensorfabric/fabric/pkg/kernels"
	"github.com/tensorfabric/fabric/pkg/tensor"
)

// initWeightRange bounds the uniform distribution used to seed Affine
// weights: [-0.05, 0.05].
const initWeightRange = 0.05

// Affine is a fully-connected layer: Y = X*W (+ b broadcast over rows).
// Only Affine owns learnable parameters among the closed layer set.
type Affine struct {
	pool  *concurrency.WorkerPool
	W     *tensor.Tensor
	B     *tensor.Tensor
	input *tensor.Tensor
}

// NewAffine builds an Affine(in -> out) layer. Weights are drawn uniformly
// from [-0.05, 0.05] using the given deterministic seed; biases start at
// zero.
func NewAffine(in, out int, seed uint64) (*Affine, error) {
	w, err := tensor.New(in, out)
	if err != nil {
		return nil, err
	}
	b, err := tensor.New(out)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	wd := w.Data()
	for i := range wd {
		wd[i] = float32((rng.Float64()*2-1)*initWeightRange)
	}
	// b is already zero-initialized by tensor.New.

	return &Affine{W: w, B: b}, nil
}

func (a *Affine) SetPool(pool *concurrency.WorkerPool) { a.pool = pool }

func (a *Affine) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	a.input = x
	y, err := tensor.Dot(a.pool, x, a.W)
	if err != nil {
		return nil, err
	}
	if y.Rank() == 2 && a.B.Rank() == 1 {
		rows, cols := y.Shape()[0], y.Shape()[1]
		if err := kernels.AddBiasBroadcast(a.pool, y.Data(), rows, cols, a.B.Data()); err != nil {
			return nil, err
		}
		return y, nil
	}
	return y.Add(a.B)
}

func (a *Affine) Backward(dy *tensor.Tensor, lr float32) (*tensor.Tensor, error) {
	wt, err := a.W.Transpose()
	if err != nil {
		return nil, err
	}
	dx, err := tensor.Dot(a.pool, dy, wt)
	if err != nil {
		return nil, err
	}

	xt, err := a.input.Transpose()
	if err != nil {
		return nil, err
	}
	dw, err := tensor.Dot(a.pool, xt, dy)
	if err != nil {
		return nil, err
	}

	var db *tensor.Tensor
	if dy.Rank() == 2 {
		rows, cols := dy.Shape()[0], dy.Shape()[1]
		db, err = tensor.New(cols)
		if err != nil {
			return nil, err
		}
		if err := kernels.ReduceSumRows(a.pool, dy.Data(), rows, cols, db.Data()); err != nil {
			return nil, err
		}
	} else {
		db = dy.Clone()
	}

	if err := applyUpdate(a.W, dw, lr); err != nil {
		return nil, err
	}
	if err := applyUpdate(a.B, db, lr); err != nil {
		return nil, err
	}

	return dx, nil
}

// applyUpdate performs W <- W - lr*dW in place.
func applyUpdate(param, grad *tensor.Tensor, lr float32) error {
	pd, gd := param.Data(), grad.Data()
	for i := range pd {
		pd[i] -= lr * gd[i]
	}
	return nil
}
