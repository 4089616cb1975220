// Package layer implements the closed set of neural-network layer types
// (affine, rectified linear, leaky rectified linear, logistic) and their
// ordered composition into a Sequential model, using a small closed Go
// interface instead of open virtual dispatch.
package layer

import (
	"github.com/tensorfabric/fabric/pkg/concurrency"
	"github.com/tensorfabric/fabric/pkg/tensor"
)

// Layer is implemented by exactly four closed types: Affine, Rectified,
// LeakyRectified, Logistic. After any Forward(x), the layer's internal
// cache equals the tensor needed by its Backward formula.
type Layer interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	Backward(grad *tensor.Tensor, lr float32) (*tensor.Tensor, error)
	SetPool(pool *concurrency.WorkerPool)
}
