package tensor

import "errors"

var (
	// ErrCoordOutOfRange is returned when an indexed access falls outside a dimension's shape.
	ErrCoordOutOfRange = errors.New("coordinate out of range")

	// ErrShapeMismatch is returned by element-wise ops when operand shapes differ.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrDimensionMismatch is returned when a contraction dimension doesn't line up (e.g. dot product).
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrRankUnsupported is returned by operations defined only for specific ranks.
	ErrRankUnsupported = errors.New("dot product not implemented for these dimensions")

	// ErrInvalidShape is returned when a requested shape has a non-positive dimension or exceeds MaxRank.
	ErrInvalidShape = errors.New("invalid tensor shape")
)
