package facematch

import "errors"

var (
	// ErrDegenerateInput is returned for vectors that carry no usable shape:
	// all landmark points coincide, the magnitude is zero, or a value is not finite.
	ErrDegenerateInput = errors.New("degenerate landmark input")

	// ErrDimensionMismatch is returned when two vectors (or a vector and the
	// configured landmark layout) disagree on length.
	ErrDimensionMismatch = errors.New("landmark dimension mismatch")
)
