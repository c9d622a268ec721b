package facematch

import (
	"fmt"
	"math"
)

// Similarity returns the cosine similarity of a and b, clamped to [-1, 1].
// It is symmetric, and Similarity(a, a) is 1 for any non-zero a.
func Similarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("%w: zero magnitude vector", ErrDegenerateInput)
	}

	// One square root of the product keeps the result symmetric in a and b.
	similarity := dot / math.Sqrt(normA*normB)
	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}
	return similarity, nil
}

// CosineDistance converts a similarity in [-1, 1] to a distance in [0, 2].
func CosineDistance(similarity float64) float64 {
	return 1 - similarity
}
