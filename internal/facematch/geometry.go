package facematch

import "math"

// pointCount returns the number of landmark points in a flat vector whose
// points have the given number of components, or 0 if the length is not an
// exact multiple.
func pointCount(v []float64, components int) int {
	if components <= 0 || len(v) == 0 || len(v)%components != 0 {
		return 0
	}
	return len(v) / components
}

// Centroid returns the per-component mean of the landmark points in v.
// v is read as consecutive points of the given number of components,
// e.g. [x1, y1, x2, y2, ...] for components == 2.
func Centroid(v []float64, components int) []float64 {
	n := pointCount(v, components)
	if n == 0 {
		return nil
	}

	c := make([]float64, components)
	for i, x := range v {
		c[i%components] += x
	}
	for k := range c {
		c[k] /= float64(n)
	}
	return c
}

// MeanRadius returns the mean Euclidean distance of the landmark points from
// the given center.
func MeanRadius(v []float64, components int, center []float64) float64 {
	n := pointCount(v, components)
	if n == 0 || len(center) != components {
		return 0
	}

	var total float64
	for p := range n {
		var sq float64
		for k := range components {
			d := v[p*components+k] - center[k]
			sq += d * d
		}
		total += math.Sqrt(sq)
	}
	return total / float64(n)
}

// magnitude returns the Euclidean norm of v.
func magnitude(v []float64) float64 {
	var sq float64
	for _, x := range v {
		sq += x * x
	}
	return math.Sqrt(sq)
}

// allFinite reports whether v contains no NaN or infinite values.
func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
