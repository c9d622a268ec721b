package facematch

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultComponents is the number of coordinates per landmark point (x, y).
const DefaultComponents = 2

// Normalizer maps a raw landmark vector to a position and scale invariant form.
//
// The points are translated so their centroid is the origin and scaled so their
// mean distance from the origin is 1. Orientation is not corrected: a tilted
// head produces a different normalized vector than an upright one.
type Normalizer struct {
	// Components is the number of coordinates per point. Zero means DefaultComponents.
	Components int
}

func (n Normalizer) components() int {
	if n.Components <= 0 {
		return DefaultComponents
	}
	return n.Components
}

// Normalize returns the normalized copy of v. The input is not modified.
// Normalizing an already normalized vector returns it unchanged within
// floating point tolerance.
func (n Normalizer) Normalize(v []float64) ([]float64, error) {
	comps := n.components()
	if pointCount(v, comps) == 0 {
		return nil, fmt.Errorf("%w: %d values is not a multiple of %d components", ErrDimensionMismatch, len(v), comps)
	}
	if !allFinite(v) {
		return nil, fmt.Errorf("%w: non-finite value", ErrDegenerateInput)
	}

	center := Centroid(v, comps)
	radius := MeanRadius(v, comps, center)
	if radius == 0 {
		return nil, fmt.Errorf("%w: all landmark points coincide", ErrDegenerateInput)
	}

	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = (x - center[i%comps]) / radius
	}
	return out, nil
}

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// CanonicalCourseCode folds a course code for lookup: diacritics removed,
// upper case, dashes and underscores as spaces, runs of whitespace collapsed
// (e.g., " csc-401 " -> "CSC 401").
func CanonicalCourseCode(code string) string {
	code = RemoveDiacritics(code)
	code = strings.ToUpper(code)
	code = strings.NewReplacer("-", " ", "_", " ").Replace(code)
	return strings.Join(strings.Fields(code), " ")
}
