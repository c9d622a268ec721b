package facematch

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// DefaultThreshold is the minimum similarity accepted as a genuine match.
// Chosen empirically for 68-point landmark sets; tune per deployment.
const DefaultThreshold = 0.2

// Resolver picks the enrolled template that best matches a live sample.
type Resolver struct {
	Normalizer Normalizer
	// Threshold is the minimum accepted similarity (inclusive).
	Threshold float64
	// Dim is the expected length of raw samples and templates.
	Dim int
}

// NewResolver creates a resolver for samples of dim values laid out as points
// of the given number of components.
func NewResolver(dim, components int, threshold float64) (*Resolver, error) {
	if components <= 0 {
		return nil, fmt.Errorf("landmark components must be positive, got %d", components)
	}
	if dim <= 0 || dim%components != 0 {
		return nil, fmt.Errorf("landmark dimension %d is not a positive multiple of %d components", dim, components)
	}
	if math.IsNaN(threshold) || threshold < -1 || threshold > 1 {
		return nil, fmt.Errorf("match threshold %v outside [-1, 1]", threshold)
	}
	return &Resolver{
		Normalizer: Normalizer{Components: components},
		Threshold:  threshold,
		Dim:        dim,
	}, nil
}

// Prepare validates a raw sample against the configured dimension and
// normalizes it.
func (r *Resolver) Prepare(sample []float64) ([]float64, error) {
	if r.Dim > 0 && len(sample) != r.Dim {
		return nil, fmt.Errorf("%w: sample has %d values, want %d", ErrDimensionMismatch, len(sample), r.Dim)
	}
	return r.Normalizer.Normalize(sample)
}

// Resolve normalizes the sample and returns the best matching template.
func (r *Resolver) Resolve(sample []float64, templates []Template) (Match, error) {
	probe, err := r.Prepare(sample)
	if err != nil {
		return NoMatch, err
	}
	return r.Best(probe, templates)
}

// Best scans templates in ascending ID order and returns the highest scoring
// one if its score reaches the threshold. A later template replaces the
// current best only when it scores strictly higher, so exact ties go to the
// lower ID.
//
// Templates whose length differs from the probe are skipped. If every
// template was skipped that way, ErrDimensionMismatch is returned.
func (r *Resolver) Best(probe []float64, templates []Template) (Match, error) {
	if magnitude(probe) == 0 {
		return NoMatch, fmt.Errorf("%w: zero magnitude probe", ErrDegenerateInput)
	}
	if len(templates) == 0 {
		return NoMatch, nil
	}

	ordered := templates
	if !slices.IsSortedFunc(ordered, compareTemplates) {
		ordered = slices.Clone(templates)
		slices.SortStableFunc(ordered, compareTemplates)
	}

	best := NoMatch
	bestScore := math.Inf(-1)
	scanned, skipped := 0, 0

	for i := range ordered {
		t := &ordered[i]
		if len(t.Vector) != len(probe) {
			skipped++
			continue
		}
		score, err := Similarity(probe, t.Vector)
		if err != nil {
			skipped++
			continue
		}
		scanned++
		if score > bestScore {
			bestScore = score
			best = Match{Matched: true, TemplateID: t.ID, OwnerID: t.OwnerID, Score: score}
		}
	}

	if scanned == 0 && skipped > 0 {
		return NoMatch, fmt.Errorf("%w: no template of length %d", ErrDimensionMismatch, len(probe))
	}
	if !best.Matched || best.Score < r.Threshold {
		return NoMatch, nil
	}
	return best, nil
}

func compareTemplates(a, b Template) int {
	return cmp.Compare(a.ID, b.ID)
}
