package facematch

import (
	"errors"
	"math"
	"testing"
)

func axisTemplates() []Template {
	return []Template{
		{ID: 1, OwnerID: "alice", Vector: []float64{1, 0}},
		{ID: 2, OwnerID: "bob", Vector: []float64{0, 1}},
	}
}

func testResolver(t *testing.T, dim, components int, threshold float64) *Resolver {
	t.Helper()
	r, err := NewResolver(dim, components, threshold)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func TestResolver_Best_ClosestTemplate(t *testing.T) {
	r := testResolver(t, 2, 1, DefaultThreshold)

	m, err := r.Best([]float64{0.99, 0.14}, axisTemplates())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.Matched {
		t.Fatal("expected a match")
	}
	if m.TemplateID != 1 || m.OwnerID != "alice" {
		t.Errorf("matched template %d (%s), want 1 (alice)", m.TemplateID, m.OwnerID)
	}
	if math.Abs(m.Score-0.99) > 0.01 {
		t.Errorf("score = %v, want ~0.99", m.Score)
	}
}

func TestResolver_Best_BelowThreshold(t *testing.T) {
	r := testResolver(t, 2, 1, DefaultThreshold)

	m, err := r.Best([]float64{0, -1}, axisTemplates())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Matched {
		t.Errorf("expected no match, got %+v", m)
	}
	if m != NoMatch {
		t.Errorf("expected NoMatch value, got %+v", m)
	}
}

func TestResolver_Best_EmptyTemplates(t *testing.T) {
	r := testResolver(t, 2, 1, -1)

	for _, templates := range [][]Template{nil, {}} {
		m, err := r.Best([]float64{1, 0}, templates)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m.Matched {
			t.Errorf("expected NoMatch for empty template set, got %+v", m)
		}
	}
}

func TestResolver_Best_ThresholdInclusive(t *testing.T) {
	r := testResolver(t, 2, 1, 0)

	// Orthogonal vectors score exactly 0.
	m, err := r.Best([]float64{0, 1}, []Template{{ID: 7, OwnerID: "carol", Vector: []float64{1, 0}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.Matched || m.OwnerID != "carol" || m.Score != 0 {
		t.Errorf("expected match for carol at score 0, got %+v", m)
	}
}

func TestResolver_Best_TieGoesToLowestID(t *testing.T) {
	r := testResolver(t, 2, 1, DefaultThreshold)

	// Deliberately unsorted input with identical vectors.
	templates := []Template{
		{ID: 9, OwnerID: "late", Vector: []float64{1, 0}},
		{ID: 3, OwnerID: "early", Vector: []float64{2, 0}},
		{ID: 5, OwnerID: "middle", Vector: []float64{1, 0}},
	}

	for range 10 {
		m, err := r.Best([]float64{1, 0}, templates)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m.TemplateID != 3 || m.OwnerID != "early" {
			t.Fatalf("tie resolved to %d (%s), want 3 (early)", m.TemplateID, m.OwnerID)
		}
	}

	if templates[0].ID != 9 {
		t.Error("input slice must not be reordered")
	}
}

func TestResolver_Best_SkipsMismatchedTemplates(t *testing.T) {
	r := testResolver(t, 2, 1, DefaultThreshold)

	templates := []Template{
		{ID: 1, OwnerID: "broken", Vector: []float64{1, 0, 0}},
		{ID: 2, OwnerID: "bob", Vector: []float64{0, 1}},
	}
	m, err := r.Best([]float64{0.1, 1}, templates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.OwnerID != "bob" {
		t.Errorf("expected bob, got %+v", m)
	}

	_, err = r.Best([]float64{0.1, 1}, templates[:1])
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch when every template is invalid, got %v", err)
	}
}

func TestResolver_Best_ZeroProbe(t *testing.T) {
	r := testResolver(t, 2, 1, DefaultThreshold)

	_, err := r.Best([]float64{0, 0}, axisTemplates())
	if !errors.Is(err, ErrDegenerateInput) {
		t.Errorf("expected ErrDegenerateInput, got %v", err)
	}
}

func TestResolver_Resolve_NormalizesSample(t *testing.T) {
	r := testResolver(t, 6, 2, DefaultThreshold)
	n := Normalizer{Components: 2}

	triangle := []float64{0, 0, 4, 0, 0, 3}
	line := []float64{0, 0, 1, 1, 2, 2.2}

	tri, err := n.Normalize(triangle)
	if err != nil {
		t.Fatalf("normalize triangle: %v", err)
	}
	ln, err := n.Normalize(line)
	if err != nil {
		t.Fatalf("normalize line: %v", err)
	}
	templates := []Template{
		{ID: 1, OwnerID: "line", Vector: ln},
		{ID: 2, OwnerID: "triangle", Vector: tri},
	}

	// Same triangle, twice as large and moved across the frame.
	sample := []float64{100, 50, 108, 50, 100, 56}
	m, err := r.Resolve(sample, templates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.OwnerID != "triangle" {
		t.Fatalf("expected triangle, got %+v", m)
	}
	if math.Abs(m.Score-1) > epsilon {
		t.Errorf("score = %v, want 1", m.Score)
	}
}

func TestResolver_Resolve_Errors(t *testing.T) {
	r := testResolver(t, 6, 2, DefaultThreshold)

	_, err := r.Resolve([]float64{1, 2, 3, 4}, nil)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("short sample: expected ErrDimensionMismatch, got %v", err)
	}

	_, err = r.Resolve([]float64{1, 1, 1, 1, 1, 1}, nil)
	if !errors.Is(err, ErrDegenerateInput) {
		t.Errorf("coincident sample: expected ErrDegenerateInput, got %v", err)
	}
}

func TestNewResolver_Validation(t *testing.T) {
	tests := []struct {
		name       string
		dim        int
		components int
		threshold  float64
		wantErr    bool
	}{
		{"defaults", 136, 2, DefaultThreshold, false},
		{"3d points", 1404, 3, 0.5, false},
		{"zero components", 136, 0, 0.2, true},
		{"ragged dimension", 135, 2, 0.2, true},
		{"threshold too high", 136, 2, 1.5, true},
		{"threshold too low", 136, 2, -2, true},
		{"threshold NaN", 136, 2, math.NaN(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResolver(tt.dim, tt.components, tt.threshold)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewResolver(%d, %d, %v) error = %v, wantErr %v", tt.dim, tt.components, tt.threshold, err, tt.wantErr)
			}
		})
	}
}
