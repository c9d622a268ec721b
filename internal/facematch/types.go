// Package facematch provides landmark normalization, similarity scoring and
// best-match identity resolution for attendance check-in.
package facematch

// Template is an enrolled, normalized landmark vector owned by one person.
type Template struct {
	ID      int64
	OwnerID string
	Vector  []float64
}

// Match is the outcome of resolving a sample against the enrolled templates.
// Matched is false when no template reached the threshold; that is a normal
// result, not an error.
type Match struct {
	Matched    bool    `json:"matched"`
	TemplateID int64   `json:"template_id,omitempty"`
	OwnerID    string  `json:"owner_id,omitempty"`
	Score      float64 `json:"score"`
}

// NoMatch is the zero match.
var NoMatch = Match{}

// Distance returns the cosine distance of the match score.
func (m Match) Distance() float64 {
	return CosineDistance(m.Score)
}
