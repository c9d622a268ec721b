package database

// HNSW index parameters for landmark templates
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 64

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// than the shortlist size, since the graph search is approximate.
	HNSWSearchMultiplier = 2
)

// DefaultListLimit caps session history listings.
const DefaultListLimit = 50
