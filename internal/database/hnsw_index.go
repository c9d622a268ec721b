package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/face-sync/internal/facematch"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	TemplateCount int64     `json:"template_count"`
	MaxTemplateID int64     `json:"max_template_id"`
	LastUpdated   time.Time `json:"last_updated"`
	BuildTime     time.Time `json:"build_time"`
	Version       int       `json:"version"` // For future compatibility
}

const hnswMetadataVersion = 1

// MetadataFor describes a template set for staleness checks.
func MetadataFor(templates []StoredTemplate) HNSWIndexMetadata {
	meta := HNSWIndexMetadata{TemplateCount: int64(len(templates))}
	for i := range templates {
		meta.MaxTemplateID = max(meta.MaxTemplateID, templates[i].ID)
		if templates[i].UpdatedAt.After(meta.LastUpdated) {
			meta.LastUpdated = templates[i].UpdatedAt
		}
	}
	return meta
}

// Matches reports whether two metadata records describe the same template set.
func (m HNSWIndexMetadata) Matches(other HNSWIndexMetadata) bool {
	return m.TemplateCount == other.TemplateCount &&
		m.MaxTemplateID == other.MaxTemplateID &&
		m.LastUpdated.Equal(other.LastUpdated)
}

// HNSWIndex wraps the HNSW graph for template shortlisting.
type HNSWIndex struct {
	graph      *hnsw.Graph[int64]
	savedGraph *hnsw.SavedGraph[int64] // For persistence
	mu         sync.RWMutex
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// BuildFromTemplates builds the index from a slice of templates.
func (h *HNSWIndex) BuildFromTemplates(templates []facematch.Template) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.savedGraph = nil
	if len(templates) == 0 {
		h.graph = nil
		return nil
	}

	g := newGraph()
	dim := len(templates[0].Vector)
	for i := range templates {
		t := &templates[i]
		if len(t.Vector) != dim {
			return fmt.Errorf("template %d has %d values, index expects %d", t.ID, len(t.Vector), dim)
		}
		g.Add(hnsw.MakeNode(t.ID, toFloat32(t.Vector)))
	}

	h.graph = g
	return nil
}

// Search returns the IDs of the k templates nearest to the query, in
// ascending ID order.
func (h *HNSWIndex) Search(query []float64, k int) ([]int64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	g := h.activeGraph()
	if g == nil {
		return nil, errors.New("index not initialized")
	}
	if g.Len() == 0 || k <= 0 {
		return nil, nil
	}

	neighbors := g.Search(toFloat32(query), k)
	ids := make([]int64, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.Key
	}
	slices.Sort(ids)
	return ids, nil
}

func (h *HNSWIndex) activeGraph() *hnsw.Graph[int64] {
	if h.savedGraph != nil {
		return h.savedGraph.Graph
	}
	return h.graph
}

// Count returns the number of indexed templates.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if g := h.activeGraph(); g != nil {
		return g.Len()
	}
	return 0
}

// IsEmpty returns true if the index has no graph data loaded.
func (h *HNSWIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil && h.savedGraph == nil
}

// SaveWithMetadata persists the index to disk along with metadata for staleness detection.
func (h *HNSWIndex) SaveWithMetadata(path string, metadata HNSWIndexMetadata) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	g := h.activeGraph()
	if g == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if err := g.Export(f); err != nil {
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}

	metadata.Version = hnswMetadataVersion
	metadata.BuildTime = time.Now()
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}

	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return metadata, nil
}

// LoadIfFresh loads a persisted index if its metadata matches the expected
// template set. It reports whether the index was loaded.
func (h *HNSWIndex) LoadIfFresh(path string, expected HNSWIndexMetadata) (bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}

	metadata, err := LoadHNSWMetadata(path)
	if err != nil {
		return false, err
	}
	if metadata.Version != hnswMetadataVersion || !metadata.Matches(expected) {
		return false, nil
	}

	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return false, fmt.Errorf("failed to load HNSW index: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = nil
	h.savedGraph = saved
	return true, nil
}
