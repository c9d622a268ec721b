package attendance

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/face-sync/internal/database"
	"github.com/kozaktomas/face-sync/internal/facematch"
	"github.com/sirupsen/logrus"
)

// Strategy selects how candidate templates are chosen for scoring.
type Strategy string

const (
	// StrategyExact scores every enrolled template.
	StrategyExact Strategy = "exact"
	// StrategyHNSW scores only a shortlist returned by the HNSW graph.
	StrategyHNSW Strategy = "hnsw"
)

// ParseStrategy validates a strategy name. Empty means StrategyExact.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyExact:
		return StrategyExact, nil
	case StrategyHNSW:
		return StrategyHNSW, nil
	}
	return "", fmt.Errorf("unknown match strategy %q (want %q or %q)", s, StrategyExact, StrategyHNSW)
}

// snapshot is an immutable view of the enrolled templates.
type snapshot struct {
	templates []facematch.Template // ascending ID
	byID      map[int64]int
	index     *database.HNSWIndex // nil unless the HNSW strategy is active and the graph is current

	// meta describes the store contents the snapshot was loaded from. A stale
	// snapshot carries local edits and is reloaded on the next Refresh.
	meta  database.HNSWIndexMetadata
	stale bool
}

func (s *snapshot) lookup(ids []int64) []facematch.Template {
	out := make([]facematch.Template, 0, len(ids))
	for _, id := range ids {
		if i, ok := s.byID[id]; ok {
			out = append(out, s.templates[i])
		}
	}
	slices.SortFunc(out, func(a, b facematch.Template) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Catalog holds the enrolled templates in memory for matching. Readers get a
// consistent snapshot without locking; writers replace the snapshot as a
// whole, so a template is either fully visible or not at all.
//
// Other processes may write to the same store. Refresh compares the store
// with the loaded snapshot and reloads it when they differ.
type Catalog struct {
	store     database.TemplateReader
	strategy  Strategy
	indexPath string
	logger    logrus.FieldLogger

	current atomic.Pointer[snapshot]
	writeMu sync.Mutex
}

// NewCatalog creates an empty catalog. Call Reload to populate it.
func NewCatalog(store database.TemplateReader, strategy Strategy, indexPath string, logger logrus.FieldLogger) *Catalog {
	c := &Catalog{
		store:     store,
		strategy:  strategy,
		indexPath: indexPath,
		logger:    logger,
	}
	c.current.Store(&snapshot{byID: map[int64]int{}, stale: true})
	return c
}

// Reload replaces the snapshot with the full template set from the store.
func (c *Catalog) Reload(ctx context.Context) error {
	_, err := c.load(ctx, true)
	return err
}

// Refresh reloads the snapshot when the store no longer matches it, either
// because another process changed the templates or because local edits left
// the HNSW graph out of date. It reports whether a reload happened.
func (c *Catalog) Refresh(ctx context.Context) (bool, error) {
	return c.load(ctx, false)
}

// load reads the store under the write lock so that a concurrent Upsert or
// Remove is never overwritten by an older read.
func (c *Catalog) load(ctx context.Context, force bool) (bool, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	stored, err := c.store.GetAllTemplates(ctx)
	if err != nil {
		return false, fmt.Errorf("loading templates: %w", err)
	}
	meta := database.MetadataFor(stored)
	if old := c.current.Load(); !force && !old.stale && old.meta.Matches(meta) {
		return false, nil
	}

	templates := make([]facematch.Template, len(stored))
	for i := range stored {
		templates[i] = stored[i].Template()
	}

	snap, err := c.build(templates, meta)
	if err != nil {
		return false, err
	}
	c.current.Store(snap)
	c.logger.WithField("templates", len(templates)).Info("template catalog loaded")
	return true, nil
}

// Watch calls Refresh every interval until ctx is done. Failed refreshes keep
// the current snapshot.
func (c *Catalog) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
				c.logger.WithError(err).Warn("keeping previous template catalog")
			}
		}
	}
}

// Upsert adds or replaces one template. The HNSW graph is not rebuilt here:
// matching scans every template until the next Refresh.
func (c *Catalog) Upsert(t facematch.Template) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	old := c.current.Load()
	templates := slices.Clone(old.templates)
	if i, ok := old.byID[t.ID]; ok {
		templates[i] = t
	} else {
		// Owners map to one template, so a re-enrolled owner may only change vector.
		templates = slices.DeleteFunc(templates, func(x facematch.Template) bool { return x.OwnerID == t.OwnerID })
		templates = append(templates, t)
	}

	c.current.Store(c.edited(templates))
}

// Remove drops the template of an owner, if present.
func (c *Catalog) Remove(ownerID string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	old := c.current.Load()
	templates := slices.DeleteFunc(slices.Clone(old.templates), func(x facematch.Template) bool {
		return x.OwnerID == ownerID
	})
	if len(templates) == len(old.templates) {
		return
	}

	c.current.Store(c.edited(templates))
}

// edited builds a stale snapshot without an HNSW graph.
func (c *Catalog) edited(templates []facematch.Template) *snapshot {
	slices.SortFunc(templates, func(a, b facematch.Template) int { return cmp.Compare(a.ID, b.ID) })
	snap := &snapshot{
		templates: templates,
		byID:      make(map[int64]int, len(templates)),
		stale:     true,
	}
	for i := range templates {
		snap.byID[templates[i].ID] = i
	}
	return snap
}

// build creates a snapshot of the store contents described by meta. When an
// index path is configured, a persisted graph matching meta is reused instead
// of rebuilding.
func (c *Catalog) build(templates []facematch.Template, meta database.HNSWIndexMetadata) (*snapshot, error) {
	snap := c.edited(templates)
	snap.stale = false
	snap.meta = meta

	if c.strategy != StrategyHNSW {
		return snap, nil
	}

	idx := database.NewHNSWIndex()
	if c.indexPath != "" {
		loaded, err := idx.LoadIfFresh(c.indexPath, meta)
		if err != nil {
			c.logger.WithError(err).Warn("ignoring persisted template index")
		}
		if loaded {
			c.logger.WithField("path", c.indexPath).Info("template index loaded from disk")
			snap.index = idx
			return snap, nil
		}
	}

	if err := idx.BuildFromTemplates(templates); err != nil {
		return nil, fmt.Errorf("building template index: %w", err)
	}
	snap.index = idx
	return snap, nil
}

// Templates returns the current templates in ascending ID order. The slice
// must not be modified.
func (c *Catalog) Templates() []facematch.Template {
	return c.current.Load().templates
}

// Len returns the number of templates in the current snapshot.
func (c *Catalog) Len() int {
	return len(c.current.Load().templates)
}

// Candidates returns the templates to score for a normalized probe: all of
// them for the exact strategy, or an HNSW shortlist of about k templates.
func (c *Catalog) Candidates(probe []float64, k int) []facematch.Template {
	snap := c.current.Load()
	if snap.index == nil || snap.index.IsEmpty() || k <= 0 || k >= len(snap.templates) {
		return snap.templates
	}

	ids, err := snap.index.Search(probe, k*database.HNSWSearchMultiplier)
	if err != nil {
		c.logger.WithError(err).Warn("template index search failed, scanning all templates")
		return snap.templates
	}
	return snap.lookup(ids)
}

// SaveIndex persists the HNSW graph, refreshing the snapshot first so graphs
// dropped by local edits are rebuilt once before saving.
func (c *Catalog) SaveIndex(ctx context.Context) error {
	if c.indexPath == "" || c.strategy != StrategyHNSW {
		return nil
	}
	if _, err := c.Refresh(ctx); err != nil {
		return err
	}
	snap := c.current.Load()
	if snap.index == nil {
		return nil
	}

	stored, err := c.store.GetAllTemplates(ctx)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}
	meta := database.MetadataFor(stored)
	if !snap.meta.Matches(meta) {
		return fmt.Errorf("template catalog out of sync with store (%d vs %d templates), not saving index", len(snap.templates), len(stored))
	}
	if err := snap.index.SaveWithMetadata(c.indexPath, meta); err != nil {
		return fmt.Errorf("saving template index: %w", err)
	}
	return nil
}
