// Package memory provides in-process implementations of the database
// interfaces. They back the server when no database is configured and serve
// as fixtures in tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/face-sync/internal/database"
)

// TemplateStore keeps face templates in a map keyed by owner.
type TemplateStore struct {
	mu        sync.RWMutex
	templates map[string]*database.StoredTemplate
	nextID    int64
	now       func() time.Time
}

// NewTemplateStore creates an empty template store.
func NewTemplateStore() *TemplateStore {
	return &TemplateStore{
		templates: make(map[string]*database.StoredTemplate),
		now:       time.Now,
	}
}

func copyTemplate(t *database.StoredTemplate) database.StoredTemplate {
	c := *t
	c.Vector = slices.Clone(t.Vector)
	return c
}

// GetAllTemplates returns every template ordered by ascending ID.
func (s *TemplateStore) GetAllTemplates(ctx context.Context) ([]database.StoredTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]database.StoredTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, copyTemplate(t))
	}
	slices.SortFunc(out, func(a, b database.StoredTemplate) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// GetTemplate returns the template of an owner.
func (s *TemplateStore) GetTemplate(ctx context.Context, ownerID string) (*database.StoredTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[ownerID]
	if !ok {
		return nil, fmt.Errorf("%w: template for owner %s", database.ErrNotFound, ownerID)
	}
	c := copyTemplate(t)
	return &c, nil
}

// Count returns the number of templates.
func (s *TemplateStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.templates), nil
}

// PutTemplate stores or replaces the template of an owner.
func (s *TemplateStore) PutTemplate(ctx context.Context, ownerID string, vector []float64) (*database.StoredTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	t, ok := s.templates[ownerID]
	if !ok {
		s.nextID++
		t = &database.StoredTemplate{ID: s.nextID, OwnerID: ownerID, CreatedAt: now}
		s.templates[ownerID] = t
	}
	t.Vector = slices.Clone(vector)
	t.Dim = len(vector)
	t.UpdatedAt = now

	c := copyTemplate(t)
	return &c, nil
}

// DeleteTemplate removes the template of an owner.
func (s *TemplateStore) DeleteTemplate(ctx context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[ownerID]; !ok {
		return fmt.Errorf("%w: template for owner %s", database.ErrNotFound, ownerID)
	}
	delete(s.templates, ownerID)
	return nil
}
