// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/kozaktomas/face-sync/internal/database"
	"github.com/kozaktomas/face-sync/internal/database/memory"
)

// MockTemplateStore is a database.TemplateStore backed by the memory store
// with error injection
type MockTemplateStore struct {
	*memory.TemplateStore

	// Error injection
	GetAllError error
	GetError    error
	PutError    error
	DeleteError error
	CountError  error
}

// NewMockTemplateStore creates a new mock template store
func NewMockTemplateStore() *MockTemplateStore {
	return &MockTemplateStore{TemplateStore: memory.NewTemplateStore()}
}

// GetAllTemplates returns all templates
func (m *MockTemplateStore) GetAllTemplates(ctx context.Context) ([]database.StoredTemplate, error) {
	if m.GetAllError != nil {
		return nil, m.GetAllError
	}
	return m.TemplateStore.GetAllTemplates(ctx)
}

// GetTemplate returns the template of an owner
func (m *MockTemplateStore) GetTemplate(ctx context.Context, ownerID string) (*database.StoredTemplate, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	return m.TemplateStore.GetTemplate(ctx, ownerID)
}

// PutTemplate stores a template
func (m *MockTemplateStore) PutTemplate(ctx context.Context, ownerID string, vector []float64) (*database.StoredTemplate, error) {
	if m.PutError != nil {
		return nil, m.PutError
	}
	return m.TemplateStore.PutTemplate(ctx, ownerID, vector)
}

// DeleteTemplate removes a template
func (m *MockTemplateStore) DeleteTemplate(ctx context.Context, ownerID string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	return m.TemplateStore.DeleteTemplate(ctx, ownerID)
}

// Count returns the number of templates
func (m *MockTemplateStore) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	return m.TemplateStore.Count(ctx)
}

// MockSessionStore is a database.SessionStore backed by the memory store
// with error injection and call counting
type MockSessionStore struct {
	*memory.SessionStore

	mu sync.Mutex

	// Error injection
	CreateError error
	LatestError error
	GetError    error
	UpdateError error
	ListError   error

	// ForcedConflicts makes that many UpdateSession calls fail with
	// ErrVersionConflict before reaching the store. Negative means always.
	ForcedConflicts int
	// ForcedOpenExists does the same for CreateSession with ErrOpenSessionExists.
	ForcedOpenExists int

	// BeforeUpdate, if set, runs at the start of every UpdateSession call.
	BeforeUpdate func(session *database.StoredSession)

	updateCalls int
	createCalls int
}

// NewMockSessionStore creates a new mock session store
func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{SessionStore: memory.NewSessionStore()}
}

// UpdateCalls returns how many times UpdateSession was called
func (m *MockSessionStore) UpdateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateCalls
}

// CreateCalls returns how many times CreateSession was called
func (m *MockSessionStore) CreateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls
}

func take(counter *int) bool {
	switch {
	case *counter < 0:
		return true
	case *counter > 0:
		*counter--
		return true
	}
	return false
}

// CreateSession inserts a session
func (m *MockSessionStore) CreateSession(ctx context.Context, session *database.StoredSession) error {
	m.mu.Lock()
	m.createCalls++
	forced := take(&m.ForcedOpenExists)
	m.mu.Unlock()

	if m.CreateError != nil {
		return m.CreateError
	}
	if forced {
		return fmt.Errorf("%w: course %s", database.ErrOpenSessionExists, session.CourseID)
	}
	return m.SessionStore.CreateSession(ctx, session)
}

// LatestSession returns the most recent session of a course
func (m *MockSessionStore) LatestSession(ctx context.Context, courseID string) (*database.StoredSession, error) {
	if m.LatestError != nil {
		return nil, m.LatestError
	}
	return m.SessionStore.LatestSession(ctx, courseID)
}

// GetSession returns a session by ID
func (m *MockSessionStore) GetSession(ctx context.Context, sessionID string) (*database.StoredSession, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	return m.SessionStore.GetSession(ctx, sessionID)
}

// UpdateSession writes a session with a version check
func (m *MockSessionStore) UpdateSession(ctx context.Context, session *database.StoredSession, expectedVersion int64) error {
	m.mu.Lock()
	m.updateCalls++
	forced := take(&m.ForcedConflicts)
	hook := m.BeforeUpdate
	m.mu.Unlock()

	if hook != nil {
		hook(session)
	}
	if m.UpdateError != nil {
		return m.UpdateError
	}
	if forced {
		return fmt.Errorf("%w: session %s (forced)", database.ErrVersionConflict, session.ID)
	}
	return m.SessionStore.UpdateSession(ctx, session, expectedVersion)
}

// ListSessions returns sessions of a course
func (m *MockSessionStore) ListSessions(ctx context.Context, courseID string, limit int) ([]database.StoredSession, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	return m.SessionStore.ListSessions(ctx, courseID, limit)
}

// MockRosterReader is a database.RosterReader backed by the memory roster
// with error injection
type MockRosterReader struct {
	*memory.Roster

	ExistsError error
	RosterError error
}

// NewMockRosterReader creates a mock roster with the given courses
func NewMockRosterReader(courses map[string][]string) *MockRosterReader {
	return &MockRosterReader{Roster: memory.NewRoster(courses)}
}

// CourseExists reports whether the course is known
func (m *MockRosterReader) CourseExists(ctx context.Context, courseID string) (bool, error) {
	if m.ExistsError != nil {
		return false, m.ExistsError
	}
	return m.Roster.CourseExists(ctx, courseID)
}

// GetRoster returns the students of a course
func (m *MockRosterReader) GetRoster(ctx context.Context, courseID string) ([]string, error) {
	if m.RosterError != nil {
		return nil, m.RosterError
	}
	return m.Roster.GetRoster(ctx, courseID)
}

// NewBackend returns a backend over fresh mock stores
func NewBackend(courses map[string][]string) (*database.Backend, *MockTemplateStore, *MockSessionStore, *MockRosterReader) {
	templates := NewMockTemplateStore()
	sessions := NewMockSessionStore()
	roster := NewMockRosterReader(courses)
	return &database.Backend{Templates: templates, Sessions: sessions, Roster: roster}, templates, sessions, roster
}

// Verify interface compliance
var (
	_ database.TemplateStore = (*MockTemplateStore)(nil)
	_ database.SessionStore  = (*MockSessionStore)(nil)
	_ database.RosterReader  = (*MockRosterReader)(nil)
)
