package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/face-sync/internal/database"
)

// SessionStore keeps attendance sessions in memory. Sessions of a course are
// kept in creation order, so the last one is the most recent.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*database.StoredSession
	byCourse map[string][]string
	now      func() time.Time
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*database.StoredSession),
		byCourse: make(map[string][]string),
		now:      time.Now,
	}
}

// CreateSession inserts a new open session and supersedes the open one, if any.
func (s *SessionStore) CreateSession(ctx context.Context, session *database.StoredSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("session %s already exists", session.ID)
	}

	now := s.now()
	for _, id := range s.byCourse[session.CourseID] {
		prev := s.sessions[id]
		if prev.State == database.SessionOpen {
			prev.State = database.SessionSuperseded
			prev.Version++
			prev.UpdatedAt = now
		}
	}

	stored := session.Clone()
	stored.State = database.SessionOpen
	s.sessions[stored.ID] = stored
	s.byCourse[stored.CourseID] = append(s.byCourse[stored.CourseID], stored.ID)
	return nil
}

// LatestSession returns the most recently created session of a course.
func (s *SessionStore) LatestSession(ctx context.Context, courseID string) (*database.StoredSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byCourse[courseID]
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no session for course %s", database.ErrNotFound, courseID)
	}
	return s.sessions[ids[len(ids)-1]].Clone(), nil
}

// GetSession returns a session by ID.
func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (*database.StoredSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", database.ErrNotFound, sessionID)
	}
	return session.Clone(), nil
}

// UpdateSession writes the session if its stored version equals expectedVersion.
func (s *SessionStore) UpdateSession(ctx context.Context, session *database.StoredSession, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[session.ID]
	if !ok {
		return fmt.Errorf("%w: session %s", database.ErrNotFound, session.ID)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: session %s at version %d, expected %d",
			database.ErrVersionConflict, session.ID, current.Version, expectedVersion)
	}

	updated := session.Clone()
	updated.CourseID = current.CourseID
	updated.CreatedAt = current.CreatedAt
	updated.Version = expectedVersion + 1
	updated.UpdatedAt = s.now()
	s.sessions[session.ID] = updated

	session.Version = updated.Version
	session.UpdatedAt = updated.UpdatedAt
	return nil
}

// ListSessions returns sessions of a course, newest first.
func (s *SessionStore) ListSessions(ctx context.Context, courseID string, limit int) ([]database.StoredSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byCourse[courseID]
	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}
	out := make([]database.StoredSession, 0, limit)
	for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *s.sessions[ids[i]].Clone())
	}
	return out, nil
}
