package database

import (
	"context"
)

// TemplateReader provides read-only access to enrolled face templates
type TemplateReader interface {
	// GetAllTemplates returns every template ordered by ascending ID
	GetAllTemplates(ctx context.Context) ([]StoredTemplate, error)
	// GetTemplate returns the template of an owner, or ErrNotFound
	GetTemplate(ctx context.Context, ownerID string) (*StoredTemplate, error)
	// Count returns the total number of templates stored
	Count(ctx context.Context) (int, error)
}

// TemplateStore provides write access to face templates
type TemplateStore interface {
	TemplateReader

	// PutTemplate stores the normalized vector for an owner. Re-enrolling an
	// owner replaces the vector and keeps the template ID.
	PutTemplate(ctx context.Context, ownerID string, vector []float64) (*StoredTemplate, error)

	// DeleteTemplate removes the template of an owner, or returns ErrNotFound
	DeleteTemplate(ctx context.Context, ownerID string) error
}

// RosterReader answers which students are enrolled in a course
type RosterReader interface {
	// CourseExists reports whether the course is known
	CourseExists(ctx context.Context, courseID string) (bool, error)
	// GetRoster returns the student IDs enrolled in the course
	GetRoster(ctx context.Context, courseID string) ([]string, error)
}

// SessionStore persists attendance sessions
type SessionStore interface {
	// CreateSession inserts a new open session. Any session of the same course
	// that is still open is marked superseded in the same operation, so at
	// most one session per course is open. Returns ErrOpenSessionExists if a
	// concurrent writer opened a session first.
	CreateSession(ctx context.Context, session *StoredSession) error

	// LatestSession returns the most recently created session of a course
	// regardless of state, or ErrNotFound
	LatestSession(ctx context.Context, courseID string) (*StoredSession, error)

	// GetSession returns a session by ID, or ErrNotFound
	GetSession(ctx context.Context, sessionID string) (*StoredSession, error)

	// UpdateSession writes state and student statuses if the stored version
	// still equals expectedVersion, and bumps the version. Returns
	// ErrVersionConflict otherwise.
	UpdateSession(ctx context.Context, session *StoredSession, expectedVersion int64) error

	// ListSessions returns sessions of a course, newest first
	ListSessions(ctx context.Context, courseID string, limit int) ([]StoredSession, error)
}
