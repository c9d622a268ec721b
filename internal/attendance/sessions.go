package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-sync/internal/database"
	"github.com/kozaktomas/face-sync/internal/facematch"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultMaxAttempts bounds optimistic update retries per operation.
	DefaultMaxAttempts = 4
	// DefaultLockTimeout bounds the wait for a session lock.
	DefaultLockTimeout = 2 * time.Second
)

// SessionManager owns the attendance session lifecycle: opening sessions
// from the course roster and flipping students to Present.
type SessionManager struct {
	sessions    database.SessionStore
	roster      database.RosterReader
	locks       *keyedLocks
	maxAttempts int
	lockTimeout time.Duration
	logger      logrus.FieldLogger

	now   func() time.Time
	newID func() string
}

// NewSessionManager creates a session manager. Non-positive maxAttempts or
// lockTimeout fall back to the defaults.
func NewSessionManager(sessions database.SessionStore, roster database.RosterReader, maxAttempts int, lockTimeout time.Duration, logger logrus.FieldLogger) *SessionManager {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &SessionManager{
		sessions:    sessions,
		roster:      roster,
		locks:       newKeyedLocks(),
		maxAttempts: maxAttempts,
		lockTimeout: lockTimeout,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

func courseKey(courseID string) (string, error) {
	code := facematch.CanonicalCourseCode(courseID)
	if code == "" {
		return "", fmt.Errorf("%w: course id is required", ErrValidation)
	}
	return code, nil
}

// lock acquires a keyed lock and translates a timeout into ErrConflict.
func (m *SessionManager) lock(ctx context.Context, key string) (func(), error) {
	unlock, err := m.locks.Lock(ctx, key, m.lockTimeout)
	if errors.Is(err, errLockTimeout) {
		return nil, fmt.Errorf("%w: %s busy for %s", ErrConflict, key, m.lockTimeout)
	}
	return unlock, err
}

// OpenSession starts a new session for the course with every enrolled
// student Absent. A session already open for the course is superseded.
func (m *SessionManager) OpenSession(ctx context.Context, courseID string) (*database.StoredSession, error) {
	course, err := courseKey(courseID)
	if err != nil {
		return nil, err
	}

	exists, err := m.roster.CourseExists(ctx, course)
	if err != nil {
		return nil, fmt.Errorf("checking course %s: %w", course, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: course %s", ErrNotFound, course)
	}
	students, err := m.roster.GetRoster(ctx, course)
	if err != nil {
		return nil, fmt.Errorf("reading roster of %s: %w", course, err)
	}

	unlock, err := m.lock(ctx, "course:"+course)
	if err != nil {
		return nil, err
	}
	defer unlock()

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		session := database.NewStoredSession(m.newID(), course, students, m.now())
		err := m.sessions.CreateSession(ctx, session)
		if err == nil {
			m.logger.WithFields(logrus.Fields{
				"course_id":  course,
				"session_id": session.ID,
				"students":   len(session.Students),
			}).Info("attendance session opened")
			return session, nil
		}
		if !errors.Is(err, database.ErrOpenSessionExists) {
			return nil, fmt.Errorf("creating session for %s: %w", course, err)
		}
		m.logger.WithFields(logrus.Fields{"course_id": course, "attempt": attempt}).
			Debug("concurrent session open, retrying")
	}
	return nil, fmt.Errorf("%w: could not open session for %s after %d attempts", ErrConflict, course, m.maxAttempts)
}

// GetActiveSession returns the most recently created session of the course
// if it is still open.
func (m *SessionManager) GetActiveSession(ctx context.Context, courseID string) (*database.StoredSession, error) {
	course, err := courseKey(courseID)
	if err != nil {
		return nil, err
	}
	return m.activeSession(ctx, course)
}

func (m *SessionManager) activeSession(ctx context.Context, course string) (*database.StoredSession, error) {
	session, err := m.sessions.LatestSession(ctx, course)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("%w: no active session for %s", ErrNotFound, course)
		}
		return nil, fmt.Errorf("loading session of %s: %w", course, err)
	}
	if session.State != database.SessionOpen {
		return nil, fmt.Errorf("%w: latest session of %s is %s", ErrNotFound, course, session.State)
	}
	return session, nil
}

// MarkPresent flips the student to Present in the course's active session
// and returns the session after the update. Marking a student who is
// already Present is a no-op.
func (m *SessionManager) MarkPresent(ctx context.Context, courseID, studentID string) (*database.StoredSession, error) {
	course, err := courseKey(courseID)
	if err != nil {
		return nil, err
	}
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, fmt.Errorf("%w: student id is required", ErrValidation)
	}

	log := m.logger.WithFields(logrus.Fields{"course_id": course, "student_id": studentID})
	session, err := m.update(ctx, course, func(s *database.StoredSession) (bool, error) {
		return s.MarkPresent(studentID, m.now())
	})
	if err != nil {
		return nil, err
	}
	log.WithField("session_id", session.ID).Info("student marked present")
	return session, nil
}

// CloseSession closes the course's active session. Afterwards the course
// has no active session until a new one is opened.
func (m *SessionManager) CloseSession(ctx context.Context, courseID string) (*database.StoredSession, error) {
	course, err := courseKey(courseID)
	if err != nil {
		return nil, err
	}

	session, err := m.update(ctx, course, func(s *database.StoredSession) (bool, error) {
		s.State = database.SessionClosed
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.WithFields(logrus.Fields{
		"course_id":  course,
		"session_id": session.ID,
		"present":    session.PresentCount(),
	}).Info("attendance session closed")
	return session, nil
}

// ListSessions returns the sessions of a course, newest first.
func (m *SessionManager) ListSessions(ctx context.Context, courseID string, limit int) ([]database.StoredSession, error) {
	course, err := courseKey(courseID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = database.DefaultListLimit
	}
	sessions, err := m.sessions.ListSessions(ctx, course, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions of %s: %w", course, err)
	}
	return sessions, nil
}

// update applies mutate to the active session of the course under the
// session lock and persists it with a version check. A version conflict or
// a session superseded in the meantime restarts from the active session.
// mutate reports whether it changed anything; unchanged sessions are not
// written.
func (m *SessionManager) update(ctx context.Context, course string, mutate func(*database.StoredSession) (bool, error)) (*database.StoredSession, error) {
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		active, err := m.activeSession(ctx, course)
		if err != nil {
			return nil, err
		}

		session, retry, err := m.updateOnce(ctx, active.ID, mutate)
		if err != nil {
			return nil, err
		}
		if !retry {
			return session, nil
		}
		m.logger.WithFields(logrus.Fields{
			"course_id":  course,
			"session_id": active.ID,
			"attempt":    attempt,
		}).Debug("session changed concurrently, retrying")
	}
	return nil, fmt.Errorf("%w: session of %s still contended after %d attempts", ErrConflict, course, m.maxAttempts)
}

func (m *SessionManager) updateOnce(ctx context.Context, sessionID string, mutate func(*database.StoredSession) (bool, error)) (*database.StoredSession, bool, error) {
	unlock, err := m.lock(ctx, "session:"+sessionID)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	session, err := m.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, false, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	if session.State != database.SessionOpen {
		return nil, true, nil
	}

	changed, err := mutate(session)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return session, false, nil
	}

	session.UpdatedAt = m.now()
	err = m.sessions.UpdateSession(ctx, session, session.Version)
	switch {
	case err == nil:
		return session, false, nil
	case errors.Is(err, database.ErrVersionConflict):
		return nil, true, nil
	default:
		return nil, false, fmt.Errorf("saving session %s: %w", sessionID, err)
	}
}
