package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-sync/internal/database"
)

// SessionRepository provides PostgreSQL-backed attendance session storage
type SessionRepository struct {
	pool *Pool
}

// NewSessionRepository creates a new PostgreSQL session repository
func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, course_id, state, version, students, created_at, updated_at`

func scanSession(row rowScanner) (*database.StoredSession, error) {
	var s database.StoredSession
	var students []byte
	if err := row.Scan(&s.ID, &s.CourseID, &s.State, &s.Version, &students, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(students, &s.Students); err != nil {
		return nil, fmt.Errorf("decode students of session %s: %w", s.ID, err)
	}
	return &s, nil
}

// CreateSession supersedes the open session of the course, if any, and
// inserts the new one in a single transaction. The partial unique index on
// open sessions turns a concurrent open into ErrOpenSessionExists.
func (r *SessionRepository) CreateSession(ctx context.Context, session *database.StoredSession) error {
	students, err := json.Marshal(session.Students)
	if err != nil {
		return fmt.Errorf("encode students: %w", err)
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		UPDATE attendance_sessions
		SET state = $2, version = version + 1, updated_at = NOW()
		WHERE course_id = $1 AND state = $3
	`, session.CourseID, database.SessionSuperseded, database.SessionOpen)
	if err != nil {
		return fmt.Errorf("supersede open session: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance_sessions (id, course_id, state, version, students, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $5, $5)
	`, session.ID, session.CourseID, database.SessionOpen, students, session.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: course %s", database.ErrOpenSessionExists, session.CourseID)
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: course %s", database.ErrOpenSessionExists, session.CourseID)
		}
		return fmt.Errorf("commit session: %w", err)
	}

	session.State = database.SessionOpen
	session.Version = 0
	return nil
}

// LatestSession returns the most recently created session of a course
func (r *SessionRepository) LatestSession(ctx context.Context, courseID string) (*database.StoredSession, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions
		WHERE course_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`, courseID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no session for course %s", database.ErrNotFound, courseID)
	}
	if err != nil {
		return nil, fmt.Errorf("get latest session: %w", err)
	}
	return s, nil
}

// GetSession returns a session by ID
func (r *SessionRepository) GetSession(ctx context.Context, sessionID string) (*database.StoredSession, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM attendance_sessions WHERE id = $1`, sessionID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", database.ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// UpdateSession writes state and students if the stored version equals
// expectedVersion. On success the session's Version and UpdatedAt are
// refreshed from the database.
func (r *SessionRepository) UpdateSession(ctx context.Context, session *database.StoredSession, expectedVersion int64) error {
	students, err := json.Marshal(session.Students)
	if err != nil {
		return fmt.Errorf("encode students: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		UPDATE attendance_sessions
		SET state = $2, students = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $4
		RETURNING version, updated_at
	`, session.ID, session.State, students, expectedVersion).Scan(&session.Version, &session.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update session: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM attendance_sessions WHERE id = $1)", session.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check session exists: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: session %s", database.ErrNotFound, session.ID)
	}
	return fmt.Errorf("%w: session %s, expected version %d", database.ErrVersionConflict, session.ID, expectedVersion)
}

// ListSessions returns sessions of a course, newest first
func (r *SessionRepository) ListSessions(ctx context.Context, courseID string, limit int) ([]database.StoredSession, error) {
	if limit <= 0 {
		limit = database.DefaultListLimit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions
		WHERE course_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`, courseID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []database.StoredSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}
