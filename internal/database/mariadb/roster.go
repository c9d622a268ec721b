package mariadb

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-sync/internal/database"
	"github.com/kozaktomas/face-sync/internal/facematch"
)

// Roster is a read-only database.RosterReader over the registration tables
// courses(course_code) and course_registrations(course_code, student_id,
// registered_at). Legacy course codes are matched in canonical form, so
// "csc-401" in the registration system matches "CSC 401".
type Roster struct {
	pool *Pool
}

// NewRoster creates a roster reader on the pool.
func NewRoster(pool *Pool) *Roster {
	return &Roster{pool: pool}
}

// rawCodes returns the stored spellings of a canonical course code.
func (r *Roster) rawCodes(ctx context.Context, courseID string) ([]any, error) {
	rows, err := r.pool.db.QueryContext(ctx, `SELECT DISTINCT course_code FROM courses`)
	if err != nil {
		return nil, wrapQueryError("query courses", err)
	}
	defer rows.Close()

	want := facematch.CanonicalCourseCode(courseID)
	var codes []any
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		if facematch.CanonicalCourseCode(code) == want {
			codes = append(codes, code)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate courses: %w", err)
	}
	return codes, nil
}

// CourseExists reports whether the course is known
func (r *Roster) CourseExists(ctx context.Context, courseID string) (bool, error) {
	codes, err := r.rawCodes(ctx, courseID)
	if err != nil {
		return false, err
	}
	return len(codes) > 0, nil
}

// GetRoster returns the registered students in registration order
func (r *Roster) GetRoster(ctx context.Context, courseID string) ([]string, error) {
	codes, err := r.rawCodes(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("%w: course %s", database.ErrNotFound, courseID)
	}

	placeholders := "?"
	for range codes[1:] {
		placeholders += ", ?"
	}
	query := `
		SELECT student_id FROM course_registrations
		WHERE course_code IN (` + placeholders + `)
		ORDER BY registered_at, student_id
	`
	rows, err := r.pool.db.QueryContext(ctx, query, codes...)
	if err != nil {
		return nil, wrapQueryError("query registrations", err)
	}
	defer rows.Close()

	students := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		students = append(students, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations: %w", err)
	}
	return students, nil
}

var _ database.RosterReader = (*Roster)(nil)
