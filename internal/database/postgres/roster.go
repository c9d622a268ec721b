package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"
)

// RosterRepository reads and maintains course enrollments in PostgreSQL
type RosterRepository struct {
	pool *Pool
}

// NewRosterRepository creates a new PostgreSQL roster repository
func NewRosterRepository(pool *Pool) *RosterRepository {
	return &RosterRepository{pool: pool}
}

// CourseExists reports whether the course is known
func (r *RosterRepository) CourseExists(ctx context.Context, courseID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM courses WHERE code = $1)", courseID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check course exists: %w", err)
	}
	return exists, nil
}

// GetRoster returns the students of a course in enrollment order
func (r *RosterRepository) GetRoster(ctx context.Context, courseID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT student_id FROM enrollments
		WHERE course_code = $1
		ORDER BY id
	`, courseID)
	if err != nil {
		return nil, fmt.Errorf("query roster: %w", err)
	}
	defer rows.Close()

	students := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster: %w", err)
	}
	return students, nil
}

// SaveCourse creates the course or updates its name, then enrolls the
// students that are not enrolled yet. Existing enrollments keep their order.
// It returns the number of newly enrolled students.
func (r *RosterRepository) SaveCourse(ctx context.Context, code, name string, students []string) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO courses (code, name) VALUES ($1, $2)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
	`, code, name)
	if err != nil {
		return 0, fmt.Errorf("save course: %w", err)
	}

	// WITH ORDINALITY keeps the input order in the generated ids.
	result, err := tx.ExecContext(ctx, `
		INSERT INTO enrollments (course_code, student_id)
		SELECT $1, s.student_id
		FROM unnest($2::text[]) WITH ORDINALITY AS s(student_id, ord)
		WHERE s.student_id <> ''
		ORDER BY s.ord
		ON CONFLICT (course_code, student_id) DO NOTHING
	`, code, pq.Array(students))
	if err != nil {
		return 0, fmt.Errorf("enroll students: %w", err)
	}
	added, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("enroll students: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit course: %w", err)
	}
	return added, nil
}
