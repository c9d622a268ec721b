package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kozaktomas/face-sync/internal/database"
	"github.com/kozaktomas/face-sync/internal/facematch"
)

var key = facematch.CanonicalCourseCode

// Roster is a mutable in-memory course roster keyed by canonical course code.
type Roster struct {
	mu      sync.RWMutex
	courses map[string][]string
}

// NewRoster creates a roster from a course -> students map.
func NewRoster(courses map[string][]string) *Roster {
	r := &Roster{courses: make(map[string][]string, len(courses))}
	for course, students := range courses {
		r.courses[key(course)] = slices.Clone(students)
	}
	return r
}

// SetCourse creates or replaces the student list of a course.
func (r *Roster) SetCourse(courseID string, students []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.courses[key(courseID)] = slices.Clone(students)
}

// Enroll adds a student to a course if not already enrolled.
func (r *Roster) Enroll(courseID, studentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code := key(courseID)
	if !slices.Contains(r.courses[code], studentID) {
		r.courses[code] = append(r.courses[code], studentID)
	}
}

// CourseExists reports whether the course is known.
func (r *Roster) CourseExists(ctx context.Context, courseID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.courses[key(courseID)]
	return ok, nil
}

// GetRoster returns the students of a course.
func (r *Roster) GetRoster(ctx context.Context, courseID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	students, ok := r.courses[key(courseID)]
	if !ok {
		return nil, fmt.Errorf("%w: course %s", database.ErrNotFound, courseID)
	}
	return slices.Clone(students), nil
}
