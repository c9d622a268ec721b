package database

import (
	"fmt"
	"slices"
	"time"

	"github.com/kozaktomas/face-sync/internal/facematch"
)

// StoredTemplate represents an enrolled face template stored in the database
type StoredTemplate struct {
	ID        int64
	OwnerID   string
	Vector    []float64 // normalized landmark vector
	Dim       int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Template returns the matching view of the stored template.
func (t *StoredTemplate) Template() facematch.Template {
	return facematch.Template{ID: t.ID, OwnerID: t.OwnerID, Vector: t.Vector}
}

// AttendanceStatus is the per-student status inside a session.
type AttendanceStatus string

const (
	StatusAbsent  AttendanceStatus = "Absent"
	StatusPresent AttendanceStatus = "Present"
)

// SessionState is the lifecycle state of an attendance session.
type SessionState string

const (
	SessionOpen       SessionState = "open"
	SessionSuperseded SessionState = "superseded" // a newer session was opened for the course
	SessionClosed     SessionState = "closed"
)

// StudentStatus is one roster entry of a session.
type StudentStatus struct {
	StudentID string           `json:"student_id"`
	Status    AttendanceStatus `json:"status"`
	MarkedAt  *time.Time       `json:"marked_at,omitempty"`
}

// StoredSession represents one attendance-taking instance for a course.
// The student list is a snapshot of the roster at creation time.
type StoredSession struct {
	ID        string
	CourseID  string
	State     SessionState
	Version   int64 // incremented on every successful update
	CreatedAt time.Time
	UpdatedAt time.Time
	Students  []StudentStatus
}

// NewStoredSession creates an open session with every roster entry Absent.
// Duplicate student IDs are dropped, keeping the first occurrence.
func NewStoredSession(id, courseID string, roster []string, now time.Time) *StoredSession {
	seen := make(map[string]struct{}, len(roster))
	students := make([]StudentStatus, 0, len(roster))
	for _, sid := range roster {
		if sid == "" {
			continue
		}
		if _, ok := seen[sid]; ok {
			continue
		}
		seen[sid] = struct{}{}
		students = append(students, StudentStatus{StudentID: sid, Status: StatusAbsent})
	}
	return &StoredSession{
		ID:        id,
		CourseID:  courseID,
		State:     SessionOpen,
		CreatedAt: now,
		UpdatedAt: now,
		Students:  students,
	}
}

// Clone returns a deep copy of the session.
func (s *StoredSession) Clone() *StoredSession {
	c := *s
	c.Students = slices.Clone(s.Students)
	for i := range c.Students {
		if at := c.Students[i].MarkedAt; at != nil {
			t := *at
			c.Students[i].MarkedAt = &t
		}
	}
	return &c
}

// StudentIndex returns the position of the student in the session, or -1.
func (s *StoredSession) StudentIndex(studentID string) int {
	return slices.IndexFunc(s.Students, func(st StudentStatus) bool {
		return st.StudentID == studentID
	})
}

// MarkPresent flips the student to Present. It reports whether anything
// changed: marking an already present student is a no-op.
// Returns ErrNotFound if the student is not part of the session.
func (s *StoredSession) MarkPresent(studentID string, at time.Time) (bool, error) {
	i := s.StudentIndex(studentID)
	if i < 0 {
		return false, fmt.Errorf("%w: student %s is not in session %s", ErrNotFound, studentID, s.ID)
	}
	if s.Students[i].Status == StatusPresent {
		return false, nil
	}
	s.Students[i].Status = StatusPresent
	s.Students[i].MarkedAt = &at
	return true, nil
}

// PresentCount returns the number of students marked Present.
func (s *StoredSession) PresentCount() int {
	n := 0
	for i := range s.Students {
		if s.Students[i].Status == StatusPresent {
			n++
		}
	}
	return n
}
