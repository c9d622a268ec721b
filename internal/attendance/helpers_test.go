package attendance

import (
	"testing"
	"time"

	"github.com/kozaktomas/face-sync/internal/database"
	"github.com/kozaktomas/face-sync/internal/database/mock"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

const testDim = 8 // four 2D landmarks

// Raw landmark layouts used across tests.
var (
	squareSample = []float64{0, 0, 1, 0, 1, 1, 0, 1}
	// squareShifted is the square scaled by 3 and moved; it normalizes to the same vector.
	squareShifted = []float64{10, 20, 13, 20, 13, 23, 10, 23}
	// squareRotated lists the square's corners starting at the opposite one,
	// which normalizes to the negated square vector.
	squareRotated = []float64{1, 1, 0, 1, 0, 0, 1, 0}
	kiteSample    = []float64{0, 0, 4, 0, 1, 1, 0, 3}
)

func testLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Dim = testDim
	opts.LockTimeout = time.Second
	return opts
}

type fixture struct {
	svc       *Service
	backend   *database.Backend
	templates *mock.MockTemplateStore
	sessions  *mock.MockSessionStore
	roster    *mock.MockRosterReader
}

func newFixture(t *testing.T, opts Options, courses map[string][]string) *fixture {
	t.Helper()
	backend, templates, sessions, roster := mock.NewBackend(courses)
	svc, err := NewService(backend, opts, testLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &fixture{svc: svc, backend: backend, templates: templates, sessions: sessions, roster: roster}
}

func statusOf(t *testing.T, s *database.StoredSession, studentID string) database.AttendanceStatus {
	t.Helper()
	i := s.StudentIndex(studentID)
	if i < 0 {
		t.Fatalf("student %s not in session %s", studentID, s.ID)
	}
	return s.Students[i].Status
}
