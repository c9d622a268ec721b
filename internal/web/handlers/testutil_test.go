package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-sync/internal/attendance"
	"github.com/kozaktomas/face-sync/internal/database"
	"github.com/kozaktomas/face-sync/internal/database/mock"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// Four 2D landmarks.
var (
	squareLandmarks = []float64{0, 0, 1, 0, 1, 1, 0, 1}
	// Same shape as squareLandmarks after normalization.
	squareMoved    = []float64{10, 20, 12, 20, 12, 22, 10, 22}
	kiteLandmarks  = []float64{0, 0, 4, 0, 1, 1, 0, 3}
	flatLandmarks  = []float64{5, 5, 5, 5, 5, 5, 5, 5}
	shortLandmarks = []float64{0, 0, 1, 0}
)

func testLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

type testEnv struct {
	svc      *attendance.Service
	backend  *database.Backend
	sessions *mock.MockSessionStore
	template *mock.MockTemplateStore
}

// newTestEnv builds a service over the mock backend with 8-dimensional samples.
func newTestEnv(t *testing.T, courses map[string][]string) *testEnv {
	t.Helper()
	backend, templates, sessions, _ := mock.NewBackend(courses)
	opts := attendance.DefaultOptions()
	opts.Dim = len(squareLandmarks)
	svc, err := attendance.NewService(backend, opts, testLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &testEnv{svc: svc, backend: backend, sessions: sessions, template: templates}
}

// otherProcess returns a second service over the same stores, standing in for
// a CLI command that shares the database with the server.
func (e *testEnv) otherProcess(t *testing.T) *attendance.Service {
	t.Helper()
	opts := attendance.DefaultOptions()
	opts.Dim = len(squareLandmarks)
	svc, err := attendance.NewService(e.backend, opts, testLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

// jsonRequest creates a request with a JSON-encoded body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// assertStatusCode checks that the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks that the response contains an error message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedError string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON response: %v", err)
	}
	if result["error"] != expectedError {
		t.Errorf("expected error '%s', got '%s'", expectedError, result["error"])
	}
}

// parseJSONResponse parses the JSON response body into the given struct
func parseJSONResponse[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var result T
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON response: %v", err)
	}
	return result
}
