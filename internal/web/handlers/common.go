package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/face-sync/internal/attendance"
	"github.com/kozaktomas/face-sync/internal/constants"
	"github.com/kozaktomas/face-sync/internal/database"
	"github.com/kozaktomas/face-sync/internal/facematch"
	"github.com/sirupsen/logrus"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// errorStatus maps engine errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, attendance.ErrValidation),
		errors.Is(err, facematch.ErrDegenerateInput),
		errors.Is(err, facematch.ErrDimensionMismatch):
		return http.StatusBadRequest
	case errors.Is(err, attendance.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The client went away or the request timeout fired during a lock wait.
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondEngineError sends the status for err. Client errors carry the error
// text; internal errors are logged and reported generically.
func respondEngineError(w http.ResponseWriter, logger logrus.FieldLogger, err error) {
	switch status := errorStatus(err); status {
	case http.StatusInternalServerError:
		logger.WithError(err).Error("request failed")
		respondError(w, status, "internal error")
	case http.StatusServiceUnavailable:
		logger.WithError(err).Warn("request abandoned")
		respondError(w, status, "request cancelled or timed out")
	default:
		respondError(w, status, err.Error())
	}
}

// decodeJSON reads a JSON request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, constants.MaxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return false
	}
	return true
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// SessionResponse is the JSON view of an attendance session.
type SessionResponse struct {
	ID        string                   `json:"id"`
	CourseID  string                   `json:"course_id"`
	State     database.SessionState    `json:"state"`
	Version   int64                    `json:"version"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`
	Present   int                      `json:"present"`
	Total     int                      `json:"total"`
	Students  []database.StudentStatus `json:"students"`
}

func newSessionResponse(s *database.StoredSession) SessionResponse {
	students := s.Students
	if students == nil {
		students = []database.StudentStatus{}
	}
	return SessionResponse{
		ID:        s.ID,
		CourseID:  s.CourseID,
		State:     s.State,
		Version:   s.Version,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		Present:   s.PresentCount(),
		Total:     len(s.Students),
		Students:  students,
	}
}

// TemplateResponse is the JSON view of an enrolled template. The vector is
// omitted from listings.
type TemplateResponse struct {
	ID        int64     `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Dim       int       `json:"dim"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newTemplateResponse(t *database.StoredTemplate) TemplateResponse {
	dim := t.Dim
	if dim == 0 {
		dim = len(t.Vector)
	}
	return TemplateResponse{
		ID:        t.ID,
		OwnerID:   t.OwnerID,
		Dim:       dim,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}
