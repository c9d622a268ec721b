package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-sync/internal/attendance"
	"github.com/kozaktomas/face-sync/internal/database"
	"github.com/kozaktomas/face-sync/internal/facematch"
	"github.com/sirupsen/logrus"
)

// SessionsHandler handles attendance session endpoints. Every route is
// scoped by the {course} URL parameter.
type SessionsHandler struct {
	service *attendance.Service
	logger  logrus.FieldLogger
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(svc *attendance.Service, logger logrus.FieldLogger) *SessionsHandler {
	return &SessionsHandler{service: svc, logger: logger}
}

// ConfirmRequest marks one student present.
type ConfirmRequest struct {
	StudentID string `json:"student_id"`
}

// AttendResponse is the outcome of identifying a sample and marking the
// matched owner present.
type AttendResponse struct {
	Match   facematch.Match  `json:"match"`
	Session *SessionResponse `json:"session,omitempty"`
}

func (h *SessionsHandler) log(r *http.Request) logrus.FieldLogger {
	return h.logger.WithField("course", sanitizeForLog(chi.URLParam(r, "course")))
}

func (h *SessionsHandler) respondSession(w http.ResponseWriter, status int, s *database.StoredSession) {
	respondJSON(w, status, newSessionResponse(s))
}

// Open starts a new session for the course, superseding any open one.
func (h *SessionsHandler) Open(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.OpenSession(r.Context(), chi.URLParam(r, "course"))
	if err != nil {
		respondEngineError(w, h.log(r), err)
		return
	}
	h.log(r).WithField("session", s.ID).Info("session opened")
	h.respondSession(w, http.StatusCreated, s)
}

// Active returns the open session of the course.
func (h *SessionsHandler) Active(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.GetActiveSession(r.Context(), chi.URLParam(r, "course"))
	if err != nil {
		respondEngineError(w, h.log(r), err)
		return
	}
	h.respondSession(w, http.StatusOK, s)
}

// List returns the most recent sessions of the course, newest first.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	sessions, err := h.service.ListSessions(r.Context(), chi.URLParam(r, "course"), limit)
	if err != nil {
		respondEngineError(w, h.log(r), err)
		return
	}

	response := make([]SessionResponse, len(sessions))
	for i := range sessions {
		response[i] = newSessionResponse(&sessions[i])
	}
	respondJSON(w, http.StatusOK, response)
}

// Confirm marks a student present in the open session.
func (h *SessionsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s, err := h.service.ConfirmAttendance(r.Context(), chi.URLParam(r, "course"), req.StudentID)
	if err != nil {
		respondEngineError(w, h.log(r), err)
		return
	}
	h.respondSession(w, http.StatusOK, s)
}

// Attend identifies a sample and marks the matched owner present. A sample
// that matches nobody leaves the session untouched.
func (h *SessionsHandler) Attend(w http.ResponseWriter, r *http.Request) {
	var req SampleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Attend(r.Context(), chi.URLParam(r, "course"), req.Landmarks)
	if err != nil {
		respondEngineError(w, h.log(r), err)
		return
	}

	response := AttendResponse{Match: result.Match}
	if result.Session != nil {
		s := newSessionResponse(result.Session)
		response.Session = &s
		h.log(r).WithField("student", sanitizeForLog(result.Match.OwnerID)).Info("attendance recorded")
	}
	respondJSON(w, http.StatusOK, response)
}

// Close closes the open session of the course.
func (h *SessionsHandler) Close(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.CloseSession(r.Context(), chi.URLParam(r, "course"))
	if err != nil {
		respondEngineError(w, h.log(r), err)
		return
	}
	h.log(r).WithField("session", s.ID).Info("session closed")
	h.respondSession(w, http.StatusOK, s)
}
