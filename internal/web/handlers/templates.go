package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-sync/internal/attendance"
	"github.com/sirupsen/logrus"
)

// TemplatesHandler handles enrollment and identification endpoints.
type TemplatesHandler struct {
	service *attendance.Service
	logger  logrus.FieldLogger
}

// NewTemplatesHandler creates a new templates handler.
func NewTemplatesHandler(svc *attendance.Service, logger logrus.FieldLogger) *TemplatesHandler {
	return &TemplatesHandler{service: svc, logger: logger}
}

// EnrollRequest carries one raw landmark sample for an owner.
type EnrollRequest struct {
	OwnerID   string    `json:"owner_id"`
	Landmarks []float64 `json:"landmarks"`
}

// SampleRequest carries one raw landmark sample to identify.
type SampleRequest struct {
	Landmarks []float64 `json:"landmarks"`
}

// Enroll stores or replaces the template of an owner.
func (h *TemplatesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t, err := h.service.Enroll(r.Context(), req.OwnerID, req.Landmarks)
	if err != nil {
		respondEngineError(w, h.logger, err)
		return
	}

	h.logger.WithField("owner", sanitizeForLog(t.OwnerID)).Info("template enrolled")
	respondJSON(w, http.StatusCreated, newTemplateResponse(t))
}

// List returns all enrolled templates without their vectors.
func (h *TemplatesHandler) List(w http.ResponseWriter, r *http.Request) {
	templates, err := h.service.ListTemplates(r.Context())
	if err != nil {
		respondEngineError(w, h.logger, err)
		return
	}

	response := make([]TemplateResponse, len(templates))
	for i := range templates {
		response[i] = newTemplateResponse(&templates[i])
	}
	respondJSON(w, http.StatusOK, response)
}

// Delete removes the template of an owner.
func (h *TemplatesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	if err := h.service.DeleteTemplate(r.Context(), owner); err != nil {
		respondEngineError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CheckIn identifies a sample against the enrolled templates. A sample that
// matches nobody is a successful response with matched=false.
func (h *TemplatesHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req SampleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	match, err := h.service.CheckIn(r.Context(), req.Landmarks)
	if err != nil {
		respondEngineError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, match)
}

// StatsResponse summarizes the engine state.
type StatsResponse struct {
	Templates int `json:"templates"`
}

// Stats returns the number of templates in the in-memory catalog.
func (h *TemplatesHandler) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatsResponse{Templates: h.service.TemplateCount()})
}

// ReloadResponse reports the outcome of a catalog refresh.
type ReloadResponse struct {
	Reloaded  bool `json:"reloaded"`
	Templates int  `json:"templates"`
}

// Reload picks up templates written to the store by other processes, such as
// the enroll command.
func (h *TemplatesHandler) Reload(w http.ResponseWriter, r *http.Request) {
	reloaded, err := h.service.Refresh(r.Context())
	if err != nil {
		respondEngineError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, ReloadResponse{Reloaded: reloaded, Templates: h.service.TemplateCount()})
}
