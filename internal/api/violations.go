package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// DismissRequest is the body for POST /v1/violations/{id}/dismiss.
// Notes are optional reviewer context stored on the event.
type DismissRequest struct {
	Notes string `json:"notes,omitempty" validate:"max=2000"`
}

// HandleViolationStats serves GET /v1/violations/stats.
func (s *Server) HandleViolationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.violations.Stats(r.Context())
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: stats})
}

// HandleGetViolation serves GET /v1/violations/{id}.
func (s *Server) HandleGetViolation(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")

	event, err := s.violations.GetEvent(r.Context(), eventID)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: event})
}

// HandleDismiss serves POST /v1/violations/{id}/dismiss. Dismissal is a
// manual reviewer override; re-aggregation never clears it. An empty body
// is allowed and leaves existing notes untouched.
func (s *Server) HandleDismiss(w http.ResponseWriter, r *http.Request) {
	s.setDismissed(w, r, true)
}

// HandleUndismiss serves POST /v1/violations/{id}/undismiss.
func (s *Server) HandleUndismiss(w http.ResponseWriter, r *http.Request) {
	s.setDismissed(w, r, false)
}

func (s *Server) setDismissed(w http.ResponseWriter, r *http.Request, dismissed bool) {
	eventID := chi.URLParam(r, "id")

	var req DismissRequest
	if r.ContentLength > 0 {
		if err := DecodeJSON(w, r, &req); err != nil {
			Error(w, r, err)
			return
		}
		if err := s.validator.ValidateStruct(req); err != nil {
			Error(w, r, err)
			return
		}
	}

	if err := s.violations.SetDismissed(r.Context(), eventID, dismissed, req.Notes); err != nil {
		Error(w, r, err)
		return
	}

	event, err := s.violations.GetEvent(r.Context(), eventID)
	if err != nil {
		Error(w, r, err)
		return
	}

	s.logger.InfoContext(r.Context(), "violation review updated",
		"event_id", eventID,
		"dismissed", dismissed,
	)

	JSON(w, r, http.StatusOK, APIResponse{Data: event})
}
