package api

import (
	"net/http"
	"time"

	"bookingslots/internal/metrics"
	"bookingslots/internal/model"
	"bookingslots/internal/picker"
)

// CreateSessionRequest is the body of POST /api/v1/sessions.
type CreateSessionRequest struct {
	Context picker.Context `json:"context"`
	Form    picker.Form    `json:"form"`
}

// ToggleRequest flips one slot or replaces the whole toggle set. Slot times
// are the slot starts as returned in the grid.
type ToggleRequest struct {
	Slot    *time.Time  `json:"slot,omitempty"`
	Toggles []time.Time `json:"toggles,omitempty"`
}

// HoverRequest names the slot under the pointer.
type HoverRequest struct {
	Slot time.Time `json:"slot"`
}

// SubmitResponse carries the created booking and the reset picker.
type SubmitResponse struct {
	Booking *model.Appointment `json:"booking"`
	View    *picker.View       `json:"view,omitempty"`
}

// POST /api/v1/sessions
func (s *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_create")

	var req CreateSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	view, err := s.service.Create(r.Context(), req.Context, req.Form)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// GET /api/v1/sessions/{id}?wait=true
func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_get")

	wait, err := boolParam(r.URL.Query().Get("wait"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid wait flag")
		return
	}
	view, err := s.service.View(r.Context(), r.PathValue("id"), wait)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// DELETE /api/v1/sessions/{id}
func (s *HTTPServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_delete")

	if err := s.service.Delete(r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /api/v1/sessions/{id}/context
func (s *HTTPServer) handleSetContext(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_context")

	var pc picker.Context
	if err := decodeBody(r, &pc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	view, err := s.service.SetContext(r.Context(), r.PathValue("id"), pc)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// POST /api/v1/sessions/{id}/toggle
func (s *HTTPServer) handleToggle(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_toggle")

	var req ToggleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var (
		view *picker.View
		err  error
	)
	switch {
	case req.Slot != nil && req.Toggles != nil:
		writeError(w, http.StatusBadRequest, "send either slot or toggles")
		return
	case req.Slot != nil:
		view, err = s.service.Toggle(r.Context(), r.PathValue("id"), *req.Slot)
	case req.Toggles != nil:
		view, err = s.service.SetToggles(r.Context(), r.PathValue("id"), req.Toggles)
	default:
		writeError(w, http.StatusBadRequest, "slot or toggles is required")
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// POST /api/v1/sessions/{id}/hover
func (s *HTTPServer) handleHover(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_hover")

	var req HoverRequest
	if err := decodeBody(r, &req); err != nil || req.Slot.IsZero() {
		writeError(w, http.StatusBadRequest, "slot is required")
		return
	}
	view, err := s.service.Hover(r.Context(), r.PathValue("id"), req.Slot)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// DELETE /api/v1/sessions/{id}/hover
func (s *HTTPServer) handleClearHover(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_hover_clear")

	view, err := s.service.ClearHover(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// DELETE /api/v1/sessions/{id}/selection
func (s *HTTPServer) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_clear")

	view, err := s.service.Clear(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// POST /api/v1/sessions/{id}/submit
func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_submit")

	id := r.PathValue("id")
	appt, err := s.service.Submit(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := SubmitResponse{Booking: appt}
	if view, err := s.service.View(r.Context(), id, false); err == nil {
		resp.View = view
	}
	writeJSON(w, http.StatusCreated, resp)
}
