package api

import (
	"net/http"
	"strconv"

	"bookingslots/internal/metrics"
	"bookingslots/internal/model"
	"bookingslots/internal/picker"
	"bookingslots/internal/slots"
)

// handleSlots classifies one day without keeping a session.
// GET /api/v1/slots?type=bookings&locationId=...&date=YYYY-MM-DD&variant=range&wait=true
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("slots")

	q := r.URL.Query()
	pc := picker.Context{
		Kind:        model.Kind(q.Get("type")),
		Variant:     slots.Variant(q.Get("variant")),
		LocationID:  q.Get("locationId"),
		PatientID:   q.Get("patientId"),
		ClinicianID: q.Get("clinicianId"),
		Date:        q.Get("date"),
	}
	if id := q.Get("editingId"); id != "" {
		pc.Editing = &picker.Editing{ID: id, StartTime: q.Get("editingStart"), EndTime: q.Get("editingEnd")}
	}

	var err error
	if pc.Disabled, err = boolParam(q.Get("disabled")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid disabled flag")
		return
	}
	if pc.HasNoLegalSelection, err = boolParam(q.Get("hasNoLegalSelection")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid hasNoLegalSelection flag")
		return
	}
	wait, err := boolParam(q.Get("wait"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid wait flag")
		return
	}

	form := picker.Form{StartTime: q.Get("startTime"), EndTime: q.Get("endTime")}
	view, err := s.service.Preview(r.Context(), pc, form, wait)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	view.SessionID = ""
	writeJSON(w, http.StatusOK, view)
}

func boolParam(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}
