package model

import (
	"fmt"
	"time"
)

// SameDayWarning returns a non-blocking notice when the patient already has
// another appointment at the location on day. editingID excludes the booking
// being edited. An empty string means no warning.
func SameDayWarning(appts []Appointment, patientID, locationID string, day time.Time, editingID string, loc *time.Location) string {
	if patientID == "" || locationID == "" {
		return ""
	}
	if loc == nil {
		loc = time.Local
	}
	y, m, d := day.In(loc).Date()

	for _, a := range appts {
		if a.ID == editingID || a.PatientID != patientID || a.LocationID != locationID {
			continue
		}
		if a.Status == StatusCancelled {
			continue
		}
		start, err := ParseDateTime(a.StartTime, loc)
		if err != nil {
			continue
		}
		ay, am, ad := start.Date()
		if ay == y && am == m && ad == d {
			return fmt.Sprintf("patient already has a booking at this location on %s at %s",
				start.Format(DateLayout), start.Format("15:04"))
		}
	}
	return ""
}
