package model

import (
	"fmt"
	"time"

	"bookingslots/internal/slots"
)

// DateTimeLayout is the ISO 9075 form used by the bookings backend.
const DateTimeLayout = "2006-01-02 15:04:05"

// DateLayout is the calendar-date form used in query parameters.
const DateLayout = "2006-01-02"

// Kind names the grid a picker works on.
type Kind string

const (
	KindBookings    Kind = "bookings"
	KindAssignments Kind = "assignments"
)

// ParseKind maps a request value to a Kind, defaulting to bookings.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case "", KindBookings:
		return KindBookings, true
	case KindAssignments:
		return KindAssignments, true
	}
	return "", false
}

type Appointment struct {
	ID          string `json:"id"`
	PatientID   string `json:"patientId,omitempty"`
	LocationID  string `json:"locationId,omitempty"`
	ClinicianID string `json:"clinicianId,omitempty"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	Status      string `json:"status,omitempty"`
}

// LocationAssignment is a clinician's assignment to a location. It occupies
// the assignment grid the same way an appointment occupies the booking grid.
type LocationAssignment struct {
	ID         string `json:"id"`
	UserID     string `json:"userId,omitempty"`
	LocationID string `json:"locationId,omitempty"`
	Date       string `json:"date,omitempty"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
}

// Cancelled bookings no longer occupy their slots.
const StatusCancelled = "Cancelled"

// ToInterval parses the appointment's endpoints in loc.
func (a Appointment) ToInterval(loc *time.Location) (slots.Interval, error) {
	return parseInterval(a.StartTime, a.EndTime, loc)
}

// ToInterval parses the assignment's endpoints in loc. Times given without a
// date are taken on the assignment's Date.
func (a LocationAssignment) ToInterval(loc *time.Location) (slots.Interval, error) {
	start, end := a.StartTime, a.EndTime
	if a.Date != "" && len(start) <= len("15:04:05") {
		start = a.Date + " " + start
	}
	if a.Date != "" && len(end) <= len("15:04:05") {
		end = a.Date + " " + end
	}
	return parseInterval(start, end, loc)
}

func parseInterval(startStr, endStr string, loc *time.Location) (slots.Interval, error) {
	start, err := ParseDateTime(startStr, loc)
	if err != nil {
		return slots.Interval{}, fmt.Errorf("start time: %w", err)
	}
	end, err := ParseDateTime(endStr, loc)
	if err != nil {
		return slots.Interval{}, fmt.Errorf("end time: %w", err)
	}
	if !end.After(start) {
		return slots.Interval{}, fmt.Errorf("end %s not after start %s", endStr, startStr)
	}
	return slots.Interval{Start: start, End: end}, nil
}

// ParseDateTime accepts ISO 9075 wall-clock times (read in loc) and RFC 3339
// timestamps.
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.ParseInLocation(DateTimeLayout, s, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date time %q", s)
	}
	return t.In(loc), nil
}

// FormatDateTime renders t as ISO 9075 in loc. The zero time renders empty.
func FormatDateTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(DateTimeLayout)
}

// Intervals converts appointments to booked intervals, skipping cancelled and
// malformed rows. The number of skipped malformed rows is returned.
func Intervals(appts []Appointment, loc *time.Location) ([]slots.Interval, int) {
	out := make([]slots.Interval, 0, len(appts))
	bad := 0
	for _, a := range appts {
		if a.Status == StatusCancelled {
			continue
		}
		iv, err := a.ToInterval(loc)
		if err != nil {
			bad++
			continue
		}
		out = append(out, iv)
	}
	return out, bad
}

// AssignmentIntervals is Intervals for location assignments.
func AssignmentIntervals(assignments []LocationAssignment, loc *time.Location) ([]slots.Interval, int) {
	out := make([]slots.Interval, 0, len(assignments))
	bad := 0
	for _, a := range assignments {
		iv, err := a.ToInterval(loc)
		if err != nil {
			bad++
			continue
		}
		out = append(out, iv)
	}
	return out, bad
}

// BookingRequest is the body of a location booking write.
type BookingRequest struct {
	PatientID   string `json:"patientId"`
	LocationID  string `json:"locationId"`
	ClinicianID string `json:"clinicianId,omitempty"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
}
