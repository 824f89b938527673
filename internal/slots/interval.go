package slots

import "time"

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// TimeSlot is one fixed-width cell of the booking grid.
type TimeSlot = Interval

// Duration returns End - Start.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// IsZero reports whether both endpoints are unset.
func (i Interval) IsZero() bool {
	return i.Start.IsZero() && i.End.IsZero()
}

// Equal compares instants, ignoring location.
func (i Interval) Equal(o Interval) bool {
	return i.Start.Equal(o.Start) && i.End.Equal(o.End)
}

// ContainsTime reports whether t falls in [Start, End).
func (i Interval) ContainsTime(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// Overlaps is the strict overlap test for half-open intervals: touching
// endpoints do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// OverlapsAny reports whether target overlaps at least one of busy.
func OverlapsAny(target Interval, busy []Interval) bool {
	for _, b := range busy {
		if Overlaps(target, b) {
			return true
		}
	}
	return false
}

// IsTimeSlotWithinRange reports whether both endpoints of slot fall inside
// [rng.Start, rng.End], inclusive. A zero range contains nothing.
func IsTimeSlotWithinRange(slot TimeSlot, rng Interval) bool {
	if rng.IsZero() {
		return false
	}
	return withinInclusive(slot.Start, rng) && withinInclusive(slot.End, rng)
}

func withinInclusive(t time.Time, rng Interval) bool {
	return !t.Before(rng.Start) && !t.After(rng.End)
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
