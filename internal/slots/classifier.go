package slots

import "time"

// CheckIfSelectableTimeSlot reports whether clicking slot keeps the would-be
// selection clear of every booked interval. day bounds the overnight
// variants. With nothing selected yet, the target is the slot itself.
func CheckIfSelectableTimeSlot(slot TimeSlot, sel Selection, booked []Interval, variant Variant, day Interval) bool {
	return !OverlapsAny(targetSelection(slot, sel, variant, day), booked)
}

func targetSelection(slot TimeSlot, sel Selection, variant Variant, day Interval) Interval {
	switch variant {
	case VariantStart:
		return Interval{Start: slot.Start, End: day.End}
	case VariantEnd:
		return Interval{Start: day.Start, End: slot.End}
	default:
		if !sel.Complete() {
			return slot
		}
		return Interval{
			Start: minTime(sel.Start, slot.Start),
			End:   maxTime(sel.End, slot.End),
		}
	}
}

// BookedIntervals drops the booking being edited from the resource's
// bookings. A zero editing interval keeps everything.
func BookedIntervals(bookings []Interval, editing Interval) []Interval {
	out := make([]Interval, 0, len(bookings))
	for _, b := range bookings {
		if !editing.IsZero() && b.Equal(editing) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// SlotState is one classified cell of the grid.
type SlotState struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Booked       bool      `json:"booked"`
	Selected     bool      `json:"selected"`
	Selectable   bool      `json:"selectable"`
	InHoverRange bool      `json:"inHoverRange"`
}

// Slot returns the cell's interval.
func (s SlotState) Slot() TimeSlot {
	return TimeSlot{Start: s.Start, End: s.End}
}

// Grid is the classified slot sequence of one day.
type Grid struct {
	Day      time.Time   `json:"day"`
	Slots    []SlotState `json:"slots"`
	Loading  bool        `json:"loading"`
	Disabled bool        `json:"disabled"`
	Error    string      `json:"error,omitempty"`
}

// Interactive reports whether any cell can be clicked.
func (g Grid) Interactive() bool {
	return !g.Loading && !g.Disabled && g.Error == ""
}

// ClassifyInput is everything the classifier depends on. Any change to it
// requires a new Classify call.
type ClassifyInput struct {
	Config    Config
	Day       time.Time
	Variant   Variant
	Selection Selection
	Hover     Interval
	Booked    []Interval

	// Loading is set while the bookings fetch is in flight, Err when it failed.
	Loading bool
	Err     error

	Disabled            bool
	HasNoLegalSelection bool
}

// Classify builds the grid for in.Day. While bookings are loading or failed to
// load, no slot is selectable.
func Classify(in ClassifyInput) Grid {
	slots := CalculateTimeSlots(in.Config, in.Day)
	day := in.Config.DayBounds(in.Day)

	grid := Grid{
		Day:      day.Start,
		Slots:    make([]SlotState, 0, len(slots)),
		Loading:  in.Loading,
		Disabled: in.Disabled,
	}
	if in.Err != nil {
		grid.Error = in.Err.Error()
	}
	interactive := grid.Interactive() && !in.HasNoLegalSelection

	for _, slot := range slots {
		st := SlotState{Start: slot.Start, End: slot.End}
		if !in.Loading && in.Err == nil {
			st.Selected = isSelected(in.Variant, slot, in.Selection)
			st.Booked = !st.Selected && OverlapsAny(slot, in.Booked)
			st.Selectable = interactive && !st.Booked &&
				CheckIfSelectableTimeSlot(slot, in.Selection, in.Booked, in.Variant, day)
		}
		st.InHoverRange = IsTimeSlotWithinRange(slot, in.Hover)
		grid.Slots = append(grid.Slots, st)
	}
	return grid
}
