package slots

import (
	"sort"
	"time"
)

// Variant selects how toggles map onto a booking range.
type Variant string

const (
	// VariantRange picks a contiguous run within one day.
	VariantRange Variant = "range"
	// VariantStart picks the first day of an overnight booking: from a slot to
	// the end of the day.
	VariantStart Variant = "start"
	// VariantEnd picks the last day of an overnight booking: from the start of
	// the day to the end of a slot.
	VariantEnd Variant = "end"
)

// ParseVariant maps a request value to a Variant, defaulting to range.
func ParseVariant(s string) (Variant, bool) {
	switch Variant(s) {
	case "", VariantRange:
		return VariantRange, true
	case VariantStart, VariantEnd:
		return Variant(s), true
	}
	return "", false
}

// Selection is the user's uncommitted pick. The zero value means nothing is
// selected. Overnight variants may carry only one endpoint.
type Selection struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsEmpty reports whether neither endpoint is set.
func (s Selection) IsEmpty() bool {
	return s.Start.IsZero() && s.End.IsZero()
}

// Complete reports whether both endpoints are set.
func (s Selection) Complete() bool {
	return !s.Start.IsZero() && !s.End.IsZero()
}

// Interval returns the selection as an interval.
func (s Selection) Interval() Interval {
	return Interval{Start: s.Start, End: s.End}
}

// Valid checks the range invariant: Start < End and the length is a whole
// number of slots.
func (s Selection) Valid(slotDuration time.Duration) bool {
	if !s.Complete() || slotDuration <= 0 {
		return false
	}
	d := s.End.Sub(s.Start)
	return d > 0 && d%slotDuration == 0
}

// UpdateSelection turns a set of toggled slot starts into one contiguous
// range from the earliest start to the end of the latest slot. Order of the
// input does not matter. No toggles yield an empty selection.
func UpdateSelection(toggles []time.Time, slotDuration time.Duration) Selection {
	if len(toggles) == 0 || slotDuration <= 0 {
		return Selection{}
	}
	sorted := SortToggles(toggles)
	return Selection{
		Start: sorted[0],
		End:   sorted[len(sorted)-1].Add(slotDuration),
	}
}

// SortToggles returns an ascending copy of toggles.
func SortToggles(toggles []time.Time) []time.Time {
	out := append([]time.Time(nil), toggles...)
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Patch is a change to the form's startTime/endTime fields. Unset fields are
// left alone; a set field with a zero time clears it.
type Patch struct {
	SetStart bool
	Start    time.Time
	SetEnd   bool
	End      time.Time
}

// Cleared reports whether the patch empties every field it touches.
func (p Patch) Cleared() bool {
	return (!p.SetStart || p.Start.IsZero()) && (!p.SetEnd || p.End.IsZero())
}

// ApplyTo returns sel with the patch applied.
func (p Patch) ApplyTo(sel Selection) Selection {
	if p.SetStart {
		sel.Start = p.Start
	}
	if p.SetEnd {
		sel.End = p.End
	}
	return sel
}

// Reducer applies toggle-group changes for one picker variant.
type Reducer struct {
	Config  Config
	Variant Variant
}

// Apply computes the form change for a toggle interaction. prev is the set of
// toggles before the click, next the set after it. Both have set semantics.
func (r Reducer) Apply(prev, next []time.Time) Patch {
	prev = SortToggles(prev)
	next = SortToggles(next)

	switch r.Variant {
	case VariantStart:
		return r.applyStart(prev, next)
	case VariantEnd:
		return r.applyEnd(prev, next)
	default:
		return r.applyRange(prev, next)
	}
}

func (r Reducer) applyRange(prev, next []time.Time) Patch {
	cleared := Patch{SetStart: true, SetEnd: true}

	if len(next) == 0 {
		return cleared
	}

	if len(next) == 1 {
		return Patch{SetStart: true, Start: next[0], SetEnd: true, End: r.endOf(next[0])}
	}

	// A second toggle extends to a contiguous run; with a run already selected
	// only the head or tail may be dropped.
	if len(prev) == 1 || isSameMinusHeadOrTail(next, prev) {
		sel := UpdateSelection(next, r.Config.SlotDuration)
		sel.End = r.endOf(next[len(next)-1])
		return Patch{SetStart: true, Start: sel.Start, SetEnd: true, End: sel.End}
	}

	return cleared
}

func (r Reducer) applyStart(prev, next []time.Time) Patch {
	if len(next) == 0 {
		return Patch{SetStart: true}
	}

	// The second condition rejects dropping the last of two selected slots,
	// which would leave a start that no longer reaches the end of the day.
	if isSameMinusHead(next, prev) || (len(next) == 1 && !isSameMinusTail(next, prev)) {
		return Patch{SetStart: true, Start: next[0]}
	}

	return Patch{SetStart: true}
}

func (r Reducer) applyEnd(prev, next []time.Time) Patch {
	if len(next) == 0 {
		return Patch{SetEnd: true}
	}

	if isSameMinusTail(next, prev) {
		return Patch{SetEnd: true, End: r.endOf(next[len(next)-1])}
	}

	if len(next) == 1 && !isSameMinusHead(next, prev) {
		return Patch{SetEnd: true, End: r.endOf(next[0])}
	}

	return Patch{SetEnd: true}
}

// endOf returns the end of the grid slot containing t, or t plus one
// SlotDuration if t is off the grid.
func (r Reducer) endOf(t time.Time) time.Time {
	if end, ok := EndOfSlotContaining(r.Config, t); ok {
		return end
	}
	return t.Add(r.Config.SlotDuration)
}

// TogglesFor returns the slot starts that represent sel in the given variant.
func TogglesFor(variant Variant, slots []TimeSlot, sel Selection) []time.Time {
	var out []time.Time
	for _, s := range slots {
		if isSelected(variant, s, sel) {
			out = append(out, s.Start)
		}
	}
	return out
}

func isSelected(variant Variant, slot TimeSlot, sel Selection) bool {
	switch variant {
	case VariantStart:
		return !sel.Start.IsZero() && !slot.Start.Before(sel.Start)
	case VariantEnd:
		return !sel.End.IsZero() && slot.Start.Before(sel.End)
	default:
		return sel.Complete() && IsTimeSlotWithinRange(slot, sel.Interval())
	}
}

// HoverRange is the preview shown while the pointer is over slot. selected
// is the number of toggles currently on.
func HoverRange(variant Variant, slot TimeSlot, sel Selection, selected int, day Interval) (Interval, bool) {
	if selected > 1 {
		return Interval{}, false
	}

	switch variant {
	case VariantStart:
		if selected > 0 {
			return Interval{}, false
		}
		return Interval{Start: slot.Start, End: day.End}, true
	case VariantEnd:
		if selected > 0 {
			return Interval{}, false
		}
		return Interval{Start: day.Start, End: slot.End}, true
	default:
		if !sel.Complete() {
			return slot, true
		}
		return Interval{Start: minTime(slot.Start, sel.Start), End: maxTime(slot.End, sel.End)}, true
	}
}

func isSameMinusHeadOrTail(a, b []time.Time) bool {
	return isSameMinusHead(a, b) || isSameMinusTail(a, b)
}

// isSameMinusHead reports whether a equals b without its first element.
func isSameMinusHead(a, b []time.Time) bool {
	if len(b) == 0 || len(a) != len(b)-1 {
		return false
	}
	return equalTimes(a, b[1:])
}

// isSameMinusTail reports whether a equals b without its last element.
func isSameMinusTail(a, b []time.Time) bool {
	if len(b) == 0 || len(a) != len(b)-1 {
		return false
	}
	return equalTimes(a, b[:len(b)-1])
}

func equalTimes(a, b []time.Time) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
