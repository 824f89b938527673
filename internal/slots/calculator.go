// Package slots computes booking grids: the fixed-width time slots of a day,
// which of them are booked, and how a user's toggles become a contiguous
// selection.
package slots

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds the facility's slot settings for one picker type.
type Config struct {
	SlotDuration time.Duration
	StartTime    string // "09:00", empty means 00:00
	EndTime      string // "17:00", empty or "24:00" means end of day
	Location     *time.Location
}

// Valid reports whether a day can be tiled with this config.
func (c Config) Valid() bool {
	if c.SlotDuration <= 0 {
		return false
	}
	start, end, ok := c.window(time.Now())
	return ok && end.After(start)
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// Window returns the configured booking window of day.
func (c Config) Window(day time.Time) (Interval, bool) {
	start, end, ok := c.window(day)
	if !ok || !end.After(start) {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}

func (c Config) window(day time.Time) (start, end time.Time, ok bool) {
	loc := c.location()
	y, m, d := day.In(loc).Date()

	sh, sm, err := parseClock(c.StartTime, 0)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	eh, em, err := parseClock(c.EndTime, 24)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}

	start = time.Date(y, m, d, sh, sm, 0, 0, loc)
	end = time.Date(y, m, d, eh, em, 0, 0, loc)
	return start, end, true
}

// DayBounds returns [start of day, start of next day) in the config's location.
func (c Config) DayBounds(day time.Time) Interval {
	loc := c.location()
	y, m, d := day.In(loc).Date()
	return Interval{
		Start: time.Date(y, m, d, 0, 0, 0, 0, loc),
		End:   time.Date(y, m, d+1, 0, 0, 0, 0, loc),
	}
}

// MaxSlotsPerDay caps a grid at one slot per minute of a day.
const MaxSlotsPerDay = 24 * 60

// CalculateTimeSlots tiles the configured window of day with slots of
// SlotDuration. A trailing remainder shorter than one slot is dropped. An
// invalid config, or one that would exceed MaxSlotsPerDay, yields no slots.
func CalculateTimeSlots(cfg Config, day time.Time) []TimeSlot {
	if cfg.SlotDuration <= 0 {
		return nil
	}
	win, ok := cfg.Window(day)
	if !ok {
		return nil
	}
	n := win.Duration() / cfg.SlotDuration
	if n > MaxSlotsPerDay {
		return nil
	}

	out := make([]TimeSlot, 0, n)
	for cursor := win.Start; !cursor.Add(cfg.SlotDuration).After(win.End); cursor = cursor.Add(cfg.SlotDuration) {
		out = append(out, TimeSlot{Start: cursor, End: cursor.Add(cfg.SlotDuration)})
	}
	return out
}

// SlotContaining returns the slot of t's day that contains t.
func SlotContaining(cfg Config, t time.Time) (TimeSlot, bool) {
	if cfg.SlotDuration <= 0 {
		return TimeSlot{}, false
	}
	win, ok := cfg.Window(t)
	if !ok || !win.ContainsTime(t) {
		return TimeSlot{}, false
	}

	idx := t.Sub(win.Start) / cfg.SlotDuration
	start := win.Start.Add(idx * cfg.SlotDuration)
	slot := TimeSlot{Start: start, End: start.Add(cfg.SlotDuration)}
	if slot.End.After(win.End) {
		return TimeSlot{}, false
	}
	return slot, true
}

// EndOfSlotContaining returns the end of the slot that contains t.
func EndOfSlotContaining(cfg Config, t time.Time) (time.Time, bool) {
	slot, ok := SlotContaining(cfg, t)
	if !ok {
		return time.Time{}, false
	}
	return slot.End, true
}

// SnapToSlot aligns t to the slot grid of day. With ceil the next boundary is
// used, otherwise the previous one.
func SnapToSlot(cfg Config, day, t time.Time, ceil bool) time.Time {
	win, ok := cfg.Window(day)
	if !ok || cfg.SlotDuration <= 0 {
		return t
	}

	diff := t.Sub(win.Start)
	idx := diff / cfg.SlotDuration
	if diff%cfg.SlotDuration != 0 {
		if ceil && diff > 0 {
			idx++
		}
		if !ceil && diff < 0 {
			idx--
		}
	}
	return win.Start.Add(idx * cfg.SlotDuration)
}

// HourlyRows returns hour-long rows spanning slots, used by the daily
// calendar. The final row is shorter if the window does not end on the hour.
// Without slots, the 24 hours of day are returned.
func HourlyRows(slots []TimeSlot, day time.Time, loc *time.Location) []TimeSlot {
	if loc == nil {
		loc = time.Local
	}
	if len(slots) == 0 {
		y, m, d := day.In(loc).Date()
		rows := make([]TimeSlot, 0, 24)
		for h := 0; h < 24; h++ {
			start := time.Date(y, m, d, h, 0, 0, 0, loc)
			rows = append(rows, TimeSlot{Start: start, End: start.Add(time.Hour)})
		}
		return rows
	}

	start := slots[0].Start
	end := slots[len(slots)-1].End
	var rows []TimeSlot
	for cursor := start; cursor.Before(end); {
		next := cursor.Add(time.Hour)
		if next.After(end) {
			next = end
		}
		rows = append(rows, TimeSlot{Start: cursor, End: next})
		cursor = next
	}
	return rows
}

// parseClock parses "HH:MM". An empty string yields fallback:00.
func parseClock(s string, fallback int) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback, 0, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("invalid time format: %s", s)
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hour: %w", err)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid minute: %w", err)
	}

	if hour < 0 || hour > 24 || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return 0, 0, fmt.Errorf("time out of range: %s", s)
	}
	return hour, minute, nil
}

// ValidateClock checks an "HH:MM" setting.
func ValidateClock(s string) error {
	_, _, err := parseClock(s, 0)
	return err
}
