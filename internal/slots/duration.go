package slots

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationPattern = regexp.MustCompile(
	`(?i)^(-?(?:\d+)?\.?\d+) *(milliseconds?|msecs?|ms|seconds?|secs?|s|minutes?|mins?|m|hours?|hrs?|h|days?|d|weeks?|w|years?|yrs?|y)?$`,
)

// ParseDuration parses facility duration settings such as "30min", "1h",
// "1.5 hours" or a bare millisecond count like "1800000".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	unit := time.Millisecond
	switch strings.ToLower(m[2]) {
	case "", "ms", "msec", "msecs", "millisecond", "milliseconds":
		unit = time.Millisecond
	case "s", "sec", "secs", "second", "seconds":
		unit = time.Second
	case "m", "min", "mins", "minute", "minutes":
		unit = time.Minute
	case "h", "hr", "hrs", "hour", "hours":
		unit = time.Hour
	case "d", "day", "days":
		unit = 24 * time.Hour
	case "w", "week", "weeks":
		unit = 7 * 24 * time.Hour
	case "y", "yr", "yrs", "year", "years":
		unit = time.Duration(365.25 * float64(24*time.Hour))
	}

	return time.Duration(n * float64(unit)), nil
}

// MinSlotDuration is the finest grid a facility may configure.
const MinSlotDuration = time.Minute

// ParseSlotDuration is ParseDuration restricted to whole grids of at least
// MinSlotDuration.
func ParseSlotDuration(s string) (time.Duration, error) {
	d, err := ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < MinSlotDuration {
		return 0, fmt.Errorf("slot duration must be at least %s, got %q", MinSlotDuration, s)
	}
	return d, nil
}
