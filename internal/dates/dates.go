// Package dates centralizes the date/time parsing the booking API forces on us:
// days as YYYY-MM-DD strings, clock times as HH:MM with occasional seconds or
// fractional tails. Parse failures are explicit results, not errors used for
// control flow, so callers can apply their own fallback policy.
package dates

import (
	"strconv"
	"strings"
	"time"
)

const DayLayout = "2006-01-02"

// ParseDay parses a YYYY-MM-DD string into a local midnight time.
func ParseDay(s string) (time.Time, bool) {
	t, err := time.ParseInLocation(DayLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatDay renders a time as YYYY-MM-DD.
func FormatDay(t time.Time) string {
	return t.Format(DayLayout)
}

// Day truncates a time to local midnight.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses HH:MM, tolerating trailing seconds ("14:30:00") and
// fractional seconds ("14:30:00.123") the backend sometimes emits.
func ParseClock(s string) (Clock, bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return Clock{}, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return Clock{}, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return Clock{}, false
	}
	return Clock{Hour: hour, Minute: minute}, true
}

// String renders the clock as HH:MM.
func (c Clock) String() string {
	return timePad(c.Hour) + ":" + timePad(c.Minute)
}

func timePad(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// Combine merges a YYYY-MM-DD day and an HH:MM clock into a local datetime.
func Combine(day, clock string) (time.Time, bool) {
	d, ok := ParseDay(day)
	if !ok {
		return time.Time{}, false
	}
	c, ok := ParseClock(clock)
	if !ok {
		return time.Time{}, false
	}
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour, c.Minute, 0, 0, d.Location()), true
}
