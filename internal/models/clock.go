package models

import (
	"fmt"
	"strings"
)

// ClockTime is a time of day stored as minutes since midnight. On the wire it is
// always a zero-padded 24-hour "HH:MM" string.
type ClockTime int

const minutesPerDay = 24 * 60

// ParseClockTime parses a strict "HH:MM" value.
func ParseClockTime(raw string) (ClockTime, error) {
	if len(raw) != 5 || raw[2] != ':' {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", raw)
	}
	hour, okHour := twoDigits(raw[0], raw[1])
	minute, okMinute := twoDigits(raw[3], raw[4])
	if !okHour || !okMinute || hour > 23 || minute > 59 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", raw)
	}
	return ClockTime(hour*60 + minute), nil
}

// MustClockTime panics on malformed input. Intended for tests and constants.
func MustClockTime(raw string) ClockTime {
	t, err := ParseClockTime(raw)
	if err != nil {
		panic(err)
	}
	return t
}

func twoDigits(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}

// Minutes returns minutes since midnight.
func (t ClockTime) Minutes() int {
	return int(t)
}

// Valid reports whether the value is inside a single day.
func (t ClockTime) Valid() bool {
	return t >= 0 && t < minutesPerDay
}

// String renders the zero-padded form.
func (t ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// MarshalText implements encoding.TextMarshaler.
func (t ClockTime) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("clock time %d out of range", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ClockTime) UnmarshalText(text []byte) error {
	parsed, err := ParseClockTime(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start ClockTime
	End   ClockTime
}

// Overlaps reports whether two half-open ranges share at least one minute.
// Ranges that only touch at a boundary do not overlap.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start < other.End && other.Start < r.End
}

func (r TimeRange) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// Weekday is an English weekday name, e.g. "Monday".
type Weekday string

const (
	Monday    Weekday = "Monday"
	Tuesday   Weekday = "Tuesday"
	Wednesday Weekday = "Wednesday"
	Thursday  Weekday = "Thursday"
	Friday    Weekday = "Friday"
	Saturday  Weekday = "Saturday"
	Sunday    Weekday = "Sunday"
)

// Weekdays lists days in calendar order starting Monday.
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// ParseWeekday accepts any casing of an English weekday name.
func ParseWeekday(raw string) (Weekday, error) {
	trimmed := strings.TrimSpace(raw)
	for _, day := range Weekdays {
		if strings.EqualFold(trimmed, string(day)) {
			return day, nil
		}
	}
	return "", fmt.Errorf("invalid day of week %q", raw)
}

// Index returns the position of the day in Weekdays, or -1.
func (d Weekday) Index() int {
	for i, day := range Weekdays {
		if day == d {
			return i
		}
	}
	return -1
}

// Valid reports whether d is a canonical weekday name.
func (d Weekday) Valid() bool {
	return d.Index() >= 0
}

// UnmarshalText normalises casing and rejects unknown names.
func (d *Weekday) UnmarshalText(text []byte) error {
	parsed, err := ParseWeekday(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
