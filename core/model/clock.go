package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Minute is a time of day expressed in minutes since midnight.
// 1440 is accepted as the end of day.
type Minute int

// EndOfDay is the exclusive upper bound of a day.
const EndOfDay Minute = 24 * 60

// ParseMinute parses an "HH:MM" clock value. "24:00" is allowed as an end bound.
func ParseMinute(s string) (Minute, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return Minute(h*60 + m), nil
}

// MustMinute is ParseMinute for literals in tests and fixtures.
func MustMinute(s string) Minute {
	m, err := ParseMinute(s)
	if err != nil {
		panic(err)
	}
	return m
}

// String formats the minute as HH:MM.
func (m Minute) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// Valid reports whether m lies within a day.
func (m Minute) Valid() bool { return m >= 0 && m <= EndOfDay }

// MarshalText encodes the minute as HH:MM.
func (m Minute) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText decodes an HH:MM value.
func (m *Minute) UnmarshalText(b []byte) error {
	v, err := ParseMinute(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Date is a calendar day formatted as YYYY-MM-DD.
type Date string

const dateLayout = "2006-01-02"

// ParseDate validates s and returns it as a Date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date(t.Format(dateLayout)), nil
}

// DateOf returns the calendar day of t in its own location.
func DateOf(t time.Time) Date { return Date(t.Format(dateLayout)) }

// Time returns midnight UTC of the date. The zero time is returned for invalid dates.
func (d Date) Time() time.Time {
	t, err := time.Parse(dateLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Valid reports whether d parses as a calendar day.
func (d Date) Valid() bool {
	_, err := time.Parse(dateLayout, string(d))
	return err == nil
}

// Weekday returns 0 (Sunday) through 6 (Saturday).
func (d Date) Weekday() int { return int(d.Time().Weekday()) }

// AddDays shifts the date by n days.
func (d Date) AddDays(n int) Date { return Date(d.Time().AddDate(0, 0, n).Format(dateLayout)) }

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool { return d.Time().Before(o.Time()) }

// WeekStart returns the Monday of the week containing d.
func (d Date) WeekStart() Date {
	offset := (d.Weekday() + 6) % 7
	return d.AddDays(-offset)
}

// WeekDates returns the seven consecutive days starting at d.
func (d Date) WeekDates() []Date {
	out := make([]Date, 7)
	for i := range out {
		out[i] = d.AddDays(i)
	}
	return out
}

// NormalizeWeekday folds any weekday number into 0..6 so that 7 and 0 both mean Sunday.
func NormalizeWeekday(w int) int {
	return ((w % 7) + 7) % 7
}
