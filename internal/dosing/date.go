package dosing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout    = "2006-01-02"
	secondsPerDay = 24 * 60 * 60
)

// CivilDate is a calendar date without a time-of-day or zone. Values are
// immutable; every arithmetic method returns a new value.
type CivilDate struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate builds a CivilDate, normalizing out-of-range components the same
// way time.Date does (e.g. Jan 32 becomes Feb 1).
func NewDate(year int, month time.Month, day int) CivilDate {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC), time.UTC)
}

// ParseDate parses a "YYYY-MM-DD" string.
func ParseDate(s string) (CivilDate, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return CivilDate{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return CivilDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// DateOf returns the civil date of t as observed in loc.
func DateOf(t time.Time, loc *time.Location) CivilDate {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return CivilDate{Year: y, Month: m, Day: d}
}

// IsZero reports whether d is the zero value.
func (d CivilDate) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

func (d CivilDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// midnightUTC anchors the date on the UTC timeline so day differences are
// never affected by DST transitions.
func (d CivilDate) midnightUTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Time returns midnight UTC on d, the form stored in DATE columns.
func (d CivilDate) Time() time.Time { return d.midnightUTC() }

// AddDays returns the date n days after d (n may be negative).
func (d CivilDate) AddDays(n int) CivilDate {
	return DateOf(d.midnightUTC().AddDate(0, 0, n), time.UTC)
}

// DaysSince returns the whole number of days from other to d. It counts on
// Unix day numbers since time.Duration saturates past about 292 years.
func (d CivilDate) DaysSince(other CivilDate) int {
	return int(d.dayNumber() - other.dayNumber())
}

func (d CivilDate) dayNumber() int64 {
	return d.midnightUTC().Unix() / secondsPerDay
}

// Weekday returns the day of the week of d.
func (d CivilDate) Weekday() time.Weekday {
	return d.midnightUTC().Weekday()
}

func (d CivilDate) Before(other CivilDate) bool { return d.compare(other) < 0 }

func (d CivilDate) After(other CivilDate) bool { return d.compare(other) > 0 }

func (d CivilDate) Equal(other CivilDate) bool { return d.compare(other) == 0 }

func (d CivilDate) compare(other CivilDate) int {
	switch {
	case d.Year != other.Year:
		return d.Year - other.Year
	case d.Month != other.Month:
		return int(d.Month) - int(other.Month)
	default:
		return d.Day - other.Day
	}
}

// At returns the instant at which the wall clock in loc shows clock on d.
func (d CivilDate) At(clock ClockTime, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, clock.Hour(), clock.Minute(), 0, 0, loc)
}

// MarshalText encodes the date as "YYYY-MM-DD".
func (d CivilDate) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a "YYYY-MM-DD" string. Full RFC 3339 timestamps are
// accepted too and truncated to their date part.
func (d *CivilDate) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ClockTime is a wall-clock time of day with minute precision.
type ClockTime struct {
	minutes int
}

// ParseClock parses "HH:MM" (24h). Single-digit hours ("8:05") are accepted.
func ParseClock(s string) (ClockTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return ClockTime{}, fmt.Errorf("invalid clock time %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return ClockTime{}, fmt.Errorf("invalid hour in clock time %q", s)
	}
	if len(mm) != 2 {
		return ClockTime{}, fmt.Errorf("invalid minute in clock time %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return ClockTime{}, fmt.Errorf("invalid minute in clock time %q", s)
	}
	return ClockTime{minutes: h*60 + m}, nil
}

// ClockOf returns the wall-clock time of t in loc, truncated to the minute.
func ClockOf(t time.Time, loc *time.Location) ClockTime {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return ClockTime{minutes: lt.Hour()*60 + lt.Minute()}
}

func (c ClockTime) Hour() int    { return c.minutes / 60 }
func (c ClockTime) Minute() int  { return c.minutes % 60 }
func (c ClockTime) Minutes() int { return c.minutes }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}
