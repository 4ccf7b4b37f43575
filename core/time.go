package core

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Civil calendar day (the unit attendance and leave are keyed by)
// =============================================================================

// Date is a calendar day with no time-of-day and no zone. It is stored as
// midnight UTC so that comparison and arithmetic never cross a DST edge.
type Date struct {
	t time.Time
}

const dateLayout = "2006-01-02"

// NewDate builds a Date. Out-of-range values are normalized like time.Date.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day an instant falls on in loc.
// The tenant's operating timezone decides where "today" starts.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return NewDate(local.Year(), local.Month(), local.Day())
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return Date{t: t}, nil
}

// Comparison
func (d Date) Before(o Date) bool        { return d.t.Before(o.t) }
func (d Date) After(o Date) bool         { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool         { return d.t.Equal(o.t) }
func (d Date) BeforeOrEqual(o Date) bool { return !d.After(o) }
func (d Date) AfterOrEqual(o Date) bool  { return !d.Before(o) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Properties
func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool          { return d.t.IsZero() }
func (d Date) String() string        { return d.t.Format(dateLayout) }
func (d Date) Time() time.Time       { return d.t }

// At returns the instant of the given clock time on this day in loc.
func (d Date) At(c Clock, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour, c.Minute, 0, 0, loc)
}

// DaysBetween returns to - from in whole days.
func DaysBetween(from, to Date) int {
	return int(to.t.Sub(from.t).Hours() / 24)
}

// MaxDate / MinDate
func MaxDate(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

func MinDate(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}

// =============================================================================
// CLOCK - Wall-clock time of day ("HH:MM") used by business hours
// =============================================================================

type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" (24h). "HH:MM:SS" is accepted and seconds dropped.
func ParseClock(s string) (Clock, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
	}
	return Clock{}, fmt.Errorf("invalid clock time %q (use HH:MM)", s)
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// =============================================================================
// MONTH - Reporting window for payroll and muster
// =============================================================================

type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses "YYYY-MM".
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("%w: month %q (use YYYY-MM)", ErrInvalidPeriod, s)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// MonthOf returns the month containing d.
func MonthOf(d Date) Month { return Month{Year: d.Year(), Month: d.Month()} }

func (m Month) String() string { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)) }
func (m Month) Start() Date    { return NewDate(m.Year, m.Month, 1) }
func (m Month) End() Date      { return NewDate(m.Year, m.Month+1, 1).AddDays(-1) }
func (m Month) Days() int      { return m.End().Day() }
func (m Month) Period() Period { return Period{Start: m.Start(), End: m.End()} }
func (m Month) Next() Month    { return MonthOf(m.End().AddDays(1)) }
func (m Month) Prev() Month    { return MonthOf(m.Start().AddDays(-1)) }

func (m Month) Before(o Month) bool {
	return m.Year < o.Year || (m.Year == o.Year && m.Month < o.Month)
}
