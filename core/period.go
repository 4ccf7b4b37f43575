package core

// =============================================================================
// PERIOD - Inclusive day range
// =============================================================================

// Period is an inclusive range of calendar days [Start, End].
//
// Examples:
//   - A reporting month: Mar 1 - Mar 31
//   - A leave request: Feb 27 - Mar 2
type Period struct {
	Start Date
	End   Date
}

// Valid reports whether End is not before Start.
func (p Period) Valid() bool { return !p.End.Before(p.Start) }

// Contains returns true if d is within [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Overlaps returns true if the two periods share at least one day.
func (p Period) Overlaps(o Period) bool {
	return !p.Start.After(o.End) && !o.Start.After(p.End)
}

// Clip returns the part of p inside window. ok is false when they don't overlap.
func (p Period) Clip(window Period) (Period, bool) {
	if !p.Overlaps(window) {
		return Period{}, false
	}
	return Period{
		Start: MaxDate(p.Start, window.Start),
		End:   MinDate(p.End, window.End),
	}, true
}

// Len is the number of days in the period, inclusive of both ends.
func (p Period) Len() int {
	if !p.Valid() {
		return 0
	}
	return DaysBetween(p.Start, p.End) + 1
}

// Days returns every day in the period.
func (p Period) Days() []Date {
	days := make([]Date, 0, p.Len())
	for d := p.Start; d.BeforeOrEqual(p.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
