package attendance

import (
	"time"

	"github.com/warp/staff-engine/core"
)

// =============================================================================
// PUNCTUALITY
// =============================================================================

// ClassifyCheckIn decides On-time or Late for a check-in at the given instant.
// The weekday and shift start are read in loc, the tenant's timezone.
//
// A closed weekday has no shift to be late for, so it is always on time.
// Otherwise deadline = shift start + grace period and a check-in strictly
// after the deadline is late.
func ClassifyCheckIn(sc core.ScheduleConfig, at time.Time, loc *time.Location) core.AttendanceStatus {
	if loc == nil {
		loc = time.UTC
	}
	day := core.DateOf(at, loc)
	hours := sc.For(day.Weekday())
	if !hours.IsOpen {
		return core.StatusOnTime
	}

	deadline := day.At(hours.Start, loc).Add(time.Duration(sc.GracePeriodMinutes) * time.Minute)
	if at.After(deadline) {
		return core.StatusLate
	}
	return core.StatusOnTime
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Action is what a scan did to the day.
type Action string

const (
	ActionCheckedIn  Action = "checked_in"
	ActionCheckedOut Action = "checked_out"
)

// NextAction returns the transition a scan performs from the given day state.
// Closed days reject further scans with core.ErrDayAlreadyComplete.
func NextAction(state core.DayState) (Action, error) {
	switch state {
	case core.DayNotStarted:
		return ActionCheckedIn, nil
	case core.DayOpen:
		return ActionCheckedOut, nil
	default:
		return "", core.ErrDayAlreadyComplete
	}
}
