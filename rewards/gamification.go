/*
Package rewards implements the punctuality gamification rule.

PURPOSE:
  Every check-in moves an employee's point balance and on-time streak.
  Punctual employees climb, late ones drop back to zero streak and lose a
  few points. A streak milestone pays a one-time bonus.

RULE (DefaultRule):
  On-time check-in:   points += 10, streak += 1
  Any other status:   points = max(0, points - 5), streak = 0
  Streak milestone:   new streak > 0 and streak % 5 == 0 → +50 in the same update

  Five consecutive on-time check-ins from zero therefore yield
  5×10 + 50 = 100 points and streak 5.

WHEN IT RUNS:
  Exactly once per check-in (NotStarted → Open). Never on check-out, never
  for manual entries. Award writes the new stats and the ledger entry through
  the store it is given; the attendance machine passes the transactional
  store so the record, the stats and the entry commit together.

SEE ALSO:
  - core/ledger.go: Append-only point ledger
  - attendance/machine.go: Calls Award inside WithTx
*/
package rewards

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/staff-engine/core"
)

// =============================================================================
// RULE
// =============================================================================

// Rule holds the point amounts of the gamification scheme.
type Rule struct {
	OnTimePoints int // added on an on-time check-in
	LatePenalty  int // removed on any other check-in, floored at zero
	StreakLength int // milestone every N consecutive on-time check-ins
	StreakBonus  int // paid when the milestone is reached
}

// DefaultRule is the scheme every tenant runs today.
var DefaultRule = Rule{
	OnTimePoints: 10,
	LatePenalty:  5,
	StreakLength: 5,
	StreakBonus:  50,
}

// Outcome is the result of applying the rule to one check-in.
type Outcome struct {
	Points int
	Streak int
	Delta  int  // Points - previous points
	Bonus  bool // streak milestone reached
	Reason string
}

// Apply computes the new balance and streak after a check-in with the given
// status. Pure function.
func (r Rule) Apply(points, streak int, status core.AttendanceStatus) Outcome {
	before := points
	reason := "on_time"

	if status == core.StatusOnTime {
		points += r.OnTimePoints
		streak++
	} else {
		points -= r.LatePenalty
		if points < 0 {
			points = 0
		}
		streak = 0
		reason = string(status)
	}

	bonus := r.StreakLength > 0 && streak > 0 && streak%r.StreakLength == 0
	if bonus {
		points += r.StreakBonus
		reason += "+streak_bonus"
	}

	return Outcome{
		Points: points,
		Streak: streak,
		Delta:  points - before,
		Bonus:  bonus,
		Reason: reason,
	}
}

// Apply runs DefaultRule.
func Apply(points, streak int, status core.AttendanceStatus) Outcome {
	return DefaultRule.Apply(points, streak, status)
}

// =============================================================================
// AWARD - Rule + persistence
// =============================================================================

// Award applies DefaultRule to emp for a check-in on day, persists the new
// points/streak and appends the ledger entry. Callers pass the store of an
// open transaction.
//
// A second award for the same (tenant, employee, day) fails with
// core.ErrDuplicateIdempotencyKey.
func Award(ctx context.Context, store core.Store, emp core.Employee, day core.Date, status core.AttendanceStatus, now time.Time) (Outcome, error) {
	out := DefaultRule.Apply(emp.Points, emp.Streak, status)

	entry := core.PointTransaction{
		ID:             uuid.NewString(),
		TenantID:       emp.TenantID,
		EmployeeID:     emp.ID,
		Day:            day,
		Delta:          out.Delta,
		PointsAfter:    out.Points,
		StreakAfter:    out.Streak,
		Reason:         out.Reason,
		IdempotencyKey: core.CheckInKey(emp.TenantID, emp.ID, day),
		CreatedAt:      now,
	}
	if err := core.NewPointLedger(store).Append(ctx, entry); err != nil {
		return Outcome{}, fmt.Errorf("award points: %w", err)
	}

	if err := store.UpdateEmployeeStats(ctx, emp.TenantID, emp.ID, out.Points, out.Streak); err != nil {
		return Outcome{}, fmt.Errorf("award points: %w", err)
	}
	return out, nil
}
