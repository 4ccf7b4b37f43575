/*
Package timeoff resolves approved leave into the day counts payroll and the
muster roll consume, and owns the leave request lifecycle.

PURPOSE:
  A leave request covers an inclusive date range. Reports work on a month,
  so every approved request overlapping the month is clipped to it:

    effectiveStart = max(startDate, monthStart)
    effectiveEnd   = min(endDate,   monthEnd)
    contribution   = effectiveEnd - effectiveStart + 1 days

  Contributions are summed per employee. Only Approved requests count.

PARTIAL-DAY LEAVE:
  A time-bounded request (StartTime/EndTime set, single date) counts as one
  full calendar day. Hours are not pro-rated.

OVERLAPPING REQUESTS:
  Two approved requests covering the same date both contribute to the day
  count; the covered-date set used by the muster is their union.

SEE ALSO:
  - payroll/calculator.go: Consumes Days
  - payroll/muster.go: Consumes Covered
*/
package timeoff

import (
	"context"

	"github.com/warp/staff-engine/core"
)

// =============================================================================
// AGGREGATION
// =============================================================================

// Aggregation is the leave picture of one reporting window.
type Aggregation struct {
	Window core.Period
	// Days is the total leave days per employee inside the window.
	Days map[string]int
	// Covered is the set of dates per employee covered by approved leave.
	Covered map[string]map[core.Date]bool
}

// DaysFor returns the employee's leave days in the window (0 if none).
func (a Aggregation) DaysFor(employeeID string) int { return a.Days[employeeID] }

// IsCovered reports whether the employee is on approved leave on d.
func (a Aggregation) IsCovered(employeeID string, d core.Date) bool {
	return a.Covered[employeeID][d]
}

// Aggregate clips every approved request to window and sums the
// contributions per employee. Requests that are not approved, or that do not
// intersect the window, are ignored. Pure function.
func Aggregate(requests []core.LeaveRequest, window core.Period) Aggregation {
	agg := Aggregation{
		Window:  window,
		Days:    make(map[string]int),
		Covered: make(map[string]map[core.Date]bool),
	}

	for _, r := range requests {
		if r.Status != core.LeaveApproved {
			continue
		}
		clipped, ok := r.Period().Clip(window)
		if !ok {
			continue
		}

		agg.Days[r.EmployeeID] += clipped.Len()

		covered := agg.Covered[r.EmployeeID]
		if covered == nil {
			covered = make(map[core.Date]bool)
			agg.Covered[r.EmployeeID] = covered
		}
		for _, d := range clipped.Days() {
			covered[d] = true
		}
	}
	return agg
}

// =============================================================================
// AGGREGATOR - Aggregate on top of a store
// =============================================================================

// Aggregator loads approved leave for a tenant and aggregates it.
type Aggregator struct {
	Store core.LeaveStore
}

func NewAggregator(store core.LeaveStore) *Aggregator {
	return &Aggregator{Store: store}
}

// ForMonth aggregates the tenant's approved leave in month. employeeID
// restricts the result to one employee; empty means everyone.
func (a *Aggregator) ForMonth(ctx context.Context, tenantID string, month core.Month, employeeID string) (Aggregation, error) {
	return a.ForPeriod(ctx, tenantID, month.Period(), employeeID)
}

// ForPeriod aggregates over an arbitrary window.
func (a *Aggregator) ForPeriod(ctx context.Context, tenantID string, window core.Period, employeeID string) (Aggregation, error) {
	if !window.Valid() {
		return Aggregation{}, core.ErrInvalidPeriod
	}
	requests, err := a.Store.ListApprovedLeave(ctx, tenantID, window)
	if err != nil {
		return Aggregation{}, err
	}
	if employeeID != "" {
		filtered := requests[:0]
		for _, r := range requests {
			if r.EmployeeID == employeeID {
				filtered = append(filtered, r)
			}
		}
		requests = filtered
	}
	return Aggregate(requests, window), nil
}
