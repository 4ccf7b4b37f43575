/*
Package payroll turns a month of attendance and approved leave into payroll
lines and a day-by-day muster roll.

PURPOSE:
  Both reports are pure functions over a snapshot of the month. They are
  recomputed on demand and never maintained incrementally; running them
  twice with the same inputs gives the same output.

CALCULATION (calculator.go):
  dailyRate            = baseSalary / daysInMonth        (not rounded)
  halfDayCount         = in-month records with status half_day
  presentCount         = in-month records - halfDayCount
  paidLeaveUsed        = min(leaveDays, monthlyPaidLeave)
  unpaidLeave          = max(0, leaveDays - monthlyPaidLeave)
  halfDayDeduction     = round(halfDayCount * dailyRate / 2)
  unpaidLeaveDeduction = round(unpaidLeave * dailyRate)
  totalEarnings        = baseSalary + bonus
  totalDeductions      = halfDayDeduction + unpaidLeaveDeduction + advances
  finalSalary          = round(totalEarnings - totalDeductions)

  Each deduction term is rounded on its own before summing. Rounding is to
  whole currency units, half away from zero.

EXCLUSION:
  An employee with no positive base salary is excluded: every derived
  amount is zero and callers render the line as "N/A".

SEE ALSO:
  - muster.go: The muster roll
  - service.go: Loads the inputs from a store
  - timeoff/aggregate.go: Leave day counts
*/
package payroll

import (
	"github.com/shopspring/decimal"
	"github.com/warp/staff-engine/core"
)

// =============================================================================
// INPUT / LINE
// =============================================================================

// Input is everything the calculator needs for one employee and month.
type Input struct {
	EmployeeID   string
	EmployeeName string
	BaseSalary   decimal.Decimal

	// Month filters Records to the reporting window. DaysInMonth defaults to
	// the month's length when zero.
	Month       core.Month
	DaysInMonth int

	Records          []core.AttendanceRecord
	LeaveDays        int
	MonthlyPaidLeave int

	Bonus    decimal.Decimal
	Advances decimal.Decimal
}

// Line is one employee's payroll for a month.
type Line struct {
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	Excluded     bool   `json:"excluded"`

	BaseSalary  decimal.Decimal `json:"base_salary"`
	DaysInMonth int             `json:"days_in_month"`
	DailyRate   decimal.Decimal `json:"daily_rate"`

	PresentCount  int `json:"present_count"`
	HalfDayCount  int `json:"half_day_count"`
	LeaveDays     int `json:"leave_days"`
	PaidLeaveUsed int `json:"paid_leave_used"`
	UnpaidLeave   int `json:"unpaid_leave"`

	HalfDayDeduction     decimal.Decimal `json:"half_day_deduction"`
	UnpaidLeaveDeduction decimal.Decimal `json:"unpaid_leave_deduction"`
	Bonus                decimal.Decimal `json:"bonus"`
	Advances             decimal.Decimal `json:"advances"`
	TotalEarnings        decimal.Decimal `json:"total_earnings"`
	TotalDeductions      decimal.Decimal `json:"total_deductions"`
	FinalSalary          decimal.Decimal `json:"final_salary"`
}

// =============================================================================
// CALCULATE
// =============================================================================

// Calculate computes a payroll line. Pure function.
func Calculate(in Input) Line {
	days := in.DaysInMonth
	if days <= 0 && in.Month.Year != 0 {
		days = in.Month.Days()
	}

	line := Line{
		EmployeeID:   in.EmployeeID,
		EmployeeName: in.EmployeeName,
		BaseSalary:   in.BaseSalary,
		DaysInMonth:  days,
	}
	if !in.BaseSalary.IsPositive() || days <= 0 {
		line.Excluded = true
		return line
	}

	line.DailyRate = in.BaseSalary.Div(decimal.NewFromInt(int64(days)))
	line.PresentCount, line.HalfDayCount = countAttendance(in.Records, in.Month)

	quota := max(in.MonthlyPaidLeave, 0)
	line.LeaveDays = in.LeaveDays
	line.PaidLeaveUsed = min(in.LeaveDays, quota)
	line.UnpaidLeave = max(0, in.LeaveDays-quota)

	line.HalfDayDeduction = decimal.NewFromInt(int64(line.HalfDayCount)).
		Mul(line.DailyRate).
		Div(decimal.NewFromInt(2)).
		Round(0)
	line.UnpaidLeaveDeduction = decimal.NewFromInt(int64(line.UnpaidLeave)).
		Mul(line.DailyRate).
		Round(0)

	return line.WithAdjustments(in.Bonus, in.Advances)
}

// WithAdjustments re-applies manual bonus and advances. Attendance-derived
// figures are kept as they are, so this can be called any number of times.
func (l Line) WithAdjustments(bonus, advances decimal.Decimal) Line {
	if l.Excluded {
		return l
	}
	l.Bonus = bonus
	l.Advances = advances
	l.TotalEarnings = l.BaseSalary.Add(bonus)
	l.TotalDeductions = l.HalfDayDeduction.Add(l.UnpaidLeaveDeduction).Add(advances)
	l.FinalSalary = l.TotalEarnings.Sub(l.TotalDeductions).Round(0)
	return l
}

// countAttendance returns (present, halfDay) for records inside month.
// A zero month counts every record.
func countAttendance(records []core.AttendanceRecord, month core.Month) (present, halfDay int) {
	window := month.Period()
	for _, r := range records {
		if month.Year != 0 && !window.Contains(r.Day) {
			continue
		}
		if r.Status == core.StatusHalfDay {
			halfDay++
			continue
		}
		present++
	}
	return present, halfDay
}
