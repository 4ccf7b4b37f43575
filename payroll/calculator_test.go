package payroll_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/staff-engine/core"
	"github.com/warp/staff-engine/payroll"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var april = core.Month{Year: 2025, Month: time.April}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func record(employeeID string, day core.Date, status core.AttendanceStatus) core.AttendanceRecord {
	return core.AttendanceRecord{
		ID:         employeeID + "-" + day.String(),
		TenantID:   "t1",
		EmployeeID: employeeID,
		Day:        day,
		CheckIn:    day.At(core.Clock{Hour: 9}, time.UTC),
		Status:     status,
	}
}

func assertDecimal(t *testing.T, want int64, got decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), "%s: want %d, got %s", field, want, got)
}

// =============================================================================
// CALCULATION
// =============================================================================

func TestCalculate_ReferenceScenario(t *testing.T) {
	// GIVEN: 30000 salary over 30 days, 2 half days, 6 leave days, quota 4
	// WHEN: Calculating
	// THEN: 1000 half-day + 2000 unpaid leave deductions, final 27000

	records := []core.AttendanceRecord{
		record("e1", april.Start(), core.StatusHalfDay),
		record("e1", april.Start().AddDays(1), core.StatusHalfDay),
		record("e1", april.Start().AddDays(2), core.StatusOnTime),
		record("e1", april.Start().AddDays(3), core.StatusLate),
	}

	line := payroll.Calculate(payroll.Input{
		EmployeeID:       "e1",
		BaseSalary:       dec(30000),
		DaysInMonth:      30,
		Records:          records,
		LeaveDays:        6,
		MonthlyPaidLeave: 4,
	})

	assert.False(t, line.Excluded)
	assertDecimal(t, 1000, line.DailyRate, "daily rate")
	assert.Equal(t, 2, line.HalfDayCount)
	assert.Equal(t, 2, line.PresentCount)
	assert.Equal(t, 4, line.PaidLeaveUsed)
	assert.Equal(t, 2, line.UnpaidLeave)
	assertDecimal(t, 1000, line.HalfDayDeduction, "half-day deduction")
	assertDecimal(t, 2000, line.UnpaidLeaveDeduction, "unpaid leave deduction")
	assertDecimal(t, 30000, line.TotalEarnings, "total earnings")
	assertDecimal(t, 3000, line.TotalDeductions, "total deductions")
	assertDecimal(t, 27000, line.FinalSalary, "final salary")
}

func TestCalculate_LeaveWithinQuotaIsFree(t *testing.T) {
	line := payroll.Calculate(payroll.Input{
		BaseSalary: dec(30000), Month: april, LeaveDays: 3, MonthlyPaidLeave: 4,
	})

	assert.Equal(t, 30, line.DaysInMonth, "defaults to the month length")
	assert.Equal(t, 3, line.PaidLeaveUsed)
	assert.Equal(t, 0, line.UnpaidLeave)
	assertDecimal(t, 30000, line.FinalSalary, "final salary")
}

func TestCalculate_RoundsEachTermSeparately(t *testing.T) {
	// GIVEN: 31000 over 31 days is 1000/day; 10000 over 31 days is 322.58.../day
	// WHEN: One half day and one unpaid day
	// THEN: 161.29 -> 161 and 322.58 -> 323 are rounded before summing

	line := payroll.Calculate(payroll.Input{
		BaseSalary:  dec(10000),
		DaysInMonth: 31,
		Records:     []core.AttendanceRecord{record("e1", core.NewDate(2025, 3, 3), core.StatusHalfDay)},
		LeaveDays:   1,
	})

	assertDecimal(t, 161, line.HalfDayDeduction, "half-day deduction")
	assertDecimal(t, 323, line.UnpaidLeaveDeduction, "unpaid leave deduction")
	assertDecimal(t, 10000-161-323, line.FinalSalary, "final salary")
}

func TestCalculate_RoundsHalfAwayFromZero(t *testing.T) {
	// 1 half day at 3/day = 1.5 -> 2
	line := payroll.Calculate(payroll.Input{
		BaseSalary:  dec(90),
		DaysInMonth: 30,
		Records:     []core.AttendanceRecord{record("e1", core.NewDate(2025, 4, 1), core.StatusHalfDay)},
	})
	assertDecimal(t, 2, line.HalfDayDeduction, "half-day deduction")
	assertDecimal(t, 88, line.FinalSalary, "final salary")
}

func TestCalculate_ExcludedWithoutSalary(t *testing.T) {
	for _, salary := range []decimal.Decimal{decimal.Zero, dec(-100)} {
		line := payroll.Calculate(payroll.Input{
			EmployeeID: "e1", BaseSalary: salary, Month: april, LeaveDays: 10,
			Bonus: dec(500),
		})
		assert.True(t, line.Excluded)
		assert.True(t, line.FinalSalary.IsZero())
		assert.True(t, line.TotalDeductions.IsZero())
		assert.Equal(t, 0, line.UnpaidLeave)
	}
}

func TestCalculate_IgnoresRecordsOutsideMonth(t *testing.T) {
	records := []core.AttendanceRecord{
		record("e1", april.Start().AddDays(-1), core.StatusHalfDay),
		record("e1", april.Start(), core.StatusOnTime),
		record("e1", april.Start().AddDays(1), core.StatusAbsent),
	}

	line := payroll.Calculate(payroll.Input{BaseSalary: dec(30000), Month: april, Records: records})

	assert.Equal(t, 2, line.PresentCount)
	assert.Equal(t, 0, line.HalfDayCount)
}

func TestCalculate_AbsentEntryIsARecord(t *testing.T) {
	// GIVEN: An administrative absent entry and a half day
	records := []core.AttendanceRecord{
		record("e1", core.NewDate(2025, 4, 3), core.StatusAbsent),
		record("e1", core.NewDate(2025, 4, 4), core.StatusHalfDay),
	}

	// WHEN: Calculating the month
	line := payroll.Calculate(payroll.Input{BaseSalary: dec(30000), Month: april, Records: records})

	// THEN: present is records minus half days
	assert.Equal(t, 1, line.PresentCount)
	assert.Equal(t, 1, line.HalfDayCount)
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

func TestWithAdjustments_Reapplies(t *testing.T) {
	// GIVEN: A computed line
	// WHEN: Bonus and advances are applied, then changed
	// THEN: Only the totals move; attendance figures stay

	base := payroll.Calculate(payroll.Input{
		BaseSalary: dec(30000), DaysInMonth: 30, LeaveDays: 6, MonthlyPaidLeave: 4,
	})

	first := base.WithAdjustments(dec(1500), dec(500))
	assertDecimal(t, 31500, first.TotalEarnings, "earnings")
	assertDecimal(t, 2500, first.TotalDeductions, "deductions")
	assertDecimal(t, 29000, first.FinalSalary, "final")

	second := first.WithAdjustments(dec(0), dec(0))
	assert.Equal(t, base.FinalSalary.String(), second.FinalSalary.String())
	assert.Equal(t, base.UnpaidLeaveDeduction.String(), second.UnpaidLeaveDeduction.String())
}

func TestCalculate_Idempotent(t *testing.T) {
	in := payroll.Input{
		BaseSalary:       dec(27500),
		Month:            april,
		Records:          []core.AttendanceRecord{record("e1", april.Start(), core.StatusHalfDay)},
		LeaveDays:        5,
		MonthlyPaidLeave: 2,
		Bonus:            dec(250),
		Advances:         dec(1000),
	}
	assert.Equal(t, payroll.Calculate(in), payroll.Calculate(in))
}
