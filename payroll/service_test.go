package payroll_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/staff-engine/core"
	"github.com/warp/staff-engine/core/store"
	"github.com/warp/staff-engine/payroll"
	"github.com/warp/staff-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func seedMonth(t *testing.T, s core.TxStore, withSchedule bool) {
	ctx := context.Background()
	require.NoError(t, s.SaveTenant(ctx, core.Tenant{ID: "t1", Name: "Shop", QRMode: core.QRModePermanent, Timezone: "UTC"}))
	if withSchedule {
		require.NoError(t, s.SaveSchedule(ctx, core.ScheduleConfig{TenantID: "t1", MonthlyPaidLeave: 4}))
	}
	require.NoError(t, s.SaveEmployee(ctx, core.Employee{ID: "e1", TenantID: "t1", Name: "Ana", BaseSalary: dec(30000), Status: core.EmployeeActive}))
	require.NoError(t, s.SaveEmployee(ctx, core.Employee{ID: "e2", TenantID: "t1", Name: "Budi", Status: core.EmployeeActive}))

	for _, d := range []int{1, 2} {
		require.NoError(t, s.CreateAttendance(ctx, record("e1", core.NewDate(2025, 4, d), core.StatusHalfDay)))
	}
	require.NoError(t, s.CreateAttendance(ctx, record("e1", core.NewDate(2025, 4, 3), core.StatusOnTime)))
	require.NoError(t, s.SaveLeave(ctx, approvedLeave("e1", core.NewDate(2025, 4, 10), core.NewDate(2025, 4, 15))))
}

func newService(s core.TxStore, now time.Time) *payroll.Service {
	svc := payroll.NewService(s, nil)
	svc.Now = func() time.Time { return now }
	return svc
}

var afterApril = time.Date(2025, time.May, 2, 12, 0, 0, 0, time.UTC)

// =============================================================================
// COMPUTE
// =============================================================================

func TestComputePayroll_FromStore(t *testing.T) {
	s := store.NewMemory()
	seedMonth(t, s, true)
	svc := newService(s, afterApril)

	lines, err := svc.ComputePayroll(context.Background(), "t1", april)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	ana := lines[0]
	assert.Equal(t, "e1", ana.EmployeeID)
	assert.Equal(t, 6, ana.LeaveDays)
	assertDecimal(t, 27000, ana.FinalSalary, "final salary")

	assert.True(t, lines[1].Excluded, "employee without salary is excluded, not an error")
}

func TestComputePayroll_Idempotent(t *testing.T) {
	s := store.NewMemory()
	seedMonth(t, s, true)
	svc := newService(s, afterApril)
	ctx := context.Background()

	first, err := svc.ComputePayroll(ctx, "t1", april)
	require.NoError(t, err)
	second, err := svc.ComputePayroll(ctx, "t1", april)
	require.NoError(t, err)

	for i := range first {
		assert.Equal(t, first[i].FinalSalary.String(), second[i].FinalSalary.String())
	}
}

func TestComputePayroll_MissingScheduleMeansNoPaidLeave(t *testing.T) {
	// GIVEN: A tenant without a schedule
	// WHEN: Computing payroll
	// THEN: All 6 leave days are unpaid; the report still succeeds

	s := store.NewMemory()
	seedMonth(t, s, false)

	lines, err := newService(s, afterApril).ComputePayroll(context.Background(), "t1", april)
	require.NoError(t, err)

	assert.Equal(t, 6, lines[0].UnpaidLeave)
	assertDecimal(t, 30000-1000-6000, lines[0].FinalSalary, "final salary")
}

func TestComputePayroll_UnknownTenant(t *testing.T) {
	_, err := newService(store.NewMemory(), afterApril).ComputePayroll(context.Background(), "nope", april)
	assert.ErrorIs(t, err, core.ErrTenantNotFound)
}

func TestComputeMuster_FromStore(t *testing.T) {
	s := store.NewMemory()
	seedMonth(t, s, true)

	rows, err := newService(s, afterApril).ComputeMuster(context.Background(), "t1", april)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 2, rows[0].Totals[payroll.SymbolHalfDay])
	assert.Equal(t, 1, rows[0].Totals[payroll.SymbolPresent])
	assert.Equal(t, 6, rows[0].Totals[payroll.SymbolLeave])
	assert.Equal(t, 21, rows[0].Totals[payroll.SymbolAbsent])
}

// =============================================================================
// ADJUSTMENTS & FINALIZATION
// =============================================================================

func TestAdjustmentThenFinalize(t *testing.T) {
	// GIVEN: A bonus and an advance set for April
	// WHEN: April is finalized
	// THEN: The snapshot carries the adjusted salary and further edits fail

	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	seedMonth(t, s, true)
	svc := newService(s, afterApril)
	ctx := context.Background()

	_, err = svc.SetAdjustment(ctx, "t1", april, "e1", dec(2000), dec(500))
	require.NoError(t, err)
	_, err = svc.SetAdjustment(ctx, "t1", april, "e1", dec(1000), dec(500))
	require.NoError(t, err)

	lines, err := svc.ComputePayroll(ctx, "t1", april)
	require.NoError(t, err)
	assertDecimal(t, 27500, lines[0].FinalSalary, "adjusted final salary")

	run, finalized, err := svc.Finalize(ctx, "t1", april)
	require.NoError(t, err)
	assert.Equal(t, april, run.Month)
	assertDecimal(t, 27500, finalized[0].FinalSalary, "finalized salary")

	stored, storedLines, err := svc.FinalizedRun(ctx, "t1", april)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Len(t, storedLines, 2)
	assertDecimal(t, 27500, storedLines[0].FinalSalary, "stored salary")

	_, err = svc.SetAdjustment(ctx, "t1", april, "e1", dec(9999), dec(0))
	assert.ErrorIs(t, err, core.ErrPayrollFinalized)

	_, _, err = svc.Finalize(ctx, "t1", april)
	assert.ErrorIs(t, err, core.ErrPayrollFinalized)
}

func TestFinalize_RejectsOpenMonth(t *testing.T) {
	s := store.NewMemory()
	seedMonth(t, s, true)
	svc := newService(s, time.Date(2025, time.April, 30, 23, 0, 0, 0, time.UTC))

	_, _, err := svc.Finalize(context.Background(), "t1", april)
	assert.ErrorIs(t, err, core.ErrInvalidPeriod)
}

func TestFinalizedRun_NilWhenOpen(t *testing.T) {
	s := store.NewMemory()
	seedMonth(t, s, true)

	run, lines, err := newService(s, afterApril).FinalizedRun(context.Background(), "t1", april)
	require.NoError(t, err)
	assert.Nil(t, run)
	assert.Nil(t, lines)
}

func TestSetAdjustment_Validation(t *testing.T) {
	s := store.NewMemory()
	seedMonth(t, s, true)
	svc := newService(s, afterApril)
	ctx := context.Background()

	_, err := svc.SetAdjustment(ctx, "t1", april, "e1", dec(-1), dec(0))
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = svc.SetAdjustment(ctx, "t1", april, "ghost", dec(1), dec(0))
	assert.ErrorIs(t, err, core.ErrEmployeeNotFound)
}
