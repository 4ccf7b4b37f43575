package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/staff-engine/core"
	"github.com/warp/staff-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.SaveTenant(ctx, core.Tenant{ID: "t1", Name: "Shop", QRMode: core.QRModeDynamic, Timezone: "Asia/Jakarta"}))
	require.NoError(t, store.SaveEmployee(ctx, core.Employee{
		ID: "e1", TenantID: "t1", Name: "Ana", BaseSalary: decimal.NewFromInt(30000), Status: core.EmployeeActive,
	}))
	return store
}

func openRecord(id string, day core.Date) core.AttendanceRecord {
	return core.AttendanceRecord{
		ID:         id,
		TenantID:   "t1",
		EmployeeID: "e1",
		Day:        day,
		CheckIn:    day.At(core.Clock{Hour: 9}, time.UTC),
		Status:     core.StatusOnTime,
		Source:     core.SourceScan,
	}
}

// =============================================================================
// TENANT / SCHEDULE
// =============================================================================

func TestStore_TenantAndSchedule_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tenant, err := store.GetTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, core.QRModeDynamic, tenant.QRMode)
	assert.Equal(t, "Asia/Jakarta", tenant.Timezone)

	sc := core.ScheduleConfig{TenantID: "t1", GracePeriodMinutes: 15, MonthlyPaidLeave: 2}
	sc.Days[time.Monday] = core.DayHours{IsOpen: true, Start: core.Clock{Hour: 9}, End: core.Clock{Hour: 17, Minute: 30}}
	require.NoError(t, store.SaveSchedule(ctx, sc))

	got, err := store.GetSchedule(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, sc, got)

	_, err = store.GetSchedule(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrScheduleNotFound)
}

func TestStore_GetEmployee_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetEmployee(context.Background(), "t1", "nobody")
	assert.ErrorIs(t, err, core.ErrEmployeeNotFound)

	// Same id under another tenant is a different employee
	_, err = store.GetEmployee(context.Background(), "t2", "e1")
	assert.ErrorIs(t, err, core.ErrEmployeeNotFound)
}

func TestStore_Employee_SalaryPrecisionPreserved(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveEmployee(ctx, core.Employee{
		ID: "e2", TenantID: "t1", Name: "Budi", BaseSalary: decimal.RequireFromString("12345.67"),
	}))

	e, err := store.GetEmployee(ctx, "t1", "e2")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("12345.67").Equal(e.BaseSalary))
	assert.True(t, e.IsActive(), "empty status defaults to active")
}

// =============================================================================
// ATTENDANCE - CONDITIONAL WRITES
// =============================================================================

func TestStore_CreateAttendance_SecondRecordSameDay_Conflicts(t *testing.T) {
	// GIVEN: An open record for March 10
	// WHEN: Another check-in for the same day is inserted
	// THEN: The unique day index rejects it as a concurrent modification

	store := newTestStore(t)
	ctx := context.Background()
	day := core.NewDate(2025, time.March, 10)

	require.NoError(t, store.CreateAttendance(ctx, openRecord("a1", day)))
	err := store.CreateAttendance(ctx, openRecord("a2", day))

	assert.ErrorIs(t, err, core.ErrConcurrentModification)
}

func TestStore_CloseAttendance_OnlyOnce(t *testing.T) {
	// GIVEN: An open record
	// WHEN: It is closed twice
	// THEN: The second close reports the day as complete and keeps the first check-out

	store := newTestStore(t)
	ctx := context.Background()
	day := core.NewDate(2025, time.March, 10)
	require.NoError(t, store.CreateAttendance(ctx, openRecord("a1", day)))

	first := day.At(core.Clock{Hour: 17}, time.UTC)
	require.NoError(t, store.CloseAttendance(ctx, "t1", "a1", first))

	err := store.CloseAttendance(ctx, "t1", "a1", first.Add(time.Hour))
	assert.ErrorIs(t, err, core.ErrDayAlreadyComplete)
	var dce *core.DayCompleteError
	require.True(t, errors.As(err, &dce))
	assert.Equal(t, "a1", dce.RecordID)

	rec, err := store.GetAttendance(ctx, "t1", "e1", day)
	require.NoError(t, err)
	require.NotNil(t, rec.CheckOut)
	assert.True(t, rec.CheckOut.Equal(first))
	assert.Equal(t, core.DayClosed, core.StateOf(rec))
}

func TestStore_GetAttendance_NoneIsNil(t *testing.T) {
	store := newTestStore(t)

	rec, err := store.GetAttendance(context.Background(), "t1", "e1", core.NewDate(2025, time.March, 10))
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestStore_UpsertAttendance_ReplacesDayRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	day := core.NewDate(2025, time.March, 10)
	require.NoError(t, store.CreateAttendance(ctx, openRecord("a1", day)))

	manual := openRecord("a9", day)
	manual.Status = core.StatusHalfDay
	manual.Source = core.SourceManual
	manual.Reason = "left early"
	require.NoError(t, store.UpsertAttendance(ctx, manual))

	records, err := store.ListAttendance(ctx, "t1", core.Period{Start: day, End: day})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, core.StatusHalfDay, records[0].Status)
	assert.Equal(t, core.SourceManual, records[0].Source)
	assert.Equal(t, "left early", records[0].Reason)
}

// =============================================================================
// LEAVE
// =============================================================================

func TestStore_ListApprovedLeave_OverlapAndStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	leaves := []core.LeaveRequest{
		{ID: "l1", TenantID: "t1", EmployeeID: "e1", StartDate: core.NewDate(2025, 2, 27), EndDate: core.NewDate(2025, 3, 2), Status: core.LeaveApproved},
		{ID: "l2", TenantID: "t1", EmployeeID: "e1", StartDate: core.NewDate(2025, 3, 10), EndDate: core.NewDate(2025, 3, 10), Status: core.LeavePending},
		{ID: "l3", TenantID: "t1", EmployeeID: "e1", StartDate: core.NewDate(2025, 4, 1), EndDate: core.NewDate(2025, 4, 2), Status: core.LeaveApproved},
	}
	for _, l := range leaves {
		require.NoError(t, store.SaveLeave(ctx, l))
	}

	march := core.Month{Year: 2025, Month: time.March}.Period()
	got, err := store.ListApprovedLeave(ctx, "t1", march)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "l1", got[0].ID)

	require.NoError(t, store.SetLeaveStatus(ctx, "l2", core.LeaveApproved))
	got, err = store.ListApprovedLeave(ctx, "t1", march)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	assert.ErrorIs(t, store.SetLeaveStatus(ctx, "nope", core.LeaveApproved), core.ErrLeaveNotFound)
}

func TestStore_PartialDayLeave_KeepsClockTimes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	start, end := core.Clock{Hour: 13}, core.Clock{Hour: 17}

	require.NoError(t, store.SaveLeave(ctx, core.LeaveRequest{
		ID: "l1", TenantID: "t1", EmployeeID: "e1",
		StartDate: core.NewDate(2025, 3, 5), EndDate: core.NewDate(2025, 3, 5),
		StartTime: &start, EndTime: &end, Status: core.LeavePending,
	}))

	got, err := store.GetLeave(ctx, "l1")
	require.NoError(t, err)
	assert.True(t, got.IsPartialDay())
	assert.Equal(t, start, *got.StartTime)
	assert.Equal(t, end, *got.EndTime)
}

// =============================================================================
// POINTS / PAYROLL
// =============================================================================

func TestStore_AppendPoints_DuplicateKeyRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	day := core.NewDate(2025, time.March, 10)

	tx := core.PointTransaction{ID: "p1", TenantID: "t1", EmployeeID: "e1", Day: day, Delta: 10, PointsAfter: 10, StreakAfter: 1,
		IdempotencyKey: core.CheckInKey("t1", "e1", day)}
	require.NoError(t, store.AppendPoints(ctx, tx))

	tx.ID = "p2"
	assert.ErrorIs(t, store.AppendPoints(ctx, tx), core.ErrDuplicateIdempotencyKey)

	history, err := store.ListPoints(ctx, "t1", "e1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestStore_ListPoints_OrderedWithinOneSecond(t *testing.T) {
	// GIVEN: Entries a few milliseconds apart inside the same second
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, time.March, 10, 9, 0, 5, 0, time.UTC)
	offsets := []time.Duration{0, 100 * time.Millisecond, 150 * time.Millisecond, 999 * time.Millisecond}

	for i, off := range offsets {
		day := core.NewDate(2025, time.March, 10+i)
		require.NoError(t, store.AppendPoints(ctx, core.PointTransaction{
			ID: fmt.Sprintf("p%d", i), TenantID: "t1", EmployeeID: "e1", Day: day, Delta: 10,
			IdempotencyKey: core.CheckInKey("t1", "e1", day), CreatedAt: base.Add(off),
		}))
	}

	// WHEN: Reading the ledger
	history, err := store.ListPoints(ctx, "t1", "e1")
	require.NoError(t, err)

	// THEN: Oldest first, timestamps intact
	require.Len(t, history, len(offsets))
	for i, off := range offsets {
		assert.Equal(t, fmt.Sprintf("p%d", i), history[i].ID)
		assert.True(t, base.Add(off).Equal(history[i].CreatedAt))
	}
}

func TestStore_PayrollRun_FinalizeOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	month := core.Month{Year: 2025, Month: time.March}

	run, err := store.GetPayrollRun(ctx, "t1", month)
	require.NoError(t, err)
	assert.Nil(t, run)

	r := core.PayrollRun{TenantID: "t1", Month: month, FinalizedAt: time.Now().UTC(), LinesJSON: "[]"}
	require.NoError(t, store.SavePayrollRun(ctx, r))
	assert.ErrorIs(t, store.SavePayrollRun(ctx, r), core.ErrPayrollFinalized)

	run, err = store.GetPayrollRun(ctx, "t1", month)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "[]", run.LinesJSON)
}

func TestStore_Adjustments_UpsertPerEmployeeMonth(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	month := core.Month{Year: 2025, Month: time.March}

	require.NoError(t, store.SaveAdjustment(ctx, core.PayrollAdjustment{TenantID: "t1", EmployeeID: "e1", Month: month, Bonus: decimal.NewFromInt(100)}))
	require.NoError(t, store.SaveAdjustment(ctx, core.PayrollAdjustment{TenantID: "t1", EmployeeID: "e1", Month: month, Bonus: decimal.NewFromInt(250), Advances: decimal.NewFromInt(40)}))

	adj, err := store.ListAdjustments(ctx, "t1", month)
	require.NoError(t, err)
	require.Len(t, adj, 1)
	assert.True(t, decimal.NewFromInt(250).Equal(adj[0].Bonus))
	assert.True(t, decimal.NewFromInt(40).Equal(adj[0].Advances))
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTx_RollbackOnError(t *testing.T) {
	// GIVEN: A transaction that inserts a record and updates stats, then fails
	// THEN: Neither write is visible afterwards

	store := newTestStore(t)
	ctx := context.Background()
	day := core.NewDate(2025, time.March, 10)
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx core.Store) error {
		require.NoError(t, tx.CreateAttendance(ctx, openRecord("a1", day)))
		require.NoError(t, tx.UpdateEmployeeStats(ctx, "t1", "e1", 10, 1))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	rec, err := store.GetAttendance(ctx, "t1", "e1", day)
	require.NoError(t, err)
	assert.Nil(t, rec)

	e, err := store.GetEmployee(ctx, "t1", "e1")
	require.NoError(t, err)
	assert.Equal(t, 0, e.Points)
}

func TestStore_WithTx_CommitOnSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	day := core.NewDate(2025, time.March, 10)

	err := store.WithTx(ctx, func(tx core.Store) error {
		if err := tx.CreateAttendance(ctx, openRecord("a1", day)); err != nil {
			return err
		}
		return tx.UpdateEmployeeStats(ctx, "t1", "e1", 10, 1)
	})
	require.NoError(t, err)

	e, err := store.GetEmployee(ctx, "t1", "e1")
	require.NoError(t, err)
	assert.Equal(t, 10, e.Points)
	assert.Equal(t, 1, e.Streak)
}
