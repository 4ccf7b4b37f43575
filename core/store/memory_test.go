package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/staff-engine/core"
	"github.com/warp/staff-engine/core/store"
)

func seeded(t *testing.T) *store.Memory {
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.SaveTenant(ctx, core.Tenant{ID: "t1", Name: "Shop"}))
	require.NoError(t, m.SaveEmployee(ctx, core.Employee{ID: "e1", TenantID: "t1", Name: "Ana"}))
	return m
}

func record(id string, day core.Date) core.AttendanceRecord {
	return core.AttendanceRecord{ID: id, TenantID: "t1", EmployeeID: "e1", Day: day, CheckIn: day.Time(), Status: core.StatusOnTime}
}

func TestMemory_WithTx_RollbackDiscardsAllWrites(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()
	day := core.NewDate(2025, time.March, 10)

	err := m.WithTx(ctx, func(tx core.Store) error {
		require.NoError(t, tx.CreateAttendance(ctx, record("a1", day)))
		require.NoError(t, tx.UpdateEmployeeStats(ctx, "t1", "e1", 10, 1))
		require.NoError(t, tx.AppendPoints(ctx, core.PointTransaction{ID: "p1", TenantID: "t1", EmployeeID: "e1", Delta: 10, IdempotencyKey: "k"}))
		return errors.New("fail")
	})
	require.Error(t, err)

	rec, _ := m.GetAttendance(ctx, "t1", "e1", day)
	assert.Nil(t, rec)
	e, _ := m.GetEmployee(ctx, "t1", "e1")
	assert.Equal(t, 0, e.Points)
	// The idempotency key was rolled back too
	assert.NoError(t, m.AppendPoints(ctx, core.PointTransaction{ID: "p1", TenantID: "t1", EmployeeID: "e1", Delta: 10, IdempotencyKey: "k"}))
}

func TestMemory_CreateAttendance_UniquePerDay(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()
	day := core.NewDate(2025, time.March, 10)

	require.NoError(t, m.CreateAttendance(ctx, record("a1", day)))
	assert.ErrorIs(t, m.CreateAttendance(ctx, record("a2", day)), core.ErrConcurrentModification)
	assert.NoError(t, m.CreateAttendance(ctx, record("a3", day.AddDays(1))))
}

func TestMemory_CloseAttendance_Conditional(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()
	day := core.NewDate(2025, time.March, 10)
	require.NoError(t, m.CreateAttendance(ctx, record("a1", day)))

	require.NoError(t, m.CloseAttendance(ctx, "t1", "a1", day.Time().Add(8*time.Hour)))
	assert.ErrorIs(t, m.CloseAttendance(ctx, "t1", "a1", day.Time().Add(9*time.Hour)), core.ErrDayAlreadyComplete)
}

func TestMemory_ConcurrentCreates_ExactlyOneWins(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()
	day := core.NewDate(2025, time.March, 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithTx(ctx, func(tx core.Store) error {
				return tx.CreateAttendance(ctx, record("a", day))
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestMemory_ListApprovedLeave_Overlap(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()
	require.NoError(t, m.SaveLeave(ctx, core.LeaveRequest{ID: "l1", TenantID: "t1", EmployeeID: "e1",
		StartDate: core.NewDate(2025, 2, 27), EndDate: core.NewDate(2025, 3, 2), Status: core.LeaveApproved}))
	require.NoError(t, m.SaveLeave(ctx, core.LeaveRequest{ID: "l2", TenantID: "t1", EmployeeID: "e1",
		StartDate: core.NewDate(2025, 3, 5), EndDate: core.NewDate(2025, 3, 5), Status: core.LeaveDenied}))

	got, err := m.ListApprovedLeave(ctx, "t1", core.Month{Year: 2025, Month: time.March}.Period())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "l1", got[0].ID)
}
