package postgres_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/staff-engine/attendance"
	"github.com/warp/staff-engine/core"
	"github.com/warp/staff-engine/store/postgres"
)

// These tests need a disposable database:
//
//	STAFF_ENGINE_PG_URL=postgres://localhost:5432/staff_test?sslmode=disable go test ./store/postgres/
func newTestStore(t *testing.T) (*postgres.Store, string) {
	url := os.Getenv("STAFF_ENGINE_PG_URL")
	if url == "" {
		t.Skip("STAFF_ENGINE_PG_URL not set")
	}

	ctx := context.Background()
	store, err := postgres.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	// Unique tenant per test so runs never collide
	tenantID := "t-" + uuid.NewString()
	require.NoError(t, store.SaveTenant(ctx, core.Tenant{ID: tenantID, Name: "Shop", QRMode: core.QRModePermanent, Timezone: "UTC"}))
	require.NoError(t, store.SaveEmployee(ctx, core.Employee{ID: "e1", TenantID: tenantID, Name: "Ana", BaseSalary: decimal.NewFromInt(30000)}))
	return store, tenantID
}

func TestPostgres_AttendanceConditionalWrites(t *testing.T) {
	store, tenantID := newTestStore(t)
	ctx := context.Background()
	day := core.NewDate(2025, time.March, 10)

	rec := core.AttendanceRecord{ID: uuid.NewString(), TenantID: tenantID, EmployeeID: "e1", Day: day,
		CheckIn: day.At(core.Clock{Hour: 9}, time.UTC), Status: core.StatusOnTime, Source: core.SourceScan}
	require.NoError(t, store.CreateAttendance(ctx, rec))

	dup := rec
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, store.CreateAttendance(ctx, dup), core.ErrConcurrentModification)

	require.NoError(t, store.CloseAttendance(ctx, tenantID, rec.ID, day.At(core.Clock{Hour: 17}, time.UTC)))
	assert.ErrorIs(t, store.CloseAttendance(ctx, tenantID, rec.ID, day.At(core.Clock{Hour: 18}, time.UTC)), core.ErrDayAlreadyComplete)

	got, err := store.GetAttendance(ctx, tenantID, "e1", day)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, core.DayClosed, core.StateOf(got))
}

func TestPostgres_WithTx_Rollback(t *testing.T) {
	store, tenantID := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx core.Store) error {
		require.NoError(t, tx.UpdateEmployeeStats(ctx, tenantID, "e1", 50, 5))
		return core.ErrInvalidInput
	})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	e, err := store.GetEmployee(ctx, tenantID, "e1")
	require.NoError(t, err)
	assert.Equal(t, 0, e.Points)
	assert.True(t, decimal.NewFromInt(30000).Equal(e.BaseSalary))
}

func TestPostgres_PayrollRun_FinalizeOnce(t *testing.T) {
	store, tenantID := newTestStore(t)
	ctx := context.Background()
	month := core.Month{Year: 2025, Month: time.March}

	r := core.PayrollRun{TenantID: tenantID, Month: month, FinalizedAt: time.Now().UTC(), LinesJSON: `[]`}
	require.NoError(t, store.SavePayrollRun(ctx, r))
	assert.ErrorIs(t, store.SavePayrollRun(ctx, r), core.ErrPayrollFinalized)
}

func TestPostgres_ConcurrentScans_RetryOnSerializationFailure(t *testing.T) {
	// GIVEN: An open Monday and several scans racing for the same employee
	store, tenantID := newTestStore(t)
	ctx := context.Background()
	tenant, err := store.GetTenant(ctx, tenantID)
	require.NoError(t, err)

	sc := core.ScheduleConfig{TenantID: tenantID, GracePeriodMinutes: 10}
	sc.Days[time.Monday] = core.DayHours{IsOpen: true, Start: core.Clock{Hour: 9}, End: core.Clock{Hour: 17}}
	require.NoError(t, store.SaveSchedule(ctx, sc))

	day := core.NewDate(2025, time.March, 10)
	now := day.At(core.Clock{Hour: 9}, time.UTC)
	machine := attendance.NewMachine(store, nil)
	machine.Now = func() time.Time { return now }
	token := attendance.IssueToken(tenant, now)

	// WHEN: They run at once
	var wg sync.WaitGroup
	var mu sync.Mutex
	var checkIns, checkOuts, complete int
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := machine.Scan(ctx, attendance.ScanRequest{RawToken: token, TenantID: tenantID, EmployeeID: "e1"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && res.Action == attendance.ActionCheckedIn:
				checkIns++
			case err == nil && res.Action == attendance.ActionCheckedOut:
				checkOuts++
			case errors.Is(err, core.ErrDayAlreadyComplete), errors.Is(err, core.ErrConcurrentModification):
				complete++
			default:
				t.Errorf("unexpected scan result: %v", err)
			}
		}()
	}
	wg.Wait()

	// THEN: One check-in, points awarded once, no raw database errors
	assert.Equal(t, 1, checkIns)
	assert.LessOrEqual(t, checkOuts, 1)
	assert.Equal(t, 4, checkIns+checkOuts+complete)

	balance, err := core.NewPointLedger(store).Balance(ctx, tenantID, "e1")
	require.NoError(t, err)
	assert.Equal(t, 10, balance)
}
