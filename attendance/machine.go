/*
Package attendance turns QR scans into attendance records.

PURPOSE:
  One scan moves one employee's day forward by one step:

    NotStarted ──scan──▶ Open ──scan──▶ Closed ──scan──▶ ErrDayAlreadyComplete
       (check-in, status,    (check-out, no status
        points & streak)      change, no points)

  The day is the tenant-local calendar day: midnight in Tenant.Timezone.

TWO WRITE PATHS:
  Scan:         automated, validates the QR token, computes punctuality,
                updates gamification. The only path that touches points.
  RecordManual: administrative override. Any status, any day, replaces the
                day's record, never touches points.

ATOMICITY:
  Scan decides the transition inside TxStore.WithTx after re-reading the
  day's record. Check-in creates the record, updates points/streak and
  appends the ledger entry in that same transaction. Two racing scans either
  serialize on the store (memory, SQLite) or collide on the unique day index
  or conditional check-out (Postgres); the loser gets
  core.ErrConcurrentModification and is retried with a fresh read, where it
  becomes the check-out or the DayAlreadyComplete rejection.

SEE ALSO:
  - qr.go: Token validation (runs before any read-for-write)
  - status.go: Punctuality and transition rules
  - rewards/gamification.go: Point/streak rule
*/
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/warp/staff-engine/core"
	"github.com/warp/staff-engine/rewards"
)

// maxAttempts bounds retries after a lost race.
const maxAttempts = 3

// Machine is the attendance state machine.
type Machine struct {
	store  core.TxStore
	logger *slog.Logger

	// Now is the clock. Tests replace it.
	Now func() time.Time
}

// NewMachine creates a Machine. A nil logger uses slog.Default().
func NewMachine(store core.TxStore, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{store: store, logger: logger, Now: time.Now}
}

// =============================================================================
// SCAN
// =============================================================================

// ScanRequest is one QR scan by an authenticated employee.
type ScanRequest struct {
	RawToken   string
	TenantID   string // the employee's tenant, from the session
	EmployeeID string
}

// ScanResult describes the transition that was applied.
type ScanResult struct {
	Action Action
	Record core.AttendanceRecord
	Points int
	Streak int
	// Reward is set on check-in only.
	Reward *rewards.Outcome
}

// Scan validates the token and applies the next transition of the
// employee's day. Token, tenant and employee failures happen before any
// write.
func (m *Machine) Scan(ctx context.Context, req ScanRequest) (ScanResult, error) {
	now := m.Now()
	log := m.logger.With("tenant", req.TenantID, "employee", req.EmployeeID)

	tenant, err := m.store.GetTenant(ctx, req.TenantID)
	if err != nil {
		return ScanResult{}, err
	}
	emp, err := m.store.GetEmployee(ctx, req.TenantID, req.EmployeeID)
	if err != nil {
		return ScanResult{}, err
	}
	if !emp.IsActive() {
		return ScanResult{}, core.ErrEmployeeInactive
	}

	if _, err := ValidateToken(req.RawToken, emp.TenantID, tenant.QRMode, now); err != nil {
		log.Info("scan rejected", "action", "rejected", "err", err)
		return ScanResult{}, err
	}

	// Only check-in needs the schedule; a missing one must not block check-out.
	schedule, schedErr := m.store.GetSchedule(ctx, tenant.ID)

	loc := tenant.Location()
	day := core.DateOf(now, loc)
	log = log.With("day", day.String())

	var result ScanResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = m.store.WithTx(ctx, func(tx core.Store) error {
			var txErr error
			result, txErr = m.transition(ctx, tx, tenant, emp.ID, day, now, loc, schedule, schedErr)
			return txErr
		})
		if err == nil || !core.IsRetryable(err) {
			break
		}
		log.Warn("scan lost a race, retrying", "attempt", attempt, "err", err)
	}
	if err != nil {
		if errors.Is(err, core.ErrDayAlreadyComplete) {
			log.Info("scan rejected", "action", "rejected", "err", err)
		} else {
			log.Error("scan failed", "err", err)
		}
		return ScanResult{}, err
	}

	log.Info("scan applied",
		"action", string(result.Action),
		"status", string(result.Record.Status),
		"points", result.Points,
		"streak", result.Streak,
	)
	return result, nil
}

// transition runs inside WithTx: read the day, decide, write.
func (m *Machine) transition(
	ctx context.Context,
	tx core.Store,
	tenant core.Tenant,
	employeeID string,
	day core.Date,
	now time.Time,
	loc *time.Location,
	schedule core.ScheduleConfig,
	schedErr error,
) (ScanResult, error) {
	// Fresh read inside the transaction; points/streak may have moved.
	emp, err := tx.GetEmployee(ctx, tenant.ID, employeeID)
	if err != nil {
		return ScanResult{}, err
	}
	rec, err := tx.GetAttendance(ctx, tenant.ID, employeeID, day)
	if err != nil {
		return ScanResult{}, err
	}

	action, err := NextAction(core.StateOf(rec))
	if err != nil {
		return ScanResult{}, &core.DayCompleteError{EmployeeID: employeeID, Day: day, RecordID: rec.ID}
	}

	switch action {
	case ActionCheckedIn:
		if schedErr != nil {
			return ScanResult{}, schedErr
		}
		newRec := core.AttendanceRecord{
			ID:         uuid.NewString(),
			TenantID:   tenant.ID,
			EmployeeID: employeeID,
			Day:        day,
			CheckIn:    now,
			Status:     ClassifyCheckIn(schedule, now, loc),
			Source:     core.SourceScan,
		}
		if err := tx.CreateAttendance(ctx, newRec); err != nil {
			return ScanResult{}, err
		}
		out, err := rewards.Award(ctx, tx, emp, day, newRec.Status, now)
		if err != nil {
			return ScanResult{}, err
		}
		return ScanResult{
			Action: ActionCheckedIn,
			Record: newRec,
			Points: out.Points,
			Streak: out.Streak,
			Reward: &out,
		}, nil

	default:
		if err := tx.CloseAttendance(ctx, tenant.ID, rec.ID, now); err != nil {
			return ScanResult{}, err
		}
		closed := *rec
		closed.CheckOut = &now
		return ScanResult{
			Action: ActionCheckedOut,
			Record: closed,
			Points: emp.Points,
			Streak: emp.Streak,
		}, nil
	}
}

// =============================================================================
// MANUAL ENTRY
// =============================================================================

// ManualEntry is an administrative attendance record.
type ManualEntry struct {
	TenantID   string
	EmployeeID string
	Date       core.Date  // zero: the tenant-local day of CheckIn
	CheckIn    time.Time  // zero allowed for absent only
	CheckOut   *time.Time // optional
	Status     core.AttendanceStatus
	Reason     string
}

// RecordManual writes the day's record as given, replacing any existing
// record for that day. It never runs the gamification rule.
func (m *Machine) RecordManual(ctx context.Context, e ManualEntry) (core.AttendanceRecord, error) {
	if !e.Status.Valid() {
		return core.AttendanceRecord{}, fmt.Errorf("%w: status %q", core.ErrInvalidInput, e.Status)
	}
	if e.CheckIn.IsZero() && e.Status != core.StatusAbsent {
		return core.AttendanceRecord{}, fmt.Errorf("%w: check-in time required", core.ErrInvalidInput)
	}
	if e.CheckOut != nil && !e.CheckIn.IsZero() && e.CheckOut.Before(e.CheckIn) {
		return core.AttendanceRecord{}, fmt.Errorf("%w: check-out before check-in", core.ErrInvalidInput)
	}

	tenant, err := m.store.GetTenant(ctx, e.TenantID)
	if err != nil {
		return core.AttendanceRecord{}, err
	}
	if _, err := m.store.GetEmployee(ctx, e.TenantID, e.EmployeeID); err != nil {
		return core.AttendanceRecord{}, err
	}

	loc := tenant.Location()
	day := e.Date
	if day.IsZero() {
		if e.CheckIn.IsZero() {
			return core.AttendanceRecord{}, fmt.Errorf("%w: date or check-in time required", core.ErrInvalidInput)
		}
		day = core.DateOf(e.CheckIn, loc)
	}
	checkIn := e.CheckIn
	if checkIn.IsZero() {
		checkIn = day.At(core.Clock{}, loc)
	}

	rec := core.AttendanceRecord{
		TenantID:   e.TenantID,
		EmployeeID: e.EmployeeID,
		Day:        day,
		CheckIn:    checkIn,
		CheckOut:   e.CheckOut,
		Status:     e.Status,
		Source:     core.SourceManual,
		Reason:     e.Reason,
	}

	err = m.store.WithTx(ctx, func(tx core.Store) error {
		existing, err := tx.GetAttendance(ctx, e.TenantID, e.EmployeeID, day)
		if err != nil {
			return err
		}
		if existing != nil {
			rec.ID = existing.ID
		} else {
			rec.ID = uuid.NewString()
		}
		return tx.UpsertAttendance(ctx, rec)
	})
	if err != nil {
		return core.AttendanceRecord{}, err
	}

	m.logger.Info("manual attendance recorded",
		"tenant", e.TenantID,
		"employee", e.EmployeeID,
		"day", day.String(),
		"status", string(e.Status),
		"action", "manual",
	)
	return rec, nil
}

// DayState reports where the employee's day stands at now.
func (m *Machine) DayState(ctx context.Context, tenantID, employeeID string) (core.DayState, *core.AttendanceRecord, error) {
	tenant, err := m.store.GetTenant(ctx, tenantID)
	if err != nil {
		return "", nil, err
	}
	day := core.DateOf(m.Now(), tenant.Location())
	rec, err := m.store.GetAttendance(ctx, tenantID, employeeID, day)
	if err != nil {
		return "", nil, err
	}
	return core.StateOf(rec), rec, nil
}
