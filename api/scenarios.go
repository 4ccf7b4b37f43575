/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with a realistic
	month of activity. Each scenario seeds one tenant from a YAML document
	and replays the previous calendar month: QR scans through the attendance
	state machine, manual entries and approved leave. The payroll and
	muster endpoints then have something to show.

AVAILABLE SCENARIOS:

	cafe-month:   Permanent QR, late arrivals, an absence, leave over quota
	dynamic-qr:   Rotating QR, an unbroken on-time run earning streak bonuses
	mixed-roster: An employee without salary (excluded payroll line) and an
	              inactive employee (left out of every report)

HOW SCENARIOS WORK:
 1. Parse the scenario's seed document (factory)
 2. Apply it in one transaction
 3. Replay the month with a state machine whose clock follows the script

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "cafe-month"}

NOTE:

	Scenarios write under their own tenant ids and do not clear anything.
	Loading one twice is harmless: replayed scans hit already closed days,
	manual entries and leave requests are upserted.

SEE ALSO:
  - handlers.go: Scan, RecordManualAttendance
  - factory/tenant.go: Seed document schema
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
	_ "time/tzdata" // demo tenants name IANA zones

	"github.com/warp/staff-engine/attendance"
	"github.com/warp/staff-engine/core"
	"github.com/warp/staff-engine/factory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	seed   string
	replay func(ctx context.Context, d *demo) error
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "cafe-month",
			Name:        "Cafe Month",
			Description: "Permanent QR, Monday late arrivals, one absence and leave beyond the paid quota",
		},
		seed:   cafeSeed,
		replay: replayCafe,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "dynamic-qr",
			Name:        "Dynamic QR Workshop",
			Description: "Rotating QR codes and an unbroken on-time run earning streak bonuses",
		},
		seed:   workshopSeed,
		replay: replayWorkshop,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "mixed-roster",
			Name:        "Mixed Roster",
			Description: "A new hire without salary and an inactive employee",
		},
		seed:   rosterSeed,
		replay: replayRoster,
	},
}

const cafeSeed = `
tenants:
  - id: demo-cafe
    name: Kopi Senja
    qr_mode: permanent
    timezone: Asia/Jakarta
    schedule:
      grace_period_minutes: 10
      monthly_paid_leave: 2
      days:
        mon: {open: true, start: "08:00", end: "16:00"}
        tue: {open: true, start: "08:00", end: "16:00"}
        wed: {open: true, start: "08:00", end: "16:00"}
        thu: {open: true, start: "08:00", end: "16:00"}
        fri: {open: true, start: "08:00", end: "16:00"}
        sat: {open: true, start: "09:00", end: "14:00"}
    employees:
      - {id: ana, name: Ana Putri, base_salary: "3000000"}
      - {id: budi, name: Budi Santoso, base_salary: "2500000"}
      - {id: citra, name: Citra Lestari, base_salary: "2800000"}
`

const workshopSeed = `
tenants:
  - id: demo-workshop
    name: Bengkel Maju
    qr_mode: dynamic
    timezone: Asia/Makassar
    schedule:
      grace_period_minutes: 5
      monthly_paid_leave: 1
      days:
        mon: {open: true, start: "07:30", end: "15:30"}
        tue: {open: true, start: "07:30", end: "15:30"}
        wed: {open: true, start: "07:30", end: "15:30"}
        thu: {open: true, start: "07:30", end: "15:30"}
        fri: {open: true, start: "07:30", end: "15:30"}
    employees:
      - {id: dewi, name: Dewi Anggraini, base_salary: "4200000"}
      - {id: eko, name: Eko Prasetyo, base_salary: "3900000"}
`

const rosterSeed = `
tenants:
  - id: demo-roster
    name: Toko Roti Mawar
    qr_mode: permanent
    timezone: UTC
    schedule:
      grace_period_minutes: 15
      monthly_paid_leave: 0
      days:
        mon: {open: true, start: "06:00", end: "14:00"}
        wed: {open: true, start: "06:00", end: "14:00"}
        fri: {open: true, start: "06:00", end: "14:00"}
    employees:
      - {id: fajar, name: Fajar Nugroho, base_salary: "2000000"}
      - {id: gita, name: Gita Permata}
      - {id: hadi, name: Hadi Wijaya, base_salary: "2100000", status: inactive}
`

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the most recently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	s, _ := findScenario(current)
	writeJSON(w, http.StatusOK, s.ScenarioDTO)
}

// LoadScenario seeds a scenario and replays its previous month.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}
	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	d, err := h.loadScenario(r.Context(), s)
	if err != nil {
		h.fail(w, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = s.ID

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": s.ID,
		"tenant":   d.tenant.ID,
		"month":    d.month.String(),
	})
}

func (h *Handler) loadScenario(ctx context.Context, s scenario) (*demo, error) {
	tenants, err := factory.ParseDocument([]byte(s.seed))
	if err != nil {
		return nil, err
	}
	if err := factory.Apply(ctx, h.Store, tenants); err != nil {
		return nil, err
	}

	t := tenants[0]
	d := &demo{
		store:    h.Store,
		machine:  attendance.NewMachine(h.Store, h.Logger),
		tenant:   t.Tenant,
		schedule: *t.Schedule,
		loc:      t.Tenant.Location(),
	}
	d.month = core.MonthOf(core.DateOf(h.now(), d.loc)).Prev()

	if err := s.replay(ctx, d); err != nil {
		return nil, err
	}
	h.Logger.Info("scenario loaded", "scenario", s.ID, "tenant", d.tenant.ID, "month", d.month.String())
	return d, nil
}

// =============================================================================
// REPLAY HELPERS
// =============================================================================

// demo replays a month of activity for one tenant.
type demo struct {
	store    core.TxStore
	machine  *attendance.Machine
	tenant   core.Tenant
	schedule core.ScheduleConfig
	loc      *time.Location
	month    core.Month
}

// openDays returns the month's business days in order.
func (d *demo) openDays() []core.Date {
	var out []core.Date
	for _, day := range d.month.Period().Days() {
		if d.schedule.For(day.Weekday()).IsOpen {
			out = append(out, day)
		}
	}
	return out
}

// shift scans in at shift start plus lateBy and scans out at shift end.
func (d *demo) shift(ctx context.Context, employeeID string, day core.Date, lateBy time.Duration) error {
	hours := d.schedule.For(day.Weekday())
	in := day.At(hours.Start, d.loc).Add(lateBy)
	out := day.At(hours.End, d.loc)
	for _, at := range []time.Time{in, out} {
		if err := d.scan(ctx, employeeID, at); err != nil {
			return err
		}
	}
	return nil
}

func (d *demo) scan(ctx context.Context, employeeID string, at time.Time) error {
	d.machine.Now = func() time.Time { return at }
	_, err := d.machine.Scan(ctx, attendance.ScanRequest{
		RawToken:   attendance.IssueToken(d.tenant, at),
		TenantID:   d.tenant.ID,
		EmployeeID: employeeID,
	})
	if errors.Is(err, core.ErrDayAlreadyComplete) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("scan %s at %s: %w", employeeID, at.Format(time.RFC3339), err)
	}
	return nil
}

func (d *demo) manual(ctx context.Context, employeeID string, day core.Date, status core.AttendanceStatus, reason string) error {
	hours := d.schedule.For(day.Weekday())
	e := attendance.ManualEntry{
		TenantID:   d.tenant.ID,
		EmployeeID: employeeID,
		Date:       day,
		Status:     status,
		Reason:     reason,
	}
	if status != core.StatusAbsent {
		e.CheckIn = day.At(hours.Start, d.loc)
	}
	_, err := d.machine.RecordManual(ctx, e)
	return err
}

// leave stores an approved request under a stable id.
func (d *demo) leave(ctx context.Context, employeeID string, start, end core.Date, reason string) error {
	return d.store.SaveLeave(ctx, core.LeaveRequest{
		ID:         fmt.Sprintf("%s-%s-%s", d.tenant.ID, employeeID, start),
		TenantID:   d.tenant.ID,
		EmployeeID: employeeID,
		StartDate:  start,
		EndDate:    end,
		Reason:     reason,
		Status:     core.LeaveApproved,
		CreatedAt:  start.AddDays(-7).Time(),
	})
}

// =============================================================================
// SCENARIO SCRIPTS
// =============================================================================

// replayCafe: Ana is always on time. Budi is 25 minutes late on Mondays and
// absent on the 8th business day. Citra takes four days of leave from the
// 10th, goes home early on the 15th business day, and works the rest.
func replayCafe(ctx context.Context, d *demo) error {
	days := d.openDays()
	leaveStart := d.month.Start().AddDays(9)
	leaveEnd := leaveStart.AddDays(3)
	if err := d.leave(ctx, "citra", leaveStart, leaveEnd, "family event"); err != nil {
		return err
	}

	for i, day := range days {
		if err := d.shift(ctx, "ana", day, 0); err != nil {
			return err
		}

		switch {
		case i == 7:
			if err := d.manual(ctx, "budi", day, core.StatusAbsent, "no show"); err != nil {
				return err
			}
		case day.Weekday() == time.Monday:
			if err := d.shift(ctx, "budi", day, 25*time.Minute); err != nil {
				return err
			}
		default:
			if err := d.shift(ctx, "budi", day, 0); err != nil {
				return err
			}
		}

		switch {
		case day.AfterOrEqual(leaveStart) && day.BeforeOrEqual(leaveEnd):
		case i == 14:
			if err := d.manual(ctx, "citra", day, core.StatusHalfDay, "left at noon"); err != nil {
				return err
			}
		default:
			if err := d.shift(ctx, "citra", day, 3*time.Minute); err != nil {
				return err
			}
		}
	}
	return nil
}

// replayWorkshop: Dewi never misses. Eko is late every other day and skips
// the last business day.
func replayWorkshop(ctx context.Context, d *demo) error {
	days := d.openDays()
	for i, day := range days {
		if err := d.shift(ctx, "dewi", day, -10*time.Minute); err != nil {
			return err
		}
		if i == len(days)-1 {
			continue
		}
		late := time.Duration(0)
		if i%2 == 1 {
			late = 20 * time.Minute
		}
		if err := d.shift(ctx, "eko", day, late); err != nil {
			return err
		}
	}
	return nil
}

// replayRoster: Fajar and Gita work every business day. Hadi is inactive
// and only has a correction entry from before leaving.
func replayRoster(ctx context.Context, d *demo) error {
	days := d.openDays()
	for _, day := range days {
		for _, id := range []string{"fajar", "gita"} {
			if err := d.shift(ctx, id, day, 0); err != nil {
				return err
			}
		}
	}
	if len(days) > 0 {
		return d.manual(ctx, "hadi", days[0], core.StatusManual, "handover")
	}
	return nil
}
