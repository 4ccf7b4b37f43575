package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/staff-engine/core"
	"github.com/warp/staff-engine/timeoff"
)

// =============================================================================
// SERVICE - Loads a month snapshot and runs the reports
// =============================================================================

// Service computes payroll and muster rolls from a store. Per-employee data
// problems degrade to excluded rows; only store failures abort a report.
type Service struct {
	Store  core.TxStore
	Leave  *timeoff.Aggregator
	Logger *slog.Logger
	Now    func() time.Time
}

func NewService(store core.TxStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Store:  store,
		Leave:  timeoff.NewAggregator(store),
		Logger: logger,
		Now:    time.Now,
	}
}

// snapshot is the month's data, read once per report.
type snapshot struct {
	tenant      core.Tenant
	quota       int
	employees   []core.Employee
	records     []core.AttendanceRecord
	leave       timeoff.Aggregation
	adjustments map[string]core.PayrollAdjustment
}

func (s *Service) load(ctx context.Context, tenantID string, month core.Month) (*snapshot, error) {
	tenant, err := s.Store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	snap := &snapshot{tenant: tenant, adjustments: make(map[string]core.PayrollAdjustment)}

	schedule, err := s.Store.GetSchedule(ctx, tenantID)
	switch {
	case errors.Is(err, core.ErrScheduleNotFound):
		s.Logger.Warn("no schedule configured, paid leave quota is 0",
			"tenant", tenantID, "month", month.String())
	case err != nil:
		return nil, err
	default:
		snap.quota = schedule.MonthlyPaidLeave
	}

	if snap.employees, err = s.Store.ListEmployees(ctx, tenantID); err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	if snap.records, err = s.Store.ListAttendance(ctx, tenantID, month.Period()); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	if snap.leave, err = s.Leave.ForMonth(ctx, tenantID, month, ""); err != nil {
		return nil, fmt.Errorf("aggregate leave: %w", err)
	}
	adjustments, err := s.Store.ListAdjustments(ctx, tenantID, month)
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	for _, a := range adjustments {
		snap.adjustments[a.EmployeeID] = a
	}
	return snap, nil
}

// =============================================================================
// PAYROLL
// =============================================================================

// ComputePayroll returns one line per active employee, ordered like
// ListEmployees. It writes nothing.
func (s *Service) ComputePayroll(ctx context.Context, tenantID string, month core.Month) ([]Line, error) {
	snap, err := s.load(ctx, tenantID, month)
	if err != nil {
		return nil, err
	}

	byEmployee := make(map[string][]core.AttendanceRecord)
	for _, r := range snap.records {
		byEmployee[r.EmployeeID] = append(byEmployee[r.EmployeeID], r)
	}

	lines := make([]Line, 0, len(snap.employees))
	for _, e := range snap.employees {
		if !e.IsActive() {
			continue
		}
		adj := snap.adjustments[e.ID]
		line := Calculate(Input{
			EmployeeID:       e.ID,
			EmployeeName:     e.Name,
			BaseSalary:       e.BaseSalary,
			Month:            month,
			Records:          byEmployee[e.ID],
			LeaveDays:        snap.leave.DaysFor(e.ID),
			MonthlyPaidLeave: snap.quota,
			Bonus:            adj.Bonus,
			Advances:         adj.Advances,
		})
		if line.Excluded {
			s.Logger.Info("payroll line excluded, no base salary",
				"tenant", tenantID, "employee", e.ID, "month", month.String())
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// ComputeMuster returns the month's muster roll for active employees.
func (s *Service) ComputeMuster(ctx context.Context, tenantID string, month core.Month) ([]MusterRow, error) {
	snap, err := s.load(ctx, tenantID, month)
	if err != nil {
		return nil, err
	}
	return BuildMuster(month, snap.employees, snap.records, snap.leave), nil
}

// =============================================================================
// ADJUSTMENTS & FINALIZATION
// =============================================================================

// SetAdjustment stores the manual bonus and advances of one employee for
// month. Fails with ErrPayrollFinalized once the month is finalized.
func (s *Service) SetAdjustment(ctx context.Context, tenantID string, month core.Month, employeeID string, bonus, advances decimal.Decimal) (core.PayrollAdjustment, error) {
	if bonus.IsNegative() || advances.IsNegative() {
		return core.PayrollAdjustment{}, fmt.Errorf("%w: bonus and advances must not be negative", core.ErrInvalidInput)
	}

	adj := core.PayrollAdjustment{
		TenantID:   tenantID,
		EmployeeID: employeeID,
		Month:      month,
		Bonus:      bonus,
		Advances:   advances,
		UpdatedAt:  s.Now().UTC(),
	}
	err := s.Store.WithTx(ctx, func(tx core.Store) error {
		run, err := tx.GetPayrollRun(ctx, tenantID, month)
		if err != nil {
			return err
		}
		if run != nil {
			return fmt.Errorf("%w: %s", core.ErrPayrollFinalized, month)
		}
		if _, err := tx.GetEmployee(ctx, tenantID, employeeID); err != nil {
			return err
		}
		return tx.SaveAdjustment(ctx, adj)
	})
	if err != nil {
		return core.PayrollAdjustment{}, err
	}

	s.Logger.Info("payroll adjustment saved",
		"tenant", tenantID,
		"employee", employeeID,
		"month", month.String(),
		"bonus", bonus.String(),
		"advances", advances.String(),
	)
	return adj, nil
}

// Finalize snapshots the month's payroll. A month can be finalized once,
// and only after it has ended in the tenant's timezone.
func (s *Service) Finalize(ctx context.Context, tenantID string, month core.Month) (core.PayrollRun, []Line, error) {
	tenant, err := s.Store.GetTenant(ctx, tenantID)
	if err != nil {
		return core.PayrollRun{}, nil, err
	}
	today := core.DateOf(s.Now(), tenant.Location())
	if !month.End().Before(today) {
		return core.PayrollRun{}, nil, fmt.Errorf("%w: month %s has not ended", core.ErrInvalidPeriod, month)
	}

	lines, err := s.ComputePayroll(ctx, tenantID, month)
	if err != nil {
		return core.PayrollRun{}, nil, err
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return core.PayrollRun{}, nil, fmt.Errorf("encode payroll lines: %w", err)
	}

	run := core.PayrollRun{
		TenantID:    tenantID,
		Month:       month,
		FinalizedAt: s.Now().UTC(),
		LinesJSON:   string(data),
	}
	err = s.Store.WithTx(ctx, func(tx core.Store) error {
		existing, err := tx.GetPayrollRun(ctx, tenantID, month)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: %s", core.ErrPayrollFinalized, month)
		}
		return tx.SavePayrollRun(ctx, run)
	})
	if err != nil {
		return core.PayrollRun{}, nil, err
	}

	s.Logger.Info("payroll finalized",
		"tenant", tenantID, "month", month.String(), "lines", len(lines))
	return run, lines, nil
}

// FinalizedRun returns the stored snapshot, or a nil run when the month is
// still open.
func (s *Service) FinalizedRun(ctx context.Context, tenantID string, month core.Month) (*core.PayrollRun, []Line, error) {
	run, err := s.Store.GetPayrollRun(ctx, tenantID, month)
	if err != nil || run == nil {
		return nil, nil, err
	}
	var lines []Line
	if err := json.Unmarshal([]byte(run.LinesJSON), &lines); err != nil {
		return nil, nil, fmt.Errorf("decode payroll run %s/%s: %w", tenantID, month, err)
	}
	return run, lines, nil
}
