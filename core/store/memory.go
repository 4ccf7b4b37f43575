// Package store provides an in-memory core.TxStore.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/staff-engine/core"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is a core.TxStore backed by maps. WithTx runs the closure against a
// copy of the state and swaps it in on success, so a failed closure leaves no
// trace and concurrent callers are serialized by the mutex.
type Memory struct {
	mu sync.RWMutex
	s  *state
}

func NewMemory() *Memory {
	return &Memory{s: newState()}
}

var _ core.TxStore = (*Memory)(nil)

// WithTx executes fn within a transaction (snapshot + swap on commit).
func (m *Memory) WithTx(ctx context.Context, fn func(core.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	working := m.s.clone()
	if err := fn(working); err != nil {
		return err
	}
	m.s = working
	return nil
}

// =============================================================================
// LOCKED DELEGATES
// =============================================================================

func (m *Memory) SaveTenant(ctx context.Context, t core.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SaveTenant(ctx, t)
}

func (m *Memory) GetTenant(ctx context.Context, id string) (core.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetTenant(ctx, id)
}

func (m *Memory) ListTenants(ctx context.Context) ([]core.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListTenants(ctx)
}

func (m *Memory) SaveSchedule(ctx context.Context, s core.ScheduleConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SaveSchedule(ctx, s)
}

func (m *Memory) GetSchedule(ctx context.Context, tenantID string) (core.ScheduleConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetSchedule(ctx, tenantID)
}

func (m *Memory) SaveEmployee(ctx context.Context, e core.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SaveEmployee(ctx, e)
}

func (m *Memory) GetEmployee(ctx context.Context, tenantID, id string) (core.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetEmployee(ctx, tenantID, id)
}

func (m *Memory) ListEmployees(ctx context.Context, tenantID string) ([]core.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListEmployees(ctx, tenantID)
}

func (m *Memory) UpdateEmployeeStats(ctx context.Context, tenantID, id string, points, streak int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.UpdateEmployeeStats(ctx, tenantID, id, points, streak)
}

func (m *Memory) GetAttendance(ctx context.Context, tenantID, employeeID string, day core.Date) (*core.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetAttendance(ctx, tenantID, employeeID, day)
}

func (m *Memory) CreateAttendance(ctx context.Context, rec core.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.CreateAttendance(ctx, rec)
}

func (m *Memory) CloseAttendance(ctx context.Context, tenantID, recordID string, checkOut time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.CloseAttendance(ctx, tenantID, recordID, checkOut)
}

func (m *Memory) UpsertAttendance(ctx context.Context, rec core.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.UpsertAttendance(ctx, rec)
}

func (m *Memory) ListAttendance(ctx context.Context, tenantID string, p core.Period) ([]core.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListAttendance(ctx, tenantID, p)
}

func (m *Memory) SaveLeave(ctx context.Context, r core.LeaveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SaveLeave(ctx, r)
}

func (m *Memory) GetLeave(ctx context.Context, id string) (core.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetLeave(ctx, id)
}

func (m *Memory) SetLeaveStatus(ctx context.Context, id string, status core.LeaveStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SetLeaveStatus(ctx, id, status)
}

func (m *Memory) ListApprovedLeave(ctx context.Context, tenantID string, p core.Period) ([]core.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListApprovedLeave(ctx, tenantID, p)
}

func (m *Memory) AppendPoints(ctx context.Context, tx core.PointTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.AppendPoints(ctx, tx)
}

func (m *Memory) ListPoints(ctx context.Context, tenantID, employeeID string) ([]core.PointTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListPoints(ctx, tenantID, employeeID)
}

func (m *Memory) SaveAdjustment(ctx context.Context, a core.PayrollAdjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SaveAdjustment(ctx, a)
}

func (m *Memory) ListAdjustments(ctx context.Context, tenantID string, month core.Month) ([]core.PayrollAdjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListAdjustments(ctx, tenantID, month)
}

func (m *Memory) SavePayrollRun(ctx context.Context, r core.PayrollRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SavePayrollRun(ctx, r)
}

func (m *Memory) GetPayrollRun(ctx context.Context, tenantID string, month core.Month) (*core.PayrollRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetPayrollRun(ctx, tenantID, month)
}

// =============================================================================
// STATE - Unlocked maps; also the transactional view handed to WithTx
// =============================================================================

type empKey struct{ TenantID, ID string }

type dayKey struct {
	TenantID   string
	EmployeeID string
	Day        string
}

type monthKey struct {
	TenantID string
	Month    string
}

type adjKey struct {
	monthKey
	EmployeeID string
}

type state struct {
	tenants     map[string]core.Tenant
	schedules   map[string]core.ScheduleConfig
	employees   map[empKey]core.Employee
	attendance  map[dayKey]core.AttendanceRecord
	leaves      map[string]core.LeaveRequest
	points      []core.PointTransaction
	pointKeys   map[string]bool
	adjustments map[adjKey]core.PayrollAdjustment
	runs        map[monthKey]core.PayrollRun
}

func newState() *state {
	return &state{
		tenants:     make(map[string]core.Tenant),
		schedules:   make(map[string]core.ScheduleConfig),
		employees:   make(map[empKey]core.Employee),
		attendance:  make(map[dayKey]core.AttendanceRecord),
		leaves:      make(map[string]core.LeaveRequest),
		pointKeys:   make(map[string]bool),
		adjustments: make(map[adjKey]core.PayrollAdjustment),
		runs:        make(map[monthKey]core.PayrollRun),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.tenants {
		c.tenants[k] = v
	}
	for k, v := range s.schedules {
		c.schedules[k] = v
	}
	for k, v := range s.employees {
		c.employees[k] = v
	}
	for k, v := range s.attendance {
		c.attendance[k] = v
	}
	for k, v := range s.leaves {
		c.leaves[k] = v
	}
	c.points = append([]core.PointTransaction(nil), s.points...)
	for k, v := range s.pointKeys {
		c.pointKeys[k] = v
	}
	for k, v := range s.adjustments {
		c.adjustments[k] = v
	}
	for k, v := range s.runs {
		c.runs[k] = v
	}
	return c
}

func (s *state) SaveTenant(_ context.Context, t core.Tenant) error {
	s.tenants[t.ID] = t
	return nil
}

func (s *state) GetTenant(_ context.Context, id string) (core.Tenant, error) {
	t, ok := s.tenants[id]
	if !ok {
		return core.Tenant{}, core.ErrTenantNotFound
	}
	return t, nil
}

func (s *state) ListTenants(_ context.Context) ([]core.Tenant, error) {
	result := make([]core.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *state) SaveSchedule(_ context.Context, sc core.ScheduleConfig) error {
	s.schedules[sc.TenantID] = sc
	return nil
}

func (s *state) GetSchedule(_ context.Context, tenantID string) (core.ScheduleConfig, error) {
	sc, ok := s.schedules[tenantID]
	if !ok {
		return core.ScheduleConfig{}, core.ErrScheduleNotFound
	}
	return sc, nil
}

func (s *state) SaveEmployee(_ context.Context, e core.Employee) error {
	s.employees[empKey{e.TenantID, e.ID}] = e
	return nil
}

func (s *state) GetEmployee(_ context.Context, tenantID, id string) (core.Employee, error) {
	e, ok := s.employees[empKey{tenantID, id}]
	if !ok {
		return core.Employee{}, core.ErrEmployeeNotFound
	}
	return e, nil
}

func (s *state) ListEmployees(_ context.Context, tenantID string) ([]core.Employee, error) {
	var result []core.Employee
	for k, e := range s.employees {
		if k.TenantID == tenantID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *state) UpdateEmployeeStats(_ context.Context, tenantID, id string, points, streak int) error {
	k := empKey{tenantID, id}
	e, ok := s.employees[k]
	if !ok {
		return core.ErrEmployeeNotFound
	}
	e.Points = points
	e.Streak = streak
	s.employees[k] = e
	return nil
}

func (s *state) GetAttendance(_ context.Context, tenantID, employeeID string, day core.Date) (*core.AttendanceRecord, error) {
	rec, ok := s.attendance[dayKey{tenantID, employeeID, day.String()}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *state) CreateAttendance(_ context.Context, rec core.AttendanceRecord) error {
	k := dayKey{rec.TenantID, rec.EmployeeID, rec.Day.String()}
	if _, exists := s.attendance[k]; exists {
		return core.ErrConcurrentModification
	}
	s.attendance[k] = rec
	return nil
}

func (s *state) CloseAttendance(_ context.Context, tenantID, recordID string, checkOut time.Time) error {
	for k, rec := range s.attendance {
		if rec.TenantID != tenantID || rec.ID != recordID {
			continue
		}
		if rec.CheckOut != nil {
			return &core.DayCompleteError{EmployeeID: rec.EmployeeID, Day: rec.Day, RecordID: rec.ID}
		}
		out := checkOut
		rec.CheckOut = &out
		s.attendance[k] = rec
		return nil
	}
	return core.ErrConcurrentModification
}

func (s *state) UpsertAttendance(_ context.Context, rec core.AttendanceRecord) error {
	s.attendance[dayKey{rec.TenantID, rec.EmployeeID, rec.Day.String()}] = rec
	return nil
}

func (s *state) ListAttendance(_ context.Context, tenantID string, p core.Period) ([]core.AttendanceRecord, error) {
	var result []core.AttendanceRecord
	for _, rec := range s.attendance {
		if rec.TenantID == tenantID && p.Contains(rec.Day) {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Day.Equal(result[j].Day) {
			return result[i].Day.Before(result[j].Day)
		}
		return result[i].EmployeeID < result[j].EmployeeID
	})
	return result, nil
}

func (s *state) SaveLeave(_ context.Context, r core.LeaveRequest) error {
	s.leaves[r.ID] = r
	return nil
}

func (s *state) GetLeave(_ context.Context, id string) (core.LeaveRequest, error) {
	r, ok := s.leaves[id]
	if !ok {
		return core.LeaveRequest{}, core.ErrLeaveNotFound
	}
	return r, nil
}

func (s *state) SetLeaveStatus(_ context.Context, id string, status core.LeaveStatus) error {
	r, ok := s.leaves[id]
	if !ok {
		return core.ErrLeaveNotFound
	}
	r.Status = status
	s.leaves[id] = r
	return nil
}

func (s *state) ListApprovedLeave(_ context.Context, tenantID string, p core.Period) ([]core.LeaveRequest, error) {
	var result []core.LeaveRequest
	for _, r := range s.leaves {
		if r.TenantID == tenantID && r.Status == core.LeaveApproved && r.Period().Overlaps(p) {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartDate.Equal(result[j].StartDate) {
			return result[i].StartDate.Before(result[j].StartDate)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *state) AppendPoints(_ context.Context, tx core.PointTransaction) error {
	if tx.IdempotencyKey != "" {
		if s.pointKeys[tx.IdempotencyKey] {
			return core.ErrDuplicateIdempotencyKey
		}
		s.pointKeys[tx.IdempotencyKey] = true
	}
	s.points = append(s.points, tx)
	return nil
}

func (s *state) ListPoints(_ context.Context, tenantID, employeeID string) ([]core.PointTransaction, error) {
	var result []core.PointTransaction
	for _, tx := range s.points {
		if tx.TenantID == tenantID && tx.EmployeeID == employeeID {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (s *state) SaveAdjustment(_ context.Context, a core.PayrollAdjustment) error {
	s.adjustments[adjKey{monthKey{a.TenantID, a.Month.String()}, a.EmployeeID}] = a
	return nil
}

func (s *state) ListAdjustments(_ context.Context, tenantID string, m core.Month) ([]core.PayrollAdjustment, error) {
	var result []core.PayrollAdjustment
	for k, a := range s.adjustments {
		if k.TenantID == tenantID && k.Month == m.String() {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EmployeeID < result[j].EmployeeID })
	return result, nil
}

func (s *state) SavePayrollRun(_ context.Context, r core.PayrollRun) error {
	k := monthKey{r.TenantID, r.Month.String()}
	if _, exists := s.runs[k]; exists {
		return core.ErrPayrollFinalized
	}
	s.runs[k] = r
	return nil
}

func (s *state) GetPayrollRun(_ context.Context, tenantID string, m core.Month) (*core.PayrollRun, error) {
	r, ok := s.runs[monthKey{tenantID, m.String()}]
	if !ok {
		return nil, nil
	}
	return &r, nil
}
