/*
store.go - Persistence interface for the engine

PURPOSE:
  Defines the interface between the engine and the database. Different
  implementations can use SQLite, PostgreSQL, or in-memory storage; the
  engine never knows which.

KEY INTERFACES:
  TenantStore:     Tenants and their schedule snapshots
  EmployeeStore:   Employees, including point/streak updates
  AttendanceStore: Day records with conditional writes
  LeaveStore:      Leave requests and overlap queries
  PointStore:      Append-only point ledger
  PayrollStore:    Manual overrides and finalized runs
  TxStore:         All of the above plus WithTx for atomic multi-table writes

CONDITIONAL WRITES:
  CreateAttendance must fail with ErrConcurrentModification when a record for
  (tenant, employee, day) already exists. CloseAttendance must only set the
  check-out when it is still empty and fail with ErrDayAlreadyComplete
  otherwise. These two rules are what keep two racing scans from both
  checking in or both checking out.

ATOMIC CHECK-IN:
  A check-in writes three rows: the attendance record, the employee's new
  points/streak and the point ledger entry. They are written inside one
  WithTx so either all land or none do.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite (default)
  - store/postgres/postgres.go: PostgreSQL via pgx
  - core/store/memory.go: In-memory for testing

SEE ALSO:
  - attendance/machine.go: The main WithTx caller
  - ledger.go: Point ledger on top of PointStore
*/
package core

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Interfaces for persistence
// =============================================================================

type TenantStore interface {
	SaveTenant(ctx context.Context, t Tenant) error
	// GetTenant returns ErrTenantNotFound when missing.
	GetTenant(ctx context.Context, id string) (Tenant, error)
	ListTenants(ctx context.Context) ([]Tenant, error)

	SaveSchedule(ctx context.Context, s ScheduleConfig) error
	// GetSchedule returns ErrScheduleNotFound when missing.
	GetSchedule(ctx context.Context, tenantID string) (ScheduleConfig, error)
}

type EmployeeStore interface {
	SaveEmployee(ctx context.Context, e Employee) error
	// GetEmployee returns ErrEmployeeNotFound when missing.
	GetEmployee(ctx context.Context, tenantID, id string) (Employee, error)
	ListEmployees(ctx context.Context, tenantID string) ([]Employee, error)
	// UpdateEmployeeStats sets points and streak. Only the gamification path calls it.
	UpdateEmployeeStats(ctx context.Context, tenantID, id string, points, streak int) error
}

type AttendanceStore interface {
	// GetAttendance returns the day's record, or nil when there is none.
	GetAttendance(ctx context.Context, tenantID, employeeID string, day Date) (*AttendanceRecord, error)
	// CreateAttendance inserts a record. ErrConcurrentModification if the day already holds one.
	CreateAttendance(ctx context.Context, rec AttendanceRecord) error
	// CloseAttendance sets CheckOut only if it is still empty. ErrDayAlreadyComplete otherwise.
	CloseAttendance(ctx context.Context, tenantID, recordID string, checkOut time.Time) error
	// UpsertAttendance replaces the day's record. Administrative path only.
	UpsertAttendance(ctx context.Context, rec AttendanceRecord) error
	// ListAttendance returns every record of the tenant whose Day is in p.
	ListAttendance(ctx context.Context, tenantID string, p Period) ([]AttendanceRecord, error)
}

type LeaveStore interface {
	SaveLeave(ctx context.Context, r LeaveRequest) error
	// GetLeave returns ErrLeaveNotFound when missing.
	GetLeave(ctx context.Context, id string) (LeaveRequest, error)
	SetLeaveStatus(ctx context.Context, id string, status LeaveStatus) error
	// ListApprovedLeave returns approved requests of the tenant overlapping p.
	ListApprovedLeave(ctx context.Context, tenantID string, p Period) ([]LeaveRequest, error)
}

type PointStore interface {
	// AppendPoints persists a ledger entry. ErrDuplicateIdempotencyKey if the key exists.
	AppendPoints(ctx context.Context, tx PointTransaction) error
	ListPoints(ctx context.Context, tenantID, employeeID string) ([]PointTransaction, error)
}

type PayrollStore interface {
	SaveAdjustment(ctx context.Context, a PayrollAdjustment) error
	ListAdjustments(ctx context.Context, tenantID string, m Month) ([]PayrollAdjustment, error)
	// SavePayrollRun stores a finalized run. ErrPayrollFinalized if one exists.
	SavePayrollRun(ctx context.Context, r PayrollRun) error
	// GetPayrollRun returns nil when the month is not finalized.
	GetPayrollRun(ctx context.Context, tenantID string, m Month) (*PayrollRun, error)
}

// Store is the full persistence surface.
type Store interface {
	TenantStore
	EmployeeStore
	AttendanceStore
	LeaveStore
	PointStore
	PayrollStore
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
