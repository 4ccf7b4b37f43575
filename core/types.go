/*
Package core provides the entities and primitives shared by the attendance,
rewards, time-off and payroll packages.

PURPOSE:
  The engine turns QR scans into attendance records and, later, turns a month
  of attendance and approved leave into payroll lines and a muster roll.
  This package holds the vocabulary every one of those steps speaks: tenants,
  employees, attendance records, leave requests, schedules, the point ledger,
  and the storage contract they are persisted through.

KEY CONCEPTS IN THIS FILE (types.go):
  - Tenant: one shop/business account; every entity is scoped to it
  - Employee: salary, point balance and punctuality streak
  - AttendanceRecord: one per employee per tenant-local calendar day
  - LeaveRequest: inclusive date range, only Approved rows reach the engine
  - ScheduleConfig: business hours per weekday, grace period, paid leave quota
  - PointTransaction: append-only audit of every gamification update

DESIGN PRINCIPLES:
  1. Explicit time: the tenant's timezone decides day boundaries, never the
     process clock's zone
  2. Precision: money uses decimal.Decimal
  3. Snapshots: schedules are passed to the engine as immutable values

SEE ALSO:
  - time.go / period.go: Date, Month and Period primitives
  - store.go: Persistence contract
  - errors.go: Error kinds returned by the engine
*/
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TENANT
// =============================================================================

type QRMode string

const (
	QRModePermanent QRMode = "permanent"
	QRModeDynamic   QRMode = "dynamic"
)

func (m QRMode) Valid() bool { return m == QRModePermanent || m == QRModeDynamic }

type Tenant struct {
	ID       string
	Name     string
	QRMode   QRMode
	Timezone string // IANA name, e.g. "Asia/Jakarta"
}

// Location resolves the tenant's operating timezone. Unknown or empty names
// fall back to UTC.
func (t Tenant) Location() *time.Location {
	if t.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// =============================================================================
// EMPLOYEE
// =============================================================================

type EmployeeStatus string

const (
	EmployeeActive   EmployeeStatus = "active"
	EmployeeInactive EmployeeStatus = "inactive"
)

type Employee struct {
	ID         string
	TenantID   string
	Name       string
	BaseSalary decimal.Decimal
	Points     int
	Streak     int
	Status     EmployeeStatus
}

func (e Employee) IsActive() bool { return e.Status != EmployeeInactive }

// =============================================================================
// ATTENDANCE
// =============================================================================

type AttendanceStatus string

const (
	StatusOnTime  AttendanceStatus = "on_time"
	StatusLate    AttendanceStatus = "late"
	StatusHalfDay AttendanceStatus = "half_day"
	StatusManual  AttendanceStatus = "manual"
	StatusAbsent  AttendanceStatus = "absent"
)

func (s AttendanceStatus) Valid() bool {
	switch s {
	case StatusOnTime, StatusLate, StatusHalfDay, StatusManual, StatusAbsent:
		return true
	}
	return false
}

type RecordSource string

const (
	SourceScan   RecordSource = "scan"
	SourceManual RecordSource = "manual"
)

// AttendanceRecord is the single record an employee holds for one
// tenant-local calendar day.
type AttendanceRecord struct {
	ID         string
	TenantID   string
	EmployeeID string
	Day        Date
	CheckIn    time.Time
	CheckOut   *time.Time
	Status     AttendanceStatus
	Source     RecordSource
	Reason     string
}

// DayState is where an employee stands for a given day.
type DayState string

const (
	DayNotStarted DayState = "not_started"
	DayOpen       DayState = "open"
	DayClosed     DayState = "closed"
)

// StateOf derives the day state from the record held for that day (nil = none).
// A day marked absent is closed whether or not it carries a check-out.
func StateOf(rec *AttendanceRecord) DayState {
	switch {
	case rec == nil:
		return DayNotStarted
	case rec.Status == StatusAbsent:
		return DayClosed
	case rec.CheckOut == nil:
		return DayOpen
	default:
		return DayClosed
	}
}

// =============================================================================
// LEAVE
// =============================================================================

type LeaveStatus string

const (
	LeavePending  LeaveStatus = "pending"
	LeaveApproved LeaveStatus = "approved"
	LeaveDenied   LeaveStatus = "denied"
)

func (s LeaveStatus) Valid() bool {
	return s == LeavePending || s == LeaveApproved || s == LeaveDenied
}

type LeaveRequest struct {
	ID         string
	TenantID   string
	EmployeeID string
	StartDate  Date
	EndDate    Date
	StartTime  *Clock // partial-day leave only
	EndTime    *Clock
	Reason     string
	Status     LeaveStatus
	CreatedAt  time.Time
}

func (r LeaveRequest) Period() Period { return Period{Start: r.StartDate, End: r.EndDate} }

// IsPartialDay reports a time-bounded, single-day request.
func (r LeaveRequest) IsPartialDay() bool { return r.StartTime != nil || r.EndTime != nil }

// =============================================================================
// SCHEDULE
// =============================================================================

// DayHours are the business hours for one weekday.
type DayHours struct {
	IsOpen bool
	Start  Clock
	End    Clock
}

// ScheduleConfig is a per-tenant singleton. Days is indexed by time.Weekday
// (Sunday = 0).
type ScheduleConfig struct {
	TenantID           string
	Days               [7]DayHours
	GracePeriodMinutes int
	MonthlyPaidLeave   int
}

// For returns the business hours of the given weekday.
func (s ScheduleConfig) For(wd time.Weekday) DayHours { return s.Days[int(wd)%7] }

// =============================================================================
// POINT LEDGER ENTRY
// =============================================================================

// PointTransaction records one gamification update. Append-only.
type PointTransaction struct {
	ID             string
	TenantID       string
	EmployeeID     string
	Day            Date
	Delta          int
	PointsAfter    int
	StreakAfter    int
	Reason         string
	IdempotencyKey string
	CreatedAt      time.Time
}

// =============================================================================
// PAYROLL PERSISTENCE
// =============================================================================

// PayrollAdjustment holds the manual overrides for one employee and month.
type PayrollAdjustment struct {
	TenantID   string
	EmployeeID string
	Month      Month
	Bonus      decimal.Decimal
	Advances   decimal.Decimal
	UpdatedAt  time.Time
}

// PayrollRun is a finalized payroll snapshot. LinesJSON is opaque to the store.
type PayrollRun struct {
	TenantID    string
	Month       Month
	FinalizedAt time.Time
	LinesJSON   string
}
