/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error kinds in one place. Callers branch with errors.Is / errors.As;
  nothing in the engine is swallowed silently.

ERROR CATEGORIES:
  1. QR errors - the scanned token cannot be used (client must re-scan)
  2. State machine errors - the day cannot take another scan
  3. Configuration errors - employee/tenant/schedule missing
  4. Store errors - conflicts and idempotency

SEE ALSO:
  - attendance/qr.go: TokenError wraps the QR sentinels
  - api/handlers.go: maps these to HTTP statuses
*/
package core

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMalformedToken: marker or field format is wrong.
	ErrMalformedToken = errors.New("malformed QR token")

	// ErrWrongTenant: token belongs to another tenant than the scanning employee.
	ErrWrongTenant = errors.New("QR token belongs to another tenant")

	// ErrTokenExpired: dynamic token older than the freshness window.
	ErrTokenExpired = errors.New("QR token expired")

	// ErrExpiredOrWrongModeToken: tenant runs dynamic QR but the token has no timestamp.
	ErrExpiredOrWrongModeToken = errors.New("QR token expired or issued for another mode")

	// ErrDayAlreadyComplete: the employee already checked in and out today.
	ErrDayAlreadyComplete = errors.New("already checked out today")

	ErrEmployeeNotFound = errors.New("employee not found")
	ErrEmployeeInactive = errors.New("employee is inactive")
	ErrTenantNotFound   = errors.New("tenant not found")
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrLeaveNotFound    = errors.New("leave request not found")

	// ErrConcurrentModification is returned when a conditional write lost a race.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrDuplicateIdempotencyKey is returned when a ledger entry with the same
	// idempotency key already exists.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrPayrollFinalized: the month's payroll was finalized, overrides are frozen.
	ErrPayrollFinalized = errors.New("payroll already finalized")

	ErrInvalidPeriod = errors.New("invalid period")
	ErrInvalidInput  = errors.New("invalid input")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DayCompleteError names the employee and day that is already closed.
type DayCompleteError struct {
	EmployeeID string
	Day        Date
	RecordID   string
}

func (e *DayCompleteError) Error() string {
	return fmt.Sprintf("employee %s already checked out on %s (record %s)", e.EmployeeID, e.Day, e.RecordID)
}

func (e *DayCompleteError) Unwrap() error { return ErrDayAlreadyComplete }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsTokenError returns true for any QR rejection.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrMalformedToken) ||
		errors.Is(err, ErrWrongTenant) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrExpiredOrWrongModeToken)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return IsTokenError(err) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrEmployeeInactive)
}

// IsConflict returns true for state conflicts (409).
func IsConflict(err error) bool {
	return errors.Is(err, ErrDayAlreadyComplete) ||
		errors.Is(err, ErrPayrollFinalized) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrTenantNotFound) ||
		errors.Is(err, ErrScheduleNotFound) ||
		errors.Is(err, ErrLeaveNotFound)
}
