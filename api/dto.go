/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags. decodeRequest decodes
  the body and validates it; field names in messages are the JSON names.
  Semantic checks (dates, clock times, money) happen when the request is
  converted to engine types.

MONEY:
  Amounts are rendered as strings with no fractional part. Excluded payroll
  lines render every amount as "N/A".

SEE ALSO:
  - handlers.go: Uses these types
  - factory/tenant.go: Schedule document shape reused by the schedule endpoint
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/staff-engine/attendance"
	"github.com/warp/staff-engine/core"
	"github.com/warp/staff-engine/payroll"
)

const notApplicable = "N/A"

// =============================================================================
// TENANT / EMPLOYEE
// =============================================================================

type CreateTenantRequest struct {
	ID       string `json:"id" validate:"required,max=64"`
	Name     string `json:"name" validate:"required,max=200"`
	QRMode   string `json:"qr_mode" validate:"omitempty,oneof=permanent dynamic"`
	Timezone string `json:"timezone" validate:"omitempty,timezone"`
}

type TenantDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	QRMode   string `json:"qr_mode"`
	Timezone string `json:"timezone"`
}

type CreateEmployeeRequest struct {
	ID         string `json:"id" validate:"required,max=64"`
	Name       string `json:"name" validate:"required,max=200"`
	BaseSalary string `json:"base_salary" validate:"omitempty,numeric"`
	Status     string `json:"status" validate:"omitempty,oneof=active inactive"`
}

type EmployeeDTO struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	Name       string `json:"name"`
	BaseSalary string `json:"base_salary"`
	Points     int    `json:"points"`
	Streak     int    `json:"streak"`
	Status     string `json:"status"`
}

func toEmployeeDTO(e core.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:         e.ID,
		TenantID:   e.TenantID,
		Name:       e.Name,
		BaseSalary: e.BaseSalary.String(),
		Points:     e.Points,
		Streak:     e.Streak,
		Status:     string(e.Status),
	}
}

type PointTransactionDTO struct {
	ID          string `json:"id"`
	Day         string `json:"day"`
	Delta       int    `json:"delta"`
	PointsAfter int    `json:"points_after"`
	StreakAfter int    `json:"streak_after"`
	Reason      string `json:"reason"`
	CreatedAt   string `json:"created_at"`
}

type PointsDTO struct {
	Employee EmployeeDTO           `json:"employee"`
	Balance  int                   `json:"ledger_balance"`
	History  []PointTransactionDTO `json:"history"`
}

// =============================================================================
// SCAN / ATTENDANCE
// =============================================================================

type ScanRequest struct {
	Token      string `json:"token" validate:"required"`
	TenantID   string `json:"tenant_id" validate:"required"`
	EmployeeID string `json:"employee_id" validate:"required"`
}

// ScanResponse reports the transition, or the rejection reason code.
type ScanResponse struct {
	Result  string         `json:"result"`
	Reason  string         `json:"reason,omitempty"`
	Message string         `json:"message,omitempty"`
	Record  *AttendanceDTO `json:"record,omitempty"`
	Points  int            `json:"points"`
	Streak  int            `json:"streak"`
	Delta   int            `json:"delta,omitempty"`
	Bonus   bool           `json:"streak_bonus,omitempty"`
}

const resultRejected = "rejected"

type AttendanceDTO struct {
	ID         string  `json:"id"`
	EmployeeID string  `json:"employee_id"`
	Day        string  `json:"day"`
	CheckIn    string  `json:"check_in"`
	CheckOut   *string `json:"check_out,omitempty"`
	Status     string  `json:"status"`
	Source     string  `json:"source"`
	Reason     string  `json:"reason,omitempty"`
}

func toAttendanceDTO(r core.AttendanceRecord) AttendanceDTO {
	dto := AttendanceDTO{
		ID:         r.ID,
		EmployeeID: r.EmployeeID,
		Day:        r.Day.String(),
		CheckIn:    r.CheckIn.Format(time.RFC3339),
		Status:     string(r.Status),
		Source:     string(r.Source),
		Reason:     r.Reason,
	}
	if r.CheckOut != nil {
		s := r.CheckOut.Format(time.RFC3339)
		dto.CheckOut = &s
	}
	return dto
}

type ManualAttendanceRequest struct {
	EmployeeID string     `json:"employee_id" validate:"required"`
	Date       string     `json:"date" validate:"omitempty,datetime=2006-01-02"`
	CheckIn    *time.Time `json:"check_in"`
	CheckOut   *time.Time `json:"check_out"`
	Status     string     `json:"status" validate:"required,oneof=on_time late half_day manual absent"`
	Reason     string     `json:"reason" validate:"max=500"`
}

func (req ManualAttendanceRequest) toEntry(tenantID string) (attendance.ManualEntry, error) {
	e := attendance.ManualEntry{
		TenantID:   tenantID,
		EmployeeID: req.EmployeeID,
		CheckOut:   req.CheckOut,
		Status:     core.AttendanceStatus(req.Status),
		Reason:     req.Reason,
	}
	if req.CheckIn != nil {
		e.CheckIn = *req.CheckIn
	}
	if req.Date != "" {
		d, err := core.ParseDate(req.Date)
		if err != nil {
			return e, fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
		}
		e.Date = d
	}
	return e, nil
}

type QRDTO struct {
	Token          string `json:"token"`
	Mode           string `json:"mode"`
	RefreshSeconds int    `json:"refresh_seconds,omitempty"`
	ExpiresAt      string `json:"expires_at,omitempty"`
}

// =============================================================================
// LEAVE
// =============================================================================

type SubmitLeaveRequest struct {
	EmployeeID string `json:"employee_id" validate:"required"`
	StartDate  string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate    string `json:"end_date" validate:"required,datetime=2006-01-02"`
	StartTime  string `json:"start_time" validate:"omitempty,datetime=15:04"`
	EndTime    string `json:"end_time" validate:"omitempty,datetime=15:04"`
	Reason     string `json:"reason" validate:"max=500"`
}

type LeaveStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=approved denied"`
}

type LeaveDTO struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employee_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	StartTime  string `json:"start_time,omitempty"`
	EndTime    string `json:"end_time,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Status     string `json:"status"`
}

func toLeaveDTO(r core.LeaveRequest) LeaveDTO {
	dto := LeaveDTO{
		ID:         r.ID,
		EmployeeID: r.EmployeeID,
		StartDate:  r.StartDate.String(),
		EndDate:    r.EndDate.String(),
		Reason:     r.Reason,
		Status:     string(r.Status),
	}
	if r.StartTime != nil {
		dto.StartTime = r.StartTime.String()
	}
	if r.EndTime != nil {
		dto.EndTime = r.EndTime.String()
	}
	return dto
}

// =============================================================================
// PAYROLL / MUSTER
// =============================================================================

type AdjustmentRequest struct {
	Bonus    string `json:"bonus" validate:"omitempty,numeric"`
	Advances string `json:"advances" validate:"omitempty,numeric"`
}

func (req AdjustmentRequest) amounts() (bonus, advances decimal.Decimal, err error) {
	parse := func(s string) (decimal.Decimal, error) {
		if s == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: amount %q", core.ErrInvalidInput, s)
		}
		return d, nil
	}
	if bonus, err = parse(req.Bonus); err != nil {
		return
	}
	advances, err = parse(req.Advances)
	return
}

type AdjustmentDTO struct {
	EmployeeID string `json:"employee_id"`
	Month      string `json:"month"`
	Bonus      string `json:"bonus"`
	Advances   string `json:"advances"`
}

type PayrollLineDTO struct {
	EmployeeID           string `json:"employee_id"`
	EmployeeName         string `json:"employee_name"`
	Excluded             bool   `json:"excluded"`
	BaseSalary           string `json:"base_salary"`
	DailyRate            string `json:"daily_rate"`
	PresentCount         int    `json:"present_count"`
	HalfDayCount         int    `json:"half_day_count"`
	LeaveDays            int    `json:"leave_days"`
	PaidLeaveUsed        int    `json:"paid_leave_used"`
	UnpaidLeave          int    `json:"unpaid_leave"`
	HalfDayDeduction     string `json:"half_day_deduction"`
	UnpaidLeaveDeduction string `json:"unpaid_leave_deduction"`
	Bonus                string `json:"bonus"`
	Advances             string `json:"advances"`
	TotalEarnings        string `json:"total_earnings"`
	TotalDeductions      string `json:"total_deductions"`
	FinalSalary          string `json:"final_salary"`
}

type PayrollDTO struct {
	Month       string           `json:"month"`
	Finalized   bool             `json:"finalized"`
	FinalizedAt string           `json:"finalized_at,omitempty"`
	Lines       []PayrollLineDTO `json:"lines"`
}

func money(d decimal.Decimal) string { return d.StringFixed(0) }

func toPayrollLineDTO(l payroll.Line) PayrollLineDTO {
	dto := PayrollLineDTO{
		EmployeeID:   l.EmployeeID,
		EmployeeName: l.EmployeeName,
		Excluded:     l.Excluded,
	}
	if l.Excluded {
		na := notApplicable
		dto.BaseSalary, dto.DailyRate = na, na
		dto.HalfDayDeduction, dto.UnpaidLeaveDeduction = na, na
		dto.Bonus, dto.Advances = na, na
		dto.TotalEarnings, dto.TotalDeductions, dto.FinalSalary = na, na, na
		return dto
	}
	dto.BaseSalary = money(l.BaseSalary)
	dto.DailyRate = l.DailyRate.StringFixed(2)
	dto.PresentCount = l.PresentCount
	dto.HalfDayCount = l.HalfDayCount
	dto.LeaveDays = l.LeaveDays
	dto.PaidLeaveUsed = l.PaidLeaveUsed
	dto.UnpaidLeave = l.UnpaidLeave
	dto.HalfDayDeduction = money(l.HalfDayDeduction)
	dto.UnpaidLeaveDeduction = money(l.UnpaidLeaveDeduction)
	dto.Bonus = money(l.Bonus)
	dto.Advances = money(l.Advances)
	dto.TotalEarnings = money(l.TotalEarnings)
	dto.TotalDeductions = money(l.TotalDeductions)
	dto.FinalSalary = money(l.FinalSalary)
	return dto
}

type MusterRowDTO struct {
	EmployeeID   string         `json:"employee_id"`
	EmployeeName string         `json:"employee_name"`
	Days         []string       `json:"days"`
	Totals       map[string]int `json:"totals"`
}

type MusterDTO struct {
	Month string         `json:"month"`
	Days  int            `json:"days"`
	Rows  []MusterRowDTO `json:"rows"`
}

func toMusterRowDTO(r payroll.MusterRow) MusterRowDTO {
	dto := MusterRowDTO{
		EmployeeID:   r.EmployeeID,
		EmployeeName: r.EmployeeName,
		Days:         make([]string, len(r.Days)),
		Totals:       make(map[string]int, len(r.Totals)),
	}
	for i, c := range r.Days {
		dto.Days[i] = string(c.Symbol)
	}
	for sym, n := range r.Totals {
		dto.Totals[string(sym)] = n
	}
	return dto
}

// =============================================================================
// SCENARIOS / ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// DECODING
// =============================================================================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeRequest decodes a JSON body into dst and validates it. Errors wrap
// core.ErrInvalidInput.
func decodeRequest(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %s", core.ErrInvalidInput, formatBindingError(err))
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", core.ErrInvalidInput, formatBindingError(err))
	}
	return nil
}

func formatBindingError(err error) string {
	if errors.Is(err, io.EOF) {
		return "Request body is empty"
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return fmt.Sprintf("Invalid JSON at byte offset %d", syntaxErr.Offset)
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("Field '%s' should be of type %s", typeErr.Field, typeErr.Type.String())
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		out := make([]string, 0, len(ve))
		for _, fe := range ve {
			out = append(out, formatFieldError(fe))
		}
		return strings.Join(out, ", ")
	}
	return err.Error()
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Field '%s' is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("Field '%s' must be one of [%s]", fe.Field(), fe.Param())
	case "datetime":
		return fmt.Sprintf("Field '%s' must match %s", fe.Field(), fe.Param())
	case "numeric":
		return fmt.Sprintf("Field '%s' must be numeric", fe.Field())
	case "max":
		return fmt.Sprintf("Field '%s' must be at most %s", fe.Field(), fe.Param())
	case "timezone":
		return fmt.Sprintf("Field '%s' must be an IANA timezone", fe.Field())
	}
	return fmt.Sprintf("Field '%s' failed validation for '%s'", fe.Field(), fe.Tag())
}
