/*
handlers.go - HTTP API handlers for the staff attendance and payroll engine

PURPOSE:
  Exposes the engine via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to the attendance, timeoff and payroll
  packages.

ENDPOINTS:
  Scanning:
    POST   /api/scan                                     QR scan (check-in / check-out)
    GET    /api/tenants/{tenantID}/qr                    Current token text

  Tenants & staff:
    POST   /api/tenants                                  Create or update tenant
    GET    /api/tenants/{tenantID}/schedule              Business hours
    PUT    /api/tenants/{tenantID}/schedule              Replace business hours
    GET    /api/tenants/{tenantID}/employees             List employees
    POST   /api/tenants/{tenantID}/employees             Create or update employee
    GET    /api/tenants/{tenantID}/employees/{id}/points Point balance and ledger

  Attendance & leave:
    POST   /api/tenants/{tenantID}/attendance/manual     Administrative entry
    GET    /api/tenants/{tenantID}/attendance?month=     Month of records
    POST   /api/tenants/{tenantID}/leave                 Submit leave request
    POST   /api/leave/{id}/status                        Approve or deny

  Reports:
    GET    /api/tenants/{tenantID}/payroll?month=        Payroll lines
    PUT    /api/tenants/{tenantID}/payroll/{month}/adjustments/{employeeID}
    POST   /api/tenants/{tenantID}/payroll/{month}/finalize
    GET    /api/tenants/{tenantID}/muster?month=         Muster roll

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, inactive employee
  - 404: Tenant, employee, schedule or leave request not found
  - 409: Day already complete, payroll finalized, lost races
  - 422: QR token rejected (scan responds with result "rejected")
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The scanning employee and tenant are taken from the
  request body; a session layer is expected in front of this API.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/staff-engine/attendance"
	"github.com/warp/staff-engine/core"
	"github.com/warp/staff-engine/factory"
	"github.com/warp/staff-engine/payroll"
	"github.com/warp/staff-engine/timeoff"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   core.TxStore
	Machine *attendance.Machine
	Payroll *payroll.Service
	Leave   *timeoff.RequestService
	Metrics *Metrics
	Logger  *slog.Logger

	now func() time.Time

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store core.TxStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		Store:   store,
		Machine: attendance.NewMachine(store, logger),
		Payroll: payroll.NewService(store, logger),
		Leave:   timeoff.NewRequestService(store, logger),
		Metrics: NewMetrics(),
		Logger:  logger,
	}
	h.SetClock(time.Now)
	return h
}

// SetClock replaces the clock of the handler and every service it drives.
func (h *Handler) SetClock(now func() time.Time) {
	h.now = now
	h.Machine.Now = now
	h.Payroll.Now = now
	h.Leave.Now = now
}

// =============================================================================
// SCAN
// =============================================================================

// Scan applies a QR scan. Rejections are reported with result "rejected"
// and a reason code instead of a bare error.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { h.Metrics.ScanDuration.Observe(time.Since(start).Seconds()) }()

	var req ScanRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, "Invalid scan request", err)
		return
	}

	res, err := h.Machine.Scan(r.Context(), attendance.ScanRequest{
		RawToken:   req.Token,
		TenantID:   req.TenantID,
		EmployeeID: req.EmployeeID,
	})
	if err != nil {
		if reason, status, ok := rejection(err); ok {
			h.Metrics.Scans.WithLabelValues(resultRejected, reason).Inc()
			writeJSON(w, status, ScanResponse{Result: resultRejected, Reason: reason, Message: err.Error()})
			return
		}
		h.fail(w, "Scan failed", err)
		return
	}

	h.Metrics.Scans.WithLabelValues(string(res.Action), "").Inc()
	rec := toAttendanceDTO(res.Record)
	resp := ScanResponse{
		Result: string(res.Action),
		Record: &rec,
		Points: res.Points,
		Streak: res.Streak,
	}
	if res.Reward != nil {
		resp.Delta = res.Reward.Delta
		resp.Bonus = res.Reward.Bonus
	}
	writeJSON(w, http.StatusOK, resp)
}

// rejection maps the scan errors a scanner should show to the user.
func rejection(err error) (reason string, status int, ok bool) {
	var tokenErr *attendance.TokenError
	switch {
	case errors.As(err, &tokenErr):
		return tokenErr.Code(), http.StatusUnprocessableEntity, true
	case errors.Is(err, core.ErrDayAlreadyComplete):
		return "day_already_complete", http.StatusConflict, true
	case errors.Is(err, core.ErrEmployeeInactive):
		return "employee_inactive", http.StatusBadRequest, true
	}
	return "", 0, false
}

// GetQR returns the token text a tenant's display should show right now.
func (h *Handler) GetQR(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.Store.GetTenant(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		h.fail(w, "Failed to load tenant", err)
		return
	}

	now := h.now()
	dto := QRDTO{Token: attendance.IssueToken(tenant, now), Mode: string(tenant.QRMode)}
	if tenant.QRMode == core.QRModeDynamic {
		dto.RefreshSeconds = int(attendance.RefreshInterval.Seconds())
		dto.ExpiresAt = now.Add(attendance.MaxTokenAge).UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// TENANT & EMPLOYEE HANDLERS
// =============================================================================

// CreateTenant creates or updates a tenant.
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, "Invalid tenant", err)
		return
	}

	t, err := factory.FromTenantDoc(factory.TenantDoc{
		ID: req.ID, Name: req.Name, QRMode: req.QRMode, Timezone: req.Timezone,
	})
	if err != nil {
		h.fail(w, "Invalid tenant", err)
		return
	}
	if err := factory.Apply(r.Context(), h.Store, []factory.Tenant{t}); err != nil {
		h.fail(w, "Failed to save tenant", err)
		return
	}

	writeJSON(w, http.StatusCreated, TenantDTO{
		ID: t.Tenant.ID, Name: t.Tenant.Name, QRMode: string(t.Tenant.QRMode), Timezone: t.Tenant.Timezone,
	})
}

// GetSchedule returns the tenant's business hours.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	sc, err := h.Store.GetSchedule(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		h.fail(w, "Failed to load schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, factory.ToScheduleDoc(sc))
}

// PutSchedule replaces the tenant's business hours.
func (h *Handler) PutSchedule(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var doc factory.ScheduleDoc
	if err := decodeRequest(r, &doc); err != nil {
		h.fail(w, "Invalid schedule", err)
		return
	}
	if _, err := h.Store.GetTenant(r.Context(), tenantID); err != nil {
		h.fail(w, "Failed to load tenant", err)
		return
	}
	sc, err := factory.ParseSchedule(tenantID, doc)
	if err != nil {
		h.fail(w, "Invalid schedule", err)
		return
	}
	if err := h.Store.SaveSchedule(r.Context(), sc); err != nil {
		h.fail(w, "Failed to save schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, factory.ToScheduleDoc(sc))
}

// ListEmployees returns the tenant's employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		h.fail(w, "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEmployee creates or updates an employee. Points and streak are
// never set through this endpoint.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := chi.URLParam(r, "tenantID")

	var req CreateEmployeeRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, "Invalid employee", err)
		return
	}
	tenant, err := h.Store.GetTenant(ctx, tenantID)
	if err != nil {
		h.fail(w, "Failed to load tenant", err)
		return
	}
	e, err := factory.ParseEmployee(tenantID, factory.EmployeeDoc{
		ID: req.ID, Name: req.Name, BaseSalary: req.BaseSalary, Status: req.Status,
	})
	if err != nil {
		h.fail(w, "Invalid employee", err)
		return
	}
	if err := factory.Apply(ctx, h.Store, []factory.Tenant{{Tenant: tenant, Employees: []core.Employee{e}}}); err != nil {
		h.fail(w, "Failed to save employee", err)
		return
	}

	saved, err := h.Store.GetEmployee(ctx, tenantID, e.ID)
	if err != nil {
		h.fail(w, "Failed to load employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(saved))
}

// GetPoints returns the employee's balance and point ledger.
func (h *Handler) GetPoints(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := chi.URLParam(r, "tenantID")

	emp, err := h.Store.GetEmployee(ctx, tenantID, chi.URLParam(r, "employeeID"))
	if err != nil {
		h.fail(w, "Failed to load employee", err)
		return
	}
	ledger := core.NewPointLedger(h.Store)
	history, err := ledger.History(ctx, tenantID, emp.ID)
	if err != nil {
		h.fail(w, "Failed to load point history", err)
		return
	}
	balance, err := ledger.Balance(ctx, tenantID, emp.ID)
	if err != nil {
		h.fail(w, "Failed to load point balance", err)
		return
	}

	dto := PointsDTO{
		Employee: toEmployeeDTO(emp),
		Balance:  balance,
		History:  make([]PointTransactionDTO, len(history)),
	}
	for i, tx := range history {
		dto.History[i] = PointTransactionDTO{
			ID:          tx.ID,
			Day:         tx.Day.String(),
			Delta:       tx.Delta,
			PointsAfter: tx.PointsAfter,
			StreakAfter: tx.StreakAfter,
			Reason:      tx.Reason,
			CreatedAt:   tx.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// ATTENDANCE & LEAVE HANDLERS
// =============================================================================

// RecordManualAttendance writes an administrative record. It does not touch
// points or streaks.
func (h *Handler) RecordManualAttendance(w http.ResponseWriter, r *http.Request) {
	var req ManualAttendanceRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, "Invalid attendance entry", err)
		return
	}
	entry, err := req.toEntry(chi.URLParam(r, "tenantID"))
	if err != nil {
		h.fail(w, "Invalid attendance entry", err)
		return
	}

	rec, err := h.Machine.RecordManual(r.Context(), entry)
	if err != nil {
		h.fail(w, "Failed to record attendance", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAttendanceDTO(rec))
}

// ListAttendance returns the month's records, optionally for one employee.
func (h *Handler) ListAttendance(w http.ResponseWriter, r *http.Request) {
	month, err := core.ParseMonth(r.URL.Query().Get("month"))
	if err != nil {
		h.fail(w, "Invalid month", err)
		return
	}
	records, err := h.Store.ListAttendance(r.Context(), chi.URLParam(r, "tenantID"), month.Period())
	if err != nil {
		h.fail(w, "Failed to list attendance", err)
		return
	}

	employeeID := r.URL.Query().Get("employee_id")
	dtos := make([]AttendanceDTO, 0, len(records))
	for _, rec := range records {
		if employeeID != "" && rec.EmployeeID != employeeID {
			continue
		}
		dtos = append(dtos, toAttendanceDTO(rec))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SubmitLeave records a pending leave request.
func (h *Handler) SubmitLeave(w http.ResponseWriter, r *http.Request) {
	var req SubmitLeaveRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, "Invalid leave request", err)
		return
	}
	sub, err := req.toSubmission(chi.URLParam(r, "tenantID"))
	if err != nil {
		h.fail(w, "Invalid leave request", err)
		return
	}

	leave, err := h.Leave.Submit(r.Context(), sub)
	if err != nil {
		h.fail(w, "Failed to submit leave", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveDTO(leave))
}

func (req SubmitLeaveRequest) toSubmission(tenantID string) (timeoff.Submission, error) {
	sub := timeoff.Submission{TenantID: tenantID, EmployeeID: req.EmployeeID, Reason: req.Reason}
	var err error
	if sub.StartDate, err = core.ParseDate(req.StartDate); err != nil {
		return sub, errors.Join(core.ErrInvalidInput, err)
	}
	if sub.EndDate, err = core.ParseDate(req.EndDate); err != nil {
		return sub, errors.Join(core.ErrInvalidInput, err)
	}
	for _, c := range []struct {
		raw string
		dst **core.Clock
	}{{req.StartTime, &sub.StartTime}, {req.EndTime, &sub.EndTime}} {
		if c.raw == "" {
			continue
		}
		clock, err := core.ParseClock(c.raw)
		if err != nil {
			return sub, errors.Join(core.ErrInvalidInput, err)
		}
		*c.dst = &clock
	}
	return sub, nil
}

// SetLeaveStatus approves or denies a pending request.
func (h *Handler) SetLeaveStatus(w http.ResponseWriter, r *http.Request) {
	var req LeaveStatusRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, "Invalid status", err)
		return
	}
	leave, err := h.Leave.SetStatus(r.Context(), chi.URLParam(r, "id"), core.LeaveStatus(req.Status))
	if err != nil {
		h.fail(w, "Failed to update leave", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(leave))
}

// =============================================================================
// PAYROLL & MUSTER HANDLERS
// =============================================================================

// GetPayroll returns the finalized snapshot when the month is finalized,
// otherwise a live computation.
func (h *Handler) GetPayroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := chi.URLParam(r, "tenantID")
	month, err := core.ParseMonth(r.URL.Query().Get("month"))
	if err != nil {
		h.fail(w, "Invalid month", err)
		return
	}

	dto := PayrollDTO{Month: month.String()}
	run, lines, err := h.Payroll.FinalizedRun(ctx, tenantID, month)
	if err == nil && run == nil {
		lines, err = h.Payroll.ComputePayroll(ctx, tenantID, month)
		h.Metrics.report("payroll", err)
	}
	if err != nil {
		h.fail(w, "Failed to compute payroll", err)
		return
	}
	if run != nil {
		dto.Finalized = true
		dto.FinalizedAt = run.FinalizedAt.Format(time.RFC3339)
	}

	dto.Lines = make([]PayrollLineDTO, len(lines))
	for i, l := range lines {
		dto.Lines[i] = toPayrollLineDTO(l)
	}
	writeJSON(w, http.StatusOK, dto)
}

// PutAdjustment sets the manual bonus and advances for one employee.
func (h *Handler) PutAdjustment(w http.ResponseWriter, r *http.Request) {
	month, err := core.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		h.fail(w, "Invalid month", err)
		return
	}
	var req AdjustmentRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, "Invalid adjustment", err)
		return
	}
	bonus, advances, err := req.amounts()
	if err != nil {
		h.fail(w, "Invalid adjustment", err)
		return
	}

	adj, err := h.Payroll.SetAdjustment(r.Context(), chi.URLParam(r, "tenantID"), month, chi.URLParam(r, "employeeID"), bonus, advances)
	if err != nil {
		h.fail(w, "Failed to save adjustment", err)
		return
	}
	writeJSON(w, http.StatusOK, AdjustmentDTO{
		EmployeeID: adj.EmployeeID,
		Month:      adj.Month.String(),
		Bonus:      money(adj.Bonus),
		Advances:   money(adj.Advances),
	})
}

// FinalizePayroll snapshots the month's payroll.
func (h *Handler) FinalizePayroll(w http.ResponseWriter, r *http.Request) {
	month, err := core.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		h.fail(w, "Invalid month", err)
		return
	}

	run, lines, err := h.Payroll.Finalize(r.Context(), chi.URLParam(r, "tenantID"), month)
	h.Metrics.report("finalize", err)
	if err != nil {
		h.fail(w, "Failed to finalize payroll", err)
		return
	}
	h.Metrics.Finalized.Inc()

	dto := PayrollDTO{
		Month:       month.String(),
		Finalized:   true,
		FinalizedAt: run.FinalizedAt.Format(time.RFC3339),
		Lines:       make([]PayrollLineDTO, len(lines)),
	}
	for i, l := range lines {
		dto.Lines[i] = toPayrollLineDTO(l)
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetMuster returns the month's muster roll.
func (h *Handler) GetMuster(w http.ResponseWriter, r *http.Request) {
	month, err := core.ParseMonth(r.URL.Query().Get("month"))
	if err != nil {
		h.fail(w, "Invalid month", err)
		return
	}

	rows, err := h.Payroll.ComputeMuster(r.Context(), chi.URLParam(r, "tenantID"), month)
	h.Metrics.report("muster", err)
	if err != nil {
		h.fail(w, "Failed to compute muster roll", err)
		return
	}

	dto := MusterDTO{Month: month.String(), Days: month.Days(), Rows: make([]MusterRowDTO, len(rows))}
	for i, row := range rows {
		dto.Rows[i] = toMusterRowDTO(row)
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// HEALTH
// =============================================================================

type healthChecker interface {
	Health(ctx context.Context) error
}

// Health is a readiness probe. Stores without a Health method are always ok.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	if hc, ok := h.Store.(healthChecker); ok {
		if err := hc.Health(ctx); err != nil {
			h.Logger.Warn("health check failed", "err", err)
			status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps engine errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case core.IsNotFound(err):
		return http.StatusNotFound
	case core.IsTokenError(err):
		return http.StatusUnprocessableEntity
	case core.IsConflict(err):
		return http.StatusConflict
	case core.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error(message, "err", err)
	}
	writeError(w, status, message, err)
}
