/*
Package sqlite provides a SQLite-backed implementation of core.TxStore.

PURPOSE:
  Default persistence for the engine. The same statements run against
  PostgreSQL in store/postgres with only dialect changes.

KEY TABLES:
  tenants:             Tenant account, QR mode and timezone
  schedules:           Per-tenant schedule singleton (weekday hours as JSON)
  employees:           Salary, points, streak, status
  attendance:          One row per (tenant, employee, day)
  leave_requests:      Inclusive date ranges with status
  point_transactions:  Append-only gamification ledger
  payroll_adjustments: Manual bonus/advance overrides per month
  payroll_runs:        Finalized monthly snapshots

CONDITIONAL WRITES:
  - idx_attendance_unique_day makes a second check-in for the same day fail
    at the database, which surfaces as core.ErrConcurrentModification.
  - CloseAttendance only updates rows whose check_out IS NULL. Zero rows
    affected means another scan closed the day first.
  - point_transactions.idempotency_key is UNIQUE.

CONCURRENCY:
  One connection, WAL journal. WithTx holds a mutex for the whole closure so
  write transactions are serialized and never hit SQLITE_BUSY.

USAGE:
  store, err := sqlite.New("./data/staff.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - core/store.go: Interface definitions
  - core/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/staff-engine/core"
)

// Store implements core.TxStore using SQLite.
type Store struct {
	*queries
	db *sql.DB
	mu sync.Mutex
}

var _ core.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// ":memory:" is per connection; a single connection also serializes writers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, queries: &queries{q: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Health checks the database connectivity.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		qr_mode TEXT NOT NULL DEFAULT 'permanent',
		timezone TEXT NOT NULL DEFAULT 'UTC'
	);

	CREATE TABLE IF NOT EXISTS schedules (
		tenant_id TEXT PRIMARY KEY REFERENCES tenants(id),
		days_json TEXT NOT NULL,
		grace_period_minutes INTEGER NOT NULL DEFAULT 0,
		monthly_paid_leave INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS employees (
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		base_salary TEXT NOT NULL DEFAULT '0',
		points INTEGER NOT NULL DEFAULT 0,
		streak INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		PRIMARY KEY (tenant_id, id)
	);

	CREATE TABLE IF NOT EXISTS attendance (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		day TEXT NOT NULL,
		check_in TEXT NOT NULL,
		check_out TEXT,
		status TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'scan',
		reason TEXT
	);

	-- One record per employee per tenant-local day
	CREATE UNIQUE INDEX IF NOT EXISTS idx_attendance_unique_day
		ON attendance(tenant_id, employee_id, day);
	CREATE INDEX IF NOT EXISTS idx_attendance_tenant_day
		ON attendance(tenant_id, day);

	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		start_time TEXT,
		end_time TEXT,
		reason TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leave_tenant_status_dates
		ON leave_requests(tenant_id, status, start_date, end_date);

	CREATE TABLE IF NOT EXISTS point_transactions (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		day TEXT NOT NULL,
		delta INTEGER NOT NULL,
		points_after INTEGER NOT NULL,
		streak_after INTEGER NOT NULL,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_points_employee
		ON point_transactions(tenant_id, employee_id, created_at);

	CREATE TABLE IF NOT EXISTS payroll_adjustments (
		tenant_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		month TEXT NOT NULL,
		bonus TEXT NOT NULL DEFAULT '0',
		advances TEXT NOT NULL DEFAULT '0',
		updated_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, employee_id, month)
	);

	CREATE TABLE IF NOT EXISTS payroll_runs (
		tenant_id TEXT NOT NULL,
		month TEXT NOT NULL,
		finalized_at TEXT NOT NULL,
		lines_json TEXT NOT NULL,
		PRIMARY KEY (tenant_id, month)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (core.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store core.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements core.Store against a querier. Store embeds one bound to
// the database, WithTx hands out one bound to the transaction.
type queries struct {
	q querier
}

type scanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// TENANT STORE
// =============================================================================

func (s *queries) SaveTenant(ctx context.Context, t core.Tenant) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO tenants (id, name, qr_mode, timezone)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			qr_mode = excluded.qr_mode,
			timezone = excluded.timezone
	`, t.ID, t.Name, string(t.QRMode), t.Timezone)
	if err != nil {
		return fmt.Errorf("failed to save tenant: %w", err)
	}
	return nil
}

func (s *queries) GetTenant(ctx context.Context, id string) (core.Tenant, error) {
	var t core.Tenant
	var mode string
	err := s.q.QueryRowContext(ctx,
		"SELECT id, name, qr_mode, timezone FROM tenants WHERE id = ?", id,
	).Scan(&t.ID, &t.Name, &mode, &t.Timezone)
	if err == sql.ErrNoRows {
		return core.Tenant{}, core.ErrTenantNotFound
	}
	if err != nil {
		return core.Tenant{}, err
	}
	t.QRMode = core.QRMode(mode)
	return t, nil
}

func (s *queries) ListTenants(ctx context.Context) ([]core.Tenant, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT id, name, qr_mode, timezone FROM tenants ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []core.Tenant
	for rows.Next() {
		var t core.Tenant
		var mode string
		if err := rows.Scan(&t.ID, &t.Name, &mode, &t.Timezone); err != nil {
			return nil, err
		}
		t.QRMode = core.QRMode(mode)
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// scheduleDay is the JSON shape of one weekday in schedules.days_json.
type scheduleDay struct {
	IsOpen bool   `json:"isOpen"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

func encodeDays(days [7]core.DayHours) (string, error) {
	out := make([]scheduleDay, 7)
	for i, d := range days {
		out[i] = scheduleDay{IsOpen: d.IsOpen, Start: d.Start.String(), End: d.End.String()}
	}
	b, err := json.Marshal(out)
	return string(b), err
}

func decodeDays(s string) ([7]core.DayHours, error) {
	var days [7]core.DayHours
	var in []scheduleDay
	if err := json.Unmarshal([]byte(s), &in); err != nil {
		return days, fmt.Errorf("failed to decode schedule days: %w", err)
	}
	for i := 0; i < len(in) && i < 7; i++ {
		days[i].IsOpen = in[i].IsOpen
		days[i].Start, _ = core.ParseClock(in[i].Start)
		days[i].End, _ = core.ParseClock(in[i].End)
	}
	return days, nil
}

func (s *queries) SaveSchedule(ctx context.Context, sc core.ScheduleConfig) error {
	daysJSON, err := encodeDays(sc.Days)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO schedules (tenant_id, days_json, grace_period_minutes, monthly_paid_leave)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			days_json = excluded.days_json,
			grace_period_minutes = excluded.grace_period_minutes,
			monthly_paid_leave = excluded.monthly_paid_leave
	`, sc.TenantID, daysJSON, sc.GracePeriodMinutes, sc.MonthlyPaidLeave)
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	return nil
}

func (s *queries) GetSchedule(ctx context.Context, tenantID string) (core.ScheduleConfig, error) {
	sc := core.ScheduleConfig{TenantID: tenantID}
	var daysJSON string
	err := s.q.QueryRowContext(ctx,
		"SELECT days_json, grace_period_minutes, monthly_paid_leave FROM schedules WHERE tenant_id = ?",
		tenantID,
	).Scan(&daysJSON, &sc.GracePeriodMinutes, &sc.MonthlyPaidLeave)
	if err == sql.ErrNoRows {
		return core.ScheduleConfig{}, core.ErrScheduleNotFound
	}
	if err != nil {
		return core.ScheduleConfig{}, err
	}
	sc.Days, err = decodeDays(daysJSON)
	return sc, err
}

// =============================================================================
// EMPLOYEE STORE
// =============================================================================

const employeeColumns = "tenant_id, id, name, base_salary, points, streak, status"

func scanEmployee(row scanner) (core.Employee, error) {
	var e core.Employee
	var salary, status string
	if err := row.Scan(&e.TenantID, &e.ID, &e.Name, &salary, &e.Points, &e.Streak, &status); err != nil {
		return e, err
	}
	e.BaseSalary = parseDecimal(salary)
	e.Status = core.EmployeeStatus(status)
	return e, nil
}

func (s *queries) SaveEmployee(ctx context.Context, e core.Employee) error {
	status := e.Status
	if status == "" {
		status = core.EmployeeActive
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO employees (`+employeeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			name = excluded.name,
			base_salary = excluded.base_salary,
			points = excluded.points,
			streak = excluded.streak,
			status = excluded.status
	`, e.TenantID, e.ID, e.Name, e.BaseSalary.String(), e.Points, e.Streak, string(status))
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (s *queries) GetEmployee(ctx context.Context, tenantID, id string) (core.Employee, error) {
	e, err := scanEmployee(s.q.QueryRowContext(ctx,
		"SELECT "+employeeColumns+" FROM employees WHERE tenant_id = ? AND id = ?",
		tenantID, id,
	))
	if err == sql.ErrNoRows {
		return core.Employee{}, core.ErrEmployeeNotFound
	}
	return e, err
}

func (s *queries) ListEmployees(ctx context.Context, tenantID string) ([]core.Employee, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+employeeColumns+" FROM employees WHERE tenant_id = ? ORDER BY name, id",
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []core.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

func (s *queries) UpdateEmployeeStats(ctx context.Context, tenantID, id string, points, streak int) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE employees SET points = ?, streak = ? WHERE tenant_id = ? AND id = ?",
		points, streak, tenantID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update employee stats: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrEmployeeNotFound
	}
	return nil
}

// =============================================================================
// ATTENDANCE STORE
// =============================================================================

const attendanceColumns = "id, tenant_id, employee_id, day, check_in, check_out, status, source, reason"

func scanAttendance(row scanner) (core.AttendanceRecord, error) {
	var (
		rec      core.AttendanceRecord
		day      string
		checkIn  string
		checkOut sql.NullString
		status   string
		source   string
		reason   sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.TenantID, &rec.EmployeeID, &day, &checkIn, &checkOut, &status, &source, &reason); err != nil {
		return rec, err
	}
	rec.Day, _ = core.ParseDate(day)
	rec.CheckIn, _ = time.Parse(time.RFC3339Nano, checkIn)
	if checkOut.Valid {
		t, _ := time.Parse(time.RFC3339Nano, checkOut.String)
		rec.CheckOut = &t
	}
	rec.Status = core.AttendanceStatus(status)
	rec.Source = core.RecordSource(source)
	rec.Reason = reason.String
	return rec, nil
}

func attendanceArgs(rec core.AttendanceRecord) []any {
	var checkOut sql.NullString
	if rec.CheckOut != nil {
		checkOut = nullString(formatTime(*rec.CheckOut))
	}
	return []any{
		rec.ID, rec.TenantID, rec.EmployeeID, rec.Day.String(),
		formatTime(rec.CheckIn), checkOut,
		string(rec.Status), string(rec.Source), nullString(rec.Reason),
	}
}

func (s *queries) GetAttendance(ctx context.Context, tenantID, employeeID string, day core.Date) (*core.AttendanceRecord, error) {
	rec, err := scanAttendance(s.q.QueryRowContext(ctx,
		"SELECT "+attendanceColumns+" FROM attendance WHERE tenant_id = ? AND employee_id = ? AND day = ?",
		tenantID, employeeID, day.String(),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *queries) CreateAttendance(ctx context.Context, rec core.AttendanceRecord) error {
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO attendance ("+attendanceColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		attendanceArgs(rec)...,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return core.ErrConcurrentModification
		}
		return fmt.Errorf("failed to create attendance: %w", err)
	}
	return nil
}

func (s *queries) CloseAttendance(ctx context.Context, tenantID, recordID string, checkOut time.Time) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE attendance SET check_out = ? WHERE tenant_id = ? AND id = ? AND check_out IS NULL",
		formatTime(checkOut), tenantID, recordID,
	)
	if err != nil {
		return fmt.Errorf("failed to close attendance: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	// Nothing updated: either someone closed it first or the row is gone.
	rec, err := scanAttendance(s.q.QueryRowContext(ctx,
		"SELECT "+attendanceColumns+" FROM attendance WHERE tenant_id = ? AND id = ?",
		tenantID, recordID,
	))
	if err == sql.ErrNoRows {
		return core.ErrConcurrentModification
	}
	if err != nil {
		return err
	}
	return &core.DayCompleteError{EmployeeID: rec.EmployeeID, Day: rec.Day, RecordID: rec.ID}
}

func (s *queries) UpsertAttendance(ctx context.Context, rec core.AttendanceRecord) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO attendance (`+attendanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, employee_id, day) DO UPDATE SET
			check_in = excluded.check_in,
			check_out = excluded.check_out,
			status = excluded.status,
			source = excluded.source,
			reason = excluded.reason
	`, attendanceArgs(rec)...)
	if err != nil {
		return fmt.Errorf("failed to upsert attendance: %w", err)
	}
	return nil
}

func (s *queries) ListAttendance(ctx context.Context, tenantID string, p core.Period) ([]core.AttendanceRecord, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+attendanceColumns+`
		FROM attendance
		WHERE tenant_id = ? AND day >= ? AND day <= ?
		ORDER BY day ASC, employee_id ASC
	`, tenantID, p.Start.String(), p.End.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var records []core.AttendanceRecord
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// =============================================================================
// LEAVE STORE
// =============================================================================

const leaveColumns = "id, tenant_id, employee_id, start_date, end_date, start_time, end_time, reason, status, created_at"

func scanLeave(row scanner) (core.LeaveRequest, error) {
	var (
		r                  core.LeaveRequest
		start, end         string
		startTime, endTime sql.NullString
		reason             sql.NullString
		status, createdAt  string
	)
	if err := row.Scan(&r.ID, &r.TenantID, &r.EmployeeID, &start, &end, &startTime, &endTime, &reason, &status, &createdAt); err != nil {
		return r, err
	}
	r.StartDate, _ = core.ParseDate(start)
	r.EndDate, _ = core.ParseDate(end)
	r.StartTime = parseClockPtr(startTime)
	r.EndTime = parseClockPtr(endTime)
	r.Reason = reason.String
	r.Status = core.LeaveStatus(status)
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return r, nil
}

func (s *queries) SaveLeave(ctx context.Context, r core.LeaveRequest) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO leave_requests (`+leaveColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			reason = excluded.reason,
			status = excluded.status
	`, r.ID, r.TenantID, r.EmployeeID, r.StartDate.String(), r.EndDate.String(),
		clockArg(r.StartTime), clockArg(r.EndTime), nullString(r.Reason),
		string(r.Status), formatTime(createdAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save leave request: %w", err)
	}
	return nil
}

func (s *queries) GetLeave(ctx context.Context, id string) (core.LeaveRequest, error) {
	r, err := scanLeave(s.q.QueryRowContext(ctx,
		"SELECT "+leaveColumns+" FROM leave_requests WHERE id = ?", id,
	))
	if err == sql.ErrNoRows {
		return core.LeaveRequest{}, core.ErrLeaveNotFound
	}
	return r, err
}

func (s *queries) SetLeaveStatus(ctx context.Context, id string, status core.LeaveStatus) error {
	res, err := s.q.ExecContext(ctx, "UPDATE leave_requests SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update leave status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrLeaveNotFound
	}
	return nil
}

func (s *queries) ListApprovedLeave(ctx context.Context, tenantID string, p core.Period) ([]core.LeaveRequest, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+leaveColumns+`
		FROM leave_requests
		WHERE tenant_id = ? AND status = 'approved'
		  AND start_date <= ? AND end_date >= ?
		ORDER BY start_date ASC, id ASC
	`, tenantID, p.End.String(), p.Start.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query leave: %w", err)
	}
	defer rows.Close()

	var requests []core.LeaveRequest
	for rows.Next() {
		r, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// =============================================================================
// POINT STORE
// =============================================================================

func (s *queries) AppendPoints(ctx context.Context, tx core.PointTransaction) error {
	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO point_transactions
		(id, tenant_id, employee_id, day, delta, points_after, streak_after, reason, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tx.ID, tx.TenantID, tx.EmployeeID, tx.Day.String(), tx.Delta,
		tx.PointsAfter, tx.StreakAfter, nullString(tx.Reason),
		nullString(tx.IdempotencyKey), formatTime(createdAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return core.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append point transaction: %w", err)
	}
	return nil
}

func (s *queries) ListPoints(ctx context.Context, tenantID, employeeID string) ([]core.PointTransaction, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, tenant_id, employee_id, day, delta, points_after, streak_after, reason, idempotency_key, created_at
		FROM point_transactions
		WHERE tenant_id = ? AND employee_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, tenantID, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []core.PointTransaction
	for rows.Next() {
		var (
			tx             core.PointTransaction
			day, createdAt string
			reason, key    sql.NullString
		)
		if err := rows.Scan(&tx.ID, &tx.TenantID, &tx.EmployeeID, &day, &tx.Delta,
			&tx.PointsAfter, &tx.StreakAfter, &reason, &key, &createdAt); err != nil {
			return nil, err
		}
		tx.Day, _ = core.ParseDate(day)
		tx.Reason = reason.String
		tx.IdempotencyKey = key.String
		tx.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// =============================================================================
// PAYROLL STORE
// =============================================================================

func (s *queries) SaveAdjustment(ctx context.Context, a core.PayrollAdjustment) error {
	updatedAt := a.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO payroll_adjustments (tenant_id, employee_id, month, bonus, advances, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, employee_id, month) DO UPDATE SET
			bonus = excluded.bonus,
			advances = excluded.advances,
			updated_at = excluded.updated_at
	`, a.TenantID, a.EmployeeID, a.Month.String(), a.Bonus.String(), a.Advances.String(), formatTime(updatedAt))
	if err != nil {
		return fmt.Errorf("failed to save adjustment: %w", err)
	}
	return nil
}

func (s *queries) ListAdjustments(ctx context.Context, tenantID string, m core.Month) ([]core.PayrollAdjustment, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT employee_id, bonus, advances, updated_at
		FROM payroll_adjustments
		WHERE tenant_id = ? AND month = ?
		ORDER BY employee_id
	`, tenantID, m.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var adjustments []core.PayrollAdjustment
	for rows.Next() {
		a := core.PayrollAdjustment{TenantID: tenantID, Month: m}
		var bonus, advances, updatedAt string
		if err := rows.Scan(&a.EmployeeID, &bonus, &advances, &updatedAt); err != nil {
			return nil, err
		}
		a.Bonus = parseDecimal(bonus)
		a.Advances = parseDecimal(advances)
		a.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		adjustments = append(adjustments, a)
	}
	return adjustments, rows.Err()
}

func (s *queries) SavePayrollRun(ctx context.Context, r core.PayrollRun) error {
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO payroll_runs (tenant_id, month, finalized_at, lines_json) VALUES (?, ?, ?, ?)",
		r.TenantID, r.Month.String(), formatTime(r.FinalizedAt), r.LinesJSON,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return core.ErrPayrollFinalized
		}
		return fmt.Errorf("failed to save payroll run: %w", err)
	}
	return nil
}

func (s *queries) GetPayrollRun(ctx context.Context, tenantID string, m core.Month) (*core.PayrollRun, error) {
	r := core.PayrollRun{TenantID: tenantID, Month: m}
	var finalizedAt string
	err := s.q.QueryRowContext(ctx,
		"SELECT finalized_at, lines_json FROM payroll_runs WHERE tenant_id = ? AND month = ?",
		tenantID, m.String(),
	).Scan(&finalizedAt, &r.LinesJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.FinalizedAt, _ = time.Parse(time.RFC3339Nano, finalizedAt)
	return &r, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// timestampLayout is fixed width so stored instants sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func clockArg(c *core.Clock) sql.NullString {
	if c == nil {
		return sql.NullString{}
	}
	return nullString(c.String())
}

func parseClockPtr(s sql.NullString) *core.Clock {
	if !s.Valid {
		return nil
	}
	c, err := core.ParseClock(s.String)
	if err != nil {
		return nil
	}
	return &c
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
