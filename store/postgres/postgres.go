/*
Package postgres provides a PostgreSQL-backed core.TxStore using pgx.

PURPOSE:
  Production persistence for multi-instance deployments. Statements mirror
  store/sqlite; the differences are the dialect (numbered placeholders, DATE,
  NUMERIC, TIMESTAMPTZ) and how concurrency is handled.

CONCURRENCY:
  Unlike SQLite there is no process-wide mutex. WithTx opens a SERIALIZABLE
  transaction; unique violations (23505) and serialization failures (40001)
  both surface as core.ErrConcurrentModification so callers can retry.

SEE ALSO:
  - store/sqlite/sqlite.go: Same contract on SQLite
  - core/store.go: Interface definitions
*/
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/warp/staff-engine/core"
)

// Store implements core.TxStore on a pgx pool.
type Store struct {
	*queries
	Pool *pgxpool.Pool
}

var _ core.TxStore = (*Store)(nil)

// New creates and verifies a pgx pool connection, then migrates the schema.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	s := &Store{Pool: pool, queries: &queries{q: pool}}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.Pool != nil {
		s.Pool.Close()
	}
	return nil
}

// Health checks the database connectivity.
func (s *Store) Health(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		qr_mode TEXT NOT NULL DEFAULT 'permanent',
		timezone TEXT NOT NULL DEFAULT 'UTC'
	);

	CREATE TABLE IF NOT EXISTS schedules (
		tenant_id TEXT PRIMARY KEY REFERENCES tenants(id),
		days_json JSONB NOT NULL,
		grace_period_minutes INTEGER NOT NULL DEFAULT 0,
		monthly_paid_leave INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS employees (
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		base_salary NUMERIC(16,2) NOT NULL DEFAULT 0,
		points INTEGER NOT NULL DEFAULT 0,
		streak INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		PRIMARY KEY (tenant_id, id)
	);

	CREATE TABLE IF NOT EXISTS attendance (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		day DATE NOT NULL,
		check_in TIMESTAMPTZ NOT NULL,
		check_out TIMESTAMPTZ,
		status TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'scan',
		reason TEXT NOT NULL DEFAULT ''
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_attendance_unique_day
		ON attendance(tenant_id, employee_id, day);

	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		start_time TEXT,
		end_time TEXT,
		reason TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_leave_tenant_status_dates
		ON leave_requests(tenant_id, status, start_date, end_date);

	CREATE TABLE IF NOT EXISTS point_transactions (
		seq BIGSERIAL,
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		day DATE NOT NULL,
		delta INTEGER NOT NULL,
		points_after INTEGER NOT NULL,
		streak_after INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS payroll_adjustments (
		tenant_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		month TEXT NOT NULL,
		bonus NUMERIC(16,2) NOT NULL DEFAULT 0,
		advances NUMERIC(16,2) NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (tenant_id, employee_id, month)
	);

	CREATE TABLE IF NOT EXISTS payroll_runs (
		tenant_id TEXT NOT NULL,
		month TEXT NOT NULL,
		finalized_at TIMESTAMPTZ NOT NULL,
		lines_json JSONB NOT NULL,
		PRIMARY KEY (tenant_id, month)
	);
	`
	_, err := s.Pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx runs fn in a SERIALIZABLE transaction. A serialization failure or
// unique violation raised by any statement, reads included, comes back as
// core.ErrConcurrentModification so callers can retry.
func (s *Store) WithTx(ctx context.Context, fn func(store core.Store) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&queries{q: tx, forUpdate: true}); err != nil {
		if isSerializationFailure(err) || isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", core.ErrConcurrentModification, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) || isUniqueViolation(err) {
			return core.ErrConcurrentModification
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// pgxQuerier is satisfied by both pgxpool.Pool and pgx.Tx.
type pgxQuerier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type queries struct {
	q pgxQuerier
	// forUpdate locks employee rows read inside a transaction so two scans
	// for the same employee queue behind each other.
	forUpdate bool
}

// =============================================================================
// TENANT STORE
// =============================================================================

func (s *queries) SaveTenant(ctx context.Context, t core.Tenant) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO tenants (id, name, qr_mode, timezone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			qr_mode = EXCLUDED.qr_mode,
			timezone = EXCLUDED.timezone
	`, t.ID, t.Name, string(t.QRMode), t.Timezone)
	return wrap("save tenant", err)
}

func (s *queries) GetTenant(ctx context.Context, id string) (core.Tenant, error) {
	var t core.Tenant
	var mode string
	err := s.q.QueryRow(ctx, "SELECT id, name, qr_mode, timezone FROM tenants WHERE id = $1", id).
		Scan(&t.ID, &t.Name, &mode, &t.Timezone)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Tenant{}, core.ErrTenantNotFound
	}
	if err != nil {
		return core.Tenant{}, err
	}
	t.QRMode = core.QRMode(mode)
	return t, nil
}

func (s *queries) ListTenants(ctx context.Context) ([]core.Tenant, error) {
	rows, err := s.q.Query(ctx, "SELECT id, name, qr_mode, timezone FROM tenants ORDER BY id")
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

type scheduleDay struct {
	IsOpen bool   `json:"isOpen"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

func (s *queries) SaveSchedule(ctx context.Context, sc core.ScheduleConfig) error {
	days := make([]scheduleDay, 7)
	for i, d := range sc.Days {
		days[i] = scheduleDay{IsOpen: d.IsOpen, Start: d.Start.String(), End: d.End.String()}
	}
	daysJSON, err := json.Marshal(days)
	if err != nil {
		return err
	}
	_, err = s.q.Exec(ctx, `
		INSERT INTO schedules (tenant_id, days_json, grace_period_minutes, monthly_paid_leave)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id) DO UPDATE SET
			days_json = EXCLUDED.days_json,
			grace_period_minutes = EXCLUDED.grace_period_minutes,
			monthly_paid_leave = EXCLUDED.monthly_paid_leave
	`, sc.TenantID, string(daysJSON), sc.GracePeriodMinutes, sc.MonthlyPaidLeave)
	return wrap("save schedule", err)
}

func (s *queries) GetSchedule(ctx context.Context, tenantID string) (core.ScheduleConfig, error) {
	sc := core.ScheduleConfig{TenantID: tenantID}
	var daysJSON string
	err := s.q.QueryRow(ctx,
		"SELECT days_json::text, grace_period_minutes, monthly_paid_leave FROM schedules WHERE tenant_id = $1",
		tenantID,
	).Scan(&daysJSON, &sc.GracePeriodMinutes, &sc.MonthlyPaidLeave)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ScheduleConfig{}, core.ErrScheduleNotFound
	}
	if err != nil {
		return core.ScheduleConfig{}, err
	}

	var days []scheduleDay
	if err := json.Unmarshal([]byte(daysJSON), &days); err != nil {
		return core.ScheduleConfig{}, fmt.Errorf("decode schedule days: %w", err)
	}
	for i := 0; i < len(days) && i < 7; i++ {
		sc.Days[i].IsOpen = days[i].IsOpen
		sc.Days[i].Start, _ = core.ParseClock(days[i].Start)
		sc.Days[i].End, _ = core.ParseClock(days[i].End)
	}
	return sc, nil
}

// =============================================================================
// EMPLOYEE STORE
// =============================================================================

const employeeSelect = "SELECT tenant_id, id, name, base_salary::text, points, streak, status FROM employees"

func scanEmployee(row pgx.Row) (core.Employee, error) {
	var e core.Employee
	var salary, status string
	if err := row.Scan(&e.TenantID, &e.ID, &e.Name, &salary, &e.Points, &e.Streak, &status); err != nil {
		return e, err
	}
	e.BaseSalary, _ = decimal.NewFromString(salary)
	e.Status = core.EmployeeStatus(status)
	return e, nil
}

func (s *queries) SaveEmployee(ctx context.Context, e core.Employee) error {
	status := e.Status
	if status == "" {
		status = core.EmployeeActive
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO employees (tenant_id, id, name, base_salary, points, streak, status)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			name = EXCLUDED.name,
			base_salary = EXCLUDED.base_salary,
			points = EXCLUDED.points,
			streak = EXCLUDED.streak,
			status = EXCLUDED.status
	`, e.TenantID, e.ID, e.Name, e.BaseSalary.String(), e.Points, e.Streak, string(status))
	return wrap("save employee", err)
}

func (s *queries) GetEmployee(ctx context.Context, tenantID, id string) (core.Employee, error) {
	query := employeeSelect + " WHERE tenant_id = $1 AND id = $2"
	if s.forUpdate {
		query += " FOR UPDATE"
	}
	e, err := scanEmployee(s.q.QueryRow(ctx, query, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Employee{}, core.ErrEmployeeNotFound
	}
	return e, err
}

func (s *queries) ListEmployees(ctx context.Context, tenantID string) ([]core.Employee, error) {
	rows, err := s.q.Query(ctx, employeeSelect+" WHERE tenant_id = $1 ORDER BY name, id", tenantID)
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
	tag, err := s.q.Exec(ctx,
		"UPDATE employees SET points = $1, streak = $2 WHERE tenant_id = $3 AND id = $4",
		points, streak, tenantID, id,
	)
	if err != nil {
		return wrap("update employee stats", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrEmployeeNotFound
	}
	return nil
}

// =============================================================================
// ATTENDANCE STORE
// =============================================================================

const attendanceSelect = `SELECT id, tenant_id, employee_id, day::text, check_in, check_out, status, source, reason FROM attendance`

func scanAttendance(row pgx.Row) (core.AttendanceRecord, error) {
	var (
		rec            core.AttendanceRecord
		day            string
		status, source string
	)
	if err := row.Scan(&rec.ID, &rec.TenantID, &rec.EmployeeID, &day, &rec.CheckIn, &rec.CheckOut, &status, &source, &rec.Reason); err != nil {
		return rec, err
	}
	rec.Day, _ = core.ParseDate(day)
	rec.Status = core.AttendanceStatus(status)
	rec.Source = core.RecordSource(source)
	return rec, nil
}

func (s *queries) GetAttendance(ctx context.Context, tenantID, employeeID string, day core.Date) (*core.AttendanceRecord, error) {
	rec, err := scanAttendance(s.q.QueryRow(ctx,
		attendanceSelect+" WHERE tenant_id = $1 AND employee_id = $2 AND day = $3::date",
		tenantID, employeeID, day.String(),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *queries) CreateAttendance(ctx context.Context, rec core.AttendanceRecord) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO attendance (id, tenant_id, employee_id, day, check_in, check_out, status, source, reason)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9)
	`, rec.ID, rec.TenantID, rec.EmployeeID, rec.Day.String(), rec.CheckIn, rec.CheckOut,
		string(rec.Status), string(rec.Source), rec.Reason)
	if isUniqueViolation(err) || isSerializationFailure(err) {
		return core.ErrConcurrentModification
	}
	return wrap("create attendance", err)
}

func (s *queries) CloseAttendance(ctx context.Context, tenantID, recordID string, checkOut time.Time) error {
	tag, err := s.q.Exec(ctx,
		"UPDATE attendance SET check_out = $1 WHERE tenant_id = $2 AND id = $3 AND check_out IS NULL",
		checkOut, tenantID, recordID,
	)
	if isSerializationFailure(err) {
		return core.ErrConcurrentModification
	}
	if err != nil {
		return wrap("close attendance", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	rec, err := scanAttendance(s.q.QueryRow(ctx, attendanceSelect+" WHERE tenant_id = $1 AND id = $2", tenantID, recordID))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrConcurrentModification
	}
	if err != nil {
		return err
	}
	return &core.DayCompleteError{EmployeeID: rec.EmployeeID, Day: rec.Day, RecordID: rec.ID}
}

func (s *queries) UpsertAttendance(ctx context.Context, rec core.AttendanceRecord) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO attendance (id, tenant_id, employee_id, day, check_in, check_out, status, source, reason)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, employee_id, day) DO UPDATE SET
			check_in = EXCLUDED.check_in,
			check_out = EXCLUDED.check_out,
			status = EXCLUDED.status,
			source = EXCLUDED.source,
			reason = EXCLUDED.reason
	`, rec.ID, rec.TenantID, rec.EmployeeID, rec.Day.String(), rec.CheckIn, rec.CheckOut,
		string(rec.Status), string(rec.Source), rec.Reason)
	return wrap("upsert attendance", err)
}

func (s *queries) ListAttendance(ctx context.Context, tenantID string, p core.Period) ([]core.AttendanceRecord, error) {
	rows, err := s.q.Query(ctx,
		attendanceSelect+" WHERE tenant_id = $1 AND day BETWEEN $2::date AND $3::date ORDER BY day, employee_id",
		tenantID, p.Start.String(), p.End.String(),
	)
	if err != nil {
		return nil, err
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

const leaveSelect = `SELECT id, tenant_id, employee_id, start_date::text, end_date::text, start_time, end_time, reason, status, created_at FROM leave_requests`

func scanLeave(row pgx.Row) (core.LeaveRequest, error) {
	var (
		r                  core.LeaveRequest
		start, end, status string
		startTime, endTime *string
	)
	if err := row.Scan(&r.ID, &r.TenantID, &r.EmployeeID, &start, &end, &startTime, &endTime, &r.Reason, &status, &r.CreatedAt); err != nil {
		return r, err
	}
	r.StartDate, _ = core.ParseDate(start)
	r.EndDate, _ = core.ParseDate(end)
	r.StartTime = parseClock(startTime)
	r.EndTime = parseClock(endTime)
	r.Status = core.LeaveStatus(status)
	return r, nil
}

func (s *queries) SaveLeave(ctx context.Context, r core.LeaveRequest) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO leave_requests (id, tenant_id, employee_id, start_date, end_date, start_time, end_time, reason, status, created_at)
		VALUES ($1, $2, $3, $4::date, $5::date, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			reason = EXCLUDED.reason,
			status = EXCLUDED.status
	`, r.ID, r.TenantID, r.EmployeeID, r.StartDate.String(), r.EndDate.String(),
		clockArg(r.StartTime), clockArg(r.EndTime), r.Reason, string(r.Status), createdAt)
	return wrap("save leave request", err)
}

func (s *queries) GetLeave(ctx context.Context, id string) (core.LeaveRequest, error) {
	r, err := scanLeave(s.q.QueryRow(ctx, leaveSelect+" WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.LeaveRequest{}, core.ErrLeaveNotFound
	}
	return r, err
}

func (s *queries) SetLeaveStatus(ctx context.Context, id string, status core.LeaveStatus) error {
	tag, err := s.q.Exec(ctx, "UPDATE leave_requests SET status = $1 WHERE id = $2", string(status), id)
	if err != nil {
		return wrap("update leave status", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrLeaveNotFound
	}
	return nil
}

func (s *queries) ListApprovedLeave(ctx context.Context, tenantID string, p core.Period) ([]core.LeaveRequest, error) {
	rows, err := s.q.Query(ctx, leaveSelect+`
		WHERE tenant_id = $1 AND status = 'approved'
		  AND start_date <= $2::date AND end_date >= $3::date
		ORDER BY start_date, id
	`, tenantID, p.End.String(), p.Start.String())
	if err != nil {
		return nil, err
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
	var key *string
	if tx.IdempotencyKey != "" {
		key = &tx.IdempotencyKey
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO point_transactions
		(id, tenant_id, employee_id, day, delta, points_after, streak_after, reason, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10)
	`, tx.ID, tx.TenantID, tx.EmployeeID, tx.Day.String(), tx.Delta,
		tx.PointsAfter, tx.StreakAfter, tx.Reason, key, createdAt)
	if isUniqueViolation(err) {
		return core.ErrDuplicateIdempotencyKey
	}
	return wrap("append point transaction", err)
}

func (s *queries) ListPoints(ctx context.Context, tenantID, employeeID string) ([]core.PointTransaction, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, tenant_id, employee_id, day::text, delta, points_after, streak_after, reason,
		       COALESCE(idempotency_key, ''), created_at
		FROM point_transactions
		WHERE tenant_id = $1 AND employee_id = $2
		ORDER BY seq
	`, tenantID, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []core.PointTransaction
	for rows.Next() {
		var tx core.PointTransaction
		var day string
		if err := rows.Scan(&tx.ID, &tx.TenantID, &tx.EmployeeID, &day, &tx.Delta,
			&tx.PointsAfter, &tx.StreakAfter, &tx.Reason, &tx.IdempotencyKey, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.Day, _ = core.ParseDate(day)
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
	_, err := s.q.Exec(ctx, `
		INSERT INTO payroll_adjustments (tenant_id, employee_id, month, bonus, advances, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6)
		ON CONFLICT (tenant_id, employee_id, month) DO UPDATE SET
			bonus = EXCLUDED.bonus,
			advances = EXCLUDED.advances,
			updated_at = EXCLUDED.updated_at
	`, a.TenantID, a.EmployeeID, a.Month.String(), a.Bonus.String(), a.Advances.String(), updatedAt)
	return wrap("save adjustment", err)
}

func (s *queries) ListAdjustments(ctx context.Context, tenantID string, m core.Month) ([]core.PayrollAdjustment, error) {
	rows, err := s.q.Query(ctx, `
		SELECT employee_id, bonus::text, advances::text, updated_at
		FROM payroll_adjustments
		WHERE tenant_id = $1 AND month = $2
		ORDER BY employee_id
	`, tenantID, m.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.PayrollAdjustment
	for rows.Next() {
		a := core.PayrollAdjustment{TenantID: tenantID, Month: m}
		var bonus, advances string
		if err := rows.Scan(&a.EmployeeID, &bonus, &advances, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Bonus, _ = decimal.NewFromString(bonus)
		a.Advances, _ = decimal.NewFromString(advances)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *queries) SavePayrollRun(ctx context.Context, r core.PayrollRun) error {
	_, err := s.q.Exec(ctx,
		"INSERT INTO payroll_runs (tenant_id, month, finalized_at, lines_json) VALUES ($1, $2, $3, $4::jsonb)",
		r.TenantID, r.Month.String(), r.FinalizedAt, r.LinesJSON,
	)
	if isUniqueViolation(err) {
		return core.ErrPayrollFinalized
	}
	return wrap("save payroll run", err)
}

func (s *queries) GetPayrollRun(ctx context.Context, tenantID string, m core.Month) (*core.PayrollRun, error) {
	r := core.PayrollRun{TenantID: tenantID, Month: m}
	err := s.q.QueryRow(ctx,
		"SELECT finalized_at, lines_json::text FROM payroll_runs WHERE tenant_id = $1 AND month = $2",
		tenantID, m.String(),
	).Scan(&r.FinalizedAt, &r.LinesJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func clockArg(c *core.Clock) *string {
	if c == nil {
		return nil
	}
	s := c.String()
	return &s
}

func parseClock(s *string) *core.Clock {
	if s == nil {
		return nil
	}
	c, err := core.ParseClock(*s)
	if err != nil {
		return nil
	}
	return &c
}

// isUniqueViolation checks for Postgres unique constraint errors.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isSerializationFailure matches serialization_failure and deadlock_detected.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
