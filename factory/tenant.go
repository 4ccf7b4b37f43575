/*
Package factory converts tenant seed documents into engine entities.

PURPOSE:
  A tenant's setup (QR mode, timezone, business hours, paid leave quota and
  staff list) is described in a YAML or JSON document and loaded into a
  store in one transaction. The server loads one at startup when SEED_FILE
  is set, and the demo scenarios are built from the same types.

DOCUMENT SCHEMA:
  tenants:
    - id: t1
      name: Kopi Senja
      qr_mode: dynamic            # permanent | dynamic
      timezone: Asia/Jakarta
      schedule:
        grace_period_minutes: 10
        monthly_paid_leave: 2
        days:
          monday:    {open: true, start: "09:00", end: "17:00"}
          sunday:    {open: false}
      employees:
        - id: e1
          name: Ana
          base_salary: "30000"
          status: active          # active | inactive

  JSON is accepted as well: the parser is YAML and JSON is a subset of it.
  Weekdays not listed are closed.

SEE ALSO:
  - core/types.go: Tenant, ScheduleConfig, Employee
  - api/scenarios.go: Demo documents
*/
package factory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/staff-engine/core"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// Document is a seed file: one or more tenants.
type Document struct {
	Tenants []TenantDoc `yaml:"tenants" json:"tenants"`
}

type TenantDoc struct {
	ID        string        `yaml:"id" json:"id"`
	Name      string        `yaml:"name" json:"name"`
	QRMode    string        `yaml:"qr_mode,omitempty" json:"qr_mode,omitempty"`
	Timezone  string        `yaml:"timezone,omitempty" json:"timezone,omitempty"`
	Schedule  *ScheduleDoc  `yaml:"schedule,omitempty" json:"schedule,omitempty"`
	Employees []EmployeeDoc `yaml:"employees,omitempty" json:"employees,omitempty"`
}

type ScheduleDoc struct {
	GracePeriodMinutes int               `yaml:"grace_period_minutes" json:"grace_period_minutes"`
	MonthlyPaidLeave   int               `yaml:"monthly_paid_leave" json:"monthly_paid_leave"`
	Days               map[string]DayDoc `yaml:"days" json:"days"`
}

type DayDoc struct {
	Open  bool   `yaml:"open" json:"open"`
	Start string `yaml:"start,omitempty" json:"start,omitempty"`
	End   string `yaml:"end,omitempty" json:"end,omitempty"`
}

type EmployeeDoc struct {
	ID         string `yaml:"id" json:"id"`
	Name       string `yaml:"name" json:"name"`
	BaseSalary string `yaml:"base_salary,omitempty" json:"base_salary,omitempty"`
	Status     string `yaml:"status,omitempty" json:"status,omitempty"`
}

// Tenant is the parsed form of a TenantDoc.
type Tenant struct {
	Tenant    core.Tenant
	Schedule  *core.ScheduleConfig
	Employees []core.Employee
}

// =============================================================================
// PARSING
// =============================================================================

// ParseDocument parses a YAML or JSON seed document.
func ParseDocument(data []byte) ([]Tenant, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse seed document: %w", err)
	}
	return FromDocument(doc)
}

// LoadFile reads and parses a seed document from disk.
func LoadFile(path string) ([]Tenant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseDocument(data)
}

// FromDocument validates a document and converts it.
func FromDocument(doc Document) ([]Tenant, error) {
	seen := make(map[string]bool)
	out := make([]Tenant, 0, len(doc.Tenants))
	for i, td := range doc.Tenants {
		t, err := FromTenantDoc(td)
		if err != nil {
			return nil, fmt.Errorf("tenant #%d: %w", i+1, err)
		}
		if seen[t.Tenant.ID] {
			return nil, fmt.Errorf("%w: duplicate tenant id %q", core.ErrInvalidInput, t.Tenant.ID)
		}
		seen[t.Tenant.ID] = true
		out = append(out, t)
	}
	return out, nil
}

// FromTenantDoc converts one tenant. Missing qr_mode defaults to permanent;
// an unknown timezone is an error rather than a silent fallback to UTC.
func FromTenantDoc(td TenantDoc) (Tenant, error) {
	if td.ID == "" || td.Name == "" {
		return Tenant{}, fmt.Errorf("%w: tenant id and name required", core.ErrInvalidInput)
	}

	mode := core.QRMode(strings.ToLower(td.QRMode))
	if mode == "" {
		mode = core.QRModePermanent
	}
	if !mode.Valid() {
		return Tenant{}, fmt.Errorf("%w: unknown qr_mode %q", core.ErrInvalidInput, td.QRMode)
	}
	if td.Timezone != "" {
		if _, err := time.LoadLocation(td.Timezone); err != nil {
			return Tenant{}, fmt.Errorf("%w: timezone %q: %v", core.ErrInvalidInput, td.Timezone, err)
		}
	}

	t := Tenant{
		Tenant: core.Tenant{ID: td.ID, Name: td.Name, QRMode: mode, Timezone: td.Timezone},
	}

	if td.Schedule != nil {
		sc, err := parseSchedule(td.ID, *td.Schedule)
		if err != nil {
			return Tenant{}, err
		}
		t.Schedule = &sc
	}

	ids := make(map[string]bool)
	for _, ed := range td.Employees {
		e, err := ParseEmployee(td.ID, ed)
		if err != nil {
			return Tenant{}, err
		}
		if ids[e.ID] {
			return Tenant{}, fmt.Errorf("%w: duplicate employee id %q", core.ErrInvalidInput, e.ID)
		}
		ids[e.ID] = true
		t.Employees = append(t.Employees, e)
	}
	return t, nil
}

// ParseSchedule converts a schedule document on its own (the settings
// endpoint accepts the same shape).
func ParseSchedule(tenantID string, sd ScheduleDoc) (core.ScheduleConfig, error) {
	return parseSchedule(tenantID, sd)
}

func parseSchedule(tenantID string, sd ScheduleDoc) (core.ScheduleConfig, error) {
	if sd.GracePeriodMinutes < 0 || sd.MonthlyPaidLeave < 0 {
		return core.ScheduleConfig{}, fmt.Errorf("%w: grace period and paid leave must not be negative", core.ErrInvalidInput)
	}
	sc := core.ScheduleConfig{
		TenantID:           tenantID,
		GracePeriodMinutes: sd.GracePeriodMinutes,
		MonthlyPaidLeave:   sd.MonthlyPaidLeave,
	}
	for name, dd := range sd.Days {
		wd, ok := parseWeekday(name)
		if !ok {
			return core.ScheduleConfig{}, fmt.Errorf("%w: unknown weekday %q", core.ErrInvalidInput, name)
		}
		if !dd.Open {
			continue
		}
		start, err := core.ParseClock(dd.Start)
		if err != nil {
			return core.ScheduleConfig{}, fmt.Errorf("%w: %s start: %v", core.ErrInvalidInput, name, err)
		}
		end, err := core.ParseClock(dd.End)
		if err != nil {
			return core.ScheduleConfig{}, fmt.Errorf("%w: %s end: %v", core.ErrInvalidInput, name, err)
		}
		sc.Days[wd] = core.DayHours{IsOpen: true, Start: start, End: end}
	}
	return sc, nil
}

// ParseEmployee converts one employee entry. Empty status means active.
func ParseEmployee(tenantID string, ed EmployeeDoc) (core.Employee, error) {
	if ed.ID == "" {
		return core.Employee{}, fmt.Errorf("%w: employee id required", core.ErrInvalidInput)
	}
	salary := decimal.Zero
	if ed.BaseSalary != "" {
		var err error
		if salary, err = decimal.NewFromString(ed.BaseSalary); err != nil {
			return core.Employee{}, fmt.Errorf("%w: employee %s base_salary %q", core.ErrInvalidInput, ed.ID, ed.BaseSalary)
		}
	}
	status := core.EmployeeStatus(strings.ToLower(ed.Status))
	switch status {
	case "":
		status = core.EmployeeActive
	case core.EmployeeActive, core.EmployeeInactive:
	default:
		return core.Employee{}, fmt.Errorf("%w: employee %s status %q", core.ErrInvalidInput, ed.ID, ed.Status)
	}
	return core.Employee{
		ID:         ed.ID,
		TenantID:   tenantID,
		Name:       ed.Name,
		BaseSalary: salary,
		Status:     status,
	}, nil
}

func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(s)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		name := strings.ToLower(wd.String())
		if s == name || s == name[:3] {
			return wd, true
		}
	}
	return 0, false
}

// =============================================================================
// EXPORT
// =============================================================================

// ToScheduleDoc renders a schedule back into its document form.
func ToScheduleDoc(sc core.ScheduleConfig) ScheduleDoc {
	sd := ScheduleDoc{
		GracePeriodMinutes: sc.GracePeriodMinutes,
		MonthlyPaidLeave:   sc.MonthlyPaidLeave,
		Days:               make(map[string]DayDoc, 7),
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		h := sc.For(wd)
		dd := DayDoc{Open: h.IsOpen}
		if h.IsOpen {
			dd.Start, dd.End = h.Start.String(), h.End.String()
		}
		sd.Days[strings.ToLower(wd.String())] = dd
	}
	return sd
}

// MarshalYAML renders tenants as a seed document.
func MarshalYAML(tenants []Tenant) ([]byte, error) {
	doc := Document{}
	for _, t := range tenants {
		td := TenantDoc{
			ID:       t.Tenant.ID,
			Name:     t.Tenant.Name,
			QRMode:   string(t.Tenant.QRMode),
			Timezone: t.Tenant.Timezone,
		}
		if t.Schedule != nil {
			sd := ToScheduleDoc(*t.Schedule)
			td.Schedule = &sd
		}
		for _, e := range t.Employees {
			td.Employees = append(td.Employees, EmployeeDoc{
				ID:         e.ID,
				Name:       e.Name,
				BaseSalary: e.BaseSalary.String(),
				Status:     string(e.Status),
			})
		}
		doc.Tenants = append(doc.Tenants, td)
	}
	return yaml.Marshal(doc)
}

// =============================================================================
// SEEDING
// =============================================================================

// Apply writes the tenants, their schedules and employees in one transaction.
// Existing rows with the same ids are replaced, except that an employee's
// points and streak are kept.
func Apply(ctx context.Context, store core.TxStore, tenants []Tenant) error {
	return store.WithTx(ctx, func(tx core.Store) error {
		for _, t := range tenants {
			if err := tx.SaveTenant(ctx, t.Tenant); err != nil {
				return fmt.Errorf("save tenant %s: %w", t.Tenant.ID, err)
			}
			if t.Schedule != nil {
				if err := tx.SaveSchedule(ctx, *t.Schedule); err != nil {
					return fmt.Errorf("save schedule %s: %w", t.Tenant.ID, err)
				}
			}
			for _, e := range t.Employees {
				existing, err := tx.GetEmployee(ctx, e.TenantID, e.ID)
				switch {
				case err == nil:
					e.Points, e.Streak = existing.Points, existing.Streak
				case !errors.Is(err, core.ErrEmployeeNotFound):
					return err
				}
				if err := tx.SaveEmployee(ctx, e); err != nil {
					return fmt.Errorf("save employee %s/%s: %w", t.Tenant.ID, e.ID, err)
				}
			}
		}
		return nil
	})
}
