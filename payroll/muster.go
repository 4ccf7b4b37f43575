package payroll

import (
	"github.com/warp/staff-engine/core"
	"github.com/warp/staff-engine/timeoff"
)

// =============================================================================
// MUSTER ROLL
// =============================================================================

// Symbol classifies one employee-day on the muster roll.
type Symbol string

const (
	SymbolLeave   Symbol = "L"
	SymbolHalfDay Symbol = "H"
	SymbolPresent Symbol = "P"
	SymbolAbsent  Symbol = "A"
)

// MusterCell is one day of a row.
type MusterCell struct {
	Day    core.Date `json:"-"`
	Symbol Symbol    `json:"symbol"`
}

// MusterRow is one employee's month. Days is ordered from the 1st.
type MusterRow struct {
	EmployeeID   string         `json:"employee_id"`
	EmployeeName string         `json:"employee_name"`
	Days         []MusterCell   `json:"days"`
	Totals       map[Symbol]int `json:"totals"`
}

// Symbols returns the row as a plain symbol slice, day 1 first.
func (r MusterRow) Symbols() []Symbol {
	out := make([]Symbol, len(r.Days))
	for i, c := range r.Days {
		out[i] = c.Symbol
	}
	return out
}

// BuildMuster assigns one symbol per day of month to every active employee.
//
// Precedence is Leave > Half-day > Present > Absent: a day covered by
// approved leave is L even if the employee also has a record that day.
// Any other record, whatever its status, makes the day P. Pure function.
func BuildMuster(month core.Month, employees []core.Employee, records []core.AttendanceRecord, leave timeoff.Aggregation) []MusterRow {
	window := month.Period()

	byDay := make(map[string]map[core.Date]core.AttendanceStatus)
	for _, r := range records {
		if !window.Contains(r.Day) {
			continue
		}
		days := byDay[r.EmployeeID]
		if days == nil {
			days = make(map[core.Date]core.AttendanceStatus)
			byDay[r.EmployeeID] = days
		}
		days[r.Day] = r.Status
	}

	rows := make([]MusterRow, 0, len(employees))
	for _, e := range employees {
		if !e.IsActive() {
			continue
		}
		row := MusterRow{
			EmployeeID:   e.ID,
			EmployeeName: e.Name,
			Days:         make([]MusterCell, 0, month.Days()),
			Totals: map[Symbol]int{
				SymbolLeave: 0, SymbolHalfDay: 0, SymbolPresent: 0, SymbolAbsent: 0,
			},
		}
		for _, d := range window.Days() {
			sym := classify(leave.IsCovered(e.ID, d), byDay[e.ID], d)
			row.Days = append(row.Days, MusterCell{Day: d, Symbol: sym})
			row.Totals[sym]++
		}
		rows = append(rows, row)
	}
	return rows
}

func classify(onLeave bool, days map[core.Date]core.AttendanceStatus, d core.Date) Symbol {
	if onLeave {
		return SymbolLeave
	}
	status, ok := days[d]
	switch {
	case !ok:
		return SymbolAbsent
	case status == core.StatusHalfDay:
		return SymbolHalfDay
	default:
		return SymbolPresent
	}
}
