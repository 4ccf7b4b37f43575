package attendance_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/staff-engine/attendance"
	"github.com/warp/staff-engine/core"
)

func weekdaySchedule(start core.Clock, grace int) core.ScheduleConfig {
	sc := core.ScheduleConfig{TenantID: "t1", GracePeriodMinutes: grace, MonthlyPaidLeave: 2}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		sc.Days[wd] = core.DayHours{IsOpen: true, Start: start, End: core.Clock{Hour: 17}}
	}
	return sc
}

func TestClassifyCheckIn_GracePeriod(t *testing.T) {
	sc := weekdaySchedule(core.Clock{Hour: 9}, 15)
	monday := core.NewDate(2025, time.March, 10)

	tests := []struct {
		name string
		at   core.Clock
		want core.AttendanceStatus
	}{
		{"before start", core.Clock{Hour: 8, Minute: 45}, core.StatusOnTime},
		{"inside grace", core.Clock{Hour: 9, Minute: 10}, core.StatusOnTime},
		{"at deadline", core.Clock{Hour: 9, Minute: 15}, core.StatusOnTime},
		{"after deadline", core.Clock{Hour: 9, Minute: 16}, core.StatusLate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := attendance.ClassifyCheckIn(sc, monday.At(tt.at, time.UTC), time.UTC)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyCheckIn_ClosedDayAlwaysOnTime(t *testing.T) {
	sc := weekdaySchedule(core.Clock{Hour: 9}, 0)
	sunday := core.NewDate(2025, time.March, 9)

	got := attendance.ClassifyCheckIn(sc, sunday.At(core.Clock{Hour: 23}, time.UTC), time.UTC)
	assert.Equal(t, core.StatusOnTime, got)
}

func TestClassifyCheckIn_UsesTenantTimezone(t *testing.T) {
	// GIVEN: A Jakarta shop (UTC+7) opening 09:00 with no grace
	// WHEN: Someone checks in at 02:30 UTC (09:30 local)
	// THEN: It is late, even though 02:30 is long before 09:00 in UTC

	jakarta, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Skip("tzdata not available")
	}
	sc := weekdaySchedule(core.Clock{Hour: 9}, 0)
	at := time.Date(2025, time.March, 10, 2, 30, 0, 0, time.UTC)

	assert.Equal(t, core.StatusLate, attendance.ClassifyCheckIn(sc, at, jakarta))
	assert.Equal(t, core.StatusOnTime, attendance.ClassifyCheckIn(sc, at, time.UTC))
}

func TestNextAction(t *testing.T) {
	a, err := attendance.NextAction(core.DayNotStarted)
	assert.NoError(t, err)
	assert.Equal(t, attendance.ActionCheckedIn, a)

	a, err = attendance.NextAction(core.DayOpen)
	assert.NoError(t, err)
	assert.Equal(t, attendance.ActionCheckedOut, a)

	_, err = attendance.NextAction(core.DayClosed)
	assert.ErrorIs(t, err, core.ErrDayAlreadyComplete)
}
