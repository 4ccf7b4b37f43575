package rewards_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/staff-engine/core"
	"github.com/warp/staff-engine/core/store"
	"github.com/warp/staff-engine/rewards"
)

// =============================================================================
// RULE TESTS
// =============================================================================

func TestApply_FiveOnTimeCheckIns_EarnStreakBonus(t *testing.T) {
	// GIVEN: An employee with 0 points and no streak
	// WHEN: They check in on time 5 days in a row
	// THEN: Streak is 5 and they earned 5×10 + 50 = 100 points

	points, streak := 0, 0
	bonuses := 0
	for i := 0; i < 5; i++ {
		out := rewards.Apply(points, streak, core.StatusOnTime)
		points, streak = out.Points, out.Streak
		if out.Bonus {
			bonuses++
		}
	}

	assert.Equal(t, 100, points)
	assert.Equal(t, 5, streak)
	assert.Equal(t, 1, bonuses, "bonus is paid once per milestone")
}

func TestApply_LateResetsStreakAndDeducts(t *testing.T) {
	out := rewards.Apply(40, 3, core.StatusLate)

	assert.Equal(t, 35, out.Points)
	assert.Equal(t, 0, out.Streak)
	assert.Equal(t, -5, out.Delta)
	assert.False(t, out.Bonus)
}

func TestApply_PenaltyFlooredAtZero(t *testing.T) {
	out := rewards.Apply(3, 2, core.StatusLate)

	assert.Equal(t, 0, out.Points)
	assert.Equal(t, -3, out.Delta, "delta reflects what was actually removed")
}

func TestApply_SecondMilestoneAtTen(t *testing.T) {
	out := rewards.Apply(200, 9, core.StatusOnTime)

	assert.Equal(t, 10, out.Streak)
	assert.Equal(t, 260, out.Points)
	assert.True(t, out.Bonus)
	assert.Equal(t, "on_time+streak_bonus", out.Reason)
}

func TestApply_NonOnTimeStatusesCountAsLate(t *testing.T) {
	for _, status := range []core.AttendanceStatus{core.StatusLate, core.StatusHalfDay, core.StatusManual} {
		out := rewards.Apply(10, 4, status)
		assert.Equal(t, 5, out.Points, status)
		assert.Equal(t, 0, out.Streak, status)
	}
}

func TestRule_CustomAmounts(t *testing.T) {
	rule := rewards.Rule{OnTimePoints: 1, LatePenalty: 2, StreakLength: 2, StreakBonus: 7}

	out := rule.Apply(0, 1, core.StatusOnTime)
	assert.Equal(t, 8, out.Points)
	assert.Equal(t, 2, out.Streak)
}

// =============================================================================
// AWARD TESTS
// =============================================================================

func newAwardStore(t *testing.T) (*store.Memory, core.Employee) {
	m := store.NewMemory()
	ctx := context.Background()
	emp := core.Employee{ID: "e1", TenantID: "t1", Name: "Ana", Status: core.EmployeeActive}
	require.NoError(t, m.SaveTenant(ctx, core.Tenant{ID: "t1", Name: "Shop"}))
	require.NoError(t, m.SaveEmployee(ctx, emp))
	return m, emp
}

func TestAward_PersistsStatsAndLedgerEntry(t *testing.T) {
	m, emp := newAwardStore(t)
	ctx := context.Background()
	day := core.NewDate(2025, time.March, 10)

	out, err := rewards.Award(ctx, m, emp, day, core.StatusOnTime, day.Time())
	require.NoError(t, err)
	assert.Equal(t, 10, out.Points)

	got, err := m.GetEmployee(ctx, "t1", "e1")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Points)
	assert.Equal(t, 1, got.Streak)

	ledger := core.NewPointLedger(m)
	balance, err := ledger.Balance(ctx, "t1", "e1")
	require.NoError(t, err)
	assert.Equal(t, got.Points, balance, "ledger replays to the stored balance")
}

func TestAward_SameDayTwice_Rejected(t *testing.T) {
	// GIVEN: A check-in already rewarded for March 10
	// WHEN: The same day is rewarded again
	// THEN: The idempotency key stops it and the balance is unchanged

	m, emp := newAwardStore(t)
	ctx := context.Background()
	day := core.NewDate(2025, time.March, 10)

	_, err := rewards.Award(ctx, m, emp, day, core.StatusOnTime, day.Time())
	require.NoError(t, err)

	emp, _ = m.GetEmployee(ctx, "t1", "e1")
	_, err = rewards.Award(ctx, m, emp, day, core.StatusOnTime, day.Time())
	assert.ErrorIs(t, err, core.ErrDuplicateIdempotencyKey)

	got, _ := m.GetEmployee(ctx, "t1", "e1")
	assert.Equal(t, 10, got.Points)
}
