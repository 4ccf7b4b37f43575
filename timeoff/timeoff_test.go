package timeoff_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/staff-engine/core"
	"github.com/warp/staff-engine/store/sqlite"
	"github.com/warp/staff-engine/timeoff"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var march = core.Month{Year: 2025, Month: time.March}

func approved(id, employeeID string, start, end core.Date) core.LeaveRequest {
	return core.LeaveRequest{
		ID:         id,
		TenantID:   "t1",
		EmployeeID: employeeID,
		StartDate:  start,
		EndDate:    end,
		Status:     core.LeaveApproved,
	}
}

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.SaveTenant(ctx, core.Tenant{ID: "t1", Name: "Shop"}))
	require.NoError(t, store.SaveEmployee(ctx, core.Employee{ID: "e1", TenantID: "t1", Name: "Ana"}))
	require.NoError(t, store.SaveEmployee(ctx, core.Employee{ID: "e2", TenantID: "t1", Name: "Budi"}))
	return store
}

// =============================================================================
// CLIPPING TESTS
// =============================================================================

func TestAggregate_ClipsToMonthStart(t *testing.T) {
	// GIVEN: Leave from monthStart-3 to monthStart+2
	// WHEN: Aggregating March
	// THEN: Exactly 3 days count (Mar 1, 2, 3)

	start := march.Start()
	req := approved("l1", "e1", start.AddDays(-3), start.AddDays(2))

	agg := timeoff.Aggregate([]core.LeaveRequest{req}, march.Period())

	assert.Equal(t, 3, agg.DaysFor("e1"))
	assert.True(t, agg.IsCovered("e1", start))
	assert.True(t, agg.IsCovered("e1", start.AddDays(2)))
	assert.False(t, agg.IsCovered("e1", start.AddDays(3)))
	assert.False(t, agg.IsCovered("e1", start.AddDays(-1)), "days outside the window are never covered")
}

func TestAggregate_ClipsToMonthEnd(t *testing.T) {
	end := march.End()
	req := approved("l1", "e1", end.AddDays(-1), end.AddDays(5))

	agg := timeoff.Aggregate([]core.LeaveRequest{req}, march.Period())

	assert.Equal(t, 2, agg.DaysFor("e1"))
}

func TestAggregate_SpanningWholeMonth(t *testing.T) {
	feb := core.Month{Year: 2024, Month: time.February}
	req := approved("l1", "e1", core.NewDate(2024, time.January, 20), core.NewDate(2024, time.March, 5))

	agg := timeoff.Aggregate([]core.LeaveRequest{req}, feb.Period())

	assert.Equal(t, 29, agg.DaysFor("e1"), "leap-year February")
}

func TestAggregate_IgnoresNonApprovedAndOutside(t *testing.T) {
	pending := approved("l1", "e1", core.NewDate(2025, 3, 10), core.NewDate(2025, 3, 12))
	pending.Status = core.LeavePending
	denied := approved("l2", "e1", core.NewDate(2025, 3, 14), core.NewDate(2025, 3, 14))
	denied.Status = core.LeaveDenied
	april := approved("l3", "e1", core.NewDate(2025, 4, 1), core.NewDate(2025, 4, 3))

	agg := timeoff.Aggregate([]core.LeaveRequest{pending, denied, april}, march.Period())

	assert.Equal(t, 0, agg.DaysFor("e1"))
	assert.Empty(t, agg.Covered)
}

func TestAggregate_SumsPerEmployee(t *testing.T) {
	reqs := []core.LeaveRequest{
		approved("l1", "e1", core.NewDate(2025, 3, 3), core.NewDate(2025, 3, 4)),
		approved("l2", "e1", core.NewDate(2025, 3, 20), core.NewDate(2025, 3, 20)),
		approved("l3", "e2", core.NewDate(2025, 3, 5), core.NewDate(2025, 3, 9)),
	}

	agg := timeoff.Aggregate(reqs, march.Period())

	assert.Equal(t, 3, agg.DaysFor("e1"))
	assert.Equal(t, 5, agg.DaysFor("e2"))
	assert.Equal(t, 0, agg.DaysFor("e3"))
}

func TestAggregate_PartialDayCountsAsFullDay(t *testing.T) {
	start, end := core.Clock{Hour: 13}, core.Clock{Hour: 15}
	req := approved("l1", "e1", core.NewDate(2025, 3, 7), core.NewDate(2025, 3, 7))
	req.StartTime, req.EndTime = &start, &end

	agg := timeoff.Aggregate([]core.LeaveRequest{req}, march.Period())

	assert.Equal(t, 1, agg.DaysFor("e1"))
	assert.True(t, agg.IsCovered("e1", core.NewDate(2025, 3, 7)))
}

func TestAggregate_OverlappingRequestsSumButCoverOnce(t *testing.T) {
	reqs := []core.LeaveRequest{
		approved("l1", "e1", core.NewDate(2025, 3, 3), core.NewDate(2025, 3, 5)),
		approved("l2", "e1", core.NewDate(2025, 3, 5), core.NewDate(2025, 3, 6)),
	}

	agg := timeoff.Aggregate(reqs, march.Period())

	assert.Equal(t, 5, agg.DaysFor("e1"))
	assert.Len(t, agg.Covered["e1"], 4)
}

// =============================================================================
// AGGREGATOR (store-backed)
// =============================================================================

func TestAggregator_ForMonth_FiltersEmployee(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveLeave(ctx, approved("l1", "e1", core.NewDate(2025, 2, 26), core.NewDate(2025, 3, 2))))
	require.NoError(t, store.SaveLeave(ctx, approved("l2", "e2", core.NewDate(2025, 3, 10), core.NewDate(2025, 3, 11))))

	aggregator := timeoff.NewAggregator(store)

	all, err := aggregator.ForMonth(ctx, "t1", march, "")
	require.NoError(t, err)
	assert.Equal(t, 2, all.DaysFor("e1"))
	assert.Equal(t, 2, all.DaysFor("e2"))

	one, err := aggregator.ForMonth(ctx, "t1", march, "e2")
	require.NoError(t, err)
	assert.Equal(t, 0, one.DaysFor("e1"))
	assert.Equal(t, 2, one.DaysFor("e2"))
}

func TestAggregator_InvalidWindow(t *testing.T) {
	store := newTestStore(t)
	_, err := timeoff.NewAggregator(store).ForPeriod(context.Background(), "t1",
		core.Period{Start: core.NewDate(2025, 3, 10), End: core.NewDate(2025, 3, 1)}, "")
	assert.ErrorIs(t, err, core.ErrInvalidPeriod)
}

// =============================================================================
// REQUEST SERVICE
// =============================================================================

func TestRequestService_SubmitApproveAggregate(t *testing.T) {
	// GIVEN: A pending request
	// WHEN: It is approved
	// THEN: It starts counting in the aggregation

	store := newTestStore(t)
	ctx := context.Background()
	svc := timeoff.NewRequestService(store, nil)
	aggregator := timeoff.NewAggregator(store)

	req, err := svc.Submit(ctx, timeoff.Submission{
		TenantID: "t1", EmployeeID: "e1",
		StartDate: core.NewDate(2025, 3, 17), EndDate: core.NewDate(2025, 3, 19),
		Reason: "family",
	})
	require.NoError(t, err)
	assert.Equal(t, core.LeavePending, req.Status)

	agg, err := aggregator.ForMonth(ctx, "t1", march, "")
	require.NoError(t, err)
	assert.Equal(t, 0, agg.DaysFor("e1"), "pending leave does not count")

	_, err = svc.SetStatus(ctx, req.ID, core.LeaveApproved)
	require.NoError(t, err)

	agg, err = aggregator.ForMonth(ctx, "t1", march, "")
	require.NoError(t, err)
	assert.Equal(t, 3, agg.DaysFor("e1"))
}

func TestRequestService_DecidedRequestIsFinal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc := timeoff.NewRequestService(store, nil)

	req, err := svc.Submit(ctx, timeoff.Submission{TenantID: "t1", EmployeeID: "e1",
		StartDate: core.NewDate(2025, 3, 17), EndDate: core.NewDate(2025, 3, 17)})
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, req.ID, core.LeaveDenied)
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, req.ID, core.LeaveApproved)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = svc.SetStatus(ctx, "missing", core.LeaveApproved)
	assert.ErrorIs(t, err, core.ErrLeaveNotFound)
}

func TestValidateSubmission(t *testing.T) {
	d := core.NewDate(2025, 3, 7)
	nine, five := core.Clock{Hour: 9}, core.Clock{Hour: 17}

	tests := []struct {
		name string
		sub  timeoff.Submission
		err  error
	}{
		{"full days", timeoff.Submission{StartDate: d, EndDate: d.AddDays(2)}, nil},
		{"end before start", timeoff.Submission{StartDate: d, EndDate: d.AddDays(-1)}, core.ErrInvalidPeriod},
		{"missing dates", timeoff.Submission{}, core.ErrInvalidInput},
		{"partial day", timeoff.Submission{StartDate: d, EndDate: d, StartTime: &nine, EndTime: &five}, nil},
		{"partial spanning days", timeoff.Submission{StartDate: d, EndDate: d.AddDays(1), StartTime: &nine, EndTime: &five}, core.ErrInvalidInput},
		{"partial one time", timeoff.Submission{StartDate: d, EndDate: d, StartTime: &nine}, core.ErrInvalidInput},
		{"partial reversed", timeoff.Submission{StartDate: d, EndDate: d, StartTime: &five, EndTime: &nine}, core.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := timeoff.ValidateSubmission(tt.sub)
			if tt.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}
