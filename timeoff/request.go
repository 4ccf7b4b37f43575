package timeoff

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/warp/staff-engine/core"
)

// =============================================================================
// REQUEST SERVICE - Leave request lifecycle
// =============================================================================

// RequestService records leave requests and moves them through
// pending → approved | denied. Only approved requests reach Aggregate.
type RequestService struct {
	Store  core.Store
	Logger *slog.Logger
	Now    func() time.Time
}

func NewRequestService(store core.Store, logger *slog.Logger) *RequestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestService{Store: store, Logger: logger, Now: time.Now}
}

// Submission is a new leave request as entered by an employee or admin.
type Submission struct {
	TenantID   string
	EmployeeID string
	StartDate  core.Date
	EndDate    core.Date
	StartTime  *core.Clock
	EndTime    *core.Clock
	Reason     string
}

// ValidateSubmission checks the request shape. No side effects.
//
// A partial-day request (either clock time set) must be a single date, must
// carry both times, and StartTime must be before EndTime.
func ValidateSubmission(s Submission) error {
	if s.StartDate.IsZero() || s.EndDate.IsZero() {
		return fmt.Errorf("%w: start and end date required", core.ErrInvalidInput)
	}
	if s.EndDate.Before(s.StartDate) {
		return fmt.Errorf("%w: end date %s before start date %s", core.ErrInvalidPeriod, s.EndDate, s.StartDate)
	}
	if s.StartTime == nil && s.EndTime == nil {
		return nil
	}
	if !s.StartDate.Equal(s.EndDate) {
		return fmt.Errorf("%w: partial-day leave must start and end on the same date", core.ErrInvalidInput)
	}
	if s.StartTime == nil || s.EndTime == nil {
		return fmt.Errorf("%w: partial-day leave needs both start and end time", core.ErrInvalidInput)
	}
	start := s.StartTime.Hour*60 + s.StartTime.Minute
	end := s.EndTime.Hour*60 + s.EndTime.Minute
	if end <= start {
		return fmt.Errorf("%w: end time %s not after start time %s", core.ErrInvalidInput, s.EndTime, s.StartTime)
	}
	return nil
}

// Submit validates and stores a pending request.
func (rs *RequestService) Submit(ctx context.Context, s Submission) (core.LeaveRequest, error) {
	if err := ValidateSubmission(s); err != nil {
		return core.LeaveRequest{}, err
	}
	if _, err := rs.Store.GetEmployee(ctx, s.TenantID, s.EmployeeID); err != nil {
		return core.LeaveRequest{}, err
	}

	req := core.LeaveRequest{
		ID:         uuid.NewString(),
		TenantID:   s.TenantID,
		EmployeeID: s.EmployeeID,
		StartDate:  s.StartDate,
		EndDate:    s.EndDate,
		StartTime:  s.StartTime,
		EndTime:    s.EndTime,
		Reason:     s.Reason,
		Status:     core.LeavePending,
		CreatedAt:  rs.Now().UTC(),
	}
	if err := rs.Store.SaveLeave(ctx, req); err != nil {
		return core.LeaveRequest{}, err
	}

	rs.Logger.Info("leave submitted",
		"tenant", req.TenantID,
		"employee", req.EmployeeID,
		"period", req.Period().String(),
		"partial", req.IsPartialDay(),
	)
	return req, nil
}

// SetStatus decides a pending request. Decided requests are final.
func (rs *RequestService) SetStatus(ctx context.Context, id string, status core.LeaveStatus) (core.LeaveRequest, error) {
	if status != core.LeaveApproved && status != core.LeaveDenied {
		return core.LeaveRequest{}, fmt.Errorf("%w: status must be approved or denied, got %q", core.ErrInvalidInput, status)
	}

	req, err := rs.Store.GetLeave(ctx, id)
	if err != nil {
		return core.LeaveRequest{}, err
	}
	if req.Status == status {
		return req, nil
	}
	if req.Status != core.LeavePending {
		return core.LeaveRequest{}, fmt.Errorf("%w: request must be pending, got %s", core.ErrInvalidInput, req.Status)
	}

	if err := rs.Store.SetLeaveStatus(ctx, id, status); err != nil {
		return core.LeaveRequest{}, err
	}
	req.Status = status

	rs.Logger.Info("leave decided",
		"tenant", req.TenantID,
		"employee", req.EmployeeID,
		"leave", req.ID,
		"status", string(status),
	)
	return req, nil
}
