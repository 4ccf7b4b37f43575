/*
scheduler.go - Automated payroll finalization scheduler

PURPOSE:
  Periodically checks every tenant for a payroll month that has ended and
  finalizes it, so that a month's figures are frozen even when nobody
  presses the button.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - The month considered is the one before "today" in the tenant's timezone
  - A month is left open for FinalizeAfter past its end, so admins can
    still enter bonus and advances
  - Skips months that already have a finalized run
  - A failure for one tenant is logged and does not stop the others

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)
  - FinalizeAfter: Delay after month end before finalizing (default: 3 days)

USAGE:
  scheduler := NewPayrollScheduler(store, service, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: FinalizePayroll endpoint (manual finalization)
  - payroll/service.go: Finalize
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/staff-engine/core"
	"github.com/warp/staff-engine/payroll"
)

// DefaultFinalizeAfter is how long an ended month stays open for adjustments.
const DefaultFinalizeAfter = 72 * time.Hour

// PayrollScheduler finalizes ended payroll months.
type PayrollScheduler struct {
	Store         core.Store
	Service       *payroll.Service
	Logger        *slog.Logger
	Metrics       *Metrics // optional
	CheckInterval time.Duration
	Enabled       bool
	FinalizeAfter time.Duration
	Now           func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewPayrollScheduler creates a new scheduler.
func NewPayrollScheduler(store core.Store, service *payroll.Service, logger *slog.Logger) *PayrollScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PayrollScheduler{
		Store:         store,
		Service:       service,
		Logger:        logger.With("component", "payroll-scheduler"),
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		FinalizeAfter: DefaultFinalizeAfter,
		Now:           time.Now,
	}
}

// Start begins the scheduler.
func (ps *PayrollScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.Enabled {
		ps.Logger.Info("scheduler disabled, not starting")
		return
	}
	if ps.ticker != nil {
		return
	}

	ps.ticker = time.NewTicker(ps.CheckInterval)
	ps.stop = make(chan struct{})
	ps.wg.Add(1)

	go ps.run(ps.ticker.C, ps.stop)

	ps.Logger.Info("scheduler started", "interval", ps.CheckInterval)
}

// Stop stops the scheduler and waits for a running check to finish.
func (ps *PayrollScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.ticker != nil {
		ps.ticker.Stop()
		close(ps.stop)
		ps.wg.Wait()
		ps.ticker = nil
		ps.Logger.Info("scheduler stopped")
	}
}

func (ps *PayrollScheduler) run(tick <-chan time.Time, stop <-chan struct{}) {
	defer ps.wg.Done()

	// Run immediately on start
	ps.RunNow(context.Background())

	for {
		select {
		case <-tick:
			ps.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow checks every tenant once and returns how many months were
// finalized and how many were already final. Months still inside their
// FinalizeAfter window are counted as neither.
func (ps *PayrollScheduler) RunNow(ctx context.Context) (processed, skipped int) {
	tenants, err := ps.Store.ListTenants(ctx)
	if err != nil {
		ps.Logger.Error("list tenants", "err", err)
		return 0, 0
	}

	now := ps.Now()
	for _, t := range tenants {
		loc := t.Location()
		month := core.MonthOf(core.DateOf(now, loc)).Prev()
		log := ps.Logger.With("tenant", t.ID, "month", month.String())

		due := month.Next().Start().At(core.Clock{}, loc).Add(ps.FinalizeAfter)
		if now.Before(due) {
			log.Debug("month still open for adjustments", "due", due)
			continue
		}

		run, err := ps.Store.GetPayrollRun(ctx, t.ID, month)
		if err != nil {
			log.Error("check payroll run", "err", err)
			continue
		}
		if run != nil {
			skipped++
			continue
		}

		_, lines, err := ps.Service.Finalize(ctx, t.ID, month)
		if ps.Metrics != nil {
			ps.Metrics.report("finalize", err)
		}
		switch {
		case err == nil:
			processed++
			if ps.Metrics != nil {
				ps.Metrics.Finalized.Inc()
			}
			log.Debug("scheduled finalization done", "lines", len(lines))
		case core.IsConflict(err):
			// finalized by someone else since the check
			skipped++
		default:
			log.Error("finalize payroll", "err", err)
		}
	}

	if processed > 0 || skipped > 0 {
		ps.Logger.Info("check completed", "processed", processed, "skipped", skipped)
	}
	return processed, skipped
}

// NextRunTime returns when the next scheduled check will occur.
func (ps *PayrollScheduler) NextRunTime() time.Time {
	return ps.Now().Add(ps.CheckInterval)
}
