/*
ledger.go - Append-only point ledger

PURPOSE:
  Every gamification update (check-in reward, late penalty, streak bonus)
  is recorded here next to the employee's running balance. The employee row
  holds the current points for fast reads; the ledger explains how it got
  there.

INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. IDEMPOTENT: one entry per idempotency key. Check-ins use
     "checkin:<tenant>:<employee>:<day>", so a day can never be rewarded twice.
  3. CONSISTENT: Sum(Delta) over an employee's entries equals Employee.Points
     as long as points were only changed through the check-in path.

SEE ALSO:
  - rewards/gamification.go: Computes the entries
  - attendance/machine.go: Writes them in the check-in transaction
*/
package core

import "context"

// =============================================================================
// POINT LEDGER
// =============================================================================

type PointLedger struct {
	Store PointStore
}

func NewPointLedger(store PointStore) *PointLedger {
	return &PointLedger{Store: store}
}

// Append adds an entry. Fails with ErrDuplicateIdempotencyKey if the key exists.
func (l *PointLedger) Append(ctx context.Context, tx PointTransaction) error {
	return l.Store.AppendPoints(ctx, tx)
}

// History returns the employee's entries, oldest first.
func (l *PointLedger) History(ctx context.Context, tenantID, employeeID string) ([]PointTransaction, error) {
	return l.Store.ListPoints(ctx, tenantID, employeeID)
}

// Balance replays the ledger.
func (l *PointLedger) Balance(ctx context.Context, tenantID, employeeID string) (int, error) {
	txs, err := l.Store.ListPoints(ctx, tenantID, employeeID)
	if err != nil {
		return 0, err
	}
	balance := 0
	for _, tx := range txs {
		balance += tx.Delta
	}
	return balance, nil
}

// CheckInKey is the idempotency key of the gamification entry for one check-in.
func CheckInKey(tenantID, employeeID string, day Date) string {
	return "checkin:" + tenantID + ":" + employeeID + ":" + day.String()
}
