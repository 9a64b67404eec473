package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/warp/roster-engine/rota"
)

// =============================================================================
// BALANCE - Ledger sum is the source of truth
// =============================================================================
// The cached balance row is only a projection. Recompute derives the real
// balance from the ledgers:
//
//   base entitlement (by years of service)
//   + sum of in-lieu credits
//   - sum of current-year approved leave days

// Recompute derives the annual leave balance for a year from the ledgers.
// Only approved leave records whose start date falls in the year consume
// balance; pending and rejected requests do not.
func Recompute(emp Employee, year int, inLieus []InLieuRecord, leaves []LeaveRecord) decimal.Decimal {
	asOf := rota.NewTimePoint(year, 12, 31)
	balance := rota.BaseEntitlement(emp.YearsOfService(asOf))

	for _, r := range inLieus {
		balance = balance.Add(r.LeaveDaysAdded)
	}
	for _, l := range leaves {
		if l.Status != LeaveApproved || l.StartDate.Year() != year {
			continue
		}
		balance = balance.Sub(l.DaysTaken)
	}
	return balance
}

// FloorZero clamps a balance at zero. Reversals never drive the cached
// balance negative.
func FloorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// SumOvertime totals per-date overtime hours, for monthly aggregation.
func SumOvertime(records []OvertimeRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Hours)
	}
	return total
}
