/*
Package ledger defines the bookkeeping records derived from duty resolution
and the storage interfaces that persist them.

PURPOSE:
  The override log and three ledgers (leave, in-lieu, overtime) plus the
  cached leave balance. The duty package mutates these through the Store
  interface; the calendar package only ever reads pre-fetched slices.

RECORD IDENTITY:
  Rows carry uuid IDs. Uniqueness that matters to the domain is on
  (employeeID, date): one override row and one overtime row per employee
  per date, enforced by the store.

SOURCE OF TRUTH:
  The ledgers are authoritative. CachedBalance is a denormalized projection
  maintained incrementally by the synchronizer and reconciled wholesale by
  Recompute on the read path.

SEE ALSO:
  - balance.go: Entitlement and recomputation
  - store.go: Persistence interfaces
  - duty package: The only writer
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/roster-engine/rota"
)

// =============================================================================
// SHIFT OVERRIDE - Explicit departure from the computed base shift
// =============================================================================

// ShiftOverride pins an employee's shift for one date. Unique per
// (EmployeeID, Date). Version supports optimistic concurrency: an upsert
// must present the version it read, or lose the race.
type ShiftOverride struct {
	ID         string
	EmployeeID string
	Date       rota.TimePoint
	Type       rota.ShiftType
	Notes      string
	Source     string // "manual", "synchronizer"
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// =============================================================================
// LEAVE
// =============================================================================

type LeaveStatus string

const (
	LeavePending  LeaveStatus = "pending"
	LeaveApproved LeaveStatus = "approved"
	LeaveRejected LeaveStatus = "rejected"
)

// LeaveRecord spans [StartDate, EndDate] inclusive and contributes 'Leave'
// to every date it covers.
type LeaveRecord struct {
	ID         string
	EmployeeID string
	StartDate  rota.TimePoint
	EndDate    rota.TimePoint
	DaysTaken  decimal.Decimal
	Type       string // "annual", "sick", ...
	Status     LeaveStatus
	Notes      string
}

// Covers reports whether the record spans the date.
func (l LeaveRecord) Covers(d rota.TimePoint) bool {
	return l.StartDate.BeforeOrEqual(d) && d.BeforeOrEqual(l.EndDate)
}

// =============================================================================
// IN-LIEU
// =============================================================================

// InLieuRecord logs compensatory duty on otherwise-off days. Each duty day
// credits the leave balance at rota.InLieuCreditRate.
type InLieuRecord struct {
	ID             string
	EmployeeID     string
	StartDate      rota.TimePoint
	EndDate        rota.TimePoint
	DaysCount      int
	LeaveDaysAdded decimal.Decimal
}

func (r InLieuRecord) Covers(d rota.TimePoint) bool {
	return r.StartDate.BeforeOrEqual(d) && d.BeforeOrEqual(r.EndDate)
}

// =============================================================================
// OVERTIME
// =============================================================================

// OvertimeRecord credits hours for one date. Unique per (EmployeeID, Date);
// aggregated monthly into MonthlyOvertime.
type OvertimeRecord struct {
	ID         string
	EmployeeID string
	Date       rota.TimePoint
	Hours      decimal.Decimal
}

// MonthlyOvertime is the persisted per-month aggregate, recomputed from the
// per-date records whenever one changes.
type MonthlyOvertime struct {
	EmployeeID string
	Year       int
	Month      time.Month
	TotalHours decimal.Decimal
}

// =============================================================================
// HOLIDAYS AND EMPLOYEES
// =============================================================================

// HolidayRecord is global, not employee-scoped. Only official holidays
// resolve dates to 'Public'; unofficial ones are informational.
type HolidayRecord struct {
	ID         string
	Date       rota.TimePoint
	Name       string
	IsOfficial bool
}

// Employee carries the inputs the engine needs: the base rotation group and
// the hire date from which years of service derive.
type Employee struct {
	ID        string
	Name      string
	BaseGroup rota.Group
	HireDate  rota.TimePoint
	CreatedAt time.Time
}

// YearsOfService returns completed service years as of a date.
func (e Employee) YearsOfService(asOf rota.TimePoint) int {
	years := asOf.Year() - e.HireDate.Year()
	anniversary := e.HireDate.AddYears(years)
	if asOf.Before(anniversary) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// =============================================================================
// CACHED BALANCE
// =============================================================================

// CachedBalance is the denormalized annual leave balance projection.
type CachedBalance struct {
	EmployeeID string
	Days       decimal.Decimal
	UpdatedAt  time.Time
}
