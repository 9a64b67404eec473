/*
store.go - Persistence interfaces for the override log and ledgers

PURPOSE:
  The seam between domain logic and the database. The duty synchronizer
  writes through Store; the api layer reads range slices through it to
  feed the pure calendar resolver.

UNIQUENESS CONTRACT:
  - One ShiftOverride row per (employeeID, date). UpsertOverride with a
    stale version returns rota.ErrConcurrentModification.
  - One OvertimeRecord row per (employeeID, date). UpsertOvertime replaces.

TRANSACTIONS:
  TxStore.WithTx runs a function against a transactional view. The duty
  synchronizer wraps each ledger reconciliation in one WithTx so dependent
  writes commit or roll back together.

IMPLEMENTATIONS:
  - store/memory.go: In-memory, snapshot/rollback (tests, dev)
  - store/sqlite:    database/sql over SQLite (production)

SEE ALSO:
  - duty package: The write path
  - api package: The read path
*/
package ledger

import (
	"context"
	"time"

	"github.com/warp/roster-engine/rota"
)

// Store persists the override log, the three ledgers, the cached balance,
// and the reference data the resolver reads.
type Store interface {
	// --- Overrides ---

	// GetOverride returns the override for a date, or nil if none.
	GetOverride(ctx context.Context, employeeID string, date rota.TimePoint) (*ShiftOverride, error)

	// UpsertOverride creates or replaces the override row for
	// (employeeID, date). expectedVersion is the Version the caller read
	// (0 for "no row"); on mismatch the row is untouched and
	// rota.ErrConcurrentModification is returned. Reports whether a row
	// was created.
	UpsertOverride(ctx context.Context, ov ShiftOverride, expectedVersion int) (created bool, err error)

	// DeleteOverride removes the override row if present.
	DeleteOverride(ctx context.Context, employeeID string, date rota.TimePoint) error

	// ListOverrides returns overrides in [from, to], ordered by date.
	ListOverrides(ctx context.Context, employeeID string, from, to rota.TimePoint) ([]ShiftOverride, error)

	// --- Leave ledger ---

	FindLeaveCovering(ctx context.Context, employeeID string, date rota.TimePoint) (*LeaveRecord, error)
	CreateLeave(ctx context.Context, rec LeaveRecord) error
	ListLeaves(ctx context.Context, employeeID string, from, to rota.TimePoint) ([]LeaveRecord, error)
	ListLeavesForYear(ctx context.Context, employeeID string, year int) ([]LeaveRecord, error)

	// --- In-lieu ledger ---

	FindInLieuCovering(ctx context.Context, employeeID string, date rota.TimePoint) (*InLieuRecord, error)
	CreateInLieu(ctx context.Context, rec InLieuRecord) error
	DeleteInLieu(ctx context.Context, id string) error
	ListInLieus(ctx context.Context, employeeID string) ([]InLieuRecord, error)

	// --- Overtime ledger ---

	GetOvertime(ctx context.Context, employeeID string, date rota.TimePoint) (*OvertimeRecord, error)
	UpsertOvertime(ctx context.Context, rec OvertimeRecord) error
	DeleteOvertime(ctx context.Context, employeeID string, date rota.TimePoint) error
	ListOvertimeForMonth(ctx context.Context, employeeID string, year int, month time.Month) ([]OvertimeRecord, error)
	SaveMonthlyOvertime(ctx context.Context, agg MonthlyOvertime) error
	GetMonthlyOvertime(ctx context.Context, employeeID string, year int, month time.Month) (*MonthlyOvertime, error)

	// --- Cached balance ---

	// GetBalance returns the cached balance, or nil if never written.
	GetBalance(ctx context.Context, employeeID string) (*CachedBalance, error)
	SaveBalance(ctx context.Context, bal CachedBalance) error

	// --- Reference data ---

	GetEmployee(ctx context.Context, id string) (*Employee, error)
	SaveEmployee(ctx context.Context, emp Employee) error
	ListEmployees(ctx context.Context) ([]Employee, error)

	ListHolidays(ctx context.Context, from, to rota.TimePoint) ([]HolidayRecord, error)
	SaveHoliday(ctx context.Context, h HolidayRecord) error

	ListGroupChanges(ctx context.Context, employeeID string) ([]rota.GroupChange, error)
	SaveGroupChange(ctx context.Context, ch rota.GroupChange) error
}

// TxStore wraps Store with transaction support. If fn returns an error the
// transaction is rolled back, otherwise committed.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
