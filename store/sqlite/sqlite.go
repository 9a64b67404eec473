/*
Package sqlite provides the SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Production persistence for the override log, the three ledgers, the
  cached balance and the reference data. The same SQL patterns apply to
  PostgreSQL with only dialect changes.

UNIQUENESS:
  Database-level unique indexes back the domain contract:
  - one shift_overrides row per (employee_id, date)
  - one overtime_records row per (employee_id, date)

OPTIMISTIC CONCURRENCY:
  shift_overrides carries a version column. Updates are guarded with
  "AND version = ?"; zero rows affected means another writer got there
  first and the caller receives rota.ErrConcurrentModification.

TRANSACTIONS:
  Every method lives on an internal ops struct bound to a queryer, which
  is either the *sql.DB or a *sql.Tx. WithTx rebinds the same methods to
  a transaction, so transactional and plain paths cannot drift apart.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/roster-engine/ledger"
	"github.com/warp/roster-engine/rota"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	ops
}

var _ ledger.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single pooled connection also keeps
	// ":memory:" databases from fragmenting across connections.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, ops: ops{q: db}}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// WithTx runs fn against a transactional view of the store. If fn returns
// an error the transaction is rolled back, otherwise committed.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	view := &ops{q: tx}
	if err := fn(view); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS shift_overrides (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		date TEXT NOT NULL,
		shift_type TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(employee_id, date)
	);
	CREATE INDEX IF NOT EXISTS idx_overrides_employee_date
		ON shift_overrides(employee_id, date);

	CREATE TABLE IF NOT EXISTS leave_records (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		days_taken TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		status TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_leave_employee_span
		ON leave_records(employee_id, start_date, end_date);

	CREATE TABLE IF NOT EXISTS in_lieu_records (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		days_count INTEGER NOT NULL,
		leave_days_added TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_in_lieu_employee_span
		ON in_lieu_records(employee_id, start_date, end_date);

	CREATE TABLE IF NOT EXISTS overtime_records (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		date TEXT NOT NULL,
		hours TEXT NOT NULL,
		UNIQUE(employee_id, date)
	);

	CREATE TABLE IF NOT EXISTS overtime_monthly_totals (
		employee_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		total_hours TEXT NOT NULL,
		PRIMARY KEY(employee_id, year, month)
	);

	CREATE TABLE IF NOT EXISTS leave_balances (
		employee_id TEXT PRIMARY KEY,
		days TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		base_group TEXT NOT NULL,
		hire_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		is_official INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_holidays_date ON holidays(date);

	CREATE TABLE IF NOT EXISTS group_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		employee_id TEXT NOT NULL,
		old_group TEXT NOT NULL,
		new_group TEXT NOT NULL,
		effective_date TEXT NOT NULL,
		requested_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_group_changes_employee
		ON group_changes(employee_id, effective_date);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// OPS - All queries, bound to either the DB or a transaction
// =============================================================================

type ops struct {
	q queryer
}

var _ ledger.Store = (*ops)(nil)

const dateLayout = "2006-01-02"

func fmtDate(d rota.TimePoint) string { return d.String() }

func scanDate(s string) (rota.TimePoint, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return rota.TimePoint{}, fmt.Errorf("corrupt date %q: %w", s, err)
	}
	return rota.NewTimePoint(t.Year(), t.Month(), t.Day()), nil
}

func scanDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt decimal %q: %w", s, err)
	}
	return d, nil
}

// rowScanner is the subset shared by *sql.Row and *sql.Rows.
type rowScanner interface{ Scan(dest ...any) error }

// --- Overrides ---

func (o *ops) GetOverride(ctx context.Context, employeeID string, date rota.TimePoint) (*ledger.ShiftOverride, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT id, employee_id, date, shift_type, notes, source, version, created_at, updated_at
		FROM shift_overrides WHERE employee_id = ? AND date = ?`,
		employeeID, fmtDate(date))
	ov, err := scanOverride(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ov, err
}

func scanOverride(r rowScanner) (*ledger.ShiftOverride, error) {
	var ov ledger.ShiftOverride
	var date, typ, created, updated string
	if err := r.Scan(&ov.ID, &ov.EmployeeID, &date, &typ, &ov.Notes, &ov.Source, &ov.Version, &created, &updated); err != nil {
		return nil, err
	}
	d, err := scanDate(date)
	if err != nil {
		return nil, err
	}
	ov.Date = d
	ov.Type = rota.ShiftType(typ)
	ov.CreatedAt, _ = time.Parse(time.RFC3339, created)
	ov.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &ov, nil
}

func (o *ops) UpsertOverride(ctx context.Context, ov ledger.ShiftOverride, expectedVersion int) (bool, error) {
	if expectedVersion == 0 {
		_, err := o.q.ExecContext(ctx, `
			INSERT INTO shift_overrides
				(id, employee_id, date, shift_type, notes, source, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			ov.ID, ov.EmployeeID, fmtDate(ov.Date), string(ov.Type), ov.Notes, ov.Source,
			ov.CreatedAt.UTC().Format(time.RFC3339), ov.UpdatedAt.UTC().Format(time.RFC3339))
		if err != nil {
			// The unique index fires when another writer inserted first.
			if isUniqueViolation(err) {
				return false, rota.ErrConcurrentModification
			}
			return false, err
		}
		return true, nil
	}

	res, err := o.q.ExecContext(ctx, `
		UPDATE shift_overrides
		SET shift_type = ?, notes = ?, source = ?, version = version + 1, updated_at = ?
		WHERE employee_id = ? AND date = ? AND version = ?`,
		string(ov.Type), ov.Notes, ov.Source, ov.UpdatedAt.UTC().Format(time.RFC3339),
		ov.EmployeeID, fmtDate(ov.Date), expectedVersion)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, rota.ErrConcurrentModification
	}
	return false, nil
}

func (o *ops) DeleteOverride(ctx context.Context, employeeID string, date rota.TimePoint) error {
	_, err := o.q.ExecContext(ctx,
		`DELETE FROM shift_overrides WHERE employee_id = ? AND date = ?`,
		employeeID, fmtDate(date))
	return err
}

func (o *ops) ListOverrides(ctx context.Context, employeeID string, from, to rota.TimePoint) ([]ledger.ShiftOverride, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT id, employee_id, date, shift_type, notes, source, version, created_at, updated_at
		FROM shift_overrides
		WHERE employee_id = ? AND date BETWEEN ? AND ?
		ORDER BY date`,
		employeeID, fmtDate(from), fmtDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.ShiftOverride
	for rows.Next() {
		ov, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ov)
	}
	return out, rows.Err()
}

// --- Leave ledger ---

const leaveColumns = `id, employee_id, start_date, end_date, days_taken, leave_type, status, notes`

func scanLeave(r rowScanner) (*ledger.LeaveRecord, error) {
	var l ledger.LeaveRecord
	var start, end, taken, status string
	if err := r.Scan(&l.ID, &l.EmployeeID, &start, &end, &taken, &l.Type, &status, &l.Notes); err != nil {
		return nil, err
	}
	var err error
	if l.StartDate, err = scanDate(start); err != nil {
		return nil, err
	}
	if l.EndDate, err = scanDate(end); err != nil {
		return nil, err
	}
	if l.DaysTaken, err = scanDecimal(taken); err != nil {
		return nil, err
	}
	l.Status = ledger.LeaveStatus(status)
	return &l, nil
}

func (o *ops) FindLeaveCovering(ctx context.Context, employeeID string, date rota.TimePoint) (*ledger.LeaveRecord, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT `+leaveColumns+` FROM leave_records
		WHERE employee_id = ? AND start_date <= ? AND end_date >= ? AND status != ?
		LIMIT 1`,
		employeeID, fmtDate(date), fmtDate(date), string(ledger.LeaveRejected))
	l, err := scanLeave(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return l, err
}

func (o *ops) CreateLeave(ctx context.Context, rec ledger.LeaveRecord) error {
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO leave_records (`+leaveColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EmployeeID, fmtDate(rec.StartDate), fmtDate(rec.EndDate),
		rec.DaysTaken.String(), rec.Type, string(rec.Status), rec.Notes)
	return err
}

func (o *ops) ListLeaves(ctx context.Context, employeeID string, from, to rota.TimePoint) ([]ledger.LeaveRecord, error) {
	return o.queryLeaves(ctx, `
		SELECT `+leaveColumns+` FROM leave_records
		WHERE employee_id = ? AND end_date >= ? AND start_date <= ?
		ORDER BY start_date`,
		employeeID, fmtDate(from), fmtDate(to))
}

func (o *ops) ListLeavesForYear(ctx context.Context, employeeID string, year int) ([]ledger.LeaveRecord, error) {
	return o.queryLeaves(ctx, `
		SELECT `+leaveColumns+` FROM leave_records
		WHERE employee_id = ? AND start_date BETWEEN ? AND ?
		ORDER BY start_date`,
		employeeID,
		fmtDate(rota.NewTimePoint(year, time.January, 1)),
		fmtDate(rota.NewTimePoint(year, time.December, 31)))
}

func (o *ops) queryLeaves(ctx context.Context, query string, args ...any) ([]ledger.LeaveRecord, error) {
	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.LeaveRecord
	for rows.Next() {
		l, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// --- In-lieu ledger ---

func scanInLieu(r rowScanner) (*ledger.InLieuRecord, error) {
	var rec ledger.InLieuRecord
	var start, end, added string
	if err := r.Scan(&rec.ID, &rec.EmployeeID, &start, &end, &rec.DaysCount, &added); err != nil {
		return nil, err
	}
	var err error
	if rec.StartDate, err = scanDate(start); err != nil {
		return nil, err
	}
	if rec.EndDate, err = scanDate(end); err != nil {
		return nil, err
	}
	if rec.LeaveDaysAdded, err = scanDecimal(added); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (o *ops) FindInLieuCovering(ctx context.Context, employeeID string, date rota.TimePoint) (*ledger.InLieuRecord, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT id, employee_id, start_date, end_date, days_count, leave_days_added
		FROM in_lieu_records
		WHERE employee_id = ? AND start_date <= ? AND end_date >= ?
		LIMIT 1`,
		employeeID, fmtDate(date), fmtDate(date))
	rec, err := scanInLieu(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (o *ops) CreateInLieu(ctx context.Context, rec ledger.InLieuRecord) error {
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO in_lieu_records (id, employee_id, start_date, end_date, days_count, leave_days_added)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EmployeeID, fmtDate(rec.StartDate), fmtDate(rec.EndDate),
		rec.DaysCount, rec.LeaveDaysAdded.String())
	return err
}

func (o *ops) DeleteInLieu(ctx context.Context, id string) error {
	_, err := o.q.ExecContext(ctx, `DELETE FROM in_lieu_records WHERE id = ?`, id)
	return err
}

func (o *ops) ListInLieus(ctx context.Context, employeeID string) ([]ledger.InLieuRecord, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT id, employee_id, start_date, end_date, days_count, leave_days_added
		FROM in_lieu_records WHERE employee_id = ? ORDER BY start_date`,
		employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.InLieuRecord
	for rows.Next() {
		rec, err := scanInLieu(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// --- Overtime ledger ---

func scanOvertime(r rowScanner) (*ledger.OvertimeRecord, error) {
	var rec ledger.OvertimeRecord
	var date, hours string
	if err := r.Scan(&rec.ID, &rec.EmployeeID, &date, &hours); err != nil {
		return nil, err
	}
	var err error
	if rec.Date, err = scanDate(date); err != nil {
		return nil, err
	}
	if rec.Hours, err = scanDecimal(hours); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (o *ops) GetOvertime(ctx context.Context, employeeID string, date rota.TimePoint) (*ledger.OvertimeRecord, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT id, employee_id, date, hours FROM overtime_records
		WHERE employee_id = ? AND date = ?`,
		employeeID, fmtDate(date))
	rec, err := scanOvertime(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (o *ops) UpsertOvertime(ctx context.Context, rec ledger.OvertimeRecord) error {
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO overtime_records (id, employee_id, date, hours)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(employee_id, date) DO UPDATE SET hours = excluded.hours`,
		rec.ID, rec.EmployeeID, fmtDate(rec.Date), rec.Hours.String())
	return err
}

func (o *ops) DeleteOvertime(ctx context.Context, employeeID string, date rota.TimePoint) error {
	_, err := o.q.ExecContext(ctx,
		`DELETE FROM overtime_records WHERE employee_id = ? AND date = ?`,
		employeeID, fmtDate(date))
	return err
}

func (o *ops) ListOvertimeForMonth(ctx context.Context, employeeID string, year int, month time.Month) ([]ledger.OvertimeRecord, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT id, employee_id, date, hours FROM overtime_records
		WHERE employee_id = ? AND date BETWEEN ? AND ?
		ORDER BY date`,
		employeeID,
		fmtDate(rota.StartOfMonth(year, month)),
		fmtDate(rota.EndOfMonth(year, month)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.OvertimeRecord
	for rows.Next() {
		rec, err := scanOvertime(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (o *ops) SaveMonthlyOvertime(ctx context.Context, agg ledger.MonthlyOvertime) error {
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO overtime_monthly_totals (employee_id, year, month, total_hours)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(employee_id, year, month) DO UPDATE SET total_hours = excluded.total_hours`,
		agg.EmployeeID, agg.Year, int(agg.Month), agg.TotalHours.String())
	return err
}

func (o *ops) GetMonthlyOvertime(ctx context.Context, employeeID string, year int, month time.Month) (*ledger.MonthlyOvertime, error) {
	var hours string
	err := o.q.QueryRowContext(ctx, `
		SELECT total_hours FROM overtime_monthly_totals
		WHERE employee_id = ? AND year = ? AND month = ?`,
		employeeID, year, int(month)).Scan(&hours)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	total, err := scanDecimal(hours)
	if err != nil {
		return nil, err
	}
	return &ledger.MonthlyOvertime{EmployeeID: employeeID, Year: year, Month: month, TotalHours: total}, nil
}

// --- Cached balance ---

func (o *ops) GetBalance(ctx context.Context, employeeID string) (*ledger.CachedBalance, error) {
	var days, updated string
	err := o.q.QueryRowContext(ctx,
		`SELECT days, updated_at FROM leave_balances WHERE employee_id = ?`,
		employeeID).Scan(&days, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d, err := scanDecimal(days)
	if err != nil {
		return nil, err
	}
	bal := &ledger.CachedBalance{EmployeeID: employeeID, Days: d}
	bal.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return bal, nil
}

func (o *ops) SaveBalance(ctx context.Context, bal ledger.CachedBalance) error {
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO leave_balances (employee_id, days, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(employee_id) DO UPDATE SET days = excluded.days, updated_at = excluded.updated_at`,
		bal.EmployeeID, bal.Days.String(), bal.UpdatedAt.UTC().Format(time.RFC3339))
	return err
}

// --- Reference data ---

func (o *ops) GetEmployee(ctx context.Context, id string) (*ledger.Employee, error) {
	var emp ledger.Employee
	var group, hire, created string
	err := o.q.QueryRowContext(ctx,
		`SELECT id, name, base_group, hire_date, created_at FROM employees WHERE id = ?`,
		id).Scan(&emp.ID, &emp.Name, &group, &hire, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	emp.BaseGroup = rota.Group(group)
	if emp.HireDate, err = scanDate(hire); err != nil {
		return nil, err
	}
	emp.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &emp, nil
}

func (o *ops) SaveEmployee(ctx context.Context, emp ledger.Employee) error {
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO employees (id, name, base_group, hire_date, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, base_group = excluded.base_group,
			hire_date = excluded.hire_date`,
		emp.ID, emp.Name, string(emp.BaseGroup), fmtDate(emp.HireDate),
		emp.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func (o *ops) ListEmployees(ctx context.Context) ([]ledger.Employee, error) {
	rows, err := o.q.QueryContext(ctx,
		`SELECT id, name, base_group, hire_date, created_at FROM employees ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Employee
	for rows.Next() {
		var emp ledger.Employee
		var group, hire, created string
		if err := rows.Scan(&emp.ID, &emp.Name, &group, &hire, &created); err != nil {
			return nil, err
		}
		emp.BaseGroup = rota.Group(group)
		if emp.HireDate, err = scanDate(hire); err != nil {
			return nil, err
		}
		emp.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, emp)
	}
	return out, rows.Err()
}

func (o *ops) ListHolidays(ctx context.Context, from, to rota.TimePoint) ([]ledger.HolidayRecord, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT id, date, name, is_official FROM holidays
		WHERE date BETWEEN ? AND ? ORDER BY date`,
		fmtDate(from), fmtDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.HolidayRecord
	for rows.Next() {
		var h ledger.HolidayRecord
		var date string
		var official int
		if err := rows.Scan(&h.ID, &date, &h.Name, &official); err != nil {
			return nil, err
		}
		if h.Date, err = scanDate(date); err != nil {
			return nil, err
		}
		h.IsOfficial = official != 0
		out = append(out, h)
	}
	return out, rows.Err()
}

func (o *ops) SaveHoliday(ctx context.Context, h ledger.HolidayRecord) error {
	official := 0
	if h.IsOfficial {
		official = 1
	}
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO holidays (id, date, name, is_official) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET date = excluded.date, name = excluded.name,
			is_official = excluded.is_official`,
		h.ID, fmtDate(h.Date), h.Name, official)
	return err
}

func (o *ops) ListGroupChanges(ctx context.Context, employeeID string) ([]rota.GroupChange, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT employee_id, old_group, new_group, effective_date, requested_at
		FROM group_changes WHERE employee_id = ?
		ORDER BY effective_date, requested_at`,
		employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rota.GroupChange
	for rows.Next() {
		var ch rota.GroupChange
		var oldG, newG, eff, req string
		if err := rows.Scan(&ch.EmployeeID, &oldG, &newG, &eff, &req); err != nil {
			return nil, err
		}
		ch.OldGroup, ch.NewGroup = rota.Group(oldG), rota.Group(newG)
		if ch.EffectiveDate, err = scanDate(eff); err != nil {
			return nil, err
		}
		ch.RequestedAt, _ = time.Parse(time.RFC3339, req)
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (o *ops) SaveGroupChange(ctx context.Context, ch rota.GroupChange) error {
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO group_changes (employee_id, old_group, new_group, effective_date, requested_at)
		VALUES (?, ?, ?, ?, ?)`,
		ch.EmployeeID, string(ch.OldGroup), string(ch.NewGroup),
		fmtDate(ch.EffectiveDate), ch.RequestedAt.UTC().Format(time.RFC3339))
	return err
}

// isUniqueViolation detects the sqlite unique-constraint failure by message
// so the caller does not depend on the driver's error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
