/*
sync_test.go - Behavioral tests for the side-effect synchronizer

Covered behaviors:
  1. Into Overtime creates exactly one record and recomputes the month total
  2. InLieu -> Off deletes the record and debits the balance, floored at 0
  3. Replays are idempotent: one ledger row, one balance delta
  4. Conservation: N in-lieu entries then N exits restore the balance
  5. Transitions among Day/Night/Off touch only the override row
  6. Missing ledger row on reversal warns and continues
  7. Ledger failure after override commit is a partial success
  8. Optimistic concurrency: stale readers lose with ConcurrencyError
*/
package duty

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/roster-engine/ledger"
	"github.com/warp/roster-engine/rota"
	"github.com/warp/roster-engine/store"
)

const empID = "emp-1"

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newSync(t *testing.T) (*Synchronizer, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveEmployee(context.Background(), ledger.Employee{
		ID:        empID,
		Name:      "Test Employee",
		BaseGroup: rota.GroupA,
		HireDate:  rota.NewTimePoint(2020, time.June, 1),
	}))
	return New(mem, quietLogger()), mem
}

func seedBalance(t *testing.T, mem *store.Memory, days string) {
	t.Helper()
	require.NoError(t, mem.SaveBalance(context.Background(), ledger.CachedBalance{
		EmployeeID: empID,
		Days:       decimal.RequireFromString(days),
	}))
}

func balance(t *testing.T, mem *store.Memory) decimal.Decimal {
	t.Helper()
	b, err := mem.GetBalance(context.Background(), empID)
	require.NoError(t, err)
	require.NotNil(t, b)
	return b.Days
}

func apply(t *testing.T, s *Synchronizer, date rota.TimePoint, target rota.ShiftType) *Result {
	t.Helper()
	res, err := s.Apply(context.Background(), Request{
		EmployeeID: empID,
		Date:       date,
		Target:     target,
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	return res
}

// =============================================================================
// OVERTIME
// =============================================================================

func TestOvertimeEntryCreatesRecordAndMonthTotal(t *testing.T) {
	s, mem := newSync(t)
	ctx := context.Background()
	d1 := rota.NewTimePoint(2025, time.March, 10)

	res := apply(t, s, d1, rota.ShiftOvertime)
	assert.Equal(t, ActionCreated, res.Action)
	assert.Contains(t, res.Invalidate, KeyMonthlyOvertime)

	rec, err := mem.GetOvertime(ctx, empID, d1)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Hours.Equal(decimal.NewFromInt(24)), "hours = %s", rec.Hours)

	agg, err := mem.GetMonthlyOvertime(ctx, empID, 2025, time.March)
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.True(t, agg.TotalHours.Equal(decimal.NewFromInt(24)))

	// A second overtime day in the same month raises the total to 48.
	apply(t, s, rota.NewTimePoint(2025, time.March, 12), rota.ShiftOvertime)
	agg, err = mem.GetMonthlyOvertime(ctx, empID, 2025, time.March)
	require.NoError(t, err)
	assert.True(t, agg.TotalHours.Equal(decimal.NewFromInt(48)), "total = %s", agg.TotalHours)
}

func TestOvertimeExitDeletesRecordAndRecomputes(t *testing.T) {
	s, mem := newSync(t)
	ctx := context.Background()
	d1 := rota.NewTimePoint(2025, time.May, 2)
	d2 := rota.NewTimePoint(2025, time.May, 3)

	apply(t, s, d1, rota.ShiftOvertime)
	apply(t, s, d2, rota.ShiftOvertime)

	apply(t, s, d1, rota.ShiftOff)
	rec, err := mem.GetOvertime(ctx, empID, d1)
	require.NoError(t, err)
	assert.Nil(t, rec, "overtime record for exited date survived")

	agg, err := mem.GetMonthlyOvertime(ctx, empID, 2025, time.May)
	require.NoError(t, err)
	assert.True(t, agg.TotalHours.Equal(decimal.NewFromInt(24)))

	// Exiting the last overtime day drives the month total to zero.
	apply(t, s, d2, rota.ShiftDay)
	agg, err = mem.GetMonthlyOvertime(ctx, empID, 2025, time.May)
	require.NoError(t, err)
	assert.True(t, agg.TotalHours.IsZero(), "total = %s", agg.TotalHours)
}

// =============================================================================
// IN-LIEU
// =============================================================================

func TestInLieuToOffDeletesRecordAndDebitsBalance(t *testing.T) {
	s, mem := newSync(t)
	ctx := context.Background()
	d := rota.NewTimePoint(2025, time.April, 6)
	seedBalance(t, mem, "10")

	apply(t, s, d, rota.ShiftInLieu)
	assert.True(t, balance(t, mem).Equal(decimal.RequireFromString("10.667")))
	rec, err := mem.FindInLieuCovering(ctx, empID, d)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.DaysCount)

	res := apply(t, s, d, rota.ShiftOff)
	assert.Contains(t, res.Invalidate, KeyLeaveBalance)

	rec, err = mem.FindInLieuCovering(ctx, empID, d)
	require.NoError(t, err)
	assert.Nil(t, rec, "in-lieu record survived the exit")
	assert.True(t, balance(t, mem).Equal(decimal.NewFromInt(10)), "balance = %s", balance(t, mem))
}

func TestInLieuReplayIsIdempotent(t *testing.T) {
	s, mem := newSync(t)
	ctx := context.Background()
	d := rota.NewTimePoint(2025, time.April, 7)
	seedBalance(t, mem, "5")

	first := apply(t, s, d, rota.ShiftInLieu)
	assert.Equal(t, ActionCreated, first.Action)
	second := apply(t, s, d, rota.ShiftInLieu)
	assert.Equal(t, ActionUpdated, second.Action)

	records, err := mem.ListInLieus(ctx, empID)
	require.NoError(t, err)
	assert.Len(t, records, 1, "replay created a duplicate in-lieu row")
	assert.True(t, balance(t, mem).Equal(decimal.RequireFromString("5.667")),
		"replay double-applied the balance delta: %s", balance(t, mem))
}

func TestInLieuConservation(t *testing.T) {
	// N entries then N exits on distinct dates restore the balance exactly.
	s, mem := newSync(t)
	seedBalance(t, mem, "12.5")

	start := rota.NewTimePoint(2025, time.August, 4)
	const n = 5
	for i := 0; i < n; i++ {
		apply(t, s, start.AddDays(i), rota.ShiftInLieu)
	}
	for i := 0; i < n; i++ {
		apply(t, s, start.AddDays(i), rota.ShiftOff)
	}

	diff := balance(t, mem).Sub(decimal.RequireFromString("12.5")).Abs()
	assert.True(t, diff.LessThanOrEqual(decimal.RequireFromString("0.01")),
		"balance drifted by %s after %d round trips", diff, n)
}

func TestInLieuExitFloorsAtZero(t *testing.T) {
	s, mem := newSync(t)
	ctx := context.Background()
	d := rota.NewTimePoint(2025, time.September, 1)
	seedBalance(t, mem, "0.1")

	// A pre-existing record credits more than the cached balance holds.
	require.NoError(t, mem.CreateInLieu(ctx, ledger.InLieuRecord{
		ID: "il-big", EmployeeID: empID,
		StartDate: d, EndDate: d,
		DaysCount: 1, LeaveDaysAdded: decimal.NewFromInt(5),
	}))
	apply(t, s, d, rota.ShiftInLieu) // record exists: no extra credit
	assert.True(t, balance(t, mem).Equal(decimal.RequireFromString("0.1")))

	apply(t, s, d, rota.ShiftOff)
	assert.True(t, balance(t, mem).IsZero(), "balance = %s, want floor at 0", balance(t, mem))
}

func TestInLieuExitWithMissingRecordWarns(t *testing.T) {
	s, mem := newSync(t)
	ctx := context.Background()
	d := rota.NewTimePoint(2025, time.October, 5)
	seedBalance(t, mem, "3")

	apply(t, s, d, rota.ShiftInLieu)
	rec, err := mem.FindInLieuCovering(ctx, empID, d)
	require.NoError(t, err)
	require.NoError(t, mem.DeleteInLieu(ctx, rec.ID)) // simulate drift

	res := apply(t, s, d, rota.ShiftNight)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "in_lieu_record not found")
	// The reversal was skipped: no debit without a backing record.
	assert.True(t, balance(t, mem).Equal(decimal.RequireFromString("3.667")))
}

// =============================================================================
// LEAVE
// =============================================================================

func TestLeaveEntryCreatesAutoApprovedRecord(t *testing.T) {
	s, mem := newSync(t)
	ctx := context.Background()
	d := rota.NewTimePoint(2025, time.June, 9)

	apply(t, s, d, rota.ShiftLeave)

	rec, err := mem.FindLeaveCovering(ctx, empID, d)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ledger.LeaveApproved, rec.Status)
	assert.True(t, rec.DaysTaken.Equal(decimal.NewFromInt(1)))
	assert.True(t, rec.StartDate.Equal(d) && rec.EndDate.Equal(d))
}

func TestLeaveEntrySkipsWhenSpanAlreadyCovers(t *testing.T) {
	s, mem := newSync(t)
	ctx := context.Background()
	d := rota.NewTimePoint(2025, time.June, 12)

	require.NoError(t, mem.CreateLeave(ctx, ledger.LeaveRecord{
		ID: "lv-span", EmployeeID: empID,
		StartDate: d.AddDays(-2), EndDate: d.AddDays(2),
		DaysTaken: decimal.NewFromInt(5),
		Type:      "annual", Status: ledger.LeaveApproved,
	}))

	apply(t, s, d, rota.ShiftLeave)

	leaves, err := mem.ListLeavesForYear(ctx, empID, 2025)
	require.NoError(t, err)
	assert.Len(t, leaves, 1, "a covered date still spawned a one-day record")
}

// =============================================================================
// NEUTRAL TRANSITIONS
// =============================================================================

func TestPlainTransitionsTouchOnlyOverrideRow(t *testing.T) {
	s, mem := newSync(t)
	ctx := context.Background()
	d := rota.NewTimePoint(2025, time.July, 14)

	for _, target := range []rota.ShiftType{rota.ShiftDay, rota.ShiftNight, rota.ShiftOff, rota.ShiftDay} {
		apply(t, s, d, target)
	}

	ov, err := mem.GetOverride(ctx, empID, d)
	require.NoError(t, err)
	require.NotNil(t, ov)
	assert.Equal(t, rota.ShiftDay, ov.Type)
	assert.Equal(t, 4, ov.Version)

	inLieus, err := mem.ListInLieus(ctx, empID)
	require.NoError(t, err)
	assert.Empty(t, inLieus)
	leaves, err := mem.ListLeavesForYear(ctx, empID, 2025)
	require.NoError(t, err)
	assert.Empty(t, leaves)
	bal, err := mem.GetBalance(ctx, empID)
	require.NoError(t, err)
	assert.Nil(t, bal, "neutral transitions wrote the cached balance")
}

// =============================================================================
// FAILURE SEMANTICS
// =============================================================================

// faultyStore fails one named operation once, inside an otherwise real
// memory store, so the rollback path is exercised end to end.
type faultyStore struct {
	*store.Memory
	failOp  string
	failErr error
}

func (f *faultyStore) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return f.Memory.WithTx(ctx, func(ledger.Store) error { return fn(f) })
}

func (f *faultyStore) SaveMonthlyOvertime(ctx context.Context, agg ledger.MonthlyOvertime) error {
	if f.failOp == "SaveMonthlyOvertime" {
		f.failOp = ""
		return f.failErr
	}
	return f.Memory.SaveMonthlyOvertime(ctx, agg)
}

func (f *faultyStore) SaveBalance(ctx context.Context, bal ledger.CachedBalance) error {
	if f.failOp == "SaveBalance" {
		f.failOp = ""
		return f.failErr
	}
	return f.Memory.SaveBalance(ctx, bal)
}

func TestLedgerFailureAfterOverrideCommitIsPartial(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.SaveEmployee(ctx, ledger.Employee{
		ID: empID, BaseGroup: rota.GroupA, HireDate: rota.NewTimePoint(2020, time.June, 1),
	}))
	faulty := &faultyStore{Memory: mem, failOp: "SaveMonthlyOvertime", failErr: errors.New("disk full")}
	s := New(faulty, quietLogger())
	d := rota.NewTimePoint(2025, time.November, 3)

	res, err := s.Apply(ctx, Request{EmployeeID: empID, Date: d, Target: rota.ShiftOvertime})

	// Partial: the override committed, the reconciliation did not.
	require.Error(t, err)
	var cerr *rota.ConsistencyError
	require.ErrorAs(t, err, &cerr)
	assert.True(t, rota.IsRetryable(err))
	require.NotNil(t, res)
	assert.True(t, res.Partial)

	ov, err2 := mem.GetOverride(ctx, empID, d)
	require.NoError(t, err2)
	require.NotNil(t, ov, "override row must survive a reconciliation failure")
	assert.Equal(t, rota.ShiftOvertime, ov.Type)

	rec, err2 := mem.GetOvertime(ctx, empID, d)
	require.NoError(t, err2)
	assert.Nil(t, rec, "overtime record leaked out of the rolled-back transaction")

	// Retry with fresh reads repairs the rolled-back ledger work: the
	// record and month total exist afterwards, not just a clean status.
	res, err = s.Apply(ctx, Request{EmployeeID: empID, Date: d, Target: rota.ShiftOvertime})
	require.NoError(t, err)
	assert.False(t, res.Partial)

	rec, err2 = mem.GetOvertime(ctx, empID, d)
	require.NoError(t, err2)
	require.NotNil(t, rec, "retry did not recreate the rolled-back overtime record")
	assert.True(t, rec.Hours.Equal(decimal.NewFromInt(24)))

	agg, err2 := mem.GetMonthlyOvertime(ctx, empID, 2025, time.November)
	require.NoError(t, err2)
	require.NotNil(t, agg)
	assert.True(t, agg.TotalHours.Equal(decimal.NewFromInt(24)), "total = %s", agg.TotalHours)
}

func TestReplayRepairsRolledBackExit(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.SaveEmployee(ctx, ledger.Employee{
		ID: empID, BaseGroup: rota.GroupA, HireDate: rota.NewTimePoint(2020, time.June, 1),
	}))
	seedBalance(t, mem, "8")
	faulty := &faultyStore{Memory: mem}
	s := New(faulty, quietLogger())
	d := rota.NewTimePoint(2025, time.November, 9)

	apply(t, s, d, rota.ShiftInLieu)
	require.True(t, balance(t, mem).Equal(decimal.RequireFromString("8.667")))

	// The exit's balance write fails once; the whole exit rolls back.
	faulty.failOp, faulty.failErr = "SaveBalance", errors.New("io error")
	res, err := s.Apply(ctx, Request{EmployeeID: empID, Date: d, Target: rota.ShiftOff})
	var cerr *rota.ConsistencyError
	require.ErrorAs(t, err, &cerr)
	require.NotNil(t, res)
	assert.True(t, res.Partial)

	rec, err2 := mem.FindInLieuCovering(ctx, empID, d)
	require.NoError(t, err2)
	require.NotNil(t, rec, "rolled-back exit must leave the record in place")
	assert.True(t, balance(t, mem).Equal(decimal.RequireFromString("8.667")))

	// Re-issuing Off finds the contradicting record and finishes the exit.
	res, err = s.Apply(ctx, Request{EmployeeID: empID, Date: d, Target: rota.ShiftOff})
	require.NoError(t, err)
	assert.False(t, res.Partial)

	rec, err2 = mem.FindInLieuCovering(ctx, empID, d)
	require.NoError(t, err2)
	assert.Nil(t, rec, "replay did not finish the in-lieu exit")
	assert.True(t, balance(t, mem).Equal(decimal.NewFromInt(8)), "balance = %s", balance(t, mem))
}

// staleReadStore pretends the override row does not exist, as a reader that
// lost a race would see it.
type staleReadStore struct {
	*store.Memory
}

func (s *staleReadStore) GetOverride(context.Context, string, rota.TimePoint) (*ledger.ShiftOverride, error) {
	return nil, nil
}

func TestStaleReaderLosesWithConcurrencyError(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	d := rota.NewTimePoint(2025, time.December, 1)

	// A committed override at version 1.
	_, err := mem.UpsertOverride(ctx, ledger.ShiftOverride{
		ID: "ov-1", EmployeeID: empID, Date: d, Type: rota.ShiftDay,
	}, 0)
	require.NoError(t, err)

	s := New(&staleReadStore{Memory: mem}, quietLogger())
	_, err = s.Apply(ctx, Request{EmployeeID: empID, Date: d, Target: rota.ShiftNight})

	var conflict *rota.ConcurrencyError
	require.ErrorAs(t, err, &conflict)
	assert.True(t, rota.IsRetryable(err))

	// The winner's row is untouched.
	ov, err := mem.GetOverride(ctx, empID, d)
	require.NoError(t, err)
	assert.Equal(t, rota.ShiftDay, ov.Type)
}

func TestDistinctEmployeesRunConcurrently(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	ids := []string{"emp-a", "emp-b", "emp-c", "emp-d"}
	for _, id := range ids {
		require.NoError(t, mem.SaveEmployee(ctx, ledger.Employee{
			ID: id, BaseGroup: rota.GroupB, HireDate: rota.NewTimePoint(2019, time.January, 1),
		}))
	}
	s := New(mem, quietLogger())
	d := rota.NewTimePoint(2025, time.February, 10)

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = s.Apply(ctx, Request{EmployeeID: id, Date: d, Target: rota.ShiftInLieu})
		}(i, id)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "employee %s", ids[i])
	}
	for _, id := range ids {
		records, err := mem.ListInLieus(ctx, id)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	}
}

func TestInputValidation(t *testing.T) {
	s, _ := newSync(t)
	ctx := context.Background()
	d := rota.NewTimePoint(2025, time.March, 1)

	_, err := s.Apply(ctx, Request{EmployeeID: "", Date: d, Target: rota.ShiftDay})
	assert.True(t, rota.IsClientError(err))

	_, err = s.Apply(ctx, Request{EmployeeID: empID, Target: rota.ShiftDay})
	assert.True(t, rota.IsClientError(err))

	_, err = s.Apply(ctx, Request{EmployeeID: empID, Date: d, Target: "Vacation"})
	assert.True(t, rota.IsClientError(err))
}
