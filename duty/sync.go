/*
Package duty applies shift overrides and keeps the dependent ledgers
consistent with them.

PURPOSE:
  A shift override is never just an override: moving a date into or out of
  Leave, InLieu or Overtime drags the matching ledger and the cached leave
  balance along. This package makes that side-effect matrix an explicit
  transition table over (previous, target) shift type instead of a pile of
  conditionals, so every cell is reviewable and testable.

STATE MACHINE (per employee, per date):
  States: NoOverride, Day, Night, Off, Leave, Public, Overtime, InLieu.
  Only entries and exits of {Leave, InLieu, Overtime} carry side effects;
  every other transition touches the override row alone.

FAILURE SEMANTICS:
  Phase 1: the override upsert. If it fails, the whole call failed and
           nothing else ran.
  Phase 2: ledger reconciliation in one storage transaction. If it fails
           after phase 1 committed, the call is a PARTIAL success: the
           result carries a ConsistencyError with what landed and what
           didn't, never a silent drop.
  A missing ledger row during a reversal is a data-integrity warning; the
  reversal step is skipped and the call continues.

IDEMPOTENCY:
  Re-issuing the current target re-runs reconciliation against the actual
  ledger state. Over consistent ledgers every hook no-ops (covering-record
  checks, absolute recomputes), so a replay cannot double-book a ledger or
  double-apply a balance delta; after a partial apply the same replay is
  the retry that repairs the rolled-back work.

CONCURRENCY:
  Per-employee keyed mutex (locks.go) plus optimistic versioning on the
  override row. A racing caller loses with ConcurrencyError and must
  retry with fresh reads.

SEE ALSO:
  - ledger package: Record types and the Store/TxStore seam
  - calendar package: Reads what this writes on the next resolution
*/
package duty

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/roster-engine/ledger"
	"github.com/warp/roster-engine/rota"
)

// =============================================================================
// REQUEST / RESULT
// =============================================================================

// Request is the mutation entry point. The caller supplies an authenticated
// employee ID; no authentication happens here.
type Request struct {
	EmployeeID string
	Date       rota.TimePoint
	Target     rota.ShiftType
	Notes      string
}

type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)

// QueryKey names a downstream read the caller must invalidate after a
// successful apply.
type QueryKey string

const (
	KeyCalendar        QueryKey = "calendar"
	KeyLeaveBalance    QueryKey = "leave-balance"
	KeyMonthlyOvertime QueryKey = "monthly-overtime"
	KeyInLieuSummary   QueryKey = "in-lieu-summary"
)

// Result reports what an Apply did. Partial means the override committed
// but ledger reconciliation did not; the accompanying error carries the
// retry detail.
type Result struct {
	Success    bool
	Partial    bool
	Action     Action
	Warnings   []string
	Invalidate []QueryKey
}

// =============================================================================
// SYNCHRONIZER
// =============================================================================

// noOverride is the previous-state marker for a date with no override row.
const noOverride = rota.ShiftType("")

type Synchronizer struct {
	store ledger.TxStore
	log   logrus.FieldLogger
	locks keyedMutex
}

func New(store ledger.TxStore, log logrus.FieldLogger) *Synchronizer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Synchronizer{store: store, log: log}
}

// Apply upserts the override for (employee, date) and reconciles the
// dependent ledgers per the transition table.
//
// Returns (result, nil) on full success; (nil, err) when nothing was
// applied; (result, *rota.ConsistencyError) when the override committed
// but reconciliation failed - result.Partial is set and the error says
// what is left to retry.
func (s *Synchronizer) Apply(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(req.EmployeeID)
	defer unlock()

	log := s.log.WithFields(logrus.Fields{
		"employee": req.EmployeeID,
		"date":     req.Date.String(),
		"target":   req.Target,
	})

	// Read the previous state under the lock.
	prev, err := s.store.GetOverride(ctx, req.EmployeeID, req.Date)
	if err != nil {
		return nil, err
	}
	prevType, prevVersion := noOverride, 0
	if prev != nil {
		prevType, prevVersion = prev.Type, prev.Version
	}

	// Phase 1: the override row. All-or-nothing for the whole call.
	now := time.Now().UTC()
	row := ledger.ShiftOverride{
		ID:         uuid.NewString(),
		EmployeeID: req.EmployeeID,
		Date:       req.Date,
		Type:       req.Target,
		Notes:      req.Notes,
		Source:     "synchronizer",
		UpdatedAt:  now,
		CreatedAt:  now,
	}
	if prev != nil {
		row.ID = prev.ID
		row.CreatedAt = prev.CreatedAt
	}
	created, err := s.store.UpsertOverride(ctx, row, prevVersion)
	if err != nil {
		if errors.Is(err, rota.ErrConcurrentModification) {
			return nil, &rota.ConcurrencyError{EmployeeID: req.EmployeeID, Date: req.Date}
		}
		return nil, err
	}

	res := &Result{
		Success:    true,
		Action:     ActionUpdated,
		Invalidate: []QueryKey{KeyCalendar},
	}
	if created {
		res.Action = ActionCreated
	}

	// Phase 2: ledger reconciliation, one transaction. A re-issued target
	// does not skip this: after a partial apply the override row already
	// carries the target while the ledger work rolled back, so the replay
	// is the retry. Hooks are idempotent; a replay over consistent ledgers
	// touches nothing.
	replay := prevType == req.Target
	err = s.store.WithTx(ctx, func(st ledger.Store) error {
		if replay {
			return reconcileReplay(ctx, st, req, res, log)
		}
		if hook := exitHooks[prevType]; hook != nil {
			if err := hook(ctx, st, req, res, log); err != nil {
				return err
			}
		}
		if hook := enterHooks[req.Target]; hook != nil {
			if err := hook(ctx, st, req, res, log); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		cerr := &rota.ConsistencyError{
			EmployeeID: req.EmployeeID,
			Date:       req.Date,
			Applied:    []string{"override:" + string(req.Target)},
			Failed:     "ledger reconciliation " + string(prevType) + "->" + string(req.Target),
			Cause:      err,
		}
		log.WithError(err).Error("ledger reconciliation failed after override commit")
		res.Partial = true
		return res, cerr
	}
	return res, nil
}

func validate(req Request) error {
	if req.EmployeeID == "" {
		return &rota.InputError{Field: "employeeId", Value: "", Reason: "required"}
	}
	if req.Date.IsZero() {
		return &rota.InputError{Field: "date", Value: "", Reason: "required"}
	}
	_, err := rota.ParseShiftType(string(req.Target))
	return err
}

// =============================================================================
// TRANSITION TABLE
// =============================================================================
// Only Leave, InLieu and Overtime have hooks. Every other (prev, target)
// pair falls through both maps and touches nothing but the override row.

type hook func(ctx context.Context, st ledger.Store, req Request, res *Result, log logrus.FieldLogger) error

// reconcileReplay handles a re-issued target. The override row can no
// longer tell us what to exit (it already carries the target), so exits
// key off the actual ledger state: any record that contradicts the target
// is reversed, then the target's entry hook runs. When ledgers and
// override agree, every step no-ops.
func reconcileReplay(ctx context.Context, st ledger.Store, req Request, res *Result, log logrus.FieldLogger) error {
	if req.Target != rota.ShiftInLieu {
		rec, err := st.FindInLieuCovering(ctx, req.EmployeeID, req.Date)
		if err != nil {
			return err
		}
		if rec != nil {
			if err := exitInLieu(ctx, st, req, res, log); err != nil {
				return err
			}
		}
	}
	if req.Target != rota.ShiftOvertime {
		rec, err := st.GetOvertime(ctx, req.EmployeeID, req.Date)
		if err != nil {
			return err
		}
		if rec != nil {
			if err := exitOvertime(ctx, st, req, res, log); err != nil {
				return err
			}
		}
	}
	if hook := enterHooks[req.Target]; hook != nil {
		return hook(ctx, st, req, res, log)
	}
	return nil
}

var enterHooks = map[rota.ShiftType]hook{
	rota.ShiftInLieu:   enterInLieu,
	rota.ShiftLeave:    enterLeave,
	rota.ShiftOvertime: enterOvertime,
}

var exitHooks = map[rota.ShiftType]hook{
	rota.ShiftInLieu:   exitInLieu,
	rota.ShiftOvertime: exitOvertime,
}

// --- InLieu ---

func enterInLieu(ctx context.Context, st ledger.Store, req Request, res *Result, log logrus.FieldLogger) error {
	existing, err := st.FindInLieuCovering(ctx, req.EmployeeID, req.Date)
	if err != nil {
		return err
	}
	if existing != nil {
		// Already booked: do not double-create or double-credit.
		log.WithField("record", existing.ID).Debug("in-lieu record already covers date")
		return nil
	}

	bal, err := currentBalance(ctx, st, req.EmployeeID, req.Date.Year())
	if err != nil {
		return err
	}
	if err := st.CreateInLieu(ctx, ledger.InLieuRecord{
		ID:             uuid.NewString(),
		EmployeeID:     req.EmployeeID,
		StartDate:      req.Date,
		EndDate:        req.Date,
		DaysCount:      1,
		LeaveDaysAdded: rota.InLieuCreditRate,
	}); err != nil {
		return err
	}
	if err := st.SaveBalance(ctx, ledger.CachedBalance{
		EmployeeID: req.EmployeeID,
		Days:       bal.Add(rota.InLieuCreditRate),
		UpdatedAt:  time.Now().UTC(),
	}); err != nil {
		return err
	}
	res.Invalidate = append(res.Invalidate, KeyLeaveBalance, KeyInLieuSummary)
	return nil
}

func exitInLieu(ctx context.Context, st ledger.Store, req Request, res *Result, log logrus.FieldLogger) error {
	rec, err := st.FindInLieuCovering(ctx, req.EmployeeID, req.Date)
	if err != nil {
		return err
	}
	if rec == nil {
		// The credit we are supposed to reverse has no backing record.
		// Skip the reversal, surface the integrity warning.
		nf := &rota.NotFoundError{Kind: "in_lieu_record", EmployeeID: req.EmployeeID, Date: req.Date}
		log.Warn(nf.Error())
		res.Warnings = append(res.Warnings, nf.Error())
		return nil
	}

	// Delete the record before touching the balance: a crash between the
	// two leaves the balance conservatively high, not an orphaned credit.
	if err := st.DeleteInLieu(ctx, rec.ID); err != nil {
		return err
	}
	bal, err := currentBalance(ctx, st, req.EmployeeID, req.Date.Year())
	if err != nil {
		return err
	}
	if err := st.SaveBalance(ctx, ledger.CachedBalance{
		EmployeeID: req.EmployeeID,
		Days:       ledger.FloorZero(bal.Sub(rec.LeaveDaysAdded)),
		UpdatedAt:  time.Now().UTC(),
	}); err != nil {
		return err
	}
	res.Invalidate = append(res.Invalidate, KeyLeaveBalance, KeyInLieuSummary)
	return nil
}

// --- Leave ---

func enterLeave(ctx context.Context, st ledger.Store, req Request, res *Result, log logrus.FieldLogger) error {
	existing, err := st.FindLeaveCovering(ctx, req.EmployeeID, req.Date)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	if err := st.CreateLeave(ctx, ledger.LeaveRecord{
		ID:         uuid.NewString(),
		EmployeeID: req.EmployeeID,
		StartDate:  req.Date,
		EndDate:    req.Date,
		DaysTaken:  oneDay,
		Type:       "annual",
		Status:     ledger.LeaveApproved,
		Notes:      req.Notes,
	}); err != nil {
		return err
	}
	res.Invalidate = append(res.Invalidate, KeyLeaveBalance)
	return nil
}

// --- Overtime ---

func enterOvertime(ctx context.Context, st ledger.Store, req Request, res *Result, log logrus.FieldLogger) error {
	if err := st.UpsertOvertime(ctx, ledger.OvertimeRecord{
		ID:         uuid.NewString(),
		EmployeeID: req.EmployeeID,
		Date:       req.Date,
		Hours:      rota.OvertimeHoursPerDay,
	}); err != nil {
		return err
	}
	if err := recomputeMonthlyOvertime(ctx, st, req); err != nil {
		return err
	}
	res.Invalidate = append(res.Invalidate, KeyMonthlyOvertime)
	return nil
}

func exitOvertime(ctx context.Context, st ledger.Store, req Request, res *Result, log logrus.FieldLogger) error {
	rec, err := st.GetOvertime(ctx, req.EmployeeID, req.Date)
	if err != nil {
		return err
	}
	if rec == nil {
		nf := &rota.NotFoundError{Kind: "overtime_record", EmployeeID: req.EmployeeID, Date: req.Date}
		log.Warn(nf.Error())
		res.Warnings = append(res.Warnings, nf.Error())
	} else if err := st.DeleteOvertime(ctx, req.EmployeeID, req.Date); err != nil {
		return err
	}
	if err := recomputeMonthlyOvertime(ctx, st, req); err != nil {
		return err
	}
	res.Invalidate = append(res.Invalidate, KeyMonthlyOvertime)
	return nil
}

func recomputeMonthlyOvertime(ctx context.Context, st ledger.Store, req Request) error {
	records, err := st.ListOvertimeForMonth(ctx, req.EmployeeID, req.Date.Year(), req.Date.Month())
	if err != nil {
		return err
	}
	return st.SaveMonthlyOvertime(ctx, ledger.MonthlyOvertime{
		EmployeeID: req.EmployeeID,
		Year:       req.Date.Year(),
		Month:      req.Date.Month(),
		TotalHours: ledger.SumOvertime(records),
	})
}

// =============================================================================
// BALANCE HELPERS
// =============================================================================

var oneDay = decimal.NewFromInt(1)

// currentBalance reads the cached balance; when the projection has never
// been written it is seeded from the ledgers (the source of truth) so the
// first incremental delta does not start from an arbitrary zero.
func currentBalance(ctx context.Context, st ledger.Store, employeeID string, year int) (decimal.Decimal, error) {
	cached, err := st.GetBalance(ctx, employeeID)
	if err != nil {
		return decimal.Zero, err
	}
	if cached != nil {
		return cached.Days, nil
	}

	emp, err := st.GetEmployee(ctx, employeeID)
	if err != nil {
		return decimal.Zero, err
	}
	if emp == nil {
		return decimal.Zero, &rota.NotFoundError{Kind: "employee", EmployeeID: employeeID}
	}
	inLieus, err := st.ListInLieus(ctx, employeeID)
	if err != nil {
		return decimal.Zero, err
	}
	leaves, err := st.ListLeavesForYear(ctx, employeeID, year)
	if err != nil {
		return decimal.Zero, err
	}
	return ledger.Recompute(*emp, year, inLieus, leaves), nil
}
