// Package store provides ledger.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/roster-engine/ledger"
	"github.com/warp/roster-engine/rota"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (tests/dev)
// =============================================================================

type odKey struct {
	EmployeeID string
	Date       string
}

type monthKey struct {
	EmployeeID string
	Year       int
	Month      time.Month
}

type Memory struct {
	mu sync.RWMutex

	overrides    map[odKey]ledger.ShiftOverride
	leaves       map[string]ledger.LeaveRecord
	inLieus      map[string]ledger.InLieuRecord
	overtime     map[odKey]ledger.OvertimeRecord
	monthly      map[monthKey]ledger.MonthlyOvertime
	balances     map[string]ledger.CachedBalance
	employees    map[string]ledger.Employee
	holidays     map[string]ledger.HolidayRecord
	groupChanges map[string][]rota.GroupChange
}

func NewMemory() *Memory {
	return &Memory{
		overrides:    make(map[odKey]ledger.ShiftOverride),
		leaves:       make(map[string]ledger.LeaveRecord),
		inLieus:      make(map[string]ledger.InLieuRecord),
		overtime:     make(map[odKey]ledger.OvertimeRecord),
		monthly:      make(map[monthKey]ledger.MonthlyOvertime),
		balances:     make(map[string]ledger.CachedBalance),
		employees:    make(map[string]ledger.Employee),
		holidays:     make(map[string]ledger.HolidayRecord),
		groupChanges: make(map[string][]rota.GroupChange),
	}
}

var _ ledger.TxStore = (*Memory)(nil)

// --- Overrides ---

func (m *Memory) GetOverride(_ context.Context, employeeID string, date rota.TimePoint) (*ledger.ShiftOverride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getOverrideLocked(employeeID, date)
}

func (m *Memory) getOverrideLocked(employeeID string, date rota.TimePoint) (*ledger.ShiftOverride, error) {
	if ov, ok := m.overrides[odKey{employeeID, date.String()}]; ok {
		cp := ov
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) UpsertOverride(_ context.Context, ov ledger.ShiftOverride, expectedVersion int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertOverrideLocked(ov, expectedVersion)
}

func (m *Memory) upsertOverrideLocked(ov ledger.ShiftOverride, expectedVersion int) (bool, error) {
	k := odKey{ov.EmployeeID, ov.Date.String()}
	existing, ok := m.overrides[k]
	if !ok {
		if expectedVersion != 0 {
			return false, rota.ErrConcurrentModification
		}
		ov.Version = 1
		m.overrides[k] = ov
		return true, nil
	}
	if existing.Version != expectedVersion {
		return false, rota.ErrConcurrentModification
	}
	ov.Version = existing.Version + 1
	m.overrides[k] = ov
	return false, nil
}

func (m *Memory) DeleteOverride(_ context.Context, employeeID string, date rota.TimePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, odKey{employeeID, date.String()})
	return nil
}

func (m *Memory) ListOverrides(_ context.Context, employeeID string, from, to rota.TimePoint) ([]ledger.ShiftOverride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listOverridesLocked(employeeID, from, to)
}

func (m *Memory) listOverridesLocked(employeeID string, from, to rota.TimePoint) ([]ledger.ShiftOverride, error) {
	var out []ledger.ShiftOverride
	for _, ov := range m.overrides {
		if ov.EmployeeID == employeeID && from.BeforeOrEqual(ov.Date) && ov.Date.BeforeOrEqual(to) {
			out = append(out, ov)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// --- Leave ledger ---

func (m *Memory) FindLeaveCovering(_ context.Context, employeeID string, date rota.TimePoint) (*ledger.LeaveRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findLeaveCoveringLocked(employeeID, date)
}

func (m *Memory) findLeaveCoveringLocked(employeeID string, date rota.TimePoint) (*ledger.LeaveRecord, error) {
	for _, l := range m.leaves {
		if l.EmployeeID == employeeID && l.Status != ledger.LeaveRejected && l.Covers(date) {
			cp := l
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) CreateLeave(_ context.Context, rec ledger.LeaveRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaves[rec.ID] = rec
	return nil
}

func (m *Memory) ListLeaves(_ context.Context, employeeID string, from, to rota.TimePoint) ([]ledger.LeaveRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.LeaveRecord
	for _, l := range m.leaves {
		if l.EmployeeID == employeeID && !l.EndDate.Before(from) && !l.StartDate.After(to) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (m *Memory) ListLeavesForYear(_ context.Context, employeeID string, year int) ([]ledger.LeaveRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLeavesForYearLocked(employeeID, year)
}

func (m *Memory) listLeavesForYearLocked(employeeID string, year int) ([]ledger.LeaveRecord, error) {
	var out []ledger.LeaveRecord
	for _, l := range m.leaves {
		if l.EmployeeID == employeeID && l.StartDate.Year() == year {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

// --- In-lieu ledger ---

func (m *Memory) FindInLieuCovering(_ context.Context, employeeID string, date rota.TimePoint) (*ledger.InLieuRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findInLieuCoveringLocked(employeeID, date)
}

func (m *Memory) findInLieuCoveringLocked(employeeID string, date rota.TimePoint) (*ledger.InLieuRecord, error) {
	for _, r := range m.inLieus {
		if r.EmployeeID == employeeID && r.Covers(date) {
			cp := r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) CreateInLieu(_ context.Context, rec ledger.InLieuRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inLieus[rec.ID] = rec
	return nil
}

func (m *Memory) DeleteInLieu(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inLieus, id)
	return nil
}

func (m *Memory) ListInLieus(_ context.Context, employeeID string) ([]ledger.InLieuRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listInLieusLocked(employeeID)
}

func (m *Memory) listInLieusLocked(employeeID string) ([]ledger.InLieuRecord, error) {
	var out []ledger.InLieuRecord
	for _, r := range m.inLieus {
		if r.EmployeeID == employeeID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

// --- Overtime ledger ---

func (m *Memory) GetOvertime(_ context.Context, employeeID string, date rota.TimePoint) (*ledger.OvertimeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.overtime[odKey{employeeID, date.String()}]; ok {
		cp := r
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) UpsertOvertime(_ context.Context, rec ledger.OvertimeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := odKey{rec.EmployeeID, rec.Date.String()}
	if existing, ok := m.overtime[k]; ok {
		rec.ID = existing.ID
	}
	m.overtime[k] = rec
	return nil
}

func (m *Memory) DeleteOvertime(_ context.Context, employeeID string, date rota.TimePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overtime, odKey{employeeID, date.String()})
	return nil
}

func (m *Memory) ListOvertimeForMonth(_ context.Context, employeeID string, year int, month time.Month) ([]ledger.OvertimeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.OvertimeRecord
	for _, r := range m.overtime {
		if r.EmployeeID == employeeID && r.Date.Year() == year && r.Date.Month() == month {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *Memory) SaveMonthlyOvertime(_ context.Context, agg ledger.MonthlyOvertime) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.monthly[monthKey{agg.EmployeeID, agg.Year, agg.Month}] = agg
	return nil
}

func (m *Memory) GetMonthlyOvertime(_ context.Context, employeeID string, year int, month time.Month) (*ledger.MonthlyOvertime, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if agg, ok := m.monthly[monthKey{employeeID, year, month}]; ok {
		cp := agg
		return &cp, nil
	}
	return nil, nil
}

// --- Cached balance ---

func (m *Memory) GetBalance(_ context.Context, employeeID string) (*ledger.CachedBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.balances[employeeID]; ok {
		cp := b
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) SaveBalance(_ context.Context, bal ledger.CachedBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[bal.EmployeeID] = bal
	return nil
}

// --- Reference data ---

func (m *Memory) GetEmployee(_ context.Context, id string) (*ledger.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.employees[id]; ok {
		cp := e
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) SaveEmployee(_ context.Context, emp ledger.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[emp.ID] = emp
	return nil
}

func (m *Memory) ListEmployees(_ context.Context) ([]ledger.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Employee, 0, len(m.employees))
	for _, e := range m.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListHolidays(_ context.Context, from, to rota.TimePoint) ([]ledger.HolidayRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.HolidayRecord
	for _, h := range m.holidays {
		if from.BeforeOrEqual(h.Date) && h.Date.BeforeOrEqual(to) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *Memory) SaveHoliday(_ context.Context, h ledger.HolidayRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holidays[h.ID] = h
	return nil
}

func (m *Memory) ListGroupChanges(_ context.Context, employeeID string) ([]rota.GroupChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]rota.GroupChange, len(m.groupChanges[employeeID]))
	copy(out, m.groupChanges[employeeID])
	return out, nil
}

func (m *Memory) SaveGroupChange(_ context.Context, ch rota.GroupChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groupChanges[ch.EmployeeID] = append(m.groupChanges[ch.EmployeeID], ch)
	return nil
}
