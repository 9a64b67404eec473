package store

import (
	"context"

	"github.com/warp/roster-engine/ledger"
	"github.com/warp/roster-engine/rota"
)

// =============================================================================
// TRANSACTIONS - Snapshot + rollback
// =============================================================================
// WithTx simulates a transaction by snapshotting all tables up front and
// restoring them if fn fails. fn runs against the store itself, so writes
// are visible immediately and rolled back wholesale on error. Isolation
// from concurrent writers is the caller's job (the duty synchronizer holds
// a per-employee lock around every WithTx); that matches how this store is
// used in tests and dev.

func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
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

func (m *Memory) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memorySnapshot{
		overrides:    copyMap(m.overrides),
		leaves:       copyMap(m.leaves),
		inLieus:      copyMap(m.inLieus),
		overtime:     copyMap(m.overtime),
		monthly:      copyMap(m.monthly),
		balances:     copyMap(m.balances),
		employees:    copyMap(m.employees),
		holidays:     copyMap(m.holidays),
		groupChanges: copyChangeMap(m.groupChanges),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides = s.overrides
	m.leaves = s.leaves
	m.inLieus = s.inLieus
	m.overtime = s.overtime
	m.monthly = s.monthly
	m.balances = s.balances
	m.employees = s.employees
	m.holidays = s.holidays
	m.groupChanges = s.groupChanges
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func copyChangeMap(src map[string][]rota.GroupChange) map[string][]rota.GroupChange {
	dst := make(map[string][]rota.GroupChange, len(src))
	for k, v := range src {
		dst[k] = append([]rota.GroupChange(nil), v...)
	}
	return dst
}
