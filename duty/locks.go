package duty

import "sync"

// =============================================================================
// PER-EMPLOYEE SERIALIZATION
// =============================================================================
// Synchronizer calls for one employee must not interleave their
// read-modify-write cycles on the cached balance or the ledger-existence
// checks. A keyed mutex serializes per employee; different employees run
// fully concurrent. Entries are never evicted - the map is bounded by the
// number of employees ever mutated in this process.

type keyedMutex struct {
	locks sync.Map // employeeID -> *sync.Mutex
}

// lock acquires the employee's mutex and returns its release func.
func (k *keyedMutex) lock(employeeID string) func() {
	v, _ := k.locks.LoadOrStore(employeeID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
