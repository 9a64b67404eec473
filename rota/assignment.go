/*
assignment.go - Effective-dated group reassignment

PURPOSE:
  An employee belongs to a base group, but can be moved between groups over
  time. Each move is an immutable GroupChange that applies from its
  effective date forward. Resolving "which group on date d" means finding
  the latest change whose effective date is on or before d.

TIE-BREAK:
  Two changes can share an effective date (an assignment corrected the same
  day it was filed). The one requested last wins.

LOOKUP:
  Changes are kept sorted ascending by (effectiveDate, requestedAt), so
  EffectiveGroup is a single sort.Search: O(log n).

INVARIANT:
  A future-dated change never affects resolution of any earlier date.

SEE ALSO:
  - pattern.go: Maps the resolved group to a base shift type
*/
package rota

import (
	"sort"
	"time"
)

// =============================================================================
// GROUP CHANGE - One effective-dated reassignment
// =============================================================================

// GroupChange moves an employee from OldGroup to NewGroup starting at
// EffectiveDate. Immutable once created.
type GroupChange struct {
	EmployeeID    string
	OldGroup      Group
	NewGroup      Group
	EffectiveDate TimePoint
	RequestedAt   time.Time
}

// =============================================================================
// ASSIGNMENT RESOLVER
// =============================================================================

// AssignmentResolver answers which group is in effect for an employee on a
// given date. Stateless after construction; safe for concurrent use.
type AssignmentResolver struct {
	baseGroup Group
	changes   []GroupChange // sorted ascending by (EffectiveDate, RequestedAt)
}

// NewAssignmentResolver builds a resolver over a copy of the supplied
// changes. The input does not need to be pre-sorted.
func NewAssignmentResolver(baseGroup Group, changes []GroupChange) *AssignmentResolver {
	sorted := make([]GroupChange, len(changes))
	copy(sorted, changes)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].EffectiveDate.Equal(sorted[j].EffectiveDate) {
			return sorted[i].EffectiveDate.Before(sorted[j].EffectiveDate)
		}
		return sorted[i].RequestedAt.Before(sorted[j].RequestedAt)
	})
	return &AssignmentResolver{baseGroup: baseGroup, changes: sorted}
}

// EffectiveGroup returns the group in effect on a date: the newGroup of the
// latest change with effectiveDate <= date, else the base group.
func (r *AssignmentResolver) EffectiveGroup(date TimePoint) Group {
	// First change strictly after date; the one before it (if any) governs.
	i := sort.Search(len(r.changes), func(i int) bool {
		return r.changes[i].EffectiveDate.After(date)
	})
	if i == 0 {
		return r.baseGroup
	}
	return r.changes[i-1].NewGroup
}

// HasChangeOn reports whether any change takes effect exactly on the date.
func (r *AssignmentResolver) HasChangeOn(date TimePoint) bool {
	i := sort.Search(len(r.changes), func(i int) bool {
		return r.changes[i].EffectiveDate.AfterOrEqual(date)
	})
	return i < len(r.changes) && r.changes[i].EffectiveDate.Equal(date)
}

// BaseGroup returns the group used before any change applies.
func (r *AssignmentResolver) BaseGroup() Group { return r.baseGroup }
