/*
Package rota provides the core duty-roster resolution engine.

PURPOSE:
  This package contains the pure, stateless building blocks for resolving
  what an employee is supposed to be doing on a given calendar date:
  - Group/ShiftType enums and the business constants of the roster
  - The fixed 8-day rotation pattern and its cycle arithmetic
  - Effective-dated group reassignment resolution

KEY CONCEPTS IN THIS FILE (types.go):
  - Group: one of the four rotating shift groups (A-D)
  - ShiftType: the resolved duty status for a date
  - Ordinal: whether a group is on its 1st or 2nd day of a shift block

DESIGN PRINCIPLES:
  1. Purity: nothing in this package performs I/O or holds mutable state
  2. Precision: decimal.Decimal for all fractional day amounts
  3. Determinism: identical inputs always produce identical outputs

SEE ALSO:
  - pattern.go: The 8-day rotation table and cycle-day arithmetic
  - assignment.go: Effective-dated group changes
  - errors.go: Error taxonomy shared by the higher layers
*/
package rota

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// GROUPS
// =============================================================================

// Group identifies one of the four rotating shift groups.
type Group string

const (
	GroupA Group = "A"
	GroupB Group = "B"
	GroupC Group = "C"
	GroupD Group = "D"
)

// Groups lists all groups in display order.
var Groups = []Group{GroupA, GroupB, GroupC, GroupD}

// ParseGroup validates a group identifier.
func ParseGroup(s string) (Group, error) {
	switch Group(s) {
	case GroupA, GroupB, GroupC, GroupD:
		return Group(s), nil
	}
	return "", &InputError{Field: "group", Value: s, Reason: "unknown group"}
}

// =============================================================================
// SHIFT TYPES
// =============================================================================

// ShiftType is the resolved duty status for an employee on a date.
//
// Day/Night/Off come from the rotation pattern. Leave/Public/Overtime/InLieu
// only appear through the override, leave and holiday layers.
type ShiftType string

const (
	ShiftDay      ShiftType = "Day"
	ShiftNight    ShiftType = "Night"
	ShiftOff      ShiftType = "Off"
	ShiftLeave    ShiftType = "Leave"
	ShiftPublic   ShiftType = "Public"
	ShiftOvertime ShiftType = "Overtime"
	ShiftInLieu   ShiftType = "InLieu"
)

// ParseShiftType validates a shift type identifier.
func ParseShiftType(s string) (ShiftType, error) {
	switch ShiftType(s) {
	case ShiftDay, ShiftNight, ShiftOff, ShiftLeave, ShiftPublic, ShiftOvertime, ShiftInLieu:
		return ShiftType(s), nil
	}
	return "", &InputError{Field: "shiftType", Value: s, Reason: "unknown shift type"}
}

// Ordinal marks the position within a two-day shift block.
type Ordinal string

const (
	Ordinal1st Ordinal = "1st"
	Ordinal2nd Ordinal = "2nd"
)

// =============================================================================
// BUSINESS CONSTANTS
// =============================================================================
// Undocumented constants inherited from the payroll rules. Kept as named
// values; their rationale is owned by HR, not this engine.

var (
	// InLieuCreditRate is the leave-balance credit per in-lieu duty day.
	InLieuCreditRate = decimal.RequireFromString("0.667")

	// OvertimeHoursPerDay is the fixed hour credit for an Overtime day.
	OvertimeHoursPerDay = decimal.NewFromInt(24)

	// entitlementStandard/Senior are annual leave entitlements in days.
	entitlementStandard = decimal.RequireFromString("18.67")
	entitlementSenior   = decimal.RequireFromString("24.67")
)

// SeniorityYears is the years-of-service threshold for the senior entitlement.
const SeniorityYears = 10

// BaseEntitlement returns the annual leave entitlement for an employee with
// the given years of service.
func BaseEntitlement(yearsOfService int) decimal.Decimal {
	if yearsOfService >= SeniorityYears {
		return entitlementSenior
	}
	return entitlementStandard
}
