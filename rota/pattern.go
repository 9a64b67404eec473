/*
pattern.go - The fixed 8-day rotation and its cycle arithmetic

PURPOSE:
  Four groups rotate through a repeating 8-day pattern: two day shifts,
  then two night shifts, then four days off. On every date exactly one
  group covers the day shift and exactly one (different) group covers the
  night shift; the other two are off.

CYCLE ARITHMETIC:
  CycleDay(d) = ((d - reference) mod 8 + 8) mod 8

  The difference is computed on calendar dates normalized to UTC midnight,
  never on wall-clock instants, so the cycle position cannot drift across
  DST transitions, leap days or year boundaries. Dates before the reference
  produce negative differences; the double-mod keeps the index in [0,7].

ANCHOR:
  The reference date is 2025-01-01, which is cycle day 0: group D on its
  2nd day shift, group C on its 2nd night shift.

CONCURRENCY:
  Everything here is a pure function over an immutable table. Safe under
  unbounded parallel use.

SEE ALSO:
  - assignment.go: Which group an employee belongs to on a date
  - calendar package: Layers overrides/leave/holidays on top of this
*/
package rota

import "time"

// referenceDate anchors cycle day 0.
var referenceDate = NewTimePoint(2025, time.January, 1)

// PatternRow is one row of the rotation table: the groups covering the day
// and night shifts for a cycle day, with their block ordinals.
type PatternRow struct {
	Day          Group
	DayOrdinal   Ordinal
	Night        Group
	NightOrdinal Ordinal
}

// rotationPattern is the immutable 8-day table. Index = cycle day.
//
// Each group works two day shifts immediately followed by two night shifts,
// then rests four days. The night group on any date is therefore the group
// whose day block just ended.
var rotationPattern = [8]PatternRow{
	{Day: GroupD, DayOrdinal: Ordinal2nd, Night: GroupC, NightOrdinal: Ordinal2nd}, // cycle day 0 (2025-01-01)
	{Day: GroupA, DayOrdinal: Ordinal1st, Night: GroupD, NightOrdinal: Ordinal1st},
	{Day: GroupA, DayOrdinal: Ordinal2nd, Night: GroupD, NightOrdinal: Ordinal2nd},
	{Day: GroupB, DayOrdinal: Ordinal1st, Night: GroupA, NightOrdinal: Ordinal1st},
	{Day: GroupB, DayOrdinal: Ordinal2nd, Night: GroupA, NightOrdinal: Ordinal2nd},
	{Day: GroupC, DayOrdinal: Ordinal1st, Night: GroupB, NightOrdinal: Ordinal1st},
	{Day: GroupC, DayOrdinal: Ordinal2nd, Night: GroupB, NightOrdinal: Ordinal2nd},
	{Day: GroupD, DayOrdinal: Ordinal1st, Night: GroupC, NightOrdinal: Ordinal1st},
}

// CycleDay returns the date's position in the 8-day rotation, in [0,7].
func CycleDay(date TimePoint) int {
	return ((DaysBetween(referenceDate, date) % 8) + 8) % 8
}

// ShiftGroupsFor returns the rotation row in effect on a date: which groups
// cover the day and night shifts, independent of any employee.
func ShiftGroupsFor(date TimePoint) PatternRow {
	return rotationPattern[CycleDay(date)]
}

// ShiftTypeFor resolves the base shift type for a group on a date.
func ShiftTypeFor(date TimePoint, group Group) ShiftType {
	row := ShiftGroupsFor(date)
	switch group {
	case row.Day:
		return ShiftDay
	case row.Night:
		return ShiftNight
	}
	return ShiftOff
}

// ShiftNumberFor returns the block ordinal (1st/2nd) for a group on a date.
// The second return is false when the group is off.
func ShiftNumberFor(date TimePoint, group Group) (Ordinal, bool) {
	row := ShiftGroupsFor(date)
	switch group {
	case row.Day:
		return row.DayOrdinal, true
	case row.Night:
		return row.NightOrdinal, true
	}
	return "", false
}
