/*
Package calendar resolves a month of duty statuses for one employee.

PURPOSE:
  Combines the rotation pattern, effective-dated group changes, and the
  override/leave/holiday layers into a week-padded month grid ready for
  rendering. Pure: all inputs are pre-fetched by the caller, no I/O happens
  here, and identical inputs produce deep-equal output.

LAYERING:
  Resolution walks an ordered rule list; the first matching layer wins and
  every lower layer (and the base rotation) only informs OriginalType:

    1. override          (highest)
    2. leave
    3. official holiday
    4. base rotation     (always applies)

  The explicit list replaces an if/else-if chain: a new layer is one new
  entry, not a re-derived branch tree.

DEGRADATION:
  A malformed per-day entry (unknown shift type in the override map, say)
  must not abort the whole month. That date degrades to its base rotation
  resolution and a Warning is attached to the MonthData.

SEE ALSO:
  - rota package: Pattern arithmetic and group resolution
  - duty package: The mutations whose writes this reads back
*/
package calendar

import (
	"fmt"
	"time"

	"github.com/warp/roster-engine/rota"
)

// =============================================================================
// INPUTS - Pre-fetched, keyed by ISO date
// =============================================================================

// HolidayInfo describes a holiday on one date. Only official holidays
// resolve to 'Public'; unofficial ones are carried for display only.
type HolidayInfo struct {
	Name     string
	Official bool
}

// DayInput is one per-day entry in the leave or override maps. Type is the
// raw caller-supplied identifier; it is validated during resolution so a
// bad entry degrades a single date instead of rejecting the request.
type DayInput struct {
	Type  string
	Notes string
}

// Inputs carries everything Generate needs. All three maps are required
// (use empty maps for "none"); a nil map is an input error.
type Inputs struct {
	BaseGroup    rota.Group
	Holidays     map[string]HolidayInfo
	Leaves       map[string]DayInput
	Overrides    map[string]DayInput
	GroupChanges []rota.GroupChange

	// Today marks one grid day as IsToday. Zero means no marking, which
	// keeps Generate referentially transparent for callers that care.
	Today rota.TimePoint
}

// =============================================================================
// OUTPUT
// =============================================================================

// ResolvedShift is the authoritative duty status for one date.
type ResolvedShift struct {
	Type         rota.ShiftType
	IsOverridden bool
	OriginalType rota.ShiftType
	ShiftNumber  rota.Ordinal // "" when the base shift has no ordinal
	Notes        string
}

// GroupAssignments is the public rotation for a date, independent of the
// employee's own resolved shift.
type GroupAssignments struct {
	DayGroup     rota.Group
	DayOrdinal   rota.Ordinal
	NightGroup   rota.Group
	NightOrdinal rota.Ordinal
}

// Day is one cell of the month grid.
type Day struct {
	Date           rota.TimePoint
	DayOfMonth     int
	IsCurrentMonth bool
	IsToday        bool
	IsWeekend      bool
	Shift          ResolvedShift
	Holiday        *HolidayInfo
	Groups         GroupAssignments
	HasGroupChange bool
}

// Warning records a degraded date inside an otherwise successful month.
type Warning struct {
	Date    string
	Message string
}

// MonthData is the resolved month: a Sunday-to-Saturday padded grid.
type MonthData struct {
	Year     int
	Month    time.Month
	Days     []Day
	Warnings []Warning
}

// =============================================================================
// LAYER RULES - Ordered, first match wins
// =============================================================================

type candidate struct {
	typ   rota.ShiftType
	notes string
}

// layerFunc inspects one date. ok=false means the layer does not apply;
// a non-nil error means the entry exists but is malformed.
type layerFunc func(date rota.TimePoint, in Inputs) (candidate, bool, error)

type layer struct {
	name    string
	resolve layerFunc
}

var layers = []layer{
	{"override", resolveOverride},
	{"leave", resolveLeave},
	{"holiday", resolveHoliday},
}

func resolveOverride(date rota.TimePoint, in Inputs) (candidate, bool, error) {
	entry, ok := in.Overrides[date.String()]
	if !ok {
		return candidate{}, false, nil
	}
	typ, err := rota.ParseShiftType(entry.Type)
	if err != nil {
		return candidate{}, false, err
	}
	return candidate{typ: typ, notes: entry.Notes}, true, nil
}

func resolveLeave(date rota.TimePoint, in Inputs) (candidate, bool, error) {
	entry, ok := in.Leaves[date.String()]
	if !ok {
		return candidate{}, false, nil
	}
	notes := entry.Notes
	if notes == "" {
		notes = entry.Type
	}
	return candidate{typ: rota.ShiftLeave, notes: notes}, true, nil
}

func resolveHoliday(date rota.TimePoint, in Inputs) (candidate, bool, error) {
	h, ok := in.Holidays[date.String()]
	if !ok || !h.Official {
		return candidate{}, false, nil
	}
	return candidate{typ: rota.ShiftPublic, notes: h.Name}, true, nil
}

// =============================================================================
// GENERATE
// =============================================================================

// Generate resolves a week-padded month for one employee. It raises only
// input errors; per-day problems degrade that date and attach a Warning.
func Generate(year int, month time.Month, in Inputs) (*MonthData, error) {
	if year < 1 || month < time.January || month > time.December {
		return nil, &rota.InputError{
			Field:  "month",
			Value:  fmt.Sprintf("%d-%d", year, month),
			Reason: "year/month out of range",
		}
	}
	if _, err := rota.ParseGroup(string(in.BaseGroup)); err != nil {
		return nil, err
	}
	if in.Holidays == nil || in.Leaves == nil || in.Overrides == nil {
		return nil, &rota.InputError{Field: "inputs", Value: "", Reason: "missing required map"}
	}

	resolver := rota.NewAssignmentResolver(in.BaseGroup, in.GroupChanges)

	first := rota.StartOfMonth(year, month)
	last := rota.EndOfMonth(year, month)
	gridStart := rota.StartOfWeek(first)
	gridEnd := rota.EndOfWeek(last)

	md := &MonthData{Year: year, Month: month}

	for d := gridStart; d.BeforeOrEqual(gridEnd); d = d.AddDays(1) {
		inMonth := d.Year() == year && d.Month() == month
		day := resolveDay(d, inMonth, resolver, in, md)
		md.Days = append(md.Days, day)
	}
	return md, nil
}

func resolveDay(d rota.TimePoint, inMonth bool, resolver *rota.AssignmentResolver, in Inputs, md *MonthData) Day {
	row := rota.ShiftGroupsFor(d)
	group := resolver.EffectiveGroup(d)
	baseType := rota.ShiftTypeFor(d, group)
	baseNumber, _ := rota.ShiftNumberFor(d, group)

	day := Day{
		Date:           d,
		DayOfMonth:     d.Day(),
		IsCurrentMonth: inMonth,
		IsToday:        !in.Today.IsZero() && in.Today.Equal(d),
		IsWeekend:      d.IsWeekend(),
		Groups: GroupAssignments{
			DayGroup:     row.Day,
			DayOrdinal:   row.DayOrdinal,
			NightGroup:   row.Night,
			NightOrdinal: row.NightOrdinal,
		},
		HasGroupChange: resolver.HasChangeOn(d),
		Shift: ResolvedShift{
			Type:         baseType,
			OriginalType: baseType,
			ShiftNumber:  baseNumber,
		},
	}

	if h, ok := in.Holidays[d.String()]; ok {
		info := h
		day.Holiday = &info
	}

	// Padding dates keep the public rotation but carry no layer weight.
	if !inMonth {
		return day
	}

	// Walk the layer list collecting every applicable candidate, then the
	// base rotation. The first wins; the second is what "would have been".
	var matches []candidate
	for _, l := range layers {
		c, ok, err := l.resolve(d, in)
		if err != nil {
			// Malformed entry: degrade this date to its base resolution.
			md.Warnings = append(md.Warnings, Warning{
				Date:    d.String(),
				Message: fmt.Sprintf("%s layer ignored: %v", l.name, err),
			})
			matches = nil
			break
		}
		if ok {
			matches = append(matches, c)
		}
	}

	if len(matches) > 0 {
		day.Shift.Type = matches[0].typ
		day.Shift.Notes = matches[0].notes
		day.Shift.IsOverridden = true
		if len(matches) > 1 {
			day.Shift.OriginalType = matches[1].typ
		} else {
			day.Shift.OriginalType = baseType
		}
	}
	return day
}
