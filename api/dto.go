/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - calendar package: MonthData, the source of CalendarDTO
*/
package api

import (
	"time"

	"github.com/warp/roster-engine/calendar"
	"github.com/warp/roster-engine/duty"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BaseGroup string `json:"base_group"`
	HireDate  string `json:"hire_date"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateEmployeeRequest is the request to create an employee.
type CreateEmployeeRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BaseGroup string `json:"base_group"`
	HireDate  string `json:"hire_date"`
}

// CalendarDTO is the resolved month grid for one employee.
type CalendarDTO struct {
	EmployeeID string       `json:"employee_id"`
	Year       int          `json:"year"`
	Month      int          `json:"month"`
	Days       []DayDTO     `json:"days"`
	Warnings   []WarningDTO `json:"warnings,omitempty"`
}

// DayDTO is one cell of the month grid.
type DayDTO struct {
	Date           string       `json:"date"`
	DayOfMonth     int          `json:"day_of_month"`
	IsCurrentMonth bool         `json:"is_current_month"`
	IsToday        bool         `json:"is_today"`
	IsWeekend      bool         `json:"is_weekend"`
	Shift          ShiftDTO     `json:"shift"`
	Holiday        *HolidayDTO  `json:"holiday,omitempty"`
	Groups         GroupsDTO    `json:"groups"`
	HasGroupChange bool         `json:"has_group_change,omitempty"`
}

// ShiftDTO is the resolved duty status for one date.
type ShiftDTO struct {
	Type         string `json:"type"`
	IsOverridden bool   `json:"is_overridden,omitempty"`
	OriginalType string `json:"original_type,omitempty"`
	ShiftNumber  string `json:"shift_number,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// GroupsDTO is the public rotation for a date.
type GroupsDTO struct {
	DayGroup     string `json:"day_group"`
	DayOrdinal   string `json:"day_ordinal"`
	NightGroup   string `json:"night_group"`
	NightOrdinal string `json:"night_ordinal"`
}

// WarningDTO reports a degraded date inside an otherwise successful month.
type WarningDTO struct {
	Date    string `json:"date"`
	Message string `json:"message"`
}

// OverrideRequest is the request to pin a shift for one date.
type OverrideRequest struct {
	Date      string `json:"date"`
	ShiftType string `json:"shift_type"`
	Notes     string `json:"notes,omitempty"`
}

// OverrideResultDTO reports what an override apply did.
type OverrideResultDTO struct {
	Success    bool     `json:"success"`
	Partial    bool     `json:"partial,omitempty"`
	Action     string   `json:"action"`
	Warnings   []string `json:"warnings,omitempty"`
	Invalidate []string `json:"invalidate"`
	Error      string   `json:"error,omitempty"`
}

// BalanceDTO is the annual leave balance for one employee.
type BalanceDTO struct {
	EmployeeID  string  `json:"employee_id"`
	Year        int     `json:"year"`
	Entitlement float64 `json:"entitlement"`
	Balance     float64 `json:"balance"`
	AsOf        string  `json:"as_of"`
}

// MonthlyOvertimeDTO is the overtime aggregate for one month.
type MonthlyOvertimeDTO struct {
	EmployeeID string  `json:"employee_id"`
	Year       int     `json:"year"`
	Month      int     `json:"month"`
	TotalHours float64 `json:"total_hours"`
	Records    int     `json:"records"`
}

// InLieuSummaryDTO aggregates an employee's in-lieu ledger.
type InLieuSummaryDTO struct {
	EmployeeID     string  `json:"employee_id"`
	Records        int     `json:"records"`
	DaysWorked     int     `json:"days_worked"`
	LeaveDaysAdded float64 `json:"leave_days_added"`
}

// HolidayDTO represents a holiday in API responses.
type HolidayDTO struct {
	ID         string `json:"id,omitempty"`
	Date       string `json:"date"`
	Name       string `json:"name"`
	IsOfficial bool   `json:"is_official"`
}

// CreateHolidayRequest is the request to register a holiday.
type CreateHolidayRequest struct {
	Date       string `json:"date"`
	Name       string `json:"name"`
	IsOfficial bool   `json:"is_official"`
}

// GroupChangeDTO represents an effective-dated group reassignment.
type GroupChangeDTO struct {
	EmployeeID    string `json:"employee_id"`
	OldGroup      string `json:"old_group"`
	NewGroup      string `json:"new_group"`
	EffectiveDate string `json:"effective_date"`
	RequestedAt   string `json:"requested_at,omitempty"`
}

// CreateGroupChangeRequest is the request to schedule a reassignment.
type CreateGroupChangeRequest struct {
	NewGroup      string `json:"new_group"`
	EffectiveDate string `json:"effective_date"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toCalendarDTO(employeeID string, md *calendar.MonthData) CalendarDTO {
	dto := CalendarDTO{
		EmployeeID: employeeID,
		Year:       md.Year,
		Month:      int(md.Month),
		Days:       make([]DayDTO, len(md.Days)),
	}
	for i, d := range md.Days {
		dto.Days[i] = toDayDTO(d)
	}
	for _, w := range md.Warnings {
		dto.Warnings = append(dto.Warnings, WarningDTO{Date: w.Date, Message: w.Message})
	}
	return dto
}

func toDayDTO(d calendar.Day) DayDTO {
	dto := DayDTO{
		Date:           d.Date.String(),
		DayOfMonth:     d.DayOfMonth,
		IsCurrentMonth: d.IsCurrentMonth,
		IsToday:        d.IsToday,
		IsWeekend:      d.IsWeekend,
		HasGroupChange: d.HasGroupChange,
		Shift: ShiftDTO{
			Type:         string(d.Shift.Type),
			IsOverridden: d.Shift.IsOverridden,
			ShiftNumber:  string(d.Shift.ShiftNumber),
			Notes:        d.Shift.Notes,
		},
		Groups: GroupsDTO{
			DayGroup:     string(d.Groups.DayGroup),
			DayOrdinal:   string(d.Groups.DayOrdinal),
			NightGroup:   string(d.Groups.NightGroup),
			NightOrdinal: string(d.Groups.NightOrdinal),
		},
	}
	if d.Shift.IsOverridden {
		dto.Shift.OriginalType = string(d.Shift.OriginalType)
	}
	if d.Holiday != nil {
		dto.Holiday = &HolidayDTO{
			Date:       d.Date.String(),
			Name:       d.Holiday.Name,
			IsOfficial: d.Holiday.Official,
		}
	}
	return dto
}

func toOverrideResultDTO(res *duty.Result) OverrideResultDTO {
	dto := OverrideResultDTO{
		Success:  res.Success,
		Partial:  res.Partial,
		Action:   string(res.Action),
		Warnings: res.Warnings,
	}
	for _, k := range res.Invalidate {
		dto.Invalidate = append(dto.Invalidate, string(k))
	}
	return dto
}

func fmtRFC3339(t time.Time) string { return t.UTC().Format(time.RFC3339) }
