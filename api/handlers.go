/*
handlers.go - HTTP API handlers for the duty roster engine

PURPOSE:
  Exposes the roster engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Employees:
    GET    /api/employees                     List all employees
    POST   /api/employees                     Create employee
    GET    /api/employees/{id}                Get employee details
    GET    /api/employees/{id}/calendar       Resolved month grid
    POST   /api/employees/{id}/overrides      Apply a shift override
    GET    /api/employees/{id}/balance        Annual leave balance
    GET    /api/employees/{id}/overtime       Monthly overtime aggregate
    GET    /api/employees/{id}/in-lieu        In-lieu ledger summary
    GET    /api/employees/{id}/group-changes  Reassignment history
    POST   /api/employees/{id}/group-changes  Schedule a reassignment

  Holidays:
    GET    /api/holidays                      List holidays for a year
    POST   /api/holidays                      Register a holiday

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (calendar, duty, ledger)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (concurrent modification)
  - 500: Internal errors
  A partial apply (override committed, ledger reconciliation failed)
  returns 200 with partial=true and the retry detail in the body.

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/roster-engine/calendar"
	"github.com/warp/roster-engine/duty"
	"github.com/warp/roster-engine/ledger"
	"github.com/warp/roster-engine/rota"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store ledger.TxStore
	Sync  *duty.Synchronizer
	Log   logrus.FieldLogger
}

// NewHandler creates a new handler over the given store.
func NewHandler(store ledger.TxStore, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		Store: store,
		Sync:  duty.New(store, log),
		Log:   log,
	}
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	emp, err := h.Store.GetEmployee(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get employee", err)
		return
	}
	if emp == nil {
		writeError(w, http.StatusNotFound, "Employee not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp))
}

// CreateEmployee creates a new employee.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	group, err := rota.ParseGroup(req.BaseGroup)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid base_group", err)
		return
	}
	hireDate, err := rota.ParseDate(req.HireDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid hire_date format (use YYYY-MM-DD)", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	emp := ledger.Employee{
		ID:        req.ID,
		Name:      req.Name,
		BaseGroup: group,
		HireDate:  hireDate,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

func toEmployeeDTO(e ledger.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:        e.ID,
		Name:      e.Name,
		BaseGroup: string(e.BaseGroup),
		HireDate:  e.HireDate.String(),
		CreatedAt: fmtRFC3339(e.CreatedAt),
	}
}

// =============================================================================
// CALENDAR
// =============================================================================

// GetCalendar resolves the month grid for one employee. The read path
// pre-fetches every layer the resolver needs; resolution itself is pure.
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	year, month, err := yearMonthParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year/month", err)
		return
	}

	emp, err := h.Store.GetEmployee(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get employee", err)
		return
	}
	if emp == nil {
		writeError(w, http.StatusNotFound, "Employee not found", nil)
		return
	}

	// Fetch across the padded grid, not just the month, so leading and
	// trailing cells carry their holidays.
	gridStart := rota.StartOfWeek(rota.StartOfMonth(year, month))
	gridEnd := rota.EndOfWeek(rota.EndOfMonth(year, month))

	in := calendar.Inputs{
		BaseGroup: emp.BaseGroup,
		Holidays:  map[string]calendar.HolidayInfo{},
		Leaves:    map[string]calendar.DayInput{},
		Overrides: map[string]calendar.DayInput{},
		Today:     rota.Today(),
	}

	holidays, err := h.Store.ListHolidays(ctx, gridStart, gridEnd)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load holidays", err)
		return
	}
	for _, hd := range holidays {
		in.Holidays[hd.Date.String()] = calendar.HolidayInfo{Name: hd.Name, Official: hd.IsOfficial}
	}

	overrides, err := h.Store.ListOverrides(ctx, id, gridStart, gridEnd)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load overrides", err)
		return
	}
	for _, ov := range overrides {
		in.Overrides[ov.Date.String()] = calendar.DayInput{Type: string(ov.Type), Notes: ov.Notes}
	}

	leaves, err := h.Store.ListLeaves(ctx, id, gridStart, gridEnd)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load leaves", err)
		return
	}
	for _, lv := range leaves {
		if lv.Status == ledger.LeaveRejected {
			continue
		}
		// Walk only the intersection of the span and the grid; a record
		// spanning years must not turn the read path into a long loop.
		from, to := lv.StartDate, lv.EndDate
		if from.Before(gridStart) {
			from = gridStart
		}
		if gridEnd.Before(to) {
			to = gridEnd
		}
		for d := from; d.BeforeOrEqual(to); d = d.AddDays(1) {
			in.Leaves[d.String()] = calendar.DayInput{Type: lv.Type, Notes: lv.Notes}
		}
	}

	in.GroupChanges, err = h.Store.ListGroupChanges(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load group changes", err)
		return
	}

	md, err := calendar.Generate(year, month, in)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCalendarDTO(id, md))
}

// =============================================================================
// OVERRIDES
// =============================================================================

// ApplyOverride pins a shift for one date and reconciles the ledgers.
func (h *Handler) ApplyOverride(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := rota.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	res, err := h.Sync.Apply(r.Context(), duty.Request{
		EmployeeID: id,
		Date:       date,
		Target:     rota.ShiftType(req.ShiftType),
		Notes:      req.Notes,
	})
	if err != nil {
		// Partial success: the override committed, reconciliation did not.
		// The client gets the committed state plus what is left to retry.
		var cerr *rota.ConsistencyError
		if errors.As(err, &cerr) && res != nil {
			dto := toOverrideResultDTO(res)
			dto.Error = cerr.Error()
			writeJSON(w, http.StatusOK, dto)
			return
		}
		h.respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOverrideResultDTO(res))
}

// =============================================================================
// BALANCE AND AGGREGATES
// =============================================================================

// GetBalance returns the annual leave balance, reconciling the cached
// projection against the ledgers on the way out.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	year := yearParam(r)

	emp, err := h.Store.GetEmployee(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get employee", err)
		return
	}
	if emp == nil {
		writeError(w, http.StatusNotFound, "Employee not found", nil)
		return
	}

	inLieus, err := h.Store.ListInLieus(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load in-lieu records", err)
		return
	}
	leaves, err := h.Store.ListLeavesForYear(ctx, id, year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load leave records", err)
		return
	}

	derived := ledger.FloorZero(ledger.Recompute(*emp, year, inLieus, leaves))

	// Reconcile the projection when it drifted from the ledgers.
	cached, err := h.Store.GetBalance(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load balance", err)
		return
	}
	if cached == nil || !cached.Days.Equal(derived) {
		if cached != nil {
			h.Log.WithFields(logrus.Fields{
				"employee": id,
				"cached":   cached.Days.String(),
				"derived":  derived.String(),
			}).Warn("cached balance drifted from ledgers, reconciling")
		}
		if err := h.Store.SaveBalance(ctx, ledger.CachedBalance{
			EmployeeID: id, Days: derived, UpdatedAt: time.Now().UTC(),
		}); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save balance", err)
			return
		}
	}

	asOf := rota.NewTimePoint(year, time.December, 31)
	entitlement, _ := rota.BaseEntitlement(emp.YearsOfService(asOf)).Float64()
	balance, _ := derived.Float64()
	writeJSON(w, http.StatusOK, BalanceDTO{
		EmployeeID:  id,
		Year:        year,
		Entitlement: entitlement,
		Balance:     balance,
		AsOf:        rota.Today().String(),
	})
}

// GetOvertime returns the monthly overtime aggregate.
func (h *Handler) GetOvertime(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	year, month, err := yearMonthParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year/month", err)
		return
	}

	records, err := h.Store.ListOvertimeForMonth(ctx, id, year, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load overtime records", err)
		return
	}

	total := ledger.SumOvertime(records)
	if agg, err := h.Store.GetMonthlyOvertime(ctx, id, year, month); err == nil && agg != nil {
		total = agg.TotalHours
	}

	hours, _ := total.Float64()
	writeJSON(w, http.StatusOK, MonthlyOvertimeDTO{
		EmployeeID: id,
		Year:       year,
		Month:      int(month),
		TotalHours: hours,
		Records:    len(records),
	})
}

// GetInLieuSummary aggregates the employee's in-lieu ledger.
func (h *Handler) GetInLieuSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	records, err := h.Store.ListInLieus(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load in-lieu records", err)
		return
	}

	summary := InLieuSummaryDTO{EmployeeID: id, Records: len(records)}
	total := decimal.Zero
	for _, rec := range records {
		summary.DaysWorked += rec.DaysCount
		total = total.Add(rec.LeaveDaysAdded)
	}
	summary.LeaveDaysAdded, _ = total.Float64()
	writeJSON(w, http.StatusOK, summary)
}

// =============================================================================
// HOLIDAYS
// =============================================================================

// ListHolidays returns holidays for a year.
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	year := yearParam(r)

	holidays, err := h.Store.ListHolidays(r.Context(),
		rota.NewTimePoint(year, time.January, 1),
		rota.NewTimePoint(year, time.December, 31))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list holidays", err)
		return
	}

	dtos := make([]HolidayDTO, len(holidays))
	for i, hd := range holidays {
		dtos[i] = HolidayDTO{
			ID:         hd.ID,
			Date:       hd.Date.String(),
			Name:       hd.Name,
			IsOfficial: hd.IsOfficial,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHoliday registers a holiday.
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := rota.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	rec := ledger.HolidayRecord{
		ID:         uuid.NewString(),
		Date:       date,
		Name:       req.Name,
		IsOfficial: req.IsOfficial,
	}
	if err := h.Store.SaveHoliday(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save holiday", err)
		return
	}
	writeJSON(w, http.StatusCreated, HolidayDTO{
		ID: rec.ID, Date: rec.Date.String(), Name: rec.Name, IsOfficial: rec.IsOfficial,
	})
}

// =============================================================================
// GROUP CHANGES
// =============================================================================

// ListGroupChanges returns the reassignment history for an employee.
func (h *Handler) ListGroupChanges(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	changes, err := h.Store.ListGroupChanges(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list group changes", err)
		return
	}

	dtos := make([]GroupChangeDTO, len(changes))
	for i, ch := range changes {
		dtos[i] = GroupChangeDTO{
			EmployeeID:    ch.EmployeeID,
			OldGroup:      string(ch.OldGroup),
			NewGroup:      string(ch.NewGroup),
			EffectiveDate: ch.EffectiveDate.String(),
			RequestedAt:   fmtRFC3339(ch.RequestedAt),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateGroupChange schedules an effective-dated reassignment. The old
// group is the employee's group as currently resolved on the effective
// date, so chains of future changes compose.
func (h *Handler) CreateGroupChange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req CreateGroupChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	newGroup, err := rota.ParseGroup(req.NewGroup)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid new_group", err)
		return
	}
	effective, err := rota.ParseDate(req.EffectiveDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_date format (use YYYY-MM-DD)", err)
		return
	}

	emp, err := h.Store.GetEmployee(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get employee", err)
		return
	}
	if emp == nil {
		writeError(w, http.StatusNotFound, "Employee not found", nil)
		return
	}

	existing, err := h.Store.ListGroupChanges(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list group changes", err)
		return
	}
	resolver := rota.NewAssignmentResolver(emp.BaseGroup, existing)

	ch := rota.GroupChange{
		EmployeeID:    id,
		OldGroup:      resolver.EffectiveGroup(effective),
		NewGroup:      newGroup,
		EffectiveDate: effective,
		RequestedAt:   time.Now().UTC(),
	}
	if err := h.Store.SaveGroupChange(ctx, ch); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save group change", err)
		return
	}
	writeJSON(w, http.StatusCreated, GroupChangeDTO{
		EmployeeID:    ch.EmployeeID,
		OldGroup:      string(ch.OldGroup),
		NewGroup:      string(ch.NewGroup),
		EffectiveDate: ch.EffectiveDate.String(),
		RequestedAt:   fmtRFC3339(ch.RequestedAt),
	})
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case rota.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case rota.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid input", err)
	default:
		var conflict *rota.ConcurrencyError
		if errors.As(err, &conflict) {
			writeError(w, http.StatusConflict, "Concurrent modification, retry with fresh state", err)
			return
		}
		h.Log.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func yearParam(r *http.Request) int {
	if s := r.URL.Query().Get("year"); s != "" {
		if y, err := strconv.Atoi(s); err == nil {
			return y
		}
	}
	return rota.Today().Year()
}

func yearMonthParams(r *http.Request) (int, time.Month, error) {
	today := rota.Today()
	year, month := today.Year(), today.Month()

	if s := r.URL.Query().Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, &rota.InputError{Field: "year", Value: s, Reason: "not a number"}
		}
		year = y
	}
	if s := r.URL.Query().Get("month"); s != "" {
		m, err := strconv.Atoi(s)
		if err != nil || m < 1 || m > 12 {
			return 0, 0, &rota.InputError{Field: "month", Value: s, Reason: "must be 1-12"}
		}
		month = time.Month(m)
	}
	return year, month, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
