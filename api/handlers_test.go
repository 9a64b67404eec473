package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/roster-engine/ledger"
	"github.com/warp/roster-engine/rota"
	"github.com/warp/roster-engine/store"
)

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()

	log := logrus.New()
	log.SetOutput(io.Discard)

	srv := httptest.NewServer(NewRouter(NewHandler(mem, log)))
	t.Cleanup(srv.Close)
	return srv, mem
}

func seedEmployee(t *testing.T, mem *store.Memory, id string, group rota.Group) {
	t.Helper()
	require.NoError(t, mem.SaveEmployee(context.Background(), ledger.Employee{
		ID:        id,
		Name:      "Test Employee",
		BaseGroup: group,
		HireDate:  rota.NewTimePoint(2020, time.June, 1),
		CreatedAt: time.Now().UTC(),
	}))
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body, out any) int {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestEmployeeCRUD(t *testing.T) {
	srv, _ := newTestServer(t)

	var created EmployeeDTO
	status := postJSON(t, srv.URL+"/api/employees", CreateEmployeeRequest{
		ID: "emp-1", Name: "Ada", BaseGroup: "B", HireDate: "2014-02-01",
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "B", created.BaseGroup)

	var got EmployeeDTO
	status = getJSON(t, srv.URL+"/api/employees/emp-1", &got)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Ada", got.Name)
	assert.Equal(t, "2014-02-01", got.HireDate)

	var list []EmployeeDTO
	status = getJSON(t, srv.URL+"/api/employees", &list)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, list, 1)
}

func TestCreateEmployeeRejectsBadGroup(t *testing.T) {
	srv, _ := newTestServer(t)

	status := postJSON(t, srv.URL+"/api/employees", CreateEmployeeRequest{
		ID: "emp-1", BaseGroup: "Z", HireDate: "2020-01-01",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestGetEmployeeNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/employees/ghost", nil))
}

func TestCalendarEndpoint(t *testing.T) {
	srv, mem := newTestServer(t)
	seedEmployee(t, mem, "emp-1", rota.GroupA)

	require.NoError(t, mem.SaveHoliday(context.Background(), ledger.HolidayRecord{
		ID: "hd-1", Date: rota.NewTimePoint(2025, time.July, 1),
		Name: "Founding Day", IsOfficial: true,
	}))

	var cal CalendarDTO
	status := getJSON(t, srv.URL+"/api/employees/emp-1/calendar?year=2025&month=7", &cal)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, 2025, cal.Year)
	assert.Equal(t, 7, cal.Month)
	// July 2025 pads to five full weeks.
	require.Len(t, cal.Days, 35)
	assert.Equal(t, "2025-06-29", cal.Days[0].Date)
	assert.Equal(t, "2025-08-02", cal.Days[34].Date)

	var holiday *DayDTO
	for i := range cal.Days {
		if cal.Days[i].Date == "2025-07-01" {
			holiday = &cal.Days[i]
		}
	}
	require.NotNil(t, holiday)
	assert.Equal(t, "Public", holiday.Shift.Type)
	require.NotNil(t, holiday.Holiday)
	assert.Equal(t, "Founding Day", holiday.Holiday.Name)
}

func TestCalendarRejectsBadMonth(t *testing.T) {
	srv, mem := newTestServer(t)
	seedEmployee(t, mem, "emp-1", rota.GroupA)

	status := getJSON(t, srv.URL+"/api/employees/emp-1/calendar?year=2025&month=13", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestOverrideEndpointReflectsInCalendar(t *testing.T) {
	srv, mem := newTestServer(t)
	seedEmployee(t, mem, "emp-1", rota.GroupA)

	var res OverrideResultDTO
	status := postJSON(t, srv.URL+"/api/employees/emp-1/overrides", OverrideRequest{
		Date: "2025-07-10", ShiftType: "Overtime", Notes: "covering",
	}, &res)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, res.Success)
	assert.Equal(t, "created", res.Action)
	assert.Contains(t, res.Invalidate, "calendar")
	assert.Contains(t, res.Invalidate, "monthly-overtime")

	var cal CalendarDTO
	status = getJSON(t, srv.URL+"/api/employees/emp-1/calendar?year=2025&month=7", &cal)
	require.Equal(t, http.StatusOK, status)
	for _, d := range cal.Days {
		if d.Date == "2025-07-10" {
			assert.Equal(t, "Overtime", d.Shift.Type)
			assert.True(t, d.Shift.IsOverridden)
			assert.NotEmpty(t, d.Shift.OriginalType)
		}
	}

	var ot MonthlyOvertimeDTO
	status = getJSON(t, srv.URL+"/api/employees/emp-1/overtime?year=2025&month=7", &ot)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 24.0, ot.TotalHours)
	assert.Equal(t, 1, ot.Records)
}

func TestOverrideRejectsUnknownShiftType(t *testing.T) {
	srv, mem := newTestServer(t)
	seedEmployee(t, mem, "emp-1", rota.GroupA)

	status := postJSON(t, srv.URL+"/api/employees/emp-1/overrides", OverrideRequest{
		Date: "2025-07-10", ShiftType: "Vacation",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestBalanceEndpointDerivesFromLedgers(t *testing.T) {
	srv, mem := newTestServer(t)
	seedEmployee(t, mem, "emp-1", rota.GroupA)

	var bal BalanceDTO
	status := getJSON(t, srv.URL+"/api/employees/emp-1/balance?year=2025", &bal)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 18.67, bal.Entitlement)
	assert.Equal(t, 18.67, bal.Balance)

	// An in-lieu override credits the balance at the standard rate.
	status = postJSON(t, srv.URL+"/api/employees/emp-1/overrides", OverrideRequest{
		Date: "2025-07-06", ShiftType: "InLieu",
	}, nil)
	require.Equal(t, http.StatusOK, status)

	status = getJSON(t, srv.URL+"/api/employees/emp-1/balance?year=2025", &bal)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 19.337, bal.Balance, 0.001)

	var summary InLieuSummaryDTO
	status = getJSON(t, srv.URL+"/api/employees/emp-1/in-lieu", &summary)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, summary.Records)
	assert.Equal(t, 1, summary.DaysWorked)
	assert.InDelta(t, 0.667, summary.LeaveDaysAdded, 0.001)
}

func TestHolidayEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	var created HolidayDTO
	status := postJSON(t, srv.URL+"/api/holidays", CreateHolidayRequest{
		Date: "2025-01-01", Name: "New Year", IsOfficial: true,
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, created.ID)

	var list []HolidayDTO
	status = getJSON(t, srv.URL+"/api/holidays?year=2025", &list)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsOfficial)
}

func TestGroupChangeEndpoints(t *testing.T) {
	srv, mem := newTestServer(t)
	seedEmployee(t, mem, "emp-1", rota.GroupA)

	var created GroupChangeDTO
	status := postJSON(t, srv.URL+"/api/employees/emp-1/group-changes", CreateGroupChangeRequest{
		NewGroup: "C", EffectiveDate: "2025-03-01",
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "A", created.OldGroup)
	assert.Equal(t, "C", created.NewGroup)

	// A later change chains off the first, not the base group.
	status = postJSON(t, srv.URL+"/api/employees/emp-1/group-changes", CreateGroupChangeRequest{
		NewGroup: "D", EffectiveDate: "2025-06-01",
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "C", created.OldGroup)

	var list []GroupChangeDTO
	status = getJSON(t, srv.URL+"/api/employees/emp-1/group-changes", &list)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, list, 2)
}

func TestCalendarClampsLeaveSpanToGrid(t *testing.T) {
	srv, mem := newTestServer(t)
	seedEmployee(t, mem, "emp-1", rota.GroupA)

	// A corrupt span of roughly a million days; the read path must only
	// walk the grid's slice of it.
	require.NoError(t, mem.CreateLeave(context.Background(), ledger.LeaveRecord{
		ID: "lv-corrupt", EmployeeID: "emp-1",
		StartDate: rota.NewTimePoint(1000, time.January, 1),
		EndDate:   rota.NewTimePoint(4000, time.December, 31),
		DaysTaken: dec("5"), Type: "annual", Status: ledger.LeaveApproved,
	}))

	start := time.Now()
	var cal CalendarDTO
	status := getJSON(t, srv.URL+"/api/employees/emp-1/calendar?year=2025&month=7", &cal)
	require.Equal(t, http.StatusOK, status)
	assert.Less(t, time.Since(start), 2*time.Second, "calendar read walked the full leave span")

	require.Len(t, cal.Days, 35)
	for _, d := range cal.Days {
		if d.IsCurrentMonth {
			assert.Equal(t, "Leave", d.Shift.Type, "date %s", d.Date)
		} else {
			assert.NotEqual(t, "Leave", d.Shift.Type, "padding date %s took layer weight", d.Date)
		}
	}
}

func TestBalanceSweeperRepairsDrift(t *testing.T) {
	_, mem := newTestServer(t)
	seedEmployee(t, mem, "emp-1", rota.GroupA)
	ctx := context.Background()

	// A stale projection that no ledger supports.
	require.NoError(t, mem.SaveBalance(ctx, ledger.CachedBalance{
		EmployeeID: "emp-1", Days: dec("3"), UpdatedAt: time.Now().UTC(),
	}))

	log := logrus.New()
	log.SetOutput(io.Discard)
	sweeper := NewBalanceSweeper(mem, log)
	sweeper.RunNow()

	bal, err := mem.GetBalance(ctx, "emp-1")
	require.NoError(t, err)
	require.NotNil(t, bal)
	assert.True(t, bal.Days.Equal(dec("18.67")), "got %s", bal.Days)
}

func TestBalanceSweeperRestarts(t *testing.T) {
	_, mem := newTestServer(t)
	seedEmployee(t, mem, "emp-1", rota.GroupA)
	ctx := context.Background()

	log := logrus.New()
	log.SetOutput(io.Discard)
	sweeper := NewBalanceSweeper(mem, log)
	sweeper.CheckInterval = time.Hour

	// Each Start runs an immediate sweep; Stop waits for it.
	require.NoError(t, mem.SaveBalance(ctx, ledger.CachedBalance{
		EmployeeID: "emp-1", Days: dec("3"), UpdatedAt: time.Now().UTC(),
	}))
	sweeper.Start()
	sweeper.Stop()

	bal, err := mem.GetBalance(ctx, "emp-1")
	require.NoError(t, err)
	assert.True(t, bal.Days.Equal(dec("18.67")), "got %s", bal.Days)

	// A second cycle must sweep again, not exit on a dead stop channel.
	require.NoError(t, mem.SaveBalance(ctx, ledger.CachedBalance{
		EmployeeID: "emp-1", Days: dec("4"), UpdatedAt: time.Now().UTC(),
	}))
	sweeper.Start()
	sweeper.Stop()

	bal, err = mem.GetBalance(ctx, "emp-1")
	require.NoError(t, err)
	assert.True(t, bal.Days.Equal(dec("18.67")), "restarted sweeper never swept: %s", bal.Days)
}
