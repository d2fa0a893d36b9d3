/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Punch flow (clock-in, clock-out, conflicts, validation)
- Admin corrections, edits, delete and the audit trail
- Auto-close and recalculation endpoints
- Work records, reconciliation and the discrepancy report
- Break-rule administration, routing and health
*/
package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/worktime-engine/api"
	"github.com/warp/worktime-engine/factory"
	"github.com/warp/worktime-engine/worktime"
	memstore "github.com/warp/worktime-engine/worktime/store"
)

var monday = api.ScenarioWeek

type testServer struct {
	h      *api.Handler
	router http.Handler
	clock  *worktime.ManualClock
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	clock := worktime.NewManualClock(monday.At(worktime.MustTimeOfDay("07:00")))
	h := api.NewHandler(memstore.NewMemory(), api.Config{
		Thresholds: worktime.DefaultThresholds(),
		Clock:      clock,
	})
	return &testServer{h: h, router: api.NewRouter(h, nil), clock: clock}
}

// do sends a request through the router. A string body is sent as is,
// anything else is JSON-encoded.
func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func instant(hhmm string) string {
	return monday.At(worktime.MustTimeOfDay(hhmm)).Format(time.RFC3339)
}

func (s *testServer) lunchRules(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodPut, "/api/break-rules", factory.LunchOnlyJSON())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// shift clocks a user in and out on Monday and returns the closed record.
func (s *testServer) shift(t *testing.T, userID, in, out string) api.AttendanceDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/attendance/clock-in", api.PunchRequest{UserID: userID, At: instant(in)})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, "/api/attendance/clock-out", api.PunchRequest{UserID: userID, At: instant(out)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[api.AttendanceDTO](t, rec)
}

// =============================================================================
// PUNCHES
// =============================================================================

func TestPunchFlow(t *testing.T) {
	// GIVEN: The weekday lunch rule
	// WHEN: alice clocks in at 08:00 and out at 17:00
	// THEN: 201 then 200 with 495 minutes; repeated punches conflict
	s := newServer(t)
	s.lunchRules(t)

	in := s.do(t, http.MethodPost, "/api/attendance/clock-in", api.PunchRequest{UserID: "alice", At: instant("08:00"), Device: "gate-1"})
	require.Equal(t, http.StatusCreated, in.Code, in.Body.String())
	opened := decode[api.AttendanceDTO](t, in)
	assert.Equal(t, "open", opened.Status)
	assert.Equal(t, "2024-03-04", opened.Date)
	assert.Equal(t, "2024-03-04T08:00:00+09:00", opened.ClockIn)
	assert.Nil(t, opened.ClockOut)
	assert.Equal(t, "gate-1", opened.ClockInDevice)

	again := s.do(t, http.MethodPost, "/api/attendance/clock-in", api.PunchRequest{UserID: "alice", At: instant("08:05")})
	assert.Equal(t, http.StatusConflict, again.Code)
	assert.Equal(t, "already_open", decode[api.ErrorResponse](t, again).Code)

	out := s.do(t, http.MethodPost, "/api/attendance/clock-out", api.PunchRequest{UserID: "alice", At: instant("17:00")})
	require.Equal(t, http.StatusOK, out.Code, out.Body.String())
	closed := decode[api.AttendanceDTO](t, out)
	assert.Equal(t, opened.ID, closed.ID)
	assert.Equal(t, "closed", closed.Status)
	assert.Equal(t, 495, closed.WorkMinutes)
	assert.Equal(t, "8.25", closed.WorkHours)
	require.NotNil(t, closed.ClockOut)
	assert.Equal(t, "2024-03-04T17:00:00+09:00", *closed.ClockOut)

	none := s.do(t, http.MethodPost, "/api/attendance/clock-out", api.PunchRequest{UserID: "alice", At: instant("17:30")})
	assert.Equal(t, http.StatusConflict, none.Code)
	assert.Equal(t, "no_open_record", decode[api.ErrorResponse](t, none).Code)

	dup := s.do(t, http.MethodPost, "/api/attendance/clock-in", api.PunchRequest{UserID: "alice", At: instant("18:00")})
	assert.Equal(t, http.StatusConflict, dup.Code)
	assert.Equal(t, "duplicate_day", decode[api.ErrorResponse](t, dup).Code)
}

func TestClockIn_DefaultsToNow(t *testing.T) {
	s := newServer(t)
	s.clock.Set(monday.At(worktime.MustTimeOfDay("08:30")))

	rec := s.do(t, http.MethodPost, "/api/attendance/clock-in", api.PunchRequest{UserID: "bob"})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "2024-03-04T08:30:00+09:00", decode[api.AttendanceDTO](t, rec).ClockIn)
}

func TestClockOut_BeforeClockInIsInvalidOrder(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodPost, "/api/attendance/clock-in", api.PunchRequest{UserID: "bob", At: instant("09:00")})
	require.Equal(t, http.StatusCreated, rec.Code)

	out := s.do(t, http.MethodPost, "/api/attendance/clock-out", api.PunchRequest{UserID: "bob", At: instant("08:00")})

	assert.Equal(t, http.StatusUnprocessableEntity, out.Code)
	assert.Equal(t, "invalid_order", decode[api.ErrorResponse](t, out).Code)
}

func TestPunch_Validation(t *testing.T) {
	s := newServer(t)

	tests := []struct {
		name   string
		body   string
		fields map[string]string
	}{
		{"missing user", `{}`, map[string]string{"user_id": "required"}},
		{"bad timestamp", `{"user_id": "alice", "at": "yesterday"}`, map[string]string{"at": "instant"}},
		{"malformed body", `{"user_id":`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/attendance/clock-in", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode[api.ErrorResponse](t, rec)
			assert.Equal(t, "invalid_input", resp.Code)
			assert.Equal(t, tt.fields, resp.Fields)
		})
	}
}

// =============================================================================
// ADMIN CORRECTIONS
// =============================================================================

func TestCorrection_AuditedAndRecomputed(t *testing.T) {
	// GIVEN: A closed 08:00-17:00 record
	// WHEN: A supervisor moves clockOut to 18:00
	// THEN: 555 minutes and one audit entry carrying old and new values
	s := newServer(t)
	s.lunchRules(t)
	rec := s.shift(t, "dave", "08:00", "17:00")

	resp := s.do(t, http.MethodPost, "/api/attendance/"+rec.ID+"/corrections", api.CorrectionRequest{
		Field:    "clockOut",
		Value:    instant("18:00"),
		EditorID: "supervisor-1",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, 555, decode[api.AttendanceDTO](t, resp).WorkMinutes)

	audit := s.do(t, http.MethodGet, "/api/attendance/"+rec.ID+"/audit", nil)
	require.Equal(t, http.StatusOK, audit.Code)
	entries := decode[[]api.AuditEntryDTO](t, audit)
	require.Len(t, entries, 1)
	assert.Equal(t, "clockOut", entries[0].Field)
	require.NotNil(t, entries[0].OldValue)
	assert.Equal(t, "2024-03-04T17:00:00+09:00", *entries[0].OldValue)
	assert.Equal(t, "2024-03-04T18:00:00+09:00", entries[0].NewValue)
	assert.Equal(t, "supervisor-1", entries[0].EditorID)

	byEditor := s.do(t, http.MethodGet, "/api/audit?editor_id=supervisor-1", nil)
	require.Equal(t, http.StatusOK, byEditor.Code)
	assert.Len(t, decode[[]api.AuditEntryDTO](t, byEditor), 1)

	byOther := s.do(t, http.MethodGet, "/api/audit?editor_id=someone-else", nil)
	require.Equal(t, http.StatusOK, byOther.Code)
	assert.Empty(t, decode[[]api.AuditEntryDTO](t, byOther))
}

func TestCorrection_Errors(t *testing.T) {
	s := newServer(t)
	rec := s.shift(t, "dave", "08:00", "17:00")

	badField := s.do(t, http.MethodPost, "/api/attendance/"+rec.ID+"/corrections",
		api.CorrectionRequest{Field: "breakStart", Value: instant("12:00"), EditorID: "sv"})
	assert.Equal(t, http.StatusBadRequest, badField.Code)
	assert.Equal(t, map[string]string{"field": "oneof"}, decode[api.ErrorResponse](t, badField).Fields)

	noEditor := s.do(t, http.MethodPost, "/api/attendance/"+rec.ID+"/corrections",
		api.CorrectionRequest{Field: "clockOut", Value: instant("18:00")})
	assert.Equal(t, http.StatusBadRequest, noEditor.Code)
	assert.Equal(t, map[string]string{"editor_id": "required"}, decode[api.ErrorResponse](t, noEditor).Fields)

	missing := s.do(t, http.MethodPost, "/api/attendance/nope/corrections",
		api.CorrectionRequest{Field: "clockOut", Value: instant("18:00"), EditorID: "sv"})
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, "not_found", decode[api.ErrorResponse](t, missing).Code)

	order := s.do(t, http.MethodPost, "/api/attendance/"+rec.ID+"/corrections",
		api.CorrectionRequest{Field: "clockOut", Value: instant("07:00"), EditorID: "sv"})
	assert.Equal(t, http.StatusUnprocessableEntity, order.Code)
}

func TestEditAttendance(t *testing.T) {
	s := newServer(t)
	s.lunchRules(t)
	rec := s.shift(t, "dave", "08:00", "17:00")
	path := "/api/attendance/" + rec.ID

	clockIn := instant("09:00")
	resp := s.do(t, http.MethodPatch, path, api.EditAttendanceRequest{ClockIn: &clockIn, EditorID: "sv"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, 435, decode[api.AttendanceDTO](t, resp).WorkMinutes)

	empty := s.do(t, http.MethodPatch, path, api.EditAttendanceRequest{EditorID: "sv"})
	assert.Equal(t, http.StatusBadRequest, empty.Code)

	early := instant("06:00")
	bad := s.do(t, http.MethodPatch, path, api.EditAttendanceRequest{ClockOut: &early, EditorID: "sv"})
	assert.Equal(t, http.StatusUnprocessableEntity, bad.Code)

	get := s.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, get.Code)
	assert.Equal(t, "2024-03-04T09:00:00+09:00", decode[api.AttendanceDTO](t, get).ClockIn)
}

func TestDeleteAttendance(t *testing.T) {
	s := newServer(t)
	rec := s.shift(t, "dave", "08:00", "17:00")
	path := "/api/attendance/" + rec.ID

	noEditor := s.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusBadRequest, noEditor.Code)

	del := s.do(t, http.MethodDelete, path+"?editor_id=sv", nil)
	assert.Equal(t, http.StatusNoContent, del.Code)

	get := s.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, get.Code)

	// The day is free again.
	in := s.do(t, http.MethodPost, "/api/attendance/clock-in", api.PunchRequest{UserID: "dave", At: instant("08:00")})
	assert.Equal(t, http.StatusCreated, in.Code)
}

// =============================================================================
// AUTO-CLOSE
// =============================================================================

func TestAutoClose_Batch(t *testing.T) {
	// GIVEN: carol clocked in at 20:00 and never clocked out
	// WHEN: The batch runs at 23:59
	// THEN: The record closes at 23:59 with 239 minutes
	s := newServer(t)
	s.lunchRules(t)
	in := s.do(t, http.MethodPost, "/api/attendance/clock-in", api.PunchRequest{UserID: "carol", At: instant("20:00")})
	require.Equal(t, http.StatusCreated, in.Code)
	id := decode[api.AttendanceDTO](t, in).ID

	resp := s.do(t, http.MethodPost, "/api/admin/auto-close", api.AutoCloseRequest{Cutoff: instant("23:59")})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	result := decode[api.AutoCloseResultDTO](t, resp)
	assert.Equal(t, 1, result.Due)
	assert.Equal(t, 1, result.Closed)
	assert.Zero(t, result.Errors)

	get := s.do(t, http.MethodGet, "/api/attendance/"+id, nil)
	rec := decode[api.AttendanceDTO](t, get)
	assert.Equal(t, 239, rec.WorkMinutes)
	assert.True(t, rec.AutoClosed)
	assert.Equal(t, "auto-close", rec.ClockOutDevice)

	// Nothing left on a second pass.
	again := s.do(t, http.MethodPost, "/api/admin/auto-close", api.AutoCloseRequest{Cutoff: instant("23:59")})
	assert.Zero(t, decode[api.AutoCloseResultDTO](t, again).Closed)
}

func TestAutoClose_EmptyBodyUsesClock(t *testing.T) {
	s := newServer(t)
	in := s.do(t, http.MethodPost, "/api/attendance/clock-in", api.PunchRequest{UserID: "carol", At: instant("20:00")})
	require.Equal(t, http.StatusCreated, in.Code)

	early := s.do(t, http.MethodPost, "/api/admin/auto-close", nil)
	require.Equal(t, http.StatusOK, early.Code, early.Body.String())
	assert.Zero(t, decode[api.AutoCloseResultDTO](t, early).Closed)

	s.clock.Set(monday.AddDays(1).At(worktime.MustTimeOfDay("00:10")))
	late := s.do(t, http.MethodPost, "/api/admin/auto-close", nil)
	require.Equal(t, http.StatusOK, late.Code, late.Body.String())
	assert.Equal(t, 1, decode[api.AutoCloseResultDTO](t, late).Closed)
}

func TestAutoCloseRecord(t *testing.T) {
	s := newServer(t)
	in := s.do(t, http.MethodPost, "/api/attendance/clock-in", api.PunchRequest{UserID: "carol", At: instant("20:00")})
	require.Equal(t, http.StatusCreated, in.Code)
	path := "/api/attendance/" + decode[api.AttendanceDTO](t, in).ID + "/auto-close"

	early := s.do(t, http.MethodPost, path, api.AutoCloseRequest{Cutoff: instant("22:00")})
	assert.Equal(t, http.StatusConflict, early.Code)
	assert.Equal(t, "cutoff_not_reached", decode[api.ErrorResponse](t, early).Code)

	ok := s.do(t, http.MethodPost, path, api.AutoCloseRequest{Cutoff: instant("23:59")})
	require.Equal(t, http.StatusOK, ok.Code, ok.Body.String())
	assert.Equal(t, 239, decode[api.AttendanceDTO](t, ok).WorkMinutes)
}

// =============================================================================
// USERS
// =============================================================================

func TestUserOpenAttendance(t *testing.T) {
	s := newServer(t)

	none := s.do(t, http.MethodGet, "/api/users/alice/attendance/open", nil)
	require.Equal(t, http.StatusOK, none.Code)
	assert.JSONEq(t, `{"record": null}`, none.Body.String())

	in := s.do(t, http.MethodPost, "/api/attendance/clock-in", api.PunchRequest{UserID: "alice", At: instant("08:00")})
	require.Equal(t, http.StatusCreated, in.Code)

	open := s.do(t, http.MethodGet, "/api/users/alice/attendance/open", nil)
	resp := decode[struct {
		Record *api.AttendanceDTO `json:"record"`
	}](t, open)
	require.NotNil(t, resp.Record)
	assert.Equal(t, "open", resp.Record.Status)
}

func TestUserAttendanceHistory(t *testing.T) {
	s := newServer(t)
	s.shift(t, "alice", "08:00", "17:00")

	rec := s.do(t, http.MethodGet, "/api/users/alice/attendance?from=2024-03-01&to=2024-03-08", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.AttendanceDTO](t, rec), 1)

	before := s.do(t, http.MethodGet, "/api/users/alice/attendance?from=2024-02-01&to=2024-02-28", nil)
	assert.Empty(t, decode[[]api.AttendanceDTO](t, before))

	bad := s.do(t, http.MethodGet, "/api/users/alice/attendance?from=march", nil)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

// =============================================================================
// WORK RECORDS + RECONCILIATION
// =============================================================================

func TestReconciliation_Excessive(t *testing.T) {
	// GIVEN: 495 attended minutes and 560 minutes of task time
	// WHEN: Reconciling the day and listing discrepancies
	// THEN: +65, excessive, listed in the report
	s := newServer(t)
	s.lunchRules(t)
	s.shift(t, "erin", "08:00", "17:00")

	for _, wr := range []api.WorkRecordRequest{
		{ID: "wr-1", UserID: "erin", VehicleID: "VH-1001", ProcessID: "assembly", StartTime: instant("08:00"), EndTime: instant("12:00")},
		{UserID: "erin", VehicleID: "VH-1002", ProcessID: "assembly", StartTime: instant("12:00"), EndTime: instant("17:20")},
	} {
		rec := s.do(t, http.MethodPost, "/api/work-records", wr)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.NotEmpty(t, decode[api.WorkRecordDTO](t, rec).ID)
	}

	works := s.do(t, http.MethodGet, "/api/users/erin/work-records?date=2024-03-04", nil)
	require.Equal(t, http.StatusOK, works.Code)
	list := decode[[]api.WorkRecordDTO](t, works)
	require.Len(t, list, 2)
	assert.Equal(t, "wr-1", list[0].ID)
	assert.Equal(t, 240, list[0].DurationMinutes)

	day := s.do(t, http.MethodGet, "/api/users/erin/reconciliation?date=2024-03-04", nil)
	require.Equal(t, http.StatusOK, day.Code, day.Body.String())
	res := decode[api.ReconciliationDTO](t, day)
	assert.Equal(t, 495, res.AttendanceMinutes)
	assert.Equal(t, 560, res.WorkMinutes)
	assert.Equal(t, 65, res.DifferenceMinutes)
	assert.Equal(t, "1.08", res.DifferenceHours)
	assert.Equal(t, "excessive", res.Classification)

	report := s.do(t, http.MethodGet, "/api/reconciliation/discrepancies?date=2024-03-04", nil)
	require.Equal(t, http.StatusOK, report.Code)
	dto := decode[api.DiscrepancyReportDTO](t, report)
	assert.Equal(t, "2024-03-04", dto.Date)
	assert.Equal(t, 30, dto.ExcessiveMinutes)
	require.Len(t, dto.Discrepancies, 1)
	assert.Equal(t, "erin", dto.Discrepancies[0].UserID)
}

func TestReconciliation_Range(t *testing.T) {
	s := newServer(t)
	s.shift(t, "erin", "08:00", "17:00")

	rec := s.do(t, http.MethodGet, "/api/users/erin/reconciliation?from=2024-03-04&to=2024-03-06", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	days := decode[[]api.ReconciliationDTO](t, rec)
	require.Len(t, days, 3)
	assert.Equal(t, "2024-03-04", days[0].Date)
	assert.Equal(t, 540, days[0].AttendanceMinutes)
	assert.Equal(t, "low", days[0].Classification)
	assert.Equal(t, "balanced", days[1].Classification)

	tooLong := s.do(t, http.MethodGet, "/api/users/erin/reconciliation?from=2024-01-01&to=2024-06-01", nil)
	assert.Equal(t, http.StatusBadRequest, tooLong.Code)
}

func TestCreateWorkRecord_Errors(t *testing.T) {
	s := newServer(t)

	order := s.do(t, http.MethodPost, "/api/work-records", api.WorkRecordRequest{
		UserID: "erin", StartTime: instant("12:00"), EndTime: instant("12:00"),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, order.Code)
	assert.Equal(t, "invalid_order", decode[api.ErrorResponse](t, order).Code)

	missing := s.do(t, http.MethodPost, "/api/work-records", api.WorkRecordRequest{UserID: "erin"})
	assert.Equal(t, http.StatusBadRequest, missing.Code)
	assert.Equal(t, map[string]string{"start_time": "required"}, decode[api.ErrorResponse](t, missing).Fields)

	inProgress := s.do(t, http.MethodPost, "/api/work-records", api.WorkRecordRequest{UserID: "erin", StartTime: instant("06:00")})
	require.Equal(t, http.StatusCreated, inProgress.Code)
	dto := decode[api.WorkRecordDTO](t, inProgress)
	assert.True(t, dto.InProgress)
	assert.Equal(t, 60, dto.DurationMinutes) // clock is 07:00
}

// =============================================================================
// BREAK RULES + RECALCULATION
// =============================================================================

func TestBreakRules_GetAndPut(t *testing.T) {
	s := newServer(t)

	empty := s.do(t, http.MethodGet, "/api/break-rules", nil)
	require.Equal(t, http.StatusOK, empty.Code)
	initial := decode[factory.RuleSetJSON](t, empty)
	assert.Zero(t, initial.Version)
	assert.Empty(t, initial.Rules)

	put := s.do(t, http.MethodPut, "/api/break-rules", factory.StandardShopFloorJSON())
	require.Equal(t, http.StatusOK, put.Code, put.Body.String())
	saved := decode[factory.RuleSetJSON](t, put)
	assert.Equal(t, int64(1), saved.Version)
	require.Len(t, saved.Rules, 2)
	assert.Equal(t, "12:00", saved.Rules[0].Start)
	assert.Equal(t, []string{"mon", "tue", "wed", "thu", "fri"}, saved.Rules[0].AppliesOn)

	bad := s.do(t, http.MethodPut, "/api/break-rules", `{"rules": [{"start": "13:00", "end": "12:00"}]}`)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
	assert.Equal(t, "invalid_break_rule", decode[api.ErrorResponse](t, bad).Code)

	current := s.do(t, http.MethodGet, "/api/break-rules", nil)
	assert.Equal(t, int64(1), decode[factory.RuleSetJSON](t, current).Version)
}

func TestRecalculation(t *testing.T) {
	// GIVEN: A 495 minute record under the lunch-only rules
	// WHEN: An afternoon break is added and a recalculation is triggered
	// THEN: The record drops to 485 and the run is listed
	s := newServer(t)
	s.lunchRules(t)
	rec := s.shift(t, "alice", "08:00", "17:00")
	require.Equal(t, 495, rec.WorkMinutes)

	put := s.do(t, http.MethodPut, "/api/break-rules", factory.StandardShopFloorJSON())
	require.Equal(t, http.StatusOK, put.Code)

	resp := s.do(t, http.MethodPost, "/api/admin/recalculate", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	result := decode[api.RecalcResultDTO](t, resp)
	assert.Equal(t, int64(2), result.RuleSetVersion)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Updated)
	assert.False(t, result.Interrupted)

	get := s.do(t, http.MethodGet, "/api/attendance/"+rec.ID, nil)
	assert.Equal(t, 485, decode[api.AttendanceDTO](t, get).WorkMinutes)

	runs := s.do(t, http.MethodGet, "/api/admin/recalculation-runs?limit=5", nil)
	require.Equal(t, http.StatusOK, runs.Code)
	list := decode[[]api.RecalculationRunDTO](t, runs)
	require.Len(t, list, 1)
	assert.Equal(t, result.RunID, list[0].ID)
	assert.Equal(t, "completed", list[0].Status)
	assert.NotNil(t, list[0].CompletedAt)

	badLimit := s.do(t, http.MethodGet, "/api/admin/recalculation-runs?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, badLimit.Code)
}

// =============================================================================
// ROUTING
// =============================================================================

func TestHealth(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}

func TestUnknownRoute(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/api/nothing-here", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decode[api.ErrorResponse](t, rec)
	assert.Equal(t, "route_not_found", resp.Code)
	assert.True(t, strings.HasPrefix(resp.Message, "No route for GET"))
}
