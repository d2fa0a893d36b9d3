/*
handlers.go - HTTP API handlers for the work-time engine

PURPOSE:
  Exposes attendance, corrections, auto-close, recalculation and
  reconciliation over REST. Handles HTTP request/response and JSON, and
  delegates everything else to the worktime package.

ENDPOINTS:
  Attendance:
    POST   /api/attendance/clock-in              Punch in
    POST   /api/attendance/clock-out             Punch out
    GET    /api/attendance/{id}                  Get one record
    PATCH  /api/attendance/{id}                  Admin edit (one or both fields)
    DELETE /api/attendance/{id}?editor_id=       Admin delete
    POST   /api/attendance/{id}/corrections      Admin correction of one field
    POST   /api/attendance/{id}/auto-close       Close one forgotten record
    GET    /api/attendance/{id}/audit            Audit trail of one record

  Users:
    GET    /api/users/{userID}/attendance        History (?from=&to=)
    GET    /api/users/{userID}/attendance/open   Current open record
    GET    /api/users/{userID}/reconciliation    One day (?date=) or range (?from=&to=)
    GET    /api/users/{userID}/work-records      Work records of a day (?date=)

  Reconciliation:
    GET    /api/reconciliation/discrepancies     Non-balanced users of a day (?date=)

  Work records:
    POST   /api/work-records                     Ingest a task-level record

  Break rules:
    GET    /api/break-rules                      Active rule set
    PUT    /api/break-rules                      Replace the rule set (new version)

  Admin:
    POST   /api/admin/auto-close                 Close every due open record
    POST   /api/admin/recalculate                Recompute all closed records
    GET    /api/admin/recalculation-runs         Recent runs (?limit=)
    GET    /api/audit                            Query audit entries

ERROR HANDLING:
  Errors are returned as {"code", "message"} with the engine's error kind
  as code:
  - 400: invalid_input, invalid_field, invalid_break_rule
  - 404: not_found
  - 409: already_open, duplicate_day, no_open_record, cutoff_not_reached,
         concurrent_modification
  - 422: invalid_order
  - 500: internal

SECURITY NOTE:
  No authentication. editor_id is trusted as sent.

SEE ALSO:
  - dto.go: Request/response data structures
  - respond.go: Validation and error mapping
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/worktime-engine/factory"
	"github.com/warp/worktime-engine/store"
	"github.com/warp/worktime-engine/worktime"
)

const (
	defaultHistoryDays = 31
	maxRangeDays       = 93
	defaultRunsLimit   = 20
	defaultAuditLimit  = 200
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Config carries what the engine components share.
type Config struct {
	Thresholds worktime.Thresholds
	Clock      worktime.Clock
	Locker     worktime.Locker // nil means an in-process keyed mutex
	Logger     *zap.Logger
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Backend     store.Backend
	Ledger      *worktime.AttendanceLedger
	Recalc      *worktime.Recalculator
	Reporter    *worktime.Reporter
	Audit       *worktime.AuditLog
	RuleFactory *factory.BreakRuleFactory
	Clock       worktime.Clock
	Logger      *zap.Logger

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the engine components over one backend.
func NewHandler(backend store.Backend, cfg Config) *Handler {
	if cfg.Clock == nil {
		cfg.Clock = worktime.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Locker == nil {
		cfg.Locker = worktime.NewKeyedMutex()
	}

	backend.SetClock(cfg.Clock)

	opts := []worktime.Option{
		worktime.WithClock(cfg.Clock),
		worktime.WithLocker(cfg.Locker),
	}
	return &Handler{
		Backend:     backend,
		Ledger:      worktime.NewAttendanceLedger(backend, backend, append(opts, worktime.WithLogger(cfg.Logger.Named("ledger")))...),
		Recalc:      worktime.NewRecalculator(backend, backend, append(opts, worktime.WithLogger(cfg.Logger.Named("recalc")), worktime.WithRunStore(backend))...),
		Reporter:    worktime.NewReporter(backend, backend, cfg.Thresholds, append(opts, worktime.WithLogger(cfg.Logger.Named("reconcile")))...),
		Audit:       worktime.NewAuditLog(backend),
		RuleFactory: factory.NewBreakRuleFactory(),
		Clock:       cfg.Clock,
		Logger:      cfg.Logger.Named("api"),
		validate:    newValidator(),
	}
}

func (h *Handler) today() worktime.Date { return worktime.DateOf(h.Clock.Now()) }

// Health reports whether the backend is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.Backend.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// PUNCH HANDLERS
// =============================================================================

func (h *Handler) punchTime(req PunchRequest) time.Time {
	if req.At == "" {
		return h.Clock.Now()
	}
	at, _ := worktime.ParseInstant(req.At) // checked by the instant tag
	return at
}

// ClockIn opens today's attendance record.
func (h *Handler) ClockIn(w http.ResponseWriter, r *http.Request) {
	var req PunchRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.Ledger.ClockIn(r.Context(), req.UserID, h.punchTime(req), req.Device)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAttendanceDTO(rec))
}

// ClockOut closes the user's open record.
func (h *Handler) ClockOut(w http.ResponseWriter, r *http.Request) {
	var req PunchRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.Ledger.ClockOut(r.Context(), req.UserID, h.punchTime(req), req.Device)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceDTO(rec))
}

// =============================================================================
// ATTENDANCE HANDLERS
// =============================================================================

func (h *Handler) GetAttendance(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceDTO(rec))
}

// EditAttendance applies an admin edit to one or both timestamps.
func (h *Handler) EditAttendance(w http.ResponseWriter, r *http.Request) {
	var req EditAttendanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ClockIn == nil && req.ClockOut == nil {
		writeError(w, http.StatusBadRequest, worktime.KindInvalidInput, "clock_in or clock_out is required", nil)
		return
	}

	var edit worktime.Edit
	if req.ClockIn != nil {
		t, _ := worktime.ParseInstant(*req.ClockIn)
		edit.ClockIn = &t
	}
	if req.ClockOut != nil {
		t, _ := worktime.ParseInstant(*req.ClockOut)
		edit.ClockOut = &t
	}

	rec, err := h.Ledger.AdminEdit(r.Context(), chi.URLParam(r, "id"), edit, req.EditorID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceDTO(rec))
}

// CorrectAttendance sets one named field.
func (h *Handler) CorrectAttendance(w http.ResponseWriter, r *http.Request) {
	var req CorrectionRequest
	if !h.decode(w, r, &req) {
		return
	}
	value, _ := worktime.ParseInstant(req.Value)

	rec, err := h.Ledger.AdminCorrect(r.Context(), chi.URLParam(r, "id"), worktime.FieldName(req.Field), value, req.EditorID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceDTO(rec))
}

// DeleteAttendance removes a record. Its audit entries are kept.
func (h *Handler) DeleteAttendance(w http.ResponseWriter, r *http.Request) {
	editorID := r.URL.Query().Get("editor_id")
	if editorID == "" {
		writeError(w, http.StatusBadRequest, worktime.KindInvalidInput, "editor_id query parameter is required", nil)
		return
	}
	if err := h.Ledger.AdminDelete(r.Context(), chi.URLParam(r, "id"), editorID); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AutoCloseAttendance closes one record at its day cutoff.
func (h *Handler) AutoCloseAttendance(w http.ResponseWriter, r *http.Request) {
	cutoff, ok := h.cutoffFromBody(w, r)
	if !ok {
		return
	}
	rec, err := h.Ledger.AutoCloseRecord(r.Context(), chi.URLParam(r, "id"), cutoff)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceDTO(rec))
}

func (h *Handler) AttendanceAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Audit.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTOs(entries))
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// UserAttendance lists a user's records, the last month by default.
func (h *Handler) UserAttendance(w http.ResponseWriter, r *http.Request) {
	to, err := dateParam(r, "to", h.today())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	from, err := dateParam(r, "from", to.AddDays(-(defaultHistoryDays - 1)))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	recs, err := h.Ledger.History(r.Context(), chi.URLParam(r, "userID"), from, to)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dtos := make([]AttendanceDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = toAttendanceDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UserOpenAttendance returns {"record": null} when nothing is open.
func (h *Handler) UserOpenAttendance(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Ledger.OpenRecord(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	resp := struct {
		Record *AttendanceDTO `json:"record"`
	}{}
	if rec != nil {
		dto := toAttendanceDTO(*rec)
		resp.Record = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// UserReconciliation reconciles one day (?date=) or a range (?from=&to=).
func (h *Handler) UserReconciliation(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	q := r.URL.Query()

	if q.Get("from") == "" && q.Get("to") == "" {
		date, err := dateParam(r, "date", h.today())
		if err != nil {
			h.writeEngineError(w, r, err)
			return
		}
		res, err := h.Reporter.Reconcile(r.Context(), userID, date)
		if err != nil {
			h.writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toReconciliationDTO(res))
		return
	}

	to, err := dateParam(r, "to", h.today())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	from, err := dateParam(r, "from", to)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	if to.Midnight().Sub(from.Midnight()) > maxRangeDays*24*time.Hour {
		writeError(w, http.StatusBadRequest, worktime.KindInvalidInput,
			fmt.Sprintf("range is limited to %d days", maxRangeDays), nil)
		return
	}

	results, err := h.Reporter.ReconcileRange(r.Context(), userID, from, to)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dtos := make([]ReconciliationDTO, len(results))
	for i, res := range results {
		dtos[i] = toReconciliationDTO(res)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) UserWorkRecords(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r, "date", h.today())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	works, err := h.Backend.ListWorkRecords(r.Context(), chi.URLParam(r, "userID"), date)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	now := h.Clock.Now()
	dtos := make([]WorkRecordDTO, len(works))
	for i, wr := range works {
		dtos[i] = toWorkRecordDTO(wr, now)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RECONCILIATION + WORK RECORD HANDLERS
// =============================================================================

// Discrepancies lists every user of a day whose work time and attendance
// disagree beyond the thresholds.
func (h *Handler) Discrepancies(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r, "date", h.today())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	results, err := h.Reporter.Discrepancies(r.Context(), date)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dtos := make([]ReconciliationDTO, len(results))
	for i, res := range results {
		dtos[i] = toReconciliationDTO(res)
	}
	th := h.Reporter.Thresholds()
	writeJSON(w, http.StatusOK, DiscrepancyReportDTO{
		Date:             date.String(),
		ExcessiveMinutes: th.ExcessiveMinutes,
		LowMinutes:       th.LowMinutes,
		Discrepancies:    dtos,
	})
}

// CreateWorkRecord stores a work record pushed by the shop-floor system.
func (h *Handler) CreateWorkRecord(w http.ResponseWriter, r *http.Request) {
	var req WorkRecordRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, _ := worktime.ParseInstant(req.StartTime)
	wr := worktime.WorkRecord{
		ID:        req.ID,
		UserID:    req.UserID,
		VehicleID: req.VehicleID,
		ProcessID: req.ProcessID,
		StartTime: start.In(worktime.BusinessLocation),
	}
	if wr.ID == "" {
		wr.ID = uuid.NewString()
	}
	if req.EndTime != "" {
		end, _ := worktime.ParseInstant(req.EndTime)
		if !end.After(start) {
			writeError(w, http.StatusUnprocessableEntity, worktime.KindInvalidOrder, "end_time must be after start_time", nil)
			return
		}
		end = end.In(worktime.BusinessLocation)
		wr.EndTime = &end
	}

	if err := h.Backend.SaveWorkRecord(r.Context(), wr); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkRecordDTO(wr, h.Clock.Now()))
}

// =============================================================================
// BREAK RULE HANDLERS
// =============================================================================

func (h *Handler) GetBreakRules(w http.ResponseWriter, r *http.Request) {
	rs, err := h.Backend.ActiveRuleSet(r.Context())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.RuleFactory.ToJSON(rs))
}

// PutBreakRules replaces the whole rule set. Stored minutes are not
// touched; call /api/admin/recalculate to apply the new rules.
func (h *Handler) PutBreakRules(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, worktime.KindInvalidInput, "Failed to read body", err)
		return
	}
	rules, err := h.RuleFactory.ParseRuleSet(body)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	rs, err := h.Backend.SaveRuleSet(r.Context(), rules)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	h.Logger.Info("break rules replaced", zap.Int64("version", rs.Version), zap.Int("rules", len(rs.Rules)))
	writeJSON(w, http.StatusOK, h.RuleFactory.ToJSON(rs))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerAutoClose closes every record whose cutoff is at or before the
// given cutoff (default now).
func (h *Handler) TriggerAutoClose(w http.ResponseWriter, r *http.Request) {
	cutoff, ok := h.cutoffFromBody(w, r)
	if !ok {
		return
	}
	result, err := h.Ledger.AutoClose(r.Context(), cutoff)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAutoCloseDTO(result))
}

// TriggerRecalculation recomputes every closed record. The run is tied to
// the request: a client disconnect interrupts it.
func (h *Handler) TriggerRecalculation(w http.ResponseWriter, r *http.Request) {
	result, err := h.Recalc.RecalculateAll(r.Context())
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecalcDTO(result))
}

func (h *Handler) ListRecalculationRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultRunsLimit)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	runs, err := h.Recalc.Runs(r.Context(), limit)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dtos := make([]RecalculationRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// QueryAudit filters the audit log by record, editor, field and time.
func (h *Handler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := worktime.AuditFilter{
		AttendanceID: q.Get("attendance_id"),
		EditorID:     q.Get("editor_id"),
		Field:        worktime.FieldName(q.Get("field")),
	}
	var err error
	if filter.Limit, err = intParam(r, "limit", defaultAuditLimit); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	for name, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := worktime.ParseInstant(v)
		if err != nil {
			h.writeEngineError(w, r, err)
			return
		}
		*dst = &t
	}

	entries, err := h.Audit.Query(r.Context(), filter)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTOs(entries))
}

// =============================================================================
// HELPERS
// =============================================================================

// cutoffFromBody reads an optional AutoCloseRequest. An empty body means now.
func (h *Handler) cutoffFromBody(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	var req AutoCloseRequest
	if r.Body != nil && r.Body != http.NoBody {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
		if err != nil {
			writeError(w, http.StatusBadRequest, worktime.KindInvalidInput, "Failed to read body", err)
			return time.Time{}, false
		}
		if len(bytes.TrimSpace(body)) > 0 {
			r.Body = io.NopCloser(bytes.NewReader(body))
			if !h.decode(w, r, &req) {
				return time.Time{}, false
			}
		}
	}
	if req.Cutoff == "" {
		return h.Clock.Now(), true
	}
	cutoff, _ := worktime.ParseInstant(req.Cutoff)
	return cutoff, true
}

func dateParam(r *http.Request, name string, def worktime.Date) (worktime.Date, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	d, err := worktime.ParseDate(v)
	if err != nil {
		return worktime.Date{}, fmt.Errorf("%w: %s: %v", worktime.ErrInvalidInput, name, err)
	}
	return d, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", worktime.ErrInvalidInput, name)
	}
	return n, nil
}
