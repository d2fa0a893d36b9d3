/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	attendance data. Each scenario goes through the same ledger operations
	a real client would use, so the stored records, minutes and audit
	entries are exactly what production would produce.

AVAILABLE SCENARIOS (all on the week of Monday 2024-03-04):

	standard-day:        08:00-17:00 weekday with a 12:00-12:45 lunch -> 495 min
	weekend-shift:       Same hours on a Saturday, weekday-only lunch -> 540 min
	forgotten-clock-out: Clock-in 20:00, auto-closed at 23:59 -> 239 min
	admin-correction:    clockOut corrected 17:00 -> 18:00, one audit entry
	excessive-work:      Work records sum 560 min against 495 attended -> excessive
	shop-floor-week:     Three workers over five days, mixed classifications

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Save the break-rule preset via the factory
 3. Replay punches, corrections and auto-close through the ledger
 4. Insert work records for reconciliation

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "excessive-work"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Ledger, Reporter wiring
  - factory/breakrules.go: Rule-set presets
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/warp/worktime-engine/factory"
	"github.com/warp/worktime-engine/worktime"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioWeek is the Monday every scenario is anchored on.
var ScenarioWeek = worktime.NewDate(2024, time.March, 4)

var scenarios = []ScenarioDTO{
	{
		ID:          "standard-day",
		Name:        "Standard Day",
		Description: "08:00-17:00 on a weekday with a 45 minute lunch break",
	},
	{
		ID:          "weekend-shift",
		Name:        "Weekend Shift",
		Description: "08:00-17:00 on a Saturday; the weekday lunch rule does not apply",
	},
	{
		ID:          "forgotten-clock-out",
		Name:        "Forgotten Clock-Out",
		Description: "Clock-in at 20:00, never clocked out, closed by the 23:59 auto-close",
	},
	{
		ID:          "admin-correction",
		Name:        "Admin Correction",
		Description: "A supervisor moves clock-out from 17:00 to 18:00; the change is audited",
	},
	{
		ID:          "excessive-work",
		Name:        "Excessive Work Time",
		Description: "Task records total 560 minutes against 495 attended minutes",
	},
	{
		ID:          "shop-floor-week",
		Name:        "Shop Floor Week",
		Description: "Three workers over a week with balanced, low and excessive days",
	},
}

// Scenarios lists the available demo scenarios.
func Scenarios() []ScenarioDTO {
	return append([]ScenarioDTO(nil), scenarios...)
}

// ListScenarios returns all available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Scenarios())
}

// GetCurrentScenario returns the most recently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, map[string]any{"scenario": s})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenario": nil})
}

// LoadScenario resets the store and loads a scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.LoadScenarioByID(r.Context(), req.ScenarioID); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
}

// ResetDatabase clears all data and the current scenario.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Backend.Reset(r.Context()); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	h.Logger.Warn("store reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// LoadScenarioByID resets the store and replays one scenario.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	loaders := map[string]func(context.Context) error{
		"standard-day":        h.loadStandardDay,
		"weekend-shift":       h.loadWeekendShift,
		"forgotten-clock-out": h.loadForgottenClockOut,
		"admin-correction":    h.loadAdminCorrection,
		"excessive-work":      h.loadExcessiveWork,
		"shop-floor-week":     h.loadShopFloorWeek,
	}
	load, ok := loaders[id]
	if !ok {
		return fmt.Errorf("%w: unknown scenario %q", worktime.ErrInvalidInput, id)
	}

	if err := h.Backend.Reset(ctx); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	if err := load(ctx); err != nil {
		return fmt.Errorf("load scenario %s: %w", id, err)
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
	h.Logger.Info("scenario loaded", zap.String("scenario", id))
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadStandardDay(ctx context.Context) error {
	if err := h.saveRules(ctx, factory.LunchOnlyJSON()); err != nil {
		return err
	}
	return h.shift(ctx, "alice", ScenarioWeek, "08:00", "17:00")
}

func (h *Handler) loadWeekendShift(ctx context.Context) error {
	if err := h.saveRules(ctx, factory.LunchOnlyJSON()); err != nil {
		return err
	}
	return h.shift(ctx, "bob", ScenarioWeek.AddDays(5), "08:00", "17:00")
}

func (h *Handler) loadForgottenClockOut(ctx context.Context) error {
	if err := h.saveRules(ctx, factory.LunchOnlyJSON()); err != nil {
		return err
	}
	if _, err := h.Ledger.ClockIn(ctx, "carol", at(ScenarioWeek, "20:00"), "gate-2"); err != nil {
		return err
	}
	_, err := h.Ledger.AutoClose(ctx, ScenarioWeek.Cutoff())
	return err
}

func (h *Handler) loadAdminCorrection(ctx context.Context) error {
	if err := h.saveRules(ctx, factory.LunchOnlyJSON()); err != nil {
		return err
	}
	if err := h.shift(ctx, "dave", ScenarioWeek, "08:00", "17:00"); err != nil {
		return err
	}
	rec, err := h.Ledger.RecordForDay(ctx, "dave", ScenarioWeek)
	if err != nil {
		return err
	}
	_, err = h.Ledger.AdminCorrect(ctx, rec.ID, worktime.FieldClockOut, at(ScenarioWeek, "18:00"), "supervisor-1")
	return err
}

func (h *Handler) loadExcessiveWork(ctx context.Context) error {
	if err := h.saveRules(ctx, factory.LunchOnlyJSON()); err != nil {
		return err
	}
	if err := h.shift(ctx, "erin", ScenarioWeek, "08:00", "17:00"); err != nil {
		return err
	}
	// 240 + 320 = 560 minutes of task time against 495 attended.
	if err := h.work(ctx, "erin", ScenarioWeek, "VH-1001", "assembly", "08:00", "12:00"); err != nil {
		return err
	}
	return h.work(ctx, "erin", ScenarioWeek, "VH-1002", "assembly", "12:00", "17:20")
}

func (h *Handler) loadShopFloorWeek(ctx context.Context) error {
	if err := h.saveRules(ctx, factory.StandardShopFloorJSON()); err != nil {
		return err
	}

	// Standard day is 08:00-17:00 minus 45 + 10 minutes of breaks = 485.
	type day struct {
		in, out string
		tasks   [][2]string
	}
	plan := map[string][]day{
		"frank": { // balanced every day
			{"08:00", "17:00", [][2]string{{"08:00", "12:00"}, {"12:45", "15:00"}, {"15:10", "17:00"}}},
			{"08:00", "17:00", [][2]string{{"08:00", "12:00"}, {"12:45", "15:00"}, {"15:10", "17:00"}}},
			{"08:00", "17:00", [][2]string{{"08:00", "12:00"}, {"12:45", "16:50"}}},
			{"08:00", "17:00", [][2]string{{"08:00", "12:00"}, {"12:45", "15:00"}, {"15:10", "17:00"}}},
			{"08:00", "16:00", [][2]string{{"08:00", "12:00"}, {"12:45", "15:00"}, {"15:10", "16:00"}}},
		},
		"grace": { // logs less than attended
			{"08:00", "17:00", [][2]string{{"08:30", "11:30"}, {"13:00", "16:00"}}},
			{"08:00", "17:00", [][2]string{{"08:00", "12:00"}, {"12:45", "15:00"}, {"15:10", "17:00"}}},
			{"08:00", "17:00", [][2]string{{"09:00", "12:00"}, {"13:00", "16:30"}}},
			{"08:00", "17:00", [][2]string{{"08:00", "12:00"}, {"12:45", "15:00"}, {"15:10", "17:00"}}},
			{"07:30", "17:00", [][2]string{{"08:00", "12:00"}, {"12:45", "15:00"}, {"15:10", "17:00"}}},
		},
		"heidi": { // overlapping task entries
			{"08:00", "17:00", [][2]string{{"08:00", "12:30"}, {"12:00", "17:00"}}},
			{"08:00", "17:00", [][2]string{{"08:00", "12:00"}, {"12:45", "15:00"}, {"15:10", "17:00"}}},
			{"08:00", "18:00", [][2]string{{"08:00", "12:00"}, {"12:00", "18:00"}}},
			{"08:00", "17:00", [][2]string{{"08:00", "12:00"}, {"12:45", "15:00"}, {"15:10", "17:00"}}},
			{"08:00", "17:00", [][2]string{{"08:00", "12:00"}, {"12:45", "15:00"}, {"15:10", "17:00"}}},
		},
	}

	for _, user := range []string{"frank", "grace", "heidi"} {
		for i, d := range plan[user] {
			date := ScenarioWeek.AddDays(i)
			if err := h.shift(ctx, user, date, d.in, d.out); err != nil {
				return err
			}
			for j, task := range d.tasks {
				vehicle := fmt.Sprintf("VH-%d%02d%d", i+1, j, len(user))
				if err := h.work(ctx, user, date, vehicle, "line-"+user[:1], task[0], task[1]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func at(d worktime.Date, hhmm string) time.Time {
	return d.At(worktime.MustTimeOfDay(hhmm))
}

func (h *Handler) saveRules(ctx context.Context, doc string) error {
	rules, err := h.RuleFactory.ParseRuleSet([]byte(doc))
	if err != nil {
		return err
	}
	_, err = h.Backend.SaveRuleSet(ctx, rules)
	return err
}

func (h *Handler) shift(ctx context.Context, userID string, d worktime.Date, in, out string) error {
	if _, err := h.Ledger.ClockIn(ctx, userID, at(d, in), "gate-1"); err != nil {
		return err
	}
	_, err := h.Ledger.ClockOut(ctx, userID, at(d, out), "gate-1")
	return err
}

func (h *Handler) work(ctx context.Context, userID string, d worktime.Date, vehicle, process, start, end string) error {
	endAt := at(d, end)
	return h.Backend.SaveWorkRecord(ctx, worktime.WorkRecord{
		ID:        fmt.Sprintf("wr-%s-%s-%s", userID, d, start),
		UserID:    userID,
		VehicleID: vehicle,
		ProcessID: process,
		StartTime: at(d, start),
		EndTime:   &endAt,
	})
}
