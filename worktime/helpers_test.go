package worktime_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warp/worktime-engine/worktime"
	"github.com/warp/worktime-engine/worktime/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// monday is a weekday; saturday is in the same week.
var (
	monday   = worktime.NewDate(2024, time.March, 4)
	saturday = worktime.NewDate(2024, time.March, 9)
)

func at(d worktime.Date, hhmm string) time.Time {
	return d.At(worktime.MustTimeOfDay(hhmm))
}

func ptr(t time.Time) *time.Time { return &t }

func lunchRule() worktime.BreakRule {
	return worktime.BreakRule{
		ID:        "lunch",
		Name:      "Lunch",
		Start:     worktime.MustTimeOfDay("12:00"),
		End:       worktime.MustTimeOfDay("12:45"),
		AppliesOn: worktime.Weekdays,
	}
}

func lunchRules() worktime.RuleSet {
	return worktime.RuleSet{Version: 1, Rules: []worktime.BreakRule{lunchRule()}}
}

type fixture struct {
	store  *store.Memory
	clock  *worktime.ManualClock
	ledger *worktime.AttendanceLedger
	recalc *worktime.Recalculator
}

// newFixture returns a ledger over a memory store seeded with the weekday
// lunch rule. The clock starts on monday at 07:00.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	_, err := mem.SaveRuleSet(context.Background(), []worktime.BreakRule{lunchRule()})
	require.NoError(t, err)

	clock := worktime.NewManualClock(at(monday, "07:00"))
	locker := worktime.NewKeyedMutex()
	return &fixture{
		store:  mem,
		clock:  clock,
		ledger: worktime.NewAttendanceLedger(mem, mem, worktime.WithClock(clock), worktime.WithLocker(locker)),
		recalc: worktime.NewRecalculator(mem, mem, worktime.WithClock(clock), worktime.WithLocker(locker), worktime.WithRunStore(mem)),
	}
}

// shift clocks the user in and out on d.
func (f *fixture) shift(t *testing.T, userID string, d worktime.Date, in, out string) worktime.AttendanceRecord {
	t.Helper()
	ctx := context.Background()
	_, err := f.ledger.ClockIn(ctx, userID, at(d, in), "gate-1")
	require.NoError(t, err)
	rec, err := f.ledger.ClockOut(ctx, userID, at(d, out), "gate-1")
	require.NoError(t, err)
	return rec
}
