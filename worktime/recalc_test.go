package worktime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/worktime-engine/worktime"
	"github.com/warp/worktime-engine/worktime/store"
)

// afternoonBreak adds a 15-minute break every day at 15:00.
func afternoonBreak() worktime.BreakRule {
	return worktime.BreakRule{
		ID:        "afternoon",
		Name:      "Afternoon break",
		Start:     worktime.MustTimeOfDay("15:00"),
		End:       worktime.MustTimeOfDay("15:15"),
		AppliesOn: worktime.AllDays,
	}
}

// flakyStore fails or stales reads of selected records.
type flakyStore struct {
	*store.Memory
	failGet  map[string]error
	staleGet map[string]bool
}

func (s *flakyStore) GetAttendance(ctx context.Context, id string) (worktime.AttendanceRecord, error) {
	if err, ok := s.failGet[id]; ok {
		return worktime.AttendanceRecord{}, err
	}
	rec, err := s.Memory.GetAttendance(ctx, id)
	if err == nil && s.staleGet[id] {
		rec.Version--
	}
	return rec, err
}

// =============================================================================
// RECALCULATION
// =============================================================================

func TestRecalculateAll_AppliesNewRules(t *testing.T) {
	// GIVEN: Two closed records at 495 and one open record
	// WHEN: A 15-minute afternoon break is added and a run is requested
	// THEN: Both closed records drop to 480, the open one is untouched
	f := newFixture(t)
	ctx := context.Background()
	a := f.shift(t, "alice", monday, "08:00", "17:00")
	b := f.shift(t, "bob", monday, "08:00", "17:00")
	open, err := f.ledger.ClockIn(ctx, "carol", at(monday, "08:00"), "")
	require.NoError(t, err)

	_, err = f.store.SaveRuleSet(ctx, []worktime.BreakRule{lunchRule(), afternoonBreak()})
	require.NoError(t, err)

	// Stored minutes stay until someone asks.
	stale, err := f.ledger.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 495, stale.WorkMinutes)

	result, err := f.recalc.RecalculateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.RuleSetVersion)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Updated)
	assert.Zero(t, result.Errors)
	assert.False(t, result.Interrupted)

	for _, id := range []string{a.ID, b.ID} {
		rec, err := f.ledger.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 480, rec.WorkMinutes)
		assert.Equal(t, a.Version+1, rec.Version)
	}
	stillOpen, err := f.ledger.Get(ctx, open.ID)
	require.NoError(t, err)
	assert.True(t, stillOpen.IsOpen())
	assert.Equal(t, 0, stillOpen.WorkMinutes)
}

func TestRecalculateAll_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.shift(t, "alice", monday, "08:00", "17:00")
	_, err := f.store.SaveRuleSet(ctx, []worktime.BreakRule{lunchRule(), afternoonBreak()})
	require.NoError(t, err)

	first, err := f.recalc.RecalculateAll(ctx)
	require.NoError(t, err)
	second, err := f.recalc.RecalculateAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Updated)
	assert.Equal(t, 1, second.Total)
	assert.Zero(t, second.Updated)
}

func TestRecalculateAll_WritesNoAudit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.shift(t, "alice", monday, "08:00", "17:00")
	_, err := f.store.SaveRuleSet(ctx, []worktime.BreakRule{afternoonBreak()})
	require.NoError(t, err)

	_, err = f.recalc.RecalculateAll(ctx)
	require.NoError(t, err)

	entries, err := f.store.ListAudit(ctx, worktime.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecalculateAll_FailuresAreIsolated(t *testing.T) {
	// GIVEN: Three closed records, one of which cannot be read
	// WHEN: Recalculating
	// THEN: The other two are updated and the failure is reported
	f := newFixture(t)
	ctx := context.Background()
	a := f.shift(t, "alice", monday, "08:00", "17:00")
	bad := f.shift(t, "bob", monday, "08:00", "17:00")
	c := f.shift(t, "carol", monday, "08:00", "17:00")
	_, err := f.store.SaveRuleSet(ctx, []worktime.BreakRule{lunchRule(), afternoonBreak()})
	require.NoError(t, err)

	flaky := &flakyStore{Memory: f.store, failGet: map[string]error{bad.ID: errors.New("disk on fire")}}
	recalc := worktime.NewRecalculator(flaky, f.store, worktime.WithClock(f.clock), worktime.WithRunStore(f.store))

	result, err := recalc.RecalculateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 1, result.Errors)
	require.Len(t, result.ErrorDetails, 1)
	assert.Equal(t, bad.ID, result.ErrorDetails[0].AttendanceID)
	assert.Equal(t, worktime.KindRecomputeFailure, result.ErrorDetails[0].Kind)
	assert.Contains(t, result.ErrorDetails[0].Message, "disk on fire")

	for _, id := range []string{a.ID, c.ID} {
		rec, err := f.ledger.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 480, rec.WorkMinutes)
	}
	untouched, err := f.ledger.Get(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, 495, untouched.WorkMinutes)
}

func TestRecalculateAll_ConcurrentEditIsNotOverwritten(t *testing.T) {
	// GIVEN: A record whose version moves between the read and the write
	// WHEN: Recalculating
	// THEN: ConcurrentModification is reported and the stored value is kept
	f := newFixture(t)
	ctx := context.Background()
	rec := f.shift(t, "alice", monday, "08:00", "17:00")
	_, err := f.store.SaveRuleSet(ctx, []worktime.BreakRule{lunchRule(), afternoonBreak()})
	require.NoError(t, err)

	flaky := &flakyStore{Memory: f.store, staleGet: map[string]bool{rec.ID: true}}
	recalc := worktime.NewRecalculator(flaky, f.store, worktime.WithClock(f.clock))

	result, err := recalc.RecalculateAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Updated)
	require.Len(t, result.ErrorDetails, 1)
	assert.Equal(t, worktime.KindRecomputeFailure, result.ErrorDetails[0].Kind)
	assert.Equal(t, worktime.KindConcurrentModification, result.ErrorDetails[0].Cause)

	stored, err := f.ledger.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 495, stored.WorkMinutes)
	assert.Equal(t, rec.Version, stored.Version)
}

func TestRecalculateAll_CancelledRunIsInterrupted(t *testing.T) {
	f := newFixture(t)
	f.shift(t, "alice", monday, "08:00", "17:00")
	_, err := f.store.SaveRuleSet(context.Background(), []worktime.BreakRule{afternoonBreak()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := f.recalc.RecalculateAll(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, result.Interrupted)
	assert.Zero(t, result.Updated)

	runs, err := f.recalc.Runs(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, worktime.RunInterrupted, runs[0].Status)
	assert.NotNil(t, runs[0].CompletedAt)
}

func TestRecalculateAll_PersistsRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.shift(t, "alice", monday, "08:00", "17:00")

	first, err := f.recalc.RecalculateAll(ctx)
	require.NoError(t, err)
	_, err = f.store.SaveRuleSet(ctx, []worktime.BreakRule{afternoonBreak()})
	require.NoError(t, err)
	second, err := f.recalc.RecalculateAll(ctx)
	require.NoError(t, err)

	runs, err := f.recalc.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.RunID, runs[0].ID)
	assert.Equal(t, first.RunID, runs[1].ID)
	assert.Equal(t, worktime.RunCompleted, runs[0].Status)
	assert.Equal(t, int64(2), runs[0].RuleSetVersion)
	assert.Equal(t, 1, runs[0].Updated)
	assert.Equal(t, 0, runs[1].Updated)
}

func TestRecalculator_RunsWithoutStore(t *testing.T) {
	mem := store.NewMemory()
	recalc := worktime.NewRecalculator(mem, mem)

	runs, err := recalc.Runs(context.Background(), 10)

	require.NoError(t, err)
	assert.Empty(t, runs)
}
