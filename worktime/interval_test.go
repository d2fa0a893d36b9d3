package worktime_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/worktime-engine/worktime"
)

// =============================================================================
// INTERVAL MERGE
// =============================================================================

func TestMergeIntervals_CoalescesOverlappingAndTouching(t *testing.T) {
	// GIVEN: Unsorted intervals, two overlapping, one touching, one apart
	ivs := []worktime.Interval{
		{Start: at(monday, "15:00"), End: at(monday, "15:10")},
		{Start: at(monday, "12:30"), End: at(monday, "13:00")},
		{Start: at(monday, "12:00"), End: at(monday, "12:45")},
		{Start: at(monday, "13:00"), End: at(monday, "13:05")},
	}

	// WHEN: Merging
	merged := worktime.MergeIntervals(ivs)

	// THEN: 12:00-13:05 and 15:00-15:10 remain
	require.Len(t, merged, 2)
	assert.Equal(t, at(monday, "12:00"), merged[0].Start)
	assert.Equal(t, at(monday, "13:05"), merged[0].End)
	assert.Equal(t, at(monday, "15:00"), merged[1].Start)
	assert.Equal(t, at(monday, "15:10"), merged[1].End)
}

func TestMergeIntervals_DropsEmpty(t *testing.T) {
	ivs := []worktime.Interval{
		{Start: at(monday, "10:00"), End: at(monday, "10:00")},
		{Start: at(monday, "11:00"), End: at(monday, "10:00")},
	}
	assert.Empty(t, worktime.MergeIntervals(ivs))
	assert.Nil(t, worktime.MergeIntervals(nil))
}

// =============================================================================
// WORK MINUTES
// =============================================================================

func TestComputeWorkMinutes(t *testing.T) {
	rules := lunchRules()

	tests := []struct {
		name      string
		in, out   time.Time
		rules     worktime.RuleSet
		wantGross int
		wantBreak int
		wantWork  int
	}{
		{
			name:      "break fully inside the shift",
			in:        at(monday, "08:00"),
			out:       at(monday, "17:00"),
			rules:     rules,
			wantGross: 540, wantBreak: 45, wantWork: 495,
		},
		{
			name:      "break rule does not apply on saturday",
			in:        at(saturday, "08:00"),
			out:       at(saturday, "17:00"),
			rules:     rules,
			wantGross: 540, wantBreak: 0, wantWork: 540,
		},
		{
			name:      "break entirely outside the shift",
			in:        at(monday, "13:00"),
			out:       at(monday, "18:00"),
			rules:     rules,
			wantGross: 300, wantBreak: 0, wantWork: 300,
		},
		{
			name:      "clock-in inside the break",
			in:        at(monday, "12:30"),
			out:       at(monday, "17:00"),
			rules:     rules,
			wantGross: 270, wantBreak: 15, wantWork: 255,
		},
		{
			name:      "clock-out inside the break",
			in:        at(monday, "08:00"),
			out:       at(monday, "12:20"),
			rules:     rules,
			wantGross: 260, wantBreak: 20, wantWork: 240,
		},
		{
			name:      "shift entirely inside the break",
			in:        at(monday, "12:10"),
			out:       at(monday, "12:40"),
			rules:     rules,
			wantGross: 30, wantBreak: 30, wantWork: 0,
		},
		{
			name:      "no rules",
			in:        at(monday, "08:00"),
			out:       at(monday, "17:00"),
			rules:     worktime.RuleSet{},
			wantGross: 540, wantBreak: 0, wantWork: 540,
		},
		{
			name: "overlapping rules are subtracted once",
			in:   at(monday, "08:00"),
			out:  at(monday, "17:00"),
			rules: worktime.RuleSet{Rules: []worktime.BreakRule{
				lunchRule(),
				{ID: "late-lunch", Start: worktime.MustTimeOfDay("12:30"), End: worktime.MustTimeOfDay("13:00"), AppliesOn: worktime.AllDays},
			}},
			wantGross: 540, wantBreak: 60, wantWork: 480,
		},
		{
			name:      "seconds are truncated",
			in:        at(monday, "08:00"),
			out:       at(monday, "08:10").Add(59 * time.Second),
			rules:     rules,
			wantGross: 10, wantBreak: 0, wantWork: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp, err := worktime.ComputeWorkMinutes(tt.in, tt.out, tt.rules)
			require.NoError(t, err)
			assert.Equal(t, tt.wantGross, comp.GrossMinutes, "gross")
			assert.Equal(t, tt.wantBreak, comp.BreakMinutes, "break")
			assert.Equal(t, tt.wantWork, comp.WorkMinutes, "work")
			assert.GreaterOrEqual(t, comp.WorkMinutes, 0)
		})
	}
}

func TestComputeWorkMinutes_InvalidOrder(t *testing.T) {
	// GIVEN: clockOut equal to or before clockIn
	// WHEN: Computing
	// THEN: InvalidOrderError, never a negative or zero-length record
	for _, out := range []time.Time{at(monday, "08:00"), at(monday, "07:59")} {
		_, err := worktime.ComputeWorkMinutes(at(monday, "08:00"), out, lunchRules())

		var orderErr *worktime.InvalidOrderError
		require.ErrorAs(t, err, &orderErr)
		assert.ErrorIs(t, err, worktime.ErrInvalidOrder)
	}
}

func TestComputeWorkMinutes_OvernightUsesClockInDateOnly(t *testing.T) {
	// GIVEN: A shift from Sunday 22:00 to Monday 13:00 and a weekday lunch
	sunday := monday.AddDays(-1)

	// WHEN: Computing
	comp, err := worktime.ComputeWorkMinutes(at(sunday, "22:00"), at(monday, "13:00"), lunchRules())

	// THEN: Only Sunday's rules are resolved, so Monday's lunch is not subtracted
	require.NoError(t, err)
	assert.Equal(t, 900, comp.GrossMinutes)
	assert.Equal(t, 900, comp.WorkMinutes)
}

func TestComputeWorkMinutes_ReportsRuleSetVersion(t *testing.T) {
	rules := lunchRules()
	rules.Version = 7

	comp, err := worktime.ComputeWorkMinutes(at(monday, "08:00"), at(monday, "09:00"), rules)

	require.NoError(t, err)
	assert.Equal(t, int64(7), comp.RuleSetVersion)
}
