package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warp/worktime-engine/worktime"
)

func TestRenderAttendance(t *testing.T) {
	d := worktime.NewDate(2024, time.March, 4)
	out := d.At(worktime.MustTimeOfDay("23:59"))
	recs := []worktime.AttendanceRecord{
		{ID: "att-1", UserID: "carol", Date: d, ClockIn: d.At(worktime.MustTimeOfDay("20:00")), ClockOut: &out, WorkMinutes: 239, AutoClosed: true},
		{ID: "att-2", UserID: "alice", Date: d, ClockIn: d.At(worktime.MustTimeOfDay("08:00"))},
	}

	var buf bytes.Buffer
	renderAttendance(&buf, recs)

	s := buf.String()
	assert.Contains(t, s, "2024-03-04 20:00:00")
	assert.Contains(t, s, "2024-03-04 23:59:00")
	assert.Contains(t, s, "3.98")
	assert.Contains(t, s, "yes")
	assert.Contains(t, s, " - ")
}

func TestRenderRecalc_WithErrors(t *testing.T) {
	var buf bytes.Buffer
	renderRecalc(&buf, worktime.RecalcResult{
		RunID:       "run-1",
		Total:       2,
		Updated:     1,
		Errors:      1,
		Interrupted: true,
		ErrorDetails: []worktime.RecordError{
			{AttendanceID: "att-9", Kind: worktime.KindRecomputeFailure, Cause: worktime.KindConcurrentModification, Message: "version moved"},
		},
	})

	s := buf.String()
	assert.Contains(t, s, "run-1")
	assert.Contains(t, s, "interrupted")
	assert.Contains(t, s, "att-9")
	assert.Contains(t, s, "concurrent_modification")
}

func TestRenderRules(t *testing.T) {
	var buf bytes.Buffer
	renderRules(&buf, worktime.RuleSet{
		Version: 3,
		Rules: []worktime.BreakRule{{
			ID:        "lunch",
			Name:      "Lunch",
			Start:     worktime.MustTimeOfDay("12:00"),
			End:       worktime.MustTimeOfDay("12:45"),
			AppliesOn: worktime.Weekdays,
		}},
	})

	s := buf.String()
	assert.Contains(t, s, "12:45")
	assert.Contains(t, s, "mon,tue,wed,thu,fri")
	assert.Contains(t, s, "rule set version 3")
}
