package worktime_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/worktime-engine/worktime"
)

func TestParseFieldName(t *testing.T) {
	f, err := worktime.ParseFieldName("clockIn")
	require.NoError(t, err)
	assert.Equal(t, worktime.FieldClockIn, f)

	_, err = worktime.ParseFieldName("clock_in")
	assert.ErrorIs(t, err, worktime.ErrInvalidField)
}

func TestAuditLog_Query(t *testing.T) {
	// GIVEN: Corrections by two editors on two records
	f := newFixture(t)
	ctx := context.Background()
	a := f.shift(t, "alice", monday, "08:00", "17:00")
	b := f.shift(t, "bob", monday, "08:00", "17:00")

	_, err := f.ledger.AdminCorrect(ctx, a.ID, worktime.FieldClockOut, at(monday, "18:00"), "supervisor-1")
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)
	_, err = f.ledger.AdminCorrect(ctx, b.ID, worktime.FieldClockIn, at(monday, "07:30"), "supervisor-2")
	require.NoError(t, err)
	_, err = f.ledger.AdminCorrect(ctx, a.ID, worktime.FieldClockIn, at(monday, "08:15"), "supervisor-2")
	require.NoError(t, err)

	log := worktime.NewAuditLog(f.store)

	// WHEN / THEN: Filtering by record, editor, field and limit
	history, err := log.History(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, worktime.FieldClockOut, history[0].Field)

	byEditor, err := log.Query(ctx, worktime.AuditFilter{EditorID: "supervisor-2"})
	require.NoError(t, err)
	assert.Len(t, byEditor, 2)

	clockIns, err := log.Query(ctx, worktime.AuditFilter{Field: worktime.FieldClockIn, Limit: 1})
	require.NoError(t, err)
	require.Len(t, clockIns, 1)
	assert.Equal(t, b.ID, clockIns[0].AttendanceID)

	since := at(monday, "07:05")
	recent, err := log.Query(ctx, worktime.AuditFilter{From: &since})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	_, err = log.Query(ctx, worktime.AuditFilter{Field: "breakStart"})
	assert.ErrorIs(t, err, worktime.ErrInvalidField)

	_, err = log.History(ctx, "")
	assert.ErrorIs(t, err, worktime.ErrInvalidInput)
}
