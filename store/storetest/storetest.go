/*
Package storetest holds the behavioural contract every worktime store must meet.

PURPOSE:
  The memory, SQLite and PostgreSQL stores satisfy the same interfaces.
  Run exercises one store against those interfaces so each backend's test
  file only has to say how to build a fresh instance.

USAGE:
  func TestContract(t *testing.T) {
      storetest.Run(t, func(t *testing.T) storetest.Backend {
          return newTestStore(t)
      })
  }
*/
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/worktime-engine/worktime"
)

// Backend is the full surface a store offers to the server.
type Backend interface {
	worktime.TxStore
	worktime.BreakRuleAdmin
	worktime.WorkRecordStore
	worktime.RunStore
	Reset(ctx context.Context) error
	SetClock(c worktime.Clock)
}

var monday = worktime.NewDate(2024, time.March, 4)

func at(d worktime.Date, hhmm string) time.Time {
	return d.At(worktime.MustTimeOfDay(hhmm))
}

func ptr(t time.Time) *time.Time { return &t }

func openRecord(id, user string, d worktime.Date, in string) worktime.AttendanceRecord {
	return worktime.AttendanceRecord{
		ID:            id,
		UserID:        user,
		Date:          d,
		ClockIn:       at(d, in),
		ClockInDevice: "gate-1",
		Version:       1,
		CreatedAt:     at(d, in),
		UpdatedAt:     at(d, in),
	}
}

func closedRecord(id, user string, d worktime.Date, in, out string, minutes int) worktime.AttendanceRecord {
	rec := openRecord(id, user, d, in)
	rec.ClockOut = ptr(at(d, out))
	rec.ClockOutDevice = "gate-1"
	rec.WorkMinutes = minutes
	return rec
}

// Run executes the contract against stores produced by newStore. Each
// subtest gets its own store.
func Run(t *testing.T, newStore func(t *testing.T) Backend) {
	t.Run("AttendanceRoundTrip", func(t *testing.T) { testAttendanceRoundTrip(t, newStore(t)) })
	t.Run("OneRecordPerUserPerDay", func(t *testing.T) { testOneRecordPerDay(t, newStore(t)) })
	t.Run("UpdateIsCompareAndSwap", func(t *testing.T) { testUpdateCAS(t, newStore(t)) })
	t.Run("Lookups", func(t *testing.T) { testLookups(t, newStore(t)) })
	t.Run("DeleteKeepsAudit", func(t *testing.T) { testDeleteKeepsAudit(t, newStore(t)) })
	t.Run("TransactionRollback", func(t *testing.T) { testTxRollback(t, newStore(t)) })
	t.Run("AuditFilters", func(t *testing.T) { testAuditFilters(t, newStore(t)) })
	t.Run("RuleSetVersions", func(t *testing.T) { testRuleSets(t, newStore(t)) })
	t.Run("RuleSetStampedByClock", func(t *testing.T) { testRuleSetClock(t, newStore(t)) })
	t.Run("WorkRecords", func(t *testing.T) { testWorkRecords(t, newStore(t)) })
	t.Run("RecalculationRuns", func(t *testing.T) { testRuns(t, newStore(t)) })
	t.Run("Reset", func(t *testing.T) { testReset(t, newStore(t)) })
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func testAttendanceRoundTrip(t *testing.T, s Backend) {
	ctx := context.Background()
	rec := closedRecord("a1", "alice", monday, "08:00", "17:00", 495)
	rec.AutoClosed = true
	require.NoError(t, s.CreateAttendance(ctx, rec))

	got, err := s.GetAttendance(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, monday, got.Date)
	assert.True(t, got.ClockIn.Equal(rec.ClockIn))
	require.NotNil(t, got.ClockOut)
	assert.True(t, got.ClockOut.Equal(*rec.ClockOut))
	assert.Equal(t, 495, got.WorkMinutes)
	assert.Equal(t, "gate-1", got.ClockInDevice)
	assert.True(t, got.AutoClosed)
	assert.Equal(t, int64(1), got.Version)

	open := openRecord("a2", "bob", monday, "09:00")
	require.NoError(t, s.CreateAttendance(ctx, open))
	got, err = s.GetAttendance(ctx, "a2")
	require.NoError(t, err)
	assert.Nil(t, got.ClockOut)

	_, err = s.GetAttendance(ctx, "missing")
	assert.ErrorIs(t, err, worktime.ErrNotFound)
}

func testOneRecordPerDay(t *testing.T, s Backend) {
	ctx := context.Background()
	require.NoError(t, s.CreateAttendance(ctx, closedRecord("a1", "alice", monday, "08:00", "12:00", 240)))

	err := s.CreateAttendance(ctx, openRecord("a2", "alice", monday, "18:00"))
	assert.ErrorIs(t, err, worktime.ErrDuplicateDay)

	// Other users and other days are free.
	assert.NoError(t, s.CreateAttendance(ctx, openRecord("a3", "bob", monday, "18:00")))
	assert.NoError(t, s.CreateAttendance(ctx, openRecord("a4", "alice", monday.AddDays(1), "08:00")))
}

func testUpdateCAS(t *testing.T, s Backend) {
	ctx := context.Background()
	rec := openRecord("a1", "alice", monday, "08:00")
	require.NoError(t, s.CreateAttendance(ctx, rec))

	next := rec.Clone()
	next.ClockOut = ptr(at(monday, "17:00"))
	next.WorkMinutes = 495
	next.Version = 2
	require.NoError(t, s.UpdateAttendance(ctx, next, 1))

	// A writer still holding version 1 loses.
	stale := rec.Clone()
	stale.WorkMinutes = 1
	stale.Version = 2
	err := s.UpdateAttendance(ctx, stale, 1)
	var cm *worktime.ConcurrentModificationError
	require.ErrorAs(t, err, &cm)
	assert.Equal(t, int64(1), cm.ExpectedVersion)
	assert.Equal(t, int64(2), cm.ActualVersion)

	got, err := s.GetAttendance(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 495, got.WorkMinutes)
	assert.Equal(t, int64(2), got.Version)

	ghost := openRecord("ghost", "zed", monday, "08:00")
	ghost.Version = 2
	assert.ErrorIs(t, s.UpdateAttendance(ctx, ghost, 1), worktime.ErrNotFound)
}

func testLookups(t *testing.T, s Backend) {
	ctx := context.Background()
	tuesday := monday.AddDays(1)
	for _, rec := range []worktime.AttendanceRecord{
		closedRecord("a1", "alice", monday, "08:00", "17:00", 495),
		openRecord("a2", "alice", tuesday, "08:00"),
		closedRecord("b1", "bob", monday, "07:00", "16:00", 495),
		openRecord("c1", "carol", monday, "20:00"),
	} {
		require.NoError(t, s.CreateAttendance(ctx, rec))
	}

	open, err := s.FindOpenAttendance(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, "a2", open.ID)

	none, err := s.FindOpenAttendance(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, none)

	byDay, err := s.FindAttendanceByDate(ctx, "bob", monday)
	require.NoError(t, err)
	require.NotNil(t, byDay)
	assert.Equal(t, "b1", byDay.ID)

	missing, err := s.FindAttendanceByDate(ctx, "bob", tuesday)
	require.NoError(t, err)
	assert.Nil(t, missing)

	allOpen, err := s.ListOpenAttendance(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "a2"}, ids(allOpen))

	closed, err := s.ListClosedAttendanceIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "b1"}, closed)

	day, err := s.ListAttendanceByDate(ctx, monday)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "b1", "c1"}, ids(day))

	history, err := s.ListAttendanceRange(ctx, "alice", monday, tuesday)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, ids(history))

	onlyTuesday, err := s.ListAttendanceRange(ctx, "alice", tuesday, tuesday.AddDays(5))
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, ids(onlyTuesday))
}

func testDeleteKeepsAudit(t *testing.T, s Backend) {
	ctx := context.Background()
	require.NoError(t, s.CreateAttendance(ctx, closedRecord("a1", "alice", monday, "08:00", "17:00", 495)))
	require.NoError(t, s.AppendAudit(ctx, worktime.AuditLogEntry{
		ID: "e1", AttendanceID: "a1", Field: worktime.FieldClockOut,
		OldValue: ptr(at(monday, "17:00")), NewValue: at(monday, "18:00"),
		EditorID: "supervisor-1", CreatedAt: at(monday, "19:00"),
	}))

	require.NoError(t, s.DeleteAttendance(ctx, "a1"))
	_, err := s.GetAttendance(ctx, "a1")
	assert.ErrorIs(t, err, worktime.ErrNotFound)
	assert.ErrorIs(t, s.DeleteAttendance(ctx, "a1"), worktime.ErrNotFound)

	entries, err := s.ListAudit(ctx, worktime.AuditFilter{AttendanceID: "a1"})
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// The day can be recorded again.
	assert.NoError(t, s.CreateAttendance(ctx, openRecord("a2", "alice", monday, "19:00")))
}

func testTxRollback(t *testing.T, s Backend) {
	ctx := context.Background()
	require.NoError(t, s.CreateAttendance(ctx, openRecord("a1", "alice", monday, "08:00")))

	boom := assert.AnError
	err := s.WithTx(ctx, func(tx worktime.Store) error {
		rec, err := tx.GetAttendance(ctx, "a1")
		if err != nil {
			return err
		}
		next := rec.Clone()
		next.ClockOut = ptr(at(monday, "17:00"))
		next.Version = 2
		if err := tx.UpdateAttendance(ctx, next, 1); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, worktime.AuditLogEntry{
			ID: "e1", AttendanceID: "a1", Field: worktime.FieldClockOut,
			NewValue: at(monday, "17:00"), EditorID: "supervisor-1", CreatedAt: at(monday, "17:00"),
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetAttendance(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, got.IsOpen())
	assert.Equal(t, int64(1), got.Version)

	entries, err := s.ListAudit(ctx, worktime.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)

	// A committed transaction sticks.
	err = s.WithTx(ctx, func(tx worktime.Store) error {
		return tx.CreateAttendance(ctx, openRecord("b1", "bob", monday, "08:00"))
	})
	require.NoError(t, err)
	_, err = s.GetAttendance(ctx, "b1")
	assert.NoError(t, err)
}

// =============================================================================
// AUDIT
// =============================================================================

func testAuditFilters(t *testing.T, s Backend) {
	ctx := context.Background()
	entries := []worktime.AuditLogEntry{
		{ID: "e1", AttendanceID: "a1", Field: worktime.FieldClockOut, NewValue: at(monday, "23:59"), EditorID: worktime.SystemEditorID, CreatedAt: at(monday, "23:59")},
		{ID: "e2", AttendanceID: "a1", Field: worktime.FieldClockIn, OldValue: ptr(at(monday, "20:00")), NewValue: at(monday, "19:00"), EditorID: "supervisor-1", CreatedAt: at(monday.AddDays(1), "09:00")},
		{ID: "e3", AttendanceID: "a1", Field: worktime.FieldClockOut, OldValue: ptr(at(monday, "23:59")), NewValue: at(monday, "22:00"), EditorID: "supervisor-1", CreatedAt: at(monday.AddDays(1), "09:00")},
		{ID: "e4", AttendanceID: "b1", Field: worktime.FieldClockIn, OldValue: ptr(at(monday, "08:00")), NewValue: at(monday, "07:45"), EditorID: "supervisor-2", CreatedAt: at(monday.AddDays(1), "10:00")},
	}
	require.NoError(t, s.AppendAudit(ctx, entries[0]))
	require.NoError(t, s.AppendAudit(ctx, entries[1:]...))

	all, err := s.ListAudit(ctx, worktime.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2", "e3", "e4"}, auditIDs(all))
	assert.Nil(t, all[0].OldValue)
	require.NotNil(t, all[1].OldValue)
	assert.True(t, all[1].OldValue.Equal(at(monday, "20:00")))
	assert.True(t, all[1].NewValue.Equal(at(monday, "19:00")))

	byRecord, err := s.ListAudit(ctx, worktime.AuditFilter{AttendanceID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2", "e3"}, auditIDs(byRecord))

	byEditor, err := s.ListAudit(ctx, worktime.AuditFilter{EditorID: "supervisor-1", Field: worktime.FieldClockOut})
	require.NoError(t, err)
	assert.Equal(t, []string{"e3"}, auditIDs(byEditor))

	from, to := at(monday.AddDays(1), "00:00"), at(monday.AddDays(1), "09:30")
	window, err := s.ListAudit(ctx, worktime.AuditFilter{From: &from, To: &to})
	require.NoError(t, err)
	assert.Equal(t, []string{"e2", "e3"}, auditIDs(window))

	limited, err := s.ListAudit(ctx, worktime.AuditFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2"}, auditIDs(limited))

	// Invalid entries are rejected and nothing of the batch is written.
	bad := worktime.AuditLogEntry{ID: "e5", AttendanceID: "a1", Field: "breakStart", NewValue: at(monday, "12:00"), EditorID: "x", CreatedAt: at(monday, "12:00")}
	assert.ErrorIs(t, s.AppendAudit(ctx, bad), worktime.ErrInvalidField)
}

// =============================================================================
// RULES, WORK RECORDS, RUNS
// =============================================================================

func testRuleSetClock(t *testing.T, s Backend) {
	ctx := context.Background()
	stamp := at(monday, "06:30")
	s.SetClock(worktime.FixedClock(stamp.Add(400 * time.Millisecond)))

	rule := worktime.BreakRule{ID: "lunch", Start: worktime.MustTimeOfDay("12:00"), End: worktime.MustTimeOfDay("12:45"), AppliesOn: worktime.Weekdays}
	saved, err := s.SaveRuleSet(ctx, []worktime.BreakRule{rule})
	require.NoError(t, err)
	assert.True(t, saved.UpdatedAt.Equal(stamp), saved.UpdatedAt)

	active, err := s.ActiveRuleSet(ctx)
	require.NoError(t, err)
	assert.True(t, active.UpdatedAt.Equal(stamp), active.UpdatedAt)
}

func testRuleSets(t *testing.T, s Backend) {
	ctx := context.Background()

	empty, err := s.ActiveRuleSet(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.Version)
	assert.Empty(t, empty.Rules)

	lunch := worktime.BreakRule{ID: "lunch", Name: "Lunch", Start: worktime.MustTimeOfDay("12:00"), End: worktime.MustTimeOfDay("12:45"), AppliesOn: worktime.Weekdays}
	tea := worktime.BreakRule{ID: "tea", Start: worktime.MustTimeOfDay("15:00"), End: worktime.MustTimeOfDay("15:10"), AppliesOn: worktime.AllDays}

	v1, err := s.SaveRuleSet(ctx, []worktime.BreakRule{lunch})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1.Version)

	v2, err := s.SaveRuleSet(ctx, []worktime.BreakRule{lunch, tea})
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2.Version)

	active, err := s.ActiveRuleSet(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), active.Version)
	require.Len(t, active.Rules, 2)
	assert.Equal(t, lunch, active.Rules[0])
	assert.Equal(t, tea, active.Rules[1])

	reversed := lunch
	reversed.Start, reversed.End = lunch.End, lunch.Start
	_, err = s.SaveRuleSet(ctx, []worktime.BreakRule{reversed})
	assert.ErrorIs(t, err, worktime.ErrInvalidBreakRule)

	still, err := s.ActiveRuleSet(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), still.Version)
}

func testWorkRecords(t *testing.T, s Backend) {
	ctx := context.Background()
	records := []worktime.WorkRecord{
		{ID: "w2", UserID: "erin", VehicleID: "V-7", ProcessID: "paint", StartTime: at(monday, "12:00"), EndTime: ptr(at(monday, "17:20"))},
		{ID: "w1", UserID: "erin", VehicleID: "V-7", ProcessID: "weld", StartTime: at(monday, "08:00"), EndTime: ptr(at(monday, "12:00"))},
		{ID: "w3", UserID: "dave", VehicleID: "V-9", ProcessID: "weld", StartTime: at(monday, "09:00")},
		{ID: "w4", UserID: "erin", VehicleID: "V-8", ProcessID: "weld", StartTime: at(monday.AddDays(1), "08:00")},
	}
	for _, w := range records {
		require.NoError(t, s.SaveWorkRecord(ctx, w))
	}

	erin, err := s.ListWorkRecords(ctx, "erin", monday)
	require.NoError(t, err)
	require.Len(t, erin, 2)
	assert.Equal(t, "w1", erin[0].ID)
	assert.Equal(t, "weld", erin[0].ProcessID)
	assert.True(t, erin[1].EndTime.Equal(at(monday, "17:20")))

	dave, err := s.ListWorkRecords(ctx, "dave", monday)
	require.NoError(t, err)
	require.Len(t, dave, 1)
	assert.True(t, dave[0].InProgress())

	users, err := s.ListWorkRecordUsers(ctx, monday)
	require.NoError(t, err)
	assert.Equal(t, []string{"dave", "erin"}, users)

	// Saving the same id again replaces it.
	finished := records[2]
	finished.EndTime = ptr(at(monday, "11:00"))
	require.NoError(t, s.SaveWorkRecord(ctx, finished))
	dave, err = s.ListWorkRecords(ctx, "dave", monday)
	require.NoError(t, err)
	require.Len(t, dave, 1)
	assert.False(t, dave[0].InProgress())
}

func testRuns(t *testing.T, s Backend) {
	ctx := context.Background()
	first := worktime.RecalculationRun{ID: "r1", RuleSetVersion: 1, Status: worktime.RunRunning, Total: 3, StartedAt: at(monday, "10:00")}
	require.NoError(t, s.SaveRecalculationRun(ctx, first))

	first.Status = worktime.RunCompleted
	first.Updated = 2
	first.Errors = 1
	first.ErrorDetails = []worktime.RecordError{{AttendanceID: "a9", Kind: worktime.KindRecomputeFailure, Cause: worktime.KindConcurrentModification, Message: "changed"}}
	first.CompletedAt = ptr(at(monday, "10:01"))
	require.NoError(t, s.SaveRecalculationRun(ctx, first))

	second := worktime.RecalculationRun{ID: "r2", RuleSetVersion: 2, Status: worktime.RunInterrupted, StartedAt: at(monday, "11:00"), CompletedAt: ptr(at(monday, "11:00"))}
	require.NoError(t, s.SaveRecalculationRun(ctx, second))

	runs, err := s.ListRecalculationRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].ID)
	assert.Equal(t, worktime.RunInterrupted, runs[0].Status)
	assert.Empty(t, runs[0].ErrorDetails)

	r1 := runs[1]
	assert.Equal(t, worktime.RunCompleted, r1.Status)
	assert.Equal(t, 2, r1.Updated)
	require.Len(t, r1.ErrorDetails, 1)
	assert.Equal(t, worktime.KindConcurrentModification, r1.ErrorDetails[0].Cause)
	require.NotNil(t, r1.CompletedAt)
	assert.Equal(t, time.Minute, worktime.RunDuration(r1))

	latest, err := s.ListRecalculationRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "r2", latest[0].ID)
}

func testReset(t *testing.T, s Backend) {
	ctx := context.Background()
	require.NoError(t, s.CreateAttendance(ctx, openRecord("a1", "alice", monday, "08:00")))
	_, err := s.SaveRuleSet(ctx, []worktime.BreakRule{{ID: "x", Start: worktime.MustTimeOfDay("12:00"), End: worktime.MustTimeOfDay("13:00"), AppliesOn: worktime.AllDays}})
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx))

	_, err = s.GetAttendance(ctx, "a1")
	assert.ErrorIs(t, err, worktime.ErrNotFound)
	rs, err := s.ActiveRuleSet(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rs.Version)
}

func ids(recs []worktime.AttendanceRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func auditIDs(entries []worktime.AuditLogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
