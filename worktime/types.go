/*
Package worktime provides the work-time accounting and reconciliation engine.

PURPOSE:
  Turns raw clock-in/clock-out punches into net worked minutes, keeps an
  append-only audit trail of manual corrections, recomputes historical
  figures when break rules change, and reconciles attendance against
  independently logged task time.

KEY CONCEPTS IN THIS FILE (types.go):
  - AttendanceRecord: One record per (user, business date)
  - AuditLogEntry: One immutable entry per changed field per edit
  - WorkRecord: Task-level time logged by an external collaborator
  - RecalculationRun: Bookkeeping for one batch recomputation

DESIGN PRINCIPLES:
  1. Explicit inputs: break rules are passed as a versioned RuleSet, never read from globals
  2. One clock: every "now" comes from the injected Clock
  3. Whole minutes: durations truncate seconds, so recomputation is reproducible
  4. Auditability: every human edit appends entries, nothing is rewritten

SEE ALSO:
  - interval.go: Break subtraction
  - ledger.go: Attendance lifecycle
  - recalc.go: Batch recomputation
  - reconcile.go: Attendance vs. task time
*/
package worktime

import (
	"errors"
	"time"
)

// =============================================================================
// ATTENDANCE RECORD
// =============================================================================

// Status is derived from the record's timestamps.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// AttendanceRecord is the attendance of one user on one business date.
//
// INVARIANTS:
//   - Date == DateOf(ClockIn)
//   - ClockOut != nil implies ClockOut.After(ClockIn)
//   - WorkMinutes == 0 while open
type AttendanceRecord struct {
	ID             string
	UserID         string
	Date           Date
	ClockIn        time.Time
	ClockOut       *time.Time
	WorkMinutes    int
	ClockInDevice  string
	ClockOutDevice string
	AutoClosed     bool

	// Version increments on every persisted change (optimistic concurrency).
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r AttendanceRecord) Status() Status {
	if r.ClockOut == nil {
		return StatusOpen
	}
	return StatusClosed
}

func (r AttendanceRecord) IsOpen() bool { return r.ClockOut == nil }

// GrossMinutes is the raw clocked span, 0 while open.
func (r AttendanceRecord) GrossMinutes() int {
	if r.ClockOut == nil {
		return 0
	}
	return wholeMinutes(r.ClockOut.Sub(r.ClockIn))
}

// Clone returns a copy that shares no pointers with r.
func (r AttendanceRecord) Clone() AttendanceRecord {
	out := r
	if r.ClockOut != nil {
		t := *r.ClockOut
		out.ClockOut = &t
	}
	return out
}

// Devices tagged on system-driven transitions.
const (
	DeviceAutoClose = "auto-close"
	DeviceAdmin     = "admin"
)

// SystemEditorID is the editor recorded on auto-close audit entries.
const SystemEditorID = "system:auto-close"

// =============================================================================
// WORK RECORD - Owned by an external collaborator, read-only here
// =============================================================================

type WorkRecord struct {
	ID        string
	UserID    string
	VehicleID string
	ProcessID string
	StartTime time.Time
	EndTime   *time.Time // nil = in progress
}

// DurationMinutes is end - start in whole minutes. No break subtraction:
// workers do not log breaks as tasks. An in-progress record counts the time
// elapsed up to now.
func (w WorkRecord) DurationMinutes(now time.Time) int {
	end := now
	if w.EndTime != nil {
		end = *w.EndTime
	}
	if !end.After(w.StartTime) {
		return 0
	}
	return wholeMinutes(end.Sub(w.StartTime))
}

func (w WorkRecord) InProgress() bool { return w.EndTime == nil }

// =============================================================================
// RECALCULATION RUN - Persisted summary of one batch pass
// =============================================================================

type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunInterrupted RunStatus = "interrupted"
	RunFailed      RunStatus = "failed"
)

type RecalculationRun struct {
	ID             string
	RuleSetVersion int64
	Status         RunStatus
	Total          int
	Updated        int
	Errors         int
	ErrorDetails   []RecordError
	StartedAt      time.Time
	CompletedAt    *time.Time
}

// RecordError is one per-record failure collected by a batch operation.
type RecordError struct {
	AttendanceID string
	Kind         Kind
	Cause        Kind // underlying kind when Kind is KindRecomputeFailure
	Message      string
}

func newRecordError(id string, err error) RecordError {
	re := RecordError{AttendanceID: id, Kind: KindOf(err), Message: err.Error()}
	var rerr *RecomputeError
	if errors.As(err, &rerr) {
		re.Cause = KindOf(rerr.Err)
	}
	return re
}
