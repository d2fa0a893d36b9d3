/*
errors.go - Centralized error types for the work-time engine

PURPOSE:
  All error kinds in one place. Every operation surfaces one of these
  synchronously; nothing is silently corrected and nothing is retried here.

ERROR CATEGORIES:
  1. Lifecycle errors - AlreadyOpen, DuplicateDay, NoOpenRecord, CutoffNotReached
  2. Validation errors - InvalidOrder, InvalidField, InvalidBreakRule, InvalidInput
  3. Lookup errors - NotFound
  4. Batch errors - RecomputeFailure (aggregated, never fatal to a run)
  5. Store errors - ConcurrentModification

USAGE:
  Callers branch on kind, never on message text:

    if errors.Is(err, worktime.ErrAlreadyOpen) {
        // "already clocked in today"
    }

    switch worktime.KindOf(err) { ... }

SEE ALSO:
  - ledger.go: Produces lifecycle and validation errors
  - recalc.go: Wraps per-record failures in RecomputeError
*/
package worktime

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAlreadyOpen is returned when clocking in while an open record exists.
	ErrAlreadyOpen = errors.New("attendance already open")

	// ErrDuplicateDay is returned when a record already exists for the business date.
	ErrDuplicateDay = errors.New("attendance already recorded for this day")

	// ErrNoOpenRecord is returned when clocking out or auto-closing with nothing open.
	ErrNoOpenRecord = errors.New("no open attendance record")

	// ErrInvalidOrder is returned when clock-out would not be after clock-in.
	ErrInvalidOrder = errors.New("clock-out must be after clock-in")

	// ErrNotFound is returned when an attendance record does not exist.
	ErrNotFound = errors.New("attendance record not found")

	// ErrRecomputeFailure marks a single record that failed during batch recalculation.
	ErrRecomputeFailure = errors.New("recompute failed")

	// ErrConcurrentModification is returned when a record changed between read and write.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrCutoffNotReached is returned when auto-closing before the record's day cutoff.
	ErrCutoffNotReached = errors.New("day cutoff not reached")

	// ErrInvalidBreakRule is returned for malformed break rules.
	ErrInvalidBreakRule = errors.New("invalid break rule")

	// ErrInvalidField is returned for an audit field name outside the closed set.
	ErrInvalidField = errors.New("invalid field")

	// ErrInvalidInput is returned for missing identifiers or zero timestamps.
	ErrInvalidInput = errors.New("invalid input")
)

// =============================================================================
// KINDS - Stable identifiers for callers
// =============================================================================

type Kind string

const (
	KindNone                   Kind = ""
	KindAlreadyOpen            Kind = "already_open"
	KindDuplicateDay           Kind = "duplicate_day"
	KindNoOpenRecord           Kind = "no_open_record"
	KindInvalidOrder           Kind = "invalid_order"
	KindNotFound               Kind = "not_found"
	KindRecomputeFailure       Kind = "recompute_failure"
	KindConcurrentModification Kind = "concurrent_modification"
	KindCutoffNotReached       Kind = "cutoff_not_reached"
	KindInvalidBreakRule       Kind = "invalid_break_rule"
	KindInvalidField           Kind = "invalid_field"
	KindInvalidInput           Kind = "invalid_input"
	KindInternal               Kind = "internal"
)

var kindTable = []struct {
	sentinel error
	kind     Kind
}{
	// RecomputeFailure first: it wraps an underlying cause.
	{ErrRecomputeFailure, KindRecomputeFailure},
	{ErrAlreadyOpen, KindAlreadyOpen},
	{ErrDuplicateDay, KindDuplicateDay},
	{ErrNoOpenRecord, KindNoOpenRecord},
	{ErrInvalidOrder, KindInvalidOrder},
	{ErrNotFound, KindNotFound},
	{ErrConcurrentModification, KindConcurrentModification},
	{ErrCutoffNotReached, KindCutoffNotReached},
	{ErrInvalidBreakRule, KindInvalidBreakRule},
	{ErrInvalidField, KindInvalidField},
	{ErrInvalidInput, KindInvalidInput},
}

// KindOf classifies err. Unknown errors are KindInternal, nil is KindNone.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kindTable {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindInternal
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type AlreadyOpenError struct {
	UserID   string
	RecordID string
	Date     Date
}

func (e *AlreadyOpenError) Error() string {
	return fmt.Sprintf("user %s already clocked in on %s (record %s)", e.UserID, e.Date, e.RecordID)
}

func (e *AlreadyOpenError) Unwrap() error { return ErrAlreadyOpen }

type DuplicateDayError struct {
	UserID     string
	Date       Date
	ExistingID string
}

func (e *DuplicateDayError) Error() string {
	return fmt.Sprintf("user %s already has attendance on %s (record %s)", e.UserID, e.Date, e.ExistingID)
}

func (e *DuplicateDayError) Unwrap() error { return ErrDuplicateDay }

type NoOpenRecordError struct {
	UserID       string
	AttendanceID string
}

func (e *NoOpenRecordError) Error() string {
	if e.AttendanceID != "" {
		return fmt.Sprintf("attendance %s is not open", e.AttendanceID)
	}
	return fmt.Sprintf("user %s has no open attendance", e.UserID)
}

func (e *NoOpenRecordError) Unwrap() error { return ErrNoOpenRecord }

type InvalidOrderError struct {
	ClockIn  time.Time
	ClockOut time.Time
}

func (e *InvalidOrderError) Error() string {
	return fmt.Sprintf("clock-out %s is not after clock-in %s",
		e.ClockOut.In(BusinessLocation).Format(time.RFC3339),
		e.ClockIn.In(BusinessLocation).Format(time.RFC3339))
}

func (e *InvalidOrderError) Unwrap() error { return ErrInvalidOrder }

type NotFoundError struct {
	AttendanceID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("attendance %s not found", e.AttendanceID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// RecomputeError wraps the cause of a single failed record in a batch run.
type RecomputeError struct {
	AttendanceID string
	Err          error
}

func (e *RecomputeError) Error() string {
	return fmt.Sprintf("recompute %s: %v", e.AttendanceID, e.Err)
}

func (e *RecomputeError) Unwrap() []error { return []error{ErrRecomputeFailure, e.Err} }

type ConcurrentModificationError struct {
	AttendanceID    string
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("attendance %s changed concurrently (expected version %d, found %d)",
		e.AttendanceID, e.ExpectedVersion, e.ActualVersion)
}

func (e *ConcurrentModificationError) Unwrap() error { return ErrConcurrentModification }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrAlreadyOpen) ||
		errors.Is(err, ErrDuplicateDay) ||
		errors.Is(err, ErrNoOpenRecord) ||
		errors.Is(err, ErrInvalidOrder) ||
		errors.Is(err, ErrCutoffNotReached) ||
		errors.Is(err, ErrInvalidBreakRule) ||
		errors.Is(err, ErrInvalidField) ||
		errors.Is(err, ErrInvalidInput)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
