/*
ledger.go - Attendance lifecycle: clock-in, clock-out, corrections, auto-close

PURPOSE:
  The AttendanceLedger owns every write to attendance records. It enforces
  one record per (user, business date), computes work minutes on every
  close, and appends audit entries for every field a human or the system
  changes after the fact.

STATE MACHINE:
  NOT_STARTED --ClockIn--> OPEN --ClockOut / AutoClose / AdminEdit--> CLOSED
  CLOSED never returns to OPEN. AdminEdit can move timestamps of a closed
  record, which recomputes its minutes.

CONCURRENCY:
  Every write for a user runs under the user's lock and inside one store
  transaction. Record and audit writes commit together or not at all.
  The active rule set is read before the lock is taken.

AUDIT:
  ClockIn / ClockOut:  no entries (the punch is the original value)
  AdminEdit:           one entry per changed field, old value included
  AutoClose:           one clockOut entry with a nil old value
  AdminDelete:         record removed, earlier entries kept

SEE ALSO:
  - interval.go: Work minute computation
  - recalc.go: Batch recomputation (no audit entries)
  - audit.go: Entry type and read side
*/
package worktime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// ATTENDANCE LEDGER
// =============================================================================

type AttendanceLedger struct {
	store TxStore
	rules BreakRuleStore
	opts  options
}

func NewAttendanceLedger(store TxStore, rules BreakRuleStore, opts ...Option) *AttendanceLedger {
	return &AttendanceLedger{store: store, rules: rules, opts: buildOptions(opts)}
}

// Edit carries the fields an admin correction changes. Nil means unchanged.
type Edit struct {
	ClockIn  *time.Time
	ClockOut *time.Time
}

func (l *AttendanceLedger) now() time.Time { return normalizeInstant(l.opts.clock.Now()) }

// withUser runs fn under the user's lock inside one transaction.
func (l *AttendanceLedger) withUser(ctx context.Context, userID string, fn func(Store) error) error {
	unlock, err := l.opts.locker.Lock(ctx, UserLockKey(userID))
	if err != nil {
		return fmt.Errorf("lock user %s: %w", userID, err)
	}
	defer unlock()
	return l.store.WithTx(ctx, fn)
}

// =============================================================================
// PUNCHES
// =============================================================================

// ClockIn opens today's record for the user.
func (l *AttendanceLedger) ClockIn(ctx context.Context, userID string, at time.Time, device string) (AttendanceRecord, error) {
	if userID == "" {
		return AttendanceRecord{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if at.IsZero() {
		return AttendanceRecord{}, fmt.Errorf("%w: clock-in time is required", ErrInvalidInput)
	}
	at = normalizeInstant(at)
	date := DateOf(at)

	var created AttendanceRecord
	err := l.withUser(ctx, userID, func(s Store) error {
		open, err := s.FindOpenAttendance(ctx, userID)
		if err != nil {
			return err
		}
		if open != nil {
			return &AlreadyOpenError{UserID: userID, RecordID: open.ID, Date: open.Date}
		}

		existing, err := s.FindAttendanceByDate(ctx, userID, date)
		if err != nil {
			return err
		}
		if existing != nil {
			return &DuplicateDayError{UserID: userID, Date: date, ExistingID: existing.ID}
		}

		now := l.now()
		created = AttendanceRecord{
			ID:            l.opts.newID(),
			UserID:        userID,
			Date:          date,
			ClockIn:       at,
			ClockInDevice: device,
			Version:       1,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return s.CreateAttendance(ctx, created)
	})
	if err != nil {
		return AttendanceRecord{}, err
	}

	l.opts.logger.Debug("clocked in",
		zap.String("user_id", userID),
		zap.String("attendance_id", created.ID),
		zap.Stringer("date", date))
	return created, nil
}

// ClockOut closes the user's open record and stores its work minutes under
// the active rule set.
func (l *AttendanceLedger) ClockOut(ctx context.Context, userID string, at time.Time, device string) (AttendanceRecord, error) {
	if userID == "" {
		return AttendanceRecord{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if at.IsZero() {
		return AttendanceRecord{}, fmt.Errorf("%w: clock-out time is required", ErrInvalidInput)
	}
	at = normalizeInstant(at)

	rules, err := l.rules.ActiveRuleSet(ctx)
	if err != nil {
		return AttendanceRecord{}, fmt.Errorf("load break rules: %w", err)
	}

	var closed AttendanceRecord
	err = l.withUser(ctx, userID, func(s Store) error {
		open, err := s.FindOpenAttendance(ctx, userID)
		if err != nil {
			return err
		}
		if open == nil {
			return &NoOpenRecordError{UserID: userID}
		}

		comp, err := ComputeWorkMinutes(open.ClockIn, at, rules)
		if err != nil {
			return err
		}

		closed = open.Clone()
		closed.ClockOut = &at
		closed.ClockOutDevice = device
		closed.WorkMinutes = comp.WorkMinutes
		closed.Version = open.Version + 1
		closed.UpdatedAt = l.now()
		return s.UpdateAttendance(ctx, closed, open.Version)
	})
	if err != nil {
		return AttendanceRecord{}, err
	}

	l.opts.logger.Debug("clocked out",
		zap.String("user_id", userID),
		zap.String("attendance_id", closed.ID),
		zap.Int("work_minutes", closed.WorkMinutes),
		zap.Int64("rule_set_version", rules.Version))
	return closed, nil
}

// =============================================================================
// ADMIN CORRECTIONS
// =============================================================================

// AdminCorrect changes one field. An unchanged value is a no-op and writes no entry.
func (l *AttendanceLedger) AdminCorrect(ctx context.Context, attendanceID string, field FieldName, value time.Time, editorID string) (AttendanceRecord, error) {
	var edit Edit
	switch field {
	case FieldClockIn:
		edit.ClockIn = &value
	case FieldClockOut:
		edit.ClockOut = &value
	default:
		return AttendanceRecord{}, fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	return l.AdminEdit(ctx, attendanceID, edit, editorID)
}

// AdminEdit applies a correction touching one or both timestamps. The record
// update and one audit entry per changed field commit atomically.
//
// Moving clockIn to another business date moves the record to that date,
// which fails with DuplicateDay if the user already has a record there.
// Setting clockOut on an open record closes it.
func (l *AttendanceLedger) AdminEdit(ctx context.Context, attendanceID string, edit Edit, editorID string) (AttendanceRecord, error) {
	if attendanceID == "" || editorID == "" {
		return AttendanceRecord{}, fmt.Errorf("%w: attendance id and editor id are required", ErrInvalidInput)
	}
	if edit.ClockIn == nil && edit.ClockOut == nil {
		return AttendanceRecord{}, fmt.Errorf("%w: nothing to change", ErrInvalidInput)
	}
	if edit.ClockIn != nil {
		if edit.ClockIn.IsZero() {
			return AttendanceRecord{}, fmt.Errorf("%w: clockIn must not be empty", ErrInvalidInput)
		}
		t := normalizeInstant(*edit.ClockIn)
		edit.ClockIn = &t
	}
	if edit.ClockOut != nil {
		if edit.ClockOut.IsZero() {
			return AttendanceRecord{}, fmt.Errorf("%w: clockOut must not be empty", ErrInvalidInput)
		}
		t := normalizeInstant(*edit.ClockOut)
		edit.ClockOut = &t
	}

	current, err := l.store.GetAttendance(ctx, attendanceID)
	if err != nil {
		return AttendanceRecord{}, err
	}
	rules, err := l.rules.ActiveRuleSet(ctx)
	if err != nil {
		return AttendanceRecord{}, fmt.Errorf("load break rules: %w", err)
	}

	var (
		result  AttendanceRecord
		entries []AuditLogEntry
	)
	err = l.withUser(ctx, current.UserID, func(s Store) error {
		rec, err := s.GetAttendance(ctx, attendanceID)
		if err != nil {
			return err
		}
		now := l.now()
		next := rec.Clone()
		entries = nil

		if edit.ClockIn != nil && !edit.ClockIn.Equal(rec.ClockIn) {
			old := rec.ClockIn
			entries = append(entries, l.auditEntry(rec.ID, FieldClockIn, &old, *edit.ClockIn, editorID, now))
			next.ClockIn = *edit.ClockIn
			next.Date = DateOf(next.ClockIn)
		}
		if edit.ClockOut != nil && (rec.ClockOut == nil || !edit.ClockOut.Equal(*rec.ClockOut)) {
			var old *time.Time
			if rec.ClockOut != nil {
				t := *rec.ClockOut
				old = &t
			}
			entries = append(entries, l.auditEntry(rec.ID, FieldClockOut, old, *edit.ClockOut, editorID, now))
			t := *edit.ClockOut
			next.ClockOut = &t
			next.ClockOutDevice = DeviceAdmin
			next.AutoClosed = false
		}

		if len(entries) == 0 {
			result = rec
			return nil
		}

		if next.ClockOut != nil && !next.ClockOut.After(next.ClockIn) {
			return &InvalidOrderError{ClockIn: next.ClockIn, ClockOut: *next.ClockOut}
		}
		if next.Date != rec.Date {
			other, err := s.FindAttendanceByDate(ctx, rec.UserID, next.Date)
			if err != nil {
				return err
			}
			if other != nil && other.ID != rec.ID {
				return &DuplicateDayError{UserID: rec.UserID, Date: next.Date, ExistingID: other.ID}
			}
		}

		next.WorkMinutes = 0
		if next.ClockOut != nil {
			comp, err := ComputeWorkMinutes(next.ClockIn, *next.ClockOut, rules)
			if err != nil {
				return err
			}
			next.WorkMinutes = comp.WorkMinutes
		}
		next.Version = rec.Version + 1
		next.UpdatedAt = now

		if err := s.UpdateAttendance(ctx, next, rec.Version); err != nil {
			return err
		}
		if err := s.AppendAudit(ctx, entries...); err != nil {
			return fmt.Errorf("append audit: %w", err)
		}
		result = next
		return nil
	})
	if err != nil {
		return AttendanceRecord{}, err
	}

	if len(entries) > 0 {
		fields := make([]string, len(entries))
		for i, e := range entries {
			fields[i] = string(e.Field)
		}
		l.opts.logger.Info("attendance corrected",
			zap.String("attendance_id", attendanceID),
			zap.String("editor_id", editorID),
			zap.Strings("fields", fields),
			zap.Int("work_minutes", result.WorkMinutes))
	}
	return result, nil
}

// AdminDelete hard-deletes a record. Audit entries written for it are kept.
func (l *AttendanceLedger) AdminDelete(ctx context.Context, attendanceID, editorID string) error {
	if attendanceID == "" || editorID == "" {
		return fmt.Errorf("%w: attendance id and editor id are required", ErrInvalidInput)
	}
	current, err := l.store.GetAttendance(ctx, attendanceID)
	if err != nil {
		return err
	}
	err = l.withUser(ctx, current.UserID, func(s Store) error {
		return s.DeleteAttendance(ctx, attendanceID)
	})
	if err != nil {
		return err
	}
	l.opts.logger.Warn("attendance deleted",
		zap.String("attendance_id", attendanceID),
		zap.String("user_id", current.UserID),
		zap.Stringer("date", current.Date),
		zap.String("editor_id", editorID))
	return nil
}

func (l *AttendanceLedger) auditEntry(attendanceID string, field FieldName, old *time.Time, value time.Time, editorID string, at time.Time) AuditLogEntry {
	return AuditLogEntry{
		ID:           l.opts.newID(),
		AttendanceID: attendanceID,
		Field:        field,
		OldValue:     old,
		NewValue:     value,
		EditorID:     editorID,
		CreatedAt:    at,
	}
}

// =============================================================================
// AUTO-CLOSE
// =============================================================================

// AutoCloseResult summarizes one auto-close pass.
type AutoCloseResult struct {
	Cutoff       time.Time
	Due          int // open records whose cutoff had passed
	Closed       int
	Skipped      int // closed by someone else between listing and locking
	Errors       int
	ErrorDetails []RecordError
}

// AutoCloseRecord closes one open record at 23:59:00 of its own date. The
// record's cutoff must not be after cutoff.
func (l *AttendanceLedger) AutoCloseRecord(ctx context.Context, attendanceID string, cutoff time.Time) (AttendanceRecord, error) {
	current, err := l.store.GetAttendance(ctx, attendanceID)
	if err != nil {
		return AttendanceRecord{}, err
	}
	rules, err := l.rules.ActiveRuleSet(ctx)
	if err != nil {
		return AttendanceRecord{}, fmt.Errorf("load break rules: %w", err)
	}
	return l.autoClose(ctx, current.UserID, attendanceID, cutoff, rules)
}

func (l *AttendanceLedger) autoClose(ctx context.Context, userID, attendanceID string, cutoff time.Time, rules RuleSet) (AttendanceRecord, error) {
	var closed AttendanceRecord
	err := l.withUser(ctx, userID, func(s Store) error {
		rec, err := s.GetAttendance(ctx, attendanceID)
		if err != nil {
			return err
		}
		if !rec.IsOpen() {
			return &NoOpenRecordError{UserID: rec.UserID, AttendanceID: rec.ID}
		}
		closeAt := rec.Date.Cutoff()
		if cutoff.Before(closeAt) {
			return fmt.Errorf("%w: %s closes at %s", ErrCutoffNotReached, rec.ID, closeAt.Format(time.RFC3339))
		}

		comp, err := ComputeWorkMinutes(rec.ClockIn, closeAt, rules)
		if err != nil {
			return err
		}

		now := l.now()
		closed = rec.Clone()
		closed.ClockOut = &closeAt
		closed.ClockOutDevice = DeviceAutoClose
		closed.AutoClosed = true
		closed.WorkMinutes = comp.WorkMinutes
		closed.Version = rec.Version + 1
		closed.UpdatedAt = now

		if err := s.UpdateAttendance(ctx, closed, rec.Version); err != nil {
			return err
		}
		entry := l.auditEntry(rec.ID, FieldClockOut, nil, closeAt, SystemEditorID, now)
		if err := s.AppendAudit(ctx, entry); err != nil {
			return fmt.Errorf("append audit: %w", err)
		}
		return nil
	})
	if err != nil {
		return AttendanceRecord{}, err
	}
	return closed, nil
}

// AutoClose closes every record that is still open and whose day cutoff is
// at or before cutoff. Running it twice closes nothing the second time.
// A record whose clockIn is at or after 23:59:00 cannot be closed validly
// and is reported in ErrorDetails.
func (l *AttendanceLedger) AutoClose(ctx context.Context, cutoff time.Time) (AutoCloseResult, error) {
	result := AutoCloseResult{Cutoff: cutoff}

	rules, err := l.rules.ActiveRuleSet(ctx)
	if err != nil {
		return result, fmt.Errorf("load break rules: %w", err)
	}
	open, err := l.store.ListOpenAttendance(ctx)
	if err != nil {
		return result, fmt.Errorf("list open attendance: %w", err)
	}

	for _, rec := range open {
		if cutoff.Before(rec.Date.Cutoff()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Due++

		_, err := l.autoClose(ctx, rec.UserID, rec.ID, cutoff, rules)
		switch {
		case err == nil:
			result.Closed++
		case errors.Is(err, ErrNoOpenRecord), errors.Is(err, ErrNotFound):
			result.Skipped++
		default:
			result.Errors++
			result.ErrorDetails = append(result.ErrorDetails, newRecordError(rec.ID, err))
			l.opts.logger.Warn("auto-close failed",
				zap.String("attendance_id", rec.ID),
				zap.String("user_id", rec.UserID),
				zap.Error(err))
		}
	}

	l.opts.logger.Info("auto-close completed",
		zap.Time("cutoff", cutoff),
		zap.Int("due", result.Due),
		zap.Int("closed", result.Closed),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", result.Errors))
	return result, nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (l *AttendanceLedger) Get(ctx context.Context, attendanceID string) (AttendanceRecord, error) {
	return l.store.GetAttendance(ctx, attendanceID)
}

// OpenRecord returns the user's open record, nil if none.
func (l *AttendanceLedger) OpenRecord(ctx context.Context, userID string) (*AttendanceRecord, error) {
	return l.store.FindOpenAttendance(ctx, userID)
}

// RecordForDay returns the user's record for date, nil if none.
func (l *AttendanceLedger) RecordForDay(ctx context.Context, userID string, date Date) (*AttendanceRecord, error) {
	return l.store.FindAttendanceByDate(ctx, userID, date)
}

// History lists a user's records in [from, to].
func (l *AttendanceLedger) History(ctx context.Context, userID string, from, to Date) ([]AttendanceRecord, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end %s before start %s", ErrInvalidInput, to, from)
	}
	return l.store.ListAttendanceRange(ctx, userID, from, to)
}
