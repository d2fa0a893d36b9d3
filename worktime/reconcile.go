/*
reconcile.go - Attendance minutes vs. logged task minutes

PURPOSE:
  For one (user, date) compare the attendance record's work minutes with
  the sum of the day's work-record durations and classify the gap.

CLASSIFICATION (difference = work - attendance):
  excessive: difference > ExcessiveMinutes   (more task time than attendance)
  low:       -difference > LowMinutes         (attendance not covered by tasks)
  balanced:  otherwise

  With the defaults (30, 0) +31 is excessive, +30 balanced, -1 low, 0 balanced.

INPUTS:
  - Attendance: 0 minutes when there is no record or it is still open
  - Work records: in-progress records count the time elapsed up to Clock.Now()

SEE ALSO:
  - types.go: WorkRecord.DurationMinutes
*/
package worktime

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// THRESHOLDS & CLASSIFICATION
// =============================================================================

type Classification string

const (
	Excessive Classification = "excessive"
	Low       Classification = "low"
	Balanced  Classification = "balanced"
)

type Thresholds struct {
	ExcessiveMinutes int
	LowMinutes       int
}

func DefaultThresholds() Thresholds {
	return Thresholds{ExcessiveMinutes: 30, LowMinutes: 0}
}

func (t Thresholds) Validate() error {
	if t.ExcessiveMinutes < 0 || t.LowMinutes < 0 {
		return fmt.Errorf("%w: thresholds must be non-negative", ErrInvalidInput)
	}
	return nil
}

// Classify compares attendance minutes with work-record minutes.
func (t Thresholds) Classify(attendanceMinutes, workMinutes int) Classification {
	diff := workMinutes - attendanceMinutes
	switch {
	case diff > t.ExcessiveMinutes:
		return Excessive
	case -diff > t.LowMinutes:
		return Low
	default:
		return Balanced
	}
}

// =============================================================================
// RESULT
// =============================================================================

type ReconciliationResult struct {
	UserID            string
	Date              Date
	AttendanceID      string
	AttendanceOpen    bool
	AttendanceMinutes int
	WorkMinutes       int
	DifferenceMinutes int
	WorkRecordCount   int
	Classification    Classification
}

// MinutesToHours renders whole minutes as hours with two decimals.
func MinutesToHours(minutes int) decimal.Decimal {
	return decimal.NewFromInt(int64(minutes)).Div(decimal.NewFromInt(60)).Round(2)
}

func (r ReconciliationResult) AttendanceHours() decimal.Decimal {
	return MinutesToHours(r.AttendanceMinutes)
}

func (r ReconciliationResult) WorkHours() decimal.Decimal { return MinutesToHours(r.WorkMinutes) }

func (r ReconciliationResult) DifferenceHours() decimal.Decimal {
	return MinutesToHours(r.DifferenceMinutes)
}

// =============================================================================
// REPORTER
// =============================================================================

type Reporter struct {
	attendance AttendanceStore
	work       WorkRecordSource
	thresholds Thresholds
	opts       options
}

func NewReporter(attendance AttendanceStore, work WorkRecordSource, thresholds Thresholds, opts ...Option) *Reporter {
	return &Reporter{attendance: attendance, work: work, thresholds: thresholds, opts: buildOptions(opts)}
}

func (r *Reporter) Thresholds() Thresholds { return r.thresholds }

func (r *Reporter) Reconcile(ctx context.Context, userID string, date Date) (ReconciliationResult, error) {
	if userID == "" {
		return ReconciliationResult{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	rec, err := r.attendance.FindAttendanceByDate(ctx, userID, date)
	if err != nil {
		return ReconciliationResult{}, fmt.Errorf("load attendance: %w", err)
	}
	works, err := r.work.ListWorkRecords(ctx, userID, date)
	if err != nil {
		return ReconciliationResult{}, fmt.Errorf("load work records: %w", err)
	}
	return r.build(userID, date, rec, works), nil
}

func (r *Reporter) build(userID string, date Date, rec *AttendanceRecord, works []WorkRecord) ReconciliationResult {
	res := ReconciliationResult{UserID: userID, Date: date, WorkRecordCount: len(works)}
	if rec != nil {
		res.AttendanceID = rec.ID
		res.AttendanceOpen = rec.IsOpen()
		res.AttendanceMinutes = rec.WorkMinutes
	}
	now := r.opts.clock.Now()
	for _, w := range works {
		res.WorkMinutes += w.DurationMinutes(now)
	}
	res.DifferenceMinutes = res.WorkMinutes - res.AttendanceMinutes
	res.Classification = r.thresholds.Classify(res.AttendanceMinutes, res.WorkMinutes)
	return res
}

// ReconcileRange reconciles every date in [from, to], one result per day.
func (r *Reporter) ReconcileRange(ctx context.Context, userID string, from, to Date) ([]ReconciliationResult, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end %s before start %s", ErrInvalidInput, to, from)
	}
	var out []ReconciliationResult
	for d := from; !d.After(to); d = d.AddDays(1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := r.Reconcile(ctx, userID, d)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// Discrepancies reconciles every user with attendance or work records on
// date and returns the ones that are not balanced, ordered by user.
func (r *Reporter) Discrepancies(ctx context.Context, date Date) ([]ReconciliationResult, error) {
	records, err := r.attendance.ListAttendanceByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	workUsers, err := r.work.ListWorkRecordUsers(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list work users: %w", err)
	}

	byUser := make(map[string]*AttendanceRecord, len(records))
	for i := range records {
		byUser[records[i].UserID] = &records[i]
	}
	users := make(map[string]struct{}, len(records)+len(workUsers))
	for u := range byUser {
		users[u] = struct{}{}
	}
	for _, u := range workUsers {
		users[u] = struct{}{}
	}
	ordered := make([]string, 0, len(users))
	for u := range users {
		ordered = append(ordered, u)
	}
	sort.Strings(ordered)

	var out []ReconciliationResult
	for _, u := range ordered {
		works, err := r.work.ListWorkRecords(ctx, u, date)
		if err != nil {
			return nil, fmt.Errorf("load work records for %s: %w", u, err)
		}
		res := r.build(u, date, byUser[u], works)
		if res.Classification != Balanced {
			out = append(out, res)
		}
	}
	return out, nil
}
