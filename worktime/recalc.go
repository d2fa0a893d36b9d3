/*
recalc.go - Batch recomputation of stored work minutes

PURPOSE:
  When break rules change, already-closed records keep the minutes they
  were closed with until someone asks for a recomputation. RecalculateAll
  is that request: every closed record is recomputed under the active rule
  set and written back only when the value differs.

GUARANTEES:
  - Idempotent: a second run with the same rules updates nothing
  - Isolated: one transaction per record, failures are collected and the
    run continues
  - Safe against live edits: each record is re-read under the user's lock
    and its version compared with the version the computation started from.
    A changed record is reported, never overwritten.
  - Interruptible: cancellation is checked between records. A restart
    re-scans from the beginning and skips records that are already current.

AUDIT EXEMPTION:
  A recomputation is not a human correction and writes no audit entries.
  The audit trail shows what people changed; rule-driven drift is recorded
  in the persisted RecalculationRun instead.

SEE ALSO:
  - interval.go: ComputeWorkMinutes
  - ledger.go: Shares the Locker
*/
package worktime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RecalcResult is the outcome of one RecalculateAll pass.
type RecalcResult struct {
	RunID          string
	RuleSetVersion int64
	Total          int
	Updated        int
	Errors         int
	ErrorDetails   []RecordError
	Interrupted    bool
}

type Recalculator struct {
	store TxStore
	rules BreakRuleStore
	opts  options
}

func NewRecalculator(store TxStore, rules BreakRuleStore, opts ...Option) *Recalculator {
	return &Recalculator{store: store, rules: rules, opts: buildOptions(opts)}
}

// RecalculateAll recomputes every closed record under the active rule set.
//
// The rule set is read once, so every record in a run is computed with the
// same version. On cancellation the partial result is returned together with
// ctx.Err() and the run is stored as interrupted.
func (r *Recalculator) RecalculateAll(ctx context.Context) (RecalcResult, error) {
	rules, err := r.rules.ActiveRuleSet(ctx)
	if err != nil {
		return RecalcResult{}, fmt.Errorf("load break rules: %w", err)
	}

	run := RecalculationRun{
		ID:             r.opts.newID(),
		RuleSetVersion: rules.Version,
		Status:         RunRunning,
		StartedAt:      normalizeInstant(r.opts.clock.Now()),
	}
	result := RecalcResult{RunID: run.ID, RuleSetVersion: rules.Version}

	ids, err := r.store.ListClosedAttendanceIDs(ctx)
	if err != nil {
		run.Status = RunFailed
		r.finish(ctx, run, result)
		return result, fmt.Errorf("list closed attendance: %w", err)
	}
	result.Total = len(ids)
	r.saveRun(ctx, run, result)

	r.opts.logger.Info("recalculation started",
		zap.String("run_id", run.ID),
		zap.Int64("rule_set_version", rules.Version),
		zap.Int("total", result.Total))

	var cancelErr error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			result.Interrupted = true
			cancelErr = err
			break
		}

		updated, err := r.recalculateOne(ctx, id, rules)
		if err != nil {
			// Cancellation while waiting on a lock is an interruption, not a record failure.
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				result.Interrupted = true
				cancelErr = ctx.Err()
				break
			}
			rerr := &RecomputeError{AttendanceID: id, Err: err}
			result.Errors++
			result.ErrorDetails = append(result.ErrorDetails, newRecordError(id, rerr))
			r.opts.logger.Warn("recompute failed",
				zap.String("run_id", run.ID),
				zap.String("attendance_id", id),
				zap.Error(err))
			continue
		}
		if updated {
			result.Updated++
		}
	}

	run.Status = RunCompleted
	if result.Interrupted {
		run.Status = RunInterrupted
	}
	r.finish(ctx, run, result)

	r.opts.logger.Info("recalculation finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("total", result.Total),
		zap.Int("updated", result.Updated),
		zap.Int("errors", result.Errors))
	return result, cancelErr
}

// recalculateOne reports whether the stored value changed. A record deleted
// since listing is skipped.
func (r *Recalculator) recalculateOne(ctx context.Context, id string, rules RuleSet) (bool, error) {
	snapshot, err := r.store.GetAttendance(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if snapshot.ClockOut == nil {
		return false, nil
	}

	comp, err := ComputeWorkMinutes(snapshot.ClockIn, *snapshot.ClockOut, rules)
	if err != nil {
		return false, err
	}
	if comp.WorkMinutes == snapshot.WorkMinutes {
		return false, nil
	}

	unlock, err := r.opts.locker.Lock(ctx, UserLockKey(snapshot.UserID))
	if err != nil {
		return false, err
	}
	defer unlock()

	err = r.store.WithTx(ctx, func(s Store) error {
		current, err := s.GetAttendance(ctx, id)
		if err != nil {
			return err
		}
		if current.Version != snapshot.Version {
			return &ConcurrentModificationError{
				AttendanceID:    id,
				ExpectedVersion: snapshot.Version,
				ActualVersion:   current.Version,
			}
		}
		next := current.Clone()
		next.WorkMinutes = comp.WorkMinutes
		next.Version = current.Version + 1
		next.UpdatedAt = normalizeInstant(r.opts.clock.Now())
		return s.UpdateAttendance(ctx, next, current.Version)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Recalculator) finish(ctx context.Context, run RecalculationRun, result RecalcResult) {
	done := normalizeInstant(r.opts.clock.Now())
	run.CompletedAt = &done
	r.saveRun(ctx, run, result)
}

// saveRun is best effort: a bookkeeping failure never fails the run.
func (r *Recalculator) saveRun(ctx context.Context, run RecalculationRun, result RecalcResult) {
	if r.opts.runs == nil {
		return
	}
	run.Total = result.Total
	run.Updated = result.Updated
	run.Errors = result.Errors
	run.ErrorDetails = result.ErrorDetails
	// The final save must land even when the run was cancelled.
	saveCtx := context.WithoutCancel(ctx)
	if err := r.opts.runs.SaveRecalculationRun(saveCtx, run); err != nil {
		r.opts.logger.Error("save recalculation run",
			zap.String("run_id", run.ID),
			zap.Error(err))
	}
}

// Runs lists persisted runs, newest first.
func (r *Recalculator) Runs(ctx context.Context, limit int) ([]RecalculationRun, error) {
	if r.opts.runs == nil {
		return nil, nil
	}
	return r.opts.runs.ListRecalculationRuns(ctx, limit)
}

// RunDuration is how long a finished run took, zero while running.
func RunDuration(run RecalculationRun) time.Duration {
	if run.CompletedAt == nil {
		return 0
	}
	return run.CompletedAt.Sub(run.StartedAt)
}
