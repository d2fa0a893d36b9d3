/*
scheduler.go - Daily auto-close scheduler

PURPOSE:
  Closes attendance records that workers forgot to clock out of. A cron
  job fires at the business-day cutoff (23:59 in the business zone by
  default) and runs AutoClose with the current time as cutoff.

DESIGN:
  - robfig/cron in the business location, so "59 23 * * *" means 23:59 +09:00
  - SkipIfStillRunning: a slow pass is never overlapped by the next one
  - Optional catch-up on start: records left open while the server was
    down are closed immediately. AutoClose only closes records whose own
    cutoff has passed, so the catch-up never touches today's shifts.
  - Idempotent: a second pass finds nothing left to close

USAGE:
  s, err := NewAutoCloseScheduler(ledger, clock, SchedulerConfig{...}, logger)
  s.Start()
  // ... later
  s.Stop()

SEE ALSO:
  - handlers.go: TriggerAutoClose endpoint (manual auto-close)
  - worktime/ledger.go: AutoClose
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/warp/worktime-engine/worktime"
)

// runTimeout bounds one auto-close pass.
const runTimeout = 10 * time.Minute

type SchedulerConfig struct {
	Spec       string // standard 5-field cron expression
	RunOnStart bool
}

// AutoCloseScheduler runs the ledger's AutoClose on a cron schedule.
type AutoCloseScheduler struct {
	ledger *worktime.AttendanceLedger
	clock  worktime.Clock
	cfg    SchedulerConfig
	logger *zap.Logger

	cron    *cron.Cron
	entryID cron.EntryID

	mu   sync.Mutex
	last *worktime.AutoCloseResult
}

// NewAutoCloseScheduler validates the cron spec and registers the job.
func NewAutoCloseScheduler(ledger *worktime.AttendanceLedger, clock worktime.Clock, cfg SchedulerConfig, logger *zap.Logger) (*AutoCloseScheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AutoCloseScheduler{
		ledger: ledger,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}

	cl := cronLogger{logger.Sugar()}
	s.cron = cron.New(
		cron.WithLocation(worktime.BusinessLocation),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	id, err := s.cron.AddFunc(cfg.Spec, func() {
		s.RunNow(context.Background())
	})
	if err != nil {
		return nil, fmt.Errorf("invalid auto-close schedule %q: %w", cfg.Spec, err)
	}
	s.entryID = id
	return s, nil
}

// Start begins the scheduler, running a catch-up pass first if configured.
func (s *AutoCloseScheduler) Start() {
	if s.cfg.RunOnStart {
		go s.RunNow(context.Background())
	}
	s.cron.Start()
	s.logger.Info("auto-close scheduler started",
		zap.String("schedule", s.cfg.Spec),
		zap.Time("next_run", s.NextRun()))
}

// Stop stops the scheduler and waits for a running pass to finish.
func (s *AutoCloseScheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("auto-close scheduler stopped")
}

// NextRun is the next scheduled fire time, zero before Start.
func (s *AutoCloseScheduler) NextRun() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// RunNow runs one auto-close pass with the current time as cutoff.
func (s *AutoCloseScheduler) RunNow(ctx context.Context) (worktime.AutoCloseResult, error) {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	result, err := s.ledger.AutoClose(ctx, s.clock.Now())
	if err != nil {
		s.logger.Error("auto-close pass failed", zap.Error(err))
		return result, err
	}

	s.mu.Lock()
	s.last = &result
	s.mu.Unlock()
	return result, nil
}

// LastResult returns the outcome of the last successful pass, nil if none.
func (s *AutoCloseScheduler) LastResult() *worktime.AutoCloseResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
