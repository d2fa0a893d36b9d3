// Command worktimectl runs operator tasks against the configured store:
// recalculation after a rule change, manual auto-close, reconciliation
// reports, audit queries and break-rule administration.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/warp/worktime-engine/config"
	"github.com/warp/worktime-engine/factory"
	"github.com/warp/worktime-engine/lock"
	"github.com/warp/worktime-engine/logger"
	"github.com/warp/worktime-engine/store"
	"github.com/warp/worktime-engine/worktime"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "worktimectl: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "worktimectl",
		Usage: "operate the work-time engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "config file path",
				EnvVars: []string{"WORKTIME_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override log.level",
			},
		},
		Commands: []*cli.Command{
			recalculateCommand,
			autoCloseCommand,
			reconcileCommand,
			discrepanciesCommand,
			auditCommand,
			runsCommand,
			rulesCommand,
		},
	}
}

// env is what every command works with. close releases the store and locker.
type env struct {
	cfg      *config.Config
	log      *zap.Logger
	backend  store.Backend
	ledger   *worktime.AttendanceLedger
	recalc   *worktime.Recalculator
	reporter *worktime.Reporter
	audit    *worktime.AuditLog
	rules    *factory.BreakRuleFactory
	clock    worktime.Clock
	closers  []func()
}

func openEnv(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	// Human output goes to stdout; logs stay on stderr in console form.
	cfg.Log.Format = "console"

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, log: log, rules: factory.NewBreakRuleFactory(), clock: worktime.SystemClock{}}

	backend, closeStore, err := store.Open(c.Context, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	backend.SetClock(e.clock)
	e.backend = backend
	e.closers = append(e.closers, closeStore)

	locker, closeLocker, err := lock.FromConfig(c.Context, cfg.Redis, log)
	if err != nil {
		e.close()
		return nil, fmt.Errorf("connect locker: %w", err)
	}
	e.closers = append(e.closers, closeLocker)

	opts := []worktime.Option{worktime.WithLocker(locker), worktime.WithClock(e.clock)}
	e.ledger = worktime.NewAttendanceLedger(backend, backend, append(opts, worktime.WithLogger(log.Named("ledger")))...)
	e.recalc = worktime.NewRecalculator(backend, backend, append(opts, worktime.WithLogger(log.Named("recalc")), worktime.WithRunStore(backend))...)
	e.reporter = worktime.NewReporter(backend, backend, cfg.Reconciliation.Thresholds(), opts...)
	e.audit = worktime.NewAuditLog(backend)
	return e, nil
}

func (e *env) today() worktime.Date { return worktime.DateOf(e.clock.Now()) }

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	_ = e.log.Sync()
}

// withEnv opens the environment around a command action.
func withEnv(fn func(c *cli.Context, e *env) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := openEnv(c)
		if err != nil {
			return err
		}
		defer e.close()
		return fn(c, e)
	}
}

// exitCode is 2 for caller mistakes, 1 for everything else.
func exitCode(err error) int {
	if worktime.IsClientError(err) {
		return 2
	}
	return 1
}
