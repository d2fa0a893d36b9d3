package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/warp/worktime-engine/worktime"
)

var recalculateCommand = &cli.Command{
	Name:  "recalculate",
	Usage: "recompute stored work minutes of every closed record under the active break rules",
	Action: withEnv(func(c *cli.Context, e *env) error {
		result, err := e.recalc.RecalculateAll(c.Context)
		renderRecalc(c.App.Writer, result)
		if err != nil {
			return err
		}
		if result.Errors > 0 {
			return cli.Exit(fmt.Sprintf("%d record(s) failed to recompute", result.Errors), 1)
		}
		return nil
	}),
}

var autoCloseCommand = &cli.Command{
	Name:  "auto-close",
	Usage: "close records still open past their 23:59 cutoff",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "cutoff", Usage: "cutoff instant (ISO-8601), default now"},
		&cli.StringFlag{Name: "id", Usage: "close only this attendance record"},
	},
	Action: withEnv(func(c *cli.Context, e *env) error {
		cutoff, err := resolveCutoff(c.String("cutoff"), e.clock)
		if err != nil {
			return err
		}

		if id := c.String("id"); id != "" {
			rec, err := e.ledger.AutoCloseRecord(c.Context, id, cutoff)
			if err != nil {
				return err
			}
			renderAttendance(c.App.Writer, []worktime.AttendanceRecord{rec})
			return nil
		}

		result, err := e.ledger.AutoClose(c.Context, cutoff)
		if err != nil {
			return err
		}
		renderAutoClose(c.App.Writer, result)
		return nil
	}),
}

var reconcileCommand = &cli.Command{
	Name:  "reconcile",
	Usage: "compare attendance with logged work time for one user",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Required: true},
		&cli.StringFlag{Name: "date", Usage: "YYYY-MM-DD, default today"},
		&cli.StringFlag{Name: "from", Usage: "range start YYYY-MM-DD"},
		&cli.StringFlag{Name: "to", Usage: "range end YYYY-MM-DD"},
	},
	Action: withEnv(func(c *cli.Context, e *env) error {
		user := c.String("user")
		if c.String("from") != "" || c.String("to") != "" {
			to, err := dateFlag(c, "to", e.today())
			if err != nil {
				return err
			}
			from, err := dateFlag(c, "from", to)
			if err != nil {
				return err
			}
			results, err := e.reporter.ReconcileRange(c.Context, user, from, to)
			if err != nil {
				return err
			}
			renderReconciliation(c.App.Writer, results)
			return nil
		}

		date, err := dateFlag(c, "date", e.today())
		if err != nil {
			return err
		}
		res, err := e.reporter.Reconcile(c.Context, user, date)
		if err != nil {
			return err
		}
		renderReconciliation(c.App.Writer, []worktime.ReconciliationResult{res})
		return nil
	}),
}

var discrepanciesCommand = &cli.Command{
	Name:  "discrepancies",
	Usage: "list users whose work time and attendance disagree on a day",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "date", Usage: "YYYY-MM-DD, default today"},
	},
	Action: withEnv(func(c *cli.Context, e *env) error {
		date, err := dateFlag(c, "date", e.today())
		if err != nil {
			return err
		}
		results, err := e.reporter.Discrepancies(c.Context, date)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Fprintf(c.App.Writer, "No discrepancies on %s.\n", date)
			return nil
		}
		renderReconciliation(c.App.Writer, results)
		return nil
	}),
}

var auditCommand = &cli.Command{
	Name:  "audit",
	Usage: "show audit entries",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "attendance", Aliases: []string{"a"}, Usage: "attendance record id"},
		&cli.StringFlag{Name: "editor", Usage: "editor id"},
		&cli.StringFlag{Name: "field", Usage: "clockIn or clockOut"},
		&cli.IntFlag{Name: "limit", Value: 100},
	},
	Action: withEnv(func(c *cli.Context, e *env) error {
		var field worktime.FieldName
		if v := c.String("field"); v != "" {
			f, err := worktime.ParseFieldName(v)
			if err != nil {
				return err
			}
			field = f
		}
		entries, err := e.audit.Query(c.Context, worktime.AuditFilter{
			AttendanceID: c.String("attendance"),
			EditorID:     c.String("editor"),
			Field:        field,
			Limit:        c.Int("limit"),
		})
		if err != nil {
			return err
		}
		renderAudit(c.App.Writer, entries)
		return nil
	}),
}

var runsCommand = &cli.Command{
	Name:  "runs",
	Usage: "show recent recalculation runs",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Value: 10},
	},
	Action: withEnv(func(c *cli.Context, e *env) error {
		runs, err := e.recalc.Runs(c.Context, c.Int("limit"))
		if err != nil {
			return err
		}
		renderRuns(c.App.Writer, runs)
		return nil
	}),
}

var rulesCommand = &cli.Command{
	Name:  "rules",
	Usage: "show or replace the break-rule set",
	Subcommands: []*cli.Command{
		{
			Name:  "show",
			Usage: "print the active rule set",
			Action: withEnv(func(c *cli.Context, e *env) error {
				rs, err := e.backend.ActiveRuleSet(c.Context)
				if err != nil {
					return err
				}
				renderRules(c.App.Writer, rs)
				return nil
			}),
		},
		{
			Name:      "load",
			Usage:     "replace the rule set from a JSON file (stored minutes are not recomputed)",
			ArgsUsage: "<file>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "recalculate", Usage: "run a recalculation after saving"},
			},
			Action: withEnv(func(c *cli.Context, e *env) error {
				path := c.Args().First()
				if path == "" {
					return errors.New("rule-set file is required")
				}
				rules, err := e.rules.LoadFile(path)
				if err != nil {
					return err
				}
				rs, err := e.backend.SaveRuleSet(c.Context, rules)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "Saved rule set version %d (%d rules).\n", rs.Version, len(rs.Rules))
				renderRules(c.App.Writer, rs)

				if !c.Bool("recalculate") {
					fmt.Fprintln(c.App.Writer, "Run `worktimectl recalculate` to apply it to closed records.")
					return nil
				}
				result, err := e.recalc.RecalculateAll(c.Context)
				renderRecalc(c.App.Writer, result)
				return err
			}),
		},
	},
}

// resolveCutoff parses an explicit cutoff, or falls back to the clock.
func resolveCutoff(v string, clock worktime.Clock) (time.Time, error) {
	if v == "" {
		return clock.Now(), nil
	}
	return worktime.ParseInstant(v)
}

func dateFlag(c *cli.Context, name string, def worktime.Date) (worktime.Date, error) {
	v := c.String(name)
	if v == "" {
		return def, nil
	}
	d, err := worktime.ParseDate(v)
	if err != nil {
		return worktime.Date{}, fmt.Errorf("%w: --%s: %v", worktime.ErrInvalidInput, name, err)
	}
	return d, nil
}
