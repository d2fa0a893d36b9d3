package main

import (
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/warp/worktime-engine/worktime"
)

func newTable(w io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

func clock(t time.Time) string {
	return t.In(worktime.BusinessLocation).Format("2006-01-02 15:04:05")
}

func clockPtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return clock(*t)
}

func renderAttendance(w io.Writer, recs []worktime.AttendanceRecord) {
	t := newTable(w, table.Row{"ID", "User", "Date", "Clock in", "Clock out", "Minutes", "Hours", "Auto"})
	for _, r := range recs {
		auto := ""
		if r.AutoClosed {
			auto = "yes"
		}
		t.AppendRow(table.Row{
			r.ID, r.UserID, r.Date, clock(r.ClockIn), clockPtr(r.ClockOut),
			r.WorkMinutes, worktime.MinutesToHours(r.WorkMinutes).StringFixed(2), auto,
		})
	}
	t.Render()
}

func renderAutoClose(w io.Writer, r worktime.AutoCloseResult) {
	t := newTable(w, table.Row{"Cutoff", "Due", "Closed", "Skipped", "Errors"})
	t.AppendRow(table.Row{clock(r.Cutoff), r.Due, r.Closed, r.Skipped, r.Errors})
	t.Render()
	renderRecordErrors(w, r.ErrorDetails)
}

func renderRecalc(w io.Writer, r worktime.RecalcResult) {
	status := "completed"
	if r.Interrupted {
		status = "interrupted"
	}
	t := newTable(w, table.Row{"Run", "Rules", "Status", "Total", "Updated", "Errors"})
	t.AppendRow(table.Row{r.RunID, r.RuleSetVersion, status, r.Total, r.Updated, r.Errors})
	t.Render()
	renderRecordErrors(w, r.ErrorDetails)
}

func renderRecordErrors(w io.Writer, errs []worktime.RecordError) {
	if len(errs) == 0 {
		return
	}
	t := newTable(w, table.Row{"Attendance", "Code", "Cause", "Message"})
	for _, e := range errs {
		t.AppendRow(table.Row{e.AttendanceID, e.Kind, e.Cause, e.Message})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 4, WidthMax: 80}})
	t.Render()
}

func renderReconciliation(w io.Writer, results []worktime.ReconciliationResult) {
	t := newTable(w, table.Row{"User", "Date", "Attendance", "Work", "Diff (min)", "Diff (h)", "Tasks", "Class"})
	for _, r := range results {
		attendance := worktime.MinutesToHours(r.AttendanceMinutes).StringFixed(2)
		if r.AttendanceOpen {
			attendance += " (open)"
		}
		t.AppendRow(table.Row{
			r.UserID, r.Date, attendance, r.WorkHours().StringFixed(2),
			r.DifferenceMinutes, r.DifferenceHours().StringFixed(2), r.WorkRecordCount,
			classificationColor(r.Classification).Sprint(string(r.Classification)),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	t.Render()
}

func classificationColor(c worktime.Classification) text.Colors {
	switch c {
	case worktime.Excessive:
		return text.Colors{text.FgRed}
	case worktime.Low:
		return text.Colors{text.FgYellow}
	}
	return text.Colors{text.FgGreen}
}

func renderAudit(w io.Writer, entries []worktime.AuditLogEntry) {
	t := newTable(w, table.Row{"When", "Attendance", "Field", "Old", "New", "Editor"})
	for _, e := range entries {
		t.AppendRow(table.Row{clock(e.CreatedAt), e.AttendanceID, e.Field, clockPtr(e.OldValue), clock(e.NewValue), e.EditorID})
	}
	t.Render()
}

func renderRuns(w io.Writer, runs []worktime.RecalculationRun) {
	t := newTable(w, table.Row{"Run", "Started", "Duration", "Rules", "Status", "Total", "Updated", "Errors"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.ID, clock(r.StartedAt), worktime.RunDuration(r).Round(time.Millisecond),
			r.RuleSetVersion, r.Status, r.Total, r.Updated, r.Errors,
		})
	}
	t.Render()
}

func renderRules(w io.Writer, rs worktime.RuleSet) {
	t := newTable(w, table.Row{"ID", "Name", "Start", "End", "Applies on"})
	for _, r := range rs.Rules {
		t.AppendRow(table.Row{r.ID, r.Name, r.Start, r.End, strings.Join(r.AppliesOn.Names(), ",")})
	}
	t.SetCaption("rule set version %d", rs.Version)
	t.Render()
}
