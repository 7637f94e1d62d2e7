package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"newsboy/internal/api"
	"newsboy/internal/daemonctl"
	"newsboy/internal/preflight"
	"newsboy/internal/store"
)

const recentRunLimit = 5

type statusReport struct {
	Daemon     *api.DaemonStatus  `json:"daemon,omitempty"`
	LastBatch  string             `json:"lastBatchDate,omitempty"`
	Counts     store.Counts       `json:"counts"`
	RecentRuns []store.Run        `json:"recentRuns"`
	Checks     []preflight.Result `json:"checks,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, batch and database status",
		RunE: func(cmd *cobra.Command, args []string) error {
			report := statusReport{}
			if check {
				report.Checks = preflight.RunAll(cmd.Context(), ctx.configValue())
			}
			status, err := ctx.client().Status(cmd.Context())
			switch {
			case err == nil:
				report.Daemon = status
			case !daemonctl.IsUnavailable(err):
				return err
			}

			err = ctx.withStore(func(st *store.Store) error {
				last, err := st.LastBatchDate(cmd.Context())
				if err != nil {
					return err
				}
				report.LastBatch = api.FormatDate(last)
				if report.Counts, err = st.Counts(cmd.Context()); err != nil {
					return err
				}
				report.RecentRuns, err = st.ListRuns(cmd.Context(), recentRunLimit)
				return err
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if ctx.jsonOutput() {
				return writeJSON(out, report)
			}
			renderStatus(out, ctx, report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Also probe collaborators (OpenRouter, Replicate, Redis)")
	return cmd
}

func renderStatus(out io.Writer, ctx *commandContext, report statusReport) {
	colorize := shouldColorize(out)

	printSection(out, "Daemon", colorize)
	if d := report.Daemon; d != nil {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", d.PID), colorize))
		phase := d.Phase
		if d.Operation != "" {
			phase += " " + d.Operation
		}
		fmt.Fprintln(out, renderStatusLine("Phase", statusInfo, phase, colorize))
		if d.NextRun != "" {
			fmt.Fprintln(out, renderStatusLine("Next batch", statusInfo, relativeTime(d.NextRun), colorize))
		}
		fmt.Fprintln(out, renderStatusLine("API", statusInfo, d.APIAddress, colorize))
		fmt.Fprintln(out, renderStatusLine("Log", statusInfo, d.LogPath, colorize))
	} else {
		running, pid, err := daemonctl.ProcessInfo(ctx.configValue())
		switch {
		case err != nil:
			fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, err.Error(), colorize))
		case running:
			fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, fmt.Sprintf("pid %d holds the lock but the API is unreachable", pid), colorize))
		default:
			fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "not running", colorize))
		}
	}
	lastBatch := report.LastBatch
	if lastBatch == "" {
		lastBatch = "never"
	}
	fmt.Fprintln(out, renderStatusLine("Last batch", statusInfo, lastBatch, colorize))
	fmt.Fprintln(out)

	if report.Daemon != nil && len(report.Daemon.Stages) > 0 {
		printSection(out, "Stages", colorize)
		for _, h := range report.Daemon.Stages {
			detail := h.Detail
			if detail == "" {
				detail = "ready"
			}
			fmt.Fprintln(out, renderStatusLine(h.Name, stageStatusKind(h), detail, colorize))
		}
		fmt.Fprintln(out)
	}

	if len(report.Checks) > 0 {
		printSection(out, "Collaborators", colorize)
		for _, r := range report.Checks {
			kind := statusOK
			if !r.Passed {
				kind = statusError
			}
			fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
		}
		fmt.Fprintln(out)
	}

	printSection(out, "Database", colorize)
	c := report.Counts
	fmt.Fprintln(out, renderStatusLine("Sources", statusInfo, fmt.Sprintf("%d (%d enabled)", c.Sources, c.EnabledSources), colorize))
	fmt.Fprintln(out, renderStatusLine("Articles", statusInfo, humanize.Comma(int64(c.Articles)), colorize))
	fmt.Fprintln(out, renderStatusLine("Briefings", statusInfo, humanize.Comma(int64(c.Briefings)), colorize))
	fmt.Fprintln(out)

	printSection(out, "Recent Runs", colorize)
	if len(report.RecentRuns) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return
	}
	rows := make([][]string, 0, len(report.RecentRuns))
	for _, run := range report.RecentRuns {
		rows = append(rows, []string{
			run.Operation,
			run.Date.Format("2006-01-02"),
			run.Status,
			humanize.Time(run.StartedAt),
			run.ErrorMessage,
		})
	}
	fmt.Fprint(out, renderTable([]string{"Operation", "Date", "Status", "Started", "Error"}, rows, nil))
}

// relativeTime renders an API timestamp as "in 3 hours" when it parses.
func relativeTime(value string) string {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return fmt.Sprintf("%s (%s)", t.Local().Format("Mon 15:04"), humanize.Time(t))
}
