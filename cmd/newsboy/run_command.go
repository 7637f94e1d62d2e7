package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"newsboy/internal/daemonctl"
	"newsboy/internal/pipeline"
	"newsboy/internal/store"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var dateFlag string
	var local bool
	var wait bool

	names := make([]string, 0, len(pipeline.Operations()))
	for _, op := range pipeline.Operations() {
		names = append(names, string(op))
	}

	cmd := &cobra.Command{
		Use:       "run <operation>",
		Short:     "Run a pipeline operation",
		Long:      "Run a pipeline operation on the daemon, or in-process when no daemon is reachable.\n\nOperations: " + strings.Join(names, ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := pipeline.ParseOperation(args[0])
			if err != nil {
				return err
			}
			day, err := ctx.resolveDay(dateFlag)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !local {
				handled, err := runOnDaemon(cmd.Context(), ctx, out, op, day, wait)
				if handled || err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "Daemon not reachable; running in-process")
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			lock, err := daemonctl.AcquireLock(cfg)
			if errors.Is(err, daemonctl.ErrLocked) {
				if local {
					return fmt.Errorf("%w: a daemon is running, drop --local to run on it", err)
				}
				return fmt.Errorf("%w: a daemon started, retry to run on it", err)
			}
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()

			return ctx.withPipeline(cmd.Context(), func(p *pipeline.Pipeline) error {
				run, runErr := p.Run(cmd.Context(), op, day)
				if run != nil {
					if err := printRun(out, ctx, run); err != nil {
						return err
					}
				}
				return runErr
			})
		},
	}
	cmd.Flags().StringVar(&dateFlag, "date", "", "Target date (defaults to today)")
	cmd.Flags().BoolVar(&local, "local", false, "Run in-process instead of on the daemon")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the daemon run to finish and print its summary")
	return cmd
}

// runOnDaemon reports handled=false when no daemon is running so the caller
// can fall back to an in-process run.
func runOnDaemon(ctx context.Context, cmdCtx *commandContext, out io.Writer, op pipeline.Operation, day time.Time, wait bool) (bool, error) {
	client := cmdCtx.client()
	since := cmdCtx.now()
	resp, err := client.Trigger(ctx, op, day.Format("2006-01-02"))
	if err != nil {
		if !daemonctl.IsUnavailable(err) {
			return true, err
		}
		running, pid, probeErr := daemonctl.ProcessInfo(cmdCtx.configValue())
		if probeErr != nil {
			return true, probeErr
		}
		if running {
			return true, fmt.Errorf("daemon (pid %d) holds the lock but its API at %s is unreachable: %w",
				pid, cmdCtx.configValue().Paths.APIBind, err)
		}
		return false, nil
	}

	if !wait {
		if cmdCtx.jsonOutput() {
			return true, writeJSON(out, resp)
		}
		fmt.Fprintf(out, "Daemon started %s for %s\n", resp.Operation, resp.Date)
		return true, nil
	}
	run, err := client.WaitForRun(ctx, since, 0)
	if err != nil {
		return true, err
	}
	if err := printRun(out, cmdCtx, run); err != nil {
		return true, err
	}
	if run.Status != store.RunCompleted {
		return true, errors.New(strings.TrimSpace("run " + run.Status + ": " + run.ErrorMessage))
	}
	return true, nil
}

func printRun(out io.Writer, ctx *commandContext, run *store.Run) error {
	if ctx.jsonOutput() {
		return writeJSON(out, run)
	}
	colorize := shouldColorize(out)
	printSection(out, "Run "+run.Operation, colorize)
	fmt.Fprintln(out, renderStatusLine("Status", runStatusKind(run.Status), run.Status, colorize))
	fmt.Fprintln(out, renderStatusLine("Date", statusInfo, run.Date.Format("2006-01-02"), colorize))
	fmt.Fprintln(out, renderStatusLine("Started", statusInfo, humanize.Time(run.StartedAt), colorize))
	if run.FinishedAt != nil {
		took := run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond)
		fmt.Fprintln(out, renderStatusLine("Duration", statusInfo, took.String(), colorize))
	}
	if run.ErrorMessage != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, run.ErrorMessage, colorize))
	}
	if len(run.Stats) == 0 {
		return nil
	}
	keys := make([]string, 0, len(run.Stats))
	for key := range run.Stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{key, fmt.Sprint(run.Stats[key])})
	}
	fmt.Fprint(out, renderTable([]string{"Stat", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
	return nil
}
