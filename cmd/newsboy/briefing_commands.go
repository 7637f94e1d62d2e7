package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"newsboy/internal/api"
	"newsboy/internal/briefing"
	"newsboy/internal/store"
)

func newBriefingCommand(ctx *commandContext) *cobra.Command {
	briefingCmd := &cobra.Command{
		Use:   "briefing",
		Short: "Read daily briefings",
	}
	briefingCmd.AddCommand(newBriefingShowCommand(ctx))
	briefingCmd.AddCommand(newBriefingListCommand(ctx))
	return briefingCmd
}

func newBriefingShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show [date]",
		Short: "Show the briefing for a date (defaults to today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value string
			if len(args) == 1 {
				value = args[0]
			}
			day, err := ctx.resolveDay(value)
			if err != nil {
				return err
			}
			return ctx.withStore(func(st *store.Store) error {
				view, err := briefing.Load(cmd.Context(), st, day, ctx.now())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if view == nil {
					if ctx.jsonOutput() {
						return writeJSON(out, api.ErrorResponse{Error: api.NoBriefingMessage})
					}
					fmt.Fprintln(out, api.NoBriefingMessage)
					return nil
				}
				if ctx.jsonOutput() {
					return writeJSON(out, view)
				}

				colorize := shouldColorize(out)
				printSection(out, "Briefing for "+day.Format("Monday, January 2"), colorize)
				fmt.Fprintln(out, view.Briefing.SummaryText)
				fmt.Fprintln(out)
				if len(view.FeaturedArticles) > 0 {
					rows := make([][]string, 0, len(view.FeaturedArticles))
					for _, art := range view.FeaturedArticles {
						rows = append(rows, []string{art.Title, art.SourceName, art.URL})
					}
					fmt.Fprint(out, renderTable([]string{"Featured", "Source", "Link"}, rows, nil))
				}
				if view.PreviousDate != "" {
					fmt.Fprintf(out, "Previous: %s\n", view.PreviousDate)
				}
				if view.NextDate != "" {
					fmt.Fprintf(out, "Next: %s\n", view.NextDate)
				}
				return nil
			})
		},
	}
}

func newBriefingListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List briefings, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				list, err := briefing.List(cmd.Context(), st)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if ctx.jsonOutput() {
					return writeJSON(out, list)
				}
				if len(list) == 0 {
					fmt.Fprintln(out, "No briefings yet")
					return nil
				}
				rows := make([][]string, 0, len(list))
				for _, s := range list {
					rows = append(rows, []string{s.Date, s.Preview, humanize.Time(s.GeneratedAt)})
				}
				fmt.Fprint(out, renderTable([]string{"Date", "Preview", "Generated"}, rows, nil))
				return nil
			})
		},
	}
}
