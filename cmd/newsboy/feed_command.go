package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"newsboy/internal/feedview"
	"newsboy/internal/store"
)

func newFeedCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Show the items revealed so far today",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				view, err := feedview.Today(cmd.Context(), st, ctx.now(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if ctx.jsonOutput() {
					return writeJSON(out, view)
				}

				switch {
				case view.Fallback:
					fmt.Fprintf(out, "No plan for %s yet; showing the %d most recent items\n", view.Date, len(view.Articles))
				case view.NextRevealHour != nil:
					fmt.Fprintf(out, "%s: %d of %d revealed, next drop at %02d:00\n", view.Date, view.Revealed, view.Total, *view.NextRevealHour)
				default:
					fmt.Fprintf(out, "%s: all %d revealed\n", view.Date, view.Total)
				}
				if len(view.Articles) == 0 {
					return nil
				}

				rows := make([][]string, 0, len(view.Articles))
				for _, entry := range view.Articles {
					hour := "-"
					if entry.RevealHour != nil {
						hour = fmt.Sprintf("%02d:00", *entry.RevealHour)
					}
					reading := ""
					if entry.ReadingTimeMinutes > 0 {
						reading = strconv.Itoa(entry.ReadingTimeMinutes) + "m"
					}
					rows = append(rows, []string{
						hour,
						entry.Title,
						entry.SourceName,
						fmt.Sprintf("%.2f", entry.RelevanceScore),
						reading,
						string(entry.DisplayMode),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"Drop", "Title", "Source", "Score", "Read", "Layout"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", feedview.DefaultFallbackLimit, "Items to list when today has no plan")
	return cmd
}
