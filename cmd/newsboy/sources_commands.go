package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"newsboy/internal/config"
	"newsboy/internal/opml"
	"newsboy/internal/store"
)

func newSourcesCommand(ctx *commandContext) *cobra.Command {
	sourcesCmd := &cobra.Command{
		Use:     "sources",
		Aliases: []string{"source"},
		Short:   "Manage feed subscriptions",
	}
	sourcesCmd.AddCommand(newSourcesListCommand(ctx))
	sourcesCmd.AddCommand(newSourcesAddCommand(ctx))
	sourcesCmd.AddCommand(newSourceToggleCommand(ctx, "enable", true))
	sourcesCmd.AddCommand(newSourceToggleCommand(ctx, "disable", false))
	sourcesCmd.AddCommand(newSourcesRemoveCommand(ctx))
	sourcesCmd.AddCommand(newSourcesImportCommand(ctx))
	return sourcesCmd
}

func newSourcesListCommand(ctx *commandContext) *cobra.Command {
	var enabledOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				sources, err := st.ListSources(cmd.Context(), enabledOnly)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if ctx.jsonOutput() {
					if sources == nil {
						sources = []store.Source{}
					}
					return writeJSON(out, sources)
				}
				if len(sources) == 0 {
					fmt.Fprintln(out, "No sources; add one with `newsboy sources add` or `newsboy sources import-opml`")
					return nil
				}
				rows := make([][]string, 0, len(sources))
				for _, src := range sources {
					rows = append(rows, []string{
						strconv.FormatInt(src.ID, 10),
						src.Name,
						string(src.ContentType),
						src.Category,
						yesNo(src.Enabled),
						humanize.Time(src.CreatedAt),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Name", "Type", "Category", "Enabled", "Added"},
					rows,
					[]columnAlignment{alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "Only list enabled sources")
	return cmd
}

func newSourcesAddCommand(ctx *commandContext) *cobra.Command {
	var siteURL, category, contentType string
	cmd := &cobra.Command{
		Use:   "add <name> <feed-url>",
		Short: "Subscribe to a feed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, feedURL := strings.TrimSpace(args[0]), strings.TrimSpace(args[1])
			kind := store.ContentType(strings.TrimSpace(contentType))
			switch kind {
			case "":
				kind = opml.DetectContentType(name, feedURL)
			case store.ContentArticle, store.ContentWebcomic, store.ContentMixed:
			default:
				return fmt.Errorf("unknown content type %q (want article, webcomic or mixed)", contentType)
			}
			return ctx.withStore(func(st *store.Store) error {
				src, err := st.AddSource(cmd.Context(), store.Source{
					Name:        name,
					FeedURL:     feedURL,
					SiteURL:     siteURL,
					Category:    category,
					ContentType: kind,
					Enabled:     true,
				})
				if errors.Is(err, store.ErrDuplicateSource) && src != nil {
					return fmt.Errorf("%s is already subscribed as source %d", feedURL, src.ID)
				}
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), src)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added source %d: %s (%s)\n", src.ID, src.Name, src.ContentType)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&siteURL, "site", "", "Homepage URL")
	cmd.Flags().StringVar(&category, "category", "", "Category label")
	cmd.Flags().StringVar(&contentType, "type", "", "article, webcomic or mixed (detected when omitted)")
	return cmd
}

func newSourceToggleCommand(ctx *commandContext, verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSourceID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(st *store.Store) error {
				if err := st.SetSourceEnabled(cmd.Context(), id, enabled); err != nil {
					return sourceLookupError(id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Source %d %sd\n", id, verb)
				return nil
			})
		},
	}
}

func newSourcesRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a source and its articles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSourceID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(st *store.Store) error {
				if err := st.DeleteSource(cmd.Context(), id); err != nil {
					return sourceLookupError(id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Source %d removed\n", id)
				return nil
			})
		},
	}
}

func newSourcesImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import-opml <file>",
		Short: "Import subscriptions from an OPML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open opml: %w", err)
			}
			defer file.Close()
			return ctx.withStore(func(st *store.Store) error {
				report, err := opml.Import(cmd.Context(), st, file)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), report)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d sources (%d already subscribed)\n", report.Added, report.Skipped)
				return nil
			})
		},
	}
}

func parseSourceID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid source id %q", value)
	}
	return id, nil
}

func sourceLookupError(id int64, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("source %d not found", id)
	}
	return err
}
