package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"newsboy/internal/config"
	"newsboy/internal/pipeline"
	"newsboy/internal/prefs"
	"newsboy/internal/store"
)

func newPrefsCommand(ctx *commandContext) *cobra.Command {
	prefsCmd := &cobra.Command{
		Use:     "prefs",
		Aliases: []string{"preferences"},
		Short:   "Inspect and edit scoring preferences",
	}
	prefsCmd.AddCommand(newPrefsShowCommand(ctx))
	prefsCmd.AddCommand(newPrefsSetCommand(ctx))
	prefsCmd.AddCommand(newPrefsExportCommand(ctx))
	prefsCmd.AddCommand(newPrefsImportCommand(ctx))
	return prefsCmd
}

func newPrefsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				current, err := st.GetPreferences(cmd.Context())
				if err != nil {
					return err
				}
				return writePreferences(cmd.OutOrStdout(), ctx, current)
			})
		},
	}
}

func newPrefsSetCommand(ctx *commandContext) *cobra.Command {
	var interests, sources []string
	var mood float64
	var longForm, visual bool

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Merge preference changes (a weight of 0 removes the key)",
		Example: "  newsboy prefs set --interest rust=0.8 --interest crypto=-1\n" +
			"  newsboy prefs set --source 3=0.5 --mood 0.3 --visual=false",
		RunE: func(cmd *cobra.Command, args []string) error {
			var changes prefs.Changes
			var err error
			if changes.Interests, err = parseWeights(interests, false); err != nil {
				return err
			}
			if changes.SourceWeights, err = parseWeights(sources, true); err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("mood") {
				changes.MoodBalance = &mood
			}
			if flags.Changed("long-form") {
				changes.PreferLongForm = &longForm
			}
			if flags.Changed("visual") {
				changes.PreferVisual = &visual
			}
			if changes.Empty() {
				return fmt.Errorf("nothing to change; see `newsboy prefs set --help`")
			}
			return ctx.withStore(func(st *store.Store) error {
				current, err := st.GetPreferences(cmd.Context())
				if err != nil {
					return err
				}
				updated := current.Apply(changes)
				if err := st.SavePreferences(cmd.Context(), updated); err != nil {
					return err
				}
				return writePreferences(cmd.OutOrStdout(), ctx, updated)
			})
		},
	}
	cmd.Flags().StringArrayVar(&interests, "interest", nil, "Interest weight as topic=weight (repeatable)")
	cmd.Flags().StringArrayVar(&sources, "source", nil, "Source weight as id=weight (repeatable)")
	cmd.Flags().Float64Var(&mood, "mood", 0, "Mood balance between -1 (serious) and 1 (light)")
	cmd.Flags().BoolVar(&longForm, "long-form", false, "Prefer long reads")
	cmd.Flags().BoolVar(&visual, "visual", true, "Prefer items with images")
	return cmd
}

func newPrefsExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write preferences as YAML (stdout when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				current, err := st.GetPreferences(cmd.Context())
				if err != nil {
					return err
				}
				data, err := marshalYAML(current)
				if err != nil {
					return err
				}
				if len(args) == 0 {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				path, err := config.ExpandPath(args[0])
				if err != nil {
					return err
				}
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return fmt.Errorf("write preferences: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote preferences to %s\n", path)
				return nil
			})
		},
	}
}

func newPrefsImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace preferences from a YAML file (fields absent from the file are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read preferences: %w", err)
			}
			changes, err := decodeChanges(data)
			if err != nil {
				return err
			}
			return ctx.withStore(func(st *store.Store) error {
				current, err := st.GetPreferences(cmd.Context())
				if err != nil {
					return err
				}
				updated := current.Replace(changes)
				if err := st.SavePreferences(cmd.Context(), updated); err != nil {
					return err
				}
				return writePreferences(cmd.OutOrStdout(), ctx, updated)
			})
		},
	}
}

func newTuneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "tune <message>",
		Short: "Adjust preferences in plain words",
		Example: `  newsboy tune "less crypto, more rust please"
  newsboy tune "I'm in the mood for something light"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			return ctx.withPipeline(cmd.Context(), func(p *pipeline.Pipeline) error {
				outcome, err := p.Tuner().Tune(cmd.Context(), message)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if ctx.jsonOutput() {
					return writeJSON(out, outcome)
				}
				fmt.Fprintln(out, outcome.Response)
				if outcome.Changes.Empty() {
					return nil
				}
				fmt.Fprintln(out)
				data, err := marshalYAML(outcome.Changes)
				if err != nil {
					return err
				}
				fmt.Fprint(out, "Changes:\n"+indent(string(data), "  "))
				return nil
			})
		},
	}
}

func writePreferences(out io.Writer, ctx *commandContext, p prefs.Preferences) error {
	if ctx.jsonOutput() {
		return writeJSON(out, p)
	}
	data, err := marshalYAML(p)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

func marshalYAML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeChanges reads a preferences document. Keys missing from the document
// stay nil so they leave the stored values alone.
func decodeChanges(data []byte) (prefs.Changes, error) {
	var changes prefs.Changes
	if err := yaml.Unmarshal(data, &changes); err != nil {
		return prefs.Changes{}, fmt.Errorf("parse preferences yaml: %w", err)
	}
	if changes.Empty() {
		return prefs.Changes{}, fmt.Errorf("preferences file has no recognised keys")
	}
	return changes, nil
}

// parseWeights reads key=weight pairs. Source keys must be numeric ids.
func parseWeights(pairs []string, numericKeys bool) (prefs.WeightMap, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := prefs.WeightMap{}
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid weight %q (want key=weight)", pair)
		}
		weight, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight %q: %w", pair, err)
		}
		if numericKeys {
			if _, err := parseSourceID(key); err != nil {
				return nil, err
			}
		}
		out[key] = weight
	}
	return out, nil
}

func indent(text, prefix string) string {
	lines := strings.SplitAfter(text, "\n")
	var b strings.Builder
	for _, line := range lines {
		if line == "" {
			continue
		}
		b.WriteString(prefix + line)
	}
	return b.String()
}
