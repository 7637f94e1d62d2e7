package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"

	"newsboy/internal/cache"
	"newsboy/internal/config"
	"newsboy/internal/daemonctl"
	"newsboy/internal/logging"
	"newsboy/internal/pipeline"
	"newsboy/internal/store"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	// now is replaced in tests.
	now func() time.Time
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
		now:        time.Now,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) client() *daemonctl.Client {
	return daemonctl.FromConfig(c.configValue())
}

// withStore opens the database for the duration of fn.
func (c *commandContext) withStore(fn func(*store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	return fn(st)
}

// withPipeline builds a pipeline over a freshly opened store. Log output goes
// to stderr so command output stays clean.
func (c *commandContext) withPipeline(ctx context.Context, fn func(*pipeline.Pipeline) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.cliLogger(cfg)
	if err != nil {
		return err
	}
	return c.withStore(func(st *store.Store) error {
		projections := cache.New(ctx, cfg.Cache, logger)
		defer projections.Close()
		p := pipeline.New(cfg, st, logger,
			pipeline.WithCache(projections),
			pipeline.WithClock(c.now),
		)
		return fn(p)
	})
}

func (c *commandContext) cliLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
}

// resolveDay turns a user supplied date ("", "2026-04-02", "April 2") into a
// day in the configured timezone. Empty means today.
func (c *commandContext) resolveDay(value string) (time.Time, error) {
	loc := c.configValue().Location()
	value = strings.TrimSpace(value)
	if value == "" {
		return store.DayOf(c.now(), loc), nil
	}
	t, err := dateparse.ParseIn(value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", value, err)
	}
	return store.DayOf(t, loc), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
