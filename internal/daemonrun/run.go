// Package daemonrun assembles and runs the Newsboy daemon process: logging,
// storage, cache, pipeline, and the scheduler, torn down on SIGINT/SIGTERM.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"newsboy/internal/cache"
	"newsboy/internal/config"
	"newsboy/internal/daemon"
	"newsboy/internal/logging"
	"newsboy/internal/pipeline"
	"newsboy/internal/preflight"
	"newsboy/internal/store"
)

// PIDFileName is written under the log directory while the daemon runs.
const PIDFileName = "newsboy.pid"

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// ConfigPath is watched for edits when the file exists.
	ConfigPath string
}

// Run starts the newsboy daemon and blocks until a signal arrives or cmdCtx
// ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("newsboy-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logCollaboratorSnapshot(logger, cfg)
	go logPreflight(signalCtx, logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", logging.LogFileName, err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "newsboy-*.log", Exclude: []string{logPath}},
	)
	pidPath := filepath.Join(cfg.Paths.LogDir, PIDFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}
	defer st.Close()

	projections := cache.New(signalCtx, cfg.Cache, logger)
	defer projections.Close()

	p := pipeline.New(cfg, st, logger, pipeline.WithCache(projections))
	d, err := daemon.New(cfg, p, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "stop the other daemon or check the database path"),
		)
		return err
	}
	defer d.Stop()

	if path := strings.TrimSpace(opts.ConfigPath); path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			go watchConfig(signalCtx, path, d, logger)
		}
	}

	<-signalCtx.Done()
	logger.Info("newsboy daemon shutting down")
	return nil
}

func watchConfig(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) {
	onError := func(err error) {
		logging.WarnWithContext(logger, "config reload failed", "config_reload_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "previous settings stay in effect"),
		)
	}
	if err := config.Watch(ctx, path, d.ApplyConfig, onError); err != nil {
		logging.WarnWithContext(logger, "config watch unavailable", "config_watch_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "config edits need a daemon restart"),
		)
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, logging.LogFileName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logCollaboratorSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("collaborator snapshot",
		logging.String(logging.FieldEventType, "collaborator_snapshot"),
		logging.Bool("llm_key_present", cfg.LLMEnabled()),
		logging.String("llm_model", cfg.LLM.Model),
		logging.Bool("illustrations_enabled", cfg.IllustrationEnabled()),
		logging.Bool("cache_enabled", cfg.Cache.Enabled),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Bool("api_token_set", strings.TrimSpace(cfg.Paths.APIToken) != ""),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.String("timezone", cfg.Location().String()),
	)
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, r := range preflight.RunAll(ctx, cfg) {
		if r.Passed {
			logger.Debug("preflight check passed",
				logging.String(logging.FieldEventType, "preflight_passed"),
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldImpact, "the pipeline falls back where it can"),
		)
	}
}
