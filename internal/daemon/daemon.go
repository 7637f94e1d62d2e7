package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"

	"newsboy/internal/config"
	"newsboy/internal/logging"
	"newsboy/internal/pipeline"
	"newsboy/internal/stage"
	"newsboy/internal/store"
)

// LockFileName is the flock guarding single-instance execution.
const LockFileName = "newsboyd.lock"

// Daemon runs the daily batch on schedule and serves the HTTP API.
type Daemon struct {
	pipeline *pipeline.Pipeline
	store    *store.Store
	logger   *slog.Logger
	now      func() time.Time
	state    *State

	mu      sync.Mutex
	cfg     *config.Config
	trigger Trigger

	lockPath string
	lock     *flock.Flock
	api      *apiServer
	cron     *cron.Cron

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	Phase         Phase
	Operation     pipeline.Operation
	LastBatchDate *time.Time
	NextRun       time.Time
	LastRun       *store.Run
	Stages        []stage.Health
	DatabasePath  string
	LockFilePath  string
	LogPath       string
	APIAddress    string
}

// Option customizes a daemon.
type Option func(*Daemon)

// WithClock injects the clock used to decide whether the batch is due.
func WithClock(now func() time.Time) Option {
	return func(d *Daemon) {
		if now != nil {
			d.now = now
		}
	}
}

// New constructs a daemon around an assembled pipeline.
func New(cfg *config.Config, p *pipeline.Pipeline, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || p == nil {
		return nil, errors.New("daemon requires config and pipeline")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, LockFileName)
	d := &Daemon{
		pipeline: p,
		store:    p.Store(),
		logger:   logging.NewComponentLogger(logger, "daemon"),
		now:      p.Now,
		state:    NewState(),
		cfg:      cfg,
		trigger:  TriggerFrom(cfg),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the lock, restores the batch marker, and begins ticking.
// The first tick runs immediately so a late start catches up at once.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another newsboy daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.Recover(d.ctx); err != nil {
		d.abortStart()
		return err
	}

	cfg := d.config()
	srv, err := newAPIServer(cfg, d, d.logger)
	if err != nil {
		d.abortStart()
		return err
	}
	d.api = srv
	if err := srv.start(d.ctx); err != nil {
		d.api = nil
		d.abortStart()
		return err
	}

	d.cron = cron.New(
		cron.WithLocation(cfg.Location()),
		cron.WithLogger(cronLogger{logger: d.logger}),
		cron.WithChain(cron.Recover(cronLogger{logger: d.logger})),
	)
	spec := fmt.Sprintf("@every %s", cfg.TickInterval())
	if _, err := d.cron.AddFunc(spec, d.scheduledTick); err != nil {
		srv.stop()
		d.api = nil
		d.abortStart()
		return fmt.Errorf("schedule tick: %w", err)
	}
	d.cron.Start()
	d.running.Store(true)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.scheduledTick()
	}()

	d.logger.Info("newsboy daemon started",
		logging.String("lock", d.lockPath),
		logging.String("tick", cfg.TickInterval().String()),
		logging.String("trigger", fmt.Sprintf("%02d:%02d", cfg.Schedule.TriggerHour, cfg.Schedule.TriggerMinute)),
	)
	return nil
}

// Recover marks runs left "running" by a previous process as failed and
// reloads the last-batch marker. Start calls it before the first tick.
func (d *Daemon) Recover(ctx context.Context) error {
	failed, err := d.store.FailInterruptedRuns(ctx)
	if err != nil {
		return fmt.Errorf("recover interrupted runs: %w", err)
	}
	if failed > 0 {
		logging.WarnWithContext(d.logger, "marked interrupted runs failed", "runs_interrupted",
			logging.Int("count", failed),
			logging.String(logging.FieldImpact, "those runs left partial results"),
		)
	}
	last, err := d.store.LastBatchDate(ctx)
	if err != nil {
		return fmt.Errorf("load last batch date: %w", err)
	}
	d.state.Restore(last)
	return nil
}

func (d *Daemon) abortStart() {
	if d.cancel != nil {
		d.cancel()
	}
	d.ctx, d.cancel = nil, nil
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Stop halts the ticker, waits for an in-flight run to observe cancellation,
// and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	// Stop accepting API submissions before waiting on in-flight runs.
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
	}
	if d.cron != nil {
		<-d.cron.Stop().Done()
		d.cron = nil
	}
	d.wg.Wait()
	d.api = nil
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx, d.cancel = nil, nil
	d.running.Store(false)
	d.logger.Info("newsboy daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// ApplyConfig swaps reloadable settings: the trigger time and the drip
// curve. Bind address and tick interval changes need a restart.
func (d *Daemon) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	d.mu.Lock()
	d.cfg = cfg
	d.trigger = TriggerFrom(cfg)
	d.mu.Unlock()
	d.pipeline.ApplyConfig(cfg)
	d.logger.Info("configuration reloaded",
		logging.String(logging.FieldEventType, "config_reloaded"),
		logging.String("trigger", fmt.Sprintf("%02d:%02d", cfg.Schedule.TriggerHour, cfg.Schedule.TriggerMinute)),
	)
}

func (d *Daemon) config() *config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

func (d *Daemon) currentTrigger() Trigger {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.trigger
}

func (d *Daemon) scheduledTick() {
	ctx := d.ctx
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if _, err := d.Tick(ctx); err != nil {
		// The failure was logged by the pipeline; the marker stays unset so
		// the next tick retries.
		d.logger.Info("daily batch will retry on next tick",
			logging.String(logging.FieldEventType, "batch_retry_pending"),
		)
	}
}

// Tick fires the daily batch when it is due and reports whether it ran.
func (d *Daemon) Tick(ctx context.Context) (bool, error) {
	now := d.now()
	if !d.currentTrigger().Due(now, d.state.LastBatch()) {
		return false, nil
	}
	if !d.state.Arm() {
		return false, nil
	}
	d.logger.Info("daily batch due",
		logging.String(logging.FieldEventType, "batch_due"),
		logging.String("date", store.DayOf(now, d.store.Location()).Format("2006-01-02")),
	)
	if _, err := d.Run(ctx, pipeline.OpRunFull, now); err != nil {
		if errors.Is(err, pipeline.ErrBusy) {
			return false, nil
		}
		return true, err
	}
	return true, nil
}

// Run executes op synchronously under the running flag.
func (d *Daemon) Run(ctx context.Context, op pipeline.Operation, day time.Time) (*store.Run, error) {
	if !d.state.Begin(op) {
		return nil, pipeline.ErrBusy
	}
	return d.execute(ctx, op, day)
}

// Submit starts op in the background and returns once the running flag is
// held. It fails with pipeline.ErrBusy when a run is already in flight.
func (d *Daemon) Submit(op pipeline.Operation, day time.Time) error {
	if _, err := pipeline.ParseOperation(string(op)); err != nil {
		return err
	}
	ctx := d.ctx
	if !d.running.Load() || ctx == nil {
		return errors.New("daemon not running")
	}
	if !d.state.Begin(op) {
		return pipeline.ErrBusy
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_, _ = d.execute(ctx, op, day)
	}()
	return nil
}

// execute runs op with the running flag already held.
func (d *Daemon) execute(ctx context.Context, op pipeline.Operation, day time.Time) (*store.Run, error) {
	run, err := d.pipeline.Run(ctx, op, day)
	var marked *time.Time
	if err == nil && op == pipeline.OpRunFull {
		// The marker means "today's batch completed". A run for another date
		// must not satisfy or block today's trigger.
		batchDay := store.DayOf(day, d.store.Location())
		today := store.DayOf(d.now(), d.store.Location())
		last := d.state.LastBatch()
		if batchDay.Equal(today) && (last == nil || batchDay.After(*last)) {
			if markErr := d.store.SetLastBatchDate(context.WithoutCancel(ctx), batchDay); markErr != nil {
				logging.ErrorWithContext(d.logger, "failed to persist batch marker", "batch_marker_failed",
					logging.Error(markErr),
					logging.String(logging.FieldImpact, "batch may run again after restart"),
				)
			}
			marked = &batchDay
		}
	}
	d.state.Finish(run, marked)
	return run, err
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	snap := d.state.Snapshot()
	cfg := d.config()
	status := Status{
		Running:       d.running.Load(),
		Phase:         snap.Phase,
		Operation:     snap.Operation,
		LastBatchDate: snap.LastBatch,
		NextRun:       d.currentTrigger().Next(d.now(), snap.LastBatch),
		LastRun:       snap.LastRun,
		Stages:        d.pipeline.Health(ctx),
		DatabasePath:  d.store.Path(),
		LockFilePath:  d.lockPath,
		LogPath:       filepath.Join(cfg.Paths.LogDir, logging.LogFileName),
	}
	if status.LastRun == nil {
		if runs, err := d.store.ListRuns(ctx, 1); err == nil && len(runs) > 0 {
			status.LastRun = &runs[0]
		}
	}
	if d.api != nil {
		status.APIAddress = d.api.address()
	}
	return status
}

// cronLogger routes robfig/cron diagnostics into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	args := append([]any{logging.Error(err)}, keysAndValues...)
	l.logger.Error("cron: "+msg, args...)
}
