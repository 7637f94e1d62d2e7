package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"newsboy/internal/briefing"
	"newsboy/internal/cache"
	"newsboy/internal/config"
	"newsboy/internal/drip"
	"newsboy/internal/feeds"
	"newsboy/internal/illustration"
	"newsboy/internal/ingest"
	"newsboy/internal/logging"
	"newsboy/internal/notifications"
	"newsboy/internal/scoring"
	"newsboy/internal/services"
	"newsboy/internal/services/llm"
	"newsboy/internal/services/replicate"
	"newsboy/internal/stage"
	"newsboy/internal/stageexec"
	"newsboy/internal/store"
	"newsboy/internal/tuning"
)

// Pipeline owns the batch stages and the collaborators behind them.
type Pipeline struct {
	store     *store.Store
	notifier  notifications.Service
	cache     cache.Cache
	stages    map[string]stage.Handler
	scheduler *drip.Scheduler
	tuner     *tuning.Tuner
	now       func() time.Time
	logger    *slog.Logger
}

type options struct {
	fetcher    ingest.FeedFetcher
	summarizer briefing.Summarizer
	generator  illustration.Generator
	parser     tuning.Parser
	notifier   notifications.Service
	cache      cache.Cache
	now        func() time.Time
	sleeper    func(context.Context, time.Duration) error

	summarizerSet bool
	generatorSet  bool
	parserSet     bool
}

// Option overrides a collaborator, mostly for tests.
type Option func(*options)

// WithFetcher replaces the feed fetcher.
func WithFetcher(f ingest.FeedFetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithSummarizer replaces the briefing summarizer. Nil forces the template.
func WithSummarizer(s briefing.Summarizer) Option {
	return func(o *options) { o.summarizer, o.summarizerSet = s, true }
}

// WithGenerator replaces the illustration generator. Nil disables
// illustrations.
func WithGenerator(g illustration.Generator) Option {
	return func(o *options) { o.generator, o.generatorSet = g, true }
}

// WithParser replaces the tuning parser.
func WithParser(p tuning.Parser) Option {
	return func(o *options) { o.parser, o.parserSet = p, true }
}

// WithNotifier replaces the notifier.
func WithNotifier(n notifications.Service) Option {
	return func(o *options) { o.notifier = n }
}

// WithCache sets the cache invalidated after each run.
func WithCache(c cache.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithClock injects the clock used for run timestamps and scoring.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIllustrationSleeper overrides the pause between illustration calls.
func WithIllustrationSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(o *options) { o.sleeper = sleep }
}

// CurveFrom reads the drip curve from configuration.
func CurveFrom(cfg *config.Config) drip.Curve {
	return drip.Curve{
		MaxDaily:     cfg.Drip.MaxDaily,
		InitialCount: cfg.Drip.InitialCount,
		PerHourRate:  cfg.Drip.PerHourRate,
	}
}

// New builds every stage from cfg.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, opts ...Option) *Pipeline {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.fetcher == nil {
		o.fetcher = feeds.NewFetcher(feeds.ConfigFrom(cfg))
	}
	if o.notifier == nil {
		o.notifier = notifications.NewService(cfg)
	}
	if o.cache == nil {
		o.cache = cache.Nop{}
	}

	llmCfg := cfg.GetLLM()
	llmClient := llm.NewClient(llm.Config{
		APIKey:         llmCfg.APIKey,
		BaseURL:        llmCfg.BaseURL,
		Model:          llmCfg.Model,
		Referer:        llmCfg.Referer,
		Title:          llmCfg.Title,
		TimeoutSeconds: llmCfg.TimeoutSeconds,
	})
	if !o.summarizerSet {
		if s := briefing.NewLLMSummarizer(llmClient); s != nil {
			o.summarizer = s
		}
	}
	if !o.parserSet {
		if p := tuning.NewLLMParser(llmClient); p != nil {
			o.parser = p
		}
	}
	if !o.generatorSet && cfg.IllustrationEnabled() {
		client := replicate.NewClient(replicate.Config{
			APIToken:       cfg.Illustration.APIToken,
			BaseURL:        cfg.Illustration.BaseURL,
			Model:          cfg.Illustration.Model,
			MaxRetries:     cfg.Illustration.MaxRetries,
			TimeoutSeconds: cfg.Illustration.TimeoutSeconds,

			GenerateTimeout: time.Duration(cfg.Illustration.GenerateTimeoutSeconds) * time.Second,
		})
		if client != nil {
			o.generator = client
		}
	}

	ingester := ingest.New(st, o.fetcher, logger,
		ingest.WithConcurrency(cfg.Ingest.Concurrency),
		ingest.WithClock(o.now),
	)
	scorer := scoring.NewScorer(st, cfg.Drip.LookbackDays, logger)
	scheduler := drip.NewScheduler(st, CurveFrom(cfg), cfg.Drip.LookbackDays, scorer, logger)
	var backfillOpts []illustration.Option
	if o.sleeper != nil {
		backfillOpts = append(backfillOpts, illustration.WithSleeper(o.sleeper))
	}
	backfiller := illustration.NewBackfiller(st, o.generator, cfg.IllustrationDelay(), logger, backfillOpts...)
	compiler := briefing.NewCompiler(st, o.summarizer, cfg.Briefing.FeaturedCount, logger)
	compiler.SetClock(o.now)
	tuner := tuning.NewTuner(st, o.parser, logger)
	tuner.SetClock(o.now)

	hasSummarizer := o.summarizer != nil
	return &Pipeline{
		store:     st,
		notifier:  o.notifier,
		cache:     o.cache,
		scheduler: scheduler,
		tuner:     tuner,
		now:       o.now,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
		stages: map[string]stage.Handler{
			stageIngest:     &ingestStage{ingester: ingester, store: st},
			stageScore:      &scoreStage{scorer: scorer},
			stageSchedule:   &scheduleStage{scheduler: scheduler},
			stageReschedule: &scheduleStage{scheduler: scheduler, regenerate: true},
			stageIllustrate: &illustrateStage{backfiller: backfiller},
			stageBriefing:   &briefingStage{compiler: compiler, summarizer: hasSummarizer},
			stageRebrief:    &briefingStage{compiler: compiler, summarizer: hasSummarizer, regenerate: true},
		},
	}
}

// Store returns the backing store.
func (p *Pipeline) Store() *store.Store { return p.store }

// Tuner returns the conversational preference tuner.
func (p *Pipeline) Tuner() *tuning.Tuner { return p.tuner }

// Cache returns the projection cache.
func (p *Pipeline) Cache() cache.Cache { return p.cache }

// Now returns the pipeline clock's current time.
func (p *Pipeline) Now() time.Time { return p.now() }

// Notifier returns the notification service.
func (p *Pipeline) Notifier() notifications.Service { return p.notifier }

// ApplyConfig picks up reloadable knobs.
func (p *Pipeline) ApplyConfig(cfg *config.Config) {
	p.scheduler.SetCurve(CurveFrom(cfg))
}

// Health reports each distinct stage's readiness in pipeline order.
func (p *Pipeline) Health(ctx context.Context) []stage.Health {
	names := []string{stageIngest, stageScore, stageSchedule, stageIllustrate, stageBriefing}
	out := make([]stage.Health, 0, len(names))
	for _, name := range names {
		out = append(out, p.stages[name].HealthCheck(ctx))
	}
	return out
}

// Run executes op for day and records it in the runs table. The returned run
// is non-nil whenever the run row was written, including on failure.
func (p *Pipeline) Run(ctx context.Context, op Operation, day time.Time) (*store.Run, error) {
	names, ok := dispatch[op]
	if !ok {
		_, err := ParseOperation(string(op))
		return nil, err
	}

	runID := uuid.NewString()
	now := p.now()
	day = store.DayOf(day, p.store.Location())
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, p.logger)

	if err := p.store.StartRun(ctx, runID, string(op), day, now); err != nil {
		return nil, fmt.Errorf("record run start: %w", err)
	}
	logger.Info("pipeline run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("operation", string(op)),
		logging.String("date", day.Format("2006-01-02")),
	)

	batch := &stage.Batch{RunID: runID, Operation: string(op), Date: day, Now: now}
	started := time.Now()
	var runErr error
	for _, name := range names {
		h, err := p.handler(name)
		if err != nil {
			runErr = err
			break
		}
		if err := stageexec.Run(ctx, stageexec.Options{
			Logger:    logger,
			Notifier:  p.notifier,
			Handler:   h,
			StageName: name,
			Batch:     batch,
		}); err != nil {
			runErr = err
			break
		}
	}
	elapsed := time.Since(started)
	batch.Record("durationMs", elapsed.Milliseconds())

	status, errMsg := store.RunCompleted, ""
	if runErr != nil {
		status = services.FailureStatus(runErr)
		errMsg = runErr.Error()
	}
	// Record the outcome even when ctx was cancelled mid-run.
	recordCtx := context.WithoutCancel(ctx)
	if err := p.store.FinishRun(recordCtx, runID, status, errMsg, batch.Stats, p.now()); err != nil {
		logging.WarnWithContext(logger, "failed to record run result", "run_record_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run history incomplete"),
		)
	}
	if err := p.cache.Invalidate(recordCtx, ""); err != nil {
		logging.WarnWithContext(logger, "cache invalidation failed", "cache_invalidate_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "API may serve stale projections until TTL"),
		)
	}

	if runErr != nil {
		logging.ErrorWithContext(logger, "pipeline run failed", "run_failed",
			append(logging.ErrorAttrs(runErr), logging.String("operation", string(op)))...)
	} else {
		logger.Info("pipeline run completed",
			logging.String(logging.FieldEventType, "run_complete"),
			logging.String("operation", string(op)),
			logging.Duration("run_duration", elapsed),
		)
		payload := notifications.Payload{
			"operation": string(op),
			"date":      day.Format("2006-01-02"),
			"duration":  elapsed,
		}
		for _, key := range []string{"ingested", "scheduled", "illustrated", "failedSources"} {
			if v, ok := batch.Stats[key]; ok {
				payload[key] = v
			}
		}
		if err := p.notifier.Publish(recordCtx, notifications.EventPipelineCompleted, payload); err != nil {
			logger.Debug("pipeline notification failed", logging.Error(err))
		}
	}

	run, err := p.store.GetRun(recordCtx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	return run, runErr
}
