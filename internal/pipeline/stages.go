package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"newsboy/internal/briefing"
	"newsboy/internal/drip"
	"newsboy/internal/illustration"
	"newsboy/internal/ingest"
	"newsboy/internal/scoring"
	"newsboy/internal/stage"
	"newsboy/internal/store"
)

type ingestStage struct {
	ingester *ingest.Ingester
	store    *store.Store
}

func (s *ingestStage) SetLogger(logger *slog.Logger) { s.ingester.SetLogger(logger) }

func (s *ingestStage) Execute(ctx context.Context, b *stage.Batch) error {
	summary, err := s.ingester.Run(ctx)
	if err != nil {
		return err
	}
	b.Record("sources", summary.Sources)
	b.Record("ingested", summary.New)
	b.Record("skipped", summary.Skipped)
	b.Record("errored", summary.Errored)
	b.Record("failedSources", summary.FailedSources)
	return nil
}

func (s *ingestStage) HealthCheck(ctx context.Context) stage.Health {
	counts, err := s.store.Counts(ctx)
	if err != nil {
		return stage.Unhealthy(stageIngest, err.Error())
	}
	if counts.EnabledSources == 0 {
		return stage.Degraded(stageIngest, "no enabled sources")
	}
	return stage.Healthy(stageIngest)
}

type scoreStage struct {
	scorer *scoring.Scorer
}

func (s *scoreStage) SetLogger(logger *slog.Logger) { s.scorer.SetLogger(logger) }

func (s *scoreStage) Execute(ctx context.Context, b *stage.Batch) error {
	n, err := s.scorer.Run(ctx, b.Now)
	if err != nil {
		return err
	}
	b.Record("scored", n)
	return nil
}

func (s *scoreStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(stageScore)
}

type scheduleStage struct {
	scheduler  *drip.Scheduler
	regenerate bool
}

func (s *scheduleStage) SetLogger(logger *slog.Logger) { s.scheduler.SetLogger(logger) }

func (s *scheduleStage) Execute(ctx context.Context, b *stage.Batch) error {
	var (
		res drip.Result
		err error
	)
	if s.regenerate {
		res, err = s.scheduler.Regenerate(ctx, b.Date, b.Now)
		b.Record("removed", res.Removed)
	} else {
		res, err = s.scheduler.Schedule(ctx, b.Date, b.Now)
	}
	if err != nil {
		return err
	}
	b.Record("scheduled", res.Slots)
	b.Record("scheduleSkipped", res.Skipped)
	if res.Slots > 0 {
		b.Record("lastRevealHour", res.LastHour)
	}
	return nil
}

func (s *scheduleStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(stageSchedule)
}

type illustrateStage struct {
	backfiller *illustration.Backfiller
}

func (s *illustrateStage) SetLogger(logger *slog.Logger) { s.backfiller.SetLogger(logger) }

func (s *illustrateStage) Execute(ctx context.Context, b *stage.Batch) error {
	res, err := s.backfiller.Backfill(ctx, b.Date)
	if err != nil {
		return err
	}
	if res.Disabled {
		b.Record("illustrationsDisabled", true)
		return nil
	}
	b.Record("illustrated", res.Illustrated)
	b.Record("illustrationFailures", res.Failed)
	return nil
}

func (s *illustrateStage) HealthCheck(context.Context) stage.Health {
	if !s.backfiller.Enabled() {
		return stage.Degraded(stageIllustrate, "illustrations disabled")
	}
	return stage.Healthy(stageIllustrate)
}

type briefingStage struct {
	compiler   *briefing.Compiler
	summarizer bool
	regenerate bool
}

func (s *briefingStage) SetLogger(logger *slog.Logger) { s.compiler.SetLogger(logger) }

func (s *briefingStage) Execute(ctx context.Context, b *stage.Batch) error {
	compile := s.compiler.Compile
	if s.regenerate {
		compile = s.compiler.Regenerate
	}
	out, err := compile(ctx, b.Date)
	if err != nil {
		return err
	}
	b.Record("briefingCreated", out.Created)
	b.Record("briefingFallback", out.Fallback)
	if out.Briefing != nil {
		b.Record("featured", len(out.Briefing.FeaturedArticleIDs))
	}
	return nil
}

func (s *briefingStage) HealthCheck(context.Context) stage.Health {
	if !s.summarizer {
		return stage.Degraded(stageBriefing, "no LLM key; template briefings only")
	}
	return stage.Healthy(stageBriefing)
}

func (p *Pipeline) handler(name string) (stage.Handler, error) {
	h, ok := p.stages[name]
	if !ok {
		return nil, fmt.Errorf("stage %q not registered", name)
	}
	return h, nil
}
