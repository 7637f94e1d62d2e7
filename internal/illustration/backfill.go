package illustration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"newsboy/internal/logging"
	"newsboy/internal/services/replicate"
	"newsboy/internal/store"
)

// Generator produces an image URL for a model input. An empty URL with a nil
// error means the generator declined.
type Generator interface {
	Generate(ctx context.Context, input replicate.Input) (string, error)
}

// Result counts a backfill pass.
type Result struct {
	Disabled    bool `json:"disabled,omitempty"`
	Candidates  int  `json:"candidates"`
	Illustrated int  `json:"illustrated"`
	Failed      int  `json:"failed"`
	Declined    int  `json:"declined"`
}

// Backfiller illustrates a day's image-less slots one at a time.
type Backfiller struct {
	store  *store.Store
	gen    Generator
	delay  time.Duration
	sleep  func(context.Context, time.Duration) error
	logger *slog.Logger
}

// Option customizes a Backfiller.
type Option func(*Backfiller)

// WithSleeper overrides how the inter-call delay is waited out.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(b *Backfiller) {
		if sleep != nil {
			b.sleep = sleep
		}
	}
}

// NewBackfiller constructs a backfiller. A nil generator disables it.
func NewBackfiller(st *store.Store, gen Generator, delay time.Duration, logger *slog.Logger, opts ...Option) *Backfiller {
	b := &Backfiller{
		store:  st,
		gen:    gen,
		delay:  delay,
		sleep:  sleepContext,
		logger: logging.NewComponentLogger(logger, "illustration"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// SetLogger swaps the logger.
func (b *Backfiller) SetLogger(logger *slog.Logger) {
	b.logger = logging.NewComponentLogger(logger, "illustration")
}

// Enabled reports whether a generator is configured.
func (b *Backfiller) Enabled() bool {
	return b != nil && b.gen != nil
}

// Backfill illustrates the day's slots that have neither a feed image nor an
// earlier illustration. Only listing the slots can fail the call.
func (b *Backfiller) Backfill(ctx context.Context, day time.Time) (Result, error) {
	if !b.Enabled() {
		b.logger.Debug("illustrations disabled", logging.String(logging.FieldEventType, "illustration_disabled"))
		return Result{Disabled: true}, nil
	}
	slots, err := b.store.SlotsForDay(ctx, day)
	if err != nil {
		return Result{}, fmt.Errorf("load slots: %w", err)
	}

	var result Result
	for _, slot := range slots {
		art := slot.Article
		if art.HasImage() {
			continue
		}
		if result.Candidates > 0 && b.delay > 0 {
			if err := b.sleep(ctx, b.delay); err != nil {
				return result, err
			}
		}
		result.Candidates++
		b.illustrate(ctx, art, &result)
	}

	b.logger.Info("illustration backfill complete",
		logging.String(logging.FieldEventType, "illustration_complete"),
		logging.Int("candidates", result.Candidates),
		logging.Int("illustrated", result.Illustrated),
		logging.Int("failed", result.Failed),
		logging.Int("declined", result.Declined),
	)
	return result, nil
}

func (b *Backfiller) illustrate(ctx context.Context, art store.Article, result *Result) {
	logger := b.logger.With(logging.Args(logging.Int64("article_id", art.ID))...)
	input := Input(art.Title)
	url, err := b.gen.Generate(ctx, input)
	if err != nil {
		result.Failed++
		attrs := append(logging.ErrorAttrs(err),
			logging.String("title", art.Title),
			logging.String(logging.FieldImpact, "article keeps crayon placeholder"),
		)
		logging.WarnWithContext(logger, "illustration failed", "illustration_failed", attrs...)
		return
	}
	url = strings.TrimSpace(url)
	if url == "" {
		result.Declined++
		return
	}
	if err := b.store.SetIllustration(ctx, art.ID, url); err != nil {
		result.Failed++
		attrs := append(logging.ErrorAttrs(err), logging.String(logging.FieldImpact, "generated illustration discarded"))
		logging.WarnWithContext(logger, "store illustration failed", "illustration_store_failed", attrs...)
		return
	}
	result.Illustrated++
	logger.Debug("article illustrated", logging.String("subject", Subject(art.Title)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
