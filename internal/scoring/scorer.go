package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"newsboy/internal/logging"
	"newsboy/internal/store"
)

const defaultLookbackDays = 7

// Scorer rescores every article in the lookback window.
type Scorer struct {
	store        *store.Store
	logger       *slog.Logger
	lookbackDays int
}

// NewScorer constructs a scorer. lookbackDays <= 0 uses seven days.
func NewScorer(st *store.Store, lookbackDays int, logger *slog.Logger) *Scorer {
	if lookbackDays <= 0 {
		lookbackDays = defaultLookbackDays
	}
	return &Scorer{store: st, lookbackDays: lookbackDays, logger: logging.NewComponentLogger(logger, "scoring")}
}

// SetLogger swaps the logger.
func (s *Scorer) SetLogger(logger *slog.Logger) {
	s.logger = logging.NewComponentLogger(logger, "scoring")
}

// Run recomputes and stores scores for articles fetched in the window ending
// at now. It returns how many articles were scored.
func (s *Scorer) Run(ctx context.Context, now time.Time) (int, error) {
	p, err := s.store.GetPreferences(ctx)
	if err != nil {
		return 0, fmt.Errorf("load preferences: %w", err)
	}
	articles, err := s.store.ArticlesFetchedSince(ctx, now.AddDate(0, 0, -s.lookbackDays))
	if err != nil {
		return 0, fmt.Errorf("load scoring window: %w", err)
	}
	if len(articles) == 0 {
		s.logger.Info("no recent articles to score", logging.String(logging.FieldEventType, "score_empty"))
		return 0, nil
	}
	scores := make(map[int64]float64, len(articles))
	for _, art := range articles {
		scores[art.ID] = Score(art, art.SourceCategory, p, now)
	}
	if err := s.store.UpdateScores(ctx, scores); err != nil {
		return 0, fmt.Errorf("persist scores: %w", err)
	}
	s.logger.Info("articles scored",
		logging.String(logging.FieldEventType, "score_complete"),
		logging.Int("articles", len(articles)),
		logging.Int("interests", len(p.Interests)),
		logging.Int("source_weights", len(p.SourceWeights)),
	)
	return len(articles), nil
}
