package briefing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"newsboy/internal/logging"
	"newsboy/internal/store"
)

const defaultFeaturedCount = 3

// Outcome describes one compile call.
type Outcome struct {
	Briefing *store.Briefing `json:"briefing"`
	Created  bool            `json:"created"`
	Fallback bool            `json:"fallback"`
}

// Compiler writes the day's briefing from its top slots.
type Compiler struct {
	store      *store.Store
	summarizer Summarizer
	featured   int
	now        func() time.Time
	logger     *slog.Logger
}

// NewCompiler constructs a compiler. A nil summarizer always uses the
// template.
func NewCompiler(st *store.Store, summarizer Summarizer, featured int, logger *slog.Logger) *Compiler {
	if featured <= 0 {
		featured = defaultFeaturedCount
	}
	return &Compiler{
		store:      st,
		summarizer: summarizer,
		featured:   featured,
		now:        time.Now,
		logger:     logging.NewComponentLogger(logger, "briefing"),
	}
}

// SetClock overrides the generatedAt clock.
func (c *Compiler) SetClock(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// SetLogger swaps the logger.
func (c *Compiler) SetLogger(logger *slog.Logger) {
	c.logger = logging.NewComponentLogger(logger, "briefing")
}

// Compile writes day's briefing unless one exists.
func (c *Compiler) Compile(ctx context.Context, day time.Time) (Outcome, error) {
	existing, err := c.store.GetBriefing(ctx, day)
	if err != nil {
		return Outcome{}, err
	}
	if existing != nil {
		c.logger.Info("briefing already exists",
			logging.String(logging.FieldEventType, "briefing_skip_existing"),
			logging.String("date", existing.Date.Format("2006-01-02")),
		)
		return Outcome{Briefing: existing}, nil
	}

	slots, err := c.store.SlotsForDay(ctx, day)
	if err != nil {
		return Outcome{}, fmt.Errorf("load slots: %w", err)
	}
	if len(slots) > c.featured {
		slots = slots[:c.featured]
	}
	items := make([]Input, 0, len(slots))
	ids := make([]int64, 0, len(slots))
	for _, slot := range slots {
		items = append(items, Input{Title: slot.Article.Title, Excerpt: slot.Article.Excerpt, URL: slot.Article.URL})
		ids = append(ids, slot.ArticleID)
	}

	text, fallback := c.summarize(ctx, items)
	b := &store.Briefing{
		Date:               store.DayOf(day, c.store.Location()),
		SummaryText:        text,
		FeaturedArticleIDs: ids,
		GeneratedAt:        c.now(),
	}
	created, err := c.store.CreateBriefing(ctx, b)
	if err != nil {
		return Outcome{}, err
	}
	if !created {
		// Another writer got there first; report theirs.
		existing, err := c.store.GetBriefing(ctx, day)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Briefing: existing}, nil
	}
	c.logger.Info("briefing compiled",
		logging.String(logging.FieldEventType, "briefing_compiled"),
		logging.String("date", b.Date.Format("2006-01-02")),
		logging.Int("featured", len(ids)),
		logging.Bool("fallback", fallback),
	)
	return Outcome{Briefing: b, Created: true, Fallback: fallback}, nil
}

// Regenerate deletes day's briefing and compiles it again.
func (c *Compiler) Regenerate(ctx context.Context, day time.Time) (Outcome, error) {
	if _, err := c.store.DeleteBriefing(ctx, day); err != nil {
		return Outcome{}, err
	}
	return c.Compile(ctx, day)
}

func (c *Compiler) summarize(ctx context.Context, items []Input) (string, bool) {
	if len(items) == 0 {
		return EmptyMessage, false
	}
	if c.summarizer == nil {
		return Fallback(items), true
	}
	text, err := c.summarizer.Summarize(ctx, items)
	if err != nil || text == "" {
		attrs := []logging.Attr{logging.String(logging.FieldImpact, "template briefing used")}
		if err != nil {
			attrs = append(logging.ErrorAttrs(err), attrs...)
		}
		logging.WarnWithContext(c.logger, "briefing summarizer failed", "briefing_fallback", attrs...)
		return Fallback(items), true
	}
	return text, false
}
