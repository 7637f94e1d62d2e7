package briefing

import (
	"context"
	"time"

	"newsboy/internal/store"
)

const previewChars = 100

// View is a briefing with its featured articles and neighbouring dates.
type View struct {
	Briefing         store.Briefing  `json:"briefing"`
	FeaturedArticles []store.Article `json:"featuredArticles"`
	PreviousDate     string          `json:"previousDate,omitempty"`
	NextDate         string          `json:"nextDate,omitempty"`
	IsToday          bool            `json:"isToday"`
}

// Summary is a list entry for the history browser.
type Summary struct {
	ID          int64     `json:"id"`
	Date        string    `json:"date"`
	Preview     string    `json:"preview"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Load returns the view for day, or nil when no briefing exists.
func Load(ctx context.Context, st *store.Store, day, now time.Time) (*View, error) {
	b, err := st.GetBriefing(ctx, day)
	if err != nil || b == nil {
		return nil, err
	}
	articles, err := st.ArticlesByIDs(ctx, b.FeaturedArticleIDs)
	if err != nil {
		return nil, err
	}
	if articles == nil {
		articles = []store.Article{}
	}
	prev, next, err := st.AdjacentBriefingDates(ctx, day)
	if err != nil {
		return nil, err
	}
	loc := st.Location()
	view := &View{
		Briefing:         *b,
		FeaturedArticles: articles,
		IsToday:          store.DayOf(now, loc).Equal(b.Date),
	}
	if prev != nil {
		view.PreviousDate = prev.Format("2006-01-02")
	}
	if next != nil {
		view.NextDate = next.Format("2006-01-02")
	}
	return view, nil
}

// List returns every briefing newest first with a short preview.
func List(ctx context.Context, st *store.Store) ([]Summary, error) {
	briefings, err := st.ListBriefings(ctx, 0)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(briefings))
	for _, b := range briefings {
		out = append(out, Summary{
			ID:          b.ID,
			Date:        b.Date.Format("2006-01-02"),
			Preview:     preview(b.SummaryText),
			GeneratedAt: b.GeneratedAt,
		})
	}
	return out, nil
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewChars {
		return text
	}
	return string(runes[:previewChars]) + "..."
}
