// Package feedview projects the day's drip plan into what a reader may see
// right now.
package feedview

import (
	"context"
	"time"

	"newsboy/internal/store"
)

// DefaultFallbackLimit caps the ungated listing shown before the first plan
// exists.
const DefaultFallbackLimit = 50

// Entry is one visible item.
type Entry struct {
	store.Article
	RevealHour *int `json:"revealHour,omitempty"`
	Position   *int `json:"position,omitempty"`
}

// View is the reader-facing feed at a point in time.
type View struct {
	Date           string  `json:"date"`
	Articles       []Entry `json:"articles"`
	Revealed       int     `json:"revealed"`
	Total          int     `json:"total"`
	NextRevealHour *int    `json:"nextRevealHour,omitempty"`
	Fallback       bool    `json:"fallback"`
}

// Today returns the slots of now's day whose reveal hour has passed. When
// the day has no plan yet, the most recently fetched items are listed
// instead.
func Today(ctx context.Context, st *store.Store, now time.Time, fallbackLimit int) (*View, error) {
	loc := st.Location()
	local := now.In(loc)
	day := store.DayOf(local, loc)

	all, err := st.SlotsForDay(ctx, day)
	if err != nil {
		return nil, err
	}
	view := &View{Date: day.Format("2006-01-02"), Articles: []Entry{}}
	if len(all) == 0 {
		if fallbackLimit <= 0 {
			fallbackLimit = DefaultFallbackLimit
		}
		recent, err := st.RecentArticles(ctx, fallbackLimit)
		if err != nil {
			return nil, err
		}
		for _, art := range recent {
			view.Articles = append(view.Articles, Entry{Article: art})
		}
		view.Revealed = len(view.Articles)
		view.Total = len(view.Articles)
		view.Fallback = true
		return view, nil
	}

	hour := local.Hour()
	view.Total = len(all)
	for _, slot := range all {
		if slot.RevealHour > hour {
			if view.NextRevealHour == nil {
				next := slot.RevealHour
				view.NextRevealHour = &next
			}
			continue
		}
		reveal, pos := slot.RevealHour, slot.Position
		view.Articles = append(view.Articles, Entry{Article: slot.Article, RevealHour: &reveal, Position: &pos})
	}
	view.Revealed = len(view.Articles)
	return view, nil
}
