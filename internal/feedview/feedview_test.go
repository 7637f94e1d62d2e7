package feedview_test

import (
	"context"
	"testing"
	"time"

	"newsboy/internal/feedview"
	"newsboy/internal/store"
	"newsboy/internal/testsupport"
)

func TestTodayGatesByRevealHour(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	day := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	src := testsupport.MustAddSource(t, st, "Wire", "https://wire.example/feed")
	arts := testsupport.MustInsertArticles(t, st, src, "view", 6, day.Add(-time.Hour))

	hours := []int{0, 0, 1, 1, 2, 2}
	slots := make([]store.Slot, 0, len(arts))
	for i, art := range arts {
		slots = append(slots, store.Slot{ArticleID: art.ID, RevealHour: hours[i], Position: i})
	}
	if err := st.InsertSlots(ctx, day, slots); err != nil {
		t.Fatalf("InsertSlots: %v", err)
	}

	view, err := feedview.Today(ctx, st, day.Add(90*time.Minute), 0)
	if err != nil {
		t.Fatalf("Today: %v", err)
	}
	if view.Fallback || view.Total != 6 || view.Revealed != 4 {
		t.Fatalf("unexpected view counts %+v", view)
	}
	if view.NextRevealHour == nil || *view.NextRevealHour != 2 {
		t.Fatalf("expected next reveal at hour 2, got %v", view.NextRevealHour)
	}
	for i, entry := range view.Articles {
		if entry.ID != arts[i].ID || *entry.Position != i {
			t.Fatalf("entry %d out of order: %+v", i, entry)
		}
		if entry.SourceName != "Wire" {
			t.Fatalf("expected joined source name, got %q", entry.SourceName)
		}
	}

	late, err := feedview.Today(ctx, st, day.Add(23*time.Hour), 0)
	if err != nil {
		t.Fatalf("Today late: %v", err)
	}
	if late.Revealed != 6 || late.NextRevealHour != nil {
		t.Fatalf("expected everything revealed late in the day, got %+v", late)
	}
}

func TestTodayFallsBackToRecentItems(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	now := time.Date(2026, 6, 10, 8, 0, 0, 0, time.UTC)
	src := testsupport.MustAddSource(t, st, "Wire", "https://wire.example/feed")
	testsupport.MustInsertArticles(t, st, src, "old", 2, now.Add(-48*time.Hour))
	fresh := testsupport.MustInsertArticles(t, st, src, "fresh", 2, now.Add(-time.Hour))

	view, err := feedview.Today(ctx, st, now, 3)
	if err != nil {
		t.Fatalf("Today: %v", err)
	}
	if !view.Fallback || len(view.Articles) != 3 {
		t.Fatalf("unexpected fallback view %+v", view)
	}
	if view.Articles[0].ID != fresh[1].ID || view.Articles[0].RevealHour != nil {
		t.Fatalf("expected newest article first without a slot, got %+v", view.Articles[0])
	}
}
