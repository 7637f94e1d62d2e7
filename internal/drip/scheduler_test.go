package drip_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"newsboy/internal/drip"
	"newsboy/internal/logging"
	"newsboy/internal/store"
	"newsboy/internal/testsupport"
)

var (
	now   = time.Date(2026, 6, 10, 0, 5, 0, 0, time.UTC)
	today = time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	curve = drip.Curve{MaxDaily: 24, InitialCount: 10, PerHourRate: 2}
)

type countingRescorer struct{ calls int }

func (c *countingRescorer) Run(context.Context, time.Time) (int, error) {
	c.calls++
	return 0, nil
}

func seed(t *testing.T, n int) (*store.Store, []store.Article) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	src := testsupport.MustAddSource(t, st, "S", "https://s.example/feed")
	arts := make([]store.Article, 0, n)
	for i := 0; i < n; i++ {
		score := float64(n-i) / float64(n)
		arts = append(arts, testsupport.MustInsertArticles(t, st, src, fmt.Sprintf("item%02d", i), 1, now.Add(-time.Hour), testsupport.WithScore(score))...)
	}
	return st, arts
}

func TestScheduleThirtyItemsFollowsCurve(t *testing.T) {
	st, arts := seed(t, 30)
	ctx := context.Background()
	sched := drip.NewScheduler(st, curve, 7, nil, logging.NewNop())

	res, err := sched.Schedule(ctx, today, now)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if res.Slots != 24 || res.Skipped || res.LastHour != 7 {
		t.Fatalf("unexpected result %+v", res)
	}

	slots, err := st.SlotsForDay(ctx, today)
	if err != nil {
		t.Fatalf("SlotsForDay: %v", err)
	}
	if len(slots) != 24 {
		t.Fatalf("expected 24 slots, got %d", len(slots))
	}
	for i, slot := range slots {
		if slot.Position != i {
			t.Fatalf("positions must be dense, slot %d has position %d", i, slot.Position)
		}
		if slot.ArticleID != arts[i].ID {
			t.Fatalf("position %d should hold the %d-th best article", i, i)
		}
		want := 0
		if i >= 10 {
			want = (i-10)/2 + 1
		}
		if slot.RevealHour != want {
			t.Fatalf("position %d: want hour %d got %d", i, want, slot.RevealHour)
		}
	}
	if slots[23].RevealHour != 7 || slots[12].RevealHour != 2 || slots[9].RevealHour != 0 {
		t.Fatalf("unexpected curve anchors: %d %d %d", slots[9].RevealHour, slots[12].RevealHour, slots[23].RevealHour)
	}
}

func TestScheduleIsIdempotentPerDay(t *testing.T) {
	st, _ := seed(t, 5)
	ctx := context.Background()
	sched := drip.NewScheduler(st, curve, 7, nil, logging.NewNop())

	if _, err := sched.Schedule(ctx, today, now); err != nil {
		t.Fatalf("first Schedule: %v", err)
	}
	before, _ := st.SlotsForDay(ctx, today)

	res, err := sched.Schedule(ctx, today.Add(3*time.Hour), now)
	if err != nil {
		t.Fatalf("second Schedule: %v", err)
	}
	if !res.Skipped || res.Slots != 5 {
		t.Fatalf("expected skip with existing count, got %+v", res)
	}
	after, _ := st.SlotsForDay(ctx, today)
	if len(after) != len(before) {
		t.Fatalf("second call changed the plan: %d -> %d", len(before), len(after))
	}
	for i := range after {
		if after[i].ArticleID != before[i].ArticleID || after[i].RevealHour != before[i].RevealHour {
			t.Fatalf("slot %d changed", i)
		}
	}
}

func TestScheduleDoesNotReuseArticlesAcrossDays(t *testing.T) {
	st, _ := seed(t, 30)
	ctx := context.Background()
	sched := drip.NewScheduler(st, curve, 7, nil, logging.NewNop())

	if _, err := sched.Schedule(ctx, today, now); err != nil {
		t.Fatalf("Schedule today: %v", err)
	}
	tomorrow := today.AddDate(0, 0, 1)
	res, err := sched.Schedule(ctx, tomorrow, now.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Schedule tomorrow: %v", err)
	}
	if res.Slots != 6 {
		t.Fatalf("expected remaining 6 articles scheduled, got %d", res.Slots)
	}

	seen := map[int64]bool{}
	for _, day := range []time.Time{today, tomorrow} {
		slots, _ := st.SlotsForDay(ctx, day)
		for _, slot := range slots {
			if seen[slot.ArticleID] {
				t.Fatalf("article %d scheduled twice", slot.ArticleID)
			}
			seen[slot.ArticleID] = true
		}
	}
}

func TestScheduleWithNoCandidatesIsNotAnError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sched := drip.NewScheduler(st, curve, 7, nil, logging.NewNop())

	res, err := sched.Schedule(context.Background(), today, now)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if res.Slots != 0 || res.Skipped {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRegenerateRescoresAndReselects(t *testing.T) {
	st, arts := seed(t, 12)
	ctx := context.Background()
	rescorer := &countingRescorer{}
	sched := drip.NewScheduler(st, drip.Curve{MaxDaily: 4, InitialCount: 2, PerHourRate: 1}, 7, rescorer, logging.NewNop())

	if _, err := sched.Schedule(ctx, today, now); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	res, err := sched.Regenerate(ctx, today, now)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if rescorer.calls != 1 {
		t.Fatalf("expected one rescore, got %d", rescorer.calls)
	}
	if res.Removed != 4 || res.Slots != 4 {
		t.Fatalf("unexpected regenerate result %+v", res)
	}
	slots, _ := st.SlotsForDay(ctx, today)
	if slots[0].ArticleID != arts[0].ID {
		t.Fatal("regenerate must be free to reuse the day's own articles")
	}
	if slots[3].RevealHour != 2 {
		t.Fatalf("expected curve applied on regenerate, got hour %d", slots[3].RevealHour)
	}
}
