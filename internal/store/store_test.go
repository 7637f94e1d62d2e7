package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"newsboy/internal/prefs"
	"newsboy/internal/store"
	"newsboy/internal/testsupport"
)

func TestOpenCreatesSchemaAndReopens(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	health, err := st.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.IntegrityCheck || health.SchemaVersion != 1 {
		t.Fatalf("unexpected health: %+v", health)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	if reopened.Path() != cfg.Paths.DatabasePath {
		t.Fatalf("unexpected path %q", reopened.Path())
	}
}

func TestInsertArticleDeduplicatesByURL(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	src := testsupport.MustAddSource(t, st, "Example", "https://example.com/feed")

	first := store.Article{URL: "https://example.com/a", Title: "A", SourceID: src.ID, ContentType: store.ContentMixed, DisplayMode: store.DisplayCrayon}
	inserted, err := st.InsertArticle(ctx, &first)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	if first.ID == 0 {
		t.Fatal("expected id assigned")
	}

	dup := store.Article{URL: "https://example.com/a", Title: "A again", SourceID: src.ID, ContentType: store.ContentArticle}
	inserted, err = st.InsertArticle(ctx, &dup)
	if err != nil {
		t.Fatalf("duplicate insert returned error: %v", err)
	}
	if inserted {
		t.Fatal("duplicate url must not insert")
	}

	got, err := st.GetArticle(ctx, first.ID)
	if err != nil || got == nil {
		t.Fatalf("GetArticle: %v %v", got, err)
	}
	if got.Title != "A" {
		t.Fatalf("original row must be untouched, got title %q", got.Title)
	}
	if got.ContentType != store.ContentArticle {
		t.Fatalf("mixed must be stored as article, got %q", got.ContentType)
	}
	if got.SourceName != "Example" {
		t.Fatalf("expected joined source name, got %q", got.SourceName)
	}
}

func TestSourceLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	src := testsupport.MustAddSource(t, st, "Zeta", "https://zeta.example/feed")
	testsupport.MustAddSource(t, st, "alpha", "https://alpha.example/feed")

	if _, err := st.AddSource(ctx, store.Source{Name: "Zeta 2", FeedURL: "https://zeta.example/feed"}); !errors.Is(err, store.ErrDuplicateSource) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	if err := st.SetSourceEnabled(ctx, src.ID, false); err != nil {
		t.Fatalf("SetSourceEnabled: %v", err)
	}
	enabled, err := st.ListSources(ctx, true)
	if err != nil {
		t.Fatalf("ListSources: %v", err)
	}
	if len(enabled) != 1 || enabled[0].Name != "alpha" {
		t.Fatalf("expected only alpha enabled, got %+v", enabled)
	}
	all, _ := st.ListSources(ctx, false)
	if len(all) != 2 || all[0].Name != "alpha" {
		t.Fatalf("expected case-insensitive name order, got %+v", all)
	}

	if err := st.UpdateSourceMeta(ctx, src.ID, "Zeta Times", "https://zeta.example"); err != nil {
		t.Fatalf("UpdateSourceMeta: %v", err)
	}
	refreshed, _ := st.GetSource(ctx, src.ID)
	if refreshed.Name != "Zeta Times" || refreshed.SiteURL != "https://zeta.example" {
		t.Fatalf("unexpected refreshed source %+v", refreshed)
	}
	if err := st.SetSourceEnabled(ctx, 9999, true); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows for unknown source, got %v", err)
	}
}

func TestDeleteSourceCascades(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	src := testsupport.MustAddSource(t, st, "Gone", "https://gone.example/feed")
	arts := testsupport.MustInsertArticles(t, st, src, "gone", 2, time.Now())
	day := store.DayOf(time.Now(), st.Location())
	if err := st.InsertSlots(ctx, day, []store.Slot{{ArticleID: arts[0].ID, Position: 0}}); err != nil {
		t.Fatalf("InsertSlots: %v", err)
	}

	if err := st.DeleteSource(ctx, src.ID); err != nil {
		t.Fatalf("DeleteSource: %v", err)
	}
	if got, _ := st.GetArticle(ctx, arts[0].ID); got != nil {
		t.Fatal("expected articles removed with source")
	}
	if count, _ := st.SlotCount(ctx, day); count != 0 {
		t.Fatalf("expected slots removed with articles, got %d", count)
	}
}

func TestScheduleCandidatesOrderingAndExclusion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	src := testsupport.MustAddSource(t, st, "S", "https://s.example/feed")
	now := time.Now()

	older := now.Add(-48 * time.Hour)
	newer := now.Add(-1 * time.Hour)
	low := testsupport.MustInsertArticles(t, st, src, "low", 1, now, testsupport.WithScore(0.2))
	tieOld := testsupport.MustInsertArticles(t, st, src, "tie-old", 1, now, testsupport.WithScore(0.8), testsupport.WithPublished(older))
	tieNew := testsupport.MustInsertArticles(t, st, src, "tie-new", 1, now, testsupport.WithScore(0.8), testsupport.WithPublished(newer))
	stale := testsupport.MustInsertArticles(t, st, src, "stale", 1, now.AddDate(0, 0, -10), testsupport.WithScore(1))

	got, err := st.ScheduleCandidates(ctx, now.AddDate(0, 0, -7), 10, true)
	if err != nil {
		t.Fatalf("ScheduleCandidates: %v", err)
	}
	want := []int64{tieNew[0].ID, tieOld[0].ID, low[0].ID}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %d got %d", i, id, got[i].ID)
		}
	}
	for _, art := range got {
		if art.ID == stale[0].ID {
			t.Fatal("articles outside the window must be excluded")
		}
	}

	yesterday := store.DayOf(now, st.Location()).AddDate(0, 0, -1)
	if err := st.InsertSlots(ctx, yesterday, []store.Slot{{ArticleID: tieNew[0].ID, Position: 0}}); err != nil {
		t.Fatalf("InsertSlots: %v", err)
	}
	got, _ = st.ScheduleCandidates(ctx, now.AddDate(0, 0, -7), 10, true)
	for _, art := range got {
		if art.ID == tieNew[0].ID {
			t.Fatal("scheduled article must be excluded")
		}
	}
	got, _ = st.ScheduleCandidates(ctx, now.AddDate(0, 0, -7), 10, false)
	if len(got) != 3 {
		t.Fatalf("expected exclusion disabled to return 3, got %d", len(got))
	}
}

func TestSlotsInsertGuardAndReveal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	src := testsupport.MustAddSource(t, st, "S", "https://s.example/feed")
	arts := testsupport.MustInsertArticles(t, st, src, "slot", 3, time.Now())
	day := time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)

	slots := []store.Slot{
		{ArticleID: arts[0].ID, Position: 0, RevealHour: 0},
		{ArticleID: arts[1].ID, Position: 1, RevealHour: 1},
		{ArticleID: arts[2].ID, Position: 2, RevealHour: 5},
	}
	if err := st.InsertSlots(ctx, day, slots); err != nil {
		t.Fatalf("InsertSlots: %v", err)
	}
	if err := st.InsertSlots(ctx, day, slots[:1]); !errors.Is(err, store.ErrSlotsExist) {
		t.Fatalf("expected ErrSlotsExist, got %v", err)
	}

	revealed, err := st.RevealedSlots(ctx, day, 1)
	if err != nil {
		t.Fatalf("RevealedSlots: %v", err)
	}
	if len(revealed) != 2 || revealed[0].Position != 0 || revealed[1].Position != 1 {
		t.Fatalf("unexpected revealed slots %+v", revealed)
	}
	if revealed[1].Article.ID != arts[1].ID || !revealed[1].Date.Equal(store.DayOf(day, time.UTC)) {
		t.Fatalf("unexpected joined slot %+v", revealed[1])
	}

	all, _ := st.SlotsForDay(ctx, day)
	if len(all) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(all))
	}
	removed, err := st.DeleteSlots(ctx, day)
	if err != nil || removed != 3 {
		t.Fatalf("DeleteSlots: removed=%d err=%v", removed, err)
	}
}

func TestPreferencesLazyDefaultAndSave(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	p, err := st.GetPreferences(ctx)
	if err != nil {
		t.Fatalf("GetPreferences: %v", err)
	}
	if len(p.Interests) != 0 || !p.PreferVisual || p.PreferLongForm {
		t.Fatalf("unexpected defaults %+v", p)
	}

	p.Interests = prefs.WeightMap{"robots": 0.9}
	p.SourceWeights = prefs.WeightMap{"1": -0.5}
	p.MoodBalance = 3
	if err := st.SavePreferences(ctx, p); err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}
	got, _ := st.GetPreferences(ctx)
	if got.Interests["robots"] != 0.9 || got.SourceWeights["1"] != -0.5 {
		t.Fatalf("unexpected saved maps %+v", got)
	}
	if got.MoodBalance != 1 {
		t.Fatalf("expected mood clamped on save, got %v", got.MoodBalance)
	}
}

func TestBriefingsUniquePerDay(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	day := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)

	created, err := st.CreateBriefing(ctx, &store.Briefing{Date: day, SummaryText: "first", FeaturedArticleIDs: []int64{3, 1, 2}})
	if err != nil || !created {
		t.Fatalf("CreateBriefing: created=%v err=%v", created, err)
	}
	created, err = st.CreateBriefing(ctx, &store.Briefing{Date: day, SummaryText: "second"})
	if err != nil || created {
		t.Fatalf("second CreateBriefing should be a no-op: created=%v err=%v", created, err)
	}
	got, err := st.GetBriefing(ctx, day.Add(10*time.Hour))
	if err != nil || got == nil {
		t.Fatalf("GetBriefing: %v %v", got, err)
	}
	if got.SummaryText != "first" {
		t.Fatalf("expected first briefing kept, got %q", got.SummaryText)
	}
	if len(got.FeaturedArticleIDs) != 3 || got.FeaturedArticleIDs[0] != 3 {
		t.Fatalf("featured order lost: %v", got.FeaturedArticleIDs)
	}

	for _, offset := range []int{-3, 2} {
		d := day.AddDate(0, 0, offset)
		if _, err := st.CreateBriefing(ctx, &store.Briefing{Date: d, SummaryText: "x"}); err != nil {
			t.Fatalf("CreateBriefing %v: %v", d, err)
		}
	}
	prev, next, err := st.AdjacentBriefingDates(ctx, day)
	if err != nil {
		t.Fatalf("AdjacentBriefingDates: %v", err)
	}
	if prev == nil || prev.Day() != 29 || next == nil || next.Day() != 4 {
		t.Fatalf("unexpected neighbours prev=%v next=%v", prev, next)
	}
	list, _ := st.ListBriefings(ctx, 0)
	if len(list) != 3 || list[0].Date.Day() != 4 {
		t.Fatalf("expected newest first, got %+v", list)
	}

	deleted, err := st.DeleteBriefing(ctx, day)
	if err != nil || !deleted {
		t.Fatalf("DeleteBriefing: %v %v", deleted, err)
	}
	if got, _ := st.GetBriefing(ctx, day); got != nil {
		t.Fatal("expected briefing deleted")
	}
}

func TestRecentTuningLogsOldestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 7; i++ {
		w := float64(i+1) / 10
		entry := &store.TuningLog{
			Input:         string(rune('a' + i)),
			ParsedChanges: prefs.Changes{Interests: prefs.WeightMap{"x": w}},
			ResponseText:  "ok",
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		if err := st.AppendTuningLog(ctx, entry); err != nil {
			t.Fatalf("AppendTuningLog: %v", err)
		}
	}
	logs, err := st.RecentTuningLogs(ctx, 5)
	if err != nil {
		t.Fatalf("RecentTuningLogs: %v", err)
	}
	if len(logs) != 5 {
		t.Fatalf("expected 5 logs, got %d", len(logs))
	}
	if logs[0].Input != "c" || logs[4].Input != "g" {
		t.Fatalf("expected c..g oldest first, got %q..%q", logs[0].Input, logs[4].Input)
	}
	if logs[4].ParsedChanges.Interests["x"] != 0.7 {
		t.Fatalf("parsed changes lost: %+v", logs[4].ParsedChanges)
	}
}

func TestStateAndLastBatchDate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	last, err := st.LastBatchDate(ctx)
	if err != nil || last != nil {
		t.Fatalf("expected no marker, got %v %v", last, err)
	}
	day := time.Date(2026, 7, 8, 23, 59, 0, 0, time.UTC)
	if err := st.SetLastBatchDate(ctx, day); err != nil {
		t.Fatalf("SetLastBatchDate: %v", err)
	}
	last, err = st.LastBatchDate(ctx)
	if err != nil || last == nil {
		t.Fatalf("LastBatchDate: %v %v", last, err)
	}
	if !last.Equal(time.Date(2026, 7, 8, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected marker %v", last)
	}
}

func TestRunsLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	now := time.Now()

	if err := st.StartRun(ctx, "run-1", "run-full", now, now); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := st.StartRun(ctx, "run-2", "generate-briefing", now, now.Add(time.Second)); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := st.FinishRun(ctx, "run-1", store.RunCompleted, "", map[string]any{"slots": 24}, now.Add(time.Minute)); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	run, err := st.GetRun(ctx, "run-1")
	if err != nil || run == nil {
		t.Fatalf("GetRun: %v %v", run, err)
	}
	if run.Status != store.RunCompleted || run.FinishedAt == nil || run.Stats["slots"] != float64(24) {
		t.Fatalf("unexpected run %+v", run)
	}

	interrupted, err := st.FailInterruptedRuns(ctx)
	if err != nil || interrupted != 1 {
		t.Fatalf("FailInterruptedRuns: %d %v", interrupted, err)
	}
	runs, _ := st.ListRuns(ctx, 10)
	if len(runs) != 2 || runs[0].ID != "run-2" || runs[0].Status != store.RunFailed {
		t.Fatalf("unexpected runs %+v", runs)
	}
}

func TestSetIllustrationFlipsDisplayMode(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	src := testsupport.MustAddSource(t, st, "S", "https://s.example/feed")
	arts := testsupport.MustInsertArticles(t, st, src, "ill", 1, time.Now(), testsupport.WithImage("", 0, 0))

	if err := st.SetIllustration(ctx, arts[0].ID, "https://img.example/crayon.png"); err != nil {
		t.Fatalf("SetIllustration: %v", err)
	}
	got, _ := st.GetArticle(ctx, arts[0].ID)
	if got.IllustrationURL != "https://img.example/crayon.png" || got.DisplayMode != store.DisplayCrayon {
		t.Fatalf("unexpected article %+v", got)
	}
	counts, err := st.Counts(ctx)
	if err != nil || counts.Articles != 1 || counts.Sources != 1 {
		t.Fatalf("unexpected counts %+v %v", counts, err)
	}
}
