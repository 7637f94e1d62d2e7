package ingest_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"newsboy/internal/feeds"
	"newsboy/internal/ingest"
	"newsboy/internal/logging"
	"newsboy/internal/store"
	"newsboy/internal/testsupport"
)

func newIngester(t *testing.T, st *store.Store, now time.Time) *ingest.Ingester {
	t.Helper()
	fetcher := feeds.NewFetcher(feeds.Config{Timeout: 5 * time.Second})
	return ingest.New(st, fetcher, logging.NewNop(),
		ingest.WithConcurrency(2),
		ingest.WithClock(func() time.Time { return now }),
	)
}

func TestRunDeduplicatesAcrossPasses(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	server := testsupport.NewFeedServer(t)
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	feedURL := server.Set("/a", testsupport.RSS("Widget Weekly", "https://widget.example",
		testsupport.FeedItem{Title: "One", Link: "https://widget.example/1", ImageURL: "https://widget.example/1.jpg", ImageWidth: 1600, ImageHeight: 900},
		testsupport.FeedItem{Title: "Two", Link: "https://widget.example/2"},
	))
	testsupport.MustAddSource(t, st, "Widget Weekly", feedURL)

	ing := newIngester(t, st, now)
	first, err := ing.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if first.New != 2 || first.Skipped != 0 || first.FailedSources != 0 {
		t.Fatalf("unexpected first summary %+v", first)
	}

	second, err := ing.Run(ctx)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if second.New != 0 || second.Skipped != 2 {
		t.Fatalf("expected every item skipped on second pass, got %+v", second)
	}

	arts, err := st.ArticlesFetchedSince(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("ArticlesFetchedSince: %v", err)
	}
	if len(arts) != 2 {
		t.Fatalf("expected 2 stored articles, got %d", len(arts))
	}
	modes := map[string]store.DisplayMode{}
	for _, art := range arts {
		modes[art.URL] = art.DisplayMode
		if !art.FetchedAt.Equal(now) {
			t.Fatalf("expected injected fetch time, got %v", art.FetchedAt)
		}
	}
	if modes["https://widget.example/1"] != store.DisplayWide {
		t.Fatalf("expected wide card for 16:9 image, got %q", modes["https://widget.example/1"])
	}
	if modes["https://widget.example/2"] != store.DisplayCrayon {
		t.Fatalf("expected crayon card for imageless item, got %q", modes["https://widget.example/2"])
	}
}

func TestRunIsolatesFailingSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	server := testsupport.NewFeedServer(t)
	ctx := context.Background()

	good := server.Set("/good", testsupport.RSS("Good", "", testsupport.FeedItem{Title: "Fine", Link: "https://good.example/1"}))
	testsupport.MustAddSource(t, st, "Good", good)
	testsupport.MustAddSource(t, st, "Broken", server.URL+"/broken")

	summary, err := newIngester(t, st, time.Now()).Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Sources != 2 || summary.FailedSources != 1 || summary.New != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	for _, res := range summary.Results {
		if res.SourceName == "Broken" && res.Err == nil {
			t.Fatal("expected broken source to carry its error")
		}
		if res.SourceName == "Good" && res.Err != nil {
			t.Fatalf("good source should succeed, got %v", res.Err)
		}
	}
}

// rejectTitle installs a trigger that makes the database refuse any article
// with the given title.
func rejectTitle(t *testing.T, st *store.Store, title string) {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+st.Path()+"?_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	defer db.Close()
	stmt := `CREATE TRIGGER reject_title BEFORE INSERT ON articles
        WHEN NEW.title = '` + title + `'
        BEGIN SELECT RAISE(ABORT, 'article rejected'); END`
	if _, err := db.Exec(stmt); err != nil {
		t.Fatalf("create trigger: %v", err)
	}
}

func TestRunCountsItemFailuresAndKeepsGoing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	server := testsupport.NewFeedServer(t)
	ctx := context.Background()
	rejectTitle(t, st, "Poison")

	mixed := server.Set("/mixed", testsupport.RSS("Mixed Bag", "",
		testsupport.FeedItem{Title: "First", Link: "https://bag.example/1"},
		testsupport.FeedItem{Title: "Poison", Link: "https://bag.example/2"},
		testsupport.FeedItem{Title: "Third", Link: "https://bag.example/3"},
	))
	other := server.Set("/other", testsupport.RSS("Other", "", testsupport.FeedItem{Title: "Elsewhere", Link: "https://other.example/1"}))
	testsupport.MustAddSource(t, st, "Mixed Bag", mixed)
	testsupport.MustAddSource(t, st, "Other", other)

	summary, err := newIngester(t, st, time.Now()).Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.New != 3 || summary.Skipped != 0 || summary.Errored != 1 || summary.FailedSources != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	for _, res := range summary.Results {
		if res.Err != nil {
			t.Fatalf("item failures must not fail the source: %+v", res)
		}
		if res.SourceName == "Mixed Bag" && (res.New != 2 || res.Errored != 1) {
			t.Fatalf("unexpected per-source counts %+v", res)
		}
	}

	arts, err := st.RecentArticles(ctx, 10)
	if err != nil {
		t.Fatalf("RecentArticles: %v", err)
	}
	stored := map[string]bool{}
	for _, art := range arts {
		stored[art.URL] = true
	}
	for _, url := range []string{"https://bag.example/1", "https://bag.example/3", "https://other.example/1"} {
		if !stored[url] {
			t.Fatalf("expected %s stored after the failed item, got %v", url, stored)
		}
	}
	if stored["https://bag.example/2"] {
		t.Fatal("rejected item must not be stored")
	}
}

func TestRunRefreshesSourceNameFromFeed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	server := testsupport.NewFeedServer(t)
	ctx := context.Background()

	feedURL := server.Set("/renamed", testsupport.RSS("Proper Title", "https://proper.example"))
	src := testsupport.MustAddSource(t, st, "placeholder", feedURL)

	if _, err := newIngester(t, st, time.Now()).Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	got, err := st.GetSource(ctx, src.ID)
	if err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	if got.Name != "Proper Title" || got.SiteURL != "https://proper.example" {
		t.Fatalf("expected refreshed meta, got %+v", got)
	}
}

func TestRunSkipsDisabledSources(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	server := testsupport.NewFeedServer(t)
	ctx := context.Background()

	feedURL := server.Set("/off", testsupport.RSS("Off", ""))
	src := testsupport.MustAddSource(t, st, "Off", feedURL)
	if err := st.SetSourceEnabled(ctx, src.ID, false); err != nil {
		t.Fatalf("SetSourceEnabled: %v", err)
	}

	summary, err := newIngester(t, st, time.Now()).Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Sources != 0 || server.Requests("/off") != 0 {
		t.Fatalf("disabled source must not be fetched: %+v requests=%d", summary, server.Requests("/off"))
	}
}

func TestStoreItemsStoresMixedAsArticle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	src, err := st.AddSource(ctx, store.Source{Name: "Mix", FeedURL: "https://mix.example/feed", ContentType: store.ContentMixed, Enabled: true})
	if err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	ing := newIngester(t, st, time.Now())
	items := []feeds.Item{
		{URL: "https://mix.example/1", Title: "a"},
		{URL: "https://mix.example/1", Title: "a again"},
		{URL: "", Title: "dropped"},
	}
	res := ing.StoreItems(ctx, *src, items)
	if res.New != 1 || res.Skipped != 1 || res.Errored != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	arts, _ := st.RecentArticles(ctx, 10)
	if len(arts) != 1 || arts[0].ContentType != store.ContentArticle {
		t.Fatalf("expected one article-typed item, got %+v", arts)
	}
}
