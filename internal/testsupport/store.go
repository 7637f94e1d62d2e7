package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"newsboy/internal/config"
	"newsboy/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// MustAddSource subscribes an enabled article source for tests.
func MustAddSource(t testing.TB, st *store.Store, name, feedURL string) *store.Source {
	t.Helper()

	src, err := st.AddSource(context.Background(), store.Source{
		Name:        name,
		FeedURL:     feedURL,
		ContentType: store.ContentArticle,
		Enabled:     true,
	})
	if err != nil {
		t.Fatalf("store.AddSource: %v", err)
	}
	return src
}

// ArticleOption customizes a seeded article.
type ArticleOption func(*store.Article)

// WithScore sets the relevance score.
func WithScore(score float64) ArticleOption {
	return func(a *store.Article) { a.RelevanceScore = score }
}

// WithImage sets a hero image.
func WithImage(url string, width, height int) ArticleOption {
	return func(a *store.Article) {
		a.HeroImageURL = url
		a.ImageWidth = width
		a.ImageHeight = height
		a.DisplayMode = store.DisplayStandard
	}
}

// WithPublished sets the publish time.
func WithPublished(t time.Time) ArticleOption {
	return func(a *store.Article) { a.PublishedAt = &t }
}

// WithExcerpt sets the excerpt.
func WithExcerpt(excerpt string) ArticleOption {
	return func(a *store.Article) { a.Excerpt = excerpt }
}

// MustInsertArticles seeds n image-less articles for src fetched at fetchedAt.
// URLs are unique per call via prefix.
func MustInsertArticles(t testing.TB, st *store.Store, src *store.Source, prefix string, n int, fetchedAt time.Time, opts ...ArticleOption) []store.Article {
	t.Helper()

	out := make([]store.Article, 0, n)
	for i := 0; i < n; i++ {
		art := store.Article{
			URL:         fmt.Sprintf("https://example.com/%s/%d", prefix, i),
			Title:       fmt.Sprintf("%s story %d", prefix, i),
			SourceID:    src.ID,
			FetchedAt:   fetchedAt,
			ContentType: store.ContentArticle,
			DisplayMode: store.DisplayCrayon,
		}
		for _, opt := range opts {
			opt(&art)
		}
		inserted, err := st.InsertArticle(context.Background(), &art)
		if err != nil {
			t.Fatalf("store.InsertArticle: %v", err)
		}
		if !inserted {
			t.Fatalf("article %s unexpectedly deduplicated", art.URL)
		}
		out = append(out, art)
	}
	return out
}
