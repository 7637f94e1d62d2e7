package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"newsboy/internal/feeds"
	"newsboy/internal/logging"
	"newsboy/internal/services"
	"newsboy/internal/store"
)

const defaultConcurrency = 4

// FeedFetcher retrieves and parses one feed.
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) (*feeds.Feed, error)
}

// SourceResult counts what happened to one source's items.
type SourceResult struct {
	SourceID   int64  `json:"sourceId"`
	SourceName string `json:"sourceName"`
	New        int    `json:"new"`
	Skipped    int    `json:"skipped"`
	Errored    int    `json:"errored"`
	Err        error  `json:"-"`
}

// Summary aggregates a full ingestion pass.
type Summary struct {
	Sources       int            `json:"sources"`
	New           int            `json:"new"`
	Skipped       int            `json:"skipped"`
	Errored       int            `json:"errored"`
	FailedSources int            `json:"failedSources"`
	Results       []SourceResult `json:"results"`
}

// Ingester stores new items from every enabled source.
type Ingester struct {
	store       *store.Store
	fetcher     FeedFetcher
	logger      *slog.Logger
	concurrency int
	now         func() time.Time
}

// Option customizes an Ingester.
type Option func(*Ingester)

// WithConcurrency bounds how many sources are fetched at once.
func WithConcurrency(n int) Option {
	return func(i *Ingester) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

// WithClock overrides the fetchedAt clock.
func WithClock(now func() time.Time) Option {
	return func(i *Ingester) {
		if now != nil {
			i.now = now
		}
	}
}

// New constructs an ingester.
func New(st *store.Store, fetcher FeedFetcher, logger *slog.Logger, opts ...Option) *Ingester {
	i := &Ingester{
		store:       st,
		fetcher:     fetcher,
		logger:      logging.NewComponentLogger(logger, "ingest"),
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i
}

// SetLogger swaps the logger, typically for one carrying run context.
func (i *Ingester) SetLogger(logger *slog.Logger) {
	i.logger = logging.NewComponentLogger(logger, "ingest")
}

// Run ingests every enabled source. Per-source failures are tallied in the
// summary; only failing to list sources returns an error.
func (i *Ingester) Run(ctx context.Context) (Summary, error) {
	sources, err := i.store.ListSources(ctx, true)
	if err != nil {
		return Summary{}, fmt.Errorf("list enabled sources: %w", err)
	}
	summary := Summary{Sources: len(sources), Results: make([]SourceResult, len(sources))}
	if len(sources) == 0 {
		i.logger.Info("no enabled sources", logging.String(logging.FieldEventType, "ingest_no_sources"))
		return summary, nil
	}

	sem := make(chan struct{}, i.concurrency)
	var wg sync.WaitGroup
	for idx, src := range sources {
		wg.Add(1)
		go func(idx int, src store.Source) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				summary.Results[idx] = SourceResult{SourceID: src.ID, SourceName: src.Name, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()
			summary.Results[idx] = i.IngestSource(ctx, src)
		}(idx, src)
	}
	wg.Wait()

	for _, res := range summary.Results {
		summary.New += res.New
		summary.Skipped += res.Skipped
		summary.Errored += res.Errored
		if res.Err != nil {
			summary.FailedSources++
		}
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	i.logger.Info("ingestion complete",
		logging.String(logging.FieldEventType, "ingest_complete"),
		logging.Int("sources", summary.Sources),
		logging.Int("new", summary.New),
		logging.Int("skipped", summary.Skipped),
		logging.Int("errored", summary.Errored),
		logging.Int("failed_sources", summary.FailedSources),
	)
	return summary, nil
}

// IngestSource fetches one source and stores its items. A fetch failure is
// reported on the result and never touches other sources.
func (i *Ingester) IngestSource(ctx context.Context, src store.Source) SourceResult {
	ctx = services.WithSourceID(ctx, src.ID)
	logger := logging.WithContext(ctx, i.logger).With(logging.Args(logging.String("source", src.Name))...)
	result := SourceResult{SourceID: src.ID, SourceName: src.Name}

	feed, err := i.fetcher.Fetch(ctx, src.FeedURL)
	if err != nil {
		result.Err = err
		attrs := append(logging.ErrorAttrs(err),
			logging.String("feed_url", src.FeedURL),
			logging.String(logging.FieldImpact, "source skipped for this run"),
		)
		logging.WarnWithContext(logger, "source fetch failed", "source_fetch_failed", attrs...)
		return result
	}

	i.refreshSourceMeta(ctx, logger, src, feed)

	stored := i.StoreItems(ctx, src, feed.Items)
	result.New, result.Skipped, result.Errored = stored.New, stored.Skipped, stored.Errored
	logger.Debug("source ingested",
		logging.String(logging.FieldEventType, "source_ingested"),
		logging.Int("items", len(feed.Items)),
		logging.Int("new", result.New),
		logging.Int("skipped", result.Skipped),
		logging.Int("errored", result.Errored),
	)
	return result
}

// StoreItems check-and-inserts each item by url. Store failures on a single
// item are logged and counted.
func (i *Ingester) StoreItems(ctx context.Context, src store.Source, items []feeds.Item) SourceResult {
	result := SourceResult{SourceID: src.ID, SourceName: src.Name}
	logger := logging.WithContext(ctx, i.logger)
	contentType := src.ContentType.ItemType()
	for _, item := range items {
		if strings.TrimSpace(item.URL) == "" {
			continue
		}
		hasImage := strings.TrimSpace(item.ImageURL) != ""
		art := store.Article{
			URL:                item.URL,
			Title:              item.Title,
			SourceID:           src.ID,
			PublishedAt:        item.PublishedAt,
			FetchedAt:          i.now(),
			ContentType:        contentType,
			HeroImageURL:       item.ImageURL,
			ImageWidth:         item.ImageWidth,
			ImageHeight:        item.ImageHeight,
			DisplayMode:        DeriveDisplayMode(contentType, hasImage, item.ImageWidth, item.ImageHeight),
			Excerpt:            item.Excerpt,
			ReadingTimeMinutes: item.ReadingTimeMinutes,
		}
		inserted, err := i.store.InsertArticle(ctx, &art)
		if err != nil {
			result.Errored++
			attrs := append(logging.ErrorAttrs(err),
				logging.String("url", item.URL),
				logging.String(logging.FieldImpact, "item not stored"),
			)
			logging.WarnWithContext(logger, "store item failed", "item_store_failed", attrs...)
			continue
		}
		if inserted {
			result.New++
		} else {
			result.Skipped++
		}
	}
	return result
}

func (i *Ingester) refreshSourceMeta(ctx context.Context, logger *slog.Logger, src store.Source, feed *feeds.Feed) {
	title := strings.TrimSpace(feed.Title)
	if title == "" || title == src.Name {
		return
	}
	siteURL := strings.TrimSpace(feed.SiteURL)
	if siteURL == "" {
		siteURL = src.SiteURL
	}
	if err := i.store.UpdateSourceMeta(ctx, src.ID, title, siteURL); err != nil {
		attrs := append(logging.ErrorAttrs(err), logging.String(logging.FieldImpact, "source keeps its previous name"))
		logging.WarnWithContext(logger, "refresh source name failed", "source_meta_failed", attrs...)
		return
	}
	logger.Debug("source renamed from feed title",
		logging.String("old_name", src.Name),
		logging.String("new_name", title),
	)
}
