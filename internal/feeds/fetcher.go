package feeds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"newsboy/internal/config"
	"newsboy/internal/services"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultUserAgent      = "Newsboy/1.0 (RSS Reader)"
	defaultExcerptChars   = 500
	defaultWordsPerMinute = 200
	untitledFeed          = "Untitled Feed"
	untitledItem          = "Untitled"
	maxFeedBytes          = 10 << 20
)

// Item is one feed entry reduced to what ingestion stores.
type Item struct {
	URL                string
	Title              string
	PublishedAt        *time.Time
	Excerpt            string
	ImageURL           string
	ImageWidth         int
	ImageHeight        int
	ReadingTimeMinutes int
}

// Feed is a fetched document.
type Feed struct {
	Title   string
	SiteURL string
	Items   []Item
}

// Config controls retrieval and item reduction.
type Config struct {
	Timeout         time.Duration
	UserAgent       string
	ExcerptMaxChars int
	WordsPerMinute  int
}

// ConfigFrom extracts fetcher settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{
		Timeout:         cfg.FetchTimeout(),
		UserAgent:       cfg.Ingest.UserAgent,
		ExcerptMaxChars: cfg.Ingest.ExcerptMaxChars,
		WordsPerMinute:  cfg.Ingest.WordsPerMinute,
	}
}

// Fetcher downloads and parses feeds.
type Fetcher struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the HTTP client used for downloads.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.httpClient = client
		}
	}
}

// NewFetcher constructs a fetcher, filling zero settings with defaults.
func NewFetcher(cfg Config, opts ...Option) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.ExcerptMaxChars <= 0 {
		cfg.ExcerptMaxChars = defaultExcerptChars
	}
	if cfg.WordsPerMinute <= 0 {
		cfg.WordsPerMinute = defaultWordsPerMinute
	}
	f := &Fetcher{cfg: cfg, httpClient: &http.Client{}}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Fetch downloads feedURL and parses it. Transport failures and non-2xx
// answers are external errors; documents gofeed cannot read are validation
// errors.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (*Feed, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "build request", feedURL, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, "ingest", "fetch feed", feedURL, err)
		}
		return nil, services.Wrap(services.ErrExternalTool, "ingest", "fetch feed", feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, services.Wrap(services.ErrExternalTool, "ingest", "fetch feed",
			fmt.Sprintf("%s: status %d", feedURL, resp.StatusCode), nil)
	}

	parsed, err := gofeed.NewParser().Parse(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "parse feed", feedURL, err)
	}
	return f.reduce(parsed), nil
}

// Parse reduces an already downloaded document.
func (f *Fetcher) Parse(r io.Reader) (*Feed, error) {
	parsed, err := gofeed.NewParser().Parse(r)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "parse feed", "", err)
	}
	return f.reduce(parsed), nil
}

func (f *Fetcher) reduce(parsed *gofeed.Feed) *Feed {
	out := &Feed{
		Title:   cleanText(parsed.Title),
		SiteURL: strings.TrimSpace(parsed.Link),
	}
	if out.Title == "" {
		out.Title = untitledFeed
	}
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		reduced, ok := f.reduceItem(item)
		if !ok {
			continue
		}
		out.Items = append(out.Items, reduced)
	}
	return out
}

func (f *Fetcher) reduceItem(item *gofeed.Item) (Item, bool) {
	link := itemLink(item)
	if link == "" {
		return Item{}, false
	}
	out := Item{URL: link, Title: cleanText(item.Title)}
	if out.Title == "" {
		out.Title = untitledItem
	}
	switch {
	case item.PublishedParsed != nil:
		t := item.PublishedParsed.UTC()
		out.PublishedAt = &t
	case item.UpdatedParsed != nil:
		t := item.UpdatedParsed.UTC()
		out.PublishedAt = &t
	}

	body := item.Description
	if strings.TrimSpace(body) == "" {
		body = item.Content
	}
	if text := readableText(body, link); text != "" {
		out.Excerpt = truncateRunes(text, f.cfg.ExcerptMaxChars)
	}
	if strings.TrimSpace(item.Content) != "" {
		out.ReadingTimeMinutes = readingTime(readableText(item.Content, link), f.cfg.WordsPerMinute)
	}

	img := pickImage(item, link)
	out.ImageURL = img.url
	out.ImageWidth = img.width
	out.ImageHeight = img.height
	return out, true
}

func itemLink(item *gofeed.Item) string {
	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}
	for _, l := range item.Links {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	guid := strings.TrimSpace(item.GUID)
	if strings.HasPrefix(guid, "http://") || strings.HasPrefix(guid, "https://") {
		return guid
	}
	return ""
}
