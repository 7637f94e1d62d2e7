package store

import (
	"time"

	"newsboy/internal/prefs"
)

// ContentType classifies what a source publishes.
type ContentType string

const (
	ContentArticle  ContentType = "article"
	ContentWebcomic ContentType = "webcomic"
	ContentMixed    ContentType = "mixed"
)

// ParseContentType normalizes user input; unknown values become article.
func ParseContentType(value string) ContentType {
	switch ContentType(value) {
	case ContentWebcomic:
		return ContentWebcomic
	case ContentMixed:
		return ContentMixed
	default:
		return ContentArticle
	}
}

// ItemType is the content type stored on articles; mixed sources store
// their items as articles.
func (c ContentType) ItemType() ContentType {
	if c == ContentMixed {
		return ContentArticle
	}
	return c
}

// DisplayMode controls how a card is laid out in the reader.
type DisplayMode string

const (
	DisplayStandard DisplayMode = "standard"
	DisplayWide     DisplayMode = "wide"
	DisplayTall     DisplayMode = "tall"
	DisplayCrayon   DisplayMode = "crayon"
)

// Source is a subscribed feed.
type Source struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	FeedURL     string      `json:"feedUrl"`
	SiteURL     string      `json:"siteUrl,omitempty"`
	ContentType ContentType `json:"contentType"`
	Category    string      `json:"category,omitempty"`
	Enabled     bool        `json:"enabled"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Article is one ingested feed item. SourceName and SourceCategory are filled
// on reads that join the owning source.
type Article struct {
	ID                 int64       `json:"id"`
	URL                string      `json:"url"`
	Title              string      `json:"title"`
	SourceID           int64       `json:"sourceId"`
	PublishedAt        *time.Time  `json:"publishedAt,omitempty"`
	FetchedAt          time.Time   `json:"fetchedAt"`
	ContentType        ContentType `json:"contentType"`
	HeroImageURL       string      `json:"heroImageUrl,omitempty"`
	IllustrationURL    string      `json:"illustrationUrl,omitempty"`
	ImageWidth         int         `json:"imageWidth,omitempty"`
	ImageHeight        int         `json:"imageHeight,omitempty"`
	DisplayMode        DisplayMode `json:"displayMode"`
	Excerpt            string      `json:"excerpt,omitempty"`
	RelevanceScore     float64     `json:"relevanceScore"`
	ReadingTimeMinutes int         `json:"readingTimeMinutes,omitempty"`

	SourceName     string `json:"sourceName,omitempty"`
	SourceCategory string `json:"sourceCategory,omitempty"`
}

// HasImage reports whether the article has either a feed image or a
// generated illustration.
func (a Article) HasImage() bool {
	return a.HeroImageURL != "" || a.IllustrationURL != ""
}

// Slot is one entry of a day's release plan.
type Slot struct {
	Date       time.Time `json:"date"`
	ArticleID  int64     `json:"articleId"`
	RevealHour int       `json:"revealHour"`
	Position   int       `json:"position"`
}

// SlotView is a slot joined with its article.
type SlotView struct {
	Slot
	Article Article `json:"article"`
}

// Briefing is the narrative summary for one day.
type Briefing struct {
	ID                 int64     `json:"id"`
	Date               time.Time `json:"date"`
	SummaryText        string    `json:"summaryText"`
	FeaturedArticleIDs []int64   `json:"featuredArticleIds"`
	GeneratedAt        time.Time `json:"generatedAt"`
}

// TuningLog records one conversational preference change.
type TuningLog struct {
	ID            int64         `json:"id"`
	Input         string        `json:"input"`
	ParsedChanges prefs.Changes `json:"parsedChanges"`
	ResponseText  string        `json:"responseText"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunSkipped   = "skipped"
)

// Run records one pipeline operation invocation.
type Run struct {
	ID           string         `json:"id"`
	Operation    string         `json:"operation"`
	Date         time.Time      `json:"date"`
	Status       string         `json:"status"`
	StartedAt    time.Time      `json:"startedAt"`
	FinishedAt   *time.Time     `json:"finishedAt,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	Stats        map[string]any `json:"stats,omitempty"`
}

// Counts summarizes table sizes for status output.
type Counts struct {
	Sources        int `json:"sources"`
	EnabledSources int `json:"enabledSources"`
	Articles       int `json:"articles"`
	Briefings      int `json:"briefings"`
}
