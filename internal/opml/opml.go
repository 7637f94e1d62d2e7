// Package opml imports feed subscriptions from OPML exports.
package opml

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"newsboy/internal/services"
	"newsboy/internal/store"
)

// Feed is one subscription found in an OPML document.
type Feed struct {
	Name        string
	FeedURL     string
	SiteURL     string
	Category    string
	ContentType store.ContentType
}

// Report summarizes an import.
type Report struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

type document struct {
	Body struct {
		Outlines []outline `xml:"outline"`
	} `xml:"body"`
}

type outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr"`
	XMLURL   string    `xml:"xmlUrl,attr"`
	HTMLURL  string    `xml:"htmlUrl,attr"`
	Outlines []outline `xml:"outline"`
}

var webcomicMarkers = []string{"comic", "webcomic", "cartoon", "strip", "xkcd", "smbc"}

// DetectContentType classifies a feed as a webcomic when its name or url
// mentions a comic marker.
func DetectContentType(name, feedURL string) store.ContentType {
	haystack := strings.ToLower(name + " " + feedURL)
	for _, marker := range webcomicMarkers {
		if strings.Contains(haystack, marker) {
			return store.ContentWebcomic
		}
	}
	return store.ContentArticle
}

// Parse flattens every outline carrying an xmlUrl. Folder outlines lend their
// name as the category of the feeds inside them.
func Parse(r io.Reader) ([]Feed, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, services.Wrap(services.ErrValidation, "opml", "parse", "invalid OPML document", err)
	}
	var feeds []Feed
	var walk func(items []outline, category string)
	walk = func(items []outline, category string) {
		for _, o := range items {
			name := firstNonEmpty(o.Title, o.Text)
			if url := strings.TrimSpace(o.XMLURL); url != "" {
				if name == "" {
					name = "Untitled Feed"
				}
				feeds = append(feeds, Feed{
					Name:        name,
					FeedURL:     url,
					SiteURL:     strings.TrimSpace(o.HTMLURL),
					Category:    category,
					ContentType: DetectContentType(name, url),
				})
			}
			if len(o.Outlines) > 0 {
				child := category
				if o.XMLURL == "" && name != "" {
					child = name
				}
				walk(o.Outlines, child)
			}
		}
	}
	walk(doc.Body.Outlines, "")
	return feeds, nil
}

// Import parses r and subscribes every feed not already known by url.
func Import(ctx context.Context, st *store.Store, r io.Reader) (Report, error) {
	feeds, err := Parse(r)
	if err != nil {
		return Report{}, err
	}
	var report Report
	for _, f := range feeds {
		_, inserted, err := st.InsertSourceIfAbsent(ctx, store.Source{
			Name:        f.Name,
			FeedURL:     f.FeedURL,
			SiteURL:     f.SiteURL,
			Category:    f.Category,
			ContentType: f.ContentType,
			Enabled:     true,
		})
		if err != nil {
			return report, fmt.Errorf("import %s: %w", f.FeedURL, err)
		}
		if inserted {
			report.Added++
		} else {
			report.Skipped++
		}
	}
	return report, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
