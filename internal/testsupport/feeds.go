package testsupport

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// FeedItem is one entry rendered into an RSS fixture.
type FeedItem struct {
	Title       string
	Link        string
	Description string
	Published   time.Time
	ImageURL    string
	ImageWidth  int
	ImageHeight int
}

// RSS renders a minimal RSS 2.0 document with media:content images.
func RSS(title, siteURL string, items ...FeedItem) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/"><channel>`)
	fmt.Fprintf(&b, "<title>%s</title><link>%s</link>", html.EscapeString(title), html.EscapeString(siteURL))
	for _, item := range items {
		b.WriteString("<item>")
		fmt.Fprintf(&b, "<title>%s</title>", html.EscapeString(item.Title))
		if item.Link != "" {
			fmt.Fprintf(&b, "<link>%s</link>", html.EscapeString(item.Link))
		}
		if item.Description != "" {
			fmt.Fprintf(&b, "<description>%s</description>", html.EscapeString(item.Description))
		}
		if !item.Published.IsZero() {
			fmt.Fprintf(&b, "<pubDate>%s</pubDate>", item.Published.UTC().Format(time.RFC1123Z))
		}
		if item.ImageURL != "" {
			fmt.Fprintf(&b, `<media:content url="%s" medium="image"`, html.EscapeString(item.ImageURL))
			if item.ImageWidth > 0 {
				fmt.Fprintf(&b, ` width="%d"`, item.ImageWidth)
			}
			if item.ImageHeight > 0 {
				fmt.Fprintf(&b, ` height="%d"`, item.ImageHeight)
			}
			b.WriteString("/>")
		}
		b.WriteString("</item>")
	}
	b.WriteString("</channel></rss>")
	return b.String()
}

// FeedServer serves fixture documents by path. Paths without a document
// answer 500 so tests can exercise per-source failures.
type FeedServer struct {
	*httptest.Server

	mu       sync.Mutex
	docs     map[string]string
	requests map[string]int
	agents   []string
}

// NewFeedServer starts a server and registers cleanup.
func NewFeedServer(t testing.TB) *FeedServer {
	t.Helper()
	fs := &FeedServer{docs: map[string]string{}, requests: map[string]int{}}
	fs.Server = httptest.NewServer(http.HandlerFunc(fs.serve))
	t.Cleanup(fs.Close)
	return fs
}

// Set publishes body at path and returns the absolute URL.
func (fs *FeedServer) Set(path, body string) string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.docs[path] = body
	return fs.URL + path
}

// Requests returns how many times path was fetched.
func (fs *FeedServer) Requests(path string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.requests[path]
}

// UserAgents returns every User-Agent header seen.
func (fs *FeedServer) UserAgents() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]string(nil), fs.agents...)
}

func (fs *FeedServer) serve(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	fs.requests[r.URL.Path]++
	fs.agents = append(fs.agents, r.UserAgent())
	body, ok := fs.docs[r.URL.Path]
	fs.mu.Unlock()
	if !ok {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml")
	_, _ = w.Write([]byte(body))
}
