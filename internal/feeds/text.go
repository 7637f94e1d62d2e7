package feeds

import (
	"math"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// readableText extracts the prose of an HTML fragment. Readability handles
// full bodies; short fragments it rejects fall back to a plain tag strip.
func readableText(fragment, pageURL string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	if !strings.Contains(fragment, "<") {
		return collapseSpace(html.UnescapeString(fragment))
	}
	base, _ := url.Parse(pageURL)
	article, err := readability.FromReader(strings.NewReader(fragment), base)
	if err == nil {
		if text := collapseSpace(article.TextContent); text != "" {
			return text
		}
	}
	return stripTags(fragment)
}

// cleanText strips markup and entities from a title-like string.
func cleanText(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if strings.Contains(value, "<") {
		return stripTags(value)
	}
	return collapseSpace(html.UnescapeString(value))
}

func stripTags(fragment string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	skip := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return collapseSpace(b.String())
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(tokenizer.Text())
			}
		}
	}
}

func collapseSpace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func truncateRunes(value string, limit int) string {
	if limit <= 0 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return strings.TrimSpace(string(runes[:limit]))
}

func readingTime(text string, wordsPerMinute int) int {
	words := len(strings.Fields(text))
	if words == 0 || wordsPerMinute <= 0 {
		return 0
	}
	return int(math.Ceil(float64(words) / float64(wordsPerMinute)))
}
