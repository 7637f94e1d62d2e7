package scoring

import (
	"math"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"newsboy/internal/prefs"
	"newsboy/internal/store"
)

const (
	topicWeight   = 0.40
	sourceWeight  = 0.20
	recencyWeight = 0.25
	formatWeight  = 0.15

	neutral      = 0.5
	recencyDecay = 0.03

	longFormMinutes = 5
)

// Breakdown is a score with its weighted components, useful for explaining
// an ordering.
type Breakdown struct {
	Topic   float64 `json:"topic"`
	Source  float64 `json:"source"`
	Recency float64 `json:"recency"`
	Format  float64 `json:"format"`
	Total   float64 `json:"total"`
}

// Score returns the relevance of art under p at now.
func Score(art store.Article, category string, p prefs.Preferences, now time.Time) float64 {
	return Explain(art, category, p, now).Total
}

// Explain returns every sub-score alongside the weighted total.
func Explain(art store.Article, category string, p prefs.Preferences, now time.Time) Breakdown {
	b := Breakdown{
		Topic:   TopicScore(art.Title, art.Excerpt, category, p.Interests),
		Source:  SourceScore(art.SourceID, p.SourceWeights),
		Recency: RecencyScore(recencyAnchor(art), now),
		Format:  FormatScore(art.HeroImageURL != "", art.ReadingTimeMinutes, p),
	}
	b.Total = clamp01(topicWeight*b.Topic + sourceWeight*b.Source + recencyWeight*b.Recency + formatWeight*b.Format)
	return b
}

// TopicScore matches interests against title, excerpt, and category. An
// interest matches when every whitespace token of its key occurs as a
// case-insensitive substring. Empty or all-zero interests are neutral.
func TopicScore(title, excerpt, category string, interests prefs.WeightMap) float64 {
	if len(interests) == 0 {
		return neutral
	}
	fold := cases.Fold()
	haystack := fold.String(title + " " + excerpt + " " + category)

	var total, matched float64
	for topic, weight := range interests {
		total += math.Abs(weight)
		tokens := strings.Fields(fold.String(topic))
		if len(tokens) == 0 {
			continue
		}
		hit := true
		for _, token := range tokens {
			if !strings.Contains(haystack, token) {
				hit = false
				break
			}
		}
		if hit {
			matched += weight
		}
	}
	if total == 0 {
		return neutral
	}
	return clamp01((matched/total + 1) / 2)
}

// SourceScore maps the source's -1..1 weight onto 0..1. Sources missing from
// a non-empty map count as weight 0.
func SourceScore(sourceID int64, weights prefs.WeightMap) float64 {
	if len(weights) == 0 {
		return neutral
	}
	w, _ := weights.SourceWeight(sourceID)
	return clamp01((w + 1) / 2)
}

// RecencyScore decays exponentially with age in hours. Items dated in the
// future score 1.
func RecencyScore(at, now time.Time) float64 {
	ageHours := now.Sub(at).Hours()
	if ageHours <= 0 {
		return 1
	}
	return math.Exp(-recencyDecay * ageHours)
}

// FormatScore rewards the formats the reader prefers. readingMinutes of 0
// means unknown.
func FormatScore(hasImage bool, readingMinutes int, p prefs.Preferences) float64 {
	score := neutral
	if p.PreferVisual && hasImage {
		score += 0.25
	}
	if !p.PreferVisual && !hasImage {
		score += 0.10
	}
	if readingMinutes > 0 {
		if p.PreferLongForm && readingMinutes > longFormMinutes {
			score += 0.25
		}
		if !p.PreferLongForm && readingMinutes <= longFormMinutes {
			score += 0.15
		}
	}
	return math.Min(1, score)
}

func recencyAnchor(art store.Article) time.Time {
	if art.PublishedAt != nil && !art.PublishedAt.IsZero() {
		return *art.PublishedAt
	}
	return art.FetchedAt
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
