package illustration

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"newsboy/internal/services/replicate"
)

const (
	negativePrompt = "realistic, photographic, detailed, professional, polished, clean lines, perfect, adult drawing, digital art, 3D render"
	subjectWords   = 5
)

var (
	leadingArticle = regexp.MustCompile(`(?i)^(the|a|an)\s+`)
	quoteChars     = strings.NewReplacer(`"`, "", `'`, "", "‘", "", "’", "", "“", "", "”", "")
)

// Subject reduces a headline to something a child might draw: leading
// articles and quotes are dropped, long titles are cut to five words or the
// first punctuation mark, and the result is lowercased.
func Subject(title string) string {
	lower := cases.Lower(language.English)
	cleaned := strings.TrimSpace(quoteChars.Replace(leadingArticle.ReplaceAllString(strings.TrimSpace(title), "")))
	words := strings.Fields(cleaned)
	if len(words) <= subjectWords {
		return lower.String(strings.Join(words, " "))
	}
	truncated := strings.Join(words[:subjectWords], " ")
	if idx := strings.IndexAny(truncated, ":.;,"); idx > 0 {
		truncated = truncated[:idx]
	}
	return lower.String(truncated)
}

// Prompt builds the crayon prompt for subject.
func Prompt(subject string) string {
	return "Childlike crayon drawing of " + subject +
		", wobbly lines, bright vibrant colors, simple shapes, rough sketch, hand-drawn by a child, on cream paper, innocent and charming, like a Victorian street kid's drawing"
}

// Input is the full model input for a headline.
func Input(title string) replicate.Input {
	return replicate.Input{
		Prompt:            Prompt(Subject(title)),
		NegativePrompt:    negativePrompt,
		Width:             512,
		Height:            512,
		NumInferenceSteps: 25,
		GuidanceScale:     7.5,
		Scheduler:         "K_EULER",
	}
}
