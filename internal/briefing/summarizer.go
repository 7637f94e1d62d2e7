package briefing

import (
	"context"
	"fmt"
	"strings"

	"newsboy/internal/services"
	"newsboy/internal/services/llm"
)

// EmptyMessage is the briefing for a day with nothing scheduled.
const EmptyMessage = "Blimey, gov'nor! I couldn't find any stories worth tellin' today. Check back tomorrow!"

const (
	summaryMaxTokens   = 300
	summaryTemperature = 0.7
)

// Input is one featured story handed to the summarizer.
type Input struct {
	Title   string `json:"title"`
	Excerpt string `json:"excerpt,omitempty"`
	URL     string `json:"url"`
}

// Summarizer narrates the featured stories.
type Summarizer interface {
	Summarize(ctx context.Context, items []Input) (string, error)
}

// LLMSummarizer narrates through a chat completion.
type LLMSummarizer struct {
	client *llm.Client
}

// NewLLMSummarizer returns nil when the client has no API key so callers go
// straight to the template.
func NewLLMSummarizer(client *llm.Client) *LLMSummarizer {
	if client == nil || !client.Enabled() {
		return nil
	}
	return &LLMSummarizer{client: client}
}

// Summarize asks the model for a three to five sentence briefing in Pip's
// voice.
func (s *LLMSummarizer) Summarize(ctx context.Context, items []Input) (string, error) {
	if len(items) == 0 {
		return EmptyMessage, nil
	}
	text, err := s.client.CompleteText(ctx, []llm.Message{{Role: "user", Content: Prompt(items)}}, llm.TextOptions{
		MaxTokens:   summaryMaxTokens,
		Temperature: summaryTemperature,
	})
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", services.Wrap(services.ErrExternalTool, "briefing", "summarize", "empty completion", nil)
	}
	return text, nil
}

// Prompt renders the briefing request for items.
func Prompt(items []Input) string {
	var summaries strings.Builder
	for i, item := range items {
		if i > 0 {
			summaries.WriteString("\n\n")
		}
		fmt.Fprintf(&summaries, "Article %d:\nTitle: %s", i+1, item.Title)
		if excerpt := strings.TrimSpace(item.Excerpt); excerpt != "" {
			fmt.Fprintf(&summaries, "\nExcerpt: %s", excerpt)
		}
		fmt.Fprintf(&summaries, "\nURL: %s", item.URL)
	}

	return fmt.Sprintf(`You are Pip, a cheerful Victorian street urchin newsboy with a cockney accent. Your job is to greet your patron (the "gov'nor") and enthusiastically tell them about the top stories you've collected today.

Here are the articles you've found:

%s

Write a brief daily briefing (3-5 sentences) in Pip's voice where you:
1. Greet the gov'nor warmly
2. Mention you've got some "crackin' stories" or similar
3. Briefly describe each of the %d articles in your own words, making them sound interesting
4. Use cockney expressions and Victorian street urchin charm
5. Keep each article summary to 1-2 sentences maximum

Important guidelines for Pip's voice:
- Use cockney expressions like "blimey", "proper", "crackin'", "right nice", etc.
- Address the reader as "gov'nor"
- Be enthusiastic but not over-the-top
- Drop some 'h's and 'g's at the end of words naturally (e.g., "comin'", "tellin'")
- Sound like a helpful street kid who's proud of his work
- Be brief and punchy; this is a greeting, not an essay

Now write your briefing:`, summaries.String(), len(items))
}

// Fallback is the template briefing used when no summarizer is available or
// it fails.
func Fallback(items []Input) string {
	if len(items) == 0 {
		return EmptyMessage
	}
	noun := "stories"
	if len(items) == 1 {
		noun = "story"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Mornin' gov'nor! I've got %d %s for ya today!\n\n", len(items), noun)
	for i, item := range items {
		lead := "And finally"
		switch i {
		case 0:
			lead = "First off"
		case 1:
			lead = "Then there's"
		}
		fmt.Fprintf(&b, "%s, %s.\n\n", lead, item.Title)
	}
	b.WriteString("That's the best of what I found! Have a read, gov'nor!")
	return b.String()
}
