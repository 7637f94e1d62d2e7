package tuning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"newsboy/internal/prefs"
	"newsboy/internal/services/llm"
)

// Apology is Pip's reply when a request could not be understood.
const Apology = "Blimey, somethin' went wrong on me end, gov'nor. Give it another go?"

// SourceRef identifies a subscribed source for the parser.
type SourceRef struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// Exchange is one earlier tuning turn.
type Exchange struct {
	Input    string        `json:"input"`
	Parsed   prefs.Changes `json:"parsed"`
	Response string        `json:"response"`
}

// Context is what the parser knows about the reader.
type Context struct {
	CurrentPreferences prefs.Preferences `json:"currentPreferences"`
	AvailableSources   []SourceRef       `json:"availableSources"`
	RecentTuning       []Exchange        `json:"recentTuning"`
}

// Result is a parsed request.
type Result struct {
	Changes  prefs.Changes `json:"changes"`
	Response string        `json:"response"`
}

// Parser interprets a tuning message.
type Parser interface {
	Parse(ctx context.Context, message string, tc Context) (Result, error)
}

// LLMParser interprets messages through a JSON chat completion.
type LLMParser struct {
	client *llm.Client
}

// NewLLMParser returns nil when the client has no API key.
func NewLLMParser(client *llm.Client) *LLMParser {
	if client == nil || !client.Enabled() {
		return nil
	}
	return &LLMParser{client: client}
}

const systemPrompt = `You are Pip, a cheerful Victorian street urchin newsboy with a cockney accent who curates a personal news feed for the "gov'nor".

The gov'nor will tell you how they want their feed adjusted. Translate the request into preference changes and reply in Pip's voice.

Preferences:
- interests: map of topic keyword to weight between -1 and 1. Positive means show more, negative means show less. A weight of 0 removes the topic.
- sourceWeights: map of source id (as a string) to weight between -1 and 1. Use the ids from availableSources. A weight of 0 removes the override.
- moodBalance: number between -1 (serious news) and 1 (light and fun).
- preferLongForm: true to favour longer reads.
- preferVisual: true to favour stories with pictures.

Only include fields that should change. Respond with JSON only, in this shape:
{"changes": {"interests": {"robots": 0.8}}, "response": "Right you are, gov'nor! More robots comin' up!"}

If the request is unclear, return empty changes and ask the gov'nor what they meant, in character. Keep the response to one or two sentences.`

// Parse asks the model for changes. Malformed replies are errors; the caller
// decides how to degrade.
func (p *LLMParser) Parse(ctx context.Context, message string, tc Context) (Result, error) {
	payload, err := json.MarshalIndent(tc, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("encode tuning context: %w", err)
	}
	user := fmt.Sprintf("Context:\n%s\n\nThe gov'nor says: %s", payload, strings.TrimSpace(message))
	content, err := p.client.CompleteJSON(ctx, systemPrompt, user)
	if err != nil {
		return Result{}, err
	}
	var result Result
	if err := llm.DecodeLLMJSON(content, &result); err != nil {
		return Result{}, err
	}
	result.Response = strings.TrimSpace(result.Response)
	if result.Response == "" {
		result.Response = "Right you are, gov'nor!"
	}
	return result, nil
}
