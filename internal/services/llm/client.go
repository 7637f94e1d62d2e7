package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"newsboy/internal/services"
)

const (
	defaultBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
	defaultHTTPTimeout = 60 * time.Second
	defaultAttempts    = 5

	// Briefings are a few short paragraphs.
	defaultTextMaxTokens = 300
	defaultTextTemp      = 0.7
)

// Config captures the runtime settings required to talk to the LLM.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// DefaultHTTPTimeout returns the default timeout used for LLM requests.
func DefaultHTTPTimeout() time.Duration {
	return defaultHTTPTimeout
}

// Client talks to an OpenRouter style chat completions endpoint. Rate limits,
// server errors, timeouts and empty replies are retried with backoff.
type Client struct {
	cfg        Config
	httpClient *http.Client
	attempts   int
	backoff    services.Backoff
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts sets how many requests one completion may make.
// Preflight checks use 1.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.attempts = attempts
	}
}

// WithRetryBackoff overrides the retry delays. A non-positive maxDelay keeps
// the default cap.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.backoff.Base = baseDelay
		if maxDelay > 0 {
			c.backoff.Max = maxDelay
		}
	}
}

// WithSleeper replaces the retry wait.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.backoff.Sleep = sleeper
	}
}

// NewClient constructs an LLM client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			Referer:        strings.TrimSpace(cfg.Referer),
			Title:          strings.TrimSpace(cfg.Title),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
		attempts:   defaultAttempts,
		backoff:    services.Backoff{Base: time.Second, Max: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.attempts <= 0 {
		client.attempts = 1
	}
	return client
}

type statusError struct {
	code       int
	body       string
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("llm request: http %d: %s", e.code, e.body)
}

// emptyReplyError is returned when the model answers with no content. The
// snippet of the raw body makes provider quirks diagnosable from the logs.
type emptyReplyError struct {
	op      string
	finish  string
	refusal string
	snippet string
}

func (e *emptyReplyError) Error() string {
	return fmt.Sprintf("%s: empty content (finish_reason=%q, refusal=%q, response_snippet=%s)",
		e.op, e.finish, e.refusal, e.snippet)
}

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TextOptions tunes free-form completions.
type TextOptions struct {
	MaxTokens   int
	Temperature float64
}

// CompleteJSON issues a JSON-only chat completion request with the supplied prompts.
// It returns the raw JSON payload produced by the model.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	if systemPrompt == "" {
		return "", services.Wrap(services.ErrValidation, "llm", "complete json", "system prompt required", nil)
	}
	if userPrompt == "" {
		return "", services.Wrap(services.ErrValidation, "llm", "complete json", "user prompt required", nil)
	}
	if err := c.requireKey("complete json"); err != nil {
		return "", err
	}
	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0,
		ResponseFormat: jsonObject,
	}
	return c.complete(ctx, payload, "llm complete")
}

// CompleteText issues a free-form completion for the supplied conversation and
// returns the trimmed reply.
func (c *Client) CompleteText(ctx context.Context, messages []Message, opts TextOptions) (string, error) {
	if len(messages) == 0 {
		return "", services.Wrap(services.ErrValidation, "llm", "complete text", "at least one message required", nil)
	}
	if err := c.requireKey("complete text"); err != nil {
		return "", err
	}
	payload := chatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    make([]chatMessage, 0, len(messages)),
		Temperature: defaultTextTemp,
		MaxTokens:   defaultTextMaxTokens,
	}
	if opts.Temperature > 0 {
		payload.Temperature = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		payload.MaxTokens = opts.MaxTokens
	}
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := strings.TrimSpace(msg.Role)
		if role == "" {
			role = "user"
		}
		payload.Messages = append(payload.Messages, chatMessage{Role: role, Content: content})
	}
	if len(payload.Messages) == 0 {
		return "", services.Wrap(services.ErrValidation, "llm", "complete text", "all messages empty", nil)
	}
	return c.complete(ctx, payload, "llm text")
}

// Enabled reports whether the client has credentials to make requests.
func (c *Client) Enabled() bool {
	return c != nil && c.cfg.APIKey != ""
}

func (c *Client) requireKey(op string) error {
	if c == nil || strings.TrimSpace(c.cfg.APIKey) == "" {
		return services.Wrap(services.ErrConfiguration, "llm", op, "api key required", nil)
	}
	return nil
}

// HealthCheck issues a fast ping to verify the API key and model are usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.requireKey("health"); err != nil {
		return err
	}
	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You must respond with JSON only."},
			{Role: "user", Content: "Respond with {\"ok\":true}"},
		},
		Temperature:    0,
		ResponseFormat: jsonObject,
	}
	content, err := c.complete(ctx, payload, "llm health")
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return fmt.Errorf("llm health: parse payload: %w", err)
	}
	if !parsed.OK {
		return errors.New("llm health: unexpected response")
	}
	return nil
}

var jsonObject = map[string]string{"type": "json_object"}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// reply returns the first non-empty message content along with the finish
// reason and refusal of the first choice.
func (r chatCompletionResponse) reply() (content, finish, refusal string) {
	for i, choice := range r.Choices {
		if i == 0 {
			finish = strings.TrimSpace(choice.FinishReason)
			refusal = strings.TrimSpace(choice.Message.Refusal)
		}
		if text := strings.TrimSpace(choice.Message.Content); text != "" {
			return text, finish, refusal
		}
	}
	return "", finish, refusal
}

func (c *Client) complete(ctx context.Context, payload chatCompletionRequest, op string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			delay, retry := c.retryAfter(ctx, lastErr, attempt-1)
			if !retry {
				return "", classify(lastErr)
			}
			if err := c.backoff.Wait(ctx, delay); err != nil {
				return "", err
			}
		}
		completion, body, err := c.send(ctx, payload)
		if err != nil {
			lastErr = err
			continue
		}
		content, finish, refusal := completion.reply()
		if content != "" {
			return content, nil
		}
		if len(completion.Choices) == 0 {
			lastErr = fmt.Errorf("%s: empty choices", op)
			continue
		}
		lastErr = &emptyReplyError{op: op, finish: finish, refusal: refusal, snippet: summarizePayloadSnippet(string(body))}
	}
	if c.attempts == 1 {
		return "", classify(lastErr)
	}
	return "", fmt.Errorf("%s: failed after %d attempts: %w", op, c.attempts, classify(lastErr))
}

// retryAfter decides whether err is worth another request and how long to
// wait first. Server supplied Retry-After wins over the computed backoff.
func (c *Client) retryAfter(ctx context.Context, err error, retry int) (time.Duration, bool) {
	if err == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	var empty *emptyReplyError
	if errors.As(err, &empty) {
		return c.backoff.Delay(retry), true
	}
	var status *statusError
	if errors.As(err, &status) {
		if status.code != http.StatusRequestTimeout && status.code != http.StatusTooManyRequests &&
			status.code < http.StatusInternalServerError {
			return 0, false
		}
		if status.retryAfter > 0 {
			return c.backoff.Cap(status.retryAfter), true
		}
		return c.backoff.Delay(retry), true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoff.Delay(retry), true
	}
	return 0, false
}

// classify tags transport and status failures with the services markers so
// callers can tell quota exhaustion from outages.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var status *statusError
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", services.ErrTimeout, err)
	case errors.As(err, &status) && status.code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", services.ErrRateLimited, err)
	case errors.As(err, &status) && (status.code == http.StatusUnauthorized || status.code == http.StatusForbidden):
		return fmt.Errorf("%w: %w", services.ErrConfiguration, err)
	default:
		return fmt.Errorf("%w: %w", services.ErrExternalTool, err)
	}
}

func (c *Client) send(ctx context.Context, payload chatCompletionRequest) (chatCompletionResponse, []byte, error) {
	var completion chatCompletionResponse
	encoded, err := json.Marshal(payload)
	if err != nil {
		return completion, nil, fmt.Errorf("llm request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return completion, nil, fmt.Errorf("llm request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return completion, nil, fmt.Errorf("llm request (timeout=%s): %w", c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return completion, nil, fmt.Errorf("llm request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return completion, body, &statusError{
			code:       resp.StatusCode,
			body:       strings.TrimSpace(string(body)),
			retryAfter: services.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if err := json.Unmarshal(body, &completion); err != nil {
		return completion, body, fmt.Errorf("llm request: decode response: %w", err)
	}
	if completion.Error != nil {
		return completion, body, fmt.Errorf("llm request: api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	return completion, body, nil
}

// DecodeLLMJSON unmarshals a model reply into target. Replies wrapped in code
// fences or surrounded by chatter are trimmed to the outermost JSON value.
func DecodeLLMJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}
	err := json.Unmarshal([]byte(trimmed), target)
	if err == nil {
		return nil
	}
	extracted := extractJSON(trimmed)
	if extracted == "" || extracted == trimmed {
		return fmt.Errorf("%w (payload snippet: %s)", err, summarizePayloadSnippet(trimmed))
	}
	if err := json.Unmarshal([]byte(extracted), target); err != nil {
		return fmt.Errorf("%w (extracted payload snippet: %s)", err, summarizePayloadSnippet(extracted))
	}
	return nil
}

func extractJSON(content string) string {
	body := strings.TrimSpace(content)
	if rest, ok := strings.CutPrefix(body, "```"); ok {
		rest = strings.TrimLeft(rest, " \t\r\n")
		if len(rest) >= 4 && strings.EqualFold(rest[:4], "json") {
			rest = rest[4:]
		}
		if idx := strings.LastIndex(rest, "```"); idx >= 0 {
			rest = rest[:idx]
		}
		body = strings.TrimSpace(rest)
	}
	if body == "" || body[0] == '{' || body[0] == '[' {
		return body
	}
	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(body, pair[0])
		end := strings.LastIndex(body, pair[1])
		if start >= 0 && end > start {
			return strings.TrimSpace(body[start : end+1])
		}
	}
	return body
}

func summarizePayloadSnippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	if clean == "" {
		return "<empty>"
	}
	const limit = 160
	if runes := []rune(clean); len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return clean
}
