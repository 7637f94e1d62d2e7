package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"newsboy/internal/services"
)

const (
	defaultBaseURL      = "https://api.replicate.com/v1"
	defaultHTTPTimeout  = 120 * time.Second
	defaultPollInterval = 2 * time.Second
	defaultBaseDelay    = 2 * time.Second
	defaultMaxDelay     = 30 * time.Second
	defaultGenerate     = 5 * time.Minute
)

// Prediction statuses reported by the API.
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// Config captures the runtime settings required to call Replicate.
type Config struct {
	APIToken       string
	BaseURL        string
	Model          string
	MaxRetries     int
	TimeoutSeconds int
	// GenerateTimeout bounds a whole Generate call. TimeoutSeconds only
	// limits each HTTP request.
	GenerateTimeout time.Duration
}

// Input is the model input for one image generation.
type Input struct {
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt,omitempty"`
	Width             int     `json:"width,omitempty"`
	Height            int     `json:"height,omitempty"`
	NumInferenceSteps int     `json:"num_inference_steps,omitempty"`
	GuidanceScale     float64 `json:"guidance_scale,omitempty"`
	Scheduler         string  `json:"scheduler,omitempty"`
}

// Client creates predictions and waits for their output.
type Client struct {
	cfg          Config
	httpClient   *http.Client
	pollInterval time.Duration
	backoff      services.Backoff
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

// WithPollInterval overrides the delay between prediction status checks.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = interval
	}
}

// WithRetryBackoff overrides the rate-limit backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.backoff.Base = baseDelay
		c.backoff.Max = maxDelay
	}
}

// WithSleeper replaces both the poll and the backoff wait.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.backoff.Sleep = sleeper
	}
}

// NewClient returns nil when no API token is configured so callers can treat
// a nil client as "illustrations disabled".
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIToken = strings.TrimSpace(cfg.APIToken)
	if cfg.APIToken == "" {
		return nil
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = defaultGenerate
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:          cfg,
		httpClient:   &http.Client{Timeout: timeout},
		pollInterval: defaultPollInterval,
		backoff:      services.Backoff{Base: defaultBaseDelay, Max: defaultMaxDelay},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

type statusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("replicate request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Generate runs one prediction and returns the first output URL. A 429 from
// the create call is retried up to MaxRetries times with exponential backoff,
// honouring Retry-After when present. The call gives up with ErrTimeout once
// GenerateTimeout has elapsed.
func (c *Client) Generate(ctx context.Context, input Input) (string, error) {
	if c == nil {
		return "", services.Wrap(services.ErrConfiguration, "replicate", "generate", "client disabled", nil)
	}
	if strings.TrimSpace(input.Prompt) == "" {
		return "", services.Wrap(services.ErrValidation, "replicate", "generate", "prompt required", nil)
	}
	genCtx, cancel := context.WithTimeout(ctx, c.cfg.GenerateTimeout)
	defer cancel()
	url, err := c.generate(genCtx, input)
	if err != nil && ctx.Err() == nil && errors.Is(genCtx.Err(), context.DeadlineExceeded) {
		return "", services.Wrap(services.ErrTimeout, "replicate", "generate",
			fmt.Sprintf("no result within %s", c.cfg.GenerateTimeout), err)
	}
	return url, err
}

func (c *Client) generate(ctx context.Context, input Input) (string, error) {
	var (
		pred *prediction
		err  error
	)
	for attempt := 0; ; attempt++ {
		pred, err = c.create(ctx, input)
		if err == nil {
			break
		}
		var se *statusError
		if !errors.As(err, &se) || se.StatusCode != http.StatusTooManyRequests {
			return "", classify(err)
		}
		if attempt >= c.cfg.MaxRetries {
			return "", services.Wrap(services.ErrRateLimited, "replicate", "create prediction",
				fmt.Sprintf("gave up after %d retries", attempt), err)
		}
		delay := se.RetryAfter
		if delay <= 0 {
			delay = c.backoff.Delay(attempt)
		}
		if err := c.backoff.Wait(ctx, delay); err != nil {
			return "", err
		}
	}

	for !terminal(pred.Status) {
		if pred.URLs.Get == "" {
			return "", services.Wrap(services.ErrExternalTool, "replicate", "poll prediction", "missing status url", nil)
		}
		if err := c.backoff.Wait(ctx, c.pollInterval); err != nil {
			return "", err
		}
		pred, err = c.fetch(ctx, pred.URLs.Get)
		if err != nil {
			return "", classify(err)
		}
	}

	if pred.Status != StatusSucceeded {
		return "", services.Wrap(services.ErrExternalTool, "replicate", "prediction "+pred.Status, fmt.Sprint(pred.Error), nil)
	}
	url := firstOutputURL(pred.Output)
	if url == "" {
		return "", services.Wrap(services.ErrExternalTool, "replicate", "prediction output", "no image url", nil)
	}
	return url, nil
}

func (c *Client) create(ctx context.Context, input Input) (*prediction, error) {
	body := map[string]any{"input": input}
	endpoint := c.cfg.BaseURL + "/predictions"
	owner, version, hasVersion := strings.Cut(c.cfg.Model, ":")
	if hasVersion {
		body["version"] = version
	} else if owner != "" {
		endpoint = c.cfg.BaseURL + "/models/" + owner + "/predictions"
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("replicate request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("replicate request: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "wait")
	return c.do(req)
}

func (c *Client) fetch(ctx context.Context, url string) (*prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("replicate request: new request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*prediction, error) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("replicate request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("replicate request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &statusError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
			RetryAfter: services.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	var pred prediction
	if err := json.Unmarshal(body, &pred); err != nil {
		return nil, fmt.Errorf("replicate request: decode response: %w", err)
	}
	return &pred, nil
}

func terminal(status string) bool {
	switch status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// firstOutputURL accepts both a bare string and an array of strings.
func firstOutputURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.TrimSpace(single)
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		for _, item := range many {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func classify(err error) error {
	var se *statusError
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", services.ErrTimeout, err)
	case errors.As(err, &se) && (se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden):
		return fmt.Errorf("%w: %w", services.ErrConfiguration, err)
	default:
		return fmt.Errorf("%w: %w", services.ErrExternalTool, err)
	}
}
