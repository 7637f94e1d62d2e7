package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"newsboy/internal/config"
)

const userAgent = "Newsboy/1.0"

// Event names a notification kind.
type Event string

const (
	EventPipelineCompleted Event = "pipeline_completed"
	EventError             Event = "error"
	EventTest              Event = "test"
)

// Payload carries event fields.
type Payload map[string]any

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		pipeline: cfg.Notifications.Pipeline,
		errors:   cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	pipeline bool
	errors   bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	var msg message
	switch event {
	case EventPipelineCompleted:
		if !n.pipeline {
			return nil
		}
		msg = pipelineMessage(payload)
	case EventError:
		if !n.errors {
			return nil
		}
		msg = errorMessage(payload)
	case EventTest:
		msg = message{
			title:    "Newsboy - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"newsboy", "test"},
			priority: "low",
		}
	default:
		return nil
	}
	return n.send(ctx, msg)
}

func pipelineMessage(p Payload) message {
	operation := stringValue(p, "operation")
	if operation == "" {
		operation = "pipeline"
	}
	var parts []string
	for _, key := range []struct{ field, label string }{
		{"ingested", "new"},
		{"scheduled", "scheduled"},
		{"illustrated", "illustrated"},
		{"failedSources", "failed sources"},
	} {
		if v, ok := p[key.field]; ok {
			parts = append(parts, fmt.Sprintf("%v %s", v, key.label))
		}
	}
	body := fmt.Sprintf("🗞️ %s finished for %s", operation, stringValue(p, "date"))
	if len(parts) > 0 {
		body += ": " + strings.Join(parts, ", ")
	}
	if d, ok := p["duration"].(time.Duration); ok {
		body += fmt.Sprintf(" in %s", d.Round(time.Second))
	}
	return message{
		title: "Newsboy - Pipeline Complete",
		body:  body,
		tags:  []string{"newsboy", "pipeline", "completed"},
	}
}

func errorMessage(p Payload) message {
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if label := stringValue(p, "context"); label != "" {
		builder.WriteString(" with ")
		builder.WriteString(label)
	}
	builder.WriteString(": ")
	switch v := p["error"].(type) {
	case error:
		builder.WriteString(strings.TrimSpace(v.Error()))
	case string:
		builder.WriteString(strings.TrimSpace(v))
	default:
		builder.WriteString("unknown")
	}
	return message{
		title:    "Newsboy - Error",
		body:     builder.String(),
		tags:     []string{"newsboy", "error", "alert"},
		priority: "high",
	}
}

func stringValue(p Payload, key string) string {
	if v, ok := p[key]; ok && v != nil {
		return strings.TrimSpace(fmt.Sprint(v))
	}
	return ""
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
