// Package notifications publishes pipeline summaries and failures to ntfy.
//
// NewService returns a no-op notifier when no topic is configured, so callers
// publish unconditionally. Per-kind toggles in the config silence pipeline
// summaries or error alerts independently.
package notifications
