// Package llm provides an OpenRouter chat client for the briefing and
// preference-tuning collaborators.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.CompleteJSON: send system/user prompts, receive a JSON payload.
// Client.CompleteText: send a conversation, receive free-form text.
// Client.HealthCheck: verify API key and model availability.
// DecodeLLMJSON: tolerant decoding of model output (code fences, chatter).
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, empty completions, and
// network timeouts with exponential backoff (base 1s, max 10s, up to 5
// attempts by default). Retry-After is honoured. Context cancellation aborts
// retries immediately. Final errors carry services markers: ErrRateLimited,
// ErrTimeout, ErrConfiguration (missing or rejected key), ErrExternalTool.
//
// # Fallback
//
// Callers never let an LLM failure abort a pipeline stage; they fall back to
// local text instead.
package llm
