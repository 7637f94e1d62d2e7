// Package replicate wraps the Replicate predictions API used to draw crayon
// illustrations for articles that arrive without an image.
//
// NewClient returns nil without an API token; callers treat that as "skip".
// Generate creates a prediction, polls it to completion, and returns the
// first output URL. Rate limiting (HTTP 429) is retried with bounded
// exponential backoff.
package replicate
