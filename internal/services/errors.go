package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external service error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrRateLimited   = errors.New("rate limited")
)

// Run statuses persisted for a failed pipeline operation.
const (
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later status classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureStatus maps an operation error to the run status recorded in the
// runs table. Misconfiguration skips the operation; everything else fails it.
func FailureStatus(err error) string {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return StatusSkipped
	default:
		return StatusFailed
	}
}

// Retryable reports whether a later attempt could plausibly succeed.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return false
	default:
		return true
	}
}

// ErrorDetails is the log-friendly classification of an error.
type ErrorDetails struct {
	Kind    string
	Hint    string
	Message string
}

// Details classifies err for structured logging. Hints are short operator
// actions, empty when nothing useful can be suggested.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	d := ErrorDetails{Message: err.Error()}
	switch {
	case errors.Is(err, ErrConfiguration):
		d.Kind = "configuration"
		d.Hint = "check newsboy config and credentials"
	case errors.Is(err, ErrValidation):
		d.Kind = "validation"
		d.Hint = "inspect the offending input"
	case errors.Is(err, ErrNotFound):
		d.Kind = "not_found"
	case errors.Is(err, ErrRateLimited):
		d.Kind = "rate_limited"
		d.Hint = "lower request rate or wait for quota reset"
	case errors.Is(err, ErrTimeout):
		d.Kind = "timeout"
		d.Hint = "check network connectivity or raise the timeout"
	case errors.Is(err, ErrExternalTool):
		d.Kind = "external"
		d.Hint = "check the upstream service status"
	default:
		d.Kind = "transient"
	}
	return d
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
