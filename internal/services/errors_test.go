package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"newsboy/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "ingest", "fetch", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"ingest", "fetch", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestFailureStatusMapping(t *testing.T) {
	cfgErr := services.Wrap(services.ErrConfiguration, "briefing", "summarize", "missing key", nil)
	if status := services.FailureStatus(cfgErr); status != services.StatusSkipped {
		t.Fatalf("expected skipped for configuration error, got %s", status)
	}

	transientErr := services.Wrap(services.ErrTransient, "ingest", "store", "insert failed", errors.New("io"))
	if status := services.FailureStatus(transientErr); status != services.StatusFailed {
		t.Fatalf("expected failed for transient error, got %s", status)
	}

	if status := services.FailureStatus(nil); status != services.StatusFailed {
		t.Fatalf("expected failed for nil error, got %s", status)
	}
}

func TestRetryable(t *testing.T) {
	if services.Retryable(nil) {
		t.Fatal("nil error should not be retryable")
	}
	if services.Retryable(fmt.Errorf("outer: %w", services.ErrValidation)) {
		t.Fatal("validation error should not be retryable")
	}
	if !services.Retryable(services.Wrap(services.ErrRateLimited, "illustration", "create", "429", nil)) {
		t.Fatal("rate limit should be retryable")
	}
}

func TestDetailsClassifiesMarkers(t *testing.T) {
	cases := []struct {
		marker error
		kind   string
		hint   bool
	}{
		{services.ErrConfiguration, "configuration", true},
		{services.ErrValidation, "validation", true},
		{services.ErrNotFound, "not_found", false},
		{services.ErrRateLimited, "rate_limited", true},
		{services.ErrTimeout, "timeout", true},
		{services.ErrExternalTool, "external", true},
		{services.ErrTransient, "transient", false},
	}
	for _, tc := range cases {
		details := services.Details(services.Wrap(tc.marker, "stage", "op", "msg", nil))
		if details.Kind != tc.kind {
			t.Fatalf("marker %v: expected kind %q, got %q", tc.marker, tc.kind, details.Kind)
		}
		if (details.Hint != "") != tc.hint {
			t.Fatalf("marker %v: unexpected hint %q", tc.marker, details.Hint)
		}
		if details.Message == "" {
			t.Fatalf("marker %v: expected message", tc.marker)
		}
	}
	if got := services.Details(nil); got != (services.ErrorDetails{}) {
		t.Fatalf("expected zero details for nil, got %+v", got)
	}
}
