package services

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Backoff computes capped exponential delays for collaborator retries.
// A zero Base never waits.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
	// Sleep replaces the timer wait. Tests use it to record delays.
	Sleep func(time.Duration)
}

// Delay returns the wait before retry n, counting from zero: Base, 2*Base,
// 4*Base and so on, never above Max.
func (b Backoff) Delay(retry int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	delay := b.Base
	for i := 0; i < retry; i++ {
		if b.Max > 0 && delay > b.Max/2 {
			return b.Max
		}
		delay *= 2
	}
	return b.Cap(delay)
}

// Cap clamps a server supplied delay to Max.
func (b Backoff) Cap(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if b.Max > 0 && delay > b.Max {
		return b.Max
	}
	return delay
}

// Wait blocks for delay or until ctx ends, whichever is first.
func (b Backoff) Wait(ctx context.Context, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}
	if b.Sleep != nil {
		b.Sleep(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date. Missing, malformed or past values yield zero.
func ParseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if delay := time.Until(when); delay > 0 {
			return delay
		}
	}
	return 0
}
