// Package daemonctl lets the CLI find and drive a running daemon through its
// HTTP API and lock file.
package daemonctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"newsboy/internal/api"
	"newsboy/internal/config"
	"newsboy/internal/daemon"
	"newsboy/internal/daemonrun"
	"newsboy/internal/pipeline"
	"newsboy/internal/store"
)

// ErrUnavailable means no daemon answered on the configured address.
var ErrUnavailable = errors.New("daemon unavailable")

// ErrLocked means a daemon holds the lock, so an in-process run would race it.
var ErrLocked = errors.New("daemon lock held")

// Client calls the daemon HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New returns a client for baseURL (e.g. http://127.0.0.1:7488).
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// FromConfig targets the configured api_bind. Wildcard hosts resolve to
// loopback.
func FromConfig(cfg *config.Config) *Client {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	host, port, err := net.SplitHostPort(bind)
	if err == nil && (host == "" || host == "0.0.0.0" || host == "::") {
		bind = net.JoinHostPort("127.0.0.1", port)
	}
	return New("http://"+bind, cfg.Paths.APIToken)
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var status api.DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Trigger asks the daemon to start op. An empty date means today.
func (c *Client) Trigger(ctx context.Context, op pipeline.Operation, date string) (*api.BatchResponse, error) {
	var resp api.BatchResponse
	req := api.BatchRequest{Operation: string(op), Date: date}
	if err := c.do(ctx, http.MethodPost, "/api/batch", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WaitForRun polls until the daemon is idle with a last run that started at
// or after since, and returns that run.
func (c *Client) WaitForRun(ctx context.Context, since time.Time, interval time.Duration) (*store.Run, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		status, err := c.Status(ctx)
		if err != nil {
			return nil, err
		}
		if status.Phase == string(daemon.PhaseIdle) && status.LastRun != nil && !status.LastRun.StartedAt.Before(since) {
			return status.LastRun, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr api.ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr)
		msg := strings.TrimSpace(apiErr.Error)
		if msg == "" {
			msg = resp.Status
		}
		if resp.StatusCode == http.StatusConflict {
			return fmt.Errorf("%w: %s", pipeline.ErrBusy, msg)
		}
		return fmt.Errorf("daemon %s %s: %s", method, path, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ProcessInfo reports whether a daemon holds the lock, with its pid when the
// pid file is readable.
func ProcessInfo(cfg *config.Config) (bool, int, error) {
	lockPath := filepath.Join(cfg.Paths.LogDir, daemon.LockFileName)
	if _, err := os.Stat(lockPath); errors.Is(err, os.ErrNotExist) {
		return false, 0, nil
	}
	lock := flock.New(lockPath)
	acquired, err := lock.TryLock()
	if err != nil {
		return false, 0, fmt.Errorf("probe daemon lock: %w", err)
	}
	if acquired {
		_ = lock.Unlock()
		return false, 0, nil
	}
	pid := 0
	if data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, daemonrun.PIDFileName)); err == nil {
		pid, _ = strconv.Atoi(strings.TrimSpace(string(data)))
	}
	return true, pid, nil
}

// AcquireLock takes the daemon lock for an in-process run. The caller must
// Unlock it once the run ends. A daemon started meanwhile fails to start.
func AcquireLock(cfg *config.Config) (*flock.Flock, error) {
	lock := flock.New(filepath.Join(cfg.Paths.LogDir, daemon.LockFileName))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !acquired {
		return nil, ErrLocked
	}
	return lock, nil
}

// IsUnavailable reports whether err means the daemon could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
