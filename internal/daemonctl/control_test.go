package daemonctl_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"newsboy/internal/api"
	"newsboy/internal/daemonctl"
	"newsboy/internal/pipeline"
	"newsboy/internal/store"
	"newsboy/internal/testsupport"
)

func TestClientTriggerAndWait(t *testing.T) {
	started := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	var gotAuth string
	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/api/batch":
			var req api.BatchRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode batch: %v", err)
			}
			if req.Operation == "regenerate-today" {
				w.WriteHeader(http.StatusConflict)
				_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "busy"})
				return
			}
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(api.BatchResponse{Status: "started", Operation: req.Operation, Date: "2026-04-02"})
		case "/api/status":
			polls++
			status := api.DaemonStatus{Running: true, Phase: "running"}
			if polls > 1 {
				status.Phase = "idle"
				status.LastRun = &store.Run{ID: "r1", Status: store.RunCompleted, StartedAt: started.Add(time.Second)}
			}
			_ = json.NewEncoder(w).Encode(status)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := daemonctl.New(srv.URL, "sekrit")
	ctx := context.Background()

	resp, err := client.Trigger(ctx, pipeline.OpRunFull, "")
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if resp.Operation != "run-full" || gotAuth != "Bearer sekrit" {
		t.Fatalf("unexpected response %+v auth %q", resp, gotAuth)
	}

	if _, err := client.Trigger(ctx, pipeline.OpRegenerateToday, ""); !errors.Is(err, pipeline.ErrBusy) {
		t.Fatalf("expected ErrBusy on 409, got %v", err)
	}

	run, err := client.WaitForRun(ctx, started, time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForRun: %v", err)
	}
	if run.ID != "r1" || polls != 2 {
		t.Fatalf("unexpected run %+v after %d polls", run, polls)
	}
}

func TestClientUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := daemonctl.New(url, "").Status(context.Background())
	if !daemonctl.IsUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestProcessInfoFollowsLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	running, _, err := daemonctl.ProcessInfo(cfg)
	if err != nil || running {
		t.Fatalf("expected no daemon, got %v %v", running, err)
	}

	lock := flock.New(cfg.Paths.LogDir + "/newsboyd.lock")
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer lock.Unlock()

	running, _, err = daemonctl.ProcessInfo(cfg)
	if err != nil || !running {
		t.Fatalf("expected held lock to report running, got %v %v", running, err)
	}
}

func TestAcquireLockExcludesDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	lock, err := daemonctl.AcquireLock(cfg)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	running, _, err := daemonctl.ProcessInfo(cfg)
	if err != nil || !running {
		t.Fatalf("expected held lock to look like a running daemon, got %v %v", running, err)
	}
	if _, err := daemonctl.AcquireLock(cfg); !errors.Is(err, daemonctl.ErrLocked) {
		t.Fatalf("expected ErrLocked for a second holder, got %v", err)
	}

	if err := lock.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	again, err := daemonctl.AcquireLock(cfg)
	if err != nil {
		t.Fatalf("AcquireLock after release: %v", err)
	}
	_ = again.Unlock()
}

func TestFromConfigResolvesWildcardHost(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Host
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true})
	}))
	defer srv.Close()

	_, port, _ := splitPort(srv.URL)
	cfg.Paths.APIBind = "0.0.0.0:" + port
	if _, err := daemonctl.FromConfig(cfg).Status(context.Background()); err != nil {
		t.Fatalf("Status: %v", err)
	}
	if seen != "127.0.0.1:"+port {
		t.Fatalf("expected loopback host, got %q", seen)
	}
}

func splitPort(rawURL string) (string, string, error) {
	u := rawURL[len("http://"):]
	for i := len(u) - 1; i >= 0; i-- {
		if u[i] == ':' {
			return u[:i], u[i+1:], nil
		}
	}
	return u, "", errors.New("no port")
}
