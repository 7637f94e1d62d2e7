package preflight_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"newsboy/internal/preflight"
	"newsboy/internal/testsupport"
)

func TestCheckDirectoryAccess(t *testing.T) {
	if result := preflight.CheckDirectoryAccess("test", t.TempDir()); !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
	if result := preflight.CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope")); result.Passed || result.Detail == "" {
		t.Fatalf("expected failure with detail for missing dir, got %+v", result)
	}

	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := preflight.CheckDirectoryAccess("test", f); result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckReplicate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/account" || r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if result := preflight.CheckReplicate(context.Background(), srv.URL, "good-token"); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	result := preflight.CheckReplicate(context.Background(), srv.URL, "bad-token")
	if result.Passed || !strings.Contains(result.Detail, "invalid api token") {
		t.Fatalf("expected auth failure, got %+v", result)
	}
	if result := preflight.CheckReplicate(context.Background(), "", "token"); result.Passed {
		t.Fatal("expected failure for missing base url")
	}
}

func TestCheckLLMWithoutKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	result := preflight.CheckLLM(context.Background(), "OpenRouter", cfg.GetLLM())
	if result.Passed {
		t.Fatal("expected failure without api key")
	}
}

func TestRunAllNilConfig(t *testing.T) {
	if results := preflight.RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAllOfflineConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := preflight.RunAll(context.Background(), cfg)
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
	}
	want := "Data directory,Log directory,Database,OpenRouter,Replicate,Redis"
	if got := strings.Join(names, ","); got != want {
		t.Fatalf("unexpected checks: %s", got)
	}
	if failed := preflight.Failed(results); len(failed) != 0 {
		t.Fatalf("expected every check to pass offline, got %+v", failed)
	}
}

func TestRunAllFlagsTokenlessIllustrations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	cfg.Illustration.Enabled = true
	cfg.Illustration.APIToken = ""

	failed := preflight.Failed(preflight.RunAll(context.Background(), cfg))
	if len(failed) != 1 || failed[0].Name != "Replicate" {
		t.Fatalf("expected only the Replicate check to fail, got %+v", failed)
	}
}
