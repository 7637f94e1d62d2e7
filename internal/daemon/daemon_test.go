package daemon_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"newsboy/internal/api"
	"newsboy/internal/config"
	"newsboy/internal/daemon"
	"newsboy/internal/feeds"
	"newsboy/internal/ingest"
	"newsboy/internal/logging"
	"newsboy/internal/pipeline"
	"newsboy/internal/store"
	"newsboy/internal/testsupport"
)

// flakyFetcher cancels the run while failing is set.
type flakyFetcher struct {
	failing atomic.Bool
	cancel  context.CancelFunc
}

func (f *flakyFetcher) Fetch(ctx context.Context, _ string) (*feeds.Feed, error) {
	if f.failing.Load() && f.cancel != nil {
		f.cancel()
		return nil, ctx.Err()
	}
	return &feeds.Feed{Title: "Widgets"}, nil
}

func newDaemon(t *testing.T, cfg *config.Config, st *store.Store, clock *testsupport.Clock, fetcher ingest.FeedFetcher) *daemon.Daemon {
	t.Helper()
	opts := []pipeline.Option{
		pipeline.WithClock(clock.Now),
		pipeline.WithSummarizer(nil),
		pipeline.WithGenerator(nil),
	}
	if fetcher != nil {
		opts = append(opts, pipeline.WithFetcher(fetcher))
	}
	p := pipeline.New(cfg, st, logging.NewNop(), opts...)
	d, err := daemon.New(cfg, p, logging.NewNop(), daemon.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func lastBatch(t *testing.T, st *store.Store) string {
	t.Helper()
	last, err := st.LastBatchDate(context.Background())
	if err != nil {
		t.Fatalf("LastBatchDate: %v", err)
	}
	if last == nil {
		return ""
	}
	return last.Format("2006-01-02")
}

func TestTickFiresAfterRestartAndOnlyOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTrigger(6, 0))
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	if err := st.SetLastBatchDate(ctx, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("SetLastBatchDate: %v", err)
	}
	clock := testsupport.NewClock(time.Date(2026, 4, 2, 14, 0, 0, 0, time.UTC))
	d := newDaemon(t, cfg, st, clock, nil)
	if err := d.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	fired, err := d.Tick(ctx)
	if err != nil || !fired {
		t.Fatalf("expected late tick to fire, got %v %v", fired, err)
	}
	if got := lastBatch(t, st); got != "2026-04-02" {
		t.Fatalf("expected marker for today, got %q", got)
	}

	clock.Advance(time.Minute)
	if fired, _ := d.Tick(ctx); fired {
		t.Fatal("expected no second fire on the same day")
	}

	clock.Set(time.Date(2026, 4, 3, 5, 59, 0, 0, time.UTC))
	if fired, _ := d.Tick(ctx); fired {
		t.Fatal("expected no fire before tomorrow's trigger")
	}
	clock.Set(time.Date(2026, 4, 3, 6, 0, 0, 0, time.UTC))
	if fired, err := d.Tick(ctx); err != nil || !fired {
		t.Fatalf("expected fire at tomorrow's trigger, got %v %v", fired, err)
	}

	runs, err := st.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	for _, run := range runs {
		if run.Operation != string(pipeline.OpRunFull) || run.Status != store.RunCompleted {
			t.Fatalf("unexpected run %+v", run)
		}
	}
}

func TestManualRunForOtherDateKeepsTodaysTrigger(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTrigger(6, 0))
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	clock := testsupport.NewClock(time.Date(2026, 4, 2, 3, 0, 0, 0, time.UTC))
	d := newDaemon(t, cfg, st, clock, nil)
	if err := d.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	tomorrow := time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC)
	if _, err := d.Run(ctx, pipeline.OpRunFull, tomorrow); err != nil {
		t.Fatalf("manual run for tomorrow: %v", err)
	}
	if got := lastBatch(t, st); got != "" {
		t.Fatalf("expected marker untouched by a run for another date, got %q", got)
	}

	clock.Set(time.Date(2026, 4, 2, 6, 1, 0, 0, time.UTC))
	fired, err := d.Tick(ctx)
	if err != nil || !fired {
		t.Fatalf("expected today's trigger to fire, got %v %v", fired, err)
	}
	if got := lastBatch(t, st); got != "2026-04-02" {
		t.Fatalf("expected marker for today, got %q", got)
	}

	// A manual run for today after the batch leaves the marker where it is.
	if _, err := d.Run(ctx, pipeline.OpRunFull, time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("manual run for today: %v", err)
	}
	if fired, _ := d.Tick(ctx); fired {
		t.Fatal("expected no second scheduled fire today")
	}
}

func TestTickRetriesAfterFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTrigger(0, 0))
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustAddSource(t, st, "Widgets", "https://widgets.example/rss")
	clock := testsupport.NewClock(time.Date(2026, 4, 2, 0, 1, 0, 0, time.UTC))
	fetcher := &flakyFetcher{}
	d := newDaemon(t, cfg, st, clock, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fetcher.cancel = cancel
	fetcher.failing.Store(true)

	fired, err := d.Tick(ctx)
	if !fired || err == nil {
		t.Fatalf("expected fired tick to fail, got %v %v", fired, err)
	}
	if got := lastBatch(t, st); got != "" {
		t.Fatalf("failed run must not set the marker, got %q", got)
	}
	if phase := d.Status(context.Background()).Phase; phase != daemon.PhaseIdle {
		t.Fatalf("expected idle after failure, got %s", phase)
	}

	fetcher.failing.Store(false)
	clock.Advance(time.Minute)
	fired, err = d.Tick(context.Background())
	if !fired || err != nil {
		t.Fatalf("expected retry to succeed, got %v %v", fired, err)
	}
	if got := lastBatch(t, st); got != "2026-04-02" {
		t.Fatalf("expected marker after retry, got %q", got)
	}
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustAddSource(t, st, "Widgets", "https://widgets.example/rss")
	clock := testsupport.NewClock(time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC))

	started := make(chan struct{})
	release := make(chan struct{})
	d := newDaemon(t, cfg, st, clock, blockingFetcher{started: started, release: release})

	done := make(chan error, 1)
	go func() {
		_, err := d.Run(context.Background(), pipeline.OpRunFull, clock.Now())
		done <- err
	}()
	<-started

	if _, err := d.Run(context.Background(), pipeline.OpGenerateBriefing, clock.Now()); !errors.Is(err, pipeline.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if _, err := d.Run(context.Background(), pipeline.OpGenerateBriefing, clock.Now()); err != nil {
		t.Fatalf("run after release failed: %v", err)
	}
}

type blockingFetcher struct {
	started chan struct{}
	release chan struct{}
}

func (f blockingFetcher) Fetch(ctx context.Context, _ string) (*feeds.Feed, error) {
	close(f.started)
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &feeds.Feed{Title: "Widgets"}, nil
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := testsupport.NewClock(time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC))
	// Today's batch already ran, so the immediate tick is a no-op.
	if err := st.SetLastBatchDate(ctx, clock.Now()); err != nil {
		t.Fatalf("SetLastBatchDate: %v", err)
	}

	d := newDaemon(t, cfg, st, clock, nil)
	t.Cleanup(d.Stop)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LastBatchDate == nil || status.LastBatchDate.Format("2006-01-02") != "2026-04-02" {
		t.Fatalf("expected restored marker, got %v", status.LastBatchDate)
	}
	if !status.NextRun.Equal(time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected next run tomorrow at midnight, got %v", status.NextRun)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}
	other := newDaemon(t, cfg, st, clock, nil)
	if err := other.Start(ctx); err == nil {
		other.Stop()
		t.Fatal("expected lock to block a second daemon")
	}

	resp, err := http.Get("http://" + status.APIAddress + "/api/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	var payload api.DaemonStatus
	err = json.NewDecoder(resp.Body).Decode(&payload)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !payload.Running || payload.LastBatchDate != "2026-04-02" {
		t.Fatalf("unexpected API status %+v", payload)
	}

	if err := d.Submit(pipeline.OpGenerateBriefing, clock.Now()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for d.Status(ctx).Phase != daemon.PhaseIdle {
		if time.Now().After(deadline) {
			t.Fatal("submitted run did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if b, err := st.GetBriefing(ctx, clock.Now()); err != nil || b == nil {
		t.Fatalf("expected briefing from submitted run, got %v %v", b, err)
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
	if err := d.Submit(pipeline.OpGenerateBriefing, clock.Now()); err == nil {
		t.Fatal("expected Submit to fail after Stop")
	}
}
