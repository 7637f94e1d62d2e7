package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"newsboy/internal/api"
	"newsboy/internal/feedview"
	"newsboy/internal/logging"
	"newsboy/internal/pipeline"
	"newsboy/internal/prefs"
	"newsboy/internal/store"
	"newsboy/internal/testsupport"
	"newsboy/internal/tuning"
)

type controllerStub struct {
	mu        sync.Mutex
	submitted []pipeline.Operation
	days      []time.Time
	err       error
}

func (c *controllerStub) Status(context.Context) api.DaemonStatus {
	return api.DaemonStatus{Running: true, Phase: "idle", LastBatchDate: "2026-04-01"}
}

func (c *controllerStub) Submit(op pipeline.Operation, day time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.submitted = append(c.submitted, op)
	c.days = append(c.days, day)
	return nil
}

type fixture struct {
	store      *store.Store
	router     *gin.Engine
	controller *controllerStub
	now        time.Time
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	now := time.Date(2026, 4, 2, 1, 30, 0, 0, time.UTC)
	ctrl := &controllerStub{}
	router := api.NewRouter(api.Deps{
		Store:      st,
		Tuner:      tuning.NewTuner(st, nil, logging.NewNop()),
		Controller: ctrl,
		Logger:     logging.NewNop(),
		Token:      token,
		Now:        func() time.Time { return now },
	})
	return &fixture{store: st, router: router, controller: ctrl, now: now}
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return out
}

func TestBearerAuth(t *testing.T) {
	f := newFixture(t, "sekrit")

	if w := f.do(t, http.MethodGet, "/api/sources", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/sources", "", "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
	w := f.do(t, http.MethodGet, "/api/sources", "", "Authorization", "Bearer sekrit")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
}

func TestStatusAndBatch(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(t, http.MethodGet, "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	status := decode[api.DaemonStatus](t, w)
	if !status.Running || status.LastBatchDate != "2026-04-01" || status.Counts == nil {
		t.Fatalf("unexpected status %+v", status)
	}

	w = f.do(t, http.MethodPost, "/api/batch", `{"operation":"run-full"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[api.BatchResponse](t, w)
	if resp.Operation != "run-full" || resp.Date != "2026-04-02" {
		t.Fatalf("unexpected batch response %+v", resp)
	}

	w = f.do(t, http.MethodPost, "/api/batch", `{"operation":"generate-briefing","date":"2026-03-30"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 for dated op, got %d", w.Code)
	}
	if got := f.controller.days[1].Format("2006-01-02"); got != "2026-03-30" {
		t.Fatalf("expected requested date forwarded, got %s", got)
	}

	if w := f.do(t, http.MethodPost, "/api/batch", `{"operation":"launch"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown op, got %d", w.Code)
	}

	f.controller.err = pipeline.ErrBusy
	if w := f.do(t, http.MethodPost, "/api/batch", `{"operation":"run-full"}`); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while busy, got %d", w.Code)
	}
}

func TestFeedGatesByRevealHour(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	w := f.do(t, http.MethodGet, "/api/feed", "")
	view := decode[feedview.View](t, w)
	if !view.Fallback || len(view.Articles) != 0 {
		t.Fatalf("expected empty fallback feed, got %+v", view)
	}

	src := testsupport.MustAddSource(t, f.store, "Widgets", "https://widgets.example/rss")
	arts := testsupport.MustInsertArticles(t, f.store, src, "w", 3, f.now.Add(-time.Hour))
	slots := []store.Slot{
		{ArticleID: arts[0].ID, RevealHour: 0, Position: 0},
		{ArticleID: arts[1].ID, RevealHour: 1, Position: 1},
		{ArticleID: arts[2].ID, RevealHour: 4, Position: 2},
	}
	if err := f.store.InsertSlots(ctx, f.now, slots); err != nil {
		t.Fatalf("InsertSlots: %v", err)
	}

	w = f.do(t, http.MethodGet, "/api/feed", "")
	view = decode[feedview.View](t, w)
	if view.Fallback || view.Revealed != 2 || view.Total != 3 {
		t.Fatalf("expected 2 of 3 revealed at 01:30, got %+v", view)
	}
	if view.NextRevealHour == nil || *view.NextRevealHour != 4 {
		t.Fatalf("expected next reveal at 4, got %v", view.NextRevealHour)
	}

	if w := f.do(t, http.MethodGet, "/api/feed?limit=abc", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestBriefingRoutes(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	w := f.do(t, http.MethodGet, "/api/briefing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any briefing, got %d", w.Code)
	}
	if msg := decode[api.ErrorResponse](t, w).Error; msg != api.NoBriefingMessage {
		t.Fatalf("unexpected not-found message %q", msg)
	}

	for _, day := range []time.Time{f.now.AddDate(0, 0, -1), f.now} {
		if _, err := f.store.CreateBriefing(ctx, &store.Briefing{
			Date:        day,
			SummaryText: "Mornin' gov'nor! " + day.Format("2006-01-02"),
			GeneratedAt: day,
		}); err != nil {
			t.Fatalf("CreateBriefing: %v", err)
		}
	}

	w = f.do(t, http.MethodGet, "/api/briefing", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var today struct {
		IsToday      bool   `json:"isToday"`
		PreviousDate string `json:"previousDate"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &today); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !today.IsToday || today.PreviousDate != "2026-04-01" {
		t.Fatalf("unexpected today view %+v", today)
	}

	if w := f.do(t, http.MethodGet, "/api/briefing/2026-04-01", ""); w.Code != http.StatusOK {
		t.Fatalf("expected dated briefing, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/briefing/not-a-date", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/briefings", "")
	var list struct {
		Briefings []struct {
			Date string `json:"date"`
		} `json:"briefings"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Briefings) != 2 || list.Briefings[0].Date != "2026-04-02" {
		t.Fatalf("expected newest first, got %+v", list.Briefings)
	}
}

func TestPreferencesReplaceAndTune(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(t, http.MethodGet, "/api/preferences", "")
	if got := decode[prefs.Preferences](t, w); !got.PreferVisual || len(got.Interests) != 0 {
		t.Fatalf("expected lazy defaults, got %+v", got)
	}

	if w := f.do(t, http.MethodPut, "/api/preferences", `{"interests":{"go":1,"rust":0.5},"moodBalance":3}`); w.Code != http.StatusOK {
		t.Fatalf("put: %d %s", w.Code, w.Body.String())
	}
	w = f.do(t, http.MethodPut, "/api/preferences", `{"interests":{"ocaml":0.7}}`)
	got := decode[prefs.Preferences](t, w)
	if len(got.Interests) != 1 || got.Interests["ocaml"] != 0.7 {
		t.Fatalf("expected interests replaced outright, got %v", got.Interests)
	}
	if got.MoodBalance != 1 {
		t.Fatalf("expected mood clamped to 1, got %v", got.MoodBalance)
	}

	w = f.do(t, http.MethodPost, "/api/tune", `{"message":"more cats please"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("tune: %d %s", w.Code, w.Body.String())
	}
	if out := decode[tuning.Outcome](t, w); out.Response != tuning.Apology {
		t.Fatalf("expected apology without a parser, got %q", out.Response)
	}
	if w := f.do(t, http.MethodPost, "/api/tune", `{"message":"   "}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank message, got %d", w.Code)
	}
}

func TestSourcesAddAndImport(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(t, http.MethodPost, "/api/sources", `{"name":"XKCD","feedUrl":"https://xkcd.com/rss.xml"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("add: %d %s", w.Code, w.Body.String())
	}
	if src := decode[store.Source](t, w); src.ContentType != store.ContentWebcomic || !src.Enabled {
		t.Fatalf("expected enabled webcomic source, got %+v", src)
	}
	if w := f.do(t, http.MethodPost, "/api/sources", `{"name":"XKCD","feedUrl":"https://xkcd.com/rss.xml"}`); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/sources", `{"name":"Nothing"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without feedUrl, got %d", w.Code)
	}

	doc := `<?xml version="1.0"?><opml version="2.0"><body>
<outline text="Tech"><outline text="Widget Weekly" xmlUrl="https://widgets.example/rss"/></outline>
<outline text="XKCD" xmlUrl="https://xkcd.com/rss.xml"/>
</body></opml>`
	req := httptest.NewRequest(http.MethodPost, "/api/sources/import", strings.NewReader(doc))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("import: %d %s", rec.Code, rec.Body.String())
	}
	var report struct{ Added, Skipped int }
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Added != 1 || report.Skipped != 1 {
		t.Fatalf("expected 1 added 1 skipped, got %+v", report)
	}

	w = f.do(t, http.MethodGet, "/api/sources", "")
	var list struct {
		Sources []store.Source `json:"sources"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode sources: %v", err)
	}
	if len(list.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(list.Sources))
	}
}
