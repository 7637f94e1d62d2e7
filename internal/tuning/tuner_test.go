package tuning_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"newsboy/internal/logging"
	"newsboy/internal/prefs"
	"newsboy/internal/services/llm"
	"newsboy/internal/testsupport"
	"newsboy/internal/tuning"
)

type stubParser struct {
	result tuning.Result
	err    error
	seen   tuning.Context
}

func (s *stubParser) Parse(_ context.Context, _ string, tc tuning.Context) (tuning.Result, error) {
	s.seen = tc
	return s.result, s.err
}

func TestTuneMergesChangesAndLogs(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	src := testsupport.MustAddSource(t, st, "Robot Weekly", "https://robots.example/feed")

	seed := prefs.Default()
	seed.Interests = prefs.WeightMap{"politics": 0.5, "cooking": 0.2}
	if err := st.SavePreferences(ctx, seed); err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}

	mood := 3.0
	parser := &stubParser{result: tuning.Result{
		Changes: prefs.Changes{
			Interests:   prefs.WeightMap{"robots": 0.8, "politics": 0},
			MoodBalance: &mood,
		},
		Response: "More robots, gov'nor!",
	}}
	tuner := tuning.NewTuner(st, parser, logging.NewNop())

	out, err := tuner.Tune(ctx, "  more robots, no politics  ")
	if err != nil {
		t.Fatalf("Tune: %v", err)
	}
	if out.Response != "More robots, gov'nor!" {
		t.Fatalf("unexpected response %q", out.Response)
	}
	got := out.Preferences
	if _, ok := got.Interests["politics"]; ok {
		t.Fatal("expected politics removed by zero weight")
	}
	if got.Interests["robots"] != 0.8 || got.Interests["cooking"] != 0.2 {
		t.Fatalf("unexpected interests %+v", got.Interests)
	}
	if got.MoodBalance != 1 {
		t.Fatalf("expected mood clamped to 1, got %v", got.MoodBalance)
	}

	stored, err := st.GetPreferences(ctx)
	if err != nil {
		t.Fatalf("GetPreferences: %v", err)
	}
	if stored.Interests["robots"] != 0.8 {
		t.Fatalf("changes not persisted: %+v", stored)
	}

	if len(parser.seen.AvailableSources) != 1 || parser.seen.AvailableSources[0].ID != src.ID {
		t.Fatalf("unexpected sources in context %+v", parser.seen.AvailableSources)
	}

	logs, err := st.RecentTuningLogs(ctx, 5)
	if err != nil {
		t.Fatalf("RecentTuningLogs: %v", err)
	}
	if len(logs) != 1 || logs[0].Input != "more robots, no politics" {
		t.Fatalf("unexpected logs %+v", logs)
	}
}

func TestTuneParserFailureApologizesAndStillLogs(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	tuner := tuning.NewTuner(st, &stubParser{err: errors.New("garbled")}, logging.NewNop())

	out, err := tuner.Tune(ctx, "make it spicier")
	if err != nil {
		t.Fatalf("Tune: %v", err)
	}
	if out.Response != tuning.Apology || !out.Changes.Empty() {
		t.Fatalf("unexpected outcome %+v", out)
	}
	logs, err := st.RecentTuningLogs(ctx, 5)
	if err != nil {
		t.Fatalf("RecentTuningLogs: %v", err)
	}
	if len(logs) != 1 || logs[0].ResponseText != tuning.Apology {
		t.Fatalf("expected apology logged, got %+v", logs)
	}
}

func TestTuneHistoryFeedsContext(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	parser := &stubParser{result: tuning.Result{Response: "ok"}}
	tuner := tuning.NewTuner(st, parser, logging.NewNop())
	clock := testsupport.NewClock(time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC))
	tuner.SetClock(clock.Now)

	for _, msg := range []string{"one", "two", "three", "four", "five", "six"} {
		if _, err := tuner.Tune(ctx, msg); err != nil {
			t.Fatalf("Tune %s: %v", msg, err)
		}
		clock.Advance(time.Minute)
	}
	if _, err := tuner.Tune(ctx, "seven"); err != nil {
		t.Fatalf("Tune seven: %v", err)
	}
	hist := parser.seen.RecentTuning
	if len(hist) != 5 || hist[0].Input != "two" || hist[4].Input != "six" {
		t.Fatalf("unexpected history %+v", hist)
	}
}

func TestTuneRejectsEmptyMessage(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	tuner := tuning.NewTuner(st, nil, logging.NewNop())
	if _, err := tuner.Tune(context.Background(), "   "); !errors.Is(err, tuning.ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestLLMParserDecodesReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || !strings.Contains(req.Messages[1].Content, `"availableSources"`) {
			t.Errorf("context missing from user prompt: %+v", req.Messages)
		}
		reply := "```json\n{\"changes\":{\"sourceWeights\":{\"3\":-0.5}},\"response\":\"Fewer of them, gov'nor.\"}\n```"
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": reply}}},
		})
	}))
	defer server.Close()

	parser := tuning.NewLLMParser(llm.NewClient(llm.Config{APIKey: "k", BaseURL: server.URL, Model: "m"}))
	res, err := parser.Parse(context.Background(), "less of source 3", tuning.Context{CurrentPreferences: prefs.Default()})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.Changes.SourceWeights["3"] != -0.5 || res.Response != "Fewer of them, gov'nor." {
		t.Fatalf("unexpected result %+v", res)
	}
	if tuning.NewLLMParser(llm.NewClient(llm.Config{})) != nil {
		t.Fatal("expected nil parser without key")
	}
}
