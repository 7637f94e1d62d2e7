package tuning

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"newsboy/internal/logging"
	"newsboy/internal/prefs"
	"newsboy/internal/services"
	"newsboy/internal/store"
)

const historyDepth = 5

// ErrEmptyMessage rejects blank tuning requests.
var ErrEmptyMessage = errors.New("message is required")

// Outcome is the reply to one tuning request.
type Outcome struct {
	Response    string            `json:"response"`
	Changes     prefs.Changes     `json:"changes"`
	Preferences prefs.Preferences `json:"preferences"`
}

// Tuner applies conversational preference changes.
type Tuner struct {
	store  *store.Store
	parser Parser
	now    func() time.Time
	logger *slog.Logger
}

// NewTuner constructs a tuner. A nil parser answers every request with the
// apology and changes nothing.
func NewTuner(st *store.Store, parser Parser, logger *slog.Logger) *Tuner {
	return &Tuner{
		store:  st,
		parser: parser,
		now:    time.Now,
		logger: logging.NewComponentLogger(logger, "tuning"),
	}
}

// SetClock overrides the log timestamp clock.
func (t *Tuner) SetClock(now func() time.Time) {
	if now != nil {
		t.now = now
	}
}

// Tune interprets message, merges the changes into the stored preferences and
// appends a tuning log. Parser failures still log the exchange.
func (t *Tuner) Tune(ctx context.Context, message string) (Outcome, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Outcome{}, services.Wrap(services.ErrValidation, "tuning", "tune", "empty message", ErrEmptyMessage)
	}

	current, err := t.store.GetPreferences(ctx)
	if err != nil {
		return Outcome{}, err
	}
	tc, err := t.buildContext(ctx, current)
	if err != nil {
		return Outcome{}, err
	}

	result := Result{Response: Apology}
	if t.parser != nil {
		parsed, err := t.parser.Parse(ctx, message, tc)
		if err != nil {
			attrs := append(logging.ErrorAttrs(err), logging.String(logging.FieldImpact, "preferences unchanged"))
			logging.WarnWithContext(t.logger, "tuning parse failed", "tuning_parse_failed", attrs...)
		} else {
			result = parsed
		}
	}

	updated := current
	if !result.Changes.Empty() {
		updated = current.Apply(result.Changes)
		if err := t.store.SavePreferences(ctx, updated); err != nil {
			return Outcome{}, err
		}
	}
	if err := t.store.AppendTuningLog(ctx, &store.TuningLog{
		Input:         message,
		ParsedChanges: result.Changes,
		ResponseText:  result.Response,
		CreatedAt:     t.now(),
	}); err != nil {
		return Outcome{}, err
	}
	t.logger.Info("preferences tuned",
		logging.String(logging.FieldEventType, "preferences_tuned"),
		logging.Bool("changed", !result.Changes.Empty()),
	)
	return Outcome{Response: result.Response, Changes: result.Changes, Preferences: updated}, nil
}

func (t *Tuner) buildContext(ctx context.Context, current prefs.Preferences) (Context, error) {
	sources, err := t.store.ListSources(ctx, true)
	if err != nil {
		return Context{}, err
	}
	logs, err := t.store.RecentTuningLogs(ctx, historyDepth)
	if err != nil {
		return Context{}, err
	}
	tc := Context{
		CurrentPreferences: current,
		AvailableSources:   make([]SourceRef, 0, len(sources)),
		RecentTuning:       make([]Exchange, 0, len(logs)),
	}
	for _, src := range sources {
		tc.AvailableSources = append(tc.AvailableSources, SourceRef{ID: src.ID, Name: src.Name, Category: src.Category})
	}
	for _, entry := range logs {
		tc.RecentTuning = append(tc.RecentTuning, Exchange{Input: entry.Input, Parsed: entry.ParsedChanges, Response: entry.ResponseText})
	}
	return tc, nil
}
