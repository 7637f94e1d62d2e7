package drip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"newsboy/internal/logging"
	"newsboy/internal/store"
)

const defaultLookbackDays = 7

// Rescorer recomputes relevance before a regenerated plan is selected.
type Rescorer interface {
	Run(ctx context.Context, now time.Time) (int, error)
}

// Result describes what Schedule or Regenerate did.
type Result struct {
	Date       time.Time `json:"date"`
	Slots      int       `json:"slots"`
	Skipped    bool      `json:"skipped"`
	Removed    int       `json:"removed,omitempty"`
	LastHour   int       `json:"lastHour"`
	Candidates int       `json:"candidates"`
}

// Scheduler plans days.
type Scheduler struct {
	store        *store.Store
	mu           sync.RWMutex
	curve        Curve
	lookbackDays int
	rescorer     Rescorer
	logger       *slog.Logger
}

// NewScheduler constructs a scheduler. rescorer may be nil, in which case
// Regenerate keeps existing scores.
func NewScheduler(st *store.Store, curve Curve, lookbackDays int, rescorer Rescorer, logger *slog.Logger) *Scheduler {
	if lookbackDays <= 0 {
		lookbackDays = defaultLookbackDays
	}
	return &Scheduler{
		store:        st,
		curve:        curve,
		lookbackDays: lookbackDays,
		rescorer:     rescorer,
		logger:       logging.NewComponentLogger(logger, "drip"),
	}
}

// SetLogger swaps the logger.
func (s *Scheduler) SetLogger(logger *slog.Logger) {
	s.logger = logging.NewComponentLogger(logger, "drip")
}

// SetCurve replaces the release curve, e.g. after a config reload.
func (s *Scheduler) SetCurve(curve Curve) {
	s.mu.Lock()
	s.curve = curve
	s.mu.Unlock()
}

// Curve returns the active release curve.
func (s *Scheduler) Curve() Curve {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.curve
}

// Schedule plans day unless it already has slots. Articles already placed on
// any day are not reused.
func (s *Scheduler) Schedule(ctx context.Context, day, now time.Time) (Result, error) {
	result := Result{Date: store.DayOf(day, s.store.Location())}
	existing, err := s.store.SlotCount(ctx, day)
	if err != nil {
		return result, err
	}
	if existing > 0 {
		result.Skipped = true
		result.Slots = existing
		s.logger.Info("day already scheduled",
			logging.String(logging.FieldEventType, "drip_skip_existing"),
			logging.String("date", result.Date.Format("2006-01-02")),
			logging.Int("slots", existing),
		)
		return result, nil
	}
	return s.plan(ctx, day, now, true, result)
}

// Regenerate rescores, drops the day's plan, and selects again without
// excluding articles scheduled on other days.
func (s *Scheduler) Regenerate(ctx context.Context, day, now time.Time) (Result, error) {
	result := Result{Date: store.DayOf(day, s.store.Location())}
	if s.rescorer != nil {
		if _, err := s.rescorer.Run(ctx, now); err != nil {
			return result, fmt.Errorf("rescore before regenerate: %w", err)
		}
	}
	removed, err := s.store.DeleteSlots(ctx, day)
	if err != nil {
		return result, err
	}
	result.Removed = removed
	return s.plan(ctx, day, now, false, result)
}

func (s *Scheduler) plan(ctx context.Context, day, now time.Time, excludeScheduled bool, result Result) (Result, error) {
	since := now.AddDate(0, 0, -s.lookbackDays)
	curve := s.Curve()
	candidates, err := s.store.ScheduleCandidates(ctx, since, curve.MaxDaily, excludeScheduled)
	if err != nil {
		return result, fmt.Errorf("select candidates: %w", err)
	}
	result.Candidates = len(candidates)
	if len(candidates) == 0 {
		s.logger.Info("no candidates to schedule",
			logging.String(logging.FieldEventType, "drip_no_candidates"),
			logging.String("date", result.Date.Format("2006-01-02")),
		)
		return result, nil
	}

	slots := BuildSlots(candidates, curve)
	if err := s.store.InsertSlots(ctx, day, slots); err != nil {
		if errors.Is(err, store.ErrSlotsExist) {
			// Lost a race with another scheduler; its plan stands.
			count, countErr := s.store.SlotCount(ctx, day)
			if countErr != nil {
				return result, countErr
			}
			result.Skipped = true
			result.Slots = count
			return result, nil
		}
		return result, fmt.Errorf("insert slots: %w", err)
	}
	result.Slots = len(slots)
	result.LastHour = slots[len(slots)-1].RevealHour
	s.logger.Info("day scheduled",
		logging.String(logging.FieldEventType, "drip_scheduled"),
		logging.String("date", result.Date.Format("2006-01-02")),
		logging.Int("slots", result.Slots),
		logging.Int("last_reveal_hour", result.LastHour),
		logging.Bool("regenerated", !excludeScheduled),
	)
	return result, nil
}

// BuildSlots assigns positions and reveal hours to ranked candidates.
func BuildSlots(candidates []store.Article, curve Curve) []store.Slot {
	n := len(candidates)
	if curve.MaxDaily > 0 && n > curve.MaxDaily {
		n = curve.MaxDaily
	}
	slots := make([]store.Slot, 0, n)
	for position := 0; position < n; position++ {
		slots = append(slots, store.Slot{
			ArticleID:  candidates[position].ID,
			Position:   position,
			RevealHour: curve.RevealHour(position),
		})
	}
	return slots
}
