package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"newsboy/internal/prefs"
)

// GetPreferences returns the singleton preferences row, creating it with
// defaults on first access.
func (s *Store) GetPreferences(ctx context.Context) (prefs.Preferences, error) {
	ctx = ensureContext(ctx)
	p, err := s.readPreferences(ctx)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return prefs.Preferences{}, err
	}
	def := prefs.Default()
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO preferences (id, interests, source_weights, mood_balance, prefer_long_form, prefer_visual, updated_at)
         VALUES (?, '{}', '{}', ?, ?, ?, ?)
         ON CONFLICT(id) DO NOTHING`,
		prefs.DefaultID, def.MoodBalance, boolToInt(def.PreferLongForm), boolToInt(def.PreferVisual), formatTime(time.Now()),
	); err != nil {
		return prefs.Preferences{}, fmt.Errorf("create default preferences: %w", err)
	}
	return s.readPreferences(ctx)
}

// SavePreferences overwrites the singleton row.
func (s *Store) SavePreferences(ctx context.Context, p prefs.Preferences) error {
	interests, err := prefs.EncodeWeightMap(p.Interests)
	if err != nil {
		return err
	}
	weights, err := prefs.EncodeWeightMap(p.SourceWeights)
	if err != nil {
		return err
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO preferences (id, interests, source_weights, mood_balance, prefer_long_form, prefer_visual, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             interests = excluded.interests,
             source_weights = excluded.source_weights,
             mood_balance = excluded.mood_balance,
             prefer_long_form = excluded.prefer_long_form,
             prefer_visual = excluded.prefer_visual,
             updated_at = excluded.updated_at`,
		prefs.DefaultID, interests, weights, prefs.ClampMood(p.MoodBalance),
		boolToInt(p.PreferLongForm), boolToInt(p.PreferVisual), formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

func (s *Store) readPreferences(ctx context.Context) (prefs.Preferences, error) {
	var (
		interestsRaw string
		weightsRaw   string
		mood         float64
		longForm     int
		visual       int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT interests, source_weights, mood_balance, prefer_long_form, prefer_visual FROM preferences WHERE id = ?`,
		prefs.DefaultID,
	).Scan(&interestsRaw, &weightsRaw, &mood, &longForm, &visual)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return prefs.Preferences{}, err
		}
		return prefs.Preferences{}, fmt.Errorf("read preferences: %w", err)
	}
	interests, err := prefs.DecodeWeightMap(interestsRaw)
	if err != nil {
		return prefs.Preferences{}, fmt.Errorf("read preferences interests: %w", err)
	}
	weights, err := prefs.DecodeWeightMap(weightsRaw)
	if err != nil {
		return prefs.Preferences{}, fmt.Errorf("read preferences source weights: %w", err)
	}
	return prefs.Preferences{
		Interests:      interests,
		SourceWeights:  weights,
		MoodBalance:    mood,
		PreferLongForm: longForm != 0,
		PreferVisual:   visual != 0,
	}, nil
}
