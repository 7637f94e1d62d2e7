package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// KeyLastBatchDate holds the local date of the last successful daily batch.
const KeyLastBatchDate = "last_batch_date"

// GetState returns a stored value and whether it exists.
func (s *Store) GetState(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get state %s: %w", key, err)
	}
	return value, true, nil
}

// SetState upserts a value.
func (s *Store) SetState(ctx context.Context, key, value string) error {
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO state (key, value, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// LastBatchDate returns the day of the last successful daily batch.
func (s *Store) LastBatchDate(ctx context.Context) (*time.Time, error) {
	raw, ok, err := s.GetState(ctx, KeyLastBatchDate)
	if err != nil || !ok {
		return nil, err
	}
	day, err := s.parseDay(raw)
	if err != nil {
		return nil, err
	}
	return &day, nil
}

// SetLastBatchDate persists the day of a successful daily batch.
func (s *Store) SetLastBatchDate(ctx context.Context, day time.Time) error {
	return s.SetState(ctx, KeyLastBatchDate, s.dayKey(day))
}
