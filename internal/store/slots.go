package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSlotsExist is returned when inserting a plan for a day that already has one.
var ErrSlotsExist = errors.New("slots already scheduled for date")

// SlotCount returns how many slots the day has.
func (s *Store) SlotCount(ctx context.Context, day time.Time) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1) FROM daily_slots WHERE date = ?`, s.dayKey(day),
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count slots: %w", err)
	}
	return count, nil
}

// InsertSlots writes a day's plan in one transaction. The insert is refused
// with ErrSlotsExist when the day already has slots, so two racing schedulers
// cannot interleave plans.
func (s *Store) InsertSlots(ctx context.Context, day time.Time, slots []Slot) error {
	if len(slots) == 0 {
		return nil
	}
	key := s.dayKey(day)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var existing int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM daily_slots WHERE date = ?`, key).Scan(&existing); err != nil {
			return fmt.Errorf("count slots: %w", err)
		}
		if existing > 0 {
			return fmt.Errorf("insert slots %s: %w", key, ErrSlotsExist)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO daily_slots (date, article_id, reveal_hour, position) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare slot insert: %w", err)
		}
		defer stmt.Close()
		for _, slot := range slots {
			if _, err := stmt.ExecContext(ctx, key, slot.ArticleID, slot.RevealHour, slot.Position); err != nil {
				return fmt.Errorf("insert slot %d: %w", slot.Position, err)
			}
		}
		return nil
	})
}

// DeleteSlots removes a day's plan and returns how many slots were dropped.
func (s *Store) DeleteSlots(ctx context.Context, day time.Time) (int, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM daily_slots WHERE date = ?`, s.dayKey(day))
	if err != nil {
		return 0, fmt.Errorf("delete slots: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete slots rows affected: %w", err)
	}
	return int(affected), nil
}

// SlotsForDay returns the day's slots joined with their articles, by position.
func (s *Store) SlotsForDay(ctx context.Context, day time.Time) ([]SlotView, error) {
	return s.querySlots(ctx, day, -1)
}

// RevealedSlots returns the day's slots whose reveal hour is at or before hour.
func (s *Store) RevealedSlots(ctx context.Context, day time.Time, hour int) ([]SlotView, error) {
	if hour < 0 {
		return nil, nil
	}
	return s.querySlots(ctx, day, hour)
}

func (s *Store) querySlots(ctx context.Context, day time.Time, maxHour int) ([]SlotView, error) {
	key := s.dayKey(day)
	query := `SELECT ` + articleColumns + `, d.reveal_hour, d.position
        FROM daily_slots d
        JOIN articles a ON a.id = d.article_id
        JOIN sources s ON s.id = a.source_id
        WHERE d.date = ?`
	args := []any{key}
	if maxHour >= 0 {
		query += ` AND d.reveal_hour <= ?`
		args = append(args, maxHour)
	}
	query += ` ORDER BY d.position`

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	date := DayOf(day, s.Location())
	var views []SlotView
	for rows.Next() {
		var view SlotView
		art, err := scanArticle(rows, &view.RevealHour, &view.Position)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		view.Article = *art
		view.ArticleID = art.ID
		view.Date = date
		views = append(views, view)
	}
	return views, rows.Err()
}
