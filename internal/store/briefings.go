package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const briefingColumns = "id, date, summary_text, featured_article_ids, generated_at"

func (s *Store) scanBriefing(row scanner) (*Briefing, error) {
	var (
		b            Briefing
		dateRaw      string
		featuredRaw  string
		generatedRaw string
	)
	if err := row.Scan(&b.ID, &dateRaw, &b.SummaryText, &featuredRaw, &generatedRaw); err != nil {
		return nil, err
	}
	day, err := s.parseDay(dateRaw)
	if err != nil {
		return nil, err
	}
	b.Date = day
	if featuredRaw != "" {
		if err := json.Unmarshal([]byte(featuredRaw), &b.FeaturedArticleIDs); err != nil {
			return nil, fmt.Errorf("decode featured ids: %w", err)
		}
	}
	if b.FeaturedArticleIDs == nil {
		b.FeaturedArticleIDs = []int64{}
	}
	if t, err := parseTimeString(generatedRaw); err == nil {
		b.GeneratedAt = t
	}
	return &b, nil
}

// GetBriefing returns the briefing for day, or nil when none exists.
func (s *Store) GetBriefing(ctx context.Context, day time.Time) (*Briefing, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+briefingColumns+` FROM briefings WHERE date = ?`, s.dayKey(day))
	b, err := s.scanBriefing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get briefing: %w", err)
	}
	return b, nil
}

// CreateBriefing stores a briefing unless the day already has one. It reports
// whether the row was written.
func (s *Store) CreateBriefing(ctx context.Context, b *Briefing) (bool, error) {
	if b == nil {
		return false, errors.New("create briefing: nil briefing")
	}
	ids := b.FeaturedArticleIDs
	if ids == nil {
		ids = []int64{}
	}
	featured, err := json.Marshal(ids)
	if err != nil {
		return false, fmt.Errorf("encode featured ids: %w", err)
	}
	if b.GeneratedAt.IsZero() {
		b.GeneratedAt = time.Now()
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO briefings (date, summary_text, featured_article_ids, generated_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(date) DO NOTHING`,
		s.dayKey(b.Date), b.SummaryText, string(featured), formatTime(b.GeneratedAt),
	)
	if err != nil {
		return false, fmt.Errorf("create briefing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create briefing rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	if id, err := res.LastInsertId(); err == nil {
		b.ID = id
	}
	b.Date = DayOf(b.Date, s.Location())
	return true, nil
}

// DeleteBriefing removes the day's briefing. It reports whether one existed.
func (s *Store) DeleteBriefing(ctx context.Context, day time.Time) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM briefings WHERE date = ?`, s.dayKey(day))
	if err != nil {
		return false, fmt.Errorf("delete briefing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete briefing rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListBriefings returns briefings newest first. limit <= 0 returns all.
func (s *Store) ListBriefings(ctx context.Context, limit int) ([]Briefing, error) {
	query := `SELECT ` + briefingColumns + ` FROM briefings ORDER BY date DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list briefings: %w", err)
	}
	defer rows.Close()

	var out []Briefing
	for rows.Next() {
		b, err := s.scanBriefing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan briefing: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// AdjacentBriefingDates returns the nearest briefing dates before and after
// day. Either may be nil.
func (s *Store) AdjacentBriefingDates(ctx context.Context, day time.Time) (prev, next *time.Time, err error) {
	ctx = ensureContext(ctx)
	key := s.dayKey(day)
	lookup := func(query string) (*time.Time, error) {
		var raw string
		if err := s.db.QueryRowContext(ctx, query, key).Scan(&raw); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, err
		}
		t, err := s.parseDay(raw)
		if err != nil {
			return nil, err
		}
		return &t, nil
	}
	if prev, err = lookup(`SELECT date FROM briefings WHERE date < ? ORDER BY date DESC LIMIT 1`); err != nil {
		return nil, nil, fmt.Errorf("previous briefing: %w", err)
	}
	if next, err = lookup(`SELECT date FROM briefings WHERE date > ? ORDER BY date ASC LIMIT 1`); err != nil {
		return nil, nil, fmt.Errorf("next briefing: %w", err)
	}
	return prev, next, nil
}
