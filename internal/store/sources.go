package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const sourceColumns = "id, name, feed_url, site_url, content_type, category, enabled, created_at, updated_at"

// ErrDuplicateSource is returned when a feed URL is already subscribed.
var ErrDuplicateSource = errors.New("source already exists")

func scanSource(row scanner) (*Source, error) {
	var (
		src         Source
		siteURL     sql.NullString
		contentType string
		category    sql.NullString
		enabled     int
		createdRaw  string
		updatedRaw  string
	)
	if err := row.Scan(&src.ID, &src.Name, &src.FeedURL, &siteURL, &contentType, &category, &enabled, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	src.SiteURL = siteURL.String
	src.ContentType = ParseContentType(contentType)
	src.Category = category.String
	src.Enabled = enabled != 0
	if t, err := parseTimeString(createdRaw); err == nil {
		src.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		src.UpdatedAt = t
	}
	return &src, nil
}

// AddSource inserts a source. It returns ErrDuplicateSource when the feed URL
// is already present.
func (s *Store) AddSource(ctx context.Context, src Source) (*Source, error) {
	created, inserted, err := s.InsertSourceIfAbsent(ctx, src)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return created, fmt.Errorf("add source %s: %w", src.FeedURL, ErrDuplicateSource)
	}
	return created, nil
}

// InsertSourceIfAbsent inserts src unless its feed URL is already known. It
// returns the stored row and whether a new row was written.
func (s *Store) InsertSourceIfAbsent(ctx context.Context, src Source) (*Source, bool, error) {
	src.FeedURL = strings.TrimSpace(src.FeedURL)
	if src.FeedURL == "" {
		return nil, false, errors.New("insert source: feed url required")
	}
	src.Name = strings.TrimSpace(src.Name)
	if src.Name == "" {
		src.Name = src.FeedURL
	}
	if src.ContentType == "" {
		src.ContentType = ContentArticle
	}
	now := formatTime(time.Now())
	res, err := s.execWithRetry(ctx,
		`INSERT INTO sources (name, feed_url, site_url, content_type, category, enabled, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(feed_url) DO NOTHING`,
		src.Name,
		src.FeedURL,
		nullableString(src.SiteURL),
		string(src.ContentType),
		nullableString(src.Category),
		boolToInt(src.Enabled),
		now,
		now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert source: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert source rows affected: %w", err)
	}
	stored, err := s.SourceByFeedURL(ctx, src.FeedURL)
	if err != nil {
		return nil, false, err
	}
	return stored, affected > 0, nil
}

// GetSource fetches a source by id. A missing source returns nil, nil.
func (s *Store) GetSource(ctx context.Context, id int64) (*Source, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return src, nil
}

// SourceByFeedURL fetches a source by its feed URL. A missing source returns nil, nil.
func (s *Store) SourceByFeedURL(ctx context.Context, feedURL string) (*Source, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+sourceColumns+` FROM sources WHERE feed_url = ?`, feedURL)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("source by feed url: %w", err)
	}
	return src, nil
}

// ListSources returns sources ordered by name. enabledOnly filters disabled feeds.
func (s *Store) ListSources(ctx context.Context, enabledOnly bool) ([]Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY name COLLATE NOCASE, id`
	rows, err := s.db.QueryContext(ensureContext(ctx), query)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

// SetSourceEnabled toggles a source. Unknown ids return sql.ErrNoRows.
func (s *Store) SetSourceEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE sources SET enabled = ?, updated_at = ? WHERE id = ?`,
		boolToInt(enabled), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("set source enabled: %w", err)
	}
	return requireAffected(res, "set source enabled")
}

// UpdateSourceMeta refreshes the display name and site URL reported by the feed.
func (s *Store) UpdateSourceMeta(ctx context.Context, id int64, name, siteURL string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE sources SET name = ?, site_url = COALESCE(?, site_url), updated_at = ? WHERE id = ?`,
		name, nullableString(siteURL), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("update source meta: %w", err)
	}
	return requireAffected(res, "update source meta")
}

// DeleteSource removes a source and, by cascade, its articles and their slots.
func (s *Store) DeleteSource(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	return requireAffected(res, "delete source")
}

func requireAffected(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, sql.ErrNoRows)
	}
	return nil
}
