package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const articleColumns = `a.id, a.url, a.title, a.source_id, a.published_at, a.fetched_at, a.content_type,
    a.hero_image_url, a.illustration_url, a.image_width, a.image_height, a.display_mode,
    a.excerpt, a.relevance_score, a.reading_time_minutes, s.name, s.category`

const articleFrom = ` FROM articles a JOIN sources s ON s.id = a.source_id`

func scanArticle(row scanner, extra ...any) (*Article, error) {
	var (
		art          Article
		published    sql.NullString
		fetchedRaw   string
		contentType  string
		heroImage    sql.NullString
		illustration sql.NullString
		width        sql.NullInt64
		height       sql.NullInt64
		displayMode  string
		excerpt      sql.NullString
		readingTime  sql.NullInt64
		sourceName   sql.NullString
		category     sql.NullString
	)
	dest := []any{
		&art.ID, &art.URL, &art.Title, &art.SourceID, &published, &fetchedRaw, &contentType,
		&heroImage, &illustration, &width, &height, &displayMode,
		&excerpt, &art.RelevanceScore, &readingTime, &sourceName, &category,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	art.PublishedAt = parseNullTime(published)
	if t, err := parseTimeString(fetchedRaw); err == nil {
		art.FetchedAt = t
	}
	art.ContentType = ParseContentType(contentType)
	art.HeroImageURL = heroImage.String
	art.IllustrationURL = illustration.String
	art.ImageWidth = int(width.Int64)
	art.ImageHeight = int(height.Int64)
	art.DisplayMode = DisplayMode(displayMode)
	art.Excerpt = excerpt.String
	art.ReadingTimeMinutes = int(readingTime.Int64)
	art.SourceName = sourceName.String
	art.SourceCategory = category.String
	return &art, nil
}

// InsertArticle atomically inserts art unless its URL is already stored. It
// reports whether a new row was written and sets art.ID when it was.
func (s *Store) InsertArticle(ctx context.Context, art *Article) (bool, error) {
	if art == nil {
		return false, errors.New("insert article: nil article")
	}
	art.URL = strings.TrimSpace(art.URL)
	if art.URL == "" {
		return false, errors.New("insert article: url required")
	}
	if art.FetchedAt.IsZero() {
		art.FetchedAt = time.Now()
	}
	if art.DisplayMode == "" {
		art.DisplayMode = DisplayStandard
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO articles (
            url, title, source_id, published_at, fetched_at, content_type,
            hero_image_url, illustration_url, image_width, image_height, display_mode,
            excerpt, relevance_score, reading_time_minutes
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(url) DO NOTHING`,
		art.URL,
		art.Title,
		art.SourceID,
		nullableTime(art.PublishedAt),
		formatTime(art.FetchedAt),
		string(art.ContentType.ItemType()),
		nullableString(art.HeroImageURL),
		nullableString(art.IllustrationURL),
		nullableInt(art.ImageWidth),
		nullableInt(art.ImageHeight),
		string(art.DisplayMode),
		nullableString(art.Excerpt),
		art.RelevanceScore,
		nullableInt(art.ReadingTimeMinutes),
	)
	if err != nil {
		return false, fmt.Errorf("insert article: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert article rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return true, fmt.Errorf("last insert id: %w", err)
	}
	art.ID = id
	return true, nil
}

// GetArticle fetches an article by id. A missing article returns nil, nil.
func (s *Store) GetArticle(ctx context.Context, id int64) (*Article, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+articleColumns+articleFrom+` WHERE a.id = ?`, id)
	art, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get article: %w", err)
	}
	return art, nil
}

// ArticlesFetchedSince returns every article fetched at or after since.
func (s *Store) ArticlesFetchedSince(ctx context.Context, since time.Time) ([]Article, error) {
	return s.queryArticles(ctx,
		`SELECT `+articleColumns+articleFrom+` WHERE a.fetched_at >= ? ORDER BY a.id`,
		formatTime(since),
	)
}

// ScheduleCandidates returns up to limit articles fetched since the cutoff,
// best first: relevance desc, then publishedAt desc, then fetchedAt desc.
// When excludeScheduled is set, articles already in any day's slots are skipped.
func (s *Store) ScheduleCandidates(ctx context.Context, since time.Time, limit int, excludeScheduled bool) ([]Article, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `SELECT ` + articleColumns + articleFrom + ` WHERE a.fetched_at >= ?`
	if excludeScheduled {
		query += ` AND a.id NOT IN (SELECT article_id FROM daily_slots)`
	}
	query += ` ORDER BY a.relevance_score DESC, a.published_at IS NULL, a.published_at DESC, a.fetched_at DESC, a.id
        LIMIT ?`
	return s.queryArticles(ctx, query, formatTime(since), limit)
}

// ArticlesByIDs returns the articles with the given ids in the order the ids
// were given. Unknown ids are dropped.
func (s *Store) ArticlesByIDs(ctx context.Context, ids []int64) ([]Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	found, err := s.queryArticles(ctx,
		`SELECT `+articleColumns+articleFrom+` WHERE a.id IN (`+makePlaceholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]Article, len(found))
	for _, art := range found {
		byID[art.ID] = art
	}
	ordered := make([]Article, 0, len(ids))
	for _, id := range ids {
		if art, ok := byID[id]; ok {
			ordered = append(ordered, art)
		}
	}
	return ordered, nil
}

// RecentArticles returns the newest articles by fetch time.
func (s *Store) RecentArticles(ctx context.Context, limit int) ([]Article, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.queryArticles(ctx,
		`SELECT `+articleColumns+articleFrom+` ORDER BY a.fetched_at DESC, a.id DESC LIMIT ?`,
		limit,
	)
}

// UpdateScores writes relevance scores in one transaction.
func (s *Store) UpdateScores(ctx context.Context, scores map[int64]float64) error {
	if len(scores) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE articles SET relevance_score = ? WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("prepare score update: %w", err)
		}
		defer stmt.Close()
		for id, score := range scores {
			if _, err := stmt.ExecContext(ctx, score, id); err != nil {
				return fmt.Errorf("update score %d: %w", id, err)
			}
		}
		return nil
	})
}

// SetIllustration stores a generated illustration and flips the article to
// crayon display.
func (s *Store) SetIllustration(ctx context.Context, id int64, url string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE articles SET illustration_url = ?, display_mode = ? WHERE id = ?`,
		url, string(DisplayCrayon), id,
	)
	if err != nil {
		return fmt.Errorf("set illustration: %w", err)
	}
	return requireAffected(res, "set illustration")
}

func (s *Store) queryArticles(ctx context.Context, query string, args ...any) ([]Article, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		art, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, *art)
	}
	return articles, rows.Err()
}
