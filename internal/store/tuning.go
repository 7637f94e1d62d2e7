package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// AppendTuningLog records one tuning exchange.
func (s *Store) AppendTuningLog(ctx context.Context, entry *TuningLog) error {
	if entry == nil {
		return fmt.Errorf("append tuning log: nil entry")
	}
	parsed, err := json.Marshal(entry.ParsedChanges)
	if err != nil {
		return fmt.Errorf("encode tuning changes: %w", err)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO tuning_logs (input, parsed_changes, response_text, created_at) VALUES (?, ?, ?, ?)`,
		entry.Input, string(parsed), entry.ResponseText, formatTime(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append tuning log: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// RecentTuningLogs returns the newest limit entries in chronological order
// (oldest first), ready to be replayed as conversation history.
func (s *Store) RecentTuningLogs(ctx context.Context, limit int) ([]TuningLog, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, input, parsed_changes, response_text, created_at FROM (
            SELECT * FROM tuning_logs ORDER BY created_at DESC, id DESC LIMIT ?
        ) ORDER BY created_at ASC, id ASC`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent tuning logs: %w", err)
	}
	defer rows.Close()

	var logs []TuningLog
	for rows.Next() {
		var (
			entry      TuningLog
			parsedRaw  string
			createdRaw string
		)
		if err := rows.Scan(&entry.ID, &entry.Input, &parsedRaw, &entry.ResponseText, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan tuning log: %w", err)
		}
		if parsedRaw != "" {
			// A malformed historical row should not hide the rest of the history.
			_ = json.Unmarshal([]byte(parsedRaw), &entry.ParsedChanges)
		}
		if t, err := parseTimeString(createdRaw); err == nil {
			entry.CreatedAt = t
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
