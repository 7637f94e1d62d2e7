package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const runColumns = "id, operation, run_date, status, started_at, finished_at, error_message, stats_json"

func (s *Store) scanRun(row scanner) (*Run, error) {
	var (
		run         Run
		dateRaw     string
		startedRaw  string
		finishedRaw sql.NullString
		errMsg      sql.NullString
		statsRaw    sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Operation, &dateRaw, &run.Status, &startedRaw, &finishedRaw, &errMsg, &statsRaw); err != nil {
		return nil, err
	}
	if day, err := s.parseDay(dateRaw); err == nil {
		run.Date = day
	}
	if t, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = t
	}
	run.FinishedAt = parseNullTime(finishedRaw)
	run.ErrorMessage = errMsg.String
	if statsRaw.Valid && statsRaw.String != "" {
		_ = json.Unmarshal([]byte(statsRaw.String), &run.Stats)
	}
	return &run, nil
}

// StartRun records a run as in flight.
func (s *Store) StartRun(ctx context.Context, id, operation string, day time.Time, startedAt time.Time) error {
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO runs (id, operation, run_date, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, operation, s.dayKey(day), RunRunning, formatTime(startedAt),
	); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, id, status, errMsg string, stats map[string]any, finishedAt time.Time) error {
	var statsJSON any
	if len(stats) > 0 {
		data, err := json.Marshal(stats)
		if err != nil {
			return fmt.Errorf("encode run stats: %w", err)
		}
		statsJSON = string(data)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, error_message = ?, stats_json = ? WHERE id = ?`,
		status, formatTime(finishedAt), nullableString(errMsg), statsJSON, id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return requireAffected(res, "finish run")
}

// GetRun fetches a run by id. A missing run returns nil, nil.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := s.scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the newest runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := s.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// FailInterruptedRuns marks runs left "running" by a crashed process as
// failed. It returns how many were updated.
func (s *Store) FailInterruptedRuns(ctx context.Context) (int, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, error_message = ? WHERE status = ?`,
		RunFailed, formatTime(time.Now()), "interrupted by shutdown", RunRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted runs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("fail interrupted runs rows affected: %w", err)
	}
	return int(affected), nil
}
