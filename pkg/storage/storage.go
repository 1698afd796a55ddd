package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shaneisley/gymbook/pkg/metrics"
)

// History stores one row per booking run in SQLite. It is only written by
// the booking flow and read by reporting commands.
type History struct {
	db   *sql.DB
	path string
}

// Open opens or creates the history database at dbPath
func Open(dbPath string) (*History, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	history := &History{db: db, path: dbPath}
	if err := history.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return history, nil
}

func (h *History) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		target_date TEXT NOT NULL,
		weekday TEXT NOT NULL,
		slot_id TEXT NOT NULL DEFAULT '',
		final_status TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		attempts INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		logged_out BOOLEAN NOT NULL,
		duration_ms INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_target_date ON runs(target_date);
	`

	_, err := h.db.Exec(schema)
	return err
}

// Path returns the database file path
func (h *History) Path() string {
	return h.path
}

// Record stores a finished run
func (h *History) Record(run *metrics.RunMetrics) error {
	query := `
	INSERT INTO runs (
		run_id, target_date, weekday, slot_id, final_status, success,
		attempts, reason, logged_out, duration_ms, started_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := h.db.Exec(query,
		run.RunID, run.Date, run.Weekday, run.SlotID, run.FinalStatus, run.Success,
		run.TotalAttempts, run.Reason, run.LoggedOut, run.Duration.Milliseconds(), run.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.RunID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first. limit <= 0 returns all runs.
func (h *History) Recent(limit int) ([]*metrics.RunMetrics, error) {
	query := `
	SELECT run_id, target_date, weekday, slot_id, final_status, success,
	       attempts, reason, logged_out, duration_ms, started_at
	FROM runs
	ORDER BY started_at DESC, id DESC`

	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = h.db.Query(query+" LIMIT ?", limit)
	} else {
		rows, err = h.db.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*metrics.RunMetrics
	for rows.Next() {
		var run metrics.RunMetrics
		var durationMs int64
		if err := rows.Scan(&run.RunID, &run.Date, &run.Weekday, &run.SlotID, &run.FinalStatus, &run.Success,
			&run.TotalAttempts, &run.Reason, &run.LoggedOut, &durationMs, &run.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// Stats aggregates every run started at or after since
func (h *History) Stats(since time.Time) (metrics.Stats, error) {
	runs, err := h.Recent(0)
	if err != nil {
		return metrics.Stats{}, err
	}

	var window []*metrics.RunMetrics
	for _, run := range runs {
		if run.Timestamp >= since.Unix() {
			window = append(window, run)
		}
	}
	return metrics.Aggregate(window), nil
}

// Close closes the database
func (h *History) Close() error {
	return h.db.Close()
}
