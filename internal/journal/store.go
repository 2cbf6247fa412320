// Package journal records one row per settled action in SQLite. It is an
// operational log and is never read back into a session timeline.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one settled dispatch.
type Entry struct {
	ID           int64
	ActionID     string
	Action       string
	Outcome      string // "ok" or "error"
	AnswerSource string
	Latency      time.Duration
	Error        string
	Config       string
	CreatedAt    time.Time
}

// Store is the SQLite-backed journal.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates the database file (and its directory) if needed.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create journal directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logger}
	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal migration failed: %w", err)
	}
	return s, nil
}

// Record appends one entry.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dispatches (action_id, action, outcome, answer_source, latency_ms, error, config, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ActionID, e.Action, e.Outcome, e.AnswerSource, e.Latency.Milliseconds(), e.Error, e.Config, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record dispatch %s: %w", e.ActionID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action_id, action, outcome, answer_source, latency_ms, error, config, created_at
		 FROM dispatches ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var answerSource, errText, cfg sql.NullString
		var latencyMs int64
		if err := rows.Scan(&e.ID, &e.ActionID, &e.Action, &e.Outcome,
			&answerSource, &latencyMs, &errText, &cfg, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.AnswerSource = answerSource.String
		e.Error = errText.String
		e.Config = cfg.String
		e.Latency = time.Duration(latencyMs) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Counts returns the number of entries per action and outcome.
func (s *Store) Counts(ctx context.Context) (map[string]map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action, outcome, COUNT(*) FROM dispatches GROUP BY action, outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]map[string]int)
	for rows.Next() {
		var action, outcome string
		var n int
		if err := rows.Scan(&action, &outcome, &n); err != nil {
			return nil, err
		}
		if counts[action] == nil {
			counts[action] = make(map[string]int)
		}
		counts[action][outcome] = n
	}
	return counts, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
