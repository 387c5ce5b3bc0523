// Package triggerlog persists a record of every response the bot fires.
// It is strictly observational: response gating never reads it, so losing
// the database costs history, not correctness.
package triggerlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one fired response.
type Entry struct {
	ID          int64
	Response    string
	ChatID      string
	MsgID       string
	TriggeredAt time.Time
}

// Store records fired responses in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the trigger database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS triggers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			response TEXT NOT NULL,
			chat_id TEXT NOT NULL,
			msg_id TEXT NOT NULL,
			triggered_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_triggers_response_at ON triggers(response, triggered_at)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one fired response.
func (s *Store) Record(ctx context.Context, response, chatID, msgID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO triggers (response, chat_id, msg_id, triggered_at)
		VALUES (?, ?, ?, ?)
	`, response, chatID, msgID, at.Unix())
	if err != nil {
		return fmt.Errorf("failed to record trigger: %w", err)
	}
	return nil
}

// Recent returns the most recent entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, response, chat_id, msg_id, triggered_at
		FROM triggers
		ORDER BY triggered_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var at int64
		if err := rows.Scan(&e.ID, &e.Response, &e.ChatID, &e.MsgID, &at); err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}
		e.TriggeredAt = time.Unix(at, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountSince returns how many times the named response fired at or after
// since.
func (s *Store) CountSince(ctx context.Context, response string, since time.Time) (int64, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM triggers
		WHERE response = ? AND triggered_at >= ?
	`, response, since.Unix())

	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count triggers: %w", err)
	}
	return n, nil
}

// PruneBefore deletes entries older than cutoff and reports how many were
// removed.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM triggers WHERE triggered_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune triggers: %w", err)
	}
	return result.RowsAffected()
}
