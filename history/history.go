// Package history keeps a local SQLite log of executed RCON commands.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrClosed = errors.New("history store closed")

// Entry is one executed command.
type Entry struct {
	ID        int64         `json:"id"`
	SessionID string        `json:"session_id"`
	Server    string        `json:"server"`
	Command   string        `json:"command"`
	Response  string        `json:"response"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// Store wraps the sqlite history database.
type Store struct {
	db    *sql.DB
	limit int
}

// Open opens the database at path and runs migrations. Only the newest
// limit entries are kept; limit <= 0 keeps everything.
func Open(path string, limit int) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	// a single writer keeps pruning consistent
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return &Store{db: db, limit: limit}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS commands (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			server TEXT NOT NULL,
			command TEXT NOT NULL,
			response TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_commands_server ON commands(server);
	`)
	return err
}

// Record inserts e and prunes entries beyond the store limit.
// A zero CreatedAt is set to the current time.
func (s *Store) Record(ctx context.Context, e Entry) (int64, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO commands (session_id, server, command, response, error, duration_ms, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		e.SessionID, e.Server, e.Command, e.Response, e.Error, e.Duration.Milliseconds(),
		e.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("record command: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if s.limit > 0 {
		if _, err := s.db.ExecContext(ctx,
			"DELETE FROM commands WHERE id NOT IN (SELECT id FROM commands ORDER BY id DESC LIMIT ?)",
			s.limit); err != nil {
			return id, fmt.Errorf("prune history: %w", err)
		}
	}
	return id, nil
}

// Recent returns up to n entries, newest first. n <= 0 returns all entries.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	if n <= 0 {
		n = -1 // sqlite: no limit
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, session_id, server, command, response, error, duration_ms, created_at FROM commands ORDER BY id DESC LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ms int64
		var t string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Server, &e.Command, &e.Response, &e.Error, &ms, &t); err != nil {
			return nil, err
		}
		e.Duration = time.Duration(ms) * time.Millisecond
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, t)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM commands").Scan(&n)
	return n, err
}

// Close closes the database. Later calls return ErrClosed.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
