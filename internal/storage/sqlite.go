//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	logx "spawnbot/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS announcements (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    at       TEXT    NOT NULL,
    job_id   TEXT    NOT NULL,
    name     TEXT    NOT NULL,
    kind     TEXT    NOT NULL,
    chat_id  INTEGER NOT NULL,
    ok       INTEGER NOT NULL,
    error    TEXT    NOT NULL DEFAULT '',
    took_ms  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_announcements_at ON announcements(at);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg *Config, log logx.Logger) (Store, error) {
	dir := cfg.Path
	if dir == "" {
		dir = "./spawnbot_store"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, "spawnbot.db")

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		path, busy.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	// modernc sqlite is single-writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) AppendAnnouncement(ctx context.Context, a Announcement) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO announcements (at, job_id, name, kind, chat_id, ok, error, took_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.At.UTC().Format(time.RFC3339Nano), a.JobID, a.Name, a.Kind,
		a.ChatID, boolToInt(a.OK), a.Error, a.TookMS)
	if err != nil {
		return fmt.Errorf("storage: insert: %w", err)
	}
	return nil
}

func (s *sqliteStore) RecentAnnouncements(ctx context.Context, limit int) ([]Announcement, error) {
	if limit <= 0 {
		limit = ringSize
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, job_id, name, kind, chat_id, ok, error, took_ms
		 FROM announcements ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: query: %w", err)
	}
	defer rows.Close()

	var out []Announcement
	for rows.Next() {
		var (
			a  Announcement
			at string
			ok int
		)
		if err := rows.Scan(&at, &a.JobID, &a.Name, &a.Kind, &a.ChatID, &ok, &a.Error, &a.TookMS); err != nil {
			return nil, fmt.Errorf("storage: scan: %w", err)
		}
		a.OK = ok != 0
		if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
			a.At = t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
