// Package storage persists announcement history. The default driver is a
// JSONL file; an optional sqlite driver is compiled in with the "sqlite"
// build tag.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrDisabled is returned by the nop store used when no storage is configured.
var ErrDisabled = errors.New("storage disabled")

type Config struct {
	// Driver is "file" (default) or "sqlite".
	Driver string
	Path   string

	// BusyTimeout applies to the sqlite driver only.
	BusyTimeout time.Duration
}

// Announcement is one delivery attempt, successful or not.
type Announcement struct {
	At     time.Time `json:"at"`
	JobID  string    `json:"job_id"`
	Name   string    `json:"name"`
	Kind   string    `json:"kind"`
	ChatID int64     `json:"chat_id"`
	OK     bool      `json:"ok"`
	Error  string    `json:"error,omitempty"`
	TookMS int64     `json:"took_ms"`
}

type Store interface {
	AppendAnnouncement(ctx context.Context, a Announcement) error

	// RecentAnnouncements returns up to limit entries, newest first.
	RecentAnnouncements(ctx context.Context, limit int) ([]Announcement, error)

	Close() error
}
