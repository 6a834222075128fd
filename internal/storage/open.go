package storage

import (
	"context"
	"fmt"
	"strings"

	logx "spawnbot/pkg/logx"
)

// Open returns a Store for cfg. A nil cfg yields a nop store whose reads
// report ErrDisabled, so callers can record unconditionally.
func Open(cfg *Config, log logx.Logger) (Store, error) {
	if cfg == nil {
		return nopStore{}, nil
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}

type nopStore struct{}

func (nopStore) AppendAnnouncement(context.Context, Announcement) error { return nil }
func (nopStore) RecentAnnouncements(context.Context, int) ([]Announcement, error) {
	return nil, ErrDisabled
}
func (nopStore) Close() error { return nil }
