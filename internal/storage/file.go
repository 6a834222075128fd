package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	logx "spawnbot/pkg/logx"
)

// ringSize bounds the in-memory tail served by RecentAnnouncements; the
// JSONL file itself is append-only and unbounded.
const ringSize = 256

type fileStore struct {
	path string
	log  logx.Logger

	mu   sync.Mutex
	f    *os.File
	ring []Announcement
}

func openFile(cfg *Config, log logx.Logger) (Store, error) {
	dir := cfg.Path
	if dir == "" {
		dir = "./spawnbot_store"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, "announcements.jsonl")

	s := &fileStore{path: path, log: log}
	s.loadTail()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	s.f = f
	return s, nil
}

// loadTail warms the ring from the existing file. Corrupt lines (partial
// writes from a crash) are skipped, not fatal.
func (s *fileStore) loadTail() {
	f, err := os.Open(s.path)
	if err != nil {
		return
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var a Announcement
		if err := json.Unmarshal(sc.Bytes(), &a); err != nil {
			continue
		}
		s.ring = append(s.ring, a)
		if len(s.ring) > ringSize {
			s.ring = s.ring[len(s.ring)-ringSize:]
		}
	}
	if err := sc.Err(); err != nil && !s.log.IsZero() {
		s.log.Warn("history tail load incomplete", logx.String("path", s.path), logx.Err(err))
	}
}

func (s *fileStore) AppendAnnouncement(_ context.Context, a Announcement) error {
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return fmt.Errorf("storage: closed")
	}
	if _, err := s.f.Write(b); err != nil {
		return fmt.Errorf("storage: append: %w", err)
	}
	s.ring = append(s.ring, a)
	if len(s.ring) > ringSize {
		s.ring = s.ring[len(s.ring)-ringSize:]
	}
	return nil
}

func (s *fileStore) RecentAnnouncements(_ context.Context, limit int) ([]Announcement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.ring) {
		limit = len(s.ring)
	}
	out := make([]Announcement, 0, limit)
	for i := len(s.ring) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.ring[i])
	}
	return out, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
