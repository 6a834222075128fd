// Package announce delivers scheduled spawn messages and command replies to
// the target chat, throttled by a shared rate limiter, and records every
// attempt in the history store.
package announce

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"spawnbot/internal/eventbus"
	"spawnbot/internal/schedule"
	"spawnbot/internal/storage"
	kit "spawnbot/internal/transport"
	logx "spawnbot/pkg/logx"
)

type Config struct {
	Target kit.ChatTarget

	// RatePerSec throttles all outgoing messages. Default 1.
	RatePerSec int

	// ParseMode for outgoing messages ("HTML" by default).
	ParseMode string

	// StartupMessage posts a timetable summary after start.
	StartupMessage bool
}

// Sender is the transport capability announce needs.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

type Service struct {
	sender Sender
	store  storage.Store
	log    logx.Logger
	bus    eventbus.Bus

	mu      sync.RWMutex
	cfg     Config
	limiter *rate.Limiter
}

func New(cfg Config, sender Sender, store storage.Store, log logx.Logger, bus eventbus.Bus) *Service {
	s := &Service{sender: sender, store: store, log: log, bus: bus}
	s.Apply(cfg)
	return s
}

// Apply swaps in new settings; used by the hot-reload loop.
func (s *Service) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.ParseMode == "" {
		cfg.ParseMode = "HTML"
	}
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

func (s *Service) settings() (Config, *rate.Limiter) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, s.limiter
}

// Dispatch implements schedule.Dispatcher: one due occurrence, one message.
// The attempt is recorded in the store either way; the scheduler advances on
// error, so failed occurrences are not retried.
func (s *Service) Dispatch(ctx context.Context, p schedule.Payload) error {
	cfg, lim := s.settings()

	start := time.Now()
	err := lim.Wait(ctx)
	if err == nil {
		_, err = s.sender.SendText(ctx, cfg.Target, p.Text, &kit.SendOptions{
			ParseMode:      cfg.ParseMode,
			DisablePreview: true,
		})
	}
	took := time.Since(start)

	s.record(storage.Announcement{
		At:     start,
		JobID:  p.JobID,
		Name:   p.Name,
		Kind:   string(p.Kind),
		ChatID: cfg.Target.ChatID,
		OK:     err == nil,
		Error:  errString(err),
		TookMS: took.Milliseconds(),
	})

	if err != nil {
		if kit.IsPermission(err) && !s.log.IsZero() {
			s.log.Error("bot cannot post to target chat, check membership and rights",
				logx.Int64("chat_id", cfg.Target.ChatID), logx.Err(err))
		}
		s.publish("announce.failed", p, err)
		return err
	}
	s.publish("announce.sent", p, nil)
	return nil
}

// Reply sends a command response to the originating chat, sharing the
// announcement rate limit.
func (s *Service) Reply(ctx context.Context, to kit.ChatTarget, text string) error {
	cfg, lim := s.settings()
	if err := lim.Wait(ctx); err != nil {
		return err
	}
	_, err := s.sender.SendText(ctx, to, text, &kit.SendOptions{
		ParseMode:      cfg.ParseMode,
		DisablePreview: true,
	})
	return err
}

// AnnounceStartup posts the timetable summary if enabled.
func (s *Service) AnnounceStartup(ctx context.Context, snap schedule.Snapshot) error {
	cfg, _ := s.settings()
	if !cfg.StartupMessage {
		return nil
	}
	return s.Reply(ctx, cfg.Target, FormatStartup(snap))
}

func (s *Service) record(a storage.Announcement) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.store.AppendAnnouncement(ctx, a); err != nil && !s.log.IsZero() {
		s.log.Warn("history append failed", logx.String("job", a.JobID), logx.Err(err))
	}
}

func (s *Service) publish(typ string, p schedule.Payload, err error) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: map[string]any{
		"job":  p.JobID,
		"kind": string(p.Kind),
		"due":  p.Due,
		"err":  errString(err),
	}})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
