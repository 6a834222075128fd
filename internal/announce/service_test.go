package announce

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"spawnbot/internal/schedule"
	"spawnbot/internal/storage"
	kit "spawnbot/internal/transport"
	logx "spawnbot/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	to    []kit.ChatTarget
	err   error
	modes []string
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return kit.MessageRef{}, f.err
	}
	f.sent = append(f.sent, text)
	f.to = append(f.to, to)
	if opt != nil {
		f.modes = append(f.modes, opt.ParseMode)
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

type memStore struct {
	mu    sync.Mutex
	items []storage.Announcement
}

func (m *memStore) AppendAnnouncement(_ context.Context, a storage.Announcement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, a)
	return nil
}

func (m *memStore) RecentAnnouncements(context.Context, int) ([]storage.Announcement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]storage.Announcement, len(m.items))
	copy(out, m.items)
	return out, nil
}

func (m *memStore) Close() error { return nil }

func payload() schedule.Payload {
	return schedule.Payload{
		JobID: "temintia_spawn",
		Name:  "Temintia",
		Kind:  schedule.KindWarning,
		Text:  "Sefii apar in 5 min !!!",
		Due:   time.Date(2026, time.March, 2, 14, 10, 0, 0, time.UTC),
	}
}

func TestDispatchSendsAndRecords(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{}
	st := &memStore{}
	svc := New(Config{Target: kit.ChatTarget{ChatID: -100}, RatePerSec: 100}, snd, st, logx.Nop(), nil)

	if err := svc.Dispatch(context.Background(), payload()); err != nil {
		t.Fatal(err)
	}
	if len(snd.sent) != 1 || snd.sent[0] != "Sefii apar in 5 min !!!" {
		t.Fatalf("sent = %v", snd.sent)
	}
	if snd.to[0].ChatID != -100 {
		t.Fatalf("target = %+v", snd.to[0])
	}
	if snd.modes[0] != "HTML" {
		t.Fatalf("parse mode = %q, want default HTML", snd.modes[0])
	}
	if len(st.items) != 1 || !st.items[0].OK || st.items[0].JobID != "temintia_spawn" {
		t.Fatalf("recorded = %+v", st.items)
	}
}

func TestDispatchRecordsFailure(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{err: &kit.PermissionError{Err: errors.New("forbidden")}}
	st := &memStore{}
	svc := New(Config{Target: kit.ChatTarget{ChatID: -100}, RatePerSec: 100}, snd, st, logx.Nop(), nil)

	err := svc.Dispatch(context.Background(), payload())
	if !kit.IsPermission(err) {
		t.Fatalf("err = %v, want permission error", err)
	}
	if len(st.items) != 1 || st.items[0].OK || st.items[0].Error == "" {
		t.Fatalf("recorded = %+v", st.items)
	}
}

func TestDispatchHonorsContextDuringThrottle(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{}
	svc := New(Config{Target: kit.ChatTarget{ChatID: -100}, RatePerSec: 1}, snd, &memStore{}, logx.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := svc.Dispatch(ctx, payload()); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := svc.Dispatch(ctx, payload()); err == nil {
		t.Fatal("expected context error while throttled")
	}
	if len(snd.sent) != 1 {
		t.Fatalf("sent = %d messages, want 1", len(snd.sent))
	}
}

func TestAnnounceStartupRespectsFlag(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{}
	svc := New(Config{Target: kit.ChatTarget{ChatID: -100}, RatePerSec: 100}, snd, &memStore{}, logx.Nop(), nil)

	snap := schedule.Snapshot{Anchor: "12:10", Timezone: "Europe/Bucharest"}
	if err := svc.AnnounceStartup(context.Background(), snap); err != nil {
		t.Fatal(err)
	}
	if len(snd.sent) != 0 {
		t.Fatal("startup message sent while disabled")
	}

	svc.Apply(Config{Target: kit.ChatTarget{ChatID: -100}, RatePerSec: 100, StartupMessage: true})
	if err := svc.AnnounceStartup(context.Background(), snap); err != nil {
		t.Fatal(err)
	}
	if len(snd.sent) != 1 || !strings.Contains(snd.sent[0], "12:10") {
		t.Fatalf("sent = %v", snd.sent)
	}
}
