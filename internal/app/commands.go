package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"spawnbot/internal/announce"
	"spawnbot/internal/storage"
	kit "spawnbot/internal/transport"
	logx "spawnbot/pkg/logx"
)

const historyLimit = 10

func (a *App) commandLoop(ctx context.Context, updates <-chan kit.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			if up.Message == nil {
				continue
			}
			a.handleCommand(ctx, up.Message)
		}
	}
}

func (a *App) handleCommand(ctx context.Context, m *kit.Message) {
	cmd := parseCommand(m.Text)
	if cmd == "" {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	to := kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}

	var reply string
	switch cmd {
	case "status":
		reply = announce.FormatStatus(a.sched.Snapshot())
	case "next":
		reply = announce.FormatNext(a.sched.Snapshot())
	case "history":
		if !a.isOwner(m.FromID) {
			a.log.Debug("history denied", logx.Int64("from", m.FromID))
			return
		}
		reply = a.historyReply(cctx)
	default:
		return
	}

	if err := a.ann.Reply(cctx, to, reply); err != nil {
		a.log.Warn("command reply failed",
			logx.String("cmd", cmd), logx.Int64("chat", m.ChatID), logx.Err(err))
	}
}

func (a *App) historyReply(ctx context.Context) string {
	items, err := a.store.RecentAnnouncements(ctx, historyLimit)
	if err != nil {
		if errors.Is(err, storage.ErrDisabled) {
			return "Istoricul nu este activat."
		}
		a.log.Warn("history read failed", logx.Err(err))
		return "Istoricul nu este disponibil."
	}
	return announce.FormatHistory(items, a.sched.Location())
}

func (a *App) isOwner(userID int64) bool {
	cfg := a.mgr.Get()
	if cfg == nil {
		return false
	}
	for _, id := range cfg.Telegram.OwnerUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// parseCommand recognizes "/status", "/status@BotName" and the legacy
// "!spawn status" form. Returns the bare command name or "".
func parseCommand(text string) string {
	t := strings.TrimSpace(text)
	if t == "" {
		return ""
	}

	if rest, ok := strings.CutPrefix(t, "!spawn"); ok {
		f := strings.Fields(rest)
		if len(f) == 0 {
			return "status"
		}
		return strings.ToLower(f[0])
	}

	if !strings.HasPrefix(t, "/") {
		return ""
	}
	cmd := strings.Fields(t)[0]
	cmd = strings.TrimPrefix(cmd, "/")
	if at := strings.IndexByte(cmd, '@'); at != -1 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}
