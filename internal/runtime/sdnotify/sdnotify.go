// Package sdnotify wraps the systemd readiness and watchdog protocol. All
// calls are no-ops outside a systemd unit (NOTIFY_SOCKET unset).
package sdnotify

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "spawnbot/pkg/logx"
)

func Ready(log logx.Logger) {
	notify(log, daemon.SdNotifyReady)
}

func Stopping(log logx.Logger) {
	notify(log, daemon.SdNotifyStopping)
}

func notify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil && !log.IsZero() {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent && !log.IsZero() {
		log.Debug("sd_notify", logx.String("state", state))
	}
}

// Watchdog pings systemd at half the configured WatchdogSec interval until
// ctx is done. Returns immediately when the watchdog is not enabled.
func Watchdog(ctx context.Context, log logx.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		if err != nil && !log.IsZero() {
			log.Warn("watchdog probe failed", logx.Err(err))
		}
		return
	}

	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
