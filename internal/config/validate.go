package config

import (
	"fmt"
	"strings"
	"time"

	"spawnbot/internal/schedule"
)

// Validate checks the whole config for startup errors. It is used both at
// process start (fatal) and as the hot-reload validator (rejects the reload).
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if cfg.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram.chat_id is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if cfg.Announce.RatePerSec < 0 {
		return fmt.Errorf("announce.rate_per_sec must be >= 0")
	}
	for _, f := range []struct{ k, v string }{
		{"pprof.read_timeout", cfg.Pprof.ReadTimeout},
		{"pprof.write_timeout", cfg.Pprof.WriteTimeout},
		{"pprof.idle_timeout", cfg.Pprof.IdleTimeout},
	} {
		if _, err := ParseDurationField(f.k, f.v); err != nil {
			return err
		}
	}
	if cfg.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return validateSchedule(cfg.Schedule)
}

func validateSchedule(sc ScheduleConfig) error {
	if !sc.Enabled && len(sc.Spawns) == 0 {
		return nil
	}

	if tz := strings.TrimSpace(sc.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("schedule.timezone: invalid %q: %w", tz, err)
		}
	}
	if _, err := schedule.ParseAnchor(sc.Anchor); err != nil {
		return fmt.Errorf("schedule.anchor: %w", err)
	}
	if _, err := ParseDurationField("schedule.followup_delay", sc.FollowupDelay); err != nil {
		return err
	}
	if _, err := ParseDurationField("schedule.misfire_grace", sc.MisfireGrace); err != nil {
		return err
	}
	if sc.Enabled && len(sc.Spawns) == 0 {
		return fmt.Errorf("schedule.spawns: at least one spawn is required when schedule is enabled")
	}

	seen := map[string]string{} // job id -> spawn name
	for i, sp := range sc.Spawns {
		at := fmt.Sprintf("schedule.spawns[%d]", i)
		if strings.TrimSpace(sp.Name) == "" {
			return fmt.Errorf("%s: name is required", at)
		}
		if strings.TrimSpace(sp.Message) == "" {
			return fmt.Errorf("%s: message is required", at)
		}
		if strings.TrimSpace(sp.FollowupMessage) == "" {
			return fmt.Errorf("%s: followup_message is required", at)
		}
		if sp.IntervalHours < 1 {
			return fmt.Errorf("%s: interval_hours must be >= 1", at)
		}
		warnID := strings.TrimSpace(sp.JobID)
		folID := strings.TrimSpace(sp.FollowupJobID)
		if warnID == "" || folID == "" {
			return fmt.Errorf("%s: job_id and followup_job_id are required", at)
		}
		if warnID == folID {
			return fmt.Errorf("%s: followup_job_id must differ from job_id", at)
		}
		for _, id := range []string{warnID, folID} {
			if prev, dup := seen[id]; dup {
				return fmt.Errorf("%s: job id %q already used by %q", at, id, prev)
			}
			seen[id] = sp.Name
		}
	}
	return nil
}
