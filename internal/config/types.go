package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Schedule is the spawn definition set. It is read once at startup;
	// editing it at runtime requires a restart (the hot-reload loop only
	// warns when this section changes).
	Schedule ScheduleConfig `json:"schedule"`

	Announce AnnounceConfig `json:"announce"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Pprof    PprofConfig    `json:"pprof,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`

	// ChatID is the target chat for spawn announcements.
	ChatID   int64 `json:"chat_id"`
	ThreadID int   `json:"thread_id,omitempty"` // forum topic (0 if none)

	// GroupLog is an optional chat id (as string) receiving warn+ log lines.
	GroupLog string `json:"group_log,omitempty"`

	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// ScheduleConfig is the static spawn definition set plus the shared daily
// anchor all interval grids align to.
//
// All durations are Go duration strings.
type ScheduleConfig struct {
	Enabled bool `json:"enabled"`

	// Timezone is the single reference timezone (IANA name).
	// Default: "Europe/Bucharest".
	Timezone string `json:"timezone,omitempty"`

	// Anchor is the daily reference time-of-day, "HH:MM".
	Anchor string `json:"anchor"`

	// FollowupDelay shifts every follow-up grid relative to its warning grid.
	// Default: "5m".
	FollowupDelay string `json:"followup_delay,omitempty"`

	// MisfireGrace is the lateness tolerance before missed occurrences are
	// coalesced. Default: "60s".
	MisfireGrace string `json:"misfire_grace,omitempty"`

	Spawns []SpawnSpec `json:"spawns"`
}

// SpawnSpec describes one recurring spawn event.
type SpawnSpec struct {
	Name            string `json:"name"`
	Message         string `json:"message"`
	FollowupMessage string `json:"followup_message"`
	IntervalHours   int    `json:"interval_hours"`
	JobID           string `json:"job_id"`
	FollowupJobID   string `json:"followup_job_id"`
}

type AnnounceConfig struct {
	// RatePerSec throttles outgoing announcements. Default: 1.
	RatePerSec int `json:"rate_per_sec,omitempty"`

	// ParseMode for announcement messages ("HTML" by default).
	ParseMode string `json:"parse_mode,omitempty"`

	// StartupMessage posts a summary to the target chat after start.
	StartupMessage bool `json:"startup_message"`

	Digest DigestConfig `json:"digest,omitempty"`
}

// DigestConfig controls the optional daily digest of upcoming fire times,
// posted on a cron spec evaluated in the schedule timezone.
type DigestConfig struct {
	Enabled bool   `json:"enabled"`
	Cron    string `json:"cron,omitempty"` // default "0 9 * * *"
}

// StorageConfig controls the optional announcement-history store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./spawnbot_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0
	// (disabled) so /profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
