package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration-typed settings (telegram.poll_timeout, schedule.followup_delay,
// schedule.misfire_grace, storage.busy_timeout, the pprof timeouts) are kept
// as Go duration strings so YAML and JSON configs read identically.

// ParseDurationField parses one such field. Empty means unset and yields 0;
// negative durations are rejected. path names the field in error messages.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault substitutes def when the field is unset or zero,
// for settings whose zero value has no meaning of its own (followup_delay,
// misfire_grace).
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
