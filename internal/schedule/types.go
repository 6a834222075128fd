package schedule

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var (
	ErrDuplicateJob = errors.New("duplicate job id")
	ErrBadSpec      = errors.New("invalid job spec")
)

// Kind distinguishes the two announcement phases of a spawn.
type Kind string

const (
	KindWarning  Kind = "warning"
	KindFollowup Kind = "followup"
)

// Anchor is the shared daily reference time-of-day.
type Anchor struct {
	Hour   int
	Minute int
}

// ParseAnchor parses "HH:MM".
func ParseAnchor(s string) (Anchor, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return Anchor{}, fmt.Errorf("invalid anchor %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return Anchor{}, fmt.Errorf("invalid anchor hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return Anchor{}, fmt.Errorf("invalid anchor minute in %q", s)
	}
	return Anchor{Hour: h, Minute: m}, nil
}

func (a Anchor) String() string {
	return fmt.Sprintf("%02d:%02d", a.Hour, a.Minute)
}

// Config for the schedule service. Durations already parsed and validated by
// the config layer.
type Config struct {
	Enabled bool

	// Timezone is the IANA reference zone all grids are evaluated in.
	// Defaults to Europe/Bucharest.
	Timezone string

	Anchor Anchor

	// FollowupDelay shifts follow-up grids relative to their warning grids.
	FollowupDelay time.Duration

	// MisfireGrace is the lateness tolerance before missed occurrences are
	// coalesced into one fire.
	MisfireGrace time.Duration
}

// Spec registers one recurring job on the anchor grid.
type Spec struct {
	JobID string
	Name  string
	Kind  Kind

	// Text is the message body handed to the dispatcher on each fire.
	Text string

	// Every is the grid interval. Must be positive.
	Every time.Duration

	// Offset shifts this job's grid relative to the anchor (follow-ups use
	// the configured followup delay; warnings use zero).
	Offset time.Duration
}

// Payload is one due occurrence handed to the dispatcher.
type Payload struct {
	JobID string
	Name  string
	Kind  Kind
	Text  string

	// Due is the grid point this fire represents. When occurrences were
	// coalesced it is the most recent missed grid point, not the wake time.
	Due time.Time
}

// Dispatcher delivers one due occurrence. Implementations must be safe for
// concurrent use; delivery errors are logged and recorded but never retried
// by the scheduler.
type Dispatcher interface {
	Dispatch(ctx context.Context, p Payload) error
}

// job is the registry entry. next and the counters are guarded by the
// service mutex; running is atomic because the dispatch goroutine clears it
// without holding the lock.
type job struct {
	id     string
	name   string
	kind   Kind
	text   string
	every  time.Duration
	offset time.Duration

	next    time.Time
	running atomic.Bool

	fired     uint64
	skipped   uint64
	coalesced uint64
	lastFire  time.Time
	lastDur   time.Duration
	lastErr   string
}
