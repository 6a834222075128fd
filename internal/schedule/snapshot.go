package schedule

import (
	"sort"
	"time"
)

// Snapshot is a point-in-time view of the registry for status reporting.
type Snapshot struct {
	Running       bool
	Timezone      string
	Anchor        string
	FollowupDelay time.Duration
	MisfireGrace  time.Duration
	Jobs          []JobStatus
}

// JobStatus is one registry entry, counters included.
type JobStatus struct {
	ID    string
	Name  string
	Kind  Kind
	Every time.Duration

	Next    time.Time
	Running bool

	Fired     uint64
	Skipped   uint64
	Coalesced uint64
	LastFire  time.Time
	LastDur   time.Duration
	LastErr   string
}

func (s *Service) Snapshot() Snapshot {
	s.runMu.Lock()
	running := s.running
	s.runMu.Unlock()

	return Snapshot{
		Running:       running,
		Timezone:      s.cfg.Timezone,
		Anchor:        s.cfg.Anchor.String(),
		FollowupDelay: s.cfg.FollowupDelay,
		MisfireGrace:  s.cfg.MisfireGrace,
		Jobs:          s.jobStatuses(),
	}
}

// jobStatuses returns entries ordered by next fire time, ties by id.
func (s *Service) jobStatuses() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.order))
	for _, id := range s.order {
		j := s.jobs[id]
		out = append(out, JobStatus{
			ID:        j.id,
			Name:      j.name,
			Kind:      j.kind,
			Every:     j.every,
			Next:      j.next,
			Running:   j.running.Load(),
			Fired:     j.fired,
			Skipped:   j.skipped,
			Coalesced: j.coalesced,
			LastFire:  j.lastFire,
			LastDur:   j.lastDur,
			LastErr:   j.lastErr,
		})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Next.Equal(out[b].Next) {
			return out[a].ID < out[b].ID
		}
		return out[a].Next.Before(out[b].Next)
	})
	return out
}
