package schedule

import (
	"context"
	"fmt"
	"time"

	logx "spawnbot/pkg/logx"
)

// maxIdle caps the worker sleep so an empty registry still re-checks
// occasionally instead of blocking forever on the timer.
const maxIdle = time.Minute

func (s *Service) run(ctx context.Context) {
	for {
		wait := s.untilNext()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
			continue
		case <-timer.C:
		}
		s.fireDue(s.now())
	}
}

func (s *Service) untilNext() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	var earliest time.Time
	for _, j := range s.jobs {
		if earliest.IsZero() || j.next.Before(earliest) {
			earliest = j.next
		}
	}
	if earliest.IsZero() {
		return maxIdle
	}
	wait := earliest.Sub(s.now())
	if wait < 0 {
		return 0
	}
	if wait > maxIdle {
		return maxIdle
	}
	return wait
}

// fireDue walks the registry once at wall time now and applies the firing
// protocol to every job whose next fire time has arrived:
//
//   - still running: the occurrence is skipped outright
//   - later than the misfire grace with another occurrence already due:
//     coalesced into a single fire for the most recent missed grid point
//   - otherwise: a normal fire for the scheduled grid point
//
// The next fire time always advances to the first point on the job's own
// grid strictly after now, so delivery latency never shifts the grid.
func (s *Service) fireDue(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		j := s.jobs[id]
		if j.next.After(now) {
			continue
		}

		nf := s.nextFire(j, now)

		if j.running.Load() {
			j.skipped++
			if !s.log.IsZero() {
				s.log.Warn("occurrence skipped, previous dispatch still running",
					logx.String("job", j.id),
					logx.Time("due", j.next),
					logx.Time("next", nf))
			}
			s.publish("schedule.skipped", j, j.next)
			j.next = nf
			continue
		}

		due := j.next
		late := now.Sub(due)
		if late > s.cfg.MisfireGrace && !due.Add(j.every).After(now) {
			// Several occurrences piled up; fire once for the most recent
			// grid point at or before now.
			due = nf.Add(-j.every)
			j.coalesced++
			if !s.log.IsZero() {
				s.log.Warn("occurrences coalesced",
					logx.String("job", j.id),
					logx.Duration("late", late),
					logx.Time("due", due))
			}
			s.publish("schedule.coalesced", j, due)
		}

		j.next = nf
		s.dispatchAsync(j, Payload{
			JobID: j.id,
			Name:  j.name,
			Kind:  j.kind,
			Text:  j.text,
			Due:   due,
		})
	}
}

// nextFire resolves the first point on j's grid (the anchor grid shifted by
// j.offset) strictly after now. Shifting now back by the offset before
// resolving keeps a follow-up on its own grid instead of the warning's.
func (s *Service) nextFire(j *job, now time.Time) time.Time {
	return FirstFire(s.cfg.Anchor, j.every, now.Add(-j.offset), s.loc).Add(j.offset)
}

// dispatchAsync hands the payload to the dispatcher on its own goroutine so
// the worker loop is never blocked by delivery. The dispatch context is
// independent of the worker context, letting in-flight deliveries finish
// during shutdown. Caller holds s.mu.
func (s *Service) dispatchAsync(j *job, p Payload) {
	j.running.Store(true)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer j.running.Store(false)

		start := time.Now()
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = errPanic{r}
				}
			}()
			return s.disp.Dispatch(s.dispCtx, p)
		}()
		took := time.Since(start)

		s.mu.Lock()
		j.fired++
		j.lastFire = p.Due
		j.lastDur = took
		if err != nil {
			j.lastErr = err.Error()
		} else {
			j.lastErr = ""
		}
		s.mu.Unlock()

		if err != nil {
			if !s.log.IsZero() {
				s.log.Error("dispatch failed",
					logx.String("job", p.JobID),
					logx.Time("due", p.Due),
					logx.Duration("took", took),
					logx.Err(err))
			}
			return
		}
		if !s.log.IsZero() {
			s.log.Debug("dispatched",
				logx.String("job", p.JobID),
				logx.Time("due", p.Due),
				logx.Duration("took", took))
		}
		s.publish("schedule.fired", j, p.Due)
	}()
}

type errPanic struct{ v any }

func (e errPanic) Error() string { return fmt.Sprintf("dispatch panic: %v", e.v) }
