package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"spawnbot/internal/eventbus"
	rtsup "spawnbot/internal/runtime/supervisor"
	logx "spawnbot/pkg/logx"
)

const defaultTimezone = "Europe/Bucharest"

// Service is the job registry plus the single worker goroutine that fires
// due occurrences.
type Service struct {
	cfg Config
	loc *time.Location

	log  logx.Logger
	bus  eventbus.Bus
	disp Dispatcher

	// now is the clock; replaced in tests.
	now func() time.Time

	mu    sync.Mutex
	jobs  map[string]*job
	order []string

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	// wake interrupts the worker sleep when the registry changes.
	wake chan struct{}

	// inflight tracks dispatch goroutines so Stop can drain them.
	inflight sync.WaitGroup

	// dispCtx is handed to dispatch callbacks. It is not derived from the
	// worker context, so cancelling the worker leaves in-flight deliveries
	// to finish; Stop cancels it only once the drain is over.
	dispCtx    context.Context
	dispCancel context.CancelFunc
}

func New(cfg Config, disp Dispatcher, log logx.Logger, bus eventbus.Bus) (*Service, error) {
	if disp == nil {
		return nil, fmt.Errorf("schedule: dispatcher is required")
	}
	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("schedule: timezone %q: %w", tz, err)
	}
	cfg.Timezone = tz
	if cfg.FollowupDelay <= 0 {
		cfg.FollowupDelay = 5 * time.Minute
	}
	if cfg.MisfireGrace <= 0 {
		cfg.MisfireGrace = time.Minute
	}
	s := &Service{
		cfg:  cfg,
		loc:  loc,
		log:  log,
		bus:  bus,
		disp: disp,
		now:  time.Now,
		jobs: map[string]*job{},
		wake: make(chan struct{}, 1),
	}
	s.dispCtx, s.dispCancel = context.WithCancel(context.Background())
	return s, nil
}

func (s *Service) Enabled() bool { return s.cfg.Enabled }

// Location returns the reference timezone.
func (s *Service) Location() *time.Location { return s.loc }

// Register adds a job to the registry. The registry is left untouched when
// the job spec is invalid or the id is already taken. Safe while running; the
// worker re-evaluates its sleep on the next wake.
func (s *Service) Register(sp Spec) error {
	id := strings.TrimSpace(sp.JobID)
	if id == "" {
		return fmt.Errorf("%w: empty job id", ErrBadSpec)
	}
	if sp.Every <= 0 {
		return fmt.Errorf("%w: %s: interval must be positive", ErrBadSpec, id)
	}
	if sp.Offset < 0 {
		return fmt.Errorf("%w: %s: offset must be >= 0", ErrBadSpec, id)
	}
	if strings.TrimSpace(sp.Text) == "" {
		return fmt.Errorf("%w: %s: empty message", ErrBadSpec, id)
	}
	if sp.Kind != KindWarning && sp.Kind != KindFollowup {
		return fmt.Errorf("%w: %s: unknown kind %q", ErrBadSpec, id, sp.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[id]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, id)
	}
	j := &job{
		id:     id,
		name:   sp.Name,
		kind:   sp.Kind,
		text:   sp.Text,
		every:  sp.Every,
		offset: sp.Offset,
	}
	j.next = FirstFire(s.cfg.Anchor, j.every, s.now(), s.loc).Add(j.offset)
	s.jobs[id] = j
	s.order = append(s.order, id)
	s.signalWake()
	return nil
}

// Start launches the worker. Idempotent.
func (s *Service) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return nil
	}
	if !s.cfg.Enabled {
		if !s.log.IsZero() {
			s.log.Info("schedule disabled")
		}
		return nil
	}

	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	s.sup.Go0("schedule.worker", s.run)
	s.running = true

	if !s.log.IsZero() {
		s.log.Info("schedule started",
			logx.String("timezone", s.cfg.Timezone),
			logx.String("anchor", s.cfg.Anchor.String()),
			logx.Int("jobs", len(s.jobOrderSnapshot())))
		for _, st := range s.jobStatuses() {
			s.log.Info("job scheduled",
				logx.String("job", st.ID),
				logx.String("kind", string(st.Kind)),
				logx.Duration("every", st.Every),
				logx.Time("next", st.Next))
		}
	}
	return nil
}

// Stop cancels the worker and drains in-flight dispatches, bounded by ctx.
// Idempotent.
func (s *Service) Stop(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false

	err := s.sup.Stop(ctx)
	s.sup = nil

	drained := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		if !s.log.IsZero() {
			s.log.Warn("stop deadline hit with dispatches in flight")
		}
		if err == nil {
			err = ctx.Err()
		}
	}
	// Only stragglers past the deadline are aborted here.
	s.dispCancel()
	return err
}

func (s *Service) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) jobOrderSnapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Service) publish(typ string, j *job, due time.Time) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: map[string]any{
		"job":  j.id,
		"kind": string(j.kind),
		"due":  due,
	}})
}
