package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	logx "spawnbot/pkg/logx"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []Payload

	err   error
	block chan struct{} // when non-nil, Dispatch waits for it
	seen  chan Payload
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{seen: make(chan Payload, 16)}
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, p Payload) error {
	d.mu.Lock()
	d.calls = append(d.calls, p)
	block := d.block
	err := d.err
	d.mu.Unlock()

	d.seen <- p
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func (d *fakeDispatcher) wait(t *testing.T) Payload {
	t.Helper()
	select {
	case p := <-d.seen:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
		return Payload{}
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func newTestService(t *testing.T, d Dispatcher, clk *fakeClock) *Service {
	t.Helper()
	s, err := New(Config{
		Enabled:       true,
		Timezone:      "Europe/Bucharest",
		Anchor:        Anchor{Hour: 12, Minute: 10},
		FollowupDelay: 5 * time.Minute,
		MisfireGrace:  time.Minute,
	}, d, logx.Nop(), nil)
	if err != nil {
		t.Fatal(err)
	}
	s.now = clk.Now
	return s
}

func (s *Service) status(t *testing.T, id string) JobStatus {
	t.Helper()
	for _, st := range s.Snapshot().Jobs {
		if st.ID == id {
			return st
		}
	}
	t.Fatalf("job %s not in snapshot", id)
	return JobStatus{}
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t, "Europe/Bucharest")
	clk := newFakeClock(time.Date(2026, time.March, 2, 10, 0, 0, 0, loc))
	s := newTestService(t, newFakeDispatcher(), clk)

	ok := Spec{JobID: "a", Name: "A", Kind: KindWarning, Text: "hi", Every: 2 * time.Hour}
	if err := s.Register(ok); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Register(ok); !errors.Is(err, ErrDuplicateJob) {
		t.Fatalf("duplicate register: %v, want ErrDuplicateJob", err)
	}

	bad := []Spec{
		{JobID: "", Kind: KindWarning, Text: "x", Every: time.Hour},
		{JobID: "b", Kind: KindWarning, Text: "x", Every: 0},
		{JobID: "c", Kind: KindWarning, Text: "", Every: time.Hour},
		{JobID: "d", Kind: "other", Text: "x", Every: time.Hour},
		{JobID: "e", Kind: KindFollowup, Text: "x", Every: time.Hour, Offset: -time.Minute},
	}
	for i, sp := range bad {
		if err := s.Register(sp); !errors.Is(err, ErrBadSpec) {
			t.Fatalf("bad[%d]: %v, want ErrBadSpec", i, err)
		}
	}
	if got := len(s.Snapshot().Jobs); got != 1 {
		t.Fatalf("registry has %d jobs, want 1", got)
	}
}

func TestRegisterResolvesFirstFire(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t, "Europe/Bucharest")
	clk := newFakeClock(time.Date(2026, time.March, 2, 12, 10, 0, 0, loc))
	s := newTestService(t, newFakeDispatcher(), clk)

	if err := s.Register(Spec{JobID: "warn", Name: "W", Kind: KindWarning, Text: "w", Every: 2 * time.Hour}); err != nil {
		t.Fatal(err)
	}
	if err := s.Register(Spec{JobID: "fol", Name: "W", Kind: KindFollowup, Text: "f", Every: 2 * time.Hour, Offset: 5 * time.Minute}); err != nil {
		t.Fatal(err)
	}

	warnNext := s.status(t, "warn").Next
	folNext := s.status(t, "fol").Next
	wantWarn := time.Date(2026, time.March, 2, 14, 10, 0, 0, loc)
	if !warnNext.Equal(wantWarn) {
		t.Fatalf("warning next = %v, want %v", warnNext, wantWarn)
	}
	if got := folNext.Sub(warnNext); got != 5*time.Minute {
		t.Fatalf("followup offset = %v, want 5m", got)
	}
}

func TestFireAdvancesOnGrid(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t, "Europe/Bucharest")
	clk := newFakeClock(time.Date(2026, time.March, 2, 13, 0, 0, 0, loc))
	d := newFakeDispatcher()
	s := newTestService(t, d, clk)

	if err := s.Register(Spec{JobID: "warn", Name: "W", Kind: KindWarning, Text: "w", Every: 2 * time.Hour}); err != nil {
		t.Fatal(err)
	}
	due := time.Date(2026, time.March, 2, 14, 10, 0, 0, loc)

	clk.Set(due)
	s.fireDue(clk.Now())

	p := d.wait(t)
	if !p.Due.Equal(due) {
		t.Fatalf("payload due = %v, want %v", p.Due, due)
	}
	if p.Kind != KindWarning || p.Text != "w" {
		t.Fatalf("unexpected payload %+v", p)
	}

	waitUntil(t, func() bool { return s.status(t, "warn").Fired == 1 })
	next := s.status(t, "warn").Next
	if want := due.Add(2 * time.Hour); !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestSkipWhileRunning(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t, "Europe/Bucharest")
	clk := newFakeClock(time.Date(2026, time.March, 2, 13, 0, 0, 0, loc))
	d := newFakeDispatcher()
	release := make(chan struct{})
	d.block = release
	s := newTestService(t, d, clk)

	if err := s.Register(Spec{JobID: "warn", Name: "W", Kind: KindWarning, Text: "w", Every: 2 * time.Hour}); err != nil {
		t.Fatal(err)
	}

	first := time.Date(2026, time.March, 2, 14, 10, 0, 0, loc)
	clk.Set(first)
	s.fireDue(clk.Now())
	d.wait(t) // dispatch started and is now blocked

	second := first.Add(2 * time.Hour)
	clk.Set(second)
	s.fireDue(clk.Now())

	st := s.status(t, "warn")
	if st.Skipped != 1 {
		t.Fatalf("skipped = %d, want 1", st.Skipped)
	}
	if want := second.Add(2 * time.Hour); !st.Next.Equal(want) {
		t.Fatalf("next = %v, want %v", st.Next, want)
	}
	if d.count() != 1 {
		t.Fatalf("dispatch count = %d, want 1", d.count())
	}

	close(release)
	waitUntil(t, func() bool { return s.status(t, "warn").Fired == 1 })
}

func TestCoalesceLandsOnRecentGridPoint(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t, "Europe/Bucharest")
	clk := newFakeClock(time.Date(2026, time.March, 2, 13, 0, 0, 0, loc))
	d := newFakeDispatcher()
	s := newTestService(t, d, clk)

	if err := s.Register(Spec{JobID: "warn", Name: "W", Kind: KindWarning, Text: "w", Every: 2 * time.Hour}); err != nil {
		t.Fatal(err)
	}

	// Sleep through two occurrences (14:10 and 16:10), wake at 16:30.
	wake := time.Date(2026, time.March, 2, 16, 30, 0, 0, loc)
	clk.Set(wake)
	s.fireDue(clk.Now())

	p := d.wait(t)
	if want := time.Date(2026, time.March, 2, 16, 10, 0, 0, loc); !p.Due.Equal(want) {
		t.Fatalf("coalesced due = %v, want %v", p.Due, want)
	}
	if d.count() != 1 {
		t.Fatalf("dispatch count = %d, want 1", d.count())
	}

	waitUntil(t, func() bool { return s.status(t, "warn").Fired == 1 })
	st := s.status(t, "warn")
	if st.Coalesced != 1 {
		t.Fatalf("coalesced = %d, want 1", st.Coalesced)
	}
	if want := time.Date(2026, time.March, 2, 18, 10, 0, 0, loc); !st.Next.Equal(want) {
		t.Fatalf("next = %v, want %v", st.Next, want)
	}
}

func TestLateWithinGraceFiresNormally(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t, "Europe/Bucharest")
	clk := newFakeClock(time.Date(2026, time.March, 2, 13, 0, 0, 0, loc))
	d := newFakeDispatcher()
	s := newTestService(t, d, clk)

	if err := s.Register(Spec{JobID: "warn", Name: "W", Kind: KindWarning, Text: "w", Every: 2 * time.Hour}); err != nil {
		t.Fatal(err)
	}

	due := time.Date(2026, time.March, 2, 14, 10, 0, 0, loc)
	clk.Set(due.Add(30 * time.Second))
	s.fireDue(clk.Now())

	p := d.wait(t)
	if !p.Due.Equal(due) {
		t.Fatalf("due = %v, want %v", p.Due, due)
	}
	waitUntil(t, func() bool { return s.status(t, "warn").Fired == 1 })
	if st := s.status(t, "warn"); st.Coalesced != 0 {
		t.Fatalf("coalesced = %d, want 0", st.Coalesced)
	}
}

func TestDispatchErrorStillAdvances(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t, "Europe/Bucharest")
	clk := newFakeClock(time.Date(2026, time.March, 2, 13, 0, 0, 0, loc))
	d := newFakeDispatcher()
	d.err = fmt.Errorf("chat unreachable")
	s := newTestService(t, d, clk)

	if err := s.Register(Spec{JobID: "warn", Name: "W", Kind: KindWarning, Text: "w", Every: 2 * time.Hour}); err != nil {
		t.Fatal(err)
	}

	due := time.Date(2026, time.March, 2, 14, 10, 0, 0, loc)
	clk.Set(due)
	s.fireDue(clk.Now())
	d.wait(t)

	waitUntil(t, func() bool { return s.status(t, "warn").LastErr != "" })
	st := s.status(t, "warn")
	if st.LastErr != "chat unreachable" {
		t.Fatalf("lastErr = %q", st.LastErr)
	}
	if want := due.Add(2 * time.Hour); !st.Next.Equal(want) {
		t.Fatalf("next = %v, want %v", st.Next, want)
	}
}

func TestDispatchPanicIsContained(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t, "Europe/Bucharest")
	clk := newFakeClock(time.Date(2026, time.March, 2, 13, 0, 0, 0, loc))
	s := newTestService(t, panicDispatcher{}, clk)

	if err := s.Register(Spec{JobID: "warn", Name: "W", Kind: KindWarning, Text: "w", Every: 2 * time.Hour}); err != nil {
		t.Fatal(err)
	}

	clk.Set(time.Date(2026, time.March, 2, 14, 10, 0, 0, loc))
	s.fireDue(clk.Now())

	waitUntil(t, func() bool { return s.status(t, "warn").LastErr != "" })
	if st := s.status(t, "warn"); st.Running {
		t.Fatal("job still marked running after panic")
	}
}

type panicDispatcher struct{}

func (panicDispatcher) Dispatch(context.Context, Payload) error { panic("boom") }

func TestStartStopIdempotent(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t, "Europe/Bucharest")
	clk := newFakeClock(time.Date(2026, time.March, 2, 13, 0, 0, 0, loc))
	s := newTestService(t, newFakeDispatcher(), clk)

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if !s.Snapshot().Running {
		t.Fatal("not running after Start")
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Snapshot().Running {
		t.Fatal("still running after Stop")
	}
}

func TestStopBoundedByContext(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t, "Europe/Bucharest")
	clk := newFakeClock(time.Date(2026, time.March, 2, 13, 0, 0, 0, loc))
	d := newFakeDispatcher()
	release := make(chan struct{})
	d.block = release
	s := newTestService(t, d, clk)

	if err := s.Register(Spec{JobID: "warn", Name: "W", Kind: KindWarning, Text: "w", Every: 2 * time.Hour}); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	clk.Set(time.Date(2026, time.March, 2, 14, 10, 0, 0, loc))
	s.fireDue(clk.Now())
	d.wait(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); err == nil {
		t.Fatal("Stop returned nil with a dispatch still in flight")
	}
	close(release)
}

func TestFollowupAdvancesOnOwnGrid(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t, "Europe/Bucharest")
	clk := newFakeClock(time.Date(2026, time.March, 2, 13, 0, 0, 0, loc))
	d := newFakeDispatcher()
	s := newTestService(t, d, clk)

	if err := s.Register(Spec{JobID: "fol", Name: "W", Kind: KindFollowup, Text: "f", Every: 2 * time.Hour, Offset: 5 * time.Minute}); err != nil {
		t.Fatal(err)
	}
	first := time.Date(2026, time.March, 2, 14, 15, 0, 0, loc)
	if got := s.status(t, "fol").Next; !got.Equal(first) {
		t.Fatalf("next = %v, want %v", got, first)
	}

	// Wake between a warning grid point (16:10) and the paired follow-up
	// point (16:15); the upcoming 16:15 occurrence must stay scheduled.
	clk.Set(time.Date(2026, time.March, 2, 16, 12, 0, 0, loc))
	s.fireDue(clk.Now())

	if p := d.wait(t); !p.Due.Equal(first) {
		t.Fatalf("due = %v, want %v", p.Due, first)
	}
	waitUntil(t, func() bool { return s.status(t, "fol").Fired == 1 })
	if got, want := s.status(t, "fol").Next, time.Date(2026, time.March, 2, 16, 15, 0, 0, loc); !got.Equal(want) {
		t.Fatalf("next = %v, want %v", got, want)
	}
}

func TestFollowupCoalesceDueIsNeverFuture(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t, "Europe/Bucharest")
	clk := newFakeClock(time.Date(2026, time.March, 2, 13, 0, 0, 0, loc))
	d := newFakeDispatcher()
	s := newTestService(t, d, clk)

	if err := s.Register(Spec{JobID: "fol", Name: "W", Kind: KindFollowup, Text: "f", Every: 2 * time.Hour, Offset: 5 * time.Minute}); err != nil {
		t.Fatal(err)
	}

	// Sleep through 14:15 and 16:15, wake just before the 18:15 point.
	now := time.Date(2026, time.March, 2, 18, 13, 0, 0, loc)
	clk.Set(now)
	s.fireDue(clk.Now())

	p := d.wait(t)
	if p.Due.After(now) {
		t.Fatalf("coalesced due %v is after now %v", p.Due, now)
	}
	if want := time.Date(2026, time.March, 2, 16, 15, 0, 0, loc); !p.Due.Equal(want) {
		t.Fatalf("coalesced due = %v, want %v", p.Due, want)
	}
	waitUntil(t, func() bool { return s.status(t, "fol").Fired == 1 })
	st := s.status(t, "fol")
	if st.Coalesced != 1 {
		t.Fatalf("coalesced = %d, want 1", st.Coalesced)
	}
	if want := time.Date(2026, time.March, 2, 18, 15, 0, 0, loc); !st.Next.Equal(want) {
		t.Fatalf("next = %v, want %v", st.Next, want)
	}
}

func TestStopLetsInflightFinish(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t, "Europe/Bucharest")
	clk := newFakeClock(time.Date(2026, time.March, 2, 13, 0, 0, 0, loc))
	d := newFakeDispatcher()
	release := make(chan struct{})
	d.block = release
	s := newTestService(t, d, clk)

	if err := s.Register(Spec{JobID: "warn", Name: "W", Kind: KindWarning, Text: "w", Every: 2 * time.Hour}); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	clk.Set(time.Date(2026, time.March, 2, 14, 10, 0, 0, loc))
	s.fireDue(clk.Now())
	d.wait(t)

	go func() {
		time.Sleep(100 * time.Millisecond)
		close(release)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// The blocked dispatch finished cleanly instead of being cancelled.
	st := s.status(t, "warn")
	if st.Fired != 1 {
		t.Fatalf("fired = %d, want 1", st.Fired)
	}
	if st.LastErr != "" {
		t.Fatalf("lastErr = %q, want empty", st.LastErr)
	}
}
