package announce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"spawnbot/internal/schedule"
	logx "spawnbot/pkg/logx"
)

const defaultDigestCron = "0 9 * * *"

// Digest posts a daily summary of upcoming fire times on a cron spec,
// evaluated in the schedule timezone.
type Digest struct {
	spec string
	loc  *time.Location

	svc  *Service
	snap func() schedule.Snapshot
	log  logx.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

func NewDigest(spec string, loc *time.Location, svc *Service, snap func() schedule.Snapshot, log logx.Logger) *Digest {
	if spec == "" {
		spec = defaultDigestCron
	}
	if loc == nil {
		loc = time.Local
	}
	return &Digest{spec: spec, loc: loc, svc: svc, snap: snap, log: log}
}

func (d *Digest) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cron != nil {
		return nil
	}

	c := cron.New(cron.WithLocation(d.loc))
	_, err := c.AddFunc(d.spec, d.post)
	if err != nil {
		return fmt.Errorf("digest: cron spec %q: %w", d.spec, err)
	}
	c.Start()
	d.cron = c
	if !d.log.IsZero() {
		d.log.Info("daily digest enabled", logx.String("cron", d.spec), logx.String("timezone", d.loc.String()))
	}
	return nil
}

func (d *Digest) Stop(ctx context.Context) error {
	d.mu.Lock()
	c := d.cron
	d.cron = nil
	d.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Digest) post() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, _ := d.svc.settings()
	if err := d.svc.Reply(ctx, cfg.Target, FormatDigest(d.snap())); err != nil && !d.log.IsZero() {
		d.log.Warn("digest post failed", logx.Err(err))
	}
}
