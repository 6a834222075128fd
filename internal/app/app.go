// Package app wires the config manager, transport adapter, scheduler,
// announcer and observability services into one lifecycle.
package app

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"spawnbot/internal/announce"
	"spawnbot/internal/config"
	"spawnbot/internal/eventbus"
	"spawnbot/internal/observability/pprof"
	"spawnbot/internal/runtime/sdnotify"
	rtsup "spawnbot/internal/runtime/supervisor"
	"spawnbot/internal/schedule"
	"spawnbot/internal/storage"
	kit "spawnbot/internal/transport"
	"spawnbot/internal/transport/telegram/adapter"
	logx "spawnbot/pkg/logx"
)

type App struct {
	mgr    *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	bus     eventbus.Bus
	adapter *adapter.Adapter
	store   storage.Store
	sched   *schedule.Service
	ann     *announce.Service
	digest  *announce.Digest
	pprof   *pprof.Service

	sup     *rtsup.Supervisor
	updates chan kit.Update
}

func New(configPath string) (*App, error) {
	mgr := config.NewManager(configPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	pollTimeout, _ := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	tg, err := adapter.New(adapter.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logx.NewConsole(cfg.Logging.Level))
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	logSvc, log := logx.New(logConfig(cfg), tg)
	applyLogTarget(logSvc, cfg)
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	store, err := storage.Open(storageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}

	ann := announce.New(announceConfig(cfg), tg, store, log.With(logx.String("comp", "announce")), bus)

	sched, err := buildSchedule(cfg, ann, log.With(logx.String("comp", "schedule")), bus)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	a := &App{
		mgr:     mgr,
		logSvc:  logSvc,
		log:     log,
		bus:     bus,
		adapter: tg,
		store:   store,
		sched:   sched,
		ann:     ann,
		pprof:   pprof.New(pprofConfig(cfg), log.With(logx.String("comp", "pprof"))),
	}
	if cfg.Announce.Digest.Enabled {
		a.digest = announce.NewDigest(cfg.Announce.Digest.Cron, sched.Location(), ann, sched.Snapshot,
			log.With(logx.String("comp", "digest")))
	}
	return a, nil
}

// buildSchedule constructs the service and registers a warning plus a
// follow-up job per configured spawn.
func buildSchedule(cfg *config.Config, disp schedule.Dispatcher, log logx.Logger, bus eventbus.Bus) (*schedule.Service, error) {
	sc := cfg.Schedule
	anchorStr := sc.Anchor
	// Validation accepts an empty anchor only for a disabled, spawn-less
	// schedule section; the service still needs one to construct.
	if strings.TrimSpace(anchorStr) == "" {
		anchorStr = "12:10"
	}
	anchor, err := schedule.ParseAnchor(anchorStr)
	if err != nil {
		return nil, fmt.Errorf("schedule: %w", err)
	}
	followup, err := config.ParseDurationOrDefault("schedule.followup_delay", sc.FollowupDelay, 5*time.Minute)
	if err != nil {
		return nil, err
	}
	grace, err := config.ParseDurationOrDefault("schedule.misfire_grace", sc.MisfireGrace, time.Minute)
	if err != nil {
		return nil, err
	}

	svc, err := schedule.New(schedule.Config{
		Enabled:       sc.Enabled,
		Timezone:      sc.Timezone,
		Anchor:        anchor,
		FollowupDelay: followup,
		MisfireGrace:  grace,
	}, disp, log, bus)
	if err != nil {
		return nil, err
	}

	for _, sp := range sc.Spawns {
		every := time.Duration(sp.IntervalHours) * time.Hour
		if err := svc.Register(schedule.Spec{
			JobID: sp.JobID,
			Name:  sp.Name,
			Kind:  schedule.KindWarning,
			Text:  sp.Message,
			Every: every,
		}); err != nil {
			return nil, fmt.Errorf("schedule: %w", err)
		}
		if err := svc.Register(schedule.Spec{
			JobID:  sp.FollowupJobID,
			Name:   sp.Name,
			Kind:   schedule.KindFollowup,
			Text:   sp.FollowupMessage,
			Every:  every,
			Offset: followup,
		}); err != nil {
			return nil, fmt.Errorf("schedule: %w", err)
		}
	}
	return svc, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "app"))),
		rtsup.WithCancelOnError(false),
	)
	runCtx := a.sup.Context()

	a.updates = make(chan kit.Update, 64)
	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return fmt.Errorf("telegram start: %w", err)
	}
	if err := a.sched.Start(runCtx); err != nil {
		return fmt.Errorf("schedule start: %w", err)
	}
	a.pprof.Start(runCtx)
	if a.digest != nil {
		if err := a.digest.Start(); err != nil {
			a.log.Warn("digest disabled", logx.Err(err))
		}
	}

	a.mgr.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})
	a.sup.Go("config.watch", a.mgr.Watch)

	sub := a.mgr.Subscribe(4)
	a.sup.Go0("config.apply", func(c context.Context) {
		defer a.mgr.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	a.sup.Go0("commands", func(c context.Context) { a.commandLoop(c, a.updates) })
	a.sup.Go0("bus.debug", func(c context.Context) { a.busDebugLoop(c) })
	a.sup.Go0("sd.watchdog", func(c context.Context) { sdnotify.Watchdog(c, a.log) })

	sdnotify.Ready(a.log)

	if err := a.ann.AnnounceStartup(runCtx, a.sched.Snapshot()); err != nil {
		a.log.Warn("startup announcement failed", logx.Err(err))
	}
	a.log.Info("spawnbot started")
	return nil
}

// Stop winds services down in reverse start order, each step bounded so one
// stuck component cannot eat the whole shutdown budget.
func (a *App) Stop(ctx context.Context) {
	sdnotify.Stopping(a.log)

	step := func(name string, d time.Duration, fn func(ctx context.Context) error) {
		sctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		if err := fn(sctx); err != nil {
			a.log.Warn("shutdown step failed", logx.String("step", name), logx.Err(err))
		}
	}

	if a.digest != nil {
		step("digest", 2*time.Second, a.digest.Stop)
	}
	step("schedule", 5*time.Second, a.sched.Stop)
	step("telegram", 5*time.Second, a.adapter.Stop)
	step("pprof", 3*time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil })
	if a.sup != nil {
		step("goroutines", 5*time.Second, a.sup.Stop)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}
	a.log.Info("spawnbot stopped")
	_ = a.logSvc.Close()
}

// Wait blocks until the run context ends.
func (a *App) Wait() {
	if a.sup != nil {
		<-a.sup.Context().Done()
	}
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	prev := a.mgr.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok || cfg == nil {
				return
			}
			a.logSvc.Apply(logConfig(cfg))
			applyLogTarget(a.logSvc, cfg)
			a.ann.Apply(announceConfig(cfg))
			a.pprof.Reconfigure(ctx, pprofConfig(cfg))

			if prev != nil && !reflect.DeepEqual(prev.Schedule, cfg.Schedule) {
				a.log.Warn("schedule section changed; restart required to apply")
			}
			if prev != nil && !reflect.DeepEqual(prev.Storage, cfg.Storage) {
				a.log.Warn("storage section changed; restart required to apply")
			}
			prev = cfg
			a.log.Info("config reloaded")
		}
	}
}

func (a *App) busDebugLoop(ctx context.Context) {
	events, unsub := a.bus.Subscribe(32)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
		}
	}
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func applyLogTarget(svc *logx.Service, cfg *config.Config) {
	raw := strings.TrimSpace(cfg.Telegram.GroupLog)
	if raw == "" {
		return
	}
	chatID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return
	}
	svc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
}

func announceConfig(cfg *config.Config) announce.Config {
	return announce.Config{
		Target: kit.ChatTarget{
			ChatID:   cfg.Telegram.ChatID,
			ThreadID: cfg.Telegram.ThreadID,
		},
		RatePerSec:     cfg.Announce.RatePerSec,
		ParseMode:      cfg.Announce.ParseMode,
		StartupMessage: cfg.Announce.StartupMessage,
	}
}

func storageConfig(cfg *config.Config) *storage.Config {
	if cfg.Storage == nil {
		return nil
	}
	busy, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	return &storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}
}

func pprofConfig(cfg *config.Config) pprof.Config {
	read, _ := config.ParseDurationField("pprof.read_timeout", cfg.Pprof.ReadTimeout)
	write, _ := config.ParseDurationField("pprof.write_timeout", cfg.Pprof.WriteTimeout)
	idle, _ := config.ParseDurationField("pprof.idle_timeout", cfg.Pprof.IdleTimeout)
	return pprof.Config{
		Enabled:       cfg.Pprof.Enabled,
		Addr:          cfg.Pprof.Addr,
		Prefix:        cfg.Pprof.Prefix,
		Token:         cfg.Pprof.Token,
		AllowInsecure: cfg.Pprof.AllowInsecure,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}
}
