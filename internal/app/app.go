// Package app wires the scheduling daemon together: config, logging, store,
// coordinator, notifier and the background poller.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"todosched/internal/config"
	"todosched/internal/eventbus"
	"todosched/internal/notifier"
	"todosched/internal/poller"
	"todosched/internal/runtime/supervisor"
	"todosched/internal/sched/coordinator"
	"todosched/internal/storage"
	"todosched/pkg/logx"
)

// StopReason tags why the daemon is shutting down, for the final log line.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopFatalError StopReason = "fatal_error"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	coord *coordinator.Coordinator
	notif *notifier.Service
	poll  *poller.Service
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sc, err := mapStoreConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}
	log.Info("store opened", logx.String("driver", sc.Driver))

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notifLog := log.With(logx.String("comp", "notifier"))
	notif := notifier.New(ncfg, buildSenders(cfg, notifLog), notifLog, bus)

	coord := coordinator.New(store, bus,
		coordinator.WithSink(notif),
		coordinator.WithLogger(log.With(logx.String("comp", "coordinator"))))

	pcfg, err := mapPollerConfig(cfg)
	if err != nil {
		return nil, err
	}
	poll := poller.New(pcfg, coord, notif, log.With(logx.String("comp", "poller")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		coord:   coord,
		notif:   notif,
		poll:    poll,
	}, nil
}

// Coordinator exposes the schedule façade to presentation layers (CLI, web).
func (a *App) Coordinator() *coordinator.Coordinator { return a.coord }

func (a *App) Config() *config.Config { return a.cfgm.Get() }

// SetWatchdog points the poll loop at a keepalive hook (systemd watchdog).
func (a *App) SetWatchdog(fn func()) { a.poll.Watchdog = fn }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("timezone: invalid %q: %w", tz, err)
			}
		}
		if _, err := mapStoreConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if _, err := mapPollerConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}
	if a.poll.Enabled() {
		a.poll.Start(a.sup.Context())
	}

	// Debug visibility into engine events.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// Hot reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				sections, attrs := config.SummarizeChange(lastApplied, newCfg)
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Debug("config change summary", fields...)
				}
				lastApplied = newCfg
				a.applyReload(c, newCfg, sections)

				if len(sections) > 0 {
					a.log.Info("config reloaded", logx.String("changed", strings.Join(sections, ",")))
				} else {
					a.log.Info("config reloaded (no changes)")
				}
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) applyReload(ctx context.Context, cfg *config.Config, sections []string) {
	for _, s := range sections {
		if s == "store" {
			a.log.Warn("store config changed; restart required for changes to take effect")
			break
		}
	}

	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	// Notifier (live): validated by the reload validator already.
	if ncfg, err := mapNotifierConfig(cfg); err == nil {
		prevEnabled := a.notif.Enabled()
		a.notif.Apply(ncfg)
		if prevEnabled && !ncfg.Enabled {
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		} else if !prevEnabled && ncfg.Enabled {
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
		}
	}

	if pcfg, err := mapPollerConfig(cfg); err == nil {
		a.poll.Apply(ctx, pcfg)
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Run a shutdown step with an upper bound so one component can't stall the
	// whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("poller", 2*time.Second, func(c context.Context) error { a.poll.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("store", 1*time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
