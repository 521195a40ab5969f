// Package app wires configuration, storage, the Telegram adapter and the
// bot into one process and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kinobot/internal/bot"
	"kinobot/internal/config"
	"kinobot/internal/dispatch"
	"kinobot/internal/eventbus"
	"kinobot/internal/gate"
	"kinobot/internal/maintenance"
	"kinobot/internal/observability/ops"
	rtsup "kinobot/internal/runtime/supervisor"
	"kinobot/internal/transport"
	"kinobot/internal/transport/telegram"
	logx "kinobot/pkg/logx"
	"kinobot/pkg/systemd"
)

const (
	jobAdminRefresh = "admins.refresh"
	jobStatusPrune  = "dispatch.prune"
	jobSessionPrune = "sessions.prune"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	core    *Core
	adapter *telegram.Adapter
	gate    *gate.Gate
	disp    *dispatch.Service
	maint   *maintenance.Service
	bot     *bot.Bot
	ops     *ops.Service

	updates chan transport.Update
	started time.Time
}

// NewApp loads cfgPath and builds every component. Nothing runs until Start.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	tcfg, err := mapTelegramConfig(cfg, false)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(tcfg, logx.NewConsole("INFO"))
	if err != nil {
		return nil, err
	}

	// Telegram logging is enabled only after the target chat is set.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, root := logx.New(bootCfg, ad)
	logSvc.SetTelegramTarget(logTarget(cfg), cfg.Logging.Telegram.ThreadID)
	logSvc.Apply(logCfg)
	log := root.With(logx.Comp("app"))

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     eventbus.New(),
		adapter: ad,
		updates: make(chan transport.Update, 256),
	}
	if err := a.build(cfg, root); err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, root logx.Logger) error {
	core, err := OpenCore(cfg, root)
	if err != nil {
		return err
	}
	a.core = core

	chans, timeout, err := mapGate(cfg)
	if err != nil {
		return err
	}
	a.gate = gate.New(a.adapter, chans, timeout, root.With(logx.Comp("gate")))

	dcfg, scfg, err := mapDispatchConfig(cfg)
	if err != nil {
		return err
	}
	dlog := root.With(logx.Comp("dispatch"))
	a.disp = dispatch.NewService(scfg, dispatch.NewDispatcher(dcfg, dlog), dlog)

	settings, err := mapBotSettings(cfg)
	if err != nil {
		return err
	}
	a.bot = bot.New(bot.Deps{
		Provider:    a.adapter,
		Store:       core.Store,
		Registry:    core.Registry,
		Stats:       core.Stats,
		Gate:        a.gate,
		Contest:     core.Contest,
		Dispatch:    a.disp,
		Admins:      core.Admins,
		Bus:         a.bus,
		Supervisors: a.supervisors,
	}, settings, cfg.Bot.Workers, root)

	ocfg, err := mapOpsConfig(cfg)
	if err != nil {
		return err
	}
	a.ops = ops.New(ocfg, a.opsSources(), root)

	a.maint = maintenance.New(root)
	return a.registerJobs(cfg)
}

func (a *App) registerJobs(cfg *config.Config) error {
	specs := maintenanceSpecs(cfg)
	jobs := []maintenance.Job{
		{Name: jobAdminRefresh, Run: a.core.Admins.Refresh},
		{Name: jobStatusPrune, Run: func(context.Context) error {
			if n := a.disp.Prune(time.Now()); n > 0 {
				a.log.Debug("dispatch statuses pruned", logx.Int("count", n))
			}
			return nil
		}},
		{Name: jobSessionPrune, Run: func(context.Context) error {
			if n := a.bot.Sessions().Prune(time.Now()); n > 0 {
				a.log.Debug("sessions pruned", logx.Int("count", n))
			}
			return nil
		}},
	}
	for _, j := range jobs {
		j.Spec = specs[j.Name]
		if err := a.maint.Add(j); err != nil {
			return err
		}
	}
	return nil
}

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err is the first fatal error seen by the app supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) supervisors() map[string]rtsup.Snapshot {
	out := map[string]rtsup.Snapshot{}
	if a.sup != nil {
		out["app"] = a.sup.Snapshot()
	}
	if s := a.adapter.Supervisor(); s != nil {
		out["telegram"] = s.Snapshot()
	}
	if s := a.bot.Router().Supervisor(); s != nil {
		out["router"] = s.Snapshot()
	}
	if s := a.ops.Supervisor(); s != nil {
		out["ops"] = s.Snapshot()
	}
	return out
}

func (a *App) Start(ctx context.Context) error {
	a.started = time.Now()
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.Comp("config")))
	a.cfgm.SetValidator(a.validate)

	if err := a.core.Admins.Refresh(a.sup.Context()); err != nil {
		a.log.Warn("admin list not loaded", logx.Err(err))
	}
	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.bot.SetBotUsername(a.adapter.Username())
	a.disp.Start(a.sup.Context())
	if a.cfgm.Get().Maintenance.Enabled {
		a.maint.Start(a.sup.Context())
	}
	a.ops.Start(a.sup.Context())

	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.bot.Run(c, a.updates)
	})

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
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// keep only the latest of a burst
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		systemd.Watchdog(c, func() bool { return a.sup.Err() == nil })
	})
	if _, err := systemd.Ready(); err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	}
	_, _ = systemd.Status("serving @" + a.adapter.Username())

	a.log.Info("app started",
		logx.String("bot", a.adapter.Username()),
		logx.String("storage", a.core.Store.Driver()),
		logx.Int("gate_channels", len(a.gate.Channels())),
	)
	return nil
}

// validate runs on hot reload, after config.Validate.
func (a *App) validate(_ context.Context, cfg *config.Config) error {
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapDispatchConfig(cfg); err != nil {
		return err
	}
	if _, err := mapBotSettings(cfg); err != nil {
		return err
	}
	if _, err := mapOpsConfig(cfg); err != nil {
		return err
	}
	for name, spec := range maintenanceSpecs(cfg) {
		if spec == "" {
			continue
		}
		if _, err := a.maint.ParseSpec(spec); err != nil {
			return fmt.Errorf("maintenance %s: %w", name, err)
		}
	}
	return nil
}

func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if r := config.RestartRequired(sections); len(r) > 0 {
		a.log.Warn("restart required for some changes", logx.String("sections", strings.Join(r, ",")))
	}

	a.logs.SetTelegramTarget(logTarget(next), next.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLogConfig(next))

	a.core.Admins.SetOwners(next.Telegram.OwnerUserIDs)
	a.core.Contest.SetCap(winnersCap(next))

	if chans, timeout, err := mapGate(next); err == nil {
		a.gate.Configure(chans, timeout)
	}
	if dcfg, scfg, err := mapDispatchConfig(next); err == nil {
		a.disp.Dispatcher().Apply(dcfg)
		a.disp.Apply(scfg)
	}
	if s, err := mapBotSettings(next); err == nil {
		if s.BotUsername == "" {
			s.BotUsername = a.adapter.Username()
		}
		a.bot.Apply(s)
	}
	if ocfg, err := mapOpsConfig(next); err == nil {
		a.ops.Reconfigure(a.sup.Context(), ocfg)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop shuts components down in dependency order. Each step is bounded so
// one stuck component cannot hold the others.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Stopping()
	a.sup.Cancel()

	var errs []error
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(sctx)
		}()
		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-sctx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("maintenance", time.Second, func(c context.Context) error { a.maint.Stop(c); return nil })
	step("adapter", 3*time.Second, a.adapter.Stop)
	step("dispatch", 5*time.Second, func(c context.Context) error { a.disp.Stop(c); return nil })
	step("supervisor", 3*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.core.Close() })

	a.log.Info("stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}
