package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"fleetbot/internal/bot"
	"fleetbot/internal/broadcast"
	"fleetbot/internal/config"
	"fleetbot/internal/health"
	"fleetbot/internal/report"
	rtsup "fleetbot/internal/runtime/supervisor"
	"fleetbot/internal/scheduler"
	"fleetbot/internal/stats"
	"fleetbot/internal/storage"
	kit "fleetbot/internal/transport"
	telegram "fleetbot/internal/transport/telegram/adapter"
	"fleetbot/internal/transport/telegram/router"
	logx "fleetbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	loc  *time.Location

	adapter *telegram.Adapter
	subs    *storage.Subscribers
	bc      *broadcast.Service
	job     *bot.ReportJob
	cmdm    *router.CommandManager
	sched   *scheduler.Service
	http    *health.Server

	registerCommands bool

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	loc, err := loadLocation(cfg)
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Telegram logging starts disabled so Apply does not warn before the
	// target chat is known.
	logCfg := mapLoggingConfig(cfg, loc)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	logSvc.SetTelegramTarget(logTarget(cfg), cfg.Logging.Telegram.ThreadID)
	logSvc.Apply(logCfg)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	log = log.With(logx.String("comp", "app"))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	subs := storage.NewSubscribers(st, log.With(logx.String("comp", "storage")))
	log.Info("storage enabled", logx.String("driver", sc.Driver))

	statsCfg, err := mapStatsConfig(cfg)
	if err != nil {
		_ = subs.Close()
		return nil, err
	}
	fetcher := stats.New(statsCfg, log.With(logx.String("comp", "stats")))
	formatter := report.New(mapReportConfig(cfg, loc))
	bc := broadcast.New(mapBroadcastConfig(cfg), ad, log.With(logx.String("comp", "broadcast")))

	handlers := bot.NewHandlers(fetcher, formatter, subs, bot.DefaultTexts(), log.With(logx.String("comp", "bot")))
	cmdm := router.NewCommandManager(log.With(logx.String("comp", "commands")), ad, router.Options{
		AdminGroupID: cfg.Telegram.AdminGroupID,
		DeniedText:   handlers.Texts().Denied,
	})
	cmdm.SetRegistry(handlers.Commands())

	job := bot.NewReportJob(fetcher, formatter, subs, bc, log.With(logx.String("comp", "report")))
	job.SetStaticChats(cfg.Broadcast.ChatIDs)

	schedCfg, err := mapSchedulerConfig(cfg, loc)
	if err != nil {
		_ = subs.Close()
		return nil, err
	}
	sched := scheduler.New(schedCfg, job.Run, log.With(logx.String("comp", "scheduler")))

	every, err := keepAliveEvery(cfg)
	if err != nil {
		_ = subs.Close()
		return nil, err
	}
	if every > 0 {
		pinger := health.NewPinger(cfg.HTTP.ExternalURL, log.With(logx.String("comp", "keepalive")))
		if err := sched.AddInterval("keepalive", every, pinger.Run); err != nil {
			_ = subs.Close()
			return nil, err
		}
		log.Info("keepalive enabled", logx.String("url", pinger.URL()), logx.Duration("every", every))
	}

	var srv *health.Server
	if cfg.HTTP.Enabled {
		srv = health.New(mapHealthConfig(cfg, loc), log.With(logx.String("comp", "http")))
	}

	return &App{
		cfgm:             cfgm,
		log:              log,
		logs:             logSvc,
		loc:              loc,
		adapter:          ad,
		subs:             subs,
		bc:               bc,
		job:              job,
		cmdm:             cmdm,
		sched:            sched,
		http:             srv,
		registerCommands: cfg.Telegram.RegisterCommands,
		updates:          make(chan kit.Update, 256),
	}, nil
}

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
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return err
	}
	if a.registerCommands {
		mctx, cancel := context.WithTimeout(runCtx, 10*time.Second)
		if err := a.cmdm.PublishMenu(mctx); err != nil {
			a.log.Warn("command menu update failed", logx.Err(err))
		}
		cancel()
	}

	if err := a.sched.Start(runCtx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	if a.http != nil {
		a.http.SetSupervisors(a.supervisors)
		a.http.Start(runCtx)
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go0("config.watch", func(c context.Context) {
		if err := a.cfgm.Watch(c); err != nil {
			a.log.Warn("config watch stopped; hot reload disabled", logx.Err(err))
		}
	})

	a.notifySystemd()
	a.log.Info("app started",
		logx.String("bot", a.adapter.Username()),
		logx.String("timezone", a.loc.String()),
	)
	return nil
}

// supervisors lists running component supervisors for /health.
func (a *App) supervisors() map[string]*rtsup.Supervisor {
	out := map[string]*rtsup.Supervisor{"app": a.sup}
	if sup := a.adapter.Supervisor(); sup != nil {
		out["telegram.adapter"] = sup
	}
	if sup := a.cmdm.Supervisor(); sup != nil {
		out["commands"] = sup
	}
	if a.http != nil {
		if sup := a.http.Supervisor(); sup != nil {
			out["http"] = sup
		}
	}
	return out
}

// notifySystemd reports readiness and feeds the watchdog when running as a
// systemd unit. Outside systemd both calls are no-ops.
func (a *App) notifySystemd() {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("systemd notified", logx.String("state", "ready"))
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
	a.log.Info("systemd watchdog enabled", logx.Duration("interval", interval))
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok && time.Until(dl) < max {
			max = time.Until(dl)
		}
		if max > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
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
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("scheduler", 3*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("http", 2*time.Second, func(c context.Context) error {
		if a.http != nil {
			a.http.Stop(c)
		}
		return nil
	})
	step("adapter", 3*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", 1*time.Second, func(c context.Context) error { return a.subs.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
