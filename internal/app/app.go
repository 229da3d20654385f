// Package app wires configuration, storage, the update worker and the
// optional operator surfaces into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"raspisanie/internal/config"
	"raspisanie/internal/eventbus"
	"raspisanie/internal/fetch"
	"raspisanie/internal/metrics"
	"raspisanie/internal/observability"
	"raspisanie/internal/operator"
	"raspisanie/internal/runtime/supervisor"
	"raspisanie/internal/storage"
	"raspisanie/internal/transport"
	"raspisanie/internal/transport/telegram"
	"raspisanie/internal/update"
	logx "raspisanie/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log     logx.Logger
	logs    *logx.Service
	bus     *eventbus.Memory
	store   storage.Store
	metrics *metrics.Collectors

	updates *update.Service
	http    *observability.Server

	// nil when telegram.enabled is false
	adapter  *telegram.Adapter
	operator *operator.Operator
	inbox    chan transport.Message
}

// New loads the config and builds every component. Nothing runs until Start.
func New(cfgm *config.ConfigManager) (*App, error) {
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLogConfig(cfg), nil)
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log)

	a := &App{cfgm: cfgm, log: log, logs: logs, bus: eventbus.New(), metrics: metrics.New()}
	if err := a.build(cfg); err != nil {
		if a.store != nil {
			_ = a.store.Close()
		}
		_ = logs.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config) error {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	st, err := storage.Open(sc, a.log)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	a.store = st
	a.log.Info("storage opened", logx.String("driver", sc.Driver))

	if err := seedSubjectAliases(context.Background(), st, cfg.Parsing.SubjectAliases); err != nil {
		return err
	}

	uc, err := mapUpdateConfig(cfg)
	if err != nil {
		return err
	}
	fo, err := mapFetchOptions(cfg, a.log)
	if err != nil {
		return err
	}
	parser, sink := buildPipeline(cfg, st, a.metrics, a.log)
	a.updates, err = update.New(uc, update.Deps{
		Fetcher:      fetch.NewHTTP(fo),
		Parser:       parser,
		Sink:         sink,
		Fingerprints: st,
		Log:          a.log,
		Bus:          a.bus,
		Observer:     a.metrics,
	})
	if err != nil {
		return err
	}

	hc, err := mapHTTPConfig(cfg)
	if err != nil {
		return err
	}
	a.http = observability.New(hc, a.metrics.Handler(), a.health, a.log)

	if !cfg.Telegram.Enabled {
		a.log.Info("telegram disabled; running headless")
		return nil
	}
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return err
	}
	oc, err := mapOperatorConfig(cfg)
	if err != nil {
		return err
	}
	a.adapter, err = telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: poll}, a.log)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	a.operator = operator.New(oc, a.adapter, a.updates, a.bus, a.log)
	a.inbox = make(chan transport.Message, 64)
	a.logs.SetNotifier(transport.Notifier{Adapter: a.adapter, Target: oc.GroupLog})
	return nil
}

// health reports unhealthy while the worker is stopped or the last cycle failed.
func (a *App) health() error {
	snap := a.updates.Snapshot()
	switch {
	case snap.State == update.StateStopped:
		return errors.New("update worker stopped")
	case snap.LastResult == update.ResultError:
		return fmt.Errorf("last cycle failed: %s", snap.LastError)
	}
	return nil
}

func (a *App) Updates() *update.Service { return a.updates }

func (a *App) Logger() logx.Logger { return a.log }

// RunOnce runs a single cycle without starting any background component.
func (a *App) RunOnce(ctx context.Context, force bool) (update.CycleResult, error) {
	return a.updates.RunOnce(ctx, force)
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
	)

	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapUpdateConfig(cfg); err != nil {
			return err
		}
		if _, err := mapHTTPConfig(cfg); err != nil {
			return err
		}
		if _, err := mapOperatorConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	a.http.Start(a.sup.Context())

	if a.adapter != nil {
		if err := a.adapter.Start(a.sup.Context(), a.inbox); err != nil {
			return err
		}
		a.sup.Go("operator", func(c context.Context) error {
			return a.operator.Run(c, a.inbox)
		})
		a.sup.Go0("telegram.menu", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 10*time.Second)
			defer cancel()
			if err := a.adapter.UpdateMenuCommands(mctx, a.operator.Commands()); err != nil {
				a.log.Warn("bot menu update failed", logx.Err(err))
			}
		})
	}

	if err := a.updates.Start(a.sup.Context()); err != nil {
		return err
	}

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(32)
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
	}

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
				a.reload(c, last, next)
				last = next
			}
		}
	})

	a.sup.GoRestart("config.watch", a.cfgm.Watch,
		supervisor.WithRestartBackoff(time.Second, 30*time.Second),
	)

	a.log.Info("app started", logx.Bool("telegram", a.adapter != nil))
	return nil
}

// reload applies a validated config. Storage and the bot token are fixed for
// the process lifetime.
func (a *App) reload(ctx context.Context, prev, next *config.Config) {
	change := config.SummarizeConfigChange(prev, next)
	if change.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(change.Restart) > 0 {
		a.log.Warn("config change needs a restart to take effect", logx.String("sections", strings.Join(change.Restart, ",")))
	}

	a.logs.Apply(mapLogConfig(next))

	if a.operator != nil {
		if oc, err := mapOperatorConfig(next); err != nil {
			a.log.Warn("invalid telegram config; keeping previous", logx.Err(err))
		} else {
			a.operator.SetConfig(oc)
			a.logs.SetNotifier(transport.Notifier{Adapter: a.adapter, Target: oc.GroupLog})
		}
	}

	if uc, err := mapUpdateConfig(next); err != nil {
		a.log.Warn("invalid update config; keeping previous", logx.Err(err))
	} else if err := a.updates.Apply(uc); err != nil {
		a.log.Warn("update config rejected", logx.Err(err))
	}

	if err := seedSubjectAliases(ctx, a.store, next.Parsing.SubjectAliases); err != nil {
		a.log.Warn("subject aliases not stored", logx.Err(err))
	}
	a.updates.SetPipeline(buildPipeline(next, a.store, a.metrics, a.log))

	if hc, err := mapHTTPConfig(next); err != nil {
		a.log.Warn("invalid metrics config; keeping previous", logx.Err(err))
	} else {
		a.http.Reconfigure(ctx, hc)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(change.Sections, ","))}, change.Fields...)
	a.log.Info("config reloaded", fields...)
}

// Stop shuts components down in order, each step bounded so one component
// cannot stall the rest. Safe to call on an app that was never started.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if a.sup != nil {
		a.sup.Cancel()
	}

	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok && time.Until(dl) < limit {
			limit = time.Until(dl)
		}
		if limit > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, limit)
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
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				<-done
				a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", time.Since(start)))
			}()
		}
	}

	// the running cycle finishes; an apply is never interrupted
	step("update", 30*time.Second, func(c context.Context) error { return a.updates.Stop(c, false) })
	if a.adapter != nil {
		step("telegram", 3*time.Second, a.adapter.Stop)
	}
	step("http", 2*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	if a.sup != nil {
		step("supervisor", 2*time.Second, a.sup.Wait)
	}
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
