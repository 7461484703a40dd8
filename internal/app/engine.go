package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/conc"

	"hostmon/internal/alert"
	"hostmon/internal/api"
	"hostmon/internal/config"
	"hostmon/internal/metrics"
	"hostmon/internal/pipeline"
	"hostmon/internal/retry"
	"hostmon/internal/storage"
)

// engine owns one configured collector runtime: loop, sinks, alerts and servers.
type engine struct {
	logger  *slog.Logger
	loop    *pipeline.Loop
	sink    *pipeline.FanoutSink
	watcher *alert.Watcher
	api     *api.Server
	health  *healthServer
}

// newEngine wires every component from validated config.
// Params: ctx startup context bounding store connection; cfg runtime config; logger root logger; version build version.
// Returns: ready engine or build error; resources opened before the error are released.
func newEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) (_ *engine, err error) {
	coordinator, err := pipeline.NewCoordinator(
		metrics.NewHost(metrics.HostOptions{
			IgnoreMounts:  cfg.Collector.DiskUsage.IgnoreMounts,
			IgnoreFstypes: cfg.Collector.DiskUsage.IgnoreFstypes,
		}),
		pipeline.CoordinatorConfig{
			Tiers: pipeline.TierSchedule{
				Medium: cfg.Collector.Tiers.Medium.Duration,
				Slow:   cfg.Collector.Tiers.Slow.Duration,
			},
			ProbeTimeout:  cfg.Collector.ProbeTimeout.Duration,
			SlowThreshold: cfg.Collector.SlowThreshold.Duration,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("build coordinator: %w", err)
	}

	tags := storage.Tags(cfg.Global)
	var store storage.Store
	primary, mode := pipeline.SelectSink(
		ctx,
		cfg.Collector.DryRun,
		func(attemptCtx context.Context) (pipeline.Sink, error) {
			opened, openErr := storage.Open(attemptCtx, cfg.Storage, tags, logger)
			if openErr != nil {
				return nil, openErr
			}
			store = opened
			return opened, nil
		},
		retry.Linear(cfg.Storage.ConnectAttempts, cfg.Storage.ConnectBackoff.Duration),
		logger,
	)

	// Publishers, the live cache and the hub are secondaries: their failures never fail a pass.
	var secondaries []pipeline.Sink
	defer func() {
		if err != nil {
			_ = pipeline.NewMultiSink(append([]pipeline.Sink{primary}, secondaries...)...).Close()
		}
	}()

	if cfg.Valkey.Enabled {
		publisher, pubErr := storage.OpenStreamPublisher(ctx, cfg.Valkey, tags["host"], logger)
		if pubErr != nil {
			logger.Warn("valkey stream publisher disabled", slog.String("error", pubErr.Error()))
		} else {
			secondaries = append(secondaries, publisher)
		}
	}
	if cfg.Forward.Enabled {
		secondaries = append(secondaries, storage.NewForwarder(cfg.Forward, tags, logger))
	}

	var (
		cache *api.LiveCache
		hub   *api.Hub
	)
	if cfg.API.Enabled {
		cache = api.NewLiveCache(cfg.API.CacheTTL.Duration)
		hub = api.NewHub(cache.Latest, logger)
		secondaries = append(secondaries, cache, hub)
	}

	var (
		watcher   *alert.Watcher
		observers []pipeline.Observer
	)
	if cfg.Alert.Enabled {
		watcher, err = buildAlertWatcher(cfg, logger)
		if err != nil {
			return nil, err
		}
		observers = append(observers, watcher)
	}

	sink := pipeline.NewFanoutSink(primary, cfg.Collector.WriteTimeout.Duration, logger, secondaries...)
	loop, err := pipeline.NewLoop(coordinator, sink, pipeline.LoopConfig{
		Interval:        cfg.Collector.Interval.Duration,
		WriteTimeout:    cfg.Collector.WriteTimeout.Duration,
		ReportEvery:     cfg.Collector.ReportEvery,
		CompensateDrift: cfg.Collector.CompensateDrift,
		Mode:            mode,
	}, logger, observers...)
	if err != nil {
		return nil, fmt.Errorf("build loop: %w", err)
	}

	out := &engine{
		logger:  logger,
		loop:    loop,
		sink:    sink,
		watcher: watcher,
	}

	if cfg.API.Enabled {
		opts := api.Options{
			Host:         tags["host"],
			Version:      version,
			HistoryStart: cfg.API.HistoryStart,
			Cache:        cache,
			Hub:          hub,
			Stats:        loop,
		}
		if store != nil && mode == pipeline.ModeLive {
			opts.Querier = store
		}
		if watcher != nil {
			opts.Alerts = watcher
		}
		out.api, err = api.NewServer(cfg.API.Listen, api.NewRouter(opts, logger), logger)
		if err != nil {
			return nil, fmt.Errorf("start api: %w", err)
		}
	}

	if cfg.GRPC.Enabled {
		out.health, err = newHealthServer(cfg.GRPC.Listen, logger)
		if err != nil {
			if out.api != nil {
				_ = out.api.Close()
			}
			return nil, fmt.Errorf("start grpc health: %w", err)
		}
	}

	return out, nil
}

// buildAlertWatcher loads rules behind the log notifier.
// Params: cfg runtime config; logger root logger.
// Returns: watcher or rule load error.
func buildAlertWatcher(cfg *config.Config, logger *slog.Logger) (*alert.Watcher, error) {
	rules, err := alert.LoadRules(cfg.Alert)
	if err != nil {
		return nil, fmt.Errorf("load alert rules: %w", err)
	}
	evaluator, err := alert.NewEvaluator(rules, alert.Repeat(cfg.Alert.Repeat), logger)
	if err != nil {
		return nil, fmt.Errorf("build alert evaluator: %w", err)
	}

	return alert.NewWatcher(evaluator, logger, alert.NewLogNotifier(logger)), nil
}

// Mode reports whether snapshots reach storage or only the log.
func (e *engine) Mode() pipeline.Mode {
	return e.loop.Mode()
}

// Run starts servers and the loop, then tears everything down once ctx is canceled.
// Params: ctx lifecycle context.
// Returns: server failure or nil on graceful stop.
func (e *engine) Run(ctx context.Context) error {
	serveCtx, stopServe := context.WithCancel(context.WithoutCancel(ctx))
	defer stopServe()

	var servers conc.WaitGroup
	serveErr := make(chan error, 2)
	if e.api != nil {
		servers.Go(func() {
			if err := e.api.Run(serveCtx); err != nil {
				serveErr <- fmt.Errorf("api server: %w", err)
			}
		})
	}
	if e.health != nil {
		servers.Go(func() {
			if err := e.health.run(serveCtx); err != nil {
				serveErr <- fmt.Errorf("grpc health server: %w", err)
			}
		})
		e.health.setServing(true)
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	loopDone := make(chan error, 1)
	go func() {
		loopDone <- e.loop.Run(loopCtx)
	}()

	var runErr error
	select {
	case runErr = <-loopDone:
	case runErr = <-serveErr:
		stopLoop()
		<-loopDone
	}

	if e.health != nil {
		e.health.setServing(false)
	}
	if e.watcher != nil {
		e.watcher.Wait()
	}
	stopServe()
	servers.Wait()

	if err := e.sink.Close(); err != nil {
		e.logger.Warn("sink close failed", slog.String("error", err.Error()))
	}
	for _, stats := range e.sink.Secondaries() {
		e.logger.Info(
			"secondary sink summary",
			slog.String("sink", stats.Sink),
			slog.Uint64("written", stats.Written),
			slog.Uint64("failed", stats.Failed),
			slog.Uint64("dropped", stats.Dropped),
		)
	}
	return runErr
}
