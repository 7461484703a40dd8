package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"hostmon/internal/config"
	"hostmon/internal/logging"
	"hostmon/internal/pipeline"
)

// Runtime defines runtime inputs required to start the collector.
// Params: ConfigPath points to the TOML configuration (empty means defaults plus environment);
// Reload triggers hot reload; WatchConfig adds file-change reloads; DryRun forces dry-run mode.
// Returns: Runtime value used by Run.
type Runtime struct {
	ConfigPath  string
	Reload      <-chan struct{}
	WatchConfig bool
	DryRun      bool
	Version     string
}

// engineRunner is one built collector: it runs until canceled and reports the sink mode it settled on.
type engineRunner interface {
	Run(context.Context) error
	Mode() pipeline.Mode
}

type runDeps struct {
	loadConfig func(string) (*config.Config, error)
	newLogger  func(config.LogConfig) (*slog.Logger, func(), error)
	startPprof func(context.Context, config.PprofConfig, *slog.Logger) (func(), error)
	newEngine  func(context.Context, *config.Config, *slog.Logger) (engineRunner, error)
}

// collector is the running generation: its config, the sink mode the engine chose and the
// resources it owns.
type collector struct {
	cfg         *config.Config
	mode        pipeline.Mode
	logger      *slog.Logger
	closeLogger func()
	cancel      context.CancelFunc
	done        chan error
	stopPprof   func()
}

var errRunnerReturned = errors.New("runner exited without context cancellation")

// Run loads configuration, starts the collector, and rebuilds it on every Runtime.Reload signal.
// Params: ctx controls lifecycle; rt provides runtime inputs and optional reload trigger channel.
// Returns: error on startup failure, unexpected engine exit or failed rollback; nil on graceful stop.
func Run(ctx context.Context, rt Runtime) error {
	if rt.WatchConfig && strings.TrimSpace(rt.ConfigPath) != "" {
		changes, err := watchConfig(ctx, rt.ConfigPath, defaultWatchDebounce, slog.Default())
		if err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		rt.Reload = mergeSignals(ctx, rt.Reload, changes)
	}
	return runWithDeps(ctx, rt, defaultRunDeps(rt.Version))
}

// runWithDeps executes the collector lifecycle using injectable dependencies.
// Params: ctx controls lifecycle; rt runtime inputs; deps start/reload dependencies.
// Returns: runtime error or nil on graceful stop.
func runWithDeps(ctx context.Context, rt Runtime, deps runDeps) error {
	cfg, err := loadRuntimeConfig(rt, deps)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	current, err := startCollector(ctx, cfg, deps, nil, nil)
	if err != nil {
		return err
	}
	current.logger.Info("hostmon started", describeCollector(current)...)

	reloadCh := rt.Reload
	for {
		select {
		case runErr := <-current.done:
			current.done = nil
			if ctx.Err() != nil {
				return current.shutdown(ctx.Err().Error())
			}
			if runErr == nil {
				runErr = errRunnerReturned
			}
			current.stop()
			current.logger.Error("engine stopped unexpectedly", slog.String("mode", string(current.mode)), slog.String("error", runErr.Error()))
			current.closeLoggerSink()
			return fmt.Errorf("run engine: %w", runErr)
		case <-ctx.Done():
			return current.shutdown(ctx.Err().Error())
		case _, ok := <-reloadCh:
			if !ok {
				reloadCh = nil
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			next, reloadErr := reloadCollector(ctx, rt, current, deps)
			if next == nil {
				return reloadErr
			}
			current = next
		}
	}
}

// defaultRunDeps provides production runtime dependencies.
// Params: version build version reported by the API.
// Returns: dependency set used by Run.
func defaultRunDeps(version string) runDeps {
	return runDeps{
		loadConfig: config.Load,
		newLogger:  logging.New,
		startPprof: startPprofServer,
		newEngine: func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engineRunner, error) {
			return newEngine(ctx, cfg, logger, version)
		},
	}
}

// loadRuntimeConfig loads config and applies the command-line dry-run override.
func loadRuntimeConfig(rt Runtime, deps runDeps) (*config.Config, error) {
	cfg, err := deps.loadConfig(rt.ConfigPath)
	if err != nil {
		return nil, err
	}
	if rt.DryRun {
		cfg.Collector.DryRun = true
	}
	return cfg, nil
}

// startCollector builds an engine generation from loaded config and starts it in the background.
// Params: ctx root lifecycle context; cfg validated config; deps runtime dependency set;
// logger/closeFn reuse an already open logger, nil opens one from cfg.Log.
// Returns: running collector or build error; resources opened here are released on error.
func startCollector(
	ctx context.Context,
	cfg *config.Config,
	deps runDeps,
	logger *slog.Logger,
	closeFn func(),
) (_ *collector, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("runtime context canceled: %w", ctx.Err())
	}

	if logger == nil {
		logger, closeFn, err = deps.newLogger(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		defer func() {
			if err != nil && closeFn != nil {
				closeFn()
			}
		}()
	}

	runCtx, cancel := context.WithCancel(ctx)
	stopPprof, err := deps.startPprof(runCtx, cfg.Pprof, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start pprof: %w", err)
	}

	runner, err := deps.newEngine(runCtx, cfg, logger)
	if err != nil {
		stopPprof()
		cancel()
		return nil, fmt.Errorf("build engine: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- runner.Run(runCtx)
	}()

	return &collector{
		cfg:         cfg,
		mode:        runner.Mode(),
		logger:      logger,
		closeLogger: closeFn,
		cancel:      cancel,
		done:        done,
		stopPprof:   stopPprof,
	}, nil
}

// reloadCollector swaps the running collector for one built from freshly loaded config.
// A config that fails to load leaves the current collector untouched; a config that loads but
// fails to build restores the previous config.
// Params: ctx root lifecycle context; rt runtime inputs; current running collector; deps runtime dependency set.
// Returns: collector to keep running and optional reload error; nil collector when rollback failed too.
func reloadCollector(
	ctx context.Context,
	rt Runtime,
	current *collector,
	deps runDeps,
) (*collector, error) {
	nextCfg, err := loadRuntimeConfig(rt, deps)
	if err != nil {
		current.logger.Error("config reload rejected, collector unchanged", slog.String("error", err.Error()))
		return current, fmt.Errorf("reload config: %w", err)
	}
	changes := configChanges(current.cfg, nextCfg)
	current.logger.Info("config reload requested", slog.Any("changes", changes))

	nextLogger, nextCloseFn, err := deps.newLogger(nextCfg.Log)
	if err != nil {
		current.logger.Error("config reload logger init failed", slog.String("error", err.Error()))
		return current, fmt.Errorf("init reload logger: %w", err)
	}

	current.stop()
	next, startErr := startCollector(ctx, nextCfg, deps, nextLogger, nextCloseFn)
	if startErr == nil {
		current.closeLoggerSink()
		attrs := append(describeCollector(next),
			slog.String("previous_mode", string(current.mode)),
			slog.Any("changes", changes),
		)
		next.logger.Info("config reload applied", attrs...)
		if !nextCfg.Collector.DryRun && next.mode == pipeline.ModeDryRun {
			next.logger.Warn("storage unreachable after reload, snapshots are only logged",
				slog.String("storage", nextCfg.Storage.Driver))
		}
		return next, nil
	}
	nextCloseFn()
	if ctx.Err() != nil {
		current.logger.Info("config reload interrupted by shutdown")
		return current, nil
	}

	current.logger.Error("config reload apply failed, restoring previous collector", slog.String("error", startErr.Error()))
	restored, rollbackErr := startCollector(ctx, current.cfg, deps, current.logger, current.closeLogger)
	if rollbackErr != nil {
		current.closeLoggerSink()
		return nil, fmt.Errorf("apply reload: %w; rollback failed: %w", startErr, rollbackErr)
	}
	restored.logger.Warn("previous collector restored", describeCollector(restored)...)
	return restored, fmt.Errorf("apply reload: %w", startErr)
}

// stop cancels the engine, waits for it to return and stops pprof; the logger stays open.
func (c *collector) stop() {
	if c == nil {
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.done != nil {
		<-c.done
		c.done = nil
	}
	if c.stopPprof != nil {
		c.stopPprof()
		c.stopPprof = nil
	}
}

// shutdown stops the collector on root context cancellation and closes its logger.
// Params: reason cancellation cause for the final log line.
// Returns: nil.
func (c *collector) shutdown(reason string) error {
	c.stop()
	c.logger.Info("hostmon stopped", slog.String("reason", reason), slog.String("mode", string(c.mode)))
	c.closeLoggerSink()
	return nil
}

func (c *collector) closeLoggerSink() {
	if c == nil {
		return
	}
	if c.closeLogger != nil {
		c.closeLogger()
		c.closeLogger = nil
	}
}

// describeCollector renders host identity, cadence and the sink mode the engine runs in.
// Params: c running collector.
// Returns: slog attributes as variadic log args.
func describeCollector(c *collector) []any {
	cfg := c.cfg
	return []any{
		slog.String("host", cfg.Global.Host),
		slog.String("dc", cfg.Global.DC),
		slog.String("project", cfg.Global.Project),
		slog.String("role", cfg.Global.Role),
		slog.Duration("interval", cfg.Collector.Interval.Duration),
		slog.String("mode", string(c.mode)),
		slog.String("storage", cfg.Storage.Driver),
		slog.Bool("alerts", cfg.Alert.Enabled),
	}
}

// configChanges lists the collector settings that differ between two configs.
// Params: prev running config; next reloaded config.
// Returns: sorted "key: old -> new" entries, empty when nothing relevant changed.
func configChanges(prev, next *config.Config) []string {
	changes := make([]string, 0, 8)
	diff := func(key string, before, after any) {
		b, a := fmt.Sprint(before), fmt.Sprint(after)
		if b != a {
			changes = append(changes, fmt.Sprintf("%s: %s -> %s", key, b, a))
		}
	}
	diff("collector.interval", prev.Collector.Interval.Duration, next.Collector.Interval.Duration)
	diff("collector.dry_run", prev.Collector.DryRun, next.Collector.DryRun)
	diff("collector.tiers.medium", prev.Collector.Tiers.Medium.Duration, next.Collector.Tiers.Medium.Duration)
	diff("collector.tiers.slow", prev.Collector.Tiers.Slow.Duration, next.Collector.Tiers.Slow.Duration)
	diff("storage.driver", prev.Storage.Driver, next.Storage.Driver)
	diff("alert.enabled", prev.Alert.Enabled, next.Alert.Enabled)
	diff("api.listen", apiListen(prev), apiListen(next))
	diff("valkey.enabled", prev.Valkey.Enabled, next.Valkey.Enabled)
	diff("forward.enabled", prev.Forward.Enabled, next.Forward.Enabled)
	slices.Sort(changes)
	return changes
}

func apiListen(cfg *config.Config) string {
	if !cfg.API.Enabled {
		return "off"
	}
	return cfg.API.Listen
}
