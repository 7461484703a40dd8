package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/panics"

	"hostmon/internal/metrics"
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultReportEvery  = 10
)

// ErrLoopRunning is returned by Run when the loop is not stopped.
var ErrLoopRunning = errors.New("collection loop is already running")

// State is the loop lifecycle state.
// Params: none.
// Returns: enum-like state identifier.
type State int32

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

// String returns lower-case state name.
// Params: none.
// Returns: state label.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// Mode tells whether snapshots are persisted.
// Params: none.
// Returns: enum-like mode identifier.
type Mode string

const (
	ModeLive   Mode = "live"
	ModeDryRun Mode = "dry-run"
)

// Collector produces one snapshot per pass.
// Params: pass context and timestamp.
// Returns: snapshot or error.
type Collector interface {
	Collect(ctx context.Context, now time.Time) (*metrics.Snapshot, error)
}

// Observer receives every collected snapshot before it is written.
// Params: pass context and snapshot.
// Returns: none; observers handle their own failures.
type Observer interface {
	Observe(ctx context.Context, snap *metrics.Snapshot)
}

// LoopConfig holds tick cycle settings.
// Params: cadence, write bound, count signal period, drift policy and mode.
// Returns: loop settings.
type LoopConfig struct {
	Interval        time.Duration
	WriteTimeout    time.Duration
	ReportEvery     int
	CompensateDrift bool
	Mode            Mode
}

// Stats is a point-in-time view of loop counters.
// Params: none.
// Returns: counters safe to read from other goroutines.
type Stats struct {
	State          string    `json:"state"`
	Mode           Mode      `json:"mode"`
	Ticks          uint64    `json:"ticks"`
	Collected      uint64    `json:"total_collected"`
	Failures       uint64    `json:"failures"`
	LastSnapshotAt time.Time `json:"last_snapshot_at"`
}

// Loop is the perpetual collect/evaluate/write cycle.
// Params: collector, sink, observers, settings, logger.
// Returns: loop runtime.
type Loop struct {
	collector Collector
	sink      Sink
	observers []Observer
	cfg       LoopConfig
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	state  atomic.Int32
	stopCh chan struct{}

	ticks     atomic.Uint64
	collected atomic.Uint64
	failures  atomic.Uint64
	lastAt    atomic.Int64
	lastTime  time.Time
}

// NewLoop builds a stopped loop.
// Params: collector pass runner; sink snapshot consumer; cfg settings; logger output; observers optional hooks.
// Returns: loop or error for missing dependencies.
func NewLoop(collector Collector, sink Sink, cfg LoopConfig, logger *slog.Logger, observers ...Observer) (*Loop, error) {
	if collector == nil {
		return nil, fmt.Errorf("collector is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be > 0")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ReportEvery == 0 {
		cfg.ReportEvery = defaultReportEvery
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeLive
	}

	out := make([]Observer, 0, len(observers))
	for _, observer := range observers {
		if observer != nil {
			out = append(out, observer)
		}
	}

	return &Loop{
		collector: collector,
		sink:      sink,
		observers: out,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Run enters the tick cycle until Stop or ctx cancellation.
// An in-flight pass always completes; cancellation is honored between passes.
// Params: ctx lifecycle context.
// Returns: ErrLoopRunning when not stopped, nil after a graceful stop.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if State(l.state.Load()) != StateStopped {
		l.mu.Unlock()
		return ErrLoopRunning
	}
	l.stopCh = make(chan struct{})
	stopCh := l.stopCh
	l.state.Store(int32(StateRunning))
	l.mu.Unlock()

	defer l.state.Store(int32(StateStopped))

	l.logger.Info(
		"collection loop started",
		slog.Duration("interval", l.cfg.Interval),
		slog.String("mode", string(l.cfg.Mode)),
	)

	passCtx := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			l.Stop()
		}
		if State(l.state.Load()) != StateRunning {
			break
		}

		started := time.Now()
		l.tick(passCtx)

		wait := l.cfg.Interval
		if l.cfg.CompensateDrift {
			wait -= time.Since(started)
			if wait < 0 {
				wait = 0
			}
		}
		l.sleep(ctx, stopCh, wait)
	}

	l.logger.Info("collection loop stopped", slog.Uint64("total_collected", l.collected.Load()))
	return nil
}

// Stop requests a cooperative stop; the loop exits at the top of its next tick.
// Params: none.
// Returns: none.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if State(l.state.Load()) != StateRunning {
		return
	}
	l.state.Store(int32(StateStopping))
	close(l.stopCh)
}

// State returns current lifecycle state.
// Params: none.
// Returns: loop state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Mode returns the sink mode selected at startup.
// Params: none.
// Returns: live or dry-run.
func (l *Loop) Mode() Mode {
	return l.cfg.Mode
}

// Stats returns current counters.
// Params: none.
// Returns: stats snapshot.
func (l *Loop) Stats() Stats {
	out := Stats{
		State:     l.State().String(),
		Mode:      l.cfg.Mode,
		Ticks:     l.ticks.Load(),
		Collected: l.collected.Load(),
		Failures:  l.failures.Load(),
	}
	if nanos := l.lastAt.Load(); nanos > 0 {
		out.LastSnapshotAt = time.Unix(0, nanos).UTC()
	}
	return out
}

// tick runs one collect/observe/write pass; failures are logged and never escape.
// Params: ctx detached pass context.
// Returns: none.
func (l *Loop) tick(ctx context.Context) {
	l.ticks.Add(1)

	now := l.now()
	if !l.lastTime.IsZero() && now.Before(l.lastTime) {
		l.logger.Warn(
			"clock moved backwards, reusing previous timestamp",
			slog.Time("now", now),
			slog.Time("previous", l.lastTime),
		)
		now = l.lastTime
	}
	l.lastTime = now

	snap, err := l.collector.Collect(ctx, now)
	if err != nil {
		l.failures.Add(1)
		l.logger.Error("collection failed", slog.String("error", err.Error()))
		return
	}
	l.lastAt.Store(snap.Time.UnixNano())

	for _, observer := range l.observers {
		if recovered := panics.Try(func() { observer.Observe(ctx, snap) }); recovered != nil {
			l.logger.Error("observer panic", slog.String("error", recovered.String()))
		}
	}

	if err := l.write(ctx, snap); err != nil {
		l.failures.Add(1)
		l.logger.Error(
			"sink write failed",
			slog.String("mode", string(l.cfg.Mode)),
			slog.String("error", err.Error()),
		)
		return
	}

	total := l.collected.Add(1)
	if l.cfg.ReportEvery > 0 && total%uint64(l.cfg.ReportEvery) == 0 {
		l.logger.Info(fmt.Sprintf("Total collected: %d", total), slog.Uint64("total_collected", total))
	}
}

// write hands snapshot to the sink bounded by write_timeout.
// A sink that ignores its context is abandoned on expiry.
// Params: ctx pass context; snap snapshot to write.
// Returns: nil, ErrWriteTimeout, or an error wrapping ErrSinkUnavailable.
func (l *Loop) write(ctx context.Context, snap *metrics.Snapshot) error {
	writeCtx, cancel := context.WithTimeout(ctx, l.cfg.WriteTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		var err error
		if recovered := panics.Try(func() { err = l.sink.Write(writeCtx, snap) }); recovered != nil {
			err = fmt.Errorf("sink panic: %w", recovered.AsError())
		}
		done <- err
	}()

	select {
	case err := <-done:
		switch {
		case err == nil:
			return nil
		case errors.Is(err, context.DeadlineExceeded) && writeCtx.Err() != nil:
			return fmt.Errorf("%w: %w", ErrWriteTimeout, err)
		case errors.Is(err, ErrSinkUnavailable):
			return err
		default:
			return fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
		}
	case <-writeCtx.Done():
		return ErrWriteTimeout
	}
}

// sleep waits for d, returning early on stop or ctx cancellation.
// Params: ctx lifecycle context; stop stop signal; d wait duration.
// Returns: none.
func (l *Loop) sleep(ctx context.Context, stop <-chan struct{}, d time.Duration) {
	if d <= 0 {
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-stop:
	case <-timer.C:
	}
}
