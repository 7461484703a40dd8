package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"hostmon/internal/metrics"
)

const (
	defaultProbeTimeout  = 5 * time.Second
	defaultSlowThreshold = 100 * time.Millisecond
)

// ErrEmptySnapshot is returned when no group could be collected on a pass.
var ErrEmptySnapshot = errors.New("empty snapshot: every attempted probe failed")

// CoordinatorConfig holds one-pass collection settings.
// Params: tier schedule, per-probe timeout, and slow-pass threshold.
// Returns: coordinator settings.
type CoordinatorConfig struct {
	Tiers         TierSchedule
	ProbeTimeout  time.Duration
	SlowThreshold time.Duration
}

// Coordinator runs collection passes over a probe set.
// Params: probes, settings, logger.
// Returns: pass runner owning tier state.
type Coordinator struct {
	probes metrics.Probes
	cfg    CoordinatorConfig
	logger *slog.Logger
	tiers  *tierState

	slowPasses atomic.Uint64
	lastTook   atomic.Int64
}

type probeJob struct {
	group metrics.Group
	run   func(context.Context) (func(*metrics.Snapshot), error)
}

type probeResult struct {
	group  metrics.Group
	assign func(*metrics.Snapshot)
	err    error
}

// NewCoordinator builds a coordinator.
// Params: probes metric sources; cfg settings (zero values get defaults); logger output logger.
// Returns: coordinator or error for missing dependencies.
func NewCoordinator(probes metrics.Probes, cfg CoordinatorConfig, logger *slog.Logger) (*Coordinator, error) {
	if probes == nil {
		return nil, fmt.Errorf("probes are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Tiers.Medium <= 0 || cfg.Tiers.Slow <= 0 {
		return nil, fmt.Errorf("tier intervals must be > 0")
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = defaultSlowThreshold
	}

	return &Coordinator{
		probes: probes,
		cfg:    cfg,
		logger: logger,
		tiers:  newTierState(cfg.Tiers),
	}, nil
}

// Collect runs one pass: due probes in parallel, each behind its own failure boundary.
// Params: ctx pass context; now pass timestamp stamped on the snapshot.
// Returns: merged snapshot or ErrEmptySnapshot when nothing was collected.
func (c *Coordinator) Collect(ctx context.Context, now time.Time) (*metrics.Snapshot, error) {
	started := time.Now()

	due := c.tiers.due(now)
	jobs := c.dueJobs(due)
	results := make([]probeResult, len(jobs))

	var wg conc.WaitGroup
	for idx, job := range jobs {
		wg.Go(func() {
			results[idx] = c.runProbe(ctx, job)
		})
	}
	wg.Wait()

	// Marks are set for every due tier, whatever the probe outcome.
	for tier, isDue := range due {
		if isDue {
			c.tiers.mark(tier, now)
		}
	}

	snap := &metrics.Snapshot{Time: now}
	for _, result := range results {
		if result.err != nil {
			c.logger.Warn(
				"probe failed",
				slog.String("tier", string(tierOf(result.group))),
				slog.String("group", string(result.group)),
				slog.String("error", result.err.Error()),
			)
			continue
		}
		if result.assign != nil {
			result.assign(snap)
		}
	}

	took := time.Since(started)
	c.lastTook.Store(int64(took))
	if took > c.cfg.SlowThreshold {
		c.slowPasses.Add(1)
		c.logger.Warn(
			"slow collection",
			slog.Duration("elapsed", took),
			slog.Duration("threshold", c.cfg.SlowThreshold),
		)
	}

	if snap.Empty() {
		return nil, ErrEmptySnapshot
	}
	return snap, nil
}

// SlowPasses returns the number of passes over the slow threshold.
// Params: none.
// Returns: counter value.
func (c *Coordinator) SlowPasses() uint64 {
	return c.slowPasses.Load()
}

// LastElapsed returns wall time spent by the latest pass.
// Params: none.
// Returns: duration of the last Collect call.
func (c *Coordinator) LastElapsed() time.Duration {
	return time.Duration(c.lastTook.Load())
}

// dueJobs lists probes to run for the due tiers in snapshot order.
// Params: due tier set.
// Returns: probe jobs.
func (c *Coordinator) dueJobs(due map[Tier]bool) []probeJob {
	all := []probeJob{
		{group: metrics.GroupCPU, run: probeInto(c.probes.CPU, func(s *metrics.Snapshot, v *metrics.CPUStats) { s.CPU = v })},
		{group: metrics.GroupMemory, run: probeInto(c.probes.Memory, func(s *metrics.Snapshot, v *metrics.MemoryStats) { s.Memory = v })},
		{group: metrics.GroupDiskIO, run: probeInto(c.probes.DiskIO, func(s *metrics.Snapshot, v *metrics.DiskIOStats) { s.DiskIO = v })},
		{group: metrics.GroupDiskUsage, run: probeInto(c.probes.DiskUsage, func(s *metrics.Snapshot, v *metrics.DiskUsageStats) { s.DiskUsage = v })},
		{group: metrics.GroupNetworkIO, run: probeInto(c.probes.NetworkIO, func(s *metrics.Snapshot, v *metrics.NetworkIOStats) { s.NetworkIO = v })},
		{group: metrics.GroupNetworkConnections, run: probeInto(c.probes.NetworkConnections, func(s *metrics.Snapshot, v *metrics.ConnectionStats) { s.NetworkConnections = v })},
	}

	out := make([]probeJob, 0, len(all))
	for _, job := range all {
		if due[tierOf(job.group)] {
			out = append(out, job)
		}
	}
	return out
}

// runProbe executes one probe bounded by probe timeout and isolated from panics.
// A probe that ignores its context is abandoned once the timeout expires.
// Params: ctx pass context; job probe to run.
// Returns: probe result with assign callback or error.
func (c *Coordinator) runProbe(ctx context.Context, job probeJob) probeResult {
	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	done := make(chan probeResult, 1)
	go func() {
		var result probeResult
		recovered := panics.Try(func() {
			assign, err := job.run(probeCtx)
			result = probeResult{group: job.group, assign: assign, err: err}
		})
		if recovered != nil {
			result = probeResult{
				group: job.group,
				err:   &metrics.SourceError{Group: job.group, Err: fmt.Errorf("probe panic: %w", recovered.AsError())},
			}
		}
		done <- result
	}()

	select {
	case result := <-done:
		return result
	case <-probeCtx.Done():
		return probeResult{
			group: job.group,
			err:   &metrics.SourceError{Group: job.group, Err: fmt.Errorf("probe timed out after %s: %w", c.cfg.ProbeTimeout, probeCtx.Err())},
		}
	}
}

// probeInto adapts a typed probe into a job that assigns its group on success.
// Params: read typed probe; set snapshot field setter.
// Returns: job body; a nil group with nil error yields no assignment.
func probeInto[T any](
	read func(context.Context) (*T, error),
	set func(*metrics.Snapshot, *T),
) func(context.Context) (func(*metrics.Snapshot), error) {
	return func(ctx context.Context) (func(*metrics.Snapshot), error) {
		value, err := read(ctx)
		if err != nil {
			return nil, err
		}
		if value == nil {
			return nil, nil
		}
		return func(s *metrics.Snapshot) { set(s, value) }, nil
	}
}
