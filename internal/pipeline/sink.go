package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/multierr"

	"hostmon/internal/metrics"
)

// ErrSinkUnavailable marks a sink that could not accept a snapshot.
var ErrSinkUnavailable = errors.New("sink unavailable")

// ErrWriteTimeout marks a sink write abandoned after write_timeout.
var ErrWriteTimeout = fmt.Errorf("write timed out: %w", ErrSinkUnavailable)

// Sink consumes collected snapshots.
// Params: context and one snapshot.
// Returns: error if sink cannot store snapshot.
type Sink interface {
	Write(ctx context.Context, snap *metrics.Snapshot) error
	Close() error
}

// LogSink writes snapshot summaries into logs; it backs dry-run mode.
// Params: logger used for output.
// Returns: non-persistent sink instance.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log-only sink.
// Params: logger instance.
// Returns: snapshot sink implementation.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Write logs one snapshot summary and, at debug level, the full payload.
// Params: ctx for level checks; snap collected snapshot.
// Returns: marshal error when payload cannot be encoded.
func (s *LogSink) Write(ctx context.Context, snap *metrics.Snapshot) error {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	groups := make([]string, 0, len(metrics.AllGroups))
	for _, group := range snap.Groups() {
		groups = append(groups, string(group))
	}

	s.logger.Info(
		"dry-run snapshot",
		slog.Time("timestamp", snap.Time),
		slog.Any("groups", groups),
		slog.Int("fields", len(snap.Flatten())),
		slog.String("size", datasize.ByteSize(len(payload)).HR()),
	)
	if s.logger.Enabled(ctx, slog.LevelDebug) {
		s.logger.Debug("dry-run payload", slog.String("payload", string(payload)))
	}

	return nil
}

// Close is a no-op for log sink.
// Params: none.
// Returns: nil.
func (s *LogSink) Close() error {
	return nil
}

// MultiSink dispatches one snapshot to multiple sink implementations.
// Params: sink list.
// Returns: composite sink.
type MultiSink struct {
	sinks     []Sink
	closeOnce sync.Once
	closeErr  error
}

// NewMultiSink builds composite sink from sink list.
// Params: sinks target list; nil entries are skipped.
// Returns: multi sink implementation.
func NewMultiSink(sinks ...Sink) *MultiSink {
	out := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		out = append(out, sink)
	}
	return &MultiSink{sinks: out}
}

// Write forwards snapshot to each child sink; one failing child never blocks the rest.
// Params: ctx write context; snap collected snapshot.
// Returns: combined child errors, if any.
func (s *MultiSink) Write(ctx context.Context, snap *metrics.Snapshot) error {
	var err error
	for _, sink := range s.sinks {
		err = multierr.Append(err, sink.Write(ctx, snap))
	}
	return err
}

// Close closes every child once.
// Params: none.
// Returns: combined close errors.
func (s *MultiSink) Close() error {
	s.closeOnce.Do(func() {
		for _, sink := range s.sinks {
			s.closeErr = multierr.Append(s.closeErr, sink.Close())
		}
	})
	return s.closeErr
}

// SecondaryStats counts best-effort delivery outcomes of one secondary sink.
type SecondaryStats struct {
	Sink    string `json:"sink"`
	Written uint64 `json:"written"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
}

type secondarySink struct {
	sink    Sink
	name    string
	busy    atomic.Bool
	written atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// FanoutSink writes the primary sink inline and hands each snapshot to secondary sinks in the background.
// Only the primary result reaches the caller; secondary failures are logged and counted.
// A secondary still busy with the previous snapshot drops the next one.
type FanoutSink struct {
	primary     Sink
	secondaries []*secondarySink
	timeout     time.Duration
	logger      *slog.Logger

	wg        conc.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewFanoutSink builds a primary/secondary sink.
// Params: primary persisting or dry-run sink; timeout bound for each secondary write; logger output; secondaries best-effort sinks, nil entries skipped.
// Returns: fan-out sink.
func NewFanoutSink(primary Sink, timeout time.Duration, logger *slog.Logger, secondaries ...Sink) *FanoutSink {
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	out := make([]*secondarySink, 0, len(secondaries))
	for _, sink := range secondaries {
		if sink == nil {
			continue
		}
		out = append(out, &secondarySink{sink: sink, name: sinkName(sink)})
	}
	return &FanoutSink{
		primary:     primary,
		secondaries: out,
		timeout:     timeout,
		logger:      logger,
	}
}

// Write dispatches secondaries first so a slow primary never delays them, then writes the primary.
// Params: ctx write context; snap collected snapshot.
// Returns: primary write error only.
func (s *FanoutSink) Write(ctx context.Context, snap *metrics.Snapshot) error {
	for _, secondary := range s.secondaries {
		s.dispatch(ctx, secondary, snap)
	}
	if s.primary == nil {
		return nil
	}
	return s.primary.Write(ctx, snap)
}

// dispatch starts one background secondary write unless the previous one is still running.
// Params: ctx pass context, detached from cancellation; secondary target; snap snapshot.
// Returns: none.
func (s *FanoutSink) dispatch(ctx context.Context, secondary *secondarySink, snap *metrics.Snapshot) {
	if !secondary.busy.CompareAndSwap(false, true) {
		secondary.dropped.Add(1)
		s.logger.Warn("secondary sink busy, snapshot dropped", slog.String("sink", secondary.name))
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	s.wg.Go(func() {
		defer secondary.busy.Store(false)
		defer cancel()

		var err error
		if recovered := panics.Try(func() { err = secondary.sink.Write(writeCtx, snap) }); recovered != nil {
			err = fmt.Errorf("sink panic: %w", recovered.AsError())
		}
		if err != nil {
			secondary.failed.Add(1)
			s.logger.Warn(
				"secondary sink write failed",
				slog.String("sink", secondary.name),
				slog.String("error", err.Error()),
			)
			return
		}
		secondary.written.Add(1)
	})
}

// Secondaries returns delivery counters per secondary sink.
// Params: none.
// Returns: counters in registration order.
func (s *FanoutSink) Secondaries() []SecondaryStats {
	out := make([]SecondaryStats, 0, len(s.secondaries))
	for _, secondary := range s.secondaries {
		out = append(out, SecondaryStats{
			Sink:    secondary.name,
			Written: secondary.written.Load(),
			Failed:  secondary.failed.Load(),
			Dropped: secondary.dropped.Load(),
		})
	}
	return out
}

// Close waits for in-flight secondary writes, then closes every sink once.
// Params: none.
// Returns: combined close errors.
func (s *FanoutSink) Close() error {
	s.closeOnce.Do(func() {
		s.wg.Wait()
		if s.primary != nil {
			s.closeErr = multierr.Append(s.closeErr, s.primary.Close())
		}
		for _, secondary := range s.secondaries {
			s.closeErr = multierr.Append(s.closeErr, secondary.sink.Close())
		}
	})
	return s.closeErr
}

// sinkName labels a sink by its concrete type for logs.
// Params: sink instance.
// Returns: short type name.
func sinkName(sink Sink) string {
	name := fmt.Sprintf("%T", sink)
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}
