package pipeline

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"

	"hostmon/internal/metrics"
)

// fakeProbes returns fixed groups unless a hook overrides one probe.
type fakeProbes struct {
	mu    sync.Mutex
	calls map[metrics.Group]int

	cpu         func(context.Context) (*metrics.CPUStats, error)
	memory      func(context.Context) (*metrics.MemoryStats, error)
	diskIO      func(context.Context) (*metrics.DiskIOStats, error)
	diskUsage   func(context.Context) (*metrics.DiskUsageStats, error)
	networkIO   func(context.Context) (*metrics.NetworkIOStats, error)
	connections func(context.Context) (*metrics.ConnectionStats, error)
}

func (f *fakeProbes) hit(group metrics.Group) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[metrics.Group]int)
	}
	f.calls[group]++
}

func (f *fakeProbes) count(group metrics.Group) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[group]
}

func (f *fakeProbes) CPU(ctx context.Context) (*metrics.CPUStats, error) {
	f.hit(metrics.GroupCPU)
	if f.cpu != nil {
		return f.cpu(ctx)
	}
	return &metrics.CPUStats{Percent: 12.5, PerCorePercent: []float64{10, 15}, CountLogical: 2}, nil
}

func (f *fakeProbes) Memory(ctx context.Context) (*metrics.MemoryStats, error) {
	f.hit(metrics.GroupMemory)
	if f.memory != nil {
		return f.memory(ctx)
	}
	return &metrics.MemoryStats{Total: 100, Used: 40, Percent: 40}, nil
}

func (f *fakeProbes) DiskIO(ctx context.Context) (*metrics.DiskIOStats, error) {
	f.hit(metrics.GroupDiskIO)
	if f.diskIO != nil {
		return f.diskIO(ctx)
	}
	return &metrics.DiskIOStats{ReadCount: 1, WriteCount: 2}, nil
}

func (f *fakeProbes) DiskUsage(ctx context.Context) (*metrics.DiskUsageStats, error) {
	f.hit(metrics.GroupDiskUsage)
	if f.diskUsage != nil {
		return f.diskUsage(ctx)
	}
	return &metrics.DiskUsageStats{Partitions: []metrics.PartitionUsage{{Device: "/dev/sda1", Mountpoint: "/", Percent: 50}}}, nil
}

func (f *fakeProbes) NetworkIO(ctx context.Context) (*metrics.NetworkIOStats, error) {
	f.hit(metrics.GroupNetworkIO)
	if f.networkIO != nil {
		return f.networkIO(ctx)
	}
	return &metrics.NetworkIOStats{BytesSent: 10, BytesRecv: 20}, nil
}

func (f *fakeProbes) NetworkConnections(ctx context.Context) (*metrics.ConnectionStats, error) {
	f.hit(metrics.GroupNetworkConnections)
	if f.connections != nil {
		return f.connections(ctx)
	}
	return &metrics.ConnectionStats{Established: 3, Listen: 1}, nil
}

// recordingSink stores written snapshots; onWrite runs after each write.
type recordingSink struct {
	mu      sync.Mutex
	writes  []*metrics.Snapshot
	onWrite func(n int)
	err     error
	closed  int
}

func (s *recordingSink) Write(_ context.Context, snap *metrics.Snapshot) error {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return s.err
	}
	s.writes = append(s.writes, snap)
	n := len(s.writes)
	hook := s.onWrite
	s.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *recordingSink) snapshots() []*metrics.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*metrics.Snapshot(nil), s.writes...)
}

// syncBuffer is a goroutine-safe log capture buffer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func captureLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}
