package metrics

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	netio "github.com/shirou/gopsutil/v4/net"

	"hostmon/internal/match"
)

// HostOptions tunes host probes.
// Params: wildcard masks for mountpoints and filesystem types skipped by disk usage.
// Returns: probe options.
type HostOptions struct {
	IgnoreMounts  []string
	IgnoreFstypes []string
}

// Host implements Probes on top of gopsutil.
// Params: OS read functions (replaceable in tests) and disk usage ignore masks.
// Returns: host probe set.
type Host struct {
	cpuPercent func(context.Context, time.Duration, bool) ([]float64, error)
	cpuCounts  func(context.Context, bool) (int, error)
	cpuInfo    func(context.Context) ([]cpu.InfoStat, error)
	cpuTimes   func(context.Context, bool) ([]cpu.TimesStat, error)

	virtualMemory func(context.Context) (*mem.VirtualMemoryStat, error)
	swapMemory    func(context.Context) (*mem.SwapMemoryStat, error)

	diskIO     func(context.Context, ...string) (map[string]disk.IOCountersStat, error)
	partitions func(context.Context, bool) ([]disk.PartitionStat, error)
	usage      func(context.Context, string) (*disk.UsageStat, error)

	netIO       func(context.Context, bool) ([]netio.IOCountersStat, error)
	connections func(context.Context, string) ([]netio.ConnectionStat, error)

	ignoreMounts  []match.WildcardPattern
	ignoreFstypes []match.WildcardPattern
}

// NewHost creates gopsutil-backed probes.
// Params: opts disk usage ignore masks.
// Returns: host probe set.
func NewHost(opts HostOptions) *Host {
	return &Host{
		cpuPercent:    cpu.PercentWithContext,
		cpuCounts:     cpu.CountsWithContext,
		cpuInfo:       cpu.InfoWithContext,
		cpuTimes:      cpu.TimesWithContext,
		virtualMemory: mem.VirtualMemoryWithContext,
		swapMemory:    mem.SwapMemoryWithContext,
		diskIO:        disk.IOCountersWithContext,
		partitions:    disk.PartitionsWithContext,
		usage:         disk.UsageWithContext,
		netIO:         netio.IOCountersWithContext,
		connections:   netio.ConnectionsWithContext,
		ignoreMounts:  match.CompileAll(opts.IgnoreMounts),
		ignoreFstypes: match.CompileAll(opts.IgnoreFstypes),
	}
}

var _ Probes = (*Host)(nil)
