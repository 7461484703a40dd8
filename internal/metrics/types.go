package metrics

import (
	"context"
	"strconv"
)

// Group names one metric subsystem and doubles as the persisted measurement name.
// Params: none.
// Returns: enum-like group identifier.
type Group string

const (
	GroupCPU                Group = "cpu"
	GroupMemory             Group = "memory"
	GroupDiskIO             Group = "disk_io"
	GroupDiskUsage          Group = "disk_usage"
	GroupNetworkIO          Group = "network_io"
	GroupNetworkConnections Group = "network_connections"
)

// AllGroups lists groups in snapshot order.
var AllGroups = []Group{
	GroupCPU,
	GroupMemory,
	GroupDiskIO,
	GroupDiskUsage,
	GroupNetworkIO,
	GroupNetworkConnections,
}

// Valid reports whether g is a known group name.
// Params: none.
// Returns: true for one of AllGroups.
func (g Group) Valid() bool {
	for _, known := range AllGroups {
		if g == known {
			return true
		}
	}
	return false
}

// Field is one named scalar ready for persistence or rule evaluation.
// Params: wire field name and numeric value.
// Returns: flat field entry.
type Field struct {
	Name  string
	Value float64
}

// CPUStats is the cpu group record.
// Params: utilization, topology, frequency, and cumulative times.
// Returns: cpu metric group.
type CPUStats struct {
	Percent        float64   `json:"percent"`
	PerCorePercent []float64 `json:"percent_per_core"`
	CountLogical   int       `json:"count_logical"`
	CountPhysical  int       `json:"count_physical"`
	FreqCurrent    float64   `json:"freq_current"`
	FreqMin        float64   `json:"freq_min"`
	FreqMax        float64   `json:"freq_max"`
	TimeUser       float64   `json:"time_user"`
	TimeSystem     float64   `json:"time_system"`
	TimeIdle       float64   `json:"time_idle"`
}

// Fields expands cpu stats into wire fields; per-core values become cpu_percent_per_core_core<N>.
// Params: none.
// Returns: ordered field list.
func (s *CPUStats) Fields() []Field {
	out := make([]Field, 0, 9+len(s.PerCorePercent))
	out = append(out, Field{Name: "cpu_percent", Value: s.Percent})
	for idx, value := range s.PerCorePercent {
		out = append(out, Field{Name: PerCoreField(idx), Value: value})
	}
	out = append(out,
		Field{Name: "cpu_count_logical", Value: float64(s.CountLogical)},
		Field{Name: "cpu_count_physical", Value: float64(s.CountPhysical)},
		Field{Name: "cpu_freq_current", Value: s.FreqCurrent},
		Field{Name: "cpu_freq_min", Value: s.FreqMin},
		Field{Name: "cpu_freq_max", Value: s.FreqMax},
		Field{Name: "cpu_time_user", Value: s.TimeUser},
		Field{Name: "cpu_time_system", Value: s.TimeSystem},
		Field{Name: "cpu_time_idle", Value: s.TimeIdle},
	)
	return out
}

// PerCoreField builds the indexed scalar name for one core.
// Params: idx zero-based core index.
// Returns: field name.
func PerCoreField(idx int) string {
	return "cpu_percent_per_core_core" + strconv.Itoa(idx)
}

// MemoryStats is the memory group record (virtual memory plus swap).
// Params: byte counters and utilization percents.
// Returns: memory metric group.
type MemoryStats struct {
	Total       uint64  `json:"total"`
	Available   uint64  `json:"available"`
	Used        uint64  `json:"used"`
	Free        uint64  `json:"free"`
	Percent     float64 `json:"percent"`
	SwapTotal   uint64  `json:"swap_total"`
	SwapUsed    uint64  `json:"swap_used"`
	SwapFree    uint64  `json:"swap_free"`
	SwapPercent float64 `json:"swap_percent"`
}

// Fields returns memory wire fields.
// Params: none.
// Returns: ordered field list.
func (s *MemoryStats) Fields() []Field {
	return []Field{
		{Name: "memory_total", Value: float64(s.Total)},
		{Name: "memory_available", Value: float64(s.Available)},
		{Name: "memory_used", Value: float64(s.Used)},
		{Name: "memory_free", Value: float64(s.Free)},
		{Name: "memory_percent", Value: s.Percent},
		{Name: "swap_total", Value: float64(s.SwapTotal)},
		{Name: "swap_used", Value: float64(s.SwapUsed)},
		{Name: "swap_free", Value: float64(s.SwapFree)},
		{Name: "swap_percent", Value: s.SwapPercent},
	}
}

// DiskIOStats is the disk_io group record summed over top-level block devices.
// Params: cumulative operation counters, bytes, and milliseconds.
// Returns: disk io metric group.
type DiskIOStats struct {
	ReadCount  uint64 `json:"read_count"`
	WriteCount uint64 `json:"write_count"`
	ReadBytes  uint64 `json:"read_bytes"`
	WriteBytes uint64 `json:"write_bytes"`
	ReadTime   uint64 `json:"read_time"`
	WriteTime  uint64 `json:"write_time"`
}

// Fields returns disk io wire fields.
// Params: none.
// Returns: ordered field list.
func (s *DiskIOStats) Fields() []Field {
	return []Field{
		{Name: "disk_read_count", Value: float64(s.ReadCount)},
		{Name: "disk_write_count", Value: float64(s.WriteCount)},
		{Name: "disk_read_bytes", Value: float64(s.ReadBytes)},
		{Name: "disk_write_bytes", Value: float64(s.WriteBytes)},
		{Name: "disk_read_time", Value: float64(s.ReadTime)},
		{Name: "disk_write_time", Value: float64(s.WriteTime)},
	}
}

// PartitionUsage is one mounted filesystem with identity tags.
// Params: device/mountpoint/fstype identity and usage counters.
// Returns: per-partition disk usage record.
type PartitionUsage struct {
	Device     string  `json:"device"`
	Mountpoint string  `json:"mountpoint"`
	Fstype     string  `json:"fstype"`
	Total      uint64  `json:"total"`
	Used       uint64  `json:"used"`
	Free       uint64  `json:"free"`
	Percent    float64 `json:"percent"`
}

// Fields returns per-partition wire fields.
// Params: none.
// Returns: ordered field list.
func (p PartitionUsage) Fields() []Field {
	return []Field{
		{Name: "total", Value: float64(p.Total)},
		{Name: "used", Value: float64(p.Used)},
		{Name: "free", Value: float64(p.Free)},
		{Name: "percent", Value: p.Percent},
	}
}

// DiskUsageStats is the disk_usage group: an ordered list of accessible partitions.
// Params: partitions in enumeration order.
// Returns: disk usage metric group.
type DiskUsageStats struct {
	Partitions []PartitionUsage `json:"partitions"`
}

// MaxPercent returns the highest partition utilization.
// Params: none.
// Returns: max percent and false when there are no partitions.
func (s *DiskUsageStats) MaxPercent() (float64, bool) {
	if s == nil || len(s.Partitions) == 0 {
		return 0, false
	}
	maxValue := s.Partitions[0].Percent
	for _, part := range s.Partitions[1:] {
		if part.Percent > maxValue {
			maxValue = part.Percent
		}
	}
	return maxValue, true
}

// NetworkIOStats is the network_io group record summed over interfaces.
// Params: cumulative byte/packet/error/drop counters.
// Returns: network io metric group.
type NetworkIOStats struct {
	BytesSent   uint64 `json:"bytes_sent"`
	BytesRecv   uint64 `json:"bytes_recv"`
	PacketsSent uint64 `json:"packets_sent"`
	PacketsRecv uint64 `json:"packets_recv"`
	Errin       uint64 `json:"errin"`
	Errout      uint64 `json:"errout"`
	Dropin      uint64 `json:"dropin"`
	Dropout     uint64 `json:"dropout"`
}

// Fields returns network io wire fields.
// Params: none.
// Returns: ordered field list.
func (s *NetworkIOStats) Fields() []Field {
	return []Field{
		{Name: "network_bytes_sent", Value: float64(s.BytesSent)},
		{Name: "network_bytes_recv", Value: float64(s.BytesRecv)},
		{Name: "network_packets_sent", Value: float64(s.PacketsSent)},
		{Name: "network_packets_recv", Value: float64(s.PacketsRecv)},
		{Name: "network_errin", Value: float64(s.Errin)},
		{Name: "network_errout", Value: float64(s.Errout)},
		{Name: "network_dropin", Value: float64(s.Dropin)},
		{Name: "network_dropout", Value: float64(s.Dropout)},
	}
}

// ConnectionStats is the network_connections group: inet socket counts by state.
// Params: counts for tracked TCP states.
// Returns: connection metric group.
type ConnectionStats struct {
	Established int `json:"established"`
	Listen      int `json:"listen"`
	TimeWait    int `json:"time_wait"`
	CloseWait   int `json:"close_wait"`
}

// Fields returns connection wire fields.
// Params: none.
// Returns: ordered field list.
func (s *ConnectionStats) Fields() []Field {
	return []Field{
		{Name: "network_conn_established", Value: float64(s.Established)},
		{Name: "network_conn_listen", Value: float64(s.Listen)},
		{Name: "network_conn_time_wait", Value: float64(s.TimeWait)},
		{Name: "network_conn_close_wait", Value: float64(s.CloseWait)},
	}
}

// Probes reads every metric group from the host.
// Params: context for cancellation and deadlines.
// Returns: one group per call or a SourceError.
type Probes interface {
	CPU(ctx context.Context) (*CPUStats, error)
	Memory(ctx context.Context) (*MemoryStats, error)
	DiskIO(ctx context.Context) (*DiskIOStats, error)
	DiskUsage(ctx context.Context) (*DiskUsageStats, error)
	NetworkIO(ctx context.Context) (*NetworkIOStats, error)
	NetworkConnections(ctx context.Context) (*ConnectionStats, error)
}
