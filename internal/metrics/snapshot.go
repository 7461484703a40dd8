package metrics

import (
	"sort"
	"strings"
	"time"
)

// DiskPercentField is the derived flat field holding the fullest partition percent.
const DiskPercentField = "disk_percent"

// Snapshot is the aggregate of one collection pass.
// Params: pass timestamp and groups refreshed on this pass (nil when absent).
// Returns: point-in-time metric set.
type Snapshot struct {
	Time               time.Time        `json:"timestamp"`
	CPU                *CPUStats        `json:"cpu,omitempty"`
	Memory             *MemoryStats     `json:"memory,omitempty"`
	DiskIO             *DiskIOStats     `json:"disk_io,omitempty"`
	DiskUsage          *DiskUsageStats  `json:"disk_usage,omitempty"`
	NetworkIO          *NetworkIOStats  `json:"network_io,omitempty"`
	NetworkConnections *ConnectionStats `json:"network_connections,omitempty"`
}

// Groups lists groups present in the snapshot.
// Params: none.
// Returns: present groups in canonical order.
func (s *Snapshot) Groups() []Group {
	if s == nil {
		return nil
	}
	out := make([]Group, 0, len(AllGroups))
	for _, group := range AllGroups {
		if s.Has(group) {
			out = append(out, group)
		}
	}
	return out
}

// Has reports whether group was collected on this pass.
// Params: group identifier.
// Returns: true when group is present.
func (s *Snapshot) Has(group Group) bool {
	if s == nil {
		return false
	}
	switch group {
	case GroupCPU:
		return s.CPU != nil
	case GroupMemory:
		return s.Memory != nil
	case GroupDiskIO:
		return s.DiskIO != nil
	case GroupDiskUsage:
		return s.DiskUsage != nil
	case GroupNetworkIO:
		return s.NetworkIO != nil
	case GroupNetworkConnections:
		return s.NetworkConnections != nil
	default:
		return false
	}
}

// Empty reports whether no group is present.
// Params: none.
// Returns: true for a snapshot without groups.
func (s *Snapshot) Empty() bool {
	return len(s.Groups()) == 0
}

// GroupFields returns wire fields of one scalar group.
// Params: group identifier; disk_usage is per-partition and returns nil here.
// Returns: field list or nil when group is absent.
func (s *Snapshot) GroupFields(group Group) []Field {
	if s == nil {
		return nil
	}
	switch group {
	case GroupCPU:
		if s.CPU != nil {
			return s.CPU.Fields()
		}
	case GroupMemory:
		if s.Memory != nil {
			return s.Memory.Fields()
		}
	case GroupDiskIO:
		if s.DiskIO != nil {
			return s.DiskIO.Fields()
		}
	case GroupNetworkIO:
		if s.NetworkIO != nil {
			return s.NetworkIO.Fields()
		}
	case GroupNetworkConnections:
		if s.NetworkConnections != nil {
			return s.NetworkConnections.Fields()
		}
	}
	return nil
}

// Flatten merges scalar group fields into one map and adds disk_percent.
// Params: none.
// Returns: flat field map keyed by wire name.
func (s *Snapshot) Flatten() map[string]float64 {
	out := make(map[string]float64)
	if s == nil {
		return out
	}
	for _, group := range AllGroups {
		for _, field := range s.GroupFields(group) {
			out[field.Name] = field.Value
		}
	}
	if value, ok := s.DiskUsage.MaxPercent(); ok {
		out[DiskPercentField] = value
	}
	return out
}

// Lookup returns one flat field value.
// Params: name wire field name.
// Returns: value and presence flag.
func (s *Snapshot) Lookup(name string) (float64, bool) {
	value, ok := s.Flatten()[name]
	return value, ok
}

var knownFields = buildKnownFields()

// buildKnownFields enumerates every static wire field name.
// Params: none.
// Returns: set of field names usable by alert rules.
func buildKnownFields() map[string]struct{} {
	sample := &Snapshot{
		CPU:                &CPUStats{},
		Memory:             &MemoryStats{},
		DiskIO:             &DiskIOStats{},
		NetworkIO:          &NetworkIOStats{},
		NetworkConnections: &ConnectionStats{},
	}
	out := make(map[string]struct{})
	for name := range sample.Flatten() {
		out[name] = struct{}{}
	}
	out[DiskPercentField] = struct{}{}
	return out
}

// IsKnownField reports whether name is a valid wire field, including per-core names.
// Params: name field name.
// Returns: true when some group can emit it.
func IsKnownField(name string) bool {
	if _, ok := knownFields[name]; ok {
		return true
	}
	suffix, ok := strings.CutPrefix(name, "cpu_percent_per_core_core")
	return ok && isDigits(suffix)
}

// KnownFields returns sorted static field names.
// Params: none.
// Returns: field name list.
func KnownFields() []string {
	out := make([]string, 0, len(knownFields))
	for name := range knownFields {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
