package metrics

import (
	"testing"
)

func TestSnapshotGroupsAndFlatten(t *testing.T) {
	snap := &Snapshot{
		CPU:    &CPUStats{Percent: 42, PerCorePercent: []float64{40, 44}},
		Memory: &MemoryStats{Percent: 70},
		DiskUsage: &DiskUsageStats{Partitions: []PartitionUsage{
			{Mountpoint: "/", Percent: 55},
			{Mountpoint: "/data", Percent: 91},
		}},
	}

	groups := snap.Groups()
	if len(groups) != 3 || groups[0] != GroupCPU || groups[1] != GroupMemory || groups[2] != GroupDiskUsage {
		t.Fatalf("unexpected groups: %v", groups)
	}
	if snap.Has(GroupDiskIO) || snap.Has(GroupNetworkIO) {
		t.Fatalf("absent groups reported present")
	}

	flat := snap.Flatten()
	if flat["cpu_percent"] != 42 || flat["cpu_percent_per_core_core1"] != 44 {
		t.Fatalf("unexpected cpu fields: %v", flat)
	}
	if flat[DiskPercentField] != 91 {
		t.Fatalf("expected disk_percent=91, got %v", flat[DiskPercentField])
	}
	if _, ok := flat["disk_read_count"]; ok {
		t.Fatalf("absent group leaked into flatten")
	}
	if _, ok := snap.Lookup("network_bytes_sent"); ok {
		t.Fatalf("expected missing network field")
	}
}

func TestSnapshotEmpty(t *testing.T) {
	var nilSnap *Snapshot
	if !nilSnap.Empty() {
		t.Fatalf("nil snapshot must be empty")
	}
	if !(&Snapshot{}).Empty() {
		t.Fatalf("snapshot without groups must be empty")
	}
	if (&Snapshot{NetworkIO: &NetworkIOStats{}}).Empty() {
		t.Fatalf("snapshot with network_io must not be empty")
	}
}

func TestIsKnownField(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{name: "cpu_percent", want: true},
		{name: "memory_percent", want: true},
		{name: "disk_percent", want: true},
		{name: "network_conn_close_wait", want: true},
		{name: "cpu_percent_per_core_core12", want: true},
		{name: "cpu_percent_per_core_core", want: false},
		{name: "cpu_percent_per_core_corex", want: false},
		{name: "percent", want: false},
		{name: "gpu_percent", want: false},
	}

	for _, tc := range cases {
		if got := IsKnownField(tc.name); got != tc.want {
			t.Fatalf("IsKnownField(%q)=%v want %v", tc.name, got, tc.want)
		}
	}
}
