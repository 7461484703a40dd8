package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostmon/internal/config"
	"hostmon/internal/metrics"
)

func sampleSnapshot(at time.Time) *metrics.Snapshot {
	return &metrics.Snapshot{
		Time: at,
		CPU:  &metrics.CPUStats{Percent: 42, PerCorePercent: []float64{40, 44}, CountLogical: 2},
		Memory: &metrics.MemoryStats{
			Total:   1000,
			Used:    250,
			Percent: 25,
		},
		DiskUsage: &metrics.DiskUsageStats{Partitions: []metrics.PartitionUsage{
			{Device: "/dev/sda1", Mountpoint: "/", Fstype: "ext4", Total: 100, Used: 91, Free: 9, Percent: 91},
			{Device: "/dev/sdb1", Mountpoint: "/data", Fstype: "xfs", Total: 200, Used: 20, Free: 180, Percent: 10},
		}},
		NetworkIO: &metrics.NetworkIOStats{BytesSent: 5, BytesRecv: 7},
	}
}

func TestTags_OmitsEmptyIdentity(t *testing.T) {
	tags := Tags(config.GlobalConfig{Host: " web-01 ", DC: "fra", Role: ""})
	assert.Equal(t, map[string]string{"host": "web-01", "dc": "fra"}, tags)
}

func TestRecordsFromSnapshot_GroupsAndPartitions(t *testing.T) {
	at := time.Unix(1700000000, 0).UTC()
	records := RecordsFromSnapshot(sampleSnapshot(at), map[string]string{"host": "web-01"})

	// cpu, memory, two disk_usage partitions, network_io
	require.Len(t, records, 5)

	byMeasurement := make(map[string][]Record)
	for _, record := range records {
		assert.Equal(t, at, record.Time)
		assert.Equal(t, "web-01", record.Tags["host"])
		byMeasurement[record.Measurement] = append(byMeasurement[record.Measurement], record)
	}

	cpu := byMeasurement["cpu"]
	require.Len(t, cpu, 1)
	assert.Equal(t, 42.0, cpu[0].Fields["cpu_percent"])
	assert.Equal(t, 44.0, cpu[0].Fields["cpu_percent_per_core_core1"])

	disks := byMeasurement["disk_usage"]
	require.Len(t, disks, 2)
	assert.Equal(t, "/dev/sda1", disks[0].Tags["device"])
	assert.Equal(t, "/", disks[0].Tags["mountpoint"])
	assert.Equal(t, "ext4", disks[0].Tags["fstype"])
	assert.Equal(t, 91.0, disks[0].Fields["percent"])
	assert.Equal(t, "/data", disks[1].Tags["mountpoint"])

	_, hasDevice := cpu[0].Tags["device"]
	assert.False(t, hasDevice, "partition tags must not leak into other records")

	assert.Nil(t, RecordsFromSnapshot(nil, nil))
}
