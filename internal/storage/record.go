package storage

import (
	"strings"
	"time"

	"hostmon/internal/config"
	"hostmon/internal/metrics"
)

// seriesTagKeys identify one series within a measurement; only disk_usage sets them.
var seriesTagKeys = []string{"mountpoint", "device", "fstype"}

// Record is one persisted measurement row.
// Params: measurement group name, identity tags, numeric fields and pass timestamp.
// Returns: storage-neutral record.
type Record struct {
	Measurement string             `json:"measurement"`
	Tags        map[string]string  `json:"tags"`
	Fields      map[string]float64 `json:"fields"`
	Time        time.Time          `json:"time"`
}

// Tags builds the tag set attached to every record.
// Params: global identity section; empty values are omitted.
// Returns: tag map with at least host.
func Tags(global config.GlobalConfig) map[string]string {
	out := map[string]string{"host": strings.TrimSpace(global.Host)}
	for key, value := range map[string]string{
		"dc":      global.DC,
		"project": global.Project,
		"role":    global.Role,
	} {
		if value = strings.TrimSpace(value); value != "" {
			out[key] = value
		}
	}
	return out
}

// RecordsFromSnapshot expands one snapshot into records.
// Scalar groups give one record each; disk_usage gives one record per partition.
// Params: snap collected snapshot; tags base tags copied into every record.
// Returns: records in group order.
func RecordsFromSnapshot(snap *metrics.Snapshot, tags map[string]string) []Record {
	if snap == nil {
		return nil
	}

	out := make([]Record, 0, len(metrics.AllGroups))
	for _, group := range snap.Groups() {
		if group == metrics.GroupDiskUsage {
			for _, part := range snap.DiskUsage.Partitions {
				recordTags := copyTags(tags)
				recordTags["device"] = part.Device
				recordTags["mountpoint"] = part.Mountpoint
				recordTags["fstype"] = part.Fstype
				out = append(out, Record{
					Measurement: string(group),
					Tags:        recordTags,
					Fields:      fieldMap(part.Fields()),
					Time:        snap.Time,
				})
			}
			continue
		}

		fields := snap.GroupFields(group)
		if len(fields) == 0 {
			continue
		}
		out = append(out, Record{
			Measurement: string(group),
			Tags:        copyTags(tags),
			Fields:      fieldMap(fields),
			Time:        snap.Time,
		})
	}
	return out
}

func fieldMap(fields []metrics.Field) map[string]float64 {
	out := make(map[string]float64, len(fields))
	for _, field := range fields {
		out[field.Name] = field.Value
	}
	return out
}

func copyTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags)+3)
	for key, value := range tags {
		out[key] = value
	}
	return out
}
