package metrics

import (
	"context"
	"math"
	"strings"

	"hostmon/internal/match"
)

// DiskIO sums read/write counters over top-level block devices.
// Partitions are excluded so bytes are not counted twice.
// Params: ctx for cancellation.
// Returns: disk io group, nil without error when the host exposes no counters, or SourceError.
func (h *Host) DiskIO(ctx context.Context) (*DiskIOStats, error) {
	stats, err := h.diskIO(ctx)
	if err != nil {
		return nil, sourceErr(GroupDiskIO, "read disk counters: %w", err)
	}

	out := &DiskIOStats{}
	devices := 0
	for name, stat := range stats {
		if !isBaseDiskDevice(name) {
			continue
		}
		devices++
		out.ReadCount += stat.ReadCount
		out.WriteCount += stat.WriteCount
		out.ReadBytes += stat.ReadBytes
		out.WriteBytes += stat.WriteBytes
		out.ReadTime += stat.ReadTime
		out.WriteTime += stat.WriteTime
	}

	if devices == 0 {
		return nil, nil
	}
	return out, nil
}

// DiskUsage reads usage for every mounted filesystem.
// Inaccessible or ignored mountpoints are skipped one by one.
// Params: ctx for cancellation.
// Returns: ordered partitions, nil without error when nothing is mounted, or SourceError.
func (h *Host) DiskUsage(ctx context.Context) (*DiskUsageStats, error) {
	partitions, err := h.partitions(ctx, false)
	if err != nil {
		return nil, sourceErr(GroupDiskUsage, "read partitions: %w", err)
	}

	out := &DiskUsageStats{Partitions: make([]PartitionUsage, 0, len(partitions))}
	failed := 0

	for _, part := range partitions {
		mpoint := strings.TrimSpace(part.Mountpoint)
		if mpoint == "" {
			continue
		}
		if h.ignored(mpoint, part.Fstype) {
			continue
		}

		usage, usageErr := h.usage(ctx, mpoint)
		if usageErr != nil {
			failed++
			continue
		}

		percent := usage.UsedPercent
		if math.IsNaN(percent) || math.IsInf(percent, 0) {
			percent = 0
		}

		out.Partitions = append(out.Partitions, PartitionUsage{
			Device:     part.Device,
			Mountpoint: mpoint,
			Fstype:     part.Fstype,
			Total:      usage.Total,
			Used:       usage.Used,
			Free:       usage.Free,
			Percent:    percent,
		})
	}

	if len(out.Partitions) == 0 {
		if failed > 0 {
			return nil, sourceErr(GroupDiskUsage, "all %d filesystem usage reads failed", failed)
		}
		return nil, nil
	}
	return out, nil
}

// ignored reports whether a partition is excluded by ignore masks.
// Params: mountpoint and fstype of the partition.
// Returns: true when partition must be skipped.
func (h *Host) ignored(mountpoint, fstype string) bool {
	return match.MatchAny(h.ignoreMounts, mountpoint) || match.MatchAny(h.ignoreFstypes, fstype)
}

// isBaseDiskDevice returns true for top-level block devices and false for partitions.
// Params: device name from gopsutil, with or without `/dev/` prefix.
// Returns: true when device should be reported by DISK metric.
func isBaseDiskDevice(name string) bool {
	device := normalizeDeviceName(name)
	if device == "" {
		return false
	}

	if matched, base := matchLetterDisk(device, "sd"); matched {
		return base
	}
	if matched, base := matchLetterDisk(device, "vd"); matched {
		return base
	}
	if matched, base := matchLetterDisk(device, "xvd"); matched {
		return base
	}
	if matched, base := matchLetterDisk(device, "hd"); matched {
		return base
	}
	if matched, base := matchNVMeDisk(device); matched {
		return base
	}
	if matched, base := matchMMCBLKDisk(device); matched {
		return base
	}

	if strings.HasPrefix(device, "loop") && isDigits(device[len("loop"):]) {
		return false
	}
	if strings.HasPrefix(device, "ram") && isDigits(device[len("ram"):]) {
		return false
	}

	if strings.HasPrefix(device, "dm-") && isDigits(device[len("dm-"):]) {
		return true
	}
	if strings.HasPrefix(device, "md") && isDigits(device[len("md"):]) {
		return true
	}
	if strings.HasPrefix(device, "zd") && isDigits(device[len("zd"):]) {
		return true
	}

	// Keep unknown names to avoid dropping valid devices on non-standard kernels.
	return true
}

// normalizeDeviceName trims spaces and optional /dev/ prefix.
// Params: raw device name.
// Returns: normalized short device name.
func normalizeDeviceName(name string) string {
	device := strings.TrimSpace(name)
	if strings.HasPrefix(device, "/dev/") {
		device = strings.TrimPrefix(device, "/dev/")
	}
	return device
}

// matchLetterDisk matches sd/vd/xvd/hd style devices with optional numeric partition suffix.
// Params: normalized device name, family prefix.
// Returns: matched family flag and base-disk decision.
func matchLetterDisk(device, prefix string) (bool, bool) {
	if !strings.HasPrefix(device, prefix) {
		return false, false
	}

	rest := device[len(prefix):]
	if rest == "" {
		return false, false
	}

	letters := 0
	for letters < len(rest) {
		ch := rest[letters]
		if ch < 'a' || ch > 'z' {
			break
		}
		letters++
	}
	if letters == 0 {
		return false, false
	}
	if letters == len(rest) {
		return true, true
	}
	if isDigits(rest[letters:]) {
		return true, false
	}
	return true, true
}

// matchNVMeDisk matches nvmeNnM and nvmeNnMpP names.
// Params: normalized device name.
// Returns: matched family flag and base-disk decision.
func matchNVMeDisk(device string) (bool, bool) {
	if !strings.HasPrefix(device, "nvme") {
		return false, false
	}

	rest := device[len("nvme"):]
	n := consumeDigits(rest)
	if n == 0 {
		return false, false
	}
	rest = rest[n:]
	if !strings.HasPrefix(rest, "n") {
		return false, false
	}
	rest = rest[1:]
	n = consumeDigits(rest)
	if n == 0 {
		return false, false
	}
	rest = rest[n:]
	if rest == "" {
		return true, true
	}
	if strings.HasPrefix(rest, "p") && isDigits(rest[1:]) {
		return true, false
	}
	return true, true
}

// matchMMCBLKDisk matches mmcblkN and mmcblkNpP names.
// Params: normalized device name.
// Returns: matched family flag and base-disk decision.
func matchMMCBLKDisk(device string) (bool, bool) {
	if !strings.HasPrefix(device, "mmcblk") {
		return false, false
	}

	rest := device[len("mmcblk"):]
	n := consumeDigits(rest)
	if n == 0 {
		return false, false
	}
	rest = rest[n:]
	if rest == "" {
		return true, true
	}
	if strings.HasPrefix(rest, "p") && isDigits(rest[1:]) {
		return true, false
	}
	return true, true
}

// consumeDigits returns the leading decimal digit run length.
// Params: source string.
// Returns: leading digits count.
func consumeDigits(value string) int {
	index := 0
	for index < len(value) {
		ch := value[index]
		if ch < '0' || ch > '9' {
			break
		}
		index++
	}
	return index
}

// isDigits checks that value is a non-empty decimal number.
// Params: string to validate.
// Returns: true if value contains only digits and is not empty.
func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for idx := 0; idx < len(value); idx++ {
		ch := value[idx]
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}
