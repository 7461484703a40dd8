package metrics

import (
	"context"
)

// CPU reads total and per-core utilization, topology, frequency, and cumulative times.
// Utilization is measured since the previous call (non-blocking interval 0).
// Params: ctx for cancellation.
// Returns: cpu group or SourceError.
func (h *Host) CPU(ctx context.Context) (*CPUStats, error) {
	total, err := h.cpuPercent(ctx, 0, false)
	if err != nil {
		return nil, sourceErr(GroupCPU, "read total CPU percent: %w", err)
	}

	perCore, err := h.cpuPercent(ctx, 0, true)
	if err != nil {
		return nil, sourceErr(GroupCPU, "read per-core CPU percent: %w", err)
	}

	logical, err := h.cpuCounts(ctx, true)
	if err != nil {
		return nil, sourceErr(GroupCPU, "read logical CPU count: %w", err)
	}

	// Physical core count is missing in many containers; report zero.
	physical, err := h.cpuCounts(ctx, false)
	if err != nil {
		physical = 0
	}

	times, err := h.cpuTimes(ctx, false)
	if err != nil {
		return nil, sourceErr(GroupCPU, "read CPU times: %w", err)
	}

	stats := &CPUStats{
		PerCorePercent: perCore,
		CountLogical:   logical,
		CountPhysical:  physical,
	}
	if len(total) > 0 {
		stats.Percent = total[0]
	}
	if len(times) > 0 {
		stats.TimeUser = times[0].User
		stats.TimeSystem = times[0].System
		stats.TimeIdle = times[0].Idle
	}
	stats.FreqCurrent, stats.FreqMin, stats.FreqMax = h.cpuFrequency(ctx)

	return stats, nil
}

// cpuFrequency derives current/min/max MHz from per-CPU info entries.
// Frequency counters are optional, so read failures yield zeros.
// Params: ctx for cancellation.
// Returns: mean, lowest, and highest reported MHz.
func (h *Host) cpuFrequency(ctx context.Context) (float64, float64, float64) {
	infos, err := h.cpuInfo(ctx)
	if err != nil || len(infos) == 0 {
		return 0, 0, 0
	}

	sum := 0.0
	minMHz := infos[0].Mhz
	maxMHz := infos[0].Mhz
	for _, info := range infos {
		sum += info.Mhz
		if info.Mhz < minMHz {
			minMHz = info.Mhz
		}
		if info.Mhz > maxMHz {
			maxMHz = info.Mhz
		}
	}
	return sum / float64(len(infos)), minMHz, maxMHz
}
