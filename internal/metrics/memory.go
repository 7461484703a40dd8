package metrics

import (
	"context"
)

// Memory reads virtual memory and swap state.
// Params: ctx for cancellation.
// Returns: memory group or SourceError.
func (h *Host) Memory(ctx context.Context) (*MemoryStats, error) {
	vm, err := h.virtualMemory(ctx)
	if err != nil {
		return nil, sourceErr(GroupMemory, "read virtual memory: %w", err)
	}

	sm, err := h.swapMemory(ctx)
	if err != nil {
		return nil, sourceErr(GroupMemory, "read swap memory: %w", err)
	}

	return &MemoryStats{
		Total:       vm.Total,
		Available:   vm.Available,
		Used:        vm.Used,
		Free:        vm.Free,
		Percent:     vm.UsedPercent,
		SwapTotal:   sm.Total,
		SwapUsed:    sm.Used,
		SwapFree:    sm.Free,
		SwapPercent: sm.UsedPercent,
	}, nil
}
