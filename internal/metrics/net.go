package metrics

import (
	"context"
)

const connectionKindInet = "inet"

// NetworkIO reads interface traffic counters aggregated over all NICs.
// Params: ctx for cancellation.
// Returns: network io group or SourceError.
func (h *Host) NetworkIO(ctx context.Context) (*NetworkIOStats, error) {
	stats, err := h.netIO(ctx, false)
	if err != nil {
		return nil, sourceErr(GroupNetworkIO, "read net counters: %w", err)
	}
	if len(stats) == 0 {
		return nil, sourceErr(GroupNetworkIO, "no interface counters reported")
	}

	out := &NetworkIOStats{}
	for _, stat := range stats {
		out.BytesSent += stat.BytesSent
		out.BytesRecv += stat.BytesRecv
		out.PacketsSent += stat.PacketsSent
		out.PacketsRecv += stat.PacketsRecv
		out.Errin += stat.Errin
		out.Errout += stat.Errout
		out.Dropin += stat.Dropin
		out.Dropout += stat.Dropout
	}
	return out, nil
}

// NetworkConnections counts inet sockets in tracked TCP states.
// Enumeration needs elevated privileges on some platforms.
// Params: ctx for cancellation.
// Returns: connection group or SourceError.
func (h *Host) NetworkConnections(ctx context.Context) (*ConnectionStats, error) {
	conns, err := h.connections(ctx, connectionKindInet)
	if err != nil {
		return nil, sourceErr(GroupNetworkConnections, "list inet connections: %w", err)
	}

	out := &ConnectionStats{}
	for _, conn := range conns {
		switch conn.Status {
		case "ESTABLISHED":
			out.Established++
		case "LISTEN":
			out.Listen++
		case "TIME_WAIT":
			out.TimeWait++
		case "CLOSE_WAIT":
			out.CloseWait++
		}
	}
	return out, nil
}
