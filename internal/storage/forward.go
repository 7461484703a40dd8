package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"hostmon/internal/config"
	"hostmon/internal/metrics"
)

// Forwarder pushes snapshots to a remote gRPC ingest method as google.protobuf.Struct.
type Forwarder struct {
	address string
	method  string
	timeout time.Duration
	tags    map[string]string
	logger  *slog.Logger

	mu   sync.Mutex
	conn *grpc.ClientConn
}

// NewForwarder builds a forwarder; the connection is created on first write.
// Params: cfg forward section; tags base record tags; logger output.
// Returns: forwarder.
func NewForwarder(cfg config.ForwardConfig, tags map[string]string, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		address: strings.TrimSpace(cfg.Addr),
		method:  cfg.Method,
		timeout: cfg.Timeout.Duration,
		tags:    tags,
		logger:  logger,
	}
}

// Write encodes the snapshot records and invokes the ingest method.
// Params: ctx write deadline; snap collected snapshot.
// Returns: encode, connect or RPC error.
func (f *Forwarder) Write(ctx context.Context, snap *metrics.Snapshot) error {
	request, err := buildForwardRequest(snap, f.tags)
	if err != nil {
		return err
	}

	conn, err := f.connection()
	if err != nil {
		return err
	}

	callCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	if err := conn.Invoke(callCtx, f.method, request, &emptypb.Empty{}); err != nil {
		f.dropConnection(conn)
		return fmt.Errorf("forward %s%s: %w", f.address, f.method, err)
	}
	return nil
}

// Close closes the cached connection.
// Params: none.
// Returns: close error.
func (f *Forwarder) Close() error {
	f.mu.Lock()
	conn := f.conn
	f.conn = nil
	f.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// connection returns the cached client connection or creates a new one.
// Params: none.
// Returns: client connection or error.
func (f *Forwarder) connection() (*grpc.ClientConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn != nil {
		return f.conn, nil
	}
	if f.address == "" {
		return nil, fmt.Errorf("forward address is empty")
	}

	conn, err := grpc.NewClient(f.address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", f.address, err)
	}
	f.conn = conn
	return conn, nil
}

// dropConnection forgets a failed connection so the next write reconnects.
// Params: conn connection that failed.
// Returns: none.
func (f *Forwarder) dropConnection(conn *grpc.ClientConn) {
	f.mu.Lock()
	if f.conn != conn {
		f.mu.Unlock()
		return
	}
	f.conn = nil
	f.mu.Unlock()

	if err := conn.Close(); err != nil {
		f.logger.Debug("close forward connection", slog.String("error", err.Error()))
	}
}

// buildForwardRequest converts a snapshot into a protobuf Struct.
// Params: snap collected snapshot; tags base record tags.
// Returns: request message or conversion error.
func buildForwardRequest(snap *metrics.Snapshot, tags map[string]string) (*structpb.Struct, error) {
	records := RecordsFromSnapshot(snap, tags)
	items := make([]any, 0, len(records))
	for _, record := range records {
		recordTags := make(map[string]any, len(record.Tags))
		for key, value := range record.Tags {
			recordTags[key] = value
		}
		fields := make(map[string]any, len(record.Fields))
		for name, value := range record.Fields {
			fields[name] = value
		}
		items = append(items, map[string]any{
			"measurement": record.Measurement,
			"tags":        recordTags,
			"fields":      fields,
		})
	}

	request, err := structpb.NewStruct(map[string]any{
		"host":      tags["host"],
		"timestamp": snap.Time.UTC().Format(time.RFC3339Nano),
		"records":   items,
	})
	if err != nil {
		return nil, fmt.Errorf("encode forward request: %w", err)
	}
	return request, nil
}
