package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"

	"hostmon/internal/config"
	"hostmon/internal/metrics"
)

// StreamPublisher appends every snapshot to a capped Valkey stream.
type StreamPublisher struct {
	client valkey.Client
	stream string
	maxLen int64
	host   string
	logger *slog.Logger
	once   sync.Once
}

// OpenStreamPublisher connects to Valkey and verifies it with PING.
// Params: ctx bounds the ping; cfg valkey section; host reporting hostname; logger output.
// Returns: publisher or connect error.
func OpenStreamPublisher(ctx context.Context, cfg config.ValkeyConfig, host string, logger *slog.Logger) (*StreamPublisher, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: cfg.Addr,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping valkey: %w", err)
	}

	logger.Info("connected to valkey", slog.Any("addr", cfg.Addr), slog.String("stream", cfg.Stream))

	return &StreamPublisher{
		client: client,
		stream: cfg.Stream,
		maxLen: cfg.MaxLen,
		host:   host,
		logger: logger,
	}, nil
}

// Write appends the snapshot as one stream entry trimmed to roughly max_len entries.
// Params: ctx write deadline; snap collected snapshot.
// Returns: encode or XADD error.
func (p *StreamPublisher) Write(ctx context.Context, snap *metrics.Snapshot) error {
	fields, err := streamFields(snap, p.host)
	if err != nil {
		return err
	}

	entry := p.client.B().Xadd().Key(p.stream).
		Maxlen().Almost().Threshold(strconv.FormatInt(p.maxLen, 10)).
		Id("*").FieldValue()
	for _, pair := range fields {
		entry = entry.FieldValue(pair[0], pair[1])
	}

	if err := p.client.Do(ctx, entry.Build()).Error(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

// Close releases the client once.
// Params: none.
// Returns: nil.
func (p *StreamPublisher) Close() error {
	p.once.Do(p.client.Close)
	return nil
}

// streamFields renders the stream entry body.
// Params: snap collected snapshot; host reporting hostname.
// Returns: ordered field/value pairs or encode error.
func streamFields(snap *metrics.Snapshot, host string) ([][2]string, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return [][2]string{
		{"host", host},
		{"timestamp", snap.Time.UTC().Format(time.RFC3339Nano)},
		{"payload", string(payload)},
	}, nil
}
