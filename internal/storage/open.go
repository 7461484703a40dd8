package storage

import (
	"context"
	"fmt"
	"log/slog"

	"hostmon/internal/config"
	"hostmon/internal/metrics"
)

// Store is a persisting snapshot sink that can also answer queries.
type Store interface {
	Write(ctx context.Context, snap *metrics.Snapshot) error
	Query(ctx context.Context, req QueryRequest) ([]Point, error)
	Close() error
}

// Open connects the configured storage driver.
// Params: ctx bounds one connection attempt; cfg storage section; tags base record tags; logger output.
// Returns: connected store or error.
func Open(ctx context.Context, cfg config.StorageConfig, tags map[string]string, logger *slog.Logger) (Store, error) {
	if cfg.Timeout.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout.Duration)
		defer cancel()
	}

	switch cfg.Driver {
	case config.DriverInfluxDB:
		store, err := OpenInflux(ctx, cfg, tags, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverSQLite:
		store, err := OpenSQLite(ctx, cfg.Path, tags, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
