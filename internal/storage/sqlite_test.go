package storage

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostmon/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "hostmon.db"), map[string]string{"host": "web-01"}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_WriteAndQuery(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		snap := sampleSnapshot(base.Add(time.Duration(i) * time.Second))
		snap.CPU.Percent = float64(10 * (i + 1))
		require.NoError(t, store.Write(ctx, snap))
	}

	points, err := store.Query(ctx, QueryRequest{
		Measurement: "cpu",
		Start:       base,
		End:         base.Add(time.Minute),
		Fields:      []string{"cpu_percent"},
	})
	require.NoError(t, err)
	require.Len(t, points, 3)
	for i, point := range points {
		assert.Equal(t, "cpu", point.Measurement)
		assert.Equal(t, "cpu_percent", point.Field)
		assert.Equal(t, float64(10*(i+1)), point.Value)
		assert.True(t, base.Add(time.Duration(i)*time.Second).Equal(point.Time))
		assert.Equal(t, "web-01", point.Tags["host"])
	}

	// End is exclusive.
	points, err = store.Query(ctx, QueryRequest{Measurement: "cpu", Start: base, End: base.Add(time.Second), Fields: []string{"cpu_percent"}})
	require.NoError(t, err)
	assert.Len(t, points, 1)
}

func TestSQLiteStore_QueryPartitionTags(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Write(ctx, sampleSnapshot(base)))

	points, err := store.Query(ctx, QueryRequest{
		Measurement: "disk_usage",
		Start:       base.Add(-time.Minute),
		End:         base.Add(time.Minute),
		Fields:      []string{"percent"},
		Tags:        map[string]string{"mountpoint": "/data"},
	})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 10.0, points[0].Value)
	assert.Equal(t, "xfs", points[0].Tags["fstype"])

	all, err := store.Query(ctx, QueryRequest{Measurement: "disk_usage", Start: base.Add(-time.Minute), End: base.Add(time.Minute)})
	require.NoError(t, err)
	assert.Len(t, all, 8)
	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].Field, all[i].Field, "points at one instant are ordered by field")
	}
}

func TestSQLiteStore_RejectsInvalidQuery(t *testing.T) {
	store := openTestSQLite(t)
	_, err := store.Query(context.Background(), QueryRequest{Measurement: "cpu"})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestSQLiteStore_CloseIsIdempotent(t *testing.T) {
	store := openTestSQLite(t)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}

func TestOpen_SelectsDriver(t *testing.T) {
	cfg := config.StorageConfig{
		Driver:  config.DriverSQLite,
		Path:    filepath.Join(t.TempDir(), "open.db"),
		Timeout: config.Duration{Duration: time.Second},
	}
	store, err := Open(context.Background(), cfg, map[string]string{"host": "h"}, discardLogger())
	require.NoError(t, err)
	_, ok := store.(*SQLiteStore)
	assert.True(t, ok)
	require.NoError(t, store.Close())

	_, err = Open(context.Background(), config.StorageConfig{Driver: "postgres"}, nil, discardLogger())
	require.Error(t, err)
}
