package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"hostmon/internal/config"
	"hostmon/internal/metrics"
)

// InfluxStore persists snapshots into an InfluxDB v2 bucket and answers Flux queries.
type InfluxStore struct {
	client influxdb2.Client
	writer api.WriteAPIBlocking
	reader api.QueryAPI
	bucket string
	tags   map[string]string
	logger *slog.Logger
	once   sync.Once
}

// OpenInflux creates a client and verifies the server answers ping.
// Params: ctx bounds the ping; cfg storage section; tags base record tags; logger output.
// Returns: connected store or error.
func OpenInflux(ctx context.Context, cfg config.StorageConfig, tags map[string]string, logger *slog.Logger) (*InfluxStore, error) {
	options := influxdb2.DefaultOptions().SetHTTPRequestTimeout(timeoutSeconds(cfg.Timeout.Duration))
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, options)

	ok, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ping influxdb %s: %w", cfg.URL, err)
	}
	if !ok {
		client.Close()
		return nil, fmt.Errorf("ping influxdb %s: server not ready", cfg.URL)
	}

	logger.Info(
		"connected to influxdb",
		slog.String("url", cfg.URL),
		slog.String("org", cfg.Org),
		slog.String("bucket", cfg.Bucket),
	)

	return &InfluxStore{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		reader: client.QueryAPI(cfg.Org),
		bucket: cfg.Bucket,
		tags:   tags,
		logger: logger,
	}, nil
}

// Write converts the snapshot into points and writes them in one blocking request.
// Params: ctx write deadline; snap collected snapshot.
// Returns: write error.
func (s *InfluxStore) Write(ctx context.Context, snap *metrics.Snapshot) error {
	points := influxPoints(RecordsFromSnapshot(snap, s.tags))
	if len(points) == 0 {
		return nil
	}
	if err := s.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write influxdb points: %w", err)
	}
	s.logger.Debug("snapshot written", slog.Int("points", len(points)), slog.Time("timestamp", snap.Time))
	return nil
}

// Query runs a Flux range query and flattens the result tables.
// Params: ctx request context; req validated query.
// Returns: points ordered by time then field.
func (s *InfluxStore) Query(ctx context.Context, req QueryRequest) ([]Point, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	result, err := s.reader.Query(ctx, buildFlux(s.bucket, req))
	if err != nil {
		return nil, fmt.Errorf("query influxdb: %w", err)
	}
	defer result.Close()

	var points []Point
	for result.Next() {
		record := result.Record()
		value, ok := toFloat(record.Value())
		if !ok {
			continue
		}
		points = append(points, Point{
			Time:        record.Time().UTC(),
			Measurement: record.Measurement(),
			Field:       record.Field(),
			Value:       value,
			Tags:        fluxTags(record.Values()),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("read influxdb result: %w", err)
	}

	sortPoints(points)
	return points, nil
}

// Close releases client resources.
// Params: none.
// Returns: nil.
func (s *InfluxStore) Close() error {
	s.once.Do(s.client.Close)
	return nil
}

// timeoutSeconds converts the storage timeout to the whole seconds the client accepts.
// Sub-second remainders round up; the client reads 0 as no timeout, so the minimum is 1.
// Params: timeout configured storage timeout.
// Returns: seconds, at least 1.
func timeoutSeconds(timeout time.Duration) uint {
	seconds := (timeout + time.Second - 1) / time.Second
	if seconds < 1 {
		return 1
	}
	return uint(seconds)
}

// influxPoints converts records into line protocol points.
// Params: records storage records.
// Returns: points.
func influxPoints(records []Record) []*write.Point {
	out := make([]*write.Point, 0, len(records))
	for _, record := range records {
		fields := make(map[string]any, len(record.Fields))
		for name, value := range record.Fields {
			fields[name] = value
		}
		out = append(out, influxdb2.NewPoint(record.Measurement, record.Tags, fields, record.Time))
	}
	return out
}

// buildFlux renders the Flux query for one request.
// Params: bucket source bucket; req query.
// Returns: Flux script.
func buildFlux(bucket string, req QueryRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %s)\n", strconv.Quote(bucket))
	fmt.Fprintf(&b, "  |> range(start: %s, stop: %s)\n",
		req.Start.UTC().Format(time.RFC3339Nano),
		req.End.UTC().Format(time.RFC3339Nano),
	)
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r._measurement == %s)\n", strconv.Quote(req.Measurement))

	if len(req.Fields) > 0 {
		clauses := make([]string, 0, len(req.Fields))
		for _, field := range req.Fields {
			clauses = append(clauses, "r._field == "+strconv.Quote(field))
		}
		fmt.Fprintf(&b, "  |> filter(fn: (r) => %s)\n", strings.Join(clauses, " or "))
	}

	keys := make([]string, 0, len(req.Tags))
	for key := range req.Tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, "  |> filter(fn: (r) => r[%s] == %s)\n", strconv.Quote(key), strconv.Quote(req.Tags[key]))
	}

	b.WriteString(`  |> sort(columns: ["_time"])`)
	return b.String()
}

// fluxColumns are the result columns that carry no tag value.
var fluxColumns = map[string]struct{}{
	"result":       {},
	"table":        {},
	"_start":       {},
	"_stop":        {},
	"_time":        {},
	"_value":       {},
	"_field":       {},
	"_measurement": {},
}

// fluxTags extracts tag columns from one Flux record.
// Params: values record columns.
// Returns: tag map, nil when the record carries no tags.
func fluxTags(values map[string]any) map[string]string {
	var tags map[string]string
	for column, raw := range values {
		if _, skip := fluxColumns[column]; skip || strings.HasPrefix(column, "_") {
			continue
		}
		value, ok := raw.(string)
		if !ok || value == "" {
			continue
		}
		if tags == nil {
			tags = make(map[string]string, len(values))
		}
		tags[column] = value
	}
	return tags
}

// toFloat converts Flux record values to float64.
// Params: value raw record value.
// Returns: float value and false for non-numeric values.
func toFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case int64:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	case bool:
		if typed {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
