package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"hostmon/internal/metrics"
)

// SQLiteStore persists snapshots into an embedded SQLite file.
type SQLiteStore struct {
	db        *sql.DB
	tags      map[string]string
	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

// OpenSQLite opens (or creates) the database file and applies the schema.
// Params: ctx bounds ping and migration; path database file; tags base record tags; logger output.
// Returns: ready store or error.
func OpenSQLite(ctx context.Context, path string, tags map[string]string, logger *slog.Logger) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &SQLiteStore{db: db, tags: tags, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migration: %w", err)
	}

	logger.Info("sqlite store opened", slog.String("path", path))
	return s, nil
}

// migrate creates the samples table when missing.
// Params: ctx statement context.
// Returns: DDL error.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS samples (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    ts          INTEGER NOT NULL,
    measurement TEXT NOT NULL,
    field       TEXT NOT NULL,
    value       REAL NOT NULL,
    tags        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_samples_measurement_ts ON samples(measurement, ts);
`
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create samples table: %w", err)
	}
	return nil
}

// Write stores every record field of the snapshot in a single transaction.
// Params: ctx write deadline; snap collected snapshot.
// Returns: transaction error.
func (s *SQLiteStore) Write(ctx context.Context, snap *metrics.Snapshot) error {
	records := RecordsFromSnapshot(snap, s.tags)
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO samples (ts, measurement, field, value, tags) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var rows int
	for _, record := range records {
		tags, err := json.Marshal(record.Tags)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("marshal tags: %w", err)
		}
		ts := record.Time.UTC().UnixNano()
		for field, value := range record.Fields {
			if _, err := stmt.ExecContext(ctx, ts, record.Measurement, field, value, string(tags)); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("exec insert for %s.%s: %w", record.Measurement, field, err)
			}
			rows++
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	s.logger.Debug("snapshot persisted", slog.Time("timestamp", snap.Time), slog.Int("rows", rows))
	return nil
}

// Query selects samples of one measurement within [Start, End).
// Params: ctx request context; req validated query.
// Returns: points ordered by time then field.
func (s *SQLiteStore) Query(ctx context.Context, req QueryRequest) ([]Point, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	query := `SELECT ts, field, value, tags FROM samples WHERE measurement = ? AND ts >= ? AND ts < ?`
	args := []any{req.Measurement, req.Start.UTC().UnixNano(), req.End.UTC().UnixNano()}
	if len(req.Fields) > 0 {
		query += " AND field IN (" + strings.TrimSuffix(strings.Repeat("?,", len(req.Fields)), ",") + ")"
		for _, field := range req.Fields {
			args = append(args, field)
		}
	}
	query += " ORDER BY ts, field"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var (
			ts      int64
			field   string
			value   float64
			rawTags string
		)
		if err := rows.Scan(&ts, &field, &value, &rawTags); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		var tags map[string]string
		if err := json.Unmarshal([]byte(rawTags), &tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
		if !matchTags(tags, req.Tags) {
			continue
		}
		points = append(points, Point{
			Time:        time.Unix(0, ts).UTC(),
			Measurement: req.Measurement,
			Field:       field,
			Value:       value,
			Tags:        tags,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}

	sortPoints(points)
	return points, nil
}

// Close shuts down the database connection once.
// Params: none.
// Returns: close error.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}
