package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hostmon/internal/metrics"
	"hostmon/internal/storage"
)

// writeSQLiteConfig prepares a config file and a store holding two cpu snapshots.
// Params: t test context; at time of the first snapshot.
// Returns: config path.
func writeSQLiteConfig(t *testing.T, at time.Time) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "hostmon.db")

	store, err := storage.OpenSQLite(context.Background(), dbPath, map[string]string{"host": "cli-test"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for i, percent := range []float64{10, 30} {
		snap := &metrics.Snapshot{Time: at.Add(time.Duration(i) * time.Second), CPU: &metrics.CPUStats{Percent: percent}}
		if err := store.Write(context.Background(), snap); err != nil {
			t.Fatalf("write snapshot: %v", err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close sqlite: %v", err)
	}

	path := filepath.Join(dir, "hostmon.toml")
	raw := fmt.Sprintf("[global]\nhost = \"cli-test\"\n\n[storage]\ndriver = \"sqlite\"\npath = %q\n\n[log.console]\nenabled = false\n\n[log.file]\nenabled = true\npath = %q\n", dbPath, filepath.Join(dir, "hostmon.log"))
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestRunQuery_PrintsPoints verifies table output of stored points.
// Params: t test context.
// Returns: none.
func TestRunQuery_PrintsPoints(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	path := writeSQLiteConfig(t, now.Add(-10*time.Minute))

	var out bytes.Buffer
	err := runQuery(context.Background(), &out, path, &queryOptions{metric: "cpu", start: "-1h", end: "now()", fields: []string{"cpu_percent"}}, now)
	if err != nil {
		t.Fatalf("runQuery: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines=%d, want header plus 2 points:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[0], "TIME") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[1], "2024-05-01T11:50:00Z") || !strings.Contains(lines[1], "cpu_percent") || !strings.Contains(lines[1], "10") {
		t.Fatalf("unexpected first row %q", lines[1])
	}
}

// TestRunQuery_SummaryJSON verifies JSON aggregates.
// Params: t test context.
// Returns: none.
func TestRunQuery_SummaryJSON(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	path := writeSQLiteConfig(t, now.Add(-10*time.Minute))

	var out bytes.Buffer
	err := runQuery(context.Background(), &out, path, &queryOptions{metric: "cpu", start: "-1h", end: "now()", fields: []string{"cpu_percent"}, summary: true, asJSON: true}, now)
	if err != nil {
		t.Fatalf("runQuery: %v", err)
	}

	var summaries []storage.Summary
	if err := json.Unmarshal(out.Bytes(), &summaries); err != nil {
		t.Fatalf("decode: %v\n%s", err, out.String())
	}
	if len(summaries) != 1 {
		t.Fatalf("summaries=%d, want 1", len(summaries))
	}
	if summaries[0].Count != 2 || summaries[0].Avg != 20 || summaries[0].Max != 30 {
		t.Fatalf("unexpected summary %+v", summaries[0])
	}
}

// TestRunQuery_InvalidMetric verifies validation happens before connecting.
// Params: t test context.
// Returns: none.
func TestRunQuery_InvalidMetric(t *testing.T) {
	path := writeSQLiteConfig(t, time.Now())
	err := runQuery(context.Background(), io.Discard, path, &queryOptions{metric: "gpu", start: "-1h"}, time.Now())
	var validation *storage.ValidationError
	if !errors.As(err, &validation) || validation.Param != "measurement" {
		t.Fatalf("expected measurement validation error, got %v", err)
	}
}

// TestVersionCommand verifies build information output.
// Params: t test context.
// Returns: none.
func TestVersionCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(out.String(), "hostmon version=dev") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

// TestFormatTags verifies tag rendering.
// Params: t test context.
// Returns: none.
func TestFormatTags(t *testing.T) {
	if got := formatTags(map[string]string{"host": "h"}); got != "-" {
		t.Fatalf("formatTags host only=%q", got)
	}
	got := formatTags(map[string]string{"host": "h", "mountpoint": "/", "device": "/dev/sda1"})
	if got != "device=/dev/sda1,mountpoint=/" {
		t.Fatalf("formatTags=%q", got)
	}
}
