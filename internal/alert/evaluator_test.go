package alert

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"hostmon/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func cpuSnapshot(at time.Time, percent float64) *metrics.Snapshot {
	return &metrics.Snapshot{Time: at, CPU: &metrics.CPUStats{Percent: percent}}
}

func newTestEvaluator(t *testing.T, repeat Repeat, rules ...Rule) *Evaluator {
	t.Helper()
	evaluator, err := NewEvaluator(rules, repeat, discardLogger())
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	return evaluator
}

// TestEvaluate_DurationZeroFiresEveryTime verifies level-triggered emission at and above the threshold.
// Params: testing.T for assertions.
// Returns: none.
func TestEvaluate_DurationZeroFiresEveryTime(t *testing.T) {
	rule := Rule{Name: "cpu", Field: "cpu_percent", Operator: OpGreaterEqual, Threshold: 80, Severity: SeverityWarning}
	evaluator := newTestEvaluator(t, RepeatEvery, rule)
	base := time.Unix(1700000000, 0)

	for idx, value := range []float64{80, 90, 100, 100} {
		fired := evaluator.Evaluate(cpuSnapshot(base.Add(time.Duration(idx)*time.Second), value))
		if len(fired) != 1 {
			t.Fatalf("value %.1f: expected one alert, got %d", value, len(fired))
		}
		alert := fired[0]
		if alert.Rule != "cpu" || alert.Value != value || alert.Threshold != 80 || alert.Severity != SeverityWarning {
			t.Fatalf("unexpected alert: %+v", alert)
		}
		if alert.ID == "" || alert.Timestamp.IsZero() {
			t.Fatalf("alert id and timestamp must be set: %+v", alert)
		}
	}

	if fired := evaluator.Evaluate(cpuSnapshot(base.Add(time.Minute), 79.9)); len(fired) != 0 {
		t.Fatalf("expected no alert at 79.9, got %d", len(fired))
	}
	if state, _ := evaluator.State("cpu"); state != StateIdle {
		t.Fatalf("expected idle after resolution, got %s", state)
	}
}

// TestEvaluate_DurationSustained verifies breach timing for a 60s rule.
// Params: testing.T for assertions.
// Returns: none.
func TestEvaluate_DurationSustained(t *testing.T) {
	rule := Rule{Name: "cpu critical", Field: "cpu_percent", Operator: OpGreaterEqual, Threshold: 95, Severity: SeverityCritical, Duration: 60 * time.Second}
	evaluator := newTestEvaluator(t, RepeatEvery, rule)
	base := time.Unix(1700000000, 0)

	cases := []struct {
		offset time.Duration
		fires  bool
		state  State
	}{
		{offset: 0, fires: false, state: StateBreaching},
		{offset: 30 * time.Second, fires: false, state: StateBreaching},
		{offset: 60 * time.Second, fires: true, state: StateFiring},
		{offset: 90 * time.Second, fires: true, state: StateFiring},
	}
	for _, tc := range cases {
		fired := evaluator.Evaluate(cpuSnapshot(base.Add(tc.offset), 95))
		if got := len(fired) > 0; got != tc.fires {
			t.Fatalf("t=%v: fired=%v want %v", tc.offset, got, tc.fires)
		}
		if state, _ := evaluator.State(rule.Name); state != tc.state {
			t.Fatalf("t=%v: state=%s want %s", tc.offset, state, tc.state)
		}
	}

	active := evaluator.Active()
	if len(active) != 1 || active[0].Rule != rule.Name || !active[0].Since.Equal(base) {
		t.Fatalf("unexpected active list: %+v", active)
	}
}

// TestEvaluate_ResolutionResetsBreach verifies a false reading clears the breach time.
// Params: testing.T for assertions.
// Returns: none.
func TestEvaluate_ResolutionResetsBreach(t *testing.T) {
	rule := Rule{Name: "cpu critical", Field: "cpu_percent", Operator: OpGreaterEqual, Threshold: 95, Severity: SeverityCritical, Duration: 60 * time.Second}
	evaluator := newTestEvaluator(t, RepeatEvery, rule)
	base := time.Unix(1700000000, 0)

	evaluator.Evaluate(cpuSnapshot(base, 95))
	evaluator.Evaluate(cpuSnapshot(base.Add(30*time.Second), 95))
	if fired := evaluator.Evaluate(cpuSnapshot(base.Add(60*time.Second), 95)); len(fired) != 1 {
		t.Fatalf("expected firing at t=60")
	}

	evaluator.Evaluate(cpuSnapshot(base.Add(70*time.Second), 50))
	if state, _ := evaluator.State(rule.Name); state != StateIdle {
		t.Fatalf("expected idle after t=70, got %s", state)
	}
	if len(evaluator.Active()) != 0 {
		t.Fatalf("expected no active alerts")
	}

	if fired := evaluator.Evaluate(cpuSnapshot(base.Add(90*time.Second), 95)); len(fired) != 0 {
		t.Fatalf("breach must restart after resolution")
	}
	if fired := evaluator.Evaluate(cpuSnapshot(base.Add(149*time.Second), 95)); len(fired) != 0 {
		t.Fatalf("expected no alert before the new breach matures")
	}
	if fired := evaluator.Evaluate(cpuSnapshot(base.Add(150*time.Second), 95)); len(fired) != 1 {
		t.Fatalf("expected alert once the new breach matures")
	}
}

// TestEvaluate_RepeatOnce verifies edge-triggered emission.
// Params: testing.T for assertions.
// Returns: none.
func TestEvaluate_RepeatOnce(t *testing.T) {
	rule := Rule{Name: "cpu", Field: "cpu_percent", Operator: OpGreater, Threshold: 50, Severity: SeverityInfo}
	evaluator := newTestEvaluator(t, RepeatOnce, rule)
	base := time.Unix(1700000000, 0)

	var total int
	for idx, value := range []float64{60, 70, 80, 10, 60} {
		total += len(evaluator.Evaluate(cpuSnapshot(base.Add(time.Duration(idx)*time.Second), value)))
	}
	if total != 2 {
		t.Fatalf("expected two edge emissions, got %d", total)
	}
}

// TestEvaluate_MissingFieldSkipped verifies rules over absent groups keep their state.
// Params: testing.T for assertions.
// Returns: none.
func TestEvaluate_MissingFieldSkipped(t *testing.T) {
	rule := Rule{Name: "disk", Field: metrics.DiskPercentField, Operator: OpGreaterEqual, Threshold: 80, Severity: SeverityWarning}
	evaluator := newTestEvaluator(t, RepeatEvery, rule)
	base := time.Unix(1700000000, 0)

	withDisk := &metrics.Snapshot{
		Time:      base,
		DiskUsage: &metrics.DiskUsageStats{Partitions: []metrics.PartitionUsage{{Mountpoint: "/", Percent: 85}}},
	}
	if fired := evaluator.Evaluate(withDisk); len(fired) != 1 {
		t.Fatalf("expected disk alert")
	}

	if fired := evaluator.Evaluate(cpuSnapshot(base.Add(time.Second), 10)); len(fired) != 0 {
		t.Fatalf("rule over absent field must not fire")
	}
	if state, _ := evaluator.State(rule.Name); state != StateFiring {
		t.Fatalf("absent field must not resolve the rule, got %s", state)
	}
}

// TestEvaluate_LogsResolution verifies resolution is logged once.
// Params: testing.T for assertions.
// Returns: none.
func TestEvaluate_LogsResolution(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	rule := Rule{Name: "mem", Field: "memory_percent", Operator: OpGreaterEqual, Threshold: 85, Severity: SeverityWarning}
	evaluator, err := NewEvaluator([]Rule{rule}, RepeatEvery, logger)
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	base := time.Unix(1700000000, 0)

	evaluator.Evaluate(&metrics.Snapshot{Time: base, Memory: &metrics.MemoryStats{Percent: 90}})
	evaluator.Evaluate(&metrics.Snapshot{Time: base.Add(time.Second), Memory: &metrics.MemoryStats{Percent: 10}})
	evaluator.Evaluate(&metrics.Snapshot{Time: base.Add(2 * time.Second), Memory: &metrics.MemoryStats{Percent: 10}})

	if got := strings.Count(buf.String(), "alert resolved"); got != 1 {
		t.Fatalf("expected one resolution log, got %d: %s", got, buf.String())
	}
	if !strings.Contains(buf.String(), "alert fired") {
		t.Fatalf("expected fired log, got %s", buf.String())
	}
}

// TestNewEvaluator_Validation verifies rule and policy validation.
// Params: testing.T for assertions.
// Returns: none.
func TestNewEvaluator_Validation(t *testing.T) {
	valid := Rule{Name: "cpu", Field: "cpu_percent", Operator: OpGreater, Threshold: 1, Severity: SeverityInfo}

	if _, err := NewEvaluator([]Rule{valid, valid}, RepeatEvery, discardLogger()); err == nil {
		t.Fatalf("expected duplicate rule error")
	}
	if _, err := NewEvaluator([]Rule{valid}, "sometimes", discardLogger()); err == nil {
		t.Fatalf("expected repeat policy error")
	}
	evaluator, err := NewEvaluator(DefaultRules(), "", discardLogger())
	if err != nil {
		t.Fatalf("default rules must validate: %v", err)
	}
	if len(evaluator.Rules()) != 6 || evaluator.repeat != RepeatEvery {
		t.Fatalf("unexpected evaluator: %d rules, repeat=%s", len(evaluator.Rules()), evaluator.repeat)
	}
}
