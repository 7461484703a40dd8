package alert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"hostmon/internal/config"
	"hostmon/internal/metrics"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []Fired
	err    error
}

func (n *recordingNotifier) Send(_ context.Context, alert Fired) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

type panickingNotifier struct{}

func (panickingNotifier) Send(context.Context, Fired) error {
	panic("smtp exploded")
}

// TestWatcher_DispatchesToAllNotifiers verifies fan-out with failing and panicking targets.
// Params: testing.T for assertions.
// Returns: none.
func TestWatcher_DispatchesToAllNotifiers(t *testing.T) {
	rule := Rule{Name: "cpu", Field: "cpu_percent", Operator: OpGreaterEqual, Threshold: 80, Severity: SeverityWarning}
	evaluator := newTestEvaluator(t, RepeatEvery, rule)

	healthy := &recordingNotifier{}
	failing := &recordingNotifier{err: errors.New("notifier down")}
	watcher := NewWatcher(evaluator, discardLogger(), healthy, nil, failing, panickingNotifier{})

	base := time.Unix(1700000000, 0)
	watcher.Observe(context.Background(), cpuSnapshot(base, 90))
	watcher.Observe(context.Background(), cpuSnapshot(base.Add(time.Second), 10))
	watcher.Observe(context.Background(), cpuSnapshot(base.Add(2*time.Second), 99))
	watcher.Wait()

	if healthy.count() != 2 || failing.count() != 2 {
		t.Fatalf("expected two deliveries each, got %d and %d", healthy.count(), failing.count())
	}
	if len(watcher.Active()) != 1 {
		t.Fatalf("expected one active rule")
	}
}

// TestParseRules verifies YAML decoding, defaults and validation.
// Params: testing.T for assertions.
// Returns: none.
func TestParseRules(t *testing.T) {
	raw := []byte(`
rules:
  - name: swap pressure
    field: swap_percent
    operator: ">"
    threshold: 50
    duration: 2m
  - name: too many connections
    field: network_conn_established
    operator: ">="
    threshold: 1000
    severity: CRITICAL
`)
	rules, err := ParseRules(raw)
	if err != nil {
		t.Fatalf("ParseRules() error: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	if rules[0].Duration != 2*time.Minute || rules[0].Severity != SeverityWarning {
		t.Fatalf("unexpected first rule: %+v", rules[0])
	}
	if rules[1].Severity != SeverityCritical || rules[1].Operator != OpGreaterEqual {
		t.Fatalf("unexpected second rule: %+v", rules[1])
	}

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{name: "unknown field", raw: "rules:\n  - name: x\n    field: gpu_percent\n    operator: '>'\n", want: "unknown metric"},
		{name: "bad operator", raw: "rules:\n  - name: x\n    field: cpu_percent\n    operator: '!='\n", want: "operator"},
		{name: "bad duration", raw: "rules:\n  - name: x\n    field: cpu_percent\n    operator: '>'\n    duration: soon\n", want: "duration"},
		{name: "bad yaml", raw: "rules: [", want: "parse yaml"},
	}
	for _, tc := range cases {
		_, err := ParseRules([]byte(tc.raw))
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
}

// TestLoadRules_MergesSources verifies defaults, file and inline overlay by name.
// Params: testing.T for assertions.
// Returns: none.
func TestLoadRules_MergesSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	body := "rules:\n  - name: CPU Critical\n    field: cpu_percent\n    operator: '>='\n    threshold: 97\n    severity: critical\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	rules, err := LoadRules(config.AlertConfig{
		RulesFile: path,
		Rule: []config.AlertRuleConfig{
			{Name: "Load", Field: "cpu_percent", Operator: ">", Threshold: 1, Severity: "info"},
		},
	})
	if err != nil {
		t.Fatalf("LoadRules() error: %v", err)
	}
	if len(rules) != 7 {
		t.Fatalf("expected 7 rules, got %d", len(rules))
	}
	if rules[1].Name != "CPU Critical" || rules[1].Threshold != 97 || rules[1].Duration != 0 {
		t.Fatalf("file rule must replace default in place: %+v", rules[1])
	}
	if rules[6].Name != "Load" {
		t.Fatalf("inline rule must be appended: %+v", rules[6])
	}

	disabled := false
	rules, err = LoadRules(config.AlertConfig{UseDefaults: &disabled})
	if err != nil || len(rules) != 0 {
		t.Fatalf("expected no rules with defaults disabled, got %d (%v)", len(rules), err)
	}
}

// TestRule_Check covers every operator.
// Params: testing.T for assertions.
// Returns: none.
func TestRule_Check(t *testing.T) {
	cases := []struct {
		op    Operator
		value float64
		want  bool
	}{
		{op: OpGreater, value: 10, want: false},
		{op: OpGreater, value: 11, want: true},
		{op: OpGreaterEqual, value: 10, want: true},
		{op: OpLess, value: 9, want: true},
		{op: OpLessEqual, value: 10, want: true},
		{op: OpLessEqual, value: 11, want: false},
		{op: OpEqual, value: 10, want: true},
		{op: Operator("!="), value: 1, want: false},
	}
	for _, tc := range cases {
		rule := Rule{Operator: tc.op, Threshold: 10}
		if got := rule.Check(tc.value); got != tc.want {
			t.Fatalf("%s %.0f: got %v want %v", tc.op, tc.value, got, tc.want)
		}
	}

	if err := (Rule{Name: "x", Field: "cpu_percent", Operator: OpGreater, Severity: "page"}).Validate(); err == nil {
		t.Fatalf("expected severity validation error")
	}
	var snap *metrics.Snapshot
	if got := newTestEvaluator(t, RepeatEvery).Evaluate(snap); got != nil {
		t.Fatalf("nil snapshot must yield nothing")
	}
}
