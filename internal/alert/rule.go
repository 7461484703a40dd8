package alert

import (
	"fmt"
	"strings"
	"time"

	"hostmon/internal/config"
	"hostmon/internal/metrics"
)

// Operator compares an observed value to a threshold.
type Operator string

const (
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
)

// Severity labels a rule.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rule is one threshold condition over a flattened snapshot field.
// Params: name identity, field flattened metric name, comparison, severity and sustain duration.
// Returns: evaluable rule.
type Rule struct {
	Name      string        `json:"name"`
	Field     string        `json:"field"`
	Operator  Operator      `json:"operator"`
	Threshold float64       `json:"threshold"`
	Severity  Severity      `json:"severity"`
	Duration  time.Duration `json:"duration"`
}

// ValidationError reports a malformed rule.
type ValidationError struct {
	Rule   string
	Field  string
	Reason string
}

// Error formats rule validation failure.
// Params: none.
// Returns: error message.
func (e *ValidationError) Error() string {
	if e.Rule == "" {
		return fmt.Sprintf("alert rule: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("alert rule %q: %s: %s", e.Rule, e.Field, e.Reason)
}

// Validate checks rule shape against known fields, operators and severities.
// Params: none.
// Returns: *ValidationError or nil.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return &ValidationError{Field: "name", Reason: "cannot be empty"}
	}
	if !metrics.IsKnownField(r.Field) {
		return &ValidationError{Rule: r.Name, Field: "field", Reason: fmt.Sprintf("unknown metric %q", r.Field)}
	}
	switch r.Operator {
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual, OpEqual:
	default:
		return &ValidationError{Rule: r.Name, Field: "operator", Reason: fmt.Sprintf("unsupported operator %q", r.Operator)}
	}
	switch r.Severity {
	case SeverityInfo, SeverityWarning, SeverityCritical:
	default:
		return &ValidationError{Rule: r.Name, Field: "severity", Reason: fmt.Sprintf("unsupported severity %q", r.Severity)}
	}
	if r.Duration < 0 {
		return &ValidationError{Rule: r.Name, Field: "duration", Reason: "cannot be negative"}
	}
	return nil
}

// Check applies the comparison.
// Params: value observed field value.
// Returns: true when the condition holds.
func (r Rule) Check(value float64) bool {
	switch r.Operator {
	case OpGreater:
		return value > r.Threshold
	case OpGreaterEqual:
		return value >= r.Threshold
	case OpLess:
		return value < r.Threshold
	case OpLessEqual:
		return value <= r.Threshold
	case OpEqual:
		return value == r.Threshold
	default:
		return false
	}
}

// DefaultRules returns the built-in rule set.
// Params: none.
// Returns: six cpu/memory/disk threshold rules.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "CPU High Warning", Field: "cpu_percent", Operator: OpGreaterEqual, Threshold: 80, Severity: SeverityWarning, Duration: 300 * time.Second},
		{Name: "CPU Critical", Field: "cpu_percent", Operator: OpGreaterEqual, Threshold: 95, Severity: SeverityCritical, Duration: 60 * time.Second},
		{Name: "Memory High Warning", Field: "memory_percent", Operator: OpGreaterEqual, Threshold: 85, Severity: SeverityWarning},
		{Name: "Memory Critical", Field: "memory_percent", Operator: OpGreaterEqual, Threshold: 95, Severity: SeverityCritical},
		{Name: "Disk High Warning", Field: metrics.DiskPercentField, Operator: OpGreaterEqual, Threshold: 80, Severity: SeverityWarning},
		{Name: "Disk Critical", Field: metrics.DiskPercentField, Operator: OpGreaterEqual, Threshold: 90, Severity: SeverityCritical},
	}
}

// RulesFromConfig converts inline config rules.
// Params: items raw rule definitions.
// Returns: validated rules or first validation error.
func RulesFromConfig(items []config.AlertRuleConfig) ([]Rule, error) {
	out := make([]Rule, 0, len(items))
	for _, item := range items {
		rule := Rule{
			Name:      strings.TrimSpace(item.Name),
			Field:     strings.TrimSpace(item.Field),
			Operator:  Operator(strings.TrimSpace(item.Operator)),
			Threshold: item.Threshold,
			Severity:  Severity(strings.ToLower(strings.TrimSpace(item.Severity))),
			Duration:  item.Duration.Duration,
		}
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// MergeRules overlays named rules; a later rule replaces an earlier one with the same name.
// Params: sets ordered rule lists.
// Returns: merged rules in first-seen order.
func MergeRules(sets ...[]Rule) []Rule {
	index := make(map[string]int)
	var out []Rule
	for _, set := range sets {
		for _, rule := range set {
			if idx, ok := index[rule.Name]; ok {
				out[idx] = rule
				continue
			}
			index[rule.Name] = len(out)
			out = append(out, rule)
		}
	}
	return out
}

// LoadRules assembles the effective rule set: defaults, then rules_file, then inline rules.
// Params: cfg alert section.
// Returns: merged validated rules or load error.
func LoadRules(cfg config.AlertConfig) ([]Rule, error) {
	var sets [][]Rule
	if cfg.DefaultsEnabled() {
		sets = append(sets, DefaultRules())
	}
	if path := strings.TrimSpace(cfg.RulesFile); path != "" {
		fromFile, err := LoadRulesFile(path)
		if err != nil {
			return nil, err
		}
		sets = append(sets, fromFile)
	}
	inline, err := RulesFromConfig(cfg.Rule)
	if err != nil {
		return nil, err
	}
	sets = append(sets, inline)
	return MergeRules(sets...), nil
}
