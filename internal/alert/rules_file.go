package alert

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// rulesDocument is the YAML rule file layout.
type rulesDocument struct {
	Rules []rulesEntry `yaml:"rules"`
}

type rulesEntry struct {
	Name      string  `yaml:"name"`
	Field     string  `yaml:"field"`
	Operator  string  `yaml:"operator"`
	Threshold float64 `yaml:"threshold"`
	Severity  string  `yaml:"severity"`
	Duration  string  `yaml:"duration"`
}

// LoadRulesFile reads rules from a YAML file.
// Params: path YAML file with a top-level rules list.
// Returns: validated rules or read/parse/validation error.
func LoadRulesFile(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file %s: %w", path, err)
	}
	rules, err := ParseRules(raw)
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return rules, nil
}

// ParseRules decodes YAML rule definitions.
// Params: raw YAML bytes.
// Returns: validated rules; severity defaults to warning and duration to zero.
func ParseRules(raw []byte) ([]Rule, error) {
	var doc rulesDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	out := make([]Rule, 0, len(doc.Rules))
	for idx, entry := range doc.Rules {
		var duration time.Duration
		if text := strings.TrimSpace(entry.Duration); text != "" {
			parsed, err := time.ParseDuration(text)
			if err != nil {
				return nil, &ValidationError{Rule: entry.Name, Field: fmt.Sprintf("rules[%d].duration", idx), Reason: err.Error()}
			}
			duration = parsed
		}

		severity := strings.ToLower(strings.TrimSpace(entry.Severity))
		if severity == "" {
			severity = string(SeverityWarning)
		}

		rule := Rule{
			Name:      strings.TrimSpace(entry.Name),
			Field:     strings.TrimSpace(entry.Field),
			Operator:  Operator(strings.TrimSpace(entry.Operator)),
			Threshold: entry.Threshold,
			Severity:  Severity(severity),
			Duration:  duration,
		}
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}
