package alert

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"hostmon/internal/config"
	"hostmon/internal/metrics"
)

// State is the per-rule lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateBreaching State = "breaching"
	StateFiring    State = "firing"
)

// Repeat selects how often a firing rule emits.
type Repeat string

const (
	// RepeatEvery emits on every evaluation while the rule fires.
	RepeatEvery Repeat = config.RepeatEvery
	// RepeatOnce emits only on the transition into firing.
	RepeatOnce Repeat = config.RepeatOnce
)

// Fired is one emitted alert.
type Fired struct {
	ID        string    `json:"id"`
	Rule      string    `json:"rule"`
	Field     string    `json:"field"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// Active describes a rule that is currently breaching or firing.
type Active struct {
	Rule      string    `json:"rule"`
	Field     string    `json:"field"`
	Severity  Severity  `json:"severity"`
	State     State     `json:"state"`
	Threshold float64   `json:"threshold"`
	Value     float64   `json:"value"`
	Since     time.Time `json:"since"`
}

type ruleState struct {
	state  State
	breach time.Time
	value  float64
}

// Evaluator tracks rule states across snapshots.
// Params: ordered rules, repeat policy, logger.
// Returns: stateful evaluator; Evaluate is called from one goroutine, Active from any.
type Evaluator struct {
	rules  []Rule
	repeat Repeat
	logger *slog.Logger
	newID  func() string

	mu     sync.RWMutex
	states map[string]*ruleState
}

// NewEvaluator validates rules and builds an evaluator with all rules idle.
// Params: rules rule list; repeat emit policy (empty means every); logger output.
// Returns: evaluator or validation error.
func NewEvaluator(rules []Rule, repeat Repeat, logger *slog.Logger) (*Evaluator, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	switch repeat {
	case "":
		repeat = RepeatEvery
	case RepeatEvery, RepeatOnce:
	default:
		return nil, fmt.Errorf("unsupported repeat policy %q", repeat)
	}

	states := make(map[string]*ruleState, len(rules))
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		if _, exists := states[rule.Name]; exists {
			return nil, &ValidationError{Rule: rule.Name, Field: "name", Reason: "duplicated"}
		}
		states[rule.Name] = &ruleState{state: StateIdle}
	}

	logger.Info("alert rules loaded", slog.Int("rules", len(rules)), slog.String("repeat", string(repeat)))

	return &Evaluator{
		rules:  append([]Rule(nil), rules...),
		repeat: repeat,
		logger: logger,
		newID:  uuid.NewString,
		states: states,
	}, nil
}

// Rules returns configured rules.
// Params: none.
// Returns: rule copy.
func (e *Evaluator) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Evaluate advances every rule against one snapshot.
// Rules whose field is absent keep their state.
// Params: snap collected snapshot; its timestamp is the evaluation time.
// Returns: alerts emitted by this evaluation in rule order.
func (e *Evaluator) Evaluate(snap *metrics.Snapshot) []Fired {
	if snap == nil {
		return nil
	}
	values := snap.Flatten()
	now := snap.Time

	e.mu.Lock()
	defer e.mu.Unlock()

	var fired []Fired
	for _, rule := range e.rules {
		value, ok := values[rule.Field]
		if !ok {
			continue
		}
		st := e.states[rule.Name]
		st.value = value

		if !rule.Check(value) {
			if st.state != StateIdle {
				e.logger.Info(
					"alert resolved",
					slog.String("rule", rule.Name),
					slog.String("field", rule.Field),
					slog.Float64("value", value),
				)
			}
			st.state = StateIdle
			st.breach = time.Time{}
			continue
		}

		previous := st.state
		if rule.Duration <= 0 {
			if previous == StateIdle {
				st.breach = now
			}
			st.state = StateFiring
		} else {
			if previous == StateIdle {
				st.state = StateBreaching
				st.breach = now
				e.logger.Debug(
					"alert breaching, waiting for duration",
					slog.String("rule", rule.Name),
					slog.Duration("duration", rule.Duration),
				)
				continue
			}
			if now.Sub(st.breach) < rule.Duration {
				continue
			}
			st.state = StateFiring
		}

		if e.repeat == RepeatOnce && previous == StateFiring {
			continue
		}

		alert := Fired{
			ID:        e.newID(),
			Rule:      rule.Name,
			Field:     rule.Field,
			Value:     value,
			Threshold: rule.Threshold,
			Severity:  rule.Severity,
			Timestamp: now,
		}
		fired = append(fired, alert)
		e.logger.Warn(
			"alert fired",
			slog.String("rule", rule.Name),
			slog.String("severity", string(rule.Severity)),
			slog.Float64("value", value),
			slog.Float64("threshold", rule.Threshold),
		)
	}
	return fired
}

// State returns the current state of one rule.
// Params: name rule name.
// Returns: state and false for unknown rules.
func (e *Evaluator) State(name string) (State, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st, ok := e.states[name]
	if !ok {
		return "", false
	}
	return st.state, true
}

// Active lists rules currently breaching or firing.
// Params: none.
// Returns: active rules in configuration order.
func (e *Evaluator) Active() []Active {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Active, 0)
	for _, rule := range e.rules {
		st := e.states[rule.Name]
		if st.state == StateIdle {
			continue
		}
		out = append(out, Active{
			Rule:      rule.Name,
			Field:     rule.Field,
			Severity:  rule.Severity,
			State:     st.state,
			Threshold: rule.Threshold,
			Value:     st.value,
			Since:     st.breach,
		})
	}
	return out
}
