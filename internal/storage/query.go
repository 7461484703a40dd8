package storage

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"hostmon/internal/metrics"
)

// QueryRequest selects points of one measurement in [Start, End).
type QueryRequest struct {
	Measurement string
	Start       time.Time
	End         time.Time
	Fields      []string
	Tags        map[string]string
}

// Point is one field value at one instant.
type Point struct {
	Time        time.Time         `json:"time"`
	Measurement string            `json:"measurement"`
	Field       string            `json:"field"`
	Value       float64           `json:"value"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// Querier reads stored points.
// Params: ctx request context; req validated query.
// Returns: points ordered by time then field.
type Querier interface {
	Query(ctx context.Context, req QueryRequest) ([]Point, error)
}

// ValidationError reports malformed query parameters.
type ValidationError struct {
	Param  string
	Reason string
}

// Error formats query validation failure.
// Params: none.
// Returns: error message.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Reason)
}

// Validate checks the measurement name and time window.
// Params: none.
// Returns: *ValidationError or nil.
func (r QueryRequest) Validate() error {
	if !slices.Contains(metrics.AllGroups, metrics.Group(r.Measurement)) {
		return &ValidationError{Param: "measurement", Reason: fmt.Sprintf("unknown measurement %q", r.Measurement)}
	}
	if r.Start.IsZero() || r.End.IsZero() {
		return &ValidationError{Param: "range", Reason: "start and end are required"}
	}
	if !r.Start.Before(r.End) {
		return &ValidationError{Param: "range", Reason: "start must be before end"}
	}
	for _, field := range r.Fields {
		if strings.TrimSpace(field) == "" {
			return &ValidationError{Param: "fields", Reason: "field name cannot be empty"}
		}
	}
	return nil
}

// ParseTime resolves a query time expression.
// Accepted forms: now(), a negative relative offset (-30s, -15m, -1h, -7d, -2w) and RFC3339.
// Params: expr raw expression; param name used in errors; now reference instant.
// Returns: absolute UTC time or *ValidationError.
func ParseTime(expr string, param string, now time.Time) (time.Time, error) {
	expr = strings.TrimSpace(expr)
	switch {
	case expr == "" || expr == "now()" || expr == "now":
		return now.UTC(), nil
	case strings.HasPrefix(expr, "-"):
		offset, err := parseOffset(expr[1:])
		if err != nil {
			return time.Time{}, &ValidationError{Param: param, Reason: err.Error()}
		}
		return now.Add(-offset).UTC(), nil
	default:
		parsed, err := time.Parse(time.RFC3339, expr)
		if err != nil {
			return time.Time{}, &ValidationError{Param: param, Reason: fmt.Sprintf("expected now(), -<duration> or RFC3339, got %q", expr)}
		}
		return parsed.UTC(), nil
	}
}

// ParseRange resolves start/end expressions into a window.
// Params: start and end expressions; empty end means now(); now reference instant.
// Returns: absolute window or *ValidationError.
func ParseRange(start string, end string, now time.Time) (time.Time, time.Time, error) {
	from, err := ParseTime(start, "start", now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := ParseTime(end, "end", now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, &ValidationError{Param: "range", Reason: "start must be before end"}
	}
	return from, to, nil
}

// parseOffset parses Go durations plus day and week suffixes.
// Params: text positive offset.
// Returns: duration or parse error.
func parseOffset(text string) (time.Duration, error) {
	for suffix, unit := range map[string]time.Duration{"d": 24 * time.Hour, "w": 7 * 24 * time.Hour} {
		if number, ok := strings.CutSuffix(text, suffix); ok {
			count, err := strconv.Atoi(number)
			if err != nil || count <= 0 {
				return 0, fmt.Errorf("invalid relative offset %q", "-"+text)
			}
			return time.Duration(count) * unit, nil
		}
	}
	offset, err := time.ParseDuration(text)
	if err != nil || offset <= 0 {
		return 0, fmt.Errorf("invalid relative offset %q", "-"+text)
	}
	return offset, nil
}

// sortPoints orders points by time, then field name.
// Params: points slice sorted in place.
// Returns: none.
func sortPoints(points []Point) {
	slices.SortStableFunc(points, func(a, b Point) int {
		if cmp := a.Time.Compare(b.Time); cmp != 0 {
			return cmp
		}
		if cmp := strings.Compare(a.Field, b.Field); cmp != 0 {
			return cmp
		}
		for _, key := range seriesTagKeys {
			if cmp := strings.Compare(a.Tags[key], b.Tags[key]); cmp != 0 {
				return cmp
			}
		}
		return 0
	})
}

// matchTags reports whether have contains every pair of want.
// Params: have record tags; want filter.
// Returns: true on match.
func matchTags(have map[string]string, want map[string]string) bool {
	for key, value := range want {
		if have[key] != value {
			return false
		}
	}
	return true
}
