package api

import (
	"fmt"
	"io"
	"sort"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"hostmon/internal/alert"
	"hostmon/internal/metrics"
	"hostmon/internal/pipeline"
)

const metricPrefix = "hostmon_"

// exposition accumulates metric families keyed by name.
type exposition struct {
	host     string
	families map[string]*dto.MetricFamily
}

func newExposition(host string) *exposition {
	return &exposition{host: host, families: make(map[string]*dto.MetricFamily)}
}

// add appends one sample to the named family.
// Params: name without prefix; help text; kind gauge or counter; value; extra label pairs (key, value, ...).
// Returns: none.
func (e *exposition) add(name, help string, kind dto.MetricType, value float64, labels ...string) {
	fullName := metricPrefix + sanitizeMetricName(name)
	family, ok := e.families[fullName]
	if !ok {
		family = &dto.MetricFamily{
			Name: proto.String(fullName),
			Help: proto.String(help),
			Type: kind.Enum(),
		}
		e.families[fullName] = family
	}

	pairs := make([]*dto.LabelPair, 0, 1+len(labels)/2)
	if e.host != "" {
		pairs = append(pairs, &dto.LabelPair{Name: proto.String("host"), Value: proto.String(e.host)})
	}
	for idx := 0; idx+1 < len(labels); idx += 2 {
		pairs = append(pairs, &dto.LabelPair{Name: proto.String(labels[idx]), Value: proto.String(labels[idx+1])})
	}

	metric := &dto.Metric{Label: pairs}
	if kind == dto.MetricType_COUNTER {
		metric.Counter = &dto.Counter{Value: proto.Float64(value)}
	} else {
		metric.Gauge = &dto.Gauge{Value: proto.Float64(value)}
	}
	family.Metric = append(family.Metric, metric)
}

// addSnapshot renders the latest snapshot as gauges.
// Params: snap latest snapshot; nil renders nothing.
// Returns: none.
func (e *exposition) addSnapshot(snap *metrics.Snapshot) {
	if snap == nil {
		return
	}

	for _, group := range snap.Groups() {
		if group == metrics.GroupDiskUsage {
			continue
		}
		for _, field := range snap.GroupFields(group) {
			if core, ok := strings.CutPrefix(field.Name, "cpu_percent_per_core_core"); ok {
				e.add("cpu_percent_per_core", "Per-core CPU utilization percent.", dto.MetricType_GAUGE, field.Value, "core", core)
				continue
			}
			e.add(field.Name, "Host metric "+field.Name+" from group "+string(group)+".", dto.MetricType_GAUGE, field.Value)
		}
	}

	if snap.DiskUsage != nil {
		for _, part := range snap.DiskUsage.Partitions {
			for _, field := range part.Fields() {
				e.add("disk_usage_"+field.Name, "Filesystem "+field.Name+" per partition.", dto.MetricType_GAUGE, field.Value,
					"device", part.Device,
					"mountpoint", part.Mountpoint,
					"fstype", part.Fstype,
				)
			}
		}
	}

	e.add("snapshot_timestamp_seconds", "Unix time of the latest collected snapshot.", dto.MetricType_GAUGE,
		float64(snap.Time.UnixNano())/1e9)
}

// addStats renders loop counters.
// Params: stats loop counters.
// Returns: none.
func (e *exposition) addStats(stats pipeline.Stats) {
	up := 0.0
	if stats.State == pipeline.StateRunning.String() {
		up = 1
	}
	e.add("collector_up", "Whether the collection loop is running.", dto.MetricType_GAUGE, up, "mode", string(stats.Mode))
	e.add("collector_ticks_total", "Collection passes started.", dto.MetricType_COUNTER, float64(stats.Ticks))
	e.add("collector_collected_total", "Snapshots collected.", dto.MetricType_COUNTER, float64(stats.Collected))
	e.add("collector_failures_total", "Passes that produced no snapshot or failed to write.", dto.MetricType_COUNTER, float64(stats.Failures))
}

// addAlerts renders one gauge per breaching or firing rule.
// Params: active rules from the evaluator.
// Returns: none.
func (e *exposition) addAlerts(active []alert.Active) {
	e.add("alerts_active", "Rules currently breaching or firing.", dto.MetricType_GAUGE, float64(len(active)))
	for _, item := range active {
		e.add("alert_state", "Active alert rule; value is the last observed field value.", dto.MetricType_GAUGE, item.Value,
			"rule", item.Rule,
			"field", item.Field,
			"severity", string(item.Severity),
			"state", string(item.State),
		)
	}
}

// write encodes families sorted by name in text exposition format.
// Params: w destination writer.
// Returns: encoding error.
func (e *exposition) write(w io.Writer) error {
	names := make([]string, 0, len(e.families))
	for name := range e.families {
		names = append(names, name)
	}
	sort.Strings(names)

	encoder := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, name := range names {
		if err := encoder.Encode(e.families[name]); err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
	}
	return nil
}

// contentType is the exposition content type header value.
func contentType() string {
	return string(expfmt.NewFormat(expfmt.TypeTextPlain))
}

// sanitizeMetricName maps a field name onto the legacy metric name charset.
// Params: raw field name.
// Returns: name containing only [a-zA-Z0-9_:].
func sanitizeMetricName(raw string) string {
	var builder strings.Builder
	builder.Grow(len(raw))
	for idx, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == ':':
			builder.WriteRune(r)
		case r >= '0' && r <= '9' && idx > 0:
			builder.WriteRune(r)
		default:
			builder.WriteByte('_')
		}
	}
	return builder.String()
}
