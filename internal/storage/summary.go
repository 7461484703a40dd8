package storage

import (
	"sort"
	"strings"
	"sync"
)

var summarySortBufferPool = sync.Pool{
	New: func() any {
		return make([]float64, 0, 64)
	},
}

// Summary aggregates one series over a window.
// Tags hold the partition identity for disk_usage and are empty otherwise.
type Summary struct {
	Field string            `json:"field"`
	Tags  map[string]string `json:"tags,omitempty"`
	Count int               `json:"count"`
	Avg   float64           `json:"avg"`
	Min   float64           `json:"min"`
	Max   float64           `json:"max"`
	P95   float64           `json:"p95"`
}

type seriesBucket struct {
	field  string
	tags   map[string]string
	values []float64
}

// Summarize groups points by field and series tags and computes count/avg/min/max/p95.
// Params: points query result.
// Returns: summaries sorted by field, then by series tags.
func Summarize(points []Point) []Summary {
	buckets := make(map[string]*seriesBucket)
	for _, point := range points {
		tags := seriesTags(point.Tags)
		key := seriesKey(point.Field, tags)
		bucket, ok := buckets[key]
		if !ok {
			bucket = &seriesBucket{field: point.Field, tags: tags}
			buckets[key] = bucket
		}
		bucket.values = append(bucket.values, point.Value)
	}

	out := make([]Summary, 0, len(buckets))
	for _, bucket := range buckets {
		summary := summarizeSeries(bucket.field, bucket.values)
		summary.Tags = bucket.tags
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Field != out[j].Field {
			return out[i].Field < out[j].Field
		}
		return seriesKey("", out[i].Tags) < seriesKey("", out[j].Tags)
	})
	return out
}

// seriesTags keeps only the tags that split a measurement into series.
// Params: tags point tags.
// Returns: identity tags, nil when none are set.
func seriesTags(tags map[string]string) map[string]string {
	var out map[string]string
	for _, key := range seriesTagKeys {
		value, ok := tags[key]
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(seriesTagKeys))
		}
		out[key] = value
	}
	return out
}

// seriesKey renders a stable grouping key.
// Params: field name; tags identity tags.
// Returns: key ordered like seriesTagKeys.
func seriesKey(field string, tags map[string]string) string {
	var b strings.Builder
	b.WriteString(field)
	for _, key := range seriesTagKeys {
		b.WriteByte(0)
		b.WriteString(tags[key])
	}
	return b.String()
}

// summarizeSeries aggregates one non-empty series.
// Params: field name; series raw values in arrival order.
// Returns: field summary.
func summarizeSeries(field string, series []float64) Summary {
	sorted := borrowSortBuffer(len(series))
	copy(sorted, series)
	sort.Float64s(sorted)
	defer releaseSortBuffer(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return Summary{
		Field: field,
		Count: len(sorted),
		Avg:   sum / float64(len(sorted)),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		P95:   indexPercentile(sorted, 0.95),
	}
}

// indexPercentile picks the sorted value at index int(len*q), clamped to the last element.
// Params: sortedValues ascending samples; q quantile in 0..1.
// Returns: percentile value.
func indexPercentile(sortedValues []float64, q float64) float64 {
	idx := int(float64(len(sortedValues)) * q)
	if idx >= len(sortedValues) {
		idx = len(sortedValues) - 1
	}
	return sortedValues[idx]
}

// borrowSortBuffer returns reusable float buffer for percentile sorting.
// Params: required size.
// Returns: slice with requested length.
func borrowSortBuffer(size int) []float64 {
	buffer := summarySortBufferPool.Get().([]float64)
	if cap(buffer) < size {
		return make([]float64, size)
	}
	return buffer[:size]
}

// releaseSortBuffer returns float buffer into pool with capacity guard.
// Params: buffer previously borrowed for sorting.
// Returns: none.
func releaseSortBuffer(buffer []float64) {
	const maxPooledCapacity = 1 << 16
	if cap(buffer) > maxPooledCapacity {
		return
	}
	summarySortBufferPool.Put(buffer[:0])
}
