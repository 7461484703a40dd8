package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"hostmon/internal/config"
	"hostmon/internal/logging"
	"hostmon/internal/storage"
)

type queryOptions struct {
	metric  string
	start   string
	end     string
	fields  []string
	summary bool
	asJSON  bool
}

// newQueryCommand prints stored history of one measurement.
// Params: root shared root flags.
// Returns: query command.
func newQueryCommand(root *rootOptions) *cobra.Command {
	opts := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print stored metric history",
		Example: `  hostmon query --metric cpu --start -1h --fields cpu_percent
  hostmon query --metric disk_usage --start 2024-05-01T10:00:00Z --summary`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), cmd.OutOrStdout(), root.configPath, opts, time.Now())
		},
	}

	cmd.Flags().StringVarP(&opts.metric, "metric", "m", "", "measurement (cpu, memory, disk_io, disk_usage, network_io, network_connections)")
	cmd.Flags().StringVar(&opts.start, "start", "-1h", "range start: now(), -<duration> or RFC3339")
	cmd.Flags().StringVar(&opts.end, "end", "now()", "range end (exclusive)")
	cmd.Flags().StringSliceVarP(&opts.fields, "fields", "f", nil, "field names to select (default: all)")
	cmd.Flags().BoolVar(&opts.summary, "summary", false, "print count/avg/min/max/p95 per field instead of points")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("metric")
	return cmd
}

// runQuery opens the configured store and prints the result.
// Params: ctx lifecycle; out destination; configPath config source; opts query flags; now reference time.
// Returns: load, connect, validation or query error.
func runQuery(ctx context.Context, out io.Writer, configPath string, opts *queryOptions, now time.Time) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, closeLogger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLogger()

	start, end, err := storage.ParseRange(opts.start, opts.end, now)
	if err != nil {
		return err
	}
	req := storage.QueryRequest{
		Measurement: strings.TrimSpace(opts.metric),
		Start:       start,
		End:         end,
		Fields:      opts.fields,
	}
	if err := req.Validate(); err != nil {
		return err
	}

	store, err := storage.Open(ctx, cfg.Storage, storage.Tags(cfg.Global), logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	points, err := store.Query(ctx, req)
	if err != nil {
		return fmt.Errorf("query %s: %w", req.Measurement, err)
	}

	if opts.summary {
		return printSummaries(out, storage.Summarize(points), opts.asJSON)
	}
	return printPoints(out, points, opts.asJSON)
}

// printPoints writes points as a table or JSON array.
// Params: out destination; points query result; asJSON output mode.
// Returns: write error.
func printPoints(out io.Writer, points []storage.Point, asJSON bool) error {
	if asJSON {
		if points == nil {
			points = []storage.Point{}
		}
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(points)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tFIELD\tVALUE\tTAGS")
	for _, point := range points {
		fmt.Fprintf(tw, "%s\t%s\t%g\t%s\n", point.Time.UTC().Format(time.RFC3339), point.Field, point.Value, formatTags(point.Tags))
	}
	return tw.Flush()
}

// printSummaries writes per-series aggregates.
// Params: out destination; summaries aggregates; asJSON output mode.
// Returns: write error.
func printSummaries(out io.Writer, summaries []storage.Summary, asJSON bool) error {
	if asJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(summaries)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tCOUNT\tAVG\tMIN\tMAX\tP95\tTAGS")
	for _, summary := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%g\t%g\t%g\t%s\n", summary.Field, summary.Count, summary.Avg, summary.Min, summary.Max, summary.P95, formatTags(summary.Tags))
	}
	return tw.Flush()
}

// formatTags renders tags as sorted key=value pairs; host is omitted.
func formatTags(tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for key := range tags {
		if key != "host" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return "-"
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+tags[key])
	}
	return strings.Join(parts, ",")
}
