package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultLogLevel         = "info"
	defaultLogFormat        = "line"
	defaultInterval         = time.Second
	defaultSlowThreshold    = 100 * time.Millisecond
	defaultProbeTimeout     = 5 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultReportEvery      = 10
	defaultMediumTier       = 5 * time.Second
	defaultSlowTier         = 30 * time.Second
	defaultStorageDriver    = DriverInfluxDB
	defaultInfluxURL        = "http://localhost:8086"
	defaultInfluxOrg        = "my-org"
	defaultInfluxBucket     = "system-metrics"
	defaultSQLitePath       = "hostmon.db"
	defaultStorageTimeout   = 5 * time.Second
	defaultConnectAttempts  = 3
	defaultConnectBackoff   = time.Second
	defaultAlertRepeat      = RepeatEvery
	defaultAPIListen        = "127.0.0.1:8000"
	defaultAPICacheTTL      = 10 * time.Second
	defaultAPIHistoryStart  = "-1h"
	defaultGRPCListen       = "127.0.0.1:9090"
	defaultValkeyStream     = "hostmon:snapshots"
	defaultValkeyMaxLen     = 10000
	defaultForwardTimeout   = 5 * time.Second
	defaultForwardMethod    = "/hostmon.v1.SnapshotIngest/Push"
	defaultPprofListen      = "127.0.0.1:6060"
	defaultDisabledFstypes  = "squashfs"
	defaultDisabledMountDir = "/snap/*"
)

// Storage drivers.
const (
	DriverInfluxDB = "influxdb"
	DriverSQLite   = "sqlite"
)

// Alert repeat policies.
const (
	RepeatEvery = "every"
	RepeatOnce  = "once"
)

// Duration wraps time.Duration for TOML parsing.
// Params: text duration string (e.g. "5s", "1m").
// Returns: parse error on invalid duration.
type Duration struct {
	time.Duration
}

// UnmarshalText parses TOML duration values.
// Params: text is raw duration bytes from TOML.
// Returns: error when value is not a valid Go duration.
func (d *Duration) UnmarshalText(text []byte) error {
	value := strings.TrimSpace(string(text))
	if value == "" {
		d.Duration = 0
		return nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value, err)
	}

	d.Duration = parsed
	return nil
}

// Config represents the root hostmon configuration.
// Params: TOML document sections.
// Returns: validated runtime configuration.
type Config struct {
	Global    GlobalConfig    `toml:"global"`
	Log       LogConfig       `toml:"log"`
	Pprof     PprofConfig     `toml:"pprof"`
	Collector CollectorConfig `toml:"collector"`
	Storage   StorageConfig   `toml:"storage"`
	Alert     AlertConfig     `toml:"alert"`
	API       APIConfig       `toml:"api"`
	GRPC      GRPCConfig      `toml:"grpc"`
	Valkey    ValkeyConfig    `toml:"valkey"`
	Forward   ForwardConfig   `toml:"forward"`
}

// PprofConfig defines optional runtime pprof HTTP endpoint.
// Params: enabled flag and listen address in host:port format.
// Returns: pprof runtime settings.
type PprofConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// GlobalConfig contains tags attached to every persisted record.
// Params: host identity plus optional placement tags.
// Returns: global tag settings.
type GlobalConfig struct {
	Host    string `toml:"host"`
	DC      string `toml:"dc"`
	Project string `toml:"project"`
	Role    string `toml:"role"`
}

// LogConfig contains console/file logging configuration.
// Params: console and file sink options.
// Returns: logger sink settings.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink options from TOML.
// Returns: sink setup.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// CollectorConfig controls the polling loop.
// Params: cadence, timeouts, reporting and tier settings.
// Returns: loop runtime settings.
type CollectorConfig struct {
	Interval        Duration        `toml:"interval"`
	SlowThreshold   Duration        `toml:"slow_threshold"`
	ProbeTimeout    Duration        `toml:"probe_timeout"`
	WriteTimeout    Duration        `toml:"write_timeout"`
	ReportEvery     int             `toml:"report_every"`
	CompensateDrift bool            `toml:"compensate_drift"`
	DryRun          bool            `toml:"dry_run"`
	Tiers           TiersConfig     `toml:"tiers"`
	DiskUsage       DiskUsageConfig `toml:"disk_usage"`
}

// TiersConfig holds refresh intervals of the medium and slow tiers.
// Params: durations; the fast tier follows collector.interval.
// Returns: tier schedule.
type TiersConfig struct {
	Medium Duration `toml:"medium"`
	Slow   Duration `toml:"slow"`
}

// DiskUsageConfig holds wildcard masks of filesystems skipped by disk usage.
// Params: mountpoint and fstype masks.
// Returns: disk usage filter.
type DiskUsageConfig struct {
	IgnoreMounts  []string `toml:"ignore_mounts"`
	IgnoreFstypes []string `toml:"ignore_fstypes"`
}

// StorageConfig selects and configures the persisting store.
// Params: driver name and driver-specific connection fields.
// Returns: store settings.
type StorageConfig struct {
	Driver          string   `toml:"driver"`
	URL             string   `toml:"url"`
	Token           string   `toml:"token"`
	Org             string   `toml:"org"`
	Bucket          string   `toml:"bucket"`
	Path            string   `toml:"path"`
	Timeout         Duration `toml:"timeout"`
	ConnectAttempts int      `toml:"connect_attempts"`
	ConnectBackoff  Duration `toml:"connect_backoff"`
}

// AlertConfig controls threshold rule evaluation.
// Params: enable flag, repeat policy, rule sources.
// Returns: alert settings.
type AlertConfig struct {
	Enabled     bool              `toml:"enabled"`
	Repeat      string            `toml:"repeat"`
	UseDefaults *bool             `toml:"use_defaults"`
	RulesFile   string            `toml:"rules_file"`
	Rule        []AlertRuleConfig `toml:"rule"`
}

// AlertRuleConfig is one rule declared inline.
// Params: rule identity, compared field, operator, threshold, severity and sustain duration.
// Returns: raw rule definition validated by the alert package.
type AlertRuleConfig struct {
	Name      string   `toml:"name"`
	Field     string   `toml:"field"`
	Operator  string   `toml:"operator"`
	Threshold float64  `toml:"threshold"`
	Severity  string   `toml:"severity"`
	Duration  Duration `toml:"duration"`
}

// DefaultsEnabled reports whether built-in rules are loaded.
// Params: none.
// Returns: true unless use_defaults=false.
func (c AlertConfig) DefaultsEnabled() bool {
	return c.UseDefaults == nil || *c.UseDefaults
}

// APIConfig controls the HTTP query API.
// Params: listen address, live cache TTL and default history window.
// Returns: API settings.
type APIConfig struct {
	Enabled      bool     `toml:"enabled"`
	Listen       string   `toml:"listen"`
	CacheTTL     Duration `toml:"cache_ttl"`
	HistoryStart string   `toml:"history_start"`
}

// GRPCConfig controls the gRPC health endpoint.
// Params: enable flag and listen address.
// Returns: gRPC settings.
type GRPCConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// ValkeyConfig controls snapshot publication into a Valkey stream.
// Params: server addresses, credentials, stream key and trim length.
// Returns: publisher settings.
type ValkeyConfig struct {
	Enabled  bool     `toml:"enabled"`
	Addr     []string `toml:"addr"`
	Username string   `toml:"username"`
	Password string   `toml:"password"`
	Stream   string   `toml:"stream"`
	MaxLen   int64    `toml:"max_len"`
}

// ForwardConfig controls snapshot forwarding to a remote gRPC ingest endpoint.
// Params: target address, RPC method and call timeout.
// Returns: forwarder settings.
type ForwardConfig struct {
	Enabled bool     `toml:"enabled"`
	Addr    string   `toml:"addr"`
	Method  string   `toml:"method"`
	Timeout Duration `toml:"timeout"`
}

// Load reads, expands, validates, and returns config from path.
// Params: path to TOML config file or directory with *.toml files; empty means defaults plus environment.
// Returns: validated config pointer or error.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

// load is Load with an injectable environment lookup.
// Params: path config source; lookupEnv environment reader.
// Returns: validated config pointer or error.
func load(path string, lookupEnv func(string) (string, bool)) (*Config, error) {
	var cfg Config
	if strings.TrimSpace(path) != "" {
		raw, err := readConfigSource(path)
		if err != nil {
			return nil, err
		}

		expanded := os.ExpandEnv(string(raw))
		if err := toml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("decode TOML %q: %w", path, err)
		}
	}

	if err := cfg.applyEnv(lookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// readConfigSource reads one TOML file or concatenates *.toml files from directory.
// Params: path to config file or directory.
// Returns: raw TOML bytes or error.
func readConfigSource(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config %q: %w", path, err)
	}
	if !info.IsDir() {
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("read config %q: %w", path, readErr)
		}
		return raw, nil
	}

	return readConfigDir(path)
}

// readConfigDir concatenates config snippets from one directory.
// Params: path to directory that contains *.toml files.
// Returns: concatenated TOML content or error.
func readConfigDir(path string) ([]byte, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read config dir %q: %w", path, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".toml") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("read config dir %q: no *.toml files", path)
	}

	var builder strings.Builder
	for _, name := range files {
		filePath := filepath.Join(path, name)
		raw, readErr := os.ReadFile(filePath)
		if readErr != nil {
			return nil, fmt.Errorf("read config %q: %w", filePath, readErr)
		}
		builder.Write(raw)
		if len(raw) == 0 || raw[len(raw)-1] != '\n' {
			builder.WriteByte('\n')
		}
		builder.WriteByte('\n')
	}

	return []byte(builder.String()), nil
}

// applyEnv overrides file values with well-known environment variables.
// Params: lookupEnv environment reader.
// Returns: error when a variable holds an unparsable value.
func (c *Config) applyEnv(lookupEnv func(string) (string, bool)) error {
	if lookupEnv == nil {
		return nil
	}

	stringOverrides := []struct {
		name   string
		target *string
	}{
		{name: "INFLUXDB_URL", target: &c.Storage.URL},
		{name: "INFLUXDB_TOKEN", target: &c.Storage.Token},
		{name: "INFLUXDB_ORG", target: &c.Storage.Org},
		{name: "INFLUXDB_BUCKET", target: &c.Storage.Bucket},
	}
	for _, override := range stringOverrides {
		if value, ok := lookupEnv(override.name); ok && strings.TrimSpace(value) != "" {
			*override.target = strings.TrimSpace(value)
		}
	}

	if value, ok := lookupEnv("COLLECTOR_INTERVAL"); ok && strings.TrimSpace(value) != "" {
		interval, err := parseInterval(value)
		if err != nil {
			return fmt.Errorf("COLLECTOR_INTERVAL: %w", err)
		}
		c.Collector.Interval.Duration = interval
	}

	if value, ok := lookupEnv("LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		level := normalizeLogLevel(value)
		c.Log.Console.Level = level
		c.Log.File.Level = level
	}

	if value, ok := lookupEnv("DRY_RUN"); ok && strings.TrimSpace(value) != "" {
		dryRun, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("DRY_RUN: parse bool %q: %w", value, err)
		}
		c.Collector.DryRun = dryRun
	}

	return nil
}

// parseInterval accepts whole seconds ("2") or a Go duration ("1500ms").
// Params: raw interval text.
// Returns: parsed duration or error.
func parseInterval(raw string) (time.Duration, error) {
	value := strings.TrimSpace(raw)
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse interval %q: %w", value, err)
	}
	return parsed, nil
}

// normalizeLogLevel maps common level spellings to slog level names.
// Params: raw level text.
// Returns: lower-case level name.
func normalizeLogLevel(raw string) string {
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "warning":
		return "warn"
	case "critical", "fatal":
		return "error"
	default:
		return level
	}
}

// applyDefaults fills defaults for optional configuration fields.
// Params: receiver config pointer.
// Returns: error if defaulting needs host lookup and it fails.
func (c *Config) applyDefaults() error {
	c.Log.Console.Level = lowerOrDefault(c.Log.Console.Level, defaultLogLevel)
	c.Log.Console.Format = lowerOrDefault(c.Log.Console.Format, defaultLogFormat)
	c.Log.File.Level = lowerOrDefault(c.Log.File.Level, defaultLogLevel)
	c.Log.File.Format = lowerOrDefault(c.Log.File.Format, "json")
	if !c.Log.Console.Enabled && !c.Log.File.Enabled {
		c.Log.Console.Enabled = true
	}

	if strings.TrimSpace(c.Global.Host) == "" {
		host, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("resolve hostname: %w", err)
		}
		c.Global.Host = host
	}

	durationDefaults := []struct {
		target   *time.Duration
		fallback time.Duration
	}{
		{target: &c.Collector.Interval.Duration, fallback: defaultInterval},
		{target: &c.Collector.SlowThreshold.Duration, fallback: defaultSlowThreshold},
		{target: &c.Collector.ProbeTimeout.Duration, fallback: defaultProbeTimeout},
		{target: &c.Collector.WriteTimeout.Duration, fallback: defaultWriteTimeout},
		{target: &c.Collector.Tiers.Medium.Duration, fallback: defaultMediumTier},
		{target: &c.Collector.Tiers.Slow.Duration, fallback: defaultSlowTier},
		{target: &c.Storage.Timeout.Duration, fallback: defaultStorageTimeout},
		{target: &c.Storage.ConnectBackoff.Duration, fallback: defaultConnectBackoff},
		{target: &c.API.CacheTTL.Duration, fallback: defaultAPICacheTTL},
		{target: &c.Forward.Timeout.Duration, fallback: defaultForwardTimeout},
	}
	for _, item := range durationDefaults {
		if *item.target == 0 {
			*item.target = item.fallback
		}
	}

	if c.Collector.ReportEvery == 0 {
		c.Collector.ReportEvery = defaultReportEvery
	}
	if c.Collector.DiskUsage.IgnoreFstypes == nil {
		c.Collector.DiskUsage.IgnoreFstypes = []string{defaultDisabledFstypes}
	}
	if c.Collector.DiskUsage.IgnoreMounts == nil {
		c.Collector.DiskUsage.IgnoreMounts = []string{defaultDisabledMountDir}
	}

	c.Storage.Driver = lowerOrDefault(c.Storage.Driver, defaultStorageDriver)
	switch c.Storage.Driver {
	case DriverInfluxDB:
		c.Storage.URL = valueOrDefault(c.Storage.URL, defaultInfluxURL)
		c.Storage.Org = valueOrDefault(c.Storage.Org, defaultInfluxOrg)
		c.Storage.Bucket = valueOrDefault(c.Storage.Bucket, defaultInfluxBucket)
	case DriverSQLite:
		c.Storage.Path = valueOrDefault(c.Storage.Path, defaultSQLitePath)
	}
	if c.Storage.ConnectAttempts == 0 {
		c.Storage.ConnectAttempts = defaultConnectAttempts
	}

	c.Alert.Repeat = lowerOrDefault(c.Alert.Repeat, defaultAlertRepeat)
	for idx := range c.Alert.Rule {
		c.Alert.Rule[idx].Severity = lowerOrDefault(c.Alert.Rule[idx].Severity, "warning")
	}

	if c.API.Enabled {
		c.API.Listen = valueOrDefault(c.API.Listen, defaultAPIListen)
	}
	c.API.HistoryStart = valueOrDefault(c.API.HistoryStart, defaultAPIHistoryStart)

	if c.GRPC.Enabled {
		c.GRPC.Listen = valueOrDefault(c.GRPC.Listen, defaultGRPCListen)
	}

	if c.Valkey.Enabled {
		c.Valkey.Stream = valueOrDefault(c.Valkey.Stream, defaultValkeyStream)
		if c.Valkey.MaxLen == 0 {
			c.Valkey.MaxLen = defaultValkeyMaxLen
		}
	}

	if c.Forward.Enabled {
		c.Forward.Method = valueOrDefault(c.Forward.Method, defaultForwardMethod)
	}

	if c.Pprof.Enabled && strings.TrimSpace(c.Pprof.Listen) == "" {
		c.Pprof.Listen = defaultPprofListen
	}

	return nil
}

// validate checks config consistency and required fields.
// Params: receiver config pointer.
// Returns: validation error for invalid or incomplete config.
func (c *Config) validate() error {
	if strings.TrimSpace(c.Global.Host) == "" {
		return fmt.Errorf("global.host resolved to empty value")
	}

	if err := validateSink("log.console", c.Log.Console, false); err != nil {
		return err
	}
	if err := validateSink("log.file", c.Log.File, true); err != nil {
		return err
	}
	if err := validatePprofConfig("pprof", c.Pprof); err != nil {
		return err
	}
	if err := validateCollectorConfig("collector", c.Collector); err != nil {
		return err
	}
	if err := validateStorageConfig("storage", c.Storage); err != nil {
		return err
	}
	if err := validateAlertConfig("alert", c.Alert); err != nil {
		return err
	}
	if c.API.Enabled {
		if err := validateListen("api.listen", c.API.Listen); err != nil {
			return err
		}
	}
	if err := validatePositiveDurationField("api.cache_ttl", c.API.CacheTTL.Duration); err != nil {
		return err
	}
	if c.GRPC.Enabled {
		if err := validateListen("grpc.listen", c.GRPC.Listen); err != nil {
			return err
		}
	}
	if err := validateValkeyConfig("valkey", c.Valkey); err != nil {
		return err
	}
	if err := validateForwardConfig("forward", c.Forward); err != nil {
		return err
	}

	return nil
}

// validateCollectorConfig validates loop timing and tier settings.
// Params: path config path prefix; cfg collector section.
// Returns: validation error or nil.
func validateCollectorConfig(path string, cfg CollectorConfig) error {
	positive := []struct {
		field string
		value time.Duration
	}{
		{field: "interval", value: cfg.Interval.Duration},
		{field: "slow_threshold", value: cfg.SlowThreshold.Duration},
		{field: "probe_timeout", value: cfg.ProbeTimeout.Duration},
		{field: "write_timeout", value: cfg.WriteTimeout.Duration},
		{field: "tiers.medium", value: cfg.Tiers.Medium.Duration},
		{field: "tiers.slow", value: cfg.Tiers.Slow.Duration},
	}
	for _, item := range positive {
		if err := validatePositiveDurationField(path+"."+item.field, item.value); err != nil {
			return err
		}
	}

	if cfg.ReportEvery < 0 {
		return fmt.Errorf("%s.report_every cannot be negative", path)
	}
	if cfg.Tiers.Slow.Duration < cfg.Tiers.Medium.Duration {
		return fmt.Errorf("%s.tiers.slow must be >= %s.tiers.medium", path, path)
	}

	return nil
}

// validateStorageConfig validates store selection and connection settings.
// Params: path config path prefix; cfg storage section.
// Returns: validation error or nil.
func validateStorageConfig(path string, cfg StorageConfig) error {
	switch cfg.Driver {
	case DriverInfluxDB:
		if strings.TrimSpace(cfg.URL) == "" {
			return fmt.Errorf("%s.url is required for driver %q", path, cfg.Driver)
		}
		if strings.TrimSpace(cfg.Org) == "" {
			return fmt.Errorf("%s.org is required for driver %q", path, cfg.Driver)
		}
		if strings.TrimSpace(cfg.Bucket) == "" {
			return fmt.Errorf("%s.bucket is required for driver %q", path, cfg.Driver)
		}
	case DriverSQLite:
		if strings.TrimSpace(cfg.Path) == "" {
			return fmt.Errorf("%s.path is required for driver %q", path, cfg.Driver)
		}
	default:
		return fmt.Errorf("%s.driver: unsupported value %q", path, cfg.Driver)
	}

	if cfg.ConnectAttempts < 1 {
		return fmt.Errorf("%s.connect_attempts must be >= 1", path)
	}
	if err := validatePositiveDurationField(path+".timeout", cfg.Timeout.Duration); err != nil {
		return err
	}
	return validatePositiveDurationField(path+".connect_backoff", cfg.ConnectBackoff.Duration)
}

// validateAlertConfig validates repeat policy and inline rule shapes.
// Params: path config path prefix; cfg alert section.
// Returns: validation error or nil.
func validateAlertConfig(path string, cfg AlertConfig) error {
	switch cfg.Repeat {
	case RepeatEvery, RepeatOnce:
	default:
		return fmt.Errorf("%s.repeat: unsupported value %q", path, cfg.Repeat)
	}

	seen := make(map[string]struct{}, len(cfg.Rule))
	for idx, rule := range cfg.Rule {
		rulePath := fmt.Sprintf("%s.rule[%d]", path, idx)
		name := strings.TrimSpace(rule.Name)
		if name == "" {
			return fmt.Errorf("%s.name cannot be empty", rulePath)
		}
		if _, exists := seen[name]; exists {
			return fmt.Errorf("%s.name %q is duplicated", rulePath, name)
		}
		seen[name] = struct{}{}

		if rule.Duration.Duration < 0 {
			return fmt.Errorf("%s.duration cannot be negative", rulePath)
		}
	}

	return nil
}

// validateValkeyConfig validates stream publisher settings.
// Params: path config path prefix; cfg valkey section.
// Returns: validation error or nil.
func validateValkeyConfig(path string, cfg ValkeyConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if len(cfg.Addr) == 0 {
		return fmt.Errorf("%s.addr must contain at least one host:port", path)
	}
	for idx, addr := range cfg.Addr {
		if err := validateListen(fmt.Sprintf("%s.addr[%d]", path, idx), addr); err != nil {
			return err
		}
	}
	if cfg.MaxLen < 0 {
		return fmt.Errorf("%s.max_len cannot be negative", path)
	}
	return nil
}

// validateForwardConfig validates gRPC forwarder settings.
// Params: path config path prefix; cfg forward section.
// Returns: validation error or nil.
func validateForwardConfig(path string, cfg ForwardConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if err := validateListen(path+".addr", cfg.Addr); err != nil {
		return err
	}
	if !strings.HasPrefix(cfg.Method, "/") {
		return fmt.Errorf("%s.method must be a full /service/method name", path)
	}
	return validatePositiveDurationField(path+".timeout", cfg.Timeout.Duration)
}

// validateSink validates one logging sink configuration.
// Params: name is sink path for errors; sink is sink config; requirePath means path required when enabled.
// Returns: validation error or nil.
func validateSink(name string, sink LogSinkConfig, requirePath bool) error {
	if sink.Enabled && requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required when sink is enabled", name)
	}
	if err := validateLogLevel(sink.Level); err != nil {
		return fmt.Errorf("%s.level: %w", name, err)
	}
	if err := validateLogFormat(sink.Format); err != nil {
		return fmt.Errorf("%s.format: %w", name, err)
	}
	return nil
}

// validateLogLevel validates known log levels.
// Params: level is lower-case level name.
// Returns: error when level is unsupported.
func validateLogLevel(level string) error {
	switch strings.TrimSpace(strings.ToLower(level)) {
	case "info", "warn", "error", "panic", "debug":
		return nil
	default:
		return fmt.Errorf("unsupported value %q", level)
	}
}

// validateLogFormat validates supported sink formats.
// Params: format is lower-case format name.
// Returns: error when format is unsupported.
func validateLogFormat(format string) error {
	switch strings.TrimSpace(strings.ToLower(format)) {
	case "line", "json":
		return nil
	default:
		return fmt.Errorf("unsupported value %q", format)
	}
}

// validatePositiveDurationField validates that duration is strictly positive.
// Params: fieldPath full config field path; value duration value.
// Returns: validation error or nil.
func validatePositiveDurationField(fieldPath string, value time.Duration) error {
	if value <= 0 {
		return fmt.Errorf("%s must be > 0", fieldPath)
	}
	return nil
}

// validateListen validates a host:port address.
// Params: fieldPath full config field path; value address.
// Returns: validation error or nil.
func validateListen(fieldPath string, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", fieldPath)
	}
	if _, _, err := net.SplitHostPort(value); err != nil {
		return fmt.Errorf("%s must be host:port: %w", fieldPath, err)
	}
	return nil
}

// validatePprofConfig validates optional pprof endpoint settings.
// Params: path config path prefix; cfg pprof section.
// Returns: validation error or nil.
func validatePprofConfig(path string, cfg PprofConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("%s.listen cannot be empty when enabled", path)
	}
	if _, _, err := net.SplitHostPort(cfg.Listen); err != nil {
		return fmt.Errorf("%s.listen must be host:port: %w", path, err)
	}
	return nil
}

// lowerOrDefault returns a trimmed lower-case value or default fallback.
// Params: value to normalize; fallback value when empty.
// Returns: normalized value.
func lowerOrDefault(value, fallback string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return fallback
	}
	return normalized
}

// valueOrDefault returns a trimmed value or default fallback, preserving case.
// Params: value to normalize; fallback value when empty.
// Returns: normalized value.
func valueOrDefault(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
