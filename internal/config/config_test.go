package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hostmon/internal/config"
)

// TestLoad_ExpandsEnvAndAppliesDefaults verifies env expansion and defaulting.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_ExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_DC", "dc-main")

	path := writeConfig(t, `
[global]
dc = "${TEST_DC}"
host = ""
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Global.DC != "dc-main" {
		t.Fatalf("unexpected dc: %q", cfg.Global.DC)
	}
	if cfg.Global.Host == "" {
		t.Fatalf("expected host default")
	}
	if !cfg.Log.Console.Enabled {
		t.Fatalf("expected console logging to be enabled by default")
	}
	if got := cfg.Collector.Interval.Duration; got != time.Second {
		t.Fatalf("unexpected default interval: %v", got)
	}
	if got := cfg.Collector.SlowThreshold.Duration; got != 100*time.Millisecond {
		t.Fatalf("unexpected default slow_threshold: %v", got)
	}
	if got := cfg.Collector.ReportEvery; got != 10 {
		t.Fatalf("unexpected default report_every: %d", got)
	}
	if cfg.Collector.Tiers.Medium.Duration != 5*time.Second || cfg.Collector.Tiers.Slow.Duration != 30*time.Second {
		t.Fatalf("unexpected tier defaults: %+v", cfg.Collector.Tiers)
	}
	if cfg.Storage.Driver != config.DriverInfluxDB {
		t.Fatalf("unexpected default driver: %q", cfg.Storage.Driver)
	}
	if cfg.Storage.Bucket != "system-metrics" || cfg.Storage.Org != "my-org" {
		t.Fatalf("unexpected influx defaults: %+v", cfg.Storage)
	}
	if cfg.Storage.ConnectAttempts != 3 {
		t.Fatalf("unexpected connect_attempts default: %d", cfg.Storage.ConnectAttempts)
	}
	if cfg.Alert.Repeat != config.RepeatEvery || !cfg.Alert.DefaultsEnabled() {
		t.Fatalf("unexpected alert defaults: %+v", cfg.Alert)
	}
}

// TestLoad_EmptyPathUsesDefaultsAndEnv verifies config-less startup with original variable names.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_EmptyPathUsesDefaultsAndEnv(t *testing.T) {
	t.Setenv("INFLUXDB_URL", "http://influx:8086")
	t.Setenv("INFLUXDB_TOKEN", "secret")
	t.Setenv("INFLUXDB_ORG", "acme")
	t.Setenv("INFLUXDB_BUCKET", "hosts")
	t.Setenv("COLLECTOR_INTERVAL", "2")
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("DRY_RUN", "true")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Storage.URL != "http://influx:8086" || cfg.Storage.Token != "secret" {
		t.Fatalf("unexpected storage endpoint: %+v", cfg.Storage)
	}
	if cfg.Storage.Org != "acme" || cfg.Storage.Bucket != "hosts" {
		t.Fatalf("unexpected storage org/bucket: %+v", cfg.Storage)
	}
	if got := cfg.Collector.Interval.Duration; got != 2*time.Second {
		t.Fatalf("unexpected interval: %v", got)
	}
	if cfg.Log.Console.Level != "warn" {
		t.Fatalf("unexpected console level: %q", cfg.Log.Console.Level)
	}
	if !cfg.Collector.DryRun {
		t.Fatalf("expected dry_run from env")
	}
}

// TestLoad_EnvOverridesFile verifies env variables take precedence over file values.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("COLLECTOR_INTERVAL", "1500ms")
	t.Setenv("INFLUXDB_BUCKET", "from-env")

	path := writeConfig(t, `
[collector]
interval = "10s"

[storage]
bucket = "from-file"
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if got := cfg.Collector.Interval.Duration; got != 1500*time.Millisecond {
		t.Fatalf("unexpected interval: %v", got)
	}
	if cfg.Storage.Bucket != "from-env" {
		t.Fatalf("unexpected bucket: %q", cfg.Storage.Bucket)
	}
}

// TestLoad_RejectsBadEnvValues verifies unparsable env overrides fail fast.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_RejectsBadEnvValues(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  string
	}{
		{name: "COLLECTOR_INTERVAL", value: "soon", want: "COLLECTOR_INTERVAL"},
		{name: "DRY_RUN", value: "maybe", want: "DRY_RUN"},
		{name: "LOG_LEVEL", value: "verbose", want: "log.console.level"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.name, tc.value)
			_, err := config.Load("")
			if err == nil {
				t.Fatalf("expected error for %s=%q", tc.name, tc.value)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

// TestLoad_ConfigDirMergesTomlFiles verifies config directory loading and file-order merge.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_ConfigDirMergesTomlFiles(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{
		"00-global.toml": `
[global]
host = "node-1"
`,
		"10-collector.toml": `
[collector]
interval = "2s"
`,
		"20-rule-z.toml": `
[[alert.rule]]
name = "rule-z"
field = "cpu_percent"
operator = ">"
threshold = 90.0
`,
		"11-rule-a.toml": `
[[alert.rule]]
name = "rule-a"
field = "memory_percent"
operator = ">="
threshold = 80.0
duration = "1m"
`,
	})

	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load config dir: %v", err)
	}

	if cfg.Global.Host != "node-1" {
		t.Fatalf("unexpected host: %q", cfg.Global.Host)
	}
	if len(cfg.Alert.Rule) != 2 {
		t.Fatalf("unexpected rule count: %d", len(cfg.Alert.Rule))
	}
	if cfg.Alert.Rule[0].Name != "rule-a" || cfg.Alert.Rule[1].Name != "rule-z" {
		t.Fatalf("unexpected rule order: [%q,%q]", cfg.Alert.Rule[0].Name, cfg.Alert.Rule[1].Name)
	}
	if cfg.Alert.Rule[0].Duration.Duration != time.Minute {
		t.Fatalf("unexpected rule duration: %v", cfg.Alert.Rule[0].Duration.Duration)
	}
	if cfg.Alert.Rule[1].Severity != "warning" {
		t.Fatalf("expected default severity, got %q", cfg.Alert.Rule[1].Severity)
	}
}

// TestLoad_ConfigDirRejectsWithoutToml verifies config dir validation on empty/non-toml-only directories.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_ConfigDirRejectsWithoutToml(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "README.txt"), []byte("not a config"), 0o644); err != nil {
		t.Fatalf("write non-toml file: %v", err)
	}

	_, err := config.Load(dir)
	if err == nil {
		t.Fatalf("expected error for config dir without *.toml")
	}
	if !strings.Contains(err.Error(), "no *.toml files") {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestLoad_RejectsInvalidSections verifies field-path validation errors.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_RejectsInvalidSections(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "negative interval",
			body: "[collector]\ninterval = \"-1s\"\n",
			want: "collector.interval",
		},
		{
			name: "slow below medium",
			body: "[collector.tiers]\nmedium = \"10s\"\nslow = \"5s\"\n",
			want: "collector.tiers.slow",
		},
		{
			name: "unknown driver",
			body: "[storage]\ndriver = \"mongo\"\n",
			want: "storage.driver",
		},
		{
			name: "zero attempts",
			body: "[storage]\nconnect_attempts = -1\n",
			want: "storage.connect_attempts",
		},
		{
			name: "bad repeat",
			body: "[alert]\nrepeat = \"sometimes\"\n",
			want: "alert.repeat",
		},
		{
			name: "duplicated rule",
			body: "[[alert.rule]]\nname = \"a\"\n[[alert.rule]]\nname = \"a\"\n",
			want: "duplicated",
		},
		{
			name: "valkey without addr",
			body: "[valkey]\nenabled = true\n",
			want: "valkey.addr",
		},
		{
			name: "forward bad method",
			body: "[forward]\nenabled = true\naddr = \"127.0.0.1:7000\"\nmethod = \"Push\"\n",
			want: "forward.method",
		},
		{
			name: "api bad listen",
			body: "[api]\nenabled = true\nlisten = \"8000\"\n",
			want: "api.listen",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tc.body))
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

// TestLoad_ParsesSQLiteStorage verifies sqlite driver defaults.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_ParsesSQLiteStorage(t *testing.T) {
	path := writeConfig(t, `
[storage]
driver = "SQLite"
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Storage.Driver != config.DriverSQLite {
		t.Fatalf("unexpected driver: %q", cfg.Storage.Driver)
	}
	if cfg.Storage.Path != "hostmon.db" {
		t.Fatalf("unexpected sqlite path default: %q", cfg.Storage.Path)
	}
}

// TestLoad_ParsesOuterSurfaces verifies api/grpc/valkey/forward defaults.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_ParsesOuterSurfaces(t *testing.T) {
	path := writeConfig(t, `
[api]
enabled = true

[grpc]
enabled = true

[valkey]
enabled = true
addr = ["127.0.0.1:6379"]

[forward]
enabled = true
addr = "127.0.0.1:7000"
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.API.Listen != "127.0.0.1:8000" || cfg.API.HistoryStart != "-1h" {
		t.Fatalf("unexpected api defaults: %+v", cfg.API)
	}
	if cfg.GRPC.Listen != "127.0.0.1:9090" {
		t.Fatalf("unexpected grpc listen: %q", cfg.GRPC.Listen)
	}
	if cfg.Valkey.Stream != "hostmon:snapshots" || cfg.Valkey.MaxLen != 10000 {
		t.Fatalf("unexpected valkey defaults: %+v", cfg.Valkey)
	}
	if cfg.Forward.Method != "/hostmon.v1.SnapshotIngest/Push" || cfg.Forward.Timeout.Duration != 5*time.Second {
		t.Fatalf("unexpected forward defaults: %+v", cfg.Forward)
	}
}

// TestLoad_ParsesPprofConfig verifies pprof defaults.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_ParsesPprofConfig(t *testing.T) {
	path := writeConfig(t, `
[pprof]
enabled = true
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.Pprof.Enabled {
		t.Fatalf("expected pprof.enabled=true")
	}
	if cfg.Pprof.Listen != "127.0.0.1:6060" {
		t.Fatalf("unexpected pprof.listen default: %q", cfg.Pprof.Listen)
	}
}

// TestLoad_RejectsInvalidPprofListen verifies pprof listen validation.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_RejectsInvalidPprofListen(t *testing.T) {
	path := writeConfig(t, `
[pprof]
enabled = true
listen = "localhost"
`)

	_, err := config.Load(path)
	if err == nil {
		t.Fatalf("expected validation error for invalid pprof.listen")
	}
	if !strings.Contains(err.Error(), "pprof.listen") {
		t.Fatalf("unexpected error: %v", err)
	}
}

// writeConfig creates a temporary config file and returns its path.
// Params: t test handle; body TOML contents.
// Returns: absolute config path.
func writeConfig(t *testing.T, body string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return path
}

// writeConfigDir creates a temp config directory populated with provided files.
// Params: t test handle; files map[name]body.
// Returns: absolute directory path.
func writeConfigDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write config file %q: %v", name, err)
		}
	}

	return dir
}
