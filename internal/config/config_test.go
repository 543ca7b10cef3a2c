package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/dbn-live/internal/gateway"
	"github.com/rickgao/dbn-live/internal/queue"
)

const minimalYAML = `
instance:
  id: test-recorder
live:
  gateway_url: wss://bridge.example.com/v0/live
  api_key: db-test-key
  dataset: GLBX.MDP3
subscriptions:
  - schema: trades
    symbols: [ESZ4, NQZ4]
database:
  timescale:
    host: localhost
    name: test_ts
    user: testuser
    password: testpass
`

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-recorder
live:
  gateway_url: wss://bridge.example.com/v0/live
  api_key: db-test-key
  dataset: GLBX.MDP3
  heartbeat_interval: 15s
subscriptions:
  - schema: mbp-1
    stype_in: parent
    symbols: [ES.FUT]
    snapshot: true
  - schema: ohlcv-1m
    symbols: [ESZ4]
    start: 2024-06-03T13:30:00Z
database:
  timescale:
    host: localhost
    port: 5433
    name: test_ts
    user: testuser
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-recorder" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-recorder")
	}
	if cfg.Live.Dataset != "GLBX.MDP3" {
		t.Errorf("Live.Dataset = %q, want %q", cfg.Live.Dataset, "GLBX.MDP3")
	}
	if cfg.Live.HeartbeatInterval != 15*time.Second {
		t.Errorf("Live.HeartbeatInterval = %v, want 15s", cfg.Live.HeartbeatInterval)
	}
	if len(cfg.Subscriptions) != 2 {
		t.Fatalf("len(Subscriptions) = %d, want 2", len(cfg.Subscriptions))
	}
	if !cfg.Subscriptions[0].Snapshot || cfg.Subscriptions[0].STypeIn != "parent" {
		t.Errorf("Subscriptions[0] = %+v", cfg.Subscriptions[0])
	}
	wantStart := time.Date(2024, 6, 3, 13, 30, 0, 0, time.UTC)
	if !cfg.Subscriptions[1].Start.Equal(wantStart) {
		t.Errorf("Subscriptions[1].Start = %v, want %v", cfg.Subscriptions[1].Start, wantStart)
	}
	if cfg.Database.Timescale.Port != 5433 {
		t.Errorf("Database.Timescale.Port = %d, want 5433", cfg.Database.Timescale.Port)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")
	t.Setenv("TEST_API_KEY", "db-from-env")

	yaml := strings.ReplaceAll(minimalYAML, "testpass", "${TEST_DB_PASSWORD}")
	yaml = strings.ReplaceAll(yaml, "db-test-key", "${TEST_API_KEY}")
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Timescale.Password != "secret123" {
		t.Errorf("Database.Timescale.Password = %q, want %q", cfg.Database.Timescale.Password, "secret123")
	}
	if cfg.Live.APIKey != "db-from-env" {
		t.Errorf("Live.APIKey = %q, want %q", cfg.Live.APIKey, "db-from-env")
	}
}

// unsetEnv clears key for the test and restores it afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestLoad_EnvDefaultsAndRequired(t *testing.T) {
	t.Setenv("TEST_API_KEY", "db-from-env")
	t.Setenv("TEST_TS_HOST", "")
	unsetEnv(t, "TEST_TS_NAME")

	yaml := strings.ReplaceAll(minimalYAML, "db-test-key", "${TEST_API_KEY:?}")
	yaml = strings.ReplaceAll(yaml, "host: localhost", "host: ${TEST_TS_HOST:-db.internal}")
	yaml = strings.ReplaceAll(yaml, "name: test_ts", "name: ${TEST_TS_NAME:-market_data}")

	cfg, err := Load(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Live.APIKey != "db-from-env" {
		t.Errorf("Live.APIKey = %q, want db-from-env", cfg.Live.APIKey)
	}
	if cfg.Database.Timescale.Host != "db.internal" {
		t.Errorf("Timescale.Host = %q, want default for empty variable", cfg.Database.Timescale.Host)
	}
	if cfg.Database.Timescale.Name != "market_data" {
		t.Errorf("Timescale.Name = %q, want default for unset variable", cfg.Database.Timescale.Name)
	}

	unsetEnv(t, "TEST_API_KEY")
	unsetEnv(t, "TEST_GATEWAY_URL")
	yaml = strings.ReplaceAll(yaml, "wss://bridge.example.com/v0/live", "${TEST_GATEWAY_URL:?}")
	_, err = Load(writeTempFile(t, yaml))
	if err == nil {
		t.Fatal("Load succeeded with required variables unset")
	}
	if want := "TEST_API_KEY, TEST_GATEWAY_URL"; !strings.Contains(err.Error(), want) {
		t.Errorf("Load error = %v, want it to name %s", err, want)
	}
}

func TestLoadEnv(t *testing.T) {
	unsetEnv(t, "TEST_ENV_FILE_KEY")
	t.Setenv("TEST_ENV_FILE_KEPT", "from-process")

	dir := t.TempDir()
	path := filepath.Join(dir, "recorder.env")
	data := "TEST_ENV_FILE_KEY=db-from-file\nTEST_ENV_FILE_KEPT=from-file\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	if err := LoadEnv(filepath.Join(dir, "missing.env"), "", path); err != nil {
		t.Fatalf("LoadEnv failed: %v", err)
	}
	if got := os.Getenv("TEST_ENV_FILE_KEY"); got != "db-from-file" {
		t.Errorf("TEST_ENV_FILE_KEY = %q, want db-from-file", got)
	}
	if got := os.Getenv("TEST_ENV_FILE_KEPT"); got != "from-process" {
		t.Errorf("TEST_ENV_FILE_KEPT = %q, want the process value to win", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config file") {
		t.Errorf("Load error = %v, want read config file error", err)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeTempFile(t, "instance: [unterminated"))
	if err == nil || !strings.Contains(err.Error(), "parse config yaml") {
		t.Errorf("Load error = %v, want parse error", err)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, minimalYAML)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Live.StopTimeout != DefaultStopTimeout {
		t.Errorf("Live.StopTimeout = %v, want default %v", cfg.Live.StopTimeout, DefaultStopTimeout)
	}
	if cfg.Live.QueueFullMode != DefaultQueueFullMode {
		t.Errorf("Live.QueueFullMode = %q, want default %q", cfg.Live.QueueFullMode, DefaultQueueFullMode)
	}
	if cfg.Health.AutoReconnect == nil || !*cfg.Health.AutoReconnect {
		t.Error("Health.AutoReconnect should default to true")
	}
	if cfg.Health.MaxRetries != DefaultMaxRetries {
		t.Errorf("Health.MaxRetries = %d, want default %d", cfg.Health.MaxRetries, DefaultMaxRetries)
	}
	if cfg.Subscriptions[0].STypeIn != DefaultSTypeIn {
		t.Errorf("Subscriptions[0].STypeIn = %q, want default %q", cfg.Subscriptions[0].STypeIn, DefaultSTypeIn)
	}
	if cfg.Database.Timescale.Port != DefaultDBPort {
		t.Errorf("Database.Timescale.Port = %d, want default %d", cfg.Database.Timescale.Port, DefaultDBPort)
	}
	if cfg.Database.Timescale.MaxConns != DefaultMaxConns {
		t.Errorf("Database.Timescale.MaxConns = %d, want default %d", cfg.Database.Timescale.MaxConns, DefaultMaxConns)
	}
	if cfg.Router.LatestBufferSize != DefaultLatestBufferSize {
		t.Errorf("Router.LatestBufferSize = %d, want default %d", cfg.Router.LatestBufferSize, DefaultLatestBufferSize)
	}
	if cfg.Redis.TTL != DefaultRedisTTL {
		t.Errorf("Redis.TTL = %v, want default %v", cfg.Redis.TTL, DefaultRedisTTL)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
}

func TestLoadWithDefaults_KeepsExplicitFalse(t *testing.T) {
	yaml := minimalYAML + `
health:
  auto_reconnect: false
  jitter: false
`
	cfg, err := LoadWithDefaults(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	if *cfg.Health.AutoReconnect {
		t.Error("Health.AutoReconnect = true, want explicit false kept")
	}
	if *cfg.Health.Jitter {
		t.Error("Health.Jitter = true, want explicit false kept")
	}
}

func TestLoadAndValidate(t *testing.T) {
	if _, err := LoadAndValidate(writeTempFile(t, minimalYAML)); err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}

	_, err := LoadAndValidate(writeTempFile(t, "instance:\n  id: x\n"))
	if err == nil || !strings.HasPrefix(err.Error(), "validate config: ") {
		t.Errorf("LoadAndValidate error = %v, want validate config error", err)
	}
}

func validConfig() RecorderConfig {
	cfg := RecorderConfig{
		Instance: InstanceConfig{ID: "test"},
		Live: LiveConfig{
			GatewayURL: "ws://localhost:8080/v0/live",
			APIKey:     "key",
			Dataset:    "GLBX.MDP3",
		},
		Subscriptions: []SubscriptionConfig{{Schema: "trades", Symbols: []string{"ESZ4"}}},
		Database: DatabaseConfig{
			Timescale: DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass"},
		},
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RecorderConfig)
		wantErr string
	}{
		{
			name:    "missing instance id",
			mutate:  func(c *RecorderConfig) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "missing gateway url",
			mutate:  func(c *RecorderConfig) { c.Live.GatewayURL = "" },
			wantErr: "live.gateway_url is required",
		},
		{
			name:    "missing api key",
			mutate:  func(c *RecorderConfig) { c.Live.APIKey = "" },
			wantErr: "live.api_key is required",
		},
		{
			name:    "missing dataset",
			mutate:  func(c *RecorderConfig) { c.Live.Dataset = "" },
			wantErr: "live.dataset is required",
		},
		{
			name:    "bad upgrade policy",
			mutate:  func(c *RecorderConfig) { c.Live.UpgradePolicy = "v4" },
			wantErr: `live.upgrade_policy must be upgrade or as_is, got "v4"`,
		},
		{
			name:    "bad full mode",
			mutate:  func(c *RecorderConfig) { c.Live.QueueFullMode = "spill" },
			wantErr: `live.queue_full_mode must be drop_oldest, drop_newest or block, got "spill"`,
		},
		{
			name:    "no subscriptions",
			mutate:  func(c *RecorderConfig) { c.Subscriptions = nil },
			wantErr: "subscriptions: at least one is required",
		},
		{
			name:    "unknown schema",
			mutate:  func(c *RecorderConfig) { c.Subscriptions[0].Schema = "mbp-5" },
			wantErr: "subscriptions[0].schema: unknown schema: mbp-5",
		},
		{
			name:    "no symbols",
			mutate:  func(c *RecorderConfig) { c.Subscriptions[0].Symbols = nil },
			wantErr: "subscriptions[0].symbols is required",
		},
		{
			name: "snapshot with start",
			mutate: func(c *RecorderConfig) {
				c.Subscriptions[0].Snapshot = true
				c.Subscriptions[0].Start = time.Now()
			},
			wantErr: "subscriptions[0]: snapshot and start are mutually exclusive",
		},
		{
			name:    "missing timescale password",
			mutate:  func(c *RecorderConfig) { c.Database.Timescale.Password = "" },
			wantErr: "database.timescale.password is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *RecorderConfig) {
				c.Database.Timescale.MaxConns = 5
				c.Database.Timescale.MinConns = 10
			},
			wantErr: "database.timescale.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "redis enabled without url",
			mutate:  func(c *RecorderConfig) { c.Redis.Enabled = true },
			wantErr: "redis.url is required",
		},
		{
			name:    "bad metrics port",
			mutate:  func(c *RecorderConfig) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "bad log format",
			mutate:  func(c *RecorderConfig) { c.Logging.Format = "xml" },
			wantErr: `logging.format must be text or json, got "xml"`,
		},
		{
			name:    "valid config",
			mutate:  func(c *RecorderConfig) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestLiveConfig_Parsers(t *testing.T) {
	l := LiveConfig{UpgradePolicy: "AS_IS", QueueFullMode: "block"}

	if p, err := l.Upgrade(); err != nil || p != gateway.UpgradeAsIs {
		t.Errorf("Upgrade() = %v, %v, want UpgradeAsIs", p, err)
	}
	if m, err := l.FullMode(); err != nil || m != queue.Block {
		t.Errorf("FullMode() = %v, %v, want block", m, err)
	}
}

func TestLoggingConfig_SlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		got, err := LoggingConfig{Level: tt.level}.SlogLevel()
		if err != nil || got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, %v, want %v", tt.level, got, err, tt.want)
		}
	}

	if _, err := (LoggingConfig{Level: "loud"}).SlogLevel(); err == nil {
		t.Error("SlogLevel(loud) should fail")
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadAndValidate_ExampleConfig(t *testing.T) {
	t.Setenv("DBN_GATEWAY_URL", "wss://bridge.example.com/v0/live")
	t.Setenv("DBN_API_KEY", "db-key")
	t.Setenv("TS_HOST", "localhost")
	t.Setenv("TS_USER", "recorder")
	t.Setenv("TS_PASSWORD", "secret")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := LoadAndValidate("../../configs/recorder.example.yaml")
	if err != nil {
		t.Fatalf("LoadAndValidate() error = %v", err)
	}
	if len(cfg.Subscriptions) != 5 {
		t.Errorf("Subscriptions = %d, want 5", len(cfg.Subscriptions))
	}
	if cfg.Live.APIKey != "db-key" {
		t.Errorf("Live.APIKey = %q, want db-key", cfg.Live.APIKey)
	}
	if !cfg.Redis.Enabled || cfg.Redis.BatchSize != 256 {
		t.Errorf("Redis = %+v, want enabled with default batch size", cfg.Redis)
	}
}
