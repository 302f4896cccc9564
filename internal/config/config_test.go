package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func validConfig() *Config {
	return &Config{
		Source: SourceConfig{
			URL:        "http://localhost:5000/api/readings",
			Timeout:    5 * time.Second,
			MaxRetries: 1,
		},
		Sync: SyncConfig{
			PollInterval:  2 * time.Second,
			FetchTimeout:  2 * time.Second,
			DegradedAfter: 1,
		},
		Playback: PlaybackConfig{
			Interval: 2 * time.Second,
		},
		Dashboard: DashboardConfig{
			Mode:           ModeLive,
			GaugeMax:       40,
			ReportInterval: 10 * time.Second,
		},
		Storage: StorageConfig{
			DBPath:         "./data/test.db",
			MaxReadings:    100,
			RotateInterval: time.Minute,
		},
		API: APIConfig{
			Addr:         ":5000",
			DefaultLimit: 20,
			MaxLimit:     500,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func TestLoadAndValidate(t *testing.T) {
	content := `
source:
  url: "http://sensors.local/api/readings"
  timeout: 3s

sync:
  poll_interval: 2s
  degraded_after: 2

dashboard:
  mode: live
  gauge_max: 45

telegram:
  bot_token: "test_token"
  chat_id: "-100123"
  enabled: true
  cooldown: 15m

api:
  allowed_origins:
    - "http://localhost:3000"
    - "http://dashboard.local"

logging:
  level: "debug"
  format: "text"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Source.URL != "http://sensors.local/api/readings" {
		t.Errorf("Unexpected source URL: %s", cfg.Source.URL)
	}
	if cfg.Source.Timeout != 3*time.Second {
		t.Errorf("Unexpected source timeout: %v", cfg.Source.Timeout)
	}
	if cfg.Sync.DegradedAfter != 2 {
		t.Errorf("Unexpected degraded_after: %d", cfg.Sync.DegradedAfter)
	}
	if cfg.Dashboard.GaugeMax != 45 {
		t.Errorf("Unexpected gauge max: %v", cfg.Dashboard.GaugeMax)
	}
	if cfg.Telegram.Cooldown != 15*time.Minute {
		t.Errorf("Unexpected cooldown: %v", cfg.Telegram.Cooldown)
	}
	if len(cfg.API.AllowedOrigins) != 2 {
		t.Errorf("Expected 2 allowed origins, got %d", len(cfg.API.AllowedOrigins))
	}

	// Defaults fill what the file leaves out
	if cfg.Sync.FetchTimeout != 2*time.Second {
		t.Errorf("Expected default fetch timeout 2s, got %v", cfg.Sync.FetchTimeout)
	}
	if cfg.Playback.Interval != 2*time.Second {
		t.Errorf("Expected default playback interval 2s, got %v", cfg.Playback.Interval)
	}
	if cfg.API.DefaultLimit != 20 {
		t.Errorf("Expected default limit 20, got %d", cfg.API.DefaultLimit)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		t.Fatalf("ValidateServer failed: %v", err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("COMFORTDASH_SOURCE_URL", "http://override.local/readings")
	t.Setenv("COMFORTDASH_SYNC_POLL_INTERVAL", "5s")

	cfg, err := Load(writeConfig(t, "source:\n  url: \"http://file.local\"\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Source.URL != "http://override.local/readings" {
		t.Errorf("Expected env override, got %s", cfg.Source.URL)
	}
	if cfg.Sync.PollInterval != 5*time.Second {
		t.Errorf("Expected poll interval 5s, got %v", cfg.Sync.PollInterval)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid live config",
			mutate: func(*Config) {},
		},
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Dashboard.Mode = "replay" },
			wantErr: "dashboard.mode",
		},
		{
			name:    "live mode without url",
			mutate:  func(c *Config) { c.Source.URL = "" },
			wantErr: "source.url",
		},
		{
			name:    "playback mode without import path",
			mutate:  func(c *Config) { c.Dashboard.Mode = ModePlayback },
			wantErr: "playback.import_path",
		},
		{
			name: "playback mode with import path",
			mutate: func(c *Config) {
				c.Dashboard.Mode = ModePlayback
				c.Playback.ImportPath = "./data/dataset.json"
				c.Source.URL = ""
			},
		},
		{
			name:    "zero gauge max",
			mutate:  func(c *Config) { c.Dashboard.GaugeMax = 0 },
			wantErr: "gauge_max",
		},
		{
			name:    "buffer capacity without merge",
			mutate:  func(c *Config) { c.Dashboard.BufferCapacity = 500 },
			wantErr: "buffer_capacity",
		},
		{
			name: "buffer capacity with merge",
			mutate: func(c *Config) {
				c.Dashboard.BufferCapacity = 500
				c.Sync.Merge = true
			},
		},
		{
			name: "buffer capacity in playback",
			mutate: func(c *Config) {
				c.Dashboard.Mode = ModePlayback
				c.Playback.ImportPath = "./data/dataset.json"
				c.Dashboard.BufferCapacity = 500
				c.Sync.Merge = true
			},
			wantErr: "buffer_capacity",
		},
		{
			name:    "zero report interval",
			mutate:  func(c *Config) { c.Dashboard.ReportInterval = 0 },
			wantErr: "report_interval",
		},
		{
			name:    "poll interval too short",
			mutate:  func(c *Config) { c.Sync.PollInterval = 10 * time.Millisecond },
			wantErr: "poll_interval",
		},
		{
			name:    "degraded threshold zero",
			mutate:  func(c *Config) { c.Sync.DegradedAfter = 0 },
			wantErr: "degraded_after",
		},
		{
			name: "missing telegram token when enabled",
			mutate: func(c *Config) {
				c.Telegram.Enabled = true
				c.Telegram.ChatID = "123"
			},
			wantErr: "bot_token",
		},
		{
			name: "invalid telegram timezone",
			mutate: func(c *Config) {
				c.Telegram = TelegramConfig{Enabled: true, BotToken: "t", ChatID: "1", Timezone: "Mars/Olympus"}
			},
			wantErr: "timezone",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateServerErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing db path", func(c *Config) { c.Storage.DBPath = "" }, true},
		{"default above max", func(c *Config) { c.API.DefaultLimit = 600 }, true},
		{"mqtt without topic", func(c *Config) { c.MQTT = MQTTConfig{Enabled: true, Broker: "tcp://b:1883"} }, true},
		{"mqtt bad qos", func(c *Config) { c.MQTT = MQTTConfig{Enabled: true, Broker: "tcp://b:1883", Topic: "t", QoS: 3} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.ValidateServer(); (err != nil) != tt.wantErr {
				t.Errorf("ValidateServer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
