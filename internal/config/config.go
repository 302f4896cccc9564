package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Dashboard modes.
const (
	ModeLive     = "live"
	ModePlayback = "playback"
)

// Config represents the complete application configuration
type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Playback  PlaybackConfig  `mapstructure:"playback"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Storage   StorageConfig   `mapstructure:"storage"`
	API       APIConfig       `mapstructure:"api"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SourceConfig holds the readings collaborator endpoint
type SourceConfig struct {
	URL            string        `mapstructure:"url"`
	DBPath         string        `mapstructure:"db_path"` // read the archive directly instead of URL
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// SyncConfig holds live sync loop behavior
type SyncConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	DegradedAfter int           `mapstructure:"degraded_after"`
	Merge         bool          `mapstructure:"merge"` // accumulate history bounded by dashboard.buffer_capacity
}

// PlaybackConfig holds static dataset replay settings
type PlaybackConfig struct {
	ImportPath string        `mapstructure:"import_path"`
	Interval   time.Duration `mapstructure:"interval"`
}

// DashboardConfig holds presentation settings
type DashboardConfig struct {
	Mode           string        `mapstructure:"mode"`
	GaugeMax       float64       `mapstructure:"gauge_max"`
	BufferCapacity int           `mapstructure:"buffer_capacity"`
	ReportInterval time.Duration `mapstructure:"report_interval"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
	Timezone       string        `mapstructure:"timezone"`
}

// StorageConfig holds the reading archive configuration
type StorageConfig struct {
	DBPath         string        `mapstructure:"db_path"`
	MaxReadings    int           `mapstructure:"max_readings"`
	RotateInterval time.Duration `mapstructure:"rotate_interval"`
}

// APIConfig holds the readings API configuration
type APIConfig struct {
	Addr           string        `mapstructure:"addr"`
	DefaultLimit   int           `mapstructure:"default_limit"`
	MaxLimit       int           `mapstructure:"max_limit"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// MQTTConfig holds sensor ingest configuration
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
	QoS      int    `mapstructure:"qos"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables. A .env file
// in the working directory is loaded first; variables already set win.
func Load(path string) (*Config, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	v := viper.New()

	// Set config file
	v.SetConfigFile(path)

	// Set defaults
	setDefaults(v)

	// Enable environment variable override, e.g. COMFORTDASH_SOURCE_URL
	v.SetEnvPrefix("COMFORTDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Source defaults
	v.SetDefault("source.url", "http://localhost:5000/api/readings")
	v.SetDefault("source.timeout", "5s")
	v.SetDefault("source.max_retries", 1)
	v.SetDefault("source.retry_delay_base", "200ms")

	// Sync defaults
	v.SetDefault("sync.poll_interval", "2s")
	v.SetDefault("sync.fetch_timeout", "2s")
	v.SetDefault("sync.degraded_after", 1)
	v.SetDefault("sync.merge", false)

	// Playback defaults
	v.SetDefault("playback.interval", "2s")

	// Dashboard defaults
	v.SetDefault("dashboard.mode", ModeLive)
	v.SetDefault("dashboard.gauge_max", 40.0)
	v.SetDefault("dashboard.buffer_capacity", 0)
	v.SetDefault("dashboard.report_interval", "10s")

	// Telegram defaults
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")
	v.SetDefault("telegram.cooldown", "30m")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/comfortdash.db")
	v.SetDefault("storage.max_readings", 10000)
	v.SetDefault("storage.rotate_interval", "10m")

	// API defaults
	v.SetDefault("api.addr", ":5000")
	v.SetDefault("api.default_limit", 20)
	v.SetDefault("api.max_limit", 500)
	v.SetDefault("api.max_body_bytes", 1<<20)
	v.SetDefault("api.allowed_origins", []string{"*"})
	v.SetDefault("api.read_timeout", "10s")
	v.SetDefault("api.write_timeout", "10s")

	// MQTT defaults
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "comfortdash-ingest")
	v.SetDefault("mqtt.topic", "comfortdash/readings")
	v.SetDefault("mqtt.qos", 1)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Dashboard config
	switch c.Dashboard.Mode {
	case ModeLive:
		if c.Source.URL == "" && c.Source.DBPath == "" {
			return fmt.Errorf("source.url or source.db_path is required in live mode")
		}
	case ModePlayback:
		if c.Playback.ImportPath == "" {
			return fmt.Errorf("playback.import_path is required in playback mode")
		}
	default:
		return fmt.Errorf("dashboard.mode must be one of: live, playback")
	}
	if c.Dashboard.GaugeMax <= 0 {
		return fmt.Errorf("dashboard.gauge_max must be positive")
	}
	if c.Dashboard.BufferCapacity < 0 {
		return fmt.Errorf("dashboard.buffer_capacity must not be negative")
	}
	if c.Dashboard.BufferCapacity > 0 && (c.Dashboard.Mode != ModeLive || !c.Sync.Merge) {
		return fmt.Errorf("dashboard.buffer_capacity only applies in live mode with sync.merge enabled")
	}
	if c.Dashboard.ReportInterval < time.Second {
		return fmt.Errorf("dashboard.report_interval must be at least 1 second")
	}

	// Validate Source config
	if c.Source.Timeout < 100*time.Millisecond {
		return fmt.Errorf("source.timeout must be at least 100ms")
	}
	if c.Source.MaxRetries < 1 {
		return fmt.Errorf("source.max_retries must be at least 1")
	}

	// Validate Sync config
	if c.Sync.PollInterval < 100*time.Millisecond {
		return fmt.Errorf("sync.poll_interval must be at least 100ms")
	}
	if c.Sync.FetchTimeout <= 0 {
		return fmt.Errorf("sync.fetch_timeout must be positive")
	}
	if c.Sync.DegradedAfter < 1 {
		return fmt.Errorf("sync.degraded_after must be at least 1")
	}

	// Validate Playback config
	if c.Playback.Interval < 100*time.Millisecond {
		return fmt.Errorf("playback.interval must be at least 100ms")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
		if c.Telegram.Timezone != "" {
			if _, err := time.LoadLocation(c.Telegram.Timezone); err != nil {
				return fmt.Errorf("telegram.timezone is invalid: %w", err)
			}
		}
	}
	if c.Telegram.Cooldown < 0 {
		return fmt.Errorf("telegram.cooldown must not be negative")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// ValidateServer checks the settings used by the readings API process
func (c *Config) ValidateServer() error {
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxReadings < 1 {
		return fmt.Errorf("storage.max_readings must be at least 1")
	}
	if c.Storage.RotateInterval < time.Second {
		return fmt.Errorf("storage.rotate_interval must be at least 1 second")
	}
	if c.API.Addr == "" {
		return fmt.Errorf("api.addr is required")
	}
	if c.API.DefaultLimit < 1 || c.API.MaxLimit < c.API.DefaultLimit {
		return fmt.Errorf("api.default_limit must be at least 1 and not above api.max_limit")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" || c.MQTT.Topic == "" {
			return fmt.Errorf("mqtt.broker and mqtt.topic are required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}
	return nil
}
