package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the entire application configuration
type Config struct {
	Data    DataConfig    `mapstructure:"data"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// DataConfig contains local storage settings
type DataConfig struct {
	Dir       string `mapstructure:"dir"`
	HistoryDB string `mapstructure:"history_db"`
}

// FetchConfig contains download settings
type FetchConfig struct {
	Timeout       string `mapstructure:"timeout"`
	ChunkSizeKB   int    `mapstructure:"chunk_size_kb"`
	RateLimitKBps int    `mapstructure:"rate_limit_kbps"`
	Progress      bool   `mapstructure:"progress"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from the specified file path. An empty path
// runs on defaults and environment overrides alone.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("data.dir", filepath.Join("data", "raw", "cite_seq"))
	v.SetDefault("data.history_db", "")
	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.chunk_size_kb", 32)
	v.SetDefault("fetch.rate_limit_kbps", 0)
	v.SetDefault("fetch.progress", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	// Environment overrides, e.g. GEOFETCH_DATA_DIR
	v.SetEnvPrefix("GEOFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir is required")
	}

	if _, err := time.ParseDuration(c.Fetch.Timeout); err != nil {
		return fmt.Errorf("invalid fetch.timeout: %w", err)
	}
	if c.Fetch.ChunkSizeKB <= 0 {
		return fmt.Errorf("fetch.chunk_size_kb must be positive")
	}
	if c.Fetch.RateLimitKBps < 0 {
		return fmt.Errorf("fetch.rate_limit_kbps must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// GetTimeout returns the fetch timeout as time.Duration
func (c *FetchConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetChunkSize returns the chunk size in bytes
func (c *FetchConfig) GetChunkSize() int {
	if c.ChunkSizeKB <= 0 {
		return 32 * 1024
	}
	return c.ChunkSizeKB * 1024
}

// GetRateLimit returns the rate limit in bytes per second, 0 for unlimited
func (c *FetchConfig) GetRateLimit() int64 {
	if c.RateLimitKBps <= 0 {
		return 0
	}
	return int64(c.RateLimitKBps) * 1024
}

// HistoryPath returns the history database path, defaulting to a
// geofetch.db sibling of the data directory.
func (c *Config) HistoryPath() string {
	if c.Data.HistoryDB != "" {
		return c.Data.HistoryDB
	}
	return filepath.Join(filepath.Dir(c.Data.Dir), "geofetch.db")
}
