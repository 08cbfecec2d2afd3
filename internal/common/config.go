// Package common provides shared utilities for aviary
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for aviary
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Queue       QueueConfig   `toml:"queue"`
	Observer    ObserverConfig `toml:"observer"`
	Processor   ProcessorConfig `toml:"processor"`
	Logging     LoggingConfig `toml:"logging"`
	Auth        AuthConfig    `toml:"auth"`
}

// ServerConfig holds HTTP admission-surface configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds the two store directories the core owns.
type StorageConfig struct {
	QueueDBPath    string `toml:"queue_db_path"`
	ObserverDBPath string `toml:"observer_db_path"`
}

// QueueConfig holds worker/retry tuning for the job queue.
type QueueConfig struct {
	PollIntervalMS    int `toml:"poll_interval_ms"`
	BaseDelayMS       int `toml:"base_delay_ms"`
	MaxRetries        int `toml:"max_retries"`
	WorkerConcurrency int `toml:"worker_concurrency"`
	TimestampPadLen   int `toml:"timestamp_pad_length"`
}

// GetPollInterval returns the worker tick interval as a Duration.
func (c *QueueConfig) GetPollInterval() time.Duration {
	if c.PollIntervalMS <= 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// GetBaseDelay returns the backoff base as a Duration.
func (c *QueueConfig) GetBaseDelay() time.Duration {
	if c.BaseDelayMS <= 0 {
		return 1000 * time.Millisecond
	}
	return time.Duration(c.BaseDelayMS) * time.Millisecond
}

// GetMaxRetries returns the configured retry ceiling, defaulting to 5.
func (c *QueueConfig) GetMaxRetries() int {
	if c.MaxRetries <= 0 {
		return 5
	}
	return c.MaxRetries
}

// GetWorkerConcurrency returns the number of worker agents to launch, defaulting to 1.
func (c *QueueConfig) GetWorkerConcurrency() int {
	if c.WorkerConcurrency <= 0 {
		return 1
	}
	return c.WorkerConcurrency
}

// GetTimestampPadLength returns the index key timestamp width, defaulting to 13
// (covers millisecond timestamps through year 2286).
func (c *QueueConfig) GetTimestampPadLength() int {
	if c.TimestampPadLen <= 0 {
		return 13
	}
	return c.TimestampPadLen
}

// ObserverConfig holds metrics/alerting tuning for the event log.
type ObserverConfig struct {
	DefaultMetricsWindowMS int     `toml:"default_metrics_window_ms"`
	FailureRateThreshold   float64 `toml:"failure_rate_threshold"`
}

// GetDefaultMetricsWindow returns the default metrics window, defaulting to 3 hours.
func (c *ObserverConfig) GetDefaultMetricsWindow() time.Duration {
	if c.DefaultMetricsWindowMS <= 0 {
		return 3 * time.Hour
	}
	return time.Duration(c.DefaultMetricsWindowMS) * time.Millisecond
}

// GetFailureRateThreshold returns the alert threshold, defaulting to 0.5.
func (c *ObserverConfig) GetFailureRateThreshold() float64 {
	if c.FailureRateThreshold <= 0 {
		return 0.5
	}
	return c.FailureRateThreshold
}

// ProcessorConfig holds the external research API client configuration.
type ProcessorConfig struct {
	BaseURL   string `toml:"base_url"`
	Timeout   string `toml:"timeout"`
	RateLimit int    `toml:"rate_limit"` // requests per second
}

// GetTimeout parses and returns the processor HTTP timeout.
func (c *ProcessorConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// GetRateLimit returns the configured requests-per-second ceiling, defaulting to 5.
func (c *ProcessorConfig) GetRateLimit() int {
	if c.RateLimit <= 0 {
		return 5
	}
	return c.RateLimit
}

// AuthConfig holds the optional bearer-JWT guard for the admission surface.
// AdmissionToken is the HMAC secret used to sign and verify admission
// tokens (see server.IssueAdmissionToken), not a bearer token itself. Empty
// disables the guard.
type AuthConfig struct {
	AdmissionToken string `toml:"admission_token"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			QueueDBPath:    "data/queue",
			ObserverDBPath: "data/observer",
		},
		Queue: QueueConfig{
			PollIntervalMS:    250,
			BaseDelayMS:       1000,
			MaxRetries:        5,
			WorkerConcurrency: 1,
			TimestampPadLen:   13,
		},
		Observer: ObserverConfig{
			DefaultMetricsWindowMS: int((3 * time.Hour).Milliseconds()),
			FailureRateThreshold:   0.5,
		},
		Processor: ProcessorConfig{
			BaseURL:   "https://en.wikipedia.org/w/api.php",
			Timeout:   "15s",
			RateLimit: 5,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Outputs:    []string{"console"},
			FilePath:   "./logs/aviary.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("AVIARY_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("AVIARY_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("AVIARY_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("QUEUE_DB_PATH"); path != "" {
		config.Storage.QueueDBPath = path
	}
	if path := os.Getenv("OBSERVER_DB_PATH"); path != "" {
		config.Storage.ObserverDBPath = path
	}

	if v := os.Getenv("POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Queue.PollIntervalMS = n
		}
	}
	if v := os.Getenv("BASE_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Queue.BaseDelayMS = n
		}
	}
	if v := os.Getenv("MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Queue.MaxRetries = n
		}
	}
	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Queue.WorkerConcurrency = n
		}
	}
	if v := os.Getenv("TIMESTAMP_PAD_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Queue.TimestampPadLen = n
		}
	}

	if v := os.Getenv("DEFAULT_METRICS_WINDOW_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Observer.DefaultMetricsWindowMS = n
		}
	}
	if v := os.Getenv("FAILURE_RATE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Observer.FailureRateThreshold = f
		}
	}

	if v := os.Getenv("AVIARY_ADMISSION_TOKEN"); v != "" {
		config.Auth.AdmissionToken = v
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
