// Package config aggregates every tunable of the crawler: politeness knobs,
// store location, job bounds, logging. One Config object is built at startup
// and injected into the orchestrator; nothing reads configuration at call
// sites.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ClientConfig holds the politeness contract of the HTTP client.
type ClientConfig struct {
	BaseURL      string  `yaml:"baseURL"`
	UserAgent    string  `yaml:"userAgent"`
	MinDelaySec  float64 `yaml:"minDelaySec"`
	MaxDelaySec  float64 `yaml:"maxDelaySec"`
	MaxRetries   int     `yaml:"maxRetries"`
	RetryBackoff float64 `yaml:"retryBackoff"`
	TimeoutMs    int     `yaml:"timeoutMs"`
}

// MinDelay returns the lower pacing bound as a duration.
func (c ClientConfig) MinDelay() time.Duration {
	return time.Duration(c.MinDelaySec * float64(time.Second))
}

// MaxDelay returns the upper pacing bound as a duration.
func (c ClientConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelaySec * float64(time.Second))
}

// Timeout returns the per-request timeout as a duration.
func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

type RobotsConfig struct {
	Respect bool `yaml:"respect"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DataConfig locates the directory shared with observer processes (progress
// file, cancel flag).
type DataConfig struct {
	Dir string `yaml:"dir"`
}

type HistoryConfig struct {
	MaxHearingsPerTribunal int `yaml:"maxHearingsPerTribunal"`
}

type BackfillConfig struct {
	Limit int `yaml:"limit"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Client   ClientConfig   `yaml:"client"`
	Robots   RobotsConfig   `yaml:"robots"`
	Database DatabaseConfig `yaml:"database"`
	Data     DataConfig     `yaml:"data"`
	History  HistoryConfig  `yaml:"history"`
	Backfill BackfillConfig `yaml:"backfill"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Default returns the documented defaults. The user agent identifies the
// crawler and carries a contact address, as the target site expects.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			BaseURL:      "https://www.licitor.com",
			UserAgent:    "Mozilla/5.0 (compatible; EnchImmoBot/1.0; +mailto:contact@encheres-immo.local)",
			MinDelaySec:  1.5,
			MaxDelaySec:  3.0,
			MaxRetries:   3,
			RetryBackoff: 2.0,
			TimeoutMs:    30000,
		},
		Robots:   RobotsConfig{Respect: true},
		Database: DatabaseConfig{Path: "data/encheres.db"},
		Data:     DataConfig{Dir: "data"},
		History:  HistoryConfig{MaxHearingsPerTribunal: 200},
		Backfill: BackfillConfig{Limit: 500},
		Logging:  LoggingConfig{Level: "INFO", Format: "text"},
	}
}

// Load builds a Config from the defaults, an optional YAML file and the
// ENCHIMMO_* environment overrides, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config file: %w", err)
		}
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ENCHIMMO_BASE_URL"); v != "" {
		c.Client.BaseURL = v
	}
	if v := os.Getenv("ENCHIMMO_USER_AGENT"); v != "" {
		c.Client.UserAgent = v
	}
	if v, ok := envFloat("ENCHIMMO_MIN_DELAY"); ok {
		c.Client.MinDelaySec = v
	}
	if v, ok := envFloat("ENCHIMMO_MAX_DELAY"); ok {
		c.Client.MaxDelaySec = v
	}
	if v, ok := envInt("ENCHIMMO_MAX_RETRIES"); ok {
		c.Client.MaxRetries = v
	}
	if v, ok := envFloat("ENCHIMMO_RETRY_BACKOFF"); ok {
		c.Client.RetryBackoff = v
	}
	if v, ok := envInt("ENCHIMMO_TIMEOUT_MS"); ok {
		c.Client.TimeoutMs = v
	}
	if v := os.Getenv("ENCHIMMO_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("ENCHIMMO_DATA_DIR"); v != "" {
		c.Data.Dir = v
	}
}

// Validate rejects configurations the client or the workflows cannot honor.
func (c *Config) Validate() error {
	if c.Client.BaseURL == "" {
		return fmt.Errorf("client.baseURL must not be empty")
	}
	if c.Client.MinDelaySec < 0 || c.Client.MaxDelaySec < c.Client.MinDelaySec {
		return fmt.Errorf("delay bounds invalid: min=%v max=%v", c.Client.MinDelaySec, c.Client.MaxDelaySec)
	}
	if c.Client.MaxRetries < 1 {
		return fmt.Errorf("client.maxRetries must be at least 1")
	}
	if c.Client.TimeoutMs <= 0 {
		return fmt.Errorf("client.timeoutMs must be positive")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir must not be empty")
	}
	return nil
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
