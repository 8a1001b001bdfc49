// Package config handles application configuration from defaults, an
// optional YAML file and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileEnv names the variable holding the optional YAML config path.
const FileEnv = "FEEDS_CONFIG"

// Config holds the application configuration.
type Config struct {
	DataDir          string        `yaml:"data_dir"`
	Backend          string        `yaml:"backend"`
	SQLitePath       string        `yaml:"sqlite_path"`
	StoreBase        string        `yaml:"store_base"`
	MaxChunkBytes    int           `yaml:"max_chunk_bytes"`
	SaveDebounce     time.Duration `yaml:"save_debounce"`
	UpdateInterval   time.Duration `yaml:"update_interval"`
	FetchConcurrency int           `yaml:"fetch_concurrency"`
	FetchRate        float64       `yaml:"fetch_rate"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
	HTTPAddr         string        `yaml:"http_addr"`
	LogLevel         string        `yaml:"log_level"`
	TelegramBotToken string        `yaml:"telegram_bot_token"`
	TelegramChatID   int64         `yaml:"telegram_chat_id"`
	AllowedUsers     []int64       `yaml:"allowed_users"`
	NotifyNewItems   bool          `yaml:"notify_new_items"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		DataDir:          "./data",
		Backend:          "dir",
		StoreBase:        "feeds_store",
		MaxChunkBytes:    1 << 20,
		SaveDebounce:     5 * time.Second,
		UpdateInterval:   30 * time.Minute,
		FetchConcurrency: 4,
		FetchRate:        2,
		FetchTimeout:     30 * time.Second,
		HTTPAddr:         "127.0.0.1:8089",
		LogLevel:         "info",
	}
}

// Load applies the YAML file named by FEEDS_CONFIG, then environment
// variables, on top of Default.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(FileEnv); path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", FileEnv, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = filepath.Join(cfg.DataDir, "vault.db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	envString("FEEDS_DATA_DIR", &c.DataDir)
	envString("FEEDS_BACKEND", &c.Backend)
	envString("FEEDS_SQLITE_PATH", &c.SQLitePath)
	envString("FEEDS_STORE_BASE", &c.StoreBase)
	envString("FEEDS_HTTP_ADDR", &c.HTTPAddr)
	envString("LOG_LEVEL", &c.LogLevel)
	envString("TELEGRAM_BOT_TOKEN", &c.TelegramBotToken)

	return errors.Join(
		envInt("FEEDS_MAX_CHUNK_BYTES", &c.MaxChunkBytes),
		envDuration("FEEDS_SAVE_DEBOUNCE", &c.SaveDebounce),
		envDuration("FEEDS_UPDATE_INTERVAL", &c.UpdateInterval),
		envInt("FEEDS_FETCH_CONCURRENCY", &c.FetchConcurrency),
		envFloat("FEEDS_FETCH_RATE", &c.FetchRate),
		envDuration("FEEDS_FETCH_TIMEOUT", &c.FetchTimeout),
		envInt64("TELEGRAM_CHAT_ID", &c.TelegramChatID),
		envInt64List("TELEGRAM_ALLOWED_USERS", &c.AllowedUsers),
		envBool("FEEDS_NOTIFY_NEW_ITEMS", &c.NotifyNewItems),
	)
}

// Validate reports the first invalid setting, naming its key.
func (c *Config) Validate() error {
	switch c.Backend {
	case "dir", "sqlite":
	default:
		return fmt.Errorf("FEEDS_BACKEND must be dir or sqlite, got %q", c.Backend)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel)
	}
	if c.DataDir == "" {
		return fmt.Errorf("FEEDS_DATA_DIR cannot be empty")
	}
	if strings.Trim(c.StoreBase, "/") == "" {
		return fmt.Errorf("FEEDS_STORE_BASE cannot be empty")
	}
	if c.MaxChunkBytes < 1 {
		return fmt.Errorf("FEEDS_MAX_CHUNK_BYTES must be positive, got %d", c.MaxChunkBytes)
	}
	if c.SaveDebounce < 0 {
		return fmt.Errorf("FEEDS_SAVE_DEBOUNCE cannot be negative, got %s", c.SaveDebounce)
	}
	if c.UpdateInterval < time.Minute {
		return fmt.Errorf("FEEDS_UPDATE_INTERVAL must be at least 1m, got %s", c.UpdateInterval)
	}
	if c.FetchConcurrency < 1 || c.FetchConcurrency > 64 {
		return fmt.Errorf("FEEDS_FETCH_CONCURRENCY must be between 1 and 64, got %d", c.FetchConcurrency)
	}
	if c.FetchRate < 0 {
		return fmt.Errorf("FEEDS_FETCH_RATE cannot be negative, got %g", c.FetchRate)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FEEDS_FETCH_TIMEOUT must be positive, got %s", c.FetchTimeout)
	}
	return nil
}

// TelegramEnabled reports whether notices go to a Telegram chat.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func envInt64(key string, dst *int64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = f
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = d
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = b
	return nil
}

func envInt64List(key string, dst *[]int64) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var ids []int64
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user ID %q in %s: %w", s, key, err)
		}
		ids = append(ids, id)
	}
	*dst = ids
	return nil
}
