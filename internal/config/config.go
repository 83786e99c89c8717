// Package config loads settings from defaults, an optional YAML file and
// NEWSPULSE_ environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/deusflow/newspulse/internal/cluster"
	"github.com/deusflow/newspulse/internal/storage"
	"github.com/deusflow/newspulse/internal/tags"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "NEWSPULSE_"
	// ConfigPathEnvVar points at an explicit config file.
	ConfigPathEnvVar = "NEWSPULSE_CONFIG"
)

type Config struct {
	Store    storage.Config  `koanf:"store"`
	Feeds    FeedsConfig     `koanf:"feeds"`
	Cluster  cluster.Options `koanf:"cluster"`
	Tags     tags.Config     `koanf:"tags"`
	Server   ServerConfig    `koanf:"server"`
	Gemini   GeminiConfig    `koanf:"gemini"`
	Telegram TelegramConfig  `koanf:"telegram"`
	Log      LogConfig       `koanf:"log"`
	Debug    bool            `koanf:"debug"`
}

// FeedsConfig controls fetching and the source list.
type FeedsConfig struct {
	SourcesPath     string        `koanf:"sources_path"`
	SyncInterval    time.Duration `koanf:"sync_interval"`
	FetchTimeout    time.Duration `koanf:"fetch_timeout"`
	Expiry          time.Duration `koanf:"expiry"`
	MasterCap       int           `koanf:"master_cap"`
	RetryAttempts   int           `koanf:"retry_attempts"`
	RetryDelay      time.Duration `koanf:"retry_delay"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerCooldown time.Duration `koanf:"breaker_cooldown"`
}

type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// GeminiConfig enables summaries when APIKey is set.
type GeminiConfig struct {
	APIKey     string        `koanf:"api_key"`
	Model      string        `koanf:"model"`
	PerMinute  int           `koanf:"per_minute"`
	MaxPerDay  int           `koanf:"max_per_day"`
	SummaryTTL time.Duration `koanf:"summary_ttl"`
}

type TelegramConfig struct {
	Token      string `koanf:"token"`
	ChatID     string `koanf:"chat_id"`
	DigestSize int    `koanf:"digest_size"`
}

type LogConfig struct {
	Format string `koanf:"format"`
}

// DefaultConfigPath is the config file looked up when none is named.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "newspulse", "config.yaml")
}

// DataDir holds the file, badger and sqlite stores by default.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "newspulse")
}

func defaultConfig() Config {
	return Config{
		Store: storage.Config{
			Backend: storage.BackendFile,
			Path:    filepath.Join(DataDir(), "store"),
		},
		Feeds: FeedsConfig{
			SourcesPath:     filepath.Join(xdg.ConfigHome, "newspulse", "sources.yaml"),
			SyncInterval:    10 * time.Minute,
			FetchTimeout:    10 * time.Second,
			Expiry:          72 * time.Hour,
			MasterCap:       1000,
			RetryAttempts:   2,
			RetryDelay:      time.Second,
			BreakerFailures: 3,
			BreakerCooldown: 5 * time.Minute,
		},
		Cluster: cluster.DefaultOptions(),
		Tags:    tags.DefaultConfig(),
		Server:  ServerConfig{Addr: "127.0.0.1:8080"},
		Gemini: GeminiConfig{
			Model:      "gemini-1.5-flash",
			PerMinute:  10,
			MaxPerDay:  200,
			SummaryTTL: 24 * time.Hour,
		},
		Telegram: TelegramConfig{DigestSize: 8},
		Log:      LogConfig{Format: "console"},
	}
}

// Load reads the config from path, or from NEWSPULSE_CONFIG or the default
// location when path is empty. A missing default file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath, err := findConfigFile(path)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return explicit, nil
	}
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	if _, err := os.Stat(DefaultConfigPath()); err == nil {
		return DefaultConfigPath(), nil
	}
	return "", nil
}

var sections = map[string]bool{
	"store": true, "feeds": true, "cluster": true, "tags": true,
	"server": true, "gemini": true, "telegram": true, "log": true,
}

// envTransformFunc maps NEWSPULSE_GEMINI_API_KEY to gemini.api_key. Keys
// outside a known section stay top level (NEWSPULSE_DEBUG -> debug).
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == "config" {
		return ""
	}
	section, rest, ok := strings.Cut(key, "_")
	if ok && sections[section] {
		return section + "." + rest
	}
	return key
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case storage.BackendMemory, storage.BackendFile, storage.BackendBadger, storage.BackendSQLite:
		if c.Store.Backend != storage.BackendMemory && c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the %s backend", c.Store.Backend)
		}
	case storage.BackendPostgres:
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend must be one of memory, file, badger, sqlite, postgres (got %q)", c.Store.Backend)
	}
	if c.Feeds.SourcesPath == "" {
		return errors.New("feeds.sources_path is required")
	}
	if c.Feeds.SyncInterval < time.Minute {
		return fmt.Errorf("feeds.sync_interval must be at least 1m (got %s)", c.Feeds.SyncInterval)
	}
	if c.Feeds.FetchTimeout <= 0 {
		return errors.New("feeds.fetch_timeout must be positive")
	}
	if c.Feeds.MasterCap <= 0 {
		return errors.New("feeds.master_cap must be positive")
	}
	if c.Feeds.RetryAttempts < 1 {
		return errors.New("feeds.retry_attempts must be at least 1")
	}
	if c.Cluster.Threshold < 0 || c.Cluster.Threshold > 1 {
		return fmt.Errorf("cluster.threshold must be within [0,1] (got %v)", c.Cluster.Threshold)
	}
	if c.Cluster.SameSourceThreshold < 0 || c.Cluster.SameSourceThreshold > 1 {
		return fmt.Errorf("cluster.same_source_threshold must be within [0,1] (got %v)", c.Cluster.SameSourceThreshold)
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Gemini.APIKey != "" && (c.Gemini.PerMinute <= 0 || c.Gemini.MaxPerDay <= 0) {
		return errors.New("gemini.per_minute and gemini.max_per_day must be positive")
	}
	if (c.Telegram.Token == "") != (c.Telegram.ChatID == "") {
		return errors.New("telegram.token and telegram.chat_id must be set together")
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be console or json (got %q)", c.Log.Format)
	}
	return nil
}

// SummariesEnabled reports whether a Gemini key is configured.
func (c *Config) SummariesEnabled() bool { return c.Gemini.APIKey != "" }

// DigestEnabled reports whether Telegram delivery is configured.
func (c *Config) DigestEnabled() bool { return c.Telegram.Token != "" }
