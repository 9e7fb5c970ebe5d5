package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Duration is a time.Duration read from text such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	Port         string `env:"PORT" toml:"port"`
	Environment  string `env:"ENVIRONMENT" toml:"environment"`
	LogLevelName string `env:"LOG_LEVEL" toml:"log_level"`
	LogLevel     slog.Level `toml:"-"`

	DataDir string `env:"DATA_DIR" toml:"data_dir"` // quests/, recipes/ and items.* live here

	Store       string   `env:"STORE" toml:"store"` // memory, redis, sqlite or postgres
	RedisURL    string   `env:"REDIS_URL" toml:"redis_url"`
	SQLitePath  string   `env:"SQLITE_PATH" toml:"sqlite_path"`
	PostgresURL string   `env:"POSTGRES_URL" toml:"postgres_url"`
	LockTTL     Duration `env:"LOCK_TTL" toml:"lock_ttl"` // redis player-lock expiry

	EnableQuests   bool `env:"ENABLE_QUESTS" toml:"enable_quests"`
	EnableCrafting bool `env:"ENABLE_CRAFTING" toml:"enable_crafting"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Port:           "8080",
		Environment:    "development",
		LogLevelName:   "info",
		LogLevel:       slog.LevelInfo,
		DataDir:        "./data",
		Store:          StoreMemory,
		SQLitePath:     "./quest-engine.db",
		LockTTL:        Duration{30 * time.Second},
		EnableQuests:   true,
		EnableCrafting: true,
	}
}

// Load builds the configuration from defaults, then the TOML file named by
// CONFIG_FILE (if any), then environment variables that are set.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	if err := toml.NewDecoder(file).Decode(c); err != nil {
		return fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	return nil
}

// Validate rejects unknown store kinds and missing backend settings.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STORE=%s", c.Store)
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE=%s", c.Store)
		}
	case StorePostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_URL is required when STORE=%s", c.Store)
		}
	default:
		return fmt.Errorf("unknown STORE %q (want memory, redis, sqlite or postgres)", c.Store)
	}
	if c.LockTTL.Duration <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive, got %s", c.LockTTL)
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
