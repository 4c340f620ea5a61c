// Package config loads worldforge settings from a YAML file with
// WORLDFORGE_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WORLDFORGE_"

// Locker kinds.
const (
	LockerMemory = "memory"
	LockerRedis  = "redis"
)

// DatabaseConfig selects a SQL backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// QuotaConfig configures the admission gate.
type QuotaConfig struct {
	DefaultAllocatedBytes int64         `yaml:"default_allocated_bytes"`
	Locker                string        `yaml:"locker"`
	LockTTL               time.Duration `yaml:"lock_ttl"`
}

// RedisConfig is used when quota.locker is "redis".
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LogConfig selects the logger mode (see logging.New).
type LogConfig struct {
	Mode string `yaml:"mode"`
}

// Config is the full runtime configuration.
type Config struct {
	Database  DatabaseConfig `yaml:"database"`
	ReadModel DatabaseConfig `yaml:"readmodel"`
	Quota     QuotaConfig    `yaml:"quota"`
	Redis     RedisConfig    `yaml:"redis"`
	Log       LogConfig      `yaml:"log"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Database:  DatabaseConfig{Driver: "sqlite3", DSN: "worldforge.db"},
		ReadModel: DatabaseConfig{Driver: "sqlite", DSN: "worldforge_views.db"},
		Quota: QuotaConfig{
			DefaultAllocatedBytes: 1 << 20,
			Locker:                LockerMemory,
			LockTTL:               10 * time.Second,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Log:   LogConfig{Mode: "dev"},
	}
}

// Load reads path (or $WORLDFORGE_CONFIG when path is empty) over the
// defaults, applies environment overrides and validates the result. A
// missing path means defaults plus environment.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = strings.TrimSpace(getenv(EnvPrefix + "CONFIG"))
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode rejects unknown keys so typos do not silently fall back to defaults.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(EnvPrefix + key)); v != "" {
			*dst = v
		}
	}
	str("DATABASE_DRIVER", &c.Database.Driver)
	str("DATABASE_DSN", &c.Database.DSN)
	str("READMODEL_DRIVER", &c.ReadModel.Driver)
	str("READMODEL_DSN", &c.ReadModel.DSN)
	str("QUOTA_LOCKER", &c.Quota.Locker)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("LOG_MODE", &c.Log.Mode)

	if v := strings.TrimSpace(getenv(EnvPrefix + "QUOTA_DEFAULT_ALLOCATED_BYTES")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sQUOTA_DEFAULT_ALLOCATED_BYTES: %w", EnvPrefix, err)
		}
		c.Quota.DefaultAllocatedBytes = n
	}
	if v := strings.TrimSpace(getenv(EnvPrefix + "QUOTA_LOCK_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sQUOTA_LOCK_TTL: %w", EnvPrefix, err)
		}
		c.Quota.LockTTL = d
	}
	if v := strings.TrimSpace(getenv(EnvPrefix + "REDIS_DB")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sREDIS_DB: %w", EnvPrefix, err)
		}
		c.Redis.DB = n
	}
	return nil
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite3 or postgres, got %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	switch c.ReadModel.Driver {
	case "sqlite", "sqlite3", "postgres", "postgresql":
	default:
		return fmt.Errorf("readmodel.driver must be sqlite or postgres, got %q", c.ReadModel.Driver)
	}
	if strings.TrimSpace(c.ReadModel.DSN) == "" {
		return errors.New("readmodel.dsn is required")
	}
	if c.Quota.DefaultAllocatedBytes < 0 {
		return fmt.Errorf("quota.default_allocated_bytes must not be negative, got %d", c.Quota.DefaultAllocatedBytes)
	}
	switch c.Quota.Locker {
	case LockerMemory:
	case LockerRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return errors.New("redis.addr is required when quota.locker is redis")
		}
		if c.Quota.LockTTL <= 0 {
			return errors.New("quota.lock_ttl must be positive when quota.locker is redis")
		}
	default:
		return fmt.Errorf("quota.locker must be memory or redis, got %q", c.Quota.Locker)
	}
	return nil
}
